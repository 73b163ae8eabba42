package storage

// Schema contains the complete DDL for the newsdesk tables.
// Timestamps are stored as Unix milliseconds.
const Schema = `
PRAGMA journal_mode = WAL;
PRAGMA foreign_keys = ON;

-- Sources: external outlets configured for ingestion
CREATE TABLE IF NOT EXISTS sources (
    id               INTEGER PRIMARY KEY AUTOINCREMENT,
    name             TEXT NOT NULL,
    homepage         TEXT NOT NULL UNIQUE,
    rss_url          TEXT NOT NULL DEFAULT '',
    scrape_url       TEXT NOT NULL DEFAULT '',
    language         TEXT NOT NULL DEFAULT 'fa',
    trusted          INTEGER NOT NULL DEFAULT 0,
    enabled          INTEGER NOT NULL DEFAULT 1,
    blacklisted      INTEGER NOT NULL DEFAULT 0,
    priority         INTEGER NOT NULL DEFAULT 100,
    last_status      TEXT NOT NULL DEFAULT 'UNKNOWN',
    last_status_code INTEGER NOT NULL DEFAULT 0,
    last_error       TEXT NOT NULL DEFAULT '',
    last_fetch_at    INTEGER,
    last_success_at  INTEGER,
    failure_streak   INTEGER NOT NULL DEFAULT 0,
    created_at       INTEGER NOT NULL,
    updated_at       INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_sources_active ON sources(enabled, blacklisted, priority);

-- Articles: the durable content entity
CREATE TABLE IF NOT EXISTS articles (
    id            INTEGER PRIMARY KEY AUTOINCREMENT,
    source_id     INTEGER NOT NULL,
    slug          TEXT NOT NULL UNIQUE,
    canonical     TEXT NOT NULL,
    image         TEXT NOT NULL DEFAULT '',
    author        TEXT NOT NULL DEFAULT '',
    language      TEXT NOT NULL,
    status        TEXT NOT NULL DEFAULT 'DRAFT',
    title_fa      TEXT NOT NULL DEFAULT '',
    title_en      TEXT NOT NULL DEFAULT '',
    excerpt_fa    TEXT NOT NULL DEFAULT '',
    excerpt_en    TEXT NOT NULL DEFAULT '',
    summary_fa    TEXT NOT NULL DEFAULT '',
    summary_en    TEXT NOT NULL DEFAULT '',
    content_fa    TEXT NOT NULL DEFAULT '',
    content_en    TEXT NOT NULL DEFAULT '',
    fingerprint   TEXT NOT NULL UNIQUE,
    translation   TEXT NOT NULL DEFAULT '{}',
    categories    TEXT NOT NULL DEFAULT '[]',
    tags          TEXT NOT NULL DEFAULT '[]',
    topics        TEXT NOT NULL DEFAULT '[]',
    published_at  INTEGER,
    scheduled_for INTEGER,
    created_at    INTEGER NOT NULL,
    updated_at    INTEGER NOT NULL,
    FOREIGN KEY (source_id) REFERENCES sources(id)
);
CREATE INDEX IF NOT EXISTS idx_articles_status ON articles(status);
CREATE INDEX IF NOT EXISTS idx_articles_due ON articles(status, scheduled_for);
CREATE INDEX IF NOT EXISTS idx_articles_published ON articles(status, published_at);
CREATE INDEX IF NOT EXISTS idx_articles_source ON articles(source_id);

-- Translation cache: identical (provider, pair, text) costs the provider once
CREATE TABLE IF NOT EXISTS translation_cache (
    hash            TEXT PRIMARY KEY,
    provider        TEXT NOT NULL,
    source_lang     TEXT NOT NULL,
    target_lang     TEXT NOT NULL,
    source_text     TEXT NOT NULL,
    translated_text TEXT NOT NULL,
    created_at      INTEGER NOT NULL
);

-- Daily token usage, keyed by calendar date in the operating timezone
CREATE TABLE IF NOT EXISTS usage_counters (
    day           TEXT PRIMARY KEY,
    input_tokens  INTEGER NOT NULL DEFAULT 0,
    output_tokens INTEGER NOT NULL DEFAULT 0
);

-- Translation health per provider
CREATE TABLE IF NOT EXISTS translation_health (
    provider        TEXT PRIMARY KEY,
    last_success_at INTEGER,
    last_failure_at INTEGER,
    last_error      TEXT NOT NULL DEFAULT '',
    last_context    TEXT NOT NULL DEFAULT ''
);

-- Durable job queue
CREATE TABLE IF NOT EXISTS jobs (
    id            INTEGER PRIMARY KEY AUTOINCREMENT,
    name          TEXT NOT NULL,
    payload       TEXT NOT NULL DEFAULT '{}',
    state         TEXT NOT NULL DEFAULT 'waiting',
    singleton_key TEXT NOT NULL DEFAULT '',
    run_at        INTEGER NOT NULL,
    created_at    INTEGER NOT NULL,
    started_at    INTEGER,
    finished_at   INTEGER,
    error         TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_jobs_claim ON jobs(name, state, run_at);
CREATE INDEX IF NOT EXISTS idx_jobs_singleton ON jobs(name, singleton_key, created_at);

-- Observability records, append-only
CREATE TABLE IF NOT EXISTS heartbeats (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    job         TEXT NOT NULL,
    status      TEXT NOT NULL DEFAULT 'running',
    started_at  INTEGER NOT NULL,
    finished_at INTEGER,
    duration_ms INTEGER NOT NULL DEFAULT 0,
    message     TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_heartbeats_job ON heartbeats(job, started_at DESC);

CREATE TABLE IF NOT EXISTS queue_snapshots (
    id        INTEGER PRIMARY KEY AUTOINCREMENT,
    job       TEXT NOT NULL,
    waiting   INTEGER NOT NULL,
    active    INTEGER NOT NULL,
    completed INTEGER NOT NULL,
    failed    INTEGER NOT NULL,
    taken_at  INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_snapshots_taken ON queue_snapshots(taken_at DESC);

CREATE TABLE IF NOT EXISTS alert_events (
    id         INTEGER PRIMARY KEY AUTOINCREMENT,
    channel    TEXT NOT NULL,
    severity   TEXT NOT NULL,
    subject    TEXT NOT NULL,
    message    TEXT NOT NULL,
    metadata   TEXT NOT NULL DEFAULT '{}',
    created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_alerts_created ON alert_events(created_at DESC);

CREATE TABLE IF NOT EXISTS push_subscriptions (
    id         INTEGER PRIMARY KEY AUTOINCREMENT,
    endpoint   TEXT NOT NULL UNIQUE,
    created_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS trend_snapshots (
    id           INTEGER PRIMARY KEY AUTOINCREMENT,
    computed_at  INTEGER NOT NULL,
    window_hours INTEGER NOT NULL,
    topics       TEXT NOT NULL DEFAULT '[]'
);
`
