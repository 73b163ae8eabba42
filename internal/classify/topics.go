package classify

import (
	"encoding/json"
	"log/slog"
	"math"
	"os"
	"sort"
	"strings"
	"sync"

	"newsdesk/internal/domain"
)

const (
	modelScoreThreshold = 0.05
	fallbackTopicLimit  = 6
)

// Topic keyword tables drive the fallback scorer: occurrence counts are
// weighted by a per-topic boost.
var topicKeywords = map[string]struct {
	keywords []string
	boost    float64
}{
	"generative-ai":    {[]string{"gpt", "llm", "chatbot", "generative", "مدل زبانی", "هوش مصنوعی مولد"}, 1.2},
	"machine-learning": {[]string{"training", "model", "neural", "fine-tun", "یادگیری ماشین", "آموزش مدل"}, 1.0},
	"robotics":         {[]string{"robot", "humanoid", "drone", "ربات", "پهپاد"}, 1.1},
	"computer-vision":  {[]string{"vision", "image", "diffusion", "video model", "بینایی", "تصویر"}, 1.0},
	"nlp":              {[]string{"translation", "speech", "text", "language", "ترجمه", "گفتار", "زبان"}, 0.9},
	"ai-hardware":      {[]string{"gpu", "chip", "nvidia", "datacenter", "تراشه", "پردازنده"}, 1.1},
	"ai-policy":        {[]string{"regulation", "policy", "safety", "copyright", "قانون", "ایمنی"}, 1.0},
	"ai-business":      {[]string{"funding", "startup", "acquisition", "revenue", "سرمایه", "استارتاپ"}, 1.0},
}

// Rule-classifier hits feed the fallback scorer as bonuses on related
// topic labels.
var categoryTopicBonus = map[string]string{
	"research": "machine-learning",
	"tools":    "generative-ai",
	"industry": "ai-business",
	"policy":   "ai-policy",
}

var tagTopicBonus = map[string]string{
	"llm":      "generative-ai",
	"robotics": "robotics",
	"vision":   "computer-vision",
	"speech":   "nlp",
	"hardware": "ai-hardware",
	"safety":   "ai-policy",
	"startups": "ai-business",
}

const ruleHitBonus = 1.0

// weightModel is the learned artifact: a keyword-occurrence feature vector
// (one dimension per concept) multiplied into per-topic weight rows.
type weightModel struct {
	Concepts []string `json:"concepts"`
	Topics   []struct {
		Label   string    `json:"label"`
		Weights []float64 `json:"weights"`
	} `json:"topics"`
}

// TopicPredictor ranks topic labels for a text. If a model artifact is
// configured and loadable it is used; otherwise a hybrid keyword scorer
// takes over. The load result (including "file missing") is resolved once
// and memoized for the process lifetime, until Reset.
type TopicPredictor struct {
	modelPath string
	logger    *slog.Logger

	mu       sync.Mutex
	resolved bool
	model    *weightModel
}

// NewTopicPredictor builds a predictor; modelPath may be empty.
func NewTopicPredictor(modelPath string, logger *slog.Logger) *TopicPredictor {
	if logger == nil {
		logger = slog.Default()
	}
	return &TopicPredictor{modelPath: modelPath, logger: logger}
}

// Reset clears the memoized model decision so the next Predict re-resolves
// the artifact. Intended for tests and admin-triggered reloads.
func (p *TopicPredictor) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.resolved = false
	p.model = nil
}

// Predict returns ranked topic labels with scores in [0,1], best first.
// The primary model is attempted first; "no usable prediction" (not an
// exception) triggers the fallback scorer.
func (p *TopicPredictor) Predict(text string) []domain.TopicScore {
	if model := p.loadModel(); model != nil {
		if preds := model.predict(text); len(preds) > 0 {
			return preds
		}
	}
	return hybridTopics(text)
}

func (p *TopicPredictor) loadModel() *weightModel {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.resolved {
		return p.model
	}
	p.resolved = true

	if p.modelPath == "" {
		return nil
	}

	raw, err := os.ReadFile(p.modelPath)
	if err != nil {
		// Permanent fallback decision: do not re-check the disk on
		// every prediction.
		p.logger.Warn("topic model unavailable, using fallback scorer", "path", p.modelPath, "error", err)
		return nil
	}

	var model weightModel
	if err := json.Unmarshal(raw, &model); err != nil {
		p.logger.Warn("topic model unreadable, using fallback scorer", "path", p.modelPath, "error", err)
		return nil
	}
	if len(model.Concepts) == 0 || len(model.Topics) == 0 {
		p.logger.Warn("topic model empty, using fallback scorer", "path", p.modelPath)
		return nil
	}

	p.model = &model
	return p.model
}

func (m *weightModel) predict(text string) []domain.TopicScore {
	lower := strings.ToLower(text)

	features := make([]float64, len(m.Concepts))
	for i, concept := range m.Concepts {
		features[i] = float64(strings.Count(lower, strings.ToLower(concept)))
	}

	logits := make([]float64, len(m.Topics))
	var maxAbs float64
	for i, topic := range m.Topics {
		var sum float64
		for j, w := range topic.Weights {
			if j >= len(features) {
				break
			}
			sum += w * features[j]
		}
		logits[i] = sum
		if abs := math.Abs(sum); abs > maxAbs {
			maxAbs = abs
		}
	}
	if maxAbs == 0 {
		return nil
	}

	var preds []domain.TopicScore
	for i, topic := range m.Topics {
		score := logits[i] / maxAbs
		if score > modelScoreThreshold {
			preds = append(preds, domain.TopicScore{Label: topic.Label, Score: score})
		}
	}
	sortTopics(preds)
	return preds
}

// hybridTopics merges weighted keyword counts with rule-classifier hits.
func hybridTopics(text string) []domain.TopicScore {
	lower := strings.ToLower(text)
	scores := map[string]float64{}

	for label, spec := range topicKeywords {
		var count float64
		for _, kw := range spec.keywords {
			count += float64(strings.Count(lower, strings.ToLower(kw)))
		}
		if count > 0 {
			scores[label] += count * spec.boost
		}
	}

	categories, tags := ClassifyText(text)
	for _, cat := range categories {
		if label, ok := categoryTopicBonus[cat]; ok {
			scores[label] += ruleHitBonus
		}
	}
	for _, tag := range tags {
		if label, ok := tagTopicBonus[tag]; ok {
			scores[label] += ruleHitBonus
		}
	}

	if len(scores) == 0 {
		return nil
	}

	var maxScore float64
	for _, s := range scores {
		if s > maxScore {
			maxScore = s
		}
	}

	preds := make([]domain.TopicScore, 0, len(scores))
	for label, s := range scores {
		preds = append(preds, domain.TopicScore{Label: label, Score: s / maxScore})
	}
	sortTopics(preds)
	if len(preds) > fallbackTopicLimit {
		preds = preds[:fallbackTopicLimit]
	}
	return preds
}

func sortTopics(preds []domain.TopicScore) {
	sort.Slice(preds, func(i, j int) bool {
		if preds[i].Score == preds[j].Score {
			return preds[i].Label < preds[j].Label
		}
		return preds[i].Score > preds[j].Score
	})
}
