package classify

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestClassifyText(t *testing.T) {
	t.Parallel()

	categories, tags := ClassifyText("OpenAI launches a new GPT tool with an open source SDK")
	require.Equal(t, []string{"news", "tools"}, categories)
	require.Equal(t, []string{"llm", "open-source"}, tags)
}

func TestClassifyTextPersian(t *testing.T) {
	t.Parallel()

	categories, tags := ClassifyText("رونمایی از یک ربات جدید با سرمایه استارتاپ داخلی")
	require.Contains(t, categories, "news")
	require.Contains(t, categories, "industry")
	require.Contains(t, tags, "robotics")
	require.Contains(t, tags, "startups")
}

func TestClassifyTextNoMatch(t *testing.T) {
	t.Parallel()

	categories, tags := ClassifyText("completely unrelated gardening advice")
	require.Empty(t, categories)
	require.Empty(t, tags)
}

func TestPredictFallbackScorer(t *testing.T) {
	t.Parallel()

	p := NewTopicPredictor("", nil)
	preds := p.Predict("NVIDIA ships a new GPU chip for LLM training in its datacenter line")

	require.NotEmpty(t, preds)
	require.LessOrEqual(t, len(preds), fallbackTopicLimit)

	labels := map[string]float64{}
	for i, pred := range preds {
		labels[pred.Label] = pred.Score
		require.LessOrEqual(t, pred.Score, 1.0)
		require.Greater(t, pred.Score, 0.0)
		if i > 0 {
			require.GreaterOrEqual(t, preds[i-1].Score, pred.Score)
		}
	}
	require.Contains(t, labels, "ai-hardware")
	require.EqualValues(t, 1.0, preds[0].Score)
}

func TestPredictUsesModelArtifact(t *testing.T) {
	t.Parallel()

	model := map[string]any{
		"concepts": []string{"quantum"},
		"topics": []map[string]any{
			{"label": "quantum-computing", "weights": []float64{2.0}},
			{"label": "unrelated", "weights": []float64{-1.0}},
		},
	}
	raw, err := json.Marshal(model)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "topics.json")
	require.NoError(t, os.WriteFile(path, raw, 0o644))

	p := NewTopicPredictor(path, nil)
	preds := p.Predict("a quantum breakthrough")
	require.Len(t, preds, 1)
	require.Equal(t, "quantum-computing", preds[0].Label)
	require.EqualValues(t, 1.0, preds[0].Score)
}

func TestPredictModelMissesFallThrough(t *testing.T) {
	t.Parallel()

	model := map[string]any{
		"concepts": []string{"quantum"},
		"topics":   []map[string]any{{"label": "quantum-computing", "weights": []float64{2.0}}},
	}
	raw, _ := json.Marshal(model)
	path := filepath.Join(t.TempDir(), "topics.json")
	require.NoError(t, os.WriteFile(path, raw, 0o644))

	p := NewTopicPredictor(path, nil)

	// No concept hit means no usable model prediction; the fallback
	// scorer answers instead.
	preds := p.Predict("a new humanoid robot")
	require.NotEmpty(t, preds)
	require.Equal(t, "robotics", preds[0].Label)
}

func TestPredictorMemoizesAndResets(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "topics.json")
	p := NewTopicPredictor(path, nil)

	// Missing file resolves to the fallback permanently.
	require.NotEmpty(t, p.Predict("robot"))
	require.Nil(t, p.loadModel())

	model := map[string]any{
		"concepts": []string{"robot"},
		"topics":   []map[string]any{{"label": "robotics", "weights": []float64{1.0}}},
	}
	raw, _ := json.Marshal(model)
	require.NoError(t, os.WriteFile(path, raw, 0o644))

	// Still memoized until Reset.
	require.Nil(t, p.loadModel())
	p.Reset()
	require.NotNil(t, p.loadModel())
}
