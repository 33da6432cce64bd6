package memory

import (
	"math"
	"sort"
	"time"

	"github.com/tessel-ai/tessel/pkg/models"
)

// Ranking weights. Similarity dominates; confidence, recency, and
// salience break near-ties between similar items.
const (
	weightSimilarity = 0.55
	weightConfidence = 0.20
	weightRecency    = 0.15
	weightSalience   = 0.10
)

// cosine computes cosine similarity; mismatched or zero vectors score
// zero.
func cosine(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// recencyScore decays exponentially with item age; halfLife controls
// how fast old items fade.
func recencyScore(createdAt, now time.Time, halfLife time.Duration) float64 {
	age := now.Sub(createdAt)
	if age <= 0 {
		return 1
	}
	return math.Exp2(-age.Hours() / halfLife.Hours())
}

// rank scores stored items against a query vector and returns them
// best first. Ties break on higher confidence, then more recent.
func rank(items []StoredItem, queryVec []float32, now time.Time, halfLife time.Duration) []models.ScoredMemory {
	scored := make([]models.ScoredMemory, 0, len(items))
	for _, st := range items {
		score := weightSimilarity*cosine(queryVec, st.Embedding) +
			weightConfidence*st.Item.Confidence +
			weightRecency*recencyScore(st.Item.CreatedAt, now, halfLife) +
			weightSalience*st.Item.Salience
		scored = append(scored, models.ScoredMemory{Item: st.Item, Score: score})
	}
	sort.SliceStable(scored, func(i, j int) bool {
		a, b := scored[i], scored[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if a.Item.Confidence != b.Item.Confidence {
			return a.Item.Confidence > b.Item.Confidence
		}
		return a.Item.CreatedAt.After(b.Item.CreatedAt)
	})
	return scored
}
