package memory

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"

	"github.com/tessel-ai/tessel/pkg/models"
)

// tokenCounter measures prompt cost in cl100k_base tokens, falling
// back to a 4-bytes-per-token estimate when the encoding data is
// unavailable (offline builds).
type tokenCounter struct {
	once sync.Once
	enc  *tiktoken.Tiktoken
}

var counter tokenCounter

func countTokens(text string) int {
	counter.once.Do(func() {
		enc, err := tiktoken.GetEncoding("cl100k_base")
		if err == nil {
			counter.enc = enc
		}
	})
	if counter.enc != nil {
		return len(counter.enc.Encode(text, nil, nil))
	}
	return (len(text) + 3) / 4
}

// selectWithinBudget takes ranked items greedily up to the soft token
// budget. Items over the hard budget are skipped, not terminal; the
// best item that fits within hard is included alone when nothing has
// fit under soft yet.
func selectWithinBudget(scored []models.ScoredMemory, softTokens, hardTokens int) []models.ScoredMemory {
	var (
		out  []models.ScoredMemory
		used int
	)
	for _, sm := range scored {
		cost := countTokens(renderItem(&sm.Item))
		if cost > hardTokens {
			continue
		}
		if used+cost > softTokens {
			if len(out) == 0 {
				return []models.ScoredMemory{sm}
			}
			break
		}
		out = append(out, sm)
		used += cost
	}
	return out
}
