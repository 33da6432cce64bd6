package models

import "time"

// MemoryLayer identifies which layer a memory item lives in.
type MemoryLayer string

const (
	LayerSemantic   MemoryLayer = "SEMANTIC"
	LayerEpisodic   MemoryLayer = "EPISODIC"
	LayerProcedural MemoryLayer = "PROCEDURAL"
)

// Memory item types. The set is open; these are the common ones.
const (
	MemoryTypeProjectFact = "PROJECT_FACT"
	MemoryTypeDecision    = "DECISION"
	MemoryTypeFix         = "FIX"
	MemoryTypeRunbook     = "RUNBOOK"
	MemoryTypeEpisode     = "EPISODE"
)

// MemoryItem is a single stored memory. Items are addressed by ID and by
// Fingerprint, a deterministic hash of normalized content+type+layer
// used to deduplicate upserts. TTLDays of zero marks a tombstone.
type MemoryItem struct {
	ID          string      `json:"id"`
	Fingerprint string      `json:"fingerprint"`
	Layer       MemoryLayer `json:"layer"`
	Type        string      `json:"type"`
	Title       string      `json:"title"`
	Content     string      `json:"content"`
	Tags        []string    `json:"tags,omitempty"`
	References  []string    `json:"references,omitempty"`
	Confidence  float64     `json:"confidence"`
	Salience    float64     `json:"salience"`
	TTLDays     int         `json:"ttl_days"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
}

// MemoryQuery selects and ranks items across layers.
type MemoryQuery struct {
	QueryText string              `json:"query_text"`
	TopK      map[MemoryLayer]int `json:"top_k,omitempty"`
	Freshness time.Duration       `json:"freshness,omitempty"`
}

// ScoredMemory pairs an item with its ranking score.
type ScoredMemory struct {
	Item  MemoryItem `json:"item"`
	Score float64    `json:"score"`
}
