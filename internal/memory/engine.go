package memory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/tessel-ai/tessel/internal/config"
	"github.com/tessel-ai/tessel/pkg/models"
)

// ErrNoMatch is returned by Forget when no item matches the query.
var ErrNoMatch = errors.New("No memory items matched")

// ErrInvalidInput marks malformed operation input.
var ErrInvalidInput = errors.New("invalid input")

// ErrEmbedder wraps embedding provider failures.
var ErrEmbedder = errors.New("embedding provider failed")

// defaultSearchLimit is the per-layer result cap when the caller does
// not give one.
const (
	defaultSearchLimit = 5
	maxSearchLimit     = 50
)

// Engine ties the store, embedder, and ranking together behind the
// memory operations.
type Engine struct {
	store    Store
	embedder Embedder
	cfg      config.MemoryConfig
	logger   *slog.Logger
	now      func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the engine logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithNow injects a clock for tests.
func WithNow(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// NewEngine creates a memory engine over a store and embedder.
func NewEngine(store Store, embedder Embedder, cfg config.MemoryConfig, opts ...Option) *Engine {
	e := &Engine{
		store:    store,
		embedder: embedder,
		cfg:      cfg,
		logger:   slog.Default().With("component", "memory"),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// AddInput are the memory_add parameters after JSON decoding.
type AddInput struct {
	Layer      models.MemoryLayer
	Type       string
	Title      string
	Content    string
	Tags       []string
	References []string
	Confidence float64
	Salience   float64
	TTLDays    *int
}

// Add validates, normalizes, and upserts one item by fingerprint.
func (e *Engine) Add(ctx context.Context, in AddInput) (*models.MemoryItem, error) {
	if strings.TrimSpace(in.Content) == "" {
		return nil, fmt.Errorf("%w: content is required", ErrInvalidInput)
	}
	if in.Layer == "" {
		in.Layer = models.LayerSemantic
	}
	if in.Type == "" {
		in.Type = models.MemoryTypeProjectFact
	}

	ttl := -1 // no expiry
	if in.TTLDays != nil {
		ttl = *in.TTLDays
		if ttl < 0 {
			ttl = 0
		}
	}

	now := e.now()
	item := &models.MemoryItem{
		ID:          uuid.NewString(),
		Fingerprint: Fingerprint(in.Layer, in.Type, in.Content),
		Layer:       in.Layer,
		Type:        in.Type,
		Title:       strings.TrimSpace(in.Title),
		Content:     in.Content,
		Tags:        normalizeTags(in.Tags),
		References:  in.References,
		Confidence:  clamp01(in.Confidence),
		Salience:    clamp01(in.Salience),
		TTLDays:     ttl,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if ttl == 0 {
		// A tombstone on write is a delete.
		existing, err := e.store.GetByFingerprint(ctx, item.Fingerprint)
		if err == nil {
			return item, e.store.Delete(ctx, existing.ID)
		}
		return item, nil
	}

	embedding, err := e.embed(ctx, item)
	if err != nil {
		return nil, err
	}
	if err := e.store.Upsert(ctx, item, embedding); err != nil {
		return nil, err
	}
	return item, nil
}

// Search ranks items per layer against the query text.
func (e *Engine) Search(ctx context.Context, q models.MemoryQuery) ([]models.ScoredMemory, error) {
	if _, err := e.store.SweepExpired(ctx, e.now()); err != nil {
		e.logger.Warn("memory sweep failed", "error", err)
	}

	queryVec, err := e.embedder.Embed(ctx, q.QueryText)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w: %w", ErrEmbedder, err)
	}

	layers := q.TopK
	if len(layers) == 0 {
		layers = map[models.MemoryLayer]int{
			models.LayerSemantic:   defaultSearchLimit,
			models.LayerEpisodic:   defaultSearchLimit,
			models.LayerProcedural: defaultSearchLimit,
		}
	}

	now := e.now()
	var out []models.ScoredMemory
	for _, layer := range []models.MemoryLayer{models.LayerSemantic, models.LayerEpisodic, models.LayerProcedural} {
		limit, ok := layers[layer]
		if !ok {
			continue
		}
		limit = clampLimit(limit)
		items, err := e.store.ListLayer(ctx, layer)
		if err != nil {
			return nil, err
		}
		if q.Freshness > 0 {
			items = filterFresh(items, now, q.Freshness)
		}
		ranked := rank(items, queryVec, now, e.halfLife())
		if len(ranked) > limit {
			ranked = ranked[:limit]
		}
		out = append(out, ranked...)
	}
	return out, nil
}

// UpdateInput identifies an item and carries the mutable fields.
type UpdateInput struct {
	ID          string
	Fingerprint string

	Title      *string
	Content    *string
	Tags       []string
	References []string
	Confidence *float64
	Salience   *float64
	TTLDays    *int
}

func (in *UpdateInput) hasMutation() bool {
	return in.Title != nil || in.Content != nil || in.Tags != nil ||
		in.References != nil || in.Confidence != nil || in.Salience != nil ||
		in.TTLDays != nil
}

// Update applies the given fields to an existing item addressed by id
// or fingerprint.
func (e *Engine) Update(ctx context.Context, in UpdateInput) (*models.MemoryItem, error) {
	if in.ID == "" && in.Fingerprint == "" {
		return nil, fmt.Errorf("%w: id or fingerprint is required", ErrInvalidInput)
	}
	if !in.hasMutation() {
		return nil, fmt.Errorf("%w: at least one field to update is required", ErrInvalidInput)
	}

	item, err := e.lookup(ctx, in.ID, in.Fingerprint)
	if err != nil {
		return nil, err
	}

	if in.Title != nil {
		item.Title = strings.TrimSpace(*in.Title)
	}
	if in.Content != nil {
		item.Content = *in.Content
		item.Fingerprint = Fingerprint(item.Layer, item.Type, item.Content)
	}
	if in.Tags != nil {
		item.Tags = normalizeTags(in.Tags)
	}
	if in.References != nil {
		item.References = in.References
	}
	if in.Confidence != nil {
		item.Confidence = clamp01(*in.Confidence)
	}
	if in.Salience != nil {
		item.Salience = clamp01(*in.Salience)
	}
	if in.TTLDays != nil {
		item.TTLDays = *in.TTLDays
		if item.TTLDays < 0 {
			item.TTLDays = 0
		}
		if item.TTLDays == 0 {
			return item, e.store.Delete(ctx, item.ID)
		}
	}
	item.UpdatedAt = e.now()

	embedding, err := e.embed(ctx, item)
	if err != nil {
		return nil, err
	}
	if err := e.store.Upsert(ctx, item, embedding); err != nil {
		return nil, err
	}
	return item, nil
}

// PromoteInput selects a promotion source and target layer.
type PromoteInput struct {
	ID          string
	Fingerprint string
	Content     string
	TargetLayer models.MemoryLayer
}

// Promote raises an item's confidence to at least the configured
// threshold and writes it into the target layer. The source is either
// explicit content or the best search match for it.
func (e *Engine) Promote(ctx context.Context, in PromoteInput) (*models.MemoryItem, error) {
	target := in.TargetLayer
	if target == "" {
		target = models.LayerSemantic
	}
	if target != models.LayerSemantic && target != models.LayerProcedural {
		return nil, fmt.Errorf("%w: promotion target must be SEMANTIC or PROCEDURAL", ErrInvalidInput)
	}

	item, err := e.resolvePromotionSource(ctx, in)
	if err != nil {
		return nil, err
	}

	threshold := e.cfg.PromotionMinConfidence
	if item.Confidence < threshold {
		item.Confidence = threshold
	}
	item.Layer = target
	item.Fingerprint = Fingerprint(item.Layer, item.Type, item.Content)
	item.UpdatedAt = e.now()

	embedding, err := e.embed(ctx, item)
	if err != nil {
		return nil, err
	}
	if err := e.store.Upsert(ctx, item, embedding); err != nil {
		return nil, err
	}
	return item, nil
}

func (e *Engine) resolvePromotionSource(ctx context.Context, in PromoteInput) (*models.MemoryItem, error) {
	if in.ID != "" || in.Fingerprint != "" {
		return e.lookup(ctx, in.ID, in.Fingerprint)
	}
	if strings.TrimSpace(in.Content) == "" {
		return nil, fmt.Errorf("%w: no id, fingerprint, or content given", ErrNotFound)
	}

	matches, err := e.Search(ctx, models.MemoryQuery{
		QueryText: in.Content,
		TopK:      map[models.MemoryLayer]int{models.LayerSemantic: 1, models.LayerEpisodic: 1, models.LayerProcedural: 1},
	})
	if err != nil {
		return nil, err
	}
	if len(matches) > 0 {
		best := matches[0]
		for _, m := range matches[1:] {
			if m.Score > best.Score {
				best = m
			}
		}
		item := best.Item
		return &item, nil
	}

	// No stored match; promote the explicit content as a new item.
	now := e.now()
	return &models.MemoryItem{
		ID:        uuid.NewString(),
		Type:      models.MemoryTypeProjectFact,
		Content:   in.Content,
		TTLDays:   -1,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// ForgetInput identifies what to forget: a direct identity or a query
// within one layer.
type ForgetInput struct {
	ID          string
	Fingerprint string
	Query       string
	Layer       models.MemoryLayer
}

// Forget tombstones a matched item. Identity deletes directly; a query
// must produce at least one match in the given layer.
func (e *Engine) Forget(ctx context.Context, in ForgetInput) (*models.MemoryItem, error) {
	if in.ID != "" || in.Fingerprint != "" {
		item, err := e.lookup(ctx, in.ID, in.Fingerprint)
		if err != nil {
			return nil, err
		}
		return item, e.store.Delete(ctx, item.ID)
	}
	if strings.TrimSpace(in.Query) == "" {
		return nil, fmt.Errorf("%w: id, fingerprint, or query is required", ErrInvalidInput)
	}
	layer := in.Layer
	if layer == "" {
		layer = models.LayerSemantic
	}

	matches, err := e.Search(ctx, models.MemoryQuery{
		QueryText: in.Query,
		TopK:      map[models.MemoryLayer]int{layer: 1},
	})
	if err != nil {
		return nil, err
	}
	if len(matches) == 0 {
		return nil, ErrNoMatch
	}
	item := matches[0].Item
	item.TTLDays = 0
	return &item, e.store.Delete(ctx, item.ID)
}

// RecallBlock builds the system-prompt memory section for a query,
// cut to the soft/hard token budgets.
func (e *Engine) RecallBlock(ctx context.Context, queryText string) (string, error) {
	if strings.TrimSpace(queryText) == "" {
		return "", nil
	}
	scored, err := e.Search(ctx, models.MemoryQuery{QueryText: queryText})
	if err != nil {
		return "", err
	}
	selected := selectWithinBudget(scored, e.cfg.SoftPromptBudgetTokens, e.cfg.MaxPromptBudgetTokens)
	if len(selected) == 0 {
		return "", nil
	}
	var b strings.Builder
	for _, sm := range selected {
		b.WriteString(renderItem(&sm.Item))
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n"), nil
}

// RecordTurn journals a completed turn as an episodic item.
func (e *Engine) RecordTurn(ctx context.Context, sess *models.Session, summary string) error {
	content := summary
	if sess != nil {
		content = fmt.Sprintf("[%s/%s] %s", sess.ChannelType, sess.ChatID, summary)
	}
	_, err := e.Add(ctx, AddInput{
		Layer:      models.LayerEpisodic,
		Type:       models.MemoryTypeEpisode,
		Content:    content,
		Confidence: 0.5,
		Salience:   0.3,
	})
	return err
}

func (e *Engine) lookup(ctx context.Context, id, fingerprint string) (*models.MemoryItem, error) {
	if id != "" {
		return e.store.GetByID(ctx, id)
	}
	return e.store.GetByFingerprint(ctx, fingerprint)
}

func (e *Engine) embed(ctx context.Context, item *models.MemoryItem) ([]float32, error) {
	text := item.Content
	if item.Title != "" {
		text = item.Title + "\n" + text
	}
	vec, err := e.embedder.Embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("embed item: %w: %w", ErrEmbedder, err)
	}
	return vec, nil
}

func (e *Engine) halfLife() time.Duration {
	days := e.cfg.RecentDays
	if days <= 0 {
		days = 30
	}
	return time.Duration(days) * 24 * time.Hour
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func clampLimit(limit int) int {
	if limit < 1 {
		return 1
	}
	if limit > maxSearchLimit {
		return maxSearchLimit
	}
	return limit
}

// normalizeTags trims, drops blanks, and de-dups preserving first
// occurrence.
func normalizeTags(tags []string) []string {
	seen := make(map[string]bool, len(tags))
	var out []string
	for _, t := range tags {
		t = strings.TrimSpace(t)
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	return out
}

func filterFresh(items []StoredItem, now time.Time, freshness time.Duration) []StoredItem {
	var out []StoredItem
	for _, st := range items {
		if now.Sub(st.Item.CreatedAt) <= freshness {
			out = append(out, st)
		}
	}
	return out
}

// renderItem formats one item for search listings and the recall
// block.
func renderItem(item *models.MemoryItem) string {
	var b strings.Builder
	fmt.Fprintf(&b, "- [%s/%s]", item.Layer, item.Type)
	if item.Title != "" {
		fmt.Fprintf(&b, " %s:", item.Title)
	}
	fmt.Fprintf(&b, " %s", item.Content)
	if len(item.Tags) > 0 {
		fmt.Fprintf(&b, " (tags: %s)", strings.Join(item.Tags, ", "))
	}
	return b.String()
}
