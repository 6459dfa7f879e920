// Package dedupe finds near-duplicate messages using an embedding model and
// a persistent similarity index.
//
// The detector is the only layer that absorbs infrastructure failures: an
// unreachable model or store turns into a failed Result holding an empty
// value, and never aborts the caller's message processing.
package dedupe

import (
	"context"
	"fmt"
	"io"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/DreamCats/mailtriage/internal/store"
)

// Default detection parameters.
const (
	DefaultThreshold    = 0.85
	DefaultLimit        = 10
	DefaultMaxTextChars = 1000
)

// Embedder turns text into a vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Model() string
}

// BatchEmbedder is implemented by embedders that can embed many texts in one
// call.
type BatchEmbedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// Index is the subset of the similarity index the detector uses.
type Index interface {
	Insert(ctx context.Context, item store.Item, model string) error
	Query(ctx context.Context, vector []float32, limit int, excludeID string) ([]store.Match, error)
}

// Detector orchestrates the embedder and the index.
type Detector struct {
	embedder     Embedder
	index        Index
	threshold    float64
	limit        int
	maxTextChars int
	logger       *log.Logger
}

// Option configures a Detector.
type Option func(*Detector)

// WithThreshold sets the default similarity threshold used by IngestAndCheck
// and Check.
func WithThreshold(threshold float64) Option {
	return func(d *Detector) { d.threshold = threshold }
}

// WithLimit sets how many neighbours each query asks the index for.
func WithLimit(limit int) Option {
	return func(d *Detector) { d.limit = limit }
}

// WithMaxTextChars sets how many body runes are embedded.
func WithMaxTextChars(n int) Option {
	return func(d *Detector) { d.maxTextChars = n }
}

// WithLogger sets the logger for degraded-path reports.
func WithLogger(logger *log.Logger) Option {
	return func(d *Detector) { d.logger = logger }
}

// NewDetector creates a detector. Without options it uses a 0.85 threshold,
// 10 neighbours per query, 1000 body runes, and discards log output.
func NewDetector(embedder Embedder, index Index, opts ...Option) *Detector {
	d := &Detector{
		embedder:     embedder,
		index:        index,
		threshold:    DefaultThreshold,
		limit:        DefaultLimit,
		maxTextChars: DefaultMaxTextChars,
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.logger == nil {
		d.logger = log.New(io.Discard)
	}
	if d.limit <= 0 {
		d.limit = DefaultLimit
	}
	return d
}

// Threshold returns the detector's default threshold.
func (d *Detector) Threshold() float64 {
	return d.threshold
}

// IngestAndCheck embeds msg, stores it, and returns stored messages whose
// score reaches the threshold, nearest first. Because the insert happens
// before the query, msg itself is always excluded from the matches.
func (d *Detector) IngestAndCheck(ctx context.Context, msg Message) Result[[]store.Match] {
	if msg.ID == "" {
		return d.fail("ingest", msg.ID, fmt.Errorf("message id is required"))
	}

	text := MessageText(msg, d.maxTextChars)
	vector, err := d.embedder.Embed(ctx, text)
	if err != nil {
		return d.fail("ingest", msg.ID, err)
	}

	item := store.Item{
		ID:       msg.ID,
		Vector:   vector,
		Text:     text,
		Metadata: metadataFor(msg),
	}
	if err := d.index.Insert(ctx, item, d.embedder.Model()); err != nil {
		return d.fail("ingest", msg.ID, err)
	}

	matches, err := d.matches(ctx, vector, msg.ID, d.threshold)
	if err != nil {
		return d.fail("ingest", msg.ID, err)
	}

	d.logger.Debug("ingested message", "id", msg.ID, "matches", len(matches))
	return ok(matches)
}

// Check returns stored messages similar to msg without storing it.
func (d *Detector) Check(ctx context.Context, msg Message) Result[[]store.Match] {
	vector, err := d.embedder.Embed(ctx, MessageText(msg, d.maxTextChars))
	if err != nil {
		return d.fail("check", msg.ID, err)
	}

	matches, err := d.matches(ctx, vector, msg.ID, d.threshold)
	if err != nil {
		return d.fail("check", msg.ID, err)
	}

	return ok(matches)
}

// CheckAll runs Check for every message, returning results in input order.
// When the embedder is a BatchEmbedder all texts are embedded in one pass
// first, and a failed pass fails every result.
func (d *Detector) CheckAll(ctx context.Context, msgs []Message) []Result[[]store.Match] {
	results := make([]Result[[]store.Match], len(msgs))

	batcher, isBatch := d.embedder.(BatchEmbedder)
	if !isBatch || len(msgs) == 0 {
		for i, msg := range msgs {
			results[i] = d.Check(ctx, msg)
		}
		return results
	}

	texts := make([]string, len(msgs))
	for i, msg := range msgs {
		texts[i] = MessageText(msg, d.maxTextChars)
	}

	vectors, err := batcher.EmbedBatch(ctx, texts)
	if err == nil && len(vectors) != len(msgs) {
		err = fmt.Errorf("expected %d embeddings, got %d", len(msgs), len(vectors))
	}
	if err != nil {
		d.logger.Error("duplicate check failed", "op", "check batch", "messages", len(msgs), "err", err)
		for i := range results {
			results[i] = failed([]store.Match{}, err)
		}
		return results
	}

	for i, msg := range msgs {
		matches, err := d.matches(ctx, vectors[i], msg.ID, d.threshold)
		if err != nil {
			results[i] = d.fail("check", msg.ID, err)
			continue
		}
		results[i] = ok(matches)
	}
	return results
}

// DetectBatch partitions msgs into duplicate groups against the current
// index contents. It does not insert anything.
//
// Messages are visited in input order. A message already placed in a group
// is skipped. Otherwise its matches at or above threshold that are not yet
// in a group become its members, and it and they are claimed for the rest of
// the call. A message with no such matches starts no group and stays
// unclaimed, so a later message may still take it as a member. Grouping
// therefore depends on input order.
//
// Any embedding or index failure fails the whole batch.
func (d *Detector) DetectBatch(ctx context.Context, msgs []Message, threshold float64) Result[[]Group] {
	logger := d.logger.With("run", uuid.NewString())

	if threshold < 0 || threshold > 1 {
		err := fmt.Errorf("threshold must be between 0 and 1, got %v", threshold)
		logger.Error("duplicate detection failed", "err", err)
		return failed([]Group{}, err)
	}

	groups := []Group{}
	claimed := make(map[string]bool)
	visited := make(map[string]bool)

	for _, msg := range msgs {
		if claimed[msg.ID] || visited[msg.ID] {
			continue
		}
		visited[msg.ID] = true

		vector, err := d.embedder.Embed(ctx, MessageText(msg, d.maxTextChars))
		if err != nil {
			logger.Error("duplicate detection failed", "id", msg.ID, "err", err)
			return failed([]Group{}, err)
		}

		matches, err := d.matches(ctx, vector, msg.ID, threshold)
		if err != nil {
			logger.Error("duplicate detection failed", "id", msg.ID, "err", err)
			return failed([]Group{}, err)
		}

		group := Group{PrimaryID: msg.ID, Subject: msg.Subject}
		for _, m := range matches {
			if claimed[m.ID] {
				continue
			}
			group.MemberIDs = append(group.MemberIDs, m.ID)
			group.Scores = append(group.Scores, m.Score)
		}
		if len(group.MemberIDs) == 0 {
			continue
		}

		claimed[msg.ID] = true
		for _, id := range group.MemberIDs {
			claimed[id] = true
		}
		groups = append(groups, group)
	}

	logger.Info("detected duplicate groups", "messages", len(msgs), "groups", len(groups))
	return ok(groups)
}

func (d *Detector) matches(ctx context.Context, vector []float32, excludeID string, threshold float64) ([]store.Match, error) {
	results, err := d.index.Query(ctx, vector, d.limit, excludeID)
	if err != nil {
		return nil, err
	}

	matches := make([]store.Match, 0, len(results))
	for _, r := range results {
		// the index already excludes excludeID; guard anyway since callers
		// rely on it
		if r.ID == excludeID {
			continue
		}
		if r.Score >= threshold {
			matches = append(matches, r)
		}
	}
	return matches, nil
}

func (d *Detector) fail(op, id string, err error) Result[[]store.Match] {
	d.logger.Error("duplicate check failed", "op", op, "id", id, "err", err)
	return failed([]store.Match{}, err)
}
