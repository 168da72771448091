package semantic

import (
	"context"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
)

// EntityLookup resolves an entity by id for supersession-chain walking.
// Returning (nil, nil) means the id does not resolve; the chain stops.
type EntityLookup func(ctx context.Context, id string) (*Candidate, error)

// EnricherOptions tunes the enrichment stage.
type EnricherOptions struct {
	// MaxSupersessionDepth bounds the supersededBy walk. Default 10.
	MaxSupersessionDepth int
	// Concurrency bounds parallel enrichment. Default 8.
	Concurrency int
	// Now overrides the clock for recency scoring; zero means time.Now.
	Now time.Time
}

// Enricher computes polarity, supersession chains, temporal context and
// relevance factors for candidates.
type Enricher struct {
	lookup EntityLookup
	opts   EnricherOptions
}

// NewEnricher builds an enricher. lookup may be nil when supersession
// chains are not needed.
func NewEnricher(lookup EntityLookup, opts EnricherOptions) *Enricher {
	if opts.MaxSupersessionDepth <= 0 {
		opts.MaxSupersessionDepth = 10
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 8
	}
	return &Enricher{lookup: lookup, opts: opts}
}

// Small polarity lexicons. Lifecycle state tilts the final call.
var (
	positiveWords = []string{
		"success", "successful", "improved", "improvement", "works", "working",
		"fixed", "stable", "fast", "reliable", "recommended", "adopted", "good",
	}
	negativeWords = []string{
		"fail", "failed", "failure", "broken", "bug", "regression", "slow",
		"deprecated", "removed", "rejected", "abandoned", "bad", "unstable",
	}
)

// Enrich computes enrichment for every candidate, preserving input order.
// Candidates are processed with bounded concurrency; an empty input
// returns an empty slice without error.
func (e *Enricher) Enrich(ctx context.Context, candidates []Candidate, q ParsedQuery) ([]EnrichedCandidate, error) {
	if len(candidates) == 0 {
		return []EnrichedCandidate{}, nil
	}

	out := make([]EnrichedCandidate, len(candidates))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(e.opts.Concurrency)
	for i, c := range candidates {
		g.Go(func() error {
			enriched, err := e.enrichOne(ctx, c, q)
			if err != nil {
				return err
			}
			out[i] = enriched
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func (e *Enricher) enrichOne(ctx context.Context, c Candidate, q ParsedQuery) (EnrichedCandidate, error) {
	chain, err := e.supersessionChain(ctx, c)
	if err != nil {
		return EnrichedCandidate{}, err
	}
	return EnrichedCandidate{
		Candidate:         c,
		Polarity:          polarityOf(c),
		SupersessionChain: chain,
		Temporal: TemporalContext{
			CreatedAt:      c.CreatedAt,
			UpdatedAt:      c.UpdatedAt,
			RelevantPeriod: relevantPeriod(q.Text),
		},
		Factors: RelevanceFactors{
			Recency:      clamp01(e.recency(c)),
			Authority:    clamp01(c.Authority),
			Completeness: clamp01(completeness(c)),
		},
	}, nil
}

// polarityOf scores content against the lexicons, then applies the
// lifecycle bias: deprecated/historical/archived tilt negative,
// current/stable tilt away from negative.
func polarityOf(c Candidate) Polarity {
	content := strings.ToLower(c.Content)
	score := 0
	for _, w := range positiveWords {
		if strings.Contains(content, w) {
			score++
		}
	}
	for _, w := range negativeWords {
		if strings.Contains(content, w) {
			score--
		}
	}
	switch strings.ToLower(c.Lifecycle.State) {
	case "deprecated", "historical", "archived":
		score -= 2
	case "current", "stable":
		if score < 0 {
			score++
		}
	}
	switch {
	case score > 0:
		return PolarityPositive
	case score < 0:
		return PolarityNegative
	}
	return PolarityNeutral
}

// supersessionChain walks lifecycle.SupersededBy through the injected
// lookup. The walk is cycle-safe (visited set) and bounded by
// MaxSupersessionDepth; ids that do not resolve end the chain.
func (e *Enricher) supersessionChain(ctx context.Context, c Candidate) ([]string, error) {
	if e.lookup == nil || c.Lifecycle.SupersededBy == "" {
		return nil, nil
	}
	var chain []string
	visited := map[string]struct{}{c.ID: {}}
	next := c.Lifecycle.SupersededBy
	for depth := 0; depth < e.opts.MaxSupersessionDepth && next != ""; depth++ {
		if _, seen := visited[next]; seen {
			break
		}
		visited[next] = struct{}{}
		chain = append(chain, next)

		entity, err := e.lookup(ctx, next)
		if err != nil {
			return nil, fmt.Errorf("semantic: resolve %q: %w", next, err)
		}
		if entity == nil {
			break
		}
		next = entity.Lifecycle.SupersededBy
	}
	return chain, nil
}

// relevantPeriod infers the asked-about period from query prepositions.
func relevantPeriod(text string) string {
	lower := " " + strings.ToLower(text) + " "
	switch {
	case strings.Contains(lower, " before "), strings.Contains(lower, " until "), strings.Contains(lower, " prior to "):
		return "before"
	case strings.Contains(lower, " after "), strings.Contains(lower, " since "):
		return "after"
	case strings.Contains(lower, " during "), strings.Contains(lower, " while "):
		return "during"
	}
	return "current"
}

// recency decays linearly over a year since the last update.
func (e *Enricher) recency(c Candidate) float64 {
	now := e.opts.Now
	if now.IsZero() {
		now = time.Now()
	}
	updated := c.UpdatedAt
	if updated.IsZero() {
		updated = c.CreatedAt
	}
	if updated.IsZero() {
		return 0
	}
	age := now.Sub(updated)
	if age <= 0 {
		return 1
	}
	const year = 365 * 24 * time.Hour
	if age >= year {
		return 0
	}
	return 1 - float64(age)/float64(year)
}

// completeness rewards candidates with substantial content and metadata.
func completeness(c Candidate) float64 {
	score := 0.0
	switch n := len(c.Content); {
	case n >= 500:
		score += 0.6
	case n >= 100:
		score += 0.4
	case n > 0:
		score += 0.2
	}
	if len(c.Metadata) > 0 {
		score += 0.2
	}
	if !c.CreatedAt.IsZero() {
		score += 0.1
	}
	if c.Lifecycle.State != "" {
		score += 0.1
	}
	return score
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}
