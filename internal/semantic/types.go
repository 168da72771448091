// Package semantic is an optional ranking layer over query results: a
// candidate → enricher → ranker pipeline plus a parser for typed inline
// blocks embedded in markdown content.
package semantic

import "time"

// Lifecycle carries an entity's lifecycle state and supersession link.
type Lifecycle struct {
	State        string // current, stable, deprecated, historical, archived
	SupersededBy string // id of the replacing entity, empty when none
}

// Candidate is one result entering the pipeline.
type Candidate struct {
	ID        string
	Content   string
	Metadata  map[string]any
	Lifecycle Lifecycle
	CreatedAt time.Time
	UpdatedAt time.Time
	Authority float64 // source authority in [0,1], 0 when unknown
	Embedding []float32
}

// Polarity is the three-valued sentiment tag assigned during enrichment.
type Polarity string

const (
	PolarityPositive Polarity = "positive"
	PolarityNegative Polarity = "negative"
	PolarityNeutral  Polarity = "neutral"
)

// TemporalContext carries the candidate's timestamps plus the period the
// query asked about.
type TemporalContext struct {
	CreatedAt      time.Time
	UpdatedAt      time.Time
	RelevantPeriod string // before, after, during, current
}

// RelevanceFactors are per-candidate signals, each clamped to [0,1].
type RelevanceFactors struct {
	Recency      float64
	Authority    float64
	Completeness float64
}

// EnrichedCandidate is a candidate with its computed enrichment.
type EnrichedCandidate struct {
	Candidate
	Polarity          Polarity
	SupersessionChain []string
	Temporal          TemporalContext
	Factors           RelevanceFactors
}

// QueryIntent classifies what kind of answer a query wants.
type QueryIntent string

const (
	IntentWhat QueryIntent = "what"
	IntentHow  QueryIntent = "how"
	IntentWhy  QueryIntent = "why"
	IntentWhen QueryIntent = "when"
	IntentWho  QueryIntent = "who"
)

// ParsedQuery is the lightweight query analysis the pipeline consumes.
type ParsedQuery struct {
	Text      string
	Intent    QueryIntent
	Terms     []string
	Embedding []float32 // optional, enables the embedding signal
}

// Signal names one ranking component.
type Signal string

const (
	SignalLiteral   Signal = "literal"
	SignalIntent    Signal = "intent"
	SignalPolarity  Signal = "polarity"
	SignalAuthority Signal = "authority"
	SignalRecency   Signal = "recency"
	SignalEmbedding Signal = "embedding"
)

// RankedResult is an enriched candidate with its combined score and the
// per-signal breakdown mirror.
type RankedResult struct {
	EnrichedCandidate
	RelevanceScore float64
	ScoreBreakdown map[Signal]float64
}
