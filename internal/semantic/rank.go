package semantic

import (
	"math"
	"sort"
	"strings"
)

// DefaultWeights is the ranking mix used when none is supplied. The
// embedding signal only participates when both the query and candidate
// carry embeddings.
var DefaultWeights = map[Signal]float64{
	SignalLiteral:   0.30,
	SignalIntent:    0.20,
	SignalPolarity:  0.10,
	SignalAuthority: 0.15,
	SignalRecency:   0.15,
	SignalEmbedding: 0.10,
}

// Ranker combines enrichment signals into one relevance score.
type Ranker struct {
	weights map[Signal]float64
}

// NewRanker builds a ranker. Passing nil weights uses DefaultWeights.
func NewRanker(weights map[Signal]float64) *Ranker {
	if weights == nil {
		weights = DefaultWeights
	}
	return &Ranker{weights: weights}
}

// Rank scores every enriched candidate and returns them sorted descending
// by RelevanceScore (stable: ties keep input order). Empty input returns
// an empty slice.
func (r *Ranker) Rank(candidates []EnrichedCandidate, q ParsedQuery) []RankedResult {
	out := make([]RankedResult, 0, len(candidates))
	for _, c := range candidates {
		breakdown := map[Signal]float64{
			SignalLiteral:   literalScore(c.Content, q),
			SignalIntent:    intentScore(c.Content, q.Intent),
			SignalPolarity:  polarityScore(c.Polarity),
			SignalAuthority: c.Factors.Authority,
			SignalRecency:   c.Factors.Recency,
		}
		if len(q.Embedding) > 0 && len(c.Embedding) > 0 {
			breakdown[SignalEmbedding] = clamp01(cosineSimilarity(q.Embedding, c.Embedding))
		}

		var weighted, totalWeight float64
		for signal, score := range breakdown {
			w := r.weights[signal]
			weighted += w * score
			totalWeight += w
		}
		score := 0.0
		if totalWeight > 0 {
			score = clamp01(weighted / totalWeight)
		}
		out = append(out, RankedResult{
			EnrichedCandidate: c,
			RelevanceScore:    score,
			ScoreBreakdown:    breakdown,
		})
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].RelevanceScore > out[j].RelevanceScore
	})
	return out
}

// literalScore is the fraction of query terms present in the content.
func literalScore(content string, q ParsedQuery) float64 {
	terms := q.Terms
	if len(terms) == 0 {
		terms = strings.Fields(q.Text)
	}
	if len(terms) == 0 {
		return 0
	}
	lower := strings.ToLower(content)
	hits := 0
	for _, term := range terms {
		if strings.Contains(lower, strings.ToLower(term)) {
			hits++
		}
	}
	return float64(hits) / float64(len(terms))
}

// Content signatures for intent alignment: definitional, instructional,
// and rationale markers.
var (
	definitionalMarkers  = []string{" is a ", " is the ", " means ", " defined as ", "refers to"}
	instructionalMarkers = []string{"step ", "first", "then", "run ", "install", "configure", "how to", "1."}
	rationaleMarkers     = []string{"because", "in order to", "so that", "the reason", "rationale", "why "}
)

// intentScore is a heuristic matching the query intent against
// lightweight content signatures.
func intentScore(content string, intent QueryIntent) float64 {
	if intent == "" {
		return 0.5
	}
	lower := strings.ToLower(content)
	count := func(markers []string) int {
		n := 0
		for _, m := range markers {
			if strings.Contains(lower, m) {
				n++
			}
		}
		return n
	}
	var hits int
	switch intent {
	case IntentWhat, IntentWho:
		hits = count(definitionalMarkers)
	case IntentHow:
		hits = count(instructionalMarkers)
	case IntentWhy:
		hits = count(rationaleMarkers)
	default:
		return 0.5
	}
	if hits == 0 {
		return 0.2
	}
	return clamp01(0.5 + 0.25*float64(hits))
}

func polarityScore(p Polarity) float64 {
	switch p {
	case PolarityPositive:
		return 1
	case PolarityNegative:
		return 0
	}
	return 0.5
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
