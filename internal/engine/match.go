package engine

import (
	"math"

	"github.com/kozaktomas/facemark/internal/store"
)

// Match is the result of a nearest-neighbor lookup against a candidate set.
// Found is true only when the minimum distance is strictly below the
// threshold; Distance carries the observed minimum either way so callers
// can report near-misses.
type Match struct {
	Candidate  *Candidate
	Distance   float64
	Confidence float64
	Found      bool
}

// FindBestMatch finds the candidate nearest to the query embedding under
// cosine distance. Ties keep the first candidate in scan order. A query
// whose dimensionality differs from the candidate set is a validation
// error, never silently coerced.
func FindBestMatch(query []float32, set *CandidateSet, threshold float64) (Match, error) {
	if len(query) == 0 {
		return Match{}, validationError("embedding", "must not be empty")
	}
	if len(set.Candidates) == 0 {
		return Match{Distance: math.Inf(1)}, nil
	}
	if dim := set.Dim(); dim != len(query) {
		return Match{}, validationError("embedding", "dimension mismatch: got %d, candidates have %d", len(query), dim)
	}

	var best *Candidate
	minDistance := math.Inf(1)

	if set.index != nil {
		// Approximate lookup, exact distance for the threshold decision.
		if neighbors := set.index.Search(query, 1); len(neighbors) > 0 {
			best = &set.Candidates[neighbors[0].Key]
			minDistance = store.CosineDistance(query, best.Embedding)
		}
	} else {
		for i := range set.Candidates {
			d := store.CosineDistance(query, set.Candidates[i].Embedding)
			if d < minDistance {
				minDistance = d
				best = &set.Candidates[i]
			}
		}
	}

	match := Match{
		Distance:   minDistance,
		Confidence: Confidence(minDistance),
	}
	if best != nil && minDistance < threshold {
		match.Candidate = best
		match.Found = true
	}
	return match, nil
}

// Confidence derives a percentage from a cosine distance. Purely
// informational; acceptance is decided on the distance alone.
func Confidence(distance float64) float64 {
	if math.IsInf(distance, 1) {
		return 0
	}
	return (1 - distance) * 100
}
