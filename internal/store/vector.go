package store

import "math"

// CosineDistance computes the cosine distance between two vectors
// Returns a value between 0 (identical) and 2 (opposite)
// Cosine distance = 1 - cosine similarity
func CosineDistance(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 2.0 // Maximum distance for invalid input
	}

	var dotProduct, normA, normB float64
	for i := range a {
		dotProduct += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 2.0 // Maximum distance for zero vectors
	}

	similarity := dotProduct / (math.Sqrt(normA) * math.Sqrt(normB))
	// Clamp to [-1, 1] to handle floating point errors
	if similarity > 1 {
		similarity = 1
	}
	if similarity < -1 {
		similarity = -1
	}

	return 1 - similarity
}

// MeanVector computes the component-wise mean of the given vectors.
// All vectors must share the same dimensionality; vectors with a
// different length than the first one are skipped. Returns nil for
// empty input.
func MeanVector(vectors [][]float32) []float32 {
	if len(vectors) == 0 || len(vectors[0]) == 0 {
		return nil
	}

	dim := len(vectors[0])
	sums := make([]float64, dim)
	count := 0

	for _, v := range vectors {
		if len(v) != dim {
			continue
		}
		for i, c := range v {
			sums[i] += float64(c)
		}
		count++
	}

	if count == 0 {
		return nil
	}

	mean := make([]float32, dim)
	for i, s := range sums {
		mean[i] = float32(s / float64(count))
	}
	return mean
}
