package playbook

import "math"

// normalizeVector scales v to unit length. The zero vector stays zero, so
// its similarity to anything is 0.
func normalizeVector(v []float64) []float64 {
	var sum float64
	for _, x := range v {
		sum += x * x
	}
	if sum == 0 {
		return v
	}
	norm := math.Sqrt(sum)
	out := make([]float64, len(v))
	for i, x := range v {
		out[i] = x / norm
	}
	return out
}

// cosineSimilarity computes the dot product of two unit vectors. Vectors of
// mismatched length compare over the shorter prefix.
func cosineSimilarity(a, b []float64) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var dot float64
	for i := 0; i < n; i++ {
		dot += a[i] * b[i]
	}
	return dot
}

// maxSimilarity returns the highest cosine similarity between v and any of
// the candidates. All inputs are expected to be unit vectors.
func maxSimilarity(v []float64, candidates [][]float64) float64 {
	best := -1.0
	for _, c := range candidates {
		if sim := cosineSimilarity(v, c); sim > best {
			best = sim
		}
	}
	return best
}
