// Package similarity implements cosine-similarity primitives shared by the
// deduplication engine, the query router, and the relationship graph
// (spec.md §4.1).
package similarity

import (
	"math"
	"sort"
)

// Pair is one above-threshold match from FindDuplicatesBatch, indexed into
// the caller's original embedding slice.
type Pair struct {
	I, J  int
	Score float64
}

// Candidate is one ranked result from TopKCandidates.
type Candidate struct {
	Index int
	Score float64
}

// Cluster is a group of indices the greedy single-linkage pass considers
// mutually similar.
type Cluster []int

// Calculator computes cosine similarity over unit-normalized embeddings.
// Normalization is the caller's responsibility per spec.md §4.1; Calculator
// never renormalizes.
type Calculator struct {
	// SkippedCount accumulates embeddings missing (nil/empty) across calls,
	// surfaced via Skipped() so callers can log it without a fatal error.
	skipped int
}

// New returns a ready-to-use Calculator.
func New() *Calculator {
	return &Calculator{}
}

// Skipped reports how many embeddings have been skipped for being empty
// since this Calculator was created.
func (c *Calculator) Skipped() int {
	return c.skipped
}

// Cosine computes cosine similarity of a and b, in [-1, 1]. Returns 0 and
// counts a skip when either vector is empty or the dimensions mismatch.
func (c *Calculator) Cosine(a, b []float32) float64 {
	if len(a) == 0 || len(b) == 0 || len(a) != len(b) {
		c.skipped++
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		c.skipped++
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// FindDuplicatesBatch runs a single upper-triangular pass over docs,
// returning every pair whose cosine similarity meets threshold.
func (c *Calculator) FindDuplicatesBatch(docs [][]float32, threshold float64) []Pair {
	var pairs []Pair
	for i := 0; i < len(docs); i++ {
		for j := i + 1; j < len(docs); j++ {
			score := c.Cosine(docs[i], docs[j])
			if score >= threshold {
				pairs = append(pairs, Pair{I: i, J: j, Score: score})
			}
		}
	}
	return pairs
}

// TopKCandidates ranks pool by similarity to target, filters by threshold,
// and returns the top k sorted by descending score.
func (c *Calculator) TopKCandidates(target []float32, pool [][]float32, k int, threshold float64) []Candidate {
	candidates := make([]Candidate, 0, len(pool))
	for i, p := range pool {
		score := c.Cosine(target, p)
		if score >= threshold {
			candidates = append(candidates, Candidate{Index: i, Score: score})
		}
	}
	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].Score > candidates[j].Score
	})
	if k > 0 && len(candidates) > k {
		candidates = candidates[:k]
	}
	return candidates
}

// Cluster groups docs by greedy single-linkage: the first unassigned item
// seeds a new cluster, and every remaining unassigned item within
// threshold of ANY member already in the cluster joins it.
func (c *Calculator) Cluster(docs [][]float32, threshold float64) []Cluster {
	n := len(docs)
	assigned := make([]bool, n)
	var clusters []Cluster

	for i := 0; i < n; i++ {
		if assigned[i] {
			continue
		}
		cluster := Cluster{i}
		assigned[i] = true

		grew := true
		for grew {
			grew = false
			for j := 0; j < n; j++ {
				if assigned[j] {
					continue
				}
				for _, m := range cluster {
					if c.Cosine(docs[j], docs[m]) >= threshold {
						cluster = append(cluster, j)
						assigned[j] = true
						grew = true
						break
					}
				}
			}
		}
		clusters = append(clusters, cluster)
	}
	return clusters
}
