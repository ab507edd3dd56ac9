package reports

import (
	"math"
	"math/rand"
)

const kmeansMaxIter = 100

// kMeans clusters the points into k groups and returns the final centroids.
// Initial centroids are k distinct points chosen by the seeded generator,
// so the result is reproducible for a given corpus. Callers guarantee
// len(points) >= k.
func kMeans(points [][]float64, k int, seed int64) [][]float64 {
	rng := rand.New(rand.NewSource(seed))
	dim := len(points[0])

	centroids := make([][]float64, k)
	for i, idx := range rng.Perm(len(points))[:k] {
		centroids[i] = append([]float64(nil), points[idx]...)
	}

	assignments := make([]int, len(points))
	for iter := 0; iter < kmeansMaxIter; iter++ {
		changed := false
		for i, p := range points {
			best, bestDist := 0, math.MaxFloat64
			for c, centroid := range centroids {
				d := squaredDistance(p, centroid)
				if d < bestDist {
					best, bestDist = c, d
				}
			}
			if assignments[i] != best {
				assignments[i] = best
				changed = true
			}
		}
		if iter > 0 && !changed {
			break
		}

		sums := make([][]float64, k)
		counts := make([]int, k)
		for i := range sums {
			sums[i] = make([]float64, dim)
		}
		for i, p := range points {
			c := assignments[i]
			counts[c]++
			for j, v := range p {
				sums[c][j] += v
			}
		}
		for c := range centroids {
			if counts[c] == 0 {
				// Empty cluster: reseed from a random point.
				centroids[c] = append([]float64(nil), points[rng.Intn(len(points))]...)
				continue
			}
			for j := range centroids[c] {
				centroids[c][j] = sums[c][j] / float64(counts[c])
			}
		}
	}
	return centroids
}

func squaredDistance(a, b []float64) float64 {
	var sum float64
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return sum
}
