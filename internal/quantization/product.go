package quantization

import (
	"fmt"
	"math"
	"math/rand"
)

// kMeansMaxIterations bounds codebook training; k-means on sub-vectors
// converges quickly and the codebook only needs to be approximate.
const kMeansMaxIterations = 20

// subVectors splits vec into fixed-size sub-vectors, zero-padding the final
// one. The padding is internal; dequantization clips back to the original
// dimensionality.
func subVectors(vec []float32, size int) [][]float32 {
	count := (len(vec) + size - 1) / size
	subs := make([][]float32, count)
	for i := 0; i < count; i++ {
		sub := make([]float32, size)
		copy(sub, vec[i*size:min(len(vec), (i+1)*size)])
		subs[i] = sub
	}
	return subs
}

// quantizeProduct assigns each sub-vector of vec to its nearest codebook
// centroid and stores only the centroid indices.
func quantizeProduct(vec []float32, codebook [][]float32, subSize int) (*QuantizedVector, error) {
	if len(codebook) == 0 {
		return nil, fmt.Errorf("empty codebook")
	}
	subs := subVectors(vec, subSize)
	codes := make([]byte, len(subs))
	for i, sub := range subs {
		codes[i] = byte(nearestCentroid(sub, codebook))
	}
	return &QuantizedVector{
		OriginalDimensions: len(vec),
		Data:               codes,
		Info: Info{
			Method:        MethodProduct,
			Codebook:      codebook,
			SubVectorSize: subSize,
		},
	}, nil
}

func dequantizeProduct(qv *QuantizedVector) ([]float32, error) {
	codebook := qv.Info.Codebook
	if len(codebook) == 0 {
		return nil, fmt.Errorf("quantized vector has no codebook")
	}
	subSize := qv.Info.SubVectorSize
	out := make([]float32, 0, len(qv.Data)*subSize)
	for i, code := range qv.Data {
		if int(code) >= len(codebook) {
			return nil, fmt.Errorf("code %d at sub-vector %d exceeds codebook size %d", code, i, len(codebook))
		}
		out = append(out, codebook[code]...)
	}
	// The final sub-vector may have been padded; clip to the original shape.
	if len(out) < qv.OriginalDimensions {
		return nil, fmt.Errorf("reconstructed %d dimensions, expected %d", len(out), qv.OriginalDimensions)
	}
	return out[:qv.OriginalDimensions], nil
}

func nearestCentroid(sub []float32, codebook [][]float32) int {
	best := 0
	bestDist := math.MaxFloat64
	for i, centroid := range codebook {
		dist := squaredDistance(sub, centroid)
		if dist < bestDist {
			bestDist = dist
			best = i
		}
	}
	return best
}

func squaredDistance(a, b []float32) float64 {
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return sum
}

// randomCodebook builds a codebook for a single vector without a batch
// context by sampling the vector's own sub-vectors at random.
func randomCodebook(vec []float32, subSize, k int) [][]float32 {
	subs := subVectors(vec, subSize)
	if k > len(subs) {
		k = len(subs)
	}
	perm := rand.Perm(len(subs))
	codebook := make([][]float32, k)
	for i := 0; i < k; i++ {
		centroid := make([]float32, subSize)
		copy(centroid, subs[perm[i]])
		codebook[i] = centroid
	}
	return codebook
}

// trainCodebook learns centroids over all sub-vectors of the batch with a
// bounded-iteration k-means.
func trainCodebook(vecs [][]float32, subSize, k int) ([][]float32, error) {
	var samples [][]float32
	for _, vec := range vecs {
		samples = append(samples, subVectors(vec, subSize)...)
	}
	if len(samples) == 0 {
		return nil, fmt.Errorf("no sub-vectors to train on")
	}
	if k > len(samples) {
		k = len(samples)
	}

	centroids := make([][]float32, k)
	perm := rand.Perm(len(samples))
	for i := 0; i < k; i++ {
		centroids[i] = make([]float32, subSize)
		copy(centroids[i], samples[perm[i]])
	}

	assignments := make([]int, len(samples))
	for iter := 0; iter < kMeansMaxIterations; iter++ {
		changed := false
		for i, sample := range samples {
			idx := nearestCentroid(sample, centroids)
			if assignments[i] != idx {
				assignments[i] = idx
				changed = true
			}
		}
		if !changed && iter > 0 {
			break
		}

		counts := make([]int, k)
		sums := make([][]float64, k)
		for i := range sums {
			sums[i] = make([]float64, subSize)
		}
		for i, sample := range samples {
			c := assignments[i]
			counts[c]++
			for j, v := range sample {
				sums[c][j] += float64(v)
			}
		}
		for i := range centroids {
			if counts[i] == 0 {
				continue
			}
			for j := range centroids[i] {
				centroids[i][j] = float32(sums[i][j] / float64(counts[i]))
			}
		}
	}
	return centroids, nil
}
