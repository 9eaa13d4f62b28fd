package quantization

import (
	"math"
	"testing"
)

func TestScalar8BitErrorBound(t *testing.T) {
	// Vector spanning a range of 2.0: per-element error must stay within one
	// quantization step, 2.0/255.
	vec := []float32{-1.0, -0.5, 0.0, 0.25, 0.75, 1.0}
	q, err := New(Config{Method: MethodScalar, Bits: 8})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	qv, err := q.Quantize(vec)
	if err != nil {
		t.Fatalf("Quantize failed: %v", err)
	}
	out, err := Dequantize(qv)
	if err != nil {
		t.Fatalf("Dequantize failed: %v", err)
	}
	if len(out) != len(vec) {
		t.Fatalf("expected %d dimensions, got %d", len(vec), len(out))
	}
	maxErr := 2.0 / 255.0
	for i := range vec {
		diff := math.Abs(float64(vec[i]) - float64(out[i]))
		if diff > maxErr {
			t.Errorf("element %d: error %f exceeds bound %f", i, diff, maxErr)
		}
	}
}

func TestScalar16BitTighterThan8Bit(t *testing.T) {
	vec := []float32{-0.9, -0.3, 0.1, 0.4, 0.8}
	err8 := roundTripError(t, vec, Config{Method: MethodScalar, Bits: 8})
	err16 := roundTripError(t, vec, Config{Method: MethodScalar, Bits: 16})
	if err16 > err8 {
		t.Errorf("16-bit error %f should not exceed 8-bit error %f", err16, err8)
	}
}

func TestScalar4BitPacksTwoPerByte(t *testing.T) {
	vec := make([]float32, 10)
	for i := range vec {
		vec[i] = float32(i) / 10
	}
	q, err := New(Config{Method: MethodScalar, Bits: 4})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	qv, err := q.Quantize(vec)
	if err != nil {
		t.Fatalf("Quantize failed: %v", err)
	}
	if len(qv.Data) != 5 {
		t.Errorf("expected 5 bytes for 10 4-bit codes, got %d", len(qv.Data))
	}
	out, err := Dequantize(qv)
	if err != nil {
		t.Fatalf("Dequantize failed: %v", err)
	}
	if len(out) != 10 {
		t.Errorf("expected 10 dimensions back, got %d", len(out))
	}
}

func TestScalarRejectsUnsupportedBits(t *testing.T) {
	if _, err := New(Config{Method: MethodScalar, Bits: 12}); err == nil {
		t.Error("expected error for 12-bit scalar quantization")
	}
}

func TestScalarConstantVector(t *testing.T) {
	vec := []float32{0.5, 0.5, 0.5}
	out := mustRoundTrip(t, vec, Config{Method: MethodScalar, Bits: 8})
	for i, v := range out {
		if math.Abs(float64(v)-0.5) > 1e-3 {
			t.Errorf("element %d: got %f, want ~0.5", i, v)
		}
	}
}

func TestBinarySignRoundTrip(t *testing.T) {
	vec := []float32{0.7, -0.2, 0.0, 1.5, -3.0}
	out := mustRoundTrip(t, vec, Config{Method: MethodBinary})
	// reconstruction is the sign vector at unit norm
	unit := float32(1.0 / math.Sqrt(5))
	want := []float32{unit, -unit, -unit, unit, -unit}
	for i := range want {
		if math.Abs(float64(out[i]-want[i])) > 1e-6 {
			t.Errorf("element %d: got %f, want %f", i, out[i], want[i])
		}
	}
}

func TestBinaryCompressionRatio(t *testing.T) {
	q, err := New(Config{Method: MethodBinary})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if got := q.CompressionRatio(); got != 32.0 {
		t.Errorf("binary compression ratio should be 32, got %f", got)
	}
}

func TestProductBatchRoundTrip(t *testing.T) {
	// Batch of clustered vectors: the trained codebook should reconstruct
	// each vector close to its cluster center.
	vecs := [][]float32{
		{1, 1, 1, 1, 0, 0, 0, 0},
		{1, 1, 1, 1, 0.1, 0, 0, 0},
		{0, 0, 0, 0, 1, 1, 1, 1},
		{0, 0, 0.1, 0, 1, 1, 1, 1},
	}
	q, err := New(Config{Method: MethodProduct, SubVectorSize: 4, CodebookSize: 8})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	quantized, err := q.QuantizeBatch(vecs)
	if err != nil {
		t.Fatalf("QuantizeBatch failed: %v", err)
	}
	if len(quantized) != len(vecs) {
		t.Fatalf("expected %d quantized vectors, got %d", len(vecs), len(quantized))
	}
	for i, qv := range quantized {
		out, derr := Dequantize(qv)
		if derr != nil {
			t.Fatalf("Dequantize %d failed: %v", i, derr)
		}
		if len(out) != len(vecs[i]) {
			t.Fatalf("vector %d: expected %d dimensions, got %d", i, len(vecs[i]), len(out))
		}
		for j := range out {
			if math.Abs(float64(out[j])-float64(vecs[i][j])) > 0.5 {
				t.Errorf("vector %d element %d: got %f, want near %f", i, j, out[j], vecs[i][j])
			}
		}
	}
}

func TestProductClipsPaddedTail(t *testing.T) {
	// 5 dimensions with sub-vector size 4: the second sub-vector is padded
	// internally, but the reconstruction must come back with 5 dimensions.
	vec := []float32{0.1, 0.2, 0.3, 0.4, 0.5}
	out := mustRoundTrip(t, vec, Config{Method: MethodProduct, SubVectorSize: 4, CodebookSize: 4})
	if len(out) != 5 {
		t.Errorf("expected 5 dimensions, got %d", len(out))
	}
}

func TestProductSingleVectorWithoutBatch(t *testing.T) {
	vec := []float32{0.5, -0.5, 0.25, -0.25, 1, -1, 0, 0.75}
	q, err := New(Config{Method: MethodProduct, SubVectorSize: 4, CodebookSize: 16})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	qv, err := q.Quantize(vec)
	if err != nil {
		t.Fatalf("Quantize failed: %v", err)
	}
	if _, err := Dequantize(qv); err != nil {
		t.Fatalf("Dequantize failed: %v", err)
	}
}

func TestRecommend(t *testing.T) {
	cases := []struct {
		ratio, accuracy float64
		want            Method
		wantBits        int
	}{
		{32, 0.7, MethodBinary, 0},
		{64, 0.5, MethodBinary, 0},
		{8, 0.85, MethodProduct, 0},
		{16, 0.8, MethodProduct, 0},
		{4, 0.95, MethodScalar, 8},
		{4, 0.99, MethodScalar, 16},
		{2, 0.99, MethodScalar, 16},
		{32, 0.9, MethodScalar, 16},
	}
	for _, tc := range cases {
		cfg := Recommend(tc.ratio, tc.accuracy)
		if cfg.Method != tc.want {
			t.Errorf("Recommend(%f, %f): got %s, want %s", tc.ratio, tc.accuracy, cfg.Method, tc.want)
		}
		if tc.wantBits != 0 && cfg.Bits != tc.wantBits {
			t.Errorf("Recommend(%f, %f): got %d bits, want %d", tc.ratio, tc.accuracy, cfg.Bits, tc.wantBits)
		}
	}
}

func TestQuantizeEmptyVector(t *testing.T) {
	q, err := New(Config{Method: MethodScalar, Bits: 8})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if _, err := q.Quantize(nil); err == nil {
		t.Error("expected error for empty vector")
	}
}

func mustRoundTrip(t *testing.T, vec []float32, cfg Config) []float32 {
	t.Helper()
	q, err := New(cfg)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	qv, err := q.Quantize(vec)
	if err != nil {
		t.Fatalf("Quantize failed: %v", err)
	}
	out, err := Dequantize(qv)
	if err != nil {
		t.Fatalf("Dequantize failed: %v", err)
	}
	return out
}

func roundTripError(t *testing.T, vec []float32, cfg Config) float64 {
	t.Helper()
	out := mustRoundTrip(t, vec, cfg)
	var maxErr float64
	for i := range vec {
		diff := math.Abs(float64(vec[i]) - float64(out[i]))
		if diff > maxErr {
			maxErr = diff
		}
	}
	return maxErr
}
