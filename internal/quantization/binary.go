package quantization

import "github.com/studyloop/retrieval/pkg/utils"

// quantizeBinary keeps one sign bit per dimension: 1 for positive components,
// 0 otherwise.
func quantizeBinary(vec []float32) *QuantizedVector {
	data := make([]byte, (len(vec)+7)/8)
	for i, v := range vec {
		if v > 0 {
			data[i/8] |= 1 << uint(i%8)
		}
	}
	return &QuantizedVector{
		OriginalDimensions: len(vec),
		Data:               data,
		Info:               Info{Method: MethodBinary},
	}
}

// dequantizeBinary maps bits back to their signs and rescales to unit L2
// norm, so dot and cosine against a reconstruction stay on the same scale as
// against normalized originals.
func dequantizeBinary(qv *QuantizedVector) []float32 {
	out := make([]float32, qv.OriginalDimensions)
	for i := range out {
		if i/8 < len(qv.Data) && qv.Data[i/8]&(1<<uint(i%8)) != 0 {
			out[i] = 1
		} else {
			out[i] = -1
		}
	}
	utils.NormalizeL2(out)
	return out
}
