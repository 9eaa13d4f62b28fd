// Package quantization provides lossy compression of embedding vectors.
// Three interchangeable methods are supported: scalar (4/8/16-bit linear
// rescale), product (sub-vector codebooks), and binary (sign bits).
package quantization

import "fmt"

// Method identifies a quantization scheme.
type Method string

const (
	// MethodScalar rescales each component linearly to a fixed-width integer.
	MethodScalar Method = "scalar"
	// MethodProduct replaces fixed-size sub-vectors with codebook centroid indices.
	MethodProduct Method = "product"
	// MethodBinary keeps one sign bit per dimension.
	MethodBinary Method = "binary"
)

// Config selects a method and its parameters.
type Config struct {
	Method        Method `yaml:"method"`
	Bits          int    `yaml:"bits"`            // scalar: 4, 8, or 16
	CodebookSize  int    `yaml:"codebook_size"`   // product: centroids per codebook, <= 256
	SubVectorSize int    `yaml:"sub_vector_size"` // product: dimensions per sub-vector
}

// ApplyDefaults fills zero values in place.
func (c *Config) ApplyDefaults() {
	if c.Method == "" {
		c.Method = MethodScalar
	}
	if c.Bits == 0 {
		c.Bits = 8
	}
	if c.CodebookSize == 0 {
		c.CodebookSize = 256
	}
	if c.SubVectorSize == 0 {
		c.SubVectorSize = 4
	}
}

// Info records how a vector was quantized so it can be reconstructed.
// Scale/Offset apply to scalar vectors; Codebook to product vectors.
type Info struct {
	Method        Method      `json:"method"`
	Bits          int         `json:"bits,omitempty"`
	Scale         float64     `json:"scale,omitempty"`
	Offset        float64     `json:"offset,omitempty"`
	Codebook      [][]float32 `json:"codebook,omitempty"`
	SubVectorSize int         `json:"sub_vector_size,omitempty"`
}

// QuantizedVector is the compressed form of a float vector. Reconstruction is
// lossy and method-dependent.
type QuantizedVector struct {
	OriginalDimensions int    `json:"original_dimensions"`
	Data               []byte `json:"data"`
	Info               Info   `json:"info"`
}

// Quantizer compresses and reconstructs vectors with a fixed configuration.
type Quantizer struct {
	cfg Config
}

// New validates cfg, applies defaults, and returns a Quantizer.
func New(cfg Config) (*Quantizer, error) {
	cfg.ApplyDefaults()
	switch cfg.Method {
	case MethodScalar:
		if cfg.Bits != 4 && cfg.Bits != 8 && cfg.Bits != 16 {
			return nil, fmt.Errorf("scalar quantization supports 4, 8, or 16 bits, got %d", cfg.Bits)
		}
	case MethodProduct:
		if cfg.CodebookSize < 2 || cfg.CodebookSize > 256 {
			return nil, fmt.Errorf("codebook size must be in [2, 256], got %d", cfg.CodebookSize)
		}
		if cfg.SubVectorSize <= 0 {
			return nil, fmt.Errorf("sub-vector size must be positive, got %d", cfg.SubVectorSize)
		}
	case MethodBinary:
	default:
		return nil, fmt.Errorf("unknown quantization method %q", cfg.Method)
	}
	return &Quantizer{cfg: cfg}, nil
}

// Config returns the quantizer's effective configuration.
func (q *Quantizer) Config() Config {
	return q.cfg
}

// Quantize compresses a single vector. For product quantization this trains a
// codebook from the vector's own sub-vectors; prefer QuantizeBatch when a
// batch is available.
func (q *Quantizer) Quantize(vec []float32) (*QuantizedVector, error) {
	if len(vec) == 0 {
		return nil, fmt.Errorf("cannot quantize empty vector")
	}
	switch q.cfg.Method {
	case MethodScalar:
		return quantizeScalar(vec, q.cfg.Bits)
	case MethodProduct:
		codebook := randomCodebook(vec, q.cfg.SubVectorSize, q.cfg.CodebookSize)
		return quantizeProduct(vec, codebook, q.cfg.SubVectorSize)
	case MethodBinary:
		return quantizeBinary(vec), nil
	}
	return nil, fmt.Errorf("unknown quantization method %q", q.cfg.Method)
}

// QuantizeBatch compresses a batch of same-dimensional vectors. For product
// quantization the codebook is trained once over the whole batch with a
// bounded-iteration k-means and shared by every output.
func (q *Quantizer) QuantizeBatch(vecs [][]float32) ([]*QuantizedVector, error) {
	if len(vecs) == 0 {
		return nil, nil
	}
	if q.cfg.Method != MethodProduct {
		out := make([]*QuantizedVector, len(vecs))
		for i, vec := range vecs {
			qv, err := q.Quantize(vec)
			if err != nil {
				return nil, fmt.Errorf("vector %d: %w", i, err)
			}
			out[i] = qv
		}
		return out, nil
	}

	dim := len(vecs[0])
	for i, vec := range vecs {
		if len(vec) != dim {
			return nil, fmt.Errorf("vector %d: dimension %d differs from batch dimension %d", i, len(vec), dim)
		}
	}
	codebook, err := trainCodebook(vecs, q.cfg.SubVectorSize, q.cfg.CodebookSize)
	if err != nil {
		return nil, err
	}
	out := make([]*QuantizedVector, len(vecs))
	for i, vec := range vecs {
		qv, qerr := quantizeProduct(vec, codebook, q.cfg.SubVectorSize)
		if qerr != nil {
			return nil, fmt.Errorf("vector %d: %w", i, qerr)
		}
		out[i] = qv
	}
	return out, nil
}

// Dequantize reconstructs an approximation of the original vector.
func Dequantize(qv *QuantizedVector) ([]float32, error) {
	if qv == nil {
		return nil, fmt.Errorf("nil quantized vector")
	}
	switch qv.Info.Method {
	case MethodScalar:
		return dequantizeScalar(qv)
	case MethodProduct:
		return dequantizeProduct(qv)
	case MethodBinary:
		return dequantizeBinary(qv), nil
	}
	return nil, fmt.Errorf("unknown quantization method %q", qv.Info.Method)
}

// CompressionRatio returns the expected size ratio (original / compressed) for
// the configured method.
func (q *Quantizer) CompressionRatio() float64 {
	switch q.cfg.Method {
	case MethodScalar:
		return 32.0 / float64(q.cfg.Bits)
	case MethodProduct:
		// One byte of codes per sub-vector of SubVectorSize float32s.
		return float64(q.cfg.SubVectorSize) * 4.0
	case MethodBinary:
		return 32.0
	}
	return 1.0
}

// EstimateAccuracy returns the expected reconstruction fidelity in [0, 1] for
// the configured method. These are coarse expectations, not guarantees.
func (q *Quantizer) EstimateAccuracy() float64 {
	switch q.cfg.Method {
	case MethodScalar:
		switch q.cfg.Bits {
		case 16:
			return 0.99
		case 8:
			return 0.95
		default:
			return 0.85
		}
	case MethodProduct:
		return 0.85
	case MethodBinary:
		return 0.70
	}
	return 0
}

// Recommend picks the most compressive configuration that still meets the
// target ratio and the minimum accuracy. Falls back to 16-bit scalar when
// nothing more aggressive qualifies.
func Recommend(targetRatio, minAccuracy float64) Config {
	cfg := Config{}
	switch {
	case targetRatio >= 32 && minAccuracy <= 0.70:
		cfg.Method = MethodBinary
	case targetRatio >= 8 && minAccuracy <= 0.85:
		cfg.Method = MethodProduct
	case targetRatio >= 4 && minAccuracy <= 0.95:
		cfg.Method = MethodScalar
		cfg.Bits = 8
	default:
		cfg.Method = MethodScalar
		cfg.Bits = 16
	}
	cfg.ApplyDefaults()
	return cfg
}
