package quantization

import (
	"encoding/binary"
	"fmt"
)

// quantizeScalar rescales each component of vec linearly into a bits-wide
// integer using the vector's own min/max range. Reconstruction is
// code*scale + offset.
func quantizeScalar(vec []float32, bits int) (*QuantizedVector, error) {
	min, max := vec[0], vec[0]
	for _, v := range vec {
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
	}
	// Guard against a constant vector dividing by zero.
	if max == min {
		max += 1e-6
	}

	levels := float64(uint32(1)<<uint(bits)) - 1
	scale := (float64(max) - float64(min)) / levels
	offset := float64(min)

	codes := make([]uint32, len(vec))
	for i, v := range vec {
		normalized := (float64(v) - offset) / scale
		if normalized < 0 {
			normalized = 0
		} else if normalized > levels {
			normalized = levels
		}
		codes[i] = uint32(normalized + 0.5)
	}

	var data []byte
	switch bits {
	case 4:
		data = make([]byte, (len(codes)+1)/2)
		for i, c := range codes {
			if i%2 == 0 {
				data[i/2] = byte(c & 0x0f)
			} else {
				data[i/2] |= byte(c&0x0f) << 4
			}
		}
	case 8:
		data = make([]byte, len(codes))
		for i, c := range codes {
			data[i] = byte(c)
		}
	case 16:
		data = make([]byte, len(codes)*2)
		for i, c := range codes {
			binary.LittleEndian.PutUint16(data[i*2:], uint16(c))
		}
	default:
		return nil, fmt.Errorf("unsupported scalar bit width %d", bits)
	}

	return &QuantizedVector{
		OriginalDimensions: len(vec),
		Data:               data,
		Info: Info{
			Method: MethodScalar,
			Bits:   bits,
			Scale:  scale,
			Offset: offset,
		},
	}, nil
}

func dequantizeScalar(qv *QuantizedVector) ([]float32, error) {
	dim := qv.OriginalDimensions
	out := make([]float32, dim)
	for i := 0; i < dim; i++ {
		var code uint32
		switch qv.Info.Bits {
		case 4:
			if i/2 >= len(qv.Data) {
				return nil, fmt.Errorf("quantized data too short: %d bytes for %d dimensions", len(qv.Data), dim)
			}
			if i%2 == 0 {
				code = uint32(qv.Data[i/2] & 0x0f)
			} else {
				code = uint32(qv.Data[i/2] >> 4)
			}
		case 8:
			if i >= len(qv.Data) {
				return nil, fmt.Errorf("quantized data too short: %d bytes for %d dimensions", len(qv.Data), dim)
			}
			code = uint32(qv.Data[i])
		case 16:
			if i*2+1 >= len(qv.Data) {
				return nil, fmt.Errorf("quantized data too short: %d bytes for %d dimensions", len(qv.Data), dim)
			}
			code = uint32(binary.LittleEndian.Uint16(qv.Data[i*2:]))
		default:
			return nil, fmt.Errorf("unsupported scalar bit width %d", qv.Info.Bits)
		}
		out[i] = float32(float64(code)*qv.Info.Scale + qv.Info.Offset)
	}
	return out, nil
}
