package fixstore

import (
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"math"
)

// PackEmbedding encodes v as little-endian float32 bytes, 4 bytes per component.
func PackEmbedding(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

// UnpackEmbedding decodes bytes produced by PackEmbedding.
func UnpackEmbedding(b []byte) ([]float32, error) {
	if len(b)%4 != 0 {
		return nil, fmt.Errorf("embedding blob length %d is not a multiple of 4", len(b))
	}
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return v, nil
}

// encodeEmbeddingString packs v into a base64 string for string-only metadata.
func encodeEmbeddingString(v []float32) string {
	return base64.StdEncoding.EncodeToString(PackEmbedding(v))
}

func decodeEmbeddingString(s string) ([]float32, error) {
	b, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("decoding embedding: %w", err)
	}
	return UnpackEmbedding(b)
}
