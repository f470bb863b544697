package internal

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
)

// Store is the durable home of embeddings. The similarity index is rebuilt from it.
type Store interface {
	StoreEmbedding(ctx context.Context, id string, vec []float32) error
	LoadAllEmbeddings(ctx context.Context) ([]CachedEntry, error)
}

// EncodeVector lays vec out as little-endian float32 values, 4 bytes each.
func EncodeVector(vec []float32) []byte {
	buf := make([]byte, 4*len(vec))
	for i, v := range vec {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(v))
	}
	return buf
}

func DecodeVector(buf []byte) ([]float32, error) {
	if len(buf)%4 != 0 {
		return nil, fmt.Errorf("vector blob of %d bytes is not a multiple of 4", len(buf))
	}
	vec := make([]float32, len(buf)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[4*i:]))
	}
	return vec, nil
}
