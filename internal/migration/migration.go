package migration

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"

	"github.com/coregrid/shardfabric/internal/fabricstore"
)

// MaxChunkPairs bounds how many key-value pairs a single migration message
// may carry.
const MaxChunkPairs = 100

// Pair is the wire representation of one migrated entry. It is distinct
// from fabricstore.Pair because the wire format carries explicit cbor
// field tags and is expected to evolve independently of the in-memory
// shape.
type Pair[V any] struct {
	Key   string `cbor:"1,keyasint"`
	Value V      `cbor:"2,keyasint"`
}

// Chunk is one migration message: a schema version and a bounded batch of
// pairs. SchemaVersion lets a receiver detect a chunk encoded by a newer
// sender and still decode the fields it understands.
type Chunk[V any] struct {
	SchemaVersion uint64    `cbor:"1,keyasint"`
	Pairs         []Pair[V] `cbor:"2,keyasint"`
}

// CurrentSchemaVersion is embedded in every chunk this package encodes.
const CurrentSchemaVersion = 1

// FromStorePairs converts fabricstore.Pair values (the in-memory shape)
// into the wire Pair shape.
func FromStorePairs[V any](in []fabricstore.Pair[V]) []Pair[V] {
	out := make([]Pair[V], len(in))
	for i, p := range in {
		out[i] = Pair[V]{Key: p.Key, Value: p.Value}
	}
	return out
}

// ToStorePairs is the inverse of FromStorePairs.
func ToStorePairs[V any](in []Pair[V]) []fabricstore.Pair[V] {
	out := make([]fabricstore.Pair[V], len(in))
	for i, p := range in {
		out[i] = fabricstore.Pair[V]{Key: p.Key, Value: p.Value}
	}
	return out
}

// SplitIntoChunks groups pairs into batches of at most size entries,
// preserving order. size values outside [1, MaxChunkPairs] are clamped
// to MaxChunkPairs. An empty input yields no chunks.
func SplitIntoChunks[V any](pairs []Pair[V], size int) []Chunk[V] {
	if size <= 0 || size > MaxChunkPairs {
		size = MaxChunkPairs
	}
	if len(pairs) == 0 {
		return nil
	}

	var chunks []Chunk[V]
	for start := 0; start < len(pairs); start += size {
		end := start + size
		if end > len(pairs) {
			end = len(pairs)
		}
		batch := make([]Pair[V], end-start)
		copy(batch, pairs[start:end])
		chunks = append(chunks, Chunk[V]{SchemaVersion: CurrentSchemaVersion, Pairs: batch})
	}
	return chunks
}

// EncodeChunk serializes a Chunk to its schema-tagged binary form.
func EncodeChunk[V any](c Chunk[V]) ([]byte, error) {
	b, err := cbor.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("migration: encode chunk: %w", err)
	}
	return b, nil
}

// DecodeChunk deserializes a Chunk previously produced by EncodeChunk.
// Unknown trailing fields in data (from a newer sender) are ignored by
// the CBOR decoder rather than rejected, so an older receiver can still
// accept a newer sender's chunks.
func DecodeChunk[V any](data []byte) (Chunk[V], error) {
	var c Chunk[V]
	if err := cbor.Unmarshal(data, &c); err != nil {
		return Chunk[V]{}, fmt.Errorf("migration: decode chunk: %w", err)
	}
	return c, nil
}
