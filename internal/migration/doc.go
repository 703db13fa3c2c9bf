// Package migration implements the wire codec for shipping key-value
// pairs between nodes during a scale-up rebalance. A chunk is
// capped at MaxChunkPairs entries so a single migration message stays
// bounded regardless of how much data a node is shedding, and is encoded
// with a schema-tagged binary format (CBOR) so a receiver on an older
// schema version can decode a chunk sent by a newer one, ignoring fields
// it does not recognize.
//
// The sender is responsible for deleting a pair only after the chunk
// containing it has been acknowledged — this package only encodes and
// splits, it does not track acks.
package migration
