// Package sqlite is the file-backed vector index.
//
// It uses modernc.org/sqlite, a pure Go SQLite implementation, so the index is a
// single file inside the persist directory and needs no server. Vectors are stored
// as little-endian float32 blobs and queried by exhaustive cosine scan, which is
// adequate for the few thousand chunks of a filings corpus.
//
// # Schema
//
// The schema is managed through versioned migrations in migrations/. Each
// collection row records the embedding model, dimensions, chunking parameters
// and the current generation id. Rebuilds replace a collection's chunks inside
// one transaction.
package sqlite
