// Package store implements the relational repository backing the memory
// engine: a pgx/v5 connection pool over PostgreSQL with the pgvector
// extension, schema management, transactional CRUD with guaranteed
// rollback on every early-return path, and the four search variants
// (semantic, temporal, full-text, hybrid) behind a single uniform
// column contract.
package store
