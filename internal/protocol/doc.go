// Package protocol implements the Tool Protocol Layer (§4.6): a JSON-RPC 2.0
// server over stdio exposing store_memory, search_memory, get_memory,
// delete_memory, migrate_memory, and get_stats. Every request passes through
// rate limiting (on the raw line, before JSON parsing), bearer-token
// authentication (required on every method including initialize), input
// validation, and a circuit breaker guarding the embedding gateway and the
// store before it reaches a repository operation.
package protocol
