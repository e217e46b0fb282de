// Package index stores and searches research document chunks in
// PostgreSQL with pgvector. Every document belongs to exactly one
// tenant index handle, and all reads filter on it.
package index
