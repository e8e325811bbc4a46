// Package memory implements the goGuard storage ports in process memory.
// It backs tests and single-node embeddings; every method is safe for
// concurrent use and every record crosses the API boundary as a copy.
package memory
