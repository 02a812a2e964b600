// Package driving defines the interfaces the CLI and the scheduler use to
// drive ingestion, index management and retrieval. These are the "driving"
// ports in hexagonal architecture terminology.
//
// Implementations of these interfaces live in internal/core/services.
package driving
