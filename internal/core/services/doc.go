// Package services implements the driving port interfaces.
// Services contain the ingestion pipeline and orchestrate
// calls to driven ports (adapters): loaders, normalisers,
// embedders, vector stores and the index catalog.
package services
