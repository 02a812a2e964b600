package domain

import (
	"fmt"
	"strings"
	"time"
)

// Domain is a named topic grouping of sources.
// Every domain maps to exactly one vector store namespace.
type Domain struct {
	// ID is the unique identifier for the domain.
	ID string

	// Name is unique within the catalog and doubles as the namespace.
	Name string

	// Description is free text describing the topic.
	Description string

	// Loader is the default loader selection for sources that declare none.
	Loader ProviderRef

	// Processor holds the default processing settings for the domain's sources.
	Processor ProcessorSettings

	// Database names the vector store provider holding the domain's chunks.
	Database string

	// Sources lists the domain's sources when loaded with ListDomains.
	Sources []Source

	// CreatedAt is when the domain was created.
	CreatedAt time.Time

	// UpdatedAt is when the domain was last updated.
	UpdatedAt time.Time
}

// Namespace returns the vector store namespace for the domain.
func (d *Domain) Namespace() string {
	return d.Name
}

// Source represents one ingestible origin within a domain.
type Source struct {
	// ID is the unique identifier for the source.
	ID string

	// DomainID links to the owning Domain.
	DomainID string

	// Name is unique within the owning domain.
	Name string

	// URI is the origin address (site, sitemap, directory, repository).
	URI string

	// Loader selects the loader provider and its configuration.
	Loader ProviderRef

	// Processor holds per-source chunking settings.
	// Zero fields fall back to the domain and then the global defaults.
	Processor ProcessorSettings

	// Database names the vector store provider for this source.
	Database string

	// DocType is written to every chunk's doc_type metadata field.
	DocType string

	// UpdateFrequency is the minimum age of LastUpdated before the source is re-ingested.
	// Zero means always ingest.
	UpdateFrequency time.Duration

	// BatchUpdate marks the source for inclusion in domain-wide runs.
	BatchUpdate bool

	// LastUpdated is when the last fully successful ingestion pass finished.
	LastUpdated time.Time

	// CreatedAt is when the source was created.
	CreatedAt time.Time

	// UpdatedAt is when the source was last updated.
	UpdatedAt time.Time
}

// Key returns the lock key for the source.
func (s *Source) Key(domainName string) string {
	return domainName + "/" + s.Name
}

// DueForUpdate reports whether the source should be ingested at now.
func (s *Source) DueForUpdate(now time.Time) bool {
	if s.UpdateFrequency <= 0 || s.LastUpdated.IsZero() {
		return true
	}
	return now.Sub(s.LastUpdated) >= s.UpdateFrequency
}

// ProviderRef selects a provider by kind and carries its configuration blob.
type ProviderRef struct {
	// Kind is the registered provider tag (e.g. "sitemap", "github").
	Kind string

	// Config contains provider-specific configuration.
	Config map[string]string
}

// IsZero reports whether no provider kind is set.
func (p ProviderRef) IsZero() bool {
	return strings.TrimSpace(p.Kind) == ""
}

// Get returns a config value or the fallback when unset.
func (p ProviderRef) Get(key, fallback string) string {
	if v, ok := p.Config[key]; ok && v != "" {
		return v
	}
	return fallback
}

// ProcessorSettings controls cleaning and chunking for a source.
// All lengths are measured in tokens.
type ProcessorSettings struct {
	// MinLength is the minimum cleaned document size worth indexing.
	MinLength int

	// GoalLength is the target chunk size.
	GoalLength int

	// MaxLength is the hard upper bound for a chunk.
	MaxLength int

	// OverlapPercent is the share of GoalLength repeated between adjacent chunks.
	OverlapPercent int

	// PruneMissing deletes catalog documents absent from a successful load.
	PruneMissing *bool
}

// Merge fills zero fields of s from fallback.
func (s ProcessorSettings) Merge(fallback ProcessorSettings) ProcessorSettings {
	if s.MinLength == 0 {
		s.MinLength = fallback.MinLength
	}
	if s.GoalLength == 0 {
		s.GoalLength = fallback.GoalLength
	}
	if s.MaxLength == 0 {
		s.MaxLength = fallback.MaxLength
	}
	if s.OverlapPercent == 0 {
		s.OverlapPercent = fallback.OverlapPercent
	}
	if s.PruneMissing == nil {
		s.PruneMissing = fallback.PruneMissing
	}
	return s
}

// Overlap returns the overlap in tokens.
func (s ProcessorSettings) Overlap() int {
	return s.GoalLength * s.OverlapPercent / 100
}

// ShouldPrune reports whether missing documents are pruned. Defaults to true.
func (s ProcessorSettings) ShouldPrune() bool {
	return s.PruneMissing == nil || *s.PruneMissing
}

// Validate checks the chunking bounds.
func (s ProcessorSettings) Validate() error {
	if s.GoalLength <= 0 {
		return fmt.Errorf("%w: goal length must be positive", ErrInvalidInput)
	}
	if s.MaxLength < s.GoalLength {
		return fmt.Errorf("%w: max length %d is below goal length %d", ErrInvalidInput, s.MaxLength, s.GoalLength)
	}
	if s.OverlapPercent < 0 || s.OverlapPercent >= 100 {
		return fmt.Errorf("%w: overlap percent must be in [0, 100)", ErrInvalidInput)
	}
	if s.MinLength < 0 {
		return fmt.Errorf("%w: min length must not be negative", ErrInvalidInput)
	}
	return nil
}
