package driving

import "github.com/shelby-as-a-service/shelby/internal/core/domain"

// LoaderRegistry describes the loader kinds available for sources.
type LoaderRegistry interface {
	// List returns every loader type ordered by kind.
	List() []domain.LoaderType

	// Get returns the loader type for a kind.
	// Returns domain.ErrUnsupportedType if the kind is unknown.
	Get(kind string) (*domain.LoaderType, error)

	// ValidateSource checks a source's loader selection, falling back to the
	// domain's loader when the source declares none.
	ValidateSource(d *domain.Domain, s *domain.Source) error
}
