package file

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/shelby-as-a-service/shelby/internal/core/domain"
)

// IndexDescription is the YAML file listing domains and their sources.
// `shelby index apply` writes it into the catalog.
type IndexDescription struct {
	Domains []DomainSpec `yaml:"domains"`
}

// DomainSpec describes one domain.
type DomainSpec struct {
	Name        string        `yaml:"name"`
	Description string        `yaml:"description"`
	Database    string        `yaml:"database"`
	Loader      LoaderSpec    `yaml:"loader"`
	Processor   ProcessorSpec `yaml:"processor"`
	Sources     []SourceSpec  `yaml:"sources"`
}

// SourceSpec describes one source of a domain.
type SourceSpec struct {
	Name            string        `yaml:"name"`
	URI             string        `yaml:"uri"`
	DocType         string        `yaml:"doc_type"`
	Database        string        `yaml:"database"`
	Loader          LoaderSpec    `yaml:"loader"`
	Processor       ProcessorSpec `yaml:"processor"`
	UpdateFrequency string        `yaml:"update_frequency"`
	BatchUpdate     *bool         `yaml:"batch_update"`
}

// LoaderSpec selects a loader kind and its options.
type LoaderSpec struct {
	Kind   string            `yaml:"kind"`
	Config map[string]string `yaml:"config"`
}

// ProcessorSpec overrides chunking settings. Zero values inherit.
type ProcessorSpec struct {
	MinLength      int   `yaml:"min_length"`
	GoalLength     int   `yaml:"goal_length"`
	MaxLength      int   `yaml:"max_length"`
	OverlapPercent int   `yaml:"overlap_percent"`
	PruneMissing   *bool `yaml:"prune_missing"`
}

// LoadIndexDescription reads and converts an index description file.
func LoadIndexDescription(path string) ([]domain.Domain, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading index description: %w", err)
	}
	return ParseIndexDescription(data)
}

// ParseIndexDescription converts YAML into catalog domains.
// Sources default to batch updates.
func ParseIndexDescription(data []byte) ([]domain.Domain, error) {
	var desc IndexDescription
	if err := yaml.Unmarshal(data, &desc); err != nil {
		return nil, fmt.Errorf("%w: parsing index description: %v", domain.ErrInvalidInput, err)
	}

	var errs []error
	seenDomains := make(map[string]bool)
	domains := make([]domain.Domain, 0, len(desc.Domains))
	for _, ds := range desc.Domains {
		if ds.Name == "" {
			errs = append(errs, fmt.Errorf("%w: domain without name", domain.ErrInvalidInput))
			continue
		}
		if seenDomains[ds.Name] {
			errs = append(errs, fmt.Errorf("%w: duplicate domain %s", domain.ErrInvalidInput, ds.Name))
			continue
		}
		seenDomains[ds.Name] = true

		d := domain.Domain{
			Name:        ds.Name,
			Description: ds.Description,
			Database:    ds.Database,
			Loader:      ds.Loader.ref(),
			Processor:   ds.Processor.settings(),
		}

		seenSources := make(map[string]bool)
		for _, ss := range ds.Sources {
			if ss.Name == "" {
				errs = append(errs, fmt.Errorf("%w: source without name in domain %s", domain.ErrInvalidInput, ds.Name))
				continue
			}
			if seenSources[ss.Name] {
				errs = append(errs, fmt.Errorf("%w: duplicate source %s/%s", domain.ErrInvalidInput, ds.Name, ss.Name))
				continue
			}
			seenSources[ss.Name] = true

			src, err := ss.source()
			if err != nil {
				errs = append(errs, fmt.Errorf("source %s/%s: %w", ds.Name, ss.Name, err))
				continue
			}
			d.Sources = append(d.Sources, src)
		}
		domains = append(domains, d)
	}

	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return domains, nil
}

func (l LoaderSpec) ref() domain.ProviderRef {
	return domain.ProviderRef{Kind: l.Kind, Config: l.Config}
}

func (p ProcessorSpec) settings() domain.ProcessorSettings {
	return domain.ProcessorSettings{
		MinLength:      p.MinLength,
		GoalLength:     p.GoalLength,
		MaxLength:      p.MaxLength,
		OverlapPercent: p.OverlapPercent,
		PruneMissing:   p.PruneMissing,
	}
}

func (s SourceSpec) source() (domain.Source, error) {
	src := domain.Source{
		Name:        s.Name,
		URI:         s.URI,
		DocType:     s.DocType,
		Database:    s.Database,
		Loader:      s.Loader.ref(),
		Processor:   s.Processor.settings(),
		BatchUpdate: s.BatchUpdate == nil || *s.BatchUpdate,
	}
	if s.UpdateFrequency != "" {
		freq, err := time.ParseDuration(s.UpdateFrequency)
		if err != nil || freq < 0 {
			return src, fmt.Errorf("%w: update_frequency %q", domain.ErrInvalidInput, s.UpdateFrequency)
		}
		src.UpdateFrequency = freq
	}
	return src, nil
}
