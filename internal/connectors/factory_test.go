package connectors

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shelby-as-a-service/shelby/internal/core/domain"
	"github.com/shelby-as-a-service/shelby/internal/core/ports/driven"
)

type stubLoader struct{ kind string }

func (l *stubLoader) Kind() string                                       { return l.kind }
func (l *stubLoader) Validate(context.Context) error                     { return nil }
func (l *stubLoader) Load(context.Context) ([]domain.RawDocument, error) { return nil, nil }
func (l *stubLoader) Close() error                                       { return nil }

func sourceOf(kind string, config map[string]string) domain.Source {
	return domain.Source{Name: "src", Loader: domain.ProviderRef{Kind: kind, Config: config}}
}

func TestFactory_RegisterAndCreate(t *testing.T) {
	f := NewFactory()
	f.Register("stub", func(source domain.Source) (driven.Loader, error) {
		return &stubLoader{kind: source.Loader.Kind}, nil
	})

	l, err := f.Create(sourceOf("stub", nil))
	require.NoError(t, err)
	assert.Equal(t, "stub", l.Kind())
	assert.Equal(t, []string{"stub"}, f.SupportedKinds())
}

func TestFactory_UnknownKind(t *testing.T) {
	_, err := NewFactory().Create(sourceOf("ftp", nil))
	assert.ErrorIs(t, err, domain.ErrUnsupportedType)
}

func TestFactory_BuilderError(t *testing.T) {
	boom := errors.New("boom")
	f := NewFactory()
	f.Register("bad", func(domain.Source) (driven.Loader, error) { return nil, boom })

	_, err := f.Create(sourceOf("bad", nil))
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "src")
}

func TestNewDefaultFactory(t *testing.T) {
	f := NewDefaultFactory(Options{})
	assert.Equal(t, []string{"directory", "github", "recursive", "sitemap", "web"}, f.SupportedKinds())

	tests := []struct {
		name   string
		source domain.Source
	}{
		{"web", domain.Source{Name: "s", URI: "https://example.com", Loader: domain.ProviderRef{Kind: "web"}}},
		{"recursive", domain.Source{Name: "s", URI: "https://example.com/docs", Loader: domain.ProviderRef{Kind: "recursive"}}},
		{"sitemap", domain.Source{Name: "s", URI: "https://example.com", Loader: domain.ProviderRef{Kind: "sitemap"}}},
		{"directory", sourceOf("directory", map[string]string{"path": t.TempDir()})},
		{"github", sourceOf("github", map[string]string{"owner": "acme", "repo": "docs"})},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l, err := f.Create(tt.source)
			require.NoError(t, err)
			assert.Equal(t, tt.name, l.Kind())
			assert.NoError(t, l.Close())
		})
	}
}
