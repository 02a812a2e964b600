package github

import (
	"context"
	"fmt"

	"github.com/shelby-as-a-service/shelby/internal/core/domain"
	"github.com/shelby-as-a-service/shelby/internal/core/ports/driven"
	"github.com/shelby-as-a-service/shelby/internal/logger"
)

// Kind is the loader kind served by this package.
const Kind = "github"

var _ driven.Loader = (*Loader)(nil)

// Loader reads files from one GitHub repository.
type Loader struct {
	cfg    *Config
	client *Client
}

// New creates a loader for the repository a source names.
func New(ctx context.Context, source domain.Source, opts ClientOptions) (*Loader, error) {
	cfg, err := ParseConfig(source)
	if err != nil {
		return nil, err
	}
	client, err := NewClient(ctx, opts)
	if err != nil {
		return nil, err
	}
	return &Loader{cfg: cfg, client: client}, nil
}

// NewBuilder returns a driven.LoaderBuilder that shares opts across sources.
func NewBuilder(opts ClientOptions) driven.LoaderBuilder {
	return func(source domain.Source) (driven.Loader, error) {
		l, err := New(context.Background(), source, opts)
		if err != nil {
			return nil, err
		}
		return l, nil
	}
}

// Kind returns the loader kind.
func (l *Loader) Kind() string { return Kind }

// Validate checks that the repository is reachable with the configured token.
func (l *Loader) Validate(ctx context.Context) error {
	_, err := l.client.GetRepository(ctx, l.cfg.Owner, l.cfg.Repo)
	return err
}

// Load fetches the matching files at the configured branch.
func (l *Loader) Load(ctx context.Context) ([]domain.RawDocument, error) {
	branch := l.cfg.Branch
	if branch == "" {
		repo, err := l.client.GetRepository(ctx, l.cfg.Owner, l.cfg.Repo)
		if err != nil {
			return nil, err
		}
		branch = repo.GetDefaultBranch()
		if branch == "" {
			return nil, fmt.Errorf("%s/%s: no default branch: %w", l.cfg.Owner, l.cfg.Repo, ErrBranchNotFound)
		}
	}

	docs, err := FetchFiles(ctx, l.client, l.cfg, branch)
	if err != nil {
		return nil, err
	}
	logger.Debug("Loaded %d files from %s/%s@%s", len(docs), l.cfg.Owner, l.cfg.Repo, branch)
	return docs, nil
}

// Close is a no-op.
func (l *Loader) Close() error { return nil }
