package github

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/shelby-as-a-service/shelby/internal/core/domain"
)

// DefaultPatterns selects documentation files.
var DefaultPatterns = []string{"*.md", "*.markdown", "*.txt"}

// Config holds the parsed configuration for a GitHub source.
type Config struct {
	Owner string
	Repo  string

	// Branch is empty to use the repository's default branch.
	Branch string

	// Path restricts loading to files below this directory.
	Path string

	// FilePatterns are glob patterns for file filtering.
	FilePatterns []string
}

// ParseConfig parses a source's loader config. owner and repo fall back to a
// https://github.com/{owner}/{repo} source URI.
func ParseConfig(source domain.Source) (*Config, error) {
	cfg := &Config{
		Owner:        source.Loader.Get("owner", ""),
		Repo:         source.Loader.Get("repo", ""),
		Branch:       source.Loader.Get("branch", ""),
		Path:         strings.Trim(source.Loader.Get("path", ""), "/"),
		FilePatterns: DefaultPatterns,
	}

	if cfg.Owner == "" || cfg.Repo == "" {
		owner, repo := parseRepoURL(source.URI)
		if cfg.Owner == "" {
			cfg.Owner = owner
		}
		if cfg.Repo == "" {
			cfg.Repo = repo
		}
	}
	if cfg.Owner == "" || cfg.Repo == "" {
		return nil, fmt.Errorf("%w: github loader needs owner and repo", domain.ErrInvalidInput)
	}

	if patterns := source.Loader.Get("patterns", ""); patterns != "" {
		cfg.FilePatterns = parsePatterns(patterns)
	}
	return cfg, nil
}

// parseRepoURL extracts owner and repo from a GitHub web URL.
func parseRepoURL(raw string) (owner, repo string) {
	u, err := url.Parse(raw)
	if err != nil || u.Host != "github.com" {
		return "", ""
	}
	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	if len(parts) < 2 {
		return "", ""
	}
	return parts[0], strings.TrimSuffix(parts[1], ".git")
}

// parsePatterns parses a comma-separated glob patterns string.
func parsePatterns(s string) []string {
	parts := strings.Split(s, ",")
	patterns := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part != "" {
			patterns = append(patterns, part)
		}
	}
	return patterns
}

// underPath reports whether a tree path lies below the configured directory.
func (c *Config) underPath(path string) bool {
	if c.Path == "" {
		return true
	}
	return path == c.Path || strings.HasPrefix(path, c.Path+"/")
}
