package github

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shelby-as-a-service/shelby/internal/core/domain"
)

// fakeGitHub serves one repository "acme/docs" with default branch "main".
type fakeGitHub struct {
	*httptest.Server
	authHeader string
}

func newFakeGitHub(t *testing.T) *fakeGitHub {
	t.Helper()
	f := &fakeGitHub{}
	blobs := map[string]string{
		"s1": "# Readme",
		"s2": "guide text",
		"s4": "package main",
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/acme/docs", func(w http.ResponseWriter, r *http.Request) {
		f.authHeader = r.Header.Get("Authorization")
		w.Header().Set(HeaderRateRemaining, "4999")
		w.Header().Set(HeaderRateLimit, "5000")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"name":           "docs",
			"owner":          map[string]any{"login": "acme"},
			"default_branch": "main",
		})
	})
	mux.HandleFunc("/repos/acme/docs/git/trees/", func(w http.ResponseWriter, r *http.Request) {
		ref := r.URL.Path[len("/repos/acme/docs/git/trees/"):]
		if ref != "main" && ref != "v2" {
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"message":"Not Found"}`))
			return
		}
		assert.Equal(t, "1", r.URL.Query().Get("recursive"))
		_ = json.NewEncoder(w).Encode(map[string]any{
			"sha": "tree-" + ref,
			"tree": []map[string]any{
				{"path": "README.md", "type": "blob", "sha": "s1", "size": 8},
				{"path": "docs", "type": "tree", "sha": "t1"},
				{"path": "docs/guide.md", "type": "blob", "sha": "s2", "size": 10},
				{"path": "docs/logo.png", "type": "blob", "sha": "s3", "size": 10},
				{"path": "docs/huge.md", "type": "blob", "sha": "s5", "size": MaxFileSize + 1},
				{"path": "docs/removed.md", "type": "blob", "sha": "gone", "size": 3},
				{"path": "main.go", "type": "blob", "sha": "s4", "size": 12},
			},
		})
	})
	mux.HandleFunc("/repos/acme/docs/git/blobs/", func(w http.ResponseWriter, r *http.Request) {
		sha := r.URL.Path[len("/repos/acme/docs/git/blobs/"):]
		content, ok := blobs[sha]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"message":"Not Found"}`))
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"sha":      sha,
			"encoding": "base64",
			"content":  base64.StdEncoding.EncodeToString([]byte(content)),
		})
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"message":"Not Found"}`))
	})
	f.Server = httptest.NewServer(mux)
	t.Cleanup(f.Close)
	return f
}

func (f *fakeGitHub) options(token string) ClientOptions {
	return ClientOptions{Token: token, BaseURL: f.URL, RequestsPerSecond: 1000}
}

func githubSource(config map[string]string) domain.Source {
	return domain.Source{Name: "repo", Loader: domain.ProviderRef{Kind: Kind, Config: config}}
}

func TestParseConfig(t *testing.T) {
	t.Run("explicit keys", func(t *testing.T) {
		cfg, err := ParseConfig(githubSource(map[string]string{
			"owner":    "acme",
			"repo":     "docs",
			"branch":   "dev",
			"path":     "/docs/",
			"patterns": "*.md, *.rst",
		}))
		require.NoError(t, err)
		assert.Equal(t, "acme", cfg.Owner)
		assert.Equal(t, "docs", cfg.Repo)
		assert.Equal(t, "dev", cfg.Branch)
		assert.Equal(t, "docs", cfg.Path)
		assert.Equal(t, []string{"*.md", "*.rst"}, cfg.FilePatterns)
	})

	t.Run("repository from uri", func(t *testing.T) {
		src := githubSource(nil)
		src.URI = "https://github.com/acme/handbook.git"
		cfg, err := ParseConfig(src)
		require.NoError(t, err)
		assert.Equal(t, "acme", cfg.Owner)
		assert.Equal(t, "handbook", cfg.Repo)
		assert.Equal(t, DefaultPatterns, cfg.FilePatterns)
	})

	t.Run("missing repository", func(t *testing.T) {
		src := githubSource(nil)
		src.URI = "https://example.com/acme/docs"
		_, err := ParseConfig(src)
		assert.ErrorIs(t, err, domain.ErrInvalidInput)
	})
}

func TestConfig_UnderPath(t *testing.T) {
	cfg := &Config{Path: "docs"}
	assert.True(t, cfg.underPath("docs/a.md"))
	assert.True(t, cfg.underPath("docs/deep/b.md"))
	assert.False(t, cfg.underPath("docsite/a.md"))
	assert.False(t, cfg.underPath("README.md"))
	assert.True(t, (&Config{}).underPath("README.md"))
}

func TestLoader_Load(t *testing.T) {
	f := newFakeGitHub(t)
	ctx := context.Background()

	l, err := New(ctx, githubSource(map[string]string{"owner": "acme", "repo": "docs"}), f.options("secret"))
	require.NoError(t, err)
	assert.Equal(t, Kind, l.Kind())
	require.NoError(t, l.Validate(ctx))
	assert.Equal(t, "Bearer secret", f.authHeader)

	docs, err := l.Load(ctx)
	require.NoError(t, err)
	require.Len(t, docs, 2)

	assert.Equal(t, "https://github.com/acme/docs/blob/main/README.md", docs[0].URI)
	assert.Equal(t, "README", docs[0].Title)
	assert.Equal(t, "text/markdown", docs[0].MIMEType)
	assert.Equal(t, "# Readme", string(docs[0].Content))
	assert.Equal(t, "main", docs[0].Metadata["branch"])

	assert.Equal(t, "docs/guide.md", docs[1].Metadata["path"])
	assert.Equal(t, "guide text", string(docs[1].Content))

	assert.Equal(t, 4999, l.client.RateLimiter().Remaining())
}

func TestLoader_Load_BranchPathAndPatterns(t *testing.T) {
	f := newFakeGitHub(t)
	ctx := context.Background()

	l, err := New(ctx, githubSource(map[string]string{
		"owner":    "acme",
		"repo":     "docs",
		"branch":   "v2",
		"patterns": "*.md,*.go",
		"path":     "docs",
	}), f.options(""))
	require.NoError(t, err)

	docs, err := l.Load(ctx)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "https://github.com/acme/docs/blob/v2/docs/guide.md", docs[0].URI)
	assert.Empty(t, f.authHeader)
}

func TestLoader_Errors(t *testing.T) {
	f := newFakeGitHub(t)
	ctx := context.Background()

	t.Run("unknown repository", func(t *testing.T) {
		l, err := New(ctx, githubSource(map[string]string{"owner": "acme", "repo": "nope"}), f.options(""))
		require.NoError(t, err)

		err = l.Validate(ctx)
		assert.ErrorIs(t, err, ErrRepoNotFound)
		assert.ErrorIs(t, err, domain.ErrNotFound)
		assert.True(t, IsNotFound(err))
	})

	t.Run("unknown branch", func(t *testing.T) {
		l, err := New(ctx, githubSource(map[string]string{"owner": "acme", "repo": "docs", "branch": "nope"}), f.options(""))
		require.NoError(t, err)

		_, err = l.Load(ctx)
		assert.ErrorIs(t, err, ErrBranchNotFound)
	})

	t.Run("builder rejects bad config", func(t *testing.T) {
		l, err := NewBuilder(f.options(""))(githubSource(nil))
		assert.ErrorIs(t, err, domain.ErrInvalidInput)
		assert.Nil(t, l)
	})
}

func TestMatchesPatterns(t *testing.T) {
	tests := []struct {
		path     string
		patterns []string
		want     bool
	}{
		{"README.md", nil, true},
		{"README.md", []string{"*.md"}, true},
		{"docs/guide.md", []string{"*.md"}, true},
		{"docs/guide.md", []string{"docs/*"}, true},
		{"src/main.go", []string{"*.md", "*.txt"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.want, matchesPatterns(tt.path, tt.patterns))
		})
	}
}

func TestDetectFileMIMEType(t *testing.T) {
	assert.Equal(t, "text/markdown", detectFileMIMEType("a/README.MD"))
	assert.Equal(t, "text/typescript", detectFileMIMEType("app.ts"))
	assert.Equal(t, "text/plain", detectFileMIMEType("LICENSE"))
	assert.Equal(t, "text/html", detectFileMIMEType("index.html"))
}

func TestIsBinaryExtension(t *testing.T) {
	assert.True(t, isBinaryExtension("logo.PNG"))
	assert.True(t, isBinaryExtension("a/b/c.pdf"))
	assert.False(t, isBinaryExtension("README.md"))
}

func TestRateLimiter_UpdateFromResponse(t *testing.T) {
	r := NewRateLimiter(0)
	assert.Equal(t, GitHubRateLimit, r.Remaining())

	reset := time.Now().Add(time.Hour).Unix()
	resp := &http.Response{Header: http.Header{}}
	resp.Header.Set(HeaderRateRemaining, "42")
	resp.Header.Set(HeaderRateLimit, "60")
	resp.Header.Set(HeaderRateReset, strconv.FormatInt(reset, 10))
	r.UpdateFromResponse(resp)

	assert.Equal(t, 42, r.Remaining())
	assert.Equal(t, 60, r.Limit())
	assert.Equal(t, reset, r.ResetTime().Unix())

	r.UpdateFromResponse(nil)
	assert.Equal(t, 42, r.Remaining())
}

func TestRateLimiter_WaitHonoursContext(t *testing.T) {
	r := NewRateLimiter(1000)
	resp := &http.Response{Header: http.Header{}}
	resp.Header.Set(HeaderRateRemaining, "0")
	resp.Header.Set(HeaderRateReset, strconv.FormatInt(time.Now().Add(time.Hour).Unix(), 10))
	r.UpdateFromResponse(resp)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, r.Wait(ctx), context.DeadlineExceeded)
}

func TestAPIError_Unwrap(t *testing.T) {
	assert.ErrorIs(t, &APIError{StatusCode: http.StatusUnauthorized}, domain.ErrMissingCredentials)
	assert.True(t, IsUnauthorized(&APIError{StatusCode: http.StatusUnauthorized}))
	assert.ErrorIs(t, &APIError{StatusCode: http.StatusNotFound}, domain.ErrNotFound)
	assert.False(t, IsRateLimited(&APIError{StatusCode: http.StatusForbidden}))
	assert.True(t, IsRateLimited(&RateLimitError{}))
}
