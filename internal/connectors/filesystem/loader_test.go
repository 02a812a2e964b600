package filesystem

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shelby-as-a-service/shelby/internal/core/domain"
)

func source(root string, config map[string]string) domain.Source {
	if config == nil {
		config = map[string]string{}
	}
	config["path"] = root
	return domain.Source{Name: "local", Loader: domain.ProviderRef{Kind: Kind, Config: config}}
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestNew(t *testing.T) {
	t.Run("uses path config", func(t *testing.T) {
		dir := t.TempDir()
		l, err := New(source(dir, nil))
		require.NoError(t, err)
		assert.Equal(t, dir, l.Root())
		assert.Equal(t, Kind, l.Kind())
		assert.Equal(t, DefaultPatterns, l.patterns)
		assert.True(t, l.exclude[".git"])
	})

	t.Run("falls back to file uri", func(t *testing.T) {
		dir := t.TempDir()
		l, err := New(domain.Source{URI: "file://" + dir})
		require.NoError(t, err)
		assert.Equal(t, dir, l.Root())
	})

	t.Run("requires a directory", func(t *testing.T) {
		_, err := New(domain.Source{})
		assert.ErrorIs(t, err, domain.ErrInvalidInput)
	})

	t.Run("parses patterns and exclude", func(t *testing.T) {
		l, err := New(source(t.TempDir(), map[string]string{
			"patterns": "*.rst, *.txt",
			"exclude":  "vendor",
		}))
		require.NoError(t, err)
		assert.Equal(t, []string{"*.rst", "*.txt"}, l.patterns)
		assert.True(t, l.exclude["vendor"])
		assert.False(t, l.exclude[".git"])
	})
}

func TestBuilder(t *testing.T) {
	l, err := Builder(source(t.TempDir(), nil))
	require.NoError(t, err)
	assert.Equal(t, Kind, l.Kind())

	l, err = Builder(domain.Source{})
	assert.Error(t, err)
	assert.Nil(t, l)
}

func TestLoader_Validate(t *testing.T) {
	ctx := context.Background()

	t.Run("existing directory", func(t *testing.T) {
		l, err := New(source(t.TempDir(), nil))
		require.NoError(t, err)
		assert.NoError(t, l.Validate(ctx))
	})

	t.Run("missing directory", func(t *testing.T) {
		l, err := New(source(filepath.Join(t.TempDir(), "missing"), nil))
		require.NoError(t, err)
		assert.ErrorIs(t, l.Validate(ctx), domain.ErrNotFound)
	})

	t.Run("file instead of directory", func(t *testing.T) {
		file := filepath.Join(t.TempDir(), "doc.md")
		writeFile(t, file, "# doc")
		l, err := New(source(file, nil))
		require.NoError(t, err)
		assert.ErrorIs(t, l.Validate(ctx), domain.ErrInvalidInput)
	})
}

func TestLoader_Load(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "a.md"), "# Alpha\n\nalpha body")
	writeFile(t, filepath.Join(dir, "guide", "b.txt"), "beta body")
	writeFile(t, filepath.Join(dir, "guide", "c.html"), "<p>gamma</p>")
	writeFile(t, filepath.Join(dir, "image.png"), "not text")
	writeFile(t, filepath.Join(dir, ".hidden.md"), "hidden")
	writeFile(t, filepath.Join(dir, ".git", "HEAD.md"), "git")
	writeFile(t, filepath.Join(dir, "node_modules", "pkg", "README.md"), "dep")

	l, err := New(source(dir, nil))
	require.NoError(t, err)

	docs, err := l.Load(context.Background())
	require.NoError(t, err)
	require.Len(t, docs, 3)

	assert.Equal(t, "file://"+filepath.ToSlash(filepath.Join(dir, "a.md")), docs[0].URI)
	assert.Equal(t, "a", docs[0].Title)
	assert.Equal(t, "text/markdown", docs[0].MIMEType)
	assert.Equal(t, "# Alpha\n\nalpha body", string(docs[0].Content))
	assert.Equal(t, "a.md", docs[0].Metadata["path"])
	assert.False(t, docs[0].ModifiedAt.IsZero())

	assert.Equal(t, "guide/b.txt", docs[1].Metadata["path"])
	assert.Equal(t, "text/plain", docs[1].MIMEType)
	assert.Equal(t, "guide/c.html", docs[2].Metadata["path"])
	assert.Equal(t, "text/html", docs[2].MIMEType)
}

func TestLoader_Load_EmptyDirectory(t *testing.T) {
	l, err := New(source(t.TempDir(), nil))
	require.NoError(t, err)

	docs, err := l.Load(context.Background())
	require.NoError(t, err)
	assert.Empty(t, docs)
}

func TestLoader_Load_CustomPatterns(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "notes.rst"), "rst")
	writeFile(t, filepath.Join(dir, "NOTES.RST"), "upper")
	writeFile(t, filepath.Join(dir, "readme.md"), "md")

	l, err := New(source(dir, map[string]string{"patterns": "*.rst"}))
	require.NoError(t, err)

	docs, err := l.Load(context.Background())
	require.NoError(t, err)
	require.Len(t, docs, 2)
	for _, d := range docs {
		assert.Contains(t, []string{"NOTES.RST", "notes.rst"}, d.Metadata["path"])
	}
}

func TestLoader_Load_MissingRoot(t *testing.T) {
	l, err := New(source(filepath.Join(t.TempDir(), "gone"), nil))
	require.NoError(t, err)

	_, err = l.Load(context.Background())
	assert.Error(t, err)
}

func TestLoader_Load_Cancelled(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "a.md"), "a")

	l, err := New(source(dir, nil))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = l.Load(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func waitSignal(t *testing.T, ch <-chan struct{}) {
	t.Helper()
	select {
	case _, ok := <-ch:
		require.True(t, ok, "channel closed before a change was reported")
	case <-time.After(3 * time.Second):
		t.Fatal("timeout waiting for change notification")
	}
}

func TestLoader_Watch(t *testing.T) {
	t.Run("reports new files", func(t *testing.T) {
		dir := t.TempDir()
		l, err := New(source(dir, nil))
		require.NoError(t, err)
		defer l.Close()

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		changes, err := l.Watch(ctx)
		require.NoError(t, err)

		writeFile(t, filepath.Join(dir, "new.md"), "fresh")
		waitSignal(t, changes)
	})

	t.Run("reports files in new subdirectories", func(t *testing.T) {
		dir := t.TempDir()
		l, err := New(source(dir, nil))
		require.NoError(t, err)
		defer l.Close()

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		changes, err := l.Watch(ctx)
		require.NoError(t, err)

		sub := filepath.Join(dir, "sub")
		require.NoError(t, os.Mkdir(sub, 0o755))
		waitSignal(t, changes)

		// Let the watcher register the new directory.
		time.Sleep(100 * time.Millisecond)
		writeFile(t, filepath.Join(sub, "deep.md"), "deep")
		waitSignal(t, changes)
	})

	t.Run("closes channel on cancel", func(t *testing.T) {
		l, err := New(source(t.TempDir(), nil))
		require.NoError(t, err)

		ctx, cancel := context.WithCancel(context.Background())
		changes, err := l.Watch(ctx)
		require.NoError(t, err)
		cancel()

		select {
		case _, ok := <-changes:
			assert.False(t, ok)
		case <-time.After(3 * time.Second):
			t.Fatal("channel not closed after cancel")
		}
		assert.NoError(t, l.Close())
	})

	t.Run("fails for missing root", func(t *testing.T) {
		l, err := New(source(filepath.Join(t.TempDir(), "gone"), nil))
		require.NoError(t, err)
		_, err = l.Watch(context.Background())
		assert.Error(t, err)
	})
}

func TestLoader_Relevant(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(dir, "newdir"), 0o755))
	l, err := New(source(dir, nil))
	require.NoError(t, err)

	tests := []struct {
		name string
		ev   fsnotify.Event
		want bool
	}{
		{"write matching file", fsnotify.Event{Name: filepath.Join(dir, "a.md"), Op: fsnotify.Write}, true},
		{"create matching file", fsnotify.Event{Name: filepath.Join(dir, "a.txt"), Op: fsnotify.Create}, true},
		{"remove matching file", fsnotify.Event{Name: filepath.Join(dir, "a.md"), Op: fsnotify.Remove}, true},
		{"write other extension", fsnotify.Event{Name: filepath.Join(dir, "a.png"), Op: fsnotify.Write}, false},
		{"chmod only", fsnotify.Event{Name: filepath.Join(dir, "a.md"), Op: fsnotify.Chmod}, false},
		{"hidden file", fsnotify.Event{Name: filepath.Join(dir, ".a.md"), Op: fsnotify.Write}, false},
		{"hidden directory", fsnotify.Event{Name: filepath.Join(dir, ".cache", "a.md"), Op: fsnotify.Write}, false},
		{"excluded directory", fsnotify.Event{Name: filepath.Join(dir, "node_modules", "a.md"), Op: fsnotify.Write}, false},
		{"outside root", fsnotify.Event{Name: filepath.Join(filepath.Dir(dir), "a.md"), Op: fsnotify.Write}, false},
		{"removed directory", fsnotify.Event{Name: filepath.Join(dir, "olddir"), Op: fsnotify.Remove}, true},
		{"created directory", fsnotify.Event{Name: filepath.Join(dir, "newdir"), Op: fsnotify.Create}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, l.relevant(tt.ev))
		})
	}
}

func TestDetectMIMEType(t *testing.T) {
	tests := []struct {
		filename     string
		expectedMIME string
	}{
		{"file", "text/plain"},
		{"doc.md", "text/markdown"},
		{"doc.markdown", "text/markdown"},
		{"notes.txt", "text/plain"},
		{"code.go", "text/x-go"},
		{"script.py", "text/x-python"},
		{"config.yaml", "text/yaml"},
		{"config.toml", "text/toml"},
		{"query.sql", "text/x-sql"},
		{"page.html", "text/html"},
		{"image.png", "image/png"},
		{"file.zzzzunknown", "application/octet-stream"},
		{"FILE.MD", "text/markdown"},
		{"File.Yaml", "text/yaml"},
	}
	for _, tt := range tests {
		t.Run(tt.filename, func(t *testing.T) {
			assert.Equal(t, tt.expectedMIME, detectMIMEType(tt.filename))
		})
	}

	t.Run("strips parameters", func(t *testing.T) {
		for _, file := range []string{"file.html", "file.css"} {
			assert.NotContains(t, detectMIMEType(file), ";")
		}
	})
}

func TestIsHidden(t *testing.T) {
	tests := []struct {
		path     string
		expected bool
	}{
		{".hidden", true},
		{"path/to/.hidden", true},
		{"/path/.hidden/file.txt", true},
		{"dir/.git/config", true},
		{".config/.cache/data", true},
		{"file.txt", false},
		{"path/to/file.txt", false},
		{".", false},
		{"..", false},
		{"path/./file", false},
		{"path/../file", false},
		{"", false},
		{"/", false},
		{"file.hidden", false},
		{"directory.name/file", false},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.expected, isHidden(tt.path))
		})
	}
}
