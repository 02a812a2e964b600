package filesystem

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"mime"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/shelby-as-a-service/shelby/internal/core/domain"
	"github.com/shelby-as-a-service/shelby/internal/core/ports/driven"
	"github.com/shelby-as-a-service/shelby/internal/logger"
)

// Kind is the loader kind served by this package.
const Kind = "directory"

// MaxFileSize bounds the files read by Load. Larger files are skipped.
const MaxFileSize = 10 << 20

var (
	// DefaultPatterns selects text formats the normalisers understand.
	DefaultPatterns = []string{"*.md", "*.markdown", "*.txt", "*.html", "*.htm"}

	// DefaultExclude names directories that are never descended into.
	DefaultExclude = []string{".git", "node_modules"}
)

// Verify interface compliance.
var (
	_ driven.Loader  = (*Loader)(nil)
	_ driven.Watcher = (*Loader)(nil)
)

// Loader reads files below a local directory.
type Loader struct {
	root     string
	patterns []string
	exclude  map[string]bool

	mu      sync.Mutex
	watcher *fsnotify.Watcher
}

// New creates a directory loader from a source. The directory comes from the
// "path" config key, falling back to a file:// source URI.
func New(source domain.Source) (*Loader, error) {
	root := source.Loader.Get("path", "")
	if root == "" {
		root = strings.TrimPrefix(source.URI, "file://")
	}
	if root == "" {
		return nil, fmt.Errorf("%w: directory loader needs a path", domain.ErrInvalidInput)
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
	}

	l := &Loader{
		root:     abs,
		patterns: splitList(source.Loader.Get("patterns", ""), DefaultPatterns),
		exclude:  make(map[string]bool),
	}
	for _, name := range splitList(source.Loader.Get("exclude", ""), DefaultExclude) {
		l.exclude[name] = true
	}
	return l, nil
}

// Builder adapts New to driven.LoaderBuilder.
func Builder(source domain.Source) (driven.Loader, error) {
	l, err := New(source)
	if err != nil {
		return nil, err
	}
	return l, nil
}

// Kind returns the loader kind.
func (l *Loader) Kind() string {
	return Kind
}

// Root returns the absolute directory read by the loader.
func (l *Loader) Root() string {
	return l.root
}

// Validate checks that the root exists and is a directory.
func (l *Loader) Validate(_ context.Context) error {
	info, err := os.Stat(l.root)
	if errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("%w: directory %s", domain.ErrNotFound, l.root)
	}
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("%w: %s is not a directory", domain.ErrInvalidInput, l.root)
	}
	return nil
}

// Load returns every matching file below the root in lexical order.
// Hidden files, excluded directories and oversized files are skipped.
func (l *Loader) Load(ctx context.Context) ([]domain.RawDocument, error) {
	var docs []domain.RawDocument
	err := filepath.WalkDir(l.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == l.root {
				return err
			}
			logger.Warn("Skipping %s: %v", path, err)
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() {
			if path != l.root && l.skipDir(d.Name()) {
				return filepath.SkipDir
			}
			return nil
		}
		if isHidden(d.Name()) || !d.Type().IsRegular() || !l.matches(d.Name()) {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return nil
		}
		if info.Size() > MaxFileSize {
			logger.Debug("Skipping %s: %d bytes exceeds limit", path, info.Size())
			return nil
		}
		content, err := os.ReadFile(path)
		if err != nil {
			logger.Warn("Skipping %s: %v", path, err)
			return nil
		}

		rel, _ := filepath.Rel(l.root, path)
		docs = append(docs, domain.RawDocument{
			URI:        "file://" + filepath.ToSlash(path),
			Title:      strings.TrimSuffix(d.Name(), filepath.Ext(d.Name())),
			MIMEType:   detectMIMEType(d.Name()),
			Content:    content,
			ModifiedAt: info.ModTime(),
			Metadata: map[string]any{
				"path": filepath.ToSlash(rel),
				"size": info.Size(),
			},
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", l.root, err)
	}
	return docs, nil
}

// Watch signals whenever a matching file below the root changes.
// Bursts collapse into a single pending signal. The channel is closed
// once ctx is done.
func (l *Loader) Watch(ctx context.Context) (<-chan struct{}, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	if err := l.addRecursive(w, l.root); err != nil {
		w.Close()
		return nil, err
	}

	l.mu.Lock()
	if l.watcher != nil {
		l.watcher.Close()
	}
	l.watcher = w
	l.mu.Unlock()

	out := make(chan struct{}, 1)
	go func() {
		defer close(out)
		defer w.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if ev.Has(fsnotify.Create) && l.isNewDir(ev.Name) {
					if err := l.addRecursive(w, ev.Name); err != nil {
						logger.Warn("Watching %s: %v", ev.Name, err)
					}
				}
				if !l.relevant(ev) {
					continue
				}
				select {
				case out <- struct{}{}:
				default:
				}
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				logger.Warn("Watcher error on %s: %v", l.root, err)
			}
		}
	}()
	return out, nil
}

// Close stops an active watcher.
func (l *Loader) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.watcher == nil {
		return nil
	}
	err := l.watcher.Close()
	l.watcher = nil
	return err
}

func (l *Loader) addRecursive(w *fsnotify.Watcher, dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if path != l.root && l.skipDir(d.Name()) {
			return filepath.SkipDir
		}
		if err := w.Add(path); err != nil {
			return fmt.Errorf("watch %s: %w", path, err)
		}
		return nil
	})
}

func (l *Loader) isNewDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

// relevant reports whether an event can change what Load returns.
func (l *Loader) relevant(ev fsnotify.Event) bool {
	if ev.Op == fsnotify.Chmod {
		return false
	}
	rel, err := filepath.Rel(l.root, ev.Name)
	if err != nil || strings.HasPrefix(rel, "..") {
		return false
	}
	if isHidden(rel) {
		return false
	}
	for _, part := range strings.Split(filepath.ToSlash(rel), "/") {
		if l.exclude[part] {
			return false
		}
	}
	name := filepath.Base(ev.Name)
	if l.matches(name) {
		return true
	}
	// A removed or created directory may carry matching files with it.
	if ev.Has(fsnotify.Remove) || ev.Has(fsnotify.Rename) {
		return filepath.Ext(name) == ""
	}
	return ev.Has(fsnotify.Create) && l.isNewDir(ev.Name)
}

func (l *Loader) skipDir(name string) bool {
	return isHidden(name) || l.exclude[name]
}

func (l *Loader) matches(name string) bool {
	lower := strings.ToLower(name)
	for _, p := range l.patterns {
		if ok, err := filepath.Match(strings.ToLower(p), lower); err == nil && ok {
			return true
		}
	}
	return false
}

// isHidden reports whether any element of path starts with a dot.
// "." and ".." are not hidden.
func isHidden(path string) bool {
	for _, part := range strings.Split(filepath.ToSlash(path), "/") {
		if part == "" || part == "." || part == ".." {
			continue
		}
		if strings.HasPrefix(part, ".") {
			return true
		}
	}
	return false
}

// extMIMETypes covers text formats missing from Go's mime registry.
var extMIMETypes = map[string]string{
	".md": "text/markdown", ".markdown": "text/markdown",
	".go": "text/x-go", ".py": "text/x-python", ".rs": "text/x-rust",
	".ts": "text/typescript", ".tsx": "text/typescript-jsx", ".jsx": "text/javascript-jsx",
	".yaml": "text/yaml", ".yml": "text/yaml", ".toml": "text/toml",
	".sh": "text/x-shellscript", ".bash": "text/x-shellscript",
	".sql": "text/x-sql", ".txt": "text/plain",
}

// detectMIMEType maps a file name to a MIME type without parameters.
func detectMIMEType(name string) string {
	ext := strings.ToLower(filepath.Ext(name))
	if ext == "" {
		return "text/plain"
	}
	if t, ok := extMIMETypes[ext]; ok {
		return t
	}
	if t := mime.TypeByExtension(ext); t != "" {
		if idx := strings.Index(t, ";"); idx != -1 {
			t = strings.TrimSpace(t[:idx])
		}
		return t
	}
	return "application/octet-stream"
}

func splitList(raw string, fallback []string) []string {
	if strings.TrimSpace(raw) == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
