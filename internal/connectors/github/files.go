package github

import (
	"context"
	"encoding/base64"
	"fmt"
	"mime"
	"path"
	"path/filepath"
	"strings"

	"github.com/shelby-as-a-service/shelby/internal/core/domain"
	"github.com/shelby-as-a-service/shelby/internal/logger"
)

// MaxFileSize is the largest blob fetched (GitHub's Contents API limit).
const MaxFileSize = 1024 * 1024

// FetchFiles retrieves the matching files of a repository at a branch.
func FetchFiles(ctx context.Context, client *Client, cfg *Config, branch string) ([]domain.RawDocument, error) {
	tree, err := client.GetTree(ctx, cfg.Owner, cfg.Repo, branch)
	if err != nil {
		return nil, err
	}
	if tree.GetTruncated() {
		logger.Warn("Tree of %s/%s is truncated; some files will not be loaded", cfg.Owner, cfg.Repo)
	}

	var docs []domain.RawDocument
	for _, entry := range tree.Entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if entry.GetType() != "blob" {
			continue
		}

		p := entry.GetPath()
		if !cfg.underPath(p) || !matchesPatterns(p, cfg.FilePatterns) || isBinaryExtension(p) {
			continue
		}
		if entry.GetSize() > MaxFileSize {
			logger.Debug("Skipping %s: %d bytes exceeds limit", p, entry.GetSize())
			continue
		}

		content, err := fetchBlobContent(ctx, client, cfg.Owner, cfg.Repo, entry.GetSHA())
		if err != nil {
			if IsNotFound(err) {
				logger.Debug("Skipping %s: blob %s is gone", p, entry.GetSHA())
				continue
			}
			return nil, fmt.Errorf("fetch %s: %w", p, err)
		}

		name := path.Base(p)
		docs = append(docs, domain.RawDocument{
			URI:      buildFileURI(cfg.Owner, cfg.Repo, branch, p),
			Title:    strings.TrimSuffix(name, path.Ext(name)),
			MIMEType: detectFileMIMEType(p),
			Content:  content,
			Metadata: map[string]any{
				"owner":  cfg.Owner,
				"repo":   cfg.Repo,
				"branch": branch,
				"path":   p,
				"sha":    entry.GetSHA(),
			},
		})
	}
	return docs, nil
}

// fetchBlobContent fetches the content of a blob and decodes it.
func fetchBlobContent(ctx context.Context, client *Client, owner, repo, sha string) ([]byte, error) {
	blob, err := client.GetBlob(ctx, owner, repo, sha)
	if err != nil {
		return nil, err
	}

	if blob.GetEncoding() == "base64" {
		content := strings.ReplaceAll(blob.GetContent(), "\n", "")
		return base64.StdEncoding.DecodeString(content)
	}
	return []byte(blob.GetContent()), nil
}

// buildFileURI returns the web URL of a file.
func buildFileURI(owner, repo, branch, p string) string {
	return fmt.Sprintf("https://github.com/%s/%s/blob/%s/%s", owner, repo, branch, p)
}

// extMIMETypes maps file extensions to MIME types for common types not in Go's registry.
var extMIMETypes = map[string]string{
	".md": "text/markdown", ".markdown": "text/markdown", ".txt": "text/plain",
	".go": "text/x-go", ".py": "text/x-python", ".rs": "text/x-rust",
	".ts": "text/typescript", ".tsx": "text/typescript-jsx", ".jsx": "text/javascript-jsx",
	".yaml": "text/yaml", ".yml": "text/yaml", ".toml": "text/toml",
	".sh": "text/x-shellscript", ".bash": "text/x-shellscript",
	".sql": "text/x-sql", ".rst": "text/x-rst",
}

// detectFileMIMEType determines the MIME type from file extension.
func detectFileMIMEType(p string) string {
	ext := strings.ToLower(filepath.Ext(p))
	if ext == "" {
		return "text/plain"
	}
	if t, ok := extMIMETypes[ext]; ok {
		return t
	}
	if mimeType := mime.TypeByExtension(ext); mimeType != "" {
		if idx := strings.Index(mimeType, ";"); idx != -1 {
			mimeType = strings.TrimSpace(mimeType[:idx])
		}
		return mimeType
	}
	return "text/plain"
}

// matchesPatterns checks if a path matches any of the glob patterns,
// either by file name or by full path.
func matchesPatterns(p string, patterns []string) bool {
	if len(patterns) == 0 {
		return true
	}
	for _, pattern := range patterns {
		if matched, err := path.Match(pattern, path.Base(p)); err == nil && matched {
			return true
		}
		if matched, err := path.Match(pattern, p); err == nil && matched {
			return true
		}
	}
	return false
}

var binaryExts = map[string]bool{
	".exe": true, ".dll": true, ".so": true, ".dylib": true,
	".zip": true, ".tar": true, ".gz": true, ".bz2": true, ".7z": true,
	".png": true, ".jpg": true, ".jpeg": true, ".gif": true, ".ico": true, ".webp": true,
	".pdf": true, ".doc": true, ".docx": true, ".xls": true, ".xlsx": true,
	".mp3": true, ".mp4": true, ".avi": true, ".mov": true,
	".woff": true, ".woff2": true, ".ttf": true, ".eot": true,
	".bin": true, ".dat": true, ".db": true, ".sqlite": true,
	".pyc": true, ".class": true, ".o": true, ".a": true,
}

// isBinaryExtension checks if a file extension indicates a binary file.
func isBinaryExtension(p string) bool {
	return binaryExts[strings.ToLower(path.Ext(p))]
}
