package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // SQLite driver

	"github.com/shelby-as-a-service/shelby/internal/adapters/driven/storage/sqlite/migrations"
	"github.com/shelby-as-a-service/shelby/internal/core/domain"
	"github.com/shelby-as-a-service/shelby/internal/core/ports/driven"
)

// Ensure Store implements the interface.
var _ driven.Catalog = (*Store)(nil)

// DatabaseFile is the catalog file name inside the data directory.
const DatabaseFile = "catalog.db"

// Store is the SQLite-backed catalog.
type Store struct {
	db   *sql.DB
	path string
}

// queryer is satisfied by *sql.DB and *sql.Tx.
type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// NewStore opens (and migrates) the catalog in the specified data directory.
// If dataDir is empty, defaults to ~/.shelby/data.
func NewStore(dataDir string) (*Store, error) {
	if dataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("getting home directory: %w", err)
		}
		dataDir = filepath.Join(home, ".shelby", "data")
	}

	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, DatabaseFile)

	// WAL lets readers proceed while an ingestion pass writes. Transactions
	// take the write lock up front so read-then-write never upgrades.
	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)&_txlock=immediate")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Single writer; parallel sources queue on the pool instead of failing with SQLITE_BUSY.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	s := &Store{
		db:   db,
		path: dbPath,
	}

	if err := s.migrate(migrations.FS); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// migrate runs all pending migrations, each in its own transaction.
func (s *Store) migrate(fsys embed.FS) error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("creating schema_migrations table: %w", err)
	}

	var currentVersion int
	row := s.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations")
	if err := row.Scan(&currentVersion); err != nil {
		return fmt.Errorf("getting current version: %w", err)
	}

	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}

	var upFiles []string
	for _, entry := range entries {
		name := entry.Name()
		if strings.HasSuffix(name, ".up.sql") {
			upFiles = append(upFiles, name)
		}
	}
	sort.Strings(upFiles)

	for _, name := range upFiles {
		// "001_initial.up.sql" -> 1
		var version int
		if _, err := fmt.Sscanf(name, "%d_", &version); err != nil {
			continue
		}
		if version <= currentVersion {
			continue
		}

		content, err := fs.ReadFile(fsys, name)
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", name, err)
		}

		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("beginning migration %s: %w", name, err)
		}
		if _, err := tx.Exec(string(content)); err != nil {
			tx.Rollback() //nolint:errcheck
			return fmt.Errorf("executing migration %s: %w", name, err)
		}
		if _, err := tx.Exec("INSERT INTO schema_migrations (version) VALUES (?)", version); err != nil {
			tx.Rollback() //nolint:errcheck
			return fmt.Errorf("recording migration %s: %w", name, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("committing migration %s: %w", name, err)
		}
	}

	return nil
}

// ==================== Domains ====================

// SaveDomain creates or updates a domain by name.
func (s *Store) SaveDomain(ctx context.Context, d *domain.Domain) error {
	if d.Name == "" {
		return fmt.Errorf("%w: domain name is required", domain.ErrInvalidInput)
	}
	loaderConfig, err := marshalJSON(d.Loader.Config)
	if err != nil {
		return err
	}
	processor, err := marshalJSON(d.Processor)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	now := time.Now().UTC()
	var id string
	var createdAt time.Time
	err = tx.QueryRowContext(ctx, "SELECT id, created_at FROM domains WHERE name = ?", d.Name).Scan(&id, &createdAt)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		if d.ID == "" {
			d.ID = uuid.NewString()
		}
		d.CreatedAt = now
	case err != nil:
		return fmt.Errorf("looking up domain: %w", err)
	default:
		d.ID = id
		d.CreatedAt = createdAt
	}
	d.UpdatedAt = now

	_, err = tx.ExecContext(ctx, `
		INSERT INTO domains (id, name, description, loader_kind, loader_config, processor, vector_db, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			description = excluded.description,
			loader_kind = excluded.loader_kind,
			loader_config = excluded.loader_config,
			processor = excluded.processor,
			vector_db = excluded.vector_db,
			updated_at = excluded.updated_at
	`, d.ID, d.Name, d.Description, d.Loader.Kind, loaderConfig, processor, d.Database, d.CreatedAt, d.UpdatedAt)
	if err != nil {
		return fmt.Errorf("saving domain: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// GetDomain retrieves a domain by name, with its sources.
func (s *Store) GetDomain(ctx context.Context, name string) (*domain.Domain, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, description, loader_kind, loader_config, processor, vector_db, created_at, updated_at
		FROM domains WHERE name = ?
	`, name)

	d, err := scanDomain(row)
	if err != nil {
		return nil, err
	}
	if d.Sources, err = s.listSources(ctx, s.db, d.ID); err != nil {
		return nil, err
	}
	return d, nil
}

// ListDomains returns all domains ordered by name, with their sources.
func (s *Store) ListDomains(ctx context.Context) ([]domain.Domain, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, description, loader_kind, loader_config, processor, vector_db, created_at, updated_at
		FROM domains ORDER BY name
	`)
	if err != nil {
		return nil, fmt.Errorf("querying domains: %w", err)
	}
	defer rows.Close()

	var domains []domain.Domain //nolint:prealloc // size unknown from query
	for rows.Next() {
		d, err := scanDomain(rows)
		if err != nil {
			return nil, err
		}
		domains = append(domains, *d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating domains: %w", err)
	}
	rows.Close()

	for i := range domains {
		if domains[i].Sources, err = s.listSources(ctx, s.db, domains[i].ID); err != nil {
			return nil, err
		}
	}
	return domains, nil
}

// DeleteDomain removes a domain once it has no sources.
func (s *Store) DeleteDomain(ctx context.Context, name string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	var id string
	if err := tx.QueryRowContext(ctx, "SELECT id FROM domains WHERE name = ?", name).Scan(&id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.ErrNotFound
		}
		return fmt.Errorf("looking up domain: %w", err)
	}

	var sources int
	if err := tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM sources WHERE domain_id = ?", id).Scan(&sources); err != nil {
		return fmt.Errorf("counting sources: %w", err)
	}
	if sources > 0 {
		return fmt.Errorf("domain %s: %w", name, domain.ErrHasChildren)
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM domains WHERE id = ?", id); err != nil {
		return fmt.Errorf("deleting domain: %w", err)
	}
	return tx.Commit()
}

// ==================== Sources ====================

// SaveSource creates or updates a source by (domain, name).
// An unset LastUpdated keeps the stored value.
func (s *Store) SaveSource(ctx context.Context, src *domain.Source) error {
	if src.Name == "" || src.DomainID == "" {
		return fmt.Errorf("%w: source name and domain are required", domain.ErrInvalidInput)
	}
	loaderConfig, err := marshalJSON(src.Loader.Config)
	if err != nil {
		return err
	}
	processor, err := marshalJSON(src.Processor)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	var exists int
	if err := tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM domains WHERE id = ?", src.DomainID).Scan(&exists); err != nil {
		return fmt.Errorf("looking up domain: %w", err)
	}
	if exists == 0 {
		return fmt.Errorf("domain %s: %w", src.DomainID, domain.ErrNotFound)
	}

	now := time.Now().UTC()
	var (
		id          string
		createdAt   time.Time
		lastUpdated sql.NullTime
	)
	err = tx.QueryRowContext(ctx,
		"SELECT id, created_at, last_updated FROM sources WHERE domain_id = ? AND name = ?",
		src.DomainID, src.Name).Scan(&id, &createdAt, &lastUpdated)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		if src.ID == "" {
			src.ID = uuid.NewString()
		}
		src.CreatedAt = now
	case err != nil:
		return fmt.Errorf("looking up source: %w", err)
	default:
		src.ID = id
		src.CreatedAt = createdAt
		if src.LastUpdated.IsZero() && lastUpdated.Valid {
			src.LastUpdated = lastUpdated.Time
		}
	}
	src.UpdatedAt = now

	_, err = tx.ExecContext(ctx, `
		INSERT INTO sources (id, domain_id, name, uri, loader_kind, loader_config, processor, vector_db,
			doc_type, update_frequency, batch_update, last_updated, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			uri = excluded.uri,
			loader_kind = excluded.loader_kind,
			loader_config = excluded.loader_config,
			processor = excluded.processor,
			vector_db = excluded.vector_db,
			doc_type = excluded.doc_type,
			update_frequency = excluded.update_frequency,
			batch_update = excluded.batch_update,
			last_updated = excluded.last_updated,
			updated_at = excluded.updated_at
	`, src.ID, src.DomainID, src.Name, src.URI, src.Loader.Kind, loaderConfig, processor, src.Database,
		src.DocType, int64(src.UpdateFrequency), src.BatchUpdate, nullTime(src.LastUpdated),
		src.CreatedAt, src.UpdatedAt)
	if err != nil {
		return fmt.Errorf("saving source: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// GetSource retrieves a source by domain and source name.
func (s *Store) GetSource(ctx context.Context, domainName, sourceName string) (*domain.Source, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+sourceColumns+`
		FROM sources s JOIN domains d ON d.id = s.domain_id
		WHERE d.name = ? AND s.name = ?
	`, domainName, sourceName)
	return scanSource(row)
}

// ListSources returns the sources of a domain ordered by name.
func (s *Store) ListSources(ctx context.Context, domainName string) ([]domain.Source, error) {
	var id string
	err := s.db.QueryRowContext(ctx, "SELECT id FROM domains WHERE name = ?", domainName).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("looking up domain: %w", err)
	}
	return s.listSources(ctx, s.db, id)
}

// DeleteSource removes a source once it has no documents.
func (s *Store) DeleteSource(ctx context.Context, sourceID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	var exists, documents int
	if err := tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM sources WHERE id = ?", sourceID).Scan(&exists); err != nil {
		return fmt.Errorf("looking up source: %w", err)
	}
	if exists == 0 {
		return domain.ErrNotFound
	}
	if err := tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM documents WHERE source_id = ?", sourceID).Scan(&documents); err != nil {
		return fmt.Errorf("counting documents: %w", err)
	}
	if documents > 0 {
		return fmt.Errorf("source %s: %w", sourceID, domain.ErrHasChildren)
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM sources WHERE id = ?", sourceID); err != nil {
		return fmt.Errorf("deleting source: %w", err)
	}
	return tx.Commit()
}

// MarkSourceUpdated records a fully successful ingestion pass.
func (s *Store) MarkSourceUpdated(ctx context.Context, sourceID string, at time.Time) error {
	res, err := s.db.ExecContext(ctx, "UPDATE sources SET last_updated = ? WHERE id = ?", at.UTC(), sourceID)
	if err != nil {
		return fmt.Errorf("marking source updated: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("marking source updated: %w", err)
	}
	if n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// ==================== Documents and chunks ====================

// ListDocuments returns the documents of a source ordered by URI, without chunks.
func (s *Store) ListDocuments(ctx context.Context, sourceID string) ([]domain.Document, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, source_id, uri, title, content, input_type, doc_type, token_count,
			published_at, created_at, updated_at
		FROM documents WHERE source_id = ?
		ORDER BY uri
	`, sourceID)
	if err != nil {
		return nil, fmt.Errorf("querying documents: %w", err)
	}
	defer rows.Close()

	var docs []domain.Document //nolint:prealloc // size unknown from query
	for rows.Next() {
		var (
			doc         domain.Document
			publishedAt sql.NullTime
		)
		if err := rows.Scan(&doc.ID, &doc.SourceID, &doc.URI, &doc.Title, &doc.Content,
			&doc.InputType, &doc.DocType, &doc.TokenCount, &publishedAt,
			&doc.CreatedAt, &doc.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scanning document: %w", err)
		}
		if publishedAt.Valid {
			doc.PublishedAt = publishedAt.Time
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating documents: %w", err)
	}
	return docs, nil
}

// GetPreviousChunkIDs returns the chunk IDs recorded for a document.
// An unknown document has none.
func (s *Store) GetPreviousChunkIDs(ctx context.Context, documentID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id FROM chunks WHERE document_id = ? ORDER BY sequence", documentID)
	if err != nil {
		return nil, fmt.Errorf("querying chunk ids: %w", err)
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning chunk id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating chunk ids: %w", err)
	}
	return ids, nil
}

// GetChunks returns the chunk rows of a document ordered by sequence.
func (s *Store) GetChunks(ctx context.Context, documentID string) ([]domain.Chunk, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, document_id, sequence, content, token_count, content_hash, vector_db, metadata
		FROM chunks WHERE document_id = ?
		ORDER BY sequence
	`, documentID)
	if err != nil {
		return nil, fmt.Errorf("querying chunks: %w", err)
	}
	defer rows.Close()

	var chunks []domain.Chunk //nolint:prealloc // size unknown from query
	for rows.Next() {
		var (
			ch           domain.Chunk
			metadataJSON string
		)
		if err := rows.Scan(&ch.ID, &ch.DocumentID, &ch.Sequence, &ch.Content,
			&ch.TokenCount, &ch.ContentHash, &ch.Database, &metadataJSON); err != nil {
			return nil, fmt.Errorf("scanning chunk: %w", err)
		}
		if err := json.Unmarshal([]byte(metadataJSON), &ch.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshaling chunk metadata: %w", err)
		}
		chunks = append(chunks, ch)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating chunks: %w", err)
	}
	return chunks, nil
}

// ReplaceChunks upserts the document and replaces its chunk rows in one
// transaction. Any failure rolls everything back.
func (s *Store) ReplaceChunks(ctx context.Context, doc *domain.Document, chunks []domain.Chunk) error {
	if err := s.replaceChunks(ctx, doc, chunks); err != nil {
		return &domain.CatalogTransactionError{DocumentURI: doc.URI, Err: err}
	}
	return nil
}

func (s *Store) replaceChunks(ctx context.Context, doc *domain.Document, chunks []domain.Chunk) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	var exists int
	if err := tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM sources WHERE id = ?", doc.SourceID).Scan(&exists); err != nil {
		return fmt.Errorf("looking up source: %w", err)
	}
	if exists == 0 {
		return fmt.Errorf("source %s: %w", doc.SourceID, domain.ErrNotFound)
	}

	now := time.Now().UTC()
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = now
	}
	doc.UpdatedAt = now

	_, err = tx.ExecContext(ctx, `
		INSERT INTO documents (id, source_id, uri, title, content, input_type, doc_type, token_count,
			published_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			uri = excluded.uri,
			title = excluded.title,
			content = excluded.content,
			input_type = excluded.input_type,
			doc_type = excluded.doc_type,
			token_count = excluded.token_count,
			published_at = excluded.published_at,
			updated_at = excluded.updated_at
	`, doc.ID, doc.SourceID, doc.URI, doc.Title, doc.Content, doc.InputType, doc.DocType,
		doc.TokenCount, nullTime(doc.PublishedAt), doc.CreatedAt, doc.UpdatedAt)
	if err != nil {
		return fmt.Errorf("saving document: %w", err)
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM chunks WHERE document_id = ?", doc.ID); err != nil {
		return fmt.Errorf("deleting chunks: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO chunks (id, document_id, sequence, content, token_count, content_hash, vector_db, metadata)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("preparing statement: %w", err)
	}
	defer stmt.Close()

	for _, ch := range chunks {
		metadataJSON, err := marshalJSON(ch.Metadata)
		if err != nil {
			return err
		}
		if _, err := stmt.ExecContext(ctx, ch.ID, doc.ID, ch.Sequence, ch.Content,
			ch.TokenCount, ch.ContentHash, ch.Database, metadataJSON); err != nil {
			return fmt.Errorf("saving chunk %s: %w", ch.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// DeleteDocument removes a document and, by cascade, its chunk rows.
func (s *Store) DeleteDocument(ctx context.Context, documentID string) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM documents WHERE id = ?", documentID)
	if err != nil {
		return fmt.Errorf("deleting document: %w", err)
	}
	return nil
}

// CountSource returns the number of documents and chunk rows of a source.
func (s *Store) CountSource(ctx context.Context, sourceID string) (documents, chunks int, err error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM documents WHERE source_id = ?),
			(SELECT COUNT(*) FROM chunks c JOIN documents d ON d.id = c.document_id WHERE d.source_id = ?)
	`, sourceID, sourceID)
	if err := row.Scan(&documents, &chunks); err != nil {
		return 0, 0, fmt.Errorf("counting source: %w", err)
	}
	return documents, chunks, nil
}

// ==================== Helper Functions ====================

const sourceColumns = `s.id, s.domain_id, s.name, s.uri, s.loader_kind, s.loader_config, s.processor,
	s.vector_db, s.doc_type, s.update_frequency, s.batch_update, s.last_updated, s.created_at, s.updated_at`

// scanner is satisfied by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func (s *Store) listSources(ctx context.Context, q queryer, domainID string) ([]domain.Source, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT `+sourceColumns+`
		FROM sources s WHERE s.domain_id = ?
		ORDER BY s.name
	`, domainID)
	if err != nil {
		return nil, fmt.Errorf("querying sources: %w", err)
	}
	defer rows.Close()

	var sources []domain.Source //nolint:prealloc // size unknown from query
	for rows.Next() {
		src, err := scanSource(rows)
		if err != nil {
			return nil, err
		}
		sources = append(sources, *src)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating sources: %w", err)
	}
	return sources, nil
}

func scanDomain(row scanner) (*domain.Domain, error) {
	var (
		d                       domain.Domain
		loaderConfig, processor string
	)
	if err := row.Scan(&d.ID, &d.Name, &d.Description, &d.Loader.Kind, &loaderConfig,
		&processor, &d.Database, &d.CreatedAt, &d.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("scanning domain: %w", err)
	}
	if err := json.Unmarshal([]byte(loaderConfig), &d.Loader.Config); err != nil {
		return nil, fmt.Errorf("unmarshaling loader config: %w", err)
	}
	if err := json.Unmarshal([]byte(processor), &d.Processor); err != nil {
		return nil, fmt.Errorf("unmarshaling processor settings: %w", err)
	}
	return &d, nil
}

func scanSource(row scanner) (*domain.Source, error) {
	var (
		src                     domain.Source
		loaderConfig, processor string
		frequency               int64
		lastUpdated             sql.NullTime
	)
	if err := row.Scan(&src.ID, &src.DomainID, &src.Name, &src.URI, &src.Loader.Kind, &loaderConfig,
		&processor, &src.Database, &src.DocType, &frequency, &src.BatchUpdate, &lastUpdated,
		&src.CreatedAt, &src.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("scanning source: %w", err)
	}
	if err := json.Unmarshal([]byte(loaderConfig), &src.Loader.Config); err != nil {
		return nil, fmt.Errorf("unmarshaling loader config: %w", err)
	}
	if err := json.Unmarshal([]byte(processor), &src.Processor); err != nil {
		return nil, fmt.Errorf("unmarshaling processor settings: %w", err)
	}
	src.UpdateFrequency = time.Duration(frequency)
	if lastUpdated.Valid {
		src.LastUpdated = lastUpdated.Time
	}
	return &src, nil
}

// marshalJSON encodes v, storing nil maps as an empty object.
func marshalJSON(v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("marshalling json: %w", err)
	}
	if string(data) == "null" {
		return "{}", nil
	}
	return string(data), nil
}

// nullTime stores the zero time as NULL.
func nullTime(t time.Time) sql.NullTime {
	if t.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}
