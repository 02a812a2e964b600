package services

import (
	"context"
	"fmt"
	"net/url"
	"path"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/shelby-as-a-service/shelby/internal/chunker"
	"github.com/shelby-as-a-service/shelby/internal/core/domain"
	"github.com/shelby-as-a-service/shelby/internal/core/ports/driven"
	"github.com/shelby-as-a-service/shelby/internal/logger"
)

// DefaultProcessorSettings are used when neither the source nor its domain sets a value.
var DefaultProcessorSettings = domain.ProcessorSettings{
	MinLength:      150,
	GoalLength:     chunker.DefaultGoalLength,
	MaxLength:      chunker.DefaultMaxLength,
	OverlapPercent: 15,
}

var excessNewlines = regexp.MustCompile(`\n{3,}`)

// ProcessInput is one source's freshly loaded documents.
type ProcessInput struct {
	Domain    *domain.Domain
	Source    *domain.Source
	Documents []domain.RawDocument

	// Reembed disables the unchanged-chunk shortcut.
	Reembed bool
}

// ProcessedDocument is a document with its new chunks and its diff against the catalog.
type ProcessedDocument struct {
	// Document carries the new chunks in sequence order.
	Document domain.Document

	// Previous holds the catalog rows recorded before this pass.
	Previous []domain.Chunk

	// StaleIDs are previous chunk IDs absent from the new chunk set.
	StaleIDs []string

	// Unchanged marks new chunk IDs whose catalog row already has the same hash.
	Unchanged map[string]bool

	// Pruned is set for catalog documents missing from the load.
	Pruned bool

	// Dropped is set for loaded documents that no longer yield any chunk,
	// such as those now below the minimum length. Their catalog rows go stale.
	Dropped bool
}

// Changed returns the chunks that need embedding and upserting.
func (p *ProcessedDocument) Changed() []domain.Chunk {
	var out []domain.Chunk
	for _, ch := range p.Document.Chunks {
		if !p.Unchanged[ch.ID] {
			out = append(out, ch)
		}
	}
	return out
}

// Idle reports whether the document needs no store or catalog work.
func (p *ProcessedDocument) Idle() bool {
	return len(p.Previous) > 0 && len(p.StaleIDs) == 0 && len(p.Changed()) == 0
}

// ProcessResult is the output of one processing pass.
type ProcessResult struct {
	// Documents holds processed and pruned documents.
	Documents []*ProcessedDocument

	// TooSmall counts documents skipped for being below the minimum length.
	TooSmall int

	// Pruned counts catalog documents missing from the load.
	Pruned int

	// Failures lists documents that could not be cleaned or diffed.
	Failures []domain.Failure

	// Tokens summarises the token counts of the new chunks.
	Tokens domain.TokenStats
}

// StaleIDs returns every stale chunk ID of the pass.
func (r *ProcessResult) StaleIDs() []string {
	var ids []string
	for _, d := range r.Documents {
		ids = append(ids, d.StaleIDs...)
	}
	return ids
}

// Processor turns raw documents into chunk records and computes their diff
// against the catalog.
type Processor struct {
	normalisers driven.NormaliserRegistry
	tokenizer   driven.Tokenizer
	catalog     driven.Catalog
	defaults    domain.ProcessorSettings
	now         func() time.Time
}

// NewProcessor creates a processor. Zero fields of defaults fall back to
// DefaultProcessorSettings.
func NewProcessor(
	normalisers driven.NormaliserRegistry,
	tokenizer driven.Tokenizer,
	catalog driven.Catalog,
	defaults domain.ProcessorSettings,
) *Processor {
	return &Processor{
		normalisers: normalisers,
		tokenizer:   tokenizer,
		catalog:     catalog,
		defaults:    defaults.Merge(DefaultProcessorSettings),
		now:         time.Now,
	}
}

// Settings resolves the effective settings of a source: source, then domain, then defaults.
func (p *Processor) Settings(d *domain.Domain, s *domain.Source) domain.ProcessorSettings {
	return s.Processor.Merge(d.Processor).Merge(p.defaults)
}

// Process cleans, filters and chunks the documents of one source and diffs
// them against the catalog. Failures of single documents are recorded in the
// result; only misconfiguration and catalog listing errors are returned.
//
//nolint:gocognit // Sequential pipeline stages per document
func (p *Processor) Process(ctx context.Context, in ProcessInput) (*ProcessResult, error) {
	if in.Domain == nil || in.Source == nil {
		return nil, fmt.Errorf("%w: process needs a domain and a source", domain.ErrInvalidInput)
	}
	settings := p.Settings(in.Domain, in.Source)
	if err := settings.Validate(); err != nil {
		return nil, fmt.Errorf("source %s: %w", in.Source.Name, err)
	}
	splitter, err := chunker.New(p.tokenizer,
		chunker.WithGoalLength(settings.GoalLength),
		chunker.WithMaxLength(settings.MaxLength),
		chunker.WithOverlap(settings.Overlap()),
	)
	if err != nil {
		return nil, fmt.Errorf("source %s: %w", in.Source.Name, err)
	}

	existing, err := p.catalog.ListDocuments(ctx, in.Source.ID)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}

	result := &ProcessResult{}
	seen := make(map[string]bool, len(in.Documents))
	known := make(map[string]domain.Document, len(existing))
	for _, d := range existing {
		known[d.ID] = d
	}

	for i := range in.Documents {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		raw := &in.Documents[i]
		docID := DocumentID(in.Domain.Name, in.Source.Name, raw.URI)
		if seen[docID] {
			logger.Debug("Skipping duplicate document %s", raw.URI)
			continue
		}
		// Failed and too-small documents still count as present so they are never pruned.
		seen[docID] = true

		ingest, err := p.normalise(ctx, in.Source, raw)
		if err != nil {
			logger.Warn("Failed to clean %s: %v", raw.URI, err)
			result.Failures = append(result.Failures, domain.Failure{
				Stage: domain.StageClean, ID: raw.URI, Reason: err.Error(),
			})
			continue
		}
		if ingest.ContentTokens < settings.MinLength {
			logger.Debug("Document too small: %s (%d tokens)", raw.URI, ingest.ContentTokens)
			result.TooSmall++
			if old, ok := known[docID]; ok {
				p.drop(ctx, old, result)
			}
			continue
		}

		previous, err := p.catalog.GetChunks(ctx, docID)
		if err != nil {
			result.Failures = append(result.Failures, domain.Failure{
				Stage: domain.StageCatalog, ID: raw.URI, Reason: err.Error(),
			})
			continue
		}

		doc := p.buildDocument(docID, in, ingest, splitter, &result.Tokens)
		if len(doc.Chunks) == 0 && len(previous) == 0 {
			continue
		}
		pd := diff(doc, previous, in.Reembed)
		pd.Dropped = len(doc.Chunks) == 0
		result.Documents = append(result.Documents, pd)
	}

	if settings.ShouldPrune() {
		if len(in.Documents) == 0 && len(existing) > 0 {
			logger.Warn("Source %s returned no documents; keeping %d catalog documents", in.Source.Name, len(existing))
		} else {
			for _, old := range existing {
				if seen[old.ID] {
					continue
				}
				previous, err := p.catalog.GetChunks(ctx, old.ID)
				if err != nil {
					result.Failures = append(result.Failures, domain.Failure{
						Stage: domain.StageCatalog, ID: old.URI, Reason: err.Error(),
					})
					continue
				}
				logger.Debug("Pruning missing document %s", old.URI)
				result.Pruned++
				result.Documents = append(result.Documents, &ProcessedDocument{
					Document: old,
					Previous: previous,
					StaleIDs: chunkIDs(previous),
					Pruned:   true,
				})
			}
		}
	}

	logger.Info("Processed %d documents for %s (%d too small, %d failed, %d pruned)",
		len(in.Documents), in.Source.Name, result.TooSmall, len(result.Failures), result.Pruned)
	if result.Tokens.Count > 0 {
		logger.Info("Chunk tokens: min %d, avg %d, max %d, total %d",
			result.Tokens.Min, result.Tokens.Avg(), result.Tokens.Max, result.Tokens.Total)
	}
	return result, nil
}

// drop schedules every catalog chunk of a document that stays loaded but no
// longer produces chunks for deletion.
func (p *Processor) drop(ctx context.Context, old domain.Document, result *ProcessResult) {
	previous, err := p.catalog.GetChunks(ctx, old.ID)
	if err != nil {
		result.Failures = append(result.Failures, domain.Failure{
			Stage: domain.StageCatalog, ID: old.URI, Reason: err.Error(),
		})
		return
	}
	if len(previous) == 0 {
		return
	}
	logger.Debug("Dropping %d chunks of %s", len(previous), old.URI)
	result.Documents = append(result.Documents, &ProcessedDocument{
		Document: old,
		Previous: previous,
		StaleIDs: chunkIDs(previous),
		Dropped:  true,
	})
}

// normalise turns a raw document into cleaned text with a title.
func (p *Processor) normalise(ctx context.Context, source *domain.Source, raw *domain.RawDocument) (*domain.IngestDoc, error) {
	res, err := p.normalisers.Normalise(ctx, raw)
	if err != nil {
		return nil, err
	}
	title := strings.TrimSpace(res.Title)
	if title == "" {
		title = FallbackTitle(source.Name, raw.URI)
	}
	content := Clean(res.Content)

	return &domain.IngestDoc{
		Title:           title,
		URI:             raw.URI,
		InputType:       inputType(raw.MIMEType),
		DocType:         source.DocType,
		PrecleanContent: res.Content,
		Content:         content,
		PrecleanTokens:  p.tokenizer.Count(res.Content),
		ContentTokens:   p.tokenizer.Count(content),
		PublishedAt:     raw.PublishedAt,
		ModifiedAt:      raw.ModifiedAt,
		Metadata:        raw.Metadata,
	}, nil
}

func (p *Processor) buildDocument(
	docID string,
	in ProcessInput,
	ingest *domain.IngestDoc,
	splitter *chunker.Splitter,
	tokens *domain.TokenStats,
) domain.Document {
	now := p.now()
	doc := domain.Document{
		ID:          docID,
		SourceID:    in.Source.ID,
		URI:         ingest.URI,
		Title:       ingest.Title,
		Content:     ingest.Content,
		InputType:   ingest.InputType,
		DocType:     ingest.DocType,
		TokenCount:  ingest.ContentTokens,
		PublishedAt: ingest.PublishedAt,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	database := in.Source.Database
	if database == "" {
		database = in.Domain.Database
	}

	for seq, text := range splitter.Split(ingest.Content) {
		count := p.tokenizer.Count(text)
		tokens.Add(count)
		meta := map[string]string{
			domain.MetaTitle:      doc.Title,
			domain.MetaURI:        doc.URI,
			domain.MetaSourceName: in.Source.Name,
			domain.MetaDomainName: in.Domain.Name,
			domain.MetaInputType:  doc.InputType,
			domain.MetaDocType:    doc.DocType,
			domain.MetaChunkSeq:   strconv.Itoa(seq),
			domain.MetaTokenCount: strconv.Itoa(count),
			domain.MetaDocumentID: docID,
		}
		doc.Chunks = append(doc.Chunks, domain.Chunk{
			ID:          domain.ChunkID(docID, seq),
			DocumentID:  docID,
			Sequence:    seq,
			Content:     text,
			TokenCount:  count,
			ContentHash: ContentHash(text, meta),
			Database:    database,
			Metadata:    meta,
		})
	}
	return doc
}

// diff compares the new chunks of a document with its catalog rows.
func diff(doc domain.Document, previous []domain.Chunk, reembed bool) *ProcessedDocument {
	pd := &ProcessedDocument{
		Document:  doc,
		Previous:  previous,
		Unchanged: make(map[string]bool),
	}

	current := make(map[string]bool, len(doc.Chunks))
	for _, ch := range doc.Chunks {
		current[ch.ID] = true
	}
	prevHash := make(map[string]string, len(previous))
	for _, ch := range previous {
		prevHash[ch.ID] = ch.ContentHash
		if !current[ch.ID] {
			pd.StaleIDs = append(pd.StaleIDs, ch.ID)
		}
	}
	if !reembed {
		for _, ch := range doc.Chunks {
			if h, ok := prevHash[ch.ID]; ok && h != "" && h == ch.ContentHash {
				pd.Unchanged[ch.ID] = true
			}
		}
	}
	return pd
}

// Clean removes non-printable characters and collapses runs of blank lines.
// Newlines and tabs are kept; other whitespace becomes a plain space.
func Clean(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")

	var b strings.Builder
	b.Grow(len(text))
	for i := 0; i < len(text); {
		r, size := utf8.DecodeRuneInString(text[i:])
		i += size
		switch {
		case r == utf8.RuneError && size == 1:
		case r == '\n' || r == '\t':
			b.WriteRune(r)
		case unicode.IsSpace(r):
			b.WriteByte(' ')
		case unicode.IsPrint(r):
			b.WriteRune(r)
		}
	}

	return strings.TrimSpace(excessNewlines.ReplaceAllString(b.String(), "\n\n"))
}

// FallbackTitle names an untitled document after its source and the last
// path segment of its URI, without extension.
func FallbackTitle(sourceName, uri string) string {
	p := uri
	host := ""
	if u, err := url.Parse(uri); err == nil && u.Path != "" {
		p = u.Path
		host = u.Host
	} else if err == nil {
		host = u.Host
		p = ""
	}

	base := path.Base(strings.TrimSuffix(filepath.ToSlash(p), "/"))
	if base == "." || base == "/" {
		base = ""
	}
	base = strings.TrimSuffix(base, path.Ext(base))
	if base == "" {
		base = host
	}
	return sourceName + ": " + base
}

// inputType reduces a MIME type to its base form.
func inputType(mimeType string) string {
	if i := strings.IndexByte(mimeType, ';'); i >= 0 {
		mimeType = mimeType[:i]
	}
	mimeType = strings.ToLower(strings.TrimSpace(mimeType))
	if mimeType == "" {
		return "text/plain"
	}
	return mimeType
}

func chunkIDs(chunks []domain.Chunk) []string {
	ids := make([]string, 0, len(chunks))
	for _, ch := range chunks {
		ids = append(ids, ch.ID)
	}
	return ids
}
