// Package ingest implements the Ingestion worker named in spec §4.9: a
// background task runner that drives Extractor → Chunker → Metadata
// extractor → embeddings → Indexer for one document, with retry, status
// transitions, and temp-directory cleanup. The pipeline is composed from
// pkg/fn.Stage/Then, generalized from scraped-post ingestion to document
// ingestion, with a download-or-copy-local-file fallback, a
// 2-retries/30s-delay policy (MaxRetries), and always-cleanup-temp-dir
// semantics.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/brightloom-labs/docrag/engine/chunk"
	"github.com/brightloom-labs/docrag/engine/domain"
	"github.com/brightloom-labs/docrag/engine/embed"
	"github.com/brightloom-labs/docrag/engine/extract"
	"github.com/brightloom-labs/docrag/engine/metadata"
	"github.com/brightloom-labs/docrag/engine/retrieve"
	"github.com/brightloom-labs/docrag/pkg/fn"
	"github.com/brightloom-labs/docrag/pkg/objectstore"
)

const (
	// MaxRetries is the number of retries after the first attempt, per
	// spec §4.9 ("up to two retries").
	MaxRetries = 2
	// RetryDelay is the fixed wait between attempts.
	RetryDelay = 30 * time.Second
	// MaxErrorLen truncates the stored failure message (spec §4.9).
	MaxErrorLen = 500
)

// DocumentStore is the narrow slice of repo.Repository[domain.Document,
// int64] the worker needs to load and update status.
type DocumentStore interface {
	Get(ctx context.Context, id int64) (domain.Document, error)
	Update(ctx context.Context, d domain.Document) (domain.Document, error)
}

// Indexer upserts embedded chunk records into the vector store; satisfied
// by *retrieve.Store.
type Indexer interface {
	Upsert(ctx context.Context, records []retrieve.Record) error
}

// Deps holds the external dependencies for the ingestion pipeline.
type Deps struct {
	Documents DocumentStore
	Objects   objectstore.ObjectStore
	Extractor extract.Extractor
	Chunker   *chunk.Chunker
	Dense     embed.Dense
	Sparse    embed.Sparse
	Indexer   Indexer
	Logger    *slog.Logger
}

// Worker runs the per-document ingestion pipeline.
type Worker struct {
	deps Deps
}

func NewWorker(deps Deps) *Worker {
	return &Worker{deps: deps}
}

func (w *Worker) logger() *slog.Logger {
	if w.deps.Logger != nil {
		return w.deps.Logger
	}
	return slog.Default()
}

// --- Pipeline stage types ---

// taskInput is what the stage pipeline starts from: the document record
// plus the path of its file on local disk.
type taskInput struct {
	doc  domain.Document
	path string
}

type extractedDoc struct {
	doc   domain.Document
	pages []domain.Page
}

type chunkedDoc struct {
	doc    domain.Document
	chunks []domain.Chunk
}

// --- Pipeline stages ---

func (w *Worker) extractStage() fn.Stage[taskInput, extractedDoc] {
	return func(ctx context.Context, in taskInput) fn.Result[extractedDoc] {
		kind := kindFromName(in.doc.DisplayName)
		pages, err := w.deps.Extractor.Extract(ctx, in.path, kind)
		if err != nil {
			return fn.Err[extractedDoc](err)
		}
		if len(pages) == 0 {
			return fn.Err[extractedDoc](domain.New(domain.KindPermanentExternal, domain.ErrZeroPages))
		}
		return fn.Ok(extractedDoc{doc: in.doc, pages: pages})
	}
}

func (w *Worker) chunkStage() fn.Stage[extractedDoc, chunkedDoc] {
	return func(_ context.Context, in extractedDoc) fn.Result[chunkedDoc] {
		isSlideDeck := kindFromName(in.doc.DisplayName) == domain.KindPPTX
		chunks := w.deps.Chunker.ChunkPages(in.pages, isSlideDeck)
		for i := range chunks {
			chunks[i].ID = uuid.NewString()
			chunks[i].DocumentID = in.doc.ID
			chunks[i].GroupID = in.doc.GroupID
		}
		return fn.Ok(chunkedDoc{doc: in.doc, chunks: chunks})
	}
}

// metadataStage enriches every chunk's ChunkMetadata, merging document-wide
// signal (drawn from the concatenation of all chunk text) with the more
// specific chunk-level extraction, per metadata.Merge's override rule.
func metadataStage(_ context.Context, in chunkedDoc) fn.Result[chunkedDoc] {
	docID := fmt.Sprintf("%d", in.doc.ID)

	var all strings.Builder
	for _, c := range in.chunks {
		all.WriteString(c.Text)
		all.WriteString("\n")
	}
	docMD := metadata.Extract(all.String(), docID)

	for i, c := range in.chunks {
		chunkMD := metadata.Extract(c.Text, docID)
		merged := metadata.Merge(docMD, chunkMD)
		merged.PageNumber = c.PageNumber
		merged.Section = c.Metadata.Section
		in.chunks[i].Metadata = merged
	}
	return fn.Ok(in)
}

// DefaultEmbedWorkers bounds how many sparse-embedding calls run
// concurrently for one document's chunks, the same request-domain worker
// pool width named in spec §5 ("bounded worker pool, default 10").
const DefaultEmbedWorkers = 10

func (w *Worker) embedIndexStage() fn.Stage[chunkedDoc, int] {
	return func(ctx context.Context, in chunkedDoc) fn.Result[int] {
		if len(in.chunks) == 0 {
			return fn.Ok(0)
		}

		texts := make([]string, len(in.chunks))
		for i, c := range in.chunks {
			texts[i] = c.Text
		}
		denseVecs, err := w.deps.Dense.EmbedBatch(ctx, texts)
		if err != nil {
			return fn.Err[int](domain.New(domain.KindTransientExternal, err))
		}

		sparseResults := fn.ParMapResult(in.chunks, DefaultEmbedWorkers, func(c domain.Chunk) fn.Result[embed.SparseVector] {
			sparse, err := w.deps.Sparse.EmbedSparse(ctx, c.Text)
			if err != nil {
				return fn.Err[embed.SparseVector](err)
			}
			return fn.Ok(sparse)
		})

		records := make([]retrieve.Record, len(in.chunks))
		for i, c := range in.chunks {
			sparse, err := sparseResults[i].Unwrap()
			if err != nil {
				return fn.Err[int](domain.New(domain.KindTransientExternal, err))
			}
			records[i] = retrieve.Record{
				ID:      c.ID,
				Dense:   denseVecs[i],
				Sparse:  sparse,
				Payload: chunkPayload(in.doc, c),
			}
		}

		if err := w.deps.Indexer.Upsert(ctx, records); err != nil {
			return fn.Err[int](domain.New(domain.KindTransientExternal, err))
		}
		return fn.Ok(len(records))
	}
}

func chunkPayload(doc domain.Document, c domain.Chunk) map[string]any {
	payload := map[string]any{
		"content":      c.Text,
		"doc_id":       doc.ID,
		"filename":     doc.DisplayName,
		"group_id":     doc.GroupID,
		"chunk_type":   string(c.Type),
		"page_number":  int64(c.PageNumber),
		"extraction":   string(c.ExtractionMethod),
	}
	if c.Metadata.Section != "" {
		payload["section"] = c.Metadata.Section
	}
	if c.Metadata.VehicleModel != "" {
		payload["vehicle_model"] = c.Metadata.VehicleModel
	}
	if c.Metadata.ChassisNo != "" {
		payload["chassis_no"] = c.Metadata.ChassisNo
	}
	if c.Metadata.TestDate != "" {
		payload["test_date"] = c.Metadata.TestDate
	}
	if c.Metadata.TestType != "" {
		payload["test_type"] = c.Metadata.TestType
	}
	if len(c.Metadata.Standards) > 0 {
		payload["standards"] = c.Metadata.Standards
	}
	if len(c.Metadata.Keywords) > 0 {
		payload["keywords"] = c.Metadata.Keywords
	}
	if len(c.Metadata.ComplianceStatus) > 0 {
		payload["compliance_status"] = c.Metadata.ComplianceStatus
	}
	return payload
}

func kindFromName(name string) domain.DocumentKind {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(name), "."))
	return domain.DocumentKind(ext)
}

// --- Task runner ---

// Run processes one document end to end, retrying up to MaxRetries times
// on a fixed 30s delay and marking the document failed only once retries
// are exhausted (spec §4.9: "only re-raise after retries exhausted"). Only
// domain.KindTransientExternal errors are retried at all (spec §7's
// propagation rule); every other kind fails on the first attempt.
func (w *Worker) Run(ctx context.Context, docID int64) error {
	taskHandle := uuid.NewString()
	log := w.logger()

	var lastErr error
	for attempt := 0; attempt <= MaxRetries; attempt++ {
		lastErr = w.attempt(ctx, docID, taskHandle)
		if lastErr == nil {
			log.Info("ingest: success", "doc_id", docID, "attempt", attempt)
			return nil
		}
		log.Error("ingest: attempt failed", "doc_id", docID, "attempt", attempt, "error", lastErr)

		if attempt == MaxRetries || !domain.Retryable(lastErr) {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(RetryDelay):
		}
	}

	w.markFailed(ctx, docID, lastErr)
	return lastErr
}

func (w *Worker) attempt(ctx context.Context, docID int64, taskHandle string) error {
	doc, err := w.deps.Documents.Get(ctx, docID)
	if err != nil {
		return domain.New(domain.KindDataConsistency, domain.ErrDocumentMissing)
	}

	doc.Status = domain.StatusProcessing
	doc.TaskHandle = taskHandle
	if doc, err = w.deps.Documents.Update(ctx, doc); err != nil {
		return fmt.Errorf("ingest: set status processing: %w", err)
	}

	tempDir, err := os.MkdirTemp("", "docrag-ingest-*")
	if err != nil {
		return fmt.Errorf("ingest: create temp dir: %w", err)
	}
	defer os.RemoveAll(tempDir)

	localPath, err := w.materialize(ctx, doc, tempDir)
	if err != nil {
		return err
	}

	stage1 := fn.Then(w.extractStage(), w.chunkStage())
	stage2 := fn.Then(stage1, fn.Stage[chunkedDoc, chunkedDoc](metadataStage))
	pipeline := fn.Then(stage2, w.embedIndexStage())

	chunkCount, err := pipeline(ctx, taskInput{doc: doc, path: localPath}).Unwrap()
	if err != nil {
		return err
	}

	doc.Status = domain.StatusDone
	doc.ChunkCount = chunkCount
	doc.ErrorMessage = ""
	_, err = w.deps.Documents.Update(ctx, doc)
	return err
}

// materialize downloads the document's object into tempDir, or falls back
// to copying doc.LocalPath when no object key is set, per spec §4.9 step 2.
func (w *Worker) materialize(ctx context.Context, doc domain.Document, tempDir string) (string, error) {
	dst := filepath.Join(tempDir, filepath.Base(doc.DisplayName))

	switch {
	case doc.ObjectKey != "":
		r, _, err := w.deps.Objects.Get(ctx, doc.ObjectKey)
		if err != nil {
			if errors.Is(err, objectstore.ErrNotFound) {
				return "", domain.New(domain.KindDataConsistency, domain.ErrObjectMissing)
			}
			return "", domain.New(domain.KindTransientExternal, err)
		}
		defer r.Close()

		f, err := os.Create(dst)
		if err != nil {
			return "", fmt.Errorf("ingest: create %s: %w", dst, err)
		}
		defer f.Close()
		if _, err := io.Copy(f, r); err != nil {
			return "", fmt.Errorf("ingest: write %s: %w", dst, err)
		}

	case doc.LocalPath != "":
		if _, err := os.Stat(doc.LocalPath); err != nil {
			return "", domain.New(domain.KindDataConsistency, domain.ErrNoFileSource)
		}
		if err := copyFile(doc.LocalPath, dst); err != nil {
			return "", fmt.Errorf("ingest: copy %s: %w", doc.LocalPath, err)
		}

	default:
		return "", domain.New(domain.KindDataConsistency, domain.ErrNoFileSource)
	}

	return dst, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	_, err = io.Copy(out, in)
	return err
}

func (w *Worker) markFailed(ctx context.Context, docID int64, cause error) {
	log := w.logger()
	doc, err := w.deps.Documents.Get(ctx, docID)
	if err != nil {
		log.Error("ingest: load document for failure update", "doc_id", docID, "error", err)
		return
	}

	doc.Status = domain.StatusFailed
	doc.ErrorMessage = truncate(cause.Error(), MaxErrorLen)
	if _, err := w.deps.Documents.Update(ctx, doc); err != nil {
		log.Error("ingest: mark failed", "doc_id", docID, "error", err)
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
