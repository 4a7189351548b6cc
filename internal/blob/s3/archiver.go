package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"path"
	"strconv"
	"time"

	"github.com/alanyoungcy/polyoracle/internal/domain"
)

// exportPartSize is the multipart part size for JSONL exports.
const exportPartSize int64 = 8 * 1024 * 1024

// ResultLister is the slice of domain.ResolutionStore the exporter needs.
type ResultLister interface {
	List(ctx context.Context, filter domain.ResultFilter) ([]domain.ResolutionResult, error)
}

// Archiver implements domain.ResultArchiver. Every resolution gets its own
// JSON document, keyed by market and run:
//
//	{prefix}/markets/{marketID}/{runID}.json
//	{prefix}/exports/{since}_{until}.jsonl
type Archiver struct {
	writer domain.BlobWriter
	reader domain.BlobReader
	prefix string
	now    func() time.Time
}

// NewArchiver creates an Archiver. reader may be nil when archives are never
// read back.
func NewArchiver(writer domain.BlobWriter, reader domain.BlobReader, prefix string) *Archiver {
	return &Archiver{writer: writer, reader: reader, prefix: prefix, now: time.Now}
}

// Archive writes the market and its result as one JSON document.
func (a *Archiver) Archive(ctx context.Context, market domain.Market, result domain.ResolutionResult) (string, error) {
	doc, err := json.MarshalIndent(domain.ArchiveRecord{Market: market, Result: result}, "", "  ")
	if err != nil {
		return "", fmt.Errorf("s3blob: marshal archive %s: %w", result.MarketID, err)
	}

	key := a.recordPath(result.MarketID, runKey(result))
	if err := a.writer.Put(ctx, key, bytes.NewReader(doc), "application/json"); err != nil {
		return "", fmt.Errorf("s3blob: archive %s: %w", result.MarketID, err)
	}
	return key, nil
}

// Records lists the archived documents for marketID.
func (a *Archiver) Records(ctx context.Context, marketID string) ([]domain.BlobInfo, error) {
	if a.reader == nil {
		return nil, fmt.Errorf("s3blob: archive reader not configured")
	}
	return a.reader.List(ctx, a.marketPrefix(marketID))
}

// Load reads back the archived record for one run of marketID.
func (a *Archiver) Load(ctx context.Context, marketID, runID string) (domain.ArchiveRecord, error) {
	if a.reader == nil {
		return domain.ArchiveRecord{}, fmt.Errorf("s3blob: archive reader not configured")
	}
	body, err := a.reader.Get(ctx, a.recordPath(marketID, runID))
	if err != nil {
		return domain.ArchiveRecord{}, err
	}
	defer body.Close()

	var rec domain.ArchiveRecord
	if err := json.NewDecoder(body).Decode(&rec); err != nil {
		return domain.ArchiveRecord{}, fmt.Errorf("s3blob: decode archive %s/%s: %w", marketID, runID, err)
	}
	return rec, nil
}

// Export streams every stored result resolved at or after since as JSONL
// through a multipart upload and returns the object path and row count.
func (a *Archiver) Export(ctx context.Context, results ResultLister, since time.Time) (string, int, error) {
	const page = 500
	until := a.now().UTC()
	key := path.Join(a.prefix, "exports",
		fmt.Sprintf("%s_%s.jsonl", since.UTC().Format("20060102T150405Z"), until.Format("20060102T150405Z")))

	pr, pw := io.Pipe()
	count := 0
	go func() {
		enc := json.NewEncoder(pw)
		enc.SetEscapeHTML(false)
		for offset := 0; ; offset += page {
			batch, err := results.List(ctx, domain.ResultFilter{Since: &since, Limit: page, Offset: offset})
			if err != nil {
				pw.CloseWithError(fmt.Errorf("list results: %w", err))
				return
			}
			for i := range batch {
				if err := enc.Encode(batch[i]); err != nil {
					pw.CloseWithError(fmt.Errorf("jsonl encode record %d: %w", count, err))
					return
				}
				count++
			}
			if len(batch) < page {
				pw.Close()
				return
			}
		}
	}()

	if err := a.writer.PutMultipart(ctx, key, pr, exportPartSize); err != nil {
		_ = pr.CloseWithError(err)
		return "", 0, fmt.Errorf("s3blob: export results: %w", err)
	}
	return key, count, nil
}

func (a *Archiver) marketPrefix(marketID string) string {
	return path.Join(a.prefix, "markets", url.PathEscape(marketID)) + "/"
}

func (a *Archiver) recordPath(marketID, runID string) string {
	return a.marketPrefix(marketID) + url.PathEscape(runID) + ".json"
}

// runKey names a result's document; results without a run id fall back to
// their resolution time.
func runKey(r domain.ResolutionResult) string {
	if r.RunID != "" {
		return r.RunID
	}
	return strconv.FormatInt(r.ResolvedAt.UnixMilli(), 10)
}

var _ domain.ResultArchiver = (*Archiver)(nil)
