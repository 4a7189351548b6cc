package s3blob

import (
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/polyoracle/internal/domain"
)

// fakeS3 is a path-style S3 endpoint covering PutObject, GetObject and
// ListObjectsV2 for a single bucket.
type fakeS3 struct {
	mu      sync.Mutex
	bucket  string
	objects map[string][]byte
}

func newFakeS3(t *testing.T, bucket string) (*fakeS3, *httptest.Server) {
	f := &fakeS3{bucket: bucket, objects: map[string][]byte{}}
	srv := httptest.NewServer(f)
	t.Cleanup(srv.Close)
	return f, srv
}

type listResult struct {
	XMLName     xml.Name `xml:"ListBucketResult"`
	Name        string   `xml:"Name"`
	Prefix      string   `xml:"Prefix"`
	KeyCount    int      `xml:"KeyCount"`
	IsTruncated bool     `xml:"IsTruncated"`
	Contents    []struct {
		Key          string `xml:"Key"`
		Size         int64  `xml:"Size"`
		LastModified string `xml:"LastModified"`
	} `xml:"Contents"`
}

func (f *fakeS3) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	key := strings.TrimPrefix(strings.TrimPrefix(r.URL.Path, "/"+f.bucket), "/")
	switch {
	case r.Method == http.MethodPut:
		body, _ := io.ReadAll(r.Body)
		f.objects[key] = body
		w.Header().Set("ETag", `"etag"`)
	case r.Method == http.MethodGet && key == "":
		prefix := r.URL.Query().Get("prefix")
		res := listResult{Name: f.bucket, Prefix: prefix}
		var keys []string
		for k := range f.objects {
			if strings.HasPrefix(k, prefix) {
				keys = append(keys, k)
			}
		}
		sort.Strings(keys)
		for _, k := range keys {
			res.Contents = append(res.Contents, struct {
				Key          string `xml:"Key"`
				Size         int64  `xml:"Size"`
				LastModified string `xml:"LastModified"`
			}{k, int64(len(f.objects[k])), "2026-03-01T12:00:00.000Z"})
		}
		res.KeyCount = len(keys)
		w.Header().Set("Content-Type", "application/xml")
		_ = xml.NewEncoder(w).Encode(res)
	case r.Method == http.MethodGet:
		body, ok := f.objects[key]
		if !ok {
			w.Header().Set("Content-Type", "application/xml")
			w.WriteHeader(http.StatusNotFound)
			fmt.Fprint(w, `<?xml version="1.0" encoding="UTF-8"?><Error><Code>NoSuchKey</Code><Message>missing</Message></Error>`)
			return
		}
		w.Header().Set("Content-Length", fmt.Sprint(len(body)))
		_, _ = w.Write(body)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func newTestClient(t *testing.T) (*Client, *fakeS3) {
	t.Helper()
	t.Setenv("AWS_EC2_METADATA_DISABLED", "true")
	f, srv := newFakeS3(t, "evidence")
	c, err := New(context.Background(), ClientConfig{
		Endpoint:       srv.URL,
		Region:         "us-east-1",
		Bucket:         "evidence",
		Prefix:         "/resolutions/",
		AccessKey:      "test",
		SecretKey:      "test",
		ForcePathStyle: true,
	})
	require.NoError(t, err)
	return c, f
}

func TestNewRequiresBucketAndRegion(t *testing.T) {
	_, err := New(context.Background(), ClientConfig{Region: "us-east-1"})
	assert.Error(t, err)
	_, err = New(context.Background(), ClientConfig{Bucket: "b"})
	assert.Error(t, err)
}

func TestNormaliseEndpoint(t *testing.T) {
	assert.Equal(t, "https://minio:9000", normaliseEndpoint("https://minio:9000", false))
	assert.Equal(t, "http://minio:9000", normaliseEndpoint("minio:9000", false))
	assert.Equal(t, "https://minio:9000", normaliseEndpoint("minio:9000", true))
}

func sampleRecord() (domain.Market, domain.ResolutionResult) {
	m := domain.Market{
		ID:                 "will-x-happen",
		Question:           "Will X happen by March 1?",
		ResolutionCriteria: "Resolves YES if X is officially announced.",
		Deadline:           "2026-03-01T00:00:00Z",
	}
	r := domain.ResolutionResult{
		MarketID:         m.ID,
		RunID:            "run-1",
		Category:         domain.CategoryEvent,
		Outcome:          domain.OutcomeYes,
		Confidence:       0.9,
		SettlementAction: domain.ActionSettle,
		Flags:            []string{},
		ResolvedAt:       time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	return m, r
}

func TestArchiveRoundTripThroughS3(t *testing.T) {
	c, f := newTestClient(t)
	a := NewArchiver(NewWriter(c), NewReader(c), c.Prefix())
	ctx := context.Background()
	m, r := sampleRecord()

	key, err := a.Archive(ctx, m, r)
	require.NoError(t, err)
	assert.Equal(t, "resolutions/markets/will-x-happen/run-1.json", key)
	assert.Contains(t, string(f.objects[key]), `"question": "Will X happen by March 1?"`)

	infos, err := a.Records(ctx, m.ID)
	require.NoError(t, err)
	require.Len(t, infos, 1)
	assert.Equal(t, key, infos[0].Path)

	rec, err := a.Load(ctx, m.ID, "run-1")
	require.NoError(t, err)
	assert.Equal(t, m.Question, rec.Market.Question)
	assert.Equal(t, domain.ActionSettle, rec.Result.SettlementAction)

	_, err = a.Load(ctx, m.ID, "run-404")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

// memBlob is an in-memory BlobWriter for exporter tests.
type memBlob struct {
	objects map[string][]byte
	failPut error
}

func (m *memBlob) Put(_ context.Context, p string, data io.Reader, _ string) error {
	b, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	m.objects[p] = b
	return nil
}

func (m *memBlob) PutMultipart(ctx context.Context, p string, data io.Reader, _ int64) error {
	if m.failPut != nil {
		return m.failPut
	}
	return m.Put(ctx, p, data, "")
}

type pagedLister struct {
	results []domain.ResolutionResult
	calls   int
}

func (l *pagedLister) List(_ context.Context, f domain.ResultFilter) ([]domain.ResolutionResult, error) {
	l.calls++
	if f.Offset >= len(l.results) {
		return nil, nil
	}
	end := f.Offset + f.Limit
	if end > len(l.results) {
		end = len(l.results)
	}
	return l.results[f.Offset:end], nil
}

func TestExportWritesJSONL(t *testing.T) {
	blob := &memBlob{objects: map[string][]byte{}}
	a := NewArchiver(blob, nil, "resolutions")
	a.now = func() time.Time { return time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC) }

	_, r := sampleRecord()
	lister := &pagedLister{}
	for i := 0; i < 501; i++ {
		rr := r
		rr.RunID = fmt.Sprintf("run-%d", i)
		lister.results = append(lister.results, rr)
	}

	since := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	key, n, err := a.Export(context.Background(), lister, since)
	require.NoError(t, err)
	assert.Equal(t, "resolutions/exports/20260301T000000Z_20260302T000000Z.jsonl", key)
	assert.Equal(t, 501, n)
	assert.Equal(t, 2, lister.calls)

	lines := bytes.Split(bytes.TrimSpace(blob.objects[key]), []byte("\n"))
	assert.Len(t, lines, 501)
	assert.Contains(t, string(lines[500]), `"run_id":"run-500"`)
}

func TestExportUploadFailure(t *testing.T) {
	blob := &memBlob{objects: map[string][]byte{}, failPut: fmt.Errorf("bucket gone")}
	a := NewArchiver(blob, nil, "")
	_, r := sampleRecord()

	_, _, err := a.Export(context.Background(), &pagedLister{results: []domain.ResolutionResult{r}}, time.Time{})
	assert.ErrorContains(t, err, "bucket gone")

	_, err = a.Records(context.Background(), "m")
	assert.Error(t, err, "reader not configured")
}
