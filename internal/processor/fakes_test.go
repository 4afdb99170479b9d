package processor

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"resume-analyzer/internal/types"
)

// fakeExtractor returns text derived from the file contents. Files whose data starts
// with "fail" fail transiently, "perm" fails permanently, "panic" panics.
type fakeExtractor struct {
	calls  atomic.Int32
	failN  int32 // fail this many calls before succeeding
	active atomic.Int32
	peak   atomic.Int32
	delay  time.Duration
}

func (f *fakeExtractor) Extract(ctx context.Context, data []byte, filename string) types.ExtractionResult {
	n := f.calls.Add(1)

	cur := f.active.Add(1)
	defer f.active.Add(-1)
	for {
		p := f.peak.Load()
		if cur <= p || f.peak.CompareAndSwap(p, cur) {
			break
		}
	}
	if f.delay > 0 {
		time.Sleep(f.delay)
	}

	s := string(data)
	switch {
	case strings.HasPrefix(s, "panic"):
		panic("extractor exploded")
	case strings.HasPrefix(s, "perm"):
		return types.PermanentExtractionError("unsupported file type")
	case strings.HasPrefix(s, "fail"):
		return types.ExtractionError("ocr backend down")
	case n <= f.failN:
		return types.ExtractionError("flaky")
	}
	return types.ExtractedText("text of " + filename + ": " + s)
}

type fakeValidator struct {
	reject map[string]bool
	err    error
}

func (v *fakeValidator) Validate(ctx context.Context, content []byte, filename string) (bool, error) {
	if v.err != nil {
		return false, v.err
	}
	return !v.reject[filename], nil
}

// fakeAnalyzer scores by looking up the filename embedded in the text.
type fakeAnalyzer struct {
	scores map[string]float64
	fail   map[string]bool
	calls  atomic.Int32
}

func (a *fakeAnalyzer) Analyze(ctx context.Context, text, query string) types.AnalysisResult {
	a.calls.Add(1)
	name := strings.TrimPrefix(strings.SplitN(text, ":", 2)[0], "text of ")
	if a.fail[name] {
		return types.AnalysisError("analysis failed after 3 attempts: no score")
	}
	if query == "" {
		return types.CategorizedAnalysis("Pleno", "summary of "+name)
	}
	return types.ScoredAnalysis(a.scores[name], "summary of "+name)
}

type fakeQueryValidator struct {
	ok    bool
	calls atomic.Int32
}

func (q *fakeQueryValidator) ValidateQuery(ctx context.Context, query string) bool {
	q.calls.Add(1)
	return q.ok
}

type memCache struct {
	mu   sync.Mutex
	data map[string]types.AnalysisResult
	sets int
}

func newMemCache() *memCache {
	return &memCache{data: map[string]types.AnalysisResult{}}
}

func (c *memCache) GetAnalysis(ctx context.Context, key string) (types.AnalysisResult, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	r, ok := c.data[key]
	return r, ok, nil
}

func (c *memCache) SetAnalysis(ctx context.Context, key string, result types.AnalysisResult, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = result
	c.sets++
	return nil
}

type memLogs struct {
	mu      sync.Mutex
	records []types.AnalysisLogRecord
	err     error
}

func (l *memLogs) AppendLog(ctx context.Context, record types.AnalysisLogRecord) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return l.err
	}
	l.records = append(l.records, record)
	return nil
}

func (l *memLogs) FindLog(ctx context.Context, requestID string) (*types.AnalysisLogRecord, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i := len(l.records) - 1; i >= 0; i-- {
		if l.records[i].RequestID == requestID {
			rec := l.records[i]
			return &rec, nil
		}
	}
	return nil, nil
}

type memArchive struct {
	mu      sync.Mutex
	objects map[string][]byte
	failOn  string
}

func newMemArchive() *memArchive {
	return &memArchive{objects: map[string][]byte{}}
}

func (a *memArchive) ArchiveResume(ctx context.Context, requestID string, file types.UploadedFile) (string, error) {
	if file.Filename == a.failOn {
		return "", errors.New("bucket unavailable")
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	key := "resumes/" + requestID + "/" + file.Filename
	a.objects[key] = file.Data
	return key, nil
}

func (a *memArchive) FetchResume(ctx context.Context, key string) ([]byte, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	data, ok := a.objects[key]
	if !ok {
		return nil, errors.New("object not found")
	}
	return data, nil
}

type memEvents struct {
	mu     sync.Mutex
	events []types.AnalysisEvent
	jobs   []types.AnalysisJob
}

func (e *memEvents) PublishAnalysisEvent(ctx context.Context, event types.AnalysisEvent) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, event)
	return nil
}

func (e *memEvents) PublishAnalysisJob(ctx context.Context, job types.AnalysisJob) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.jobs = append(e.jobs, job)
	return nil
}

func testSettings() Settings {
	s := DefaultSettings()
	s.ExtractionBackoff = 0
	s.CacheTTL = 0
	return s
}

func pdf(name, content string) types.UploadedFile {
	return types.NewUploadedFile(name, []byte(content))
}
