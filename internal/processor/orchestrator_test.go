package processor

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"resume-analyzer/internal/types"
)

func TestOrchestrator_OneOutcomePerFileInOrder(t *testing.T) {
	ext := &fakeExtractor{}
	analyzer := &fakeAnalyzer{scores: map[string]float64{"a.pdf": 3, "c.pdf": 9}}
	comps := Components{
		Extractor: ext,
		Analyzer:  analyzer,
		Validator: &fakeValidator{reject: map[string]bool{"d.png": true}},
	}
	o, err := NewOrchestrator(comps, testSettings())
	require.NoError(t, err)
	defer o.Close()

	files := []types.UploadedFile{
		pdf("a.pdf", "cv a"),
		pdf("b.pdf", "fail"),
		pdf("c.pdf", "cv c"),
		pdf("d.png", "photo"),
		pdf("e.pdf", ""),
	}
	outcomes := o.ProcessAll(context.Background(), files, "go")

	require.Len(t, outcomes, len(files))
	for i, f := range files {
		assert.Equal(t, f.Filename, outcomes[i].Filename)
	}
	assert.True(t, outcomes[0].Success)
	assert.Equal(t, "ocr error: ocr backend down", outcomes[1].Error)
	assert.True(t, outcomes[2].Success)
	assert.Equal(t, "rejected: not a resume", outcomes[3].Error)
	assert.Equal(t, "empty file", outcomes[4].Error)
}

func TestOrchestrator_BoundsConcurrency(t *testing.T) {
	ext := &fakeExtractor{delay: 15 * time.Millisecond}
	settings := testSettings()
	settings.MaxConcurrent = 2
	settings.WorkerPoolSize = 8

	o, err := NewOrchestrator(Components{Extractor: ext, Analyzer: &fakeAnalyzer{}}, settings)
	require.NoError(t, err)
	defer o.Close()

	files := make([]types.UploadedFile, 8)
	for i := range files {
		files[i] = pdf(fmt.Sprintf("f%d.pdf", i), "cv")
	}
	outcomes := o.ProcessAll(context.Background(), files, "")

	require.Len(t, outcomes, 8)
	assert.LessOrEqual(t, ext.peak.Load(), int32(2))
	assert.Equal(t, "Orchestrator{workers=8}", o.String())
}

func TestOrchestrator_RecoversPanicPerFile(t *testing.T) {
	o, err := NewOrchestrator(Components{Extractor: &fakeExtractor{}, Analyzer: &fakeAnalyzer{}}, testSettings())
	require.NoError(t, err)
	defer o.Close()

	o.process = func(ctx context.Context, file types.UploadedFile, query string) types.FileOutcome {
		if file.Filename == "bad.pdf" {
			panic("nil pointer somewhere")
		}
		return types.SuccessOutcome(file.Filename, "Junior", "ok")
	}

	outcomes := o.ProcessAll(context.Background(), []types.UploadedFile{pdf("ok.pdf", "x"), pdf("bad.pdf", "x")}, "")
	assert.True(t, outcomes[0].Success)
	assert.False(t, outcomes[1].Success)
	assert.Equal(t, "bad.pdf", outcomes[1].Filename)
	assert.Equal(t, "unexpected error: nil pointer somewhere", outcomes[1].Error)
}

func TestOrchestrator_EmptyBatch(t *testing.T) {
	o, err := NewOrchestrator(Components{Extractor: &fakeExtractor{}, Analyzer: &fakeAnalyzer{}}, testSettings())
	require.NoError(t, err)
	defer o.Close()

	assert.Empty(t, o.ProcessAll(context.Background(), nil, "go"))
}

func TestNewOrchestrator_MissingComponent(t *testing.T) {
	_, err := NewOrchestrator(Components{}, testSettings())
	assert.ErrorIs(t, err, ErrMissingComponent)
}
