package router

import (
	"context"
	"net/http"
	"testing"

	"github.com/cloudwego/hertz/pkg/app/server"
	"github.com/cloudwego/hertz/pkg/common/ut"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"

	"resume-analyzer/internal/api/handler"
	"resume-analyzer/internal/processor"
	"resume-analyzer/internal/types"
)

type stubService struct{}

func (stubService) Analyze(context.Context, processor.AnalysisRequest) (types.RequestResult, error) {
	return types.RequestResult{}, nil
}

func (stubService) Submit(context.Context, processor.AnalysisRequest) error { return nil }

func (stubService) Lookup(context.Context, string) (*types.AnalysisLogRecord, error) {
	return nil, processor.ErrLogNotFound
}

func newServer(keys []string) *server.Hertz {
	h := server.New()
	RegisterRoutes(h, handler.NewAnalysisHandler(stubService{}, handler.Limits{}, handler.WithLogger(zerolog.Nop())), keys)
	return h
}

func TestRegisterRoutes_NoAuth(t *testing.T) {
	h := newServer(nil)
	resp := ut.PerformRequest(h.Engine, http.MethodGet, "/api/v1/analyze/"+uuid.NewString(), nil)
	assert.Equal(t, http.StatusNotFound, resp.Code)

	resp = ut.PerformRequest(h.Engine, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, resp.Code)
}

func TestRegisterRoutes_APIKey(t *testing.T) {
	h := newServer([]string{"secret-key"})
	path := "/api/v1/analyze/" + uuid.NewString()

	resp := ut.PerformRequest(h.Engine, http.MethodGet, path, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.Code)

	resp = ut.PerformRequest(h.Engine, http.MethodGet, path, nil, ut.Header{Key: "Authorization", Value: "Bearer wrong"})
	assert.Equal(t, http.StatusUnauthorized, resp.Code)

	resp = ut.PerformRequest(h.Engine, http.MethodGet, path, nil, ut.Header{Key: "Authorization", Value: "Bearer secret-key"})
	assert.Equal(t, http.StatusNotFound, resp.Code)

	// health stays public
	resp = ut.PerformRequest(h.Engine, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, resp.Code)
}
