package router

import (
	"context"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/app/server"
	"github.com/cloudwego/hertz/pkg/common/utils"
	"github.com/cloudwego/hertz/pkg/protocol/consts"
	"github.com/hertz-contrib/keyauth"

	"resume-analyzer/internal/api/handler"
)

// RegisterRoutes 注册 API 路由。apiKeys 非空时 /api/v1 需要 Bearer API key
func RegisterRoutes(h *server.Hertz, analysisHandler *handler.AnalysisHandler, apiKeys []string) {
	h.GET("/health", analysisHandler.HandleHealth)

	api := h.Group("/api/v1")
	if len(apiKeys) > 0 {
		api.Use(apiKeyAuth(apiKeys))
	}

	api.POST("/analyze", analysisHandler.HandleAnalyze)
	api.POST("/analyze/async", analysisHandler.HandleAnalyzeAsync)
	api.GET("/analyze/:request_id", analysisHandler.HandleGetAnalysis)
}

func apiKeyAuth(apiKeys []string) app.HandlerFunc {
	allowed := make(map[string]struct{}, len(apiKeys))
	for _, k := range apiKeys {
		allowed[k] = struct{}{}
	}
	return keyauth.New(
		keyauth.WithKeyLookUp("header:Authorization", "Bearer"),
		keyauth.WithValidator(func(ctx context.Context, c *app.RequestContext, key string) (bool, error) {
			_, ok := allowed[key]
			return ok, nil
		}),
		keyauth.WithErrorHandler(func(ctx context.Context, c *app.RequestContext, err error) {
			c.AbortWithStatusJSON(consts.StatusUnauthorized, utils.H{"error": "invalid or missing API key"})
		}),
	)
}
