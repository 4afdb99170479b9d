package main

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"time"

	"github.com/gofrs/uuid/v5"

	"resume-analyzer/internal/bootstrap"
	"resume-analyzer/internal/config"
	"resume-analyzer/internal/processor"
	"resume-analyzer/internal/types"
)

// 处理完整分析命令，不接入任何存储组件
func handleAnalyzeCommand(cfg *config.Config, paths []string) error {
	uploads, err := readUploads(paths)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Minute)
	defer cancel()

	svc, err := bootstrap.NewAnalysisService(ctx, cfg)
	if err != nil {
		return err
	}
	defer svc.Close()

	requestID, err := uuid.NewV4()
	if err != nil {
		return fmt.Errorf("生成请求ID失败: %w", err)
	}

	req := processor.AnalysisRequest{
		RequestID: requestID.String(),
		UserID:    *userID,
		Query:     *query,
	}
	for _, u := range uploads {
		req.Files = append(req.Files, types.NewUploadedFile(filepath.Base(u.path), u.data))
	}

	start := time.Now()
	result, err := svc.Analyze(ctx, req)
	if tf, ok := processor.AsTotalFailure(err); ok {
		fmt.Printf("所有文件处理失败 (重试 %d 次): %v\n", tf.Retries, tf.FailedFiles)
		return err
	}
	if err != nil {
		return err
	}

	if *jsonOutput {
		data, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			return fmt.Errorf("序列化输出失败: %w", err)
		}
		fmt.Println(string(data))
		return nil
	}

	fmt.Printf("请求ID: %s  耗时: %s\n", result.RequestID, time.Since(start).Round(time.Millisecond))
	for i, o := range result.Results {
		if o.Error != "" {
			fmt.Printf("%d. %s  失败: %s\n", i+1, o.Filename, o.Error)
			continue
		}
		fmt.Printf("%d. %s  评分: %v\n   %s\n", i+1, o.Filename, o.Score, truncate(o.Summary, *maxLen))
	}
	return nil
}
