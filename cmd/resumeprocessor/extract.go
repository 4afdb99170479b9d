package main

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"time"

	"resume-analyzer/internal/bootstrap"
	"resume-analyzer/internal/config"
)

type extractOutput struct {
	Filename string `json:"filename"`
	Text     string `json:"text,omitempty"`
	Error    string `json:"error,omitempty"`
	Elapsed  string `json:"elapsed"`
}

// 处理提取文本命令
func handleExtractCommand(cfg *config.Config, paths []string) error {
	uploads, err := readUploads(paths)
	if err != nil {
		return err
	}

	// 创建上下文，添加超时以防止无限等待
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	models, err := bootstrap.NewChatModels(cfg)
	if err != nil {
		return err
	}
	ext, err := bootstrap.NewExtractor(ctx, cfg, models.Vision)
	if err != nil {
		return err
	}

	var outputs []extractOutput
	for _, u := range uploads {
		start := time.Now()
		name := filepath.Base(u.path)
		res := ext.Extract(ctx, u.data, name)
		outputs = append(outputs, extractOutput{
			Filename: name,
			Text:     res.Text,
			Error:    res.Err,
			Elapsed:  time.Since(start).Round(time.Millisecond).String(),
		})
	}

	if *jsonOutput {
		data, err := json.MarshalIndent(outputs, "", "  ")
		if err != nil {
			return fmt.Errorf("序列化输出失败: %w", err)
		}
		fmt.Println(string(data))
		return nil
	}

	for _, o := range outputs {
		fmt.Printf("\n===== %s (%s) =====\n", o.Filename, o.Elapsed)
		if o.Error != "" {
			fmt.Printf("提取失败: %s\n", o.Error)
			continue
		}
		fmt.Printf("字符数: %d\n\n%s\n", len([]rune(o.Text)), truncate(o.Text, *maxLen))
	}
	return nil
}
