package main

import (
	"fmt"
	"os"

	"github.com/spf13/pflag"

	"resume-analyzer/internal/config"
	"resume-analyzer/internal/logger"
)

// 命令行参数定义
var (
	configPath = pflag.StringP("config", "c", "", "配置文件路径 (默认自动查找 config.yaml)")
	maxLen     = pflag.Int("maxlen", 1000, "显示的文本最大长度，设为-1显示全部")
	query      = pflag.StringP("query", "q", "", "职位描述或查询，为空时按资历分级")
	userID     = pflag.String("user", "cli", "记录到分析日志中的用户ID")
	jsonOutput = pflag.Bool("json", false, "以JSON格式输出结果")
)

func main() {
	pflag.Usage = func() {
		fmt.Fprintf(os.Stderr, "用法: resumeprocessor <extract|analyze> [选项] 文件...\n\n")
		fmt.Fprintf(os.Stderr, "  extract  仅提取文本\n  analyze  完整分析流程（校验、评分、排序）\n\n")
		pflag.PrintDefaults()
	}
	// 解析命令行参数
	pflag.Parse()

	args := pflag.Args()
	if len(args) < 2 {
		fmt.Println("错误: 至少需要一个简历文件 (PDF/PNG/JPG)")
		pflag.Usage()
		os.Exit(1)
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Printf("加载配置文件失败: %v\n", err)
		os.Exit(1)
	}
	closer := logger.Init(logger.Config{Level: cfg.Logger.Level, Format: "pretty"})
	defer closer.Close()

	// 根据命令执行不同的功能
	command, files := args[0], args[1:]
	switch command {
	case "extract":
		err = handleExtractCommand(cfg, files)
	case "analyze":
		err = handleAnalyzeCommand(cfg, files)
	default:
		fmt.Printf("错误: 未知命令 '%s'。支持的命令: extract, analyze\n", command)
		pflag.Usage()
		os.Exit(1)
	}
	if err != nil {
		fmt.Printf("错误: %v\n", err)
		os.Exit(1)
	}
}

// readUploads 读取本地文件，形式与 HTTP 上传一致
func readUploads(paths []string) ([]uploadedPath, error) {
	out := make([]uploadedPath, 0, len(paths))
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			return nil, fmt.Errorf("无法读取文件 %s: %w", p, err)
		}
		out = append(out, uploadedPath{path: p, data: data})
	}
	return out, nil
}

type uploadedPath struct {
	path string
	data []byte
}

func truncate(text string, n int) string {
	r := []rune(text)
	if n < 0 || len(r) <= n {
		return text
	}
	return string(r[:n]) + "..."
}
