// rescachectl 是 rescache 快照文件的检查与转换工具。
//
// 缓存进程通过 WriteToJSONFile / AutoSaver 写出的 JSON 快照，以及
// WriteToFile 写出的「key:value」行格式快照，都可以用本工具在不启动
// 缓存进程的情况下离线查看和转换。
//
// 用法:
//
//	rescachectl <命令> [命令参数]
//
// 命令:
//
//	inspect <file>        查看 JSON 快照的条目数与每个键的值大小
//	keys <file>           列出 JSON 快照中的全部键（按字典序）
//	convert <in> <out>    把行格式快照转换为 JSON 对象格式
//	help                  显示帮助信息
//
// convert 命令说明:
//
//	行格式快照按第一个冒号切分键与值，与缓存载入快照的语义一致：
//	没有冒号分隔符或键为空的行被跳过，值中的冒号原样保留。
//	转换产物可直接交给 ReadFromJSONFile 载入。
//
// 退出码:
//
//	0: 命令执行成功
//	1: 命令执行失败（文件不存在、快照格式损坏等）
//	2: 参数错误（缺少参数、多余参数、未知命令等）
//
// 示例:
//
//	rescachectl inspect /var/lib/app/cache.json    # 查看快照概况
//	rescachectl keys /var/lib/app/cache.json       # 列出全部键
//	rescachectl convert legacy.txt cache.json      # 行格式转 JSON
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/urfave/cli/v3"
)

// 版本信息（可通过 -ldflags 注入，例如:
//
//	go build -ldflags "-X main.Version=1.0.0 -X main.GitCommit=$(git rev-parse --short HEAD) -X main.BuildTime=$(date -u +%Y-%m-%dT%H:%M:%SZ)"
//
// ）。
var (
	Version   = "0.1.0-dev"
	GitCommit = "unknown"
	BuildTime = "unknown"
)

func main() {
	os.Exit(run())
}

// createApp 创建 CLI 应用。
func createApp() *cli.Command {
	return &cli.Command{
		Name:           "rescachectl",
		Usage:          "rescache 快照文件检查与转换工具",
		Version:        fmt.Sprintf("%s (commit: %s, built: %s)", Version, GitCommit, BuildTime),
		Commands:       createCommands(),
		DefaultCommand: "help",
		// 设计决策: 禁止 urfave/cli 直接调用 os.Exit，
		// 由 run() 统一处理退出码映射，确保与文档退出码契约一致。
		ExitErrHandler: func(_ context.Context, _ *cli.Command, err error) {
			// ExitCoder 错误（如未知命令）的消息需在此输出，
			// 替代 HandleExitCoder 的默认 os.Exit 行为。
			if _, ok := err.(cli.ExitCoder); ok {
				fmt.Fprintln(os.Stderr, err)
			}
		},
		Description: `rescachectl 离线读取 rescache 写出的快照文件，不需要连接
运行中的缓存进程。

快照格式:
  JSON 对象格式        WriteToJSONFile / AutoSaver 的产物，
                       根节点为 {"键": 值, ...}
  key:value 行格式     WriteToFile 的产物，每行一个条目`,
	}
}

func run() int {
	app := createApp()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	setupSignalHandler(cancel)

	if err := app.Run(ctx, os.Args); err != nil {
		var usageErr *usageError
		if errors.As(err, &usageErr) {
			fmt.Fprintf(os.Stderr, "参数错误: %v\n", usageErr)
			return 2
		}
		// CLI 框架产生的参数错误（如未知 flag、未知命令）也返回退出码 2，
		// 与文档契约"参数错误 → 退出码 2"保持一致。
		if isCLIUsageError(err) {
			// ExitErrHandler 或 flag 解析器已向 stderr 输出错误详情，此处仅设置退出码
			return 2
		}
		fmt.Fprintf(os.Stderr, "错误: %v\n", err)
		return 1
	}

	return 0
}

// isCLIUsageError 判断是否为 CLI 框架产生的参数解析错误。
// urfave/cli 的 flag 解析错误没有专用错误类型，只能按消息识别。
func isCLIUsageError(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "flag provided but not defined") ||
		strings.Contains(msg, "flag needs an argument") ||
		strings.Contains(msg, "No help topic for")
}
