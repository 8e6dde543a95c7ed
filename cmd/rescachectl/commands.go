package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"text/tabwriter"

	"github.com/urfave/cli/v3"
)

// usageError 表示参数错误的场景（退出码 2）。
type usageError struct {
	msg string
}

func (e *usageError) Error() string { return e.msg }

// snapshotEntry 快照中的单个条目概况。
type snapshotEntry struct {
	Key  string
	Size int // 序列化后值的字节数
}

// 创建所有子命令。
func createCommands() []*cli.Command {
	return []*cli.Command{
		createInspectCommand(),
		createKeysCommand(),
		createConvertCommand(),
	}
}

// createInspectCommand 创建 inspect 子命令。
func createInspectCommand() *cli.Command {
	return &cli.Command{
		Name:      "inspect",
		Aliases:   []string{"i"},
		Usage:     "查看 JSON 快照的条目数与每个键的值大小",
		ArgsUsage: "<file>",
		Action: func(_ context.Context, cmd *cli.Command) error {
			return cmdInspect(os.Stdout, cmd.Args().Slice())
		},
	}
}

// createKeysCommand 创建 keys 子命令。
func createKeysCommand() *cli.Command {
	return &cli.Command{
		Name:      "keys",
		Aliases:   []string{"k"},
		Usage:     "列出 JSON 快照中的全部键（按字典序）",
		ArgsUsage: "<file>",
		Action: func(_ context.Context, cmd *cli.Command) error {
			return cmdKeys(os.Stdout, cmd.Args().Slice())
		},
	}
}

// createConvertCommand 创建 convert 子命令。
func createConvertCommand() *cli.Command {
	return &cli.Command{
		Name:      "convert",
		Aliases:   []string{"c"},
		Usage:     "把 key:value 行格式快照转换为 JSON 对象格式",
		ArgsUsage: "<in> <out>",
		Action: func(_ context.Context, cmd *cli.Command) error {
			return cmdConvert(os.Stdout, cmd.Args().Slice())
		},
	}
}

// cmdInspect 打印快照概况：条目数、每个键的值大小以及合计大小。
func cmdInspect(w io.Writer, args []string) error {
	if len(args) != 1 {
		return &usageError{msg: "inspect 命令需要且仅需要一个快照文件参数"}
	}

	entries, err := loadJSONSnapshot(args[0])
	if err != nil {
		return err
	}

	fmt.Fprintf(w, "快照: %s\n", args[0])
	fmt.Fprintf(w, "条目数: %d\n", len(entries))
	if len(entries) == 0 {
		return nil
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	var total int
	for _, e := range entries {
		fmt.Fprintf(tw, "%s\t%d B\n", e.Key, e.Size)
		total += e.Size
	}
	fmt.Fprintf(tw, "(合计)\t%d B\n", total)
	return tw.Flush()
}

// cmdKeys 按字典序打印快照中的全部键，每行一个。
func cmdKeys(w io.Writer, args []string) error {
	if len(args) != 1 {
		return &usageError{msg: "keys 命令需要且仅需要一个快照文件参数"}
	}

	entries, err := loadJSONSnapshot(args[0])
	if err != nil {
		return err
	}

	for _, e := range entries {
		fmt.Fprintln(w, e.Key)
	}
	return nil
}

// cmdConvert 把行格式快照转换为 JSON 对象格式并写入目标文件。
func cmdConvert(w io.Writer, args []string) error {
	if len(args) != 2 {
		return &usageError{msg: "convert 命令需要输入和输出两个文件参数"}
	}
	in, out := args[0], args[1]

	data, err := os.ReadFile(in)
	if err != nil {
		return fmt.Errorf("读取输入文件失败: %w", err)
	}

	converted, count, skipped, err := convertSnapshot(data)
	if err != nil {
		return err
	}

	if err := os.WriteFile(out, converted, 0o600); err != nil {
		return fmt.Errorf("写入输出文件失败: %w", err)
	}

	fmt.Fprintf(w, "已转换 %d 个条目: %s\n", count, out)
	if skipped > 0 {
		fmt.Fprintf(w, "跳过 %d 个无法解析的行\n", skipped)
	}
	return nil
}

// loadJSONSnapshot 读取 JSON 对象格式的快照文件，返回按键排序的条目概况。
func loadJSONSnapshot(path string) ([]snapshotEntry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("读取快照失败: %w", err)
	}

	var snapshot map[string]json.RawMessage
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return nil, fmt.Errorf("解析快照失败（根节点必须是 JSON 对象）: %w", err)
	}

	entries := make([]snapshotEntry, 0, len(snapshot))
	for key, raw := range snapshot {
		entries = append(entries, snapshotEntry{Key: key, Size: len(raw)})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Key < entries[j].Key })
	return entries, nil
}

// parseLineSnapshot 解析「key:value」行格式快照。
// 与缓存载入快照的语义一致：按第一个冒号切分键与值，没有冒号分隔符
// 或键为空的行计入 skipped，空白行直接忽略。
func parseLineSnapshot(data []byte) (items map[string]string, skipped int) {
	items = make(map[string]string)
	for line := range strings.SplitSeq(string(data), "\n") {
		key, raw, found := strings.Cut(line, ":")
		if !found || key == "" {
			if strings.TrimSpace(line) != "" {
				skipped++
			}
			continue
		}
		items[key] = raw
	}
	return items, skipped
}

// convertSnapshot 把行格式快照编码为 JSON 对象格式。
// 输出与 WriteToJSONFile 的产物同构，可直接交给 ReadFromJSONFile 载入。
func convertSnapshot(data []byte) (converted []byte, count, skipped int, err error) {
	items, skipped := parseLineSnapshot(data)

	out, err := json.MarshalIndent(items, "", "    ")
	if err != nil {
		return nil, 0, 0, fmt.Errorf("编码快照失败: %w", err)
	}
	return append(out, '\n'), len(items), skipped, nil
}

// setupSignalHandler 注册中断信号处理。
// 第一次信号取消 context 让命令体面收尾，第二次信号直接退出
// （退出码 130 = 128 + SIGINT）。
func setupSignalHandler(cancel context.CancelFunc) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()

		<-sigCh
		signal.Stop(sigCh)
		os.Exit(130)
	}()
}
