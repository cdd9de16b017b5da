package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"

	cfgpkg "qma/internal/config"
	"qma/internal/diag"
	"qma/internal/pipeline"
	"qma/pkg/registry"
)

var pipelineRun = pipeline.Run

// 退出码
const (
	exitOK      = 0
	exitRuntime = 1
	exitUsage   = 2
	exitConfig  = 3
)

// 默认配置文件名（工作目录下，存在时使用）
const defaultConfigFile = "qma.yaml"

// 用法：qma [flags] <config> [log ...]
// 第一个位置参数为配置文件（已通过 --config 或 QMA_CONFIG_FILE 指定时，全部位置参数均为输入）。
// 输入为文件/目录，或 "-" 表示 STDIN（不能与其他输入混用）；省略时读取 STDIN。
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

type cliFlags struct {
	config      string
	format      string
	orderBy     string
	logLevel    string
	logDir      string
	concurrency int
	output      string
	metrics     string
	initDir     string
	status      bool
}

func parseFlags(args []string, stderr io.Writer) (cliFlags, []string, error) {
	var f cliFlags
	fs := flag.NewFlagSet("qma", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&f.config, "config", "", "配置文件路径（YAML）；缺省取第一个位置参数，或 ./"+defaultConfigFile)
	fs.StringVar(&f.format, "format", "", "输出格式 "+strings.Join(registry.Names(registry.Renderer), "|")+"（覆盖配置）")
	fs.StringVar(&f.orderBy, "order-by", "", "按字段排序，<field> 升序 / -<field> 降序（覆盖配置）")
	fs.StringVar(&f.logLevel, "log-level", "", "日志级别 debug|info|warn|error（覆盖配置）")
	fs.StringVar(&f.logDir, "log-dir", "", "日志目录；为空写 stderr（覆盖配置）")
	fs.IntVar(&f.concurrency, "concurrency", 0, "并行读取的输入数（覆盖配置）")
	fs.StringVar(&f.output, "output", "", "输出文件路径，\"-\" 为 STDOUT（覆盖 options.writer）")
	fs.StringVar(&f.metrics, "metrics-textfile", "", "运行结束后写出 Prometheus textfile（覆盖配置）")
	fs.StringVar(&f.initDir, "init-config", "", "在指定目录生成配置模板 "+defaultConfigFile+"（已存在则跳过）；不带值时为当前目录")
	fs.BoolVar(&f.status, "status", true, "终端状态提示（stderr）。TTY 动态刷新；非 TTY 逐行输出")
	fs.Usage = func() {
		fprintf(stderr, "用法: qma [flags] <config> [log ...]\n\n")
		fs.PrintDefaults()
	}
	if err := fs.Parse(normalizeInitArg(args)); err != nil {
		return f, nil, err
	}
	return f, fs.Args(), nil
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	start := time.Now()
	corrID := uuid.NewString()
	// 在任何 ENV 读取前加载工作目录下的 .env（不覆盖已有 ENV）
	if err := loadDotEnv(".env"); err != nil {
		fprintf(stderr, "提示：.env 读取失败（已跳过）：%v\n", err)
	}

	flags, rest, err := parseFlags(args, stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return exitOK
		}
		return exitUsage
	}

	// 启动期日志：最终级别确定前按默认级别写 stderr
	logger := diag.NewLoggerTo(corrID, "", stderr)

	if dir := strings.TrimSpace(flags.initDir); dir != "" {
		if err := writeTemplate(dir, stdout); err != nil {
			fprintf(stderr, "生成配置模板失败: %v\n", err)
			logger.Error("config", string(diag.Classify(err)), "init-config", &start)
			return exitConfig
		}
		return exitOK
	}

	cfgPath, inputs := resolveConfigPath(flags.config, rest)
	if cfgPath == "" {
		fprintf(stderr, "缺少配置文件：qma [flags] <config> [log ...]\n")
		return exitUsage
	}

	cfg, err := buildConfig(cfgPath, inputs, flags)
	if err != nil {
		fprintf(stderr, "配置错误: %v\n", err)
		logger.Error("config", string(diag.Classify(err)), "first error", &start)
		return exitConfig
	}

	// 使用最终配置重建 logger
	logger = diag.NewLogger(corrID, cfg.Logging.Level, cfg.Logging.Dir)
	defer func() { _ = logger.Close() }()

	comp, set, err := cfgpkg.Assemble(cfg)
	if err != nil {
		fprintf(stderr, "装配失败: %v\n", err)
		logger.Error("config", string(diag.Classify(err)), "first error", &start)
		return exitConfig
	}

	diag.ResetMetrics()
	term := diag.NewTerminal(stderr, flags.status)
	diag.SetTerminal(term)
	defer diag.SetTerminal(nil)

	if logger.Enabled(diag.Debug) {
		logger.Debug("config", "effective", cfgPath, map[string]string{
			"inputs_count":  fmt.Sprintf("%d", len(set.Inputs)),
			"concurrency":   fmt.Sprintf("%d", set.Concurrency),
			"output_format": cfg.OutputFormat,
			"order_by":      set.Definition.OrderBy().String(),
			"index":         set.Definition.Index().Name,
			"fields":        strings.Join(set.Definition.FieldNames(), ","),
			"reader":        cfg.Components.Reader,
			"writer":        cfg.Components.Writer,
		})
	}

	if err := pipelineRun(ctx, comp, set, logger); err != nil {
		// pipeline 已记录日志与指标；此处只给出人类可读的提示
		if !errors.Is(err, context.Canceled) {
			fprintf(stderr, "运行失败: %v\n", err)
		}
		return exitRuntime
	}
	return exitOK
}

// resolveConfigPath 配置来源优先级：--config > QMA_CONFIG_FILE > 第一个位置参数 > ./qma.yaml。
func resolveConfigPath(flagPath string, rest []string) (string, []string) {
	if p := strings.TrimSpace(flagPath); p != "" {
		return p, rest
	}
	if p := strings.TrimSpace(os.Getenv("QMA_CONFIG_FILE")); p != "" {
		return p, rest
	}
	if len(rest) > 0 {
		return rest[0], rest[1:]
	}
	if st, err := os.Stat(defaultConfigFile); err == nil && !st.IsDir() {
		return defaultConfigFile, nil
	}
	return "", nil
}

// buildConfig 合并顺序：Defaults < 文件 < ENV < CLI。
func buildConfig(path string, inputs []string, flags cliFlags) (cfgpkg.Config, error) {
	base, err := cfgpkg.LoadFile(path)
	if err != nil {
		return cfgpkg.Config{}, err
	}
	cfg := cfgpkg.Merge(cfgpkg.Defaults(), base)

	overEnv, err := cfgpkg.EnvOverlay(os.Environ())
	if err != nil {
		return cfgpkg.Config{}, err
	}
	cfg = cfgpkg.Merge(cfg, overEnv)

	overCLI := cfgpkg.Config{
		Inputs:       inputs,
		OutputFormat: flags.format,
		OrderBy:      flags.orderBy,
		Concurrency:  flags.concurrency,
		Logging:      cfgpkg.Logging{Level: flags.logLevel, Dir: flags.logDir},
		Metrics:      cfgpkg.Metrics{Textfile: flags.metrics},
	}
	cfg = cfgpkg.Merge(cfg, overCLI)
	if out := strings.TrimSpace(flags.output); out != "" {
		cfg = cfgpkg.WithWriterPath(cfg, out)
	}
	if err := cfgpkg.Validate(cfg); err != nil {
		return cfgpkg.Config{}, err
	}
	return cfg, nil
}

func fprintf(w io.Writer, format string, a ...any) { _, _ = fmt.Fprintf(w, format, a...) }

// writeTemplate 在 dir 下生成配置模板；dir 为 "-" 时写 stdout。不覆盖已存在文件。
func writeTemplate(dir string, stdout io.Writer) error {
	b, err := cfgpkg.TemplateYAML()
	if err != nil {
		return errors.Wrap(err, "marshal template")
	}
	if dir == "-" {
		_, err = stdout.Write(b)
		return err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.Wrapf(err, "mkdir %s", dir)
	}
	path := filepath.Join(dir, defaultConfigFile)
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if os.IsExist(err) {
			return nil
		}
		return errors.Wrapf(err, "create %s", path)
	}
	if _, err := f.Write(b); err != nil {
		_ = f.Close()
		return errors.Wrapf(err, "write %s", path)
	}
	return f.Close()
}

// loadDotEnv 读取简单的 .env 文件并注入进程环境。
// 规则：
// - 忽略不存在的文件；
// - 跳过空行与 # 注释行；支持可选前缀 "export "；
// - 仅按首个 '=' 分割；成对的单/双引号被去除，双引号内处理 \n \t \" \\；
// - 不覆盖已存在的环境变量。
func loadDotEnv(path string) error {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	defer f.Close()
	s := bufio.NewScanner(f)
	for s.Scan() {
		line := strings.TrimSpace(s.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		line = strings.TrimSpace(strings.TrimPrefix(line, "export "))
		key, val, ok := strings.Cut(line, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			continue
		}
		val = unquote(strings.TrimSpace(val))
		if _, exists := os.LookupEnv(key); exists {
			continue
		}
		_ = os.Setenv(key, val)
	}
	return s.Err()
}

func unquote(val string) string {
	if len(val) < 2 {
		return val
	}
	q := val[0]
	if (q != '\'' && q != '"') || val[len(val)-1] != q {
		return val
	}
	val = val[1 : len(val)-1]
	if q == '"' {
		val = strings.NewReplacer(`\n`, "\n", `\t`, "\t", `\"`, `"`, `\\`, `\`).Replace(val)
	}
	return val
}

// normalizeInitArg 允许 --init-config 不带值（等价于 --init-config .）。
//
//	--init-config          => --init-config .
//	--init-config=out
//	--init-config out
func normalizeInitArg(args []string) []string {
	out := make([]string, 0, len(args)+1)
	for i, a := range args {
		out = append(out, a)
		if a != "--init-config" && a != "-init-config" {
			continue
		}
		if i == len(args)-1 || strings.HasPrefix(args[i+1], "-") && args[i+1] != "-" {
			out = append(out, ".")
		}
	}
	return out
}
