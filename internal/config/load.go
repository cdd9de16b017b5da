package config

import (
	"bytes"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
	"gopkg.in/yaml.v3"

	"qma/pkg/contract"
)

// 环境变量前缀
const envPrefix = "QMA_"

// Defaults 返回带默认值的 Config 雏形。
func Defaults() Config {
	return Config{
		OutputFormat: "markdown",
		Concurrency:  1,
		Logging:      Logging{Level: "warn"},
		Components:   Components{Reader: "fs", Writer: "fs"},
	}
}

// LoadFile 读取并解析配置文件。
func LoadFile(path string) (Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, errors.Wrapf(err, "read config %s", path)
	}
	cfg, err := Load(raw)
	if err != nil {
		return Config{}, errors.Wrapf(err, "config %s", path)
	}
	return cfg, nil
}

// Load 严格解析 YAML（拒绝未知字段；空文档视为错误）。
func Load(raw []byte) (Config, error) {
	var cfg Config
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		if errors.Is(err, io.EOF) {
			return Config{}, errors.Wrap(contract.ErrConfigInvalid, "empty config")
		}
		return Config{}, errors.Mark(errors.Wrap(err, "decode config"), contract.ErrConfigInvalid)
	}
	return cfg, nil
}

// Merge 按优先级合并（over 覆盖 base）。
// 标量与选项子树为整体替换；Fields 非空时整体替换，不做逐项合并。
func Merge(base, over Config) Config {
	out := base
	if len(over.Inputs) > 0 {
		out.Inputs = cloneStrings(over.Inputs)
	}
	out.OutputFormat = pick(out.OutputFormat, over.OutputFormat)
	out.OrderBy = pick(out.OrderBy, over.OrderBy)
	if over.Concurrency != 0 {
		out.Concurrency = over.Concurrency
	}
	out.Logging.Level = pick(out.Logging.Level, over.Logging.Level)
	out.Logging.Dir = pick(out.Logging.Dir, over.Logging.Dir)
	out.Metrics.Textfile = pick(out.Metrics.Textfile, over.Metrics.Textfile)

	out.Index.Name = pick(out.Index.Name, over.Index.Name)
	out.Index.Accessor = pick(out.Index.Accessor, over.Index.Accessor)
	if len(over.Fields) > 0 {
		out.Fields = append([]Field(nil), over.Fields...)
	}

	out.Components.Reader = pick(out.Components.Reader, over.Components.Reader)
	out.Components.Writer = pick(out.Components.Writer, over.Components.Writer)

	if over.Options.Reader.Kind != 0 {
		out.Options.Reader = over.Options.Reader
	}
	if over.Options.Writer.Kind != 0 {
		out.Options.Writer = over.Options.Writer
	}
	if over.Options.Renderer.Kind != 0 {
		out.Options.Renderer = over.Options.Renderer
	}
	return out
}

// EnvOverlay 从 QMA_* 环境变量构建覆盖层。未知键忽略；数值非法时报错。
// 支持：INPUTS, OUTPUT_FORMAT, ORDER_BY, CONCURRENCY, LOG_LEVEL, LOG_DIR,
// METRICS_TEXTFILE, COMPONENTS_READER, COMPONENTS_WRITER。
func EnvOverlay(environ []string) (Config, error) {
	var over Config
	for _, kv := range environ {
		key, val, ok := strings.Cut(kv, "=")
		if !ok || !strings.HasPrefix(key, envPrefix) {
			continue
		}
		val = strings.TrimSpace(val)
		switch strings.TrimPrefix(key, envPrefix) {
		case "INPUTS":
			over.Inputs = splitComma(val)
		case "OUTPUT_FORMAT":
			over.OutputFormat = val
		case "ORDER_BY":
			over.OrderBy = val
		case "CONCURRENCY":
			if val == "" {
				continue
			}
			n, err := strconv.Atoi(val)
			if err != nil {
				return Config{}, errors.Mark(errors.Wrapf(err, "%sCONCURRENCY", envPrefix), contract.ErrConfigInvalid)
			}
			over.Concurrency = n
		case "LOG_LEVEL":
			over.Logging.Level = val
		case "LOG_DIR":
			over.Logging.Dir = val
		case "METRICS_TEXTFILE":
			over.Metrics.Textfile = val
		case "COMPONENTS_READER":
			over.Components.Reader = val
		case "COMPONENTS_WRITER":
			over.Components.Writer = val
		}
	}
	return over, nil
}

func pick(cur, over string) string {
	if t := strings.TrimSpace(over); t != "" {
		return t
	}
	return cur
}

func cloneStrings(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	return append([]string(nil), in...)
}

func splitComma(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, p := range strings.Split(s, ",") {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}

// WithWriterPath 用 path 覆盖 options.writer.path，并清除与之互斥的 output_dir。
func WithWriterPath(cfg Config, path string) Config {
	node := cfg.Options.Writer
	if node.Kind != yaml.MappingNode {
		node = yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
	}
	content := make([]*yaml.Node, 0, len(node.Content)+2)
	for i := 0; i+1 < len(node.Content); i += 2 {
		switch node.Content[i].Value {
		case "path", "output_dir":
			continue
		}
		content = append(content, node.Content[i], node.Content[i+1])
	}
	content = append(content,
		&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: "path"},
		&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: path},
	)
	node.Content = content
	cfg.Options.Writer = node
	return cfg
}
