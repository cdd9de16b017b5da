package config

import (
	"gopkg.in/yaml.v3"
)

// DefaultTemplateConfig 返回可直接运行的配置模板：
// 按请求方法分组统计 Cloud Logging 风格访问日志的平均延迟与请求数。
// 输入默认为 STDIN，输出 markdown 到 STDOUT。
func DefaultTemplateConfig() Config {
	d := Defaults()
	cfg := Config{
		OutputFormat: d.OutputFormat,
		Concurrency:  d.Concurrency,
		Logging:      d.Logging,
		Index:        Index{Name: "method", Accessor: "httpRequest.requestMethod"},
		Fields: []Field{
			{Name: "latency", Accessor: "httpRequest.latency", Dtype: "second", Operation: "average"},
			{Name: "requests", Accessor: "httpRequest.requestMethod", Dtype: "string", Operation: "count"},
		},
		Components: d.Components,
	}
	// 选项给出全部键与中性默认值
	cfg.Options.Reader = mustNode(`
buf_size: 65536
exclude_dir_names: [".git"]
extensions: []
decompress: true
`)
	cfg.Options.Writer = mustNode(`
path: ""
output_dir: ""
atomic: true
perm_file: 0
perm_dir: 0
buf_size: 65536
`)
	cfg.Options.Renderer = mustNode(`
widen_to_data: true
`)
	return cfg
}

// TemplateYAML 模板的 YAML 文本。
func TemplateYAML() ([]byte, error) {
	return yaml.Marshal(DefaultTemplateConfig())
}

func mustNode(src string) yaml.Node {
	var doc yaml.Node
	if err := yaml.Unmarshal([]byte(src), &doc); err != nil {
		panic(err)
	}
	return *doc.Content[0]
}
