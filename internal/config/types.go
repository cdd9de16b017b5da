package config

import "gopkg.in/yaml.v3"

// Config 运行期只读配置（一次解析，运行期不变）。
// YAML 使用 snake_case；未知字段在解析期失败。JSON 作为 YAML 子集同样可用。
type Config struct {
	Inputs []string `yaml:"inputs,omitempty"`
	// OutputFormat: csv | markdown（空取默认 markdown）。
	OutputFormat string `yaml:"output_format,omitempty"`
	// OrderBy: "" | <field> | -<field>。
	OrderBy     string  `yaml:"order_by,omitempty"`
	Concurrency int     `yaml:"concurrency,omitempty"`
	Logging     Logging `yaml:"logging,omitempty"`
	Metrics     Metrics `yaml:"metrics,omitempty"`

	Index  Index   `yaml:"index"`
	Fields []Field `yaml:"fields"`

	// 组件名选择（空则使用默认名）。
	Components Components `yaml:"components,omitempty"`
	// 各组件选项子树，原样交给工厂严格解码。
	Options Options `yaml:"options,omitempty"`
}

// Logging 日志级别与目录；Dir 为空时写 stderr。
type Logging struct {
	Level string `yaml:"level,omitempty"`
	Dir   string `yaml:"dir,omitempty"`
}

// Metrics Prometheus textfile 输出路径（空则不写）。
type Metrics struct {
	Textfile string `yaml:"textfile,omitempty"`
}

// Index 分组键。
type Index struct {
	Name     string `yaml:"name"`
	Accessor string `yaml:"accessor"`
}

// Field 统计字段。Dtype: string|integer|float|second；Operation: 注册的算子名。
type Field struct {
	Name      string `yaml:"name"`
	Accessor  string `yaml:"accessor"`
	Dtype     string `yaml:"dtype"`
	Operation string `yaml:"operation"`
}

// Components 组件名（注册表中的实现名）。
type Components struct {
	Reader string `yaml:"reader,omitempty"`
	Writer string `yaml:"writer,omitempty"`
}

// Options 各组件的原样 YAML 选项。渲染器选项按 output_format 选中的实现解码。
type Options struct {
	Reader   yaml.Node `yaml:"reader,omitempty"`
	Writer   yaml.Node `yaml:"writer,omitempty"`
	Renderer yaml.Node `yaml:"renderer,omitempty"`
}
