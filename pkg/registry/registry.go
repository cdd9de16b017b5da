// Package registry 保存插件工厂：名称 → 构造函数（显式、零反射）。
package registry

import (
	"bytes"
	"sort"

	"github.com/cockroachdb/errors"
	"gopkg.in/yaml.v3"

	"qma/pkg/contract"
	"qma/plugins/operation/average"
	"qma/plugins/operation/count"
	rfs "qma/plugins/reader/filesystem"
	rcsv "qma/plugins/renderer/csv"
	rmd "qma/plugins/renderer/markdown"
	wfs "qma/plugins/writer/filesystem"
)

// strictDecode 严格解码插件选项：拒绝未知字段；nil/空节点保持零值（默认选项）。
func strictDecode(node *yaml.Node, v any) error {
	if node == nil || node.Kind == 0 || (node.Kind == yaml.ScalarNode && node.Tag == "!!null") {
		return nil
	}
	raw, err := yaml.Marshal(node)
	if err != nil {
		return errors.Wrap(err, "re-encode options")
	}
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(v); err != nil {
		return errors.Mark(errors.Wrap(err, "decode options"), contract.ErrConfigInvalid)
	}
	return nil
}

// NewReader 工厂签名：接收原样 YAML 选项节点。
type NewReader func(opts *yaml.Node) (contract.Reader, error)

// NewRenderer 工厂签名。
type NewRenderer func(opts *yaml.Node) (contract.Renderer, error)

// NewWriter 工厂签名。
type NewWriter func(opts *yaml.Node) (contract.Writer, error)

// Reader 工厂注册表。
var Reader = map[string]NewReader{
	// fs: 文件系统/STDIN，按扩展名透明解压
	"fs": func(node *yaml.Node) (contract.Reader, error) {
		var opts rfs.Options
		if err := strictDecode(node, &opts); err != nil {
			return nil, errors.Wrap(err, "reader fs")
		}
		return rfs.New(&opts), nil
	},
}

// Operation 聚合算子注册表（开放集合；新增算子不需要改动聚合引擎）。
var Operation = map[string]contract.NewOperation{
	"count":   func() contract.Operation { return count.New() },
	"average": func() contract.Operation { return average.New() },
}

// Renderer 渲染器注册表，键即 output_format。
var Renderer = map[string]NewRenderer{
	"csv": func(node *yaml.Node) (contract.Renderer, error) {
		var opts rcsv.Options
		if err := strictDecode(node, &opts); err != nil {
			return nil, errors.Wrap(err, "renderer csv")
		}
		return rcsv.New(&opts), nil
	},
	"markdown": func(node *yaml.Node) (contract.Renderer, error) {
		var opts rmd.Options
		if err := strictDecode(node, &opts); err != nil {
			return nil, errors.Wrap(err, "renderer markdown")
		}
		return rmd.New(&opts), nil
	},
}

// Writer 工厂注册表。
var Writer = map[string]NewWriter{
	// fs: STDOUT 或文件（原子替换可配置）
	"fs": func(node *yaml.Node) (contract.Writer, error) {
		var opts wfs.Options
		if err := strictDecode(node, &opts); err != nil {
			return nil, errors.Wrap(err, "writer fs")
		}
		return wfs.New(&opts)
	},
}

// Names 返回注册名的有序列表（错误信息与 --help 用）。
func Names[V any](m map[string]V) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// FormatExt 输出格式对应的文件扩展名。
func FormatExt(format string) string {
	switch format {
	case "markdown":
		return ".md"
	case "csv":
		return ".csv"
	default:
		return ".txt"
	}
}
