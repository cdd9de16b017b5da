package contract

import (
	"strings"

	"github.com/tidwall/gjson"
)

// Accessor: 命名的嵌套对象路径 + 声明类型。配置期构造一次，之后只读。
type Accessor struct {
	Name string
	Path []string
	Kind Kind
}

// ParseAccessor 按 '.' 拆分点分路径；空串得到空路径（指向根）。
func ParseAccessor(name, dotted string, kind Kind) Accessor {
	var path []string
	if dotted != "" {
		path = strings.Split(dotted, ".")
	}
	return Accessor{Name: name, Path: path, Kind: kind}
}

// Dotted 返回点分形式（日志/诊断用）。
func (a Accessor) Dotted() string { return strings.Join(a.Path, ".") }

// Lookup 在文档中解析路径并按声明类型转换。
// 未找到返回 ok=false；找到但无法转换返回 (Missing, true)。
func (a Accessor) Lookup(doc gjson.Result) (Value, bool) {
	raw, ok := Resolve(doc, a.Path)
	if !ok {
		return Missing(), false
	}
	return Parse(a.Kind, raw), true
}

// Resolve 逐段下钻嵌套对象，返回叶子处的原始字符串。
// 约束：
// 1) 任一段缺失或中间值不是对象 → 未找到（不报错）；
// 2) 叶子必须是 JSON 字符串，其他标量在此不做转换；
// 3) 段名按字面匹配（gjson 路径语法字符已转义）。
func Resolve(doc gjson.Result, path []string) (string, bool) {
	cur := doc
	for _, seg := range path {
		if !cur.IsObject() {
			return "", false
		}
		cur = cur.Get(gjson.Escape(seg))
		if !cur.Exists() {
			return "", false
		}
	}
	if cur.Type != gjson.String {
		return "", false
	}
	return cur.Str, true
}
