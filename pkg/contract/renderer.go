package contract

import "io"

// Frame: 渲染输入。由聚合表按确定顺序快照得到，渲染期只读。
type Frame struct {
	Index  string
	Fields []string
	Rows   []FrameRow
}

// FrameRow: 一行；Cells 与 Frame.Fields 一一对应。
type FrameRow struct {
	Key   string
	Cells []Value
}

// Header 返回表头（索引名 + 字段名）。
func (f Frame) Header() []string {
	out := make([]string, 0, 1+len(f.Fields))
	out = append(out, f.Index)
	return append(out, f.Fields...)
}

// Renderer: 将 Frame 渲染为文本。
// 约束：同一 Frame 重复渲染必须逐字节一致；不做业务计算。
type Renderer interface {
	Render(w io.Writer, f Frame) error
}
