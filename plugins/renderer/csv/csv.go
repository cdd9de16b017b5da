// Package csv 以逗号分隔文本渲染聚合表。不做引号/转义。
package csv

import (
	"bufio"
	"io"
	"strings"

	"github.com/cockroachdb/errors"

	"qma/pkg/contract"
)

// Options 渲染选项。
type Options struct {
	// Delimiter 列分隔符；为空时使用 ","。
	Delimiter string `yaml:"delimiter"`
}

// Renderer CSV 渲染器。
type Renderer struct {
	sep string
}

// New 创建渲染器；opts 可为 nil。
func New(opts *Options) *Renderer {
	sep := ","
	if opts != nil && opts.Delimiter != "" {
		sep = opts.Delimiter
	}
	return &Renderer{sep: sep}
}

var _ contract.Renderer = (*Renderer)(nil)

// Render 表头一行，之后每行 键,单元格...；行尾 "\n"。
func (r *Renderer) Render(w io.Writer, f contract.Frame) error {
	bw := bufio.NewWriter(w)
	_, _ = bw.WriteString(strings.Join(f.Header(), r.sep))
	_ = bw.WriteByte('\n')
	cells := make([]string, 0, 1+len(f.Fields))
	for _, row := range f.Rows {
		cells = append(cells[:0], row.Key)
		for _, c := range row.Cells {
			cells = append(cells, c.Display())
		}
		_, _ = bw.WriteString(strings.Join(cells, r.sep))
		_ = bw.WriteByte('\n')
	}
	if err := bw.Flush(); err != nil {
		return errors.Wrap(err, "csv: flush")
	}
	return nil
}
