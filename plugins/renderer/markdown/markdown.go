// Package markdown 以定宽对齐的 Markdown 表格渲染聚合表。
package markdown

import (
	"bufio"
	"io"
	"strings"

	"github.com/cockroachdb/errors"
	"golang.org/x/text/width"

	"qma/pkg/contract"
)

// minWidth 列最小宽度。
const minWidth = 10

// Options 渲染选项。
type Options struct {
	// WidenToData 列宽同时覆盖最宽的数据单元格（默认 true）；
	// false 时只按表头计算列宽，数据过长会错位。
	WidenToData *bool `yaml:"widen_to_data"`
}

// Renderer Markdown 渲染器。
type Renderer struct {
	widen bool
}

// New 创建渲染器；opts 可为 nil。
func New(opts *Options) *Renderer {
	widen := true
	if opts != nil && opts.WidenToData != nil {
		widen = *opts.WidenToData
	}
	return &Renderer{widen: widen}
}

var _ contract.Renderer = (*Renderer)(nil)

// Render 表头 + 分隔行 + 数据行。表头与键列左对齐，数据列右对齐。
func (r *Renderer) Render(w io.Writer, f contract.Frame) error {
	header := f.Header()
	widths := make([]int, len(header))
	for i, h := range header {
		widths[i] = max(minWidth, DisplayWidth(h))
	}
	text := make([][]string, len(f.Rows))
	for i, row := range f.Rows {
		line := make([]string, 0, len(header))
		line = append(line, row.Key)
		for _, c := range row.Cells {
			line = append(line, c.Display())
		}
		text[i] = line
		if r.widen {
			for j, s := range line {
				if j < len(widths) {
					widths[j] = max(widths[j], DisplayWidth(s))
				}
			}
		}
	}

	bw := bufio.NewWriter(w)
	_ = bw.WriteByte('|')
	for i, h := range header {
		writePadded(bw, h, widths[i], false)
		_ = bw.WriteByte('|')
	}
	_ = bw.WriteByte('\n')
	for _, wd := range widths {
		_, _ = bw.WriteString("|:")
		_, _ = bw.WriteString(strings.Repeat("-", wd-1))
	}
	_, _ = bw.WriteString("|\n")
	for _, line := range text {
		_ = bw.WriteByte('|')
		for j, s := range line {
			wd := minWidth
			if j < len(widths) {
				wd = widths[j]
			}
			writePadded(bw, s, wd, j > 0)
			_ = bw.WriteByte('|')
		}
		_ = bw.WriteByte('\n')
	}
	if err := bw.Flush(); err != nil {
		return errors.Wrap(err, "markdown: flush")
	}
	return nil
}

func writePadded(bw *bufio.Writer, s string, wd int, right bool) {
	pad := wd - DisplayWidth(s)
	if right && pad > 0 {
		_, _ = bw.WriteString(strings.Repeat(" ", pad))
	}
	_, _ = bw.WriteString(s)
	if !right && pad > 0 {
		_, _ = bw.WriteString(strings.Repeat(" ", pad))
	}
}

// DisplayWidth 终端显示宽度：东亚宽字符与全角字符计 2 列，其余计 1 列。
func DisplayWidth(s string) int {
	n := 0
	for _, r := range s {
		switch width.LookupRune(r).Kind() {
		case width.EastAsianWide, width.EastAsianFullwidth:
			n += 2
		default:
			n++
		}
	}
	return n
}
