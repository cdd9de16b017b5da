package markdown

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"qma/pkg/contract"
)

func exampleFrame() contract.Frame {
	return contract.Frame{
		Index:  "method",
		Fields: []string{"latency", "requestMethod"},
		Rows: []contract.FrameRow{
			{Key: "GET", Cells: []contract.Value{contract.Float(2), contract.Integer(2)}},
			{Key: "POST", Cells: []contract.Value{contract.Float(1), contract.Integer(1)}},
		},
	}
}

func render(t *testing.T, r *Renderer, f contract.Frame) string {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, r.Render(&buf, f))
	return buf.String()
}

// TestRenderExample 列宽 max(10, 表头)；键左对齐、数值右对齐。
func TestRenderExample(t *testing.T) {
	want := "|method    |latency   |requestMethod|\n" +
		"|:---------|:---------|:------------|\n" +
		"|GET       |    2.0000|            2|\n" +
		"|POST      |    1.0000|            1|\n"
	assert.Equal(t, want, render(t, New(nil), exampleFrame()))
}

// TestRenderIdempotent 重复渲染逐字节一致。
func TestRenderIdempotent(t *testing.T) {
	r := New(nil)
	assert.Equal(t, render(t, r, exampleFrame()), render(t, r, exampleFrame()))
}

func longFrame() contract.Frame {
	return contract.Frame{
		Index:  "path",
		Fields: []string{"latency"},
		Rows: []contract.FrameRow{
			{Key: "/api/v1/users/search", Cells: []contract.Value{contract.Duration(12345.5)}},
			{Key: "/", Cells: []contract.Value{contract.Missing()}},
		},
	}
}

// TestWidenToData 默认按数据加宽，各行等长。
func TestWidenToData(t *testing.T) {
	out := render(t, New(nil), longFrame())
	want := "|path                |latency      |\n" +
		"|:-------------------|:------------|\n" +
		"|/api/v1/users/search|12345.5000sec|\n" +
		"|/                   |            -|\n"
	assert.Equal(t, want, out)
	lines := strings.Split(strings.TrimSuffix(out, "\n"), "\n")
	for _, l := range lines {
		assert.Equal(t, len(lines[0]), len(l), "line %q", l)
	}
}

// TestHeaderOnlyWidths widen_to_data=false 保留仅按表头计算的列宽。
func TestHeaderOnlyWidths(t *testing.T) {
	off := false
	out := render(t, New(&Options{WidenToData: &off}), longFrame())
	want := "|path      |latency   |\n" +
		"|:---------|:---------|\n" +
		"|/api/v1/users/search|12345.5000sec|\n" +
		"|/         |         -|\n"
	assert.Equal(t, want, out)
}

// TestWideRunes 东亚宽字符按 2 列计算。
func TestWideRunes(t *testing.T) {
	assert.Equal(t, 4, DisplayWidth("方法"))
	assert.Equal(t, 3, DisplayWidth("abc"))
	assert.Equal(t, 2, DisplayWidth("Ａ"), "全角")
	assert.Equal(t, 1, DisplayWidth("é"))

	f := contract.Frame{
		Index:  "方法",
		Fields: []string{"次数"},
		Rows:   []contract.FrameRow{{Key: "获取", Cells: []contract.Value{contract.Integer(3)}}},
	}
	want := "|方法      |次数      |\n" +
		"|:---------|:---------|\n" +
		"|获取      |         3|\n"
	assert.Equal(t, want, render(t, New(nil), f))
}

// TestEmptyFrame 无数据行仍输出表头与分隔行。
func TestEmptyFrame(t *testing.T) {
	out := render(t, New(nil), contract.Frame{Index: "k", Fields: []string{"n"}})
	assert.Equal(t, "|k         |n         |\n|:---------|:---------|\n", out)
}
