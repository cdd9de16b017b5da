package logrecord

import (
	"context"
	"strings"
	"testing"
	"testing/iotest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"qma/internal/aggregate"
	"qma/pkg/contract"
	"qma/plugins/operation/average"
	"qma/plugins/operation/count"
)

func testDef(t *testing.T) *aggregate.Definition {
	t.Helper()
	d, err := aggregate.NewDefinition(
		aggregate.IndexSpec{Name: "method", Accessor: contract.ParseAccessor("method", "httpRequest.requestMethod", contract.KindString)},
		[]aggregate.FieldSpec{
			{Name: "latency", Accessor: contract.ParseAccessor("", "httpRequest.latency", contract.KindDuration), Operation: "average",
				New: func() contract.Operation { return average.New() }},
			{Name: "requestMethod", Accessor: contract.ParseAccessor("", "httpRequest.requestMethod", contract.KindString), Operation: "count",
				New: func() contract.Operation { return count.New() }},
		},
		aggregate.OrderBy{},
	)
	require.NoError(t, err)
	return d
}

const exampleLog = `{"httpRequest":{"requestMethod":"GET","latency":"100ms"}}
{"httpRequest":{"requestMethod":"GET","latency":"2.0s"}}
{"httpRequest":{"requestMethod":"POST","latency":"1.0s"}}
`

func scanInto(t *testing.T, input string) (*aggregate.Table, Stats) {
	t.Helper()
	def := testDef(t)
	tb := aggregate.NewTable(def)
	st, err := Scan(context.Background(), strings.NewReader(input), NewExtractor(def), tb.Update)
	require.NoError(t, err)
	return tb, st
}

// TestScanExample 三行样例端到端。
func TestScanExample(t *testing.T) {
	tb, st := scanInto(t, exampleLog)
	assert.Equal(t, Stats{Lines: 3, Records: 3}, st)

	get, ok := tb.Row("GET")
	require.True(t, ok)
	assert.True(t, contract.Float(2).Equal(get.Value("latency")))
	assert.True(t, contract.Integer(2).Equal(get.Value("requestMethod")))
	post, _ := tb.Row("POST")
	assert.True(t, contract.Float(1).Equal(post.Value("latency")))
	assert.True(t, contract.Integer(1).Equal(post.Value("requestMethod")))
}

// TestScanHaltsOnInvalidLine 非法行之后的内容不再读取。
func TestScanHaltsOnInvalidLine(t *testing.T) {
	in := `{"httpRequest":{"requestMethod":"GET","latency":"1s"}}
{"httpRequest":
{"httpRequest":{"requestMethod":"PUT","latency":"1s"}}
`
	tb, st := scanInto(t, in)
	assert.True(t, st.Halted)
	assert.Equal(t, 2, st.HaltLine)
	assert.Equal(t, 1, st.Records)
	assert.Equal(t, 1, tb.Len())
	_, ok := tb.Row("PUT")
	assert.False(t, ok)
}

// TestScanBlankLineHalts 空行同样视为解码失败。
func TestScanBlankLineHalts(t *testing.T) {
	in := "{\"httpRequest\":{\"requestMethod\":\"GET\"}}\n\n{\"httpRequest\":{\"requestMethod\":\"PUT\"}}\n"
	_, st := scanInto(t, in)
	assert.True(t, st.Halted)
	assert.Equal(t, 2, st.HaltLine)
	assert.Equal(t, 1, st.Records)
}

// TestScanDropsKeyless 键缺失或非字符串的记录被丢弃，不归入哨兵键。
func TestScanDropsKeyless(t *testing.T) {
	in := `{"httpRequest":{"latency":"1s"}}
{"httpRequest":{"requestMethod":7,"latency":"1s"}}
"just a string"
{"httpRequest":{"requestMethod":"GET","latency":"3s"}}`
	tb, st := scanInto(t, in)
	assert.Equal(t, Stats{Lines: 4, Records: 1, Dropped: 3}, st)
	assert.Equal(t, 1, tb.Len())
	get, _ := tb.Row("GET")
	assert.True(t, contract.Float(3).Equal(get.Value("latency")), "末行无换行也要处理")
}

// TestScanCRLF Windows 换行。
func TestScanCRLF(t *testing.T) {
	in := "{\"httpRequest\":{\"requestMethod\":\"GET\",\"latency\":\"1s\"}}\r\n{\"httpRequest\":{\"requestMethod\":\"GET\",\"latency\":\"3s\"}}\r\n"
	tb, st := scanInto(t, in)
	assert.False(t, st.Halted)
	get, _ := tb.Row("GET")
	assert.True(t, contract.Float(2).Equal(get.Value("latency")))
}

// TestScanEmpty 空输入不产生记录。
func TestScanEmpty(t *testing.T) {
	tb, st := scanInto(t, "")
	assert.Equal(t, Stats{}, st)
	assert.Equal(t, 0, tb.Len())
}

// TestScanReadError 非 EOF 读错误向上返回。
func TestScanReadError(t *testing.T) {
	def := testDef(t)
	r := iotest.TimeoutReader(strings.NewReader(strings.Repeat("x", 8192)))
	_, err := Scan(context.Background(), r, NewExtractor(def), func(string, map[string]contract.Value) {})
	require.Error(t, err)
	assert.ErrorIs(t, err, iotest.ErrTimeout)
}

// TestScanCanceled 取消后在下一行之前退出。
func TestScanCanceled(t *testing.T) {
	def := testDef(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	st, err := Scan(ctx, strings.NewReader(exampleLog), NewExtractor(def), func(string, map[string]contract.Value) {})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, st.Lines)
}

// TestExtract 未解析字段不写入，值按声明类型转换。
func TestExtract(t *testing.T) {
	ex := NewExtractor(testDef(t))
	values := map[string]contract.Value{"stale": contract.String("x")}
	key, ok := ex.Extract(gjson.Parse(`{"httpRequest":{"requestMethod":"GET"}}`), values)
	require.True(t, ok)
	assert.Equal(t, "GET", key)
	assert.NotContains(t, values, "latency")
	assert.NotContains(t, values, "stale")
	assert.True(t, contract.String("GET").Equal(values["requestMethod"]))
}

// BenchmarkScan 端到端行解析吞吐。
func BenchmarkScan(b *testing.B) {
	def, _ := aggregate.NewDefinition(
		aggregate.IndexSpec{Name: "method", Accessor: contract.ParseAccessor("method", "httpRequest.requestMethod", contract.KindString)},
		[]aggregate.FieldSpec{{Name: "latency", Accessor: contract.ParseAccessor("", "httpRequest.latency", contract.KindDuration), Operation: "average",
			New: func() contract.Operation { return average.New() }}},
		aggregate.OrderBy{},
	)
	ex := NewExtractor(def)
	input := strings.Repeat(`{"httpRequest":{"requestMethod":"GET","latency":"0.25s"}}`+"\n", 1000)
	b.SetBytes(int64(len(input)))
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		tb := aggregate.NewTable(def)
		if _, err := Scan(context.Background(), strings.NewReader(input), ex, tb.Update); err != nil {
			b.Fatal(err)
		}
	}
}
