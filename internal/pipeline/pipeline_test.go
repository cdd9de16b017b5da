package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"testing/iotest"

	"github.com/cockroachdb/errors"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"qma/internal/aggregate"
	"qma/internal/diag"
	"qma/pkg/contract"
	"qma/plugins/operation/average"
	"qma/plugins/operation/count"
	rcsv "qma/plugins/renderer/csv"
)

// 通用桩件 ----------------------------------------------------

type stream struct {
	id   string
	body io.Reader
}

type stubReader struct{ streams []stream }

func (s stubReader) Iterate(ctx context.Context, roots []string, yield func(contract.FileID, io.ReadCloser) error) error {
	for _, st := range s.streams {
		if err := yield(contract.FileID(st.id), io.NopCloser(st.body)); err != nil {
			return err
		}
	}
	return nil
}

func textReader(bodies ...string) stubReader {
	var r stubReader
	for i, b := range bodies {
		r.streams = append(r.streams, stream{id: fmt.Sprintf("f%d.log", i), body: strings.NewReader(b)})
	}
	return r
}

type stubWriter struct {
	mu  sync.Mutex
	id  contract.ArtifactID
	out bytes.Buffer
	err error
}

func (w *stubWriter) Write(ctx context.Context, id contract.ArtifactID, r io.Reader) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return w.err
	}
	w.id = id
	_, err := io.Copy(&w.out, r)
	return err
}

func testDef(t testing.TB) *aggregate.Definition {
	t.Helper()
	d, err := aggregate.NewDefinition(
		aggregate.IndexSpec{Name: "method", Accessor: contract.ParseAccessor("method", "httpRequest.requestMethod", contract.KindString)},
		[]aggregate.FieldSpec{
			{Name: "latency", Accessor: contract.ParseAccessor("latency", "httpRequest.latency", contract.KindDuration), Operation: "average",
				New: func() contract.Operation { return average.New() }},
			{Name: "requestMethod", Accessor: contract.ParseAccessor("requestMethod", "httpRequest.requestMethod", contract.KindString), Operation: "count",
				New: func() contract.Operation { return count.New() }},
		},
		aggregate.OrderBy{},
	)
	require.NoError(t, err)
	return d
}

func line(method, latency string) string {
	return fmt.Sprintf(`{"httpRequest":{"requestMethod":%q,"latency":%q}}`+"\n", method, latency)
}

func settings(t testing.TB, n, conc int) Settings {
	in := make([]string, n)
	for i := range in {
		in[i] = fmt.Sprintf("f%d.log", i)
	}
	return Settings{Inputs: in, Concurrency: conc, Definition: testDef(t), Artifact: "report.csv"}
}

const linesHelp = "# HELP qma_lines_total Input lines by outcome.\n# TYPE qma_lines_total counter\n"

// TestRunExample 三行样例端到端渲染为 CSV。
func TestRunExample(t *testing.T) {
	m := diag.ResetMetrics()
	w := &stubWriter{}
	comp := Components{
		Reader:   textReader(line("GET", "100ms") + line("GET", "2.0s") + line("POST", "1.0s")),
		Renderer: rcsv.New(nil),
		Writer:   w,
	}
	require.NoError(t, Run(context.Background(), comp, settings(t, 1, 1), nil))
	assert.Equal(t, contract.ArtifactID("report.csv"), w.id)
	assert.Equal(t, "method,latency,requestMethod\nGET,2.0000,2\nPOST,1.0000,1\n", w.out.String())

	want := linesHelp + `qma_lines_total{outcome="record"} 3` + "\n"
	assert.NoError(t, testutil.GatherAndCompare(m.Registry, strings.NewReader(want), "qma_lines_total"))
}

// TestFoldParallelMatchesSequential 并行折叠 + 合并与顺序折叠结果一致。
func TestFoldParallelMatchesSequential(t *testing.T) {
	bodies := make([]string, 6)
	for i := range bodies {
		var b strings.Builder
		for j := 0; j < 50; j++ {
			method := []string{"GET", "POST", "PUT"}[(i+j)%3]
			b.WriteString(line(method, fmt.Sprintf("%d.%ds", j%7, i)))
		}
		if i == 2 {
			b.WriteString("{broken\n")
			b.WriteString(line("DELETE", "9s"))
		}
		bodies[i] = b.String()
	}
	def := testDef(t)
	fold := func(conc int) contract.Frame {
		set := settings(t, len(bodies), conc)
		set.Definition = def
		tb, err := Fold(context.Background(), textReader(bodies...), set, nil)
		require.NoError(t, err)
		return tb.Frame()
	}
	seq := fold(1)
	for _, conc := range []int{2, 4, 8} {
		par := fold(conc)
		require.Equal(t, len(seq.Rows), len(par.Rows), "conc=%d", conc)
		for i := range seq.Rows {
			assert.Equal(t, seq.Rows[i].Key, par.Rows[i].Key)
			for j := range seq.Rows[i].Cells {
				assert.True(t, seq.Rows[i].Cells[j].Equal(par.Rows[i].Cells[j]),
					"conc=%d key=%s field=%d: %v vs %v", conc, seq.Rows[i].Key, j, seq.Rows[i].Cells[j], par.Rows[i].Cells[j])
			}
		}
	}
	for _, r := range seq.Rows {
		assert.NotEqual(t, "DELETE", r.Key, "非法行之后的内容不应被读取")
	}
}

// TestHaltEndsOnlyThatStream 非法行只结束所在流；后续输入照常读取并记录 warn。
func TestHaltEndsOnlyThatStream(t *testing.T) {
	m := diag.ResetMetrics()
	var logs bytes.Buffer
	logger := diag.NewLoggerTo("corr", "warn", &logs)
	w := &stubWriter{}
	comp := Components{
		Reader:   textReader(line("GET", "1s")+"\n"+line("GET", "5s"), line("POST", "2s")),
		Renderer: rcsv.New(nil),
		Writer:   w,
	}
	require.NoError(t, Run(context.Background(), comp, settings(t, 2, 1), logger))
	assert.Equal(t, "method,latency,requestMethod\nGET,1.0000,1\nPOST,2.0000,1\n", w.out.String())
	assert.Contains(t, logs.String(), `"stage":"halt"`)
	assert.Contains(t, logs.String(), `"file_id":"f0.log"`)
	assert.Contains(t, logs.String(), `"line":"2"`)

	want := linesHelp + `qma_lines_total{outcome="halt"} 1` + "\n" + `qma_lines_total{outcome="record"} 2` + "\n"
	assert.NoError(t, testutil.GatherAndCompare(m.Registry, strings.NewReader(want), "qma_lines_total"))
}

// TestScanErrorAborts 读错误（非 EOF）终止运行且不写出。
func TestScanErrorAborts(t *testing.T) {
	for _, conc := range []int{1, 3} {
		diag.ResetMetrics()
		w := &stubWriter{}
		r := stubReader{streams: []stream{
			{id: "ok.log", body: strings.NewReader(line("GET", "1s"))},
			{id: "bad.log", body: iotest.ErrReader(errors.New("disk gone"))},
			{id: "ok2.log", body: strings.NewReader(line("PUT", "1s"))},
		}}
		err := Run(context.Background(), Components{Reader: r, Renderer: rcsv.New(nil), Writer: w}, settings(t, 3, conc), nil)
		require.Error(t, err, "conc=%d", conc)
		assert.Contains(t, err.Error(), "disk gone")
		assert.Contains(t, err.Error(), "bad.log")
		assert.Zero(t, w.out.Len())
	}
}

// TestReaderErrorAborts Reader 自身的错误向上返回。
func TestReaderErrorAborts(t *testing.T) {
	boom := errors.New("no such root")
	r := errReader{err: boom}
	err := Run(context.Background(), Components{Reader: r, Renderer: rcsv.New(nil), Writer: &stubWriter{}}, settings(t, 2, 2), nil)
	assert.ErrorIs(t, err, boom)
}

type errReader struct{ err error }

func (r errReader) Iterate(context.Context, []string, func(contract.FileID, io.ReadCloser) error) error {
	return r.err
}

// TestWriterError 写出失败包装返回，并计入错误指标。
func TestWriterError(t *testing.T) {
	diag.ResetMetrics()
	w := &stubWriter{err: contract.ErrPathInvalid}
	comp := Components{Reader: textReader(line("GET", "1s")), Renderer: rcsv.New(nil), Writer: w}
	err := Run(context.Background(), comp, settings(t, 1, 1), nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, contract.ErrPathInvalid))
	assert.Equal(t, diag.CodeInvariant, diag.Classify(err))
}

// TestCanceled 取消的上下文终止运行。
func TestCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	comp := Components{Reader: textReader(line("GET", "1s")), Renderer: rcsv.New(nil), Writer: &stubWriter{}}
	err := Run(ctx, comp, settings(t, 1, 1), nil)
	assert.ErrorIs(t, err, context.Canceled)
}

// TestMetricsTextfile 结束后写出 textfile。
func TestMetricsTextfile(t *testing.T) {
	diag.ResetMetrics()
	set := settings(t, 1, 1)
	set.MetricsTextfile = filepath.Join(t.TempDir(), "qma.prom")
	comp := Components{Reader: textReader(line("GET", "1s")), Renderer: rcsv.New(nil), Writer: &stubWriter{}}
	require.NoError(t, Run(context.Background(), comp, set, nil))
	b, err := os.ReadFile(set.MetricsTextfile)
	require.NoError(t, err)
	assert.Contains(t, string(b), "qma_table_rows 1")
	assert.Contains(t, string(b), `qma_op_total{comp="pipeline",result="success",stage="finish"} 1`)
}

// TestSanity 缺失组件时报不变量错误。
func TestSanity(t *testing.T) {
	ok := Components{Reader: textReader(), Renderer: rcsv.New(nil), Writer: &stubWriter{}}
	cases := map[string]func() (Components, Settings){
		"reader":     func() (Components, Settings) { c := ok; c.Reader = nil; return c, settings(t, 1, 1) },
		"renderer":   func() (Components, Settings) { c := ok; c.Renderer = nil; return c, settings(t, 1, 1) },
		"writer":     func() (Components, Settings) { c := ok; c.Writer = nil; return c, settings(t, 1, 1) },
		"definition": func() (Components, Settings) { s := settings(t, 1, 1); s.Definition = nil; return ok, s },
	}
	for name, mk := range cases {
		c, s := mk()
		err := Run(context.Background(), c, s, nil)
		assert.True(t, errors.Is(err, contract.ErrInvariantViolation), "%s: %v", name, err)
	}
}

// BenchmarkFold 多文件并行折叠。
func BenchmarkFold(b *testing.B) {
	var body strings.Builder
	for j := 0; j < 2000; j++ {
		body.WriteString(line([]string{"GET", "POST", "PUT", "DELETE"}[j%4], "0.25s"))
	}
	text := body.String()
	for _, conc := range []int{1, 4} {
		b.Run(fmt.Sprintf("conc=%d", conc), func(b *testing.B) {
			set := settings(b, 8, conc)
			b.ReportAllocs()
			for i := 0; i < b.N; i++ {
				bodies := make([]string, 8)
				for k := range bodies {
					bodies[k] = text
				}
				if _, err := Fold(context.Background(), textReader(bodies...), set, nil); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}
