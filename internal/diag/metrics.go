package diag

import (
	"sync/atomic"

	"github.com/cockroachdb/errors"
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics 进程内指标集合（独立 Registry，不污染全局默认注册表）：
//   - qma_op_total{comp,stage,result}
//   - qma_error_total{comp,code}
//   - qma_op_duration_ms{comp,stage}
//   - qma_lines_total{outcome}   outcome=record|dropped|halt
//   - qma_table_rows
type Metrics struct {
	Registry *prometheus.Registry
	ops      *prometheus.CounterVec
	errs     *prometheus.CounterVec
	dur      *prometheus.HistogramVec
	lines    *prometheus.CounterVec
	rows     prometheus.Gauge
}

// NewMetrics 创建并注册全部指标。
func NewMetrics() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		ops: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "qma_op_total", Help: "Pipeline operations by component, stage and result.",
		}, []string{"comp", "stage", "result"}),
		errs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "qma_error_total", Help: "Errors by component and classified code.",
		}, []string{"comp", "code"}),
		dur: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "qma_op_duration_ms",
			Help:    "Stage duration in milliseconds.",
			Buckets: prometheus.ExponentialBuckets(1, 4, 8),
		}, []string{"comp", "stage"}),
		lines: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "qma_lines_total", Help: "Input lines by outcome.",
		}, []string{"outcome"}),
		rows: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "qma_table_rows", Help: "Distinct keys in the final table.",
		}),
	}
	m.Registry.MustRegister(m.ops, m.errs, m.dur, m.lines, m.rows)
	return m
}

var current atomic.Pointer[Metrics]

func init() { current.Store(NewMetrics()) }

// CurrentMetrics 返回进程级指标集合。
func CurrentMetrics() *Metrics { return current.Load() }

// ResetMetrics 替换为一组新的指标（每次运行开始与测试中使用）。
func ResetMetrics() *Metrics {
	m := NewMetrics()
	current.Store(m)
	return m
}

// IncOp 累加操作计数（result=success|error）。
func IncOp(comp, stage, result string) {
	current.Load().ops.WithLabelValues(comp, stage, result).Inc()
}

// IncError 按分类累加错误计数。
func IncError(comp, code string) {
	current.Load().errs.WithLabelValues(comp, code).Inc()
}

// ObserveDuration 记录阶段耗时（毫秒）。
func ObserveDuration(comp, stage string, durMS int64) {
	current.Load().dur.WithLabelValues(comp, stage).Observe(float64(durMS))
}

// AddLines 累加输入行统计。
func AddLines(outcome string, n int) {
	if n <= 0 {
		return
	}
	current.Load().lines.WithLabelValues(outcome).Add(float64(n))
}

// SetTableRows 记录最终表的行数。
func SetTableRows(n int) { current.Load().rows.Set(float64(n)) }

// WriteTextfile 以 node_exporter textfile collector 格式原子写出当前指标。
func WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, current.Load().Registry); err != nil {
		return errors.Wrapf(err, "write metrics textfile %s", path)
	}
	return nil
}
