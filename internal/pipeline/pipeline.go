package pipeline

import (
	"bytes"
	"context"
	"io"
	"strconv"
	"time"

	"github.com/cockroachdb/errors"
	"golang.org/x/sync/errgroup"

	"qma/internal/aggregate"
	"qma/internal/diag"
	"qma/internal/logrecord"
	"qma/pkg/contract"
)

// - 每个输入流由一个 goroutine 同步逐行折叠；表本身无锁。
// - 并行：多输入且 Concurrency>1 时每个文件折叠到独立的部分表，最后按输入顺序合并。
// - 首错取消：任一流出现 I/O 错误即取消其余流并返回该错误。
// - 非法 JSON 行只结束所在流，不算错误。

// Components 运行所需组件。
type Components struct {
	Reader   contract.Reader
	Renderer contract.Renderer
	Writer   contract.Writer
}

// Settings 运行期配置。
type Settings struct {
	Inputs      []string
	Concurrency int
	Definition  *aggregate.Definition
	// Artifact 交给 Writer 的产物名（决定输出目录模式下的文件名）。
	Artifact contract.ArtifactID
	// MetricsTextfile 非空时在结束后写出 Prometheus textfile。
	MetricsTextfile string
}

// Run 执行完整流水线：Reader → Scan → Table → Renderer → Writer。
func Run(ctx context.Context, comp Components, set Settings, logger *diag.Logger) (err error) {
	if err := sanity(comp, set); err != nil {
		return errors.Wrap(err, "sanity")
	}
	start := time.Now()
	term := diag.GetTerminal()
	term.RunStart(set.Concurrency, len(set.Inputs))
	rows := 0
	defer func() {
		diag.ObserveDuration("pipeline", "total", time.Since(start).Milliseconds())
		if err != nil {
			code := diag.Classify(err)
			logger.Error("pipeline", string(code), err.Error(), &start)
			diag.IncOp("pipeline", "finish", "error")
			diag.IncError("pipeline", string(code))
		} else {
			logger.InfoFinish("pipeline", "run", start, int64(rows))
			diag.IncOp("pipeline", "finish", "success")
		}
		if set.MetricsTextfile != "" {
			if merr := diag.WriteTextfile(set.MetricsTextfile); merr != nil {
				logger.Error("metrics", string(diag.Classify(merr)), merr.Error(), nil)
			}
		}
		term.RunFinish(err == nil, rows, time.Since(start))
	}()

	tb, err := Fold(ctx, comp.Reader, set, logger)
	if err != nil {
		return err
	}
	rows = tb.Len()
	diag.SetTableRows(rows)

	rtimer := logger.Start("renderer", "render")
	var buf bytes.Buffer
	if err := comp.Renderer.Render(&buf, tb.Frame()); err != nil {
		return errors.Wrap(err, "render")
	}
	rtimer.Finish("render", int64(rows))

	wtimer := logger.StartWith("writer", "write", string(set.Artifact))
	if err := comp.Writer.Write(ctx, set.Artifact, &buf); err != nil {
		return errors.Wrap(err, "write")
	}
	wtimer.Finish("write", int64(buf.Len()))
	return nil
}

// Fold 读取全部输入并折叠为一张表。
func Fold(ctx context.Context, reader contract.Reader, set Settings, logger *diag.Logger) (*aggregate.Table, error) {
	ex := logrecord.NewExtractor(set.Definition)
	if set.Concurrency <= 1 || len(set.Inputs) <= 1 {
		tb := aggregate.NewTable(set.Definition)
		err := reader.Iterate(ctx, set.Inputs, func(id contract.FileID, rc io.ReadCloser) error {
			defer rc.Close()
			return scanStream(ctx, id, rc, ex, tb, logger)
		})
		if err != nil {
			return nil, err
		}
		return tb, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(set.Concurrency)
	var parts []*aggregate.Table
	ierr := reader.Iterate(gctx, set.Inputs, func(id contract.FileID, rc io.ReadCloser) error {
		if err := gctx.Err(); err != nil {
			_ = rc.Close()
			return err
		}
		part := aggregate.NewTable(set.Definition)
		parts = append(parts, part)
		// SetLimit 下 Go 会阻塞，同时打开的文件数不超过 Concurrency
		g.Go(func() error {
			defer rc.Close()
			return scanStream(gctx, id, rc, ex, part, logger)
		})
		return nil
	})
	werr := g.Wait()
	switch {
	case werr != nil:
		return nil, werr
	case ierr != nil:
		return nil, ierr
	}

	mtimer := logger.Start("aggregate", "merge")
	tb := aggregate.NewTable(set.Definition)
	for _, p := range parts {
		if err := tb.Merge(p); err != nil {
			return nil, errors.Wrap(err, "merge partial tables")
		}
	}
	mtimer.Finish("merge", int64(len(parts)))
	return tb, nil
}

// progressEvery 每折叠这么多条记录刷新一次终端进度。
const progressEvery = 4096

func scanStream(ctx context.Context, id contract.FileID, rc io.Reader, ex *logrecord.Extractor, tb *aggregate.Table, logger *diag.Logger) error {
	fid := string(id)
	term := diag.GetTerminal()
	term.FileStart(fid)
	timer := logger.StartWith("scan", "stream", fid)
	t0 := time.Now()

	n := 0
	st, err := logrecord.Scan(ctx, rc, ex, func(key string, values map[string]contract.Value) {
		tb.Update(key, values)
		n++
		if n%progressEvery == 0 {
			term.FileProgress(fid, n)
		}
	})
	diag.AddLines("record", st.Records)
	diag.AddLines("dropped", st.Dropped)
	diag.ObserveDuration("scan", "stream", time.Since(t0).Milliseconds())
	if err != nil {
		code := diag.Classify(err)
		logger.ErrorWith("scan", string(code), err.Error(), nil, fid)
		diag.IncOp("scan", "error", "error")
		diag.IncError("scan", string(code))
		term.FileFinish(fid, st.Lines, st.Records, false, time.Since(t0))
		return errors.Wrapf(err, "scan %s", fid)
	}
	if st.Halted {
		diag.AddLines("halt", 1)
		diag.IncOp("scan", "halt", "success")
		logger.Warn("scan", "halt", "invalid json line, stream ended early", fid,
			map[string]string{"line": strconv.Itoa(st.HaltLine)})
	}
	if st.Dropped > 0 {
		logger.Debug("scan", "records without index key dropped", fid,
			map[string]string{"dropped": strconv.Itoa(st.Dropped)})
	}
	diag.IncOp("scan", "finish", "success")
	timer.FinishKV("stream", int64(st.Records), map[string]string{
		"lines":   strconv.Itoa(st.Lines),
		"dropped": strconv.Itoa(st.Dropped),
		"halted":  strconv.FormatBool(st.Halted),
	})
	term.FileFinish(fid, st.Lines, st.Records, st.Halted, time.Since(t0))
	return nil
}

func sanity(c Components, s Settings) error {
	switch {
	case c.Reader == nil:
		return errors.Wrap(contract.ErrInvariantViolation, "reader is nil")
	case c.Renderer == nil:
		return errors.Wrap(contract.ErrInvariantViolation, "renderer is nil")
	case c.Writer == nil:
		return errors.Wrap(contract.ErrInvariantViolation, "writer is nil")
	case s.Definition == nil:
		return errors.Wrap(contract.ErrInvariantViolation, "definition is nil")
	}
	return nil
}
