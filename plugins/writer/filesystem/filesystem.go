// Package filesystem 把渲染结果写到 STDOUT 或文件。
package filesystem

import (
	"bufio"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/cockroachdb/errors"

	"qma/pkg/contract"
)

// Options 写出选项。Path 与 OutputDir 互斥；都为空（或 Path 为 "-"）时写 STDOUT。
type Options struct {
	// Path: 输出文件路径。
	Path string `yaml:"path"`
	// OutputDir: 输出目录；文件名取自 ArtifactID 的基名（如 report.md）。
	OutputDir string `yaml:"output_dir"`
	// Atomic: 是否原子替换（同目录临时文件 + rename），默认 true。
	Atomic *bool `yaml:"atomic"`
	// PermFile/PermDir: 为 0 时使用 0644/0755。
	PermFile os.FileMode `yaml:"perm_file"`
	PermDir  os.FileMode `yaml:"perm_dir"`
	// BufSize: 写缓冲区大小；<=0 使用 64KiB。
	BufSize int `yaml:"buf_size"`
}

// FS 文件系统 Writer。
type FS struct {
	path    string
	root    string
	atomic  bool
	permF   os.FileMode
	permD   os.FileMode
	bufSize int
	stdout  io.Writer
}

// New 创建 Writer；opts 可为 nil（写 STDOUT）。
func New(opts *Options) (*FS, error) {
	w := &FS{atomic: true, permF: 0o644, permD: 0o755, bufSize: 64 * 1024, stdout: os.Stdout}
	if opts == nil {
		return w, nil
	}
	w.path = strings.TrimSpace(opts.Path)
	if w.path == "-" {
		w.path = ""
	}
	w.root = strings.TrimSpace(opts.OutputDir)
	if w.path != "" && w.root != "" {
		return nil, errors.Wrap(contract.ErrConfigInvalid, "writer: path and output_dir are mutually exclusive")
	}
	if opts.Atomic != nil {
		w.atomic = *opts.Atomic
	}
	if opts.PermFile != 0 {
		w.permF = opts.PermFile
	}
	if opts.PermDir != 0 {
		w.permD = opts.PermDir
	}
	if opts.BufSize > 0 {
		w.bufSize = opts.BufSize
	}
	return w, nil
}

var _ contract.Writer = (*FS)(nil)

// Target 返回 id 对应的目标路径；STDOUT 返回 "-"。
func (w *FS) Target(id contract.ArtifactID) (string, error) {
	switch {
	case w.path != "":
		return w.path, nil
	case w.root != "":
		return w.mapPath(id)
	default:
		return "-", nil
	}
}

// Write 将 r 的全部字节写入 id 对应的目标。
func (w *FS) Write(ctx context.Context, id contract.ArtifactID, r io.Reader) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	dest, err := w.Target(id)
	if err != nil {
		return err
	}
	if dest == "-" {
		bw := bufio.NewWriterSize(w.stdout, w.bufSize)
		if _, err := io.Copy(bw, readerWithCtx(ctx, r)); err != nil {
			return errors.Wrap(err, "write stdout")
		}
		return errors.Wrap(bw.Flush(), "write stdout")
	}
	if err := os.MkdirAll(filepath.Dir(dest), w.permD); err != nil {
		return errors.Wrapf(err, "mkdir %s", filepath.Dir(dest))
	}
	if w.atomic {
		return w.writeAtomic(ctx, dest, r)
	}
	return w.writeOverwrite(ctx, dest, r)
}

// mapPath 仅保留 id 的基名并拼到输出目录下。
func (w *FS) mapPath(id contract.ArtifactID) (string, error) {
	name := filepath.Base(filepath.Clean(string(id)))
	if name == "." || name == ".." || name == "" || name == string(filepath.Separator) {
		return "", errors.Wrapf(contract.ErrPathInvalid, "artifact id %q", id)
	}
	return filepath.Join(w.root, name), nil
}

func (w *FS) writeOverwrite(ctx context.Context, dest string, r io.Reader) error {
	f, err := os.OpenFile(dest, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, w.permF)
	if err != nil {
		return errors.Wrapf(err, "open %s", dest)
	}
	defer f.Close()

	bw := bufio.NewWriterSize(f, w.bufSize)
	if _, err := io.Copy(bw, readerWithCtx(ctx, r)); err != nil {
		return errors.Wrapf(err, "write %s", dest)
	}
	return errors.Wrapf(bw.Flush(), "write %s", dest)
}

func (w *FS) writeAtomic(ctx context.Context, dest string, r io.Reader) (err error) {
	dir := filepath.Dir(dest)
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return errors.Wrapf(err, "create temp in %s", dir)
	}
	tmpPath := tmp.Name()
	closed := false
	defer func() {
		if err != nil {
			if !closed {
				_ = tmp.Close()
			}
			_ = os.Remove(tmpPath)
		}
	}()
	_ = os.Chmod(tmpPath, w.permF)

	bw := bufio.NewWriterSize(tmp, w.bufSize)
	if _, err = io.Copy(bw, readerWithCtx(ctx, r)); err != nil {
		return errors.Wrapf(err, "write %s", dest)
	}
	if err = bw.Flush(); err != nil {
		return errors.Wrapf(err, "write %s", dest)
	}
	if err = tmp.Sync(); err != nil {
		return errors.Wrapf(err, "sync %s", tmpPath)
	}
	closed = true
	if err = tmp.Close(); err != nil {
		return errors.Wrapf(err, "close %s", tmpPath)
	}
	if err = osReplace(tmpPath, dest); err != nil {
		return errors.Wrapf(err, "replace %s", dest)
	}
	// 尽力同步父目录
	_ = syncDir(dir)
	return nil
}

// readerWithCtx 在每次 Read 前检查 ctx 是否已取消。
func readerWithCtx(ctx context.Context, r io.Reader) io.Reader {
	return &ctxReader{ctx: ctx, r: r}
}

type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (cr *ctxReader) Read(p []byte) (int, error) {
	if err := cr.ctx.Err(); err != nil {
		return 0, err
	}
	return cr.r.Read(p)
}
