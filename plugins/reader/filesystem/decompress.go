package filesystem

import (
	"io"

	"github.com/cockroachdb/errors"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/s2"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// wrapDecompress 按扩展名叠加流式解压；未识别的扩展名原样返回。
// 返回的 Close 会同时关闭解压器与底层文件。
func wrapDecompress(ext string, rc io.ReadCloser, bufSize int) (io.ReadCloser, error) {
	switch ext {
	case ".gz", ".gzip":
		zr, err := gzip.NewReader(rc)
		if err != nil {
			return nil, errors.Wrap(err, "gzip header")
		}
		return buffered(&stackCloser{Reader: zr, closers: []io.Closer{zr, rc}}, bufSize), nil
	case ".zst", ".zstd":
		zr, err := zstd.NewReader(rc, zstd.WithDecoderConcurrency(1))
		if err != nil {
			return nil, errors.Wrap(err, "zstd decoder")
		}
		return buffered(&stackCloser{Reader: zr, closers: []io.Closer{zr.IOReadCloser(), rc}}, bufSize), nil
	case ".lz4":
		return buffered(&stackCloser{Reader: lz4.NewReader(rc), closers: []io.Closer{rc}}, bufSize), nil
	case ".s2", ".sz":
		return buffered(&stackCloser{Reader: s2.NewReader(rc), closers: []io.Closer{rc}}, bufSize), nil
	default:
		return rc, nil
	}
}

func buffered(rc io.ReadCloser, bufSize int) io.ReadCloser { return newBufferedCloser(rc, bufSize) }

// stackCloser 读取最外层解压流，关闭时自内向外依次关闭并返回第一个错误。
type stackCloser struct {
	io.Reader
	closers []io.Closer
}

func (s *stackCloser) Close() error {
	var first error
	for _, c := range s.closers {
		if err := c.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
