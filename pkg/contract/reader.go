package contract

import (
	"context"
	"io"
)

// Reader: 输入源抽象（文件/目录/STDIN）。
// 约束：
// 1) 流式读取，按输入流维度回调；每个回调对应一条独立的 NDJSON 流；
// 2) FileID 稳定且去平台差异化；
// 3) 可透明解压，但不做 JSON 解码；
// 4) 不在内部起并发；rc 的关闭由 yield 负责。
type Reader interface {
	Iterate(ctx context.Context, roots []string, yield func(fileID FileID, r io.ReadCloser) error) error
}
