package contract

import (
	"context"
	"io"
)

// ArtifactID: 输出工件标识（与 FileID 共用表示）。
type ArtifactID = FileID

// Writer: 将渲染结果持久化到目标介质（STDOUT/文件）。
// 约束：
//  1. 流式写入，按字节透传，不读取/修改内容；
//  2. ctx 取消需尽快返回；
//  3. 错误直接上抛（不做重试/回退）。
type Writer interface {
	Write(ctx context.Context, id ArtifactID, r io.Reader) error
}
