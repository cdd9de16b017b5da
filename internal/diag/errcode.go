package diag

import (
	"context"
	"io/fs"
	"time"

	"github.com/cockroachdb/errors"

	"qma/pkg/contract"
)

// Code 错误分类，仅用于日志/指标汇总，与退出码解耦。
type Code string

const (
	CodeUnknown   Code = "unknown"
	CodeConfig    Code = "config"
	CodeInvariant Code = "invariant"
	CodeCancel    Code = "cancel"
	CodeIO        Code = "io"
)

// Classify 按哨兵错误与标准库错误类型归类，不做字符串匹配。
func Classify(err error) Code {
	switch {
	case err == nil:
		return CodeUnknown
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return CodeCancel
	case errors.Is(err, contract.ErrConfigInvalid):
		return CodeConfig
	case errors.Is(err, contract.ErrInvariantViolation),
		errors.Is(err, contract.ErrNotMergeable),
		errors.Is(err, contract.ErrPathInvalid):
		return CodeInvariant
	}
	var perr *fs.PathError
	if errors.As(err, &perr) {
		return CodeIO
	}
	return CodeUnknown
}

// NowUTC 返回 RFC3339 UTC 时间（日志字段 ts）。
func NowUTC() string { return time.Now().UTC().Format(time.RFC3339) }
