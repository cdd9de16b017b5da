package contract

import "github.com/cockroachdb/errors"

// 最小错误分类（哨兵），供 diag.Classify 与上层退出码判定使用。
var (
	// ErrConfigInvalid: 配置或表定义不满足静态约束（启动期致命）。
	ErrConfigInvalid = errors.New("config invalid")
	// ErrPathInvalid: 输出目标映射为无效路径。
	ErrPathInvalid = errors.New("path invalid")
	// ErrInvariantViolation: 领域不变量违例（通用哨兵）。
	ErrInvariantViolation = errors.New("invariant violation")
	// ErrNotMergeable: 聚合算子不支持合并（并行折叠时需要）。
	ErrNotMergeable = errors.New("operation not mergeable")
)
