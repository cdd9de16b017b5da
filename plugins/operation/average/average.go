package average

import (
	"github.com/cockroachdb/errors"

	"qma/pkg/contract"
)

// Average 累计数值兼容变体（Integer/Float/Duration）的 (sum, n)。
// 非数值与 Missing 更新被忽略；零样本时快照为 Missing。
type Average struct {
	sum float64
	n   uint64
}

// New 创建均值算子。
func New() *Average { return &Average{} }

var (
	_ contract.Operation = (*Average)(nil)
	_ contract.Merger    = (*Average)(nil)
)

func (a *Average) Update(v contract.Value) {
	f, ok := v.Number()
	if !ok {
		return
	}
	a.sum += f
	a.n++
}

func (a *Average) Snapshot() contract.Value {
	if a.n == 0 {
		return contract.Missing()
	}
	return contract.Float(a.sum / float64(a.n))
}

// Merge 合并底层 (sum, n)，不对两个均值再取平均。
func (a *Average) Merge(other contract.Operation) error {
	o, ok := other.(*Average)
	if !ok {
		return errors.Wrapf(contract.ErrInvariantViolation, "average: cannot merge %T", other)
	}
	a.sum += o.sum
	a.n += o.n
	return nil
}
