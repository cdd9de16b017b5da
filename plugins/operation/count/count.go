package count

import (
	"github.com/cockroachdb/errors"

	"qma/pkg/contract"
)

// Count 统计非 Missing 更新次数，不关心值内容。
type Count struct {
	n uint64
}

// New 创建计数算子。
func New() *Count { return &Count{} }

var (
	_ contract.Operation = (*Count)(nil)
	_ contract.Merger    = (*Count)(nil)
)

func (c *Count) Update(v contract.Value) {
	if v.IsMissing() {
		return
	}
	c.n++
}

func (c *Count) Snapshot() contract.Value { return contract.Integer(c.n) }

// Merge 计数相加。
func (c *Count) Merge(other contract.Operation) error {
	o, ok := other.(*Count)
	if !ok {
		return errors.Wrapf(contract.ErrInvariantViolation, "count: cannot merge %T", other)
	}
	c.n += o.n
	return nil
}
