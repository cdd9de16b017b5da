package aggregate

import (
	"strings"

	"qma/pkg/contract"
)

// Entry 排序/渲染单元。
type Entry struct {
	Key string
	Row *Row
}

// Compare 行比较器，返回值同 strings.Compare。
type Compare func(a, b Entry) int

// Lexicographic 按键字节序升序（默认顺序）。
func Lexicographic(a, b Entry) int { return strings.Compare(a.Key, b.Key) }

// ByField 按字段快照排序。
// Missing 永远排最后（与方向无关）；不可比较或相等时回落到键字典序。
func ByField(field string, descending bool) Compare {
	return func(a, b Entry) int {
		va, vb := a.Row.Value(field), b.Row.Value(field)
		switch {
		case va.IsMissing() && vb.IsMissing():
			return Lexicographic(a, b)
		case va.IsMissing():
			return 1
		case vb.IsMissing():
			return -1
		}
		c, ok := contract.Compare(va, vb)
		if !ok || c == 0 {
			return Lexicographic(a, b)
		}
		if descending {
			return -c
		}
		return c
	}
}
