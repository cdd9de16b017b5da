package aggregate

import (
	"slices"

	"github.com/cockroachdb/errors"

	"qma/pkg/contract"
)

// Row 单个键的累加状态：字段名 → 算子。算子在字段首次更新时创建，之后不再替换。
type Row struct {
	ops map[string]contract.Operation
}

func newRow(n int) *Row { return &Row{ops: make(map[string]contract.Operation, n)} }

// Value 返回字段快照；字段从未更新过时为 Missing。
func (r *Row) Value(field string) contract.Value {
	op, ok := r.ops[field]
	if !ok {
		return contract.Missing()
	}
	return op.Snapshot()
}

// Operation 返回字段算子（未创建时 ok=false）。
func (r *Row) Operation(field string) (contract.Operation, bool) {
	op, ok := r.ops[field]
	return op, ok
}

// Table 键 → 行。只增不删；非并发安全（单写者）。
type Table struct {
	def  *Definition
	rows map[string]*Row
}

// NewTable 基于定义创建空表。
func NewTable(def *Definition) *Table {
	return &Table{def: def, rows: make(map[string]*Row)}
}

// Definition 返回表定义。
func (t *Table) Definition() *Definition { return t.def }

// Len 不同键的数量。
func (t *Table) Len() int { return len(t.rows) }

// Row 按键查找行。
func (t *Table) Row(key string) (*Row, bool) {
	r, ok := t.rows[key]
	return r, ok
}

// Update 折叠一条记录：按声明顺序把每个字段的值交给该行对应算子；
// values 中缺席的字段按 Missing 处理。
func (t *Table) Update(key string, values map[string]contract.Value) {
	row, ok := t.rows[key]
	if !ok {
		row = newRow(len(t.def.fields))
		t.rows[key] = row
	}
	for _, f := range t.def.fields {
		op, ok := row.ops[f.Name]
		if !ok {
			op = f.New()
			row.ops[f.Name] = op
		}
		v, ok := values[f.Name]
		if !ok {
			v = contract.Missing()
		}
		op.Update(v)
	}
}

// Entries 按定义的比较器返回有序行。
// 先按键字典序排好再稳定排序，输出与 map 遍历顺序无关。
func (t *Table) Entries() []Entry {
	keys := make([]string, 0, len(t.rows))
	for k := range t.rows {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	out := make([]Entry, len(keys))
	for i, k := range keys {
		out[i] = Entry{Key: k, Row: t.rows[k]}
	}
	slices.SortStableFunc(out, t.def.compare)
	return out
}

// Frame 生成渲染输入快照。
func (t *Table) Frame() contract.Frame {
	names := t.def.FieldNames()
	entries := t.Entries()
	f := contract.Frame{
		Index:  t.def.index.Name,
		Fields: names,
		Rows:   make([]contract.FrameRow, len(entries)),
	}
	for i, e := range entries {
		cells := make([]contract.Value, len(names))
		for j, n := range names {
			cells[j] = e.Row.Value(n)
		}
		f.Rows[i] = contract.FrameRow{Key: e.Key, Cells: cells}
	}
	return f
}

// Merge 把同一定义下构建的部分表并入 t。
// 左侧缺失的行/算子直接接管；两侧都有的算子经 contract.Merger 合并。
// 合并后 other 不应再使用。
func (t *Table) Merge(other *Table) error {
	if other == nil {
		return nil
	}
	if other.def != t.def {
		return errors.Wrap(contract.ErrInvariantViolation, "merge: tables built from different definitions")
	}
	for key, src := range other.rows {
		dst, ok := t.rows[key]
		if !ok {
			t.rows[key] = src
			continue
		}
		for _, f := range t.def.fields {
			sop, ok := src.ops[f.Name]
			if !ok {
				continue
			}
			dop, ok := dst.ops[f.Name]
			if !ok {
				dst.ops[f.Name] = sop
				continue
			}
			m, ok := dop.(contract.Merger)
			if !ok {
				return errors.Wrapf(contract.ErrNotMergeable, "merge: field %q operation %q", f.Name, f.Operation)
			}
			if err := m.Merge(sop); err != nil {
				return errors.Wrapf(err, "merge: key %q field %q", key, f.Name)
			}
		}
	}
	return nil
}
