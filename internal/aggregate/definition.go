package aggregate

import (
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/hashicorp/go-set/v2"

	"qma/pkg/contract"
)

// IndexSpec 分组键：名称 + 访问路径。
type IndexSpec struct {
	Name     string
	Accessor contract.Accessor
}

// FieldSpec 单个统计字段。Operation 为注册名（日志/诊断用），New 为其构造函数。
type FieldSpec struct {
	Name      string
	Accessor  contract.Accessor
	Operation string
	New       contract.NewOperation
}

// OrderBy 行排序字段；Field 为空表示按键字典序。
type OrderBy struct {
	Field      string
	Descending bool
}

// ParseOrderBy 解析 "" | "<field>" | "-<field>"。
func ParseOrderBy(s string) OrderBy {
	s = strings.TrimSpace(s)
	if f, ok := strings.CutPrefix(s, "-"); ok {
		return OrderBy{Field: f, Descending: true}
	}
	return OrderBy{Field: s}
}

func (o OrderBy) String() string {
	if o.Descending {
		return "-" + o.Field
	}
	return o.Field
}

// Definition 表定义：构造后不可变，聚合与渲染共享只读。
type Definition struct {
	index   IndexSpec
	fields  []FieldSpec
	orderBy OrderBy
	compare Compare
}

// NewDefinition 校验并构造表定义。
// 约束：字段非空、名称唯一且不与索引同名、构造函数非空；order_by 必须引用已声明字段。
func NewDefinition(index IndexSpec, fields []FieldSpec, orderBy OrderBy) (*Definition, error) {
	if strings.TrimSpace(index.Name) == "" {
		return nil, errors.Wrap(contract.ErrConfigInvalid, "index name is empty")
	}
	if len(fields) == 0 {
		return nil, errors.Wrap(contract.ErrConfigInvalid, "no fields declared")
	}
	names := set.New[string](len(fields))
	for i, f := range fields {
		if strings.TrimSpace(f.Name) == "" {
			return nil, errors.Wrapf(contract.ErrConfigInvalid, "fields[%d]: name is empty", i)
		}
		if f.Name == index.Name {
			return nil, errors.Wrapf(contract.ErrConfigInvalid, "fields[%d]: name %q collides with index", i, f.Name)
		}
		if !names.Insert(f.Name) {
			return nil, errors.Wrapf(contract.ErrConfigInvalid, "fields[%d]: duplicate name %q", i, f.Name)
		}
		if f.New == nil {
			return nil, errors.Wrapf(contract.ErrConfigInvalid, "fields[%d]: operation %q has no constructor", i, f.Operation)
		}
	}
	d := &Definition{
		index:   index,
		fields:  append([]FieldSpec(nil), fields...),
		orderBy: orderBy,
		compare: Lexicographic,
	}
	if orderBy.Field != "" {
		if !names.Contains(orderBy.Field) {
			return nil, errors.Wrapf(contract.ErrConfigInvalid, "order_by: unknown field %q", orderBy.Field)
		}
		d.compare = ByField(orderBy.Field, orderBy.Descending)
	}
	return d, nil
}

// Index 返回索引定义。
func (d *Definition) Index() IndexSpec { return d.index }

// Fields 返回字段定义副本（声明顺序）。
func (d *Definition) Fields() []FieldSpec { return append([]FieldSpec(nil), d.fields...) }

// FieldNames 返回字段名（声明顺序）。
func (d *Definition) FieldNames() []string {
	out := make([]string, len(d.fields))
	for i, f := range d.fields {
		out[i] = f.Name
	}
	return out
}

func (d *Definition) OrderBy() OrderBy { return d.orderBy }

// Comparator 返回行排序比较器。
func (d *Definition) Comparator() Compare { return d.compare }
