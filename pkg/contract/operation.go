package contract

// Operation: 每个 (行, 字段) 一个的有状态累加器。
// 约束：
// 1) Update 收到 Missing 时必须为 no-op；
// 2) Snapshot 不改变状态，可重复调用；
// 3) 非并发安全，调用方保证单写者。
type Operation interface {
	Update(v Value)
	Snapshot() Value
}

// Merger: 可选能力。并行折叠产生的部分表按字段合并时使用；
// 合并规则需满足结合律与交换律（计数相加、均值合并 (sum, n) 而非平均两个均值）。
type Merger interface {
	Merge(other Operation) error
}

// NewOperation 算子构造函数（注册表中的值）。
type NewOperation func() Operation
