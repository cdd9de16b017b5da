package contract

import (
	"cmp"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Kind: 字段声明的值类型（来自配置 dtype）。
type Kind int

const (
	KindNone Kind = iota
	KindString
	KindInteger
	KindFloat
	KindDuration
)

func (k Kind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindInteger:
		return "integer"
	case KindFloat:
		return "float"
	case KindDuration:
		return "second"
	default:
		return "none"
	}
}

// ParseKind 将配置中的 dtype 映射为 Kind；未知名称返回 KindNone。
func ParseKind(dtype string) Kind {
	switch strings.ToLower(strings.TrimSpace(dtype)) {
	case "string":
		return KindString
	case "integer":
		return KindInteger
	case "float":
		return KindFloat
	case "second", "duration":
		return KindDuration
	default:
		return KindNone
	}
}

// floatTolerance: 数值型变体判等的绝对误差。
const floatTolerance = 1e-10

// Value: 带标签的联合值 String | Integer | Float | Duration | Missing。
// 零值即 Missing（“无可用数据”是一个值，而不是缺席）。
type Value struct {
	kind Kind
	s    string
	n    uint64
	f    float64
}

// Missing 返回缺失标记。
func Missing() Value { return Value{} }

func String(s string) Value { return Value{kind: KindString, s: s} }

func Integer(n uint64) Value { return Value{kind: KindInteger, n: n} }

func Float(f float64) Value { return Value{kind: KindFloat, f: f} }

// Duration 以秒为单位。
func Duration(seconds float64) Value { return Value{kind: KindDuration, f: seconds} }

// Kind 返回变体；Missing 返回 KindNone。
func (v Value) Kind() Kind { return v.kind }

func (v Value) IsMissing() bool { return v.kind == KindNone }

// Str 返回 String 变体的内容。
func (v Value) Str() (string, bool) { return v.s, v.kind == KindString }

// Uint 返回 Integer 变体的内容。
func (v Value) Uint() (uint64, bool) { return v.n, v.kind == KindInteger }

// Number 返回数值兼容变体（Integer/Float/Duration）的 float64 表示。
func (v Value) Number() (float64, bool) {
	switch v.kind {
	case KindInteger:
		return float64(v.n), true
	case KindFloat, KindDuration:
		return v.f, true
	default:
		return 0, false
	}
}

// Display 返回渲染用的规范字符串。
func (v Value) Display() string {
	switch v.kind {
	case KindString:
		return v.s
	case KindInteger:
		return strconv.FormatUint(v.n, 10)
	case KindFloat:
		return strconv.FormatFloat(v.f, 'f', 4, 64)
	case KindDuration:
		return strconv.FormatFloat(v.f, 'f', 4, 64) + "sec"
	default:
		return "-"
	}
}

// String 返回调试形式，仅用于日志与测试输出。
func (v Value) String() string {
	switch v.kind {
	case KindString:
		return fmt.Sprintf("String(%s)", v.s)
	case KindInteger:
		return fmt.Sprintf("Integer(%d)", v.n)
	case KindFloat:
		return fmt.Sprintf("Float(%v)", v.f)
	case KindDuration:
		return fmt.Sprintf("Duration(%vs)", v.f)
	default:
		return "Missing"
	}
}

// Equal 要求同一变体；Float/Duration 按 |x-y| < 1e-10 判等。
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindString:
		return v.s == o.s
	case KindInteger:
		return v.n == o.n
	case KindFloat, KindDuration:
		return math.Abs(v.f-o.f) < floatTolerance
	default:
		return true
	}
}

// Compare 仅对同一变体定义顺序；ok=false 表示不可比较（跨变体）。
// Missing 与 Missing 视为相等。NaN 与任意值视为相等。
func Compare(a, b Value) (int, bool) {
	if a.kind != b.kind {
		return 0, false
	}
	switch a.kind {
	case KindString:
		return strings.Compare(a.s, b.s), true
	case KindInteger:
		return cmp.Compare(a.n, b.n), true
	case KindFloat, KindDuration:
		if math.Abs(a.f-b.f) < floatTolerance || math.IsNaN(a.f) || math.IsNaN(b.f) {
			return 0, true
		}
		return cmp.Compare(a.f, b.f), true
	default:
		return 0, true
	}
}

// durationUnits: 后缀按长度降序尝试（"sec" 也以 "s" 结尾）。
var durationUnits = []string{"sec", "s"}

// Parse 依据声明类型将原始字符串转换为 Value。
// 任何无法转换的输入返回 Missing，不返回错误：单个坏字段不得中断整条记录。
func Parse(kind Kind, raw string) Value {
	switch kind {
	case KindString:
		return String(raw)
	case KindInteger:
		n, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			return Missing()
		}
		return Integer(n)
	case KindFloat:
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return Missing()
		}
		return Float(f)
	case KindDuration:
		for _, unit := range durationUnits {
			num, ok := strings.CutSuffix(raw, unit)
			if !ok {
				continue
			}
			f, err := strconv.ParseFloat(num, 64)
			if err != nil {
				return Missing()
			}
			return Duration(f)
		}
		return Missing()
	default:
		return Missing()
	}
}
