package value

import (
	"errors"
	"fmt"
	"math"
	"strconv"
)

var (
	// ErrUnsupportedValue 出现了值模型之外的值类型, 属于内部不变式错误
	ErrUnsupportedValue = errors.New("unsupported value kind")
	// ErrTypeMismatch 运算数类型不匹配
	ErrTypeMismatch = errors.New("operand type mismatch")
)

// Value 所有值的公共接口
type Value interface {
	// Type 返回类型描述符
	Type() string
	String() string
	value()
}

// Primitive 基本类型的值 (具体或符号)
type Primitive interface {
	Value
	Accept(v PrimitiveVisitor) error
	primitive()
}

// Symbolic 符号值: 带唯一标识与 origin
type Symbolic interface {
	Value
	// ID 返回路径内唯一的标识, 例如 {V3} / {R0}
	ID() string
	Origin() Origin
}

// Reference 引用值 (符号引用或已解析引用)
type Reference interface {
	Value
	reference()
}

// ==================== Simplex ====================

// Simplex 具体的基本类型常量
type Simplex struct {
	typ string
	i   int64
	f   float64
}

// NewSimplex 构造整型族常量 (Z B C S I J), 按类型截断
func NewSimplex(typ string, v int64) (*Simplex, error) {
	if !IsPrimitiveIntegral(typ) {
		return nil, fmt.Errorf("%w: %q is not an integral type", ErrTypeMismatch, typ)
	}
	return &Simplex{typ: typ, i: truncate(typ, v)}, nil
}

// NewFloating 构造浮点常量 (F D)
func NewFloating(typ string, v float64) (*Simplex, error) {
	if !IsPrimitiveFloating(typ) {
		return nil, fmt.Errorf("%w: %q is not a floating type", ErrTypeMismatch, typ)
	}
	if typ == TypeFloat {
		v = float64(float32(v))
	}
	return &Simplex{typ: typ, f: v}, nil
}

// IntOf 构造 int 常量
func IntOf(v int32) *Simplex { return &Simplex{typ: TypeInt, i: int64(v)} }

// LongOf 构造 long 常量
func LongOf(v int64) *Simplex { return &Simplex{typ: TypeLong, i: v} }

// BoolOf 构造 boolean 常量
func BoolOf(b bool) *Simplex {
	if b {
		return &Simplex{typ: TypeBoolean, i: 1}
	}
	return &Simplex{typ: TypeBoolean}
}

// DoubleOf 构造 double 常量
func DoubleOf(v float64) *Simplex { return &Simplex{typ: TypeDouble, f: v} }

func truncate(typ string, v int64) int64 {
	switch typ {
	case TypeBoolean:
		if v != 0 {
			return 1
		}
		return 0
	case TypeByte:
		return int64(int8(v))
	case TypeChar:
		return int64(uint16(v))
	case TypeShort:
		return int64(int16(v))
	case TypeInt:
		return int64(int32(v))
	}
	return v
}

func (s *Simplex) Type() string { return s.typ }
func (*Simplex) value()         {}
func (*Simplex) primitive()     {}

// Accept 实现 Primitive
func (s *Simplex) Accept(v PrimitiveVisitor) error { return v.VisitSimplex(s) }

// IsFloating 是否为浮点常量
func (s *Simplex) IsFloating() bool { return IsPrimitiveFloating(s.typ) }

// Int64 整数值 (浮点常量按 Java 规则截断)
func (s *Simplex) Int64() int64 {
	if s.IsFloating() {
		return floatToLong(s.f)
	}
	return s.i
}

// Float64 浮点值
func (s *Simplex) Float64() float64 {
	if s.IsFloating() {
		return s.f
	}
	return float64(s.i)
}

// IsZeroOne zero=true 时判断是否为 0, 否则判断是否为 1
func (s *Simplex) IsZeroOne(zero bool) bool {
	if zero {
		return s.Float64() == 0
	}
	return s.Float64() == 1
}

// Bool boolean 语义的值
func (s *Simplex) Bool() bool { return !s.IsZeroOne(true) }

// Literal 返回 Java 数字字面量 (boolean 为 0/1)
func (s *Simplex) Literal() string {
	switch s.typ {
	case TypeLong:
		return strconv.FormatInt(s.i, 10) + "L"
	case TypeFloat:
		return floatLiteral(s.f, 32, "f", "Float")
	case TypeDouble:
		return floatLiteral(s.f, 64, "d", "Double")
	}
	return strconv.FormatInt(s.i, 10)
}

// String boolean 显示为 true/false, 其余同 Literal
func (s *Simplex) String() string {
	if s.typ == TypeBoolean {
		return strconv.FormatBool(s.i != 0)
	}
	return s.Literal()
}

func floatLiteral(f float64, bits int, suffix, box string) string {
	switch {
	case math.IsNaN(f):
		return box + ".NaN"
	case math.IsInf(f, 1):
		return box + ".POSITIVE_INFINITY"
	case math.IsInf(f, -1):
		return box + ".NEGATIVE_INFINITY"
	}
	return strconv.FormatFloat(f, 'g', -1, bits) + suffix
}

// floatToLong Java d2l 语义
func floatToLong(f float64) int64 {
	switch {
	case math.IsNaN(f):
		return 0
	case f >= math.MaxInt64:
		return math.MaxInt64
	case f <= math.MinInt64:
		return math.MinInt64
	}
	return int64(f)
}

// ==================== 符号原子 ====================

// PrimitiveSymbolicAtomic 基本类型的自由变量
type PrimitiveSymbolicAtomic struct {
	id     int
	typ    string
	origin Origin
}

func (p *PrimitiveSymbolicAtomic) Type() string   { return p.typ }
func (p *PrimitiveSymbolicAtomic) ID() string     { return fmt.Sprintf("{V%d}", p.id) }
func (p *PrimitiveSymbolicAtomic) Origin() Origin { return p.origin }
func (p *PrimitiveSymbolicAtomic) String() string { return p.ID() }
func (*PrimitiveSymbolicAtomic) value()           {}
func (*PrimitiveSymbolicAtomic) primitive()       {}

// Accept 实现 Primitive
func (p *PrimitiveSymbolicAtomic) Accept(v PrimitiveVisitor) error {
	return v.VisitPrimitiveSymbolicAtomic(p)
}

// ReferenceSymbolic 引用类型的自由变量
type ReferenceSymbolic struct {
	id         int
	staticType string
	origin     Origin
}

// Type 引用的静态类型描述符
func (r *ReferenceSymbolic) Type() string       { return r.staticType }
func (r *ReferenceSymbolic) StaticType() string { return r.staticType }
func (r *ReferenceSymbolic) ID() string         { return fmt.Sprintf("{R%d}", r.id) }
func (r *ReferenceSymbolic) Origin() Origin     { return r.origin }
func (r *ReferenceSymbolic) String() string     { return r.ID() }
func (*ReferenceSymbolic) value()               {}
func (*ReferenceSymbolic) reference()           {}

// ==================== 具体引用 ====================

// NullPosition null 哨兵使用的堆位置
const NullPosition int64 = -1

// ReferenceConcrete 已解析的引用: 堆位置或 null
type ReferenceConcrete struct {
	Pos int64
}

// Null 空引用哨兵
var Null = &ReferenceConcrete{Pos: NullPosition}

// RefTo 指向堆位置的引用
func RefTo(pos int64) *ReferenceConcrete { return &ReferenceConcrete{Pos: pos} }

func (r *ReferenceConcrete) Type() string { return TypeObject }
func (r *ReferenceConcrete) IsNull() bool { return r.Pos == NullPosition }
func (*ReferenceConcrete) value()         {}
func (*ReferenceConcrete) reference()     {}

func (r *ReferenceConcrete) String() string {
	if r.IsNull() {
		return "null"
	}
	return fmt.Sprintf("Object[%d]", r.Pos)
}
