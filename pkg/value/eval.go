package value

import (
	"errors"
	"fmt"
	"math"
)

var (
	// ErrMissingValue 模型中缺少符号的取值
	ErrMissingValue = errors.New("no value in model")
	// ErrDivisionByZero 整数除零
	ErrDivisionByZero = errors.New("integer division by zero")
	// ErrNotEvaluable 不透明函数应用无法求值
	ErrNotEvaluable = errors.New("value cannot be evaluated")
)

// Lookup 为符号原子提供具体值
type Lookup func(x *PrimitiveSymbolicAtomic) (*Simplex, error)

// Eval 按 Java 语义在给定取值下计算表达式
func Eval(p Primitive, lookup Lookup) (*Simplex, error) {
	switch x := p.(type) {
	case *Simplex:
		return x, nil
	case *PrimitiveSymbolicAtomic:
		v, err := lookup(x)
		if err != nil {
			return nil, err
		}
		return Convert(x.Type(), v)
	case *Expression:
		return evalExpression(x, lookup)
	case *WideningConversion:
		v, err := Eval(x.Arg, lookup)
		if err != nil {
			return nil, err
		}
		return Convert(x.To, v)
	case *NarrowingConversion:
		v, err := Eval(x.Arg, lookup)
		if err != nil {
			return nil, err
		}
		return Convert(x.To, v)
	case *PrimitiveSymbolicApply:
		return nil, fmt.Errorf("%w: %s", ErrNotEvaluable, x)
	case nil:
		return nil, fmt.Errorf("%w: nil primitive", ErrUnsupportedValue)
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnsupportedValue, p)
	}
}

// Convert 将常量转换为目标基本类型 (Java 的 i2l / d2i / i2b 等)
func Convert(to string, v *Simplex) (*Simplex, error) {
	if v.Type() == to {
		return v, nil
	}
	switch {
	case IsPrimitiveFloating(to):
		return NewFloating(to, v.Float64())
	case to == TypeBoolean:
		return BoolOf(v.Float64() != 0), nil
	case IsPrimitiveIntegral(to):
		if v.IsFloating() {
			f := v.Float64()
			if to != TypeLong {
				// d2i 饱和到 int 范围后再截断
				i := floatToLong(f)
				if math.IsNaN(f) {
					i = 0
				} else if i > math.MaxInt32 {
					i = math.MaxInt32
				} else if i < math.MinInt32 {
					i = math.MinInt32
				}
				return NewSimplex(to, i)
			}
			return NewSimplex(to, floatToLong(f))
		}
		return NewSimplex(to, v.Int64())
	}
	return nil, fmt.Errorf("%w: convert to %q", ErrTypeMismatch, to)
}

func evalExpression(e *Expression, lookup Lookup) (*Simplex, error) {
	if e.IsUnary() {
		v, err := Eval(e.Second, lookup)
		if err != nil {
			return nil, err
		}
		if e.Op == NOT {
			return BoolOf(!v.Bool()), nil
		}
		if IsPrimitiveFloating(e.typ) {
			return NewFloating(e.typ, -v.Float64())
		}
		return NewSimplex(e.typ, -v.Int64())
	}

	a, err := Eval(e.First, lookup)
	if err != nil {
		return nil, err
	}
	b, err := Eval(e.Second, lookup)
	if err != nil {
		return nil, err
	}

	if e.Op.IsComparison() {
		return compare(e.Op, a, b), nil
	}

	if e.typ == TypeBoolean {
		switch e.Op {
		case AND:
			return BoolOf(a.Bool() && b.Bool()), nil
		case OR:
			return BoolOf(a.Bool() || b.Bool()), nil
		case XOR:
			return BoolOf(a.Bool() != b.Bool()), nil
		}
		return nil, fmt.Errorf("%w: boolean %s", ErrTypeMismatch, e.Op)
	}

	if IsPrimitiveFloating(e.typ) {
		x, y := a.Float64(), b.Float64()
		var r float64
		switch e.Op {
		case ADD:
			r = x + y
		case SUB:
			r = x - y
		case MUL:
			r = x * y
		case DIV:
			r = x / y
		case REM:
			r = math.Mod(x, y)
		default:
			return nil, fmt.Errorf("%w: floating %s", ErrTypeMismatch, e.Op)
		}
		return NewFloating(e.typ, r)
	}

	x, y := a.Int64(), b.Int64()
	var r int64
	switch e.Op {
	case ADD:
		r = x + y
	case SUB:
		r = x - y
	case MUL:
		r = x * y
	case DIV, REM:
		if y == 0 {
			return nil, fmt.Errorf("%w: %s", ErrDivisionByZero, e)
		}
		if e.typ == TypeInt {
			x, y = int64(int32(x)), int64(int32(y))
		}
		if e.Op == DIV {
			r = x / y
		} else {
			r = x % y
		}
	case AND:
		r = x & y
	case OR:
		r = x | y
	case XOR:
		r = x ^ y
	case SHL, SHR, USHR:
		r = shift(e.Op, e.typ, x, y)
	default:
		return nil, fmt.Errorf("%w: integral %s", ErrTypeMismatch, e.Op)
	}
	return NewSimplex(e.typ, r)
}

func shift(op Operator, typ string, x, y int64) int64 {
	if typ == TypeLong {
		s := uint64(y & 63)
		switch op {
		case SHL:
			return x << s
		case SHR:
			return x >> s
		default:
			return int64(uint64(x) >> s)
		}
	}
	s := uint32(y & 31)
	v := int32(x)
	switch op {
	case SHL:
		return int64(v << s)
	case SHR:
		return int64(v >> s)
	default:
		return int64(int32(uint32(v) >> s))
	}
}

func compare(op Operator, a, b *Simplex) *Simplex {
	if a.IsFloating() || b.IsFloating() {
		x, y := a.Float64(), b.Float64()
		switch op {
		case EQ:
			return BoolOf(x == y)
		case NE:
			return BoolOf(x != y)
		case LT:
			return BoolOf(x < y)
		case LE:
			return BoolOf(x <= y)
		case GT:
			return BoolOf(x > y)
		default:
			return BoolOf(x >= y)
		}
	}
	x, y := a.Int64(), b.Int64()
	switch op {
	case EQ:
		return BoolOf(x == y)
	case NE:
		return BoolOf(x != y)
	case LT:
		return BoolOf(x < y)
	case LE:
		return BoolOf(x <= y)
	case GT:
		return BoolOf(x > y)
	default:
		return BoolOf(x >= y)
	}
}
