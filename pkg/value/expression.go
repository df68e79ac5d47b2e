package value

import (
	"fmt"
	"strings"
)

// Operator 表达式运算符
type Operator int

const (
	ADD Operator = iota
	SUB
	MUL
	DIV
	REM
	NEG
	AND
	OR
	XOR
	NOT
	SHL
	SHR
	USHR
	EQ
	NE
	LT
	LE
	GT
	GE
)

var operatorSymbols = [...]string{
	ADD:  "+",
	SUB:  "-",
	MUL:  "*",
	DIV:  "/",
	REM:  "%",
	NEG:  "-",
	AND:  "&&",
	OR:   "||",
	XOR:  "^",
	NOT:  "!",
	SHL:  "<<",
	SHR:  ">>",
	USHR: ">>>",
	EQ:   "==",
	NE:   "!=",
	LT:   "<",
	LE:   "<=",
	GT:   ">",
	GE:   ">=",
}

// String 返回运算符的源码写法
func (op Operator) String() string {
	if op >= 0 && int(op) < len(operatorSymbols) {
		return operatorSymbols[op]
	}
	return fmt.Sprintf("Operator<%d>", int(op))
}

// IsUnary 是否为一元运算符
func (op Operator) IsUnary() bool { return op == NEG || op == NOT }

// IsComparison 是否为比较运算符
func (op Operator) IsComparison() bool { return op >= EQ && op <= GE }

// IsShift 是否为移位运算符
func (op Operator) IsShift() bool { return op == SHL || op == SHR || op == USHR }

// ParseOperator 按源码写法查找运算符, 一元取负写作 "neg"
func ParseOperator(s string) (Operator, error) {
	switch s {
	case "neg":
		return NEG, nil
	case "&":
		return AND, nil
	case "|":
		return OR, nil
	}
	for i, sym := range operatorSymbols {
		if sym == s && Operator(i) != NEG {
			return Operator(i), nil
		}
	}
	return 0, fmt.Errorf("unknown operator %q", s)
}

// ==================== Expression ====================

// Expression 一元或二元运算节点, 不可变
type Expression struct {
	Op     Operator
	First  Primitive // 一元运算时为 nil
	Second Primitive
	typ    string
}

// NewBinary 构造二元表达式并做类型检查
func NewBinary(op Operator, first, second Primitive) (*Expression, error) {
	if op.IsUnary() {
		return nil, fmt.Errorf("%s is a unary operator", op)
	}
	if first == nil || second == nil {
		return nil, fmt.Errorf("%w: nil operand for %s", ErrTypeMismatch, op)
	}
	a, b := first.Type(), second.Type()
	var typ string
	switch {
	case op.IsComparison():
		if (a == TypeBoolean) != (b == TypeBoolean) {
			return nil, fmt.Errorf("%w: %s %s %s", ErrTypeMismatch, a, op, b)
		}
		typ = TypeBoolean
	case op == AND || op == OR || op == XOR:
		if a == TypeBoolean && b == TypeBoolean {
			typ = TypeBoolean
		} else if IsPrimitiveIntegral(a) && IsPrimitiveIntegral(b) && a != TypeBoolean && b != TypeBoolean {
			typ = promote(a, b)
		} else {
			return nil, fmt.Errorf("%w: %s %s %s", ErrTypeMismatch, a, op, b)
		}
	case op.IsShift():
		if !isNumericIntegral(a) || !isNumericIntegral(b) {
			return nil, fmt.Errorf("%w: %s %s %s", ErrTypeMismatch, a, op, b)
		}
		typ = promote(a, a)
	default:
		if a == TypeBoolean || b == TypeBoolean {
			return nil, fmt.Errorf("%w: %s %s %s", ErrTypeMismatch, a, op, b)
		}
		typ = promote(a, b)
	}
	return &Expression{Op: op, First: first, Second: second, typ: typ}, nil
}

// NewUnary 构造一元表达式
func NewUnary(op Operator, operand Primitive) (*Expression, error) {
	if !op.IsUnary() {
		return nil, fmt.Errorf("%s is not a unary operator", op)
	}
	if operand == nil {
		return nil, fmt.Errorf("%w: nil operand for %s", ErrTypeMismatch, op)
	}
	t := operand.Type()
	if (op == NOT) != (t == TypeBoolean) {
		return nil, fmt.Errorf("%w: %s%s", ErrTypeMismatch, op, t)
	}
	typ := t
	if op == NEG {
		typ = promote(t, t)
	}
	return &Expression{Op: op, Second: operand, typ: typ}, nil
}

// MustBinary NewBinary 的 panic 版本, 供测试与常量构造
func MustBinary(op Operator, first, second Primitive) *Expression {
	e, err := NewBinary(op, first, second)
	if err != nil {
		panic(err)
	}
	return e
}

// MustUnary NewUnary 的 panic 版本
func MustUnary(op Operator, operand Primitive) *Expression {
	e, err := NewUnary(op, operand)
	if err != nil {
		panic(err)
	}
	return e
}

func isNumericIntegral(t string) bool {
	return IsPrimitiveIntegral(t) && t != TypeBoolean
}

// promote 二元数值提升
func promote(a, b string) string {
	switch {
	case a == TypeDouble || b == TypeDouble:
		return TypeDouble
	case a == TypeFloat || b == TypeFloat:
		return TypeFloat
	case a == TypeLong || b == TypeLong:
		return TypeLong
	}
	return TypeInt
}

func (e *Expression) Type() string { return e.typ }
func (*Expression) value()         {}
func (*Expression) primitive()     {}

// Accept 实现 Primitive
func (e *Expression) Accept(v PrimitiveVisitor) error { return v.VisitExpression(e) }

// IsUnary 是否为一元表达式
func (e *Expression) IsUnary() bool { return e.Op.IsUnary() }

// Operand 一元表达式的操作数
func (e *Expression) Operand() Primitive { return e.Second }

// OpText 运算符在该表达式中的源码写法 (整数上的 AND/OR 为位运算)
func (e *Expression) OpText() string {
	if e.typ != TypeBoolean {
		switch e.Op {
		case AND:
			return "&"
		case OR:
			return "|"
		}
	}
	return e.Op.String()
}

func (e *Expression) String() string {
	if e.IsUnary() {
		return e.OpText() + e.Second.String()
	}
	return "(" + e.First.String() + " " + e.OpText() + " " + e.Second.String() + ")"
}

// ==================== 类型转换 ====================

// WideningConversion 拓宽转换, 例如 I -> J
type WideningConversion struct {
	Arg Primitive
	To  string
}

// NarrowingConversion 收窄转换, 例如 J -> I
type NarrowingConversion struct {
	Arg Primitive
	To  string
}

// NewWidening 构造拓宽转换
func NewWidening(to string, arg Primitive) (*WideningConversion, error) {
	if !IsPrimitive(to) || arg == nil || !IsPrimitive(arg.Type()) {
		return nil, fmt.Errorf("%w: widening to %q", ErrTypeMismatch, to)
	}
	return &WideningConversion{Arg: arg, To: to}, nil
}

// NewNarrowing 构造收窄转换
func NewNarrowing(to string, arg Primitive) (*NarrowingConversion, error) {
	if !IsPrimitive(to) || arg == nil || !IsPrimitive(arg.Type()) {
		return nil, fmt.Errorf("%w: narrowing to %q", ErrTypeMismatch, to)
	}
	return &NarrowingConversion{Arg: arg, To: to}, nil
}

func (w *WideningConversion) Type() string { return w.To }
func (*WideningConversion) value()         {}
func (*WideningConversion) primitive()     {}
func (w *WideningConversion) String() string {
	return "WIDEN-" + w.Arg.Type() + w.To + "(" + w.Arg.String() + ")"
}

// Accept 实现 Primitive
func (w *WideningConversion) Accept(v PrimitiveVisitor) error { return v.VisitWideningConversion(w) }

func (n *NarrowingConversion) Type() string { return n.To }
func (*NarrowingConversion) value()         {}
func (*NarrowingConversion) primitive()     {}
func (n *NarrowingConversion) String() string {
	return "NARROW-" + n.Arg.Type() + n.To + "(" + n.Arg.String() + ")"
}

// Accept 实现 Primitive
func (n *NarrowingConversion) Accept(v PrimitiveVisitor) error { return v.VisitNarrowingConversion(n) }

// ==================== 符号函数应用 ====================

// PrimitiveSymbolicApply 对参数列表应用一个不透明的命名运算
type PrimitiveSymbolicApply struct {
	Operator string
	Args     []Value
	typ      string
}

// NewApply 构造符号函数应用
func NewApply(typ, operator string, args ...Value) (*PrimitiveSymbolicApply, error) {
	if !IsPrimitive(typ) {
		return nil, fmt.Errorf("%w: apply %s returns %q", ErrTypeMismatch, operator, typ)
	}
	cp := make([]Value, len(args))
	copy(cp, args)
	return &PrimitiveSymbolicApply{Operator: operator, Args: cp, typ: typ}, nil
}

func (a *PrimitiveSymbolicApply) Type() string { return a.typ }
func (*PrimitiveSymbolicApply) value()         {}
func (*PrimitiveSymbolicApply) primitive()     {}

func (a *PrimitiveSymbolicApply) String() string {
	parts := make([]string, len(a.Args))
	for i, arg := range a.Args {
		parts[i] = arg.String()
	}
	return a.Operator + "(" + strings.Join(parts, ",") + ")"
}

// Accept 实现 Primitive
func (a *PrimitiveSymbolicApply) Accept(v PrimitiveVisitor) error {
	return v.VisitPrimitiveSymbolicApply(a)
}
