package value

import (
	"fmt"
	"strings"
)

// PrimitiveVisitor 基本值的访问者, 每种值类型一个方法
type PrimitiveVisitor interface {
	VisitSimplex(x *Simplex) error
	VisitPrimitiveSymbolicAtomic(x *PrimitiveSymbolicAtomic) error
	VisitExpression(x *Expression) error
	VisitWideningConversion(x *WideningConversion) error
	VisitNarrowingConversion(x *NarrowingConversion) error
	VisitPrimitiveSymbolicApply(x *PrimitiveSymbolicApply) error
}

// ==================== 符号收集 ====================

type symbolCollector struct {
	seen    map[string]bool
	symbols []*PrimitiveSymbolicAtomic
}

func (c *symbolCollector) VisitSimplex(*Simplex) error { return nil }

func (c *symbolCollector) VisitPrimitiveSymbolicAtomic(x *PrimitiveSymbolicAtomic) error {
	if !c.seen[x.ID()] {
		c.seen[x.ID()] = true
		c.symbols = append(c.symbols, x)
	}
	return nil
}

func (c *symbolCollector) VisitExpression(x *Expression) error {
	if !x.IsUnary() {
		if err := x.First.Accept(c); err != nil {
			return err
		}
	}
	return x.Second.Accept(c)
}

func (c *symbolCollector) VisitWideningConversion(x *WideningConversion) error {
	return x.Arg.Accept(c)
}

func (c *symbolCollector) VisitNarrowingConversion(x *NarrowingConversion) error {
	return x.Arg.Accept(c)
}

func (c *symbolCollector) VisitPrimitiveSymbolicApply(x *PrimitiveSymbolicApply) error {
	for _, arg := range x.Args {
		switch a := arg.(type) {
		case Primitive:
			if err := a.Accept(c); err != nil {
				return err
			}
		case Reference:
			// 引用参数不引入基本类型符号
		default:
			return fmt.Errorf("%w: %T in %s", ErrUnsupportedValue, arg, x.Operator)
		}
	}
	return nil
}

// SymbolsIn 返回表达式中出现的符号原子, 按首次出现顺序去重
func SymbolsIn(p Primitive) ([]*PrimitiveSymbolicAtomic, error) {
	if p == nil {
		return nil, fmt.Errorf("%w: nil primitive", ErrUnsupportedValue)
	}
	c := &symbolCollector{seen: make(map[string]bool)}
	if err := p.Accept(c); err != nil {
		return nil, err
	}
	return c.symbols, nil
}

// ==================== 渲染 ====================

// SymbolRenderer 决定一个符号原子在源码中的写法
type SymbolRenderer func(x *PrimitiveSymbolicAtomic) (string, error)

type renderer struct {
	b      strings.Builder
	symbol SymbolRenderer
}

func (r *renderer) VisitSimplex(x *Simplex) error {
	if x.Type() == TypeBoolean {
		r.b.WriteString(x.String())
		return nil
	}
	r.b.WriteString(x.Literal())
	return nil
}

func (r *renderer) VisitPrimitiveSymbolicAtomic(x *PrimitiveSymbolicAtomic) error {
	s, err := r.symbol(x)
	if err != nil {
		return err
	}
	r.b.WriteString(s)
	return nil
}

func (r *renderer) VisitExpression(x *Expression) error {
	if x.IsUnary() {
		r.b.WriteString("(")
		r.b.WriteString(x.OpText())
		if err := x.Second.Accept(r); err != nil {
			return err
		}
		r.b.WriteString(")")
		return nil
	}
	r.b.WriteString("(")
	if err := x.First.Accept(r); err != nil {
		return err
	}
	r.b.WriteString(" " + x.OpText() + " ")
	if err := x.Second.Accept(r); err != nil {
		return err
	}
	r.b.WriteString(")")
	return nil
}

func (r *renderer) cast(to string, arg Primitive) error {
	r.b.WriteString("((" + JavaClass(to) + ") ")
	if err := arg.Accept(r); err != nil {
		return err
	}
	r.b.WriteString(")")
	return nil
}

func (r *renderer) VisitWideningConversion(x *WideningConversion) error {
	return r.cast(x.To, x.Arg)
}

func (r *renderer) VisitNarrowingConversion(x *NarrowingConversion) error {
	return r.cast(x.To, x.Arg)
}

func (r *renderer) VisitPrimitiveSymbolicApply(x *PrimitiveSymbolicApply) error {
	r.b.WriteString(x.Operator + "(")
	for i, arg := range x.Args {
		if i > 0 {
			r.b.WriteString(", ")
		}
		p, ok := arg.(Primitive)
		if !ok {
			r.b.WriteString(arg.String())
			continue
		}
		if err := p.Accept(r); err != nil {
			return err
		}
	}
	r.b.WriteString(")")
	return nil
}

// Render 将表达式渲染为源码, 符号原子由 symbol 决定写法
func Render(p Primitive, symbol SymbolRenderer) (string, error) {
	if p == nil {
		return "", fmt.Errorf("%w: nil primitive", ErrUnsupportedValue)
	}
	r := &renderer{symbol: symbol}
	if err := p.Accept(r); err != nil {
		return "", err
	}
	return r.b.String(), nil
}
