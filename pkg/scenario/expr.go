package scenario

import (
	"fmt"
	"strconv"
	"strings"
	"text/scanner"

	"pathgen/pkg/value"
)

// OriginLookup 将表达式中的 origin 映射为路径上的当前值
type OriginLookup func(o value.Origin) (value.Value, error)

// ParseExpr 解析脚本中的表达式, 例如 "x.size > 0 && !x.empty"
// 运算符优先级同 Java; 操作数为整数/浮点/布尔字面量、null 或 origin
func ParseExpr(src string, lookup OriginLookup) (value.Value, error) {
	p := &exprParser{lookup: lookup, src: src}
	p.s.Init(strings.NewReader(src))
	p.s.Mode = scanner.ScanIdents | scanner.ScanInts | scanner.ScanFloats
	p.s.Error = func(_ *scanner.Scanner, msg string) { p.fail(msg) }
	p.next()

	v := p.binary(0)
	if p.err == nil && p.tok != scanner.EOF {
		p.fail("unexpected " + p.text)
	}
	if p.err != nil {
		return nil, p.err
	}
	return v, nil
}

type exprParser struct {
	s      scanner.Scanner
	tok    rune
	text   string
	src    string
	lookup OriginLookup
	err    error
}

func (p *exprParser) fail(msg string) {
	if p.err == nil {
		p.err = fmt.Errorf("expression %q: %s", p.src, msg)
	}
}

// next 读入下一个记号, 两字符运算符合并为一个
func (p *exprParser) next() {
	p.tok = p.s.Scan()
	p.text = p.s.TokenText()
	switch p.tok {
	case '=', '!', '<', '>':
		if p.s.Peek() == '=' {
			p.s.Next()
			p.text += "="
		}
	case '&', '|':
		if p.s.Peek() == p.tok {
			p.s.Next()
			p.text += string(p.tok)
		}
	}
}

// 二元运算符优先级, 数值越大结合越紧
var precedence = map[string]int{
	"||": 1,
	"&&": 2,
	"|":  3,
	"^":  4,
	"&":  5,
	"==": 6, "!=": 6,
	"<": 7, "<=": 7, ">": 7, ">=": 7,
	"+": 8, "-": 8,
	"*": 9, "/": 9, "%": 9,
}

func (p *exprParser) binary(minPrec int) value.Value {
	left := p.unary()
	for p.err == nil {
		prec, ok := precedence[p.text]
		if !ok || prec <= minPrec || p.tok == scanner.EOF {
			return left
		}
		opText := p.text
		p.next()
		right := p.binary(prec)
		if p.err != nil {
			return nil
		}
		left = p.combine(opText, left, right)
	}
	return nil
}

func (p *exprParser) combine(opText string, left, right value.Value) value.Value {
	op, err := value.ParseOperator(opText)
	if err != nil {
		p.fail(err.Error())
		return nil
	}
	a, okA := left.(value.Primitive)
	b, okB := right.(value.Primitive)
	if !okA || !okB {
		p.fail(fmt.Sprintf("%s %s %s: operands must be primitive", left, opText, right))
		return nil
	}
	e, err := value.NewBinary(op, a, b)
	if err != nil {
		p.fail(err.Error())
		return nil
	}
	return e
}

func (p *exprParser) unary() value.Value {
	switch p.text {
	case "-", "!":
		op := value.NEG
		if p.text == "!" {
			op = value.NOT
		}
		p.next()
		operand := p.unary()
		if p.err != nil {
			return nil
		}
		// 负数字面量直接折叠
		if s, ok := operand.(*value.Simplex); ok && op == value.NEG && !s.IsFloating() {
			v, _ := value.NewSimplex(s.Type(), -s.Int64())
			return v
		}
		prim, ok := operand.(value.Primitive)
		if !ok {
			p.fail(fmt.Sprintf("%s applied to %s", op, operand))
			return nil
		}
		e, err := value.NewUnary(op, prim)
		if err != nil {
			p.fail(err.Error())
			return nil
		}
		return e
	}
	return p.primary()
}

func (p *exprParser) primary() value.Value {
	switch p.tok {
	case scanner.Int:
		text := p.text
		p.next()
		n, err := strconv.ParseInt(text, 0, 64)
		if err != nil {
			p.fail(err.Error())
			return nil
		}
		if p.text == "L" {
			p.next()
			return value.LongOf(n)
		}
		if n < -1<<31 || n > 1<<31-1 {
			return value.LongOf(n)
		}
		return value.IntOf(int32(n))
	case scanner.Float:
		text := p.text
		p.next()
		f, err := strconv.ParseFloat(text, 64)
		if err != nil {
			p.fail(err.Error())
			return nil
		}
		return value.DoubleOf(f)
	case '(':
		p.next()
		v := p.binary(0)
		if p.text != ")" {
			p.fail("missing )")
			return nil
		}
		p.next()
		return v
	case scanner.Ident:
		switch p.text {
		case "true", "false":
			b := p.text == "true"
			p.next()
			return value.BoolOf(b)
		case "null":
			p.next()
			return value.Null
		}
		return p.origin()
	}
	p.fail("unexpected " + p.text)
	return nil
}

// origin ident ( .ident | [int] )*
func (p *exprParser) origin() value.Value {
	var b strings.Builder
	b.WriteString(p.text)
	p.next()
	for p.err == nil {
		switch p.tok {
		case '.':
			p.next()
			if p.tok != scanner.Ident {
				p.fail("field name expected after .")
				return nil
			}
			b.WriteString("." + p.text)
			p.next()
			continue
		case '[':
			p.next()
			if p.tok != scanner.Int {
				p.fail("constant index expected")
				return nil
			}
			b.WriteString("[" + p.text + "]")
			p.next()
			if p.tok != ']' {
				p.fail("missing ]")
				return nil
			}
			p.next()
			continue
		}
		break
	}
	if p.err != nil {
		return nil
	}
	o, err := value.ParseOrigin(b.String())
	if err != nil {
		p.fail(err.Error())
		return nil
	}
	v, err := p.lookup(o)
	if err != nil {
		if p.err == nil {
			p.err = fmt.Errorf("expression %q: %w", p.src, err)
		}
		return nil
	}
	return v
}
