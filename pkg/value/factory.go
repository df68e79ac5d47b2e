package value

import (
	"fmt"
)

// Factory 为一条路径分配符号值
// 同一个 origin 总是得到同一个符号, 因此 origin 即符号的身份
// 非并发安全: 每条路径独占一个 Factory
type Factory struct {
	next    int
	byOrig  map[string]Symbolic
	symbols []Symbolic
}

// NewFactory 创建空的符号工厂
func NewFactory() *Factory {
	return &Factory{byOrig: make(map[string]Symbolic)}
}

// Primitive 返回 origin 处的基本类型符号, 首次访问时创建
func (f *Factory) Primitive(typ string, origin Origin) (*PrimitiveSymbolicAtomic, error) {
	if !IsPrimitive(typ) {
		return nil, fmt.Errorf("%w: primitive symbol of type %q", ErrTypeMismatch, typ)
	}
	if origin.IsZero() {
		return nil, fmt.Errorf("primitive symbol needs an origin")
	}
	if s, ok := f.byOrig[origin.String()]; ok {
		p, ok := s.(*PrimitiveSymbolicAtomic)
		if !ok || p.typ != typ {
			return nil, fmt.Errorf("%w: %s already holds %s of type %s", ErrTypeMismatch, origin, s, s.Type())
		}
		return p, nil
	}
	p := &PrimitiveSymbolicAtomic{id: f.next, typ: typ, origin: origin}
	f.record(p)
	return p, nil
}

// Reference 返回 origin 处的引用符号, 首次访问时创建
func (f *Factory) Reference(staticType string, origin Origin) (*ReferenceSymbolic, error) {
	if !IsReferenceOrArray(staticType) {
		return nil, fmt.Errorf("%w: reference symbol of type %q", ErrTypeMismatch, staticType)
	}
	if origin.IsZero() {
		return nil, fmt.Errorf("reference symbol needs an origin")
	}
	if s, ok := f.byOrig[origin.String()]; ok {
		r, ok := s.(*ReferenceSymbolic)
		if !ok {
			return nil, fmt.Errorf("%w: %s already holds %s of type %s", ErrTypeMismatch, origin, s, s.Type())
		}
		return r, nil
	}
	r := &ReferenceSymbolic{id: f.next, staticType: staticType, origin: origin}
	f.record(r)
	return r, nil
}

func (f *Factory) record(s Symbolic) {
	f.next++
	f.byOrig[s.Origin().String()] = s
	f.symbols = append(f.symbols, s)
}

// Lookup 按 origin 查找已创建的符号
func (f *Factory) Lookup(origin Origin) (Symbolic, bool) {
	s, ok := f.byOrig[origin.String()]
	return s, ok
}

// Symbols 按创建顺序返回所有符号
func (f *Factory) Symbols() []Symbolic {
	out := make([]Symbolic, len(f.symbols))
	copy(out, f.symbols)
	return out
}

// Len 已创建的符号数量
func (f *Factory) Len() int { return len(f.symbols) }

// Clone 复制工厂, 分支后的路径继续使用各自的计数器
// 符号本身不可变, 可以在副本之间共享
func (f *Factory) Clone() *Factory {
	c := &Factory{
		next:    f.next,
		byOrig:  make(map[string]Symbolic, len(f.byOrig)),
		symbols: make([]Symbolic, len(f.symbols)),
	}
	for k, v := range f.byOrig {
		c.byOrig[k] = v
	}
	copy(c.symbols, f.symbols)
	return c
}
