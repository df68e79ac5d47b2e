package value

import (
	"fmt"
	"sort"
	"strings"
)

// Model 求解器给出的符号取值, 以符号 ID ({V3}) 为 key
type Model map[string]*Simplex

// Get 查询符号的取值
func (m Model) Get(x *PrimitiveSymbolicAtomic) (*Simplex, bool) {
	if m == nil {
		return nil, false
	}
	v, ok := m[x.ID()]
	return v, ok
}

// Set 设置符号的取值, 按符号类型转换
func (m Model) Set(x *PrimitiveSymbolicAtomic, v *Simplex) error {
	cv, err := Convert(x.Type(), v)
	if err != nil {
		return fmt.Errorf("model value for %s: %w", x, err)
	}
	m[x.ID()] = cv
	return nil
}

// Lookup 以模型为取值来源, 缺失时返回 ErrMissingValue
func (m Model) Lookup() Lookup {
	return func(x *PrimitiveSymbolicAtomic) (*Simplex, error) {
		v, ok := m.Get(x)
		if !ok {
			return nil, fmt.Errorf("%w: %s (%s)", ErrMissingValue, x, x.Origin())
		}
		return v, nil
	}
}

// Eval 在模型下计算表达式
func (m Model) Eval(p Primitive) (*Simplex, error) {
	return Eval(p, m.Lookup())
}

// Clone 浅复制 (Simplex 不可变)
func (m Model) Clone() Model {
	c := make(Model, len(m))
	for k, v := range m {
		c[k] = v
	}
	return c
}

// String 按 ID 排序输出, 便于日志与缓存 key
func (m Model) String() string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	b.WriteString("{")
	for i, k := range keys {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(k + "=" + m[k].String())
	}
	b.WriteString("}")
	return b.String()
}
