package state

import (
	"sort"

	"pathgen/pkg/value"
)

// Variable 局部变量槽
type Variable struct {
	Name  string
	Type  string
	Value value.Value
}

// Frame 根方法的局部变量表, slot -> 变量
// long/double 占两个槽, 第二个槽为空
type Frame struct {
	vars map[int]*Variable
}

func newFrame() *Frame {
	return &Frame{vars: make(map[int]*Variable)}
}

// Slots 升序返回已占用的槽号
func (f *Frame) Slots() []int {
	out := make([]int, 0, len(f.vars))
	for s := range f.vars {
		out = append(out, s)
	}
	sort.Ints(out)
	return out
}

// Variable 按槽号查找
func (f *Frame) Variable(slot int) (*Variable, bool) {
	v, ok := f.vars[slot]
	return v, ok
}

// ByName 按变量名查找
func (f *Frame) ByName(name string) (*Variable, bool) {
	for _, s := range f.Slots() {
		if v := f.vars[s]; v.Name == name {
			return v, true
		}
	}
	return nil, false
}

// Parameters 按槽序返回声明的参数, 跳过 this
func (f *Frame) Parameters() []*Variable {
	var out []*Variable
	for _, s := range f.Slots() {
		if v := f.vars[s]; v.Name != This {
			out = append(out, v)
		}
	}
	return out
}

func (f *Frame) clone() *Frame {
	c := newFrame()
	for s, v := range f.vars {
		cp := *v
		c.vars[s] = &cp
	}
	return c
}
