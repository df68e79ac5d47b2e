// Package heap 路径上的堆: 以位置为 key 的对象 arena
package heap

import (
	"errors"
	"fmt"

	"pathgen/pkg/value"
)

var (
	// ErrNoObject 堆中不存在该位置 (调用方不变式错误)
	ErrNoObject = errors.New("no object at heap position")
	// ErrNoSlot 对象没有该字段或元素
	ErrNoSlot = errors.New("no such field or element")
	// ErrNullDereference 访问链经过 null
	ErrNullDereference = errors.New("null dereference")
	// ErrUnresolved 访问链经过尚未解析的引用符号
	ErrUnresolved = errors.New("unresolved symbolic reference")
)

// Container 可按访问步骤读写的容器
type Container interface {
	Get(a value.Accessor) (value.Value, error)
	Set(a value.Accessor, v value.Value) error
}

// Object 堆对象或数组
type Object struct {
	Pos    int64
	Type   string          // 类名或数组描述符
	Origin value.Origin    // 具体分配的对象为空
	Length value.Primitive // 仅数组

	slots map[string]value.Value
	order []string
}

func newObject(pos int64, typ string, origin value.Origin) *Object {
	return &Object{Pos: pos, Type: typ, Origin: origin, slots: make(map[string]value.Value)}
}

// IsArray 是否为数组
func (o *Object) IsArray() bool { return value.IsArray(o.Type) }

func slotKey(a value.Accessor) (string, error) {
	switch a.Kind {
	case value.FieldAccess:
		return a.Name, nil
	case value.IndexAccess:
		return "[" + a.Name + "]", nil
	}
	return "", fmt.Errorf("%w: %s", ErrNoSlot, a)
}

// Get 读取字段、元素或数组长度
func (o *Object) Get(a value.Accessor) (value.Value, error) {
	if a.Kind == value.LengthAccess {
		if !o.IsArray() || o.Length == nil {
			return nil, fmt.Errorf("%w: %s on Object[%d] (%s)", ErrNoSlot, a, o.Pos, o.Type)
		}
		return o.Length, nil
	}
	if a.Kind == value.IndexAccess && !o.IsArray() {
		return nil, fmt.Errorf("%w: %s on non-array Object[%d] (%s)", ErrNoSlot, a, o.Pos, o.Type)
	}
	k, err := slotKey(a)
	if err != nil {
		return nil, err
	}
	v, ok := o.slots[k]
	if !ok {
		return nil, fmt.Errorf("%w: %s on Object[%d] (%s)", ErrNoSlot, a, o.Pos, o.Type)
	}
	return v, nil
}

// Set 写入字段或元素, 长度不可写
func (o *Object) Set(a value.Accessor, v value.Value) error {
	if a.Kind == value.IndexAccess && !o.IsArray() {
		return fmt.Errorf("%w: %s on non-array Object[%d] (%s)", ErrNoSlot, a, o.Pos, o.Type)
	}
	k, err := slotKey(a)
	if err != nil {
		return err
	}
	if _, ok := o.slots[k]; !ok {
		o.order = append(o.order, k)
	}
	o.slots[k] = v
	return nil
}

// Slots 按写入顺序返回字段/元素名
func (o *Object) Slots() []string {
	out := make([]string, len(o.order))
	copy(out, o.order)
	return out
}

// Clone 复制对象 (值不可变, 共享)
func (o *Object) Clone() *Object {
	c := newObject(o.Pos, o.Type, o.Origin)
	c.Length = o.Length
	c.order = make([]string, len(o.order))
	copy(c.order, o.order)
	for k, v := range o.slots {
		c.slots[k] = v
	}
	return c
}

func (o *Object) String() string {
	return fmt.Sprintf("Object[%d]:%s", o.Pos, o.Type)
}
