package heap

import (
	"errors"
	"fmt"
	"sort"

	"pathgen/pkg/value"
)

// Heap 位置 -> 对象, 位置从 1 开始单调分配, 路径内不复用
// 非并发安全: 每条路径独占
type Heap struct {
	objects map[int64]*Object
	next    int64
}

// New 创建空堆
func New() *Heap {
	return &Heap{objects: make(map[int64]*Object), next: 1}
}

// Allocate 分配对象
func (h *Heap) Allocate(typ string, origin value.Origin) *Object {
	o := newObject(h.next, typ, origin)
	h.objects[o.Pos] = o
	h.next++
	return o
}

// AllocateArray 分配数组, length 为长度值 (常量或符号)
func (h *Heap) AllocateArray(typ string, origin value.Origin, length value.Primitive) (*Object, error) {
	if !value.IsArray(typ) {
		return nil, fmt.Errorf("%q is not an array type", typ)
	}
	if length == nil || !value.IsPrimitiveIntegral(length.Type()) || length.Type() == value.TypeBoolean {
		return nil, fmt.Errorf("array length of %s must be integral, got %v", typ, length)
	}
	o := h.Allocate(typ, origin)
	o.Length = length
	return o, nil
}

// Get 返回位置上的对象
func (h *Heap) Get(pos int64) (*Object, error) {
	o, ok := h.objects[pos]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrNoObject, pos)
	}
	return o, nil
}

// Has 位置上是否有对象
func (h *Heap) Has(pos int64) bool {
	_, ok := h.objects[pos]
	return ok
}

// Positions 升序返回所有位置
func (h *Heap) Positions() []int64 {
	out := make([]int64, 0, len(h.objects))
	for p := range h.objects {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Len 对象数量
func (h *Heap) Len() int { return len(h.objects) }

// Clone 深复制, 分支后的路径互不影响
func (h *Heap) Clone() *Heap {
	c := &Heap{objects: make(map[int64]*Object, len(h.objects)), next: h.next}
	for p, o := range h.objects {
		c.objects[p] = o.Clone()
	}
	return c
}

// ==================== 访问链解释 ====================

// Deref 将引用值映射到堆位置
// 具体引用直接取位置, 符号引用由调用方按路径条件查找
type Deref func(ref value.Reference) (int64, error)

// Filler 为对象上缺失的槽提供初始值, 无法提供时返回错误
type Filler func(obj *Object, a value.Accessor) (value.Value, error)

// Walk 从 root 出发逐步解释访问链, 返回链末端的值
func (h *Heap) Walk(root value.Value, steps []value.Accessor, deref Deref) (value.Value, error) {
	return h.WalkFill(root, steps, deref, nil)
}

// WalkFill 同 Walk, 缺失的槽交给 fill 补齐 (fill 为 nil 时直接报错)
func (h *Heap) WalkFill(root value.Value, steps []value.Accessor, deref Deref, fill Filler) (value.Value, error) {
	cur := root
	for i, step := range steps {
		ref, ok := cur.(value.Reference)
		if !ok {
			return nil, fmt.Errorf("%w: step %d (%s) applied to %v", ErrNoSlot, i, step, cur)
		}
		pos, err := deref(ref)
		if err != nil {
			return nil, err
		}
		if pos == value.NullPosition {
			return nil, fmt.Errorf("%w: step %d (%s)", ErrNullDereference, i, step)
		}
		obj, err := h.Get(pos)
		if err != nil {
			return nil, err
		}
		if cur, err = obj.Get(step); err != nil {
			if fill == nil || !errors.Is(err, ErrNoSlot) {
				return nil, err
			}
			if cur, err = fill(obj, step); err != nil {
				return nil, err
			}
		}
	}
	return cur, nil
}

// ConcreteDeref 只接受已解析的具体引用
func ConcreteDeref(ref value.Reference) (int64, error) {
	if c, ok := ref.(*value.ReferenceConcrete); ok {
		return c.Pos, nil
	}
	return 0, fmt.Errorf("%w: %s", ErrUnresolved, ref)
}
