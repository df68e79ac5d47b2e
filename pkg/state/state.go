// Package state 一条符号执行路径的状态: 路径条件、堆、符号工厂与根栈帧
package state

import (
	"errors"
	"fmt"
	"strconv"

	"pathgen/pkg/heap"
	"pathgen/pkg/pathcond"
	"pathgen/pkg/value"
)

// This 接收者变量名
const This = "this"

var (
	// ErrFrozen 状态已冻结, 不允许修改
	ErrFrozen = errors.New("state is frozen")
	// ErrUnreadable 状态已释放, 不能读取
	ErrUnreadable = errors.New("state is not readable")
	// ErrNoRoot 访问链的根不在根栈帧中
	ErrNoRoot = errors.New("origin root not found")
)

// Status 状态生命周期
type Status int

const (
	Active Status = iota
	Frozen
	Released
)

func (s Status) String() string {
	switch s {
	case Active:
		return "active"
	case Frozen:
		return "frozen"
	case Released:
		return "released"
	}
	return fmt.Sprintf("Status(%d)", int(s))
}

// State 路径状态
// 非并发安全: 路径之间从不共享, 分支时使用 Clone
type State struct {
	signature value.Signature
	static    bool
	frame     *Frame

	pc      *pathcond.PathCondition
	heap    *heap.Heap
	factory *value.Factory

	stuckReturn    value.Value
	stuckException *value.ReferenceConcrete

	branch string
	seq    int
	fired  map[string]bool
	status Status
}

// New 创建方法入口处的状态, 参数绑定为以参数名为根的符号
// names 为空或不足时使用 argN
func New(sig value.Signature, static bool, names ...string) (*State, error) {
	params, err := value.SplitParametersDescriptors(sig.Descriptor)
	if err != nil {
		return nil, err
	}
	if _, err := sig.ReturnType(); err != nil {
		return nil, err
	}
	s := &State{
		signature: sig,
		static:    static,
		frame:     newFrame(),
		pc:        pathcond.New(),
		heap:      heap.New(),
		factory:   value.NewFactory(),
		branch:    ".1",
		fired:     make(map[string]bool),
	}
	slot := 0
	if !static {
		this, err := s.factory.Reference(value.Descriptor(sig.Class), value.RootOrigin(This))
		if err != nil {
			return nil, err
		}
		s.frame.vars[slot] = &Variable{Name: This, Type: this.StaticType(), Value: this}
		slot++
	}
	for i, typ := range params {
		name := fmt.Sprintf("arg%d", i)
		if i < len(names) && names[i] != "" {
			name = names[i]
		}
		if _, dup := s.frame.ByName(name); dup {
			return nil, fmt.Errorf("duplicate parameter name %q", name)
		}
		var v value.Value
		if value.IsPrimitive(typ) {
			v, err = s.factory.Primitive(typ, value.RootOrigin(name))
		} else {
			v, err = s.factory.Reference(typ, value.RootOrigin(name))
		}
		if err != nil {
			return nil, fmt.Errorf("parameter %s: %w", name, err)
		}
		s.frame.vars[slot] = &Variable{Name: name, Type: typ, Value: v}
		slot++
		if value.IsWide(typ) {
			slot++
		}
	}
	return s, nil
}

// ==================== 生命周期 ====================

// Status 当前生命周期阶段
func (s *State) Status() Status { return s.status }

// Freeze 冻结状态, 之后只读
func (s *State) Freeze() {
	if s.status == Active {
		s.status = Frozen
	}
}

// Release 释放状态, 之后不可读
func (s *State) Release() { s.status = Released }

// CheckActive 修改前检查
func (s *State) CheckActive() error {
	switch s.status {
	case Active:
		return nil
	case Frozen:
		return fmt.Errorf("%w: %s[%d]", ErrFrozen, s.branch, s.seq)
	}
	return fmt.Errorf("%w: %s[%d]", ErrUnreadable, s.branch, s.seq)
}

func (s *State) checkReadable() error {
	if s.status == Released {
		return fmt.Errorf("%w: %s[%d]", ErrUnreadable, s.branch, s.seq)
	}
	return nil
}

// Clone 深复制, 副本总是 active
func (s *State) Clone() (*State, error) {
	if err := s.checkReadable(); err != nil {
		return nil, err
	}
	c := &State{
		signature:      s.signature,
		static:         s.static,
		frame:          s.frame.clone(),
		pc:             s.pc.Clone(),
		heap:           s.heap.Clone(),
		factory:        s.factory.Clone(),
		stuckReturn:    s.stuckReturn,
		stuckException: s.stuckException,
		branch:         s.branch,
		seq:            s.seq,
		fired:          make(map[string]bool, len(s.fired)),
	}
	for k := range s.fired {
		c.fired[k] = true
	}
	return c, nil
}

// ==================== 标识 ====================

// BranchIdentifier 分支标识, 例如 .1.2
func (s *State) BranchIdentifier() string { return s.branch }

// SequenceNumber 分支内的序号
func (s *State) SequenceNumber() int { return s.seq }

// SetIdentifier 设置分支标识与序号
func (s *State) SetIdentifier(branch string, seq int) {
	s.branch = branch
	s.seq = seq
}

// ==================== 读取 ====================

// RootMethodSignature 被测方法签名
func (s *State) RootMethodSignature() (value.Signature, error) {
	if err := s.checkReadable(); err != nil {
		return value.Signature{}, err
	}
	return s.signature, nil
}

// IsStatic 被测方法是否为静态方法
func (s *State) IsStatic() bool { return s.static }

// RootFrame 根栈帧
func (s *State) RootFrame() (*Frame, error) {
	if err := s.checkReadable(); err != nil {
		return nil, err
	}
	return s.frame, nil
}

// PathCondition 路径条件, 修改前调用方须先 CheckActive
func (s *State) PathCondition() (*pathcond.PathCondition, error) {
	if err := s.checkReadable(); err != nil {
		return nil, err
	}
	return s.pc, nil
}

// Heap 堆, 修改前调用方须先 CheckActive
func (s *State) Heap() (*heap.Heap, error) {
	if err := s.checkReadable(); err != nil {
		return nil, err
	}
	return s.heap, nil
}

// Factory 符号工厂
func (s *State) Factory() (*value.Factory, error) {
	if err := s.checkReadable(); err != nil {
		return nil, err
	}
	return s.factory, nil
}

// Object 按位置读取堆对象
func (s *State) Object(pos int64) (*heap.Object, error) {
	if err := s.checkReadable(); err != nil {
		return nil, err
	}
	return s.heap.Get(pos)
}

// StuckReturn 正常返回时的返回值, 未返回或 void 为 nil
func (s *State) StuckReturn() (value.Value, error) {
	if err := s.checkReadable(); err != nil {
		return nil, err
	}
	return s.stuckReturn, nil
}

// StuckException 抛出的异常对象引用, 正常返回时为 nil
func (s *State) StuckException() (*value.ReferenceConcrete, error) {
	if err := s.checkReadable(); err != nil {
		return nil, err
	}
	return s.stuckException, nil
}

// ==================== 终止 ====================

// Return 以返回值终止路径并冻结
func (s *State) Return(v value.Value) error {
	if err := s.CheckActive(); err != nil {
		return err
	}
	s.stuckReturn = v
	s.Freeze()
	return nil
}

// Throw 以未捕获异常终止路径并冻结, 异常对象分配在堆上
func (s *State) Throw(className string) (*value.ReferenceConcrete, error) {
	if err := s.CheckActive(); err != nil {
		return nil, err
	}
	if value.IsArray(className) || value.IsPrimitive(className) {
		return nil, fmt.Errorf("%q cannot be thrown", className)
	}
	o := s.heap.Allocate(value.ClassName(className), value.Origin{})
	s.stuckException = value.RefTo(o.Pos)
	s.Freeze()
	return s.stuckException, nil
}

// ==================== 触发记录 ====================

// Fired 规则是否已在该状态上触发过
func (s *State) Fired(key string) bool { return s.fired[key] }

// MarkFired 记录触发
func (s *State) MarkFired(key string) error {
	if err := s.CheckActive(); err != nil {
		return err
	}
	s.fired[key] = true
	return nil
}

// ==================== 按 origin 查找 ====================

// Deref 将引用映射为堆位置 (null 为 value.NullPosition)
// 符号引用按路径条件中的解析子句查找
func (s *State) Deref(ref value.Reference) (int64, error) {
	switch r := ref.(type) {
	case *value.ReferenceConcrete:
		return r.Pos, nil
	case *value.ReferenceSymbolic:
		c, ok := s.pc.Resolution(r)
		if !ok {
			return 0, fmt.Errorf("%w: %s (%s)", heap.ErrUnresolved, r, r.Origin())
		}
		switch rc := c.(type) {
		case *pathcond.AssumeNull:
			return value.NullPosition, nil
		case *pathcond.AssumeExpands:
			return rc.Pos, nil
		case *pathcond.AssumeAliases:
			return rc.Pos, nil
		}
		return 0, fmt.Errorf("%w: resolution %T", value.ErrUnsupportedValue, c)
	}
	return 0, fmt.Errorf("%w: %T", value.ErrUnsupportedValue, ref)
}

// Lookup 从根栈帧出发沿访问链读取 origin 处当前存放的值
// 根不在栈帧中时, 退回到符号工厂中以该 origin 创建的符号
func (s *State) Lookup(origin value.Origin) (value.Value, error) {
	if err := s.checkReadable(); err != nil {
		return nil, err
	}
	if v, ok := s.frame.ByName(origin.Root); ok {
		return s.heap.WalkFill(v.Value, origin.Steps, s.Deref, s.fillElement)
	}
	if sym, ok := s.factory.Lookup(origin); ok {
		return sym, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrNoRoot, origin)
}

// fillElement 展开得到的数组在首次读取某个常量下标时创建元素符号
// 只在活动状态上创建, 冻结的状态保持不变
func (s *State) fillElement(obj *heap.Object, a value.Accessor) (value.Value, error) {
	missing := fmt.Errorf("%w: %s on Object[%d] (%s)", heap.ErrNoSlot, a, obj.Pos, obj.Type)
	if a.Kind != value.IndexAccess || !obj.IsArray() || obj.Origin.IsZero() {
		return nil, missing
	}
	if i, err := strconv.ParseInt(a.Name, 10, 32); err != nil || i < 0 {
		return nil, missing
	}
	if err := s.CheckActive(); err != nil {
		return nil, missing
	}
	typ, err := value.ArrayMemberType(obj.Type)
	if err != nil {
		return nil, err
	}
	origin := obj.Origin.Then(a)
	var v value.Value
	if value.IsPrimitive(typ) {
		v, err = s.factory.Primitive(typ, origin)
	} else {
		v, err = s.factory.Reference(typ, origin)
	}
	if err != nil {
		return nil, err
	}
	if err := obj.Set(a, v); err != nil {
		return nil, err
	}
	return v, nil
}
