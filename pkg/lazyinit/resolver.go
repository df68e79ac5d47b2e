// Package lazyinit 引用符号的惰性初始化: 首次解引用时解析为 null、别名或新对象
package lazyinit

import (
	"errors"
	"fmt"
	"log"

	"pathgen/pkg/pathcond"
	"pathgen/pkg/rules"
	"pathgen/pkg/state"
	"pathgen/pkg/value"
)

var (
	// ErrContradiction 引用没有任何可行的解析
	ErrContradiction = errors.New("no viable resolution for reference")
	// ErrIncompatible 候选对象的类型与引用的静态类型不兼容
	ErrIncompatible = errors.New("incompatible resolution candidate")
)

// Kind 候选解析类型
type Kind int

const (
	Null Kind = iota
	Alias
	Expand
)

func (k Kind) String() string {
	switch k {
	case Null:
		return "null"
	case Alias:
		return "alias"
	case Expand:
		return "expand"
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Candidate 一个候选解析
type Candidate struct {
	Kind  Kind
	Pos   int64  // Alias: 目标位置
	Class string // Expand: 具体类名或数组描述符
}

func (c Candidate) String() string {
	switch c.Kind {
	case Alias:
		return fmt.Sprintf("alias Object[%d]", c.Pos)
	case Expand:
		return "expand " + c.Class
	}
	return c.Kind.String()
}

// Resolver 惰性初始化解析器
// 规则表与类表只读, 一个 Resolver 可以服务多条路径
type Resolver struct {
	classes *ClassTable
	engine  *rules.Engine
	invoker rules.Invoker
	Verbose bool
}

// NewResolver 创建解析器, classes / engine 可以为 nil
func NewResolver(classes *ClassTable, engine *rules.Engine, invoker rules.Invoker) *Resolver {
	if engine == nil {
		engine = rules.NewEngine(nil)
	}
	return &Resolver{classes: classes, engine: engine, invoker: invoker}
}

// SetInvoker 设置触发方法的执行者 (解释器通常在构造解析器之后才就绪)
func (r *Resolver) SetInvoker(inv rules.Invoker) { r.invoker = inv }

// Classes 类表
func (r *Resolver) Classes() *ClassTable { return r.classes }

// Resolve 在当前路径上应用一个候选解析, 返回解析后的具体引用
// 已解析的引用直接返回已记录的结果, 不追加子句
func (r *Resolver) Resolve(st *state.State, ref *value.ReferenceSymbolic, c Candidate) (*value.ReferenceConcrete, error) {
	pc, err := st.PathCondition()
	if err != nil {
		return nil, err
	}
	if prev, ok := pc.Resolution(ref); ok {
		return resolvedTarget(prev), nil
	}
	if err := st.CheckActive(); err != nil {
		return nil, err
	}

	switch c.Kind {
	case Null:
		return r.resolveNull(st, pc, ref)
	case Alias:
		return r.resolveAlias(st, pc, ref, c.Pos)
	case Expand:
		return r.resolveExpand(st, pc, ref, c.Class)
	}
	return nil, fmt.Errorf("%w: candidate kind %s", value.ErrUnsupportedValue, c.Kind)
}

func resolvedTarget(c pathcond.Resolving) *value.ReferenceConcrete {
	switch rc := c.(type) {
	case *pathcond.AssumeExpands:
		return value.RefTo(rc.Pos)
	case *pathcond.AssumeAliases:
		return value.RefTo(rc.Pos)
	}
	return value.Null
}

func (r *Resolver) resolveNull(st *state.State, pc *pathcond.PathCondition, ref *value.ReferenceSymbolic) (*value.ReferenceConcrete, error) {
	if err := pc.AssumeNull(ref); err != nil {
		return nil, err
	}
	r.logf("%s (%s) resolved to null", ref, ref.Origin())
	if err := r.fire(st, ref, "", rules.Null, value.Null); err != nil {
		return nil, err
	}
	return value.Null, nil
}

func (r *Resolver) resolveAlias(st *state.State, pc *pathcond.PathCondition, ref *value.ReferenceSymbolic, pos int64) (*value.ReferenceConcrete, error) {
	obj, err := st.Object(pos)
	if err != nil {
		return nil, err
	}
	if !r.classes.IsSubclass(obj.Type, value.ClassName(ref.StaticType())) {
		return nil, fmt.Errorf("%w: %s (%s) cannot alias %s", ErrIncompatible, ref, ref.StaticType(), obj)
	}
	if err := pc.AssumeAliases(ref, pos); err != nil {
		return nil, err
	}
	r.logf("%s (%s) aliases %s", ref, ref.Origin(), obj)
	target := value.RefTo(pos)
	if err := r.fire(st, ref, obj.Type, rules.Aliases, target); err != nil {
		return nil, err
	}
	return target, nil
}

func (r *Resolver) resolveExpand(st *state.State, pc *pathcond.PathCondition, ref *value.ReferenceSymbolic, className string) (*value.ReferenceConcrete, error) {
	if className == "" {
		className = value.ClassName(ref.StaticType())
	}
	if !r.classes.IsSubclass(className, value.ClassName(ref.StaticType())) {
		return nil, fmt.Errorf("%w: %s (%s) cannot expand to %s", ErrIncompatible, ref, ref.StaticType(), className)
	}
	if c, ok := r.classes.Class(className); ok && c.Abstract {
		return nil, fmt.Errorf("%w: %s is abstract", ErrIncompatible, className)
	}
	h, err := st.Heap()
	if err != nil {
		return nil, err
	}
	f, err := st.Factory()
	if err != nil {
		return nil, err
	}
	origin := ref.Origin()

	var target *value.ReferenceConcrete
	if value.IsArray(className) {
		length, err := f.Primitive(value.TypeInt, origin.Then(value.Length()))
		if err != nil {
			return nil, err
		}
		cond, err := value.NewBinary(value.GE, length, value.IntOf(0))
		if err != nil {
			return nil, err
		}
		obj, err := h.AllocateArray(className, origin, length)
		if err != nil {
			return nil, err
		}
		if err := pc.AssumeExpandsArray(ref, obj.Pos, className, cond); err != nil {
			return nil, err
		}
		target = value.RefTo(obj.Pos)
	} else {
		obj := h.Allocate(className, origin)
		if err := pc.AssumeExpands(ref, obj.Pos, className); err != nil {
			return nil, err
		}
		for _, fd := range r.classes.Fields(className) {
			fo := origin.Then(value.Field(fd.Name))
			var v value.Value
			if value.IsPrimitive(fd.Type) {
				v, err = f.Primitive(fd.Type, fo)
			} else {
				v, err = f.Reference(fd.Type, fo)
			}
			if err != nil {
				return nil, fmt.Errorf("field %s of %s: %w", fd.Name, className, err)
			}
			if err := obj.Set(value.Field(fd.Name), v); err != nil {
				return nil, err
			}
		}
		target = value.RefTo(obj.Pos)
	}
	r.logf("%s (%s) expands to Object[%d] (%s)", ref, origin, target.Pos, className)
	if err := r.fire(st, ref, className, rules.Expands, target); err != nil {
		return nil, err
	}
	return target, nil
}

func (r *Resolver) fire(st *state.State, ref *value.ReferenceSymbolic, className string, kind rules.Kind, target value.Reference) error {
	_, err := r.engine.MatchAndFire(st, ref.Origin(), className, kind, target, r.invoker)
	return err
}

func (r *Resolver) logf(format string, args ...interface{}) {
	if r.Verbose {
		log.Printf("[LazyInit] "+format, args...)
	}
}

// ==================== 分支 ====================

// Branch 为每个候选复制一份状态并在副本上解析, 原状态不变
// 多于一个候选时副本的分支标识追加 .1 .2 ...
func (r *Resolver) Branch(st *state.State, ref *value.ReferenceSymbolic, candidates []Candidate) ([]*state.State, error) {
	if len(candidates) == 0 {
		return nil, fmt.Errorf("%w: %s (%s)", ErrContradiction, ref, ref.Origin())
	}
	out := make([]*state.State, 0, len(candidates))
	for i, c := range candidates {
		next, err := st.Clone()
		if err != nil {
			return nil, err
		}
		if len(candidates) > 1 {
			next.SetIdentifier(fmt.Sprintf("%s.%d", st.BranchIdentifier(), i+1), 0)
		} else {
			next.SetIdentifier(st.BranchIdentifier(), st.SequenceNumber()+1)
		}
		if _, err := r.Resolve(next, ref, c); err != nil {
			return nil, fmt.Errorf("candidate %s: %w", c, err)
		}
		out = append(out, next)
	}
	return out, nil
}

// ==================== 候选集合 ====================

// Options 默认候选集合的约束
type Options struct {
	// NotNull 不允许为 null 的 origin (this 总是非 null)
	NotNull map[string]bool
}

// Candidates 计算默认候选集合: null、兼容的已展开对象、可实例化的子类
// 已解析的引用只有一个候选, 即已记录的解析
func (r *Resolver) Candidates(st *state.State, ref *value.ReferenceSymbolic, opts Options) ([]Candidate, error) {
	pc, err := st.PathCondition()
	if err != nil {
		return nil, err
	}
	if prev, ok := pc.Resolution(ref); ok {
		switch rc := prev.(type) {
		case *pathcond.AssumeExpands:
			return []Candidate{{Kind: Alias, Pos: rc.Pos}}, nil
		case *pathcond.AssumeAliases:
			return []Candidate{{Kind: Alias, Pos: rc.Pos}}, nil
		}
		return []Candidate{{Kind: Null}}, nil
	}
	h, err := st.Heap()
	if err != nil {
		return nil, err
	}

	static := value.ClassName(ref.StaticType())
	var out []Candidate
	if ref.Origin().Path() != state.This && !opts.NotNull[ref.Origin().String()] {
		out = append(out, Candidate{Kind: Null})
	}
	for _, pos := range h.Positions() {
		if _, expanded := pc.ExpansionAt(pos); !expanded {
			continue
		}
		obj, err := h.Get(pos)
		if err != nil {
			return nil, err
		}
		if r.classes.IsSubclass(obj.Type, static) {
			out = append(out, Candidate{Kind: Alias, Pos: pos})
		}
	}
	for _, cls := range r.classes.ConcreteSubclasses(static) {
		out = append(out, Candidate{Kind: Expand, Class: cls})
	}
	return out, nil
}
