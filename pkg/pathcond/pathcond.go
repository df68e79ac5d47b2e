package pathcond

import (
	"errors"
	"fmt"
	"strings"

	"pathgen/pkg/value"
)

var (
	// ErrAlreadyResolved 同一引用符号出现第二条解析子句
	ErrAlreadyResolved = errors.New("reference already resolved")
	// ErrDanglingAlias 别名指向的位置之前没有 expands 子句
	ErrDanglingAlias = errors.New("alias to a position that was never expanded")
	// ErrNotBoolean 假设的条件不是布尔类型
	ErrNotBoolean = errors.New("condition is not boolean")
	// ErrArrayLength 数组展开缺少或带有错误的长度约束
	ErrArrayLength = errors.New("malformed array length constraint")
)

// IsInvariantViolation 判断错误是否属于调用方 (引擎) 的不变式错误
func IsInvariantViolation(err error) bool {
	return errors.Is(err, ErrAlreadyResolved) ||
		errors.Is(err, ErrDanglingAlias) ||
		errors.Is(err, ErrArrayLength)
}

// PathCondition 一条路径的假设序列, 只追加
// 非并发安全: 每条路径独占
type PathCondition struct {
	clauses  []Clause
	resolved map[string]int // 引用符号 ID -> 子句下标
	expanded map[int64]int  // 堆位置 -> expands 子句下标
}

// New 创建空路径条件
func New() *PathCondition {
	return &PathCondition{
		resolved: make(map[string]int),
		expanded: make(map[int64]int),
	}
}

// Assume 追加布尔条件
func (pc *PathCondition) Assume(cond value.Primitive) error {
	if cond == nil || cond.Type() != value.TypeBoolean {
		return fmt.Errorf("%w: %v", ErrNotBoolean, cond)
	}
	pc.clauses = append(pc.clauses, &Assume{Condition: cond})
	return nil
}

// AssumeNull 追加 null 解析
func (pc *PathCondition) AssumeNull(ref *value.ReferenceSymbolic) error {
	if err := pc.checkUnresolved(ref); err != nil {
		return err
	}
	pc.appendResolving(&AssumeNull{Ref: ref})
	return nil
}

// AssumeExpands 追加对象展开; 数组必须使用 AssumeExpandsArray
func (pc *PathCondition) AssumeExpands(ref *value.ReferenceSymbolic, pos int64, className string) error {
	if value.IsArray(className) {
		return fmt.Errorf("%w: %s expands to array %s without a length", ErrArrayLength, ref, className)
	}
	return pc.expand(ref, pos, className)
}

// AssumeExpandsArray 追加数组展开, 长度约束紧随其后
// lengthCond 必须是布尔条件且恰好包含一个符号 (长度)
func (pc *PathCondition) AssumeExpandsArray(ref *value.ReferenceSymbolic, pos int64, className string, lengthCond value.Primitive) error {
	if !value.IsArray(className) {
		return fmt.Errorf("%w: %s is not an array type", ErrArrayLength, className)
	}
	if lengthCond == nil || lengthCond.Type() != value.TypeBoolean {
		return fmt.Errorf("%w: %v", ErrNotBoolean, lengthCond)
	}
	symbols, err := value.SymbolsIn(lengthCond)
	if err != nil {
		return err
	}
	if len(symbols) != 1 {
		return fmt.Errorf("%w: %s mentions %d symbols", ErrArrayLength, lengthCond, len(symbols))
	}
	if err := pc.expand(ref, pos, className); err != nil {
		return err
	}
	pc.clauses = append(pc.clauses, &Assume{Condition: lengthCond})
	return nil
}

func (pc *PathCondition) expand(ref *value.ReferenceSymbolic, pos int64, className string) error {
	if err := pc.checkUnresolved(ref); err != nil {
		return err
	}
	if i, ok := pc.expanded[pos]; ok {
		return fmt.Errorf("%w: Object[%d] already expanded by %s", ErrAlreadyResolved, pos, pc.clauses[i])
	}
	pc.expanded[pos] = len(pc.clauses)
	pc.appendResolving(&AssumeExpands{Ref: ref, Pos: pos, Class: className})
	return nil
}

// AssumeAliases 追加别名解析, pos 必须已被展开
func (pc *PathCondition) AssumeAliases(ref *value.ReferenceSymbolic, pos int64) error {
	if err := pc.checkUnresolved(ref); err != nil {
		return err
	}
	if _, ok := pc.expanded[pos]; !ok {
		return fmt.Errorf("%w: %s -> Object[%d]", ErrDanglingAlias, ref, pos)
	}
	pc.appendResolving(&AssumeAliases{Ref: ref, Pos: pos})
	return nil
}

// AssumeClassInitialized 记录类预初始化
func (pc *PathCondition) AssumeClassInitialized(className string) {
	pc.clauses = append(pc.clauses, &AssumeClassInitialized{Class: className})
}

func (pc *PathCondition) checkUnresolved(ref *value.ReferenceSymbolic) error {
	if ref == nil {
		return fmt.Errorf("%w: nil reference", value.ErrUnsupportedValue)
	}
	if i, ok := pc.resolved[ref.ID()]; ok {
		return fmt.Errorf("%w: %s by %s", ErrAlreadyResolved, ref, pc.clauses[i])
	}
	return nil
}

func (pc *PathCondition) appendResolving(c Resolving) {
	pc.resolved[c.Reference().ID()] = len(pc.clauses)
	pc.clauses = append(pc.clauses, c)
}

// ==================== 查询 ====================

// Resolution 返回已解析该引用的子句
func (pc *PathCondition) Resolution(ref *value.ReferenceSymbolic) (Resolving, bool) {
	i, ok := pc.resolved[ref.ID()]
	if !ok {
		return nil, false
	}
	return pc.clauses[i].(Resolving), true
}

// ExpansionAt 返回展开 pos 处对象的子句
func (pc *PathCondition) ExpansionAt(pos int64) (*AssumeExpands, bool) {
	i, ok := pc.expanded[pos]
	if !ok {
		return nil, false
	}
	return pc.clauses[i].(*AssumeExpands), true
}

// Clauses 返回子句的副本 (子句本身不可变)
func (pc *PathCondition) Clauses() []Clause {
	out := make([]Clause, len(pc.clauses))
	copy(out, pc.clauses)
	return out
}

// Conditions 返回所有 Assume 子句的条件, 供求解器使用
func (pc *PathCondition) Conditions() []value.Primitive {
	var out []value.Primitive
	for _, c := range pc.clauses {
		if a, ok := c.(*Assume); ok {
			out = append(out, a.Condition)
		}
	}
	return out
}

// Len 子句数量
func (pc *PathCondition) Len() int { return len(pc.clauses) }

// Clone 复制路径条件, 分支后各自追加
func (pc *PathCondition) Clone() *PathCondition {
	c := &PathCondition{
		clauses:  make([]Clause, len(pc.clauses)),
		resolved: make(map[string]int, len(pc.resolved)),
		expanded: make(map[int64]int, len(pc.expanded)),
	}
	copy(c.clauses, pc.clauses)
	for k, v := range pc.resolved {
		c.resolved[k] = v
	}
	for k, v := range pc.expanded {
		c.expanded[k] = v
	}
	return c
}

func (pc *PathCondition) String() string {
	if len(pc.clauses) == 0 {
		return "true"
	}
	parts := make([]string, len(pc.clauses))
	for i, c := range pc.clauses {
		parts[i] = c.String()
	}
	return strings.Join(parts, " && ")
}
