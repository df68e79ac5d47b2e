// Package pathcond 路径条件: 一条执行路径上按发现顺序记录的假设子句
package pathcond

import (
	"fmt"

	"pathgen/pkg/value"
)

// Clause 路径条件中的一条子句
type Clause interface {
	String() string
	clause()
}

// Resolving 解析引用符号的子句 (null / expands / aliases)
type Resolving interface {
	Clause
	Reference() *value.ReferenceSymbolic
}

// Assume 布尔表达式成立
type Assume struct {
	Condition value.Primitive
}

// AssumeNull 引用符号解析为 null
type AssumeNull struct {
	Ref *value.ReferenceSymbolic
}

// AssumeExpands 引用符号解析为 Pos 处新分配的对象 (或数组)
type AssumeExpands struct {
	Ref   *value.ReferenceSymbolic
	Pos   int64
	Class string // 对象的具体类名或数组描述符
}

// AssumeAliases 引用符号解析为 Pos 处已存在的对象
type AssumeAliases struct {
	Ref *value.ReferenceSymbolic
	Pos int64
}

// AssumeClassInitialized 记录类在路径开始前已初始化 (预初始化, 不参与测试生成)
type AssumeClassInitialized struct {
	Class string
}

func (*Assume) clause()                 {}
func (*AssumeNull) clause()             {}
func (*AssumeExpands) clause()          {}
func (*AssumeAliases) clause()          {}
func (*AssumeClassInitialized) clause() {}

func (c *AssumeNull) Reference() *value.ReferenceSymbolic    { return c.Ref }
func (c *AssumeExpands) Reference() *value.ReferenceSymbolic { return c.Ref }
func (c *AssumeAliases) Reference() *value.ReferenceSymbolic { return c.Ref }

func (c *Assume) String() string { return c.Condition.String() }

func (c *AssumeNull) String() string {
	return c.Ref.String() + " == null"
}

func (c *AssumeExpands) String() string {
	return fmt.Sprintf("%s == Object[%d] (fresh %s)", c.Ref, c.Pos, c.Class)
}

func (c *AssumeAliases) String() string {
	return fmt.Sprintf("%s == Object[%d]", c.Ref, c.Pos)
}

func (c *AssumeClassInitialized) String() string {
	return "pre_init(" + c.Class + ")"
}

// IsArray expands 子句的目标是否为数组
func (c *AssumeExpands) IsArray() bool { return value.IsArray(c.Class) }
