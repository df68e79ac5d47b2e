package lazyinit

import (
	"fmt"

	"pathgen/pkg/value"
)

// ObjectClass 所有类的根
const ObjectClass = "java/lang/Object"

// FieldDecl 字段声明
type FieldDecl struct {
	Name string `yaml:"name" json:"name"`
	Type string `yaml:"type" json:"type"`
}

// Class 类元数据: 父类、是否抽象、声明的实例字段
type Class struct {
	Name     string      `yaml:"name" json:"name"`
	Super    string      `yaml:"super,omitempty" json:"super,omitempty"`
	Abstract bool        `yaml:"abstract,omitempty" json:"abstract,omitempty"`
	Fields   []FieldDecl `yaml:"fields,omitempty" json:"fields,omitempty"`
}

// ClassTable 展开时使用的类元数据, 构造后只读
type ClassTable struct {
	classes map[string]*Class
	order   []string
}

// NewClassTable 注册类, 未声明的父类视为 java/lang/Object
func NewClassTable(classes ...Class) (*ClassTable, error) {
	t := &ClassTable{classes: make(map[string]*Class)}
	for i := range classes {
		c := classes[i]
		if c.Name == "" {
			return nil, fmt.Errorf("class %d has no name", i)
		}
		if _, dup := t.classes[c.Name]; dup {
			return nil, fmt.Errorf("class %s declared twice", c.Name)
		}
		for _, f := range c.Fields {
			if f.Name == "" || !(value.IsPrimitive(f.Type) || value.IsReferenceOrArray(f.Type)) {
				return nil, fmt.Errorf("class %s: bad field %q of type %q", c.Name, f.Name, f.Type)
			}
		}
		if c.Super == "" && c.Name != ObjectClass {
			c.Super = ObjectClass
		}
		t.classes[c.Name] = &c
		t.order = append(t.order, c.Name)
	}
	// 继承链不能成环
	for _, name := range t.order {
		seen := map[string]bool{}
		for cur := name; cur != ""; cur = t.super(cur) {
			if seen[cur] {
				return nil, fmt.Errorf("class %s: cyclic inheritance", name)
			}
			seen[cur] = true
		}
	}
	return t, nil
}

func (t *ClassTable) super(name string) string {
	if c, ok := t.classes[name]; ok {
		return c.Super
	}
	return ""
}

// Class 查找类
func (t *ClassTable) Class(name string) (*Class, bool) {
	if t == nil {
		return nil, false
	}
	c, ok := t.classes[name]
	return c, ok
}

// Fields 返回实例字段, 父类字段在前
func (t *ClassTable) Fields(name string) []FieldDecl {
	if t == nil {
		return nil
	}
	var chain []*Class
	for cur := name; cur != ""; cur = t.super(cur) {
		if c, ok := t.classes[cur]; ok {
			chain = append(chain, c)
		}
	}
	var out []FieldDecl
	for i := len(chain) - 1; i >= 0; i-- {
		out = append(out, chain[i].Fields...)
	}
	return out
}

// IsSubclass 判断 sub 是否可赋值给 super (类名或数组描述符)
// 没有类表时只接受相同类型与 java/lang/Object
func (t *ClassTable) IsSubclass(sub, super string) bool {
	if sub == super || super == ObjectClass {
		return true
	}
	if value.IsArray(sub) || value.IsArray(super) {
		return false
	}
	if t == nil {
		return false
	}
	for cur := t.super(sub); cur != ""; cur = t.super(cur) {
		if cur == super {
			return true
		}
	}
	return false
}

// ConcreteSubclasses 按注册顺序返回可实例化的子类 (包括自身)
// 未知的类按可实例化处理; java/lang/Object 的子类为表中所有可实例化的类
func (t *ClassTable) ConcreteSubclasses(name string) []string {
	if value.IsArray(name) || t == nil {
		return []string{name}
	}
	_, known := t.Class(name)
	if !known && name != ObjectClass {
		return []string{name}
	}
	var out []string
	if !known {
		out = append(out, ObjectClass)
	}
	for _, n := range t.order {
		if t.classes[n].Abstract {
			continue
		}
		if t.IsSubclass(n, name) {
			out = append(out, n)
		}
	}
	return out
}
