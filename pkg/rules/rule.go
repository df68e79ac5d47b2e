// Package rules 触发规则: 引用被解析 (展开/别名/null) 时调用指定的符号化方法
package rules

import (
	"fmt"
	"strings"

	"pathgen/pkg/value"
)

// Kind 规则类型, 零值无效
type Kind int

const (
	Expands Kind = iota + 1 // 展开为指定类的新对象
	Aliases                 // 别名到已有对象
	Null                    // 解析为 null
)

// kindNames 规则文件中的写法
// YAML 把 null 读作空值, 因此 null 规则写作 nulls
var kindNames = map[Kind]string{
	Expands: "expands",
	Aliases: "aliases",
	Null:    "nulls",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// ParseKind 解析规则类型名, 接受 "null" 作为 nulls 的别名
func ParseKind(s string) (Kind, error) {
	if strings.EqualFold(s, "null") {
		return Null, nil
	}
	for k, name := range kindNames {
		if strings.EqualFold(s, name) {
			return k, nil
		}
	}
	return 0, fmt.Errorf("unknown rule kind %q", s)
}

// UnmarshalYAML 实现 yaml.Unmarshaler
func (k *Kind) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	parsed, err := ParseKind(s)
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// MarshalYAML 实现 yaml.Marshaler
func (k Kind) MarshalYAML() (interface{}, error) {
	return k.String(), nil
}

// Rule 一条触发规则
type Rule struct {
	Kind      Kind            `yaml:"kind" json:"kind"`
	Origin    string          `yaml:"origin" json:"origin"`
	Class     string          `yaml:"class,omitempty" json:"class,omitempty"` // 仅 expands
	Method    value.Signature `yaml:"method" json:"method"`
	Parameter string          `yaml:"parameter,omitempty" json:"parameter,omitempty"`

	id     int
	origin value.Origin
}

// ID 规则在表中的注册序号
func (r *Rule) ID() int { return r.id }

// Satisfies 展开规则是否接受该类
func (r *Rule) Satisfies(className string) bool {
	return r.Class == className
}

func (r *Rule) String() string {
	var b strings.Builder
	b.WriteString(r.origin.String())
	switch r.Kind {
	case Expands:
		b.WriteString(" expands to instanceof " + r.Class)
	case Aliases:
		b.WriteString(" aliases target")
	case Null:
		b.WriteString(" null")
	}
	b.WriteString(" triggers " + r.Method.String())
	if r.Parameter != "" {
		b.WriteString(":" + r.Parameter)
	}
	return b.String()
}
