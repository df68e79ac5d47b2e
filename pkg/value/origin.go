package value

import (
	"fmt"
	"strings"
)

// RootPrefix 所有 origin 字符串的根前缀
const RootPrefix = "{ROOT}:"

// AccessorKind 访问步骤类型
type AccessorKind int

const (
	FieldAccess AccessorKind = iota // .name
	IndexAccess                     // [index]
	LengthAccess                    // .length
)

// Accessor 访问链中的一步
type Accessor struct {
	Kind AccessorKind
	Name string // 字段名或下标表达式文本
}

// Field 构造字段访问
func Field(name string) Accessor { return Accessor{Kind: FieldAccess, Name: name} }

// Index 构造数组下标访问
func Index(index string) Accessor { return Accessor{Kind: IndexAccess, Name: index} }

// Length 构造数组长度访问
func Length() Accessor { return Accessor{Kind: LengthAccess, Name: "length"} }

func (a Accessor) String() string {
	switch a.Kind {
	case IndexAccess:
		return "[" + a.Name + "]"
	case LengthAccess:
		return ".length"
	default:
		return "." + a.Name
	}
}

// Origin 描述符号值从根 (参数、this 等) 出发的到达路径
// 既是可读名称, 也是别名/去重的 key
type Origin struct {
	Root  string
	Steps []Accessor
}

// RootOrigin 构造根 origin
func RootOrigin(root string) Origin {
	return Origin{Root: root}
}

// Then 返回追加一步后的新 origin, 原 origin 不变
func (o Origin) Then(a Accessor) Origin {
	steps := make([]Accessor, len(o.Steps), len(o.Steps)+1)
	copy(steps, o.Steps)
	return Origin{Root: o.Root, Steps: append(steps, a)}
}

// Parent 返回去掉最后一步的 origin
func (o Origin) Parent() Origin {
	if len(o.Steps) == 0 {
		return o
	}
	return Origin{Root: o.Root, Steps: o.Steps[:len(o.Steps)-1]}
}

// Last 返回最后一步
func (o Origin) Last() (Accessor, bool) {
	if len(o.Steps) == 0 {
		return Accessor{}, false
	}
	return o.Steps[len(o.Steps)-1], true
}

// IsRoot 是否为根
func (o Origin) IsRoot() bool { return len(o.Steps) == 0 }

// IsZero 是否为空 origin (例如具体分配的对象)
func (o Origin) IsZero() bool { return o.Root == "" }

// HasMemberAccessor 访问链中是否有字段访问
func (o Origin) HasMemberAccessor() bool {
	for _, s := range o.Steps {
		if s.Kind == FieldAccess {
			return true
		}
	}
	return false
}

// HasArrayAccessor 访问链中是否有下标访问
func (o Origin) HasArrayAccessor() bool {
	for _, s := range o.Steps {
		if s.Kind == IndexAccess {
			return true
		}
	}
	return false
}

// Path 返回不带根前缀的路径, 例如 list.head.next
func (o Origin) Path() string {
	var b strings.Builder
	b.WriteString(o.Root)
	for _, s := range o.Steps {
		b.WriteString(s.String())
	}
	return b.String()
}

// String 返回带根前缀的 origin 字符串
func (o Origin) String() string {
	if o.IsZero() {
		return ""
	}
	return RootPrefix + o.Path()
}

// Equal 按字符串比较
func (o Origin) Equal(other Origin) bool {
	return o.String() == other.String()
}

// ParseOrigin 解析 origin 路径, 接受带或不带 {ROOT}: 前缀的写法
func ParseOrigin(s string) (Origin, error) {
	s = strings.TrimPrefix(s, RootPrefix)
	if s == "" {
		return Origin{}, fmt.Errorf("empty origin")
	}
	end := strings.IndexAny(s, ".[")
	if end < 0 {
		return RootOrigin(s), nil
	}
	if end == 0 {
		return Origin{}, fmt.Errorf("origin %q has no root", s)
	}
	o := RootOrigin(s[:end])
	rest := s[end:]
	for len(rest) > 0 {
		switch rest[0] {
		case '.':
			rest = rest[1:]
			n := strings.IndexAny(rest, ".[")
			if n < 0 {
				n = len(rest)
			}
			name := rest[:n]
			if name == "" {
				return Origin{}, fmt.Errorf("origin %q has an empty field name", s)
			}
			if name == "length" {
				o = o.Then(Length())
			} else {
				o = o.Then(Field(name))
			}
			rest = rest[n:]
		case '[':
			n := strings.IndexByte(rest, ']')
			if n < 0 {
				return Origin{}, fmt.Errorf("origin %q has an unterminated index", s)
			}
			o = o.Then(Index(rest[1:n]))
			rest = rest[n+1:]
		default:
			return Origin{}, fmt.Errorf("origin %q: unexpected %q", s, rest[0])
		}
	}
	return o, nil
}

// MustParseOrigin 解析失败时 panic, 供测试与常量使用
func MustParseOrigin(s string) Origin {
	o, err := ParseOrigin(s)
	if err != nil {
		panic(err)
	}
	return o
}
