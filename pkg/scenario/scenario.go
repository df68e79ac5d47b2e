// Package scenario 以 YAML 脚本描述被测方法上的路径, 驱动惰性初始化、触发规则、求解与测试生成
package scenario

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v2"

	"pathgen/pkg/lazyinit"
	"pathgen/pkg/rules"
	"pathgen/pkg/value"
)

// 解析方式
const (
	AsNull   = "null"
	AsAlias  = "alias"
	AsExpand = "expand"
	AsAny    = "any" // 按默认候选集合分支
	Void     = "void"

	targetVar = "$target"
	paramVar  = "$param"
)

// File 一个场景文件: 被测方法、类表、规则与若干路径脚本
type File struct {
	Name       string            `yaml:"name"`
	Method     value.Signature   `yaml:"method"`
	Static     bool              `yaml:"static"`
	Parameters []string          `yaml:"parameters"`
	Classes    []lazyinit.Class  `yaml:"classes"`
	Rules      []rules.Rule      `yaml:"rules"`
	Triggers   map[string][]Step `yaml:"triggers"` // 触发方法名 -> 方法体
	Paths      []PathScript      `yaml:"paths"`
}

// PathScript 一条路径 (使用 any 分支时展开为多条)
type PathScript struct {
	Name  string            `yaml:"name"`
	Steps []Step            `yaml:"steps"`
	Model map[string]string `yaml:"model"` // origin -> 取值, 为空时调用求解器
}

// Step 路径上的一步, 每步只设置一种动作
type Step struct {
	Resolve string   `yaml:"resolve,omitempty"` // 引用的 origin
	As      string   `yaml:"as,omitempty"`      // null / alias / expand / any
	Class   string   `yaml:"class,omitempty"`   // expand 的目标类
	Target  string   `yaml:"target,omitempty"`  // alias 的目标 origin
	NotNull []string `yaml:"not_null,omitempty"`

	Assume string `yaml:"assume,omitempty"`
	Return string `yaml:"return,omitempty"` // 表达式, 或 void
	Throw  string `yaml:"throw,omitempty"`
}

// Kind 动作名称, 用于日志与校验
func (s Step) Kind() string {
	var kinds []string
	if s.Resolve != "" {
		kinds = append(kinds, "resolve")
	}
	if s.Assume != "" {
		kinds = append(kinds, "assume")
	}
	if s.Return != "" {
		kinds = append(kinds, "return")
	}
	if s.Throw != "" {
		kinds = append(kinds, "throw")
	}
	return strings.Join(kinds, "+")
}

// Validate 检查步骤与方法签名
func (f *File) Validate() error {
	if f.Method.Class == "" || f.Method.Name == "" {
		return fmt.Errorf("scenario %q: method class and name are required", f.Name)
	}
	if _, err := value.SplitParametersDescriptors(f.Method.Descriptor); err != nil {
		return fmt.Errorf("scenario %q: %w", f.Name, err)
	}
	check := func(where string, steps []Step) error {
		for i, s := range steps {
			switch s.Kind() {
			case "resolve":
				switch s.As {
				case AsNull, AsExpand, AsAny:
				case AsAlias:
					if s.Target == "" {
						return fmt.Errorf("%s step %d: alias needs a target", where, i)
					}
				default:
					return fmt.Errorf("%s step %d: unknown resolution %q", where, i, s.As)
				}
			case "assume", "return", "throw":
			default:
				return fmt.Errorf("%s step %d: exactly one of resolve/assume/return/throw expected, got %q", where, i, s.Kind())
			}
		}
		return nil
	}
	for i, p := range f.Paths {
		if err := check(fmt.Sprintf("path %d (%s)", i, p.Name), p.Steps); err != nil {
			return err
		}
	}
	for name, steps := range f.Triggers {
		if err := check("trigger "+name, steps); err != nil {
			return err
		}
	}
	return nil
}

// Parse 解析场景 YAML
func Parse(data []byte) (*File, error) {
	var f File
	if err := yaml.UnmarshalStrict(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse scenario: %w", err)
	}
	if err := f.Validate(); err != nil {
		return nil, err
	}
	return &f, nil
}

// Load 从文件加载场景
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario: %w", err)
	}
	f, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if f.Name == "" {
		f.Name = path
	}
	return f, nil
}
