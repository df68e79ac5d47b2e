package rules

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v2"

	"pathgen/pkg/value"
)

// Table 不可变的规则表, 按 origin 索引并保持注册顺序
// 构造后只读, 可在路径之间共享
type Table struct {
	rules    []*Rule
	byOrigin map[string][]*Rule
}

// NewTable 校验并注册规则
func NewTable(rules ...Rule) (*Table, error) {
	t := &Table{byOrigin: make(map[string][]*Rule)}
	for i := range rules {
		r := rules[i]
		o, err := value.ParseOrigin(r.Origin)
		if err != nil {
			return nil, fmt.Errorf("rule %d: %w", i, err)
		}
		if _, ok := kindNames[r.Kind]; !ok {
			return nil, fmt.Errorf("rule %d (%s): missing or invalid kind %s", i, o, r.Kind)
		}
		if r.Kind == Expands && r.Class == "" {
			return nil, fmt.Errorf("rule %d (%s): expansion rule without a class", i, o)
		}
		if r.Method.Name == "" || r.Method.Class == "" {
			return nil, fmt.Errorf("rule %d (%s): missing trigger method", i, o)
		}
		if _, err := value.SplitParametersDescriptors(r.Method.Descriptor); err != nil {
			return nil, fmt.Errorf("rule %d (%s): %w", i, o, err)
		}
		r.id = i
		r.origin = o
		r.Origin = o.String()
		t.rules = append(t.rules, &r)
		t.byOrigin[r.Origin] = append(t.byOrigin[r.Origin], &r)
	}
	return t, nil
}

// Len 规则数量
func (t *Table) Len() int { return len(t.rules) }

// Rules 按注册顺序返回规则
func (t *Table) Rules() []*Rule {
	out := make([]*Rule, len(t.rules))
	copy(out, t.rules)
	return out
}

// ForOrigin 返回 origin 上注册的规则
func (t *Table) ForOrigin(origin value.Origin) []*Rule {
	return t.byOrigin[origin.String()]
}

// File 规则文件格式
type File struct {
	Rules []Rule `yaml:"rules"`
}

// Parse 解析 YAML 规则
func Parse(data []byte) (*Table, error) {
	var f File
	if err := yaml.UnmarshalStrict(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse rules: %w", err)
	}
	return NewTable(f.Rules...)
}

// LoadFile 从 YAML 文件加载规则
func LoadFile(path string) (*Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read rules file: %w", err)
	}
	t, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return t, nil
}
