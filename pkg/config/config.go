// Package config 加载 pathgen 的 YAML / JSON 配置
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v2"

	"pathgen/pkg/oracle"
	"pathgen/pkg/solver"
)

// Config 完整配置
type Config struct {
	Solver    solver.Config   `yaml:"solver" json:"solver"`
	Generator GeneratorConfig `yaml:"generator" json:"generator"`
	Rules     string          `yaml:"rules" json:"rules"` // 触发规则文件
	Verbose   bool            `yaml:"verbose" json:"verbose"`
}

// GeneratorConfig 测试生成配置
type GeneratorConfig struct {
	ClassName    string   `yaml:"class_name" json:"class_name"`         // 生成的测试类名前缀
	PreInitRoots []string `yaml:"pre_init_roots" json:"pre_init_roots"` // 跳过的隐式初始化根
	Workers      int      `yaml:"workers" json:"workers"`               // 并行生成的 worker 数
	Output       string   `yaml:"output" json:"output"`                 // 输出文件, 为空时写 stdout
}

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		Solver: *solver.DefaultConfig(),
		Generator: GeneratorConfig{
			ClassName:    "Generated",
			PreInitRoots: []string{oracle.DefaultPreInitRoot},
			Workers:      4,
		},
	}
}

// MergeWithDefaults 补齐未设置的字段
func (c *Config) MergeWithDefaults() {
	defaults := DefaultConfig()
	c.Solver.MergeWithDefaults()
	if c.Generator.ClassName == "" {
		c.Generator.ClassName = defaults.Generator.ClassName
	}
	if c.Generator.PreInitRoots == nil {
		c.Generator.PreInitRoots = defaults.Generator.PreInitRoots
	}
	if c.Generator.Workers <= 0 {
		c.Generator.Workers = defaults.Generator.Workers
	}
}

// Validate 检查取值
func (c *Config) Validate() error {
	switch c.Solver.Strategy {
	case "local", "z3", "hybrid":
	default:
		return fmt.Errorf("invalid solver strategy %q", c.Solver.Strategy)
	}
	if c.Solver.CacheSize < 0 {
		return fmt.Errorf("invalid cache size %d", c.Solver.CacheSize)
	}
	for _, r := range c.Generator.PreInitRoots {
		if r == "" {
			return fmt.Errorf("empty pre-init root")
		}
	}
	return nil
}

// OracleOptions 生成器选项
func (c *Config) OracleOptions() *oracle.Options {
	roots := make([]string, len(c.Generator.PreInitRoots))
	copy(roots, c.Generator.PreInitRoots)
	return &oracle.Options{PreInitRoots: roots, Verbose: c.Verbose}
}

// Load 从磁盘加载配置, .json 按 JSON 解析, 其余按 YAML
// 未出现的字段取默认值
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if strings.EqualFold(filepath.Ext(path), ".json") {
		err = json.Unmarshal(data, &cfg)
	} else {
		err = yaml.Unmarshal(data, &cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal config %s: %w", path, err)
	}

	cfg.MergeWithDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	// 规则文件相对配置文件所在目录
	if cfg.Rules != "" && !filepath.IsAbs(cfg.Rules) {
		cfg.Rules = filepath.Join(filepath.Dir(path), cfg.Rules)
	}
	return &cfg, nil
}
