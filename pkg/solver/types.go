// Package solver 为路径条件求模型: 本地有界搜索、可选的 Z3 后端与 LRU 缓存
package solver

import (
	"context"
	"errors"
	"time"

	"pathgen/pkg/pathcond"
	"pathgen/pkg/value"
)

var (
	// ErrUnsat 条件不可满足
	ErrUnsat = errors.New("unsatisfiable")
	// ErrUnknown 求解器无法给出结论 (预算耗尽、超时或不支持的运算)
	ErrUnknown = errors.New("solver gave no answer")
)

// Solver 为一组布尔条件求满足赋值
type Solver interface {
	Solve(ctx context.Context, conds []value.Primitive) (value.Model, error)
}

// ModelFor 为路径条件中的 Assume 子句求模型
func ModelFor(ctx context.Context, s Solver, pc *pathcond.PathCondition) (value.Model, error) {
	return s.Solve(ctx, pc.Conditions())
}

// ==================== 配置 ====================

// Config 求解器配置
type Config struct {
	Strategy      string `yaml:"strategy" json:"strategy"`             // "local", "z3", "hybrid"
	Timeout       string `yaml:"timeout" json:"timeout"`               // 超时时间字符串 "3s"
	UseCache      bool   `yaml:"use_cache" json:"use_cache"`           // 是否缓存模型
	CacheSize     int    `yaml:"cache_size" json:"cache_size"`         // 缓存条目数
	MaxCandidates int    `yaml:"max_candidates" json:"max_candidates"` // 本地搜索每个符号的候选值上限
	MaxSteps      int    `yaml:"max_steps" json:"max_steps"`           // 本地搜索的赋值步数上限
}

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		Strategy:      "local",
		Timeout:       "3s",
		UseCache:      true,
		CacheSize:     1000,
		MaxCandidates: 16,
		MaxSteps:      200000,
	}
}

// MergeWithDefaults 补齐未设置的字段
func (c *Config) MergeWithDefaults() {
	defaults := DefaultConfig()
	if c.Strategy == "" {
		c.Strategy = defaults.Strategy
	}
	if c.Timeout == "" {
		c.Timeout = defaults.Timeout
	}
	if c.CacheSize == 0 {
		c.CacheSize = defaults.CacheSize
	}
	if c.MaxCandidates == 0 {
		c.MaxCandidates = defaults.MaxCandidates
	}
	if c.MaxSteps == 0 {
		c.MaxSteps = defaults.MaxSteps
	}
}

// TimeoutDuration 解析超时时间, 无效时为 3 秒
func (c *Config) TimeoutDuration() time.Duration {
	d, err := time.ParseDuration(c.Timeout)
	if err != nil || d <= 0 {
		return 3 * time.Second
	}
	return d
}

// Stats 求解统计
type Stats struct {
	TotalSolves int
	Sat         int
	Unsat       int
	Unknown     int
	TotalTime   time.Duration
}
