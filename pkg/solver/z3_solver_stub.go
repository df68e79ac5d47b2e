//go:build !z3
// +build !z3

package solver

import (
	"context"
	"errors"

	"pathgen/pkg/value"
)

// Z3Solver Z3 SMT 求解器封装 (stub 版本, Z3 未启用)
type Z3Solver struct{}

// NewZ3Solver 创建 Z3 求解器 (stub, 返回错误)
func NewZ3Solver(config *Config) (*Z3Solver, error) {
	return nil, errors.New("Z3 solver not available - rebuild with '-tags z3' to enable")
}

// Close 关闭 Z3 求解器 (stub)
func (zs *Z3Solver) Close() {}

// Stats 统计 (stub)
func (zs *Z3Solver) Stats() Stats { return Stats{} }

// Solve 实现 Solver (stub)
func (zs *Z3Solver) Solve(ctx context.Context, conds []value.Primitive) (value.Model, error) {
	return nil, errors.New("Z3 solver not available")
}
