package solver

import (
	"context"
	"errors"
	"fmt"
	"log"

	"pathgen/pkg/value"
)

// HybridSolver 先用 Z3, 无结论时回退到本地搜索
type HybridSolver struct {
	z3    Solver
	local Solver
}

// Solve 实现 Solver
func (hs *HybridSolver) Solve(ctx context.Context, conds []value.Primitive) (value.Model, error) {
	if hs.z3 != nil {
		m, err := hs.z3.Solve(ctx, conds)
		if err == nil || errors.Is(err, ErrUnsat) {
			return m, err
		}
		log.Printf("[Solver] Z3 failed: %v, falling back to local solver", err)
	}
	return hs.local.Solve(ctx, conds)
}

// New 按配置组装求解器
// strategy=z3/hybrid 时 Z3 不可用会退化为本地求解 (与 hybrid 相同的回退)
func New(config *Config) (Solver, func(), error) {
	if config == nil {
		config = DefaultConfig()
	}
	config.MergeWithDefaults()

	var s Solver
	closer := func() {}
	local := NewLocalSolver(config)

	switch config.Strategy {
	case "local":
		s = local
	case "z3", "hybrid":
		z, err := NewZ3Solver(config)
		if err != nil {
			log.Printf("[Solver] Warning: Failed to initialize Z3: %v, falling back to local only", err)
			s = local
			break
		}
		log.Printf("[Solver] Z3 solver initialized (strategy=%s)", config.Strategy)
		closer = z.Close
		if config.Strategy == "z3" {
			s = z
		} else {
			s = &HybridSolver{z3: z, local: local}
		}
	default:
		return nil, nil, fmt.Errorf("unknown solver strategy %q", config.Strategy)
	}

	if config.UseCache {
		cs, err := NewCachingSolver(s, config.CacheSize)
		if err != nil {
			closer()
			return nil, nil, err
		}
		s = cs
	}
	return s, closer, nil
}

// SolverFunc 函数适配为 Solver
type SolverFunc func(ctx context.Context, conds []value.Primitive) (value.Model, error)

// Solve 实现 Solver
func (f SolverFunc) Solve(ctx context.Context, conds []value.Primitive) (value.Model, error) {
	return f(ctx, conds)
}
