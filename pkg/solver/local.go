package solver

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"pathgen/pkg/value"
)

// LocalSolver 有界回溯搜索
// 每个符号的候选值取自条件中的常量及其相邻值 (边界种子), 外加 0 / 1 / -1
// 搜索空间耗尽只说明候选集中没有解, 因此返回 ErrUnknown 而非 ErrUnsat
type LocalSolver struct {
	config *Config

	mu    sync.Mutex
	stats Stats
}

// NewLocalSolver 创建本地求解器
func NewLocalSolver(config *Config) *LocalSolver {
	if config == nil {
		config = DefaultConfig()
	}
	config.MergeWithDefaults()
	return &LocalSolver{config: config}
}

// Stats 统计快照
func (ls *LocalSolver) Stats() Stats {
	ls.mu.Lock()
	defer ls.mu.Unlock()
	return ls.stats
}

// Solve 实现 Solver
func (ls *LocalSolver) Solve(ctx context.Context, conds []value.Primitive) (value.Model, error) {
	start := time.Now()
	m, err := ls.solve(ctx, conds)

	ls.mu.Lock()
	ls.stats.TotalSolves++
	ls.stats.TotalTime += time.Since(start)
	switch {
	case err == nil:
		ls.stats.Sat++
	case errors.Is(err, ErrUnsat):
		ls.stats.Unsat++
	default:
		ls.stats.Unknown++
	}
	ls.mu.Unlock()
	return m, err
}

type search struct {
	ctx        context.Context
	conds      []value.Primitive
	symbols    []*value.PrimitiveSymbolicAtomic
	candidates [][]*value.Simplex
	// checkAt[i] 在第 i 个符号赋值后可以完全求值的条件
	checkAt  [][]int
	model    value.Model
	steps    int
	maxSteps int
}

func (ls *LocalSolver) solve(ctx context.Context, conds []value.Primitive) (value.Model, error) {
	ctx, cancel := context.WithTimeout(ctx, ls.config.TimeoutDuration())
	defer cancel()

	s := &search{ctx: ctx, conds: conds, model: value.Model{}, maxSteps: ls.config.MaxSteps}
	index := map[string]int{}
	last := make([]int, len(conds))
	var constants []*value.Simplex
	for ci, c := range conds {
		if c == nil || c.Type() != value.TypeBoolean {
			return nil, fmt.Errorf("condition %d is not boolean: %v", ci, c)
		}
		syms, err := value.SymbolsIn(c)
		if err != nil {
			return nil, err
		}
		last[ci] = -1
		for _, x := range syms {
			i, ok := index[x.ID()]
			if !ok {
				i = len(s.symbols)
				index[x.ID()] = i
				s.symbols = append(s.symbols, x)
			}
			if i > last[ci] {
				last[ci] = i
			}
		}
		cs, err := constantsIn(c)
		if err != nil {
			return nil, err
		}
		constants = append(constants, cs...)
	}

	// 不含符号的条件直接判定
	s.checkAt = make([][]int, len(s.symbols))
	for ci, l := range last {
		if l < 0 {
			ok, err := s.holds(ci)
			if err != nil {
				return nil, err
			}
			if !ok {
				return nil, fmt.Errorf("%w: %s", ErrUnsat, conds[ci])
			}
			continue
		}
		s.checkAt[l] = append(s.checkAt[l], ci)
	}

	s.candidates = make([][]*value.Simplex, len(s.symbols))
	for i, x := range s.symbols {
		s.candidates[i] = seedsFor(x.Type(), constants, ls.config.MaxCandidates)
	}

	found, err := s.assign(0)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, fmt.Errorf("%w: no model among seed values for %d symbols", ErrUnknown, len(s.symbols))
	}
	return s.model, nil
}

func (s *search) assign(i int) (bool, error) {
	if i == len(s.symbols) {
		return true, nil
	}
	x := s.symbols[i]
	for _, v := range s.candidates[i] {
		s.steps++
		if s.steps > s.maxSteps {
			return false, fmt.Errorf("%w: step budget %d exhausted", ErrUnknown, s.maxSteps)
		}
		if s.steps%1024 == 0 {
			if err := s.ctx.Err(); err != nil {
				return false, fmt.Errorf("%w: %v", ErrUnknown, err)
			}
		}
		if err := s.model.Set(x, v); err != nil {
			return false, err
		}
		ok := true
		for _, ci := range s.checkAt[i] {
			holds, err := s.holds(ci)
			if err != nil {
				return false, err
			}
			if !holds {
				ok = false
				break
			}
		}
		if ok {
			found, err := s.assign(i + 1)
			if found || err != nil {
				return found, err
			}
		}
	}
	delete(s.model, x.ID())
	return false, nil
}

// holds 在当前赋值下求值, 整数除零视为不成立
func (s *search) holds(ci int) (bool, error) {
	v, err := s.model.Eval(s.conds[ci])
	if errors.Is(err, value.ErrDivisionByZero) {
		return false, nil
	}
	if errors.Is(err, value.ErrNotEvaluable) {
		return false, fmt.Errorf("%w: %v", ErrUnknown, err)
	}
	if err != nil {
		return false, err
	}
	return v.Bool(), nil
}

// ==================== 候选值 ====================

type constCollector struct {
	out []*value.Simplex
}

func (c *constCollector) VisitSimplex(x *value.Simplex) error {
	c.out = append(c.out, x)
	return nil
}

func (c *constCollector) VisitPrimitiveSymbolicAtomic(*value.PrimitiveSymbolicAtomic) error {
	return nil
}

func (c *constCollector) VisitExpression(x *value.Expression) error {
	if !x.IsUnary() {
		if err := x.First.Accept(c); err != nil {
			return err
		}
	}
	return x.Second.Accept(c)
}

func (c *constCollector) VisitWideningConversion(x *value.WideningConversion) error {
	return x.Arg.Accept(c)
}

func (c *constCollector) VisitNarrowingConversion(x *value.NarrowingConversion) error {
	return x.Arg.Accept(c)
}

func (c *constCollector) VisitPrimitiveSymbolicApply(x *value.PrimitiveSymbolicApply) error {
	for _, a := range x.Args {
		if p, ok := a.(value.Primitive); ok {
			if err := p.Accept(c); err != nil {
				return err
			}
		}
	}
	return nil
}

func constantsIn(p value.Primitive) ([]*value.Simplex, error) {
	c := &constCollector{}
	if err := p.Accept(c); err != nil {
		return nil, err
	}
	return c.out, nil
}

// seedsFor 生成某类型符号的候选值: 0 1 -1, 然后是常量及其 ±1, 按距 0 的远近排序
func seedsFor(typ string, constants []*value.Simplex, limit int) []*value.Simplex {
	if typ == value.TypeBoolean {
		return []*value.Simplex{value.BoolOf(false), value.BoolOf(true)}
	}
	if value.IsPrimitiveFloating(typ) {
		seen := map[float64]bool{}
		var fs []float64
		add := func(f float64) {
			if !seen[f] && !math.IsNaN(f) {
				seen[f] = true
				fs = append(fs, f)
			}
		}
		for _, f := range []float64{0, 1, -1} {
			add(f)
		}
		for _, c := range constants {
			f := c.Float64()
			add(f)
			add(f + 1)
			add(f - 1)
			add(f + 0.5)
			add(f - 0.5)
		}
		sort.SliceStable(fs, func(i, j int) bool { return math.Abs(fs[i]) < math.Abs(fs[j]) })
		var out []*value.Simplex
		for _, f := range fs {
			if v, err := value.NewFloating(typ, f); err == nil {
				out = append(out, v)
			}
			if len(out) == limit {
				break
			}
		}
		return out
	}

	seen := map[int64]bool{}
	var is []int64
	add := func(i int64) {
		if seen[i] {
			return
		}
		// 超出类型范围的值会被截断成别的数, 直接丢弃
		if v, err := value.NewSimplex(typ, i); err != nil || v.Int64() != i {
			return
		}
		seen[i] = true
		is = append(is, i)
	}
	for _, i := range []int64{0, 1, -1} {
		add(i)
	}
	for _, c := range constants {
		i := c.Int64()
		add(i)
		if i < math.MaxInt64 {
			add(i + 1)
		}
		if i > math.MinInt64 {
			add(i - 1)
		}
	}
	sort.SliceStable(is, func(a, b int) bool { return abs(is[a]) < abs(is[b]) })
	if len(is) > limit {
		is = is[:limit]
	}
	out := make([]*value.Simplex, 0, len(is))
	for _, i := range is {
		v, _ := value.NewSimplex(typ, i)
		out = append(out, v)
	}
	return out
}

func abs(i int64) uint64 {
	if i < 0 {
		return uint64(-(i + 1)) + 1
	}
	return uint64(i)
}
