//go:build z3
// +build z3

package solver

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"sync"
	"time"

	z3 "github.com/mitchellh/go-z3"

	"pathgen/pkg/value"
)

// errUntranslatable Z3 后端不支持的运算 (浮点、除法、位运算、移位)
var errUntranslatable = errors.New("not expressible in the z3 integer theory")

// Z3Solver Z3 SMT 求解器封装
// 整数按数学整数建模 (不模拟溢出), 得到的模型再按 Java 语义验证
type Z3Solver struct {
	config  *Config
	z3cfg   *z3.Config
	context *z3.Context

	// Z3 context 非线程安全
	mu    sync.Mutex
	stats Stats
}

// NewZ3Solver 创建 Z3 求解器
func NewZ3Solver(config *Config) (*Z3Solver, error) {
	if config == nil {
		config = DefaultConfig()
	}
	config.MergeWithDefaults()

	z3cfg := z3.NewConfig()
	z3cfg.SetParamValue("timeout", strconv.FormatInt(config.TimeoutDuration().Milliseconds(), 10))
	ctx := z3.NewContext(z3cfg)

	return &Z3Solver{config: config, z3cfg: z3cfg, context: ctx}, nil
}

// Close 释放 Z3 资源
func (zs *Z3Solver) Close() {
	zs.mu.Lock()
	defer zs.mu.Unlock()
	if zs.context != nil {
		zs.context.Close()
		zs.context = nil
	}
	if zs.z3cfg != nil {
		zs.z3cfg.Close()
		zs.z3cfg = nil
	}
}

// Stats 统计快照
func (zs *Z3Solver) Stats() Stats {
	zs.mu.Lock()
	defer zs.mu.Unlock()
	return zs.stats
}

// Solve 实现 Solver
func (zs *Z3Solver) Solve(ctx context.Context, conds []value.Primitive) (value.Model, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnknown, err)
	}
	zs.mu.Lock()
	defer zs.mu.Unlock()
	if zs.context == nil {
		return nil, errors.New("z3 solver is closed")
	}

	start := time.Now()
	zs.stats.TotalSolves++
	defer func() { zs.stats.TotalTime += time.Since(start) }()

	tr := &z3Translator{ctx: zs.context, vars: map[string]*z3.AST{}}
	s := zs.context.NewSolver()
	defer s.Close()

	for _, c := range conds {
		ast, err := tr.translate(c)
		if err != nil {
			zs.stats.Unknown++
			return nil, fmt.Errorf("%w: %v", ErrUnknown, err)
		}
		s.Assert(ast)
	}

	switch s.Check() {
	case z3.False:
		zs.stats.Unsat++
		return nil, ErrUnsat
	case z3.Undef:
		zs.stats.Unknown++
		return nil, fmt.Errorf("%w: z3 returned undefined (possibly timeout)", ErrUnknown)
	}

	zm := s.Model()
	defer zm.Close()

	model := value.Model{}
	for _, x := range tr.symbols {
		v := zm.Eval(tr.vars[x.ID()])
		var sv *value.Simplex
		if x.Type() == value.TypeBoolean {
			sv = value.BoolOf(v.String() == "true")
		} else {
			sv = value.LongOf(int64(v.Int()))
		}
		if err := model.Set(x, sv); err != nil {
			return nil, err
		}
	}

	// 数学整数上的解不一定满足 Java 的溢出语义
	for _, c := range conds {
		v, err := model.Eval(c)
		if err != nil || !v.Bool() {
			zs.stats.Unknown++
			log.Printf("[Z3] model %s does not satisfy %s under Java semantics", model, c)
			return nil, fmt.Errorf("%w: z3 model fails validation", ErrUnknown)
		}
	}
	zs.stats.Sat++
	return model, nil
}

// ==================== 翻译 ====================

type z3Translator struct {
	ctx     *z3.Context
	vars    map[string]*z3.AST
	symbols []*value.PrimitiveSymbolicAtomic
	stack   []*z3.AST
}

func (t *z3Translator) translate(p value.Primitive) (*z3.AST, error) {
	t.stack = t.stack[:0]
	if err := p.Accept(t); err != nil {
		return nil, err
	}
	if len(t.stack) != 1 {
		return nil, fmt.Errorf("translation of %s left %d terms", p, len(t.stack))
	}
	return t.stack[0], nil
}

func (t *z3Translator) push(a *z3.AST) { t.stack = append(t.stack, a) }

func (t *z3Translator) pop() *z3.AST {
	a := t.stack[len(t.stack)-1]
	t.stack = t.stack[:len(t.stack)-1]
	return a
}

func (t *z3Translator) VisitSimplex(x *value.Simplex) error {
	switch {
	case x.Type() == value.TypeBoolean:
		if x.Bool() {
			t.push(t.ctx.True())
		} else {
			t.push(t.ctx.False())
		}
	case x.IsFloating():
		return fmt.Errorf("%w: floating constant %s", errUntranslatable, x)
	default:
		t.push(t.ctx.Int(int(x.Int64()), t.ctx.IntSort()))
	}
	return nil
}

func (t *z3Translator) VisitPrimitiveSymbolicAtomic(x *value.PrimitiveSymbolicAtomic) error {
	if v, ok := t.vars[x.ID()]; ok {
		t.push(v)
		return nil
	}
	var v *z3.AST
	switch {
	case x.Type() == value.TypeBoolean:
		v = t.ctx.Const(t.ctx.Symbol(x.ID()), t.ctx.BoolSort())
	case value.IsPrimitiveFloating(x.Type()):
		return fmt.Errorf("%w: floating symbol %s", errUntranslatable, x)
	default:
		v = t.ctx.Const(t.ctx.Symbol(x.ID()), t.ctx.IntSort())
	}
	t.vars[x.ID()] = v
	t.symbols = append(t.symbols, x)
	t.push(v)
	return nil
}

func (t *z3Translator) VisitExpression(x *value.Expression) error {
	if x.IsUnary() {
		if err := x.Second.Accept(t); err != nil {
			return err
		}
		a := t.pop()
		if x.Op == value.NOT {
			t.push(a.Not())
		} else {
			t.push(t.ctx.Int(0, t.ctx.IntSort()).Sub(a))
		}
		return nil
	}
	if err := x.First.Accept(t); err != nil {
		return err
	}
	if err := x.Second.Accept(t); err != nil {
		return err
	}
	b, a := t.pop(), t.pop()
	boolean := x.First.Type() == value.TypeBoolean
	switch x.Op {
	case value.ADD:
		t.push(a.Add(b))
	case value.SUB:
		t.push(a.Sub(b))
	case value.MUL:
		t.push(a.Mul(b))
	case value.DIV, value.REM:
		// Java 的截断除法与 Z3 的欧几里得除法不一致
		return fmt.Errorf("%w: %s", errUntranslatable, x.Op)
	case value.EQ:
		t.push(a.Eq(b))
	case value.NE:
		t.push(a.Eq(b).Not())
	case value.LT:
		t.push(a.Lt(b))
	case value.LE:
		t.push(a.Le(b))
	case value.GT:
		t.push(a.Gt(b))
	case value.GE:
		t.push(a.Ge(b))
	case value.AND, value.OR, value.XOR:
		if !boolean {
			return fmt.Errorf("%w: bitwise %s", errUntranslatable, x.Op)
		}
		switch x.Op {
		case value.AND:
			t.push(a.And(b))
		case value.OR:
			t.push(a.Or(b))
		default:
			t.push(a.Xor(b))
		}
	default:
		return fmt.Errorf("%w: operator %s", errUntranslatable, x.Op)
	}
	return nil
}

func (t *z3Translator) VisitWideningConversion(x *value.WideningConversion) error {
	if value.IsPrimitiveFloating(x.To) || x.Arg.Type() == value.TypeBoolean {
		return fmt.Errorf("%w: %s", errUntranslatable, x)
	}
	return x.Arg.Accept(t)
}

func (t *z3Translator) VisitNarrowingConversion(x *value.NarrowingConversion) error {
	// 收窄按恒等处理, 溢出由模型验证兜底
	if value.IsPrimitiveFloating(x.Arg.Type()) || x.To == value.TypeBoolean {
		return fmt.Errorf("%w: %s", errUntranslatable, x)
	}
	return x.Arg.Accept(t)
}

func (t *z3Translator) VisitPrimitiveSymbolicApply(x *value.PrimitiveSymbolicApply) error {
	return fmt.Errorf("%w: function %s", errUntranslatable, x.Operator)
}
