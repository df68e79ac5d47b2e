package scenario

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"

	"pathgen/pkg/heap"
	"pathgen/pkg/lazyinit"
	"pathgen/pkg/oracle"
	"pathgen/pkg/rules"
	"pathgen/pkg/solver"
	"pathgen/pkg/state"
	"pathgen/pkg/value"
)

// NullPointerException 访问链经过 null 时路径抛出的异常
const NullPointerException = "java/lang/NullPointerException"

// maxTriggerDepth 触发方法嵌套的上限
const maxTriggerDepth = 16

// Runner 执行场景脚本, 产出结束的路径与模型
type Runner struct {
	solver  solver.Solver
	extra   []rules.Rule
	Verbose bool
}

// NewRunner 创建执行器
// s 为 nil 时脚本未给出模型的路径以无模型生成; extra 为场景之外共享的规则
func NewRunner(s solver.Solver, extra *rules.Table) *Runner {
	r := &Runner{solver: s}
	if extra != nil {
		for _, rule := range extra.Rules() {
			r.extra = append(r.extra, *rule)
		}
	}
	return r
}

// Run 按脚本顺序执行所有路径, 不可满足的路径被丢弃
func (r *Runner) Run(ctx context.Context, f *File) ([]oracle.Path, error) {
	classes, err := lazyinit.NewClassTable(f.Classes...)
	if err != nil {
		return nil, fmt.Errorf("scenario %q: %w", f.Name, err)
	}
	all := make([]rules.Rule, 0, len(r.extra)+len(f.Rules))
	all = append(all, r.extra...)
	all = append(all, f.Rules...)
	table, err := rules.NewTable(all...)
	if err != nil {
		return nil, fmt.Errorf("scenario %q: %w", f.Name, err)
	}
	engine := rules.NewEngine(table)
	engine.Verbose = r.Verbose

	var out []oracle.Path
	for i, script := range f.Paths {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		ex := &execution{file: f, verbose: r.Verbose}
		ex.resolver = lazyinit.NewResolver(classes, engine, ex)
		ex.resolver.Verbose = r.Verbose

		finals, initial, err := ex.run(i, script)
		if err != nil {
			return nil, fmt.Errorf("scenario %q path %q: %w", f.Name, script.Name, err)
		}
		for _, st := range finals {
			model, err := r.model(ctx, st, script)
			if errors.Is(err, solver.ErrUnsat) {
				r.logf("Path %s[%d] (%s) is unsatisfiable, dropped", st.BranchIdentifier(), st.SequenceNumber(), script.Name)
				continue
			}
			if errors.Is(err, solver.ErrUnknown) {
				log.Printf("[Scenario] Warning: no model for %s[%d] (%s): %v", st.BranchIdentifier(), st.SequenceNumber(), script.Name, err)
				model = nil
			} else if err != nil {
				return nil, fmt.Errorf("scenario %q path %q: %w", f.Name, script.Name, err)
			}
			out = append(out, oracle.Path{Initial: initial, Final: st, Model: model})
		}
	}
	r.logf("Scenario %q produced %d paths", f.Name, len(out))
	return out, nil
}

func (r *Runner) logf(format string, args ...interface{}) {
	if r.Verbose {
		log.Printf("[Scenario] "+format, args...)
	}
}

// model 脚本给出的模型优先, 否则调用求解器
func (r *Runner) model(ctx context.Context, st *state.State, script PathScript) (value.Model, error) {
	if script.Model != nil {
		m := value.Model{}
		for text, lit := range script.Model {
			o, err := value.ParseOrigin(text)
			if err != nil {
				return nil, err
			}
			v, err := st.Lookup(o)
			if err != nil {
				// 分支后该 origin 可能不存在 (例如父对象为 null)
				r.logf("Model entry %s skipped on %s[%d]: %v", text, st.BranchIdentifier(), st.SequenceNumber(), err)
				continue
			}
			x, ok := v.(*value.PrimitiveSymbolicAtomic)
			if !ok {
				return nil, fmt.Errorf("model entry %s: %v is not a primitive symbol", text, v)
			}
			sv, err := ParseLiteral(x.Type(), lit)
			if err != nil {
				return nil, fmt.Errorf("model entry %s: %w", text, err)
			}
			if err := m.Set(x, sv); err != nil {
				return nil, err
			}
		}
		return m, nil
	}
	if r.solver == nil {
		return nil, nil
	}
	pc, err := st.PathCondition()
	if err != nil {
		return nil, err
	}
	return solver.ModelFor(ctx, r.solver, pc)
}

// ParseLiteral 按基本类型解析字面量
func ParseLiteral(typ, lit string) (*value.Simplex, error) {
	lit = strings.TrimSpace(lit)
	switch {
	case typ == value.TypeBoolean:
		b, err := strconv.ParseBool(lit)
		if err != nil {
			return nil, fmt.Errorf("invalid boolean %q", lit)
		}
		return value.BoolOf(b), nil
	case value.IsPrimitiveFloating(typ):
		f, err := strconv.ParseFloat(strings.TrimRight(lit, "fFdD"), 64)
		if err != nil {
			return nil, fmt.Errorf("invalid floating value %q", lit)
		}
		return value.NewFloating(typ, f)
	case value.IsPrimitiveIntegral(typ):
		n, err := strconv.ParseInt(strings.TrimRight(lit, "lL"), 0, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid integral value %q", lit)
		}
		return value.NewSimplex(typ, n)
	}
	return nil, fmt.Errorf("%w: literal of type %q", value.ErrTypeMismatch, typ)
}

// ==================== 单条脚本 ====================

// execution 一条脚本的执行, 同时充当触发方法的执行者
type execution struct {
	file     *File
	resolver *lazyinit.Resolver
	verbose  bool
	depth    int
}

func (ex *execution) run(index int, script PathScript) ([]*state.State, *state.State, error) {
	st, err := state.New(ex.file.Method, ex.file.Static, ex.file.Parameters...)
	if err != nil {
		return nil, nil, err
	}
	st.SetIdentifier(fmt.Sprintf(".%d", index+1), 0)
	initial, err := st.Clone()
	if err != nil {
		return nil, nil, err
	}

	live := []*state.State{st}
	for j, step := range script.Steps {
		var next []*state.State
		for _, s := range live {
			if s.Status() != state.Active {
				next = append(next, s)
				continue
			}
			res, err := ex.apply(s, step, nil, false)
			if err != nil {
				return nil, nil, fmt.Errorf("step %d (%s): %w", j, step.Kind(), err)
			}
			next = append(next, res...)
		}
		live = next
	}
	for _, s := range live {
		if s.Status() == state.Active {
			return nil, nil, fmt.Errorf("state %s[%d] did not return or throw", s.BranchIdentifier(), s.SequenceNumber())
		}
	}
	return live, initial, nil
}

// apply 在状态上执行一步, 分支时返回多个状态, 矛盾时返回空
func (ex *execution) apply(st *state.State, step Step, bind map[string]string, inTrigger bool) ([]*state.State, error) {
	subst := func(s string) string {
		for k, v := range bind {
			s = strings.ReplaceAll(s, k, v)
		}
		return s
	}
	lookup := func(o value.Origin) (value.Value, error) { return st.Lookup(o) }

	var err error
	switch {
	case step.Resolve != "":
		var states []*state.State
		states, err = ex.resolve(st, step, subst, inTrigger)
		if err == nil {
			return states, nil
		}
	case step.Assume != "":
		err = ex.assume(st, subst(step.Assume), lookup)
	case step.Return != "":
		if inTrigger {
			return nil, fmt.Errorf("trigger methods cannot return a path result")
		}
		if step.Return == Void {
			err = st.Return(nil)
			break
		}
		var v value.Value
		if v, err = ParseExpr(subst(step.Return), lookup); err == nil {
			err = st.Return(v)
		}
	case step.Throw != "":
		if inTrigger {
			return nil, fmt.Errorf("trigger methods cannot throw")
		}
		_, err = st.Throw(subst(step.Throw))
	}

	if errors.Is(err, heap.ErrNullDereference) && !inTrigger {
		if ex.verbose {
			log.Printf("[Scenario] %s[%d]: %v, throwing %s", st.BranchIdentifier(), st.SequenceNumber(), err, NullPointerException)
		}
		if _, err := st.Throw(NullPointerException); err != nil {
			return nil, err
		}
		return []*state.State{st}, nil
	}
	if err != nil {
		return nil, err
	}
	return []*state.State{st}, nil
}

func (ex *execution) assume(st *state.State, text string, lookup OriginLookup) error {
	if err := st.CheckActive(); err != nil {
		return err
	}
	v, err := ParseExpr(text, lookup)
	if err != nil {
		return err
	}
	cond, ok := v.(value.Primitive)
	if !ok {
		return fmt.Errorf("assume %q: %v is not a boolean condition", text, v)
	}
	pc, err := st.PathCondition()
	if err != nil {
		return err
	}
	return pc.Assume(cond)
}

func (ex *execution) resolve(st *state.State, step Step, subst func(string) string, inTrigger bool) ([]*state.State, error) {
	ref, err := ex.symbolicRef(st, subst(step.Resolve))
	if err != nil {
		return nil, err
	}
	switch step.As {
	case AsNull:
		_, err = ex.resolver.Resolve(st, ref, lazyinit.Candidate{Kind: lazyinit.Null})
	case AsExpand:
		_, err = ex.resolver.Resolve(st, ref, lazyinit.Candidate{Kind: lazyinit.Expand, Class: subst(step.Class)})
	case AsAlias:
		o, perr := value.ParseOrigin(subst(step.Target))
		if perr != nil {
			return nil, perr
		}
		tv, lerr := st.Lookup(o)
		if lerr != nil {
			return nil, lerr
		}
		target, ok := tv.(value.Reference)
		if !ok {
			return nil, fmt.Errorf("alias target %s holds %v", o, tv)
		}
		pos, derr := st.Deref(target)
		if derr != nil {
			return nil, derr
		}
		if pos == value.NullPosition {
			return nil, fmt.Errorf("alias target %s is null", o)
		}
		_, err = ex.resolver.Resolve(st, ref, lazyinit.Candidate{Kind: lazyinit.Alias, Pos: pos})
	case AsAny:
		if inTrigger {
			return nil, fmt.Errorf("trigger methods cannot branch")
		}
		opts := lazyinit.Options{NotNull: make(map[string]bool)}
		for _, nn := range step.NotNull {
			o, err := value.ParseOrigin(subst(nn))
			if err != nil {
				return nil, err
			}
			opts.NotNull[o.String()] = true
		}
		cands, err := ex.resolver.Candidates(st, ref, opts)
		if err != nil {
			return nil, err
		}
		states, err := ex.resolver.Branch(st, ref, cands)
		if errors.Is(err, lazyinit.ErrContradiction) {
			if ex.verbose {
				log.Printf("[Scenario] %s[%d]: %v, path dropped", st.BranchIdentifier(), st.SequenceNumber(), err)
			}
			return nil, nil
		}
		return states, err
	default:
		return nil, fmt.Errorf("unknown resolution %q", step.As)
	}
	if err != nil {
		return nil, err
	}
	return []*state.State{st}, nil
}

func (ex *execution) symbolicRef(st *state.State, text string) (*value.ReferenceSymbolic, error) {
	o, err := value.ParseOrigin(text)
	if err != nil {
		return nil, err
	}
	v, err := st.Lookup(o)
	if err != nil {
		return nil, err
	}
	ref, ok := v.(*value.ReferenceSymbolic)
	if !ok {
		return nil, fmt.Errorf("%s holds %v, not a symbolic reference", o, v)
	}
	return ref, nil
}

// InvokeTrigger 执行触发方法的脚本体, $target 替换为目标对象的 origin, $param 替换为规则参数
func (ex *execution) InvokeTrigger(st *state.State, method value.Signature, target value.Reference, parameter string) error {
	steps, ok := ex.file.Triggers[method.Name]
	if !ok {
		return fmt.Errorf("no body for trigger method %s", method)
	}
	if ex.depth >= maxTriggerDepth {
		return fmt.Errorf("trigger %s nested deeper than %d", method, maxTriggerDepth)
	}
	ex.depth++
	defer func() { ex.depth-- }()

	bind := map[string]string{paramVar: parameter}
	if c, ok := target.(*value.ReferenceConcrete); ok && !c.IsNull() {
		pc, err := st.PathCondition()
		if err != nil {
			return err
		}
		exp, ok := pc.ExpansionAt(c.Pos)
		if !ok {
			return fmt.Errorf("%w: trigger target %s has no origin", heap.ErrNoObject, c)
		}
		bind[targetVar] = exp.Ref.Origin().Path()
	}
	for i, step := range steps {
		if _, err := ex.apply(st, step, bind, true); err != nil {
			return fmt.Errorf("trigger %s step %d: %w", method.Name, i, err)
		}
	}
	return nil
}
