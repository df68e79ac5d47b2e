package oracle

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"pathgen/pkg/heap"
	"pathgen/pkg/pathcond"
	"pathgen/pkg/state"
	"pathgen/pkg/value"
)

const (
	returnedValue = "returnedValue"
	rootVarPrefix = "__"
)

// skipError 当前测试用例无法生成, 以注释代替
type skipError struct {
	reason string
}

func (e *skipError) Error() string { return e.reason }

func noSolution() error {
	return &skipError{reason: "no numeric solution from the solver"}
}

// testCase 单个测试方法的生成过程
// 符号到变量名的映射与输出缓冲都是私有的, 失败时整体丢弃
type testCase struct {
	opts    *Options
	num     int
	initial *state.State
	final   *state.State
	model   value.Model

	pc      *pathcond.PathCondition
	heap    *heap.Heap
	factory *value.Factory

	b        strings.Builder
	vars     map[string]string // 符号 ID -> 变量名
	declared map[string]bool   // 已声明为局部变量的根
}

func newTestCase(opts *Options, num int, initial, final *state.State, model value.Model) *testCase {
	return &testCase{
		opts:     opts,
		num:      num,
		initial:  initial,
		final:    final,
		model:    model,
		vars:     make(map[string]string),
		declared: make(map[string]bool),
	}
}

func (tc *testCase) line(indent int, format string, args ...interface{}) {
	tc.b.WriteString(strings.Repeat(indentUnit, indent))
	fmt.Fprintf(&tc.b, format, args...)
	tc.b.WriteString("\n")
}

func (tc *testCase) render() error {
	sig, err := tc.initial.RootMethodSignature()
	if err != nil {
		return err
	}
	frame, err := tc.initial.RootFrame()
	if err != nil {
		return err
	}
	if tc.pc, err = tc.final.PathCondition(); err != nil {
		return err
	}
	if tc.heap, err = tc.final.Heap(); err != nil {
		return err
	}
	if tc.factory, err = tc.final.Factory(); err != nil {
		return err
	}
	exc, err := tc.final.StuckException()
	if err != nil {
		return err
	}
	ret, err := tc.final.StuckReturn()
	if err != nil {
		return err
	}

	// 1. 期望
	tc.b.WriteString("\n")
	if exc != nil {
		obj, err := tc.heap.Get(exc.Pos)
		if err != nil {
			return fmt.Errorf("exception object: %w", err)
		}
		tc.line(1, "@Test(expected=%s.class)", value.JavaClass(obj.Type))
	} else {
		tc.line(1, "@Test")
	}
	tc.line(1, "public void test%d() throws Exception {", tc.num)

	// 2. 按路径条件初始化
	if err := tc.walkClauses(); err != nil {
		return err
	}

	// 3. 调用
	retType, err := sig.ReturnType()
	if err != nil {
		return err
	}
	expectsValue := exc == nil && retType != value.TypeVoid && sig.Name != "<init>"
	if expectsValue {
		if ret == nil {
			return fmt.Errorf("%w: state %s[%d] is stuck without a return value for %s",
				value.ErrUnsupportedValue, tc.final.BranchIdentifier(), tc.final.SequenceNumber(), sig)
		}
		if p, ok := ret.(value.Primitive); ok {
			if err := tc.bindReturnSymbols(p); err != nil {
				return err
			}
		}
	}
	call := tc.call(sig, frame)
	if !expectsValue {
		tc.line(2, "%s;", call)
		tc.line(1, "}")
		return nil
	}
	tc.line(2, "%s %s = %s;", value.JavaClass(retType), returnedValue, call)

	// 4. 断言
	if err := tc.assertReturn(ret); err != nil {
		return err
	}
	tc.line(1, "}")
	return nil
}

// ==================== 子句 ====================

func (tc *testCase) walkClauses() error {
	clauses := tc.pc.Clauses()
	for i := 0; i < len(clauses); i++ {
		switch c := clauses[i].(type) {
		case *pathcond.AssumeClassInitialized:
			continue
		case *pathcond.AssumeNull:
			if tc.preInit(c.Ref.Origin()) {
				continue
			}
			if err := tc.setReference(c.Ref, "null"); err != nil {
				return err
			}
		case *pathcond.AssumeExpands:
			if c.IsArray() {
				if i+1 >= len(clauses) {
					return fmt.Errorf("%w: %s is the last clause", pathcond.ErrArrayLength, c)
				}
				next, ok := clauses[i+1].(*pathcond.Assume)
				if !ok {
					return fmt.Errorf("%w: %s is followed by %s", pathcond.ErrArrayLength, c, clauses[i+1])
				}
				i++
				if tc.preInit(c.Ref.Origin()) {
					continue
				}
				if err := tc.expandArray(c, next); err != nil {
					return err
				}
				continue
			}
			if tc.preInit(c.Ref.Origin()) {
				continue
			}
			if err := tc.setReference(c.Ref, "new "+value.JavaClass(c.Class)+"()"); err != nil {
				return err
			}
		case *pathcond.AssumeAliases:
			if tc.preInit(c.Ref.Origin()) {
				continue
			}
			target, ok := tc.pc.ExpansionAt(c.Pos)
			if !ok {
				return fmt.Errorf("%w: %s", pathcond.ErrDanglingAlias, c)
			}
			expr, err := tc.readOrigin(target.Ref.Origin(), c.Ref.StaticType())
			if err != nil {
				return err
			}
			if target.Ref.StaticType() != c.Ref.StaticType() && !strings.HasPrefix(expr, "((") {
				expr = "((" + value.JavaClass(c.Ref.StaticType()) + ") " + expr + ")"
			}
			if err := tc.setReference(c.Ref, expr); err != nil {
				return err
			}
		case *pathcond.Assume:
			if err := tc.bindSymbols(c.Condition); err != nil {
				return err
			}
		default:
			return fmt.Errorf("%w: clause %T", value.ErrUnsupportedValue, c)
		}
	}
	return nil
}

func (tc *testCase) expandArray(c *pathcond.AssumeExpands, lengthClause *pathcond.Assume) error {
	syms, err := value.SymbolsIn(lengthClause.Condition)
	if err != nil {
		return err
	}
	if len(syms) != 1 {
		return fmt.Errorf("%w: %s constrains %d symbols", pathcond.ErrArrayLength, lengthClause, len(syms))
	}
	length := syms[0]
	if _, ok := tc.vars[length.ID()]; !ok {
		v, ok := tc.model.Get(length)
		if !ok {
			return noSolution()
		}
		if err := tc.declarePrimitive(length, v); err != nil {
			return err
		}
	}
	return tc.setReference(c.Ref, newArray(c.Class, tc.vars[length.ID()]))
}

// bindSymbols 为条件中尚未绑定的符号声明变量并从模型赋值
func (tc *testCase) bindSymbols(cond value.Primitive) error {
	syms, err := value.SymbolsIn(cond)
	if err != nil {
		return err
	}
	for _, x := range syms {
		if tc.preInit(x.Origin()) {
			// 整个子句属于隐式初始化
			return nil
		}
	}
	for _, x := range syms {
		if _, ok := tc.vars[x.ID()]; ok {
			continue
		}
		v, ok := tc.model.Get(x)
		if !ok {
			return noSolution()
		}
		if err := tc.declarePrimitive(x, v); err != nil {
			return err
		}
	}
	return nil
}

// bindReturnSymbols 返回表达式中模型给了值但尚未绑定的符号, 在调用前绑定
func (tc *testCase) bindReturnSymbols(ret value.Primitive) error {
	syms, err := value.SymbolsIn(ret)
	if err != nil {
		return err
	}
	for _, x := range syms {
		if _, ok := tc.vars[x.ID()]; ok || tc.preInit(x.Origin()) {
			continue
		}
		v, ok := tc.model.Get(x)
		if !ok {
			continue
		}
		if err := tc.declarePrimitive(x, v); err != nil {
			return err
		}
	}
	return nil
}

func (tc *testCase) declarePrimitive(x *value.PrimitiveSymbolicAtomic, v *value.Simplex) error {
	typ := value.JavaClass(x.Type())
	lit := primitiveLiteral(x.Type(), v)
	o := x.Origin()
	if o.IsRoot() {
		name := rootVar(o.Root)
		tc.line(2, "%s %s = %s;", typ, name, lit)
		tc.declared[o.Root] = true
		tc.vars[x.ID()] = name
		return nil
	}
	name := symbolVar(x)
	tc.line(2, "%s %s = %s;", typ, name, lit)
	tc.vars[x.ID()] = name
	if last, _ := o.Last(); last.Kind == value.LengthAccess {
		// 数组长度由 new 表达式决定
		return nil
	}
	return tc.assign(o, name)
}

func (tc *testCase) setReference(ref *value.ReferenceSymbolic, expr string) error {
	o := ref.Origin()
	if o.IsRoot() {
		name := rootVar(o.Root)
		tc.line(2, "%s %s = %s;", value.JavaClass(ref.StaticType()), name, expr)
		tc.declared[o.Root] = true
		tc.vars[ref.ID()] = name
		return nil
	}
	return tc.assign(o, expr)
}

// ==================== 访问链 ====================

// assign 写入嵌套位置: 纯下标链直接赋值, 含字段的链走 __set
func (tc *testCase) assign(o value.Origin, expr string) error {
	if !tc.declared[o.Root] {
		return fmt.Errorf("%w: root of %s has no variable", heap.ErrUnresolved, o)
	}
	if indexOnly(o) {
		idx, err := tc.indices(o.Steps)
		if err != nil {
			return err
		}
		tc.line(2, "%s%s = %s;", rootVar(o.Root), idx, expr)
		return nil
	}
	steps, err := tc.stepArgs(o.Steps)
	if err != nil {
		return err
	}
	tc.line(2, "__set(%s, %s, %s);", rootVar(o.Root), expr, steps)
	return nil
}

// readOrigin 读取 origin 处对象的表达式
func (tc *testCase) readOrigin(o value.Origin, staticType string) (string, error) {
	if !tc.declared[o.Root] {
		return "", &skipError{reason: "no variable for " + o.Path()}
	}
	if o.IsRoot() {
		return rootVar(o.Root), nil
	}
	if indexOnly(o) {
		idx, err := tc.indices(o.Steps)
		if err != nil {
			return "", err
		}
		return rootVar(o.Root) + idx, nil
	}
	steps, err := tc.stepArgs(o.Steps)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("((%s) __get(%s, %s))", value.JavaClass(staticType), rootVar(o.Root), steps), nil
}

func indexOnly(o value.Origin) bool {
	if o.IsRoot() {
		return false
	}
	for _, s := range o.Steps {
		if s.Kind != value.IndexAccess {
			return false
		}
	}
	return true
}

func (tc *testCase) indices(steps []value.Accessor) (string, error) {
	var b strings.Builder
	for _, s := range steps {
		i, err := tc.index(s)
		if err != nil {
			return "", err
		}
		b.WriteString("[" + i + "]")
	}
	return b.String(), nil
}

func (tc *testCase) stepArgs(steps []value.Accessor) (string, error) {
	parts := make([]string, len(steps))
	for i, s := range steps {
		switch s.Kind {
		case value.FieldAccess:
			parts[i] = strconv.Quote(s.Name)
		case value.IndexAccess:
			idx, err := tc.index(s)
			if err != nil {
				return "", err
			}
			parts[i] = strconv.Quote("[" + idx + "]")
		default:
			return "", fmt.Errorf("%w: %s cannot be written", value.ErrUnsupportedValue, s)
		}
	}
	return strings.Join(parts, ", "), nil
}

// index 下标为整数字面量或符号 ID, 符号取模型中的值
func (tc *testCase) index(a value.Accessor) (string, error) {
	if i, err := strconv.ParseInt(a.Name, 10, 32); err == nil {
		return strconv.FormatInt(i, 10), nil
	}
	for _, s := range tc.factory.Symbols() {
		x, ok := s.(*value.PrimitiveSymbolicAtomic)
		if !ok || x.ID() != a.Name {
			continue
		}
		v, ok := tc.model.Get(x)
		if !ok {
			return "", noSolution()
		}
		return strconv.FormatInt(v.Int64(), 10), nil
	}
	return "", fmt.Errorf("%w: index %q", value.ErrUnsupportedValue, a.Name)
}

// ==================== 调用与断言 ====================

func (tc *testCase) call(sig value.Signature, frame *state.Frame) string {
	var args []string
	for _, p := range frame.Parameters() {
		if s, ok := p.Value.(value.Symbolic); ok {
			if name, ok := tc.vars[s.ID()]; ok {
				args = append(args, name)
				continue
			}
		}
		args = append(args, zeroValue(p.Type))
	}
	argList := strings.Join(args, ", ")
	cls := value.JavaClass(sig.Class)
	switch {
	case sig.Name == "<init>":
		return "new " + cls + "(" + argList + ")"
	case tc.initial.IsStatic():
		return cls + "." + sig.Name + "(" + argList + ")"
	case tc.declared[state.This]:
		return rootVar(state.This) + "." + sig.Name + "(" + argList + ")"
	}
	return "new " + cls + "()." + sig.Name + "(" + argList + ")"
}

func (tc *testCase) assertReturn(ret value.Value) error {
	switch r := ret.(type) {
	case value.Primitive:
		if r.Type() == value.TypeBoolean {
			v, err := value.Eval(r, tc.lookupOrZero)
			if errors.Is(err, value.ErrDivisionByZero) {
				return noSolution()
			}
			if err != nil {
				return err
			}
			tc.line(2, "assertTrue(%s == %t);", returnedValue, v.Bool())
			return nil
		}
		expr, err := value.Render(r, tc.renderSymbol)
		if err != nil {
			return err
		}
		tc.line(2, "assertTrue(%s == %s);", returnedValue, expr)
		return nil
	case value.Reference:
		expr, err := tc.referenceExpr(r)
		if err != nil {
			return err
		}
		if expr == "" {
			tc.line(2, "assertNotNull(%s);", returnedValue)
			return nil
		}
		tc.line(2, "assertTrue(%s == %s);", returnedValue, expr)
		return nil
	}
	return fmt.Errorf("%w: return value %T", value.ErrUnsupportedValue, ret)
}

// referenceExpr 返回引用对应的表达式, 方法内新建的对象没有 origin, 返回空串
func (tc *testCase) referenceExpr(r value.Reference) (string, error) {
	switch x := r.(type) {
	case *value.ReferenceConcrete:
		if x.IsNull() {
			return "null", nil
		}
		exp, ok := tc.pc.ExpansionAt(x.Pos)
		if !ok {
			if !tc.heap.Has(x.Pos) {
				return "", fmt.Errorf("%w: returned Object[%d]", heap.ErrNoObject, x.Pos)
			}
			return "", nil
		}
		return tc.readOrigin(exp.Ref.Origin(), exp.Ref.StaticType())
	case *value.ReferenceSymbolic:
		if _, ok := tc.pc.Resolution(x); ok {
			pos, err := tc.final.Deref(x)
			if err != nil {
				return "", err
			}
			return tc.referenceExpr(&value.ReferenceConcrete{Pos: pos})
		}
		// 未解析的引用保持默认值 null, 或是已绑定对象中未触碰的字段
		o := x.Origin()
		if !o.IsRoot() && tc.declared[o.Root] {
			return tc.readOrigin(o, x.StaticType())
		}
		return "null", nil
	}
	return "", fmt.Errorf("%w: reference %T", value.ErrUnsupportedValue, r)
}

func (tc *testCase) renderSymbol(x *value.PrimitiveSymbolicAtomic) (string, error) {
	if name, ok := tc.vars[x.ID()]; ok {
		return name, nil
	}
	return zeroValue(x.Type()), nil
}

// lookupOrZero 未绑定的符号在测试中保持 Java 默认值
func (tc *testCase) lookupOrZero(x *value.PrimitiveSymbolicAtomic) (*value.Simplex, error) {
	if v, ok := tc.model.Get(x); ok {
		return v, nil
	}
	if value.IsPrimitiveFloating(x.Type()) {
		return value.NewFloating(x.Type(), 0)
	}
	return value.NewSimplex(x.Type(), 0)
}

func (tc *testCase) preInit(o value.Origin) bool {
	for _, r := range tc.opts.PreInitRoots {
		if o.Root == r {
			return true
		}
	}
	return false
}

// ==================== 字面量 ====================

func rootVar(root string) string { return rootVarPrefix + identifier(root) }

// symbolVar {V3} -> V3
func symbolVar(x *value.PrimitiveSymbolicAtomic) string {
	return identifier(strings.Trim(x.ID(), "{}"))
}

func identifier(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
			return r
		}
		return '_'
	}, s)
}

func primitiveLiteral(typ string, v *value.Simplex) string {
	if typ == value.TypeBoolean {
		if v.Bool() {
			return "(1 != 0)"
		}
		return "(0 != 0)"
	}
	return "(" + value.JavaClass(typ) + ") " + v.Literal()
}

func zeroValue(typ string) string {
	switch typ {
	case value.TypeBoolean:
		return "false"
	case value.TypeByte:
		return "(byte) 0"
	case value.TypeChar:
		return "(char) 0"
	case value.TypeShort:
		return "(short) 0"
	case value.TypeInt:
		return "0"
	case value.TypeLong:
		return "0L"
	case value.TypeFloat:
		return "0.0f"
	case value.TypeDouble:
		return "0.0d"
	}
	return "null"
}

// newArray "[[I" + n -> new int[n][]
func newArray(class, length string) string {
	jc := value.JavaClass(class)
	k := strings.Index(jc, "[]")
	if k < 0 {
		return "new " + jc + "[" + length + "]"
	}
	return "new " + jc[:k] + "[" + length + "]" + jc[k+2:]
}
