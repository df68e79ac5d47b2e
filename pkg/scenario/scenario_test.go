package scenario

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pathgen/pkg/heap"
	"pathgen/pkg/oracle"
	"pathgen/pkg/rules"
	"pathgen/pkg/solver"
	"pathgen/pkg/state"
	"pathgen/pkg/value"
)

// ==================== 表达式 ====================

func lookupFrom(vals map[string]value.Value) OriginLookup {
	return func(o value.Origin) (value.Value, error) {
		if v, ok := vals[o.Path()]; ok {
			return v, nil
		}
		return nil, heap.ErrNullDereference
	}
}

func TestParseExprLiterals(t *testing.T) {
	tests := []struct {
		src  string
		typ  string
		text string
	}{
		{"42", value.TypeInt, "42"},
		{"-5", value.TypeInt, "-5"},
		{"5L", value.TypeLong, "5L"},
		{"3000000000", value.TypeLong, "3000000000L"},
		{"1.5", value.TypeDouble, "1.5d"},
		{"true", value.TypeBoolean, "true"},
		{"(7)", value.TypeInt, "7"},
	}
	for _, tt := range tests {
		t.Run(tt.src, func(t *testing.T) {
			v, err := ParseExpr(tt.src, lookupFrom(nil))
			require.NoError(t, err)
			assert.Equal(t, tt.typ, v.Type())
			assert.Equal(t, tt.text, v.String())
		})
	}

	v, err := ParseExpr("null", lookupFrom(nil))
	require.NoError(t, err)
	assert.Equal(t, value.Null, v)
}

func TestParseExprPrecedence(t *testing.T) {
	tests := []struct {
		src  string
		want int64
	}{
		{"1 + 2 * 3", 7},
		{"(1 + 2) * 3", 9},
		{"10 - 4 - 3", 3},
		{"7 % 4 + 1", 4},
		{"6 & 3 | 8", 10},
		{"-2 * -3", 6},
	}
	for _, tt := range tests {
		t.Run(tt.src, func(t *testing.T) {
			v, err := ParseExpr(tt.src, lookupFrom(nil))
			require.NoError(t, err)
			p, ok := v.(value.Primitive)
			require.True(t, ok)
			got, err := value.Eval(p, nil)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.Int64())
		})
	}
}

func TestParseExprWithOrigins(t *testing.T) {
	f := value.NewFactory()
	size, err := f.Primitive(value.TypeInt, value.MustParseOrigin("x.size"))
	require.NoError(t, err)
	empty, err := f.Primitive(value.TypeBoolean, value.MustParseOrigin("x.empty"))
	require.NoError(t, err)
	lookup := lookupFrom(map[string]value.Value{"x.size": size, "x.empty": empty})

	v, err := ParseExpr("x.size > 0 && !x.empty", lookup)
	require.NoError(t, err)
	assert.Equal(t, value.TypeBoolean, v.Type())

	m := value.Model{}
	require.NoError(t, m.Set(size, value.IntOf(3)))
	require.NoError(t, m.Set(empty, value.BoolOf(false)))
	got, err := m.Eval(v.(value.Primitive))
	require.NoError(t, err)
	assert.True(t, got.Bool())

	require.NoError(t, m.Set(empty, value.BoolOf(true)))
	got, err = m.Eval(v.(value.Primitive))
	require.NoError(t, err)
	assert.False(t, got.Bool())
}

func TestParseExprErrors(t *testing.T) {
	f := value.NewFactory()
	size, err := f.Primitive(value.TypeInt, value.MustParseOrigin("x.size"))
	require.NoError(t, err)
	lookup := lookupFrom(map[string]value.Value{"x.size": size})

	for _, src := range []string{"", "1 +", "(1", "x.", "a[b]", "x.size == true", "!3", "1 2", "x.size #"} {
		t.Run(src, func(t *testing.T) {
			_, err := ParseExpr(src, lookup)
			assert.Error(t, err)
		})
	}

	_, err = ParseExpr("y.next.val > 0", lookup)
	require.Error(t, err)
	assert.True(t, errors.Is(err, heap.ErrNullDereference))
}

func TestParseLiteral(t *testing.T) {
	v, err := ParseLiteral(value.TypeInt, "0x10")
	require.NoError(t, err)
	assert.Equal(t, int64(16), v.Int64())

	v, err = ParseLiteral(value.TypeLong, "5L")
	require.NoError(t, err)
	assert.Equal(t, "5L", v.Literal())

	v, err = ParseLiteral(value.TypeBoolean, "true")
	require.NoError(t, err)
	assert.True(t, v.Bool())

	v, err = ParseLiteral(value.TypeFloat, "2.5f")
	require.NoError(t, err)
	assert.Equal(t, 2.5, v.Float64())

	_, err = ParseLiteral(value.TypeInt, "abc")
	assert.Error(t, err)
	_, err = ParseLiteral("Lpkg/Node;", "1")
	assert.ErrorIs(t, err, value.ErrTypeMismatch)
}

// ==================== 场景文件 ====================

func TestLoadScenario(t *testing.T) {
	f, err := Load(filepath.Join("testdata", "list.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "list-isEmpty", f.Name)
	assert.Equal(t, "isEmpty", f.Method.Name)
	assert.True(t, f.Static)
	assert.Len(t, f.Classes, 2)
	require.Len(t, f.Rules, 1)
	assert.Equal(t, rules.Expands, f.Rules[0].Kind)
	assert.Contains(t, f.Triggers, "checkSize")
	require.Len(t, f.Paths, 3)
	assert.Equal(t, "resolve", f.Paths[0].Steps[0].Kind())
	assert.Equal(t, AsNull, f.Paths[0].Steps[2].As)
}

func TestParseScenarioErrors(t *testing.T) {
	header := "name: bad\nmethod: {class: pkg/A, descriptor: (I)V, name: m}\n"
	tests := map[string]string{
		"no method":       "name: bad\npaths: []\n",
		"bad descriptor":  "name: bad\nmethod: {class: pkg/A, descriptor: (I, name: m}\n",
		"unknown field":   header + "colour: red\n",
		"two actions":     header + "paths:\n  - steps:\n      - {assume: \"1 > 0\", return: void}\n",
		"empty step":      header + "paths:\n  - steps:\n      - {}\n",
		"alias no target": header + "paths:\n  - steps:\n      - {resolve: x, as: alias}\n",
		"bad resolution":  header + "paths:\n  - steps:\n      - {resolve: x, as: maybe}\n",
		"bad trigger":     header + "triggers:\n  t:\n    - {resolve: x}\n",
	}
	for name, src := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(src))
			assert.Error(t, err)
		})
	}

	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

// ==================== 执行 ====================

func runFile(t *testing.T, name string, s solver.Solver) []oracle.Path {
	t.Helper()
	f, err := Load(filepath.Join("testdata", name))
	require.NoError(t, err)
	paths, err := NewRunner(s, nil).Run(context.Background(), f)
	require.NoError(t, err)
	return paths
}

func exceptionClass(t *testing.T, st *state.State) string {
	t.Helper()
	exc, err := st.StuckException()
	require.NoError(t, err)
	require.NotNil(t, exc)
	obj, err := st.Object(exc.Pos)
	require.NoError(t, err)
	return obj.Type
}

func TestRunListScenario(t *testing.T) {
	paths := runFile(t, "list.yaml", solver.NewLocalSolver(nil))
	require.Len(t, paths, 4)

	ids := make([]string, len(paths))
	for i, p := range paths {
		ids[i] = p.Final.BranchIdentifier()
		assert.Equal(t, state.Frozen, p.Final.Status())
		assert.Equal(t, state.Active, p.Initial.Status())
	}
	assert.Equal(t, []string{".1", ".2.1", ".2.2", ".3"}, ids)

	// empty: 触发方法追加了 size >= 0
	empty := paths[0]
	pc, err := empty.Final.PathCondition()
	require.NoError(t, err)
	conds := pc.Conditions()
	require.Len(t, conds, 3)
	assert.Contains(t, conds[0].String(), ">= 0")
	ret, err := empty.Final.StuckReturn()
	require.NoError(t, err)
	got, err := empty.Model.Eval(ret.(value.Primitive))
	require.NoError(t, err)
	assert.True(t, got.Bool())

	// first-value: head 为 null 的分支抛出 NPE
	assert.Equal(t, NullPointerException, exceptionClass(t, paths[1].Final))
	ret, err = paths[2].Final.StuckReturn()
	require.NoError(t, err)
	assert.Equal(t, value.TypeBoolean, ret.Type())
	size, err := paths[2].Final.Lookup(value.MustParseOrigin("x.size"))
	require.NoError(t, err)
	sv, ok := paths[2].Model.Get(size.(*value.PrimitiveSymbolicAtomic))
	require.True(t, ok)
	assert.Greater(t, sv.Int64(), int64(0))

	// null-list
	assert.Equal(t, NullPointerException, exceptionClass(t, paths[3].Final))
}

func TestRunAliasingScenario(t *testing.T) {
	paths := runFile(t, "aliasing.yaml", nil)
	require.Len(t, paths, 2)

	self := paths[0]
	require.NotNil(t, self.Model)
	v, err := self.Final.Lookup(value.MustParseOrigin("other.val"))
	require.NoError(t, err)
	x, ok := v.(*value.PrimitiveSymbolicAtomic)
	require.True(t, ok)
	assert.Equal(t, "this.val", x.Origin().Path())
	got, ok := self.Model.Get(x)
	require.True(t, ok)
	assert.Equal(t, int64(7), got.Int64())

	this, err := self.Final.Lookup(value.MustParseOrigin("this"))
	require.NoError(t, err)
	other, err := self.Final.Lookup(value.MustParseOrigin("other"))
	require.NoError(t, err)
	p1, err := self.Final.Deref(this.(value.Reference))
	require.NoError(t, err)
	p2, err := self.Final.Deref(other.(value.Reference))
	require.NoError(t, err)
	assert.Equal(t, p1, p2)

	assert.Equal(t, "java/lang/IllegalStateException", exceptionClass(t, paths[1].Final))
	assert.Nil(t, paths[1].Model)
}

func TestRunGeneratesTests(t *testing.T) {
	paths := runFile(t, "list.yaml", solver.NewLocalSolver(nil))

	g := oracle.NewGenerator(nil)
	g.FormatPrologue("pkg.Lists")
	require.NoError(t, g.FormatBatch(context.Background(), paths, 2))
	g.FormatEpilogue()
	out := g.Emit()

	assert.Equal(t, 4, strings.Count(out, "@Test"))
	assert.Contains(t, out, "boolean returnedValue = pkg.Lists.isEmpty(__x);")
	assert.Contains(t, out, "assertTrue(returnedValue == true);")
	assert.Contains(t, out, "@Test(expected=java.lang.NullPointerException.class)")
}

const triggerScenario = `
name: triggers
method: {class: pkg/A, descriptor: (Lpkg/A;)V, name: m}
static: true
parameters: [a]
classes:
  - name: pkg/A
    fields:
      - {name: n, type: I}
rules:
  - kind: expands
    origin: a
    class: pkg/A
    method: {class: pkg/A, descriptor: ()V, name: %s}
triggers:
  ok:
    - assume: "$target.n == 1"
  branching:
    - {resolve: $target, as: any}
  returning:
    - return: void
paths:
  - steps:
      - {resolve: a, as: expand}
      - return: void
`

func TestTriggerBodies(t *testing.T) {
	run := func(method string) ([]oracle.Path, error) {
		f, err := Parse([]byte(strings.Replace(triggerScenario, "%s", method, 1)))
		require.NoError(t, err)
		return NewRunner(nil, nil).Run(context.Background(), f)
	}

	paths, err := run("ok")
	require.NoError(t, err)
	require.Len(t, paths, 1)
	pc, err := paths[0].Final.PathCondition()
	require.NoError(t, err)
	require.Len(t, pc.Conditions(), 1)
	assert.Contains(t, pc.Conditions()[0].String(), "== 1")

	for _, method := range []string{"missing", "branching", "returning"} {
		_, err := run(method)
		assert.Error(t, err, method)
	}
}

func TestExtraRules(t *testing.T) {
	f, err := Parse([]byte(strings.Replace(triggerScenario, "%s", "ok", 1)))
	require.NoError(t, err)
	f.Rules = nil

	extra, err := rules.NewTable(rules.Rule{
		Kind:   rules.Expands,
		Origin: "a",
		Class:  "pkg/A",
		Method: value.Signature{Class: "pkg/A", Descriptor: "()V", Name: "ok"},
	})
	require.NoError(t, err)

	paths, err := NewRunner(nil, extra).Run(context.Background(), f)
	require.NoError(t, err)
	require.Len(t, paths, 1)
	pc, err := paths[0].Final.PathCondition()
	require.NoError(t, err)
	assert.Len(t, pc.Conditions(), 1)
}

func TestSolverOutcomes(t *testing.T) {
	f, err := Load(filepath.Join("testdata", "list.yaml"))
	require.NoError(t, err)

	unsat := solver.SolverFunc(func(context.Context, []value.Primitive) (value.Model, error) {
		return nil, solver.ErrUnsat
	})
	paths, err := NewRunner(unsat, nil).Run(context.Background(), f)
	require.NoError(t, err)
	assert.Empty(t, paths)

	unknown := solver.SolverFunc(func(context.Context, []value.Primitive) (value.Model, error) {
		return nil, solver.ErrUnknown
	})
	paths, err = NewRunner(unknown, nil).Run(context.Background(), f)
	require.NoError(t, err)
	require.Len(t, paths, 4)
	for _, p := range paths {
		assert.Nil(t, p.Model)
	}

	broken := solver.SolverFunc(func(context.Context, []value.Primitive) (value.Model, error) {
		return nil, errors.New("backend crashed")
	})
	_, err = NewRunner(broken, nil).Run(context.Background(), f)
	assert.Error(t, err)
}

func TestRunErrors(t *testing.T) {
	header := "name: e\nmethod: {class: pkg/A, descriptor: (Lpkg/A;)I, name: m}\nstatic: true\nparameters: [a]\n"
	tests := map[string]string{
		"unfinished":    header + "paths:\n  - steps:\n      - {resolve: a, as: expand}\n",
		"missing field": header + "paths:\n  - steps:\n      - {resolve: a, as: expand}\n      - return: \"a.n\"\n",
		"bad alias":     header + "paths:\n  - steps:\n      - {resolve: a, as: alias, target: b}\n",
		"bad assume":    header + "paths:\n  - steps:\n      - assume: \"1 +\"\n",
		"non boolean":   header + "paths:\n  - steps:\n      - assume: \"1 + 2\"\n",
		"bad model":     header + "paths:\n  - steps:\n      - return: \"0\"\n    model:\n      \"a..x\": \"1\"\n",
		"bad class":     header + "paths:\n  - steps:\n      - {resolve: a, as: expand, class: \"[I\"}\n",
		"bad throwable": header + "paths:\n  - steps:\n      - throw: \"[I\"\n",
	}
	for name, src := range tests {
		t.Run(name, func(t *testing.T) {
			f, err := Parse([]byte(src))
			require.NoError(t, err)
			_, err = NewRunner(nil, nil).Run(context.Background(), f)
			assert.Error(t, err)
		})
	}
}

func TestRunCancelled(t *testing.T) {
	f, err := Load(filepath.Join("testdata", "list.yaml"))
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = NewRunner(nil, nil).Run(ctx, f)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRunArrayElements(t *testing.T) {
	paths := runFile(t, "arrays.yaml", solver.NewLocalSolver(nil))
	require.Len(t, paths, 2)

	first := paths[0]
	ret, err := first.Final.StuckReturn()
	require.NoError(t, err)
	elem, ok := ret.(*value.PrimitiveSymbolicAtomic)
	require.True(t, ok, "returned %v", ret)
	assert.Equal(t, "a[0]", elem.Origin().Path())
	got, ok := first.Model.Get(elem)
	require.True(t, ok)
	assert.Equal(t, int64(7), got.Int64())

	g := oracle.NewGenerator(nil)
	require.NoError(t, g.FormatBatch(context.Background(), paths, 1))
	out := g.Emit()
	assert.Contains(t, out, "int[] __a = new int[V")
	assert.Contains(t, out, "__a[0] = V")
	assert.Contains(t, out, "int returnedValue = pkg.Arrays.head(__a);")
	assert.NotContains(t, out, "Unable to generate")

	// 不给模型时由求解器给出同样的元素值
	f, err := Load(filepath.Join("testdata", "arrays.yaml"))
	require.NoError(t, err)
	f.Paths[0].Model = nil
	solved, err := NewRunner(solver.NewLocalSolver(nil), nil).Run(context.Background(), f)
	require.NoError(t, err)
	require.Len(t, solved, 2)
	got, ok = solved[0].Model.Get(elem)
	require.True(t, ok)
	assert.Equal(t, int64(7), got.Int64())
}
