package oracle

import (
	"context"
	"regexp"
	"strconv"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pathgen/pkg/heap"
	"pathgen/pkg/lazyinit"
	"pathgen/pkg/solver"
	"pathgen/pkg/state"
	"pathgen/pkg/value"
)

func classes(t *testing.T) *lazyinit.ClassTable {
	t.Helper()
	ct, err := lazyinit.NewClassTable(
		lazyinit.Class{Name: "pkg/List", Fields: []lazyinit.FieldDecl{
			{Name: "size", Type: "I"},
			{Name: "head", Type: "Lpkg/Node;"},
			{Name: "empty", Type: "Z"},
		}},
		lazyinit.Class{Name: "pkg/Node", Fields: []lazyinit.FieldDecl{
			{Name: "next", Type: "Lpkg/Node;"},
			{Name: "val", Type: "I"},
		}},
	)
	require.NoError(t, err)
	return ct
}

// entry 返回方法入口状态及其快照
func entry(t *testing.T, sig value.Signature, static bool, names ...string) (initial, st *state.State) {
	t.Helper()
	st, err := state.New(sig, static, names...)
	require.NoError(t, err)
	initial, err = st.Clone()
	require.NoError(t, err)
	return initial, st
}

func ref(t *testing.T, st *state.State, path string) *value.ReferenceSymbolic {
	t.Helper()
	v, err := st.Lookup(value.MustParseOrigin(path))
	require.NoError(t, err)
	r, ok := v.(*value.ReferenceSymbolic)
	require.True(t, ok, "%s holds %v", path, v)
	return r
}

func prim(t *testing.T, st *state.State, path string) *value.PrimitiveSymbolicAtomic {
	t.Helper()
	v, err := st.Lookup(value.MustParseOrigin(path))
	require.NoError(t, err)
	p, ok := v.(*value.PrimitiveSymbolicAtomic)
	require.True(t, ok, "%s holds %v", path, v)
	return p
}

func assume(t *testing.T, st *state.State, cond value.Primitive) {
	t.Helper()
	pc, err := st.PathCondition()
	require.NoError(t, err)
	require.NoError(t, pc.Assume(cond))
}

// emptyListPath x 展开为空链表, head 为 null, 返回 x.empty
func emptyListPath(t *testing.T) (initial, final *state.State, model value.Model) {
	t.Helper()
	initial, st := entry(t, value.Signature{Class: "pkg/Lists", Descriptor: "(Lpkg/List;)Z", Name: "isEmpty"}, true, "x")
	r := lazyinit.NewResolver(classes(t), nil, nil)

	_, err := r.Resolve(st, ref(t, st, "x"), lazyinit.Candidate{Kind: lazyinit.Expand, Class: "pkg/List"})
	require.NoError(t, err)
	size := prim(t, st, "x.size")
	assume(t, st, value.MustBinary(value.EQ, size, value.IntOf(0)))
	_, err = r.Resolve(st, ref(t, st, "x.head"), lazyinit.Candidate{Kind: lazyinit.Null})
	require.NoError(t, err)

	empty := prim(t, st, "x.empty")
	require.NoError(t, st.Return(empty))

	model = value.Model{}
	require.NoError(t, model.Set(size, value.IntOf(0)))
	require.NoError(t, model.Set(empty, value.BoolOf(true)))
	return initial, st, model
}

func TestEmptyListEndToEnd(t *testing.T) {
	initial, final, model := emptyListPath(t)
	g := NewGenerator(nil)
	require.NoError(t, g.FormatState(initial, final, model))

	want := `
    @Test
    public void test0() throws Exception {
        pkg.List __x = new pkg.List();
        int V1 = (int) 0;
        __set(__x, V1, "size");
        __set(__x, null, "head");
        boolean V3 = (1 != 0);
        __set(__x, V3, "empty");
        boolean returnedValue = pkg.Lists.isEmpty(__x);
        assertTrue(returnedValue == true);
    }
`
	if diff := cmp.Diff(want, g.Emit()); diff != "" {
		t.Errorf("generated test mismatch (-want +got):\n%s", diff)
	}
}

func TestExceptionPath(t *testing.T) {
	initial, st := entry(t, value.Signature{Class: "pkg/Lists", Descriptor: "(Lpkg/List;)I", Name: "first"}, false, "x")
	r := lazyinit.NewResolver(classes(t), nil, nil)
	_, err := r.Resolve(st, ref(t, st, "x"), lazyinit.Candidate{Kind: lazyinit.Null})
	require.NoError(t, err)
	_, err = st.Throw("java/lang/NullPointerException")
	require.NoError(t, err)

	g := NewGenerator(nil)
	require.NoError(t, g.FormatState(initial, st, nil))

	want := `
    @Test(expected=java.lang.NullPointerException.class)
    public void test0() throws Exception {
        pkg.List __x = null;
        new pkg.Lists().first(__x);
    }
`
	if diff := cmp.Diff(want, g.Emit()); diff != "" {
		t.Errorf("generated test mismatch (-want +got):\n%s", diff)
	}
	assert.NotContains(t, g.Emit(), "assert")
}

func TestAliasBindsToExpandingVariable(t *testing.T) {
	initial, st := entry(t, value.Signature{Class: "pkg/Nodes", Descriptor: "(Lpkg/Node;Lpkg/Node;)V", Name: "link"}, true, "a", "b")
	r := lazyinit.NewResolver(classes(t), nil, nil)

	target, err := r.Resolve(st, ref(t, st, "a"), lazyinit.Candidate{Kind: lazyinit.Expand})
	require.NoError(t, err)
	_, err = r.Resolve(st, ref(t, st, "b"), lazyinit.Candidate{Kind: lazyinit.Alias, Pos: target.Pos})
	require.NoError(t, err)
	_, err = r.Resolve(st, ref(t, st, "a.next"), lazyinit.Candidate{Kind: lazyinit.Alias, Pos: target.Pos})
	require.NoError(t, err)
	require.NoError(t, st.Return(nil))

	g := NewGenerator(nil)
	require.NoError(t, g.FormatState(initial, st, value.Model{}))

	want := `
    @Test
    public void test0() throws Exception {
        pkg.Node __a = new pkg.Node();
        pkg.Node __b = __a;
        __set(__a, __a, "next");
        pkg.Nodes.link(__a, __b);
    }
`
	if diff := cmp.Diff(want, g.Emit()); diff != "" {
		t.Errorf("generated test mismatch (-want +got):\n%s", diff)
	}
}

func TestArrayLengthFromModel(t *testing.T) {
	initial, st := entry(t, value.Signature{Class: "pkg/Arrays", Descriptor: "([I)I", Name: "head"}, true, "arr")
	r := lazyinit.NewResolver(classes(t), nil, nil)
	_, err := r.Resolve(st, ref(t, st, "arr"), lazyinit.Candidate{Kind: lazyinit.Expand})
	require.NoError(t, err)

	f, err := st.Factory()
	require.NoError(t, err)
	length, ok := f.Lookup(value.MustParseOrigin("arr.length"))
	require.True(t, ok)
	elem, err := f.Primitive(value.TypeInt, value.MustParseOrigin("arr[0]"))
	require.NoError(t, err)
	assume(t, st, value.MustBinary(value.GT, length.(value.Primitive), value.IntOf(0)))
	assume(t, st, value.MustBinary(value.GT, elem, value.IntOf(5)))
	require.NoError(t, st.Return(value.MustBinary(value.ADD, elem, value.IntOf(1))))

	model := value.Model{}
	require.NoError(t, model.Set(length.(*value.PrimitiveSymbolicAtomic), value.IntOf(1)))
	require.NoError(t, model.Set(elem, value.IntOf(6)))

	g := NewGenerator(nil)
	require.NoError(t, g.FormatState(initial, st, model))

	want := `
    @Test
    public void test0() throws Exception {
        int V1 = (int) 1;
        int[] __arr = new int[V1];
        int V2 = (int) 6;
        __arr[0] = V2;
        int returnedValue = pkg.Arrays.head(__arr);
        assertTrue(returnedValue == (V2 + 1));
    }
`
	if diff := cmp.Diff(want, g.Emit()); diff != "" {
		t.Errorf("generated test mismatch (-want +got):\n%s", diff)
	}
}

func TestDefaultArguments(t *testing.T) {
	initial, st := entry(t, value.Signature{Class: "pkg/Task", Descriptor: "(IJZLjava/lang/String;)V", Name: "run"}, false)
	require.NoError(t, st.Return(nil))

	g := NewGenerator(nil)
	require.NoError(t, g.FormatState(initial, st, nil))
	assert.Contains(t, g.Emit(), "        new pkg.Task().run(0, 0L, false, null);\n")
}

func TestSkipSafety(t *testing.T) {
	initial, final, model := emptyListPath(t)
	final.SetIdentifier(".1.2", 3)
	delete(model, "{V1}")

	g := NewGenerator(nil)
	require.NoError(t, g.FormatState(initial, final, model))

	want := "    //Unable to generate test case 0 for state .1.2[3] (no numeric solution from the solver)\n"
	assert.Equal(t, want, g.Emit())
	for _, forbidden := range []string{"new ", "isEmpty", "assert", "__set"} {
		assert.NotContains(t, g.Emit(), forbidden)
	}
	assert.Equal(t, 1, g.Count())
}

func TestUnreadableStateDoesNotCorruptEarlierCases(t *testing.T) {
	initial, final, model := emptyListPath(t)
	g := NewGenerator(nil)
	require.NoError(t, g.FormatState(initial, final, model))
	before := g.Emit()

	initial2, final2, model2 := emptyListPath(t)
	final2.Release()
	require.NoError(t, g.FormatState(initial2, final2, model2))

	out := g.Emit()
	require.True(t, strings.HasPrefix(out, before))
	assert.Equal(t, "    //Unable to generate test case 1 for state .1[0] (state is not readable)\n", out[len(before):])
}

func TestInvariantViolationIsReturned(t *testing.T) {
	initial, st := entry(t, value.Signature{Class: "pkg/Nodes", Descriptor: "()Lpkg/Node;", Name: "make"}, true)
	require.NoError(t, st.Return(value.RefTo(99)))

	g := NewGenerator(nil)
	err := g.FormatState(initial, st, nil)
	assert.ErrorIs(t, err, heap.ErrNoObject)
	assert.Empty(t, g.Emit())
}

func TestReferenceReturns(t *testing.T) {
	initial, st := entry(t, value.Signature{Class: "pkg/List", Descriptor: "()Lpkg/Node;", Name: "getHead"}, false)
	r := lazyinit.NewResolver(classes(t), nil, nil)
	_, err := r.Resolve(st, ref(t, st, "this"), lazyinit.Candidate{Kind: lazyinit.Expand})
	require.NoError(t, err)
	head := ref(t, st, "this.head")
	_, err = r.Resolve(st, head, lazyinit.Candidate{Kind: lazyinit.Expand})
	require.NoError(t, err)
	require.NoError(t, st.Return(head))

	g := NewGenerator(nil)
	require.NoError(t, g.FormatState(initial, st, nil))
	out := g.Emit()
	assert.Contains(t, out, "        pkg.List __this = new pkg.List();\n")
	assert.Contains(t, out, "        __set(__this, new pkg.Node(), \"head\");\n")
	assert.Contains(t, out, "        pkg.Node returnedValue = __this.getHead();\n")
	assert.Contains(t, out, "        assertTrue(returnedValue == ((pkg.Node) __get(__this, \"head\")));\n")

	// 方法内新建的对象没有 origin
	initial, st = entry(t, value.Signature{Class: "pkg/Nodes", Descriptor: "()Lpkg/Node;", Name: "make"}, true)
	h, err := st.Heap()
	require.NoError(t, err)
	obj := h.Allocate("pkg/Node", value.Origin{})
	require.NoError(t, st.Return(value.RefTo(obj.Pos)))
	g.Cleanup()
	require.NoError(t, g.FormatState(initial, st, nil))
	assert.Contains(t, g.Emit(), "        assertNotNull(returnedValue);\n")
}

func TestPreInitClausesSkipped(t *testing.T) {
	initial, st := entry(t, value.Signature{Class: "pkg/Lists", Descriptor: "()V", Name: "reset"}, true)
	f, err := st.Factory()
	require.NoError(t, err)
	hidden, err := f.Primitive(value.TypeInt, value.MustParseOrigin("pre_init.count"))
	require.NoError(t, err)
	assume(t, st, value.MustBinary(value.GT, hidden, value.IntOf(0)))
	pc, err := st.PathCondition()
	require.NoError(t, err)
	pc.AssumeClassInitialized("pkg/Lists")
	require.NoError(t, st.Return(nil))

	g := NewGenerator(nil)
	require.NoError(t, g.FormatState(initial, st, nil))
	out := g.Emit()
	assert.NotContains(t, out, "pre_init")
	assert.NotContains(t, out, "Unable")
	assert.Contains(t, out, "        pkg.Lists.reset();\n")
}

var declaration = regexp.MustCompile(`(?m)^\s+int (__\w+) = \(int\) (-?\d+);$`)

func TestModelRoundTrip(t *testing.T) {
	initial, st := entry(t, value.Signature{Class: "pkg/Math", Descriptor: "(II)I", Name: "sum"}, true, "x", "y")
	x := prim(t, st, "x")
	y := prim(t, st, "y")
	conds := []value.Primitive{
		value.MustBinary(value.GT, x, value.IntOf(3)),
		value.MustBinary(value.EQ, value.MustBinary(value.ADD, x, y), value.IntOf(10)),
	}
	for _, c := range conds {
		assume(t, st, c)
	}
	require.NoError(t, st.Return(value.MustBinary(value.ADD, x, y)))

	pc, err := st.PathCondition()
	require.NoError(t, err)
	model, err := solver.ModelFor(context.Background(), solver.NewLocalSolver(nil), pc)
	require.NoError(t, err)

	g := NewGenerator(nil)
	require.NoError(t, g.FormatState(initial, st, model))
	out := g.Emit()
	assert.Contains(t, out, "pkg.Math.sum(__x, __y)")
	assert.Contains(t, out, "assertTrue(returnedValue == (__x + __y));")

	// 从生成的声明中读回取值, 代入每个条件
	byVar := map[string]*value.PrimitiveSymbolicAtomic{"__x": x, "__y": y}
	parsed := value.Model{}
	for _, m := range declaration.FindAllStringSubmatch(out, -1) {
		sym, ok := byVar[m[1]]
		require.True(t, ok, m[1])
		n, err := strconv.ParseInt(m[2], 10, 32)
		require.NoError(t, err)
		require.NoError(t, parsed.Set(sym, value.IntOf(int32(n))))
	}
	require.Len(t, parsed, 2)
	for _, c := range conds {
		v, err := parsed.Eval(c)
		require.NoError(t, err)
		assert.True(t, v.Bool(), "%s is false under %s", c, parsed)
	}
}

func TestPrologueEpilogueAndCleanup(t *testing.T) {
	g := NewGenerator(nil)
	g.FormatPrologue("pkg/List")
	initial, final, model := emptyListPath(t)
	require.NoError(t, g.FormatState(initial, final, model))
	require.NoError(t, g.FormatState(initial, final, model))
	g.FormatEpilogue()

	out := g.Emit()
	assert.True(t, strings.HasPrefix(out, "import org.junit.Test;\nimport static org.junit.Assert.*;\n"))
	assert.Contains(t, out, "public class ListTest {\n")
	assert.Contains(t, out, "public void test0()")
	assert.Contains(t, out, "public void test1()")
	assert.True(t, strings.HasSuffix(out, "    }\n}\n"))
	assert.Equal(t, 2, g.Count())

	g.Cleanup()
	assert.Empty(t, g.Emit())
	assert.Equal(t, 0, g.Count())
	require.NoError(t, g.FormatState(initial, final, model))
	assert.Contains(t, g.Emit(), "public void test0()")
}

func TestFormatBatchMatchesSequential(t *testing.T) {
	var paths []Path
	for i := 0; i < 9; i++ {
		initial, final, model := emptyListPath(t)
		if i%4 == 1 {
			model = nil
		}
		final.SetIdentifier(".1."+strconv.Itoa(i+1), i)
		paths = append(paths, Path{Initial: initial, Final: final, Model: model})
	}

	seq := NewGenerator(nil)
	for _, p := range paths {
		require.NoError(t, seq.FormatState(p.Initial, p.Final, p.Model))
	}

	par := NewGenerator(nil)
	require.NoError(t, par.FormatBatch(context.Background(), paths, 3))
	if diff := cmp.Diff(seq.Emit(), par.Emit()); diff != "" {
		t.Errorf("batch output differs from sequential output (-seq +batch):\n%s", diff)
	}
	assert.Equal(t, seq.Count(), par.Count())
}

func TestFormatBatchCancelled(t *testing.T) {
	initial, final, model := emptyListPath(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	paths := make([]Path, 64)
	for i := range paths {
		paths[i] = Path{Initial: initial, Final: final, Model: model}
	}
	g := NewGenerator(nil)
	err := g.FormatBatch(ctx, paths, 1)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, g.Emit())
}

func TestNewArrayExpression(t *testing.T) {
	assert.Equal(t, "new int[n]", newArray("[I", "n"))
	assert.Equal(t, "new pkg.Node[n][]", newArray("[[Lpkg/Node;", "n"))
	assert.Equal(t, "__pre_init", rootVar("pre-init"))
}
