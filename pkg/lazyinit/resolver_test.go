package lazyinit

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pathgen/pkg/heap"
	"pathgen/pkg/pathcond"
	"pathgen/pkg/rules"
	"pathgen/pkg/state"
	"pathgen/pkg/value"
)

func listClasses(t *testing.T) *ClassTable {
	t.Helper()
	ct, err := NewClassTable(
		Class{Name: "pkg/List", Fields: []FieldDecl{{Name: "head", Type: "Lpkg/Node;"}, {Name: "size", Type: "I"}}},
		Class{Name: "pkg/Node", Fields: []FieldDecl{{Name: "next", Type: "Lpkg/Node;"}, {Name: "val", Type: "I"}}},
		Class{Name: "pkg/Base", Super: "pkg/Node", Abstract: true},
		Class{Name: "pkg/Special", Super: "pkg/Base", Fields: []FieldDecl{{Name: "tag", Type: "Z"}}},
	)
	require.NoError(t, err)
	return ct
}

func listState(t *testing.T) (*state.State, *value.ReferenceSymbolic) {
	t.Helper()
	st, err := state.New(value.Signature{Class: "pkg/List", Descriptor: "([I)I", Name: "size"}, false, "arr")
	require.NoError(t, err)
	frame, err := st.RootFrame()
	require.NoError(t, err)
	this, ok := frame.ByName(state.This)
	require.True(t, ok)
	return st, this.Value.(*value.ReferenceSymbolic)
}

func field(t *testing.T, st *state.State, path string) *value.ReferenceSymbolic {
	t.Helper()
	v, err := st.Lookup(value.MustParseOrigin(path))
	require.NoError(t, err)
	ref, ok := v.(*value.ReferenceSymbolic)
	require.True(t, ok, "%s holds %v", path, v)
	return ref
}

func TestClassTable(t *testing.T) {
	ct := listClasses(t)
	assert.True(t, ct.IsSubclass("pkg/Special", "pkg/Node"))
	assert.True(t, ct.IsSubclass("pkg/Special", ObjectClass))
	assert.False(t, ct.IsSubclass("pkg/Node", "pkg/Special"))
	assert.False(t, ct.IsSubclass("[I", "pkg/Node"))
	assert.Equal(t, []string{"pkg/Node", "pkg/Special"}, ct.ConcreteSubclasses("pkg/Node"))
	assert.Equal(t, []string{"pkg/Unknown"}, ct.ConcreteSubclasses("pkg/Unknown"))
	assert.Equal(t, []string{ObjectClass, "pkg/List", "pkg/Node", "pkg/Special"}, ct.ConcreteSubclasses(ObjectClass))

	var empty *ClassTable
	assert.Equal(t, []string{ObjectClass}, empty.ConcreteSubclasses(ObjectClass))

	names := []string{}
	for _, f := range ct.Fields("pkg/Special") {
		names = append(names, f.Name)
	}
	assert.Equal(t, []string{"next", "val", "tag"}, names)

	var none *ClassTable
	assert.Nil(t, none.Fields("pkg/Node"))
	assert.True(t, none.IsSubclass("pkg/Node", "pkg/Node"))
	assert.False(t, none.IsSubclass("pkg/Special", "pkg/Node"))

	_, err := NewClassTable(Class{Name: "a/A", Super: "a/B"}, Class{Name: "a/B", Super: "a/A"})
	assert.Error(t, err)
	_, err = NewClassTable(Class{Name: "a/A"}, Class{Name: "a/A"})
	assert.Error(t, err)
	_, err = NewClassTable(Class{Name: "a/A", Fields: []FieldDecl{{Name: "x", Type: "Q"}}})
	assert.Error(t, err)
}

func TestExpandFillsFields(t *testing.T) {
	st, this := listState(t)
	r := NewResolver(listClasses(t), nil, nil)

	target, err := r.Resolve(st, this, Candidate{Kind: Expand, Class: "pkg/List"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), target.Pos)

	obj, err := st.Object(target.Pos)
	require.NoError(t, err)
	assert.Equal(t, []string{"head", "size"}, obj.Slots())
	assert.Equal(t, "{ROOT}:this", obj.Origin.String())

	head := field(t, st, "this.head")
	assert.Equal(t, "{ROOT}:this.head", head.Origin().String())
	size, err := st.Lookup(value.MustParseOrigin("this.size"))
	require.NoError(t, err)
	assert.Equal(t, value.TypeInt, size.Type())
}

func TestArrayExpansion(t *testing.T) {
	st, _ := listState(t)
	arr := field(t, st, "arr")
	r := NewResolver(nil, nil, nil)

	target, err := r.Resolve(st, arr, Candidate{Kind: Expand})
	require.NoError(t, err)

	pc, _ := st.PathCondition()
	clauses := pc.Clauses()
	require.Len(t, clauses, 2)
	exp := clauses[0].(*pathcond.AssumeExpands)
	assert.Equal(t, "[I", exp.Class)
	assert.Equal(t, target.Pos, exp.Pos)

	length := clauses[1].(*pathcond.Assume)
	syms, err := value.SymbolsIn(length.Condition)
	require.NoError(t, err)
	require.Len(t, syms, 1)
	assert.Equal(t, "{ROOT}:arr.length", syms[0].Origin().String())
	assert.Equal(t, "({V2} >= 0)", length.Condition.String())

	n, err := st.Lookup(value.MustParseOrigin("arr.length"))
	require.NoError(t, err)
	assert.Same(t, syms[0], n)
}

func TestResolveIsMonotonic(t *testing.T) {
	st, this := listState(t)
	r := NewResolver(listClasses(t), nil, nil)

	first, err := r.Resolve(st, this, Candidate{Kind: Expand, Class: "pkg/List"})
	require.NoError(t, err)
	pc, _ := st.PathCondition()
	n := pc.Len()

	for _, c := range []Candidate{{Kind: Null}, {Kind: Expand, Class: "pkg/List"}, {Kind: Alias, Pos: 1}} {
		again, err := r.Resolve(st, this, c)
		require.NoError(t, err)
		assert.Equal(t, first.Pos, again.Pos)
	}
	assert.Equal(t, n, pc.Len())

	cands, err := r.Candidates(st, this, Options{})
	require.NoError(t, err)
	assert.Equal(t, []Candidate{{Kind: Alias, Pos: 1}}, cands)
}

func TestAlias(t *testing.T) {
	st, this := listState(t)
	r := NewResolver(listClasses(t), nil, nil)
	_, err := r.Resolve(st, this, Candidate{Kind: Expand, Class: "pkg/List"})
	require.NoError(t, err)
	head := field(t, st, "this.head")

	_, err = r.Resolve(st, head, Candidate{Kind: Alias, Pos: 9})
	assert.ErrorIs(t, err, heap.ErrNoObject)

	_, err = r.Resolve(st, head, Candidate{Kind: Alias, Pos: 1})
	assert.ErrorIs(t, err, ErrIncompatible)

	_, err = r.Resolve(st, head, Candidate{Kind: Expand, Class: "pkg/Node"})
	require.NoError(t, err)
	next := field(t, st, "this.head.next")
	target, err := r.Resolve(st, next, Candidate{Kind: Alias, Pos: 2})
	require.NoError(t, err)
	assert.Equal(t, int64(2), target.Pos)

	pc, _ := st.PathCondition()
	c, ok := pc.Resolution(next)
	require.True(t, ok)
	assert.IsType(t, &pathcond.AssumeAliases{}, c)
}

func TestExpandRejectsBadClass(t *testing.T) {
	st, this := listState(t)
	r := NewResolver(listClasses(t), nil, nil)
	_, err := r.Resolve(st, this, Candidate{Kind: Expand, Class: "pkg/List"})
	require.NoError(t, err)
	head := field(t, st, "this.head")

	_, err = r.Resolve(st, head, Candidate{Kind: Expand, Class: "pkg/List"})
	assert.ErrorIs(t, err, ErrIncompatible)
	_, err = r.Resolve(st, head, Candidate{Kind: Expand, Class: "pkg/Base"})
	assert.ErrorIs(t, err, ErrIncompatible)
	_, err = r.Resolve(st, head, Candidate{Kind: Kind(9)})
	assert.ErrorIs(t, err, value.ErrUnsupportedValue)
}

func TestBranch(t *testing.T) {
	st, this := listState(t)
	r := NewResolver(listClasses(t), nil, nil)
	_, err := r.Resolve(st, this, Candidate{Kind: Expand, Class: "pkg/List"})
	require.NoError(t, err)
	head := field(t, st, "this.head")

	_, err = r.Branch(st, head, nil)
	assert.ErrorIs(t, err, ErrContradiction)

	cands, err := r.Candidates(st, head, Options{})
	require.NoError(t, err)
	assert.Equal(t, []Candidate{
		{Kind: Null},
		{Kind: Expand, Class: "pkg/Node"},
		{Kind: Expand, Class: "pkg/Special"},
	}, cands)

	succ, err := r.Branch(st, head, cands)
	require.NoError(t, err)
	require.Len(t, succ, 3)
	assert.Equal(t, ".1.1", succ[0].BranchIdentifier())
	assert.Equal(t, ".1.3", succ[2].BranchIdentifier())

	pc, _ := st.PathCondition()
	_, resolved := pc.Resolution(head)
	assert.False(t, resolved, "branching must not touch the original state")

	for i, s := range succ {
		spc, _ := s.PathCondition()
		_, ok := spc.Resolution(head)
		assert.True(t, ok, "successor %d", i)
	}

	// 单个候选沿用分支标识, 序号加一
	one, err := r.Branch(st, head, cands[:1])
	require.NoError(t, err)
	assert.Equal(t, ".1", one[0].BranchIdentifier())
	assert.Equal(t, 1, one[0].SequenceNumber())
}

func TestCandidatesAliasesAndNotNull(t *testing.T) {
	st, this := listState(t)
	r := NewResolver(listClasses(t), nil, nil)

	cands, err := r.Candidates(st, this, Options{})
	require.NoError(t, err)
	assert.Equal(t, []Candidate{{Kind: Expand, Class: "pkg/List"}}, cands)

	_, err = r.Resolve(st, this, Candidate{Kind: Expand, Class: "pkg/List"})
	require.NoError(t, err)
	head := field(t, st, "this.head")
	_, err = r.Resolve(st, head, Candidate{Kind: Expand, Class: "pkg/Special"})
	require.NoError(t, err)
	next := field(t, st, "this.head.next")

	cands, err = r.Candidates(st, next, Options{NotNull: map[string]bool{"{ROOT}:this.head.next": true}})
	require.NoError(t, err)
	assert.Equal(t, []Candidate{
		{Kind: Alias, Pos: 2},
		{Kind: Expand, Class: "pkg/Node"},
		{Kind: Expand, Class: "pkg/Special"},
	}, cands)
}

func TestTriggersReenterResolution(t *testing.T) {
	restore := value.Signature{Class: "pkg/Node", Descriptor: "()V", Name: "_restore"}
	tbl, err := rules.NewTable(
		rules.Rule{Kind: rules.Expands, Origin: "this.head", Class: "pkg/Node", Method: restore},
		rules.Rule{Kind: rules.Null, Origin: "this.head.next", Method: restore, Parameter: "tail"},
	)
	require.NoError(t, err)

	r := NewResolver(listClasses(t), rules.NewEngine(tbl), nil)
	var params []string
	r.SetInvoker(rules.InvokerFunc(func(st *state.State, m value.Signature, target value.Reference, param string) error {
		params = append(params, param)
		if target.(*value.ReferenceConcrete).IsNull() {
			return nil
		}
		// 触发方法访问新对象的 next 字段, 再次进入解析
		next := field(t, st, "this.head.next")
		_, err := r.Resolve(st, next, Candidate{Kind: Null})
		return err
	}))

	st, this := listState(t)
	_, err = r.Resolve(st, this, Candidate{Kind: Expand, Class: "pkg/List"})
	require.NoError(t, err)
	head := field(t, st, "this.head")
	_, err = r.Resolve(st, head, Candidate{Kind: Expand, Class: "pkg/Node"})
	require.NoError(t, err)

	pc, _ := st.PathCondition()
	clauses := pc.Clauses()
	require.Len(t, clauses, 3)
	assert.IsType(t, &pathcond.AssumeExpands{}, clauses[1])
	assert.IsType(t, &pathcond.AssumeNull{}, clauses[2])
	assert.Equal(t, []string{"", "tail"}, params)

	// 再次解析不追加子句也不再触发
	_, err = r.Resolve(st, head, Candidate{Kind: Expand, Class: "pkg/Node"})
	require.NoError(t, err)
	assert.Equal(t, 3, pc.Len())
	assert.Len(t, params, 2)

	// 展开为其他类不匹配展开规则
	st2, this2 := listState(t)
	_, err = r.Resolve(st2, this2, Candidate{Kind: Expand, Class: "pkg/List"})
	require.NoError(t, err)
	_, err = r.Resolve(st2, field(t, st2, "this.head"), Candidate{Kind: Expand, Class: "pkg/Special"})
	require.NoError(t, err)
	pc2, _ := st2.PathCondition()
	assert.Equal(t, 2, pc2.Len())
}

func TestResolveOnFrozenState(t *testing.T) {
	st, this := listState(t)
	r := NewResolver(nil, nil, nil)
	st.Freeze()
	_, err := r.Resolve(st, this, Candidate{Kind: Null})
	assert.ErrorIs(t, err, state.ErrFrozen)

	st.Release()
	_, err = r.Resolve(st, this, Candidate{Kind: Null})
	assert.ErrorIs(t, err, state.ErrUnreadable)
}
