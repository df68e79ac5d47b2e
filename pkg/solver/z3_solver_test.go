//go:build z3
// +build z3

package solver

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pathgen/pkg/value"
)

func newZ3(t *testing.T) *Z3Solver {
	t.Helper()
	zs, err := NewZ3Solver(&Config{Strategy: "z3", Timeout: "2s"})
	require.NoError(t, err)
	t.Cleanup(zs.Close)
	return zs
}

func TestZ3SolvesNegation(t *testing.T) {
	f := value.NewFactory()
	x := intSymbol(t, f, "x")
	conds := []value.Primitive{
		value.MustBinary(value.EQ, value.MustUnary(value.NEG, x), value.IntOf(1234)),
	}

	m, err := newZ3(t).Solve(context.Background(), conds)
	require.NoError(t, err)
	assertSatisfies(t, m, conds)
	v, ok := m.Get(x)
	require.True(t, ok)
	assert.Equal(t, int64(-1234), v.Int64())
}

func TestZ3Unsat(t *testing.T) {
	f := value.NewFactory()
	x := intSymbol(t, f, "x")
	conds := []value.Primitive{
		value.MustBinary(value.GT, x, value.IntOf(10)),
		value.MustBinary(value.LT, x, value.IntOf(5)),
	}
	_, err := newZ3(t).Solve(context.Background(), conds)
	assert.ErrorIs(t, err, ErrUnsat)
}

func TestZ3DivisionFallsBackToLocal(t *testing.T) {
	f := value.NewFactory()
	x := intSymbol(t, f, "x")
	conds := []value.Primitive{
		value.MustBinary(value.EQ, value.MustBinary(value.DIV, x, value.IntOf(2)), value.IntOf(1)),
	}

	zs := newZ3(t)
	_, err := zs.Solve(context.Background(), conds)
	assert.ErrorIs(t, err, ErrUnknown)

	h := &HybridSolver{z3: zs, local: NewLocalSolver(nil)}
	m, err := h.Solve(context.Background(), conds)
	require.NoError(t, err)
	assertSatisfies(t, m, conds)
}
