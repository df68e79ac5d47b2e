package rules

import (
	"errors"
	"fmt"
	"log"

	"pathgen/pkg/state"
	"pathgen/pkg/value"
)

// ErrAlreadyFired 同一规则在同一 (origin, 位置) 上再次触发
var ErrAlreadyFired = errors.New("rule already fired")

// Invoker 执行触发方法 (由解释器提供), 可能再次进入引用解析
type Invoker interface {
	InvokeTrigger(st *state.State, method value.Signature, target value.Reference, parameter string) error
}

// InvokerFunc 函数形式的 Invoker
type InvokerFunc func(st *state.State, method value.Signature, target value.Reference, parameter string) error

// InvokeTrigger 实现 Invoker
func (f InvokerFunc) InvokeTrigger(st *state.State, method value.Signature, target value.Reference, parameter string) error {
	return f(st, method, target, parameter)
}

// Engine 规则匹配与触发, 只读共享
type Engine struct {
	table   *Table
	Verbose bool
}

// NewEngine 创建引擎, table 为 nil 时不匹配任何规则
func NewEngine(table *Table) *Engine {
	if table == nil {
		table, _ = NewTable()
	}
	return &Engine{table: table}
}

// Table 规则表
func (e *Engine) Table() *Table { return e.table }

// Match 按注册顺序返回匹配的规则
// 展开规则要求类名相同, 别名与 null 规则不看类型
func (e *Engine) Match(origin value.Origin, className string, kind Kind) []*Rule {
	var out []*Rule
	for _, r := range e.table.ForOrigin(origin) {
		if r.Kind != kind {
			continue
		}
		if kind == Expands && !r.Satisfies(className) {
			continue
		}
		out = append(out, r)
	}
	return out
}

// FiredKey 触发记录的 key: (规则, origin, 位置)
func FiredKey(r *Rule, origin value.Origin, target value.Reference) string {
	pos := value.NullPosition
	if c, ok := target.(*value.ReferenceConcrete); ok {
		pos = c.Pos
	}
	return fmt.Sprintf("%d|%s|%d", r.id, origin, pos)
}

// Fire 触发单条规则
func (e *Engine) Fire(st *state.State, r *Rule, origin value.Origin, target value.Reference, inv Invoker) error {
	key := FiredKey(r, origin, target)
	if st.Fired(key) {
		return fmt.Errorf("%w: %s on %s", ErrAlreadyFired, r, target)
	}
	// 先记录再调用, 触发方法重入解析时不会重复触发
	if err := st.MarkFired(key); err != nil {
		return err
	}
	if e.Verbose {
		log.Printf("[Rules] %s fires on %s", r, target)
	}
	if inv == nil {
		return fmt.Errorf("no invoker for trigger %s", r.Method)
	}
	if err := inv.InvokeTrigger(st, r.Method, target, r.Parameter); err != nil {
		return fmt.Errorf("trigger %s: %w", r.Method, err)
	}
	return nil
}

// MatchAndFire 触发所有匹配且尚未触发的规则, 返回本次触发数量
func (e *Engine) MatchAndFire(st *state.State, origin value.Origin, className string, kind Kind, target value.Reference, inv Invoker) (int, error) {
	fired := 0
	for _, r := range e.Match(origin, className, kind) {
		if st.Fired(FiredKey(r, origin, target)) {
			continue
		}
		if err := e.Fire(st, r, origin, target, inv); err != nil {
			return fired, err
		}
		fired++
	}
	return fired, nil
}
