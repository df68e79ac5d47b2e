package solver

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"

	"pathgen/pkg/value"
)

type cacheEntry struct {
	model value.Model
	unsat bool
}

// CachingSolver 以条件文本为 key 缓存模型与不可满足结论 (LRU)
// 并发安全, 可在多个 worker 之间共享
type CachingSolver struct {
	inner Solver
	cache *lru.Cache[string, cacheEntry]

	hits   atomic.Int64
	misses atomic.Int64
}

// NewCachingSolver 包装 inner, size 为缓存条目数
func NewCachingSolver(inner Solver, size int) (*CachingSolver, error) {
	cache, err := lru.New[string, cacheEntry](size)
	if err != nil {
		return nil, fmt.Errorf("failed to create model cache: %w", err)
	}
	return &CachingSolver{inner: inner, cache: cache}, nil
}

// CacheKey 条件序列的缓存 key
// 符号 ID 在路径内分配, 同一前缀的路径得到相同的 ID, 因此文本可以直接作为 key
func CacheKey(conds []value.Primitive) string {
	parts := make([]string, len(conds))
	for i, c := range conds {
		parts[i] = c.String()
	}
	return strings.Join(parts, " && ")
}

// Solve 实现 Solver
func (cs *CachingSolver) Solve(ctx context.Context, conds []value.Primitive) (value.Model, error) {
	key := CacheKey(conds)
	if e, ok := cs.cache.Get(key); ok {
		cs.hits.Add(1)
		if e.unsat {
			return nil, ErrUnsat
		}
		return e.model.Clone(), nil
	}
	cs.misses.Add(1)

	m, err := cs.inner.Solve(ctx, conds)
	switch {
	case err == nil:
		cs.cache.Add(key, cacheEntry{model: m.Clone()})
	case errors.Is(err, ErrUnsat):
		cs.cache.Add(key, cacheEntry{unsat: true})
	}
	return m, err
}

// HitRate 缓存命中次数与未命中次数
func (cs *CachingSolver) HitRate() (hits, misses int64) {
	return cs.hits.Load(), cs.misses.Load()
}

// Len 缓存条目数
func (cs *CachingSolver) Len() int { return cs.cache.Len() }
