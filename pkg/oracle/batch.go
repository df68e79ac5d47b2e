package oracle

import (
	"context"
	"log"
	"runtime"
	"sync"

	"pathgen/pkg/state"
	"pathgen/pkg/value"
)

// Path 一条结束的路径及其模型 (可以为 nil)
type Path struct {
	Initial *state.State
	Final   *state.State
	Model   value.Model
}

type caseResult struct {
	text string
	err  error
}

// FormatBatch 并行生成多条路径的测试方法, 按输入顺序追加到输出
// 每个用例使用私有缓冲, 编号与逐条调用 FormatState 相同
// 返回按顺序第一个失败用例的错误, 其余用例照常输出
func (g *Generator) FormatBatch(ctx context.Context, paths []Path, workers int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	if workers > len(paths) {
		workers = len(paths)
	}
	base := g.counter
	results := make([]caseResult, len(paths))

	var wg sync.WaitGroup
	jobs := make(chan int, workers*2)
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				p := paths[i]
				text, err := renderCase(&g.opts, base+i, p.Initial, p.Final, p.Model)
				results[i] = caseResult{text: text, err: err}
			}
		}()
	}

	var cancelled error
dispatch:
	for i := range paths {
		select {
		case jobs <- i:
		case <-ctx.Done():
			cancelled = ctx.Err()
			break dispatch
		}
	}
	close(jobs)
	wg.Wait()
	if cancelled != nil {
		return cancelled
	}

	var first error
	for _, r := range results {
		g.out.WriteString(r.text)
		if r.err != nil && first == nil {
			first = r.err
		}
	}
	g.counter += len(paths)
	if g.opts.Verbose {
		log.Printf("[Oracle] Generated %d test cases with %d workers", len(paths), workers)
	}
	return first
}
