// Package oracle 将结束的路径与模型具体化为可执行的 JUnit 4 测试
package oracle

import (
	"errors"
	"fmt"
	"log"
	"strings"

	"pathgen/pkg/state"
	"pathgen/pkg/value"
)

const indentUnit = "    "

// DefaultPreInitRoot 隐式初始化阶段符号的根
const DefaultPreInitRoot = "pre_init"

// Options 生成选项
type Options struct {
	// PreInitRoots 这些根下的子句属于隐式初始化, 生成时跳过
	PreInitRoots []string `yaml:"pre_init_roots" json:"pre_init_roots"`
	Verbose      bool     `yaml:"verbose" json:"verbose"`
}

// DefaultOptions 返回默认选项
func DefaultOptions() *Options {
	return &Options{PreInitRoots: []string{DefaultPreInitRoot}}
}

// Generator 一个输出单元 (测试类) 的生成器
// 非并发安全; 并行生成见 FormatBatch
type Generator struct {
	opts    Options
	out     strings.Builder
	counter int
}

// NewGenerator 创建生成器, opts 为 nil 时使用默认选项
func NewGenerator(opts *Options) *Generator {
	if opts == nil {
		opts = DefaultOptions()
	}
	return &Generator{opts: *opts}
}

const prologue = `import org.junit.Test;
import static org.junit.Assert.*;
import java.lang.*;
import java.util.*;
import java.lang.reflect.Array;
import java.lang.reflect.Field;

public class %sTest {
    private static Field __field(Class<?> c, String name) throws Exception {
        for (Class<?> k = c; k != null; k = k.getSuperclass()) {
            try {
                Field f = k.getDeclaredField(name);
                f.setAccessible(true);
                return f;
            } catch (NoSuchFieldException e) {
            }
        }
        throw new NoSuchFieldException(name);
    }

    private static int __index(String step) {
        return Integer.parseInt(step.substring(1, step.length() - 1));
    }

    private static Object __get(Object root, String... steps) throws Exception {
        Object o = root;
        for (String s : steps) {
            o = s.startsWith("[") ? Array.get(o, __index(s)) : __field(o.getClass(), s).get(o);
        }
        return o;
    }

    private static void __set(Object root, Object value, String... steps) throws Exception {
        Object o = __get(root, Arrays.copyOf(steps, steps.length - 1));
        String last = steps[steps.length - 1];
        if (last.startsWith("[")) {
            Array.set(o, __index(last), value);
        } else {
            __field(o.getClass(), last).set(o, value);
        }
    }
`

// FormatPrologue 输出测试类的开头与反射辅助方法
func (g *Generator) FormatPrologue(className string) {
	fmt.Fprintf(&g.out, prologue, testClassName(className))
}

// FormatEpilogue 输出测试类的结尾
func (g *Generator) FormatEpilogue() {
	g.out.WriteString("}\n")
}

// FormatState 为一条结束的路径生成一个测试方法
// 模型缺值或状态不可读时输出诊断注释并返回 nil; 内部不变式被破坏时不输出任何内容并返回错误
func (g *Generator) FormatState(initial, final *state.State, model value.Model) error {
	n := g.counter
	g.counter++
	text, err := renderCase(&g.opts, n, initial, final, model)
	g.out.WriteString(text)
	return err
}

// Emit 返回已生成的内容
func (g *Generator) Emit() string {
	return g.out.String()
}

// Cleanup 清空输出并重置计数, 生成器可以开始新的一批
func (g *Generator) Cleanup() {
	g.out.Reset()
	g.counter = 0
}

// Count 已处理的路径数 (含跳过的)
func (g *Generator) Count() int { return g.counter }

// renderCase 生成第 n 个测试方法的完整文本
func renderCase(opts *Options, n int, initial, final *state.State, model value.Model) (string, error) {
	if initial == nil || final == nil {
		return "", fmt.Errorf("test case %d: missing initial or final state", n)
	}
	tc := newTestCase(opts, n, initial, final, model)
	err := tc.render()
	if err == nil {
		return tc.b.String(), nil
	}

	var skip *skipError
	switch {
	case errors.As(err, &skip):
		if opts.Verbose {
			log.Printf("[Oracle] Skipping test case %d for state %s[%d]: %s",
				n, final.BranchIdentifier(), final.SequenceNumber(), skip.reason)
		}
		return stub(n, final, skip.reason), nil
	case errors.Is(err, state.ErrUnreadable):
		log.Printf("[Oracle] Warning: state %s[%d] is not readable, discarding test case %d",
			final.BranchIdentifier(), final.SequenceNumber(), n)
		return stub(n, final, "state is not readable"), nil
	}
	return "", fmt.Errorf("test case %d for state %s[%d]: %w",
		n, final.BranchIdentifier(), final.SequenceNumber(), err)
}

func stub(n int, final *state.State, reason string) string {
	return fmt.Sprintf("%s//Unable to generate test case %d for state %s[%d] (%s)\n",
		indentUnit, n, final.BranchIdentifier(), final.SequenceNumber(), reason)
}

// testClassName pkg/List -> ListTest 的前缀部分
func testClassName(className string) string {
	if i := strings.LastIndexAny(className, "/."); i >= 0 {
		className = className[i+1:]
	}
	return identifier(className)
}
