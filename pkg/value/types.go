// Package value 定义符号执行使用的值模型 (符号值、表达式、引用) 以及类型描述符工具
package value

import (
	"fmt"
	"strings"
)

// ==================== 类型描述符 ====================

// 基本类型描述符 (JVM 语法)
const (
	Boolean  = 'Z'
	Byte     = 'B'
	Char     = 'C'
	Short    = 'S'
	Int      = 'I'
	Long     = 'J'
	Float    = 'F'
	Double   = 'D'
	Void     = 'V'
	ClassRef = 'L'
	Array    = '['
	TypeEnd  = ';'
)

// 常用描述符
const (
	TypeBoolean = "Z"
	TypeByte    = "B"
	TypeChar    = "C"
	TypeShort   = "S"
	TypeInt     = "I"
	TypeLong    = "J"
	TypeFloat   = "F"
	TypeDouble  = "D"
	TypeVoid    = "V"
	TypeObject  = "Ljava/lang/Object;"
)

// IsPrimitive 判断描述符是否为基本类型
func IsPrimitive(desc string) bool {
	if len(desc) != 1 {
		return false
	}
	switch desc[0] {
	case Boolean, Byte, Char, Short, Int, Long, Float, Double:
		return true
	}
	return false
}

// IsPrimitiveIntegral 判断是否为整型 (包括 boolean 与 char)
func IsPrimitiveIntegral(desc string) bool {
	if len(desc) != 1 {
		return false
	}
	switch desc[0] {
	case Boolean, Byte, Char, Short, Int, Long:
		return true
	}
	return false
}

// IsPrimitiveFloating 判断是否为浮点类型
func IsPrimitiveFloating(desc string) bool {
	return desc == TypeFloat || desc == TypeDouble
}

// IsArray 判断描述符 (或类名) 是否为数组
func IsArray(desc string) bool {
	return strings.HasPrefix(desc, "[")
}

// IsReference 判断是否为 L...; 形式的类引用
func IsReference(desc string) bool {
	return len(desc) > 2 && desc[0] == ClassRef && desc[len(desc)-1] == TypeEnd
}

// IsReferenceOrArray 判断描述符是否表示引用值
func IsReferenceOrArray(desc string) bool {
	return IsReference(desc) || IsArray(desc)
}

// ArrayMemberType 返回数组元素类型描述符
func ArrayMemberType(desc string) (string, error) {
	if !IsArray(desc) {
		return "", fmt.Errorf("%q is not an array type", desc)
	}
	return desc[1:], nil
}

// ClassName 从 L...; 描述符中取出内部类名, 数组描述符原样返回
func ClassName(desc string) string {
	if IsReference(desc) {
		return desc[1 : len(desc)-1]
	}
	return desc
}

// Descriptor 将类名 (或数组描述符) 转换为描述符
func Descriptor(className string) string {
	if IsArray(className) || IsPrimitive(className) || IsReference(className) {
		return className
	}
	return "L" + className + ";"
}

// JavaClass 返回 Java 源码中的类型写法, 例如 [Ljava/util/List; -> java.util.List[]
func JavaClass(desc string) string {
	dims := 0
	for dims < len(desc) && desc[dims] == Array {
		dims++
	}
	member := desc[dims:]
	var base string
	switch {
	case IsPrimitive(member):
		base = primitiveJavaNames[member[0]]
	case IsReference(member):
		base = ClassName(member)
	default:
		base = member
	}
	base = strings.NewReplacer("/", ".", "$", ".").Replace(base)
	return base + strings.Repeat("[]", dims)
}

var primitiveJavaNames = map[byte]string{
	Boolean: "boolean",
	Byte:    "byte",
	Char:    "char",
	Short:   "short",
	Int:     "int",
	Long:    "long",
	Float:   "float",
	Double:  "double",
	Void:    "void",
}

// SplitParametersDescriptors 拆分方法描述符的参数列表, 例如 (I[JLa/B;)V -> [I [J La/B;]
func SplitParametersDescriptors(methodDesc string) ([]string, error) {
	if !strings.HasPrefix(methodDesc, "(") {
		return nil, fmt.Errorf("malformed method descriptor %q", methodDesc)
	}
	end := strings.IndexByte(methodDesc, ')')
	if end < 0 {
		return nil, fmt.Errorf("malformed method descriptor %q", methodDesc)
	}
	params := methodDesc[1:end]
	var out []string
	for i := 0; i < len(params); {
		start := i
		for i < len(params) && params[i] == Array {
			i++
		}
		if i >= len(params) {
			return nil, fmt.Errorf("malformed method descriptor %q", methodDesc)
		}
		if params[i] == ClassRef {
			semi := strings.IndexByte(params[i:], TypeEnd)
			if semi < 0 {
				return nil, fmt.Errorf("malformed method descriptor %q", methodDesc)
			}
			i += semi
		}
		i++
		out = append(out, params[start:i])
	}
	return out, nil
}

// SplitReturnValueDescriptor 返回方法描述符的返回值描述符
func SplitReturnValueDescriptor(methodDesc string) (string, error) {
	end := strings.IndexByte(methodDesc, ')')
	if end < 0 || end == len(methodDesc)-1 {
		return "", fmt.Errorf("malformed method descriptor %q", methodDesc)
	}
	return methodDesc[end+1:], nil
}

// IsWide 判断类型在局部变量表中是否占两个槽位
func IsWide(desc string) bool {
	return desc == TypeLong || desc == TypeDouble
}

// Signature 方法签名
type Signature struct {
	Class      string `yaml:"class" json:"class"`
	Descriptor string `yaml:"descriptor" json:"descriptor"`
	Name       string `yaml:"name" json:"name"`
}

// String 返回 Class:Descriptor:Name 形式
func (s Signature) String() string {
	return s.Class + ":" + s.Descriptor + ":" + s.Name
}

// ReturnType 返回方法的返回类型描述符
func (s Signature) ReturnType() (string, error) {
	return SplitReturnValueDescriptor(s.Descriptor)
}
