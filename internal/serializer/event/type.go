package event

import (
	"strings"

	"github.com/lk2023060901/garden-serializer/pkg/util/merr"
)

// GenericCollectionType 是集合代理被重新归类后使用的通用集合类型名。
const GenericCollectionType = "ArrayCollection"

// Type 描述调度器当前认定的值类型。
//
// Name 为类名或虚拟类型名（仅由自定义 handler 识别的符号名）；
// Params 为有序的辅助类型参数，例如 ArrayCollection<Dog> 中的 Dog。
type Type struct {
	Name   string
	Params []Type
}

// NewType 使用类型名与参数构造 Type。
func NewType(name string, params ...Type) Type {
	return Type{Name: name, Params: params}
}

// WithName 返回替换类型名、保留参数的新 Type。
func (t Type) WithName(name string) Type {
	return Type{Name: name, Params: cloneParams(t.Params)}
}

// Clone 深拷贝参数列表。
func (t Type) Clone() Type {
	return Type{Name: t.Name, Params: cloneParams(t.Params)}
}

// Equal 判断两个 Type 是否完全一致（类型名区分大小写）。
func (t Type) Equal(other Type) bool {
	if t.Name != other.Name || len(t.Params) != len(other.Params) {
		return false
	}
	for i := range t.Params {
		if !t.Params[i].Equal(other.Params[i]) {
			return false
		}
	}
	return true
}

// IsZero 判断是否为空类型。
func (t Type) IsZero() bool {
	return t.Name == "" && len(t.Params) == 0
}

// String 以 Name<P1, P2> 的形式输出。
func (t Type) String() string {
	if len(t.Params) == 0 {
		return t.Name
	}
	var sb strings.Builder
	sb.WriteString(t.Name)
	sb.WriteByte('<')
	for i, p := range t.Params {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(p.String())
	}
	sb.WriteByte('>')
	return sb.String()
}

func cloneParams(params []Type) []Type {
	if params == nil {
		return nil
	}
	out := make([]Type, len(params))
	for i := range params {
		out[i] = params[i].Clone()
	}
	return out
}

// ParseType 解析 Name<P1, P2<Q>> 形式的类型记法。
func ParseType(notation string) (Type, error) {
	p := typeParser{src: notation}
	t, err := p.parseType()
	if err != nil {
		return Type{}, err
	}
	p.skipSpaces()
	if p.pos != len(p.src) {
		return Type{}, merr.WrapErrTypeNotation(notation, "unexpected trailing characters")
	}
	return t, nil
}

type typeParser struct {
	src string
	pos int
}

func (p *typeParser) skipSpaces() {
	for p.pos < len(p.src) && p.src[p.pos] == ' ' {
		p.pos++
	}
}

func (p *typeParser) parseType() (Type, error) {
	p.skipSpaces()
	start := p.pos
	for p.pos < len(p.src) {
		c := p.src[p.pos]
		if c == '<' || c == '>' || c == ',' || c == ' ' {
			break
		}
		p.pos++
	}
	name := p.src[start:p.pos]
	if name == "" {
		return Type{}, merr.WrapErrTypeNotation(p.src, "empty type name")
	}

	t := Type{Name: name}
	p.skipSpaces()
	if p.pos >= len(p.src) || p.src[p.pos] != '<' {
		return t, nil
	}
	p.pos++ // '<'
	for {
		param, err := p.parseType()
		if err != nil {
			return Type{}, err
		}
		t.Params = append(t.Params, param)
		p.skipSpaces()
		if p.pos >= len(p.src) {
			return Type{}, merr.WrapErrTypeNotation(p.src, "unterminated type parameters")
		}
		switch p.src[p.pos] {
		case ',':
			p.pos++
		case '>':
			p.pos++
			return t, nil
		default:
			return Type{}, merr.WrapErrTypeNotation(p.src, "unexpected character")
		}
	}
}
