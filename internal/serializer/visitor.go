package serializer

import (
	"google.golang.org/protobuf/proto"

	"github.com/lk2023060901/garden-serializer/internal/json"
	"github.com/lk2023060901/garden-serializer/pkg/util/merr"
)

// 内置的序列化格式。
const (
	FormatJSON     = "json"
	FormatProtobuf = "protobuf"
)

// Visitor 负责某一种格式下“对象 <-> 字节流”的转换。
//
// 预序列化阶段结束后，宿主把最终的值交给 Visitor 编码；
// nil 与被跳过策略排除的值在上下文开启 SerializeNull 时输出 Null()，否则输出空字节。
type Visitor interface {
	Format() string

	// Marshal 将任意对象编码为字节序列。
	Marshal(v any) ([]byte, error)

	// Unmarshal 将字节序列解码到目标对象，v 通常为指针类型。
	Unmarshal(data []byte, v any) error

	// Null 返回该格式下空值的编码。
	Null() []byte
}

// JSONVisitor 使用 internal/json 实现 JSON 编解码。
type JSONVisitor struct {
	api json.API
}

var _ Visitor = (*JSONVisitor)(nil)

// NewJSONVisitor 使用指定的 JSON 实现创建 Visitor，api 为 nil 时使用默认实现。
func NewJSONVisitor(api json.API) *JSONVisitor {
	if api == nil {
		api = json.New(json.EngineSonic, true)
	}
	return &JSONVisitor{api: api}
}

func (*JSONVisitor) Format() string {
	return FormatJSON
}

func (v *JSONVisitor) Marshal(value any) ([]byte, error) {
	return v.api.Marshal(value)
}

func (v *JSONVisitor) Unmarshal(data []byte, value any) error {
	return v.api.Unmarshal(data, value)
}

func (*JSONVisitor) Null() []byte {
	return []byte("null")
}

// ProtoVisitor 使用 Protobuf 进行二进制序列化。
//
// 注意：传入/传出的对象必须实现 proto.Message。
type ProtoVisitor struct{}

var _ Visitor = ProtoVisitor{}

func (ProtoVisitor) Format() string {
	return FormatProtobuf
}

func (ProtoVisitor) Marshal(v any) ([]byte, error) {
	msg, ok := v.(proto.Message)
	if !ok {
		return nil, merr.WrapErrParameterInvalidMsg("protobuf visitor requires proto.Message, got %T", v)
	}
	return proto.Marshal(msg)
}

func (ProtoVisitor) Unmarshal(data []byte, v any) error {
	msg, ok := v.(proto.Message)
	if !ok {
		return merr.WrapErrParameterInvalidMsg("protobuf visitor requires proto.Message, got %T", v)
	}
	return proto.Unmarshal(data, msg)
}

// Null 返回空消息的编码，即零长度字节序列。
func (ProtoVisitor) Null() []byte {
	return []byte{}
}
