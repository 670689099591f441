// Package json 封装项目内使用的 JSON 编解码实现。
//
// 默认使用 bytedance/sonic，EngineJSONIter 提供与 encoding/json 行为一致的
// json-iterator 实现，供 sonic 不支持的平台或需要严格兼容的场景使用。
package json

import (
	"strings"

	"github.com/bytedance/sonic"
	jsoniter "github.com/json-iterator/go"
)

// Engine 标识具体的 JSON 实现。
type Engine string

const (
	EngineSonic    Engine = "sonic"
	EngineJSONIter Engine = "jsoniter"
)

// API 是各实现共同满足的最小接口。
type API interface {
	Marshal(v any) ([]byte, error)
	Unmarshal(data []byte, v any) error
}

var (
	sonicStd      API = sonic.ConfigStd
	sonicFast     API = sonic.ConfigFastest
	jsoniterStd   API = jsoniter.ConfigCompatibleWithStandardLibrary
	jsoniterNoEsc API = jsoniter.Config{
		EscapeHTML:             false,
		SortMapKeys:            true,
		ValidateJsonRawMessage: true,
	}.Froze()
)

// ParseEngine 将配置中的字符串转换为 Engine，未知值返回 false。
func ParseEngine(s string) (Engine, bool) {
	switch Engine(strings.ToLower(strings.TrimSpace(s))) {
	case "", EngineSonic:
		return EngineSonic, true
	case EngineJSONIter:
		return EngineJSONIter, true
	default:
		return "", false
	}
}

// New 根据引擎与是否转义 HTML 返回对应的实现。
func New(engine Engine, escapeHTML bool) API {
	switch engine {
	case EngineJSONIter:
		if escapeHTML {
			return jsoniterStd
		}
		return jsoniterNoEsc
	default:
		if escapeHTML {
			return sonicStd
		}
		return sonicFast
	}
}

// Marshal 使用默认实现编码。
func Marshal(v any) ([]byte, error) {
	return sonicStd.Marshal(v)
}

// Unmarshal 使用默认实现解码。
func Unmarshal(data []byte, v any) error {
	return sonicStd.Unmarshal(data, v)
}
