package log

import (
	"go.uber.org/zap"
)

const (
	FieldNameModule    = "module"
	FieldNameComponent = "component"
	FieldNameEvent     = "event"
	FieldNameClass     = "class"
	FieldNameFormat    = "format"
	FieldNameType      = "type"
	FieldNameVersion   = "version"
	FieldNameBackend   = "backend"
	FieldNameTraceID   = "traceID"
)

// FieldModule 返回一个包含模块名的 zap 字段。
func FieldModule(module string) zap.Field {
	return zap.String(FieldNameModule, module)
}

// FieldComponent 返回一个包含组件名的 zap 字段。
func FieldComponent(component string) zap.Field {
	return zap.String(FieldNameComponent, component)
}

// FieldEvent 返回事件名字段，例如 serializer.pre_serialize。
func FieldEvent(name string) zap.Field {
	return zap.String(FieldNameEvent, name)
}

// FieldClass 返回类名字段。
func FieldClass(class string) zap.Field {
	return zap.String(FieldNameClass, class)
}

// FieldFormat 返回序列化格式字段。
func FieldFormat(format string) zap.Field {
	return zap.String(FieldNameFormat, format)
}

// FieldType 返回类型描述字段，参数需实现 fmt.Stringer。
func FieldType(t interface{ String() string }) zap.Field {
	return zap.Stringer(FieldNameType, t)
}

// FieldVersion 返回序列化版本字段。
func FieldVersion(version string) zap.Field {
	return zap.String(FieldNameVersion, version)
}

// FieldBackend 返回代理后端字段。
func FieldBackend(backend interface{ String() string }) zap.Field {
	return zap.Stringer(FieldNameBackend, backend)
}

func FieldTraceID(traceID string) zap.Field {
	return zap.String(FieldNameTraceID, traceID)
}
