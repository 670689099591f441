// Package proxy 定义延迟加载占位对象（代理）的能力模型。
//
// 不同持久化后端的“是代理”能力被统一为一个带后端标识的接口，
// 通过能力检查而不是枚举接口名来识别。
package proxy

import (
	"fmt"
	"reflect"
)

// Backend 标识代理所属的持久化后端。
type Backend int

const (
	BackendORM Backend = iota + 1
	BackendLegacyORM
	BackendLazyLoading
	BackendDocument
	BackendTree
)

var backendNames = map[Backend]string{
	BackendORM:         "orm",
	BackendLegacyORM:   "legacy_orm",
	BackendLazyLoading: "lazy_loading",
	BackendDocument:    "document",
	BackendTree:        "tree",
}

func (b Backend) String() string {
	if name, ok := backendNames[b]; ok {
		return name
	}
	return fmt.Sprintf("backend(%d)", int(b))
}

// ObjectBackends 是支持对象代理的后端，顺序即注册顺序。
var ObjectBackends = []Backend{BackendORM, BackendLegacyORM, BackendLazyLoading}

// CollectionBackends 是支持集合代理的后端，顺序即注册顺序。
var CollectionBackends = []Backend{BackendORM, BackendDocument, BackendTree}

// Proxy 是对象代理能力：代替一个尚未加载的实体。
type Proxy interface {
	// ProxyBackend 返回代理所属的后端。
	ProxyBackend() Backend
	// RealClass 返回被代理实体的真实类名。
	RealClass() string
	// Load 强制加载真实数据，重复调用是安全的空操作。
	Load() error
	IsLoaded() bool
}

// Collection 是集合代理能力的标记接口。
type Collection interface {
	CollectionBackend() Backend
}

// AsObject 判断 v 是否为对象代理。持有 nil 指针的代理不算。
func AsObject(v any) (Proxy, bool) {
	p, ok := v.(Proxy)
	if !ok || IsNil(v) {
		return nil, false
	}
	return p, true
}

// AsCollection 判断 v 是否为集合代理。持有 nil 指针的代理不算。
func AsCollection(v any) (Collection, bool) {
	c, ok := v.(Collection)
	if !ok || IsNil(v) {
		return nil, false
	}
	return c, true
}

// IsNil 判断 v 是否为 nil，包括装在非 nil 接口中的 nil 指针、map、slice 等。
func IsNil(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan, reflect.Interface:
		return rv.IsNil()
	default:
		return false
	}
}

// Capability 按后端匹配代理能力，结构上满足调度器的能力过滤接口。
type Capability struct {
	backend    Backend
	collection bool
}

// ObjectCapability 返回匹配指定后端对象代理的能力。
func ObjectCapability(backend Backend) Capability {
	return Capability{backend: backend}
}

// CollectionCapability 返回匹配指定后端集合代理的能力。
func CollectionCapability(backend Backend) Capability {
	return Capability{backend: backend, collection: true}
}

func (c Capability) Name() string {
	if c.collection {
		return c.backend.String() + ".collection"
	}
	return c.backend.String() + ".proxy"
}

func (c Capability) Backend() Backend {
	return c.backend
}

func (c Capability) IsCollection() bool {
	return c.collection
}

func (c Capability) Match(v any) bool {
	if c.collection {
		coll, ok := AsCollection(v)
		return ok && coll.CollectionBackend() == c.backend
	}
	p, ok := AsObject(v)
	return ok && p.ProxyBackend() == c.backend
}
