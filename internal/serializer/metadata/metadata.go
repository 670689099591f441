package metadata

import (
	"reflect"
	"strings"
	"sync"
)

// ClassMetadata 是跳过策略读取的类级元数据。Type 为注册时的 Go 类型（已去掉指针）。
type ClassMetadata struct {
	Name     string
	Type     reflect.Type
	Excluded bool
	Groups   []string
	Since    string
	Until    string
}

// Factory 基于 Registry 解析并缓存类元数据。
type Factory struct {
	registry *Registry
	cache    sync.Map // map[string]*ClassMetadata，key 为小写类名
}

// NewFactory 创建一个 Factory。
func NewFactory(registry *Registry) *Factory {
	return &Factory{registry: registry}
}

// MetadataForClass 返回 class 的元数据。
// 未注册、只被 Declare 过的类，或 Factory 没有 Registry 时返回 false。
// 该方法只读取注册信息，不会触发任何加载。
func (f *Factory) MetadataForClass(class string) (*ClassMetadata, bool) {
	if f == nil || f.registry == nil || class == "" {
		return nil, false
	}
	key := strings.ToLower(class)
	if meta, ok := f.cache.Load(key); ok {
		return meta.(*ClassMetadata), true
	}

	entry, ok := f.registry.lookup(class)
	if !ok || entry.typ == nil {
		return nil, false
	}

	meta := buildClassMetadata(entry)
	actual, _ := f.cache.LoadOrStore(key, meta)
	return actual.(*ClassMetadata), true
}

// Reset 清空缓存，主要用于测试。
func (f *Factory) Reset() {
	f.cache.Range(func(key, _ any) bool {
		f.cache.Delete(key)
		return true
	})
}

func buildClassMetadata(entry *classEntry) *ClassMetadata {
	return &ClassMetadata{
		Name:     entry.name,
		Type:     entry.typ,
		Excluded: entry.opts.excluded,
		Groups:   append([]string(nil), entry.opts.groups...),
		Since:    entry.opts.since,
		Until:    entry.opts.until,
	}
}
