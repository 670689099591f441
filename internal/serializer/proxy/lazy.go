package proxy

import (
	"sync"

	"github.com/lk2023060901/garden-serializer/internal/json"
	"github.com/lk2023060901/garden-serializer/pkg/util/merr"
)

// Loader 加载被代理的真实数据。
type Loader func() (any, error)

// LazyObject 是对象代理的参考实现。
//
// 加载成功后结果被缓存，之后的 Load 不再调用 loader；
// 加载失败不缓存，下一次 Load 会重试。
type LazyObject struct {
	mu        sync.Mutex
	backend   Backend
	class     string
	realClass string
	loader    Loader
	target    any
	loaded    bool
	loads     int
}

var _ Proxy = (*LazyObject)(nil)

// NewLazyObject 创建一个对象代理。class 为代理自身的类名，realClass 为被代理实体的类名。
func NewLazyObject(backend Backend, class, realClass string, loader Loader) *LazyObject {
	return &LazyObject{
		backend:   backend,
		class:     class,
		realClass: realClass,
		loader:    loader,
	}
}

func (o *LazyObject) ProxyBackend() Backend {
	return o.backend
}

// ClassName 返回代理自身的类名，宿主用它推断声明类型。
func (o *LazyObject) ClassName() string {
	return o.class
}

func (o *LazyObject) RealClass() string {
	return o.realClass
}

func (o *LazyObject) Load() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.loaded {
		return nil
	}
	if o.loader == nil {
		return merr.WrapErrParameterMissing("loader")
	}
	o.loads++
	target, err := o.loader()
	if err != nil {
		return err
	}
	o.target = target
	o.loaded = true
	return nil
}

func (o *LazyObject) IsLoaded() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.loaded
}

// Target 返回已加载的真实数据，未加载时返回 false。
func (o *LazyObject) Target() (any, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.target, o.loaded
}

// LoadCount 返回实际调用 loader 的次数。
func (o *LazyObject) LoadCount() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.loads
}

// MarshalJSON 按需加载并编码真实数据。
func (o *LazyObject) MarshalJSON() ([]byte, error) {
	if err := o.Load(); err != nil {
		return nil, err
	}
	target, _ := o.Target()
	return json.Marshal(target)
}

// LazyCollection 是集合代理的参考实现，元素在编码时才加载。
type LazyCollection struct {
	mu      sync.Mutex
	backend Backend
	class   string
	loader  func() ([]any, error)
	items   []any
	loaded  bool
}

var _ Collection = (*LazyCollection)(nil)

// NewLazyCollection 创建一个集合代理。
func NewLazyCollection(backend Backend, class string, loader func() ([]any, error)) *LazyCollection {
	return &LazyCollection{backend: backend, class: class, loader: loader}
}

func (c *LazyCollection) CollectionBackend() Backend {
	return c.backend
}

func (c *LazyCollection) ClassName() string {
	return c.class
}

func (c *LazyCollection) IsLoaded() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loaded
}

// Items 加载并返回集合元素。
func (c *LazyCollection) Items() ([]any, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.loaded {
		return c.items, nil
	}
	if c.loader == nil {
		return nil, merr.WrapErrParameterMissing("loader")
	}
	items, err := c.loader()
	if err != nil {
		return nil, err
	}
	c.items = items
	c.loaded = true
	return items, nil
}

func (c *LazyCollection) MarshalJSON() ([]byte, error) {
	items, err := c.Items()
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []any{}
	}
	return json.Marshal(items)
}
