package event

import (
	"context"

	"github.com/lk2023060901/garden-serializer/internal/serializer/metadata"
)

// ExclusionStrategy 决定某个类的数据是否应从输出中省略（跳过策略）。
type ExclusionStrategy interface {
	ShouldSkipClass(meta *metadata.ClassMetadata, ctx *Context) bool
}

// MetadataFactory 按类名解析类元数据。未知类返回 false。
type MetadataFactory interface {
	MetadataForClass(class string) (*metadata.ClassMetadata, bool)
}

// Context 是一次序列化调用的上下文。
//
// 它在事件之间共享，handler 只读取它；Clone 用于在并发序列化时为每个值派生独立副本。
type Context struct {
	ctx           context.Context
	format        string
	exclusion     ExclusionStrategy
	metadata      MetadataFactory
	groups        []string
	version       string
	attributes    map[string]any
	serializeNull bool
}

// ContextOption 用于配置 Context。
type ContextOption func(*Context)

func WithStdContext(ctx context.Context) ContextOption {
	return func(c *Context) {
		c.ctx = ctx
	}
}

func WithFormat(format string) ContextOption {
	return func(c *Context) {
		c.format = format
	}
}

// WithExclusionStrategy 设置跳过策略，nil 表示从不跳过。
func WithExclusionStrategy(strategy ExclusionStrategy) ContextOption {
	return func(c *Context) {
		c.exclusion = strategy
	}
}

func WithMetadataFactory(factory MetadataFactory) ContextOption {
	return func(c *Context) {
		c.metadata = factory
	}
}

func WithGroups(groups ...string) ContextOption {
	return func(c *Context) {
		c.groups = append([]string(nil), groups...)
	}
}

func WithVersion(version string) ContextOption {
	return func(c *Context) {
		c.version = version
	}
}

func WithAttribute(key string, value any) ContextOption {
	return func(c *Context) {
		if c.attributes == nil {
			c.attributes = make(map[string]any)
		}
		c.attributes[key] = value
	}
}

func WithSerializeNull(v bool) ContextOption {
	return func(c *Context) {
		c.serializeNull = v
	}
}

// NewContext 创建一个序列化上下文。
func NewContext(opts ...ContextOption) *Context {
	c := &Context{ctx: context.Background()}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Ctx 返回调用方的 context.Context，用于日志与链路追踪。
func (c *Context) Ctx() context.Context {
	if c == nil || c.ctx == nil {
		return context.Background()
	}
	return c.ctx
}

func (c *Context) Format() string {
	return c.format
}

// ExclusionStrategy 返回跳过策略，未配置时为 nil。
func (c *Context) ExclusionStrategy() ExclusionStrategy {
	return c.exclusion
}

// MetadataFactory 返回元数据解析器，未配置时为 nil。
func (c *Context) MetadataFactory() MetadataFactory {
	return c.metadata
}

func (c *Context) Groups() []string {
	return c.groups
}

func (c *Context) Version() string {
	return c.version
}

func (c *Context) Attribute(key string) (any, bool) {
	v, ok := c.attributes[key]
	return v, ok
}

// SerializeNull 表示 nil 与被跳过的值是否输出格式的空值，否则输出空字节。
func (c *Context) SerializeNull() bool {
	return c.serializeNull
}

// Clone 返回一个浅拷贝，opts 在拷贝上生效。
func (c *Context) Clone(opts ...ContextOption) *Context {
	clone := *c
	clone.groups = append([]string(nil), c.groups...)
	if c.attributes != nil {
		clone.attributes = make(map[string]any, len(c.attributes))
		for k, v := range c.attributes {
			clone.attributes[k] = v
		}
	}
	for _, opt := range opts {
		opt(&clone)
	}
	return &clone
}
