package serializer

import (
	"github.com/lk2023060901/garden-serializer/internal/json"
	"github.com/lk2023060901/garden-serializer/internal/serializer/event"
	"github.com/lk2023060901/garden-serializer/internal/serializer/exclusion"
	"github.com/lk2023060901/garden-serializer/internal/serializer/metadata"
	"github.com/lk2023060901/garden-serializer/internal/serializer/subscriber"
	"github.com/lk2023060901/garden-serializer/pkg/log"
	"github.com/lk2023060901/garden-serializer/pkg/util/conc"
	"github.com/lk2023060901/garden-serializer/pkg/util/merr"
)

// Builder 根据 Options 组装 Serializer。
//
// 默认注册代理解析订阅者、JSON 与 Protobuf 两种 Visitor，以及默认跳过策略组合。
// Builder 不是并发安全的，只应在启动阶段使用。
type Builder struct {
	registry          *metadata.Registry
	opts              Options
	visitors          map[string]Visitor
	subscribers       []event.Subscriber
	listeners         []event.Listener
	exclusion         event.ExclusionStrategy
	contextOpts       []event.ContextOption
	defaultSubscriber bool
	logger            *log.MLogger
}

// NewBuilder 创建 Builder。registry 描述所有已知类，未注册的类型名都被视为虚拟类型。
func NewBuilder(registry *metadata.Registry) *Builder {
	return &Builder{
		registry:          registry,
		opts:              DefaultOptions(),
		visitors:          make(map[string]Visitor),
		exclusion:         exclusion.Default(),
		defaultSubscriber: true,
	}
}

func (b *Builder) WithOptions(opts Options) *Builder {
	b.opts = opts
	return b
}

// SetVisitor 注册或覆盖某种格式的 Visitor。
func (b *Builder) SetVisitor(format string, v Visitor) *Builder {
	b.visitors[format] = v
	return b
}

// AddSubscriber 追加订阅者，注册顺序在默认订阅者之后。
func (b *Builder) AddSubscriber(s event.Subscriber) *Builder {
	b.subscribers = append(b.subscribers, s)
	return b
}

func (b *Builder) AddListener(l event.Listener) *Builder {
	b.listeners = append(b.listeners, l)
	return b
}

// SetExclusionStrategy 替换跳过策略，nil 表示从不跳过。
func (b *Builder) SetExclusionStrategy(s event.ExclusionStrategy) *Builder {
	b.exclusion = s
	return b
}

// SetDefaultContextOptions 追加每次序列化都会应用的上下文选项，在配置文件的默认值之后生效。
func (b *Builder) SetDefaultContextOptions(opts ...event.ContextOption) *Builder {
	b.contextOpts = append(b.contextOpts, opts...)
	return b
}

// WithDefaultSubscriber 控制是否注册代理解析订阅者。
func (b *Builder) WithDefaultSubscriber(v bool) *Builder {
	b.defaultSubscriber = v
	return b
}

func (b *Builder) WithLogger(logger *log.MLogger) *Builder {
	b.logger = logger
	return b
}

// Build 校验配置并创建 Serializer。
func (b *Builder) Build() (*Serializer, error) {
	if b.registry == nil {
		return nil, merr.WrapErrParameterMissing("registry")
	}
	if err := b.opts.Validate(); err != nil {
		return nil, err
	}
	engine, _ := json.ParseEngine(b.opts.JSON.Engine)

	visitors := map[string]Visitor{
		FormatJSON:     NewJSONVisitor(json.New(engine, b.opts.JSON.EscapeHTML)),
		FormatProtobuf: ProtoVisitor{},
	}
	for format, v := range b.visitors {
		if v == nil {
			return nil, merr.WrapErrParameterMissing("visitor", format)
		}
		visitors[format] = v
	}

	dispatcher := event.NewDispatcher()
	if b.defaultSubscriber {
		proxySubscriber := subscriber.NewProxySubscriber(b.registry,
			subscriber.WithSkipVirtualTypeInit(b.opts.Proxy.SkipVirtualTypeInit),
			subscriber.WithInitializeExcluded(b.opts.Proxy.InitializeExcluded),
		)
		if b.logger != nil {
			proxySubscriber.SetLogger(b.logger.With(log.FieldComponent("proxy_subscriber")))
		}
		if err := dispatcher.AddSubscriber(proxySubscriber); err != nil {
			return nil, err
		}
	}
	for _, s := range b.subscribers {
		if err := dispatcher.AddSubscriber(s); err != nil {
			return nil, err
		}
	}
	for _, l := range b.listeners {
		if err := dispatcher.AddListener(l); err != nil {
			return nil, err
		}
	}

	contextOpts := append(b.opts.DefaultContext.Serialization.contextOptions(), b.contextOpts...)
	s := &Serializer{
		registry:    b.registry,
		factory:     metadata.NewFactory(b.registry),
		dispatcher:  dispatcher,
		visitors:    visitors,
		exclusion:   b.exclusion,
		contextOpts: contextOpts,
		debug:       b.opts.Debug,
		pool:        conc.NewPool[[]byte](b.opts.Workers, b.opts.Pool.poolOptions()...),
	}
	if b.logger != nil {
		s.SetLogger(b.logger.With(log.FieldComponent("serializer")))
	} else {
		s.BindComponent("serializer")
	}
	return s, nil
}
