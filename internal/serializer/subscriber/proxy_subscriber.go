// Package subscriber 实现预序列化阶段的代理解析订阅者。
package subscriber

import (
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/lk2023060901/garden-serializer/internal/serializer/event"
	"github.com/lk2023060901/garden-serializer/internal/serializer/proxy"
	"github.com/lk2023060901/garden-serializer/pkg/log"
	"github.com/lk2023060901/garden-serializer/pkg/metrics"
	"github.com/lk2023060901/garden-serializer/pkg/util/merr"
)

// ClassLocator 判断一个类型名是否对应可加载的已知类。
// 未知类型名被视为虚拟类型。
type ClassLocator interface {
	Exists(class string) bool
}

// Option 配置 ProxySubscriber。
type Option func(*ProxySubscriber)

// WithSkipVirtualTypeInit 为 true 时，声明类型为虚拟类型的代理不会被强制加载。默认 true。
func WithSkipVirtualTypeInit(v bool) Option {
	return func(s *ProxySubscriber) {
		s.skipVirtualTypeInit = v
	}
}

// WithInitializeExcluded 为 false 时，加载前先询问跳过策略，被跳过的类不加载。默认 false。
func WithInitializeExcluded(v bool) Option {
	return func(s *ProxySubscriber) {
		s.initializeExcluded = v
	}
}

// ProxySubscriber 在预序列化阶段把代理对象还原为真实类型。
//
// 它只持有构造时确定的配置，可被多个并发的序列化调用共享。
type ProxySubscriber struct {
	log.Binder

	classes             ClassLocator
	skipVirtualTypeInit bool
	initializeExcluded  bool
}

var _ event.Subscriber = (*ProxySubscriber)(nil)

// NewProxySubscriber 创建订阅者。classes 为 nil 时所有类型名都被视为虚拟类型。
func NewProxySubscriber(classes ClassLocator, opts ...Option) *ProxySubscriber {
	s := &ProxySubscriber{
		classes:             classes,
		skipVirtualTypeInit: true,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.BindComponent("proxy_subscriber")
	return s
}

func (s *ProxySubscriber) isVirtual(name string) bool {
	return s.classes == nil || !s.classes.Exists(name)
}

// OnPreSerialize 解析代理的真实类型，必要时强制加载。
//
// 集合代理只重新归类为通用集合类型，从不加载。
// 除加载失败外，任何形状的输入都不会返回错误。
func (s *ProxySubscriber) OnPreSerialize(e event.Event, eventName, class, format string, _ event.Dispatcher) error {
	pe, ok := e.(*event.PreSerializeEvent)
	if !ok {
		return nil
	}
	typ := pe.Type()
	virtual := s.isVirtual(typ.Name)
	object := pe.Object()

	if _, ok := proxy.AsCollection(object); ok {
		if virtual {
			metrics.ProxyResolveTotal.WithLabelValues(metrics.OutcomeCollectionVirtual).Inc()
			return nil
		}
		pe.SetType(event.NewType(event.GenericCollectionType))
		metrics.ProxyResolveTotal.WithLabelValues(metrics.OutcomeCollectionReclassified).Inc()
		return nil
	}

	p, isProxy := proxy.AsObject(object)
	if !isProxy {
		metrics.ProxyResolveTotal.WithLabelValues(metrics.OutcomeNotProxy).Inc()
		return nil
	}
	if s.skipVirtualTypeInit && virtual {
		metrics.ProxyResolveTotal.WithLabelValues(metrics.OutcomeVirtualSkipped).Inc()
		return nil
	}

	logger := s.Logger().With(log.FieldEvent(eventName), log.FieldFormat(format), log.FieldType(typ))
	realClass := p.RealClass()

	if !s.initializeExcluded && !virtual && s.shouldSkip(pe.Context(), realClass, logger) {
		metrics.ProxyResolveTotal.WithLabelValues(metrics.OutcomePolicySkipped).Inc()
		logger.Debug("proxy class excluded, skip loading", log.FieldClass(realClass))
		return nil
	}

	wasLoaded := p.IsLoaded()
	start := time.Now()
	if err := p.Load(); err != nil {
		metrics.ProxyResolveTotal.WithLabelValues(metrics.OutcomeLoadFailed).Inc()
		logger.Warn("failed to load proxy", log.FieldClass(realClass), zap.Error(err))
		return merr.WrapErrProxyLoadFailed(realClass, err)
	}
	if !wasLoaded {
		metrics.ProxyLoadLatency.WithLabelValues(p.ProxyBackend().String()).
			Observe(float64(time.Since(start).Microseconds()) / 1000)
	}
	metrics.ProxyResolveTotal.WithLabelValues(metrics.OutcomeLoaded).Inc()

	if !virtual {
		pe.SetType(event.NewType(p.RealClass(), typ.Params...))
	}
	return nil
}

// shouldSkip 只读地询问跳过策略，元数据缺失视为没有意见。
func (s *ProxySubscriber) shouldSkip(ctx *event.Context, realClass string, logger *log.MLogger) bool {
	if ctx == nil || ctx.ExclusionStrategy() == nil || ctx.MetadataFactory() == nil {
		return false
	}
	meta, ok := ctx.MetadataFactory().MetadataForClass(realClass)
	if !ok {
		logger.RatedDebug(10, "metadata not found for proxy class", log.FieldClass(realClass))
		return false
	}
	return ctx.ExclusionStrategy().ShouldSkipClass(meta, ctx)
}

// OnPreSerializeTypedProxy 在代理以错误的注册类被派发时，以真实类重新派发一次。
//
// class 是调度器本次匹配所用的注册类。重新派发的事件以真实类为注册类，
// 再次进入本方法时命中类名相等的分支直接返回，递归深度最多为 1。
func (s *ProxySubscriber) OnPreSerializeTypedProxy(e event.Event, eventName, class, format string, d event.Dispatcher) error {
	pe, ok := e.(*event.PreSerializeEvent)
	if !ok {
		return nil
	}
	if s.isVirtual(pe.Type().Name) {
		return nil
	}
	object := pe.Object()
	if _, ok := proxy.AsCollection(object); ok {
		return nil
	}
	p, ok := proxy.AsObject(object)
	if !ok {
		return nil
	}

	target := p.RealClass()
	if strings.EqualFold(target, class) {
		return nil
	}

	pe.StopPropagation()
	redispatched := pe.WithType(event.NewType(target, pe.Type().Params...))
	metrics.ProxyRedispatchTotal.WithLabelValues(p.ProxyBackend().String()).Inc()
	s.Logger().RatedDebug(10, "re-dispatch proxy under real class",
		log.FieldEvent(eventName), log.FieldClass(target), log.FieldFormat(format), log.FieldBackend(p.ProxyBackend()))

	if err := d.Dispatch(eventName, target, format, redispatched); err != nil {
		return err
	}
	pe.SetType(redispatched.Type())
	return nil
}

// SubscribedEvents 返回注册表。
//
// 解析规则在前，覆盖所有集合与对象代理能力；重新派发规则在后，只绑定对象代理能力。
func (s *ProxySubscriber) SubscribedEvents() []event.Listener {
	listeners := make([]event.Listener, 0, len(proxy.CollectionBackends)+2*len(proxy.ObjectBackends))
	for _, backend := range proxy.CollectionBackends {
		listeners = append(listeners, event.Listener{
			Event:      event.PreSerialize,
			Capability: proxy.CollectionCapability(backend),
			Handler:    s.OnPreSerialize,
		})
	}
	for _, backend := range proxy.ObjectBackends {
		listeners = append(listeners, event.Listener{
			Event:      event.PreSerialize,
			Capability: proxy.ObjectCapability(backend),
			Handler:    s.OnPreSerialize,
		})
	}
	for _, backend := range proxy.ObjectBackends {
		listeners = append(listeners, event.Listener{
			Event:      event.PreSerialize,
			Capability: proxy.ObjectCapability(backend),
			Handler:    s.OnPreSerializeTypedProxy,
		})
	}
	return listeners
}
