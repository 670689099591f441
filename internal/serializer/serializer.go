// Package serializer 是宿主序列化框架：为每个值派发预序列化事件，
// 按最终类型决定是否跳过，再交由对应格式的 Visitor 编码。
package serializer

import (
	"context"
	"fmt"

	"github.com/cockroachdb/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/lk2023060901/garden-serializer/internal/serializer/event"
	"github.com/lk2023060901/garden-serializer/internal/serializer/metadata"
	"github.com/lk2023060901/garden-serializer/internal/serializer/proxy"
	"github.com/lk2023060901/garden-serializer/pkg/log"
	"github.com/lk2023060901/garden-serializer/pkg/metrics"
	"github.com/lk2023060901/garden-serializer/pkg/util/conc"
	"github.com/lk2023060901/garden-serializer/pkg/util/merr"
)

const tracerName = "garden-serializer"

// Serializer 可被多个 goroutine 并发使用，每次调用拥有独立的事件与上下文。
type Serializer struct {
	log.Binder

	registry    *metadata.Registry
	factory     *metadata.Factory
	dispatcher  event.Dispatcher
	visitors    map[string]Visitor
	exclusion   event.ExclusionStrategy
	contextOpts []event.ContextOption
	debug       bool
	pool        *conc.Pool[[]byte]
}

// SerializeOption 调整单次序列化调用。
type SerializeOption func(*serializeOptions)

type serializeOptions struct {
	typ         *event.Type
	notation    string
	contextOpts []event.ContextOption
}

// WithType 显式指定声明类型，覆盖自动推断。
func WithType(t event.Type) SerializeOption {
	return func(o *serializeOptions) {
		typ := t.Clone()
		o.typ = &typ
		o.notation = ""
	}
}

// WithTypeNotation 以 Name<P1, P2> 记法指定声明类型。
// 记法在 Serialize 时解析，非法时返回 ErrTypeNotation。
func WithTypeNotation(notation string) SerializeOption {
	return func(o *serializeOptions) {
		o.typ = nil
		o.notation = notation
	}
}

// WithContextOptions 追加本次调用的上下文选项。
func WithContextOptions(opts ...event.ContextOption) SerializeOption {
	return func(o *serializeOptions) {
		o.contextOpts = append(o.contextOpts, opts...)
	}
}

// Dispatcher 返回序列化器使用的调度器，可用于在运行时追加监听器。
func (s *Serializer) Dispatcher() event.Dispatcher {
	return s.dispatcher
}

func (s *Serializer) Registry() *metadata.Registry {
	return s.registry
}

// NewContext 按默认上下文配置创建一次调用的上下文，opts 最后生效。
func (s *Serializer) NewContext(ctx context.Context, format string, opts ...event.ContextOption) *event.Context {
	base := []event.ContextOption{
		event.WithStdContext(ctx),
		event.WithFormat(format),
		event.WithExclusionStrategy(s.exclusion),
		event.WithMetadataFactory(s.factory),
	}
	base = append(base, s.contextOpts...)
	return event.NewContext(append(base, opts...)...)
}

// declaredType 推断值的声明类型：显式的 ClassName、注册表中的类名，最后是 Go 类型名。
// nil 指针不会调用其方法。
func (s *Serializer) declaredType(v any) event.Type {
	if named, ok := v.(interface{ ClassName() string }); ok && !proxy.IsNil(v) {
		return event.NewType(named.ClassName())
	}
	if name, ok := s.registry.NameOf(v); ok {
		return event.NewType(name)
	}
	return event.NewType(fmt.Sprintf("%T", v))
}

func (o *serializeOptions) declaredType(s *Serializer, v any) (event.Type, error) {
	switch {
	case o.typ != nil:
		return *o.typ, nil
	case o.notation != "":
		return event.ParseType(o.notation)
	default:
		return s.declaredType(v), nil
	}
}

// Serialize 以 format 编码 v。
//
// nil 与被跳过策略排除的最终类型按上下文的 SerializeNull 输出格式空值或空字节；
// 代理在加载后以真实数据编码。强制加载失败等预序列化阶段的错误会原样返回。
func (s *Serializer) Serialize(ctx context.Context, v any, format string, opts ...SerializeOption) (data []byte, err error) {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, span := otel.Tracer(tracerName).Start(ctx, "Serializer.Serialize",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(attribute.String("format", format)))
	defer span.End()

	logger := s.Logger()
	if span.SpanContext().HasTraceID() {
		traceID := span.SpanContext().TraceID().String()
		ctx = log.WithTraceID(ctx, traceID)
		logger = logger.With(log.FieldTraceID(traceID))
	}
	defer func() {
		if r := recover(); r != nil {
			span.SetStatus(codes.Error, fmt.Sprint(r))
			metrics.SerializeTotal.WithLabelValues(format, metrics.StatusFail).Inc()
			panic(r)
		}
		status := metrics.StatusSuccess
		if err != nil {
			err = merr.WrapErrAsInputErrorWhen(err, merr.ErrFormatUnsupported, merr.ErrTypeNotation)
			status = metrics.StatusFail
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			fields := []zap.Field{
				log.FieldFormat(format),
				zap.Int32("code", merr.Code(err)),
				zap.Stringer("errorType", merr.GetErrorType(err)),
				zap.Error(err),
			}
			if merr.IsCanceledOrTimeout(err) {
				logger.Debug("serialize canceled", fields...)
			} else {
				logger.Warn("serialize failed", fields...)
			}
		}
		metrics.SerializeTotal.WithLabelValues(format, status).Inc()
	}()

	if err := ctx.Err(); err != nil {
		return nil, errors.Wrap(err, "serialize")
	}
	visitor, ok := s.visitors[format]
	if !ok {
		return nil, merr.WrapErrFormatUnsupported(format)
	}

	o := &serializeOptions{}
	for _, opt := range opts {
		opt(o)
	}
	typ, err := o.declaredType(s, v)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.String("type", typ.String()))

	sctx := s.NewContext(ctx, format, o.contextOpts...)
	pre := event.NewPreSerializeEvent(sctx, v, typ)
	if err := s.dispatcher.Dispatch(event.PreSerialize, typ.Name, format, pre); err != nil {
		return nil, err
	}
	final := pre.Type()

	if proxy.IsNil(v) || s.shouldSkip(sctx, final) {
		data = s.null(sctx, visitor)
	} else {
		data, err = s.visit(visitor, v, final)
		if err != nil {
			return nil, err
		}
	}

	post := event.NewPostSerializeEvent(sctx, v, final, data)
	if err := s.dispatcher.Dispatch(event.PostSerialize, final.Name, format, post); err != nil {
		return nil, err
	}
	if s.debug {
		logger.Debug("serialized value",
			log.FieldFormat(format), log.FieldType(typ), zap.Stringer("final", final), zap.Int("size", len(post.Data)))
	}
	return post.Data, nil
}

func (s *Serializer) shouldSkip(sctx *event.Context, final event.Type) bool {
	strategy := sctx.ExclusionStrategy()
	if strategy == nil {
		return false
	}
	meta, ok := s.factory.MetadataForClass(final.Name)
	if !ok {
		return false
	}
	return strategy.ShouldSkipClass(meta, sctx)
}

func (s *Serializer) null(sctx *event.Context, visitor Visitor) []byte {
	if !sctx.SerializeNull() {
		return []byte{}
	}
	return visitor.Null()
}

func (s *Serializer) visit(visitor Visitor, v any, final event.Type) ([]byte, error) {
	if p, ok := proxy.AsObject(v); ok && p.IsLoaded() {
		if t, ok := v.(interface{ Target() (any, bool) }); ok {
			if target, loaded := t.Target(); loaded {
				v = target
			}
		}
	}
	data, err := visitor.Marshal(v)
	if err != nil {
		return nil, merr.WrapErrVisitFailed(visitor.Format(), final.String(), err)
	}
	return data, nil
}

// SerializeAll 在协程池中并发编码 values，结果与输入一一对应。
// 任意一个值失败时返回全部失败合并后的错误，成功的结果仍会保留。
// 任务中的 panic 以错误形式返回；非阻塞池已满时，被拒绝的值在调用方 goroutine 中编码。
func (s *Serializer) SerializeAll(ctx context.Context, values []any, format string, opts ...SerializeOption) ([][]byte, error) {
	results := make([][]byte, len(values))
	errs := make([]error, len(values))
	futures := make([]*conc.Future[[]byte], len(values))
	for i, v := range values {
		future := s.pool.Submit(func() ([]byte, error) {
			return s.Serialize(ctx, v, format, opts...)
		})
		if future.Done() && merr.IsRetryableErr(future.Err()) {
			s.Logger().RatedDebug(10, "serialization pool exhausted, serializing inline", zap.Int("capacity", s.pool.Cap()))
			results[i], errs[i] = s.Serialize(ctx, v, format, opts...)
			continue
		}
		futures[i] = future
	}

	for i, future := range futures {
		if future == nil {
			continue
		}
		results[i], errs[i] = future.Await()
	}
	for i := range errs {
		if errs[i] != nil {
			results[i] = nil
		}
	}
	return results, merr.Combine(errs...)
}

// Deserialize 以 format 将 data 解码到 v。
func (s *Serializer) Deserialize(data []byte, v any, format string) error {
	visitor, ok := s.visitors[format]
	if !ok {
		return merr.WrapErrFormatUnsupported(format)
	}
	return visitor.Unmarshal(data, v)
}

// Close 释放协程池。
func (s *Serializer) Close() {
	s.pool.Release()
}
