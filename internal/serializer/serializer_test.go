package serializer

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/suite"
	"go.opentelemetry.io/otel"
	otelcodes "go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/lk2023060901/garden-serializer/internal/serializer/event"
	"github.com/lk2023060901/garden-serializer/internal/serializer/metadata"
	"github.com/lk2023060901/garden-serializer/internal/serializer/proxy"
	"github.com/lk2023060901/garden-serializer/pkg/log"
	"github.com/lk2023060901/garden-serializer/pkg/metrics"
	"github.com/lk2023060901/garden-serializer/pkg/util/merr"
	"github.com/lk2023060901/garden-serializer/pkg/util/viper"
)

type dog struct {
	Name string `json:"name"`
}

type secret struct {
	Token string `json:"token"`
}

type owner struct {
	Name string `json:"name"`
}

type SerializerSuite struct {
	suite.Suite

	registry   *metadata.Registry
	serializer *Serializer
	finals     []string
}

func (s *SerializerSuite) SetupTest() {
	lg, _, err := log.InitTestLogger(s.T(), &log.Config{Level: "debug"})
	s.Require().NoError(err)

	s.registry = metadata.NewRegistry()
	s.registry.MustRegister("Dog", dog{})
	s.registry.MustRegister("Secret", secret{}, metadata.WithExcluded())
	s.registry.MustRegister("Owner", owner{}, metadata.WithGroups("admin"))
	s.Require().NoError(s.registry.Declare("AnimalProxy", "SecretProxy", "PersistentCollection"))

	s.finals = nil
	opts := DefaultOptions()
	opts.Debug = true
	s.serializer, err = NewBuilder(s.registry).
		WithOptions(opts).
		WithLogger(&log.MLogger{Logger: lg}).
		AddListener(event.Listener{
			Event: event.PostSerialize,
			Handler: func(e event.Event, _, _, _ string, _ event.Dispatcher) error {
				s.finals = append(s.finals, e.Type().String())
				return nil
			},
		}).
		Build()
	s.Require().NoError(err)
}

func (s *SerializerSuite) TearDownTest() {
	s.serializer.Close()
}

func newDogProxy() *proxy.LazyObject {
	return proxy.NewLazyObject(proxy.BackendORM, "AnimalProxy", "Dog", func() (any, error) {
		return dog{Name: "rex"}, nil
	})
}

func (s *SerializerSuite) TestSerializeProxy() {
	before := testutil.ToFloat64(metrics.SerializeTotal.WithLabelValues(FormatJSON, metrics.StatusSuccess))

	p := newDogProxy()
	data, err := s.serializer.Serialize(context.Background(), p, FormatJSON)
	s.Require().NoError(err)
	s.JSONEq(`{"name":"rex"}`, string(data))
	s.True(p.IsLoaded())
	s.Equal([]string{"Dog"}, s.finals)

	after := testutil.ToFloat64(metrics.SerializeTotal.WithLabelValues(FormatJSON, metrics.StatusSuccess))
	s.Equal(before+1, after)
}

func (s *SerializerSuite) TestSerializePlainValue() {
	data, err := s.serializer.Serialize(context.Background(), dog{Name: "fido"}, FormatJSON)
	s.Require().NoError(err)
	s.JSONEq(`{"name":"fido"}`, string(data))
	s.Equal([]string{"Dog"}, s.finals)

	data, err = s.serializer.Serialize(context.Background(), nil, FormatJSON)
	s.Require().NoError(err)
	s.Empty(data)

	data, err = s.serializer.Serialize(context.Background(), nil, FormatJSON,
		WithContextOptions(event.WithSerializeNull(true)))
	s.Require().NoError(err)
	s.Equal("null", string(data))
}

func (s *SerializerSuite) TestSerializeNilProxy() {
	var p *proxy.LazyObject
	var data []byte
	var err error
	s.NotPanics(func() {
		data, err = s.serializer.Serialize(context.Background(), p, FormatJSON,
			WithContextOptions(event.WithSerializeNull(true)))
	})
	s.Require().NoError(err)
	s.Equal("null", string(data))
	s.Equal([]string{"*proxy.LazyObject"}, s.finals)

	var coll *proxy.LazyCollection
	s.NotPanics(func() {
		data, err = s.serializer.Serialize(context.Background(), coll, FormatJSON)
	})
	s.Require().NoError(err)
	s.Empty(data)
}

func (s *SerializerSuite) TestSerializeVirtualType() {
	p := newDogProxy()
	data, err := s.serializer.Serialize(context.Background(), p, FormatJSON, WithType(event.NewType("PetSummary")))
	s.Require().NoError(err)
	s.JSONEq(`{"name":"rex"}`, string(data))
	s.Equal([]string{"PetSummary"}, s.finals)
}

func (s *SerializerSuite) TestSerializeCollection() {
	coll := proxy.NewLazyCollection(proxy.BackendORM, "PersistentCollection", func() ([]any, error) {
		return []any{dog{Name: "rex"}, dog{Name: "fido"}}, nil
	})
	data, err := s.serializer.Serialize(context.Background(), coll, FormatJSON)
	s.Require().NoError(err)
	s.JSONEq(`[{"name":"rex"},{"name":"fido"}]`, string(data))
	s.Equal([]string{event.GenericCollectionType}, s.finals)
}

func (s *SerializerSuite) TestExcludedClassIsNull() {
	p := proxy.NewLazyObject(proxy.BackendORM, "SecretProxy", "Secret", func() (any, error) {
		return secret{Token: "t"}, nil
	})
	data, err := s.serializer.Serialize(context.Background(), p, FormatJSON)
	s.Require().NoError(err)
	s.Empty(data)
	s.False(p.IsLoaded())
	// 未加载的代理仍按真实类重新派发，最终类型指向真实类。
	s.Equal([]string{"Secret"}, s.finals)

	data, err = s.serializer.Serialize(context.Background(), secret{Token: "t"}, FormatJSON,
		WithContextOptions(event.WithSerializeNull(true)))
	s.Require().NoError(err)
	s.Equal("null", string(data))
}

func (s *SerializerSuite) TestSerializeNullFromOptions() {
	opts := DefaultOptions()
	opts.DefaultContext.Serialization.SerializeNull = true
	sz, err := NewBuilder(s.registry).WithOptions(opts).Build()
	s.Require().NoError(err)
	defer sz.Close()

	data, err := sz.Serialize(context.Background(), secret{Token: "t"}, FormatJSON)
	s.Require().NoError(err)
	s.Equal("null", string(data))

	data, err = sz.Serialize(context.Background(), secret{Token: "t"}, FormatJSON,
		WithContextOptions(event.WithSerializeNull(false)))
	s.Require().NoError(err)
	s.Empty(data)
}

func (s *SerializerSuite) TestGroupsFromContext() {
	data, err := s.serializer.Serialize(context.Background(), owner{Name: "ann"}, FormatJSON,
		WithContextOptions(event.WithGroups("public")))
	s.Require().NoError(err)
	s.Empty(data)

	data, err = s.serializer.Serialize(context.Background(), owner{Name: "ann"}, FormatJSON,
		WithContextOptions(event.WithGroups("admin")))
	s.Require().NoError(err)
	s.JSONEq(`{"name":"ann"}`, string(data))
}

func (s *SerializerSuite) TestLoadFailure() {
	cause := errors.New("record no longer exists")
	p := proxy.NewLazyObject(proxy.BackendORM, "AnimalProxy", "Dog", func() (any, error) {
		return nil, cause
	})
	_, err := s.serializer.Serialize(context.Background(), p, FormatJSON)
	s.ErrorIs(err, cause)
	s.ErrorIs(err, merr.ErrProxyLoadFailed)
	s.ErrorIs(err, merr.ErrDispatchFailed)
	s.Equal(merr.SystemError, merr.GetErrorType(err))
	s.Empty(s.finals)
}

func (s *SerializerSuite) TestUnsupportedFormat() {
	_, err := s.serializer.Serialize(context.Background(), dog{}, "xml")
	s.ErrorIs(err, merr.ErrFormatUnsupported)
	s.Equal(merr.InputError, merr.GetErrorType(err))
	s.ErrorIs(s.serializer.Deserialize(nil, &dog{}, "xml"), merr.ErrFormatUnsupported)
}

func (s *SerializerSuite) TestTypeNotation() {
	data, err := s.serializer.Serialize(context.Background(), dog{Name: "fido"}, FormatJSON,
		WithTypeNotation("PetSummary<Dog, List<string>>"))
	s.Require().NoError(err)
	s.JSONEq(`{"name":"fido"}`, string(data))
	s.Equal([]string{"PetSummary<Dog, List<string>>"}, s.finals)

	// 后出现的选项生效。
	s.finals = nil
	_, err = s.serializer.Serialize(context.Background(), dog{Name: "fido"}, FormatJSON,
		WithTypeNotation("Broken<"), WithType(event.NewType("Dog")))
	s.Require().NoError(err)
	s.Equal([]string{"Dog"}, s.finals)

	s.finals = nil
	_, err = s.serializer.Serialize(context.Background(), dog{Name: "fido"}, FormatJSON, WithTypeNotation("List<Dog"))
	s.ErrorIs(err, merr.ErrTypeNotation)
	s.Equal(merr.InputError, merr.GetErrorType(err))
	s.Empty(s.finals)
}

func (s *SerializerSuite) TestCanceledContext() {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.serializer.Serialize(ctx, newDogProxy(), FormatJSON)
	s.ErrorIs(err, context.Canceled)
	s.True(merr.IsCanceledOrTimeout(err))
	s.Equal(merr.CanceledCode, merr.Code(err))
	s.Empty(s.finals)
}

func (s *SerializerSuite) TestProtobuf() {
	data, err := s.serializer.Serialize(context.Background(), wrapperspb.String("rex"), FormatProtobuf)
	s.Require().NoError(err)

	got := &wrapperspb.StringValue{}
	s.Require().NoError(s.serializer.Deserialize(data, got, FormatProtobuf))
	s.True(proto.Equal(wrapperspb.String("rex"), got))

	_, err = s.serializer.Serialize(context.Background(), dog{Name: "rex"}, FormatProtobuf)
	s.ErrorIs(err, merr.ErrVisitFailed)
	s.ErrorIs(err, merr.ErrParameterInvalid)
}

func (s *SerializerSuite) TestSerializeAll() {
	cause := errors.New("record no longer exists")
	broken := proxy.NewLazyObject(proxy.BackendORM, "AnimalProxy", "Dog", func() (any, error) {
		return nil, cause
	})
	values := []any{newDogProxy(), dog{Name: "fido"}, broken}

	results, err := s.serializer.SerializeAll(context.Background(), values, FormatJSON)
	s.ErrorIs(err, cause)
	s.Len(results, 3)
	s.JSONEq(`{"name":"rex"}`, string(results[0]))
	s.JSONEq(`{"name":"fido"}`, string(results[1]))
	s.Nil(results[2])
}

func (s *SerializerSuite) TestSerializeAllRecoversPanic() {
	sz, err := NewBuilder(s.registry).
		AddListener(event.Listener{
			Event: event.PreSerialize,
			Class: "Dog",
			Handler: func(event.Event, string, string, string, event.Dispatcher) error {
				panic("listener exploded")
			},
		}).
		Build()
	s.Require().NoError(err)
	defer sz.Close()

	failed := metrics.SerializeTotal.WithLabelValues(FormatJSON, metrics.StatusFail)
	before := testutil.ToFloat64(failed)

	results, err := sz.SerializeAll(context.Background(), []any{dog{Name: "rex"}, "plain"}, FormatJSON)
	s.Require().Error(err)
	s.Contains(err.Error(), "listener exploded")
	s.Equal(before+1, testutil.ToFloat64(failed))
	s.Nil(results[0])
	s.Equal(`"plain"`, string(results[1]))

	// 池在 panic 后仍可用。
	results, err = sz.SerializeAll(context.Background(), []any{"again"}, FormatJSON)
	s.Require().NoError(err)
	s.Equal(`"again"`, string(results[0]))
}

func (s *SerializerSuite) TestSerializeAllInlineWhenPoolExhausted() {
	opts := DefaultOptions()
	opts.Workers = 1
	opts.Pool.NonBlocking = true

	release := make(chan struct{})
	sz, err := NewBuilder(s.registry).
		WithOptions(opts).
		AddListener(event.Listener{
			Event: event.PreSerialize,
			Class: "Dog",
			Handler: func(e event.Event, _, _, _ string, _ event.Dispatcher) error {
				d := e.(interface{ Object() any }).Object().(dog)
				if d.Name == "slow" {
					<-release
				} else {
					close(release)
				}
				return nil
			},
		}).
		Build()
	s.Require().NoError(err)
	defer sz.Close()

	// 第一个值占住唯一的 worker，第二个值被池拒绝后在调用方执行并放行第一个值。
	results, err := sz.SerializeAll(context.Background(), []any{dog{Name: "slow"}, dog{Name: "fast"}}, FormatJSON)
	s.Require().NoError(err)
	s.JSONEq(`{"name":"slow"}`, string(results[0]))
	s.JSONEq(`{"name":"fast"}`, string(results[1]))
}

func (s *SerializerSuite) TestBuilderValidation() {
	_, err := NewBuilder(nil).Build()
	s.ErrorIs(err, merr.ErrParameterMissing)

	opts := DefaultOptions()
	opts.JSON.Engine = "gob"
	_, err = NewBuilder(s.registry).WithOptions(opts).Build()
	s.ErrorIs(err, merr.ErrParameterInvalid)

	_, err = NewBuilder(s.registry).AddListener(event.Listener{}).Build()
	s.ErrorIs(err, merr.ErrListenerInvalid)

	opts = DefaultOptions()
	opts.Pool.ExpiryDuration = -time.Second
	_, err = NewBuilder(s.registry).WithOptions(opts).Build()
	s.ErrorIs(err, merr.ErrParameterInvalid)
}

func (s *SerializerSuite) TestWithoutDefaultSubscriber() {
	sz, err := NewBuilder(s.registry).WithDefaultSubscriber(false).Build()
	s.Require().NoError(err)
	defer sz.Close()

	p := newDogProxy()
	s.False(sz.Dispatcher().HasListeners(event.PreSerialize, "AnimalProxy", FormatJSON))
	data, err := sz.Serialize(context.Background(), p, FormatJSON)
	s.Require().NoError(err)
	// 编码器仍会通过 MarshalJSON 延迟加载。
	s.JSONEq(`{"name":"rex"}`, string(data))
}

func (s *SerializerSuite) TestLoadOptions() {
	path := filepath.Join(s.T().TempDir(), "serializer.yaml")
	content := []byte(`
serializer:
  workers: 4
  pool:
    non_blocking: true
    expiry_duration: 30s
  proxy:
    initialize_excluded: true
  json:
    engine: jsoniter
  default_context:
    serialization:
      version: "1.2.0"
      groups: [admin]
`)
	s.Require().NoError(os.WriteFile(path, content, 0o600))

	cfg := viper.New()
	s.Require().NoError(cfg.LoadFile(path))
	opts, err := LoadOptions(cfg)
	s.Require().NoError(err)
	s.Equal(4, opts.Workers)
	s.True(opts.Pool.NonBlocking)
	s.True(opts.Pool.ConcealPanic)
	s.Equal(30*time.Second, opts.Pool.ExpiryDuration)
	s.True(opts.Proxy.SkipVirtualTypeInit)
	s.True(opts.Proxy.InitializeExcluded)
	s.Equal("jsoniter", opts.JSON.Engine)
	s.Equal("1.2.0", opts.DefaultContext.Serialization.Version)
	s.Equal([]string{"admin"}, opts.DefaultContext.Serialization.Groups)

	sz, err := NewBuilder(s.registry).WithOptions(opts).Build()
	s.Require().NoError(err)
	defer sz.Close()
	sctx := sz.NewContext(context.Background(), FormatJSON)
	s.Equal("1.2.0", sctx.Version())
	s.Equal([]string{"admin"}, sctx.Groups())

	defaults, err := LoadOptions(viper.New())
	s.Require().NoError(err)
	s.Equal(DefaultOptions().Workers, defaults.Workers)
	s.True(defaults.Proxy.SkipVirtualTypeInit)
	s.True(defaults.Pool.ConcealPanic)
	s.False(defaults.DefaultContext.Serialization.SerializeNull)

	_, err = LoadOptions(nil)
	s.ErrorIs(err, merr.ErrParameterMissing)
}

func (s *SerializerSuite) TestTracing() {
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	defer otel.SetTracerProvider(prev)

	_, err := s.serializer.Serialize(context.Background(), newDogProxy(), FormatJSON)
	s.Require().NoError(err)
	_, err = s.serializer.Serialize(context.Background(), dog{}, "xml")
	s.Error(err)

	cause := errors.New("record no longer exists")
	broken := proxy.NewLazyObject(proxy.BackendORM, "AnimalProxy", "Dog", func() (any, error) {
		return nil, cause
	})
	_, err = s.serializer.Serialize(context.Background(), broken, FormatJSON)
	s.Error(err)

	spans := exporter.GetSpans()
	s.Require().Len(spans, 3)
	s.Equal("Serializer.Serialize", spans[0].Name)
	s.Equal(otelcodes.Unset, spans[0].Status.Code)
	s.Equal(otelcodes.Error, spans[1].Status.Code)
	s.Equal(otelcodes.Error, spans[2].Status.Code)
}

func (s *SerializerSuite) TestLogsThroughInjectedLogger() {
	core, recorded := observer.New(zapcore.DebugLevel)
	opts := DefaultOptions()
	opts.Debug = true
	sz, err := NewBuilder(s.registry).
		WithOptions(opts).
		WithLogger(&log.MLogger{Logger: zap.New(core)}).
		Build()
	s.Require().NoError(err)
	defer sz.Close()

	_, err = sz.Serialize(context.Background(), dog{Name: "fido"}, FormatJSON)
	s.Require().NoError(err)
	_, err = sz.Serialize(context.Background(), dog{Name: "fido"}, "xml")
	s.Require().Error(err)

	s.Equal(1, recorded.FilterMessage("serialized value").Len())
	failed := recorded.FilterMessage("serialize failed").All()
	s.Require().Len(failed, 1)
	fields := failed[0].ContextMap()
	s.Equal("serializer", fields[log.FieldNameComponent])
	s.Equal("xml", fields[log.FieldNameFormat])
	s.Equal(merr.InputError.String(), fields["errorType"])
}

func TestSerializer(t *testing.T) {
	suite.Run(t, new(SerializerSuite))
}
