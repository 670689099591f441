package serializer

import (
	"time"

	"github.com/lk2023060901/garden-serializer/internal/json"
	"github.com/lk2023060901/garden-serializer/internal/serializer/event"
	"github.com/lk2023060901/garden-serializer/pkg/util/conc"
	"github.com/lk2023060901/garden-serializer/pkg/util/merr"
	"github.com/lk2023060901/garden-serializer/pkg/util/viper"
)

// ConfigKey 是配置文件中序列化器配置所在的根键。
const ConfigKey = "serializer"

// Options 是序列化器的完整配置。
type Options struct {
	Debug          bool                  `mapstructure:"debug"`
	Workers        int                   `mapstructure:"workers"`
	Pool           PoolOptions           `mapstructure:"pool"`
	Proxy          ProxyOptions          `mapstructure:"proxy"`
	JSON           JSONOptions           `mapstructure:"json"`
	DefaultContext DefaultContextOptions `mapstructure:"default_context"`
}

// ProxyOptions 控制代理解析订阅者。
type ProxyOptions struct {
	SkipVirtualTypeInit bool `mapstructure:"skip_virtual_type_init"`
	InitializeExcluded  bool `mapstructure:"initialize_excluded"`
}

// PoolOptions 控制 SerializeAll 使用的协程池。
type PoolOptions struct {
	// NonBlocking 为 true 时池满的任务改由调用方 goroutine 直接执行。
	NonBlocking    bool          `mapstructure:"non_blocking"`
	ConcealPanic   bool          `mapstructure:"conceal_panic"`
	PreAlloc       bool          `mapstructure:"pre_alloc"`
	ExpiryDuration time.Duration `mapstructure:"expiry_duration"`
}

func (o PoolOptions) poolOptions() []conc.PoolOption {
	return []conc.PoolOption{
		conc.WithNonBlocking(o.NonBlocking),
		conc.WithConcealPanic(o.ConcealPanic),
		conc.WithPreAlloc(o.PreAlloc),
		conc.WithExpiryDuration(o.ExpiryDuration),
	}
}

type JSONOptions struct {
	Engine     string `mapstructure:"engine"`
	EscapeHTML bool   `mapstructure:"escape_html"`
}

type DefaultContextOptions struct {
	Serialization SerializationContextOptions `mapstructure:"serialization"`
}

// SerializationContextOptions 是每次序列化默认上下文的取值。
type SerializationContextOptions struct {
	// SerializeNull 为 false 时，nil 与被跳过的值输出为空字节。
	SerializeNull bool           `mapstructure:"serialize_null"`
	Version       string         `mapstructure:"version"`
	Groups        []string       `mapstructure:"groups"`
	Attributes    map[string]any `mapstructure:"attributes"`
}

// DefaultOptions 返回默认配置。
func DefaultOptions() Options {
	return Options{
		Workers: 8,
		Pool: PoolOptions{
			ConcealPanic: true,
		},
		Proxy: ProxyOptions{
			SkipVirtualTypeInit: true,
		},
		JSON: JSONOptions{
			Engine: string(json.EngineSonic),
		},
	}
}

// LoadOptions 从配置中读取 serializer 段，未配置的键使用默认值。
func LoadOptions(cfg *viper.Config) (Options, error) {
	if cfg == nil {
		return Options{}, merr.WrapErrParameterMissing("config")
	}
	def := DefaultOptions()
	cfg.SetDefault(ConfigKey+".debug", def.Debug)
	cfg.SetDefault(ConfigKey+".workers", def.Workers)
	cfg.SetDefault(ConfigKey+".pool.non_blocking", def.Pool.NonBlocking)
	cfg.SetDefault(ConfigKey+".pool.conceal_panic", def.Pool.ConcealPanic)
	cfg.SetDefault(ConfigKey+".pool.pre_alloc", def.Pool.PreAlloc)
	cfg.SetDefault(ConfigKey+".pool.expiry_duration", def.Pool.ExpiryDuration)
	cfg.SetDefault(ConfigKey+".proxy.skip_virtual_type_init", def.Proxy.SkipVirtualTypeInit)
	cfg.SetDefault(ConfigKey+".proxy.initialize_excluded", def.Proxy.InitializeExcluded)
	cfg.SetDefault(ConfigKey+".json.engine", def.JSON.Engine)
	cfg.SetDefault(ConfigKey+".json.escape_html", def.JSON.EscapeHTML)

	var root struct {
		Serializer Options `mapstructure:"serializer"`
	}
	if err := cfg.Unmarshal(&root); err != nil {
		return Options{}, err
	}
	if err := root.Serializer.Validate(); err != nil {
		return Options{}, err
	}
	return root.Serializer, nil
}

// Validate 检查配置取值。
func (o Options) Validate() error {
	if o.Workers <= 0 {
		return merr.WrapErrParameterInvalidMsg("workers must be positive, got %d", o.Workers)
	}
	if o.Pool.ExpiryDuration < 0 {
		return merr.WrapErrParameterInvalidMsg("pool expiry duration must not be negative, got %s", o.Pool.ExpiryDuration)
	}
	if _, ok := json.ParseEngine(o.JSON.Engine); !ok {
		return merr.WrapErrParameterInvalid("sonic|jsoniter", o.JSON.Engine, "unknown json engine")
	}
	return nil
}

// contextOptions 将默认上下文配置转换为 event.ContextOption。
func (o SerializationContextOptions) contextOptions() []event.ContextOption {
	opts := []event.ContextOption{
		event.WithSerializeNull(o.SerializeNull),
	}
	if o.Version != "" {
		opts = append(opts, event.WithVersion(o.Version))
	}
	if len(o.Groups) > 0 {
		opts = append(opts, event.WithGroups(o.Groups...))
	}
	for k, v := range o.Attributes {
		opts = append(opts, event.WithAttribute(k, v))
	}
	return opts
}
