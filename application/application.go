package application

import (
	"fmt"
	"os"
	"strings"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/lk2023060901/garden-serializer/internal/serializer"
	"github.com/lk2023060901/garden-serializer/internal/serializer/metadata"
	zlog "github.com/lk2023060901/garden-serializer/pkg/log"
	"github.com/lk2023060901/garden-serializer/pkg/metrics"
	zviper "github.com/lk2023060901/garden-serializer/pkg/util/viper"
)

const (
	envConfigPath = "SERIALIZER_CONFIG_FILE_PATH"
	envPrefix     = "GARDEN"

	// serializerLoggerName 是 logging 段中序列化器专用 Logger 的名字。
	serializerLoggerName = "serializer"
)

// Application is the runtime container for a serializer host process.
// It owns configuration, loggers and the assembled serializer.
type Application struct {
	cfg        *zviper.Config
	loggers    map[string]*zlog.MLogger
	args       []string
	registry   *metadata.Registry
	configure  []func(*serializer.Builder)
	registerer prometheus.Registerer
	serializer *serializer.Serializer
}

// Option configures an Application.
type Option func(*Application)

// WithArgs overrides os.Args[1:] when resolving the config path.
func WithArgs(args []string) Option {
	return func(a *Application) {
		a.args = args
	}
}

// WithBuilder registers a hook that customizes the serializer builder
// (extra subscribers, listeners, visitors) before Build.
func WithBuilder(fn func(*serializer.Builder)) Option {
	return func(a *Application) {
		a.configure = append(a.configure, fn)
	}
}

// WithRegisterer sets the prometheus registerer, defaults to prometheus.DefaultRegisterer.
func WithRegisterer(r prometheus.Registerer) Option {
	return func(a *Application) {
		a.registerer = r
	}
}

// New creates a new Application serving the classes in registry.
func New(registry *metadata.Registry, opts ...Option) *Application {
	a := &Application{
		registry:   registry,
		args:       os.Args[1:],
		registerer: prometheus.DefaultRegisterer,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Run loads configuration using the following priority:
//  1. Default: ./config.yaml
//  2. Env: SERIALIZER_CONFIG_FILE_PATH
//  3. CLI: --config <path> or --config=<path>
//
// then initializes logging and metrics and builds the serializer.
func (a *Application) Run() error {
	cfg, err := a.loadConfig()
	if err != nil {
		return err
	}
	a.cfg = cfg

	if err := a.initLogging(); err != nil {
		return err
	}
	metrics.Register(a.registerer)

	return a.initSerializer()
}

// Config returns the loaded configuration, if any.
func (a *Application) Config() *zviper.Config {
	return a.cfg
}

// Serializer returns the serializer built by Run.
func (a *Application) Serializer() *serializer.Serializer {
	return a.serializer
}

// Close releases the serializer worker pool and flushes logs.
func (a *Application) Close() error {
	if a.serializer != nil {
		a.serializer.Close()
	}
	return zlog.Sync()
}

// Logger returns a named logger created from configuration.
// If the name is unknown, it falls back to the global logger.
func (a *Application) Logger(name string) *zlog.MLogger {
	if a.loggers == nil {
		return &zlog.MLogger{Logger: zlog.L()}
	}
	if lg, ok := a.loggers[name]; ok && lg != nil {
		return lg
	}
	return &zlog.MLogger{Logger: zlog.L()}
}

// loadConfig resolves config file path and loads it via viper wrapper.
func (a *Application) loadConfig() (*zviper.Config, error) {
	configPath := "./config.yaml"

	if envPath := os.Getenv(envConfigPath); envPath != "" {
		configPath = envPath
	}

	args := a.args
	for i := 0; i < len(args); i++ {
		arg := args[i]
		if arg == "--config" {
			if i+1 >= len(args) {
				return nil, fmt.Errorf("missing value after --config")
			}
			configPath = args[i+1]
			i++
			continue
		}
		if strings.HasPrefix(arg, "--config=") {
			val := strings.TrimPrefix(arg, "--config=")
			if val != "" {
				configPath = val
			}
			continue
		}
	}

	cfg := zviper.New()
	if err := cfg.LoadFile(configPath); err != nil {
		return nil, fmt.Errorf("failed to load config file %q: %w", configPath, err)
	}
	cfg.BindEnv(envPrefix)

	return cfg, nil
}

// initSerializer reads the serializer section and builds the serializer.
func (a *Application) initSerializer() error {
	opts, err := serializer.LoadOptions(a.cfg)
	if err != nil {
		return fmt.Errorf("load serializer options: %w", err)
	}

	builder := serializer.NewBuilder(a.registry).
		WithOptions(opts).
		WithLogger(a.Logger(serializerLoggerName))
	for _, fn := range a.configure {
		fn(builder)
	}

	s, err := builder.Build()
	if err != nil {
		return fmt.Errorf("build serializer: %w", err)
	}
	a.serializer = s
	return nil
}

// initLogging initializes global and module-level loggers.
func (a *Application) initLogging() error {
	if err := a.initGlobalLoggerFromEnv(); err != nil {
		return err
	}
	if err := a.initModuleLoggersFromConfig(); err != nil {
		return err
	}
	return nil
}

// initGlobalLoggerFromEnv configures the process-wide logger based on SERIALIZER_LOG_* env vars.
//
// Priority:
//   - SERIALIZER_LOG_ENABLE: "1"/"true" to enable outputs; others treated as disabled.
//   - SERIALIZER_LOG_LEVEL: log level (default "info").
//   - SERIALIZER_LOG_STDOUT: whether to log to stdout (default false).
//   - SERIALIZER_LOG_FILE_DIR: log directory.
//   - SERIALIZER_LOG_FILE: log file name (empty means no file).
//   - SERIALIZER_LOG_FORMAT: log format ("text" or "json", default "text").
func (a *Application) initGlobalLoggerFromEnv() error {
	enabled := getenvBool("SERIALIZER_LOG_ENABLE", false)

	cfg := &zlog.Config{
		Level:             getenvDefault("SERIALIZER_LOG_LEVEL", "info"),
		Format:            getenvDefault("SERIALIZER_LOG_FORMAT", "text"),
		DisableTimestamp:  false,
		Stdout:            getenvBool("SERIALIZER_LOG_STDOUT", false),
		DisableCaller:     false,
		DisableStacktrace: false,
		File: zlog.FileLogConfig{
			RootPath: getenvDefault("SERIALIZER_LOG_FILE_DIR", ""),
			Filename: getenvDefault("SERIALIZER_LOG_FILE", ""),
		},
	}

	// When not enabled, direct all outputs to a discarded sink.
	if !enabled {
		cfg.Stdout = false
		cfg.File.Filename = ""
	}

	logger, props, err := zlog.InitLogger(cfg)
	if err != nil {
		return fmt.Errorf("init global logger from env: %w", err)
	}
	zlog.ReplaceGlobals(logger, props)
	return nil
}

// initModuleLoggersFromConfig creates named loggers from YAML config under "logging" key.
//
// Example:
//
//	logging:
//	  serializer:
//	    level: debug
//	    stdout: true
//	    file:
//	      rootpath: ./logs
//	      filename: serializer.log
func (a *Application) initModuleLoggersFromConfig() error {
	if a.cfg == nil {
		return nil
	}

	raw := make(map[string]zlog.Config)
	if err := a.cfg.UnmarshalKey("logging", &raw); err != nil {
		return err
	}
	if len(raw) == 0 {
		return nil
	}

	a.loggers = make(map[string]*zlog.MLogger, len(raw))
	for name, lc := range raw {
		cfgCopy := lc
		logger, _, err := zlog.InitLogger(&cfgCopy)
		if err != nil {
			return fmt.Errorf("init module logger %q: %w", name, err)
		}
		a.loggers[name] = &zlog.MLogger{Logger: logger.With(zlog.FieldModule(name))}
	}

	return nil
}

func getenvDefault(key, def string) string {
	val := strings.TrimSpace(os.Getenv(key))
	if val == "" {
		return def
	}
	return val
}

func getenvBool(key string, def bool) bool {
	val := strings.TrimSpace(os.Getenv(key))
	if val == "" {
		return def
	}
	switch strings.ToLower(val) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return def
	}
}
