package viper

import (
	"path/filepath"
	"strings"

	spfviper "github.com/spf13/viper"
)

// Config 封装 spf13/viper 实例，对外提供精简的 YAML/JSON 配置加载接口。
type Config struct {
	v *spfviper.Viper
}

// New 创建一个空的 Config。
// 未加载文件时，Unmarshal 只会得到 SetDefault 设置的默认值与环境变量覆盖。
func New() *Config {
	return &Config{
		v: spfviper.New(),
	}
}

// LoadFile 将 YAML 或 JSON 配置文件加载到 Config 中。
// 文件类型通过扩展名（.yaml/.yml/.json）推断。
func (c *Config) LoadFile(path string) error {
	c.ensure()
	c.v.SetConfigFile(path)

	switch ext := filepath.Ext(path); ext {
	case ".yaml", ".yml":
		c.v.SetConfigType("yaml")
	case ".json":
		c.v.SetConfigType("json")
	default:
		// 让 viper 自行推断类型，或在读取时返回清晰的错误信息。
	}

	return c.v.ReadInConfig()
}

// BindEnv 开启环境变量覆盖：key 中的 "." 会替换为 "_"，并加上 prefix。
// 例如 prefix 为 SERIALIZER 时，serializer.proxy.initialize_excluded
// 对应 SERIALIZER_SERIALIZER_PROXY_INITIALIZE_EXCLUDED。
func (c *Config) BindEnv(prefix string) {
	c.ensure()
	c.v.SetEnvPrefix(prefix)
	c.v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	c.v.AutomaticEnv()
}

// SetDefault 为 key 设置默认值，文件与环境变量中的值优先。
func (c *Config) SetDefault(key string, value any) {
	c.ensure()
	c.v.SetDefault(key, value)
}

// Set 直接覆盖 key 的值，主要用于测试与命令行参数。
func (c *Config) Set(key string, value any) {
	c.ensure()
	c.v.Set(key, value)
}

// IsSet 判断 key 是否在任一来源中被设置。
func (c *Config) IsSet(key string) bool {
	if c.v == nil {
		return false
	}
	return c.v.IsSet(key)
}

// Unmarshal 将完整配置反序列化到 dst。
// dst 应为结构体或 map 的指针。
func (c *Config) Unmarshal(dst any) error {
	if c.v == nil {
		return nil
	}
	return c.v.Unmarshal(dst)
}

// UnmarshalKey 将指定 key 对应的子配置反序列化到 dst。
// dst 应为结构体或 map 的指针。
func (c *Config) UnmarshalKey(key string, dst any) error {
	if c.v == nil {
		return nil
	}
	return c.v.UnmarshalKey(key, dst)
}

func (c *Config) ensure() {
	if c.v == nil {
		c.v = spfviper.New()
	}
}
