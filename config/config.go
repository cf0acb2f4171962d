// Package config loads pool and tracing settings.
// Precedence (highest to lowest): flags > env vars > config file > defaults
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"
	"github.com/streamDream/mysql-stream/orm/pool"
	"github.com/streamDream/mysql-stream/telemetry"
)

// EnvPrefix MYSQLSTREAM_POOL_MAX_TOTAL -> pool.max_total
const EnvPrefix = "MYSQLSTREAM_"

type Config struct {
	Pool    pool.Config      `koanf:"pool"`
	Tracing telemetry.Config `koanf:"tracing"`
}

var defaults = map[string]any{
	"pool.min_idle":        1,
	"pool.max_total":       10,
	"pool.host":            "127.0.0.1",
	"pool.port":            3306,
	"pool.username":        "root",
	"pool.charset":         pool.DefaultCharset,
	"pool.acquire_timeout": "3s",
	"tracing.service_name": "mysql-stream",
	"tracing.sample_ratio": 1.0,
}

// flagKeys 命令行参数名到配置 key 的映射
var flagKeys = map[string]string{
	"host":             "pool.host",
	"port":             "pool.port",
	"user":             "pool.username",
	"password":         "pool.password",
	"database":         "pool.database",
	"charset":          "pool.charset",
	"min-idle":         "pool.min_idle",
	"max-total":        "pool.max_total",
	"acquire-timeout":  "pool.acquire_timeout",
	"leak-threshold":   "pool.leak_threshold",
	"tracing-exporter": "tracing.exporter",
	"tracing-endpoint": "tracing.endpoint",
}

// BindFlags 注册 Load 认识的命令行参数
func BindFlags(fs *pflag.FlagSet) {
	fs.String("host", "", "MySQL host")
	fs.Int("port", 0, "MySQL port")
	fs.StringP("user", "u", "", "MySQL user")
	fs.StringP("password", "p", "", "MySQL password")
	fs.String("database", "", "default database")
	fs.String("charset", "", "connection charset")
	fs.Int("min-idle", 0, "connections opened at start")
	fs.Int("max-total", 0, "upper bound of open connections")
	fs.Duration("acquire-timeout", 0, "max wait for a free connection")
	fs.Duration("leak-threshold", 0, "report leases held longer than this")
	fs.String("tracing-exporter", "", "jaeger or zipkin, empty disables exporting")
	fs.String("tracing-endpoint", "", "collector endpoint")
}

// Load path 为空的时候不读取配置文件，flags 可以为 nil
func Load(path string, flags *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(defaults, "."), nil); err != nil {
		return nil, fmt.Errorf("config: load defaults: %w", err)
	}

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		key := strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
		// 第一个 _ 分隔 section，其余的是 key 的一部分
		return strings.Replace(key, "_", ".", 1)
	}), nil); err != nil {
		return nil, fmt.Errorf("config: load env: %w", err)
	}

	if flags != nil {
		if err := k.Load(posflag.ProviderWithFlag(flags, ".", k, func(f *pflag.Flag) (string, any) {
			// 只使用显式设置的参数
			if !f.Changed {
				return "", nil
			}
			key, ok := flagKeys[f.Name]
			if !ok {
				return "", nil
			}
			return key, posflag.FlagVal(flags, f)
		}), nil); err != nil {
			return nil, fmt.Errorf("config: load flags: %w", err)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("config: decode: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate 返回全部的错误，而不是第一个
func (c *Config) Validate() error {
	var errs []error
	p := c.Pool
	if p.MaxTotal <= 0 {
		errs = append(errs, errors.New("config: pool.max_total must be positive"))
	}
	if p.MinIdle < 0 || p.MinIdle > p.MaxTotal {
		errs = append(errs, fmt.Errorf("config: pool.min_idle must be in [0, %d]", p.MaxTotal))
	}
	if p.Host == "" {
		errs = append(errs, errors.New("config: pool.host is required"))
	}
	if p.Port <= 0 || p.Port > 65535 {
		errs = append(errs, fmt.Errorf("config: pool.port %d out of range", p.Port))
	}
	if p.AcquireTimeout < 0 || p.LeakThreshold < 0 {
		errs = append(errs, errors.New("config: durations must not be negative"))
	}

	tr := c.Tracing
	switch tr.Exporter {
	case telemetry.ExporterNone, telemetry.ExporterJaeger, telemetry.ExporterZipkin:
	default:
		errs = append(errs, fmt.Errorf("config: unknown tracing exporter %q", tr.Exporter))
	}
	if tr.Exporter != telemetry.ExporterNone && tr.Endpoint == "" {
		errs = append(errs, errors.New("config: tracing.endpoint is required"))
	}
	if tr.SampleRatio < 0 || tr.SampleRatio > 1 {
		errs = append(errs, errors.New("config: tracing.sample_ratio must be in [0, 1]"))
	}
	return errors.Join(errs...)
}
