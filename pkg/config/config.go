// Package config loads syllabus settings from flags, environment, an optional
// config file and a .env file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/stefanpenner/syllabus/pkg/progress"
)

// EnvPrefix is the prefix for environment overrides, e.g. SYLLABUS_SOURCE or
// SYLLABUS_STORE_DRIVER.
const EnvPrefix = "SYLLABUS"

// ConfigFileName is looked up in the data directory when --config is not given.
const ConfigFileName = "config.yaml"

// Config holds all application configuration.
type Config struct {
	Source      string `mapstructure:"source" yaml:"source"`             // listing document address
	ContentRoot string `mapstructure:"content_root" yaml:"content_root"` // defaults to the source's directory
	DataDir     string `mapstructure:"data_dir" yaml:"data_dir" validate:"required"`
	Env         string `mapstructure:"env" yaml:"env" validate:"oneof=development production"`
	JSON        bool   `mapstructure:"json" yaml:"json"`
	Ephemeral   bool   `mapstructure:"ephemeral" yaml:"ephemeral"` // keep progress in memory only

	Log struct {
		Level string `mapstructure:"level" yaml:"level" validate:"oneof=debug info warn error"`
		File  string `mapstructure:"file" yaml:"file"`
	} `mapstructure:"log" yaml:"log"`

	Store struct {
		Driver     string `mapstructure:"driver" yaml:"driver" validate:"oneof=file sqlite redis memory"`
		Namespace  string `mapstructure:"namespace" yaml:"namespace"`
		SQLitePath string `mapstructure:"sqlite_path" yaml:"sqlite_path"`
	} `mapstructure:"store" yaml:"store"`

	Redis struct {
		Addr     string `mapstructure:"addr" yaml:"addr"`
		Password string `mapstructure:"password" yaml:"password"`
		DB       int    `mapstructure:"db" yaml:"db" validate:"min=0"`
	} `mapstructure:"redis" yaml:"redis"`

	HTTP struct {
		Timeout time.Duration `mapstructure:"timeout" yaml:"timeout" validate:"min=0"`
	} `mapstructure:"http" yaml:"http"`

	Index struct {
		Stamp bool `mapstructure:"stamp" yaml:"stamp"` // write missing lesson headers before indexing
	} `mapstructure:"index" yaml:"index"`

	Serve struct {
		Addr string `mapstructure:"addr" yaml:"addr"`
		Dir  string `mapstructure:"dir" yaml:"dir"`
	} `mapstructure:"serve" yaml:"serve"`
}

// Load parses args (without the program name) and merges, highest first:
// flags, SYLLABUS_* environment, the config file, flag defaults. It returns the
// positional arguments left after flag parsing.
func Load(args []string) (*Config, []string, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, nil, fmt.Errorf("loading .env: %w", err)
	}

	flags := newFlagSet()
	if err := flags.Parse(args); err != nil {
		return nil, nil, err
	}

	v := viper.New()
	if err := v.BindPFlags(flags); err != nil {
		return nil, nil, err
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := readConfigFile(v); err != nil {
		return nil, nil, err
	}

	cfg := new(Config)
	if err := v.Unmarshal(cfg); err != nil {
		return nil, nil, fmt.Errorf("decoding config: %w", err)
	}
	if cfg.Ephemeral {
		cfg.Store.Driver = progress.DriverMemory
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}
	return cfg, flags.Args(), nil
}

func newFlagSet() *pflag.FlagSet {
	flags := pflag.NewFlagSet("syllabus", pflag.ContinueOnError)
	flags.String("config", "", "config file (default <data_dir>/config.yaml)")

	flags.StringP("source", "s", "", "address of the course listing document (URL or path)")
	flags.String("content_root", "", "address lesson locations are relative to (default: the source's directory)")
	flags.String("data_dir", progress.DefaultDataDir(), "directory for progress, logs and fetched courses")
	flags.String("env", "development", "runtime environment, 'development' or 'production'")
	flags.Bool("json", false, "print command output as JSON")
	flags.Bool("ephemeral", false, "keep progress in memory only")

	flags.String("log.level", "info", "logging level")
	flags.String("log.file", "", "log to file")

	flags.String("store.driver", progress.DriverFile, "progress store: file, sqlite, redis or memory")
	flags.String("store.namespace", "", "key prefix separating the progress of several courses")
	flags.String("store.sqlite_path", "", "sqlite database path (default <data_dir>/progress.db)")

	flags.String("redis.addr", "127.0.0.1:6379", "redis address")
	flags.String("redis.password", "", "redis password")
	flags.Int("redis.db", 0, "redis database number")

	flags.Duration("http.timeout", 30*time.Second, "give up on a single HTTP fetch after this long (0 waits forever)")

	flags.Bool("index.stamp", false, "for 'index', write missing id and title headers into lesson files")

	flags.String("serve.addr", "127.0.0.1:8080", "listen address for 'serve'")
	flags.String("serve.dir", ".", "course directory for 'serve'")
	return flags
}

func readConfigFile(v *viper.Viper) error {
	path := v.GetString("config")
	explicit := path != ""
	if !explicit {
		path = filepath.Join(v.GetString("data_dir"), ConfigFileName)
		if _, err := os.Stat(path); err != nil {
			return nil
		}
	}

	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("reading config file %s: %w", path, err)
	}
	return nil
}

// Validate checks field constraints and reports every violation at once.
func (c *Config) Validate() error {
	validate := validator.New()
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("mapstructure"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	err := validate.Struct(c)
	if err == nil {
		if c.Store.Driver == progress.DriverRedis && c.Redis.Addr == "" {
			return fmt.Errorf("invalid configuration: redis.addr is required for the redis store")
		}
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	var msg []string
	for _, field := range verrs {
		namespace := field.Namespace()
		fieldName := namespace[strings.IndexByte(namespace, '.')+1:] // trim top level namespace
		switch field.Tag() {
		case "required":
			msg = append(msg, fmt.Sprintf("%s is required", fieldName))
		case "oneof":
			msg = append(msg, fmt.Sprintf("%s must be one of (%s)", fieldName, field.Param()))
		default:
			msg = append(msg, fmt.Sprintf("%s failed %s", fieldName, field.Tag()))
		}
	}
	return fmt.Errorf("invalid configuration:\n%s", strings.Join(msg, "\n"))
}

// LogFile returns the configured log file, or def when none is set.
func (c *Config) LogFile(def string) string {
	if c.Log.File != "" {
		return c.Log.File
	}
	return def
}

// ProgressOptions maps the store settings onto progress.Options.
func (c *Config) ProgressOptions() progress.Options {
	return progress.Options{
		Driver:     c.Store.Driver,
		DataDir:    c.DataDir,
		SQLitePath: c.Store.SQLitePath,
		Namespace:  c.Store.Namespace,
		Redis: progress.RedisOptions{
			Addr:     c.Redis.Addr,
			Password: c.Redis.Password,
			DB:       c.Redis.DB,
		},
	}
}
