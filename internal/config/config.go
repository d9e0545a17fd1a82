// Package config loads the ftpgate configuration from a YAML file and
// FTPGATE_* environment variables.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/darshan-rambhia/goftp"
	"github.com/go-logr/logr"
	"github.com/spf13/viper"
)

// Config is the root ftpgate configuration.
type Config struct {
	Logging  LoggingConfig  `mapstructure:"logging"`
	Server   ServerConfig   `mapstructure:"server"`
	FTP      FTPConfig      `mapstructure:"ftp"`
	Pool     PoolConfig     `mapstructure:"pool"`
	Transfer TransferConfig `mapstructure:"transfer"`
}

// LoggingConfig controls stdr verbosity. 0 logs info and errors, 1 adds
// per-session chatter.
type LoggingConfig struct {
	Verbosity int `mapstructure:"verbosity" validate:"gte=0,lte=10"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Addr            string        `mapstructure:"addr" validate:"required,hostname_port"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"gt=0"`

	// MaxUploadSize caps multipart uploads in bytes.
	MaxUploadSize int64 `mapstructure:"max_upload_size" validate:"gt=0"`
}

// FTPConfig describes the remote FTP endpoint.
type FTPConfig struct {
	Host        string        `mapstructure:"host" validate:"required"`
	Port        int           `mapstructure:"port" validate:"gte=1,lte=65535"`
	User        string        `mapstructure:"user" validate:"required"`
	Password    string        `mapstructure:"password"`
	Encoding    string        `mapstructure:"encoding" validate:"required"`
	BufferSize  int           `mapstructure:"buffer_size" validate:"gt=0"`
	RetryCount  int           `mapstructure:"retry_count" validate:"gte=1"`
	RetryDelay  time.Duration `mapstructure:"retry_delay" validate:"gte=0"`
	Timeout     time.Duration `mapstructure:"timeout" validate:"gt=0"`
	DisableEPSV bool          `mapstructure:"disable_epsv"`

	Bastion BastionConfig `mapstructure:"bastion"`
}

// BastionConfig configures an optional SSH jump host.
type BastionConfig struct {
	Host                  string `mapstructure:"host"`
	Port                  int    `mapstructure:"port" validate:"omitempty,gte=1,lte=65535"`
	User                  string `mapstructure:"user"`
	KeyPath               string `mapstructure:"key_path"`
	Password              string `mapstructure:"password"`
	KnownHostsFile        string `mapstructure:"known_hosts_file"`
	InsecureIgnoreHostKey bool   `mapstructure:"insecure_ignore_host_key"`
}

// PoolConfig mirrors goftp.PoolConfig plus the startup pre-warm size.
type PoolConfig struct {
	InitialSize          int           `mapstructure:"initial_size" validate:"gte=0"`
	MinIdle              int           `mapstructure:"min_idle" validate:"gte=0"`
	MaxIdle              int           `mapstructure:"max_idle" validate:"gte=1"`
	MaxTotal             int           `mapstructure:"max_total" validate:"gte=1"`
	MinEvictableIdle     time.Duration `mapstructure:"min_evictable_idle"`
	SoftMinEvictableIdle time.Duration `mapstructure:"soft_min_evictable_idle"`
	EvictionInterval     time.Duration `mapstructure:"eviction_interval"`
	MaxWait              time.Duration `mapstructure:"max_wait" validate:"gt=0"`
	TestOnBorrow         bool          `mapstructure:"test_on_borrow"`
	TestOnReturn         bool          `mapstructure:"test_on_return"`
	TestWhileIdle        bool          `mapstructure:"test_while_idle"`
}

// TransferConfig holds processor behaviour.
type TransferConfig struct {
	// LocalDir is where POST /api/v1/files/fetch writes downloaded files.
	LocalDir string `mapstructure:"local_dir" validate:"required"`

	StrictDownload       bool `mapstructure:"strict_download"`
	TolerateRaceOnCreate bool `mapstructure:"tolerate_race_on_create"`
}

// Load reads configuration from path (optional) and the environment, applies
// defaults and validates the result.
//
// Environment variables use the FTPGATE_ prefix with dots replaced by
// underscores, e.g. FTPGATE_FTP_PASSWORD or FTPGATE_POOL_MAX_TOTAL.
func Load(path string) (*Config, error) {
	v := viper.New()
	setupViper(v, path)

	if err := readConfigFile(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	ApplyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

func setupViper(v *viper.Viper, path string) {
	v.SetEnvPrefix("FTPGATE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.AddConfigPath(".")
		v.SetConfigName("ftpgate")
		v.SetConfigType("yaml")
	}
}

func readConfigFile(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}
	return nil
}

// setDefaults registers every key so AutomaticEnv overrides reach Unmarshal
// even when the file does not mention them.
func setDefaults(v *viper.Viper) {
	endpoint := goftp.Config{}.WithDefaults()
	pool := goftp.DefaultPoolConfig()

	v.SetDefault("logging.verbosity", 0)

	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.shutdown_timeout", 15*time.Second)
	v.SetDefault("server.max_upload_size", int64(64<<20))

	v.SetDefault("ftp.host", "")
	v.SetDefault("ftp.port", endpoint.Port)
	v.SetDefault("ftp.user", "")
	v.SetDefault("ftp.password", "")
	v.SetDefault("ftp.encoding", endpoint.Encoding)
	v.SetDefault("ftp.buffer_size", endpoint.BufferSize)
	v.SetDefault("ftp.retry_count", endpoint.RetryCount)
	v.SetDefault("ftp.retry_delay", endpoint.RetryDelay)
	v.SetDefault("ftp.timeout", endpoint.Timeout)
	v.SetDefault("ftp.disable_epsv", false)
	v.SetDefault("ftp.bastion.host", "")
	v.SetDefault("ftp.bastion.port", 0)
	v.SetDefault("ftp.bastion.user", "")
	v.SetDefault("ftp.bastion.key_path", "")
	v.SetDefault("ftp.bastion.password", "")
	v.SetDefault("ftp.bastion.known_hosts_file", "")
	v.SetDefault("ftp.bastion.insecure_ignore_host_key", false)

	v.SetDefault("pool.initial_size", 0)
	v.SetDefault("pool.min_idle", pool.MinIdle)
	v.SetDefault("pool.max_idle", pool.MaxIdle)
	v.SetDefault("pool.max_total", pool.MaxTotal)
	v.SetDefault("pool.min_evictable_idle", pool.MinEvictableIdle)
	v.SetDefault("pool.soft_min_evictable_idle", pool.SoftMinEvictableIdle)
	v.SetDefault("pool.eviction_interval", pool.EvictionInterval)
	v.SetDefault("pool.max_wait", pool.MaxWait)
	v.SetDefault("pool.test_on_borrow", pool.TestOnBorrow)
	v.SetDefault("pool.test_on_return", pool.TestOnReturn)
	v.SetDefault("pool.test_while_idle", pool.TestWhileIdle)

	v.SetDefault("transfer.local_dir", "./downloads")
	v.SetDefault("transfer.strict_download", false)
	v.SetDefault("transfer.tolerate_race_on_create", true)
}

// Endpoint converts the FTP section to a goftp.Config.
func (c *Config) Endpoint(logger logr.Logger) goftp.Config {
	return goftp.Config{
		Host:                  c.FTP.Host,
		Port:                  c.FTP.Port,
		User:                  c.FTP.User,
		Password:              c.FTP.Password,
		Encoding:              c.FTP.Encoding,
		BufferSize:            c.FTP.BufferSize,
		RetryCount:            c.FTP.RetryCount,
		RetryDelay:            c.FTP.RetryDelay,
		Timeout:               c.FTP.Timeout,
		DisableEPSV:           c.FTP.DisableEPSV,
		BastionHost:           c.FTP.Bastion.Host,
		BastionPort:           c.FTP.Bastion.Port,
		BastionUser:           c.FTP.Bastion.User,
		BastionKeyPath:        c.FTP.Bastion.KeyPath,
		BastionPassword:       c.FTP.Bastion.Password,
		KnownHostsFile:        c.FTP.Bastion.KnownHostsFile,
		InsecureIgnoreHostKey: c.FTP.Bastion.InsecureIgnoreHostKey,
		Logger:                logger,
	}
}

// PoolSettings converts the pool section to a goftp.PoolConfig.
func (c *Config) PoolSettings() goftp.PoolConfig {
	return goftp.PoolConfig{
		MinIdle:              c.Pool.MinIdle,
		MaxIdle:              c.Pool.MaxIdle,
		MaxTotal:             c.Pool.MaxTotal,
		MinEvictableIdle:     c.Pool.MinEvictableIdle,
		SoftMinEvictableIdle: c.Pool.SoftMinEvictableIdle,
		EvictionInterval:     c.Pool.EvictionInterval,
		MaxWait:              c.Pool.MaxWait,
		TestOnBorrow:         c.Pool.TestOnBorrow,
		TestOnReturn:         c.Pool.TestOnReturn,
		TestWhileIdle:        c.Pool.TestWhileIdle,
	}
}
