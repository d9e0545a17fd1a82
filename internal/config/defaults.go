package config

import (
	"strings"
	"time"
)

// ApplyDefaults fills zero values left by a partial configuration.
// Boolean switches are not touched; their defaults come from Load.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = ":8080"
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = 15 * time.Second
	}
	if cfg.Server.MaxUploadSize == 0 {
		cfg.Server.MaxUploadSize = 64 << 20
	}

	if cfg.FTP.Port == 0 {
		cfg.FTP.Port = 21
	}
	cfg.FTP.Encoding = strings.TrimSpace(cfg.FTP.Encoding)
	if cfg.FTP.Encoding == "" {
		cfg.FTP.Encoding = "UTF-8"
	}
	if cfg.FTP.BufferSize == 0 {
		cfg.FTP.BufferSize = 4096
	}
	if cfg.FTP.RetryCount == 0 {
		cfg.FTP.RetryCount = 3
	}
	if cfg.FTP.Timeout == 0 {
		cfg.FTP.Timeout = 30 * time.Second
	}
	if cfg.FTP.Bastion.Host != "" && cfg.FTP.Bastion.Port == 0 {
		cfg.FTP.Bastion.Port = 22
	}

	if cfg.Pool.MaxTotal == 0 {
		cfg.Pool.MaxTotal = 8
	}
	if cfg.Pool.MaxIdle == 0 {
		cfg.Pool.MaxIdle = cfg.Pool.MaxTotal
	}
	if cfg.Pool.MaxWait == 0 {
		cfg.Pool.MaxWait = 5 * time.Second
	}

	if cfg.Transfer.LocalDir == "" {
		cfg.Transfer.LocalDir = "./downloads"
	}
}
