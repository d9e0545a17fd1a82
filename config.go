package goftp

import (
	"fmt"
	"log"
	"os"
	"time"

	"github.com/go-logr/logr"
	"github.com/go-logr/stdr"
)

// Config holds FTP endpoint configuration.
//
// A Config is treated as immutable once a SessionFactory has been built from it.
type Config struct {
	// Host is the FTP server hostname or IP address.
	Host string

	// Port is the FTP control port (default 21).
	Port int

	// User is the FTP username.
	User string

	// Password is the FTP password.
	Password string

	// Encoding is the local charset file and directory names are encoded to
	// before they are sent to the server (default UTF-8).
	Encoding string

	// BufferSize is the transfer buffer size in bytes (default 4096).
	BufferSize int

	// RetryCount is the number of attempts Acquire makes before giving up (default 3).
	RetryCount int

	// RetryDelay is the initial backoff between acquisition attempts (default 100ms).
	RetryDelay time.Duration

	// Timeout is the dial timeout (default 30s).
	Timeout time.Duration

	// DisableEPSV forces PASV instead of EPSV for passive data connections.
	DisableEPSV bool

	// BastionHost is the hostname or IP of an SSH bastion/jump host.
	// When set, control and data connections are tunnelled through it.
	BastionHost string

	// BastionPort is the SSH port of the bastion host (default 22).
	BastionPort int

	// BastionUser is the SSH username for the bastion host.
	// Falls back to User if not set.
	BastionUser string

	// BastionKey is the private key content for the bastion host.
	BastionKey string

	// BastionKeyPath is the path to the private key for the bastion host.
	BastionKeyPath string

	// BastionPassword is the password for the bastion host.
	BastionPassword string

	// KnownHostsFile is the path to a known_hosts file for bastion host key verification.
	// If not set, defaults to ~/.ssh/known_hosts if it exists.
	KnownHostsFile string

	// InsecureIgnoreHostKey skips bastion host key verification.
	// WARNING: This is insecure and should only be used for testing.
	InsecureIgnoreHostKey bool

	// Logger receives pool, factory and processor logs.
	// The zero value logs through the standard library logger.
	Logger logr.Logger
}

// WithDefaults returns a copy of the config with default values applied.
func (c Config) WithDefaults() Config {
	if c.Port == 0 {
		c.Port = 21
	}
	if c.Encoding == "" {
		c.Encoding = "UTF-8"
	}
	if c.BufferSize <= 0 {
		c.BufferSize = 4096
	}
	if c.RetryCount <= 0 {
		c.RetryCount = 3
	}
	if c.RetryDelay == 0 {
		c.RetryDelay = 100 * time.Millisecond
	}
	if c.Timeout == 0 {
		c.Timeout = 30 * time.Second
	}
	if c.BastionPort == 0 && c.BastionHost != "" {
		c.BastionPort = 22
	}
	if c.Logger.GetSink() == nil {
		c.Logger = DefaultLogger()
	}
	return c
}

// Validate reports configuration errors that would make every dial fail.
func (c Config) Validate() error {
	if c.Host == "" {
		return fmt.Errorf("host is required")
	}
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	if c.Encoding != "" {
		if _, err := lookupCharset(c.Encoding); err != nil {
			return err
		}
	}
	return nil
}

// Addr returns the host:port dial address of the control connection.
func (c Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// DefaultLogger returns the logger used when Config.Logger is unset.
func DefaultLogger() logr.Logger {
	return stdr.New(log.New(os.Stderr, "", log.LstdFlags)).WithName("goftp")
}

// PoolConfig configures pool sizing, eviction and validation.
type PoolConfig struct {
	// MinIdle is the number of idle sessions the eviction sweep keeps warm.
	MinIdle int

	// MaxIdle caps the idle set (default 8).
	MaxIdle int

	// MaxTotal caps idle plus borrowed sessions (default 8).
	MaxTotal int

	// MinEvictableIdle is the hard idle timeout: idle sessions older than this
	// are always evicted (default 6s). Negative disables it.
	MinEvictableIdle time.Duration

	// SoftMinEvictableIdle evicts idle sessions older than this only while the
	// idle set is larger than MinIdle (default 50s). Negative disables it.
	SoftMinEvictableIdle time.Duration

	// EvictionInterval is the period of the background eviction sweep
	// (default 30s). Negative disables the sweep.
	EvictionInterval time.Duration

	// MaxWait bounds how long one acquisition attempt waits for a free slot
	// when the pool is at MaxTotal (default 5s).
	MaxWait time.Duration

	// TestOnBorrow validates sessions before handing them out.
	TestOnBorrow bool

	// TestOnReturn validates sessions before putting them back in the idle set.
	TestOnReturn bool

	// TestWhileIdle validates idle sessions during the eviction sweep.
	TestWhileIdle bool
}

// DefaultPoolConfig returns the pool settings the service has always run with:
// validation everywhere, a 6s hard idle timeout, 50s soft timeout and a 30s sweep.
func DefaultPoolConfig() PoolConfig {
	return PoolConfig{
		MinIdle:              0,
		MaxIdle:              8,
		MaxTotal:             8,
		MinEvictableIdle:     6 * time.Second,
		SoftMinEvictableIdle: 50 * time.Second,
		EvictionInterval:     30 * time.Second,
		MaxWait:              5 * time.Second,
		TestOnBorrow:         true,
		TestOnReturn:         true,
		TestWhileIdle:        true,
	}
}

// WithDefaults returns a copy of the pool config with sizing defaults applied.
// Validation flags are left as given.
func (c PoolConfig) WithDefaults() PoolConfig {
	d := DefaultPoolConfig()
	if c.MaxTotal <= 0 {
		c.MaxTotal = d.MaxTotal
	}
	if c.MaxIdle <= 0 {
		c.MaxIdle = d.MaxIdle
	}
	if c.MaxIdle > c.MaxTotal {
		c.MaxIdle = c.MaxTotal
	}
	if c.MinIdle < 0 {
		c.MinIdle = 0
	}
	if c.MinIdle > c.MaxIdle {
		c.MinIdle = c.MaxIdle
	}
	if c.MinEvictableIdle == 0 {
		c.MinEvictableIdle = d.MinEvictableIdle
	}
	if c.SoftMinEvictableIdle == 0 {
		c.SoftMinEvictableIdle = d.SoftMinEvictableIdle
	}
	if c.EvictionInterval == 0 {
		c.EvictionInterval = d.EvictionInterval
	}
	if c.MaxWait <= 0 {
		c.MaxWait = d.MaxWait
	}
	return c
}

// FileEntry is a remote directory entry.
type FileEntry struct {
	// Name is the entry name as reported by the server.
	Name string

	// Size is the entry size in bytes.
	Size uint64

	// IsDir is true for directories.
	IsDir bool

	// ModTime is the last modification time, when the server reports one.
	ModTime time.Time
}
