package goftp

import (
	"strings"
	"testing"
	"time"
)

func TestConfig_WithDefaults(t *testing.T) {
	tests := []struct {
		name   string
		input  Config
		expect func(t *testing.T, c Config)
	}{
		{
			name:  "zero value gets defaults",
			input: Config{Host: "ftp.example.com"},
			expect: func(t *testing.T, c Config) {
				if c.Port != 21 {
					t.Errorf("Port = %d, want 21", c.Port)
				}
				if c.Encoding != "UTF-8" {
					t.Errorf("Encoding = %q, want UTF-8", c.Encoding)
				}
				if c.BufferSize != 4096 {
					t.Errorf("BufferSize = %d, want 4096", c.BufferSize)
				}
				if c.RetryCount != 3 {
					t.Errorf("RetryCount = %d, want 3", c.RetryCount)
				}
				if c.RetryDelay != 100*time.Millisecond {
					t.Errorf("RetryDelay = %v, want 100ms", c.RetryDelay)
				}
				if c.Timeout != 30*time.Second {
					t.Errorf("Timeout = %v, want 30s", c.Timeout)
				}
				if c.BastionPort != 0 {
					t.Errorf("BastionPort = %d, want 0 without bastion", c.BastionPort)
				}
				if c.Logger.GetSink() == nil {
					t.Error("expected default logger")
				}
			},
		},
		{
			name:  "custom values preserved",
			input: Config{Host: "h", Port: 2121, Encoding: "GBK", BufferSize: 1 << 16, RetryCount: 5, Timeout: time.Second},
			expect: func(t *testing.T, c Config) {
				if c.Port != 2121 || c.Encoding != "GBK" || c.BufferSize != 1<<16 || c.RetryCount != 5 || c.Timeout != time.Second {
					t.Errorf("custom values overwritten: %+v", c)
				}
			},
		},
		{
			name:  "bastion port defaults to 22",
			input: Config{Host: "h", BastionHost: "jump"},
			expect: func(t *testing.T, c Config) {
				if c.BastionPort != 22 {
					t.Errorf("BastionPort = %d, want 22", c.BastionPort)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.expect(t, tt.input.WithDefaults())
		})
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		config  Config
		wantErr string
	}{
		{name: "valid", config: Config{Host: "h", Port: 21}},
		{name: "missing host", config: Config{Port: 21}, wantErr: "host is required"},
		{name: "port out of range", config: Config{Host: "h", Port: 70000}, wantErr: "invalid port"},
		{name: "unknown encoding", config: Config{Host: "h", Encoding: "no-such-charset"}, wantErr: "unsupported encoding"},
		{name: "gbk encoding", config: Config{Host: "h", Encoding: "GBK"}},
		{name: "latin1 alias", config: Config{Host: "h", Encoding: "latin1"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() error = %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestConfig_Addr(t *testing.T) {
	c := Config{Host: "ftp.example.com", Port: 2121}
	if got := c.Addr(); got != "ftp.example.com:2121" {
		t.Errorf("Addr() = %q", got)
	}
}
