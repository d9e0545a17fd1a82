package goftp

import (
	"context"
	"fmt"

	"github.com/go-logr/logr"
	"github.com/jlaffaye/ftp"
	"golang.org/x/crypto/ssh"
)

// DialFunc opens an unauthenticated control connection to addr.
type DialFunc func(ctx context.Context, addr string, opts ...ftp.DialOption) (ServerConn, error)

// DialFTP is the default DialFunc, backed by github.com/jlaffaye/ftp.
func DialFTP(ctx context.Context, addr string, opts ...ftp.DialOption) (ServerConn, error) {
	opts = append([]ftp.DialOption{ftp.DialWithContext(ctx)}, opts...)
	conn, err := ftp.Dial(addr, opts...)
	if err != nil {
		return nil, err
	}
	return &ServerConnWrapper{conn: conn}, nil
}

// SessionFactory creates, validates and destroys single FTP sessions.
type SessionFactory struct {
	config Config
	dial   DialFunc
	logger logr.Logger
}

// FactoryOption configures a SessionFactory.
type FactoryOption func(*SessionFactory)

// WithDialFunc replaces the network dialer. Tests use it to inject fake servers.
func WithDialFunc(dial DialFunc) FactoryOption {
	return func(f *SessionFactory) {
		f.dial = dial
	}
}

// NewSessionFactory creates a factory for the given endpoint.
func NewSessionFactory(config Config, opts ...FactoryOption) (*SessionFactory, error) {
	config = config.WithDefaults()
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid ftp config: %w", err)
	}

	f := &SessionFactory{
		config: config,
		dial:   DialFTP,
		logger: config.Logger.WithName("factory"),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f, nil
}

// Config returns the endpoint configuration with defaults applied.
func (f *SessionFactory) Config() Config {
	return f.config
}

// Create dials, authenticates and configures a new session. A partially
// opened connection is closed before the error is returned.
func (f *SessionFactory) Create(ctx context.Context) (*Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnectFailed, err)
	}

	dialOpts := []ftp.DialOption{
		ftp.DialWithTimeout(f.config.Timeout),
		ftp.DialWithDisabledEPSV(f.config.DisableEPSV),
	}

	var bastion *ssh.Client
	if f.config.BastionHost != "" {
		var err error
		bastion, err = connectToBastion(f.config)
		if err != nil {
			return nil, fmt.Errorf("%w: failed to connect to bastion host: %w", ErrConnectFailed, err)
		}
		dialOpts = append(dialOpts, ftp.DialWithDialFunc(bastionDialer(bastion)))
	}

	conn, err := f.dial(ctx, f.config.Addr(), dialOpts...)
	if err != nil {
		if bastion != nil {
			bastion.Close()
		}
		return nil, fmt.Errorf("%w: failed to connect to %s: %w", ErrConnectFailed, f.config.Addr(), err)
	}

	session := NewSession(conn)
	session.bastion = bastion

	if err := f.configure(session); err != nil {
		if cerr := session.close(); cerr != nil {
			f.logger.V(1).Info("closing half-open session failed", "session", session.ID(), "error", cerr.Error())
		}
		f.logger.Error(err, "failed to establish ftp session", "addr", f.config.Addr())
		return nil, fmt.Errorf("%w: %w", ErrConnectFailed, err)
	}

	f.logger.V(1).Info("session created", "session", session.ID(), "addr", f.config.Addr())
	return session, nil
}

func (f *SessionFactory) configure(s *Session) error {
	if err := s.conn.Login(f.config.User, f.config.Password); err != nil {
		return fmt.Errorf("login as %q: %w", f.config.User, err)
	}
	if err := s.conn.Type(ftp.TransferTypeBinary); err != nil {
		return fmt.Errorf("set binary transfer type: %w", err)
	}
	return nil
}

// Validate reports whether the session is connected and answers a NOOP.
// It never returns an error.
func (f *SessionFactory) Validate(s *Session) bool {
	if s == nil || !s.IsConnected() {
		return false
	}
	if err := s.conn.NoOp(); err != nil {
		f.logger.V(1).Info("session failed validation", "session", s.ID(), "error", err.Error())
		return false
	}
	return true
}

// Destroy closes the session. It is safe to call more than once; close errors
// are logged and swallowed.
func (f *SessionFactory) Destroy(s *Session) {
	if s == nil {
		return
	}
	if err := s.close(); err != nil {
		f.logger.V(1).Info("error closing session", "session", s.ID(), "error", err.Error())
	}
}

// Activate resets per-borrow state: the working directory goes back to root.
func (f *SessionFactory) Activate(s *Session) error {
	if err := s.conn.ChangeDir("/"); err != nil {
		return fmt.Errorf("reset working directory: %w", err)
	}
	return nil
}

// Passivate is called before a session re-enters the idle set.
func (f *SessionFactory) Passivate(*Session) error {
	return nil
}
