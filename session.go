package goftp

import (
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jlaffaye/ftp"
	"golang.org/x/crypto/ssh"
)

// ServerConn abstracts the FTP control connection for testing.
type ServerConn interface {
	Login(user, password string) error
	Type(transferType ftp.TransferType) error
	ChangeDir(path string) error
	MakeDir(path string) error
	List(path string) ([]*ftp.Entry, error)
	Stor(path string, r io.Reader) error
	Retr(path string) (io.ReadCloser, error)
	Delete(path string) error
	NoOp() error
	Logout() error
	Quit() error
}

// ServerConnWrapper wraps the real ftp.ServerConn to implement ServerConn.
type ServerConnWrapper struct {
	conn *ftp.ServerConn
}

var _ ServerConn = (*ServerConnWrapper)(nil)

func (w *ServerConnWrapper) Login(user, password string) error      { return w.conn.Login(user, password) }
func (w *ServerConnWrapper) Type(t ftp.TransferType) error          { return w.conn.Type(t) }
func (w *ServerConnWrapper) ChangeDir(path string) error            { return w.conn.ChangeDir(path) }
func (w *ServerConnWrapper) MakeDir(path string) error              { return w.conn.MakeDir(path) }
func (w *ServerConnWrapper) List(path string) ([]*ftp.Entry, error) { return w.conn.List(path) }
func (w *ServerConnWrapper) Stor(path string, r io.Reader) error    { return w.conn.Stor(path, r) }
func (w *ServerConnWrapper) Delete(path string) error               { return w.conn.Delete(path) }
func (w *ServerConnWrapper) NoOp() error                            { return w.conn.NoOp() }
func (w *ServerConnWrapper) Logout() error                          { return w.conn.Logout() }
func (w *ServerConnWrapper) Quit() error                            { return w.conn.Quit() }

func (w *ServerConnWrapper) Retr(path string) (io.ReadCloser, error) {
	resp, err := w.conn.Retr(path)
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// SessionState is the lifecycle state of a pooled session.
type SessionState int32

const (
	StateCreated SessionState = iota
	StateIdle
	StateBorrowed
	StateInvalid
	StateClosed
)

func (s SessionState) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateIdle:
		return "idle"
	case StateBorrowed:
		return "borrowed"
	case StateInvalid:
		return "invalid"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

var sessionIDs atomic.Uint64

// Session is one authenticated FTP connection owned by a Pool.
//
// A borrowed Session belongs to its borrower alone until it is passed back to
// Release or Discard.
type Session struct {
	id        uint64
	conn      ServerConn
	bastion   *ssh.Client // nil if no bastion host
	createdAt time.Time

	// guarded by the owning pool's mutex
	state        SessionState
	lastReturned time.Time
	borrowCount  int

	closeOnce sync.Once
	quit      atomic.Bool
	loggedOut atomic.Bool
	invalid   atomic.Bool
}

// NewSession wraps an already-authenticated connection.
// This is primarily used by custom dialers and tests.
func NewSession(conn ServerConn) *Session {
	now := time.Now()
	return &Session{
		id:           sessionIDs.Add(1),
		conn:         conn,
		createdAt:    now,
		lastReturned: now,
		state:        StateCreated,
	}
}

// ID returns a process-unique identifier for logging.
func (s *Session) ID() uint64 { return s.id }

// Conn returns the underlying control connection.
func (s *Session) Conn() ServerConn { return s.conn }

// CreatedAt returns when the session was dialed.
func (s *Session) CreatedAt() time.Time { return s.createdAt }

// IsConnected reports whether the control connection is still open, logged
// in and not invalidated.
func (s *Session) IsConnected() bool {
	return s.conn != nil && !s.quit.Load() && !s.loggedOut.Load() && !s.invalid.Load()
}

// Invalidate marks the session unusable, for example after a transfer broke
// mid-command. Validation fails from then on, so Release destroys it instead
// of returning it to the idle set.
func (s *Session) Invalidate() {
	s.invalid.Store(true)
}

// Invalid reports whether Invalidate was called.
func (s *Session) Invalid() bool {
	return s.invalid.Load()
}

// Logout ends the FTP login. The session cannot be reused afterwards.
func (s *Session) Logout() error {
	s.loggedOut.Store(true)
	return s.conn.Logout()
}

// close quits the control connection and any bastion tunnel once.
func (s *Session) close() (err error) {
	s.closeOnce.Do(func() {
		if s.conn != nil && !s.quit.Swap(true) {
			err = s.conn.Quit()
		}
		if s.bastion != nil {
			if cerr := s.bastion.Close(); cerr != nil && err == nil {
				err = cerr
			}
		}
	})
	return err
}
