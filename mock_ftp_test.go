package goftp

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/textproto"
	"path"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/jlaffaye/ftp"
)

var errMockConnClosed = errors.New("mock: connection reset by peer")

func replyError(code int, msg string) error {
	return &textproto.Error{Code: code, Msg: msg}
}

// MockServer is an in-memory FTP server shared by every connection it dials.
type MockServer struct {
	mu          sync.Mutex
	dirs        map[string]bool
	files       map[string][]byte
	shouldError map[string]error
	failDials   int
	dials       int
	quits       int
	calls       []string
	conns       []*MockServerConn
}

// NewMockServer creates a server holding only the root directory.
func NewMockServer() *MockServer {
	return &MockServer{
		dirs:        map[string]bool{"/": true},
		files:       make(map[string][]byte),
		shouldError: make(map[string]error),
	}
}

// Dial implements DialFunc.
func (m *MockServer) Dial(_ context.Context, _ string, _ ...ftp.DialOption) (ServerConn, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dials++
	if m.failDials > 0 {
		m.failDials--
		return nil, errors.New("dial tcp: connection refused")
	}
	if err, ok := m.shouldError["Dial"]; ok {
		return nil, err
	}
	conn := &MockServerConn{server: m, cwd: "/"}
	m.conns = append(m.conns, conn)
	return conn, nil
}

func (m *MockServer) SetError(op string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.shouldError[op] = err
}

func (m *MockServer) ClearError(op string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.shouldError, op)
}

// FailDials makes the next n dials fail with a connection refused error.
func (m *MockServer) FailDials(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failDials = n
}

func (m *MockServer) MkdirAll(p string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur := "/"
	for _, seg := range SplitSegments(p) {
		cur = path.Join(cur, seg)
		m.dirs[cur] = true
	}
}

func (m *MockServer) SetFile(p string, content []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.files[path.Clean(p)] = content
}

func (m *MockServer) File(p string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	content, ok := m.files[path.Clean(p)]
	return content, ok
}

func (m *MockServer) HasDir(p string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.dirs[path.Clean(p)]
}

func (m *MockServer) Dials() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.dials
}

func (m *MockServer) Quits() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.quits
}

// Calls returns the recorded commands whose verb is one of verbs, in order.
func (m *MockServer) Calls(verbs ...string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for _, c := range m.calls {
		verb, _, _ := strings.Cut(c, " ")
		for _, v := range verbs {
			if verb == v {
				out = append(out, c)
				break
			}
		}
	}
	return out
}

func (m *MockServer) ResetCalls() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = nil
}

// BreakAll severs every connection dialed so far.
func (m *MockServer) BreakAll() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.conns {
		c.broken = true
	}
}

// MockServerConn is one control connection to a MockServer.
type MockServerConn struct {
	server    *MockServer
	cwd       string
	loggedIn  bool
	loggedOut bool
	quit      bool
	broken    bool // guarded by server.mu
}

var _ ServerConn = (*MockServerConn)(nil)

// begin locks the server, records the command and returns any injected error.
// The caller must unlock server.mu.
func (c *MockServerConn) begin(op, verb, arg string) error {
	c.server.mu.Lock()
	if verb != "" {
		c.server.calls = append(c.server.calls, strings.TrimSpace(verb+" "+arg))
	}
	if c.broken || c.quit {
		return errMockConnClosed
	}
	if err, ok := c.server.shouldError[op]; ok {
		return err
	}
	return nil
}

func (c *MockServerConn) resolve(p string) string {
	if p == "" {
		return c.cwd
	}
	if !strings.HasPrefix(p, "/") {
		p = path.Join(c.cwd, p)
	}
	return path.Clean(p)
}

func (c *MockServerConn) Login(user, password string) error {
	defer c.server.mu.Unlock()
	if err := c.begin("Login", "USER", user); err != nil {
		return err
	}
	c.loggedIn = true
	return nil
}

func (c *MockServerConn) Type(ftp.TransferType) error {
	defer c.server.mu.Unlock()
	return c.begin("Type", "TYPE", "I")
}

func (c *MockServerConn) ChangeDir(p string) error {
	defer c.server.mu.Unlock()
	r := c.resolve(p)
	if err := c.begin("ChangeDir", "CWD", r); err != nil {
		return err
	}
	if !c.server.dirs[r] {
		return replyError(ftp.StatusFileUnavailable, "Failed to change directory.")
	}
	c.cwd = r
	return nil
}

// Cwd returns the connection's working directory without issuing a command.
func (c *MockServerConn) Cwd() string {
	c.server.mu.Lock()
	defer c.server.mu.Unlock()
	return c.cwd
}

func (c *MockServerConn) MakeDir(p string) error {
	defer c.server.mu.Unlock()
	r := c.resolve(p)
	if err := c.begin("MakeDir", "MKD", r); err != nil {
		return err
	}
	if c.server.dirs[r] {
		return replyError(ftp.StatusFileUnavailable, "Create directory operation failed.")
	}
	if !c.server.dirs[path.Dir(r)] {
		return replyError(ftp.StatusFileUnavailable, "Create directory operation failed.")
	}
	c.server.dirs[r] = true
	return nil
}

func (c *MockServerConn) List(p string) ([]*ftp.Entry, error) {
	defer c.server.mu.Unlock()
	r := c.resolve(p)
	if err := c.begin("List", "LIST", r); err != nil {
		return nil, err
	}

	if content, ok := c.server.files[r]; ok {
		return []*ftp.Entry{{Name: path.Base(r), Size: uint64(len(content)), Type: ftp.EntryTypeFile}}, nil
	}
	if !c.server.dirs[r] {
		return nil, nil
	}

	var entries []*ftp.Entry
	for d := range c.server.dirs {
		if d != r && path.Dir(d) == r {
			entries = append(entries, &ftp.Entry{Name: path.Base(d), Size: 4096, Type: ftp.EntryTypeFolder, Time: time.Unix(0, 0)})
		}
	}
	for f, content := range c.server.files {
		if path.Dir(f) == r {
			entries = append(entries, &ftp.Entry{Name: path.Base(f), Size: uint64(len(content)), Type: ftp.EntryTypeFile, Time: time.Unix(0, 0)})
		}
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
	return entries, nil
}

func (c *MockServerConn) Stor(p string, r io.Reader) error {
	data, readErr := io.ReadAll(r)

	defer c.server.mu.Unlock()
	target := c.resolve(p)
	if err := c.begin("Stor", "STOR", target); err != nil {
		return err
	}
	if readErr != nil {
		return readErr
	}
	if !c.server.dirs[path.Dir(target)] {
		return replyError(ftp.StatusFileUnavailable, "Could not create file.")
	}
	c.server.files[target] = data
	return nil
}

func (c *MockServerConn) Retr(p string) (io.ReadCloser, error) {
	defer c.server.mu.Unlock()
	r := c.resolve(p)
	if err := c.begin("Retr", "RETR", r); err != nil {
		return nil, err
	}
	content, ok := c.server.files[r]
	if !ok {
		return nil, replyError(ftp.StatusFileUnavailable, "Failed to open file.")
	}
	return io.NopCloser(bytes.NewReader(content)), nil
}

func (c *MockServerConn) Delete(p string) error {
	defer c.server.mu.Unlock()
	r := c.resolve(p)
	if err := c.begin("Delete", "DELE", r); err != nil {
		return err
	}
	if _, ok := c.server.files[r]; !ok {
		return replyError(ftp.StatusFileUnavailable, "Delete operation failed.")
	}
	delete(c.server.files, r)
	return nil
}

func (c *MockServerConn) NoOp() error {
	defer c.server.mu.Unlock()
	return c.begin("NoOp", "NOOP", "")
}

func (c *MockServerConn) Logout() error {
	defer c.server.mu.Unlock()
	if err := c.begin("Logout", "REIN", ""); err != nil {
		return err
	}
	c.loggedOut = true
	return nil
}

func (c *MockServerConn) Quit() error {
	c.server.mu.Lock()
	defer c.server.mu.Unlock()
	c.server.calls = append(c.server.calls, "QUIT")
	if c.quit {
		return errMockConnClosed
	}
	c.quit = true
	c.server.quits++
	return nil
}
