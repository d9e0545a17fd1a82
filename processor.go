package goftp

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-logr/logr"
	"github.com/jlaffaye/ftp"
)

// Processor is the public file operation surface. Every operation borrows a
// session from the pool and gives it back, released or discarded, before
// returning. Operations report failure through the returned error and never
// panic.
type Processor struct {
	pool           *Pool
	reconciler     *DirectoryReconciler
	strictDownload bool
	metrics        Metrics
	charset        string
	bufferSize     int
	logger         logr.Logger
}

// ProcessorOption configures a Processor.
type ProcessorOption func(*Processor)

// WithReconciler replaces the directory reconciler used by Upload.
func WithReconciler(r *DirectoryReconciler) ProcessorOption {
	return func(p *Processor) {
		if r != nil {
			p.reconciler = r
		}
	}
}

// WithStrictDownload makes Download and DownloadTo return ErrNotFound when no
// remote file matches, instead of succeeding with nothing written.
func WithStrictDownload() ProcessorOption {
	return func(p *Processor) {
		p.strictDownload = true
	}
}

// WithMetrics sets the sink for per-operation measurements.
func WithMetrics(m Metrics) ProcessorOption {
	return func(p *Processor) {
		if m != nil {
			p.metrics = m
		}
	}
}

// NewProcessor creates a Processor on top of pool. A nil pool yields a
// Processor whose every operation fails with ErrNotInitialized.
func NewProcessor(pool *Pool, opts ...ProcessorOption) *Processor {
	var config Config
	if pool != nil {
		config = pool.EndpointConfig()
	}
	config = config.WithDefaults()

	p := &Processor{
		pool:       pool,
		reconciler: NewDirectoryReconciler(config),
		metrics:    noopMetrics{},
		charset:    config.Encoding,
		bufferSize: config.BufferSize,
		logger:     config.Logger.WithName("processor"),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Upload stores src as dir/name, creating dir first if needed. If src is an
// io.Closer it is closed before Upload returns.
func (p *Processor) Upload(ctx context.Context, dir, name string, src io.Reader) error {
	if c, ok := src.(io.Closer); ok {
		defer c.Close()
	}

	return p.run(ctx, "upload", dir, name, true, func(s *Session) error {
		conn := s.Conn()
		if err := conn.Type(ftp.TransferTypeBinary); err != nil {
			return err
		}
		if err := p.reconciler.EnsureDirectory(s, dir); err != nil {
			return err
		}
		if err := p.enterDir(conn, dir, true); err != nil {
			return err
		}

		encName, err := EncodeName(name, p.charset)
		if err != nil {
			return localError{err}
		}
		return conn.Stor(encName, bufio.NewReaderSize(src, p.bufferSize))
	})
}

// UploadLocalFile uploads the file at localPath as dir/name.
func (p *Processor) UploadLocalFile(ctx context.Context, dir, name, localPath string) error {
	f, err := os.Open(localPath)
	if err != nil {
		err = &OpError{Op: "upload", Path: dir, Name: name, Err: err}
		p.logger.Error(err, "cannot open local file", "local", localPath)
		return err
	}
	return p.Upload(ctx, dir, name, f)
}

// Download copies the remote file dir/name into localDir, keeping the
// server's spelling of the name. The name is matched case-insensitively. When
// nothing matches Download returns 0 and a nil error, unless the Processor was
// built WithStrictDownload.
func (p *Processor) Download(ctx context.Context, dir, name, localDir string) (int64, error) {
	return p.download(ctx, "download", dir, name, func(remoteName string) (io.WriteCloser, string, error) {
		target := filepath.Join(localDir, filepath.Base(p.decode(remoteName)))
		f, err := os.Create(target)
		if err != nil {
			return nil, "", err
		}
		return f, target, nil
	})
}

// DownloadTo streams the remote file dir/name into w.
func (p *Processor) DownloadTo(ctx context.Context, dir, name string, w io.Writer) (int64, error) {
	return p.download(ctx, "download", dir, name, func(string) (io.WriteCloser, string, error) {
		return nopWriteCloser{w}, "", nil
	})
}

type openFunc func(remoteName string) (w io.WriteCloser, localPath string, err error)

func (p *Processor) download(ctx context.Context, op, dir, name string, open openFunc) (int64, error) {
	var written int64
	err := p.run(ctx, op, dir, name, true, func(s *Session) error {
		conn := s.Conn()
		if err := p.enterDir(conn, dir, false); err != nil {
			return err
		}

		entries, err := conn.List("")
		if err != nil {
			return err
		}

		match := p.matchFile(entries, name)
		if match == nil {
			if p.strictDownload {
				return ErrNotFound
			}
			p.logger.Info("no remote file matched, nothing downloaded", "path", dir, "name", name)
			return nil
		}

		written, err = p.retrieve(conn, match.Name, open)
		return err
	})
	return written, err
}

// Find looks up dir/name with the same case-insensitive match Download uses.
// Unlike ListFiles it reports empty files too.
func (p *Processor) Find(ctx context.Context, dir, name string) (FileEntry, bool, error) {
	var (
		entry FileEntry
		found bool
	)
	err := p.run(ctx, "find", dir, name, true, func(s *Session) error {
		conn := s.Conn()
		if err := p.enterDir(conn, dir, false); err != nil {
			return err
		}
		entries, err := conn.List("")
		if err != nil {
			return err
		}
		if m := p.matchFile(entries, name); m != nil {
			found = true
			entry = FileEntry{Name: p.decode(m.Name), Size: m.Size, ModTime: m.Time}
		}
		return nil
	})
	return entry, found, err
}

// matchFile returns the first file entry whose decoded name equals name,
// ignoring case.
func (p *Processor) matchFile(entries []*ftp.Entry, name string) *ftp.Entry {
	for _, e := range entries {
		if e == nil || e.Type == ftp.EntryTypeFolder {
			continue
		}
		if strings.EqualFold(p.decode(e.Name), name) {
			return e
		}
	}
	return nil
}

func (p *Processor) retrieve(conn ServerConn, remoteName string, open openFunc) (int64, error) {
	w, localPath, err := open(remoteName)
	if err != nil {
		return 0, localError{err}
	}

	n, err := p.copyRemote(conn, remoteName, w)
	if cerr := w.Close(); cerr != nil && err == nil {
		err = localError{cerr}
	}
	if err != nil && localPath != "" {
		os.Remove(localPath)
	}
	return n, err
}

func (p *Processor) copyRemote(conn ServerConn, remoteName string, w io.Writer) (int64, error) {
	rc, err := conn.Retr(remoteName)
	if err != nil {
		return 0, err
	}

	n, err := io.CopyBuffer(w, rc, make([]byte, p.bufferSize))
	if cerr := rc.Close(); cerr != nil && err == nil {
		err = cerr
	}
	return n, err
}

// Delete removes dir/name and logs the session out. The session is always
// discarded afterwards since a logged out session cannot be reused.
func (p *Processor) Delete(ctx context.Context, dir, name string) error {
	return p.run(ctx, "delete", dir, name, false, func(s *Session) error {
		conn := s.Conn()
		if err := p.enterDir(conn, dir, false); err != nil {
			return err
		}
		encName, err := EncodeName(name, p.charset)
		if err != nil {
			return localError{err}
		}
		if err := conn.Delete(encName); err != nil {
			return err
		}
		if err := s.Logout(); err != nil {
			p.logger.V(1).Info("logout after delete failed", "session", s.ID(), "error", err.Error())
		}
		return nil
	})
}

// ListFileNames returns the names of the entries under dir whose size is
// greater than zero. The result is never nil.
func (p *Processor) ListFileNames(ctx context.Context, dir string) ([]string, error) {
	entries, err := p.ListFiles(ctx, dir)
	if err != nil {
		return []string{}, err
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name)
	}
	return names, nil
}

// ListFiles returns the entries under dir whose size is greater than zero,
// with names decoded to UTF-8. The result is never nil.
func (p *Processor) ListFiles(ctx context.Context, dir string) ([]FileEntry, error) {
	files := []FileEntry{}
	err := p.run(ctx, "list", dir, "", true, func(s *Session) error {
		encDir, err := encodePath(dir+"/", p.charset)
		if err != nil {
			return localError{err}
		}
		entries, err := s.Conn().List(encDir)
		if err != nil {
			return err
		}
		for _, e := range entries {
			if e == nil || e.Size == 0 {
				continue
			}
			files = append(files, FileEntry{
				Name:    p.decode(e.Name),
				Size:    e.Size,
				IsDir:   e.Type == ftp.EntryTypeFolder,
				ModTime: e.Time,
			})
		}
		return nil
	})
	if err != nil {
		return []FileEntry{}, err
	}
	return files, nil
}

// ReadLines retrieves remoteFile and returns its lines, trimmed, with blank
// lines dropped.
func (p *Processor) ReadLines(ctx context.Context, remoteFile string) ([]string, error) {
	lines := []string{}
	err := p.run(ctx, "read", remoteFile, "", true, func(s *Session) error {
		encoded, err := encodePath(remoteFile, p.charset)
		if err != nil {
			return localError{err}
		}
		rc, err := s.Conn().Retr(encoded)
		if err != nil {
			return err
		}

		// Lines have no length limit, and the last one may lack a newline.
		br := bufio.NewReaderSize(rc, p.bufferSize)
		for {
			line, rerr := br.ReadString('\n')
			if line = strings.TrimSpace(line); line != "" {
				lines = append(lines, line)
			}
			if rerr != nil {
				if rerr != io.EOF {
					err = rerr
				}
				break
			}
		}
		if cerr := rc.Close(); cerr != nil && err == nil {
			err = cerr
		}
		return err
	})
	if err != nil {
		return []string{}, err
	}
	return lines, nil
}

// Exists reports whether listing remotePath yields at least one entry.
func (p *Processor) Exists(ctx context.Context, remotePath string) (bool, error) {
	var found bool
	err := p.run(ctx, "exists", remotePath, "", true, func(s *Session) error {
		var err error
		found, err = p.reconciler.Exists(s, remotePath)
		return err
	})
	return found, err
}

// decode turns a listed name back into UTF-8, falling back to the raw name.
func (p *Processor) decode(name string) string {
	decoded, err := DecodeName(name, p.charset)
	if err != nil {
		return name
	}
	return decoded
}

// enterDir changes into dir. With mkdir it first issues a best-effort MKD
// whose result is ignored.
func (p *Processor) enterDir(conn ServerConn, dir string, mkdir bool) error {
	if dir == "" {
		return nil
	}
	if !strings.HasPrefix(dir, "/") {
		dir = "/" + dir
	}
	encDir, err := encodePath(dir, p.charset)
	if err != nil {
		return localError{err}
	}
	if mkdir {
		_ = conn.MakeDir(encDir)
	}
	return conn.ChangeDir(encDir)
}

// run borrows a session, calls fn and hands the session back. With reuse
// false the session is discarded even on success.
func (p *Processor) run(ctx context.Context, op, dir, name string, reuse bool, fn func(*Session) error) (err error) {
	start := time.Now()
	defer func() {
		p.metrics.Operation(op, time.Since(start), err)
	}()

	if p.pool == nil {
		return &OpError{Op: op, Path: dir, Name: name, Err: ErrNotInitialized}
	}

	s, err := p.pool.Acquire(ctx)
	if err != nil {
		err = &OpError{Op: op, Path: dir, Name: name, Err: err}
		p.logger.Error(err, "cannot borrow ftp session")
		return err
	}

	defer func() {
		if r := recover(); r != nil {
			s.Invalidate()
			p.pool.Discard(s)
			err = &OpError{Op: op, Path: dir, Name: name, Err: fmt.Errorf("%w: panic: %v", ErrIOFailure, r)}
			p.logger.Error(err, "ftp operation panicked", "session", s.ID())
		}
	}()

	ferr := fn(s)
	p.finish(s, ferr, reuse)

	if ferr != nil {
		err = &OpError{Op: op, Path: dir, Name: name, Err: ferr}
		if !errors.Is(ferr, ErrNotFound) {
			p.logger.Error(err, "ftp operation failed", "session", s.ID())
		}
		return err
	}
	return nil
}

// finish releases s when it is still usable and discards it otherwise. FTP
// reply errors leave the control connection intact; anything else may have
// broken it mid-command, so the session is invalidated first.
func (p *Processor) finish(s *Session, err error, reuse bool) {
	var local localError
	switch {
	case !reuse:
		p.pool.Discard(s)
	case err == nil, isReplyError(err), errors.Is(err, ErrNotFound), errors.As(err, &local):
		p.pool.Release(s)
	default:
		s.Invalidate()
		p.pool.Discard(s)
	}
}

// localError marks a failure on the local side of a transfer.
type localError struct {
	err error
}

func (e localError) Error() string { return e.err.Error() }
func (e localError) Unwrap() error { return e.err }

type nopWriteCloser struct {
	io.Writer
}

func (nopWriteCloser) Close() error { return nil }
