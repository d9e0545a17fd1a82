package goftp

import (
	"fmt"
	"strings"

	"github.com/go-logr/logr"
)

// DirectoryReconciler makes sure a remote directory path exists, creating
// missing segments one at a time.
type DirectoryReconciler struct {
	// TolerateRaceOnCreate keeps walking when the server refuses to create
	// or enter a segment, on the assumption that someone else created it
	// concurrently or the server reported a false failure. The walk then
	// succeeds once every segment was tried, and the caller's own CWD into
	// the target reports a directory that really is missing. When false the
	// first refusal aborts the walk with ErrIOFailure.
	//
	// Transport failures (the connection dropped mid-walk) abort in both modes.
	TolerateRaceOnCreate bool

	charset string
	logger  logr.Logger
}

// NewDirectoryReconciler creates a reconciler that encodes names with the
// charset of config.
func NewDirectoryReconciler(config Config) *DirectoryReconciler {
	config = config.WithDefaults()
	return &DirectoryReconciler{
		TolerateRaceOnCreate: true,
		charset:              config.Encoding,
		logger:               config.Logger.WithName("reconciler"),
	}
}

// EnsureDirectory creates every missing segment of remotePath on the session
// and leaves the session's working directory inside it. Root is a no-op.
//
// Errors wrap ErrIOFailure. Reply errors from MKD or CWD are only reported
// when TolerateRaceOnCreate is false; a LIST reply error means the segment
// is absent.
func (r *DirectoryReconciler) EnsureDirectory(s *Session, remotePath string) error {
	dir := remotePath
	if !strings.HasSuffix(dir, "/") {
		dir += "/"
	}
	if dir == "/" {
		return nil
	}

	conn := s.Conn()

	full, err := encodePath(dir, r.charset)
	if err != nil {
		return fmt.Errorf("%w: encode %q: %w", ErrIOFailure, remotePath, err)
	}
	if err := conn.ChangeDir(full); err == nil {
		return nil
	}

	// Borrowed sessions start at root, so relative paths are rooted there too.
	prefix := "/"

	for _, segment := range SplitSegments(remotePath) {
		encoded, err := EncodeName(segment, r.charset)
		if err != nil {
			return fmt.Errorf("%w: encode segment %q: %w", ErrIOFailure, segment, err)
		}
		prefix = joinRemote(prefix, encoded)

		exists, err := r.exists(conn, prefix)
		if err != nil {
			return fmt.Errorf("%w: check %s: %w", ErrIOFailure, prefix, err)
		}

		if !exists {
			if err := conn.MakeDir(prefix); err != nil {
				if !r.tolerate(err) {
					return fmt.Errorf("%w: create %s: %w", ErrIOFailure, prefix, err)
				}
				r.logger.Info("failed to create directory, continuing", "dir", prefix, "error", err.Error())
			} else {
				r.logger.V(1).Info("created directory", "dir", prefix)
			}
		}

		if err := conn.ChangeDir(prefix); err != nil {
			if !r.tolerate(err) {
				return fmt.Errorf("%w: enter %s: %w", ErrIOFailure, prefix, err)
			}
			r.logger.Info("failed to enter directory, continuing", "dir", prefix, "error", err.Error())
			continue
		}
		r.logger.V(1).Info("entered directory", "dir", prefix)
	}

	return nil
}

// tolerate reports whether a failed MKD or CWD should not stop the walk.
func (r *DirectoryReconciler) tolerate(err error) bool {
	return r.TolerateRaceOnCreate && isReplyError(err)
}

// Exists reports whether listing remotePath yields at least one entry.
// An empty directory therefore reports false.
func (r *DirectoryReconciler) Exists(s *Session, remotePath string) (bool, error) {
	encoded, err := encodePath(remotePath, r.charset)
	if err != nil {
		return false, err
	}
	return r.exists(s.Conn(), encoded)
}

func (r *DirectoryReconciler) exists(conn ServerConn, encoded string) (bool, error) {
	entries, err := conn.List(encoded)
	if err != nil {
		if isReplyError(err) {
			return false, nil
		}
		return false, err
	}
	return len(entries) > 0, nil
}

// SplitSegments splits a slash separated path into its non-empty segments.
func SplitSegments(remotePath string) []string {
	parts := strings.Split(remotePath, "/")
	segments := parts[:0]
	for _, p := range parts {
		if p != "" {
			segments = append(segments, p)
		}
	}
	return segments
}
