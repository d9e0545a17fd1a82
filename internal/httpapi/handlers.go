// Package httpapi exposes the FTP processor over HTTP with gin.
package httpapi

import (
	"context"
	"io"
	"mime/multipart"
	"net/http"
	"path"
	"time"

	"github.com/darshan-rambhia/goftp"
	"github.com/gin-gonic/gin"
	"github.com/go-logr/logr"
)

// FileService is the subset of *goftp.Processor the handlers use.
type FileService interface {
	Upload(ctx context.Context, dir, name string, src io.Reader) error
	Download(ctx context.Context, dir, name, localDir string) (int64, error)
	DownloadTo(ctx context.Context, dir, name string, w io.Writer) (int64, error)
	Delete(ctx context.Context, dir, name string) error
	ListFiles(ctx context.Context, dir string) ([]goftp.FileEntry, error)
	Find(ctx context.Context, dir, name string) (goftp.FileEntry, bool, error)
}

// PoolStater reports pool occupancy.
type PoolStater interface {
	Stats() goftp.PoolStats
}

// Options configures a Handler.
type Options struct {
	// LocalDir receives files fetched with POST /api/v1/files/fetch.
	LocalDir string

	// MaxUploadSize caps multipart request bodies in bytes. Zero means no cap.
	MaxUploadSize int64

	Logger logr.Logger
}

// Handler serves the file API.
type Handler struct {
	files     FileService
	pool      PoolStater
	localDir  string
	maxUpload int64
	logger    logr.Logger
}

// NewHandler creates a Handler over files and pool.
func NewHandler(files FileService, pool PoolStater, opts Options) *Handler {
	logger := opts.Logger
	if logger.GetSink() == nil {
		logger = logr.Discard()
	}
	return &Handler{
		files:     files,
		pool:      pool,
		localDir:  opts.LocalDir,
		maxUpload: opts.MaxUploadSize,
		logger:    logger.WithName("httpapi"),
	}
}

// fileRef identifies a remote file by directory and name.
type fileRef struct {
	Path string `form:"path" json:"path" binding:"required"`
	Name string `form:"name" json:"name" binding:"required"`
}

type uploadForm struct {
	Path string                `form:"path" binding:"required"`
	Name string                `form:"name"`
	File *multipart.FileHeader `form:"file" binding:"required"`
}

type fileInfo struct {
	Name    string    `json:"name"`
	Size    uint64    `json:"size"`
	IsDir   bool      `json:"is_dir"`
	ModTime time.Time `json:"mod_time,omitempty"`
}

// Upload handles POST /api/v1/files.
func (h *Handler) Upload(c *gin.Context) {
	if h.maxUpload > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUpload)
	}

	var form uploadForm
	if err := c.ShouldBind(&form); err != nil {
		respondError(c, http.StatusBadRequest, ErrInvalidRequest, err.Error())
		return
	}

	name := form.Name
	if name == "" {
		name = path.Base(form.File.Filename)
	}

	f, err := form.File.Open()
	if err != nil {
		respondError(c, http.StatusBadRequest, ErrInvalidRequest, err.Error())
		return
	}

	if err := h.files.Upload(c.Request.Context(), form.Path, name, f); err != nil {
		respondOpError(c, err)
		return
	}

	respondSuccess(c, gin.H{"path": form.Path, "name": name, "size": form.File.Size}, "uploaded")
}

// Get handles GET /api/v1/files and streams the remote file.
func (h *Handler) Get(c *gin.Context) {
	var ref fileRef
	if err := c.ShouldBindQuery(&ref); err != nil {
		respondError(c, http.StatusBadRequest, ErrInvalidRequest, err.Error())
		return
	}

	w := &attachmentWriter{c: c, name: ref.Name}
	n, err := h.files.DownloadTo(c.Request.Context(), ref.Path, ref.Name, w)
	if err != nil {
		if w.started {
			// Headers are gone; all we can do is cut the stream short.
			h.logger.Error(err, "stream aborted", "path", ref.Path, "name", ref.Name, "bytes", n)
			c.Abort()
			return
		}
		respondOpError(c, err)
		return
	}

	if !w.started {
		// Nothing was copied: either an empty file or no match.
		_, ok, err := h.files.Find(c.Request.Context(), ref.Path, ref.Name)
		if err != nil {
			respondOpError(c, err)
			return
		}
		if !ok {
			respondError(c, http.StatusNotFound, ErrNotFound, "no remote file matches "+ref.Name)
			return
		}
		w.start()
	}
}

// Fetch handles POST /api/v1/files/fetch, downloading into the server's local directory.
func (h *Handler) Fetch(c *gin.Context) {
	var ref fileRef
	if err := c.ShouldBindJSON(&ref); err != nil {
		respondError(c, http.StatusBadRequest, ErrInvalidRequest, err.Error())
		return
	}

	n, err := h.files.Download(c.Request.Context(), ref.Path, ref.Name, h.localDir)
	if err != nil {
		respondOpError(c, err)
		return
	}

	respondSuccess(c, gin.H{"bytes": n, "local_dir": h.localDir}, "fetched")
}

// Delete handles DELETE /api/v1/files.
func (h *Handler) Delete(c *gin.Context) {
	var ref fileRef
	if err := c.ShouldBindQuery(&ref); err != nil {
		respondError(c, http.StatusBadRequest, ErrInvalidRequest, err.Error())
		return
	}

	if err := h.files.Delete(c.Request.Context(), ref.Path, ref.Name); err != nil {
		respondOpError(c, err)
		return
	}

	respondSuccess(c, nil, "deleted")
}

// ListDir handles GET /api/v1/dirs.
func (h *Handler) ListDir(c *gin.Context) {
	dir := c.DefaultQuery("path", "/")

	entries, err := h.files.ListFiles(c.Request.Context(), dir)
	if err != nil {
		respondOpError(c, err)
		return
	}

	out := make([]fileInfo, 0, len(entries))
	for _, e := range entries {
		out = append(out, fileInfo{Name: e.Name, Size: e.Size, IsDir: e.IsDir, ModTime: e.ModTime})
	}
	respondSuccess(c, out, "")
}

// PoolStats handles GET /api/v1/pool.
func (h *Handler) PoolStats(c *gin.Context) {
	respondSuccess(c, h.pool.Stats(), "")
}

// Health handles GET /healthz.
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// attachmentWriter sends download headers on the first write.
type attachmentWriter struct {
	c       *gin.Context
	name    string
	started bool
}

func (w *attachmentWriter) start() {
	if w.started {
		return
	}
	w.started = true
	w.c.Header("Content-Type", "application/octet-stream")
	w.c.Header("Content-Disposition", `attachment; filename="`+path.Base(w.name)+`"`)
	w.c.Status(http.StatusOK)
	w.c.Writer.WriteHeaderNow()
}

func (w *attachmentWriter) Write(p []byte) (int, error) {
	w.start()
	return w.c.Writer.Write(p)
}
