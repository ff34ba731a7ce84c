package filexfer

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"

	"github.com/marmos91/proactor/internal/logger"
	"github.com/marmos91/proactor/internal/telemetry"
	"github.com/marmos91/proactor/pkg/adapter"
	"github.com/marmos91/proactor/pkg/bufpool"
	"github.com/marmos91/proactor/pkg/proactor"
)

// ProtocolName is used for logs and metrics labels.
const ProtocolName = "files"

// DefaultMaxBodySize bounds POST bodies when no limit is configured.
const DefaultMaxBodySize int64 = 64 << 20

const (
	lingerTimeout        = 500 * time.Millisecond
	lingerMaxBytes int64 = 256 << 10
)

var (
	// ErrFileBusy is returned when a POST target is locked by another writer.
	ErrFileBusy = errors.New("file is locked by another writer")

	// ErrFileNotFound matches a StatusError carrying StatusNotFound.
	ErrFileNotFound = errors.New("file not found")
)

// Metrics records completed requests. A nil Metrics disables collection.
type Metrics interface {
	RecordRequest(method, status string, bytes int64, duration time.Duration)
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithMaxBodySize bounds POST bodies. Values <= 0 are ignored.
func WithMaxBodySize(n int64) ServerOption {
	return func(s *Server) {
		if n > 0 {
			s.maxBodySize = n
		}
	}
}

// WithChunkSize sets the raw chunk size used for base64 responses.
func WithChunkSize(n int) ServerOption {
	return func(s *Server) {
		if n > 0 {
			s.chunkSize = n
		}
	}
}

// WithServerMetrics sets the metrics sink.
func WithServerMetrics(m Metrics) ServerOption {
	return func(s *Server) { s.metrics = m }
}

// Server serves files below a root directory. It implements
// adapter.Protocol. Paths are resolved through os.Root, so neither ".."
// nor symlinks can reach outside the root.
type Server struct {
	dir         string
	root        *os.Root
	maxBodySize int64
	chunkSize   int
	metrics     Metrics
}

var _ adapter.Protocol = (*Server)(nil)

// NewServer creates the root directory if needed and opens it.
func NewServer(dir string, opts ...ServerOption) (*Server, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create files root %s: %w", dir, err)
	}
	root, err := os.OpenRoot(dir)
	if err != nil {
		return nil, fmt.Errorf("open files root %s: %w", dir, err)
	}

	s := &Server{
		dir:         dir,
		root:        root,
		maxBodySize: DefaultMaxBodySize,
		chunkSize:   DefaultChunkSize,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Close releases the root directory handle.
func (s *Server) Close() error {
	return s.root.Close()
}

// Dir returns the served directory.
func (s *Server) Dir() string { return s.dir }

func (s *Server) Name() string { return ProtocolName }

func (s *Server) Callback() proactor.Callback { return proactor.OnHandle(s.Serve) }

// Serve handles exactly one request on h.
func (s *Server) Serve(ctx context.Context, h proactor.Handle) {
	start := time.Now()

	ctx, span := telemetry.StartSpan(ctx, telemetry.SpanFileRequest,
		trace.WithAttributes(telemetry.HandleID(uint64(h.ID())), telemetry.ConnID(adapter.ConnID(h))))
	defer span.End()

	lc := adapter.LogContext(ProtocolName, h).WithTrace(telemetry.TraceID(ctx), telemetry.SpanID(ctx))
	ctx = logger.WithContext(ctx, lc)

	br := bufio.NewReader(h)
	req, err := ReadRequest(br)
	if err != nil {
		logger.WarnCtx(ctx, "Rejected file request", "error", err)
		telemetry.RecordError(ctx, err)
		s.finish(ctx, "", StatusBadRequest, 0, start)
		_ = WriteStatus(h, StatusBadRequest)
		return
	}

	telemetry.SetAttributes(ctx, telemetry.Method(string(req.Method)), telemetry.Path(req.Path))
	if req.Base64 {
		telemetry.SetAttributes(ctx, telemetry.Encoding(EncodingBase64))
	}

	var (
		status Status
		n      int64
	)
	switch req.Method {
	case MethodGet:
		status, n, err = s.get(h, req)
	case MethodPost:
		status, n, err = s.post(h, br, req)
		if status != StatusOK {
			lingerDrain(h, br)
		}
	}

	if err != nil {
		telemetry.RecordError(ctx, err)
		logger.WarnCtx(ctx, "File request failed",
			"method", string(req.Method), "path", req.Path, "status", string(status), "error", err)
	}
	s.finish(ctx, req.Method, status, n, start)
	logger.InfoCtx(ctx, "File request completed",
		"method", string(req.Method),
		"path", req.Path,
		"status", string(status),
		"bytes", n,
		"duration_ms", logger.Duration(start))
}

func (s *Server) finish(ctx context.Context, m Method, status Status, n int64, start time.Time) {
	telemetry.SetAttributes(ctx, telemetry.Status(string(status)), telemetry.Bytes(n))
	if s.metrics != nil {
		s.metrics.RecordRequest(string(m), string(status), n, time.Since(start))
	}
}

// get writes the status and, on success, the file contents. The returned
// status has already been sent.
func (s *Server) get(w io.Writer, req *Request) (Status, int64, error) {
	name, err := CleanPath(req.Path)
	if err != nil {
		return s.reply(w, StatusBadRequest, err)
	}

	f, err := s.root.Open(name)
	if err != nil {
		return s.reply(w, statusFor(err), err)
	}
	defer func() { _ = f.Close() }()

	info, err := f.Stat()
	if err != nil {
		return s.reply(w, StatusInternalError, err)
	}
	if info.IsDir() {
		return s.reply(w, StatusNotFound, fmt.Errorf("%s is a directory", name))
	}

	if err := lockShared(f); err != nil {
		return s.reply(w, StatusInternalError, fmt.Errorf("lock %s: %w", name, err))
	}
	defer func() { _ = unlock(f) }()

	if err := WriteStatus(w, StatusOK); err != nil {
		return StatusOK, 0, err
	}

	if !req.Base64 {
		n, err := bufpool.Copy(w, f)
		return StatusOK, n, err
	}

	enc := NewEncoder(w, s.chunkSize)
	if _, err := bufpool.Copy(enc, f); err != nil {
		return StatusOK, enc.Written(), err
	}
	err = enc.Close()
	return StatusOK, enc.Written(), err
}

// post replaces the target with the request body. The target is untouched
// unless the whole body arrived. The response is written only after the body
// has been consumed.
func (s *Server) post(w io.Writer, br *bufio.Reader, req *Request) (Status, int64, error) {
	// Consume the body before rejecting so the peer reads the status
	// instead of a reset.
	fail := func(st Status, err error) (Status, int64, error) {
		_, _ = io.Copy(io.Discard, s.body(br, req))
		return s.reply(w, st, err)
	}

	name, err := CleanPath(req.Path)
	if err != nil {
		return fail(StatusBadRequest, err)
	}
	if req.ContentLength > s.maxBodySize {
		return s.reply(w, StatusBadRequest, fmt.Errorf("%w: %d > %d", ErrBodyTooLarge, req.ContentLength, s.maxBodySize))
	}

	dir := path.Dir(name)
	if dir != "." {
		if err := s.root.MkdirAll(dir, 0o755); err != nil {
			return fail(statusFor(err), err)
		}
	}

	_, statErr := s.root.Stat(name)
	existed := statErr == nil

	// The target is only opened to hold the lock; the body is staged in a
	// sibling file and renamed over it on success.
	f, err := s.root.OpenFile(name, os.O_WRONLY|os.O_CREATE, 0o644)
	if err != nil {
		return fail(statusFor(err), err)
	}
	defer func() { _ = f.Close() }()

	if err := tryLockExclusive(f); err != nil {
		return fail(StatusInternalError, fmt.Errorf("lock %s: %w", name, err))
	}
	defer func() { _ = unlock(f) }()

	discard := func() {
		if !existed {
			_ = s.root.Remove(name)
		}
	}

	tmpName := path.Join(dir, "."+path.Base(name)+".tmp-"+uuid.NewString())
	tmp, err := s.root.OpenFile(tmpName, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		discard()
		return fail(statusFor(err), err)
	}

	n, err := bufpool.Copy(tmp, s.body(br, req))
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err == nil {
		err = s.root.Rename(tmpName, name)
	}
	if err != nil {
		_ = s.root.Remove(tmpName)
		discard()
	}

	st := StatusOK
	switch {
	case err == nil:
	case errors.Is(err, ErrBodyTooLarge), errors.Is(err, io.ErrUnexpectedEOF), isCorruptBase64(err):
		st = StatusBadRequest
	default:
		st = StatusInternalError
	}

	st, _, err = s.reply(w, st, err)
	return st, n, err
}

// body returns the decoded POST body reader, bounded by maxBodySize.
func (s *Server) body(br *bufio.Reader, req *Request) io.Reader {
	var r io.Reader = br
	switch {
	case req.ContentLength >= 0:
		r = &exactReader{r: io.LimitReader(br, req.ContentLength), remaining: req.ContentLength}
	case req.Base64:
		r = newTerminatedReader(br)
	}
	if req.Base64 {
		r = NewStreamDecoder(r)
	}
	return &maxReader{r: r, remaining: s.maxBodySize}
}

func (s *Server) reply(w io.Writer, st Status, cause error) (Status, int64, error) {
	if err := WriteStatus(w, st); err != nil && cause == nil {
		cause = err
	}
	return st, 0, cause
}

func statusFor(err error) Status {
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return StatusNotFound
	case errors.Is(err, ErrInvalidPath):
		return StatusBadRequest
	default:
		return StatusInternalError
	}
}

// lingerDrain discards what the peer is still sending after a rejected
// upload, so closing the socket does not reset the connection before the
// status has been read.
func lingerDrain(h proactor.Handle, br *bufio.Reader) {
	if c, ok := proactor.Conn(h); ok {
		_ = c.SetReadDeadline(time.Now().Add(lingerTimeout))
	}
	_, _ = io.CopyN(io.Discard, br, lingerMaxBytes)
}

// exactReader fails with io.ErrUnexpectedEOF when the peer stops before
// the declared Content-Length.
type exactReader struct {
	r         io.Reader
	remaining int64
}

func (e *exactReader) Read(p []byte) (int, error) {
	n, err := e.r.Read(p)
	e.remaining -= int64(n)
	if err == io.EOF && e.remaining > 0 {
		return n, io.ErrUnexpectedEOF
	}
	return n, err
}

// maxReader fails with ErrBodyTooLarge instead of silently truncating.
type maxReader struct {
	r         io.Reader
	remaining int64
}

func (m *maxReader) Read(p []byte) (int, error) {
	if m.remaining < 0 {
		return 0, ErrBodyTooLarge
	}
	if int64(len(p)) > m.remaining+1 {
		p = p[:m.remaining+1]
	}
	n, err := m.r.Read(p)
	m.remaining -= int64(n)
	if m.remaining < 0 {
		return n + int(m.remaining), ErrBodyTooLarge
	}
	return n, err
}
