package filexfer

import (
	"bufio"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/marmos91/proactor/internal/logger"
)

// DefaultConcurrency bounds GetMany when no limit is given.
const DefaultConcurrency = 4

// StatusError is returned by the client for any non-200 status.
type StatusError struct {
	Status Status
}

func (e *StatusError) Error() string {
	return "server responded " + string(e.Status)
}

// Is lets errors.Is(err, ErrFileNotFound) match a 404.
func (e *StatusError) Is(target error) bool {
	return target == ErrFileNotFound && e.Status == StatusNotFound
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithBase64 makes the client request and send base64 bodies.
func WithBase64(enabled bool) ClientOption {
	return func(c *Client) { c.base64 = enabled }
}

// WithTimeout bounds each request, dial included. 0 disables the bound.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) { c.timeout = d }
}

// WithClientChunkSize sets the raw chunk size for base64 uploads.
func WithClientChunkSize(n int) ClientOption {
	return func(c *Client) { c.chunkSize = n }
}

// WithChunkDecoding makes base64 downloads decode each network read on its
// own instead of as a stream. It reproduces the legacy client and fails on
// reads that split a 4-byte group.
func WithChunkDecoding(enabled bool) ClientOption {
	return func(c *Client) { c.chunkDecoding = enabled }
}

// Client issues one request per connection.
type Client struct {
	addr          string
	timeout       time.Duration
	base64        bool
	chunkSize     int
	chunkDecoding bool
}

// NewClient creates a client for the server at addr.
func NewClient(addr string, opts ...ClientOption) *Client {
	c := &Client{addr: addr, chunkSize: DefaultChunkSize}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) dial(ctx context.Context) (net.Conn, context.CancelFunc, error) {
	cancel := context.CancelFunc(func() {})
	if c.timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
	}

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", c.addr)
	if err != nil {
		cancel()
		return nil, nil, fmt.Errorf("connect to %s: %w", c.addr, err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	// Unblock pending I/O when ctx ends.
	stop := context.AfterFunc(ctx, func() { _ = conn.SetDeadline(time.Unix(1, 0)) })
	return conn, func() { stop(); cancel() }, nil
}

// Get downloads remotePath into w and returns the number of bytes written.
func (c *Client) Get(ctx context.Context, remotePath string, w io.Writer) (int64, error) {
	conn, cancel, err := c.dial(ctx)
	if err != nil {
		return 0, err
	}
	defer cancel()
	defer func() { _ = conn.Close() }()

	req := NewRequest(MethodGet, remotePath)
	req.Base64 = c.base64
	if err := req.Write(conn); err != nil {
		return 0, fmt.Errorf("send request: %w", err)
	}

	br := bufio.NewReader(conn)
	status, err := ReadStatus(br)
	if err != nil {
		return 0, err
	}
	if status != StatusOK {
		return 0, &StatusError{Status: status}
	}

	var body io.Reader = br
	if c.base64 {
		if c.chunkDecoding {
			body = NewChunkDecoder(br, base64.StdEncoding.EncodedLen(c.chunkSize))
		} else {
			body = NewStreamDecoder(br)
		}
	}

	n, err := io.Copy(w, body)
	if err != nil {
		return n, fmt.Errorf("receive %s: %w", remotePath, err)
	}
	return n, nil
}

// Post uploads r as remotePath. size is the body length, or -1 when
// unknown; an unknown-length raw body is framed by half-closing the
// connection.
func (c *Client) Post(ctx context.Context, remotePath string, r io.Reader, size int64) error {
	conn, cancel, err := c.dial(ctx)
	if err != nil {
		return err
	}
	defer cancel()
	defer func() { _ = conn.Close() }()

	req := NewRequest(MethodPost, remotePath)
	req.Base64 = c.base64
	if size >= 0 {
		req.ContentLength = size
		if c.base64 {
			req.ContentLength = int64(base64.StdEncoding.EncodedLen(int(size)))
		}
	}

	bw := bufio.NewWriter(conn)
	if err := req.Write(bw); err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	if err := c.writeBody(bw, r, size); err != nil {
		return fmt.Errorf("send body: %w", err)
	}
	if err := bw.Flush(); err != nil {
		return fmt.Errorf("send body: %w", err)
	}

	if size < 0 && !c.base64 {
		if tcp, ok := conn.(interface{ CloseWrite() error }); ok {
			if err := tcp.CloseWrite(); err != nil {
				return fmt.Errorf("half-close: %w", err)
			}
		}
	}

	status, err := ReadStatus(bufio.NewReader(conn))
	if err != nil {
		return err
	}
	if status != StatusOK {
		return &StatusError{Status: status}
	}
	return nil
}

func (c *Client) writeBody(w io.Writer, r io.Reader, size int64) error {
	if size >= 0 {
		r = io.LimitReader(r, size)
	}

	if !c.base64 {
		n, err := io.Copy(w, r)
		if err == nil && size >= 0 && n != size {
			return fmt.Errorf("body: %w", io.ErrUnexpectedEOF)
		}
		return err
	}

	enc := NewEncoder(w, c.chunkSize)
	if _, err := io.Copy(enc, r); err != nil {
		return err
	}
	if err := enc.Close(); err != nil {
		return err
	}
	if size < 0 {
		_, err := io.WriteString(w, Terminator)
		return err
	}
	return nil
}

// GetFile downloads remotePath to localPath, creating parent directories.
// A partially written file is removed on failure.
func (c *Client) GetFile(ctx context.Context, remotePath, localPath string) (int64, error) {
	if err := os.MkdirAll(filepath.Dir(localPath), 0o755); err != nil {
		return 0, err
	}
	f, err := os.Create(localPath)
	if err != nil {
		return 0, err
	}

	n, err := c.Get(ctx, remotePath, f)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(localPath)
		return n, err
	}
	return n, nil
}

// PostFile uploads localPath as remotePath.
func (c *Client) PostFile(ctx context.Context, localPath, remotePath string) error {
	f, err := os.Open(localPath)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()

	info, err := f.Stat()
	if err != nil {
		return err
	}
	return c.Post(ctx, remotePath, f, info.Size())
}

// PathError records which download of a GetMany batch failed.
type PathError struct {
	Path string
	Err  error
}

func (e *PathError) Error() string { return e.Path + ": " + e.Err.Error() }

func (e *PathError) Unwrap() error { return e.Err }

// GetMany downloads every path in remotePaths below destDir with at most
// concurrency requests in flight. All downloads are attempted; the failures
// are returned joined, one *PathError each.
func (c *Client) GetMany(ctx context.Context, remotePaths []string, destDir string, concurrency int) error {
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}

	var g errgroup.Group
	g.SetLimit(concurrency)

	errs := make([]error, len(remotePaths))
	for i, p := range remotePaths {
		g.Go(func() error {
			rel, err := CleanPath(p)
			if err != nil {
				errs[i] = &PathError{Path: p, Err: err}
				return nil
			}
			n, err := c.GetFile(ctx, p, filepath.Join(destDir, filepath.FromSlash(rel)))
			if err != nil {
				errs[i] = &PathError{Path: p, Err: err}
				return nil
			}
			logger.Debug("Downloaded file", "path", p, "bytes", n)
			return nil
		})
	}
	_ = g.Wait()

	return errors.Join(errs...)
}

// ReadList parses a download list: one path per line, blank lines and
// lines starting with '#' ignored.
func ReadList(r io.Reader) ([]string, error) {
	var paths []string
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		paths = append(paths, line)
	}
	return paths, sc.Err()
}
