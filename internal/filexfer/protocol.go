// Package filexfer implements the line-framed GET/POST file transfer
// protocol and its base64 bulk variant.
//
// Wire format:
//
//	GET /docs/a.txt\r\n
//	Encoding: base64\r\n
//	\r\n
//
// The server answers with a status line followed by a blank line, then the
// file bytes for a successful GET:
//
//	200 OK\r\n\r\n<body>
//
// POST bodies follow the blank line. Their length is taken from
// Content-Length when present, otherwise the body runs until the client
// half-closes the connection (or, for base64 bodies, until "\r\n\r\n").
package filexfer

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"net/textproto"
	"path"
	"strconv"
	"strings"
)

// Method is a request method.
type Method string

const (
	MethodGet  Method = "GET"
	MethodPost Method = "POST"
)

// Status is a response status line without its terminator.
type Status string

const (
	StatusOK            Status = "200 OK"
	StatusBadRequest    Status = "400 BAD REQUEST"
	StatusNotFound      Status = "404 FILE NOT FOUND"
	StatusInternalError Status = "500 INTERNAL ERROR"
)

const (
	HeaderContentLength = "Content-Length"
	HeaderEncoding      = "Encoding"

	EncodingBase64 = "base64"

	// Terminator ends a status line and an unsized base64 body.
	Terminator = "\r\n\r\n"

	maxHeaders = 32
)

var (
	ErrMalformedRequest  = errors.New("malformed request")
	ErrUnsupportedMethod = errors.New("unsupported method")
	ErrInvalidPath       = errors.New("invalid path")
	ErrBodyTooLarge      = errors.New("body exceeds maximum size")
	ErrMalformedStatus   = errors.New("malformed status line")
)

// Request is a parsed request head.
type Request struct {
	Method Method
	Path   string

	// ContentLength is the declared body size, or -1 when absent.
	ContentLength int64

	// Base64 is set when the body (POST) or response (GET) is base64 text.
	Base64 bool

	// Header holds every header line, keyed canonically.
	Header textproto.MIMEHeader
}

// NewRequest builds a request with no body length and no headers.
func NewRequest(m Method, p string) *Request {
	return &Request{Method: m, Path: p, ContentLength: -1, Header: textproto.MIMEHeader{}}
}

// ReadRequest parses a request head from br. The body, if any, is left
// unread in br.
func ReadRequest(br *bufio.Reader) (*Request, error) {
	line, err := readLine(br)
	if err != nil {
		return nil, err
	}

	method, target, ok := strings.Cut(line, " ")
	if !ok || target == "" {
		return nil, fmt.Errorf("%w: request line %q", ErrMalformedRequest, line)
	}

	req := NewRequest(Method(method), target)
	switch req.Method {
	case MethodGet, MethodPost:
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedMethod, method)
	}

	for i := 0; ; i++ {
		line, err := readLine(br)
		if err != nil {
			// A bare request line followed by EOF has no headers.
			if i == 0 && errors.Is(err, io.EOF) && req.Method == MethodGet {
				break
			}
			return nil, err
		}
		if line == "" {
			break
		}
		if i == maxHeaders {
			return nil, fmt.Errorf("%w: too many headers", ErrMalformedRequest)
		}

		key, value, ok := strings.Cut(line, ":")
		if !ok || strings.TrimSpace(key) == "" {
			return nil, fmt.Errorf("%w: header %q", ErrMalformedRequest, line)
		}
		req.Header.Add(textproto.CanonicalMIMEHeaderKey(strings.TrimSpace(key)), strings.TrimSpace(value))
	}

	if v := req.Header.Get(HeaderContentLength); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil || n < 0 {
			return nil, fmt.Errorf("%w: content length %q", ErrMalformedRequest, v)
		}
		req.ContentLength = n
	}
	if enc := req.Header.Get(HeaderEncoding); enc != "" {
		if !strings.EqualFold(enc, EncodingBase64) {
			return nil, fmt.Errorf("%w: encoding %q", ErrMalformedRequest, enc)
		}
		req.Base64 = true
	}

	return req, nil
}

// Write serialises the request head.
func (r *Request) Write(w io.Writer) error {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s\r\n", r.Method, r.Path)
	if r.ContentLength >= 0 {
		fmt.Fprintf(&b, "%s: %d\r\n", HeaderContentLength, r.ContentLength)
	}
	if r.Base64 {
		fmt.Fprintf(&b, "%s: %s\r\n", HeaderEncoding, EncodingBase64)
	}
	for k, vs := range r.Header {
		if k == HeaderContentLength || k == HeaderEncoding {
			continue
		}
		for _, v := range vs {
			fmt.Fprintf(&b, "%s: %s\r\n", k, v)
		}
	}
	b.WriteString("\r\n")

	_, err := io.WriteString(w, b.String())
	return err
}

// WriteStatus writes s followed by the terminator.
func WriteStatus(w io.Writer, s Status) error {
	_, err := io.WriteString(w, string(s)+Terminator)
	return err
}

// ReadStatus reads a status line and the blank line after it.
func ReadStatus(br *bufio.Reader) (Status, error) {
	line, err := readLine(br)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrMalformedStatus, err)
	}
	blank, err := readLine(br)
	if err != nil || blank != "" {
		return "", fmt.Errorf("%w: %q", ErrMalformedStatus, line)
	}

	switch s := Status(line); s {
	case StatusOK, StatusBadRequest, StatusNotFound, StatusInternalError:
		return s, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrMalformedStatus, line)
	}
}

// CleanPath turns a request path into a slash-separated path relative to
// the served root. It never contains "..", and "" or "/" are rejected.
func CleanPath(p string) (string, error) {
	rel := strings.TrimPrefix(path.Clean("/"+p), "/")
	if rel == "" || strings.ContainsRune(rel, 0) {
		return "", fmt.Errorf("%w: %q", ErrInvalidPath, p)
	}
	return rel, nil
}

// readLine reads one CRLF or LF terminated line, bounded by br's buffer.
func readLine(br *bufio.Reader) (string, error) {
	line, err := br.ReadSlice('\n')
	if err != nil {
		if errors.Is(err, bufio.ErrBufferFull) {
			return "", fmt.Errorf("%w: line too long", ErrMalformedRequest)
		}
		if errors.Is(err, io.EOF) && len(line) > 0 {
			return "", fmt.Errorf("%w: unterminated line", ErrMalformedRequest)
		}
		return "", err
	}
	return strings.TrimRight(string(line), "\r\n"), nil
}
