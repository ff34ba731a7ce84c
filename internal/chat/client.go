package chat

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
)

// Client is an interactive chat participant.
type Client struct {
	conn net.Conn
}

// Dial connects to the relay at addr.
func Dial(ctx context.Context, addr string) (*Client, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("connect to chat server %s: %w", addr, err)
	}
	return &Client{conn: conn}, nil
}

// Send writes one line to the relay.
func (c *Client) Send(line string) error {
	if !strings.HasSuffix(line, "\n") {
		line += "\n"
	}
	_, err := io.WriteString(c.conn, line)
	return err
}

// Close closes the connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

// Run copies relay output to out and lines from in to the relay. It returns
// after SIGNOUT is sent, when in is exhausted, when the server closes the
// connection or when ctx is cancelled. The connection is closed on return.
func (c *Client) Run(ctx context.Context, in io.Reader, out io.Writer) error {
	defer func() { _ = c.conn.Close() }()

	recvErr := make(chan error, 1)
	go func() {
		_, err := io.Copy(out, c.conn)
		recvErr <- err
	}()

	done := make(chan struct{})
	defer close(done)

	lines := make(chan string)
	inErr := make(chan error, 1)
	go func() {
		sc := bufio.NewScanner(in)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-done:
				return
			}
		}
		inErr <- sc.Err()
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case err := <-recvErr:
			if err != nil && !errors.Is(err, net.ErrClosed) {
				return fmt.Errorf("read from chat server: %w", err)
			}
			return nil

		case err := <-inErr:
			return err

		case line := <-lines:
			if err := c.Send(line); err != nil {
				return fmt.Errorf("send to chat server: %w", err)
			}
			if strings.HasPrefix(line, SignOut) {
				return nil
			}
		}
	}
}
