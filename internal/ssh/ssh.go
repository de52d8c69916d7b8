// Package ssh fetches files from the data host over SSH/SFTP.
package ssh

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/pkg/sftp"
	xssh "golang.org/x/crypto/ssh"
)

// Target names a data host and the credentials used to reach it.
type Target struct {
	Addr     string
	User     string
	Signer   xssh.Signer
	HostKeys xssh.HostKeyCallback
	Timeout  time.Duration
}

func (t Target) clientConfig() (*xssh.ClientConfig, error) {
	switch {
	case t.Signer == nil:
		return nil, errors.New("ssh: signer required")
	case t.HostKeys == nil:
		return nil, errors.New("ssh: known hosts callback required")
	}
	return &xssh.ClientConfig{
		User:            t.User,
		Auth:            []xssh.AuthMethod{xssh.PublicKeys(t.Signer)},
		HostKeyCallback: t.HostKeys,
		Timeout:         t.Timeout,
	}, nil
}

// Dial opens an SSH connection to t. The handshake is bounded by ctx's
// deadline; the returned client is owned by the caller.
func Dial(ctx context.Context, t Target) (*xssh.Client, error) {
	cfg, err := t.clientConfig()
	if err != nil {
		return nil, err
	}
	conn, err := (&net.Dialer{Timeout: t.Timeout}).DialContext(ctx, "tcp", t.Addr)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", t.Addr, err)
	}
	if dl, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(dl)
	}
	c, chans, reqs, err := xssh.NewClientConn(conn, t.Addr, cfg)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("ssh handshake %s: %w", t.Addr, err)
	}
	_ = conn.SetDeadline(time.Time{})
	return xssh.NewClient(c, chans, reqs), nil
}

// Session is an SFTP session over its own SSH connection.
type Session struct {
	conn *xssh.Client
	SFTP *sftp.Client
}

// Connect dials t and starts SFTP on the connection.
func Connect(ctx context.Context, t Target) (*Session, error) {
	conn, err := Dial(ctx, t)
	if err != nil {
		return nil, err
	}
	sf, err := OpenSFTP(conn)
	if err != nil {
		conn.Close()
		return nil, err
	}
	return &Session{conn: conn, SFTP: sf}, nil
}

// Pull downloads remotePath to localPath. See PullFile.
func (s *Session) Pull(ctx context.Context, remotePath, localPath, wantSHA256 string) (string, error) {
	return PullFile(ctx, s.SFTP, remotePath, localPath, wantSHA256)
}

func (s *Session) Close() error {
	serr := s.SFTP.Close()
	if err := s.conn.Close(); err != nil {
		return err
	}
	return serr
}
