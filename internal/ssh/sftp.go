package ssh

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/sftp"
	xssh "golang.org/x/crypto/ssh"
)

// OpenSFTP starts an SFTP session on an established connection.
func OpenSFTP(client *xssh.Client) (*sftp.Client, error) {
	sf, err := sftp.NewClient(client)
	if err != nil {
		return nil, fmt.Errorf("sftp client: %w", err)
	}
	return sf, nil
}

// PullFile downloads remotePath to localPath and returns the SHA-256 of the
// content. When wantSHA256 is set and does not match, nothing is written.
// The local file is replaced atomically.
func PullFile(ctx context.Context, sf *sftp.Client, remotePath, localPath, wantSHA256 string) (string, error) {
	if err := os.MkdirAll(filepath.Dir(localPath), 0700); err != nil {
		return "", fmt.Errorf("mkdir local: %w", err)
	}
	src, err := sf.Open(remotePath)
	if err != nil {
		return "", fmt.Errorf("open remote: %w", err)
	}
	defer src.Close()

	tmp, err := os.CreateTemp(filepath.Dir(localPath), ".pull-*")
	if err != nil {
		return "", fmt.Errorf("create local: %w", err)
	}
	defer os.Remove(tmp.Name())

	h := sha256.New()
	if _, err := io.Copy(io.MultiWriter(tmp, h), &ctxReader{ctx: ctx, r: src}); err != nil {
		tmp.Close()
		return "", fmt.Errorf("copy: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", err
	}
	sum := hex.EncodeToString(h.Sum(nil))
	if wantSHA256 != "" && !strings.EqualFold(sum, wantSHA256) {
		return sum, fmt.Errorf("checksum mismatch for %s: got %s, want %s", remotePath, sum, wantSHA256)
	}
	if err := os.Rename(tmp.Name(), localPath); err != nil {
		return "", fmt.Errorf("rename: %w", err)
	}
	return sum, nil
}

// ctxReader stops a copy once ctx is done.
type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
