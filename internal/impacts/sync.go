package impacts

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/3cpo-dev/saltamt/internal/engine"
	"github.com/3cpo-dev/saltamt/internal/ssh"
)

// Sync downloads the impacts table described by remote to localPath over
// SFTP, verifying its SHA-256 when remote.SHA256 is set. It returns the
// digest of the downloaded file.
func Sync(ctx context.Context, remote engine.Remote, localPath string) (string, error) {
	if remote.Host == "" || remote.Path == "" {
		return "", fmt.Errorf("impacts remote needs host and path")
	}
	if remote.KeyPath == "" || remote.KnownHosts == "" {
		return "", fmt.Errorf("impacts remote needs key_path and known_hosts")
	}
	signer, err := ssh.LoadPrivateKeySigner(remote.KeyPath)
	if err != nil {
		return "", err
	}
	hostKeys, err := ssh.LoadKnownHostsCallback(remote.KnownHosts)
	if err != nil {
		return "", fmt.Errorf("known hosts: %w", err)
	}
	port := remote.Port
	if port == 0 {
		port = 22
	}
	target := ssh.Target{
		Addr:     net.JoinHostPort(remote.Host, strconv.Itoa(port)),
		User:     remote.User,
		Signer:   signer,
		HostKeys: hostKeys,
		Timeout:  30 * time.Second,
	}

	start := time.Now()
	sess, err := ssh.Connect(ctx, target)
	if err != nil {
		return "", err
	}
	defer sess.Close()

	digest, err := sess.Pull(ctx, remote.Path, localPath, remote.SHA256)
	if err != nil {
		return "", err
	}
	log.Info().
		Str("host", remote.Host).
		Str("path", remote.Path).
		Str("sha256", digest).
		Dur("elapsed", time.Since(start)).
		Msg("Synced impacts table")
	return digest, nil
}
