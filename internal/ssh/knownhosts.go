package ssh

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	xssh "golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
)

// EnsureKnownHostsFile creates path, and its directory, if missing.
func EnsureKnownHostsFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("known_hosts dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDONLY, 0600)
	if err != nil {
		return fmt.Errorf("known_hosts: %w", err)
	}
	return f.Close()
}

// AppendKnownHost records authorizedKey as the key of host:port and
// returns the key's SHA256 fingerprint. With hashed set the host name is
// stored hashed, as ssh-keygen -H does.
func AppendKnownHost(path, host string, port int, authorizedKey string, hashed bool) (string, error) {
	pubKey, _, _, _, err := xssh.ParseAuthorizedKey([]byte(strings.TrimSpace(authorizedKey)))
	if err != nil {
		return "", fmt.Errorf("parse authorized key: %w", err)
	}
	if err := EnsureKnownHostsFile(path); err != nil {
		return "", err
	}
	addr := host
	if port != 0 && port != 22 {
		addr = net.JoinHostPort(host, strconv.Itoa(port))
	}
	addr = knownhosts.Normalize(addr)
	if hashed {
		addr = knownhosts.HashHostname(addr)
	}
	line := knownhosts.Line([]string{addr}, pubKey)
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0600)
	if err != nil {
		return "", fmt.Errorf("open known_hosts: %w", err)
	}
	defer f.Close()
	if _, err := f.WriteString(line + "\n"); err != nil {
		return "", fmt.Errorf("write known_hosts: %w", err)
	}
	return xssh.FingerprintSHA256(pubKey), nil
}

// LoadKnownHostsCallback returns a strict host key callback backed by path.
// Hosts missing from the file are rejected with a hint to trust them first.
func LoadKnownHostsCallback(path string) (xssh.HostKeyCallback, error) {
	if err := EnsureKnownHostsFile(path); err != nil {
		return nil, err
	}
	cb, err := knownhosts.New(path)
	if err != nil {
		return nil, err
	}
	return func(hostname string, remote net.Addr, key xssh.PublicKey) error {
		err := cb(hostname, remote, key)
		var ke *knownhosts.KeyError
		if errors.As(err, &ke) && len(ke.Want) == 0 {
			return fmt.Errorf("host %s (%s) is not in %s; run 'saltamt impacts trust' first: %w",
				hostname, xssh.FingerprintSHA256(key), path, err)
		}
		return err
	}, nil
}
