package ssh

import (
	"net"
	"path/filepath"
	"strings"
	"testing"
)

func TestKnownHostsAppendAndVerify(t *testing.T) {
	dir := t.TempDir()
	kh := filepath.Join(dir, "known_hosts")
	priv := filepath.Join(dir, "id_ed25519")
	pub, err := GenerateEd25519Keypair(priv, "")
	if err != nil {
		t.Fatalf("keygen: %v", err)
	}
	fp, err := AppendKnownHost(kh, "data.example.com", 2222, pub, false)
	if err != nil {
		t.Fatalf("append known host: %v", err)
	}
	if !strings.HasPrefix(fp, "SHA256:") {
		t.Fatalf("unexpected fingerprint %q", fp)
	}
	if _, err := AppendKnownHost(kh, "mirror.example.com", 22, pub, true); err != nil {
		t.Fatalf("append hashed host: %v", err)
	}
	if _, err := AppendKnownHost(kh, "bad.example.com", 22, "not a key", false); err == nil {
		t.Fatalf("expected parse error")
	}
	cb, err := LoadKnownHostsCallback(kh)
	if err != nil {
		t.Fatalf("load known hosts: %v", err)
	}
	signer, err := LoadPrivateKeySigner(priv)
	if err != nil {
		t.Fatal(err)
	}
	addr := &net.TCPAddr{IP: net.ParseIP("192.0.2.10"), Port: 2222}
	if err := cb("data.example.com:2222", addr, signer.PublicKey()); err != nil {
		t.Fatalf("known host rejected: %v", err)
	}
	if err := cb("mirror.example.com:22", addr, signer.PublicKey()); err != nil {
		t.Fatalf("hashed known host rejected: %v", err)
	}
	if err := cb("other.example.com:22", addr, signer.PublicKey()); err == nil {
		t.Fatalf("unknown host accepted")
	}
}

func TestKnownHostsUnknownHostHint(t *testing.T) {
	dir := t.TempDir()
	priv := filepath.Join(dir, "id_ed25519")
	if _, err := GenerateEd25519Keypair(priv, ""); err != nil {
		t.Fatal(err)
	}
	signer, err := LoadPrivateKeySigner(priv)
	if err != nil {
		t.Fatal(err)
	}
	cb, err := LoadKnownHostsCallback(filepath.Join(dir, "nested", "known_hosts"))
	if err != nil {
		t.Fatalf("load empty known hosts: %v", err)
	}
	err = cb("data.example.com:22", &net.TCPAddr{IP: net.ParseIP("192.0.2.10"), Port: 22}, signer.PublicKey())
	if err == nil || !strings.Contains(err.Error(), "impacts trust") {
		t.Fatalf("expected trust hint, got %v", err)
	}
}
