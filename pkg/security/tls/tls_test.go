package tls

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"io"
	"log/slog"
	"math/big"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"mercator-hq/quotagate/pkg/config"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

// writeCert writes a self-signed certificate for localhost to dir and
// returns the cert and key paths.
func writeCert(t *testing.T, dir, cn string, notBefore, notAfter time.Time) (string, string) {
	t.Helper()

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatal(err)
	}
	tmpl := &x509.Certificate{
		SerialNumber:          big.NewInt(time.Now().UnixNano()),
		Subject:               pkix.Name{CommonName: cn},
		NotBefore:             notBefore,
		NotAfter:              notAfter,
		KeyUsage:              x509.KeyUsageDigitalSignature | x509.KeyUsageCertSign,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		DNSNames:              []string{"localhost"},
		IPAddresses:           []net.IP{net.IPv4(127, 0, 0, 1)},
		IsCA:                  true,
		BasicConstraintsValid: true,
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	if err != nil {
		t.Fatal(err)
	}
	keyDER, err := x509.MarshalECPrivateKey(key)
	if err != nil {
		t.Fatal(err)
	}

	certFile := filepath.Join(dir, "server.crt")
	keyFile := filepath.Join(dir, "server.key")
	if err := os.WriteFile(certFile, pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der}), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(keyFile, pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: keyDER}), 0o600); err != nil {
		t.Fatal(err)
	}
	return certFile, keyFile
}

func leafCN(t *testing.T, cert *tls.Certificate) string {
	t.Helper()
	leaf, err := x509.ParseCertificate(cert.Certificate[0])
	if err != nil {
		t.Fatal(err)
	}
	return leaf.Subject.CommonName
}

func TestValidateCertificate(t *testing.T) {
	now := time.Now()
	tests := []struct {
		name      string
		notBefore time.Time
		notAfter  time.Time
		wantErr   bool
	}{
		{"valid", now.Add(-time.Hour), now.Add(365 * 24 * time.Hour), false},
		{"expired", now.Add(-48 * time.Hour), now.Add(-24 * time.Hour), true},
		{"not yet valid", now.Add(time.Hour), now.Add(48 * time.Hour), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			certFile, keyFile := writeCert(t, t.TempDir(), "quotagate", tt.notBefore, tt.notAfter)
			cert, err := tls.LoadX509KeyPair(certFile, keyFile)
			if err != nil {
				t.Fatal(err)
			}
			_, err = ValidateCertificate(&cert, now)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateCertificate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}

	if _, err := ValidateCertificate(&tls.Certificate{}, now); err == nil {
		t.Error("expected error for empty chain")
	}
}

func TestExpiresSoon(t *testing.T) {
	now := time.Now()
	if !ExpiresSoon(&x509.Certificate{NotAfter: now.Add(24 * time.Hour)}, now) {
		t.Error("certificate expiring tomorrow should warn")
	}
	if ExpiresSoon(&x509.Certificate{NotAfter: now.Add(90 * 24 * time.Hour)}, now) {
		t.Error("certificate expiring in 90 days should not warn")
	}
}

func TestCertificateReloader_StartMissingFiles(t *testing.T) {
	r := NewCertificateReloader("missing.crt", "missing.key", time.Minute, discard)
	if err := r.Start(context.Background()); err == nil {
		t.Fatal("expected error for missing files")
	}
	if _, err := r.GetCertificate(nil); err == nil {
		t.Error("GetCertificate before a successful load should fail")
	}
}

func TestCertificateReloader_Reload(t *testing.T) {
	dir := t.TempDir()
	now := time.Now()
	certFile, keyFile := writeCert(t, dir, "first", now.Add(-time.Hour), now.Add(365*24*time.Hour))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	r := NewCertificateReloader(certFile, keyFile, 0, discard)
	if err := r.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if cn := leafCN(t, r.Certificate()); cn != "first" {
		t.Fatalf("CN = %q, want first", cn)
	}
	if r.needsReload() {
		t.Error("unchanged files should not need a reload")
	}

	writeCert(t, dir, "second", now.Add(-time.Hour), now.Add(365*24*time.Hour))
	later := now.Add(time.Minute)
	for _, f := range []string{certFile, keyFile} {
		if err := os.Chtimes(f, later, later); err != nil {
			t.Fatal(err)
		}
	}

	if !r.needsReload() {
		t.Fatal("rewritten files should need a reload")
	}
	if err := r.reload(); err != nil {
		t.Fatalf("reload() error = %v", err)
	}
	if cn := leafCN(t, r.Certificate()); cn != "second" {
		t.Errorf("CN = %q, want second", cn)
	}
}

func TestCertificateReloader_KeepsPreviousOnFailure(t *testing.T) {
	dir := t.TempDir()
	now := time.Now()
	certFile, keyFile := writeCert(t, dir, "good", now.Add(-time.Hour), now.Add(365*24*time.Hour))

	r := NewCertificateReloader(certFile, keyFile, 0, discard)
	if err := r.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	if err := os.WriteFile(certFile, []byte("not a certificate"), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := r.reload(); err == nil {
		t.Fatal("expected error for corrupt certificate")
	}
	if cn := leafCN(t, r.Certificate()); cn != "good" {
		t.Errorf("CN = %q, want previous certificate", cn)
	}
}

func TestServerConfig_Disabled(t *testing.T) {
	tlsConfig, err := ServerConfig(context.Background(), &config.TLSConfig{}, discard)
	if err != nil || tlsConfig != nil {
		t.Errorf("ServerConfig() = %v, %v; want nil, nil", tlsConfig, err)
	}
}

func TestServerConfig_BadClientCA(t *testing.T) {
	dir := t.TempDir()
	now := time.Now()
	certFile, keyFile := writeCert(t, dir, "quotagate", now.Add(-time.Hour), now.Add(365*24*time.Hour))
	caFile := filepath.Join(dir, "ca.pem")
	if err := os.WriteFile(caFile, []byte("garbage"), 0o600); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	_, err := ServerConfig(ctx, &config.TLSConfig{
		Enabled:      true,
		CertFile:     certFile,
		KeyFile:      keyFile,
		MinVersion:   "1.2",
		ClientCAFile: caFile,
	}, discard)
	if err == nil {
		t.Fatal("expected error for client CA without certificates")
	}
}

func TestServerConfig_Handshake(t *testing.T) {
	dir := t.TempDir()
	now := time.Now()
	certFile, keyFile := writeCert(t, dir, "quotagate", now.Add(-time.Hour), now.Add(365*24*time.Hour))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tlsConfig, err := ServerConfig(ctx, &config.TLSConfig{
		Enabled:        true,
		CertFile:       certFile,
		KeyFile:        keyFile,
		MinVersion:     "1.3",
		ReloadInterval: time.Minute,
	}, discard)
	if err != nil {
		t.Fatalf("ServerConfig() error = %v", err)
	}
	if tlsConfig.MinVersion != tls.VersionTLS13 {
		t.Errorf("MinVersion = %x", tlsConfig.MinVersion)
	}

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	srv := &http.Server{Handler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})}
	go srv.Serve(tls.NewListener(ln, tlsConfig))
	defer srv.Close()

	pemBytes, err := os.ReadFile(certFile)
	if err != nil {
		t.Fatal(err)
	}
	roots := x509.NewCertPool()
	roots.AppendCertsFromPEM(pemBytes)

	client := &http.Client{Transport: &http.Transport{
		TLSClientConfig: &tls.Config{RootCAs: roots, ServerName: "localhost", MinVersion: tls.VersionTLS12},
	}}
	resp, err := client.Get("https://" + ln.Addr().String() + "/")
	if err != nil {
		t.Fatalf("GET error = %v", err)
	}
	resp.Body.Close()

	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("status = %d", resp.StatusCode)
	}
	if cn := resp.TLS.PeerCertificates[0].Subject.CommonName; cn != "quotagate" {
		t.Errorf("peer CN = %q", cn)
	}
}
