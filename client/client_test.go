package client

import (
	"context"
	"encoding/pem"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/frgrisk/tls-serve/certs"
)

func newTLSServer(t *testing.T) (*httptest.Server, string) {
	t.Helper()
	ts := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/hello.txt" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.Write([]byte("Hello, TLS client!"))
	}))
	t.Cleanup(ts.Close)

	caFile := filepath.Join(t.TempDir(), "ca.pem")
	data := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: ts.Certificate().Raw})
	if err := os.WriteFile(caFile, data, 0o600); err != nil {
		t.Fatal(err)
	}
	return ts, caFile
}

func TestClient_GetTrustsCAFile(t *testing.T) {
	ts, caFile := newTLSServer(t)

	c, err := New(Options{CAFile: caFile, Timeout: 5 * time.Second})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer c.CloseIdleConnections()

	resp, err := c.Get(context.Background(), ts.URL+"/hello.txt")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Errorf("StatusCode = %d, want 200", resp.StatusCode)
	}
	if string(resp.Body) != "Hello, TLS client!" {
		t.Errorf("Body = %q", resp.Body)
	}
	if resp.ContentType != "text/plain; charset=utf-8" {
		t.Errorf("ContentType = %q", resp.ContentType)
	}
}

func TestClient_NotFoundIsNotAnError(t *testing.T) {
	ts, caFile := newTLSServer(t)

	c, err := New(Options{CAFile: caFile})
	if err != nil {
		t.Fatal(err)
	}
	resp, err := c.Get(context.Background(), ts.URL+"/missing")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("StatusCode = %d, want 404", resp.StatusCode)
	}
}

func TestClient_RejectsUntrustedServer(t *testing.T) {
	ts, _ := newTLSServer(t)

	// A freshly generated self-signed certificate that did not sign the test server's.
	otherCA := filepath.Join(t.TempDir(), "other.pem")
	if err := certs.NewBuiltin(certs.DefaultParams()).Generate(context.Background(), otherCA); err != nil {
		t.Fatal(err)
	}

	c, err := New(Options{CAFile: otherCA})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := c.Get(context.Background(), ts.URL+"/hello.txt"); err == nil {
		t.Fatal("Get() against untrusted server error = nil")
	}
}

func TestClient_Insecure(t *testing.T) {
	ts, _ := newTLSServer(t)

	c, err := New(Options{Insecure: true})
	if err != nil {
		t.Fatal(err)
	}
	resp, err := c.Get(context.Background(), ts.URL+"/hello.txt")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Errorf("StatusCode = %d, want 200", resp.StatusCode)
	}
}

func TestNew_MissingCAFile(t *testing.T) {
	if _, err := New(Options{CAFile: filepath.Join(t.TempDir(), "absent.pem")}); err == nil {
		t.Fatal("New() error = nil, want missing CA file error")
	}
}
