package cmd

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
)

// syncBuffer lets the test read output while the command is still writing it.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()

	// Keep the user's config file out of the way.
	t.Setenv("HOME", t.TempDir())

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	defer rootCmd.SetArgs(nil)

	err := rootCmd.Execute()
	return out.String(), err
}

func TestCertCommand_Idempotent(t *testing.T) {
	certFile := filepath.Join(t.TempDir(), "cert.pem")

	out, err := execute(t, "cert", "--cert", certFile, "--generator", "builtin")
	if err != nil {
		t.Fatalf("first cert run error = %v", err)
	}
	if !strings.Contains(out, "Created "+certFile) {
		t.Errorf("first output = %q, want Created", out)
	}

	out, err = execute(t, "cert", "--cert", certFile, "--generator", "builtin")
	if err != nil {
		t.Fatalf("second cert run error = %v", err)
	}
	if !strings.Contains(out, "Kept existing "+certFile) {
		t.Errorf("second output = %q, want Kept existing", out)
	}
}

func TestValidateCommand(t *testing.T) {
	certFile := filepath.Join(t.TempDir(), "cert.pem")
	if _, err := execute(t, "cert", "--cert", certFile, "--generator", "builtin"); err != nil {
		t.Fatal(err)
	}

	out, err := execute(t, "validate", "--cert", certFile)
	if err != nil {
		t.Fatalf("validate error = %v", err)
	}
	if !strings.Contains(out, "CN=localhost") {
		t.Errorf("output = %q, want subject", out)
	}
}

func TestValidateCommand_MissingFile(t *testing.T) {
	if _, err := execute(t, "validate", "--cert", filepath.Join(t.TempDir(), "absent.pem")); err == nil {
		t.Fatal("validate on missing file error = nil")
	}
}

func TestAutoCommand(t *testing.T) {
	if _, err := execute(t, "auto", "--generator", "builtin"); err != nil {
		t.Fatalf("auto error = %v", err)
	}
}

func TestUnknownGenerator(t *testing.T) {
	certFile := filepath.Join(t.TempDir(), "cert.pem")
	_, err := execute(t, "cert", "--cert", certFile, "--generator", "nope")
	if err == nil || !strings.Contains(err.Error(), "unknown certificate generator") {
		t.Fatalf("error = %v, want unknown generator", err)
	}
}

func TestRootCommand_ServesWithBanner(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	dir := t.TempDir()
	root := filepath.Join(dir, "public")
	if err := os.Mkdir(root, 0o755); err != nil {
		t.Fatal(err)
	}
	certFile := filepath.Join(dir, "cert.pem")

	var out syncBuffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs([]string{
		"--host", "127.0.0.1",
		"--port", "0",
		"--generator", "builtin",
		"--cert", certFile,
		"--root", root,
		"--shutdown-timeout", "1s",
	})
	defer rootCmd.SetArgs(nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errCh := make(chan error, 1)
	go func() {
		errCh <- rootCmd.ExecuteContext(ctx)
	}()

	const banner = "Starting server @ https://127.0.0.1:"
	deadline := time.Now().Add(10 * time.Second)
	for !strings.Contains(out.String(), banner) {
		select {
		case err := <-errCh:
			t.Fatalf("command returned before serving: %v (output %q)", err, out.String())
		default:
		}
		if time.Now().After(deadline) {
			t.Fatalf("banner not printed, output = %q", out.String())
		}
		time.Sleep(10 * time.Millisecond)
	}

	if _, err := os.Stat(certFile); err != nil {
		t.Errorf("certificate not created: %v", err)
	}

	cancel()
	select {
	case err := <-errCh:
		if err != nil {
			t.Errorf("command error = %v, want nil after cancellation", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("command did not stop after cancellation")
	}
}
