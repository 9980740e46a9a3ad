package artifact

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestWriteFile(t *testing.T) {
	dir := t.TempDir()
	dest := filepath.Join(dir, "models", "xgboost_model.json")
	content := `{"learner": {}}`
	sum := sha256.Sum256([]byte(content))

	n, err := WriteFile(dest, strings.NewReader(content), strings.ToUpper(hex.EncodeToString(sum[:])))
	if err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if n != int64(len(content)) {
		t.Errorf("n = %d, want %d", n, len(content))
	}
	got, err := os.ReadFile(dest)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != content {
		t.Errorf("content = %q", got)
	}

	entries, err := os.ReadDir(filepath.Dir(dest))
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Errorf("expected only the artifact in %s, found %d entries", filepath.Dir(dest), len(entries))
	}
}

func TestWriteFile_ChecksumMismatchKeepsExisting(t *testing.T) {
	dest := filepath.Join(t.TempDir(), "model.json")
	if err := os.WriteFile(dest, []byte("old"), 0644); err != nil {
		t.Fatal(err)
	}

	_, err := WriteFile(dest, strings.NewReader("new"), strings.Repeat("0", 64))
	var mismatch *ChecksumError
	if !errors.As(err, &mismatch) {
		t.Fatalf("err = %v, want *ChecksumError", err)
	}

	got, err := os.ReadFile(dest)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "old" {
		t.Errorf("artifact replaced despite mismatch: %q", got)
	}
}

func TestFetch_UnreachableServer(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	src := FTPSource{Addr: "127.0.0.1:1", Path: "/models/xgboost_model.json", Timeout: 50 * time.Millisecond}
	if _, err := src.Fetch(ctx, filepath.Join(t.TempDir(), "model.json"), ""); err == nil {
		t.Fatal("expected error")
	}
}
