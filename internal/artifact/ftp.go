package artifact

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jlaffaye/ftp"
)

// FTPSource locates a model artifact on an FTP server.
type FTPSource struct {
	Addr     string
	User     string
	Password string
	Path     string
	Timeout  time.Duration
}

// Fetch downloads the artifact to dest, replacing it atomically. If sha256Hex
// is set the download must match it.
func (s FTPSource) Fetch(ctx context.Context, dest, sha256Hex string) (int64, error) {
	var written int64
	operation := func() error {
		n, err := s.fetchOnce(dest, sha256Hex)
		if err != nil {
			return err
		}
		written = n
		return nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = 2 * time.Minute
	if err := backoff.Retry(operation, backoff.WithContext(bo, ctx)); err != nil {
		return 0, err
	}
	return written, nil
}

func (s FTPSource) fetchOnce(dest, sha256Hex string) (int64, error) {
	timeout := s.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	conn, err := ftp.Dial(s.Addr, ftp.DialWithTimeout(timeout))
	if err != nil {
		return 0, fmt.Errorf("ftp dial: %w", err)
	}
	defer conn.Quit()

	user, pass := s.User, s.Password
	if user == "" {
		user, pass = "anonymous", "anonymous"
	}
	if err := conn.Login(user, pass); err != nil {
		return 0, backoff.Permanent(fmt.Errorf("ftp login: %w", err))
	}

	resp, err := conn.Retr(s.Path)
	if err != nil {
		return 0, fmt.Errorf("ftp retr %s: %w", s.Path, err)
	}
	defer resp.Close()

	n, err := WriteFile(dest, resp, sha256Hex)
	if err != nil {
		var mismatch *ChecksumError
		if errors.As(err, &mismatch) {
			return 0, backoff.Permanent(err)
		}
		return 0, err
	}
	return n, nil
}

// ChecksumError reports a download whose digest does not match.
type ChecksumError struct {
	Want string
	Got  string
}

func (e *ChecksumError) Error() string {
	return fmt.Sprintf("sha256 mismatch: want %s, got %s", e.Want, e.Got)
}

// WriteFile copies r into dest through a temporary file in the same
// directory, so readers never observe a partial artifact.
func WriteFile(dest string, r io.Reader, sha256Hex string) (int64, error) {
	dir := filepath.Dir(dest)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return 0, fmt.Errorf("create %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(dest)+".*")
	if err != nil {
		return 0, fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	h := sha256.New()
	n, err := io.Copy(io.MultiWriter(tmp, h), r)
	if err != nil {
		tmp.Close()
		return 0, fmt.Errorf("download: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return 0, fmt.Errorf("close temp file: %w", err)
	}

	if want := strings.ToLower(strings.TrimSpace(sha256Hex)); want != "" {
		if got := hex.EncodeToString(h.Sum(nil)); got != want {
			return 0, &ChecksumError{Want: want, Got: got}
		}
	}

	if err := os.Rename(tmp.Name(), dest); err != nil {
		return 0, fmt.Errorf("install %s: %w", dest, err)
	}
	return n, nil
}
