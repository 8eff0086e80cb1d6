package secret

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// Provider resolves secrets by reference string.
//
// Implementations must be safe for concurrent use and must not log secret values.
type Provider interface {
	Name() string
	Resolve(ctx context.Context, ref string) (string, error)
	Close() error
}

// EnvProvider reads secrets from environment variables: secretref:env:VCENTER_PASSWORD.
type EnvProvider struct{}

// Name returns "env".
func (EnvProvider) Name() string { return "env" }

// Resolve returns the value of the variable named ref.
func (EnvProvider) Resolve(_ context.Context, ref string) (string, error) {
	v, ok := os.LookupEnv(ref)
	if !ok {
		return "", fmt.Errorf("%w: env %s", ErrNotFound, ref)
	}
	return v, nil
}

// Close is a no-op.
func (EnvProvider) Close() error { return nil }

// FileProvider reads secrets from files, as mounted by Kubernetes or
// Docker secrets: secretref:file:/run/secrets/vcenter_password. One
// trailing newline is stripped.
type FileProvider struct {
	// Root, when set, confines relative and absolute refs to this directory.
	Root string
}

// Name returns "file".
func (p FileProvider) Name() string { return "file" }

// Resolve reads the file named by ref.
func (p FileProvider) Resolve(_ context.Context, ref string) (string, error) {
	path, err := p.path(ref)
	if err != nil {
		return "", err
	}
	b, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return "", fmt.Errorf("%w: file %s", ErrNotFound, ref)
	}
	if err != nil {
		return "", fmt.Errorf("secret: read %s: %w", ref, err)
	}
	s := strings.TrimSuffix(string(b), "\n")
	return strings.TrimSuffix(s, "\r"), nil
}

func (p FileProvider) path(ref string) (string, error) {
	if p.Root == "" {
		return filepath.Clean(ref), nil
	}
	root, err := filepath.Abs(p.Root)
	if err != nil {
		return "", fmt.Errorf("secret: file root: %w", err)
	}
	// Cleaning against "/" drops any ".." that would climb out of root.
	return filepath.Join(root, filepath.Clean("/"+ref)), nil
}

// Close is a no-op.
func (p FileProvider) Close() error { return nil }

var (
	_ Provider = EnvProvider{}
	_ Provider = FileProvider{}
)
