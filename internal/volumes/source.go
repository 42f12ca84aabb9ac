package volumes

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// TrajectorySource opens trajectory artifacts by their plan reference.
type TrajectorySource interface {
	Open(ctx context.Context, ref string) (io.ReadCloser, error)
}

// DirSource resolves references relative to a local directory.
type DirSource struct {
	Dir string
}

// Open opens ref under d.Dir. References that escape the directory are
// rejected.
func (d DirSource) Open(_ context.Context, ref string) (io.ReadCloser, error) {
	clean := filepath.Clean(filepath.FromSlash(ref))
	if !filepath.IsLocal(clean) {
		return nil, fmt.Errorf("trajectory reference %q is outside %s", ref, d.Dir)
	}
	f, err := os.Open(filepath.Join(d.Dir, clean))
	if err != nil {
		return nil, fmt.Errorf("failed to open trajectory %s: %w", ref, err)
	}
	return f, nil
}
