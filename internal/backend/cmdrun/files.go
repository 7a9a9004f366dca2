package cmdrun

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"golang.org/x/sys/unix"

	"retriever/internal/services"
)

// EnsureWritable creates dir when missing and verifies the process can write
// into it.
func EnsureWritable(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return services.Wrap(services.ErrInternal, "", "prepare destination", dir, err)
	}
	if err := unix.Access(dir, unix.W_OK|unix.X_OK); err != nil {
		return services.WithHint(
			services.Wrap(services.ErrInternal, "", "prepare destination", fmt.Sprintf("%s is not writable", dir), err),
			"fix permissions on the download directory",
		)
	}
	return nil
}

// Snapshot lists the top-level entry names of dir. A missing dir is empty.
func Snapshot(dir string) (map[string]struct{}, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]struct{}{}, nil
		}
		return nil, err
	}
	out := make(map[string]struct{}, len(entries))
	for _, entry := range entries {
		out[entry.Name()] = struct{}{}
	}
	return out, nil
}

// NewEntries returns absolute paths of top-level entries in dir that are not
// in before, sorted by name.
func NewEntries(dir string, before map[string]struct{}) ([]string, error) {
	after, err := Snapshot(dir)
	if err != nil {
		return nil, err
	}
	var added []string
	for name := range after {
		if _, seen := before[name]; !seen {
			added = append(added, filepath.Join(dir, name))
		}
	}
	sort.Strings(added)
	return added, nil
}

// TreeSize sums regular file sizes under each path.
func TreeSize(paths []string) int64 {
	var total int64
	for _, root := range paths {
		_ = filepath.WalkDir(root, func(_ string, d os.DirEntry, err error) error {
			if err != nil || d.IsDir() {
				return nil
			}
			if info, infoErr := d.Info(); infoErr == nil {
				total += info.Size()
			}
			return nil
		})
	}
	return total
}

// RunIntoFolder runs cmd and returns the top-level entries it added to dest.
// The destination is created and checked for writability first.
func RunIntoFolder(ctx context.Context, runner Runner, dest string, cmd Command) ([]string, Output, error) {
	if err := EnsureWritable(dest); err != nil {
		return nil, Output{}, err
	}
	before, err := Snapshot(dest)
	if err != nil {
		return nil, Output{}, services.Wrap(services.ErrInternal, "", "snapshot destination", dest, err)
	}
	out, runErr := runner.Run(ctx, cmd)
	added, err := NewEntries(dest, before)
	if err != nil && runErr == nil {
		return nil, out, services.Wrap(services.ErrInternal, "", "scan destination", dest, err)
	}
	return added, out, runErr
}
