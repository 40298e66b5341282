package upload

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"strings"
	"time"

	"github.com/go-git/go-billy/v5"
)

// ErrLocked is returned by AcquireLock while another pass holds the lock.
var ErrLocked = errors.New("another sync pass is running")

// Lock is a held run lock. Release it when the pass is over.
type Lock struct {
	fs   billy.Filesystem
	path string
}

// AcquireLock creates the lock file at name exclusively. A lock older than
// staleAfter is assumed to belong to a crashed process and is taken over;
// staleAfter <= 0 never treats a lock as stale.
func AcquireLock(fs billy.Filesystem, name string, staleAfter time.Duration, now func() time.Time) (*Lock, error) {
	if err := fs.MkdirAll(path.Dir(name), 0o755); err != nil {
		return nil, fmt.Errorf("creating lock dir: %w", err)
	}

	for attempt := 0; attempt < 2; attempt++ {
		f, err := fs.OpenFile(name, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
		if err == nil {
			_, werr := fmt.Fprintf(f, "%d %s\n", os.Getpid(), now().UTC().Format(time.RFC3339Nano))
			cerr := f.Close()
			if werr != nil || cerr != nil {
				fs.Remove(name) //nolint:errcheck
				return nil, fmt.Errorf("writing lock: %w", errors.Join(werr, cerr))
			}
			return &Lock{fs: fs, path: name}, nil
		}
		if !errors.Is(err, os.ErrExist) {
			return nil, fmt.Errorf("creating lock: %w", err)
		}

		held, herr := lockedAt(fs, name)
		if staleAfter <= 0 || (herr == nil && now().Sub(held) < staleAfter) {
			return nil, ErrLocked
		}
		// Stale or unreadable: remove and try once more.
		if err := fs.Remove(name); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("removing stale lock: %w", err)
		}
	}
	return nil, ErrLocked
}

// Release removes the lock file.
func (l *Lock) Release() error {
	if err := l.fs.Remove(l.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("releasing lock: %w", err)
	}
	return nil
}

func lockedAt(fs billy.Filesystem, name string) (time.Time, error) {
	f, err := fs.Open(name)
	if err != nil {
		return time.Time{}, err
	}
	defer f.Close() //nolint:errcheck

	data, err := io.ReadAll(f)
	if err != nil {
		return time.Time{}, err
	}
	fields := strings.Fields(string(data))
	if len(fields) != 2 {
		return time.Time{}, fmt.Errorf("malformed lock %q", data)
	}
	return time.Parse(time.RFC3339Nano, fields[1])
}
