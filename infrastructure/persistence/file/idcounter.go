package file

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"golang.org/x/sys/unix"

	"rserv/pkg/errors"
)

// CounterFileName is the per-entity sidecar holding the last allocated id as
// decimal ASCII.
const CounterFileName = "_next_id.txt"

// counterSet serialises id allocation. The advisory file lock coordinates
// with other processes on the same host; the in-process mutex keeps
// goroutines of this process from contending on the lock syscall.
type counterSet struct {
	mu     sync.Mutex
	perDir map[string]*sync.Mutex
}

func newCounterSet() *counterSet {
	return &counterSet{perDir: make(map[string]*sync.Mutex)}
}

func (c *counterSet) lockFor(dir string) *sync.Mutex {
	c.mu.Lock()
	defer c.mu.Unlock()
	m, ok := c.perDir[dir]
	if !ok {
		m = &sync.Mutex{}
		c.perDir[dir] = m
	}
	return m
}

// next allocates the next id for the entity directory: lock, read, write
// current+1, unlock.
func (c *counterSet) next(dir string) (int64, error) {
	m := c.lockFor(dir)
	m.Lock()
	defer m.Unlock()

	path := filepath.Join(dir, CounterFileName)
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return 0, errors.Wrap(err, "failed to open id counter")
	}
	defer f.Close()

	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX); err != nil {
		return 0, errors.Wrap(err, "failed to lock id counter")
	}
	defer unix.Flock(int(f.Fd()), unix.LOCK_UN)

	data, err := os.ReadFile(path)
	if err != nil {
		return 0, errors.Wrap(err, "failed to read id counter")
	}

	last := int64(0)
	if text := strings.TrimSpace(string(data)); text != "" {
		last, err = strconv.ParseInt(text, 10, 64)
		if err != nil || last < 0 {
			return 0, errors.NewInternalError("id counter file is corrupt: " + text)
		}
	}

	next := last + 1
	if err := f.Truncate(0); err != nil {
		return 0, errors.Wrap(err, "failed to reset id counter")
	}
	if _, err := f.WriteAt([]byte(strconv.FormatInt(next, 10)), 0); err != nil {
		return 0, errors.Wrap(err, "failed to write id counter")
	}
	return next, nil
}
