package volume

import "github.com/MGZeroes/bslab/errors"

// openFiles is the bounded set of currently-open path strings. It enforces
// the open-count cap and the "one open instance per path" rule. It is
// in-memory only; nothing here is persisted.
type openFiles struct {
	paths map[string]bool
}

func newOpenFiles() openFiles {
	return openFiles{paths: make(map[string]bool)}
}

// open registers path as open. It fails with ErrTooManyOpen at capacity,
// or ErrInUse if the path is already open.
func (o *openFiles) open(path string) error {
	if o.paths[path] {
		return errors.ErrInUse
	}
	if len(o.paths) >= NumOpenFiles {
		return errors.ErrTooManyOpen
	}
	o.paths[path] = true
	return nil
}

// release removes path from the open set. It is a no-op if path isn't
// open.
func (o *openFiles) release(path string) {
	delete(o.paths, path)
}

func (o *openFiles) isOpen(path string) bool {
	return o.paths[path]
}
