package vfs

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
)

// directory is one search directory and the page of results it shows.
type directory struct {
	name    string
	session Session

	mu      sync.RWMutex
	names   []string
	entries map[string]Handle
}

func newDirectory(name string, session Session) *directory {
	return &directory{
		name:    name,
		session: session,
		entries: make(map[string]Handle),
	}
}

// setResults replaces the visible page. Duplicate and unusable names are
// dropped so that every listed name resolves to exactly one handle.
func (d *directory) setResults(results []Result) {
	names := make([]string, 0, len(results))
	entries := make(map[string]Handle, len(results))
	for _, r := range results {
		if r.Handle == nil {
			continue
		}
		addr := Address{Dir: d.name, Entry: r.Name}
		if r.Name == "" || addr.Type() != PathResultFile || strings.ContainsRune(r.Name, '/') {
			continue
		}
		if _, dup := entries[r.Name]; dup {
			continue
		}
		names = append(names, r.Name)
		entries[r.Name] = r.Handle
	}

	d.mu.Lock()
	d.names = names
	d.entries = entries
	d.mu.Unlock()
}

func (d *directory) handle(name string) (Handle, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	h, ok := d.entries[name]
	return h, ok
}

func (d *directory) list() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]string, len(d.names))
	copy(out, d.names)
	return out
}

// Tree is the in-memory namespace of search directories.
//
// The directory map is guarded by mu, which is never held across a
// resolver call. Structural mutations of one directory name (create,
// rename, remove, paginate) are serialized by a per-name lock.
type Tree struct {
	resolver Resolver
	logger   *slog.Logger

	mu    sync.RWMutex
	dirs  map[string]*directory
	order []string

	locks *nameLocks
}

// NewTree creates an empty tree whose directories are backed by resolver.
func NewTree(resolver Resolver, logger *slog.Logger) *Tree {
	if logger == nil {
		logger = slog.Default()
	}
	return &Tree{
		resolver: resolver,
		logger:   logger,
		dirs:     make(map[string]*directory),
		locks:    newNameLocks(),
	}
}

func (t *Tree) lookup(name string) (*directory, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	d, ok := t.dirs[name]
	return d, ok
}

// Exists reports whether addr is present in the namespace. Any control
// name inside an existing directory exists.
func (t *Tree) Exists(addr Address) bool {
	switch addr.Type() {
	case PathRoot:
		return true
	case PathSearchDirectory, PathControlFile:
		_, ok := t.lookup(addr.Dir)
		return ok
	case PathResultFile:
		d, ok := t.lookup(addr.Dir)
		if !ok {
			return false
		}
		_, ok = d.handle(addr.Entry)
		return ok
	default:
		return false
	}
}

// Handle returns the result handle stored at addr.
func (t *Tree) Handle(addr Address) (Handle, error) {
	d, ok := t.lookup(addr.Dir)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, addr)
	}
	h, ok := d.handle(addr.Entry)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, addr)
	}
	return h, nil
}

// Directories lists search directory names in creation order.
func (t *Tree) Directories() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]string, len(t.order))
	copy(out, t.order)
	return out
}

// Entries lists the result names of a search directory.
func (t *Tree) Entries(name string) ([]string, error) {
	d, ok := t.lookup(name)
	if !ok {
		return nil, fmt.Errorf("%w: /%s", ErrNotFound, name)
	}
	return d.list(), nil
}

// Create adds the search directory name and runs its initial search.
// A failing search leaves an empty directory behind rather than failing.
func (t *Tree) Create(ctx context.Context, name string) error {
	unlock := t.locks.lock(name)
	defer unlock()
	return t.create(ctx, name)
}

// create expects the caller to hold the name lock.
func (t *Tree) create(ctx context.Context, name string) error {
	t.mu.Lock()
	if _, ok := t.dirs[name]; ok {
		t.mu.Unlock()
		return fmt.Errorf("%w: /%s", ErrAlreadyExists, name)
	}
	d := newDirectory(name, t.resolver.NewSession(name))
	t.dirs[name] = d
	t.order = append(t.order, name)
	t.mu.Unlock()

	results, err := d.session.Search(ctx)
	if err != nil {
		t.logger.Warn("search failed, directory left empty", "phrase", name, "error", err)
		return nil
	}
	d.setResults(results)
	t.logger.Debug("search complete", "phrase", name, "results", len(results))
	return nil
}

// Rename re-creates the search under the new directory name and removes
// the old one. Results are not carried over since the new name is a new
// search phrase.
func (t *Tree) Rename(ctx context.Context, oldAddr, newAddr Address) error {
	if oldAddr.Type() != PathSearchDirectory || newAddr.Type() != PathSearchDirectory {
		return fmt.Errorf("%w: rename %s to %s", ErrPermissionDenied, oldAddr, newAddr)
	}
	if oldAddr.Dir == newAddr.Dir {
		if !t.Exists(oldAddr) {
			return fmt.Errorf("%w: %s", ErrNotFound, oldAddr)
		}
		return fmt.Errorf("%w: %s", ErrAlreadyExists, newAddr)
	}

	unlock := t.locks.lockPair(oldAddr.Dir, newAddr.Dir)
	defer unlock()

	if !t.Exists(oldAddr) {
		return fmt.Errorf("%w: %s", ErrNotFound, oldAddr)
	}
	if t.Exists(newAddr) {
		return fmt.Errorf("%w: %s", ErrAlreadyExists, newAddr)
	}

	if err := t.create(ctx, newAddr.Dir); err != nil {
		return err
	}
	return t.remove(oldAddr.Dir)
}

// Remove releases the resources of a search directory and deletes it.
func (t *Tree) Remove(addr Address) error {
	switch addr.Type() {
	case PathRoot:
		return fmt.Errorf("%w: cannot remove the root", ErrInvalidOperation)
	case PathSearchDirectory:
	default:
		return fmt.Errorf("%w: %s", ErrNotADirectory, addr)
	}

	unlock := t.locks.lock(addr.Dir)
	defer unlock()
	return t.remove(addr.Dir)
}

// remove expects the caller to hold the name lock.
func (t *Tree) remove(name string) error {
	d, ok := t.lookup(name)
	if !ok {
		return fmt.Errorf("%w: /%s", ErrNotFound, name)
	}

	if err := d.session.ReleaseAll(); err != nil {
		t.logger.Warn("failed to release search resources", "phrase", name, "error", err)
	}

	t.mu.Lock()
	delete(t.dirs, name)
	for i, n := range t.order {
		if n == name {
			t.order = append(t.order[:i], t.order[i+1:]...)
			break
		}
	}
	t.mu.Unlock()
	return nil
}

// Paginate asks the session of directory name for another page and
// replaces the visible entries with it. A resolver failure keeps the
// current page.
func (t *Tree) Paginate(ctx context.Context, name string, direction Direction) error {
	unlock := t.locks.lock(name)
	defer unlock()

	d, ok := t.lookup(name)
	if !ok {
		return fmt.Errorf("%w: directory /%s vanished", ErrInvalidOperation, name)
	}

	results, err := d.session.Paginate(ctx, direction)
	if err != nil {
		t.logger.Warn("pagination failed", "phrase", name, "direction", direction, "error", err)
		return nil
	}
	d.setResults(results)
	t.logger.Debug("paginated", "phrase", name, "direction", direction, "results", len(results))
	return nil
}

// Close releases every directory. Used at unmount.
func (t *Tree) Close() {
	for _, name := range t.Directories() {
		unlock := t.locks.lock(name)
		_ = t.remove(name)
		unlock()
	}
}

// nameLocks is a set of mutexes keyed by directory name. Entries are
// dropped once nobody holds or waits for them.
type nameLocks struct {
	mu    sync.Mutex
	locks map[string]*nameLock
}

type nameLock struct {
	mu   sync.Mutex
	refs int
}

func newNameLocks() *nameLocks {
	return &nameLocks{locks: make(map[string]*nameLock)}
}

func (l *nameLocks) lock(name string) func() {
	l.mu.Lock()
	nl, ok := l.locks[name]
	if !ok {
		nl = &nameLock{}
		l.locks[name] = nl
	}
	nl.refs++
	l.mu.Unlock()

	nl.mu.Lock()
	return func() {
		nl.mu.Unlock()
		l.mu.Lock()
		nl.refs--
		if nl.refs == 0 {
			delete(l.locks, name)
		}
		l.mu.Unlock()
	}
}

// lockPair takes two distinct name locks in a fixed order.
func (l *nameLocks) lockPair(a, b string) func() {
	if b < a {
		a, b = b, a
	}
	unlockA := l.lock(a)
	unlockB := l.lock(b)
	return func() {
		unlockB()
		unlockA()
	}
}
