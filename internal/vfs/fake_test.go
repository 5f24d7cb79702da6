package vfs

import (
	"context"
	"fmt"
	"sync"
)

// fakeResolver serves pages of fakeHandles named "<phrase>-p<page>-<n>".
type fakeResolver struct {
	mu       sync.Mutex
	sessions map[string]*fakeSession
	perPage  int
	failing  bool // every search fails
}

func newFakeResolver(perPage int) *fakeResolver {
	return &fakeResolver{sessions: make(map[string]*fakeSession), perPage: perPage}
}

func (r *fakeResolver) NewSession(phrase string) Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := &fakeSession{phrase: phrase, perPage: r.perPage, failing: r.failing}
	r.sessions[phrase] = s
	return s
}

func (r *fakeResolver) session(phrase string) *fakeSession {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sessions[phrase]
}

type fakeSession struct {
	phrase  string
	perPage int
	failing bool

	mu       sync.Mutex
	page     int
	searches int
	calls    []Direction
	released bool
	handles  []*fakeHandle
}

func (s *fakeSession) results() []Result {
	out := make([]Result, 0, s.perPage)
	for i := 0; i < s.perPage; i++ {
		h := &fakeHandle{content: []byte(fmt.Sprintf("%s page %d item %d content", s.phrase, s.page, i))}
		s.handles = append(s.handles, h)
		out = append(out, Result{Name: fmt.Sprintf("%s-p%d-%d", s.phrase, s.page, i), Handle: h})
	}
	return out
}

func (s *fakeSession) Search(ctx context.Context) ([]Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.searches++
	if s.failing {
		return nil, fmt.Errorf("search backend unavailable")
	}
	return s.results(), nil
}

func (s *fakeSession) Paginate(ctx context.Context, direction Direction) ([]Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, direction)
	switch direction {
	case DirectionForward:
		s.page++
	case DirectionBackward:
		if s.page > 0 {
			s.page--
		}
	}
	return s.results(), nil
}

func (s *fakeSession) ReleaseAll() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.released = true
	return nil
}

func (s *fakeSession) paginations() []Direction {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Direction, len(s.calls))
	copy(out, s.calls)
	return out
}

type fakeHandle struct {
	content []byte
	failing bool

	mu       sync.Mutex
	resolved bool
	bound    []int
	unbound  []int
}

func (h *fakeHandle) Resolve(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.failing {
		return fmt.Errorf("video unavailable")
	}
	h.resolved = true
	return nil
}

func (h *fakeHandle) Size() int64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.resolved {
		return 0
	}
	return int64(len(h.content))
}

func (h *fakeHandle) Read(ctx context.Context, offset int64, length int) ([]byte, error) {
	if offset >= int64(len(h.content)) {
		return nil, nil
	}
	end := offset + int64(length)
	if end > int64(len(h.content)) {
		end = int64(len(h.content))
	}
	return h.content[offset:end], nil
}

func (h *fakeHandle) Bind(fd int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.bound = append(h.bound, fd)
}

func (h *fakeHandle) Unbind(fd int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.unbound = append(h.unbound, fd)
}
