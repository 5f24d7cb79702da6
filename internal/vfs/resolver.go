package vfs

import "context"

// Direction selects which page a Session should load next.
type Direction int

const (
	// DirectionNeutral re-issues the query for the current page.
	DirectionNeutral Direction = iota
	DirectionForward
	DirectionBackward
)

func (d Direction) String() string {
	switch d {
	case DirectionForward:
		return "forward"
	case DirectionBackward:
		return "backward"
	default:
		return "neutral"
	}
}

// Resolver creates search sessions. A Session is bound to one search
// directory for its whole lifetime and owns the pagination cursor.
type Resolver interface {
	NewSession(phrase string) Session
}

// Session is the resolver side of one search directory.
type Session interface {
	// Search runs the initial query and returns the first page.
	Search(ctx context.Context) ([]Result, error)

	// Paginate moves the cursor and returns the page it lands on.
	Paginate(ctx context.Context, direction Direction) ([]Result, error)

	// ReleaseAll stops in-flight transfers and removes temporary data
	// owned by the session. The session is not used afterwards.
	ReleaseAll() error
}

// Result is one named entry of a search page.
type Result struct {
	Name   string
	Handle Handle
}

// Handle is a lazily resolved media item. Nothing expensive happens until
// Resolve is called.
type Handle interface {
	// Resolve fetches metadata needed for reading. It may block on the
	// network and is safe to call repeatedly.
	Resolve(ctx context.Context) error

	// Size returns the byte length known so far; zero before resolution.
	Size() int64

	// Read returns up to length bytes starting at offset. A short or empty
	// result means end of file.
	Read(ctx context.Context, offset int64, length int) ([]byte, error)

	// Bind tells the handle that descriptor fd now refers to it.
	Bind(fd int)
}

// Unbinder is implemented by handles that track descriptor bindings and
// want to be told when a descriptor is released.
type Unbinder interface {
	Unbind(fd int)
}
