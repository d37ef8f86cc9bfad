// Package fetch coordinates keyed, cancellable requests with last-writer-wins
// semantics: a newer request for a key cancels the older one, and the older
// result is discarded.
package fetch

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

var (
	// ErrSuperseded is returned when a newer request for the same key replaced this one.
	ErrSuperseded = eris.New("fetch: superseded by a newer request")
	// ErrCanceled is returned when CancelAll stopped the request.
	ErrCanceled = eris.New("fetch: request canceled")
)

// Handle identifies one in-flight request.
type Handle struct {
	id  string
	key string

	cancel     context.CancelCauseFunc
	superseded bool
	dropped    bool
}

// ID returns the unique request id.
func (h *Handle) ID() string { return h.id }

// Key returns the key the request was started under.
func (h *Handle) Key() string { return h.key }

// Group tracks the latest request per key.
type Group struct {
	mu       sync.Mutex
	inflight map[string]*Handle
}

// NewGroup creates an empty Group.
func NewGroup() *Group {
	return &Group{inflight: make(map[string]*Handle)}
}

// Start registers a new request for key, cancelling any older one. The
// returned context is cancelled when the request is superseded.
func (g *Group) Start(ctx context.Context, key string) (context.Context, *Handle) {
	cctx, cancel := context.WithCancelCause(ctx)

	g.mu.Lock()
	defer g.mu.Unlock()

	h := &Handle{id: uuid.NewString(), key: key, cancel: cancel}
	if prev, ok := g.inflight[key]; ok {
		prev.superseded = true
		prev.cancel(ErrSuperseded)
		zap.L().Debug("fetch: superseded request",
			zap.String("key", key),
			zap.String("old", prev.id),
			zap.String("new", h.id),
		)
	}
	g.inflight[key] = h
	return cctx, h
}

// Finish releases h and reports whether its result may be applied. It
// returns ErrSuperseded if a newer request replaced h, ErrCanceled if
// CancelAll stopped it, and nil if h is still the latest request for its key.
func (g *Group) Finish(h *Handle) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	defer h.cancel(nil)
	switch {
	case h.superseded:
		return eris.Wrapf(ErrSuperseded, "fetch: %s request %s", h.key, h.id)
	case h.dropped:
		return eris.Wrapf(ErrCanceled, "fetch: %s request %s", h.key, h.id)
	}
	if cur, ok := g.inflight[h.key]; ok && cur == h {
		delete(g.inflight, h.key)
	}
	return nil
}

// Do runs fn as the latest request for key and returns its error, or
// ErrSuperseded if a newer request for the same key started meanwhile.
func (g *Group) Do(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	_, err := DoVal(ctx, g, key, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

// DoVal is Do for functions that return a value. A superseded call returns
// the zero value so stale results can never overwrite newer state.
func DoVal[T any](ctx context.Context, g *Group, key string, fn func(ctx context.Context) (T, error)) (T, error) {
	cctx, h := g.Start(ctx, key)
	val, err := fn(cctx)
	if ferr := g.Finish(h); ferr != nil {
		var zero T
		return zero, ferr
	}
	return val, err
}

// CancelAll cancels every in-flight request.
func (g *Group) CancelAll() {
	g.mu.Lock()
	defer g.mu.Unlock()
	for key, h := range g.inflight {
		h.dropped = true
		h.cancel(ErrCanceled)
		delete(g.inflight, key)
	}
}

// InFlight returns the number of keys with a running request.
func (g *Group) InFlight() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.inflight)
}

// Latest returns the id of the running request for key, or "".
func (g *Group) Latest(key string) string {
	g.mu.Lock()
	defer g.mu.Unlock()
	if h, ok := g.inflight[key]; ok {
		return h.id
	}
	return ""
}
