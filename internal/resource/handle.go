// Package resource owns the single playable media object for one playback
// session: the proxied stream, its buffered bytes, and the facts about how
// the processing graph is bound to it.
package resource

import (
	"context"
	"errors"
	"io"
	"log"
	"sync"

	"github.com/google/uuid"

	"github.com/rvirk/etherwave/internal/proxy"
)

var (
	// ErrLocatorCleared is the decode error raised when the locator would
	// be emptied while a graph is attached or a play is pending.
	ErrLocatorCleared = errors.New("resource: locator cleared while in use")

	// ErrPlayPending means a pending play is already armed for this session.
	ErrPlayPending = errors.New("resource: play already pending")

	// ErrAlreadyBound means a source node was already created for this
	// handle; the binding lasts for the handle's entire lifetime.
	ErrAlreadyBound = errors.New("resource: handle already bound to a source node")

	// ErrTornDown means the handle was destructively torn down.
	ErrTornDown = errors.New("resource: handle torn down")

	// ErrNotPrepared means no source has been prepared on this handle.
	ErrNotPrepared = errors.New("resource: not prepared")

	// ErrStreamEnded means the upstream closed the stream unexpectedly.
	ErrStreamEnded = errors.New("resource: stream ended unexpectedly")
)

const readChunk = 4096

// Handle is the singular playable object of one playback session. Exactly
// one handle exists per session and it is never shared across sessions.
type Handle struct {
	client     *proxy.Client
	readyBytes int64

	mu       sync.Mutex
	sourceID string
	locator  string
	buf      *streamBuffer
	body     io.ReadCloser
	cancel   context.CancelFunc
	loadSeq  int
	ready    bool
	failed   bool
	paused   bool
	done     bool
	pending  func()

	bound    bool
	boundGen uuid.UUID
	attached bool

	onReady   func()
	onFailure func(error)
}

// NewHandle creates a handle that buffers readyBytes before signaling
// readiness.
func NewHandle(client *proxy.Client, readyBytes int64) *Handle {
	return &Handle{client: client, readyBytes: readyBytes}
}

// OnReady sets the readiness signal callback. Fired at most once per load.
func (h *Handle) OnReady(fn func()) {
	h.mu.Lock()
	h.onReady = fn
	h.mu.Unlock()
}

// OnFailure sets the stream failure callback.
func (h *Handle) OnFailure(fn func(error)) {
	h.mu.Lock()
	h.onFailure = fn
	h.mu.Unlock()
}

// Prepare points the handle at the proxy locator for sourceID and begins
// asynchronous buffering. Idempotent: when the locator already equals the
// target and the current load has not failed, no new load is issued, so
// redundant lifecycle invocations cannot cause duplicate-load storms.
// After a failure, Prepare with the same source re-issues the load.
func (h *Handle) Prepare(ctx context.Context, sourceID string) error {
	target := h.client.StreamURL(sourceID)

	h.mu.Lock()
	if h.done {
		h.mu.Unlock()
		return ErrTornDown
	}
	if h.locator == target && !h.failed {
		h.mu.Unlock()
		return nil
	}

	// cancel a stale load before starting the new one
	if h.cancel != nil {
		h.cancel()
	}
	if h.buf != nil {
		h.buf.CloseWithError(ErrStreamEnded)
	}

	loadCtx, cancel := context.WithCancel(ctx)
	h.sourceID = sourceID
	h.locator = target
	h.buf = newStreamBuffer(int(h.readyBytes) * 4)
	h.cancel = cancel
	h.ready = false
	h.failed = false
	h.loadSeq++
	seq := h.loadSeq
	buf := h.buf
	h.mu.Unlock()

	go h.load(loadCtx, sourceID, seq, buf)
	return nil
}

// load fetches the stream and fills the buffer until cancellation. Runs on
// its own goroutine; seq guards against callbacks from superseded loads.
func (h *Handle) load(ctx context.Context, sourceID string, seq int, buf *streamBuffer) {
	s, err := h.client.Open(ctx, sourceID)
	if err != nil {
		if ctx.Err() == nil {
			h.fail(seq, err)
		}
		return
	}

	h.mu.Lock()
	if seq != h.loadSeq {
		h.mu.Unlock()
		s.Body.Close()
		return
	}
	h.body = s.Body
	h.mu.Unlock()

	defer s.Body.Close()

	chunk := make([]byte, readChunk)
	for {
		n, err := s.Body.Read(chunk)
		if n > 0 {
			if _, werr := buf.Write(chunk[:n]); werr != nil {
				return
			}
			if buf.Total() >= h.readyBytes {
				h.markReady(seq)
			}
		}
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			if err == io.EOF {
				err = ErrStreamEnded
			}
			buf.CloseWithError(err)
			h.fail(seq, err)
			return
		}
	}
}

// markReady fires the readiness signal and the pending play, each exactly
// once, in that order.
func (h *Handle) markReady(seq int) {
	h.mu.Lock()
	if seq != h.loadSeq || h.ready || h.done {
		h.mu.Unlock()
		return
	}
	h.ready = true
	readyFn := h.onReady
	pending := h.pending
	h.pending = nil
	h.mu.Unlock()

	if readyFn != nil {
		readyFn()
	}
	if pending != nil {
		pending()
	}
}

func (h *Handle) fail(seq int, err error) {
	h.mu.Lock()
	if seq != h.loadSeq || h.done {
		h.mu.Unlock()
		return
	}
	h.failed = true
	h.ready = false
	failFn := h.onFailure
	h.mu.Unlock()

	log.Printf("Resource stream failed: %v", err)
	if failFn != nil {
		failFn(err)
	}
}

// Invalidate marks the current load failed without firing the failure
// callback. Used when a consumer downstream of the byte stream dies, so
// the next Prepare with the same source re-issues the load instead of
// treating it as still good.
func (h *Handle) Invalidate() {
	h.mu.Lock()
	h.failed = true
	h.ready = false
	h.mu.Unlock()
}

// CommitPlay runs fn synchronously when the resource is ready. Otherwise it
// arms the single pending-action slot; the action fires exactly once when
// readiness arrives and stays attributable to the original user action.
// A second commit while one is pending is refused.
func (h *Handle) CommitPlay(fn func()) error {
	h.mu.Lock()
	if h.done {
		h.mu.Unlock()
		return ErrTornDown
	}
	if h.ready {
		h.mu.Unlock()
		fn()
		return nil
	}
	if h.pending != nil {
		h.mu.Unlock()
		return ErrPlayPending
	}
	h.pending = fn
	h.mu.Unlock()
	return nil
}

// Teardown releases the handle. Destructive teardown pauses the resource
// and cancels the load; it is used only on genuine source change or
// shutdown. Non-destructive teardown leaves playback state untouched.
// Callers decide destructiveness by comparing locators (see IsCurrent),
// never by the nullness of any reference.
func (h *Handle) Teardown(destructive bool) {
	if !destructive {
		return
	}

	h.mu.Lock()
	if h.done {
		h.mu.Unlock()
		return
	}
	h.done = true
	h.paused = true
	h.pending = nil
	cancel := h.cancel
	buf := h.buf
	h.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if buf != nil {
		buf.CloseWithError(ErrTornDown)
	}
}

// ClearLocator empties the locator. Forbidden while a graph is attached or
// a play is pending; doing so raises a decode error instead.
func (h *Handle) ClearLocator() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.attached || h.pending != nil {
		return ErrLocatorCleared
	}
	h.locator = ""
	h.sourceID = ""
	return nil
}

// BindSource records the one-time binding of this handle to a source node
// in generation gen. The binding is an explicit ownership fact: it can be
// made at most once for the handle's entire lifetime.
func (h *Handle) BindSource(gen uuid.UUID) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.bound {
		return ErrAlreadyBound
	}
	h.bound = true
	h.boundGen = gen
	h.attached = true
	return nil
}

// SourceBinding returns the generation this handle's source node belongs
// to, and whether a binding exists at all.
func (h *Handle) SourceBinding() (uuid.UUID, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.boundGen, h.bound
}

// Detach marks the graph as no longer attached. The source binding itself
// is permanent and survives detachment.
func (h *Handle) Detach() {
	h.mu.Lock()
	h.attached = false
	h.mu.Unlock()
}

// Read streams buffered bytes to the decoder. When a failed load has been
// replaced by a reconnect, reading continues seamlessly from the new
// buffer.
func (h *Handle) Read(p []byte) (int, error) {
	for {
		h.mu.Lock()
		b := h.buf
		h.mu.Unlock()
		if b == nil {
			return 0, ErrNotPrepared
		}

		n, err := b.Read(p)
		if n > 0 || err == nil {
			return n, err
		}

		h.mu.Lock()
		replaced := h.buf != b
		h.mu.Unlock()
		if !replaced {
			return 0, err
		}
	}
}

// Ready reports whether the buffering threshold has been reached.
func (h *Handle) Ready() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.ready
}

// PlayPending reports whether the one-shot pending play is armed.
func (h *Handle) PlayPending() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.pending != nil
}

// SourceID returns the prepared source id.
func (h *Handle) SourceID() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.sourceID
}

// Locator returns the current resource locator.
func (h *Handle) Locator() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.locator
}

// IsCurrent reports whether sourceID resolves to the current locator.
// This comparison, not reference nullness, decides whether a teardown is
// destructive.
func (h *Handle) IsCurrent(sourceID string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.locator != "" && h.locator == h.client.StreamURL(sourceID)
}

// Paused reports whether a destructive teardown paused the resource.
func (h *Handle) Paused() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.paused
}

// Buffered returns how many bytes have been fetched for the current load.
func (h *Handle) Buffered() int64 {
	h.mu.Lock()
	b := h.buf
	h.mu.Unlock()
	if b == nil {
		return 0
	}
	return b.Total()
}
