package avatar

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
)

// DefaultPath is where [Broadcaster] is usually mounted.
const DefaultPath = "/avatar"

const writeTimeout = 2 * time.Second

// State is the message pushed to renderers.
type State struct {
	Frame    Frame `json:"frame"`
	Speaking bool  `json:"speaking"`
}

var (
	_ Avatar       = (*Broadcaster)(nil)
	_ http.Handler = (*Broadcaster)(nil)
)

// Broadcaster animates an [Animator] and streams its state to websocket
// clients. A new client first receives the current state, then every change.
// Slow clients miss intermediate frames rather than stalling the animation.
type Broadcaster struct {
	anim *Animator
	log  *slog.Logger

	mu      sync.Mutex
	last    State
	clients map[chan State]struct{}
}

// NewBroadcaster wraps anim. A nil logger means [slog.Default].
func NewBroadcaster(anim *Animator, log *slog.Logger) *Broadcaster {
	if log == nil {
		log = slog.Default()
	}
	return &Broadcaster{
		anim:    anim,
		log:     log,
		last:    State{Frame: anim.Frame(), Speaking: anim.Speaking()},
		clients: make(map[chan State]struct{}),
	}
}

// SetSpeaking implements [Avatar].
func (b *Broadcaster) SetSpeaking(speaking bool) {
	b.anim.SetSpeaking(speaking)
	b.publish()
}

// Tick implements [Avatar].
func (b *Broadcaster) Tick(now time.Time) {
	b.anim.Tick(now)
	b.publish()
}

// Clients returns the number of connected renderers.
func (b *Broadcaster) Clients() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.clients)
}

func (b *Broadcaster) publish() {
	s := State{Frame: b.anim.Frame(), Speaking: b.anim.Speaking()}

	b.mu.Lock()
	defer b.mu.Unlock()
	if s == b.last {
		return
	}
	b.last = s
	for ch := range b.clients {
		select {
		case ch <- s:
		default:
		}
	}
}

func (b *Broadcaster) subscribe() (chan State, State) {
	ch := make(chan State, 8)
	b.mu.Lock()
	defer b.mu.Unlock()
	b.clients[ch] = struct{}{}
	return ch, b.last
}

func (b *Broadcaster) unsubscribe(ch chan State) {
	b.mu.Lock()
	delete(b.clients, ch)
	b.mu.Unlock()
}

// ServeHTTP upgrades the request to a websocket and streams state until the
// client disconnects or the request context ends.
func (b *Broadcaster) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		b.log.Warn("avatar: websocket accept failed", "err", err)
		return
	}
	defer conn.CloseNow()

	ch, current := b.subscribe()
	defer b.unsubscribe(ch)

	// Renderers never send; CloseRead cancels ctx when the peer goes away.
	ctx := conn.CloseRead(r.Context())

	if err := b.write(ctx, conn, current); err != nil {
		return
	}
	for {
		select {
		case <-ctx.Done():
			conn.Close(websocket.StatusNormalClosure, "")
			return
		case s := <-ch:
			if err := b.write(ctx, conn, s); err != nil {
				b.log.Debug("avatar: client write failed", "err", err)
				return
			}
		}
	}
}

func (b *Broadcaster) write(ctx context.Context, conn *websocket.Conn, s State) error {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return wsjson.Write(ctx, conn, s)
}
