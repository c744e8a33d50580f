package linkmux

import (
	"context"
	"net/http"
	"sync"

	"github.com/google/uuid"

	"github.com/banshee-data/packetlink/internal/packet"
)

// DisabledMux is a no-op LinkMuxInterface used when no controller is
// attached (--disable-link). Subscriber channels are tracked so they are
// closed deterministically on Unsubscribe or Close.
type DisabledMux struct {
	capacity    int
	mu          sync.Mutex
	subscribers map[string]chan *packet.Frame
	closing     bool
}

func NewDisabledMux(capacity int) *DisabledMux {
	return &DisabledMux{
		capacity:    capacity,
		subscribers: make(map[string]chan *packet.Frame),
	}
}

func (d *DisabledMux) Subscribe() (string, chan *packet.Frame) {
	id := uuid.NewString()
	ch := make(chan *packet.Frame)

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closing {
		close(ch)
		return id, ch
	}
	d.subscribers[id] = ch
	return id, ch
}

func (d *DisabledMux) Unsubscribe(id string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if ch, ok := d.subscribers[id]; ok {
		close(ch)
		delete(d.subscribers, id)
	}
}

func (d *DisabledMux) SendFrame(*packet.Frame) error { return nil }

func (d *DisabledMux) Monitor(ctx context.Context) error { <-ctx.Done(); return ctx.Err() }

func (d *DisabledMux) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closing {
		return nil
	}
	d.closing = true
	for id, ch := range d.subscribers {
		close(ch)
		delete(d.subscribers, id)
	}
	return nil
}

func (d *DisabledMux) Status() Status {
	return Status{Capacity: d.capacity, Mode: "disabled"}
}

func (d *DisabledMux) Capacity() int { return d.capacity }

func (d *DisabledMux) AttachAdminRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/debug/link-disabled", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("link disabled"))
	})
}
