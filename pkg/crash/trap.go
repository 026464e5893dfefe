package crash

import (
	"context"
	"os"
	"os/signal"
	"sync"

	"github.com/go-delve/crashwalk/pkg/memory"
)

// Handler receives the events of a Trapper.
type Handler func(ctx context.Context, ev *Event) Disposition

// Trapper installs the platform traps delivering faults of the given
// kinds to a Handler.
type Trapper interface {
	Install(kinds []Kind, h Handler) error
	Uninstall() error
}

// SignalTrapper is a Trapper for the asynchronous signals the Go runtime
// lets programs catch. Synchronous faults (GPF, Arithmetic, StackOverflow)
// are turned into panics by the Go runtime and can not be trapped this
// way, kinds without a signal are ignored.
type SignalTrapper struct {
	mu   sync.Mutex
	ch   chan os.Signal
	done chan struct{}
	wg   sync.WaitGroup
}

func (t *SignalTrapper) Install(kinds []Kind, h Handler) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.ch != nil {
		return ErrAlreadyInitialized
	}
	var sigs []os.Signal
	for _, k := range kinds {
		if sig := asyncSignal(k); sig != nil {
			sigs = append(sigs, sig)
		}
	}
	if len(sigs) == 0 {
		return nil
	}
	t.ch = make(chan os.Signal, 1)
	t.done = make(chan struct{})
	signal.Notify(t.ch, sigs...)

	t.wg.Add(1)
	go func(ch chan os.Signal, done chan struct{}) {
		defer t.wg.Done()
		for {
			select {
			case sig := <-ch:
				ev := &Event{
					Kind:   kindOfSignal(sig),
					Signal: sig,
					Memory: memory.Self{},
				}
				h(context.Background(), ev)
			case <-done:
				return
			}
		}
	}(t.ch, t.done)
	return nil
}

func (t *SignalTrapper) Uninstall() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.ch == nil {
		return nil
	}
	signal.Stop(t.ch)
	close(t.done)
	t.wg.Wait()
	t.ch, t.done = nil, nil
	return nil
}
