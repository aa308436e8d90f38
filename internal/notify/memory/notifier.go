// Package memory contains an in-memory notifier for tests and local runs.
package memory

import (
	"context"
	"sync"

	"github.com/JakeFAU/archive-ocr-pipeline/internal/archive"
)

// Notifier stores events for inspection.
type Notifier struct {
	mu     sync.RWMutex
	events []archive.Event
	fail   error
}

var _ archive.Notifier = (*Notifier)(nil)

// New returns a memory Notifier.
func New() *Notifier {
	return &Notifier{}
}

// FailWith makes every subsequent Notify return err; nil restores normal behaviour.
func (n *Notifier) FailWith(err error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.fail = err
}

// Notify records the event.
func (n *Notifier) Notify(_ context.Context, event archive.Event) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.fail != nil {
		return n.fail
	}
	n.events = append(n.events, event)
	return nil
}

// Events returns the recorded events.
func (n *Notifier) Events() []archive.Event {
	n.mu.RLock()
	defer n.mu.RUnlock()
	out := make([]archive.Event, len(n.events))
	copy(out, n.events)
	return out
}
