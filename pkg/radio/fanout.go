package radio

import (
	"github.com/google/uuid"
	"github.com/hibikilabs/hibiki/pkg/logging"
)

// Listener is one attached sink. The HTTP layer drains Chunks and writes to
// the response; the channel closes when the listener is detached or evicted.
type Listener struct {
	id string
	ch chan []byte
}

// ID returns the listener's unique id
func (l *Listener) ID() string {
	return l.id
}

// Chunks returns the stream of MP3 byte chunks for this listener
func (l *Listener) Chunks() <-chan []byte {
	return l.ch
}

// fanoutBus maintains the set of attached listener sinks and copies each
// outgoing chunk to every sink. It holds no lock of its own: every method
// must be called with the engine lock held, so listener membership always
// agrees with the engine state it is reported alongside.
type fanoutBus struct {
	sinks   map[string]*Listener
	buffer  int
	logger  logging.Logger
	metrics MetricsCollector
}

func newFanoutBus(buffer int, logger logging.Logger, metrics MetricsCollector) *fanoutBus {
	if buffer <= 0 {
		buffer = 256
	}
	return &fanoutBus{
		sinks:   make(map[string]*Listener),
		buffer:  buffer,
		logger:  logger,
		metrics: metrics,
	}
}

// attach registers a new sink and returns it
func (b *fanoutBus) attach() *Listener {
	listener := &Listener{
		id: uuid.New().String(),
		ch: make(chan []byte, b.buffer),
	}
	b.sinks[listener.id] = listener

	b.logger.Info("Listener attached", map[string]interface{}{
		"listener_id": listener.id,
		"listeners":   len(b.sinks),
	})

	return listener
}

// detach removes a sink and closes its channel. Safe to call for an already
// evicted listener.
func (b *fanoutBus) detach(listenerID string) bool {
	listener, ok := b.sinks[listenerID]
	if !ok {
		return false
	}

	delete(b.sinks, listenerID)
	close(listener.ch)

	b.logger.Info("Listener detached", map[string]interface{}{
		"listener_id": listenerID,
		"listeners":   len(b.sinks),
	})

	return true
}

// broadcast writes one chunk to every sink. The producer never blocks: a sink
// whose buffer is full has fallen too far behind a real-time stream to ever
// catch up contiguously, so it is evicted instead.
func (b *fanoutBus) broadcast(chunk []byte) {
	if len(b.sinks) == 0 {
		return
	}

	var evicted []string
	for id, listener := range b.sinks {
		select {
		case listener.ch <- chunk:
		default:
			evicted = append(evicted, id)
		}
	}

	for _, id := range evicted {
		listener := b.sinks[id]
		delete(b.sinks, id)
		close(listener.ch)

		b.logger.Warn("Listener evicted, sink buffer full", map[string]interface{}{
			"listener_id": id,
			"listeners":   len(b.sinks),
		})
		if b.metrics != nil {
			b.metrics.RecordListenerEvicted()
		}
	}

	if b.metrics != nil {
		b.metrics.RecordBroadcastBytes(len(chunk) * len(b.sinks))
	}
}

// count returns the number of attached sinks
func (b *fanoutBus) count() int {
	return len(b.sinks)
}

// closeAll detaches every sink, used at shutdown
func (b *fanoutBus) closeAll() {
	for id, listener := range b.sinks {
		delete(b.sinks, id)
		close(listener.ch)
	}
}
