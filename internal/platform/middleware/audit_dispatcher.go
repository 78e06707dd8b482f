package middleware

import (
	"sync"

	"github.com/rs/zerolog"
)

// AuditDispatcher decouples request handling from audit persistence. Entries
// are queued on a bounded channel and written by a single worker; when the
// queue is full the entry is dropped and logged so a slow store never blocks
// a request.
type AuditDispatcher struct {
	store  AuditRecorder
	logger zerolog.Logger
	queue  chan AuditEntry
	done   chan struct{}
	once   sync.Once
}

func NewAuditDispatcher(store AuditRecorder, buffer int, logger zerolog.Logger) *AuditDispatcher {
	if buffer <= 0 {
		buffer = 100
	}
	d := &AuditDispatcher{
		store:  store,
		logger: logger,
		queue:  make(chan AuditEntry, buffer),
		done:   make(chan struct{}),
	}
	go d.worker()
	return d
}

func (d *AuditDispatcher) worker() {
	defer close(d.done)
	for entry := range d.queue {
		if err := d.store.RecordAccess(entry); err != nil {
			d.logger.Error().Err(err).
				Str("request_id", entry.RequestID).
				Msg("audit store write failed")
		}
	}
}

// RecordAccess enqueues entry. It never blocks.
func (d *AuditDispatcher) RecordAccess(entry AuditEntry) error {
	select {
	case d.queue <- entry:
	default:
		d.logger.Warn().
			Str("request_id", entry.RequestID).
			Str("path", entry.Path).
			Msg("audit queue full, dropping entry")
	}
	return nil
}

// Close stops accepting entries and waits for the queue to drain.
// RecordAccess must not be called after Close.
func (d *AuditDispatcher) Close() {
	d.once.Do(func() { close(d.queue) })
	<-d.done
}
