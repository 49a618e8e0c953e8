// Package server emits tamper-evident audit records for every connection
// lifecycle and messaging event through the Sink type. Producers never block
// and never observe persistence failures: records flow through a bounded
// queue into an append-only store, falling back to console emission when the
// queue is full or the store rejects a write.
package server

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Audit event kinds. NICKCHANGE is reserved for a rename command that the
// protocol does not carry yet.
const (
	AuditConnect    = "CONNECT"
	AuditAuth       = "AUTH"
	AuditDisconnect = "DISCONNECT"
	AuditMessage    = "MESSAGE"
	AuditNickChange = "NICKCHANGE"
	AuditError      = "ERROR"
)

// Record is one immutable audit entry. Digest is a deterministic content
// hash of Message, so downstream consumers can deduplicate and integrity
// check entries without a second copy of the text.
type Record struct {
	ID        string    `json:"id"`
	Kind      string    `json:"type"`
	User      string    `json:"user"`
	IP        string    `json:"ip,omitempty"`
	Port      int       `json:"port,omitempty"`
	Message   string    `json:"message"`
	Digest    string    `json:"messageHash"`
	Timestamp time.Time `json:"timestamp"`
}

// Appender is the persistence contract of the sink: append-only, and any
// returned error is swallowed by the sink after a best-effort fallback.
type Appender interface {
	Append(Record) error
}

// digestOf computes the deterministic content hash stamped on each record.
func digestOf(message string) string {
	sum := sha256.Sum256([]byte(message))
	return hex.EncodeToString(sum[:])
}

// levelFor maps audit kinds to log severities. The mapping is fixed:
// disconnects are warnings, errors are errors, everything else is info.
func levelFor(kind string) slog.Level {
	switch kind {
	case AuditDisconnect:
		return slog.LevelWarn
	case AuditError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Sink is the audit event pipeline. A single consumer goroutine drains the
// queue into the appender so that connection tasks never wait on storage.
type Sink struct {
	queue    chan Record
	appender Appender
	logger   *slog.Logger
	done     chan struct{}
}

// NewSink creates a sink backed by the given appender. A nil appender is
// valid and turns the sink into a console-only emitter.
func NewSink(appender Appender, queueSize int) *Sink {
	if queueSize <= 0 {
		queueSize = 256
	}
	return &Sink{
		queue:    make(chan Record, queueSize),
		appender: appender,
		logger:   slog.Default(),
		done:     make(chan struct{}),
	}
}

// Run drains the queue until Close is called. It should run in its own
// goroutine.
func (s *Sink) Run() {
	defer close(s.done)

	for rec := range s.queue {
		if s.appender == nil {
			s.emit(rec)
			continue
		}
		if err := s.appender.Append(rec); err != nil {
			s.logger.Error("audit append failed, emitting to console", "error", err)
			s.emit(rec)
		}
	}
}

// Close stops the consumer after the queued records are drained.
func (s *Sink) Close() {
	close(s.queue)
	<-s.done
}

// Record enqueues one audit entry. Empty user maps to "anon" and an empty
// message falls back to the kind itself. The digest is computed from the
// message unless the caller supplies a pre-computed override. Never blocks:
// with a full queue the record goes straight to the console fallback.
func (s *Sink) Record(kind, user, ip string, port int, message, digestOverride string) {
	if user == "" {
		user = "anon"
	}
	if message == "" {
		message = kind
	}

	digest := digestOverride
	if digest == "" {
		digest = digestOf(message)
	}

	rec := Record{
		ID:        uuid.NewString(),
		Kind:      kind,
		User:      user,
		IP:        ip,
		Port:      port,
		Message:   message,
		Digest:    digest,
		Timestamp: time.Now().UTC(),
	}

	// The sink never raises: a record arriving during Close falls back to
	// console emission instead of panicking on the closed queue.
	defer func() {
		if r := recover(); r != nil {
			s.emit(rec)
		}
	}()

	select {
	case s.queue <- rec:
	default:
		s.emit(rec)
	}
}

// emit is the best-effort console fallback.
func (s *Sink) emit(rec Record) {
	s.logger.Log(context.Background(), levelFor(rec.Kind), rec.Message,
		"type", rec.Kind,
		"user", rec.User,
		"ip", rec.IP,
		"port", rec.Port,
		"messageHash", rec.Digest,
		"id", rec.ID,
	)
}
