// Package ingest is the message-passing handoff spec.md §9 recommends
// between the SMTP session task and the persistence gateway: the session's
// receive callback enqueues a job and returns immediately, while a bounded
// pool of worker goroutines does the decomposition, CID rewrite, save, and
// post-commit broadcast.
package ingest

import (
	"context"
	"log/slog"
	"sync"

	"github.com/mailfang/mailfang/internal/eventbus"
	"github.com/mailfang/mailfang/internal/mailmime"
	"github.com/mailfang/mailfang/internal/mailsmtp"
	"github.com/mailfang/mailfang/internal/observability"
	"github.com/mailfang/mailfang/internal/render"
	"github.com/mailfang/mailfang/internal/store"
)

// job is one accepted message awaiting decomposition and save.
type job struct {
	ctx context.Context
	msg mailsmtp.ReceivedMessage
}

// Worker owns a bounded channel of pending jobs and a fixed pool of
// goroutines draining it, decoupling wire-level throughput from database
// latency per spec.md §9.
type Worker struct {
	jobs    chan job
	store   *store.Store
	bus     *eventbus.Bus
	metrics *observability.Metrics
	wg      sync.WaitGroup
}

// NewWorker starts poolSize goroutines consuming from a queue of the given
// capacity. metrics may be nil, in which case the worker records nothing.
func NewWorker(st *store.Store, bus *eventbus.Bus, poolSize, queueCapacity int, metrics *observability.Metrics) *Worker {
	if poolSize < 1 {
		poolSize = 1
	}
	if queueCapacity < 1 {
		queueCapacity = 1
	}
	w := &Worker{
		jobs:    make(chan job, queueCapacity),
		store:   st,
		bus:     bus,
		metrics: metrics,
	}
	w.wg.Add(poolSize)
	for i := 0; i < poolSize; i++ {
		go w.loop()
	}
	return w
}

// Receive is the mailsmtp.ReceiveFunc the SMTP listener is constructed
// with: it enqueues and returns, never blocking the session on database
// work. If the queue is full, it blocks the calling session (after DATA has
// been read, before its reply is sent) until a worker frees a slot. If ctx is
// done first, the message is dropped without being queued.
func (w *Worker) Receive(ctx context.Context, msg mailsmtp.ReceivedMessage) {
	select {
	case w.jobs <- job{ctx: ctx, msg: msg}:
		w.observeQueueDepth()
	case <-ctx.Done():
	}
}

func (w *Worker) observeQueueDepth() {
	if w.metrics == nil {
		return
	}
	w.metrics.IngestQueueDepth.Set(float64(len(w.jobs)))
}

// Close stops accepting new jobs and waits for in-flight jobs to finish.
func (w *Worker) Close() {
	close(w.jobs)
	w.wg.Wait()
}

func (w *Worker) loop() {
	defer w.wg.Done()
	for j := range w.jobs {
		w.observeQueueDepth()
		w.process(j)
	}
}

func (w *Worker) process(j job) {
	details := mailmime.Decompose(j.msg.RawBody)

	newEmail := store.NewEmail{
		MessageID:    details.MessageID,
		Subject:      details.Subject,
		Date:         details.Date,
		EnvelopeFrom: j.msg.From,
		Recipients:   j.msg.Recipients,
		RawBody:      j.msg.RawBody,
		BodyText:     details.BodyText,
		BodyHTML:     details.BodyHTML,
		Headers:      details.Headers,
	}
	for _, h := range details.HeaderOrder {
		newEmail.HeaderOrder = append(newEmail.HeaderOrder, store.HeaderOccurrence{Name: h.Name, Value: h.Value})
	}
	for _, a := range details.Attachments {
		newEmail.Attachments = append(newEmail.Attachments, store.NewAttachment{
			Filename:    a.Filename,
			ContentType: a.ContentType,
			Data:        a.Data,
			ContentID:   a.ContentID,
			Disposition: a.Disposition,
		})
	}

	id, listRecord, err := w.store.Save(j.ctx, newEmail)
	if err != nil {
		slog.Error("ingest: failed to save message", "error", err)
		if w.metrics != nil {
			w.metrics.IngestSaveErrors.Inc()
		}
		return
	}

	if details.BodyHTML != "" {
		w.rewriteRendered(j.ctx, id, details.BodyHTML)
	}

	if w.bus != nil {
		w.bus.PublishNewMail(listRecord)
	}
}

func (w *Worker) rewriteRendered(ctx context.Context, emailID, bodyHTML string) {
	byCID, err := w.store.AttachmentIDsFor(ctx, emailID)
	if err != nil {
		slog.Error("ingest: failed to load attachment ids for CID rewrite", "error", err, "email_id", emailID)
		return
	}
	rendered := render.RenderHTML(bodyHTML, byCID)
	if err := w.store.UpdateRendered(ctx, emailID, rendered); err != nil {
		slog.Error("ingest: failed to persist rendered html", "error", err, "email_id", emailID)
	}
}
