package mailsmtp

import (
	"context"
	"log/slog"
	"net"

	"github.com/mailfang/mailfang/internal/admission"
	"github.com/mailfang/mailfang/internal/observability"
)

// Listener accepts SMTP connections, admitting each through a fixed-size
// slot pool (C7) before handing it to a Session.
type Listener struct {
	addr    string
	creds   Credentials
	receive ReceiveFunc
	pool    *admission.Pool
	metrics *observability.Metrics
}

// NewListener builds a Listener bound to addr, enforcing maxConnections
// concurrent sessions via the admission pool. metrics may be nil, in which
// case the listener and its sessions record nothing.
func NewListener(addr string, creds Credentials, maxConnections int, receive ReceiveFunc, metrics *observability.Metrics) *Listener {
	return &Listener{
		addr:    addr,
		creds:   creds,
		receive: receive,
		pool:    admission.New(maxConnections),
		metrics: metrics,
	}
}

// Pool exposes the admission pool for metrics reporting.
func (l *Listener) Pool() *admission.Pool { return l.pool }

// Serve accepts connections until ctx is canceled or the listener errors.
// Each connection runs in its own goroutine after acquiring an admission
// slot; the listener itself never blocks on a full pool, since Accept and
// slot acquisition happen concurrently per connection.
func (l *Listener) Serve(ctx context.Context) error {
	lc := net.ListenConfig{}
	ln, err := lc.Listen(ctx, "tcp", l.addr)
	if err != nil {
		return err
	}
	defer ln.Close()

	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
				return err
			}
		}
		go l.handleConn(ctx, conn)
	}
}

func (l *Listener) handleConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	if err := l.pool.Acquire(ctx); err != nil {
		return
	}
	defer l.pool.Release()
	l.observeAdmission()
	defer l.observeAdmission()

	sess := NewSession(ctx, conn, l.creds, l.receive, l.metrics)
	slog.Debug("mailsmtp: session started", "remote", conn.RemoteAddr().String())
	sess.Run()
	slog.Debug("mailsmtp: session ended", "remote", conn.RemoteAddr().String())
}

func (l *Listener) observeAdmission() {
	if l.metrics == nil {
		return
	}
	l.metrics.SMTPAdmissionInUse.Set(float64(l.pool.InUse()))
}
