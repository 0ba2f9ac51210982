package discovery

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/tutu-network/riemann/internal/domain"
	"github.com/tutu-network/riemann/internal/infra/metrics"
	"github.com/tutu-network/riemann/internal/infra/wire"
)

// Responder answers discovery probes. It shares no state with the task
// executor and keeps replying while a task is being computed.
type Responder struct {
	addr    string
	log     *zap.Logger
	serving atomic.Bool
}

// NewResponder creates a responder that will bind addr (e.g. ":8001").
func NewResponder(addr string, log *zap.Logger) *Responder {
	return &Responder{addr: addr, log: log.Named("responder")}
}

// ListenAndServe binds the discovery port and serves until ctx is cancelled.
// A bind failure is returned immediately.
func (r *Responder) ListenAndServe(ctx context.Context) error {
	conn, err := net.ListenPacket("udp4", r.addr)
	if err != nil {
		return fmt.Errorf("%w: bind discovery %s: %w", domain.ErrSocketSetup, r.addr, err)
	}
	return r.Serve(ctx, conn)
}

// Serve answers probes arriving on conn until ctx is cancelled. It takes
// ownership of conn and closes it on return. Cancellation is not an error.
func (r *Responder) Serve(ctx context.Context, conn net.PacketConn) error {
	defer conn.Close()
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	r.serving.Store(true)
	defer r.serving.Store(false)
	r.log.Info("answering probes", zap.Stringer("addr", conn.LocalAddr()))

	buf := make([]byte, 256)
	for {
		n, src, err := conn.ReadFrom(buf)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if errors.Is(err, net.ErrClosed) {
				return err
			}
			r.log.Debug("read probe", zap.Error(err))
			continue
		}

		if !wire.IsProbe(buf[:n]) {
			metrics.DatagramsIgnored.Inc()
			continue
		}
		if _, err := conn.WriteTo([]byte(wire.ResponseLiteral), src); err != nil {
			r.log.Debug("reply to probe", zap.Stringer("from", src), zap.Error(err))
			continue
		}
		metrics.ProbesAnswered.Inc()
		r.log.Debug("probe answered", zap.Stringer("from", src))
	}
}

// Serving reports whether the responder loop is running.
func (r *Responder) Serving() bool {
	return r.serving.Load()
}
