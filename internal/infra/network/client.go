// Package network provides the coordinator side of the task exchange.
//
// Every exchange uses a fresh TCP connection: connect, write one Task record,
// read one result record, close. The whole round trip is bounded by a fixed
// timeout; there is no other cancellation path inside an exchange.
package network

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"time"

	"github.com/tutu-network/riemann/internal/domain"
	"github.com/tutu-network/riemann/internal/infra/metrics"
	"github.com/tutu-network/riemann/internal/infra/wire"
)

// DefaultTimeout bounds connect, send and receive of one exchange.
const DefaultTimeout = 2 * time.Second

// Client performs task exchanges. It implements domain.Exchanger.
type Client struct {
	timeout time.Duration
	dialer  net.Dialer
}

// NewClient creates an exchange client with the given per-request timeout.
func NewClient(timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		timeout: timeout,
		dialer:  net.Dialer{Timeout: timeout},
	}
}

// Exchange sends task to peer and returns the worker's partial result.
// Every failure is wrapped in domain.ErrExchangeFailed.
func (c *Client) Exchange(ctx context.Context, peer domain.Peer, task domain.Task) (float64, error) {
	started := time.Now()
	defer func() { metrics.ExchangeLatency.Observe(time.Since(started).Seconds()) }()

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	conn, err := c.dialer.DialContext(ctx, "tcp", peer.Addr.String())
	if err != nil {
		return 0, exchangeError(peer, "connect", err)
	}
	defer conn.Close()

	deadline, _ := ctx.Deadline()
	if err := conn.SetDeadline(deadline); err != nil {
		return 0, exchangeError(peer, "deadline", err)
	}

	if err := wire.WriteTask(conn, task); err != nil {
		return 0, exchangeError(peer, "send", err)
	}
	result, err := wire.ReadResult(conn)
	if err != nil {
		return 0, exchangeError(peer, "receive", err)
	}
	return result, nil
}

// FailureReason classifies an exchange error for metrics and history.
func FailureReason(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, os.ErrDeadlineExceeded), errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, domain.ErrShortRecord):
		return "short_response"
	case errors.Is(err, context.Canceled):
		return "cancelled"
	default:
		return "io"
	}
}

func exchangeError(peer domain.Peer, stage string, err error) error {
	return fmt.Errorf("%w: %s %s: %w", domain.ErrExchangeFailed, stage, peer, err)
}
