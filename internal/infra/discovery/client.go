// Package discovery finds workers on the local network.
//
// The coordinator broadcasts a single probe datagram and treats every
// datagram that arrives before the receive window expires as a live worker.
// Workers run a Responder that answers probes on the well-known port.
package discovery

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/netip"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/tutu-network/riemann/internal/domain"
	"github.com/tutu-network/riemann/internal/infra/metrics"
	"github.com/tutu-network/riemann/internal/infra/registry"
	"github.com/tutu-network/riemann/internal/infra/wire"
)

// Well-known ports and timing shared by coordinator and worker.
const (
	DefaultDiscoveryPort = 8001
	DefaultTaskPort      = 8002
	DefaultWindow        = 2 * time.Second
)

// ClientConfig configures the coordinator side of discovery.
type ClientConfig struct {
	Broadcast netip.AddrPort // probe destination, normally 255.255.255.255:8001
	TaskPort  uint16         // port recorded for every responder
	Window    time.Duration  // receive timeout; discovery ends when it expires
}

// DefaultClientConfig returns the reference constants.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		Broadcast: netip.AddrPortFrom(netip.AddrFrom4([4]byte{255, 255, 255, 255}), DefaultDiscoveryPort),
		TaskPort:  DefaultTaskPort,
		Window:    DefaultWindow,
	}
}

// Client broadcasts probes and records responders in a peer registry.
// It implements domain.Discoverer.
type Client struct {
	config   ClientConfig
	registry *registry.Registry
	log      *zap.Logger
}

// NewClient creates a discovery client that fills reg.
func NewClient(cfg ClientConfig, reg *registry.Registry, log *zap.Logger) *Client {
	if cfg.Window <= 0 {
		cfg.Window = DefaultWindow
	}
	return &Client{config: cfg, registry: reg, log: log.Named("discovery")}
}

// Discover sends one probe and collects responses until no datagram arrives
// for a full receive window. Every sender is added to the registry with its
// port replaced by the task port. It returns the number of datagrams received.
//
// Failing to open the socket or to send the probe is fatal to this attempt;
// the caller may simply call Discover again.
func (c *Client) Discover(ctx context.Context) (int, error) {
	conn, err := net.ListenUDP("udp4", nil)
	if err != nil {
		metrics.DiscoveryAttempts.WithLabelValues("socket_failed").Inc()
		return 0, fmt.Errorf("%w: %w", domain.ErrSocketSetup, err)
	}
	defer conn.Close()

	// Cancellation unblocks the pending read by closing the socket.
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	if _, err := conn.WriteToUDPAddrPort([]byte(wire.ProbeLiteral), c.config.Broadcast); err != nil {
		metrics.DiscoveryAttempts.WithLabelValues("send_failed").Inc()
		return 0, fmt.Errorf("%w: %w", domain.ErrBroadcastFailed, err)
	}
	metrics.DiscoveryAttempts.WithLabelValues("sent").Inc()
	c.log.Debug("probe sent", zap.Stringer("broadcast", c.config.Broadcast))

	buf := make([]byte, 256)
	responses := 0
	for {
		if err := conn.SetReadDeadline(time.Now().Add(c.config.Window)); err != nil {
			if ctx.Err() != nil {
				return responses, ctx.Err()
			}
			return responses, fmt.Errorf("%w: set deadline: %w", domain.ErrSocketSetup, err)
		}
		_, src, err := conn.ReadFromUDPAddrPort(buf)
		if err != nil {
			if ctx.Err() != nil {
				return responses, ctx.Err()
			}
			if !errors.Is(err, os.ErrDeadlineExceeded) {
				c.log.Warn("discovery receive aborted", zap.Error(err))
			}
			break
		}

		responses++
		metrics.DiscoveryResponses.Inc()
		peer := domain.NewPeer(src.Addr(), c.config.TaskPort)
		if c.registry.Add(peer) {
			c.log.Info("new worker", zap.Stringer("peer", peer))
		}
	}

	c.log.Info("discovery window closed",
		zap.Int("responses", responses),
		zap.Int("known", c.registry.Len()),
	)
	return responses, nil
}
