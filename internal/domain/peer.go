package domain

import "net/netip"

// Peer is a known worker. Identity is the IP address alone; the port is
// always the task-service port the coordinator was configured with.
type Peer struct {
	Addr netip.AddrPort `json:"addr"`
}

// NewPeer builds a Peer from the responder's IP, discarding the source port.
func NewPeer(ip netip.Addr, taskPort uint16) Peer {
	return Peer{Addr: netip.AddrPortFrom(ip.Unmap(), taskPort)}
}

// Key returns the identity used for equality in the registry.
func (p Peer) Key() netip.Addr {
	return p.Addr.Addr()
}

// String returns host:port.
func (p Peer) String() string {
	return p.Addr.String()
}
