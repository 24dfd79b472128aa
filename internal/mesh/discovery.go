package mesh

import (
	"context"
	"fmt"
	"net"

	"github.com/brutella/dnssd"
)

// advertise registers this node as a senseye mesh peer over mDNS/DNS-SD so
// other nodes on the same network segment can find it without a
// preconfigured peer list.
func (m *Mesh) advertise(ctx context.Context) {
	cfg := dnssd.Config{
		Name: m.nodeID,
		Type: serviceType,
		Port: m.port,
		Text: map[string]string{"node_id": m.nodeID},
	}

	svc, err := dnssd.NewService(cfg)
	if err != nil {
		m.log.Error("mesh: dns-sd service create failed", "err", err)
		return
	}

	responder, err := dnssd.NewResponder()
	if err != nil {
		m.log.Error("mesh: dns-sd responder create failed", "err", err)
		return
	}

	if _, err := responder.Add(svc); err != nil {
		m.log.Error("mesh: dns-sd add service failed", "err", err)
		return
	}

	m.log.Info("mesh: advertising", "node_id", m.nodeID, "port", m.port)

	if err := responder.Respond(ctx); err != nil && ctx.Err() == nil {
		m.log.Error("mesh: dns-sd responder stopped", "err", err)
	}
}

// serviceType is the DNS-SD service type every senseye node advertises and
// browses for.
const serviceType = "_senseye._tcp"

// browse discovers peer nodes over mDNS and, per the dedup rule, initiates
// an outbound connection only to peers whose id sorts after this node's.
func (m *Mesh) browse(ctx context.Context) {
	addFn := func(entry dnssd.BrowseEntry) {
		peerID := peerIDFromEntry(entry)
		if peerID == "" || peerID == m.nodeID {
			return
		}

		addr := dialAddrFromEntry(entry)
		if addr == "" {
			return
		}

		go m.connectToPeer(ctx, peerID, addr)
	}

	rmvFn := func(entry dnssd.BrowseEntry) {
		// Session teardown is detected independently via the read loop
		// noticing the connection drop; mDNS removal is only a hint that
		// a reconnect attempt is now pointless until it's seen again.
	}

	if err := dnssd.LookupType(ctx, serviceType, addFn, rmvFn); err != nil && ctx.Err() == nil {
		m.log.Error("mesh: dns-sd browse failed", "err", err)
	}
}

func peerIDFromEntry(entry dnssd.BrowseEntry) string {
	if id, ok := entry.Text["node_id"]; ok && id != "" {
		return id
	}
	return entry.Name
}

func dialAddrFromEntry(entry dnssd.BrowseEntry) string {
	for _, ip := range entry.IPs {
		if ip == nil {
			continue
		}
		return net.JoinHostPort(ip.String(), fmt.Sprintf("%d", entry.Port))
	}
	return ""
}
