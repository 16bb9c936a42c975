package netdiscovery

import (
	"context"
	"net"
	"time"

	"golang.org/x/net/icmp"
	"golang.org/x/net/ipv4"

	probing "github.com/prometheus-community/pro-bing"
	"github.com/rs/zerolog/log"
)

// icmpTimestampVersionFloor documents the "ping library reports version
// >= 2.67" gate historically required before retrying with an ICMP
// timestamp request. golang.org/x/net/icmp always supports building a
// timestamp packet, so the capability this constant once gated is
// unconditionally available here; it is kept as a named constant (rather
// than removed) to document the behavior being preserved.
const icmpTimestampVersionFloor = "2.67"

// probePing attempts an ICMP echo with a 1-second timeout; on failure it
// retries once with an ICMP timestamp request. Either success sets
// DNSHostname to the IP itself: ping is a liveness marker here, not a
// real hostname lookup.
func probePing(ctx context.Context, ip string) (DeviceResult, bool) {
	pinger, err := probing.NewPinger(ip)
	if err == nil {
		pinger.Count = 1
		pinger.Timeout = 1 * time.Second
		pinger.SetPrivileged(true)
		if err := pinger.RunWithContext(ctx); err == nil {
			if stats := pinger.Statistics(); stats.PacketsRecv > 0 {
				return DeviceResult{IP: ip, DNSHostname: ip}, true
			}
		} else {
			log.Debug().Str("ip", ip).Err(err).Msg("netdiscovery: icmp echo failed")
		}
	}

	if icmpTimestamp(ctx, ip, 1*time.Second) {
		return DeviceResult{IP: ip, DNSHostname: ip}, true
	}
	return DeviceResult{}, false
}

// icmpTimestamp sends a single ICMP timestamp request and waits for a reply,
// the fallback probe used when an echo request gets no answer.
func icmpTimestamp(ctx context.Context, ip string, timeout time.Duration) bool {
	conn, err := icmp.ListenPacket("ip4:icmp", "0.0.0.0")
	if err != nil {
		log.Debug().Str("ip", ip).Err(err).Msg("netdiscovery: icmp timestamp socket unavailable")
		return false
	}
	defer conn.Close()

	msg := icmp.Message{
		Type: ipv4.ICMPTypeTimestamp,
		Code: 0,
		Body: &icmp.Timestamp{
			ID:  1,
			Seq: 1,
		},
	}
	data, err := msg.Marshal(nil)
	if err != nil {
		return false
	}

	dst := &net.IPAddr{IP: net.ParseIP(ip)}
	if _, err := conn.WriteTo(data, dst); err != nil {
		return false
	}

	deadline := time.Now().Add(timeout)
	if dl, ok := ctx.Deadline(); ok && dl.Before(deadline) {
		deadline = dl
	}
	_ = conn.SetReadDeadline(deadline)

	reply := make([]byte, 512)
	n, _, err := conn.ReadFrom(reply)
	if err != nil {
		return false
	}
	parsed, err := icmp.ParseMessage(1, reply[:n])
	if err != nil {
		return false
	}
	return parsed.Type == ipv4.ICMPTypeTimestampReply
}
