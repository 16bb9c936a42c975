package netdiscovery

import (
	"context"
	"time"
)

// Capabilities is an explicit capability set decided once at Task
// construction, rather than a runtime "is this library loaded?" check
// re-derived on every probe call.
type Capabilities struct {
	ARP     bool
	Ping    bool
	NetBIOS bool
	SNMP    bool
}

// DefaultCapabilities reports every probe as available; callers running in
// restricted environments (no raw sockets, no SNMP credentials configured)
// can narrow this down.
func DefaultCapabilities() Capabilities {
	return Capabilities{ARP: true, Ping: true, NetBIOS: true, SNMP: true}
}

// probeTimeout is the per-request timeout handed to each SNMP credential
// trial and to the NetBIOS query; ping uses its own fixed 1-second timeout
// inside probePing.
const probeTimeout = 5 * time.Second

// fuseAddress invokes every probe whose transport is available for one
// address, merging partials in a fixed order (SNMP, NetBIOS, Ping, ARP) and
// applying the acceptance invariant. Returns (result, true) on acceptance.
// snmpQuery overrides the live SNMP transport used by credential trials;
// nil defaults to querySNMP.
func fuseAddress(ctx context.Context, ip string, r Range, job Job, caps Capabilities, arp arpRunner, snmpQuery snmpQueryFunc) (DeviceResult, bool) {
	var fused DeviceResult
	fused.IP = ip
	if r.Entity != "" {
		fused.Entity = r.Entity
	}

	if r.Walk != "" {
		// Replay mode: only SNMP runs, reading from the range's file.
		if caps.SNMP {
			if res, ok := probeSNMPReplay(ip, r); ok {
				mergeInto(&fused, res)
			}
		}
		if !fused.hasMinimumInformation() {
			return DeviceResult{}, false
		}
		fused.IP = ip
		return fused, true
	}

	if caps.SNMP {
		if res, ok := trialCredentials(ctx, ip, r, job.Credentials, snmpQuery); ok {
			mergeInto(&fused, res)
		}
	}
	if caps.NetBIOS {
		if res, ok := probeNetBIOS(ctx, ip, probeTimeout); ok {
			mergeInto(&fused, res)
		}
	}
	if caps.Ping {
		if res, ok := probePing(ctx, ip); ok {
			mergeInto(&fused, res)
		}
	}
	if caps.ARP {
		if res, ok := probeARP(ctx, ip, arp); ok {
			mergeInto(&fused, res)
		}
	}

	if !fused.hasMinimumInformation() {
		return DeviceResult{}, false
	}
	fused.IP = ip
	fused.MAC = canonicalMAC(fused.MAC)
	return fused, true
}
