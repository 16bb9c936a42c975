package netdiscovery

import (
	"context"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

// snmpLimiter paces live SNMP trials against a target so a large credential
// cross-product cannot flood one host with authentication attempts.
var snmpLimiter = rate.NewLimiter(rate.Limit(50), 50)

// SetSNMPRateLimiter overrides the global SNMP trial rate limiter; used by
// cmd/netdiscoveryd to apply an operator-configured ceiling.
func SetSNMPRateLimiter(l *rate.Limiter) {
	if l != nil {
		snmpLimiter = l
	}
}

const defaultSNMPPort = uint16(161)

// trialCredentials walks the port x credential x domain cross-product for a
// range, trying each combination against ip until one returns structured
// device info. The first success wins and is annotated with
// AUTHSNMP/AUTHPORT/AUTHPROTOCOL; failures are logged at debug and are
// non-terminal. query is the SNMP transport to use for each trial; nil
// defaults to querySNMP (the live implementation). The domain is not passed
// to query: each domain repeats the same (port, credential) query, and the
// domain only ends up in the AUTHPROTOCOL annotation of a hit.
func trialCredentials(ctx context.Context, ip string, r Range, creds []Credential, query snmpQueryFunc) (DeviceResult, bool) {
	if query == nil {
		query = querySNMP
	}
	ports := r.Ports
	if len(ports) == 0 {
		ports = []uint16{defaultSNMPPort}
	}
	domains := r.Domains
	if len(domains) == 0 {
		domains = []string{""}
	}

	for _, port := range ports {
		for _, cred := range creds {
			for _, domain := range domains {
				if err := snmpLimiter.Wait(ctx); err != nil {
					log.Debug().Str("ip", ip).Msg("netdiscovery: snmp trial cancelled waiting for rate limit token")
					return DeviceResult{}, false
				}

				sysName, sysDescr, err := query(ip, port, probeTimeout, cred)
				if err != nil {
					log.Debug().
						Str("ip", ip).
						Uint16("port", port).
						Str("credential", cred.ID).
						Err(err).
						Msg("netdiscovery: snmp trial failed")
					continue
				}

				return DeviceResult{
					IP:           ip,
					SNMPHostname: sysName,
					SysDescr:     sysDescr,
					AuthSNMP:     cred.ID,
					AuthPort:     port,
					AuthProtocol: domain,
				}, true
			}
		}
	}
	return DeviceResult{}, false
}
