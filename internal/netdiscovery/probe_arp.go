package netdiscovery

import (
	"bufio"
	"context"
	"os/exec"
	"regexp"
	"strings"

	"github.com/rs/zerolog/log"
)

// arpRunner executes an ARP-listing command and returns its stdout. Real
// callers shell out to `arp -a` or `ip neighbor show`; tests inject a fake.
type arpRunner func(ctx context.Context, ip string) (string, error)

// systemARPRunner prefers `arp -a <ip>`, falling back to `ip neighbor show
// <ip>` if arp is not on PATH.
func systemARPRunner(ctx context.Context, ip string) (string, error) {
	if _, err := exec.LookPath("arp"); err == nil {
		out, err := exec.CommandContext(ctx, "arp", "-a", ip).CombinedOutput()
		return string(out), err
	}
	out, err := exec.CommandContext(ctx, "ip", "neighbor", "show", ip).CombinedOutput()
	return string(out), err
}

var (
	wordBoundaryIPFmt = `(^|[^0-9.])%s($|[^0-9.])`

	// "hostname (ip) at xx:xx:xx:xx:xx:xx"
	arpUnixLineRe = regexp.MustCompile(`^(\S+)\s+\(([0-9.]+)\)\s+at\s+([0-9a-fA-F:]{17})`)
	// "  192.0.2.5   AA-BB-CC-DD-EE-FF  dynamic"   (Windows arp -a)
	arpWindowsLineRe = regexp.MustCompile(`^\s*([0-9.]+)\s+([0-9a-fA-F-]{17})\s`)
	// "192.0.2.5 dev eth0 lladdr xx:xx:xx:xx:xx:xx ..."  (ip neighbor show)
	arpLinuxLineRe = regexp.MustCompile(`^([0-9.]+)\s+dev\s+\S+\s+lladdr\s+([0-9a-fA-F:]{17})`)
)

// probeARP runs the configured ARP-listing command for ip and extracts a MAC
// (and, for the unix line shape, a DNS hostname) across the three line
// shapes each platform's command may emit. Only runs if walk mode is not
// set — callers are expected to gate on Range.Walk before calling.
func probeARP(ctx context.Context, ip string, run arpRunner) (DeviceResult, bool) {
	if run == nil {
		run = systemARPRunner
	}
	out, err := run(ctx, ip)
	if err != nil && out == "" {
		log.Debug().Str("ip", ip).Err(err).Msg("netdiscovery: arp probe failed")
		return DeviceResult{}, false
	}

	boundary := regexp.MustCompile(strings.ReplaceAll(wordBoundaryIPFmt, "%s", regexp.QuoteMeta(ip)))

	scanner := bufio.NewScanner(strings.NewReader(out))
	var result DeviceResult
	found := false
	for scanner.Scan() {
		line := scanner.Text()
		if !boundary.MatchString(line) {
			continue
		}
		if m := arpUnixLineRe.FindStringSubmatch(line); m != nil && m[2] == ip {
			found = true
			if m[1] != "?" {
				result.DNSHostname = m[1]
			}
			result.MAC = canonicalMAC(m[3])
			break
		}
		if m := arpLinuxLineRe.FindStringSubmatch(line); m != nil && m[1] == ip {
			found = true
			result.MAC = canonicalMAC(m[2])
			break
		}
		if m := arpWindowsLineRe.FindStringSubmatch(line); m != nil && m[1] == ip {
			found = true
			result.MAC = canonicalMAC(m[2])
			break
		}
	}
	if !found {
		return DeviceResult{}, false
	}
	result.IP = ip
	return result, true
}
