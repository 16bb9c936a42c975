package netdiscovery

import (
	"context"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// probeNetBIOS sends a NetBIOS Node Status (NBSTAT) query to udp/137 and
// extracts the name table and unit-ID MAC. Generalizes a single-name
// QueryNetBIOS probe into the full name-suffix mapping a device record
// needs: group name -> Workgroup, unique 0x03 -> UserSession, unique 0x00
// (not starting with "IS~") -> NetBIOSName.
func probeNetBIOS(ctx context.Context, ip string, timeout time.Duration) (DeviceResult, bool) {
	addr := fmt.Sprintf("%s:137", ip)
	d := net.Dialer{Timeout: timeout}
	conn, err := d.DialContext(ctx, "udp", addr)
	if err != nil {
		log.Debug().Str("ip", ip).Err(err).Msg("netdiscovery: netbios dial failed")
		return DeviceResult{}, false
	}
	defer func() { _ = conn.Close() }()

	if dl, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(dl)
	} else {
		_ = conn.SetDeadline(time.Now().Add(timeout))
	}

	if _, err := conn.Write(buildNBSTATQuery()); err != nil {
		return DeviceResult{}, false
	}

	buf := make([]byte, 1024)
	n, err := conn.Read(buf)
	if err != nil || n < 57 {
		return DeviceResult{}, false
	}

	result, ok := parseNBSTATResponse(buf[:n])
	if !ok {
		return DeviceResult{}, false
	}
	result.IP = ip
	return result, true
}

// buildNBSTATQuery constructs a NetBIOS Node Status Request packet for the
// wildcard name "*", which returns all registered names on the target host.
func buildNBSTATQuery() []byte {
	packet := make([]byte, 50)

	packet[0] = 0x00
	packet[1] = 0x01

	packet[4] = 0x00
	packet[5] = 0x01

	packet[12] = 0x20
	packet[13] = 0x43
	packet[14] = 0x4B
	for i := 0; i < 15; i++ {
		packet[15+i*2] = 0x43
		packet[15+i*2+1] = 0x41
	}
	packet[45] = 0x00

	packet[46] = 0x00
	packet[47] = 0x21

	packet[48] = 0x00
	packet[49] = 0x01

	return packet
}

const (
	netbiosSuffixWorkstation = 0x00
	netbiosSuffixUserSession = 0x03
)

// parseNBSTATResponse walks every name-table entry plus the trailing unit-ID
// MAC, filling in Workgroup, UserSession, NetBIOSName and MAC.
func parseNBSTATResponse(data []byte) (DeviceResult, bool) {
	var result DeviceResult

	pos := 12
	for pos < len(data) && data[pos] != 0x00 {
		pos += int(data[pos]) + 1
	}
	pos++
	pos += 4
	if pos >= len(data) {
		return result, false
	}

	if data[pos]&0xC0 == 0xC0 {
		pos += 2
	} else {
		for pos < len(data) && data[pos] != 0x00 {
			pos += int(data[pos]) + 1
		}
		pos++
	}

	pos += 10
	if pos >= len(data) {
		return result, false
	}

	numNames := int(data[pos])
	pos++
	if numNames == 0 {
		return result, false
	}

	found := false
	for i := 0; i < numNames && pos+18 <= len(data); i++ {
		name := strings.TrimRight(string(data[pos:pos+15]), " \x00")
		suffix := data[pos+15]
		flags := uint16(data[pos+16])<<8 | uint16(data[pos+17])
		isGroup := flags&0x8000 != 0
		pos += 18

		if name == "" {
			continue
		}
		switch {
		case isGroup && suffix == netbiosSuffixWorkstation:
			if result.Workgroup == "" {
				result.Workgroup = name
				found = true
			}
		case !isGroup && suffix == netbiosSuffixUserSession:
			if result.UserSession == "" {
				result.UserSession = name
				found = true
			}
		case !isGroup && suffix == netbiosSuffixWorkstation && !strings.HasPrefix(name, "IS~"):
			if result.NetBIOSName == "" {
				result.NetBIOSName = name
				found = true
			}
		}
	}

	// Trailing unit ID (MAC address), immediately after the name table.
	if pos+6 <= len(data) {
		mac := data[pos : pos+6]
		macStr := fmt.Sprintf("%02x:%02x:%02x:%02x:%02x:%02x", mac[0], mac[1], mac[2], mac[3], mac[4], mac[5])
		if macStr != "00:00:00:00:00:00" {
			result.MAC = macStr
			found = true
		}
	}

	return result, found
}
