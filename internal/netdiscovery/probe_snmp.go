package netdiscovery

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/gosnmp/gosnmp"
	"github.com/rs/zerolog/log"
)

// snmpSystemOIDs are the standard MIB-II system OIDs the trial queries:
// sysName, sysDescr.
var snmpSystemOIDs = []string{"1.3.6.1.2.1.1.5.0", "1.3.6.1.2.1.1.1.0"}

// snmpQueryFunc performs one live SNMP trial. querySNMP is the real
// implementation; trialCredentials takes it as a parameter so tests can
// fake the transport without a live network, the same seam probeARP uses
// for its command runner.
type snmpQueryFunc func(ip string, port uint16, timeout time.Duration, cred Credential) (sysName, sysDescr string, err error)

// buildGoSNMPParams constructs a GoSNMP session for the requested version.
// Version "3" wires up USM auth/priv per the credential; "1" and anything
// else fall back to community-based v1/v2c.
func buildGoSNMPParams(ip string, port uint16, timeout time.Duration, cred Credential) *gosnmp.GoSNMP {
	params := &gosnmp.GoSNMP{
		Target:  ip,
		Port:    port,
		Timeout: timeout,
		Retries: 1,
	}
	switch cred.Version {
	case "1":
		params.Version = gosnmp.Version1
		params.Community = cred.Community
	case "3":
		params.Version = gosnmp.Version3
		params.SecurityModel = gosnmp.UserSecurityModel
		authProtocol := snmpAuthProtocol(cred.AuthProtocol)
		privProtocol := snmpPrivProtocol(cred.PrivProtocol)
		msgFlags := gosnmp.NoAuthNoPriv
		if cred.AuthPassword != "" {
			msgFlags = gosnmp.AuthNoPriv
		}
		if cred.PrivPassword != "" {
			msgFlags = gosnmp.AuthPriv
		}
		params.MsgFlags = msgFlags
		params.SecurityParameters = &gosnmp.UsmSecurityParameters{
			UserName:                 cred.Username,
			AuthenticationProtocol:   authProtocol,
			AuthenticationPassphrase: cred.AuthPassword,
			PrivacyProtocol:          privProtocol,
			PrivacyPassphrase:        cred.PrivPassword,
		}
	default:
		params.Version = gosnmp.Version2c
		params.Community = cred.Community
	}
	return params
}

func snmpAuthProtocol(proto string) gosnmp.SnmpV3AuthProtocol {
	switch strings.ToUpper(proto) {
	case "SHA":
		return gosnmp.SHA
	case "SHA256":
		return gosnmp.SHA256
	case "SHA512":
		return gosnmp.SHA512
	case "MD5":
		return gosnmp.MD5
	default:
		return gosnmp.NoAuth
	}
}

func snmpPrivProtocol(proto string) gosnmp.SnmpV3PrivProtocol {
	switch strings.ToUpper(proto) {
	case "AES":
		return gosnmp.AES
	case "AES192":
		return gosnmp.AES192
	case "AES256":
		return gosnmp.AES256
	case "DES":
		return gosnmp.DES
	default:
		return gosnmp.NoPriv
	}
}

// snmpGetWithFallback attempts Get first, falling back to GetNext per OID
// when Get reports NoSuchInstance/NoSuchObject.
func snmpGetWithFallback(params *gosnmp.GoSNMP, oids []string) (*gosnmp.SnmpPacket, error) {
	resp, err := params.Get(oids)
	if err == nil {
		hasValidData := false
		for _, v := range resp.Variables {
			if v.Type != gosnmp.NoSuchInstance && v.Type != gosnmp.NoSuchObject {
				hasValidData = true
				break
			}
		}
		if hasValidData {
			return resp, nil
		}
	}

	baseOIDs := make([]string, len(oids))
	for i, oid := range oids {
		if strings.HasSuffix(oid, ".0") {
			baseOIDs[i] = oid[:len(oid)-2]
		} else {
			baseOIDs[i] = oid
		}
	}

	variables := make([]gosnmp.SnmpPDU, 0, len(baseOIDs))
	for _, baseOID := range baseOIDs {
		resp, err := params.GetNext([]string{baseOID})
		if err != nil {
			continue
		}
		if len(resp.Variables) > 0 && strings.HasPrefix(resp.Variables[0].Name, baseOID) {
			variables = append(variables, resp.Variables[0])
		}
	}
	if len(variables) == 0 {
		return nil, fmt.Errorf("no valid SNMP data retrieved")
	}
	return &gosnmp.SnmpPacket{Variables: variables}, nil
}

// validateSNMPString sanitizes an SNMP response value into a safe string.
func validateSNMPString(value interface{}, oidName string) (string, error) {
	var str string
	switch v := value.(type) {
	case string:
		str = v
	case []byte:
		str = string(v)
	default:
		return "", fmt.Errorf("invalid type for %s: expected string or []byte, got %T", oidName, value)
	}
	if strings.ContainsRune(str, '\x00') {
		return "", fmt.Errorf("invalid %s: contains null bytes", oidName)
	}
	if len(str) > 1024 {
		str = str[:1024]
	}
	sanitized := strings.Map(func(r rune) rune {
		if r == '\n' || r == '\r' || r == '\t' {
			return ' '
		}
		if r < 32 || r > 126 {
			return -1
		}
		return r
	}, str)
	sanitized = strings.TrimSpace(sanitized)
	if len(sanitized) == 0 {
		return "", fmt.Errorf("invalid %s: empty after sanitization", oidName)
	}
	return sanitized, nil
}

// querySNMP connects live and queries sysName/sysDescr, one trial of the
// credential cross-product.
func querySNMP(ip string, port uint16, timeout time.Duration, cred Credential) (sysName, sysDescr string, err error) {
	params := buildGoSNMPParams(ip, port, timeout, cred)
	if connErr := params.Connect(); connErr != nil {
		return "", "", connErr
	}
	defer func() { _ = params.Conn.Close() }()

	resp, err := snmpGetWithFallback(params, snmpSystemOIDs)
	if err != nil {
		return "", "", err
	}
	if len(resp.Variables) < 2 {
		return "", "", fmt.Errorf("incomplete SNMP response for %s", ip)
	}
	name, err := validateSNMPString(resp.Variables[0].Value, "sysName")
	if err != nil {
		return "", "", err
	}
	descr, err := validateSNMPString(resp.Variables[1].Value, "sysDescr")
	if err != nil {
		return "", "", err
	}
	return name, descr, nil
}

// probeSNMPReplay handles replay-mode ranges: instead of a live query, it
// reads a previously captured SNMP walk dump from r.Walk and
// extracts sysName/sysDescr lines of the form
// "SNMPv2-MIB::sysName.0 = STRING: value".
func probeSNMPReplay(ip string, r Range) (DeviceResult, bool) {
	f, err := os.Open(r.Walk)
	if err != nil {
		log.Debug().Str("ip", ip).Str("file", r.Walk).Err(err).Msg("netdiscovery: snmp replay file unavailable")
		return DeviceResult{}, false
	}
	defer func() { _ = f.Close() }()

	var sysName, sysDescr string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.Contains(line, "sysName"):
			sysName = extractWalkValue(line)
		case strings.Contains(line, "sysDescr"):
			sysDescr = extractWalkValue(line)
		}
	}
	if sysName == "" && sysDescr == "" {
		return DeviceResult{}, false
	}
	return DeviceResult{
		IP:           ip,
		SNMPHostname: sysName,
		SysDescr:     sysDescr,
		AuthSNMP:     "walk",
		AuthProtocol: "file-replay",
	}, true
}

// extractWalkValue pulls the value after the "= TYPE:" marker in a
// classic net-snmp walk line.
func extractWalkValue(line string) string {
	eq := strings.Index(line, " = ")
	if eq == -1 {
		return ""
	}
	rest := line[eq+3:]
	idx := strings.Index(rest, ": ")
	if idx == -1 {
		return ""
	}
	return strings.TrimSpace(rest[idx+2:])
}
