package netdiscovery

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gosnmp/gosnmp"
)

func TestBuildGoSNMPParamsVersion1(t *testing.T) {
	params := buildGoSNMPParams("10.0.0.1", 161, time.Second, Credential{Version: "1", Community: "public"})
	if params.Version != gosnmp.Version1 {
		t.Errorf("Version = %v, want Version1", params.Version)
	}
	if params.Community != "public" {
		t.Errorf("Community = %q, want public", params.Community)
	}
}

func TestBuildGoSNMPParamsVersion2cDefault(t *testing.T) {
	params := buildGoSNMPParams("10.0.0.1", 161, time.Second, Credential{Community: "public"})
	if params.Version != gosnmp.Version2c {
		t.Errorf("Version = %v, want Version2c for unrecognized version string", params.Version)
	}
}

func TestBuildGoSNMPParamsVersion3NoAuthNoPriv(t *testing.T) {
	cred := Credential{Version: "3", Username: "admin"}
	params := buildGoSNMPParams("10.0.0.1", 161, time.Second, cred)
	if params.Version != gosnmp.Version3 {
		t.Errorf("Version = %v, want Version3", params.Version)
	}
	if params.MsgFlags != gosnmp.NoAuthNoPriv {
		t.Errorf("MsgFlags = %v, want NoAuthNoPriv", params.MsgFlags)
	}
}

func TestBuildGoSNMPParamsVersion3AuthPriv(t *testing.T) {
	cred := Credential{
		Version:      "3",
		Username:     "admin",
		AuthPassword: "authpass123",
		AuthProtocol: "SHA",
		PrivPassword: "privpass123",
		PrivProtocol: "AES",
	}
	params := buildGoSNMPParams("10.0.0.1", 161, time.Second, cred)
	if params.MsgFlags != gosnmp.AuthPriv {
		t.Errorf("MsgFlags = %v, want AuthPriv", params.MsgFlags)
	}
	usm, ok := params.SecurityParameters.(*gosnmp.UsmSecurityParameters)
	if !ok {
		t.Fatalf("SecurityParameters is not *UsmSecurityParameters")
	}
	if usm.AuthenticationProtocol != gosnmp.SHA {
		t.Errorf("AuthenticationProtocol = %v, want SHA", usm.AuthenticationProtocol)
	}
	if usm.PrivacyProtocol != gosnmp.AES {
		t.Errorf("PrivacyProtocol = %v, want AES", usm.PrivacyProtocol)
	}
}

func TestSnmpAuthProtocolMapping(t *testing.T) {
	cases := map[string]gosnmp.SnmpV3AuthProtocol{
		"SHA":     gosnmp.SHA,
		"sha256":  gosnmp.SHA256,
		"SHA512":  gosnmp.SHA512,
		"MD5":     gosnmp.MD5,
		"unknown": gosnmp.NoAuth,
	}
	for in, want := range cases {
		if got := snmpAuthProtocol(in); got != want {
			t.Errorf("snmpAuthProtocol(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestSnmpPrivProtocolMapping(t *testing.T) {
	cases := map[string]gosnmp.SnmpV3PrivProtocol{
		"AES":     gosnmp.AES,
		"aes192":  gosnmp.AES192,
		"AES256":  gosnmp.AES256,
		"DES":     gosnmp.DES,
		"unknown": gosnmp.NoPriv,
	}
	for in, want := range cases {
		if got := snmpPrivProtocol(in); got != want {
			t.Errorf("snmpPrivProtocol(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestValidateSNMPStringSanitizesControlChars(t *testing.T) {
	got, err := validateSNMPString("switch1\tlobby", "sysName")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "switch1 lobby" {
		t.Errorf("got %q, want tab replaced with space", got)
	}
}

func TestValidateSNMPStringRejectsNullBytes(t *testing.T) {
	_, err := validateSNMPString("bad\x00value", "sysName")
	if err == nil {
		t.Fatalf("expected error for a value containing a null byte")
	}
}

func TestValidateSNMPStringRejectsWrongType(t *testing.T) {
	_, err := validateSNMPString(42, "sysName")
	if err == nil {
		t.Fatalf("expected error for a non-string/[]byte value")
	}
}

func TestValidateSNMPStringRejectsEmptyAfterSanitization(t *testing.T) {
	_, err := validateSNMPString("\x01\x02\x03", "sysName")
	if err == nil {
		t.Fatalf("expected error for a value that sanitizes to empty")
	}
}

func TestExtractWalkValue(t *testing.T) {
	line := `SNMPv2-MIB::sysName.0 = STRING: switch1.example.com`
	if got := extractWalkValue(line); got != "switch1.example.com" {
		t.Errorf("extractWalkValue = %q, want switch1.example.com", got)
	}
}

func TestExtractWalkValueNoMarker(t *testing.T) {
	if got := extractWalkValue("no marker here"); got != "" {
		t.Errorf("extractWalkValue = %q, want empty", got)
	}
}

func TestProbeSNMPReplayParsesWalkFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "walk.txt")
	content := "SNMPv2-MIB::sysDescr.0 = STRING: Linux switch 5.10\n" +
		"SNMPv2-MIB::sysName.0 = STRING: switch1.example.com\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("failed to write fixture: %v", err)
	}

	result, ok := probeSNMPReplay("10.0.0.1", Range{Walk: path})
	if !ok {
		t.Fatalf("expected a successful replay parse")
	}
	if result.SNMPHostname != "switch1.example.com" {
		t.Errorf("SNMPHostname = %q, want switch1.example.com", result.SNMPHostname)
	}
	if result.SysDescr != "Linux switch 5.10" {
		t.Errorf("SysDescr = %q, want Linux switch 5.10", result.SysDescr)
	}
	if result.AuthSNMP != "walk" {
		t.Errorf("AuthSNMP = %q, want walk", result.AuthSNMP)
	}
}

func TestProbeSNMPReplayMissingFile(t *testing.T) {
	_, ok := probeSNMPReplay("10.0.0.1", Range{Walk: "/nonexistent/walk.txt"})
	if ok {
		t.Fatalf("expected no hit for a missing replay file")
	}
}
