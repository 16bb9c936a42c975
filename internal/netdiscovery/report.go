package netdiscovery

import (
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"net/http"
	"sync"

	"github.com/rs/zerolog/log"
)

// AgentVersion and ModuleVersion are stamped into every outbound message;
// they are build-time constants rather than derived from a
// version-string collaborator.
const (
	AgentVersion  = "1.0"
	ModuleVersion = "1.0"
)

// agentBlock is the {AGENT:{...}} envelope shared by START/NBIP/END/EXIT.
type agentBlock struct {
	Start        int    `xml:"START,omitempty"`
	NBIP         *int   `xml:"NBIP,omitempty"`
	End          int    `xml:"END,omitempty"`
	Exit         int    `xml:"EXIT,omitempty"`
	AgentVersion string `xml:"AGENTVERSION,omitempty"`
}

// deviceRecord is one DEVICE message's payload, built from DeviceResult's
// field map.
type deviceRecord struct {
	XMLName xml.Name          `xml:"DEVICE"`
	Fields  map[string]string `xml:"-"`
}

// query is the outer NETDISCOVERY envelope every message shares.
type query struct {
	XMLName       xml.Name      `xml:"REQUEST"`
	DeviceID      string        `xml:"DEVICEID"`
	QueryType     string        `xml:"QUERY"`
	Agent         *agentBlock   `xml:"CONTENT>AGENT"`
	Device        *deviceRecord `xml:"CONTENT>DEVICE"`
	ModuleVersion string        `xml:"CONTENT>MODULEVERSION,omitempty"`
	ProcessNumber uint32        `xml:"CONTENT>PROCESSNUMBER"`
}

// MarshalXML flattens the field map into sibling elements, since
// encoding/xml cannot marshal a map directly into named child elements
// without this escape hatch.
func (d deviceRecord) MarshalXML(e *xml.Encoder, start xml.StartElement) error {
	start.Name = xml.Name{Local: "DEVICE"}
	if err := e.EncodeToken(start); err != nil {
		return err
	}
	for k, v := range d.Fields {
		if v == "" {
			continue
		}
		if err := e.EncodeElement(v, xml.StartElement{Name: xml.Name{Local: k}}); err != nil {
			return err
		}
	}
	return e.EncodeToken(start.End())
}

// Sender transmits one built query to the management server. The real
// transport is an HTTP POST; tests substitute a fake.
type Sender interface {
	Send(ctx context.Context, deviceID, serverURL string, q []byte) error
}

// httpSender POSTs the XML body to serverURL, the one concrete Sender this
// package ships. Built on net/http since no ecosystem HTTP client surfaces
// anywhere else in this stack, and the transport itself is a thin wrapper.
type httpSender struct {
	client *http.Client
}

// NewHTTPSender builds a Sender backed by the given http.Client, or
// http.DefaultClient if nil.
func NewHTTPSender(client *http.Client) Sender {
	if client == nil {
		client = http.DefaultClient
	}
	return &httpSender{client: client}
}

func (s *httpSender) Send(ctx context.Context, deviceID, serverURL string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, serverURL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/xml")
	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("netdiscovery: server responded %s", resp.Status)
	}
	return nil
}

// Reporter serializes all outbound messages for one agent/server pair,
// preserving per-job message ordering.
type Reporter struct {
	deviceID  string
	serverURL string
	sender    Sender
	mu        sync.Mutex
}

// NewReporter builds a Reporter. sender defaults to an HTTP sender against
// http.DefaultClient if nil.
func NewReporter(deviceID, serverURL string, sender Sender) *Reporter {
	if sender == nil {
		sender = NewHTTPSender(nil)
	}
	return &Reporter{deviceID: deviceID, serverURL: serverURL, sender: sender}
}

func (r *Reporter) send(ctx context.Context, q query) {
	body, err := xml.Marshal(q)
	if err != nil {
		log.Error().Err(err).Msg("netdiscovery: failed to marshal report message")
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.sender.Send(ctx, r.deviceID, r.serverURL, body); err != nil {
		log.Warn().Err(err).Uint32("pid", q.ProcessNumber).Msg("netdiscovery: transport-send-failure, continuing")
	}
}

// Start emits the START message for pid.
func (r *Reporter) Start(ctx context.Context, pid uint32) {
	r.send(ctx, query{
		DeviceID:      r.deviceID,
		QueryType:     "NETDISCOVERY",
		Agent:         &agentBlock{Start: 1, AgentVersion: AgentVersion},
		ModuleVersion: ModuleVersion,
		ProcessNumber: pid,
	})
}

// NBIP emits the NBIP(count) message for pid.
func (r *Reporter) NBIP(ctx context.Context, pid uint32, count int) {
	r.send(ctx, query{
		DeviceID:      r.deviceID,
		QueryType:     "NETDISCOVERY",
		Agent:         &agentBlock{NBIP: &count},
		ProcessNumber: pid,
	})
}

// Device emits a DEVICE message for pid.
func (r *Reporter) Device(ctx context.Context, pid uint32, dev DeviceResult) {
	r.send(ctx, query{
		DeviceID:      r.deviceID,
		QueryType:     "NETDISCOVERY",
		Device:        &deviceRecord{Fields: dev.ToFields()},
		ModuleVersion: ModuleVersion,
		ProcessNumber: pid,
	})
}

// End emits the END message for pid. Every job-completion path emits END
// twice; callers are expected to call End twice, not this function
// internally, so the redundancy stays visible at the call site.
func (r *Reporter) End(ctx context.Context, pid uint32) {
	r.send(ctx, query{
		DeviceID:      r.deviceID,
		QueryType:     "NETDISCOVERY",
		Agent:         &agentBlock{End: 1},
		ModuleVersion: ModuleVersion,
		ProcessNumber: pid,
	})
}

// Exit emits the EXIT message for pid.
func (r *Reporter) Exit(ctx context.Context, pid uint32) {
	r.send(ctx, query{
		DeviceID:      r.deviceID,
		QueryType:     "NETDISCOVERY",
		Agent:         &agentBlock{Exit: 1},
		ModuleVersion: ModuleVersion,
		ProcessNumber: pid,
	})
}
