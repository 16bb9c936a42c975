package netdiscovery

import (
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
)

// Credential is an opaque SNMP credential record, unique per ID.
type Credential struct {
	ID           string
	Version      string // "1" | "2c" | "3"
	Community    string
	Username     string
	AuthPassword string
	AuthProtocol string
	PrivPassword string
	PrivProtocol string
}

// Range is an inclusive IPv4 interval, optionally annotated with SNMP
// ports, protocol domains, an entity tag, and a replay file.
type Range struct {
	Start   string
	End     string
	Ports   []uint16
	Domains []string
	Entity  string
	Walk    string // non-empty: replay mode, SNMP-only, reads from this file
}

// Job is a validated discovery assignment.
type Job struct {
	PID         uint32
	MaxThreads  uint32
	Timeout     time.Duration
	Credentials []Credential
	Ranges      []Range
}

// Param mirrors the inbound PARAM record: PID is required, THREADS_DISCOVERY
// and TIMEOUT are optional.
type Param struct {
	PID              *uint32
	ThreadsDiscovery *uint32
	Timeout          *uint32
}

// Option mirrors one inbound NETDISCOVERY option.
type Option struct {
	RangeIP        []Range
	Param          []Param
	Authentication []Credential
}

// BuildJobs validates a set of inbound options into Jobs. Invalid ranges
// are dropped with a warning; a job with no valid range is dropped
// entirely. Options missing a PID-bearing PARAM are skipped.
func BuildJobs(options []Option) []Job {
	var jobs []Job
	for _, opt := range options {
		if len(opt.Param) == 0 || opt.Param[0].PID == nil {
			log.Debug().Msg("netdiscovery: option has no PARAM with a defined PID, skipping")
			continue
		}
		param := opt.Param[0]

		var validRanges []Range
		for _, r := range opt.RangeIP {
			if r.Start == "" || r.End == "" {
				log.Warn().Str("start", r.Start).Str("end", r.End).Msg("netdiscovery: range missing IPSTART/IPEND, dropping")
				continue
			}
			if _, ok := newAddressIterator(r.Start, r.End); !ok {
				log.Warn().Str("start", r.Start).Str("end", r.End).Msg("netdiscovery: structurally invalid range, dropping")
				continue
			}
			validRanges = append(validRanges, r)
		}
		if len(validRanges) == 0 {
			log.Debug().Uint32("pid", *param.PID).Msg("netdiscovery: job has no valid range, dropping")
			continue
		}

		maxThreads := uint32(1)
		if param.ThreadsDiscovery != nil && *param.ThreadsDiscovery >= 1 {
			maxThreads = *param.ThreadsDiscovery
		}
		timeout := time.Second
		if param.Timeout != nil && *param.Timeout >= 1 {
			timeout = time.Duration(*param.Timeout) * time.Second
		}

		jobs = append(jobs, Job{
			PID:         *param.PID,
			MaxThreads:  maxThreads,
			Timeout:     timeout,
			Credentials: opt.Authentication,
			Ranges:      validRanges,
		})
	}
	return jobs
}

// Validate re-checks invariants on an already-built Job. The scheduler does
// not call it; BuildJobs already enforces these invariants.
func (j Job) Validate() error {
	if len(j.Ranges) == 0 {
		return fmt.Errorf("job %d: at least one valid range is required", j.PID)
	}
	if j.MaxThreads < 1 {
		return fmt.Errorf("job %d: maxThreads must be >= 1", j.PID)
	}
	if j.Timeout < time.Second {
		return fmt.Errorf("job %d: timeout must be >= 1s", j.PID)
	}
	return nil
}
