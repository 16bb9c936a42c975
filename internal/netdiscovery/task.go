package netdiscovery

import (
	"context"
	"time"

	"github.com/netreach/netdiscovery/internal/telemetry"
)

// Task is the top-level facade the outer task framework drives via
// IsEnabled/Run/Abort. It owns the job set for the duration of one run
// and is discarded afterward.
type Task struct {
	deviceID         string
	serverURL        string
	caps             Capabilities
	arp              arpRunner
	snmpQuery        snmpQueryFunc
	reporter         *Reporter
	telemetry        *telemetry.Writer
	abort            *abortController
	targetExpiration time.Duration
	maxCount         uint32

	jobs []Job
}

// NewTask builds a Task bound to one agent identity and server target.
// sender may be nil to use the default HTTP sender; telemetryWriter may be
// nil to disable metrics.
func NewTask(deviceID, serverURL string, sender Sender, telemetryWriter *telemetry.Writer, targetExpiration time.Duration, maxCount uint32) *Task {
	return &Task{
		deviceID:         deviceID,
		serverURL:        serverURL,
		caps:             DefaultCapabilities(),
		reporter:         NewReporter(deviceID, serverURL, sender),
		telemetry:        telemetryWriter,
		abort:            newAbortController(),
		targetExpiration: targetExpiration,
		maxCount:         maxCount,
	}
}

// IsEnabled parses inbound options into Jobs and reports whether the
// task has at least one job to run. The parsed jobs are retained for
// the subsequent Run call.
func (t *Task) IsEnabled(options []Option) bool {
	t.jobs = BuildJobs(options)
	return len(t.jobs) > 0
}

// Run drives the scheduler over the jobs parsed by IsEnabled. It blocks
// until every job completes or the run is aborted.
func (t *Task) Run(ctx context.Context) {
	RunScheduler(ctx, t.jobs, SchedulerOptions{
		Caps:             t.caps,
		ARPRunner:        t.arp,
		SNMPQuery:        t.snmpQuery,
		Reporter:         t.reporter,
		Abort:            t.abort,
		Telemetry:        t.telemetry,
		TargetExpiration: t.targetExpiration,
		MaxCount:         t.maxCount,
	})
}

// Abort is the direct abort() entry point: invoked by the outer framework
// when tearing the task down outside a running Run call, e.g. between jobs.
// It sets the abort flag and, if a job is currently tracked, emits that
// job's END directly, since no scheduler loop is running to do it. Do not
// call this from a signal handler while Run may be active — the scheduler's
// own Phase-C loop already emits EXIT for every still-resident job when it
// observes the flag, so also emitting END here would double-report the same
// job. Use RequestStop for that case instead.
func (t *Task) Abort(ctx context.Context) {
	t.abort.Shutdown(func(pid uint32) {
		t.reporter.End(ctx, pid)
	})
}

// RequestStop sets the cooperative abort flag only, with no reporter side
// effect. This is the signal-handler path: the running scheduler's own
// Phase-C loop observes the flag between dispatch iterations and emits EXIT
// for each job still resident, so Run being in flight is the expected case.
func (t *Task) RequestStop() {
	t.abort.Abort()
}

// SetCapabilities narrows which probes are available, e.g. in environments
// without raw-socket permission.
func (t *Task) SetCapabilities(caps Capabilities) {
	t.caps = caps
}

// SetARPRunner overrides the ARP probe's command runner; used by tests.
func (t *Task) SetARPRunner(run arpRunner) {
	t.arp = run
}

// SetSNMPQuery overrides the SNMP credential trial transport; used by tests.
func (t *Task) SetSNMPQuery(query snmpQueryFunc) {
	t.snmpQuery = query
}
