package netdiscovery

import (
	"context"
	"sort"
	"time"

	"github.com/netreach/netdiscovery/internal/telemetry"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// DefaultMaxCount is the worker-pool ceiling used when no operator
// override is configured.
const DefaultMaxCount = 64

// SchedulerOptions configures one run of the scheduler.
type SchedulerOptions struct {
	Caps             Capabilities
	ARPRunner        arpRunner
	SNMPQuery        snmpQueryFunc // nil uses the live querySNMP transport
	Reporter         *Reporter
	Abort            *abortController
	Telemetry        *telemetry.Writer // optional; nil disables metrics entirely
	TargetExpiration time.Duration     // floored at minTargetExpiration
	MaxCount         uint32            // 0 => DefaultMaxCount
}

// rangeSizeResult is Phase A's per-range output: the range with its
// attached iterator and its address count.
type rangeSizeResult struct {
	jobIndex int
	cursor   *rangeCursor
	size     uint64
}

// RunScheduler drives Phases A-C of the scheduler over an
// already-validated job set, reporting via opts.Reporter and honoring
// opts.Abort. It returns once every job has completed, been skipped as
// empty, or the run has been aborted.
func RunScheduler(ctx context.Context, jobs []Job, opts SchedulerOptions) {
	if opts.MaxCount == 0 {
		opts.MaxCount = DefaultMaxCount
	}
	if opts.Abort == nil {
		opts.Abort = newAbortController()
	}

	queues := phaseASizing(ctx, jobs, opts)
	if len(queues) == 0 {
		return
	}

	deadline := phaseBDeadline(jobs, queues, opts)

	phaseCWorkerPool(ctx, queues, deadline, opts)
}

// phaseASizing spawns one task per range via errgroup, builds each job's
// queueState, and emits the skip-lifecycle (START, NBIP(0), END, END) for
// any job whose total size is 0.
func phaseASizing(ctx context.Context, jobs []Job, opts SchedulerOptions) map[uint32]*queueState {
	type jobRanges struct {
		job    Job
		ranges []*rangeCursor
	}
	built := make([]jobRanges, len(jobs))
	for i, j := range jobs {
		built[i] = jobRanges{job: j}
	}

	g, gctx := errgroup.WithContext(ctx)
	results := make(chan rangeSizeResult, countRanges(jobs))
	for ji, j := range jobs {
		ji, j := ji, j
		for _, r := range j.Ranges {
			r := r
			g.Go(func() error {
				select {
				case <-gctx.Done():
					return nil
				default:
				}
				it, ok := newAddressIterator(r.Start, r.End)
				if !ok {
					log.Warn().Str("start", r.Start).Str("end", r.End).Msg("netdiscovery: range failed phase-A validation, dropping")
					return nil
				}
				results <- rangeSizeResult{jobIndex: ji, cursor: &rangeCursor{r: r, iter: it}, size: it.Size()}
				return nil
			})
		}
	}
	_ = g.Wait()
	close(results)

	for res := range results {
		built[res.jobIndex].ranges = append(built[res.jobIndex].ranges, res.cursor)
	}

	queues := make(map[uint32]*queueState)
	for _, br := range built {
		var total uint64
		for _, rc := range br.ranges {
			total += rc.iter.Size()
		}
		if total == 0 {
			if opts.Reporter != nil {
				opts.Reporter.Start(ctx, br.job.PID)
				opts.Reporter.NBIP(ctx, br.job.PID, 0)
				opts.Reporter.End(ctx, br.job.PID)
				opts.Reporter.End(ctx, br.job.PID)
			}
			log.Debug().Uint32("pid", br.job.PID).Msg("netdiscovery: job has zero total size, skipped")
			continue
		}
		qs := &queueState{
			job:        br.job,
			maxInQueue: br.job.MaxThreads,
			ranges:     br.ranges,
			started:    time.Now(),
		}
		queues[br.job.PID] = qs
	}
	return queues
}

func countRanges(jobs []Job) int {
	n := 0
	for _, j := range jobs {
		n += len(j.Ranges)
	}
	if n == 0 {
		return 1
	}
	return n
}

// phaseBDeadline computes minTimeout / minDeadline and the effective
// deadline from targetExpiration and maxCount, then attaches it to every
// queueState.
func phaseBDeadline(jobs []Job, queues map[uint32]*queueState, opts SchedulerOptions) time.Time {
	now := time.Now()
	deadline := computeDeadline(now, opts.MaxCount, opts.TargetExpiration, jobs)
	for _, qs := range queues {
		qs.deadline = deadline
	}
	return deadline
}

// workerResult is what a Phase-C worker reports back to the supervisor on
// completion.
type workerResult struct {
	pid uint32
	dev DeviceResult
	hit bool
}

// phaseCWorkerPool drives the bounded worker pool: dispatching addresses
// in ascending-pid fairness order, respecting per-job maxInQueue and the
// global worker ceiling W, reaping completions, and observing the abort
// flag and global deadline between iterations.
func phaseCWorkerPool(ctx context.Context, queues map[uint32]*queueState, deadline time.Time, opts SchedulerOptions) {
	w := workerPoolSize(queues, opts.MaxCount)

	pids := make([]uint32, 0, len(queues))
	for pid := range queues {
		pids = append(pids, pid)
	}
	sort.Slice(pids, func(i, j int) bool { return pids[i] < pids[j] })

	started := make(map[uint32]bool)
	results := make(chan workerResult, w)
	inFlight := 0
	expLogger := &expirationLogger{}

	emitStart := func(pid uint32) {
		qs := queues[pid]
		if started[pid] {
			return
		}
		started[pid] = true
		if opts.Reporter != nil {
			opts.Reporter.Start(ctx, pid)
			opts.Reporter.NBIP(ctx, pid, int(qs.job.totalSize()))
		}
		opts.Telemetry.WriteJobStarted(pid, qs.job.totalSize())
	}

	finishJob := func(pid uint32) {
		qs := queues[pid]
		if opts.Reporter != nil {
			opts.Reporter.End(ctx, pid)
			opts.Reporter.End(ctx, pid)
		}
		if qs != nil {
			opts.Telemetry.WriteJobCompleted(pid, qs.devicesFound, 0, time.Since(qs.started))
		}
		delete(queues, pid)
		delete(started, pid)
	}

	dispatchOne := func() bool {
		for _, pid := range pids {
			qs, ok := queues[pid]
			if !ok || qs.exhausted() || !qs.hasCapacity() {
				continue
			}
			ip, r, ok := qs.nextAddress()
			if !ok {
				continue
			}
			emitStart(pid)
			qs.inQueue++
			opts.Abort.setCurrentPID(pid)
			job := qs.job
			go runProbeWorker(ctx, ip, r, job, opts, results, pid)
			return true
		}
		return false
	}

	for len(queues) > 0 {
		expLogger.maybeLog(time.Now(), deadline)

		progressed := false
		for inFlight < int(w) {
			if !dispatchOne() {
				break
			}
			inFlight++
			progressed = true
		}

		if time.Now().After(deadline) {
			opts.Abort.Abort()
			break
		}
		if opts.Abort.Aborted() {
			break
		}

		if !progressed && inFlight == 0 {
			// Nothing left dispatchable and nothing in flight: every
			// remaining job must be exhausted-but-not-yet-done, which
			// would be a bug; guard against spinning forever.
			break
		}

		select {
		case res := <-results:
			inFlight--
			applyResult(ctx, queues, res, opts, finishJob)
		case <-time.After(50 * time.Millisecond):
		}
	}

	// The in-flight count at join time is the "missed" count: work
	// dispatched but not yet resolved when abort/deadline won.
	missed := inFlight
	for inFlight > 0 {
		res := <-results
		inFlight--
		applyResult(ctx, queues, res, opts, finishJob)
	}

	if opts.Abort.Aborted() {
		for pid := range queues {
			if opts.Reporter != nil {
				opts.Reporter.Exit(ctx, pid)
			}
		}
		opts.Telemetry.WriteRunAborted(len(queues), missed)
	}
	if missed != 0 {
		log.Warn().Int("missed", missed).Msg("netdiscovery: devices scan result missed")
	}
	opts.Abort.clearCurrentPID()
}

// applyResult folds one worker completion into its job's queueState,
// emitting DEVICE on a hit and the double-END once the job is fully drained.
func applyResult(ctx context.Context, queues map[uint32]*queueState, res workerResult, opts SchedulerOptions, finishJob func(uint32)) {
	qs, ok := queues[res.pid]
	if !ok {
		return
	}
	qs.inQueue--
	if res.hit {
		qs.devicesFound++
		if opts.Reporter != nil {
			opts.Reporter.Device(ctx, res.pid, res.dev)
		}
	}
	if qs.exhausted() && qs.inQueue == 0 {
		finishJob(res.pid)
	}
}

// runProbeWorker fuses one address and reports the outcome back to the
// supervisor; panics are recovered so one bad probe cannot take down the
// scheduler: no single address failure should abort the whole job.
func runProbeWorker(ctx context.Context, ip string, r Range, job Job, opts SchedulerOptions, results chan<- workerResult, pid uint32) {
	defer func() {
		if rec := recover(); rec != nil {
			log.Error().Interface("panic", rec).Str("ip", ip).Msg("netdiscovery: probe worker panic recovered")
			results <- workerResult{pid: pid}
		}
	}()
	dev, ok := fuseAddress(ctx, ip, r, job, opts.Caps, opts.ARPRunner, opts.SNMPQuery)
	results <- workerResult{pid: pid, dev: dev, hit: ok}
}

// workerPoolSize computes W = min(maxThreadsAcrossJobs, maxCount) per
// Phase C.
func workerPoolSize(queues map[uint32]*queueState, maxCount uint32) uint32 {
	var maxThreads uint32
	for _, qs := range queues {
		if qs.job.MaxThreads > maxThreads {
			maxThreads = qs.job.MaxThreads
		}
	}
	if maxThreads == 0 {
		maxThreads = 1
	}
	if maxThreads < maxCount {
		return maxThreads
	}
	return maxCount
}
