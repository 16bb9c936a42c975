package netdiscovery

import "time"

// rangeCursor pairs a Range with the iterator walking it, so the scheduler
// can resume a partially-drained range across worker-pool passes.
type rangeCursor struct {
	r    Range
	iter *addressIterator
}

// queueState is one admitted job's live scheduling state: the fairness cap
// (maxInQueue), the current number of addresses dispatched but not yet
// resolved (inQueue), the job's declared timeout, its credentials, and its
// ranges with attached iterators.
type queueState struct {
	job          Job
	maxInQueue   uint32
	inQueue      uint32
	ranges       []*rangeCursor
	deadline     time.Time
	started      time.Time
	done         bool
	devicesFound int
}

// newQueueState builds live scheduling state for an admitted job, attaching
// a fresh iterator to every valid range.
func newQueueState(job Job, deadline time.Time) *queueState {
	qs := &queueState{
		job:        job,
		maxInQueue: job.MaxThreads,
		started:    time.Now(),
		deadline:   deadline,
	}
	for _, r := range job.Ranges {
		it, ok := newAddressIterator(r.Start, r.End)
		if !ok {
			continue
		}
		qs.ranges = append(qs.ranges, &rangeCursor{r: r, iter: it})
	}
	return qs
}

// totalSize sums the address count across every range in the job, used in
// the scheduler's deadline formula.
func (j Job) totalSize() uint64 {
	var total uint64
	for _, r := range j.Ranges {
		if it, ok := newAddressIterator(r.Start, r.End); ok {
			total += it.Size()
		}
	}
	return total
}

// nextAddress returns the next (ip, range) pair to dispatch for this job, or
// ("", Range{}, false) once every range is exhausted. Ranges are drained in
// order: the first range is walked to its end before the next one is used.
func (qs *queueState) nextAddress() (string, Range, bool) {
	for i := 0; i < len(qs.ranges); i++ {
		rc := qs.ranges[i]
		if rc.iter.Exhausted() {
			continue
		}
		ip, ok := rc.iter.Current()
		if !ok {
			continue
		}
		rc.iter.Advance()
		return ip, rc.r, true
	}
	return "", Range{}, false
}

// exhausted reports whether every range in the job has been fully walked.
func (qs *queueState) exhausted() bool {
	for _, rc := range qs.ranges {
		if !rc.iter.Exhausted() {
			return false
		}
	}
	return true
}

// hasCapacity reports whether this job may have another address dispatched
// without breaching its maxInQueue fairness cap.
func (qs *queueState) hasCapacity() bool {
	return qs.inQueue < qs.maxInQueue
}
