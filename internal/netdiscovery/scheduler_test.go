package netdiscovery

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"
)

func TestRunSchedulerEmitsSkipLifecycleForZeroSizeJob(t *testing.T) {
	fs := &fakeSender{}
	reporter := NewReporter("agent-1", "http://server.example/", fs)
	jobs := []Job{
		{PID: 1, MaxThreads: 1, Timeout: time.Second, Ranges: []Range{{Start: "10.0.0.10", End: "10.0.0.1"}}},
	}
	RunScheduler(context.Background(), jobs, SchedulerOptions{
		Reporter: reporter,
		MaxCount: 4,
	})

	if len(fs.sent) != 4 {
		t.Fatalf("expected START, NBIP(0), END, END for a zero-size job, got %d messages", len(fs.sent))
	}
	if !strings.Contains(string(fs.sent[0]), "<START>1</START>") {
		t.Errorf("first message should be START: %s", fs.sent[0])
	}
	if !strings.Contains(string(fs.sent[1]), "<NBIP>0</NBIP>") {
		t.Errorf("second message should be NBIP(0): %s", fs.sent[1])
	}
	if !strings.Contains(string(fs.sent[2]), "<END>1</END>") || !strings.Contains(string(fs.sent[3]), "<END>1</END>") {
		t.Errorf("last two messages should both be END: %s / %s", fs.sent[2], fs.sent[3])
	}
}

func TestRunSchedulerWalksARPOnlyJobToCompletion(t *testing.T) {
	fs := &fakeSender{}
	reporter := NewReporter("agent-1", "http://server.example/", fs)

	hitIPs := map[string]string{
		"10.0.0.1": "host1 (10.0.0.1) at aa:bb:cc:dd:ee:01 [ether] on eth0",
		"10.0.0.2": "host2 (10.0.0.2) at aa:bb:cc:dd:ee:02 [ether] on eth0",
	}
	fakeARP := func(ctx context.Context, ip string) (string, error) {
		return hitIPs[ip], nil
	}

	jobs := []Job{
		{PID: 9, MaxThreads: 2, Timeout: 10 * time.Second, Ranges: []Range{{Start: "10.0.0.1", End: "10.0.0.2"}}},
	}

	RunScheduler(context.Background(), jobs, SchedulerOptions{
		Caps:             Capabilities{ARP: true},
		ARPRunner:        fakeARP,
		Reporter:         reporter,
		MaxCount:         4,
		TargetExpiration: 60 * time.Second,
	})

	joined := make([]string, len(fs.sent))
	for i, b := range fs.sent {
		joined[i] = string(b)
	}
	all := strings.Join(joined, "\n")

	if !strings.Contains(all, "<START>1</START>") {
		t.Errorf("expected a START message: %s", all)
	}
	if !strings.Contains(all, "<NBIP>2</NBIP>") {
		t.Errorf("expected NBIP(2): %s", all)
	}
	if !strings.Contains(all, "aa:bb:cc:dd:ee:01") || !strings.Contains(all, "aa:bb:cc:dd:ee:02") {
		t.Errorf("expected both device MACs to be reported: %s", all)
	}
	endCount := strings.Count(all, "<END>1</END>")
	if endCount != 2 {
		t.Errorf("expected the job to end with a double END, got %d END messages", endCount)
	}
}

func TestRunSchedulerAbortStopsDispatchAndEmitsExit(t *testing.T) {
	fs := &fakeSender{}
	reporter := NewReporter("agent-1", "http://server.example/", fs)
	abort := newAbortController()

	callCount := 0
	fakeARP := func(ctx context.Context, ip string) (string, error) {
		callCount++
		if callCount == 1 {
			abort.Abort()
		}
		return fmt.Sprintf("host (%s) at aa:bb:cc:dd:ee:ff [ether] on eth0", ip), nil
	}

	jobs := []Job{
		{PID: 3, MaxThreads: 1, Timeout: 10 * time.Second, Ranges: []Range{{Start: "10.0.0.1", End: "10.0.0.200"}}},
	}

	RunScheduler(context.Background(), jobs, SchedulerOptions{
		Caps:             Capabilities{ARP: true},
		ARPRunner:        fakeARP,
		Reporter:         reporter,
		Abort:            abort,
		MaxCount:         1,
		TargetExpiration: 60 * time.Second,
	})

	if !abort.Aborted() {
		t.Fatalf("expected the abort flag to remain set")
	}

	all := strings.Join(func() []string {
		out := make([]string, len(fs.sent))
		for i, b := range fs.sent {
			out[i] = string(b)
		}
		return out
	}(), "\n")
	if !strings.Contains(all, "<EXIT>1</EXIT>") {
		t.Errorf("expected an EXIT message on abort: %s", all)
	}
}

// TestRunSchedulerTwoJobsRespectPerJobCapAndAscendingPIDFairness drives two
// concurrent jobs (pid 1, maxInQueue 1; pid 2, maxInQueue 2) through a shared
// W=2 worker pool. The fake ARP runner blocks the first wave of dispatches
// on a WaitGroup, used only to know that both workers have been spawned;
// the fairness assertion itself reads Reporter.Start's emission order from
// the fake sender, since emitStart runs synchronously inside the
// supervisor's own dispatch loop (before the probe goroutine is spawned),
// unlike the probe invocation order, which two already-spawned goroutines
// race to produce.
func TestRunSchedulerTwoJobsRespectPerJobCapAndAscendingPIDFairness(t *testing.T) {
	fs := &fakeSender{}
	reporter := NewReporter("agent-1", "http://server.example/", fs)

	var startWG sync.WaitGroup
	startWG.Add(2)
	release := make(chan struct{})
	var once sync.Once

	jobs := []Job{
		{PID: 1, MaxThreads: 1, Timeout: 10 * time.Second, Ranges: []Range{{Start: "10.0.1.1", End: "10.0.1.4"}}},
		{PID: 2, MaxThreads: 2, Timeout: 10 * time.Second, Ranges: []Range{{Start: "10.0.2.1", End: "10.0.2.4"}}},
	}

	var mu sync.Mutex
	calls := 0
	fakeARP := func(ctx context.Context, ip string) (string, error) {
		mu.Lock()
		calls++
		if calls <= 2 {
			startWG.Done()
		}
		mu.Unlock()
		<-release
		return fmt.Sprintf("host (%s) at aa:bb:cc:dd:ee:ff [ether] on eth0", ip), nil
	}

	done := make(chan struct{})
	go func() {
		RunScheduler(context.Background(), jobs, SchedulerOptions{
			Caps:             Capabilities{ARP: true},
			ARPRunner:        fakeARP,
			Reporter:         reporter,
			MaxCount:         2,
			TargetExpiration: 60 * time.Second,
		})
		close(done)
	}()

	waitDone := make(chan struct{})
	go func() { startWG.Wait(); close(waitDone) }()
	select {
	case <-waitDone:
	case <-time.After(5 * time.Second):
		t.Fatalf("timed out waiting for the first dispatch wave to fill the W=2 worker pool")
	}

	fs.mu.Lock()
	sent := append([][]byte(nil), fs.sent...)
	fs.mu.Unlock()

	idxStart1, idxStart2 := -1, -1
	for i, b := range sent {
		body := string(b)
		if !strings.Contains(body, "<START>1</START>") {
			continue
		}
		switch {
		case strings.Contains(body, "<PROCESSNUMBER>1</PROCESSNUMBER>") && idxStart1 == -1:
			idxStart1 = i
		case strings.Contains(body, "<PROCESSNUMBER>2</PROCESSNUMBER>") && idxStart2 == -1:
			idxStart2 = i
		}
	}
	if idxStart1 == -1 || idxStart2 == -1 {
		t.Fatalf("expected a START for both pid 1 and pid 2, got %d messages", len(sent))
	}
	if idxStart1 >= idxStart2 {
		t.Fatalf("expected job 1's START to precede job 2's (ascending-pid fairness), got indices %d, %d", idxStart1, idxStart2)
	}

	once.Do(func() { close(release) })
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatalf("timed out waiting for RunScheduler to complete after releasing probes")
	}
}

func TestWorkerPoolSizeCapsAtMaxCount(t *testing.T) {
	queues := map[uint32]*queueState{
		1: {job: Job{MaxThreads: 10}},
		2: {job: Job{MaxThreads: 20}},
	}
	if got := workerPoolSize(queues, 5); got != 5 {
		t.Errorf("workerPoolSize = %d, want 5 (capped by maxCount)", got)
	}
}

func TestWorkerPoolSizeUsesMaxThreadsWhenSmaller(t *testing.T) {
	queues := map[uint32]*queueState{
		1: {job: Job{MaxThreads: 3}},
	}
	if got := workerPoolSize(queues, 64); got != 3 {
		t.Errorf("workerPoolSize = %d, want 3", got)
	}
}

func TestWorkerPoolSizeDefaultsToOneWithNoJobs(t *testing.T) {
	if got := workerPoolSize(map[uint32]*queueState{}, 64); got != 1 {
		t.Errorf("workerPoolSize = %d, want 1 for an empty queue set", got)
	}
}
