package telemetry

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/rs/zerolog/log"
)

var errInfluxNotReady = errors.New("telemetry: influxdb ping reported not ready")

// Writer records scheduler/job-level counters to InfluxDB v2. It never
// writes a DeviceResult or any per-device field, since devices are never
// persisted — only aggregate counts the scheduler already tracks in memory.
type Writer struct {
	client      influxdb2.Client
	writeAPI    api.WriteAPIBlocking
	rateLimiter *time.Ticker
	lastWrite   time.Time
	mu          sync.Mutex
}

// NewWriter creates a Writer with a blocking write API. An empty url
// disables telemetry entirely: Writer methods become no-ops.
func NewWriter(url, token, org, bucket string) *Writer {
	if url == "" {
		return nil
	}
	client := influxdb2.NewClient(url, token)
	return &Writer{
		client:      client,
		writeAPI:    client.WriteAPIBlocking(org, bucket),
		rateLimiter: time.NewTicker(10 * time.Millisecond),
		lastWrite:   time.Now(),
	}
}

// Close terminates the InfluxDB client connection. Safe to call on a nil
// Writer.
func (w *Writer) Close() {
	if w == nil {
		return
	}
	w.rateLimiter.Stop()
	w.client.Close()
}

// WriteJobStarted records that a job began scheduling, with its total
// address count.
func (w *Writer) WriteJobStarted(pid uint32, totalAddresses uint64) {
	if w == nil {
		return
	}
	w.rateLimit()
	p := influxdb2.NewPointWithMeasurement("netdiscovery_job").
		AddTag("pid", uint32ToTag(pid)).
		AddField("event", "started").
		AddField("total_addresses", totalAddresses).
		SetTime(time.Now())
	if err := w.writeAPI.WritePoint(context.Background(), p); err != nil {
		log.Debug().Err(err).Msg("netdiscovery: telemetry write failed")
	}
}

// WriteJobCompleted records a job's completion counters: how many addresses
// yielded an accepted DEVICE record and how many were missed (in-flight at
// abort/deadline join time).
func (w *Writer) WriteJobCompleted(pid uint32, devicesFound int, missed int, elapsed time.Duration) {
	if w == nil {
		return
	}
	w.rateLimit()
	p := influxdb2.NewPointWithMeasurement("netdiscovery_job").
		AddTag("pid", uint32ToTag(pid)).
		AddField("event", "completed").
		AddField("devices_found", devicesFound).
		AddField("missed", missed).
		AddField("elapsed_ms", float64(elapsed.Nanoseconds())/1e6).
		SetTime(time.Now())
	if err := w.writeAPI.WritePoint(context.Background(), p); err != nil {
		log.Debug().Err(err).Msg("netdiscovery: telemetry write failed")
	}
}

// WriteRunAborted records that the scheduler aborted (deadline exceeded or
// termination signal) with the number of jobs still resident.
func (w *Writer) WriteRunAborted(jobsRemaining int, missed int) {
	if w == nil {
		return
	}
	w.rateLimit()
	p := influxdb2.NewPointWithMeasurement("netdiscovery_run").
		AddField("event", "aborted").
		AddField("jobs_remaining", jobsRemaining).
		AddField("missed", missed).
		SetTime(time.Now())
	if err := w.writeAPI.WritePoint(context.Background(), p); err != nil {
		log.Debug().Err(err).Msg("netdiscovery: telemetry write failed")
	}
}

// HealthCheck reports whether the InfluxDB backend is reachable, via the
// client's /ping endpoint. A nil Writer (telemetry disabled) always reports
// healthy, since there is nothing to be unreachable.
func (w *Writer) HealthCheck(ctx context.Context) error {
	if w == nil {
		return nil
	}
	ok, err := w.client.Ping(ctx)
	if err != nil {
		return err
	}
	if !ok {
		return errInfluxNotReady
	}
	return nil
}

// rateLimit enforces a minimum 10ms spacing between writes.
func (w *Writer) rateLimit() {
	w.mu.Lock()
	defer w.mu.Unlock()
	elapsed := time.Since(w.lastWrite)
	if elapsed < 10*time.Millisecond {
		time.Sleep(10*time.Millisecond - elapsed)
	}
	w.lastWrite = time.Now()
}

func uint32ToTag(v uint32) string {
	return strconv.FormatUint(uint64(v), 10)
}
