package audit

import (
	"bufio"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/tidwall/gjson"

	"github.com/raw-labs/mxcp/internal/logger"
)

var droppedRecords = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "mxcp",
	Subsystem: "audit",
	Name:      "records_dropped_total",
	Help:      "Audit records dropped because the writer queue stayed full past the retry cap.",
})

// enqueueRetries bounds how many times Enqueue retries a full queue before
// dropping the record, per spec §4.8: "block up to a small bound, never
// lose records silently" — silently meaning without the drop counter and a
// logged warning, not meaning never.
const enqueueRetries = 3

// Writer is the single-producer/single-consumer audit log writer of C8: one
// goroutine drains a bounded queue and appends one JSON line per record,
// so the executor never blocks a response on durable persistence beyond
// the queue's own backpressure window (spec §4.8, §5).
type Writer struct {
	cfg    Config
	queue  chan *Record
	out    io.Writer
	bw     *bufio.Writer
	mu     sync.Mutex // guards bw; only the consumer and Close touch it
	done   chan struct{}
	closed chan struct{}
}

// NewWriter opens cfg's log destination and starts the consumer goroutine.
// Close must be called to flush and release the destination.
func NewWriter(cfg *Config) (*Writer, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	out, err := cfg.GetLogWriter()
	if err != nil {
		return nil, err
	}
	cap := cfg.QueueCapacity
	if cap <= 0 {
		cap = 1024
	}
	w := &Writer{
		cfg:    *cfg,
		queue:  make(chan *Record, cap),
		out:    out,
		bw:     bufio.NewWriter(out),
		done:   make(chan struct{}),
		closed: make(chan struct{}),
	}
	go w.run()
	return w, nil
}

// Enqueue appends rec to the write queue. If the queue is full it retries a
// few times with a short backoff (the "block briefly" bound of spec §4.8)
// before dropping the record and incrementing the drop counter.
func (w *Writer) Enqueue(rec *Record) {
	if !w.cfg.Enabled {
		return
	}
	if !w.cfg.IncludeRequestData {
		rec.InputRedacted = nil
	}
	if !w.cfg.IncludeResponseData {
		rec.OutputRedactedSummary = nil
	}

	select {
	case w.queue <- rec:
		return
	default:
	}
	for attempt := 0; attempt < enqueueRetries; attempt++ {
		select {
		case w.queue <- rec:
			return
		case <-time.After(10 * time.Millisecond):
		}
	}
	droppedRecords.Inc()
	logger.Warnf("audit: dropping record for request %s, queue stayed full for %d retries", rec.RequestID, enqueueRetries)
}

// run is the sole consumer goroutine: it is the only caller of writeLine
// and flush, which still take mu around bw and the underlying file handle;
// Close synchronizes against it via the done/closed channels.
func (w *Writer) run() {
	defer close(w.closed)
	for {
		select {
		case rec, ok := <-w.queue:
			if !ok {
				w.flush()
				return
			}
			w.writeLine(rec)
		case <-w.done:
			// Drain whatever is already queued before exiting.
			for {
				select {
				case rec := <-w.queue:
					w.writeLine(rec)
				default:
					w.flush()
					return
				}
			}
		}
	}
}

func (w *Writer) writeLine(rec *Record) {
	line, err := json.Marshal(rec)
	if err != nil {
		logger.Errorf("audit: marshaling record for request %s: %v", rec.RequestID, err)
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, err := w.bw.Write(line); err != nil {
		logger.Errorf("audit: writing record: %v", err)
		return
	}
	if err := w.bw.WriteByte('\n'); err != nil {
		logger.Errorf("audit: writing record newline: %v", err)
	}
}

func (w *Writer) flush() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.bw.Flush(); err != nil {
		logger.Errorf("audit: flushing log: %v", err)
	}
	if closer, ok := w.out.(io.Closer); ok && w.out != os.Stdout {
		_ = closer.Close()
	}
}

// Close signals the consumer to drain and exit, and waits for it.
func (w *Writer) Close() error {
	close(w.done)
	<-w.closed
	return nil
}

// RetentionSweep deletes audit records older than RetentionDays, run
// periodically (default 24h) by the serve command or directly through Run
// (spec §4.8); the admin surface has no sweep route. It supports a
// file-per-day layout (Dir holds files named YYYY-MM-DD.log, and whole files
// past the horizon are removed) or a single-file layout (LogFile is
// rewritten, keeping only records at or after the horizon).
type RetentionSweep struct {
	// Dir, when set, names a directory holding one log file per day; LogFile
	// is ignored.
	Dir string
	// LogFile is a single append-only log file, consulted when Dir is
	// empty.
	LogFile string

	RetentionDays int
}

// Run performs one sweep pass and returns the number of records removed.
func (s *RetentionSweep) Run(now time.Time) (removed int, err error) {
	horizon := now.AddDate(0, 0, -s.RetentionDays)
	if s.Dir != "" {
		return s.sweepDir(horizon)
	}
	return s.sweepFile(horizon)
}

func (s *RetentionSweep) sweepDir(horizon time.Time) (int, error) {
	entries, err := os.ReadDir(s.Dir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, err
	}
	removed := 0
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		day, ok := parseDayFilename(e.Name())
		if !ok {
			continue
		}
		if day.Before(horizon) {
			if err := os.Remove(filepath.Join(s.Dir, e.Name())); err != nil {
				return removed, err
			}
			removed++
		}
	}
	return removed, nil
}

func (s *RetentionSweep) sweepFile(horizon time.Time) (int, error) {
	data, err := os.ReadFile(s.LogFile)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, err
	}
	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	kept := make([]string, 0, len(lines))
	removed := 0
	for _, line := range lines {
		if line == "" {
			continue
		}
		// Pull just the timestamp field via gjson rather than decoding the
		// whole line into a Record: the sweep only ever needs this one
		// value, and a full json.Unmarshal per line would allocate a
		// throwaway Record (with its nested maps) for every record in the
		// file on every sweep pass.
		ts := gjson.Get(line, "timestamp")
		if !ts.Exists() {
			kept = append(kept, line) // don't destroy unparseable lines
			continue
		}
		t, err := time.Parse(time.RFC3339Nano, ts.String())
		if err != nil {
			kept = append(kept, line)
			continue
		}
		if t.Before(horizon) {
			removed++
			continue
		}
		kept = append(kept, line)
	}
	if removed == 0 {
		return 0, nil
	}
	out := strings.Join(kept, "\n")
	if out != "" {
		out += "\n"
	}
	return removed, os.WriteFile(s.LogFile, []byte(out), 0o600)
}

// parseDayFilename parses a "YYYY-MM-DD.log" file name into its day.
func parseDayFilename(name string) (time.Time, bool) {
	base := strings.TrimSuffix(name, filepath.Ext(name))
	t, err := time.Parse("2006-01-02", base)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// sortedSchemaDays lists the days of a file-per-day directory in ascending
// order without sweeping it. Nothing in this repository calls it.
func sortedSchemaDays(dir string) ([]time.Time, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var days []time.Time
	for _, e := range entries {
		if d, ok := parseDayFilename(e.Name()); ok {
			days = append(days, d)
		}
	}
	sort.Slice(days, func(i, j int) bool { return days[i].Before(days[j]) })
	return days, nil
}
