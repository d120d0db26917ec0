package output

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"runtime"
	"sync"
	"time"

	"github.com/wbrown/janus-nql/nql"
)

// HTTP batches events and POSTs each batch as a JSON array. The
// concurrent fan-out across in-flight batches is adapted from the
// teacher's WorkerPool (datalog/executor/worker_pool.go): a fixed pool
// of goroutines draining a job channel, one job per batch, rather than
// the teacher's one-job-per-input-row.
type HTTP struct {
	url        string
	client     *http.Client
	batchSize  int
	workerCnt  int
	flushEvery time.Duration

	mu      sync.Mutex
	pending []json.RawMessage
	jobs    chan []json.RawMessage
	wg      sync.WaitGroup

	closeOnce sync.Once
}

// HTTPConfig mirrors the construction knobs a deployment would expose
// via flags or a config file.
type HTTPConfig struct {
	URL        string
	BatchSize  int
	Workers    int
	Timeout    time.Duration
	FlushEvery time.Duration
}

func NewHTTP(cfg HTTPConfig) *HTTP {
	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = 100
	}
	workers := cfg.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	flushEvery := cfg.FlushEvery
	if flushEvery <= 0 {
		flushEvery = 5 * time.Second
	}

	h := &HTTP{
		url:        cfg.URL,
		client:     &http.Client{Timeout: timeout},
		batchSize:  batchSize,
		workerCnt:  workers,
		flushEvery: flushEvery,
		jobs:       make(chan []json.RawMessage, workers*2),
	}

	for w := 0; w < h.workerCnt; w++ {
		h.wg.Add(1)
		go h.worker()
	}
	go h.flushLoop()

	return h
}

func (h *HTTP) worker() {
	defer h.wg.Done()
	for batch := range h.jobs {
		h.post(batch)
	}
}

func (h *HTTP) flushLoop() {
	t := time.NewTicker(h.flushEvery)
	defer t.Stop()
	for range t.C {
		h.Flush()
	}
}

func (h *HTTP) Handle(event *nql.Event) {
	data, err := json.Marshal(event.Payload)
	if err != nil {
		return
	}

	h.mu.Lock()
	h.pending = append(h.pending, json.RawMessage(data))
	var batch []json.RawMessage
	if len(h.pending) >= h.batchSize {
		batch = h.pending
		h.pending = nil
	}
	h.mu.Unlock()

	if batch != nil {
		h.jobs <- batch
	}
}

// Flush enqueues whatever events are currently buffered, even a
// partial batch, so events aren't held indefinitely between
// flushEvery ticks.
func (h *HTTP) Flush() {
	h.mu.Lock()
	batch := h.pending
	h.pending = nil
	h.mu.Unlock()

	if len(batch) > 0 {
		h.jobs <- batch
	}
}

func (h *HTTP) post(batch []json.RawMessage) {
	body, err := json.Marshal(batch)
	if err != nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), h.client.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.url, bytes.NewReader(body))
	if err != nil {
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := h.client.Do(req)
	if err != nil {
		return
	}
	resp.Body.Close()
}

// Close flushes any buffered events and waits for in-flight batches to
// finish posting.
func (h *HTTP) Close() error {
	var err error
	h.closeOnce.Do(func() {
		h.Flush()
		close(h.jobs)
		h.wg.Wait()
	})
	return err
}
