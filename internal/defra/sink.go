package defra

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// OpType is the kind of write.
type OpType string

const (
	OpCreate OpType = "create"
	OpUpdate OpType = "update"
	OpDelete OpType = "delete"
)

// WriteOp is one queued write.
type WriteOp struct {
	Collection string
	Document   map[string]any
	DocID      string // updates and deletes
	Op         OpType

	// MatchField names a document field that is unique within a flush.
	// Creates that set it are sent as one batched mutation and matched back
	// to their results by its value.
	MatchField string

	result chan<- WriteResult
}

// WriteResult is the outcome of one WriteOp.
type WriteResult struct {
	DocID string
	Err   error
}

// SinkConfig configures a Sink.
type SinkConfig struct {
	Client        *Client
	BatchSize     int           // flush after N ops, default 100
	FlushInterval time.Duration // or after this long, default 5s
	QueueSize     int           // default 1000
	Logger        *slog.Logger
}

// Sink batches writes to DefraDB on a single goroutine.
type Sink struct {
	client *Client
	logger *slog.Logger

	batchSize     int
	flushInterval time.Duration

	queue   chan WriteOp
	flushCh chan struct{}
	batch   []WriteOp

	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	mu       sync.RWMutex // guards closed against concurrent sends
	closed   bool
	stopOnce sync.Once
}

// NewSink creates a sink. Call Start before sending.
func NewSink(cfg SinkConfig) *Sink {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = 5 * time.Second
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 1000
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Sink{
		client:        cfg.Client,
		logger:        cfg.Logger,
		batchSize:     cfg.BatchSize,
		flushInterval: cfg.FlushInterval,
		queue:         make(chan WriteOp, cfg.QueueSize),
		flushCh:       make(chan struct{}, 1),
		batch:         make([]WriteOp, 0, cfg.BatchSize),
	}
}

// Start launches the batcher.
func (s *Sink) Start(ctx context.Context) {
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.wg.Add(1)
	go s.run()
}

// Stop flushes pending writes and stops the batcher.
func (s *Sink) Stop() {
	s.stopOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		close(s.queue)
		s.mu.Unlock()

		s.wg.Wait()
		s.cancel()
		s.logger.Debug("sink stopped")
	})
}

// Send queues op without waiting for it to be written.
func (s *Sink) Send(op WriteOp) {
	op.result = nil
	if err := s.enqueue(context.Background(), op); err != nil {
		s.logger.Warn("dropping write op", "collection", op.Collection, "op", op.Op, "error", err)
	}
}

// SendSync queues op and waits for its result.
func (s *Sink) SendSync(ctx context.Context, op WriteOp) (WriteResult, error) {
	results, err := s.SendMany(ctx, []WriteOp{op})
	if err != nil {
		return WriteResult{}, err
	}
	return results[0], results[0].Err
}

// SendMany queues ops, asks for an immediate flush and waits for every
// result. Per-op failures are reported in the results; err is only set when
// the sink or ctx stopped first.
func (s *Sink) SendMany(ctx context.Context, ops []WriteOp) ([]WriteResult, error) {
	chans := make([]chan WriteResult, len(ops))
	for i, op := range ops {
		ch := make(chan WriteResult, 1)
		chans[i] = ch
		op.result = ch
		if err := s.enqueue(ctx, op); err != nil {
			return nil, err
		}
	}
	s.Flush()

	results := make([]WriteResult, len(ops))
	for i, ch := range chans {
		select {
		case r := <-ch:
			results[i] = r
		case <-s.ctx.Done():
			return nil, fmt.Errorf("%w while waiting for result", ErrSinkClosed)
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return results, nil
}

// Flush asks the batcher to write the current batch now.
func (s *Sink) Flush() {
	select {
	case s.flushCh <- struct{}{}:
	default:
	}
}

func (s *Sink) enqueue(ctx context.Context, op WriteOp) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed || s.ctx == nil {
		return ErrSinkClosed
	}
	select {
	case s.queue <- op:
		return nil
	case <-s.ctx.Done():
		return ErrSinkClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Sink) run() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case op, ok := <-s.queue:
			if !ok {
				s.flush()
				return
			}
			s.batch = append(s.batch, op)
			if len(s.batch) >= s.batchSize {
				s.flush()
			}
		case <-s.flushCh:
			s.drain()
			s.flush()
		case <-ticker.C:
			s.flush()
		}
	}
}

// drain moves already-queued ops into the batch so a flush request covers
// everything sent before it.
func (s *Sink) drain() {
	for {
		select {
		case op, ok := <-s.queue:
			if !ok {
				return
			}
			s.batch = append(s.batch, op)
		default:
			return
		}
	}
}

func (s *Sink) flush() {
	if len(s.batch) == 0 {
		return
	}
	ops := s.batch
	s.batch = make([]WriteOp, 0, s.batchSize)
	s.logger.Debug("flushing batch", "count", len(ops))

	type groupKey struct {
		collection string
		op         OpType
	}
	var order []groupKey
	groups := make(map[groupKey][]WriteOp)
	for _, op := range ops {
		k := groupKey{op.Collection, op.Op}
		if _, ok := groups[k]; !ok {
			order = append(order, k)
		}
		groups[k] = append(groups[k], op)
	}

	for _, k := range order {
		group := groups[k]
		switch k.op {
		case OpCreate:
			s.creates(k.collection, group)
		case OpUpdate:
			for _, op := range group {
				err := s.client.Update(s.ctx, k.collection, op.DocID, op.Document)
				s.finish(op, WriteResult{DocID: op.DocID, Err: err})
			}
		case OpDelete:
			for _, op := range group {
				err := s.client.Delete(s.ctx, k.collection, op.DocID)
				s.finish(op, WriteResult{DocID: op.DocID, Err: err})
			}
		default:
			for _, op := range group {
				s.finish(op, WriteResult{Err: fmt.Errorf("unknown op type %q", op.Op)})
			}
		}
	}
}

// creates batches ops into one mutation when they can be matched back to
// their results, and writes them one by one otherwise.
func (s *Sink) creates(collection string, ops []WriteOp) {
	field, ok := batchMatchField(ops)
	if !ok {
		for _, op := range ops {
			id, err := s.client.Create(s.ctx, collection, op.Document)
			s.finish(op, WriteResult{DocID: id, Err: err})
		}
		return
	}

	inputs := make([]map[string]any, len(ops))
	for i, op := range ops {
		inputs[i] = op.Document
	}
	results, err := s.client.CreateMany(s.ctx, collection, inputs, field)
	if err != nil {
		for _, op := range ops {
			s.finish(op, WriteResult{Err: err})
		}
		return
	}

	ids := make(map[string]string, len(results))
	for _, r := range results {
		ids[fmt.Sprint(r.Fields[field])] = r.DocID
	}
	for _, op := range ops {
		id, found := ids[fmt.Sprint(op.Document[field])]
		if !found {
			s.finish(op, WriteResult{Err: fmt.Errorf("no result for %s=%v", field, op.Document[field])})
			continue
		}
		s.finish(op, WriteResult{DocID: id})
	}
}

// batchMatchField returns the shared MatchField when every op sets it and
// its values are distinct.
func batchMatchField(ops []WriteOp) (string, bool) {
	if len(ops) < 2 || ops[0].MatchField == "" {
		return "", false
	}
	field := ops[0].MatchField
	seen := make(map[string]bool, len(ops))
	for _, op := range ops {
		if op.MatchField != field {
			return "", false
		}
		v, ok := op.Document[field]
		if !ok {
			return "", false
		}
		key := fmt.Sprint(v)
		if seen[key] {
			return "", false
		}
		seen[key] = true
	}
	return field, true
}

func (s *Sink) finish(op WriteOp, r WriteResult) {
	if r.Err != nil {
		s.logger.Error("write failed", "collection", op.Collection, "op", op.Op, "doc_id", op.DocID, "error", r.Err)
	}
	if op.result != nil {
		op.result <- r
		close(op.result)
	}
}
