package streaming

import (
	"context"
	"sync"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"voxstream/internal/logger"
)

// Job is one fetch request. Generation is echoed back in the Result so the
// requester can tell stale completions apart.
type Job struct {
	Key        TileKey
	Generation uint64
	Ctx        context.Context
}

// Result is the outcome of a Job.
type Result struct {
	Key        TileKey
	Generation uint64
	Tile       *Tile
	Err        error
}

// Options configures a Streamer.
type Options struct {
	// Workers is the number of fetch goroutines. Zero runs every fetch
	// inline inside Submit.
	Workers int
	// QueueSize bounds both queued jobs and undelivered results.
	QueueSize int
	// MaxPending caps jobs queued or in flight; zero means QueueSize.
	MaxPending int
	Logger     logrus.FieldLogger
}

// Streamer runs Provider fetches on a pool of workers and delivers results on
// a buffered channel.
type Streamer struct {
	provider Provider
	jobs     chan Job
	results  chan Result

	pending    map[TileKey]struct{}
	pendingMu  sync.Mutex
	maxPending int
	closed     bool

	inline bool
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	log    logrus.FieldLogger
}

// NewStreamer starts opts.Workers fetch goroutines.
func NewStreamer(provider Provider, opts Options) *Streamer {
	if opts.QueueSize <= 0 {
		opts.QueueSize = 256
	}
	if opts.MaxPending <= 0 {
		opts.MaxPending = opts.QueueSize
	}
	if opts.Logger == nil {
		opts.Logger = logger.L
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Streamer{
		provider:   provider,
		jobs:       make(chan Job, opts.QueueSize),
		results:    make(chan Result, opts.QueueSize+max(opts.Workers, 0)),
		pending:    make(map[TileKey]struct{}),
		maxPending: opts.MaxPending,
		inline:     opts.Workers <= 0,
		ctx:        ctx,
		cancel:     cancel,
		log:        opts.Logger,
	}

	for i := 0; i < opts.Workers; i++ {
		s.wg.Add(1)
		go s.worker()
	}
	return s
}

// Results delivers completed fetches.
func (s *Streamer) Results() <-chan Result {
	return s.results
}

// Pending returns the number of jobs queued or in flight.
func (s *Streamer) Pending() int {
	s.pendingMu.Lock()
	defer s.pendingMu.Unlock()
	return len(s.pending)
}

// Submit queues job without blocking. It returns false when the key is
// already in flight, the pending cap is reached or the queue is full. Inline
// streamers also refuse while the result queue is full, before fetching.
func (s *Streamer) Submit(job Job) bool {
	if job.Ctx == nil {
		job.Ctx = context.Background()
	}

	s.pendingMu.Lock()
	if s.closed {
		s.pendingMu.Unlock()
		return false
	}
	if _, ok := s.pending[job.Key]; ok {
		s.pendingMu.Unlock()
		return false
	}
	if len(s.pending) >= s.maxPending {
		s.pendingMu.Unlock()
		return false
	}
	// an inline fetch with nowhere to deliver its result is wasted
	if s.inline && len(s.results) == cap(s.results) {
		s.pendingMu.Unlock()
		return false
	}
	s.pending[job.Key] = struct{}{}

	if s.inline {
		s.pendingMu.Unlock()
		return s.runInline(job)
	}

	select {
	case s.jobs <- job:
		s.pendingMu.Unlock()
		return true
	default:
		// queue full: rollback
		delete(s.pending, job.Key)
		s.pendingMu.Unlock()
		return false
	}
}

func (s *Streamer) runInline(job Job) bool {
	res := s.fetch(job)
	s.done(job.Key)

	select {
	case s.results <- res:
		return true
	default:
		s.log.WithField("tile", job.Key).Warn("result queue full, dropping inline fetch")
		return false
	}
}

func (s *Streamer) worker() {
	defer s.wg.Done()

	for {
		select {
		case job, ok := <-s.jobs:
			if !ok {
				return
			}
			res := s.fetch(job)
			s.done(job.Key)

			select {
			case s.results <- res:
			case <-s.ctx.Done():
				return
			}

		case <-s.ctx.Done():
			return
		}
	}
}

func (s *Streamer) fetch(job Job) Result {
	res := Result{Key: job.Key, Generation: job.Generation}
	if err := job.Ctx.Err(); err != nil {
		res.Err = err
		return res
	}
	tile, err := s.provider.Fetch(job.Ctx, job.Key)
	if err != nil {
		res.Err = errors.Wrapf(err, "fetch %v", job.Key)
		return res
	}
	if tile == nil {
		res.Err = errors.Errorf("fetch %v: provider returned no tile", job.Key)
		return res
	}
	res.Tile = tile
	return res
}

func (s *Streamer) done(key TileKey) {
	s.pendingMu.Lock()
	delete(s.pending, key)
	s.pendingMu.Unlock()
}

// Close stops the workers. Results not yet drained are dropped.
func (s *Streamer) Close() {
	s.pendingMu.Lock()
	if s.closed {
		s.pendingMu.Unlock()
		return
	}
	s.closed = true
	s.pendingMu.Unlock()

	s.cancel()
	close(s.jobs)
	s.wg.Wait()
}
