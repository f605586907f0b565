package activity

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

// Config sizes the publishing worker pool.
type Config struct {
	Workers        int
	Buffer         int
	PublishTimeout time.Duration
	HandoffTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.Workers <= 0 {
		c.Workers = 2
	}
	if c.Buffer <= 0 {
		c.Buffer = 256
	}
	if c.PublishTimeout <= 0 {
		c.PublishTimeout = 30 * time.Second
	}
	if c.HandoffTimeout < 0 {
		c.HandoffTimeout = 0
	}
	return c
}

// Feed hands notices to a pool of workers that publish them. When the buffer
// stays full past the hand-off timeout the notice is published inline.
type Feed struct {
	pub      Publisher
	cfg      Config
	logger   *log.Logger
	jobs     chan Notice
	workerWG sync.WaitGroup
	now      func() time.Time
}

// NewFeed starts the worker pool.
func NewFeed(pub Publisher, cfg Config, logger *log.Logger) *Feed {
	if pub == nil {
		panic("activity.NewFeed: publisher is nil")
	}
	if logger == nil {
		logger = log.StandardLogger()
	}
	cfg = cfg.withDefaults()
	f := &Feed{
		pub:    pub,
		cfg:    cfg,
		logger: logger,
		jobs:   make(chan Notice, cfg.Buffer),
		now:    time.Now,
	}
	for i := 0; i < cfg.Workers; i++ {
		f.workerWG.Add(1)
		go f.worker(i)
	}
	logger.Infof("activity feed started, workers: %d, buffer: %d, timeout: %v, handoff: %v", cfg.Workers, cfg.Buffer, cfg.PublishTimeout, cfg.HandoffTimeout)
	return f
}

func (f *Feed) worker(id int) {
	defer f.workerWG.Done()
	for n := range f.jobs {
		f.publish(n, id)
	}
}

func (f *Feed) publish(n Notice, worker int) {
	ctx, cancel := context.WithTimeout(context.Background(), f.cfg.PublishTimeout)
	err := f.pub.Publish(ctx, []Notice{n})
	cancel()
	if err != nil {
		f.logger.WithError(err).WithFields(log.Fields{
			"type":   n.Type,
			"task":   n.TaskID,
			"worker": worker,
		}).Error("activity publish failed")
	}
}

// Notify queues the notice, stamping its id and time when unset.
func (f *Feed) Notify(n Notice) {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	if n.Time == 0 {
		n.Time = f.now().UnixNano()
	}
	if f.tryEnqueue(n) {
		return
	}
	if f.jobs == nil {
		f.logger.WithField("type", n.Type).Warn("activity feed closed; notice dropped")
		return
	}
	f.logger.Warn("activity buffer saturated; publishing inline")
	f.publish(n, -1)
}

// Close stops accepting notices and waits for queued ones to be published.
func (f *Feed) Close() {
	if f.jobs == nil {
		return
	}
	close(f.jobs)
	f.workerWG.Wait()
	f.jobs = nil
}

// tryEnqueue hands n to a worker, waiting up to HandoffTimeout when the
// buffer is full.
func (f *Feed) tryEnqueue(n Notice) bool {
	if f.jobs == nil {
		return false
	}
	if f.send(n, nil) {
		return true
	}
	if f.cfg.HandoffTimeout <= 0 {
		return false
	}
	timer := time.NewTimer(f.cfg.HandoffTimeout)
	defer timer.Stop()
	return f.send(n, timer.C)
}

// send queues n without blocking, or until wait fires when wait is non-nil.
// A Close racing with the send counts as not sent.
func (f *Feed) send(n Notice, wait <-chan time.Time) (sent bool) {
	defer func() {
		if recover() != nil {
			sent = false
		}
	}()
	if wait == nil {
		select {
		case f.jobs <- n:
			return true
		default:
			return false
		}
	}
	select {
	case f.jobs <- n:
		return true
	case <-wait:
		return false
	}
}
