package maintenance

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/charlesng35/handoff/pkg/logger"
)

const (
	defaultSweepSpec  = "@every 30s"
	defaultTypingSpec = "@every 5s"
	defaultTypingTTL  = 10 * time.Second
	defaultPruneSpec  = "@every 1m"
)

// Relay is the subset of the relay lifecycle manager the cleaner drives.
type Relay interface {
	Sweep() int
	ExpireTyping(ttl time.Duration) int
}

// Pruner drops expired entries from an auxiliary in-memory store, such as rate limit counters.
type Pruner interface {
	Prune() int
}

// Cleaner runs periodic relay housekeeping. It deregisters sessions whose channel failed a
// delivery and clears typing flags that outlived their TTL. Registered pruners run on their
// own schedule.
type Cleaner struct {
	relay     Relay
	cron      *cron.Cron
	log       *zap.Logger
	typingTTL time.Duration
	pruners   []namedPruner

	sweepSchedule  string
	typingSchedule string
	pruneSchedule  string
}

type namedPruner struct {
	name string
	p    Pruner
}

// Option customises the Cleaner.
type Option func(*Cleaner)

// WithCron injects a preconfigured cron instance, primarily for testing.
func WithCron(c *cron.Cron) Option {
	return func(cleaner *Cleaner) {
		if c != nil {
			cleaner.cron = c
		}
	}
}

// WithSweepSchedule overrides the cron specification for the stale session sweep.
func WithSweepSchedule(spec string) Option {
	return func(cleaner *Cleaner) {
		if spec != "" {
			cleaner.sweepSchedule = spec
		}
	}
}

// WithTypingSchedule overrides the cron specification for typing expiry.
func WithTypingSchedule(spec string) Option {
	return func(cleaner *Cleaner) {
		if spec != "" {
			cleaner.typingSchedule = spec
		}
	}
}

// WithTypingTTL sets how long a typing flag may stand without being refreshed.
func WithTypingTTL(ttl time.Duration) Option {
	return func(cleaner *Cleaner) {
		if ttl > 0 {
			cleaner.typingTTL = ttl
		}
	}
}

// WithPruner adds a pruning job. The name appears in logs and errors.
func WithPruner(name string, p Pruner) Option {
	return func(cleaner *Cleaner) {
		if p != nil {
			cleaner.pruners = append(cleaner.pruners, namedPruner{name: name, p: p})
		}
	}
}

// WithPruneSchedule overrides the cron specification shared by the pruning jobs.
func WithPruneSchedule(spec string) Option {
	return func(cleaner *Cleaner) {
		if spec != "" {
			cleaner.pruneSchedule = spec
		}
	}
}

// NewCleaner constructs a Cleaner with sensible defaults. A nil relay disables every job.
func NewCleaner(relay Relay, opts ...Option) *Cleaner {
	cleaner := &Cleaner{
		relay:          relay,
		typingTTL:      defaultTypingTTL,
		sweepSchedule:  defaultSweepSpec,
		typingSchedule: defaultTypingSpec,
		pruneSchedule:  defaultPruneSpec,
		log:            logger.WithModule("maintenance"),
	}

	for _, opt := range opts {
		opt(cleaner)
	}

	if cleaner.cron == nil {
		cleaner.cron = cron.New(cron.WithLogger(cron.DiscardLogger))
	}
	return cleaner
}

// Start registers the jobs with the cron scheduler and launches it.
func (c *Cleaner) Start() error {
	if c.relay == nil {
		return nil
	}

	if _, err := c.cron.AddFunc(c.sweepSchedule, func() { c.sweep() }); err != nil {
		return fmt.Errorf("maintenance: schedule sweep: %w", err)
	}
	if _, err := c.cron.AddFunc(c.typingSchedule, func() { c.expireTyping() }); err != nil {
		return fmt.Errorf("maintenance: schedule typing expiry: %w", err)
	}
	for _, np := range c.pruners {
		if _, err := c.cron.AddFunc(c.pruneSchedule, func() { c.prune(np) }); err != nil {
			return fmt.Errorf("maintenance: schedule prune %s: %w", np.name, err)
		}
	}

	c.cron.Start()
	return nil
}

// Stop halts the underlying scheduler; the returned context is done once running jobs finish.
func (c *Cleaner) Stop() context.Context {
	if c.cron == nil {
		return context.Background()
	}
	return c.cron.Stop()
}

// RunOnce executes every job sequentially, stopping early when ctx is cancelled.
func (c *Cleaner) RunOnce(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if c.relay == nil {
		return nil
	}

	type job struct {
		name string
		run  func() int
	}
	jobs := []job{
		{name: "sweep", run: c.sweep},
		{name: "typing", run: c.expireTyping},
	}
	for _, np := range c.pruners {
		jobs = append(jobs, job{name: "prune " + np.name, run: func() int { return c.prune(np) }})
	}

	var errs error
	for _, job := range jobs {
		if err := ctx.Err(); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("maintenance: %s: %w", job.name, err))
			continue
		}
		job.run()
	}
	return errs
}

func (c *Cleaner) sweep() int {
	swept := c.relay.Sweep()
	if swept > 0 {
		c.log.Debug("stale sessions swept", zap.Int("count", swept))
	}
	return swept
}

func (c *Cleaner) expireTyping() int {
	expired := c.relay.ExpireTyping(c.typingTTL)
	if expired > 0 {
		c.log.Debug("typing flags expired", zap.Int("count", expired), zap.Duration("ttl", c.typingTTL))
	}
	return expired
}

func (c *Cleaner) prune(np namedPruner) int {
	dropped := np.p.Prune()
	if dropped > 0 {
		c.log.Debug("expired entries pruned", zap.String("store", np.name), zap.Int("count", dropped))
	}
	return dropped
}
