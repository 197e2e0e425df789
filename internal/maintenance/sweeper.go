// Package maintenance runs the scheduled summary sweep. A turn normally folds
// its own evicted messages, so the sweep only repairs conversations whose
// summary lags the raw log: older databases, or a window shrunk by config.
package maintenance

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"

	"github.com/instrumentgpt/instrumentgpt/internal/memory"
	"github.com/instrumentgpt/instrumentgpt/internal/schema"
)

// sweepConcurrency caps how many conversations one sweep touches at a time.
const sweepConcurrency = 4

// Locker serializes a sweep against in-flight turns on the same conversation.
type Locker interface {
	LockConversation(id string) func()
}

// Sweeper periodically rebuilds lagging summaries.
type Sweeper struct {
	store    schema.ConversationStore
	folder   *memory.SummaryBuilder
	window   int // raw message window, 2 x recent turns
	locker   Locker
	schedule string
	logger   *slog.Logger
}

func NewSweeper(store schema.ConversationStore, folder *memory.SummaryBuilder, window int, locker Locker, schedule string, logger *slog.Logger) *Sweeper {
	if logger == nil {
		logger = slog.Default()
	}
	return &Sweeper{
		store:    store,
		folder:   folder,
		window:   window,
		locker:   locker,
		schedule: schedule,
		logger:   logger,
	}
}

// Run schedules the sweep and blocks until ctx is cancelled. One sweep runs
// immediately on startup.
func (s *Sweeper) Run(ctx context.Context) error {
	c := cron.New()
	if _, err := c.AddFunc(s.schedule, func() {
		if err := s.SweepOnce(ctx); err != nil {
			s.logger.Error("summary sweep failed", "err", err)
		}
	}); err != nil {
		return fmt.Errorf("maintenance: bad schedule %q: %w", s.schedule, err)
	}

	if err := s.SweepOnce(ctx); err != nil {
		s.logger.Error("startup sweep failed", "err", err)
	}

	c.Start()
	<-ctx.Done()
	<-c.Stop().Done()
	return ctx.Err()
}

// SweepOnce checks every conversation and rewrites any lagging summary.
func (s *Sweeper) SweepOnce(ctx context.Context) error {
	ids, err := s.store.ConversationIDs()
	if err != nil {
		return fmt.Errorf("list conversations: %w", err)
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(sweepConcurrency)
	for _, id := range ids {
		id := id
		g.Go(func() error {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if err := s.sweepConversation(id); err != nil {
				s.logger.Warn("sweep conversation", "conversation", id, "err", err)
			}
			return nil
		})
	}
	return g.Wait()
}

// sweepConversation rebuilds the conversation's summary from the retained raw
// log. The rebuild matches what turn-by-turn folding produces, so an
// up-to-date conversation is a no-op write-wise.
func (s *Sweeper) sweepConversation(id string) error {
	if s.locker != nil {
		unlock := s.locker.LockConversation(id)
		defer unlock()
	}

	messages, summary, stateJSON, err := s.store.Load(id)
	if err != nil {
		return err
	}
	if len(messages) <= s.window {
		return nil
	}

	rebuilt := s.folder.Fold("", messages[:len(messages)-s.window])
	if rebuilt == summary {
		return nil
	}

	s.logger.Info("rebuilding lagging summary",
		"conversation", id, "messages", len(messages), "window", s.window)
	return s.store.SaveMemory(id, rebuilt, stateJSON)
}
