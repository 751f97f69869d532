// Package buffer decides, per conversation, whether a just-completed round
// is uploaded immediately or accumulated until the configured number of
// rounds is reached.
//
// The controller is a two-state machine per conversation: Accumulating while
// buffered rounds < threshold, Flushing once rounds >= threshold, then back
// to Accumulating with an empty buffer. Every buffered turn lives in the
// durable store; there is no shadow in-memory buffer.
package buffer

import (
	"context"

	"go.uber.org/zap"

	"github.com/BaSui01/memflow/store"
	"github.com/BaSui01/memflow/types"
)

// Submitter receives the ordered batch produced by a flush.
type Submitter interface {
	Submit(batch []types.Message, userID, conversationID string)
}

// ThresholdSource provides the current flush threshold in rounds. It is read
// once per upload decision, so operator changes apply to the next completed
// round without restart.
type ThresholdSource interface {
	Get() int
}

// Metrics receives buffering counters. Satisfied by metrics.Collector.
type Metrics interface {
	RecordRoundBuffered()
	RecordRoundDiscarded()
	RecordFlush(turns int)
}

// Controller buffers completed rounds and flushes them in batches.
type Controller struct {
	store      store.TurnStore
	dispatcher Submitter
	threshold  ThresholdSource
	metrics    Metrics
	logger     *zap.Logger
}

// NewController creates a buffer controller.
func NewController(turnStore store.TurnStore, dispatcher Submitter, threshold ThresholdSource, logger *zap.Logger) *Controller {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Controller{
		store:      turnStore,
		dispatcher: dispatcher,
		threshold:  threshold,
		logger:     logger.With(zap.String("component", "buffer_controller")),
	}
}

// WithMetrics attaches a metrics sink. Nil is allowed and disables recording.
func (c *Controller) WithMetrics(m Metrics) *Controller {
	c.metrics = m
	return c
}

// RecordRound handles one completed round. It never returns an error and
// never blocks on the upload: store failures are logged and the round is
// dropped for this attempt, so the host's request handling always continues.
func (c *Controller) RecordRound(ctx context.Context, round types.Round, userID, conversationID string) {
	// A round is atomic: both sides or nothing.
	if !round.Complete() {
		c.logger.Debug("partial round discarded",
			zap.String("conversation_id", conversationID),
			zap.Bool("has_user", round.User != ""),
			zap.Bool("has_assistant", round.Assistant != ""))
		if c.metrics != nil {
			c.metrics.RecordRoundDiscarded()
		}
		return
	}

	threshold := c.threshold.Get()
	if threshold < 1 {
		threshold = 1
	}

	// threshold == 1: every round flushes on its own, so the batch can be
	// built in memory and the store skipped entirely.
	if threshold == 1 {
		if c.metrics != nil {
			c.metrics.RecordFlush(2)
		}
		c.dispatcher.Submit(round.Messages(), userID, conversationID)
		return
	}

	if err := c.store.Append(ctx, conversationID, types.RoleUser, round.User); err != nil {
		c.logger.Error("failed to buffer user turn, round dropped",
			zap.String("conversation_id", conversationID),
			zap.Error(err))
		return
	}
	if err := c.store.Append(ctx, conversationID, types.RoleAssistant, round.Assistant); err != nil {
		c.logger.Error("failed to buffer assistant turn",
			zap.String("conversation_id", conversationID),
			zap.Error(err))
		return
	}

	count, err := c.store.Count(ctx, conversationID)
	if err != nil {
		c.logger.Error("failed to count buffered turns",
			zap.String("conversation_id", conversationID),
			zap.Error(err))
		return
	}

	if c.metrics != nil {
		c.metrics.RecordRoundBuffered()
	}

	rounds := count / 2
	if rounds < int64(threshold) {
		c.logger.Debug("round buffered",
			zap.String("conversation_id", conversationID),
			zap.Int64("buffered_rounds", rounds),
			zap.Int("threshold", threshold))
		return
	}

	turns, err := c.store.Drain(ctx, conversationID)
	if err != nil {
		c.logger.Error("failed to drain conversation buffer",
			zap.String("conversation_id", conversationID),
			zap.Error(err))
		return
	}
	if len(turns) == 0 {
		return
	}

	c.logger.Info("conversation buffer flushed",
		zap.String("conversation_id", conversationID),
		zap.String("user_id", userID),
		zap.Int("turns", len(turns)))
	if c.metrics != nil {
		c.metrics.RecordFlush(len(turns))
	}
	c.dispatcher.Submit(store.Messages(turns), userID, conversationID)
}

// BufferedRounds reports how many complete rounds are currently buffered for
// the conversation. Used by the admin status endpoint.
func (c *Controller) BufferedRounds(ctx context.Context, conversationID string) (int64, error) {
	count, err := c.store.Count(ctx, conversationID)
	if err != nil {
		return 0, err
	}
	return count / 2, nil
}
