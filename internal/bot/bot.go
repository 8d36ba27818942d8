package bot

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/xaenox/relaybot/internal/classifier"
	"github.com/xaenox/relaybot/internal/dedup"
	"github.com/xaenox/relaybot/internal/llm"
	"github.com/xaenox/relaybot/internal/metrics"
	"github.com/xaenox/relaybot/internal/models"
	"go.uber.org/zap"
)

// Mode selects how inbound messages are answered.
type Mode string

const (
	// ModeThreaded keeps per-thread history between messages.
	ModeThreaded Mode = "threaded"
	// ModeSingle answers every message on its own.
	ModeSingle Mode = "single"
)

// DefaultProcessingText is posted before a single-shot reply is generated.
const DefaultProcessingText = "...処理中..."

// ThreadHandler answers a message inside a persisted thread.
type ThreadHandler interface {
	Handle(ctx context.Context, threadID, userID, channelID, prompt string) (models.Exchange, error)
}

// Recorder emits the structured log record for an exchange.
type Recorder interface {
	Record(ctx context.Context, userID, prompt, reply, keyword string) error
}

// Options configures a Bot. Sessions is required in threaded mode; Model,
// Extractor and Recorder are required in single mode. Guard is optional in
// threaded mode and required in single mode.
type Options struct {
	Mode           Mode
	Messenger      Messenger
	Guard          dedup.Guard
	Sessions       ThreadHandler
	Model          llm.TextModel
	Extractor      classifier.Extractor
	Recorder       Recorder
	TextParams     llm.GenerationParams
	PolicyNotice   string
	ProcessingText string
	Metrics        *metrics.RelayMetrics
	Logger         *zap.Logger
}

type Bot struct {
	opts   Options
	logger *zap.Logger
}

func New(opts Options) (*Bot, error) {
	if opts.Messenger == nil {
		return nil, errors.New("bot: messenger is required")
	}
	switch opts.Mode {
	case ModeThreaded:
		if opts.Sessions == nil {
			return nil, errors.New("bot: threaded mode requires a session handler")
		}
	case ModeSingle:
		if opts.Guard == nil || opts.Model == nil || opts.Extractor == nil || opts.Recorder == nil {
			return nil, errors.New("bot: single mode requires guard, model, extractor and recorder")
		}
	default:
		return nil, fmt.Errorf("bot: unknown mode %q", opts.Mode)
	}
	if opts.ProcessingText == "" {
		opts.ProcessingText = DefaultProcessingText
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Bot{opts: opts, logger: opts.Logger}, nil
}

// HandleEvent answers one inbound message. Malformed, bot-authored and
// duplicate events are dropped without error. A returned error means a
// dependency failed and the platform should redeliver.
func (b *Bot) HandleEvent(ctx context.Context, event models.InboundEvent) error {
	if event.FromBot() || !event.Valid() {
		b.opts.Metrics.ObserveEvent("ignored")
		return nil
	}

	if b.opts.Guard != nil {
		isSelf := event.User == b.opts.Messenger.BotUserID()
		ok, err := b.opts.Guard.Claim(ctx, event.Channel, event.User, event.TS, isSelf)
		if err != nil {
			b.opts.Metrics.ObserveEvent("failed")
			return fmt.Errorf("bot: duplicate check: %w", err)
		}
		if !ok {
			b.opts.Metrics.ObserveEvent("duplicate")
			b.logger.Debug("Dropping duplicate or self-sent event",
				zap.String("channel_id", event.Channel),
				zap.String("ts", event.TS))
			return nil
		}
	} else if event.User == b.opts.Messenger.BotUserID() {
		b.opts.Metrics.ObserveEvent("ignored")
		return nil
	}

	var err error
	switch b.opts.Mode {
	case ModeSingle:
		err = b.handleSingle(ctx, event)
	default:
		err = b.handleThreaded(ctx, event)
	}
	if err != nil {
		if b.opts.Guard != nil {
			if rerr := b.opts.Guard.Release(ctx, event.Channel, event.User, event.TS); rerr != nil {
				b.logger.Warn("Failed to release duplicate claim", zap.Error(rerr), zap.String("ts", event.TS))
			}
		}
		b.opts.Metrics.ObserveEvent("failed")
		b.logger.Error("Failed to handle message",
			zap.Error(err),
			zap.String("channel_id", event.Channel),
			zap.String("user_id", event.User),
			zap.String("ts", event.TS))
		return err
	}
	b.opts.Metrics.ObserveEvent("handled")
	return nil
}

func (b *Bot) handleThreaded(ctx context.Context, event models.InboundEvent) error {
	threadID := event.ThreadID()
	exchange, err := b.opts.Sessions.Handle(ctx, threadID, event.User, event.Channel, event.Text)
	if err != nil {
		return err
	}
	return b.opts.Messenger.PostThreadReply(ctx, event.Channel, threadID, exchange.Reply)
}

func (b *Bot) handleSingle(ctx context.Context, event models.InboundEvent) error {
	start := time.Now()
	if err := b.opts.Messenger.PostThreadReply(ctx, event.Channel, event.TS, b.opts.ProcessingText); err != nil {
		return err
	}

	resp, err := b.opts.Model.Predict(ctx, event.Text, b.opts.TextParams)
	if err != nil {
		return fmt.Errorf("bot: predict: %w", err)
	}
	reply, accepted := llm.Classify(resp, b.opts.PolicyNotice)

	if err := b.opts.Messenger.PostThreadReply(ctx, event.Channel, event.TS, reply); err != nil {
		return err
	}

	keyword, err := b.opts.Extractor.Extract(ctx, event.Text)
	if err != nil {
		b.opts.Metrics.ObserveLogFailure()
		b.logger.Error("Failed to extract keyword", zap.Error(err), zap.String("ts", event.TS))
		keyword = classifier.FallbackKeyword(event.Text)
	}
	if err := b.opts.Recorder.Record(ctx, event.User, event.Text, reply, keyword); err != nil {
		b.opts.Metrics.ObserveLogFailure()
		b.logger.Error("Failed to record exchange", zap.Error(err), zap.String("ts", event.TS))
	}

	b.opts.Metrics.ObserveExchange(true, accepted)
	b.opts.Metrics.ObserveHandleLatency(string(ModeSingle), time.Since(start).Seconds())
	return nil
}
