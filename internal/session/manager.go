// Package session runs multi-turn conversations whose history survives
// between stateless webhook invocations.
package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/xaenox/relaybot/internal/classifier"
	"github.com/xaenox/relaybot/internal/llm"
	"github.com/xaenox/relaybot/internal/metrics"
	"github.com/xaenox/relaybot/internal/models"
	"github.com/xaenox/relaybot/internal/storage"
	"go.uber.org/zap"
)

// ErrTransient marks failures of the model endpoint or history store. The
// caller should fail the webhook so the platform redelivers.
var ErrTransient = errors.New("session: transient dependency failure")

// Recorder emits the structured log record for an exchange.
type Recorder interface {
	Record(ctx context.Context, userID, prompt, reply, keyword string) error
}

// Config holds the fixed conversation setup sent with every request.
type Config struct {
	Preamble      string
	Examples      []models.Example
	MetadataLabel string
	PolicyNotice  string
	Params        llm.GenerationParams
}

// Manager decides whether a thread is new or continuing, talks to the
// model and persists the updated history.
type Manager struct {
	store     storage.HistoryStore
	model     llm.ChatModel
	extractor classifier.Extractor
	recorder  Recorder
	cfg       Config
	locks     *threadLocks
	metrics   *metrics.RelayMetrics
	logger    *zap.Logger
}

func NewManager(
	store storage.HistoryStore,
	model llm.ChatModel,
	extractor classifier.Extractor,
	recorder Recorder,
	cfg Config,
	m *metrics.RelayMetrics,
	logger *zap.Logger,
) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		store:     store,
		model:     model,
		extractor: extractor,
		recorder:  recorder,
		cfg:       cfg,
		locks:     newThreadLocks(),
		metrics:   m,
		logger:    logger,
	}
}

// Handle answers prompt within threadID.
//
// A blocked or empty model response is replaced by the policy notice. In
// that case only the user turn is appended to history; the notice and any
// discarded model text are never persisted. The history is written once per
// call, with the version read at load time, so a concurrent writer from
// another process surfaces as storage.ErrConflict.
//
// New threads additionally get a keyword and a log record. Failures in
// that step are logged and do not fail the call, since the exchange is
// already persisted.
func (m *Manager) Handle(ctx context.Context, threadID, userID, channelID, prompt string) (models.Exchange, error) {
	start := time.Now()
	unlock := m.locks.Lock(threadID)
	defer unlock()

	history, err := m.store.Load(ctx, threadID)
	if err != nil {
		return models.Exchange{}, fmt.Errorf("%w: load history %s: %w", ErrTransient, threadID, err)
	}

	isNew := history == nil
	if isNew {
		history = &models.ThreadHistory{
			FormatVersion: models.HistoryFormatVersion,
			Metadata:      m.cfg.MetadataLabel,
		}
	}

	resp, err := m.model.Chat(ctx, llm.ChatRequest{
		Preamble: m.cfg.Preamble,
		Examples: m.cfg.Examples,
		History:  history.Turns,
		Message:  prompt,
		Params:   m.cfg.Params,
	})
	if err != nil {
		return models.Exchange{}, fmt.Errorf("%w: chat %s: %w", ErrTransient, threadID, err)
	}

	reply, accepted := llm.Classify(resp, m.cfg.PolicyNotice)
	history.Append(models.Turn{Role: models.RoleUser, Text: prompt})
	if accepted {
		history.Append(models.Turn{Role: models.RoleModel, Text: resp.Text})
	}

	if _, err := m.store.Save(ctx, threadID, history, history.Version); err != nil {
		return models.Exchange{}, fmt.Errorf("%w: save history %s: %w", ErrTransient, threadID, err)
	}

	m.metrics.ObserveExchange(isNew, accepted)
	m.logger.Info("Handled thread message",
		zap.String("thread_id", threadID),
		zap.String("channel_id", channelID),
		zap.Bool("new_thread", isNew),
		zap.Bool("blocked", !accepted),
		zap.Int("turns", len(history.Turns)))

	exchange := models.Exchange{
		ThreadID:    threadID,
		UserID:      userID,
		ChannelID:   channelID,
		Prompt:      prompt,
		Reply:       reply,
		IsNewThread: isNew,
		Blocked:     !accepted,
	}

	if isNew {
		m.recordNewThread(ctx, exchange)
	}
	m.metrics.ObserveHandleLatency("threaded", time.Since(start).Seconds())
	return exchange, nil
}

func (m *Manager) recordNewThread(ctx context.Context, ex models.Exchange) {
	keyword, err := m.extractor.Extract(ctx, ex.Prompt)
	if err != nil {
		m.metrics.ObserveLogFailure()
		m.logger.Error("Failed to extract keyword",
			zap.Error(err),
			zap.String("thread_id", ex.ThreadID))
		keyword = classifier.FallbackKeyword(ex.Prompt)
	}

	if err := m.recorder.Record(ctx, ex.UserID, ex.Prompt, ex.Reply, keyword); err != nil {
		m.metrics.ObserveLogFailure()
		m.logger.Error("Failed to record exchange",
			zap.Error(err),
			zap.String("thread_id", ex.ThreadID),
			zap.String("user_id", ex.UserID))
	}
}
