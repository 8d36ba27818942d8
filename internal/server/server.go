package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/slack-go/slack"
	"github.com/slack-go/slack/slackevents"
	"github.com/xaenox/relaybot/internal/models"
	"go.uber.org/zap"
)

// maxBodyBytes bounds the size of an accepted webhook payload.
const maxBodyBytes = 1 << 20

// EventHandler answers one inbound message.
type EventHandler interface {
	HandleEvent(ctx context.Context, event models.InboundEvent) error
}

type Config struct {
	SigningSecret string
	Handler       EventHandler
	// Gatherer backs /metrics; nil disables the endpoint.
	Gatherer prometheus.Gatherer
	Logger   *zap.Logger
}

type Server struct {
	cfg    Config
	logger *zap.Logger
}

func New(cfg Config) (*Server, error) {
	if cfg.SigningSecret == "" {
		return nil, errors.New("server: signing secret is required")
	}
	if cfg.Handler == nil {
		return nil, errors.New("server: event handler is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Server{cfg: cfg, logger: cfg.Logger}, nil
}

// Router returns the HTTP routes served by the relay.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(RequestLogger(s.logger))
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	if s.cfg.Gatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(s.cfg.Gatherer, promhttp.HandlerOpts{}))
	}
	r.Post("/slack/events", s.handleEvents)
	return r
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		http.Error(w, "unreadable body", http.StatusBadRequest)
		return
	}

	verifier, err := slack.NewSecretsVerifier(r.Header, s.cfg.SigningSecret)
	if err != nil {
		s.logger.Warn("Rejected unsigned request", zap.Error(err))
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	if _, err := verifier.Write(body); err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	if err := verifier.Ensure(); err != nil {
		s.logger.Warn("Rejected request with bad signature", zap.Error(err))
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	apiEvent, err := slackevents.ParseEvent(json.RawMessage(body), slackevents.OptionNoVerifyToken())
	if err != nil {
		s.logger.Warn("Failed to parse event payload", zap.Error(err))
		http.Error(w, "bad payload", http.StatusBadRequest)
		return
	}

	switch apiEvent.Type {
	case slackevents.URLVerification:
		var challenge slackevents.ChallengeResponse
		if err := json.Unmarshal(body, &challenge); err != nil {
			http.Error(w, "bad payload", http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "text/plain")
		_, _ = w.Write([]byte(challenge.Challenge))
		return
	case slackevents.CallbackEvent:
	default:
		w.WriteHeader(http.StatusOK)
		return
	}

	event, ok := toInboundEvent(apiEvent.InnerEvent)
	if !ok {
		w.WriteHeader(http.StatusOK)
		return
	}
	if retry := r.Header.Get("X-Slack-Retry-Num"); retry != "" {
		s.logger.Info("Redelivered event",
			zap.String("retry", retry),
			zap.String("reason", r.Header.Get("X-Slack-Retry-Reason")),
			zap.String("ts", event.TS))
	}

	if err := s.cfg.Handler.HandleEvent(r.Context(), event); err != nil {
		http.Error(w, "temporarily unavailable", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func toInboundEvent(inner slackevents.EventsAPIInnerEvent) (models.InboundEvent, bool) {
	switch ev := inner.Data.(type) {
	case *slackevents.MessageEvent:
		return models.InboundEvent{
			Channel:  ev.Channel,
			User:     ev.User,
			Text:     ev.Text,
			TS:       ev.TimeStamp,
			ThreadTS: ev.ThreadTimeStamp,
			BotID:    ev.BotID,
			SubType:  ev.SubType,
		}, true
	case *slackevents.AppMentionEvent:
		return models.InboundEvent{
			Channel:  ev.Channel,
			User:     ev.User,
			Text:     ev.Text,
			TS:       ev.TimeStamp,
			ThreadTS: ev.ThreadTimeStamp,
			BotID:    ev.BotID,
		}, true
	}
	return models.InboundEvent{}, false
}
