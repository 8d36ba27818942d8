package bot

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xaenox/relaybot/internal/dedup"
	"github.com/xaenox/relaybot/internal/llm"
	"github.com/xaenox/relaybot/internal/models"
)

const (
	botUser = "UBOT"
	notice  = "policy notice"
)

type post struct {
	channel, threadTS, text string
}

type fakeMessenger struct {
	mu    sync.Mutex
	posts []post
	err   error
}

func (f *fakeMessenger) PostThreadReply(_ context.Context, channelID, threadTS, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.posts = append(f.posts, post{channelID, threadTS, text})
	return f.err
}

func (f *fakeMessenger) BotUserID() string { return botUser }

type stubSessions struct {
	calls []string
	reply string
	err   error
}

func (s *stubSessions) Handle(_ context.Context, threadID, userID, channelID, prompt string) (models.Exchange, error) {
	s.calls = append(s.calls, threadID)
	if s.err != nil {
		return models.Exchange{}, s.err
	}
	return models.Exchange{ThreadID: threadID, UserID: userID, ChannelID: channelID, Prompt: prompt, Reply: s.reply}, nil
}

type stubModel struct {
	resp   llm.Response
	err    error
	params []llm.GenerationParams
}

func (s *stubModel) Predict(_ context.Context, _ string, params llm.GenerationParams) (llm.Response, error) {
	s.params = append(s.params, params)
	return s.resp, s.err
}

type stubExtractor struct{ keyword string }

func (s stubExtractor) Extract(context.Context, string) (string, error) { return s.keyword, nil }

type captureRecorder struct{ replies []string }

func (c *captureRecorder) Record(_ context.Context, _, _, reply, _ string) error {
	c.replies = append(c.replies, reply)
	return nil
}

func newGuard(t *testing.T) dedup.Guard {
	t.Helper()
	g, err := dedup.NewMemoryGuard(100, time.Hour)
	require.NoError(t, err)
	return g
}

func message(ts, threadTS string) models.InboundEvent {
	return models.InboundEvent{Channel: "C1", User: "U1", Text: "hello", TS: ts, ThreadTS: threadTS}
}

func TestNewValidatesMode(t *testing.T) {
	_, err := New(Options{Mode: ModeThreaded, Messenger: &fakeMessenger{}})
	assert.Error(t, err)

	_, err = New(Options{Mode: ModeSingle, Messenger: &fakeMessenger{}})
	assert.Error(t, err)

	_, err = New(Options{Mode: "other", Messenger: &fakeMessenger{}, Sessions: &stubSessions{}})
	assert.Error(t, err)
}

func TestThreadedReplyGoesToThreadRoot(t *testing.T) {
	messenger := &fakeMessenger{}
	sessions := &stubSessions{reply: "answer"}
	b, err := New(Options{Mode: ModeThreaded, Messenger: messenger, Sessions: sessions})
	require.NoError(t, err)

	require.NoError(t, b.HandleEvent(context.Background(), message("101.0", "100.0")))
	require.NoError(t, b.HandleEvent(context.Background(), message("200.0", "")))

	assert.Equal(t, []string{"100.0", "200.0"}, sessions.calls)
	assert.Equal(t, []post{{"C1", "100.0", "answer"}, {"C1", "200.0", "answer"}}, messenger.posts)
}

func TestThreadedTransientFailureReturnsErrorWithoutReply(t *testing.T) {
	messenger := &fakeMessenger{}
	boom := errors.New("store down")
	b, err := New(Options{Mode: ModeThreaded, Messenger: messenger, Sessions: &stubSessions{err: boom}})
	require.NoError(t, err)

	err = b.HandleEvent(context.Background(), message("1.0", ""))
	assert.ErrorIs(t, err, boom)
	assert.Empty(t, messenger.posts)
}

func TestIgnoresMalformedAndBotEvents(t *testing.T) {
	messenger := &fakeMessenger{}
	sessions := &stubSessions{reply: "answer"}
	b, err := New(Options{Mode: ModeThreaded, Messenger: messenger, Sessions: sessions})
	require.NoError(t, err)
	ctx := context.Background()

	noUser := message("1.0", "")
	noUser.User = ""
	fromBot := message("2.0", "")
	fromBot.BotID = "B1"
	edited := message("3.0", "")
	edited.SubType = "message_changed"
	self := message("4.0", "")
	self.User = botUser

	for _, ev := range []models.InboundEvent{noUser, fromBot, edited, self} {
		require.NoError(t, b.HandleEvent(ctx, ev))
	}
	assert.Empty(t, sessions.calls)
	assert.Empty(t, messenger.posts)
}

func TestThreadedWithGuardDropsDuplicates(t *testing.T) {
	sessions := &stubSessions{reply: "answer"}
	b, err := New(Options{Mode: ModeThreaded, Messenger: &fakeMessenger{}, Sessions: sessions, Guard: newGuard(t)})
	require.NoError(t, err)

	require.NoError(t, b.HandleEvent(context.Background(), message("1.0", "")))
	require.NoError(t, b.HandleEvent(context.Background(), message("1.0", "")))

	assert.Len(t, sessions.calls, 1)
}

func newSingleBot(t *testing.T, model *stubModel) (*Bot, *fakeMessenger, *captureRecorder) {
	t.Helper()
	messenger := &fakeMessenger{}
	recorder := &captureRecorder{}
	b, err := New(Options{
		Mode:         ModeSingle,
		Messenger:    messenger,
		Guard:        newGuard(t),
		Model:        model,
		Extractor:    stubExtractor{keyword: "kw"},
		Recorder:     recorder,
		TextParams:   llm.DefaultTextParams(),
		PolicyNotice: notice,
	})
	require.NoError(t, err)
	return b, messenger, recorder
}

func TestSingleModeFlow(t *testing.T) {
	model := &stubModel{resp: llm.Response{Text: "# Heading\nbody"}}
	b, messenger, recorder := newSingleBot(t, model)

	require.NoError(t, b.HandleEvent(context.Background(), message("100.0", "")))

	assert.Equal(t, []post{
		{"C1", "100.0", DefaultProcessingText},
		{"C1", "100.0", "---Heading---\nbody"},
	}, messenger.posts)
	assert.Equal(t, []string{"---Heading---\nbody"}, recorder.replies)
	assert.Equal(t, []llm.GenerationParams{llm.DefaultTextParams()}, model.params)
}

func TestSingleModeBlockedPostsNotice(t *testing.T) {
	b, messenger, recorder := newSingleBot(t, &stubModel{resp: llm.Response{Blocked: true}})

	require.NoError(t, b.HandleEvent(context.Background(), message("100.0", "")))

	require.Len(t, messenger.posts, 2)
	assert.Equal(t, notice, messenger.posts[1].text)
	assert.Equal(t, []string{notice}, recorder.replies)
}

func TestSingleModeDropsRedelivery(t *testing.T) {
	model := &stubModel{resp: llm.Response{Text: "ok"}}
	b, messenger, recorder := newSingleBot(t, model)
	ctx := context.Background()

	require.NoError(t, b.HandleEvent(ctx, message("100.0", "")))
	require.NoError(t, b.HandleEvent(ctx, message("100.0", "")))

	assert.Len(t, messenger.posts, 2)
	assert.Len(t, recorder.replies, 1)
	assert.Len(t, model.params, 1)
}

func TestSingleModeModelFailure(t *testing.T) {
	b, messenger, recorder := newSingleBot(t, &stubModel{err: errors.New("503")})

	err := b.HandleEvent(context.Background(), message("100.0", ""))
	assert.Error(t, err)
	assert.Len(t, messenger.posts, 1, "only the processing notice was posted")
	assert.Empty(t, recorder.replies)
}

func TestFailedEventIsHandledOnRedelivery(t *testing.T) {
	model := &stubModel{err: errors.New("503")}
	b, _, recorder := newSingleBot(t, model)
	ctx := context.Background()

	require.Error(t, b.HandleEvent(ctx, message("100.0", "")))

	model.err = nil
	model.resp = llm.Response{Text: "ok"}
	require.NoError(t, b.HandleEvent(ctx, message("100.0", "")))
	assert.Equal(t, []string{"ok"}, recorder.replies)
}
