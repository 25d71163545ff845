package telegram

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alejandrodnm/callbot/internal/domain"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSender struct {
	mu       sync.Mutex
	failures int
	sent     []tgbotapi.MessageConfig
	attempts int
}

func (s *fakeSender) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attempts++
	if s.failures > 0 {
		s.failures--
		return tgbotapi.Message{}, errors.New("telegram down")
	}
	s.sent = append(s.sent, c.(tgbotapi.MessageConfig))
	return tgbotapi.Message{}, nil
}

func (s *fakeSender) messages() []tgbotapi.MessageConfig {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]tgbotapi.MessageConfig(nil), s.sent...)
}

type recordingHandler struct {
	mu   sync.Mutex
	reqs []domain.Request
}

func (h *recordingHandler) Handle(ctx context.Context, req domain.Request) string {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.reqs = append(h.reqs, req)
	return "ok " + req.Command
}

func commandMsg(chatID int64, text string, cmdLen int) *tgbotapi.Message {
	return &tgbotapi.Message{
		MessageID: 99,
		Text:      text,
		Chat:      &tgbotapi.Chat{ID: chatID},
		From:      &tgbotapi.User{ID: 7, UserName: "alice"},
		Entities:  []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: cmdLen}},
	}
}

func textMsg(chatID int64, text string) *tgbotapi.Message {
	return &tgbotapi.Message{
		MessageID: 100,
		Text:      text,
		Chat:      &tgbotapi.Chat{ID: chatID},
		From:      &tgbotapi.User{ID: 8, FirstName: "Bob", LastName: "Builder"},
	}
}

func TestParseCommand(t *testing.T) {
	cmd, args, ok := parseCommand(commandMsg(1, "/make btc", 5), "!")
	require.True(t, ok)
	assert.Equal(t, "make", cmd)
	assert.Equal(t, []string{"btc"}, args)

	cmd, args, ok = parseCommand(commandMsg(1, "/Show@callbot ven all usd", 13), "!")
	require.True(t, ok)
	assert.Equal(t, "show", cmd)
	assert.Equal(t, []string{"ven", "all", "usd"}, args)

	cmd, args, ok = parseCommand(textMsg(1, "!list  closed"), "!")
	require.True(t, ok)
	assert.Equal(t, "list", cmd)
	assert.Equal(t, []string{"closed"}, args)

	_, _, ok = parseCommand(textMsg(1, "hello there"), "!")
	assert.False(t, ok)

	_, _, ok = parseCommand(textMsg(1, "!"), "!")
	assert.False(t, ok)

	_, _, ok = parseCommand(textMsg(1, "!list"), "")
	assert.False(t, ok)
}

func TestCallerOf(t *testing.T) {
	assert.Equal(t, domain.Caller{ID: "7", Name: "alice"}, callerOf(&tgbotapi.User{ID: 7, UserName: "alice"}))
	assert.Equal(t, domain.Caller{ID: "8", Name: "Bob Builder"}, callerOf(&tgbotapi.User{ID: 8, FirstName: "Bob", LastName: "Builder"}))
}

func TestServe_DispatchesAndReplies(t *testing.T) {
	out := &fakeSender{}
	h := &recordingHandler{}
	b := newBot(out, h, Config{Prefix: "!", Workers: 2, RetryWait: time.Millisecond})

	updates := make(chan tgbotapi.Update, 3)
	updates <- tgbotapi.Update{Message: commandMsg(5, "/make btc", 5)}
	updates <- tgbotapi.Update{Message: textMsg(5, "just chatting")}
	updates <- tgbotapi.Update{Message: textMsg(6, "!best closed")}
	close(updates)

	b.serve(context.Background(), updates)

	sent := out.messages()
	require.Len(t, sent, 2)
	for _, m := range sent {
		assert.Equal(t, tgbotapi.ModeHTML, m.ParseMode)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	require.Len(t, h.reqs, 2)
	byCmd := map[string]domain.Request{}
	for _, r := range h.reqs {
		byCmd[r.Command] = r
	}
	assert.Equal(t, "5", byCmd["make"].ChannelID)
	assert.Equal(t, "alice", byCmd["make"].Caller.Name)
	assert.Equal(t, []string{"closed"}, byCmd["best"].Args)
}

func TestServe_AllowList(t *testing.T) {
	out := &fakeSender{}
	h := &recordingHandler{}
	b := newBot(out, h, Config{AllowedChats: []int64{5}})

	updates := make(chan tgbotapi.Update, 2)
	updates <- tgbotapi.Update{Message: commandMsg(5, "/list", 5)}
	updates <- tgbotapi.Update{Message: commandMsg(6, "/list", 5)}
	close(updates)

	b.serve(context.Background(), updates)

	sent := out.messages()
	require.Len(t, sent, 1)
	assert.Equal(t, int64(5), sent[0].ChatID)
	assert.Equal(t, 99, sent[0].ReplyToMessageID)
}

func TestSend_Retries(t *testing.T) {
	out := &fakeSender{failures: 2}
	b := newBot(out, &recordingHandler{}, Config{MaxRetries: 3, RetryWait: time.Millisecond})

	err := b.send(context.Background(), 5, 1, "hola")
	require.NoError(t, err)
	assert.Equal(t, 3, out.attempts)
	assert.Len(t, out.messages(), 1)
}

func TestSend_GivesUp(t *testing.T) {
	out := &fakeSender{failures: 10}
	b := newBot(out, &recordingHandler{}, Config{MaxRetries: 2, RetryWait: time.Millisecond})

	err := b.send(context.Background(), 5, 1, "hola")
	assert.Error(t, err)
	assert.Equal(t, 2, out.attempts)
}
