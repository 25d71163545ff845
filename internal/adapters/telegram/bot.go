// Package telegram conecta el router de comandos con la Bot API de Telegram.
//
// Recibe updates por long polling, atiende cada mensaje en su propia
// goroutine (con un tope de workers) y responde en HTML con reintentos.
package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/alejandrodnm/callbot/internal/domain"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Handler resuelve un comando y devuelve la respuesta.
type Handler interface {
	Handle(ctx context.Context, req domain.Request) string
}

// sender es la parte de *tgbotapi.BotAPI que usamos para responder.
type sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Config controla el transporte.
type Config struct {
	Prefix       string  // prefijo de texto además de /comando, p.ej. "!"
	AllowedChats []int64 // vacío = todos
	Workers      int
	MaxRetries   int
	RetryWait    time.Duration
	PollTimeout  int // segundos de long polling
}

// Bot es el bucle de updates.
type Bot struct {
	api     *tgbotapi.BotAPI
	out     sender
	handler Handler
	cfg     Config
	allowed map[int64]bool
	sem     chan struct{}
	wg      sync.WaitGroup
}

// New conecta con la Bot API.
func New(token string, debug bool, handler Handler, cfg Config) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("telegram.New: %w", err)
	}
	api.Debug = debug
	slog.Info("telegram authorized", "bot", api.Self.UserName)

	b := newBot(api, handler, cfg)
	b.api = api
	return b, nil
}

func newBot(out sender, handler Handler, cfg Config) *Bot {
	if cfg.Workers <= 0 {
		cfg.Workers = 8
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.RetryWait <= 0 {
		cfg.RetryWait = time.Second
	}
	if cfg.PollTimeout <= 0 {
		cfg.PollTimeout = 60
	}
	allowed := make(map[int64]bool, len(cfg.AllowedChats))
	for _, id := range cfg.AllowedChats {
		allowed[id] = true
	}
	return &Bot{
		out:     out,
		handler: handler,
		cfg:     cfg,
		allowed: allowed,
		sem:     make(chan struct{}, cfg.Workers),
	}
}

// Run procesa updates hasta que ctx se cancela y espera a los comandos en curso.
func (b *Bot) Run(ctx context.Context) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = b.cfg.PollTimeout
	updates := b.api.GetUpdatesChan(u)

	go func() {
		<-ctx.Done()
		b.api.StopReceivingUpdates()
	}()

	b.serve(ctx, updates)
	return nil
}

// serve despacha updates hasta que el canal se cierra o ctx se cancela.
func (b *Bot) serve(ctx context.Context, updates <-chan tgbotapi.Update) {
	defer b.wg.Wait()
	for {
		select {
		case <-ctx.Done():
			slog.Info("telegram loop stopping, waiting for in-flight commands")
			return
		case upd, ok := <-updates:
			if !ok {
				return
			}
			if upd.Message != nil {
				b.dispatch(ctx, upd.Message)
			}
		}
	}
}

func (b *Bot) dispatch(ctx context.Context, msg *tgbotapi.Message) {
	if msg.Chat == nil || msg.From == nil {
		return
	}
	if len(b.allowed) > 0 && !b.allowed[msg.Chat.ID] {
		slog.Debug("message from chat not allowed", "chat", msg.Chat.ID)
		return
	}

	cmd, args, ok := parseCommand(msg, b.cfg.Prefix)
	if !ok {
		return
	}
	req := domain.Request{
		ChannelID: strconv.FormatInt(msg.Chat.ID, 10),
		Caller:    callerOf(msg.From),
		Command:   cmd,
		Args:      args,
	}

	select {
	case b.sem <- struct{}{}:
	case <-ctx.Done():
		return
	}
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		defer func() { <-b.sem }()

		// el comando termina aunque el proceso esté parando
		reply := b.handler.Handle(context.WithoutCancel(ctx), req)
		if reply == "" {
			return
		}
		if err := b.send(ctx, msg.Chat.ID, msg.MessageID, reply); err != nil {
			slog.Error("reply failed", "chat", msg.Chat.ID, "cmd", cmd, "err", err)
		}
	}()
}

// send responde en HTML, reintentando con espera lineal.
func (b *Bot) send(ctx context.Context, chatID int64, replyTo int, text string) error {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	msg.ReplyToMessageID = replyTo
	msg.DisableWebPagePreview = true

	var lastErr error
	for i := 0; i < b.cfg.MaxRetries; i++ {
		_, err := b.out.Send(msg)
		if err == nil {
			return nil
		}
		lastErr = err
		slog.Warn("telegram send failed", "chat", chatID, "attempt", i+1, "err", err)

		if i == b.cfg.MaxRetries-1 {
			break
		}
		select {
		case <-time.After(b.cfg.RetryWait * time.Duration(i+1)):
		case <-ctx.Done():
			return fmt.Errorf("telegram.send: %w", ctx.Err())
		}
	}
	return fmt.Errorf("telegram.send: failed after %d retries: %w", b.cfg.MaxRetries, lastErr)
}

// parseCommand acepta "/make btc", "/make@bot btc" y, con prefijo, "!make btc".
func parseCommand(msg *tgbotapi.Message, prefix string) (string, []string, bool) {
	if msg.IsCommand() {
		return strings.ToLower(msg.Command()), strings.Fields(msg.CommandArguments()), true
	}
	if prefix == "" || !strings.HasPrefix(msg.Text, prefix) {
		return "", nil, false
	}
	fields := strings.Fields(strings.TrimPrefix(msg.Text, prefix))
	if len(fields) == 0 {
		return "", nil, false
	}
	return strings.ToLower(fields[0]), fields[1:], true
}

func callerOf(u *tgbotapi.User) domain.Caller {
	name := u.UserName
	if name == "" {
		name = strings.TrimSpace(u.FirstName + " " + u.LastName)
	}
	return domain.Caller{ID: strconv.FormatInt(u.ID, 10), Name: name}
}
