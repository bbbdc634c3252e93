package bot

import (
	"context"
	"time"

	"github.com/Fi44er/coin_exchange/internal/models"
	"github.com/Fi44er/coin_exchange/internal/service"
	"github.com/Fi44er/coin_exchange/utils"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// API is the part of tgbotapi.BotAPI the bot uses.
type API interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

// Orders is what the admin commands read.
type Orders interface {
	ListPending(ctx context.Context) ([]*models.Order, error)
	Reconcile(ctx context.Context) ([]service.StuckOrder, error)
}

// PollTimeout is how long one getUpdates long poll may hang. HTTP clients
// handed to the bot must allow at least this much.
const PollTimeout = 30 * time.Second

// alertQueueSize bounds the alerts waiting for delivery. Alerts raised while
// the queue is full are dropped.
const alertQueueSize = 64

// Bot pushes operator alerts to one admin chat and answers a few read-only
// commands there. Messages from any other chat are ignored.
//
// Alerts are queued and delivered by Start, so callers never wait on Telegram.
type Bot struct {
	api    API
	orders Orders
	chatID int64
	alerts chan string
	logger *utils.Logger
}

var _ service.Alerter = (*Bot)(nil)

func NewBot(api API, orders Orders, chatID int64, logger *utils.Logger) *Bot {
	return &Bot{
		api:    api,
		orders: orders,
		chatID: chatID,
		alerts: make(chan string, alertQueueSize),
		logger: logger,
	}
}

// Start delivers queued alerts and consumes updates until ctx is done.
func (b *Bot) Start(ctx context.Context) {
	b.logger.Info("🤖 Starting admin bot...")
	go b.deliverAlerts(ctx)

	u := tgbotapi.NewUpdate(0)
	u.Timeout = int(PollTimeout / time.Second)
	updates := b.api.GetUpdatesChan(u)

	go func() {
		<-ctx.Done()
		b.api.StopReceivingUpdates()
	}()

	for update := range updates {
		b.HandleUpdate(ctx, update)
	}
	b.logger.Info("🤖 Admin bot stopped")
}

func (b *Bot) enqueueAlert(text string) {
	select {
	case b.alerts <- text:
	default:
		b.logger.Warn("⚠️ Alert queue is full, dropping alert")
	}
}

func (b *Bot) deliverAlerts(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case text := <-b.alerts:
			b.sendMessage(b.chatID, text, nil)
		}
	}
}

func (b *Bot) sendMessage(chatID int64, text string, replyMarkup any) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeMarkdown
	if replyMarkup != nil {
		msg.ReplyMarkup = replyMarkup
	}
	if _, err := b.api.Send(msg); err != nil {
		b.logger.Errorf("Failed to send message: %v", err)
	}
}

func (b *Bot) answerCallback(callbackID, text string) {
	if _, err := b.api.Request(tgbotapi.NewCallback(callbackID, text)); err != nil {
		b.logger.Errorf("Failed to answer callback: %v", err)
	}
}

func (b *Bot) isAdminChat(chatID int64) bool {
	return chatID == b.chatID
}
