package bot

import (
	"context"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

const pageCallbackPrefix = "orders_page:"

func (b *Bot) HandleUpdate(ctx context.Context, update tgbotapi.Update) {
	switch {
	case update.CallbackQuery != nil:
		b.handleCallbackQuery(ctx, update.CallbackQuery)
	case update.Message != nil:
		b.handleMessage(ctx, update.Message)
	}
}

func (b *Bot) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	chatID := msg.Chat.ID
	if !b.isAdminChat(chatID) {
		b.logger.Debugf("Ignoring message from chat %d", chatID)
		return
	}

	switch msg.Command() {
	case "start", "help":
		b.sendMessage(chatID, helpText, nil)
	case "pending":
		b.handlePending(ctx, chatID, 0, 0)
	case "stuck":
		b.handleStuck(ctx, chatID)
	default:
		b.sendMessage(chatID, "Unknown command. Try /help.", nil)
	}
}

const helpText = "*Admin alerts*\n\n" +
	"/pending - pending orders, oldest first\n" +
	"/stuck - settlements waiting for reconciliation"

// handlePending sends the page, or edits messageID in place when it is set.
func (b *Bot) handlePending(ctx context.Context, chatID int64, messageID int, page int) {
	orders, err := b.orders.ListPending(ctx)
	if err != nil {
		b.logger.Errorf("Failed to list pending orders: %v", err)
		b.sendMessage(chatID, "❌ Could not load pending orders.", nil)
		return
	}
	if len(orders) == 0 {
		b.sendMessage(chatID, "ℹ️ No pending orders.", nil)
		return
	}

	text, markup := renderOrdersPage(orders, page)
	if messageID == 0 {
		b.sendMessage(chatID, text, markup)
		return
	}

	edit := tgbotapi.NewEditMessageText(chatID, messageID, text)
	edit.ParseMode = tgbotapi.ModeMarkdown
	edit.ReplyMarkup = markup
	if _, err := b.api.Send(edit); err != nil {
		b.logger.Errorf("Failed to edit orders page: %v", err)
	}
}

func (b *Bot) handleStuck(ctx context.Context, chatID int64) {
	stuck, err := b.orders.Reconcile(ctx)
	if err != nil {
		b.logger.Errorf("Failed to reconcile: %v", err)
		b.sendMessage(chatID, "❌ Could not load stuck settlements.", nil)
		return
	}
	if len(stuck) == 0 {
		b.sendMessage(chatID, "✅ No stuck settlements.", nil)
		return
	}
	b.sendMessage(chatID, renderStuck(stuck), nil)
}

func (b *Bot) handleCallbackQuery(ctx context.Context, callback *tgbotapi.CallbackQuery) {
	if callback.Message == nil || !b.isAdminChat(callback.Message.Chat.ID) {
		b.answerCallback(callback.ID, "Admins only.")
		return
	}

	if strings.HasPrefix(callback.Data, pageCallbackPrefix) {
		page, err := strconv.Atoi(strings.TrimPrefix(callback.Data, pageCallbackPrefix))
		if err != nil || page < 0 {
			b.logger.Errorf("Invalid page in callback: %s", callback.Data)
			b.answerCallback(callback.ID, "Invalid page.")
			return
		}
		b.handlePending(ctx, callback.Message.Chat.ID, callback.Message.MessageID, page)
	}
	b.answerCallback(callback.ID, "")
}
