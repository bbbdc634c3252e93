package bot

import (
	"fmt"
	"strings"

	"github.com/Fi44er/coin_exchange/internal/models"
	"github.com/Fi44er/coin_exchange/internal/service"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

const ordersPerPage = 5

func esc(s string) string {
	return tgbotapi.EscapeText(tgbotapi.ModeMarkdown, s)
}

// orderSummary describes what the admin has to do for the order.
func orderSummary(o *models.Order) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "🆔 Order #%d (%s)\n", o.ID, o.Type)
	fmt.Fprintf(&sb, "👤 User: `%d`\n", o.UserID)
	switch o.Type {
	case models.OrderBuy:
		fmt.Fprintf(&sb, "💵 Paid: `%s %s`\n", o.AmountSent.StringFixed(2), o.Currency)
		fmt.Fprintf(&sb, "🪙 To send: `%s %s`\n", o.AmountToRecieve.StringFixed(o.Coin.Precision()), o.Coin)
	case models.OrderSell:
		fmt.Fprintf(&sb, "🪙 Received: `%s %s`\n", o.AmountSent.StringFixed(o.Coin.Precision()), o.Coin)
		fmt.Fprintf(&sb, "💵 To pay: `%s %s`\n", o.AmountToRecieve.StringFixed(2), o.Currency)
	}
	if o.BankName != "" {
		fmt.Fprintf(&sb, "🏦 %s, %s, %s\n", esc(o.BankName), esc(o.AccountNumber), esc(o.AccountHolder))
	}
	return sb.String()
}

// renderOrdersPage renders one page of orders with prev/next buttons. An out
// of range page falls back to the first one. The markup is nil when
// everything fits on one page.
func renderOrdersPage(orders []*models.Order, page int) (string, *tgbotapi.InlineKeyboardMarkup) {
	pages := (len(orders)-1)/ordersPerPage + 1
	if page < 0 || page >= pages {
		page = 0
	}
	start := page * ordersPerPage
	end := min(start+ordersPerPage, len(orders))

	var sb strings.Builder
	fmt.Fprintf(&sb, "📋 Pending orders (page %d of %d)\n\n", page+1, pages)
	for _, o := range orders[start:end] {
		sb.WriteString(orderSummary(o))
		sb.WriteString("\n")
	}

	if pages == 1 {
		return sb.String(), nil
	}

	var row []tgbotapi.InlineKeyboardButton
	if page > 0 {
		row = append(row, tgbotapi.NewInlineKeyboardButtonData("⬅️ Prev", fmt.Sprintf("%s%d", pageCallbackPrefix, page-1)))
	}
	if end < len(orders) {
		row = append(row, tgbotapi.NewInlineKeyboardButtonData("Next ➡️", fmt.Sprintf("%s%d", pageCallbackPrefix, page+1)))
	}
	markup := tgbotapi.NewInlineKeyboardMarkup(row)
	return sb.String(), &markup
}

func renderStuck(stuck []service.StuckOrder) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "⚠️ %d settlement(s) need reconciliation\n\n", len(stuck))
	for _, st := range stuck {
		fmt.Fprintf(&sb, "🆔 Order #%d: transfer %s since %s\n",
			st.Order.ID, st.Transfer.Status, st.Transfer.UpdatedAt.UTC().Format("2006-01-02 15:04"))
		if st.Transfer.TxRef != "" {
			fmt.Fprintf(&sb, "🔗 `%s`\n", st.Transfer.TxRef)
		}
	}
	return sb.String()
}
