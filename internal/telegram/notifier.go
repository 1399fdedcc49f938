package telegram

import (
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/camuig/evo-trader/internal/config"
	"github.com/camuig/evo-trader/internal/logger"
	"github.com/camuig/evo-trader/internal/market"
	"github.com/camuig/evo-trader/internal/scheduler"
)

type sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Notifier pushes trades and cycle summaries to a Telegram chat. A disabled
// notifier drops every message.
type Notifier struct {
	bot     sender
	chatID  int64
	enabled bool
	logger  *logger.Logger
}

func NewNotifier(cfg *config.Config, log *logger.Logger) *Notifier {
	log = log.Named("telegram")
	if !cfg.Telegram.Enabled {
		return &Notifier{logger: log}
	}

	bot, err := tgbotapi.NewBotAPI(cfg.Telegram.BotToken)
	if err != nil {
		log.Error("failed to create telegram bot", "error", err)
		return &Notifier{logger: log}
	}

	log.Info("telegram bot connected", "username", bot.Self.UserName)

	return &Notifier{
		bot:     bot,
		chatID:  cfg.Telegram.ChatID,
		enabled: true,
		logger:  log,
	}
}

func (n *Notifier) NotifyTrade(ev scheduler.TradeEvent) {
	n.send(formatTrade(ev))
}

// NotifyCycle reports only cycles that traded or hit errors.
func (n *Notifier) NotifyCycle(res scheduler.CycleResult) {
	if len(res.Trades) == 0 && len(res.Errors) == 0 {
		return
	}
	n.send(formatCycle(res))
}

func (n *Notifier) NotifyError(context string, err error) {
	n.send(fmt.Sprintf("⚠️ *Ошибка* [%s]\n%s", escape(context), escape(err.Error())))
}

func (n *Notifier) NotifyStatus(message string) {
	n.send("🤖 " + escape(message))
}

func (n *Notifier) send(text string) {
	if n == nil || !n.enabled {
		return
	}

	msg := tgbotapi.NewMessage(n.chatID, text)
	msg.ParseMode = tgbotapi.ModeMarkdown

	if _, err := n.bot.Send(msg); err != nil {
		n.logger.Error("send telegram message", "error", err)
	}
}

func formatTrade(ev scheduler.TradeEvent) string {
	if ev.Action == market.ActionBuy {
		return fmt.Sprintf("🟢 *BUY* %s\nЦена: %.2f ₽\nКоличество: %.0f\nСумма: %.2f ₽\n%s",
			escape(ev.AssetID), ev.Price, ev.Units, ev.Amount, escape(ev.Reason))
	}

	emoji := "🔴"
	if ev.PnLPercent > 0 {
		emoji = "💰"
	}
	return fmt.Sprintf("%s *SELL* %s\nЦена: %.2f ₽\nКоличество: %.0f\nP&L: %+.2f ₽ (%+.2f%%)\n%s",
		emoji, escape(ev.AssetID), ev.Price, ev.Units, ev.PnL, ev.PnLPercent, escape(ev.Reason))
}

func formatCycle(res scheduler.CycleResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "📊 *Цикл завершён*\nНайдено: %d, отобрано: %d, решений: %d\nИсполнено: %d, закрыто: %d, отклонено: %d",
		res.Discovered, res.Filtered, res.Decided, res.Executed, res.PositionsClosed, res.Rejected)
	if res.Portfolio.Level != "" {
		fmt.Fprintf(&b, "\nРиск портфеля: %s (%.1f%%)", res.Portfolio.Level, res.Portfolio.ExposurePercent)
	}
	if len(res.Errors) > 0 {
		fmt.Fprintf(&b, "\nОшибки (%d):", len(res.Errors))
		for i, e := range res.Errors {
			if i == 3 {
				fmt.Fprintf(&b, "\n… ещё %d", len(res.Errors)-3)
				break
			}
			b.WriteString("\n• " + escape(e))
		}
	}
	return b.String()
}

func escape(s string) string {
	return tgbotapi.EscapeText(tgbotapi.ModeMarkdown, s)
}
