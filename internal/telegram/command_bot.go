package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/stepannikulin59/btc-intraday-bot/internal/journal"
	"github.com/stepannikulin59/btc-intraday-bot/internal/logging"
	"github.com/stepannikulin59/btc-intraday-bot/internal/scoring"
)

// Status is the engine snapshot the command bot reports on.
type Status struct {
	Symbol      string
	Price       float64
	Score       float64
	Breakdown   scoring.Breakdown
	Regime      string
	HasPosition bool
	EntryPrice  *float64
}

// CommandBot long-polls the Telegram Bot API and answers operator
// commands: /on, /off, /status, /price, /why, /balance. Only messages
// from the configured chat are honored.
type CommandBot struct {
	token   string
	chatID  string
	sw      *Switch
	status  func() Status
	balance func() (float64, error)
	summary func() (journal.Summary, error)
	client  *http.Client
	log     *logging.Logger
	offset  int64
}

func NewCommandBot(token, chatID string, sw *Switch, status func() Status, balance func() (float64, error), summary func() (journal.Summary, error)) *CommandBot {
	return &CommandBot{
		token:   token,
		chatID:  chatID,
		sw:      sw,
		status:  status,
		balance: balance,
		summary: summary,
		client:  &http.Client{Timeout: 40 * time.Second},
		log:     logging.WithComponent("telegram"),
	}
}

type update struct {
	UpdateID int64 `json:"update_id"`
	Message  *struct {
		Chat struct {
			ID int64 `json:"id"`
		} `json:"chat"`
		Text string `json:"text"`
	} `json:"message"`
}

// Run polls for commands until the context is canceled.
func (b *CommandBot) Run(ctx context.Context) {
	b.log.Info("Telegram command bot started")
	for {
		select {
		case <-ctx.Done():
			b.log.Info("Telegram command bot stopped")
			return
		default:
		}

		updates, err := b.getUpdates(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			b.log.Warn("Polling updates failed", "error", err)
			time.Sleep(5 * time.Second)
			continue
		}

		for _, u := range updates {
			b.offset = u.UpdateID + 1
			if u.Message == nil {
				continue
			}
			if strconv.FormatInt(u.Message.Chat.ID, 10) != b.chatID {
				continue
			}
			b.handleCommand(strings.TrimSpace(u.Message.Text))
		}
	}
}

func (b *CommandBot) getUpdates(ctx context.Context) ([]update, error) {
	q := url.Values{}
	q.Set("timeout", "30")
	if b.offset > 0 {
		q.Set("offset", strconv.FormatInt(b.offset, 10))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		fmt.Sprintf("https://api.telegram.org/bot%s/getUpdates?%s", b.token, q.Encode()), nil)
	if err != nil {
		return nil, err
	}
	resp, err := b.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	var parsed struct {
		OK     bool     `json:"ok"`
		Result []update `json:"result"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("parsing getUpdates response: %w", err)
	}
	if !parsed.OK {
		return nil, fmt.Errorf("getUpdates returned ok=false")
	}
	return parsed.Result, nil
}

func (b *CommandBot) handleCommand(text string) {
	cmd := text
	if i := strings.Index(cmd, "@"); i > 0 {
		cmd = cmd[:i]
	}

	switch cmd {
	case "/on":
		b.sw.Enable()
		b.reply("Trading enabled")
	case "/off":
		b.sw.Disable()
		b.reply("Trading disabled")
	case "/status":
		s := b.status()
		state := "disabled"
		if b.sw.Enabled() {
			state = "enabled"
		}
		pos := "flat"
		if s.HasPosition {
			pos = "in position"
			if s.EntryPrice != nil {
				pos = fmt.Sprintf("in position (entry %.2f)", *s.EntryPrice)
			}
		}
		msg := fmt.Sprintf("Trading %s\n%s: %s\nregime: %s", state, s.Symbol, pos, s.Regime)
		if sum, err := b.summary(); err == nil {
			msg += fmt.Sprintf("\ntoday: %d events, avg score %.2f, pnl %.2f", sum.Events, sum.AvgScore, sum.PnL)
		}
		b.reply(msg)
	case "/price":
		s := b.status()
		b.reply(fmt.Sprintf("%s last price: %.2f", s.Symbol, s.Price))
	case "/why":
		s := b.status()
		b.reply(fmt.Sprintf(
			"%s score %.2f (regime %s)\nta: %.3f\nexchange: %.3f\nvolume: %.3f\nvolatility: %.3f",
			s.Symbol, s.Score, s.Regime,
			s.Breakdown.TA, s.Breakdown.Exchange, s.Breakdown.Volume, s.Breakdown.Volatility))
	case "/balance":
		bal, err := b.balance()
		if err != nil {
			b.reply(fmt.Sprintf("Balance unavailable: %v", err))
			return
		}
		b.reply(fmt.Sprintf("Available balance: %.2f USDT", bal))
	}
}

func (b *CommandBot) reply(text string) {
	body, err := json.Marshal(map[string]string{"chat_id": b.chatID, "text": text})
	if err != nil {
		return
	}
	resp, err := b.client.Post(
		fmt.Sprintf("https://api.telegram.org/bot%s/sendMessage", b.token),
		"application/json", bytes.NewReader(body))
	if err != nil {
		b.log.Warn("Sending reply failed", "error", err)
		return
	}
	resp.Body.Close()
}
