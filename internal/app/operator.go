package app

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"pm-dip-bot/internal/alerts"

	"go.uber.org/zap"
)

const operatorOffsetKey = "telegram:operator:last_update_id"

type operatorAuditEvent struct {
	UpdateID     int64     `json:"update_id"`
	Time         time.Time `json:"time"`
	Action       string    `json:"action"`
	Command      string    `json:"command"`
	UserID       int64     `json:"user_id"`
	Username     string    `json:"username,omitempty"`
	ChatID       int64     `json:"chat_id"`
	PausedBefore bool      `json:"paused_before"`
	PausedAfter  bool      `json:"paused_after"`
}

func (a *App) startOperator(ctx context.Context) {
	if !a.cfg.Telegram.OperatorEnabled {
		return
	}
	chatID, err := strconv.ParseInt(strings.TrimSpace(a.cfg.Telegram.ChatID), 10, 64)
	if err != nil {
		a.log.Warn("telegram operator disabled: invalid chat_id", zap.Error(err))
		return
	}
	pollInterval := a.cfg.Telegram.OperatorPollInterval
	if pollInterval <= 0 {
		pollInterval = 3 * time.Second
	}
	allowedUsers := make(map[int64]struct{}, len(a.cfg.Telegram.OperatorAllowedUserIDs))
	for _, id := range a.cfg.Telegram.OperatorAllowedUserIDs {
		allowedUsers[id] = struct{}{}
	}
	go a.operatorLoop(ctx, chatID, allowedUsers, pollInterval)
}

func (a *App) operatorLoop(ctx context.Context, chatID int64, allowedUsers map[int64]struct{}, pollInterval time.Duration) {
	offset := a.loadOperatorOffset(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		updates, err := a.alerts.GetUpdates(ctx, offset, pollInterval)
		if err != nil {
			a.logOperatorError(err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(pollInterval):
			}
			continue
		}
		if a.operatorWarned {
			a.log.Info("telegram operator recovered")
			a.operatorWarned = false
		}
		for _, upd := range updates {
			if upd.UpdateID >= offset {
				offset = upd.UpdateID + 1
				a.saveOperatorOffset(ctx, offset)
			}
			a.handleOperatorUpdate(ctx, upd, chatID, allowedUsers)
		}
	}
}

func (a *App) handleOperatorUpdate(ctx context.Context, upd alerts.Update, chatID int64, allowedUsers map[int64]struct{}) {
	if upd.Message == nil {
		return
	}
	msg := upd.Message
	if msg.Chat == nil || msg.From == nil {
		return
	}
	if msg.Chat.ID != chatID {
		return
	}
	if len(allowedUsers) > 0 {
		if _, ok := allowedUsers[msg.From.ID]; !ok {
			return
		}
	}
	cmd, ok := parseOperatorCommand(msg.Text)
	if !ok {
		return
	}
	resp := a.handleOperatorCommand(ctx, cmd, upd)
	if resp == "" {
		return
	}
	if err := a.alerts.Send(ctx, resp); err != nil {
		a.log.Warn("operator response failed", zap.Error(err))
	}
}

func parseOperatorCommand(text string) (string, bool) {
	trimmed := strings.TrimSpace(text)
	if !strings.HasPrefix(trimmed, "/") {
		return "", false
	}
	fields := strings.Fields(trimmed)
	if len(fields) == 0 {
		return "", false
	}
	return strings.ToLower(strings.TrimPrefix(fields[0], "/")), true
}

func (a *App) handleOperatorCommand(ctx context.Context, cmd string, upd alerts.Update) string {
	switch cmd {
	case "status":
		return a.operatorStatus()
	case "pause":
		before := a.gate.Snapshot().Paused
		a.gate.Pause()
		a.auditOperatorEvent(ctx, upd, "pause", before, true)
		if before {
			return "trading already paused"
		}
		return "trading paused"
	case "resume":
		before := a.gate.Snapshot().Paused
		a.gate.Resume()
		a.auditOperatorEvent(ctx, upd, "resume", before, false)
		if !before {
			return "trading already active"
		}
		return "trading resumed"
	default:
		return operatorHelpText()
	}
}

func (a *App) operatorStatus() string {
	st := a.gate.Snapshot()
	breaker := "inactive"
	if time.Now().UTC().Before(st.CircuitBreakerUntil) {
		breaker = "active until " + st.CircuitBreakerUntil.UTC().Format(time.RFC3339)
	}
	return strings.Join([]string{
		fmt.Sprintf("market: %s", a.cfg.Market),
		fmt.Sprintf("dry_run: %t", a.cfg.DryRun),
		fmt.Sprintf("paused: %t", st.Paused),
		fmt.Sprintf("position_open: %t", a.hedge.HasPosition()),
		fmt.Sprintf("daily_loss_usd: %.4f (limit %.2f)", st.DailyLossUSD, a.cfg.Risk.DailyLossLimitUSD),
		fmt.Sprintf("orders_last_hour: %d (limit %d)", len(st.OrdersLastHour), a.cfg.Risk.MaxOrdersPerHour),
		fmt.Sprintf("consecutive_failures: %d", st.ConsecutiveFailures),
		fmt.Sprintf("circuit_breaker: %s", breaker),
	}, "\n")
}

func operatorHelpText() string {
	return strings.Join([]string{
		"commands:",
		"/status - current bot status",
		"/pause - pause new trading actions",
		"/resume - resume trading actions",
	}, "\n")
}

func (a *App) logOperatorError(err error) {
	if a.operatorWarned {
		return
	}
	a.operatorWarned = true
	a.log.Warn("telegram operator failed", zap.Error(err))
}

func (a *App) loadOperatorOffset(ctx context.Context) int64 {
	raw, ok, err := a.store.Get(ctx, operatorOffsetKey)
	if err != nil || !ok {
		return 0
	}
	val, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || val < 0 {
		return 0
	}
	return val
}

func (a *App) saveOperatorOffset(ctx context.Context, offset int64) {
	_ = a.store.Set(ctx, operatorOffsetKey, strconv.FormatInt(offset, 10))
}

func (a *App) auditOperatorEvent(ctx context.Context, upd alerts.Update, action string, pausedBefore, pausedAfter bool) {
	event := operatorAuditEvent{
		UpdateID:     upd.UpdateID,
		Time:         time.Now().UTC(),
		Action:       action,
		Command:      upd.Message.Text,
		UserID:       upd.Message.From.ID,
		Username:     upd.Message.From.Username,
		ChatID:       upd.Message.Chat.ID,
		PausedBefore: pausedBefore,
		PausedAfter:  pausedAfter,
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return
	}
	key := fmt.Sprintf("ops:audit:%d:%d", event.Time.UnixNano(), event.UpdateID)
	_ = a.store.Set(ctx, key, string(payload))
}
