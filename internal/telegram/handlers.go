package telegram

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/keanlouis30/Easely/internal/domain"
	"github.com/keanlouis30/Easely/internal/store"
)

// --- Generic helpers ---

func (r *Router) sendText(chatID int64, text string) {
	_, _ = r.bot.Send(tgbotapi.NewMessage(chatID, text))
}

// requireUser resolves the chat to a linked user, prompting for /start
// when there is none. Returns nil when the caller should stop.
func (r *Router) requireUser(ctx context.Context, chatID int64) *domain.User {
	u, err := r.repo.GetUserByChatID(ctx, chatID)
	if errors.Is(err, store.ErrNotFound) {
		r.sendText(chatID, notLinkedText)
		return nil
	}
	if err != nil {
		r.log.Error("user lookup failed", zap.Int64("chat", chatID), zap.Error(err))
		r.sendText(chatID, "Something broke on my side. Please try again.")
		return nil
	}
	return u
}

// --- Onboarding ---

func (r *Router) handleStart(ctx context.Context, chatID int64) {
	u, err := r.repo.GetUserByChatID(ctx, chatID)
	if err == nil && !u.Credential.Empty() && !u.CredentialInvalid {
		msg := tgbotapi.NewMessage(chatID, "You're all set. "+helpText)
		msg.ReplyMarkup = mainMenuKeyboard()
		_, _ = r.bot.Send(msg)
		return
	}
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		r.log.Error("user lookup failed", zap.Int64("chat", chatID), zap.Error(err))
	}

	r.setPending(chatID, pendingToken)
	r.sendText(chatID, startText)
}

// linkToken validates a pasted Canvas token and creates or re-links the
// account. A user row only ever comes into existence here, after the
// token has been confirmed against the live API.
func (r *Router) linkToken(ctx context.Context, chatID int64, token string) {
	cred := domain.Credential{Token: token, BaseURL: r.cfg.CanvasBaseURL}
	ident, err := r.gw.Validate(ctx, cred)
	if err != nil {
		r.log.Info("token validation failed", zap.Int64("chat", chatID), zap.Error(err))
		r.sendText(chatID, linkFailedText)
		r.setPending(chatID, pendingToken)
		return
	}

	u, err := r.repo.GetUserByChatID(ctx, chatID)
	switch {
	case errors.Is(err, store.ErrNotFound):
		now := time.Now().UTC()
		u = &domain.User{
			ChatID:           chatID,
			Credential:       cred,
			CanvasUserID:     ident.RemoteUserID,
			Tier:             domain.TierFree,
			RemindersEnabled: true,
			MonthResetAt:     domain.MonthStart(now),
			CreatedAt:        now,
		}
		err = r.repo.CreateUser(ctx, u)
	case err == nil:
		err = r.repo.UpdateCredential(ctx, u.ID, cred, ident.RemoteUserID)
	}
	if err != nil {
		r.log.Error("link failed", zap.Int64("chat", chatID), zap.Error(err))
		r.sendText(chatID, "Could not save your account. Please try again.")
		return
	}

	msg := tgbotapi.NewMessage(chatID, fmt.Sprintf(linkedFmt, ident.Name))
	msg.ReplyMarkup = mainMenuKeyboard()
	_, _ = r.bot.Send(msg)
}

// --- Task views ---

func (r *Router) handleTasks(ctx context.Context, chatID int64) {
	r.sendTaskList(ctx, chatID, "📋 Upcoming tasks", 365*24*time.Hour)
}

func (r *Router) handleToday(ctx context.Context, chatID int64) {
	r.sendTaskList(ctx, chatID, "📅 Due in the next 24 hours", 24*time.Hour)
}

func (r *Router) handleWeek(ctx context.Context, chatID int64) {
	r.sendTaskList(ctx, chatID, "🗓 Due this week", 7*24*time.Hour)
}

func (r *Router) sendTaskList(ctx context.Context, chatID int64, title string, horizon time.Duration) {
	u := r.requireUser(ctx, chatID)
	if u == nil {
		return
	}
	now := time.Now().UTC()
	tasks, err := r.repo.ListUpcomingTasks(ctx, u.ID, now, now.Add(horizon), 50)
	if err != nil {
		r.log.Error("list tasks failed", zap.Int64("user", u.ID), zap.Error(err))
		r.sendText(chatID, "Could not load your tasks.")
		return
	}
	r.sendNumbered(chatID, title, tasks)
}

func (r *Router) handleOverdue(ctx context.Context, chatID int64) {
	u := r.requireUser(ctx, chatID)
	if u == nil {
		return
	}
	tasks, err := r.repo.ListOverdueTasks(ctx, u.ID, time.Now().UTC())
	if err != nil {
		r.log.Error("list overdue failed", zap.Int64("user", u.ID), zap.Error(err))
		r.sendText(chatID, "Could not load your tasks.")
		return
	}
	r.sendNumbered(chatID, "⏳ Overdue", tasks)
}

func (r *Router) sendNumbered(chatID int64, title string, tasks []domain.Task) {
	if len(tasks) == 0 {
		r.sendText(chatID, emptyListText)
		r.rememberList(chatID, nil)
		return
	}

	var b strings.Builder
	b.WriteString(title)
	b.WriteString("\n\n")
	ids := make([]int64, len(tasks))
	for i, t := range tasks {
		ids[i] = t.ID
		fmt.Fprintf(&b, "%d. %s — %s\n", i+1, t.Title, domain.FormatDue(t.DueAt))
	}
	b.WriteString("\nMark one done with /done N")

	r.rememberList(chatID, ids)
	r.sendText(chatID, b.String())
}

// --- Manual tasks ---

func (r *Router) handleAdd(ctx context.Context, chatID int64, arg string) {
	if arg == "" {
		if r.requireUser(ctx, chatID) == nil {
			return
		}
		r.setPending(chatID, pendingTask)
		r.sendText(chatID, addPromptText)
		return
	}
	r.addTask(ctx, chatID, arg)
}

func (r *Router) addTask(ctx context.Context, chatID int64, text string) {
	u := r.requireUser(ctx, chatID)
	if u == nil {
		return
	}
	now := time.Now().UTC()

	if !u.CanAddManualTask(now, r.cfg.FreeManualTasks) {
		r.sendText(chatID, fmt.Sprintf(addCapFmt, r.cfg.FreeManualTasks))
		return
	}

	title, when, ok := strings.Cut(text, "|")
	if !ok {
		r.sendText(chatID, "I need both a title and a time. "+addPromptText)
		r.setPending(chatID, pendingTask)
		return
	}
	title = strings.TrimSpace(title)
	if title == "" {
		r.sendText(chatID, "The title can't be empty.")
		r.setPending(chatID, pendingTask)
		return
	}

	due, err := domain.ParseDueHuman(strings.TrimSpace(when), now)
	if err != nil {
		r.sendText(chatID, dueErrorText(err))
		r.setPending(chatID, pendingTask)
		return
	}

	t := &domain.Task{UserID: u.ID, Title: title, DueAt: due, Origin: domain.OriginManual}
	if err := r.repo.CreateManualTask(ctx, t); err != nil {
		r.log.Error("create manual task failed", zap.Int64("user", u.ID), zap.Error(err))
		r.sendText(chatID, "Could not save the task.")
		return
	}
	if err := r.repo.IncrementManualTasks(ctx, u.ID, now); err != nil {
		r.log.Error("bump manual counter failed", zap.Int64("user", u.ID), zap.Error(err))
	}

	r.sendText(chatID, fmt.Sprintf("✅ Added: %s — %s", title, domain.FormatDue(due)))
}

func dueErrorText(err error) string {
	switch {
	case errors.Is(err, domain.ErrDueInPast):
		return "That time is already in the past."
	case errors.Is(err, domain.ErrDueTooFar):
		return "That's more than a year out. Pick something closer."
	default:
		return "I couldn't read that time. Examples: 2h, 3d, 90m, 2025-03-14 18:00"
	}
}

func (r *Router) handleDone(ctx context.Context, chatID int64, arg string) {
	u := r.requireUser(ctx, chatID)
	if u == nil {
		return
	}

	n, err := strconv.Atoi(arg)
	ids := r.lastList(chatID)
	if err != nil || n < 1 || n > len(ids) {
		r.sendText(chatID, "Which one? Run /tasks and then /done N with the task's number.")
		return
	}

	switch err := r.repo.CompleteTask(ctx, u.ID, ids[n-1]); {
	case errors.Is(err, store.ErrNotFound):
		r.sendText(chatID, "That task is gone already.")
	case err != nil:
		r.log.Error("complete task failed", zap.Int64("user", u.ID), zap.Error(err))
		r.sendText(chatID, "Could not mark it done.")
	default:
		r.sendText(chatID, "✅ Done. Nice work.")
	}
}

// --- Subscription ---

func (r *Router) handleActivate(ctx context.Context, chatID int64) {
	u := r.requireUser(ctx, chatID)
	if u == nil {
		return
	}
	now := time.Now().UTC()

	if u.ActivePremium(now) {
		r.sendText(chatID, fmt.Sprintf(alreadyPremiumFmt, u.PremiumUntil.Format("2 Jan 2006")))
		return
	}

	until := now.Add(r.cfg.PremiumDuration)
	if err := r.repo.UpdateTierAndExpiry(ctx, u.ID, domain.TierPremium, &until); err != nil {
		r.log.Error("activate failed", zap.Int64("user", u.ID), zap.Error(err))
		r.sendText(chatID, "Could not activate premium. Please try again.")
		return
	}
	r.sendText(chatID, fmt.Sprintf(activatedFmt, until.Format("2 Jan 2006")))
}

func (r *Router) handleNotifications(ctx context.Context, chatID int64) {
	u := r.requireUser(ctx, chatID)
	if u == nil {
		return
	}
	enabled := !u.RemindersEnabled
	if err := r.repo.SetRemindersEnabled(ctx, u.ID, enabled); err != nil {
		r.log.Error("toggle reminders failed", zap.Int64("user", u.ID), zap.Error(err))
		r.sendText(chatID, "Could not change your reminder setting.")
		return
	}
	if enabled {
		r.sendText(chatID, notifsOnText)
	} else {
		r.sendText(chatID, notifsOffText)
	}
}

func (r *Router) handleStatus(ctx context.Context, chatID int64) {
	u := r.requireUser(ctx, chatID)
	if u == nil {
		return
	}
	now := time.Now().UTC()

	plan := "Free (one 24h reminder per task)"
	if u.ActivePremium(now) {
		plan = "Premium until " + u.PremiumUntil.Format("2 Jan 2006")
	}
	link := "✅ linked"
	if u.CredentialInvalid {
		link = "⚠️ token revoked, send a new one"
	} else if u.Credential.Empty() {
		link = "not linked"
	}
	reminders := "on"
	if !u.RemindersEnabled {
		reminders = "off"
	}
	lastSync := "never"
	if u.LastSyncAt != nil {
		lastSync = u.LastSyncAt.Format("2 Jan 15:04 MST")
	}

	body := fmt.Sprintf("🧾 Your account:\n\n"+
		"• Plan: %s\n• Canvas: %s\n• Reminders: %s\n• Last sync: %s\n• Manual tasks this month: %d",
		plan, link, reminders, lastSync, u.ManualTasksThisMonth)

	msg := tgbotapi.NewMessage(chatID, body)
	msg.ReplyMarkup = mainMenuKeyboard()
	_, _ = r.bot.Send(msg)
}

// --- Free-form dispatcher (token and add-task flows) ---

func (r *Router) handleFreeForm(ctx context.Context, chatID int64, text string) {
	switch r.getPending(chatID) {
	case pendingToken:
		r.clearPending(chatID)
		token := strings.TrimSpace(text)
		if token == "" {
			r.setPending(chatID, pendingToken)
			return
		}
		r.linkToken(ctx, chatID, token)

	case pendingTask:
		r.clearPending(chatID)
		r.addTask(ctx, chatID, text)

	default:
		// No pending flow: ignore free-form message
	}
}
