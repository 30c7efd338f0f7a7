package telegram

import (
	"context"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/keanlouis30/Easely/internal/canvas"
	"github.com/keanlouis30/Easely/internal/domain"
	"github.com/keanlouis30/Easely/internal/store"
)

// Pending state keys used in conversational flows.
const (
	pendingToken = "await_canvas_token"
	pendingTask  = "await_task_text"
)

// Validator checks a Canvas credential against the live API.
type Validator interface {
	Validate(ctx context.Context, cred domain.Credential) (canvas.Identity, error)
}

// Config carries the account rules the command layer enforces.
type Config struct {
	CanvasBaseURL   string
	FreeManualTasks int
	PremiumDuration time.Duration
}

// Router wires Telegram updates to handlers and holds minimal in-memory state.
type Router struct {
	bot   *tgbotapi.BotAPI
	log   *zap.Logger
	repo  store.Repo
	gw    Validator
	cfg   Config
	state map[int64]string  // chatID -> pending state
	lists map[int64][]int64 // chatID -> task ids from the last list, for /done N
	mu    sync.RWMutex
}

// NewRouter creates a new Telegram router.
func NewRouter(bot *tgbotapi.BotAPI, log *zap.Logger, repo store.Repo, gw Validator, cfg Config) *Router {
	return &Router{
		bot:   bot,
		log:   log,
		repo:  repo,
		gw:    gw,
		cfg:   cfg,
		state: make(map[int64]string),
		lists: make(map[int64][]int64),
	}
}

// setPending sets a pending state for a chat (non-persistent, in-memory).
func (r *Router) setPending(chatID int64, s string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state[chatID] = s
}

// getPending returns current pending state for a chat.
func (r *Router) getPending(chatID int64) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.state[chatID]
}

// clearPending clears a pending state for a chat.
func (r *Router) clearPending(chatID int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.state, chatID)
}

// rememberList stores the task ids behind the numbers of the last list
// shown in a chat, so /done N can resolve N.
func (r *Router) rememberList(chatID int64, ids []int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lists[chatID] = ids
}

func (r *Router) lastList(chatID int64) []int64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.lists[chatID]
}

// HandleUpdate routes a single update to appropriate handler.
func (r *Router) HandleUpdate(ctx context.Context, upd tgbotapi.Update) {
	if upd.Message == nil {
		return
	}
	msg := upd.Message
	chatID := msg.Chat.ID
	text := strings.TrimSpace(msg.Text)

	switch {
	case strings.HasPrefix(text, "/start"):
		r.handleStart(ctx, chatID)
	case strings.HasPrefix(text, "/help"):
		r.sendText(chatID, helpText)
	case strings.HasPrefix(text, "/tasks"):
		r.handleTasks(ctx, chatID)
	case strings.HasPrefix(text, "/today"):
		r.handleToday(ctx, chatID)
	case strings.HasPrefix(text, "/week"):
		r.handleWeek(ctx, chatID)
	case strings.HasPrefix(text, "/overdue"):
		r.handleOverdue(ctx, chatID)
	case strings.HasPrefix(text, "/add"):
		r.handleAdd(ctx, chatID, strings.TrimSpace(strings.TrimPrefix(text, "/add")))
	case strings.HasPrefix(text, "/done"):
		r.handleDone(ctx, chatID, strings.TrimSpace(strings.TrimPrefix(text, "/done")))
	case strings.HasPrefix(text, "/activate"):
		r.handleActivate(ctx, chatID)
	case strings.HasPrefix(text, "/notifications"):
		r.handleNotifications(ctx, chatID)
	case strings.HasPrefix(text, "/status"):
		r.handleStatus(ctx, chatID)
	default:
		// Free-form text used in the token and add-task flows
		r.handleFreeForm(ctx, chatID, text)
	}
}

// SendText sends a plain text message to the given chat.
// This makes Router satisfy jobs.Sender.
func (r *Router) SendText(chatID int64, text string) error {
	_, err := r.bot.Send(tgbotapi.NewMessage(chatID, text))
	return err
}
