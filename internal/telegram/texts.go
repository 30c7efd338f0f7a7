package telegram

import tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

// UI texts in English
const (
	startText = "👋 I'm Easely, your Canvas deadline assistant.\n\n" +
		"Link your Canvas account and I'll mirror your assignments and ping you before they're due.\n\n" +
		"To link, send me your Canvas access token (Canvas → Account → Settings → New Access Token)."

	linkedFmt = "✅ Linked to Canvas as %s.\n\n" +
		"Your assignments will appear within minutes. Try /tasks once the first sync lands."

	linkFailedText = "❌ That token didn't work. Canvas rejected it.\n\n" +
		"Generate a fresh token under Account → Settings → New Access Token and send it again."

	tokenRevokedText = "⚠️ Your Canvas token stopped working, so syncing is paused.\n" +
		"Send me a new token to resume."

	helpText = "📚 Commands:\n" +
		"/tasks — everything coming up\n" +
		"/today — due in the next 24 hours\n" +
		"/week — due in the next 7 days\n" +
		"/overdue — past due, not done\n" +
		"/add — add a task of your own\n" +
		"/done N — mark task N from the last list as done\n" +
		"/notifications — pause or resume reminders\n" +
		"/activate — upgrade to premium\n" +
		"/status — account overview"

	addPromptText = "✍️ Send the task as: title | when\n\n" +
		"Examples:\n" +
		"Essay draft | 2h\n" +
		"Lab report | 3d\n" +
		"Group study | 2025-03-14 18:00"

	addCapFmt = "🚫 Free accounts can add %d manual tasks per month and you've used them all.\n" +
		"/activate lifts the cap, or the counter resets next month."

	activatedFmt = "⭐ Premium active until %s.\n\n" +
		"You now get the full reminder ladder: 1 week, 3 days, 1 day, 8 hours, 2 hours and 1 hour before each deadline."

	alreadyPremiumFmt = "⭐ You're already premium until %s."

	notifsOnText  = "🔔 Reminders are on."
	notifsOffText = "🔕 Reminders are off. I'll keep syncing, but stay quiet."

	emptyListText = "🎉 Nothing here."

	notLinkedText = "You haven't linked Canvas yet. Send /start to begin."
)

// mainMenuKeyboard is the persistent reply keyboard under the chat.
func mainMenuKeyboard() tgbotapi.ReplyKeyboardMarkup {
	return tgbotapi.NewReplyKeyboard(
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton("/today"),
			tgbotapi.NewKeyboardButton("/week"),
			tgbotapi.NewKeyboardButton("/tasks"),
		),
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton("/add"),
			tgbotapi.NewKeyboardButton("/overdue"),
			tgbotapi.NewKeyboardButton("/status"),
		),
	)
}
