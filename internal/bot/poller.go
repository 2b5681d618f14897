package bot

import (
	"context"
	"log"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// PollTimeout is the long-polling timeout in seconds.
const PollTimeout = 60

// Run handles updates until ctx is done or updates is closed. Updates are
// handled in arrival order so a user's keypad presses apply in sequence.
func (h *Handler) Run(ctx context.Context, updates <-chan tgbotapi.Update) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case upd, ok := <-updates:
			if !ok {
				return nil
			}
			h.HandleUpdate(ctx, upd)
		}
	}
}

// Poll long-polls api and handles updates until ctx is done.
func (h *Handler) Poll(ctx context.Context, api *tgbotapi.BotAPI) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = PollTimeout
	updates := api.GetUpdatesChan(u)
	defer api.StopReceivingUpdates()
	log.Printf("bot: polling updates as @%s", api.Self.UserName)
	return h.Run(ctx, updates)
}
