package chatclient

import (
	"context"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

// HistoryFetcher loads the existing transcript once per session activation.
type HistoryFetcher struct {
	api API
	log zerolog.Logger
}

func NewHistoryFetcher(api API, log zerolog.Logger) *HistoryFetcher {
	return &HistoryFetcher{api: api, log: log}
}

// Fetch issues a single read. A canceled fetch returns context.Canceled and is not logged.
func (f *HistoryFetcher) Fetch(ctx context.Context, conversationID string) ([]Message, error) {
	msgs, err := f.api.History(ctx, conversationID)
	if err != nil {
		if ctx.Err() != nil || errors.Is(err, context.Canceled) {
			return nil, context.Canceled
		}
		f.log.Warn().Err(err).Str("conversation_id", conversationID).Msg("history fetch failed, continuing with live stream only")
		return nil, errors.Wrap(err, "fetch history")
	}
	f.log.Debug().Str("conversation_id", conversationID).Int("messages", len(msgs)).Msg("history fetched")
	return msgs, nil
}
