package chatclient

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

type ProbeVerdict int

const (
	// ProbeReady means the conversation is reachable and a stream is worth opening.
	ProbeReady ProbeVerdict = iota + 1
	// ProbeChatDisabled means the server answered 403: an admin turned chat off.
	ProbeChatDisabled
	// ProbeFailed covers every other failure; reconnect may be retried later.
	ProbeFailed
)

type ProbeResult struct {
	Verdict  ProbeVerdict
	Messages []Message
	Err      error
}

// DefaultReconnectLimiter allows a short burst of reconnects, then one every two seconds.
func DefaultReconnectLimiter() *rate.Limiter {
	return rate.NewLimiter(rate.Every(2*time.Second), 3)
}

// ReconnectProbe checks liveness and permission over REST before a stream is reopened.
type ReconnectProbe struct {
	api     API
	limiter *rate.Limiter
	log     zerolog.Logger
}

func NewReconnectProbe(api API, limiter *rate.Limiter, log zerolog.Logger) *ReconnectProbe {
	return &ReconnectProbe{api: api, limiter: limiter, log: log}
}

// Check reads the history of conversationID and classifies the outcome.
// Errors are returned only for throttling and cancellation; API failures are
// reported through the verdict.
func (p *ReconnectProbe) Check(ctx context.Context, conversationID string) (ProbeResult, error) {
	if p.limiter != nil && !p.limiter.Allow() {
		return ProbeResult{}, ErrReconnectThrottled
	}

	msgs, err := p.api.History(ctx, conversationID)
	switch {
	case err == nil:
		return ProbeResult{Verdict: ProbeReady, Messages: msgs}, nil
	case ctx.Err() != nil:
		return ProbeResult{}, ctx.Err()
	case IsPermissionDenied(err):
		p.log.Info().Err(err).Str("conversation_id", conversationID).Msg("reconnect probe: chat disabled")
		return ProbeResult{Verdict: ProbeChatDisabled, Err: errors.Wrap(ErrChatDisabled, err.Error())}, nil
	default:
		p.log.Warn().Err(err).Str("conversation_id", conversationID).Msg("reconnect probe failed")
		return ProbeResult{Verdict: ProbeFailed, Err: errors.Wrap(err, "reconnect probe")}, nil
	}
}
