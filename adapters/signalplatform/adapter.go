package signalplatform

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/mikabele/canoe-go/internal/chatevent"
	"github.com/mikabele/canoe-go/internal/config"
	"github.com/mikabele/canoe-go/internal/episode"
	"github.com/mikabele/canoe-go/internal/events"
)

// Adapter bridges a signal-cli subprocess to the bot's chatevent
// alphabet. ConversationID is the Signal group ID for group messages,
// or the sender's phone number for direct messages.
type Adapter struct {
	client *client
	logger *slog.Logger
	bus    *events.Bus

	out chan chatevent.Event
}

// New creates a Signal platform adapter. Call Run to launch the
// subprocess and begin translating envelopes into events.
func New(cfg config.SignalConfig, logger *slog.Logger, bus *events.Bus) *Adapter {
	if logger == nil {
		logger = slog.Default()
	}
	args := []string{"-a", cfg.AccountNumber, "jsonRpc"}
	return &Adapter{
		client: newClient(cfg.SignalCLIPath, args, logger),
		logger: logger,
		bus:    bus,
		out:    make(chan chatevent.Event, 64),
	}
}

// Run starts the signal-cli subprocess and translates inbound
// envelopes into chatevent.Events until ctx is cancelled. It blocks
// until the translation loop exits, at which point the adapter's
// output channel (see Events) is closed.
func (a *Adapter) Run(ctx context.Context) error {
	if err := a.client.start(ctx); err != nil {
		return fmt.Errorf("signalplatform: start signal-cli: %w", err)
	}
	defer a.client.close()

	defer close(a.out)

	for {
		select {
		case <-ctx.Done():
			return nil
		case env, ok := <-a.client.envelopeStream():
			if !ok {
				return nil
			}
			a.translate(env)
		}
	}
}

// Events returns the channel of translated events, suitable as the
// input to demux.Pipe.
func (a *Adapter) Events() <-chan chatevent.Event {
	return a.out
}

func (a *Adapter) translate(env Envelope) {
	dm := env.DataMessage
	if dm == nil {
		return
	}

	conversationID := env.Source
	if dm.GroupInfo != nil {
		conversationID = dm.GroupInfo.GroupID
	}

	a.bus.Publish(events.Event{
		Timestamp: time.Now(),
		Source:    events.SourceSignal,
		Kind:      events.KindMessageReceived,
		Data: map[string]any{
			"sender":          env.Source,
			"conversation_id": conversationID,
			"message_len":     len(dm.Message),
		},
	})

	var ev chatevent.Event
	switch {
	case dm.Reaction != nil:
		ev = chatevent.Event{
			Kind:            chatevent.KindCallbackQuery,
			ConversationID:  conversationID,
			SenderID:        env.Source,
			Timestamp:       time.UnixMilli(env.Timestamp),
			CallbackData:    dm.Reaction.Emoji,
			OriginMessageID: strconv.FormatInt(dm.Reaction.TargetSentTimestamp, 10),
		}
	default:
		ev = chatevent.Event{
			Kind:           chatevent.KindIncomingMessage,
			ConversationID: conversationID,
			SenderID:       env.Source,
			Timestamp:      time.UnixMilli(env.Timestamp),
			Text:           dm.Message,
		}
		if len(dm.Attachments) > 0 {
			ev.DocumentName = dm.Attachments[0].Filename
		}
	}

	select {
	case a.out <- ev:
	default:
		a.logger.Warn("signalplatform: output channel full, dropping event", "conversation_id", conversationID)
	}
}

// isGroupID reports whether a conversation ID looks like a Signal
// group ID (base64, as opposed to an E.164 phone number) so Send knows
// which send-recipient parameter to populate.
func isGroupID(conversationID string) bool {
	if conversationID == "" {
		return false
	}
	return conversationID[0] != '+'
}

// Send returns an effect that sends text to conversationID, for use as
// the action in an episode.Eval step (e.g. via scenario.Eval). The
// OnSuspend/OnResume hooks on the enclosing episode can be set to
// drive a typing indicator around slow effects; Send itself issues a
// single typing-stop once the message is delivered.
func (a *Adapter) Send(conversationID, text string) episode.Effect {
	return func(ctx context.Context) (any, error) {
		group := isGroupID(conversationID)
		ts, err := a.client.send(ctx, conversationID, text, group)
		if err != nil {
			return nil, fmt.Errorf("signalplatform: send: %w", err)
		}
		_ = a.client.sendTyping(ctx, conversationID, true)
		return ts, nil
	}
}

// Typing returns a hook func that starts (or, if stop is true, stops)
// the typing indicator for conversationID. Intended for use as
// SuspendHooks.OnSuspend/OnResume rather than invoked directly as a
// step's own effect.
func (a *Adapter) Typing(conversationID string, stop bool) func() {
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := a.client.sendTyping(ctx, conversationID, stop); err != nil {
			a.logger.Debug("signalplatform: sendTyping failed", "error", err)
		}
	}
}

// Ping reports whether the underlying signal-cli subprocess is
// responsive, for use as a health check.
func (a *Adapter) Ping(ctx context.Context) error {
	return a.client.ping(ctx)
}
