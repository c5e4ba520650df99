package emailplatform

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/mikabele/canoe-go/internal/chatevent"
	"github.com/mikabele/canoe-go/internal/config"
	"github.com/mikabele/canoe-go/internal/episode"
	"github.com/mikabele/canoe-go/internal/events"
)

// Adapter polls a single IMAP mailbox and translates new messages into
// chatevent.Events, keyed by the sender's address. Replies are sent via
// SMTP.
type Adapter struct {
	cfg    config.EmailConfig
	logger *slog.Logger
	bus    *events.Bus

	imap *imapClient

	mu        sync.Mutex
	highWater uint32
	seeded    bool

	out chan chatevent.Event
}

// New creates an email platform adapter. Call Run to begin polling.
func New(cfg config.EmailConfig, logger *slog.Logger, bus *events.Bus) *Adapter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Adapter{
		cfg:    cfg,
		logger: logger,
		bus:    bus,
		imap:   newIMAPClient(cfg, logger),
		out:    make(chan chatevent.Event, 64),
	}
}

// Run polls the mailbox every PollIntervalSec until ctx is cancelled.
// On first poll, the current high-water mark is recorded silently
// (without emitting events) so a fresh deployment doesn't flood the
// matcher with the entire inbox.
func (a *Adapter) Run(ctx context.Context) error {
	defer close(a.out)
	defer a.imap.close()

	interval := time.Duration(a.cfg.PollIntervalSec) * time.Second
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	a.poll(ctx)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			a.poll(ctx)
		}
	}
}

// Events returns the channel of translated events, suitable as the
// input to demux.Pipe.
func (a *Adapter) Events() <-chan chatevent.Event {
	return a.out
}

func (a *Adapter) poll(ctx context.Context) {
	a.mu.Lock()
	sinceUID := a.highWater
	firstRun := !a.seeded
	a.mu.Unlock()

	envelopes, err := a.imap.listSince(ctx, a.cfg.Mailbox, sinceUID)
	if err != nil {
		a.logger.Warn("emailplatform: poll failed", "error", err)
		return
	}
	if len(envelopes) == 0 {
		a.mu.Lock()
		a.seeded = true
		a.mu.Unlock()
		return
	}

	var highest uint32
	for _, env := range envelopes {
		if env.UID > highest {
			highest = env.UID
		}
	}

	a.mu.Lock()
	if highest > a.highWater {
		a.highWater = highest
	}
	a.seeded = true
	a.mu.Unlock()

	if firstRun {
		a.logger.Info("emailplatform: seeding high-water mark on first poll", "uid", highest)
		return
	}

	for _, env := range envelopes {
		a.translate(env)
	}
}

func (a *Adapter) translate(env envelope) {
	if env.From == a.cfg.DefaultFrom {
		return // skip self-sent messages (Bcc-to-self, server-side copies)
	}

	a.bus.Publish(events.Event{
		Timestamp: time.Now(),
		Source:    events.SourceEmail,
		Kind:      events.KindMessageReceived,
		Data: map[string]any{
			"conversation_id": env.From,
			"message_len":     len(env.Body),
		},
	})

	ev := chatevent.Event{
		Kind:           chatevent.KindIncomingMessage,
		ConversationID: env.From,
		SenderID:       env.From,
		Timestamp:      time.Now(),
		Text:           env.Body,
	}

	select {
	case a.out <- ev:
	default:
		a.logger.Warn("emailplatform: output channel full, dropping event", "conversation_id", env.From)
	}
}

// Send returns an effect that emails text as a reply to conversationID
// (the recipient address), for use as the action in an episode.Eval
// step.
func (a *Adapter) Send(conversationID, text string) episode.Effect {
	return func(ctx context.Context) (any, error) {
		if err := sendMail(ctx, a.cfg, conversationID, "Re: your message", text); err != nil {
			return nil, err
		}
		return nil, nil
	}
}
