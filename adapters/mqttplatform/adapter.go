// Package mqttplatform adapts an MQTT broker into the bot's chat
// alphabet: each conversation is keyed by a topic segment, inbound
// messages arrive on "{prefix}/{conversation}/in" and replies are
// published to "{prefix}/{conversation}/out". This lets any MQTT
// publisher (a home-automation dashboard, a kiosk, a script) act as a
// chat participant without a bespoke wire protocol.
package mqttplatform

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/eclipse/paho.golang/autopaho"
	"github.com/eclipse/paho.golang/paho"
	"github.com/mikabele/canoe-go/internal/chatevent"
	"github.com/mikabele/canoe-go/internal/config"
	"github.com/mikabele/canoe-go/internal/episode"
	"github.com/mikabele/canoe-go/internal/events"
)

// Adapter manages the MQTT connection and translates the conversation-
// topic convention into chatevent.Events.
type Adapter struct {
	cfg    config.MQTTConfig
	logger *slog.Logger
	bus    *events.Bus

	cm          *autopaho.ConnectionManager
	rateLimiter *rateLimiter

	out chan chatevent.Event
}

// New creates an MQTT platform adapter. Call Run to connect and begin
// translating inbound messages.
func New(cfg config.MQTTConfig, logger *slog.Logger, bus *events.Bus) *Adapter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Adapter{
		cfg:    cfg,
		logger: logger,
		bus:    bus,
		out:    make(chan chatevent.Event, 64),
	}
}

// inTopic is the wildcard subscription for all conversations' inbound
// messages.
func (a *Adapter) inTopic() string {
	return a.cfg.TopicPrefix + "/+/in"
}

// outTopic is where replies for a specific conversation are published.
func (a *Adapter) outTopic(conversationID string) string {
	return fmt.Sprintf("%s/%s/out", a.cfg.TopicPrefix, conversationID)
}

// conversationFromTopic extracts the conversation ID from an inbound
// topic of the form "{prefix}/{conversation}/in".
func (a *Adapter) conversationFromTopic(topic string) (string, bool) {
	prefix := a.cfg.TopicPrefix + "/"
	if !strings.HasPrefix(topic, prefix) {
		return "", false
	}
	rest := strings.TrimPrefix(topic, prefix)
	rest = strings.TrimSuffix(rest, "/in")
	if rest == "" || strings.Contains(rest, "/") {
		return "", false
	}
	return rest, true
}

// Run connects to the broker and translates inbound messages until ctx
// is cancelled. It blocks; on return the adapter's output channel is
// closed.
func (a *Adapter) Run(ctx context.Context) error {
	defer close(a.out)

	brokerURL, err := url.Parse(a.cfg.BrokerURL)
	if err != nil {
		return fmt.Errorf("mqttplatform: parse broker URL: %w", err)
	}

	pahoCfg := autopaho.ClientConfig{
		ServerUrls:      []*url.URL{brokerURL},
		KeepAlive:       30,
		ConnectUsername: a.cfg.Username,
		ConnectPassword: []byte(a.cfg.Password),
		OnConnectionUp: func(cm *autopaho.ConnectionManager, _ *paho.Connack) {
			a.logger.Info("mqttplatform: connected to broker", "broker", a.cfg.BrokerURL)
			subCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if _, err := cm.Subscribe(subCtx, &paho.Subscribe{
				Subscriptions: []paho.SubscribeOptions{{Topic: a.inTopic(), QoS: 0}},
			}); err != nil {
				a.logger.Warn("mqttplatform: subscribe failed", "error", err)
			}
		},
		OnConnectError: func(err error) {
			a.logger.Warn("mqttplatform: connection error", "error", err)
		},
		ClientConfig: paho.ClientConfig{
			ClientID: a.cfg.ClientID,
		},
	}

	if brokerURL.Scheme == "mqtts" || brokerURL.Scheme == "ssl" {
		pahoCfg.TlsCfg = &tls.Config{MinVersion: tls.VersionTLS12}
	}

	cm, err := autopaho.NewConnection(ctx, pahoCfg)
	if err != nil {
		return fmt.Errorf("mqttplatform: connect: %w", err)
	}
	a.cm = cm

	a.rateLimiter = newRateLimiter(100, time.Second, a.logger)
	go a.rateLimiter.start(ctx)

	cm.AddOnPublishReceived(func(pr autopaho.PublishReceived) (bool, error) {
		if !a.rateLimiter.allow() {
			return true, nil
		}
		a.translate(pr.Packet.Topic, pr.Packet.Payload)
		return true, nil
	})

	connCtx, connCancel := context.WithTimeout(ctx, 30*time.Second)
	defer connCancel()
	if err := cm.AwaitConnection(connCtx); err != nil {
		a.logger.Warn("mqttplatform: initial connection timed out, will retry in background", "error", err)
	}

	<-ctx.Done()
	_ = cm.Disconnect(context.Background())
	return nil
}

// Events returns the channel of translated events, suitable as the
// input to demux.Pipe.
func (a *Adapter) Events() <-chan chatevent.Event {
	return a.out
}

func (a *Adapter) translate(topic string, payload []byte) {
	conversationID, ok := a.conversationFromTopic(topic)
	if !ok {
		return
	}

	text := string(payload)
	a.bus.Publish(events.Event{
		Timestamp: time.Now(),
		Source:    events.SourceMQTT,
		Kind:      events.KindMessageReceived,
		Data: map[string]any{
			"conversation_id": conversationID,
			"message_len":     len(text),
		},
	})

	ev := chatevent.Event{
		Kind:           chatevent.KindIncomingMessage,
		ConversationID: conversationID,
		SenderID:       conversationID,
		Timestamp:      time.Now(),
		Text:           text,
	}

	select {
	case a.out <- ev:
	default:
		a.logger.Warn("mqttplatform: output channel full, dropping event", "conversation_id", conversationID)
	}
}

// Send returns an effect that publishes text as a reply to
// conversationID's output topic, for use as the action in an
// episode.Eval step.
func (a *Adapter) Send(conversationID, text string) episode.Effect {
	return func(ctx context.Context) (any, error) {
		if a.cm == nil {
			return nil, fmt.Errorf("mqttplatform: not connected")
		}
		if _, err := a.cm.Publish(ctx, &paho.Publish{
			Topic:   a.outTopic(conversationID),
			Payload: []byte(text),
			QoS:     0,
			Retain:  false,
		}); err != nil {
			return nil, fmt.Errorf("mqttplatform: publish: %w", err)
		}
		return nil, nil
	}
}
