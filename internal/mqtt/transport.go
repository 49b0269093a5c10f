// Package mqtt is the chat transport: it carries user messages to the
// agent loop over an MQTT broker and replies, notifications and
// availability back out.
//
// Topic layout, namespaced by bot name:
//
//	hafiz/<name>/ask           inbound user messages (JSON)
//	hafiz/<name>/reply         outbound replies (JSON)
//	hafiz/<name>/notify        one-line owner notifications (plain text)
//	hafiz/<name>/availability  online/offline, retained, with LWT
package mqtt

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/eclipse/paho.golang/autopaho"
	"github.com/eclipse/paho.golang/paho"

	"github.com/hafizlabs/hafiz-agent/internal/config"
	"github.com/hafizlabs/hafiz-agent/internal/guard"
)

// AskFunc runs one inbound message through the agent loop and returns
// the reply text.
type AskFunc func(ctx context.Context, conversationID, text, imageURL string) (string, error)

// askMessage is the inbound payload on the ask topic.
type askMessage struct {
	ConversationID string `json:"conversation_id"`
	Text           string `json:"text"`
	ImageURL       string `json:"image_url,omitempty"`
	Principal      string `json:"principal"`
}

// replyMessage is the outbound payload on the reply topic.
type replyMessage struct {
	ConversationID string `json:"conversation_id"`
	Text           string `json:"text"`
}

// Transport manages the broker connection and the ask/reply exchange.
// It also implements mission.Notifier for dispatcher reports.
type Transport struct {
	cfg     config.MQTTConfig
	ask     AskFunc
	limiter *messageRateLimiter
	logger  *slog.Logger
	cm      *autopaho.ConnectionManager

	// publish is the outbound path, set when the connection comes up.
	publish func(ctx context.Context, topic string, payload []byte, retain bool) error
}

// NewTransport creates a transport. Call Start to connect.
func NewTransport(cfg config.MQTTConfig, ask AskFunc, logger *slog.Logger) *Transport {
	limit := int64(cfg.RateLimitPerMin)
	if limit <= 0 {
		limit = 60
	}
	return &Transport{
		cfg:     cfg,
		ask:     ask,
		limiter: newMessageRateLimiter(limit, time.Minute, logger),
		logger:  logger,
	}
}

// Start connects to the broker, subscribes to the ask topic and
// blocks until ctx is cancelled.
func (t *Transport) Start(ctx context.Context) error {
	brokerURL, err := url.Parse(t.cfg.Broker)
	if err != nil {
		return fmt.Errorf("parse mqtt broker URL: %w", err)
	}

	availTopic := t.availabilityTopic()
	askTopic := t.askTopic()

	pahoCfg := autopaho.ClientConfig{
		ServerUrls:      []*url.URL{brokerURL},
		KeepAlive:       30,
		ConnectUsername: t.cfg.Username,
		ConnectPassword: []byte(t.cfg.Password),
		WillMessage: &paho.WillMessage{
			Topic:   availTopic,
			Payload: []byte("offline"),
			QoS:     1,
			Retain:  true,
		},
		OnConnectionUp: func(cm *autopaho.ConnectionManager, _ *paho.Connack) {
			t.logger.Info("mqtt connected to broker", "broker", t.cfg.Broker)

			if _, err := cm.Subscribe(ctx, &paho.Subscribe{
				Subscriptions: []paho.SubscribeOptions{{Topic: askTopic, QoS: 1}},
			}); err != nil {
				t.logger.Error("mqtt subscribe failed", "topic", askTopic, "error", err)
			}

			if _, err := cm.Publish(ctx, &paho.Publish{
				Topic:   availTopic,
				Payload: []byte("online"),
				QoS:     1,
				Retain:  true,
			}); err != nil {
				t.logger.Warn("mqtt availability publish failed", "error", err)
			}
		},
		OnConnectError: func(err error) {
			t.logger.Warn("mqtt connection error", "error", err)
		},
		ClientConfig: paho.ClientConfig{
			ClientID: "hafiz-" + t.cfg.BotName,
			OnPublishReceived: []func(paho.PublishReceived) (bool, error){
				func(pr paho.PublishReceived) (bool, error) {
					t.onMessage(ctx, pr.Packet.Topic, pr.Packet.Payload)
					return true, nil
				},
			},
		},
	}

	if brokerURL.Scheme == "mqtts" || brokerURL.Scheme == "ssl" {
		pahoCfg.TlsCfg = &tls.Config{MinVersion: tls.VersionTLS12}
	}

	cm, err := autopaho.NewConnection(ctx, pahoCfg)
	if err != nil {
		return fmt.Errorf("mqtt connect: %w", err)
	}
	t.cm = cm
	t.publish = func(ctx context.Context, topic string, payload []byte, retain bool) error {
		_, err := cm.Publish(ctx, &paho.Publish{
			Topic:   topic,
			Payload: payload,
			QoS:     1,
			Retain:  retain,
		})
		return err
	}

	connCtx, connCancel := context.WithTimeout(ctx, 30*time.Second)
	defer connCancel()
	if err := cm.AwaitConnection(connCtx); err != nil {
		// autopaho keeps retrying in the background.
		t.logger.Warn("mqtt initial connection timed out, will retry in background", "error", err)
	}

	go t.limiter.start(ctx)

	<-ctx.Done()
	return nil
}

// Stop publishes offline availability and disconnects.
func (t *Transport) Stop(ctx context.Context) error {
	if t.cm == nil {
		return nil
	}
	if err := t.publish(ctx, t.availabilityTopic(), []byte("offline"), true); err != nil {
		t.logger.Warn("mqtt offline publish failed", "error", err)
	}
	return t.cm.Disconnect(ctx)
}

// Notify publishes a one-line owner notification. Satisfies
// mission.Notifier.
func (t *Transport) Notify(ctx context.Context, line string) error {
	if t.publish == nil {
		return fmt.Errorf("mqtt transport not started")
	}
	if err := t.publish(ctx, t.notifyTopic(), []byte(line), false); err != nil {
		return fmt.Errorf("publish notification: %w", err)
	}
	return nil
}

// onMessage handles one inbound packet. The agent turn runs in its
// own goroutine so a slow model call cannot block the paho reader.
func (t *Transport) onMessage(ctx context.Context, topic string, payload []byte) {
	if topic != t.askTopic() {
		return
	}
	if !t.limiter.allow() {
		return
	}

	msg, err := parseAsk(payload)
	if err != nil {
		t.logger.Warn("mqtt bad ask payload", "error", err, "size", len(payload))
		return
	}

	if msg.Principal != t.cfg.Principal {
		t.logger.Warn("mqtt ask from unknown principal",
			"detail", guard.SanitizeForLog("principal", msg.Principal))
		return
	}

	go t.handleAsk(ctx, msg)
}

func (t *Transport) handleAsk(ctx context.Context, msg askMessage) {
	reply, err := t.ask(ctx, msg.ConversationID, msg.Text, msg.ImageURL)
	if err != nil {
		t.logger.Error("agent turn failed", "conversation_id", msg.ConversationID, "error", err)
		reply = "Something went wrong handling that message. Please try again."
	}

	payload, err := json.Marshal(replyMessage{ConversationID: msg.ConversationID, Text: reply})
	if err != nil {
		t.logger.Error("marshal reply", "error", err)
		return
	}

	if err := t.publish(ctx, t.replyTopic(), payload, false); err != nil {
		t.logger.Error("publish reply", "conversation_id", msg.ConversationID, "error", err)
	}
}

// parseAsk validates the inbound ask payload.
func parseAsk(payload []byte) (askMessage, error) {
	var msg askMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		return askMessage{}, fmt.Errorf("unmarshal ask: %w", err)
	}
	if msg.Text == "" {
		return askMessage{}, fmt.Errorf("ask without text")
	}
	if msg.ConversationID == "" {
		return askMessage{}, fmt.Errorf("ask without conversation_id")
	}
	return msg, nil
}

// --- Topic helpers ---

func (t *Transport) baseTopic() string {
	return "hafiz/" + t.cfg.BotName
}

func (t *Transport) askTopic() string {
	return t.baseTopic() + "/ask"
}

func (t *Transport) replyTopic() string {
	return t.baseTopic() + "/reply"
}

func (t *Transport) notifyTopic() string {
	return t.baseTopic() + "/notify"
}

func (t *Transport) availabilityTopic() string {
	return t.baseTopic() + "/availability"
}
