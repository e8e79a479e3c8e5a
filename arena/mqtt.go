package arena

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/falcon-onpurpose/NRC-Tournamet-Brackets/models"
)

const (
	defaultConnectTimeout = 10 * time.Second
	publishTimeout        = 5 * time.Second
	qos                   = 1
)

// Topics lays out the arena topic tree under a prefix:
// <prefix>/<tournament>/start and <prefix>/<tournament>/result.
type Topics struct {
	Prefix string
}

func (t Topics) Start(tournamentID int) string {
	return fmt.Sprintf("%s/%d/start", strings.TrimSuffix(t.Prefix, "/"), tournamentID)
}

func (t Topics) Results() string {
	return strings.TrimSuffix(t.Prefix, "/") + "/+/result"
}

// MQTTClient talks to the arena controller over an MQTT broker.
type MQTTClient struct {
	client pahomqtt.Client
	topics Topics
	logger *slog.Logger
}

type MQTTOptions struct {
	Broker      string
	ClientID    string
	TopicPrefix string
}

func ConnectMQTT(opts MQTTOptions, logger *slog.Logger) (*MQTTClient, error) {
	if logger == nil {
		logger = slog.Default()
	}
	c := &MQTTClient{topics: Topics{Prefix: opts.TopicPrefix}, logger: logger}

	po := pahomqtt.NewClientOptions().
		AddBroker(opts.Broker).
		SetClientID(opts.ClientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetMaxReconnectInterval(30 * time.Second).
		SetCleanSession(false)
	po.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
		logger.Warn("arena broker connection lost", "error", err)
	})
	po.SetOnConnectHandler(func(_ pahomqtt.Client) {
		logger.Info("arena broker connected", "broker", opts.Broker)
	})

	c.client = pahomqtt.NewClient(po)
	token := c.client.Connect()
	if !token.WaitTimeout(defaultConnectTimeout) {
		return nil, fmt.Errorf("%w: connect timeout after %v", ErrUnreachable, defaultConnectTimeout)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	return c, nil
}

func (c *MQTTClient) StartMatch(ctx context.Context, params StartParams) error {
	payload, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("encoding start command for match %d: %w", params.MatchID, err)
	}
	if !c.client.IsConnectionOpen() {
		return fmt.Errorf("%w: broker connection down", ErrUnreachable)
	}
	token := c.client.Publish(c.topics.Start(params.TournamentID), qos, false, payload)
	timeout := publishTimeout
	if deadline, ok := ctx.Deadline(); ok && time.Until(deadline) < timeout {
		timeout = time.Until(deadline)
	}
	if !token.WaitTimeout(timeout) {
		return fmt.Errorf("%w: publish timeout for match %d", ErrUnreachable, params.MatchID)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	return nil
}

// SubscribeResults feeds every result report to handler until ctx is done.
// Malformed payloads are logged and dropped.
func (c *MQTTClient) SubscribeResults(ctx context.Context, handler ResultHandler) error {
	token := c.client.Subscribe(c.topics.Results(), qos, func(_ pahomqtt.Client, msg pahomqtt.Message) {
		r, err := DecodeResult(msg.Payload())
		if err != nil {
			c.logger.Warn("dropping malformed arena result", "topic", msg.Topic(), "error", err)
			return
		}
		if err := handler(ctx, r); err != nil {
			c.logger.Warn("arena result rejected", "match_id", r.MatchID, "version", r.Version, "error", err)
		}
	})
	if !token.WaitTimeout(defaultConnectTimeout) {
		return fmt.Errorf("%w: subscribe timeout", ErrUnreachable)
	}
	return token.Error()
}

func (c *MQTTClient) Close() {
	c.client.Disconnect(250)
}

func DecodeResult(payload []byte) (Result, error) {
	var r Result
	if err := json.Unmarshal(payload, &r); err != nil {
		return r, fmt.Errorf("decoding arena result: %w", err)
	}
	if r.MatchID <= 0 {
		return r, fmt.Errorf("arena result without match id")
	}
	if r.Completion == "" {
		r.Completion = models.CompletionCompleted
	}
	return r, nil
}
