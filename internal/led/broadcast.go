package led

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"time"

	"codeberg.org/mutker/lightsync/internal/errors"
	"codeberg.org/mutker/lightsync/internal/logger"
	"github.com/eclipse/paho.golang/autopaho"
	"github.com/eclipse/paho.golang/paho"
)

// Broadcaster delivers a structured command to the out-of-process hardware
// service.
type Broadcaster interface {
	Publish(ctx context.Context, topic string, payload []byte) error
	Close() error
}

// Topic suffixes under the configured prefix.
const (
	TopicSprdColor     = "sprd/color"
	TopicColorControl  = "colorfullight/color_control"
	TopicStrobeEffect  = "colorfullight/strobe_effect"
	sprdAlpha          = 0x05
	msgWhatCharging    = 4
	msgWhatNotify      = 5
	effectModeStrobe   = 117
	defaultMQTTTimeout = 3 * time.Second
)

type sprdMessage struct {
	ColorRGB string `json:"colorRGB"`
	Action   string `json:"action"`
}

type colorControlMessage struct {
	MsgWhat int   `json:"msg_what"`
	Red     uint8 `json:"red"`
	Green   uint8 `json:"green"`
	Blue    uint8 `json:"blue"`
}

type strobeMessage struct {
	EffectMode int   `json:"effect_mode"`
	Red        uint8 `json:"red"`
	Green      uint8 `json:"green"`
	Blue       uint8 `json:"blue"`
}

type broadcastMessage struct {
	topic   string
	payload any
}

// SprdColor formats c the way the SPRD lights service expects: a packed
// alpha + RGB lower-case hex string with alpha fixed at 0x05.
func SprdColor(c Color) string {
	return fmt.Sprintf("%02x%02x%02x%02x", sprdAlpha, c.R, c.G, c.B)
}

// colorMessages are the encodings of a color command, tried in order.
func colorMessages(c Color) []broadcastMessage {
	return []broadcastMessage{
		{TopicSprdColor, sprdMessage{ColorRGB: SprdColor(c), Action: "setColor"}},
		{TopicColorControl, colorControlMessage{MsgWhat: msgWhatNotify, Red: c.R, Green: c.G, Blue: c.B}},
		{TopicStrobeEffect, strobeMessage{EffectMode: effectModeStrobe, Red: c.R, Green: c.G, Blue: c.B}},
	}
}

// patternMessages returns the service encoding of p, or nil when the service
// has no equivalent.
func patternMessages(p Pattern) []broadcastMessage {
	switch p.Kind {
	case PatternStrobe:
		c := p.colorOr(White)
		return []broadcastMessage{
			{TopicStrobeEffect, strobeMessage{EffectMode: effectModeStrobe, Red: c.R, Green: c.G, Blue: c.B}},
		}
	case PatternCharging:
		c := p.colorOr(Color{0, 255, 0})
		return []broadcastMessage{
			{TopicColorControl, colorControlMessage{MsgWhat: msgWhatCharging, Red: c.R, Green: c.G, Blue: c.B}},
		}
	case PatternNotification:
		c := p.colorOr(Color{0, 100, 255})
		return []broadcastMessage{
			{TopicColorControl, colorControlMessage{MsgWhat: msgWhatNotify, Red: c.R, Green: c.G, Blue: c.B}},
		}
	default:
		return nil
	}
}

// BroadcastConfig configures the MQTT broadcaster.
type BroadcastConfig struct {
	Broker         string
	ClientID       string
	ConnectTimeout time.Duration
}

type mqttBroadcaster struct {
	cm     *autopaho.ConnectionManager
	cancel context.CancelFunc
	logger logger.Logger
}

// DialMQTT connects to the broker and waits for the first connection up to
// cfg.ConnectTimeout.
func DialMQTT(ctx context.Context, cfg BroadcastConfig, log logger.Logger) (Broadcaster, error) {
	errFactory := errors.New()

	u, err := url.Parse(cfg.Broker)
	if err != nil {
		return nil, errFactory.Wrap(ErrBroadcastFailed, err)
	}

	timeout := cfg.ConnectTimeout
	if timeout <= 0 {
		timeout = defaultMQTTTimeout
	}

	clientCfg := autopaho.ClientConfig{
		ServerUrls:                    []*url.URL{u},
		KeepAlive:                     30,
		ConnectTimeout:                timeout,
		CleanStartOnInitialConnection: true,
		OnConnectionUp: func(*autopaho.ConnectionManager, *paho.Connack) {
			log.Info().Str("broker", cfg.Broker).Msg("Connected to hardware service broker")
		},
		OnConnectError: func(err error) {
			log.Debug().Err(err).Str("broker", cfg.Broker).Msg("Broker connection attempt failed")
		},
		ClientConfig: paho.ClientConfig{
			ClientID: cfg.ClientID,
		},
	}

	// The manager lives until Close; ctx only bounds the initial wait.
	runCtx, cancel := context.WithCancel(context.Background())
	cm, err := autopaho.NewConnection(runCtx, clientCfg)
	if err != nil {
		cancel()
		return nil, errFactory.Wrap(ErrBroadcastFailed, err)
	}

	waitCtx, waitCancel := context.WithTimeout(ctx, timeout)
	defer waitCancel()
	if err := cm.AwaitConnection(waitCtx); err != nil {
		cancel()
		return nil, errFactory.Wrap(ErrBroadcastFailed, err)
	}

	return &mqttBroadcaster{cm: cm, cancel: cancel, logger: log}, nil
}

func (b *mqttBroadcaster) Publish(ctx context.Context, topic string, payload []byte) error {
	_, err := b.cm.Publish(ctx, &paho.Publish{
		Topic:   topic,
		QoS:     1,
		Payload: payload,
	})
	if err != nil {
		return errors.New().Wrap(ErrBroadcastFailed, err)
	}
	return nil
}

func (b *mqttBroadcaster) Close() error {
	defer b.cancel()

	ctx, cancel := context.WithTimeout(context.Background(), defaultMQTTTimeout)
	defer cancel()

	return b.cm.Disconnect(ctx)
}

// publishFirst publishes msgs in order and stops at the first delivery.
func publishFirst(ctx context.Context, b Broadcaster, prefix string, msgs []broadcastMessage, log logger.Logger) error {
	errFactory := errors.New()

	if len(msgs) == 0 {
		return errFactory.New(ErrUnsupported)
	}

	var lastErr error
	for _, m := range msgs {
		payload, err := json.Marshal(m.payload)
		if err != nil {
			lastErr = err
			continue
		}

		topic := m.topic
		if prefix != "" {
			topic = prefix + "/" + m.topic
		}

		if err := b.Publish(ctx, topic, payload); err != nil {
			log.Debug().Err(err).Str("topic", topic).Msg("Broadcast encoding rejected")
			lastErr = err
			continue
		}

		log.Debug().Str("topic", topic).RawJSON("payload", payload).Msg("Broadcast delivered")
		return nil
	}

	return errFactory.Wrap(ErrBroadcastFailed, lastErr)
}
