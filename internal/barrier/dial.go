package barrier

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// DialOptions configures the broker connection of a wall process.
type DialOptions struct {
	// Broker is host:port, or a full URL such as tcp://host:1883.
	Broker   string
	ClientID string
	Timeout  time.Duration
	Logger   *slog.Logger
}

// Dial connects to the broker with automatic reconnection. The session is
// persistent so subscriptions survive a reconnect.
func Dial(opts DialOptions) (mqtt.Client, error) {
	if opts.Timeout <= 0 {
		opts.Timeout = 5 * time.Second
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	broker := opts.Broker
	if !strings.Contains(broker, "://") {
		broker = "tcp://" + broker
	}

	co := mqtt.NewClientOptions()
	co.AddBroker(broker)
	co.SetClientID(opts.ClientID)
	co.SetCleanSession(false)
	co.SetAutoReconnect(true)
	co.SetConnectRetry(true)
	co.SetConnectRetryInterval(2 * time.Second)
	co.SetMaxReconnectInterval(30 * time.Second)

	co.OnConnect = func(mqtt.Client) {
		logger.Info("mqtt connection established",
			"broker", broker,
			"client_id", opts.ClientID,
		)
	}
	co.OnConnectionLost = func(_ mqtt.Client, err error) {
		logger.Warn("mqtt connection lost, will auto-reconnect",
			"error", err,
			"broker", broker,
		)
	}

	client := mqtt.NewClient(co)
	logger.Info("connecting to mqtt broker", "broker", broker)

	token := client.Connect()
	if !token.WaitTimeout(opts.Timeout) {
		// stop the connect retry loop
		client.Disconnect(0)
		return nil, fmt.Errorf("barrier: connect %s: %w", broker, ErrTimeout)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("barrier: connect %s: %w", broker, err)
	}
	return client, nil
}
