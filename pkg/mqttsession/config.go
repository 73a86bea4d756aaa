package mqttsession

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"
)

// Config holds all necessary configuration for the MQTT session and its
// reconnect loop.
type Config struct {
	// Broker is the host name or IP address of the MQTT broker.
	Broker string `env:"MQTT_BROKER,required,notEmpty"`
	// Port is the broker's TCP port.
	Port int `env:"MQTT_PORT,required,notEmpty"`
	// Scheme is one of tcp, ssl, tls, ws or wss.
	Scheme string `env:"MQTT_SCHEME" envDefault:"tcp"`
	// ClientIDPrefix is extended with a unique suffix on every connect attempt.
	ClientIDPrefix string `env:"MQTT_CLIENT_ID_PREFIX" envDefault:"mqtt-bridge-"`
	Username       string `env:"MQTT_USERNAME"`
	Password       string `env:"MQTT_PASSWORD"`

	KeepAlive      time.Duration `env:"MQTT_KEEP_ALIVE" envDefault:"60s"`
	ConnectTimeout time.Duration `env:"MQTT_CONNECT_TIMEOUT" envDefault:"30s"`
	// RetryDelay is the fixed pause between a lost session and the next connect attempt.
	RetryDelay   time.Duration `env:"MQTT_RETRY_DELAY" envDefault:"5s"`
	CleanSession bool          `env:"MQTT_CLEAN_SESSION" envDefault:"true"`

	// CACertFile is an optional path to a CA certificate for verifying the broker.
	CACertFile string `env:"MQTT_CA_CERT_FILE"`
	// ClientCertFile and ClientKeyFile enable mTLS when both are set.
	ClientCertFile string `env:"MQTT_CLIENT_CERT_FILE"`
	ClientKeyFile  string `env:"MQTT_CLIENT_KEY_FILE"`
	// InsecureSkipVerify skips TLS certificate verification.
	// This is NOT recommended for production environments.
	InsecureSkipVerify bool `env:"MQTT_INSECURE_SKIP_VERIFY"`
}

// DefaultRetryDelay is used when RetryDelay is unset.
const DefaultRetryDelay = 5 * time.Second

var schemes = map[string]bool{"tcp": true, "ssl": true, "tls": true, "ws": true, "wss": true}

// Validate checks the broker address and fills zero-valued durations with defaults.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Broker) == "" {
		return errors.New("missing required environment variable MQTT_BROKER")
	}
	if c.Port == 0 {
		return errors.New("missing required environment variable MQTT_PORT")
	}
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("MQTT_PORT out of range: %d", c.Port)
	}
	if c.Scheme == "" {
		c.Scheme = "tcp"
	}
	c.Scheme = strings.ToLower(c.Scheme)
	if !schemes[c.Scheme] {
		return fmt.Errorf("unsupported MQTT_SCHEME %q", c.Scheme)
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = DefaultRetryDelay
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = 30 * time.Second
	}
	if c.KeepAlive <= 0 {
		c.KeepAlive = 60 * time.Second
	}
	return nil
}

// Address returns host:port.
func (c Config) Address() string {
	return net.JoinHostPort(c.Broker, strconv.Itoa(c.Port))
}

// BrokerURL returns the URL handed to the Paho client, e.g. tcp://host:1883.
func (c Config) BrokerURL() string {
	scheme := c.Scheme
	if scheme == "" {
		scheme = "tcp"
	}
	return scheme + "://" + c.Address()
}

// UsesTLS reports whether the scheme requires a TLS configuration.
func (c Config) UsesTLS() bool {
	switch c.Scheme {
	case "ssl", "tls", "wss":
		return true
	}
	return false
}
