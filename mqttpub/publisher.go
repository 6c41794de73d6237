// Package mqttpub periodically publishes channel status to an MQTT
// broker as JSON, one topic per channel, for external dashboards and
// automation that would rather subscribe than poll the TLV status
// group.
//
// Grounded in ubersdr's mqtt_publisher.go: same paho.mqtt.golang
// client setup (TLS, auto-reconnect, random client ID) and the same
// ticker-driven background publisher goroutine, retargeted from
// ubersdr's Prometheus-metric topics to per-channel status topics.
package mqttpub

import (
	"context"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/ka9q/radiod/channel"
)

// TLSConfig configures an optional mutual-TLS connection to the broker.
type TLSConfig struct {
	Enabled    bool
	CACert     string
	ClientCert string
	ClientKey  string
}

// Config holds everything needed to connect and publish.
type Config struct {
	Broker          string
	Username        string
	Password        string
	Instance        string // top-level topic segment, e.g. hostname
	TopicPrefix     string // defaults to "radiod/<instance>"
	PublishInterval time.Duration
	QoS             byte
	Retain          bool
	TLS             TLSConfig
}

// Publisher publishes one channel-status message per channel, per tick.
type Publisher struct {
	client   mqtt.Client
	cfg      Config
	registry *channel.Registry
}

// channelStatus is the JSON shape published per channel.
type channelStatus struct {
	Timestamp     int64   `json:"timestamp"`
	SSRC          uint32  `json:"ssrc"`
	Frequency     float64 `json:"frequency_hz"`
	Mode          string  `json:"mode"`
	Preset        string  `json:"preset,omitempty"`
	BasebandPower float64 `json:"baseband_power_db"`
	NoiseDensity  float64 `json:"noise_density_db"`
	PLLLocked     bool    `json:"pll_locked"`
}

func generateClientID() string {
	buf := make([]byte, 8)
	_, _ = rand.Read(buf)
	return "radiod_" + hex.EncodeToString(buf)
}

func loadTLSConfig(cfg TLSConfig) (*tls.Config, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	tc := &tls.Config{}
	if cfg.CACert != "" {
		pem, err := os.ReadFile(cfg.CACert)
		if err != nil {
			return nil, fmt.Errorf("mqttpub: read ca cert: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, fmt.Errorf("mqttpub: parse ca cert")
		}
		tc.RootCAs = pool
	}
	if cfg.ClientCert != "" && cfg.ClientKey != "" {
		cert, err := tls.LoadX509KeyPair(cfg.ClientCert, cfg.ClientKey)
		if err != nil {
			return nil, fmt.Errorf("mqttpub: load client cert: %w", err)
		}
		tc.Certificates = []tls.Certificate{cert}
	}
	return tc, nil
}

// New connects to the configured broker and returns a ready Publisher.
func New(cfg Config, registry *channel.Registry) (*Publisher, error) {
	if cfg.TopicPrefix == "" {
		cfg.TopicPrefix = fmt.Sprintf("radiod/%s", cfg.Instance)
	}
	if cfg.PublishInterval <= 0 {
		cfg.PublishInterval = 10 * time.Second
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(generateClientID())
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
	}
	if cfg.Password != "" {
		opts.SetPassword(cfg.Password)
	}
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(10 * time.Second)
	opts.SetKeepAlive(60 * time.Second)
	opts.SetPingTimeout(10 * time.Second)

	if cfg.TLS.Enabled {
		tc, err := loadTLSConfig(cfg.TLS)
		if err != nil {
			return nil, err
		}
		opts.SetTLSConfig(tc)
	}

	opts.SetOnConnectHandler(func(mqtt.Client) {
		log.Println("mqttpub: connected to broker")
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		log.Printf("mqttpub: connection lost: %v", err)
	})

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("mqttpub: connect: %w", token.Error())
	}

	return &Publisher{client: client, cfg: cfg, registry: registry}, nil
}

// Run publishes every channel's status once per PublishInterval until
// ctx is canceled.
func (p *Publisher) Run(ctx context.Context) {
	ticker := time.NewTicker(p.cfg.PublishInterval)
	defer ticker.Stop()

	p.publishAll()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.publishAll()
		}
	}
}

func (p *Publisher) publishAll() {
	now := time.Now().Unix()
	for _, ch := range p.registry.All() {
		status := channelStatus{
			Timestamp:     now,
			SSRC:          ch.SSRC,
			Frequency:     ch.Tuning.RFFrequency,
			Mode:          modeName(ch.Discriminant),
			Preset:        ch.PresetName,
			BasebandPower: ch.Estimates.BasebandPower,
			NoiseDensity:  ch.Estimates.N0,
			PLLLocked:     ch.Estimates.PLLLocked,
		}
		p.publish(fmt.Sprintf("%s/channel/%d", p.cfg.TopicPrefix, ch.SSRC), status)
	}
}

func (p *Publisher) publish(topic string, status channelStatus) {
	data, err := json.Marshal(status)
	if err != nil {
		log.Printf("mqttpub: marshal %s: %v", topic, err)
		return
	}
	token := p.client.Publish(topic, p.cfg.QoS, p.cfg.Retain, data)
	if token.Wait() && token.Error() != nil {
		log.Printf("mqttpub: publish %s: %v", topic, token.Error())
	}
}

// Close disconnects from the broker, waiting up to 250ms to flush.
func (p *Publisher) Close() {
	p.client.Disconnect(250)
}

func modeName(d channel.Discriminant) string {
	switch d {
	case channel.Linear:
		return "linear"
	case channel.FM:
		return "fm"
	case channel.WFM:
		return "wfm"
	case channel.Spectrum:
		return "spectrum"
	default:
		return "none"
	}
}
