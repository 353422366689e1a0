// Package mqttpub publishes test results and terminal traffic to an
// MQTT broker so dashboards can follow a run live.
package mqttpub

import (
	"encoding/json"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"

	"github.com/Nistp/SerialTerminalGUI/config"
	"github.com/Nistp/SerialTerminalGUI/serialio"
	"github.com/Nistp/SerialTerminalGUI/testsuite"
)

// Publisher wraps a connected MQTT client. All publishes are QoS 1,
// non-retained, fire-and-forget.
type Publisher struct {
	log    zerolog.Logger
	client mqtt.Client
	prefix string
}

// Connect dials the broker described by cfg.
func Connect(log zerolog.Logger, cfg config.MQTT) (*Publisher, error) {
	prefix := cfg.TopicPrefix
	if prefix == "" {
		prefix = "serialtest"
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("tcp://%s:%d", cfg.Broker, cfg.Port))
	opts.SetClientID(cfg.ClientID)
	opts.SetUsername(cfg.Username)
	opts.SetPassword(cfg.Password)
	opts.SetConnectTimeout(10 * time.Second)
	opts.SetKeepAlive(30 * time.Second)
	opts.SetPingTimeout(5 * time.Second)
	opts.SetAutoReconnect(true)
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		log.Warn().Err(err).Msg("MQTT connection lost")
	})
	opts.SetOnConnectHandler(func(_ mqtt.Client) {
		log.Info().Str("broker", cfg.Broker).Msg("connected to MQTT broker")
	})

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("connect to MQTT broker: %w", token.Error())
	}
	return &Publisher{log: log, client: client, prefix: prefix}, nil
}

// PublishResult sends one finalized result to <prefix>/result/<name>.
func (p *Publisher) PublishResult(tc testsuite.TestCase, result testsuite.TestResult) {
	payload := struct {
		Name   string               `json:"name"`
		Result testsuite.TestResult `json:"result"`
	}{Name: tc.Name, Result: result}
	p.publishJSON(fmt.Sprintf("%s/result/%s", p.prefix, tc.Name), payload)
}

// PublishSummary sends the run totals to <prefix>/run.
func (p *Publisher) PublishSummary(passed, total int) {
	payload := struct {
		Passed int       `json:"passed"`
		Total  int       `json:"total"`
		At     time.Time `json:"at"`
	}{Passed: passed, Total: total, At: time.Now()}
	p.publishJSON(p.prefix+"/run", payload)
}

// PublishMessage mirrors one terminal line to <prefix>/terminal.
func (p *Publisher) PublishMessage(msg serialio.Message) {
	p.publishJSON(p.prefix+"/terminal", msg)
}

func (p *Publisher) publishJSON(topic string, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		p.log.Warn().Err(err).Str("topic", topic).Msg("failed to encode MQTT payload")
		return
	}
	token := p.client.Publish(topic, 1, false, data)
	go func() {
		if token.Wait() && token.Error() != nil {
			p.log.Warn().Err(token.Error()).Str("topic", topic).Msg("MQTT publish failed")
		}
	}()
}

// Close disconnects from the broker.
func (p *Publisher) Close() {
	p.client.Disconnect(250)
}
