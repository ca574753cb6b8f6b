package telemetry

import (
	"context"
	"encoding/json"
	"log"
	"net/url"
	"time"

	"github.com/eclipse/paho.golang/autopaho"
	"github.com/eclipse/paho.golang/paho"
	"github.com/google/uuid"
	"github.com/w1xm/scan_drive/control"
)

type publisher interface {
	Publish(ctx context.Context, p *paho.Publish) (*paho.PublishResponse, error)
}

// MQTT publishes every scan as a JSON sample. Samples are queued and
// dropped if the broker cannot keep up.
type MQTT struct {
	cm      *autopaho.ConnectionManager
	pub     publisher
	topic   string
	samples chan Sample
	dropped uint64
	done    chan struct{}
	now     func() time.Time
}

const queueLength = 64

func DialMQTT(ctx context.Context, broker, topic string) (*MQTT, error) {
	u, err := url.Parse(broker)
	if err != nil {
		return nil, err
	}
	cliCfg := autopaho.ClientConfig{
		BrokerUrls:     []*url.URL{u},
		KeepAlive:      20,
		OnConnectionUp: func(cm *autopaho.ConnectionManager, connAck *paho.Connack) { log.Printf("mqtt connection to %v up", u) },
		OnConnectError: func(err error) { log.Printf("error whilst attempting mqtt connection: %s", err) },
		ClientConfig: paho.ClientConfig{
			ClientID:      "scan_drive-" + uuid.NewString(),
			OnClientError: func(err error) { log.Printf("mqtt client error: %s", err) },
			OnServerDisconnect: func(d *paho.Disconnect) {
				if d.Properties != nil {
					log.Printf("server requested disconnect: %s", d.Properties.ReasonString)
				} else {
					log.Printf("server requested disconnect; reason code: %d", d.ReasonCode)
				}
			},
		},
	}
	cm, err := autopaho.NewConnection(ctx, cliCfg)
	if err != nil {
		return nil, err
	}
	m := newMQTT(cm, topic)
	m.cm = cm
	go m.publishLoop(ctx)
	return m, nil
}

func newMQTT(pub publisher, topic string) *MQTT {
	return &MQTT{
		pub:     pub,
		topic:   topic,
		samples: make(chan Sample, queueLength),
		done:    make(chan struct{}),
		now:     time.Now,
	}
}

func (m *MQTT) Observe(c control.Cycle) {
	select {
	case m.samples <- NewSample(c, m.now()):
	default:
		m.dropped++
		if m.dropped%100 == 1 {
			log.Printf("mqtt queue full; %d samples dropped", m.dropped)
		}
	}
}

func (m *MQTT) publishLoop(ctx context.Context) {
	defer close(m.done)
	for {
		select {
		case <-ctx.Done():
			return
		case s, ok := <-m.samples:
			if !ok {
				return
			}
			if err := m.publish(ctx, s); err != nil {
				log.Printf("publishing to %q: %v", m.topic, err)
			}
		}
	}
}

func (m *MQTT) publish(ctx context.Context, s Sample) error {
	payload, err := json.Marshal(s)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	_, err = m.pub.Publish(ctx, &paho.Publish{
		Topic:   m.topic,
		QoS:     0,
		Payload: payload,
	})
	return err
}

// Close stops publishing and disconnects. Observe must not be called
// afterwards.
func (m *MQTT) Close() {
	close(m.samples)
	<-m.done
	if m.cm != nil {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		m.cm.Disconnect(ctx)
	}
}
