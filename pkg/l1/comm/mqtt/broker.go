package mqtt

import (
	"context"
	"strings"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/golang/glog"
)

// tokenPoll is how often a pending token checks for cancellation.
const tokenPoll = 50 * time.Millisecond

// Broker is a connection to an MQTT broker with topics relative to a
// prefix. Local handlers share one broker subscription per filter, which
// is restored after reconnecting.
type Broker struct {
	TopicPrefix string
	QoS         byte
	// OnConnect is invoked after every (re)connect.
	OnConnect func(*Broker)

	client paho.Client
	topics topicTable
}

// Subscription is a handler registered on a topic filter.
type Subscription struct {
	broker  *Broker
	filter  string
	handler Handler
}

// NewBroker creates a Broker. The options may be adjusted by configure
// before the client is created.
func NewBroker(u *BrokerURL, configure func(*paho.ClientOptions)) *Broker {
	b := &Broker{TopicPrefix: u.TopicPrefix, QoS: u.QoS}
	opts := u.ClientOptions()
	if configure != nil {
		configure(opts)
	}
	opts.SetOnConnectHandler(b.connected)
	opts.SetConnectionLostHandler(b.connectionLost)
	b.client = paho.NewClient(opts)
	return b
}

// DialBroker parses the URL and connects.
func DialBroker(ctx context.Context, rawURL string) (*Broker, error) {
	u, err := ParseBrokerURL(rawURL)
	if err != nil {
		return nil, err
	}
	b := NewBroker(u, nil)
	if err := b.Connect(ctx); err != nil {
		return nil, err
	}
	return b, nil
}

func waitToken(ctx context.Context, token paho.Token) error {
	for !token.WaitTimeout(tokenPoll) {
		if err := ctx.Err(); err != nil {
			return err
		}
	}
	return token.Error()
}

// Connect connects to the broker.
func (b *Broker) Connect(ctx context.Context) error {
	return waitToken(ctx, b.client.Connect())
}

// IsConnected indicates the client is connected.
func (b *Broker) IsConnected() bool {
	return b.client.IsConnected()
}

// Close implements io.Closer.
func (b *Broker) Close() error {
	b.client.Disconnect(0)
	return nil
}

// Subscribe registers handler on a topic filter.
func (b *Broker) Subscribe(filter string, handler Handler) *Subscription {
	sub := &Subscription{broker: b, filter: filter, handler: handler}
	if b.topics.add(sub) && b.client.IsConnected() {
		glog.V(2).Infof("SUB %q", b.TopicPrefix+filter)
		b.client.Subscribe(b.TopicPrefix+filter, b.QoS, b.dispatch)
	}
	return sub
}

// Publish publishes a message and waits for the broker.
func (b *Broker) Publish(ctx context.Context, topic string, payload []byte) error {
	return waitToken(ctx, b.client.Publish(b.TopicPrefix+topic, b.QoS, false, payload))
}

// PublishRetained publishes a retained message at QoS 1. An empty payload
// clears the retained message.
func (b *Broker) PublishRetained(topic string, payload []byte) paho.Token {
	return b.client.Publish(b.TopicPrefix+topic, 1, true, payload)
}

func (b *Broker) connected(paho.Client) {
	glog.Infof("connected to broker, prefix %q", b.TopicPrefix)
	if filters := b.topics.list(); len(filters) > 0 {
		qos := make(map[string]byte, len(filters))
		for _, filter := range filters {
			glog.V(2).Infof("SUB %q", b.TopicPrefix+filter)
			qos[b.TopicPrefix+filter] = b.QoS
		}
		b.client.SubscribeMultiple(qos, b.dispatch)
	}
	if fn := b.OnConnect; fn != nil {
		fn(b)
	}
}

func (b *Broker) connectionLost(_ paho.Client, err error) {
	glog.Warningf("broker connection lost: %v", err)
}

func (b *Broker) dispatch(_ paho.Client, msg paho.Message) {
	topic := msg.Topic()
	if !strings.HasPrefix(topic, b.TopicPrefix) {
		return
	}
	topic = topic[len(b.TopicPrefix):]
	glog.V(3).Infof("RCV %q", topic)
	payload := msg.Payload()
	for _, handler := range b.topics.handlers(topic) {
		handler(topic, payload)
	}
}

// Close removes the handler, unsubscribing the filter from the broker if
// nothing else listens on it.
func (s *Subscription) Close() error {
	if !s.broker.topics.remove(s) || !s.broker.client.IsConnected() {
		return nil
	}
	glog.V(2).Infof("UNSUB %q", s.filter)
	token := s.broker.client.Unsubscribe(s.broker.TopicPrefix + s.filter)
	token.Wait()
	return token.Error()
}
