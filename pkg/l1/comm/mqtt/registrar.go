package mqtt

import (
	"context"
	"encoding/json"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/golang/glog"

	fx "github.com/robotalks/aerlink/pkg/framework"
	"github.com/robotalks/aerlink/pkg/l1"
	"github.com/robotalks/aerlink/pkg/l1/comm"
)

// Registrar implements l1.Registrar using MQTT. The bridge info is kept
// retained on the meta topic while the bridge is up, and cleared by the
// will message when the bridge drops off.
type Registrar struct {
	Broker *Broker
	Info   l1.BridgeInfo

	topics    Topics
	meta      []byte
	registrar comm.Registrar
}

// NewRegistrar creates a Registrar.
func NewRegistrar(brokerURL string, info l1.BridgeInfo) (*Registrar, error) {
	u, err := ParseBrokerURL(brokerURL)
	if err != nil {
		return nil, err
	}
	meta, err := json.Marshal(&info.Meta)
	if err != nil {
		return nil, err
	}
	r := &Registrar{Info: info, topics: TopicsOf(info.Ref), meta: meta}
	r.Broker = NewBroker(u, func(opts *paho.ClientOptions) {
		opts.SetBinaryWill(u.TopicPrefix+r.topics.Meta, nil, 1, true)
		if u.ClientID == "" {
			opts.SetClientID("aerlink:" + info.Ref.Name())
		}
	})
	r.Broker.OnConnect = func(b *Broker) {
		b.PublishRetained(r.topics.Meta, r.meta)
	}
	r.registrar.Init(BridgeSide(r.Broker, info.Ref))
	return r, nil
}

// SendEvent implements l1.Registrar. Events are dropped while the broker
// is unreachable.
func (r *Registrar) SendEvent(ctx context.Context, msg fx.Message) error {
	if !r.Broker.IsConnected() {
		return nil
	}
	return r.registrar.SendEvent(ctx, msg)
}

// AddToLoop implements framework.LoopAdder.
func (r *Registrar) AddToLoop(loop *fx.Loop) {
	loop.Add(&r.registrar)
	loop.AddRunnable(r)
}

// Run implements framework.Runnable.
func (r *Registrar) Run(ctx context.Context) error {
	if err := r.Broker.Connect(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	if token := r.Broker.PublishRetained(r.topics.Meta, nil); !token.WaitTimeout(tokenPoll * 10) {
		glog.Warning("meta not cleared before disconnect")
	}
	return r.Broker.Close()
}
