package main

import (
	"context"
	"flag"
	"log"
	"os"
	"reflect"
	"strings"

	"github.com/robotalks/aerlink/pkg/framework"
	l0 "github.com/robotalks/aerlink/pkg/l0/comm"
	"github.com/robotalks/aerlink/pkg/l1/comm/mqtt"
	env "github.com/robotalks/aerlink/pkg/l1/env/connector"
	"github.com/robotalks/aerlink/pkg/l1/msgs"
)

var (
	mqttURL string
)

func init() {
	if val := os.Getenv("AERLINK_MQTT_URL"); val != "" {
		mqttURL = val
	}
	flag.StringVar(&mqttURL, "mqtt", mqttURL, "MQTT broker URL to watch all bridges, otherwise connect -url.")
	env.SetupFlags()
}

func describe(msg interface{}) string {
	switch m := msg.(type) {
	case *msgs.DeviceEvent:
		pkt, err := m.Decode()
		if err != nil {
			return "bad packet: " + err.Error()
		}
		return l0.Format(pkt)
	case *msgs.DeviceReply:
		pkts, err := m.Packets()
		if err != nil {
			return "bad packets: " + err.Error()
		}
		items := make([]string, len(pkts))
		for n, pkt := range pkts {
			items[n] = l0.Format(pkt)
		}
		return strings.Join(items, "; ")
	case *msgs.DevicePacket:
		pkt, err := m.Packet()
		if err != nil {
			return "bad packet: " + err.Error()
		}
		return l0.Format(pkt)
	case msgs.SerializableMessage:
		return m.Serializable().String()
	}
	return ""
}

func watchBroker() {
	b, err := mqtt.DialBroker(context.Background(), mqttURL)
	if err != nil {
		log.Fatalln(err)
	}
	defer b.Close()

	b.Subscribe("#", func(topic string, payload []byte) {
		if strings.HasSuffix(topic, "/meta") {
			log.Printf("%s: %s", topic, string(payload))
			return
		}
		typed, err := msgs.DecodeTyped(payload)
		if err != nil {
			log.Printf("%s: bad message: %v", topic, err)
			return
		}
		msg, err := typed.Decode()
		if err != nil {
			log.Printf("%s: decode error: (type_id=%x) %v", topic, typed.TypeID, err)
			return
		}
		log.Printf("%s: [%s] %s", topic,
			reflect.Indirect(reflect.ValueOf(msg)).Type().Name(),
			describe(msg))
	})
	<-(chan struct{})(nil)
}

func watchLink() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	link := env.NewConfig().MustOpen(ctx)
	defer link.Close()
	log.Printf("watching %s", link.Ref.Name())
	go func() {
		for pkt := range link.Client.EventChan() {
			log.Println(l0.Format(pkt))
		}
	}()
	if err := framework.NewLoop().Add(link).Run(ctx); err != nil {
		log.Fatalln(err)
	}
}

func main() {
	flag.Parse()
	log.SetFlags(log.Lmicroseconds)
	if mqttURL != "" {
		watchBroker()
		return
	}
	watchLink()
}
