package main

//go-build: CGO_ENABLED=0

import (
	"flag"

	"github.com/golang/glog"

	"github.com/robotalks/aerlink/pkg/bridge"
	"github.com/robotalks/aerlink/pkg/framework"
	"github.com/robotalks/aerlink/pkg/l0/board"
	"github.com/robotalks/aerlink/pkg/l0/comm"
	"github.com/robotalks/aerlink/pkg/l0/device"
	"github.com/robotalks/aerlink/pkg/l1"
	env "github.com/robotalks/aerlink/pkg/l1/env/daemon"
)

func init() {
	env.SetDescription(l1.BridgeMeta{Description: "AER bridge device"})
	env.SetupFlags()
	device.SetupFlags()
	board.SetupFlags()
	bridge.SetupFlags()
}

func main() {
	flag.Parse()

	devConf := device.NewConfig()
	b, err := board.NewConfig().Open(devConf.Pins)
	if err != nil {
		glog.Exitf("open board: %v", err)
	}
	defer b.Close()

	dev := device.New(devConf, &b.Board, nil)
	port := dev.Port()
	defer port.Close()

	env := env.NewConfig().MustNewEnv()
	ctl := bridge.NewConfig().
		NewController(env.Registrar, comm.NewClient(comm.NewFIFO(port)), b.Link).
		WithDevice(dev)
	framework.NewLoop().Add(dev, env, ctl).RunOrFail()
}
