package main

//go-build: CGO_ENABLED=0

import (
	"flag"
	"os"

	"github.com/golang/glog"

	"github.com/robotalks/aerlink/pkg/bridge"
	"github.com/robotalks/aerlink/pkg/framework"
	"github.com/robotalks/aerlink/pkg/l0/comm"
	"github.com/robotalks/aerlink/pkg/l0/serialport"
	"github.com/robotalks/aerlink/pkg/l1"
	env "github.com/robotalks/aerlink/pkg/l1/env/daemon"
)

var deviceURL = "serial:///dev/ttyACM0"

func init() {
	if val := os.Getenv("AERLINK_SERIAL"); val != "" {
		deviceURL = val
	}
	flag.StringVar(&deviceURL, "device", deviceURL, "Serial device URL, e.g. serial:///dev/ttyACM0?baud=115200")
	env.SetDescription(l1.BridgeMeta{Description: "AER bridge over serial"})
	env.SetupFlags()
	bridge.SetupFlags()
}

func main() {
	flag.Parse()

	opts, err := serialport.ParseURL(deviceURL)
	if err != nil {
		glog.Exitf("invalid device URL: %v", err)
	}
	port, err := serialport.Open(opts)
	if err != nil {
		glog.Exitf("open %s: %v", opts.Path, err)
	}
	defer port.Close()

	env := env.NewConfig().MustNewEnv()
	ctl := bridge.NewConfig().NewController(env.Registrar, comm.NewClient(serialport.NewFIFO(port, opts)), opts.Path)
	framework.NewLoop().Add(env, ctl).RunOrFail()
}
