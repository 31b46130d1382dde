package sh

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/abiosoft/ishell"

	fx "github.com/robotalks/aerlink/pkg/framework"
	"github.com/robotalks/aerlink/pkg/l0/serialport"
	"github.com/robotalks/aerlink/pkg/l1"
	env "github.com/robotalks/aerlink/pkg/l1/env/connector"
)

var (
	errNotConnected = errors.New("not connected")
	errNoBridge     = errors.New("no device discovered")
)

// serialRefType marks refs naming a local serial port.
const serialRefType = "serial"

// ConnLoop is a running loop with an open device link.
type ConnLoop struct {
	Ctx    context.Context
	Cancel func()
	Ref    l1.BridgeRef
	Loop   *fx.Loop
	Link   *env.Link
}

// FormatInfo formats a bridge for display.
func FormatInfo(info l1.BridgeInfo) string {
	if info.Meta.Description == "" {
		return info.Ref.Name()
	}
	return info.Ref.Name() + ": " + info.Meta.Description
}

func serialPorts() ([]l1.BridgeInfo, error) {
	ports, err := serialport.Ports()
	if err != nil {
		return nil, err
	}
	infoList := make([]l1.BridgeInfo, 0, len(ports))
	for _, port := range ports {
		infoList = append(infoList, l1.BridgeInfo{
			Ref:  l1.BridgeRef{Type: serialRefType, ID: port},
			Meta: l1.BridgeMeta{Description: "serial port"},
		})
	}
	return infoList, nil
}

// Discover lists the reachable bridges, or the local serial ports if the
// URL names a device directly. Only infos accepted by filter are kept.
func (s *Shell) Discover(ctx context.Context, filter func(l1.BridgeInfo) bool) ([]l1.BridgeInfo, error) {
	var infoList []l1.BridgeInfo
	var err error
	if s.Config.IsDirect() {
		infoList, err = serialPorts()
	} else {
		var connector l1.Connector
		if connector, err = s.Config.NewConnector(); err == nil {
			infoList, err = connector.Discover(ctx)
		}
	}
	if err != nil || filter == nil {
		return infoList, err
	}
	kept := infoList[:0]
	for _, info := range infoList {
		if filter(info) {
			kept = append(kept, info)
		}
	}
	return kept, nil
}

// Select discovers and picks one bridge, asking the user if there are
// several.
func (s *Shell) Select(ctx context.Context, filter func(l1.BridgeInfo) bool) (l1.BridgeInfo, error) {
	infoList, err := s.Discover(ctx, filter)
	switch {
	case err != nil:
		return l1.BridgeInfo{}, err
	case len(infoList) == 0:
		return l1.BridgeInfo{}, errNoBridge
	case len(infoList) == 1:
		return infoList[0], nil
	case !s.Interactive():
		return l1.BridgeInfo{}, fmt.Errorf("%d devices discovered in non-interactive mode", len(infoList))
	}
	names := make([]string, len(infoList))
	for n, info := range infoList {
		names[n] = FormatInfo(info)
	}
	return infoList[s.Shell.MultiChoice(names, "Which one to connect?")], nil
}

// Connect opens a link to ref and runs it in a loop of its own, replacing
// the current link. An invalid ref opens the configured device.
func (s *Shell) Connect(ref l1.BridgeRef) error {
	conf := *s.Config
	if ref.Type == serialRefType {
		conf.URL = "serial://" + ref.ID
	}
	ctx, cancel := context.WithCancel(context.Background())
	link, err := conf.Open(ctx, ref)
	if err != nil {
		cancel()
		return err
	}
	s.Disconnect()
	s.Loop = &ConnLoop{
		Ctx:    ctx,
		Cancel: cancel,
		Ref:    link.Ref,
		Loop:   fx.NewLoop().Add(link),
		Link:   link,
	}
	go s.Loop.Loop.Run(ctx)
	s.Shell.SetPrompt(link.Ref.Name() + " > ")
	return nil
}

// Disconnect closes the current link if any.
func (s *Shell) Disconnect() {
	if s.Loop == nil {
		return
	}
	s.Loop.Cancel()
	s.Loop.Link.Close()
	s.Loop = nil
	s.Shell.SetPrompt(offlinePrompt)
}

var (
	// DiscoverCmd lists bridges or serial ports.
	DiscoverCmd = ishell.Cmd{
		Name:    "discover",
		Aliases: []string{"list", "l"},
		Func: func(c *ishell.Context) {
			s := ShellFrom(c)
			infoList, err := s.Discover(context.Background(), nil)
			if err != nil {
				c.Err(err)
				return
			}
			if s.OutputJSON {
				if infoList == nil {
					infoList = []l1.BridgeInfo{}
				}
				PrintJSON(c, infoList)
				return
			}
			if len(infoList) == 0 {
				c.Println("No devices found")
			}
			for _, info := range infoList {
				c.Println(FormatInfo(info))
			}
		},
	}

	// ConnectCmd connects a device, by TYPE/ID or TYPE ID, or picks from
	// the discovered ones.
	ConnectCmd = ishell.Cmd{
		Name:    "connect",
		Aliases: []string{"c"},
		Help:    "[TYPE [ID]]",
		Func: func(c *ishell.Context) {
			s := ShellFrom(c)
			ref, err := refFromArgs(c.Args)
			if err != nil {
				c.Err(err)
				return
			}
			if !ref.IsValid() {
				var filter func(l1.BridgeInfo) bool
				if ref.Type != "" {
					filter = func(info l1.BridgeInfo) bool { return info.Ref.Type == ref.Type }
				}
				info, err := s.Select(context.Background(), filter)
				if err != nil {
					c.Err(err)
					return
				}
				ref = info.Ref
			}
			if err := s.Connect(ref); err != nil {
				c.Err(err)
			}
		},
	}

	// DisconnectCmd closes the current link.
	DisconnectCmd = ishell.Cmd{
		Name:    "disconnect",
		Aliases: []string{"d"},
		Func: func(c *ishell.Context) {
			ShellFrom(c).Disconnect()
		},
	}
)

func refFromArgs(args []string) (ref l1.BridgeRef, err error) {
	switch len(args) {
	case 0:
	case 1:
		if n := strings.Index(args[0], "/"); n > 0 {
			ref.Type, ref.ID = args[0][:n], args[0][n+1:]
		} else {
			ref.Type = args[0]
		}
	case 2:
		ref.Type, ref.ID = args[0], args[1]
	default:
		err = fmt.Errorf("at most TYPE and ID expected")
	}
	return
}
