// Package sh is the interactive shell of aercli. Command packages add
// their commands with AddCmds from init.
package sh

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/abiosoft/ishell"

	env "github.com/robotalks/aerlink/pkg/l1/env/connector"
)

const (
	shellKey      = "$shell"
	offlinePrompt = "[none] > "
)

// Options are the shell options from the command line.
type Options struct {
	// EvalOnly runs the command line arguments without an interactive shell.
	EvalOnly   bool
	OutputJSON bool
	Timeout    time.Duration
}

var (
	options = Options{Timeout: 2 * time.Second}

	registered = []*ishell.Cmd{
		&DiscoverCmd,
		&ConnectCmd,
		&DisconnectCmd,
	}
)

func init() {
	flag.BoolVar(&options.EvalOnly, "e", options.EvalOnly, "Evaluate the arguments only, no interactive shell.")
	flag.BoolVar(&options.OutputJSON, "json", options.OutputJSON, "Print output in JSON.")
	flag.DurationVar(&options.Timeout, "timeout", options.Timeout, "Time to wait for a reply.")
}

// AddCmds registers commands, it must be called from init.
func AddCmds(cmds ...*ishell.Cmd) {
	registered = append(registered, cmds...)
}

// Shell is an ishell with a device link.
type Shell struct {
	Options
	AutoConnect bool

	Shell  *ishell.Shell
	Config *env.Config
	Loop   *ConnLoop
}

// New creates a shell with all registered commands.
func New(conf *env.Config, opts Options) *Shell {
	s := &Shell{Options: opts, Shell: ishell.New(), Config: conf}
	s.Shell.Set(shellKey, s)
	s.Shell.SetPrompt(offlinePrompt)
	for _, cmd := range registered {
		s.Shell.AddCmd(cmd)
	}
	return s
}

// ShellFrom gets the Shell from the ishell context.
func ShellFrom(c *ishell.Context) *Shell {
	return c.Get(shellKey).(*Shell)
}

// Interactive indicates the shell may prompt the user.
func (s *Shell) Interactive() bool {
	return !s.EvalOnly
}

// WithAutoConnect sets AutoConnect.
func (s *Shell) WithAutoConnect(en bool) *Shell {
	s.AutoConnect = en
	return s
}

// MustBeConnected wraps a command func requiring a link.
func MustBeConnected(fn func(c *ishell.Context)) func(c *ishell.Context) {
	return func(c *ishell.Context) {
		if ShellFrom(c).Loop == nil {
			c.Err(errNotConnected)
			return
		}
		fn(c)
	}
}

// PrintJSON prints v as a JSON line.
func PrintJSON(c *ishell.Context, v interface{}) error {
	out, err := json.Marshal(v)
	if err != nil {
		c.Err(err)
		return err
	}
	c.Println(string(out))
	return nil
}

// Run connects if configured and runs args as a command, or the
// interactive shell without args.
func (s *Shell) Run(args ...string) {
	if s.AutoConnect && (s.Config.IsDirect() || s.Config.Ref.IsValid()) {
		if s.Interactive() {
			s.Shell.Printf("Connecting %s ...\n", s.Config.URL)
		}
		if err := s.Connect(s.Config.Ref); err != nil {
			log.Fatalf("connect %q failed: %v", s.Config.URL, err)
		}
	}
	switch {
	case len(args) > 0:
		err := s.Shell.Process(args...)
		s.Disconnect()
		if err != nil {
			log.Fatalln(err)
		}
	case s.Interactive():
		s.Shell.Run()
		s.Disconnect()
	default:
		log.Fatalln(fmt.Errorf("command expected"))
	}
}

// Main parses the command line and runs the shell.
func Main() {
	flag.Parse()
	New(env.NewConfig(), options).WithAutoConnect(true).Run(flag.Args()...)
}
