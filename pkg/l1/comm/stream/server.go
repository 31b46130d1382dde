package stream

import (
	"context"
	"net"

	"github.com/golang/glog"

	fx "github.com/robotalks/aerlink/pkg/framework"
	"github.com/robotalks/aerlink/pkg/l1/comm"
)

// Server accepts TCP connections and serves each as a session.
type Server struct {
	Addr     string
	Sessions *comm.Sessions
}

// NewServer creates a Server listening on addr.
func NewServer(addr string, sessions *comm.Sessions) *Server {
	return &Server{Addr: addr, Sessions: sessions}
}

// Run implements Runnable.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.Addr)
	if err != nil {
		return err
	}
	glog.Infof("listening on tcp %s", ln.Addr())
	return fx.RunWithContextCloser(ctx, ln, func() error {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return err
			}
			glog.V(1).Infof("accepted %s", conn.RemoteAddr())
			go s.Sessions.Serve(ctx, New(conn))
		}
	})
}

// Dial connects to a Server.
func Dial(ctx context.Context, addr string) (*ReadWriter, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}
	return New(conn), nil
}
