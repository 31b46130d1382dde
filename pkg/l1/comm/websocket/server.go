package websocket

import (
	"context"
	"net"
	"net/http"

	"github.com/golang/glog"
	"golang.org/x/net/websocket"

	fx "github.com/robotalks/aerlink/pkg/framework"
	"github.com/robotalks/aerlink/pkg/l1/comm"
)

// DefaultPath is the HTTP path the bridge is served on.
const DefaultPath = "/aerlink"

// Server accepts websocket connections and serves each as a session.
type Server struct {
	Addr     string
	Path     string
	Sessions *comm.Sessions
}

// NewServer creates a Server listening on addr.
func NewServer(addr string, sessions *comm.Sessions) *Server {
	return &Server{Addr: addr, Path: DefaultPath, Sessions: sessions}
}

// Run implements Runnable.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.Addr)
	if err != nil {
		return err
	}
	mux := http.NewServeMux()
	mux.Handle(s.Path, websocket.Handler(func(conn *websocket.Conn) {
		glog.V(1).Infof("accepted %s", conn.Request().RemoteAddr)
		s.Sessions.Serve(ctx, New(conn))
	}))
	srv := &http.Server{Handler: mux}
	glog.Infof("listening on ws://%s%s", ln.Addr(), s.Path)
	return fx.RunWithContextCloser(ctx, srv, func() error {
		return srv.Serve(ln)
	})
}

// Dial connects to a websocket URL, e.g. ws://host:port/aerlink.
func Dial(url string) (*ReadWriter, error) {
	conn, err := websocket.Dial(url, "", "http://localhost/")
	if err != nil {
		return nil, err
	}
	return New(conn), nil
}
