// Package commandserver accepts one command per inbound TCP connection on
// a loopback address and forwards it to the coordinator. The protocol is
// fire-and-forget: no reply is ever written, not even for errors.
package commandserver

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/stavrosk/sttcoord/api/command"
	"github.com/stavrosk/sttcoord/internal/audit"
)

// Dispatcher applies one decoded command.
type Dispatcher interface {
	Handle(cmd command.Command) error
}

// Config controls listener behavior.
type Config struct {
	// Addr is the loopback listen address.
	Addr string
	// AcceptTimeout bounds each blocking accept so the shutdown context
	// is observed periodically. Accept cannot be interrupted directly.
	AcceptTimeout time.Duration
	// ReadTimeout bounds reading the single command line.
	ReadTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.Addr == "" {
		c.Addr = "127.0.0.1:35000"
	}
	if c.AcceptTimeout <= 0 {
		c.AcceptTimeout = time.Second
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = time.Second
	}
	return c
}

// readLimit is the fixed receive buffer; commands are short tags.
const readLimit = 1024

// Server is the command channel listener.
type Server struct {
	cfg        Config
	dispatcher Dispatcher
	emitter    audit.Emitter
	session    string

	ln *net.TCPListener
}

// New constructs a listener. It does not bind until Listen is called.
func New(cfg Config, dispatcher Dispatcher, emitter audit.Emitter, sessionID string) (*Server, error) {
	if dispatcher == nil {
		return nil, fmt.Errorf("dispatcher is required")
	}
	if emitter == nil {
		emitter = audit.Noop()
	}
	return &Server{cfg: cfg.withDefaults(), dispatcher: dispatcher, emitter: emitter, session: sessionID}, nil
}

// Listen binds the configured address.
func (s *Server) Listen() error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("bind command channel %s: %w", s.cfg.Addr, err)
	}
	tcpLn, ok := ln.(*net.TCPListener)
	if !ok {
		_ = ln.Close()
		return fmt.Errorf("command channel requires a tcp listener, got %T", ln)
	}
	s.ln = tcpLn
	s.emitter.Emit(audit.KindLifecycle, audit.SeverityInfo, "command channel listening",
		map[string]string{"addr": tcpLn.Addr().String()}, audit.Correlation{SessionID: s.session})
	return nil
}

// Addr returns the bound address. Valid after Listen.
func (s *Server) Addr() net.Addr {
	if s.ln == nil {
		return nil
	}
	return s.ln.Addr()
}

// Serve runs the accept loop until ctx is canceled or the listener is
// closed. One command per connection; unknown tags are logged and dropped.
func (s *Server) Serve(ctx context.Context) error {
	if s.ln == nil {
		return fmt.Errorf("serve called before listen")
	}
	defer func() {
		_ = s.ln.Close()
		s.emitter.Emit(audit.KindLifecycle, audit.SeverityInfo, "command channel stopped", nil,
			audit.Correlation{SessionID: s.session})
	}()

	for {
		if ctx.Err() != nil {
			return nil
		}
		if err := s.ln.SetDeadline(time.Now().Add(s.cfg.AcceptTimeout)); err != nil {
			return fmt.Errorf("set accept deadline: %w", err)
		}
		conn, err := s.ln.Accept()
		if err != nil {
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				continue
			}
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			s.emitter.Emit(audit.KindError, audit.SeverityError, "accept failed",
				map[string]string{"error": err.Error()}, audit.Correlation{SessionID: s.session})
			continue
		}
		s.handleConn(conn)
	}
}

// Close unblocks a pending accept. Safe to call more than once.
func (s *Server) Close() error {
	if s.ln == nil {
		return nil
	}
	return s.ln.Close()
}

func (s *Server) handleConn(conn net.Conn) {
	defer conn.Close()

	_ = conn.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout))
	buf := make([]byte, readLimit)
	n, err := conn.Read(buf)
	if err != nil && n == 0 {
		s.emitter.Emit(audit.KindError, audit.SeverityWarn, "command read failed",
			map[string]string{"error": err.Error()}, audit.Correlation{SessionID: s.session})
		return
	}

	raw := string(buf[:n])
	cmd, err := command.Parse(raw)
	if err != nil {
		s.emitter.Emit(audit.KindReject, audit.SeverityWarn, "unknown command dropped",
			map[string]string{"raw": raw}, audit.Correlation{SessionID: s.session})
		return
	}

	s.emitter.Emit(audit.KindLifecycle, audit.SeverityInfo, "command received", nil,
		audit.Correlation{SessionID: s.session, Command: string(cmd)})
	if err := s.dispatcher.Handle(cmd); err != nil {
		// Rejections and failures are reported locally only; the channel
		// never carries a reply.
		s.emitter.Emit(audit.KindError, audit.SeverityWarn, "command not applied",
			map[string]string{"error": err.Error()}, audit.Correlation{SessionID: s.session, Command: string(cmd)})
	}
}
