package control

import (
	"bufio"
	"encoding/json"
	"fmt"
	"net"

	"github.com/willdelstrother/tsduck/internal/report"
)

// Controller is the narrow surface the control server needs from a running
// pipeline. It is defined here, not imported from the root package, so
// this package never depends upward on the pipeline it serves — the root
// package instead satisfies this interface implicitly.
type Controller interface {
	RestartStage(index int, args []string, sameArgs bool) error
}

// Server accepts connections and services each newline-delimited Request
// read from a connection, in order, until the client closes it.
type Server struct {
	Controller Controller
	Sink       report.Sink
}

// NewServer constructs a Server backed by controller.
func NewServer(controller Controller, sink report.Sink) *Server {
	if sink == nil {
		sink = report.Discard{}
	}
	return &Server{Controller: controller, Sink: sink}
}

// Serve accepts connections on ln until it returns an error (typically
// because ln was closed).
func (s *Server) Serve(ln net.Listener) error {
	for {
		conn, err := ln.Accept()
		if err != nil {
			return err
		}
		go s.handleConn(conn)
	}
}

func (s *Server) handleConn(conn net.Conn) {
	defer conn.Close()

	scanner := bufio.NewScanner(conn)
	enc := json.NewEncoder(conn)

	for scanner.Scan() {
		var req Request
		if err := json.Unmarshal(scanner.Bytes(), &req); err != nil {
			s.Sink.Warning("control: malformed request: %v", err)
			continue
		}
		resp := s.handle(req)
		if err := enc.Encode(resp); err != nil {
			s.Sink.Warning("control: failed to write response: %v", err)
			return
		}
	}
}

func (s *Server) handle(req Request) Response {
	s.Sink.Info("control: received %s request (correlation_id=%s, stage=%d)", req.Command, req.CorrelationID, req.StageIndex)

	switch req.Command {
	case CommandRestartStage:
		if err := s.Controller.RestartStage(req.StageIndex, req.Args, req.SameArgs); err != nil {
			s.Sink.Warning("control: restart_stage failed (correlation_id=%s): %v", req.CorrelationID, err)
			return errResponse(req.CorrelationID, err)
		}
		return ok(req.CorrelationID)
	default:
		return errResponse(req.CorrelationID, fmt.Errorf("control: unknown command %q", req.Command))
	}
}
