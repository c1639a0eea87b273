// Package control implements the restart control channel: a small
// newline-delimited JSON protocol over TCP connecting a supervisor process
// (cmd/tspcontrol) to a running pipeline (cmd/tsp's embedded server).
//
// Modeled on TSDuck's own tsp/tspcontrol split — a plain socket protocol,
// not RPC — and on the teacher's control.Handler Command/Response shape
// (References/orion-prototipe/internal/control/handler.go), adapted from an
// MQTT command topic to a direct request/response connection per request.
package control

import (
	"time"

	"github.com/google/uuid"
)

// Request is one control-channel command. CorrelationID is generated by
// the client and echoed back in Response so both processes' logs can be
// joined on one request/response pair.
type Request struct {
	CorrelationID string   `json:"correlation_id"`
	Command       string   `json:"command"`
	StageIndex    int      `json:"stage_index,omitempty"`
	Args          []string `json:"args,omitempty"`
	SameArgs      bool     `json:"same_args,omitempty"`
}

// Response is the server's reply to a Request.
type Response struct {
	CorrelationID string `json:"correlation_id"`
	Status        string `json:"status"` // "ok" | "error"
	Error         string `json:"error,omitempty"`
	Timestamp     string `json:"timestamp"`
}

// CommandRestartStage is the only command this channel currently carries,
// matching spec §6's restart_stage external interface. Other commands
// (abort_pipeline, join_pipeline) are local-process calls in this
// implementation, not exposed remotely — see SPEC_FULL.md §10.4.
const CommandRestartStage = "restart_stage"

// NewCorrelationID returns a fresh correlation id for one request.
func NewCorrelationID() string {
	return uuid.NewString()
}

func ok(correlationID string) Response {
	return Response{CorrelationID: correlationID, Status: "ok", Timestamp: nowRFC3339()}
}

func errResponse(correlationID string, err error) Response {
	return Response{CorrelationID: correlationID, Status: "error", Error: err.Error(), Timestamp: nowRFC3339()}
}

func nowRFC3339() string {
	return time.Now().UTC().Format(time.RFC3339)
}
