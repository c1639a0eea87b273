package control

import (
	"encoding/json"
	"errors"
	"net"
	"testing"

	"github.com/willdelstrother/tsduck/internal/report"
)

type fakeController struct {
	lastIndex int
	lastArgs  []string
	failWith  error
}

func (f *fakeController) RestartStage(index int, args []string, sameArgs bool) error {
	f.lastIndex = index
	f.lastArgs = args
	return f.failWith
}

func startTestServer(t *testing.T, controller Controller) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { ln.Close() })

	srv := NewServer(controller, report.Discard{})
	go srv.Serve(ln)

	return ln.Addr().String()
}

func TestClientServerRestartStageOK(t *testing.T) {
	controller := &fakeController{}
	addr := startTestServer(t, controller)

	client := NewClient(addr)
	correlationID, resp, err := client.RestartStage(2, []string{"--rate", "1000"}, false)
	if err != nil {
		t.Fatalf("RestartStage: %v", err)
	}
	if resp.Status != "ok" {
		t.Fatalf("status = %q, want ok", resp.Status)
	}
	if resp.CorrelationID != correlationID {
		t.Fatalf("response correlation id %q != request %q", resp.CorrelationID, correlationID)
	}
	if controller.lastIndex != 2 {
		t.Fatalf("lastIndex = %d, want 2", controller.lastIndex)
	}
}

func TestClientServerRestartStageError(t *testing.T) {
	controller := &fakeController{failWith: errors.New("invalid argument")}
	addr := startTestServer(t, controller)

	client := NewClient(addr)
	_, resp, err := client.RestartStage(0, []string{"--bad"}, false)
	if err != nil {
		t.Fatalf("RestartStage transport error: %v", err)
	}
	if resp.Status != "error" || resp.Error == "" {
		t.Fatalf("resp = %+v, want status=error with message", resp)
	}
}

func TestUnknownCommandReturnsError(t *testing.T) {
	controller := &fakeController{}
	addr := startTestServer(t, controller)

	conn, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()

	if _, err := conn.Write([]byte(`{"correlation_id":"x","command":"bogus"}` + "\n")); err != nil {
		t.Fatal(err)
	}

	buf := make([]byte, 1024)
	n, err := conn.Read(buf)
	if err != nil {
		t.Fatal(err)
	}
	if string(buf[:n]) == "" {
		t.Fatal("expected a response body")
	}
	var resp Response
	if err := json.Unmarshal(buf[:n], &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Status != "error" || resp.Error == "" {
		t.Fatalf("resp = %+v, want status=error with message", resp)
	}
}
