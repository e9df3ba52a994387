package trace

import (
	"bytes"
	"encoding/json"
	"io"
	"strings"
	"testing"
)

func TestEventWritesValidJSONToSink(t *testing.T) {
	var buf bytes.Buffer
	Sink(&buf)

	ev := Event("demo.system", 3)
	ev.Done()

	body := strings.TrimPrefix(buf.String(), "[")
	body = strings.TrimSuffix(body, ",")
	var decoded PendingEvent
	if err := json.Unmarshal([]byte(body), &decoded); err != nil {
		t.Fatalf("decode emitted event: %v", err)
	}
	if decoded.Name != "demo.system" {
		t.Fatalf("Name = %q, want %q", decoded.Name, "demo.system")
	}
	if decoded.Tid != 3 {
		t.Fatalf("Tid = %d, want 3", decoded.Tid)
	}
}

func TestEventWithDiscardSinkDoesNotPanic(t *testing.T) {
	Sink(io.Discard) // reset from any previous test's sink
	ev := Event("noop", 0)
	ev.Done()
}
