package build

import (
	"log"
	"testing"

	"github.com/eeks-rt/eeks"
	"github.com/eeks-rt/eeks/internal/cache"
	"github.com/google/go-cmp/cmp"
)

func newTestBuilder(t *testing.T, cfg eeks.Config) *Builder {
	t.Helper()
	b, err := New(cache.New(t.TempDir()), cfg, log.New(testWriter{t}, "", 0))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return b
}

type testWriter struct{ t *testing.T }

func (w testWriter) Write(p []byte) (int, error) {
	w.t.Log(string(p))
	return len(p), nil
}

func TestEnqueueWaitsForSecondMember(t *testing.T) {
	b := newTestBuilder(t, eeks.Config{Batched: true})

	if batch := b.enqueue(Request{Name: "a", InWorkspace: true}); batch != nil {
		t.Fatalf("enqueue returned a batch after only one request: %v", batch)
	}
	batch := b.enqueue(Request{Name: "b", InWorkspace: true})
	if len(batch) != 2 {
		t.Fatalf("enqueue returned %d requests after the second arrived, want 2", len(batch))
	}
	if len(b.pending) != 0 {
		t.Fatalf("enqueue left %d requests pending after draining the batch", len(b.pending))
	}
}

func TestBuildEnvWrapsSccacheForStandaloneOnly(t *testing.T) {
	b := newTestBuilder(t, eeks.Config{Sccache: true})

	standalone := b.buildEnv(Request{InWorkspace: false})
	if !containsPrefix(standalone, "CC=sccache") {
		t.Fatalf("buildEnv for a standalone request did not wrap CC with sccache: %v", standalone)
	}

	workspace := b.buildEnv(Request{InWorkspace: true})
	if containsPrefix(workspace, "CC=sccache") {
		t.Fatalf("buildEnv wrapped CC with sccache for a workspace member: %v", workspace)
	}
}

func TestTailTruncatesFromTheEnd(t *testing.T) {
	got := tail([]byte("abcdefgh"), 3)
	if diff := cmp.Diff("fgh", got); diff != "" {
		t.Fatalf("tail() mismatch (-want +got):\n%s", diff)
	}
	if got := tail([]byte("ab"), 3); got != "ab" {
		t.Fatalf("tail() of a shorter-than-n slice = %q, want the slice unchanged", got)
	}
}

func containsPrefix(env []string, prefix string) bool {
	for _, kv := range env {
		if len(kv) >= len(prefix) && kv[:len(prefix)] == prefix {
			return true
		}
	}
	return false
}
