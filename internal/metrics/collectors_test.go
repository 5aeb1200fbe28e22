package metrics

import (
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

type fakeQueue struct{ depth, inFlight, workers int }

func (f fakeQueue) QueueDepth() int { return f.depth }
func (f fakeQueue) InFlight() int   { return f.inFlight }
func (f fakeQueue) Workers() int    { return f.workers }

func TestDispatcherCollector(t *testing.T) {
	c := newDispatcherCollector(fakeQueue{depth: 3, inFlight: 2, workers: 4})
	want := `
# HELP synth_dispatcher_in_flight Generation requests currently being processed.
# TYPE synth_dispatcher_in_flight gauge
synth_dispatcher_in_flight 2
# HELP synth_dispatcher_queue_depth Generation requests waiting for a worker.
# TYPE synth_dispatcher_queue_depth gauge
synth_dispatcher_queue_depth 3
`
	if err := testutil.CollectAndCompare(c, strings.NewReader(want), "synth_dispatcher_queue_depth", "synth_dispatcher_in_flight"); err != nil {
		t.Fatal(err)
	}
	if n := testutil.CollectAndCount(c); n != 3 {
		t.Fatalf("expected 3 gauges, got %d", n)
	}
}

func TestRedisCollector(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	_, _ = mr.SetAdd("synth:status:pending", "r1", "r2")
	_, _ = mr.SetAdd("synth:status:completed", "r3")
	mr.HSet("synth:runs", "r3", "{}")

	want := `
# HELP synth_requests Stored generation requests by status.
# TYPE synth_requests gauge
synth_requests{status="cancelled"} 0
synth_requests{status="completed"} 1
synth_requests{status="failed"} 0
synth_requests{status="pending"} 2
synth_requests{status="processing"} 0
# HELP synth_search_runs Stored optimization search runs.
# TYPE synth_search_runs gauge
synth_search_runs 1
`
	if err := testutil.CollectAndCompare(newRedisCollector(rdb, nil), strings.NewReader(want)); err != nil {
		t.Fatal(err)
	}
}

func TestRedisCollectorSkipsOnError(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	mr.Close()

	if n := testutil.CollectAndCount(newRedisCollector(rdb, nil)); n != 0 {
		t.Fatalf("expected no samples when redis is down, got %d", n)
	}
}
