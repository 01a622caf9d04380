package archive

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	clocktesting "k8s.io/utils/clock/testing"

	"github.com/vajra-io/vajra/internal/pkg/metrics"
	"github.com/vajra-io/vajra/internal/vehicle"
	"github.com/vajra-io/vajra/pkg/frame"
)

type object struct {
	key  string
	data []byte
}

type fakeStore struct {
	mu      sync.Mutex
	objects []object
	err     error
}

func (s *fakeStore) CheckBucket(context.Context) error { return nil }

func (s *fakeStore) Put(_ context.Context, key string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.objects = append(s.objects, object{key: key, data: bytes.Clone(data)})
	return nil
}

func (s *fakeStore) list() []object {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]object(nil), s.objects...)
}

var epoch = time.Date(2024, 3, 9, 10, 30, 0, 0, time.UTC)

func record(n int64) *frame.Record {
	return &frame.Record{Revision: frame.RevisionB, Kind: frame.KindData, IMEI: "42", FrameNumber: n}
}

// history returns a snapshot holding recs newest first.
func history(recs ...*frame.Record) vehicle.Snapshot {
	h := make([]*frame.Record, 0, len(recs))
	for i := len(recs) - 1; i >= 0; i-- {
		h = append(h, recs[i])
	}
	return vehicle.Snapshot{History: h}
}

func frameNumbers(t *testing.T, data []byte) []int64 {
	t.Helper()
	var out []int64
	sc := bufio.NewScanner(bytes.NewReader(data))
	for sc.Scan() {
		var rec frame.Record
		if err := json.Unmarshal(sc.Bytes(), &rec); err != nil {
			t.Fatalf("bad line %q: %v", sc.Text(), err)
		}
		out = append(out, rec.FrameNumber)
	}
	return out
}

func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func run(t *testing.T, a *Archiver) (stop func()) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		a.Start(ctx)
	}()
	stopped := false
	stop = func() {
		if !stopped {
			stopped = true
			cancel()
			<-done
		}
	}
	t.Cleanup(stop)
	return stop
}

func TestObjectKey(t *testing.T) {
	at := time.Date(2024, 1, 5, 23, 59, 0, 0, time.FixedZone("IST", 5*3600+1800))
	if got, want := ObjectKey("887744556677882", at, 3), "887744556677882/2024/01/05/1704479340-3.ndjson"; got != want {
		t.Errorf("ObjectKey() = %q, want %q", got, want)
	}
	if got := ObjectKey("", epoch, 1); got[:8] != "unknown/" {
		t.Errorf("ObjectKey() without imei = %q", got)
	}
}

func TestOnSnapshotQueuesOnlyNewRecords(t *testing.T) {
	a := New(&fakeStore{}, Config{IMEI: "42"})

	r1, r2, r3 := record(1), record(2), record(3)
	a.OnSnapshot(history(r1))
	a.OnSnapshot(history(r1, r2, r3))
	a.OnSnapshot(history(r1, r2, r3)) // unchanged history, e.g. a status change

	var got []int64
	for len(a.queue) > 0 {
		got = append(got, (<-a.queue).FrameNumber)
	}
	if len(got) != 3 || got[0] != 1 || got[1] != 2 || got[2] != 3 {
		t.Errorf("queued %v, want [1 2 3]", got)
	}
}

func TestFullBatchIsUploaded(t *testing.T) {
	store := &fakeStore{}
	clk := clocktesting.NewFakeClock(epoch)
	a := New(store, Config{IMEI: "42", BatchSize: 2, FlushInterval: time.Hour, Clock: clk})
	run(t, a)

	r1, r2, r3 := record(1), record(2), record(3)
	a.OnSnapshot(history(r1, r2, r3))

	eventually(t, "first batch", func() bool { return len(store.list()) == 1 })
	obj := store.list()[0]
	if obj.key != "42/2024/03/09/1709980200-1.ndjson" {
		t.Errorf("key = %q", obj.key)
	}
	if got := frameNumbers(t, obj.data); len(got) != 2 || got[0] != 1 || got[1] != 2 {
		t.Errorf("batch = %v", got)
	}
}

func TestIntervalAndShutdownFlush(t *testing.T) {
	store := &fakeStore{}
	clk := clocktesting.NewFakeClock(epoch)
	a := New(store, Config{IMEI: "42", BatchSize: 100, FlushInterval: time.Minute, Clock: clk})
	stop := run(t, a)
	eventually(t, "ticker", clk.HasWaiters)

	r1, r2 := record(1), record(2)
	a.OnSnapshot(history(r1))
	eventually(t, "record picked up", func() bool { return len(a.queue) == 0 })
	clk.Step(time.Minute)
	eventually(t, "interval flush", func() bool { return len(store.list()) == 1 })

	a.OnSnapshot(history(r1, r2))
	stop()

	objs := store.list()
	if len(objs) != 2 {
		t.Fatalf("objects = %d, want 2", len(objs))
	}
	if got := frameNumbers(t, objs[1].data); len(got) != 1 || got[0] != 2 {
		t.Errorf("shutdown batch = %v", got)
	}
}

func TestFailedUploadIsCounted(t *testing.T) {
	store := &fakeStore{err: errors.New("access denied")}
	before := testutil.ToFloat64(metrics.ArchiveObjects.WithLabelValues(metrics.StatusFailed))

	a := New(store, Config{IMEI: "42", BatchSize: 1, FlushInterval: time.Hour, Clock: clocktesting.NewFakeClock(epoch)})
	run(t, a)
	a.OnSnapshot(history(record(1)))

	eventually(t, "failure counted", func() bool {
		return testutil.ToFloat64(metrics.ArchiveObjects.WithLabelValues(metrics.StatusFailed)) == before+1
	})
}
