package zonefile

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/vajra-io/vajra/pkg/geofence"
)

type recorder struct {
	mu    sync.Mutex
	calls [][]geofence.Zone
}

func (r *recorder) SetZones(_ context.Context, zones []geofence.Zone) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, zones)
	return nil
}

func (r *recorder) last() ([]geofence.Zone, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.calls) == 0 {
		return nil, 0
	}
	return r.calls[len(r.calls)-1], len(r.calls)
}

func collection(id string, radius int) string {
	return `{"type":"FeatureCollection","features":[{"type":"Feature","id":"` + id +
		`","properties":{"radius":` + strconv.Itoa(radius) +
		`},"geometry":{"type":"Point","coordinates":[77.5946,12.9716]}}]}`
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "zones.geojson")
	writeFile(t, path, collection("depot", 250))

	rec := &recorder{}
	if err := New(path, rec).Load(context.Background()); err != nil {
		t.Fatal(err)
	}
	zones, n := rec.last()
	if n != 1 || len(zones) != 1 || zones[0].ID != "depot" || zones[0].Circle.RadiusMeters != 250 {
		t.Errorf("zones = %+v after %d calls", zones, n)
	}
}

func TestStartFailsOnInvalidFile(t *testing.T) {
	dir := t.TempDir()
	rec := &recorder{}

	if err := New(filepath.Join(dir, "missing.geojson"), rec).Start(context.Background()); err == nil {
		t.Error("missing file accepted")
	}

	path := filepath.Join(dir, "zones.geojson")
	writeFile(t, path, collection("depot", -5))
	if err := New(path, rec).Start(context.Background()); err == nil {
		t.Error("invalid zone accepted")
	}
	if _, n := rec.last(); n != 0 {
		t.Errorf("SetZones called %d times", n)
	}
}

func TestReloadOnChange(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "zones.geojson")
	writeFile(t, path, collection("depot", 250))

	rec := &recorder{}
	w := New(path, rec)
	w.debounce = 10 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Start(ctx) }()
	eventually(t, "initial load", func() bool { _, n := rec.last(); return n == 1 })

	// Unrelated files in the directory are ignored.
	writeFile(t, filepath.Join(dir, "other.txt"), "hello")

	// An invalid edit keeps the previous zones.
	writeFile(t, path, collection("depot", -1))
	time.Sleep(100 * time.Millisecond)
	if _, n := rec.last(); n != 1 {
		t.Fatalf("invalid edit applied, %d calls", n)
	}

	// Replace the file the way editors do.
	tmp := filepath.Join(dir, "zones.tmp")
	writeFile(t, tmp, collection("yard", 900))
	if err := os.Rename(tmp, path); err != nil {
		t.Fatal(err)
	}
	eventually(t, "reload", func() bool {
		zones, _ := rec.last()
		return len(zones) == 1 && zones[0].ID == "yard"
	})

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Start returned %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("watcher did not stop")
	}
}
