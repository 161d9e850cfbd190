package core

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"expvar"
	"strings"
	"testing"
	"time"
)

func TestExpvarMetricsRecorder(t *testing.T) {
	rec := NewExpvarMetricsRecorder("")
	if !strings.HasPrefix(rec.Name(), "territorycore_metrics_") {
		t.Fatalf("unexpected generated name %s", rec.Name())
	}
	rec.Observe(context.Background(), "create_territory", true, 2*time.Millisecond)
	rec.Observe(context.Background(), "create_territory", false, 3*time.Millisecond)
	rec.Observe(context.Background(), "", true, time.Second)

	snap := rec.Snapshot()
	if snap.DurationsMS["create_territory"] != 5 {
		t.Fatalf("expected 5ms total, got %v", snap.DurationsMS)
	}
	if snap.Results["create_territory"]["success"] != 1 || snap.Results["create_territory"]["error"] != 1 {
		t.Fatalf("unexpected results %v", snap.Results)
	}
	if _, ok := snap.DurationsMS[""]; ok {
		t.Fatalf("empty operations must be ignored")
	}

	snap.Results["create_territory"]["success"] = 99
	if rec.Snapshot().Results["create_territory"]["success"] != 1 {
		t.Fatalf("snapshot must be a copy")
	}

	published := expvar.Get(rec.Name())
	if published == nil || !strings.Contains(published.String(), "create_territory") {
		t.Fatalf("expected expvar export, got %v", published)
	}
}

func TestExpvarRecorderObservesService(t *testing.T) {
	rec := NewExpvarMetricsRecorder("")
	svc := NewInMemoryService(nil, WithMetricsRecorder(rec))
	if _, _, err := svc.CreateTerritory(context.Background(), Territory{Number: 1}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if rec.Snapshot().Results["create_territory"]["success"] != 1 {
		t.Fatalf("expected service observation, got %+v", rec.Snapshot())
	}
}

func TestJSONTracer(t *testing.T) {
	var buf bytes.Buffer
	tracer := NewJSONTracer(&buf, 2)
	for _, op := range []string{"a", "b", "c"} {
		_, span := tracer.Start(context.Background(), op)
		var err error
		if op == "c" {
			err = errors.New("boom")
		}
		span.End(err)
	}

	entries := tracer.Entries()
	if len(entries) != 2 || entries[0].Operation != "b" || entries[1].Operation != "c" {
		t.Fatalf("expected the last two spans retained, got %+v", entries)
	}
	if entries[1].Status != "error" || entries[1].Error != "boom" {
		t.Fatalf("unexpected error span %+v", entries[1])
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected every span written, got %d lines", len(lines))
	}
	var first JSONTraceEntry
	if err := json.Unmarshal([]byte(lines[0]), &first); err != nil || first.Operation != "a" || first.Status != "success" {
		t.Fatalf("unexpected first line %q: %v", lines[0], err)
	}

	silent := NewJSONTracer(nil, 0)
	_, span := silent.Start(context.Background(), "x")
	span.End(nil)
	if len(silent.Entries()) != 1 {
		t.Fatalf("expected retained span without writer")
	}
}
