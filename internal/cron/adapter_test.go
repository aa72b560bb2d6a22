package cron

import (
	"context"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"
)

func TestGatewayAdapter_AddJob_TranslatesScheduleMap(t *testing.T) {
	svc := NewService(filepath.Join(t.TempDir(), "jobs.json"))
	a := NewGatewayAdapter(svc)

	job, err := a.AddJob("hourly-stats", map[string]any{
		"kind": "cron",
		"expr": "0 0 * * * *",
	}, statsBroadcastPayload)
	if err != nil {
		t.Fatalf("AddJob: %v", err)
	}
	if job.Name != "hourly-stats" {
		t.Errorf("name = %q, want hourly-stats", job.Name)
	}
	if job.Message != statsBroadcastPayload {
		t.Errorf("message = %q, want %s", job.Message, statsBroadcastPayload)
	}
	if job.Schedule["kind"] != "cron" || job.Schedule["expr"] != "0 0 * * * *" {
		t.Errorf("schedule = %+v, want kind=cron expr=0 0 * * * *", job.Schedule)
	}
}

func TestGatewayAdapter_AddJob_NumericScheduleFieldsSurviveJSONNumberDecode(t *testing.T) {
	svc := NewService(filepath.Join(t.TempDir(), "jobs.json"))
	a := NewGatewayAdapter(svc)

	// map[string]any with float64 values mimics what json.Unmarshal
	// produces for an inbound wire command's untyped schedule field.
	job, err := a.AddJob("every-minute-stats", map[string]any{
		"kind":    "every",
		"everyMs": float64(60000),
	}, statsBroadcastPayload)
	if err != nil {
		t.Fatalf("AddJob: %v", err)
	}
	if job.Schedule["everyMs"] != int64(60000) {
		t.Errorf("everyMs = %v, want 60000", job.Schedule["everyMs"])
	}
}

func TestGatewayAdapter_AddJob_MissingKindErrors(t *testing.T) {
	svc := NewService(filepath.Join(t.TempDir(), "jobs.json"))
	a := NewGatewayAdapter(svc)

	if _, err := a.AddJob("no-kind", map[string]any{"expr": "* * * * * *"}, statsBroadcastPayload); err == nil {
		t.Error("expected an error when schedule has no kind")
	}
}

func TestGatewayAdapter_ListJobs_RoundTripsAddedJob(t *testing.T) {
	svc := NewService(filepath.Join(t.TempDir(), "jobs.json"))
	a := NewGatewayAdapter(svc)

	if _, err := a.AddJob("stats-tick", map[string]any{"kind": "every", "everyMs": float64(1000)}, statsBroadcastPayload); err != nil {
		t.Fatalf("AddJob: %v", err)
	}

	jobs := a.ListJobs()
	if len(jobs) != 1 || jobs[0].Name != "stats-tick" {
		t.Fatalf("ListJobs() = %+v, want one stats-tick job", jobs)
	}
}

func TestGatewayAdapter_RemoveJob_NotFoundErrors(t *testing.T) {
	svc := NewService(filepath.Join(t.TempDir(), "jobs.json"))
	a := NewGatewayAdapter(svc)

	if err := a.RemoveJob("does-not-exist"); err == nil {
		t.Error("expected an error removing a nonexistent job")
	}
}

func TestGatewayAdapter_RemoveJob_Succeeds(t *testing.T) {
	svc := NewService(filepath.Join(t.TempDir(), "jobs.json"))
	a := NewGatewayAdapter(svc)

	job, err := a.AddJob("stats-tick", map[string]any{"kind": "every", "everyMs": float64(1000)}, statsBroadcastPayload)
	if err != nil {
		t.Fatalf("AddJob: %v", err)
	}
	if err := a.RemoveJob(job.ID); err != nil {
		t.Fatalf("RemoveJob: %v", err)
	}
	if len(a.ListJobs()) != 0 {
		t.Error("job still listed after removal")
	}
}

// TestGatewayAdapter_StatsBroadcastReachesOnJobHandler exercises the
// full path the gateway actually wires: a job added through the
// adapter (as the websocket "add-cron-job" command would), fired by
// the running Service's tick loop, reaching an OnJob handler that
// plays the role of Server.runCronJob's "__internal:stats:broadcast"
// case.
func TestGatewayAdapter_StatsBroadcastReachesOnJobHandler(t *testing.T) {
	svc := NewService(filepath.Join(t.TempDir(), "jobs.json"))
	a := NewGatewayAdapter(svc)

	var broadcasts atomic.Int32
	svc.OnJob = func(job CronJob) (string, error) {
		if job.Payload.Message == statsBroadcastPayload {
			broadcasts.Add(1)
			return "broadcast ok", nil
		}
		return "", nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := svc.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer svc.Stop()

	if _, err := a.AddJob("fast-stats-broadcast", map[string]any{"kind": "every", "everyMs": float64(100)}, statsBroadcastPayload); err != nil {
		t.Fatalf("AddJob: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for broadcasts.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(20 * time.Millisecond)
	}
	if broadcasts.Load() == 0 {
		t.Fatal("expected the stats-broadcast job to reach OnJob at least once")
	}
}
