package cron

import (
	"fmt"

	"github.com/stellarlinkco/webmux/internal/wire"
)

// GatewayAdapter exposes a Service through the shape C6 needs,
// translating between the wire protocol's untyped schedule map and
// Service's Schedule/Payload types.
type GatewayAdapter struct {
	svc *Service
}

func NewGatewayAdapter(svc *Service) *GatewayAdapter {
	return &GatewayAdapter{svc: svc}
}

func (a *GatewayAdapter) ListJobs() []wire.CronJob {
	jobs := a.svc.ListJobs()
	out := make([]wire.CronJob, 0, len(jobs))
	for _, j := range jobs {
		out = append(out, toWireJob(j))
	}
	return out
}

func (a *GatewayAdapter) AddJob(name string, schedule map[string]any, message string) (wire.CronJob, error) {
	sched, err := scheduleFromMap(schedule)
	if err != nil {
		return wire.CronJob{}, err
	}
	job, err := a.svc.AddJob(name, sched, Payload{Message: message})
	if err != nil {
		return wire.CronJob{}, err
	}
	return toWireJob(*job), nil
}

func (a *GatewayAdapter) RemoveJob(id string) error {
	if !a.svc.RemoveJob(id) {
		return fmt.Errorf("cron job %s not found", id)
	}
	return nil
}

func toWireJob(j CronJob) wire.CronJob {
	return wire.CronJob{
		ID:   j.ID,
		Name: j.Name,
		Schedule: map[string]any{
			"kind":    j.Schedule.Kind,
			"expr":    j.Schedule.Expr,
			"everyMs": j.Schedule.EveryMs,
			"atMs":    j.Schedule.AtMs,
		},
		Message: j.Payload.Message,
	}
}

func scheduleFromMap(m map[string]any) (Schedule, error) {
	kind, _ := m["kind"].(string)
	if kind == "" {
		return Schedule{}, fmt.Errorf("cron job schedule requires a kind")
	}
	sched := Schedule{Kind: kind}
	if expr, ok := m["expr"].(string); ok {
		sched.Expr = expr
	}
	if everyMs, ok := numberField(m, "everyMs"); ok {
		sched.EveryMs = everyMs
	}
	if atMs, ok := numberField(m, "atMs"); ok {
		sched.AtMs = atMs
	}
	return sched, nil
}

// numberField reads a JSON-decoded numeric field, which may surface as
// float64 (json.Unmarshal's default for interface{} targets).
func numberField(m map[string]any, key string) (int64, bool) {
	v, ok := m[key]
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		return int64(n), true
	case int64:
		return n, true
	case int:
		return int64(n), true
	}
	return 0, false
}
