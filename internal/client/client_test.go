package client

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stellarlinkco/webmux/internal/config"
	"github.com/stellarlinkco/webmux/internal/registry"
	"github.com/stellarlinkco/webmux/internal/tmux"
	"github.com/stellarlinkco/webmux/internal/wire"
)

type fakeCron struct {
	jobs []wire.CronJob
}

func (f *fakeCron) ListJobs() []wire.CronJob { return f.jobs }
func (f *fakeCron) AddJob(name string, schedule map[string]any, message string) (wire.CronJob, error) {
	job := wire.CronJob{ID: "job-1", Name: name, Schedule: schedule, Message: message}
	f.jobs = append(f.jobs, job)
	return job, nil
}
func (f *fakeCron) RemoveJob(id string) error {
	for i, j := range f.jobs {
		if j.ID == id {
			f.jobs = append(f.jobs[:i], f.jobs[i+1:]...)
			return nil
		}
	}
	return errors.New("job not found")
}

type fakeDotfiles struct {
	files map[string]string
}

func newFakeDotfiles() *fakeDotfiles { return &fakeDotfiles{files: map[string]string{}} }

func (f *fakeDotfiles) List() []wire.Dotfile {
	out := make([]wire.Dotfile, 0, len(f.files))
	for path, content := range f.files {
		out = append(out, wire.Dotfile{Path: path, Content: content})
	}
	return out
}
func (f *fakeDotfiles) Save(path, content string) error {
	f.files[path] = content
	return nil
}
func (f *fakeDotfiles) Delete(path string) error {
	if _, ok := f.files[path]; !ok {
		return errors.New("not found")
	}
	delete(f.files, path)
	return nil
}

type fakeStats struct{ snap wire.Stats }

func (f *fakeStats) Snapshot() wire.Stats { return f.snap }

func newTestClient() (*Client, *fakeCron, *fakeDotfiles) {
	reg := registry.New()
	cron := &fakeCron{}
	dots := newFakeDotfiles()
	col := Collaborators{
		Mux:      tmux.New("webmux-test-nonexistent-tmux-binary"),
		Cron:     cron,
		Dotfiles: dots,
		Stats:    &fakeStats{snap: wire.Stats{CPUPercent: 1.5}},
	}
	c := New(nil, reg, config.DefaultConfig(), col)
	return c, cron, dots
}

func recvEnvelope(t *testing.T, c *Client) map[string]any {
	t.Helper()
	select {
	case payload := <-c.outbound:
		var m map[string]any
		if err := json.Unmarshal(payload, &m); err != nil {
			t.Fatalf("decode outbound payload: %v", err)
		}
		return m
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for outbound message")
		return nil
	}
}

func TestDispatch_Ping(t *testing.T) {
	c, _, _ := newTestClient()
	c.dispatch(context.Background(), wire.InboundCommand{Type: wire.CmdPing})

	msg := recvEnvelope(t, c)
	if msg["type"] != wire.MsgPong {
		t.Errorf("type = %v, want %s", msg["type"], wire.MsgPong)
	}
}

func TestDispatch_UnknownCommand(t *testing.T) {
	c, _, _ := newTestClient()
	c.dispatch(context.Background(), wire.InboundCommand{Type: "bogus"})

	msg := recvEnvelope(t, c)
	if msg["type"] != wire.MsgError {
		t.Errorf("type = %v, want %s", msg["type"], wire.MsgError)
	}
}

func TestDispatch_AudioControlReflectsAction(t *testing.T) {
	c, _, _ := newTestClient()
	c.dispatch(context.Background(), wire.InboundCommand{Type: wire.CmdAudioControl, Action: "start"})

	msg := recvEnvelope(t, c)
	if msg["type"] != wire.MsgAudioStatus || msg["active"] != true {
		t.Errorf("got %v, want active audio-status", msg)
	}
}

func TestDispatch_SaveThenListDotfile(t *testing.T) {
	c, _, dots := newTestClient()
	c.dispatch(context.Background(), wire.InboundCommand{Type: wire.CmdSaveDotfile, Path: ".bashrc", Content: "export X=1"})
	recvEnvelope(t, c) // dotfiles-list reply to the save

	if dots.files[".bashrc"] != "export X=1" {
		t.Fatalf("dotfile not saved: %v", dots.files)
	}

	c.dispatch(context.Background(), wire.InboundCommand{Type: wire.CmdListDotfiles})
	msg := recvEnvelope(t, c)
	if msg["type"] != wire.MsgDotfilesList {
		t.Errorf("type = %v, want %s", msg["type"], wire.MsgDotfilesList)
	}
}

func TestDispatch_DeleteMissingDotfileErrors(t *testing.T) {
	c, _, _ := newTestClient()
	c.dispatch(context.Background(), wire.InboundCommand{Type: wire.CmdDeleteDotfile, Path: "nope"})

	msg := recvEnvelope(t, c)
	if msg["type"] != wire.MsgError {
		t.Errorf("type = %v, want %s", msg["type"], wire.MsgError)
	}
}

func TestDispatch_AddThenRemoveCronJob(t *testing.T) {
	c, cron, _ := newTestClient()
	c.dispatch(context.Background(), wire.InboundCommand{Type: wire.CmdAddCronJob, JobName: "nightly", Message: "run backup"})
	recvEnvelope(t, c)
	if len(cron.jobs) != 1 {
		t.Fatalf("jobs = %v, want 1", cron.jobs)
	}

	c.dispatch(context.Background(), wire.InboundCommand{Type: wire.CmdRemoveCronJob, JobID: "job-1"})
	recvEnvelope(t, c)
	if len(cron.jobs) != 0 {
		t.Fatalf("jobs = %v, want 0 after remove", cron.jobs)
	}
}

func TestDispatch_GetStats(t *testing.T) {
	c, _, _ := newTestClient()
	c.dispatch(context.Background(), wire.InboundCommand{Type: wire.CmdGetStats})

	msg := recvEnvelope(t, c)
	if msg["type"] != wire.MsgStats {
		t.Errorf("type = %v, want %s", msg["type"], wire.MsgStats)
	}
}

func TestDispatch_AttachSessionFailsCleanlyWithoutMultiplexer(t *testing.T) {
	c, _, _ := newTestClient()
	c.dispatch(context.Background(), wire.InboundCommand{Type: wire.CmdAttachSession, SessionName: "main"})

	msg := recvEnvelope(t, c)
	if msg["type"] != wire.MsgError {
		t.Errorf("type = %v, want %s (no multiplexer binary on test host)", msg["type"], wire.MsgError)
	}
}

func TestDispatch_SelectWindow_AttachesImplicitlyWhenNotAlreadyAttached(t *testing.T) {
	c, _, _ := newTestClient()
	c.dispatch(context.Background(), wire.InboundCommand{Type: wire.CmdSelectWindow, SessionName: "main", WindowIndex: 2})

	// No multiplexer binary on the test host, so the implicit attach
	// fails first and SelectWindow is never reached.
	attachErr := recvEnvelope(t, c)
	if attachErr["type"] != wire.MsgError {
		t.Fatalf("first reply type = %v, want %s (implicit attach failing)", attachErr["type"], wire.MsgError)
	}

	selected := recvEnvelope(t, c)
	if selected["type"] != wire.MsgWindowSelected {
		t.Fatalf("second reply type = %v, want %s", selected["type"], wire.MsgWindowSelected)
	}
	if selected["success"] != false {
		t.Errorf("success = %v, want false (no multiplexer binary on test host)", selected["success"])
	}
}

func TestDispatch_SelectWindow_SkipsAttachWhenAlreadyOnSession(t *testing.T) {
	c, _, _ := newTestClient()
	c.mu.Lock()
	c.sessionName = "main"
	c.mu.Unlock()

	c.dispatch(context.Background(), wire.InboundCommand{Type: wire.CmdSelectWindow, SessionName: "main", WindowIndex: 1})

	// Already attached to "main" — the only reply should be the select
	// result, no implicit attach attempt in between.
	selected := recvEnvelope(t, c)
	if selected["type"] != wire.MsgWindowSelected {
		t.Fatalf("reply type = %v, want %s", selected["type"], wire.MsgWindowSelected)
	}
}

func TestCleanup_RemovesFromRegistry(t *testing.T) {
	c, _, _ := newTestClient()
	if c.reg.Count() != 1 {
		t.Fatalf("count = %d, want 1 after New", c.reg.Count())
	}
	c.cleanup()
	if c.reg.Count() != 0 {
		t.Errorf("count = %d, want 0 after cleanup", c.reg.Count())
	}
}
