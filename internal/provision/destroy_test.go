package provision

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/jbweber/herd/internal/errdefs"
	"github.com/jbweber/herd/internal/libvirt"
	"github.com/jbweber/herd/internal/metadata"
)

func TestDestroyRoles_MatchesPrefixes(t *testing.T) {
	sess := newMockSession()
	sess.addVM("worker01")
	sess.addVM("worker02")
	sess.addVM("controlplane01")
	sess.addVM("appliance")
	o := newTestOrchestrator(t, sess, Options{})

	results := o.DestroyRoles(context.Background(), sess, []string{"worker"})

	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	for _, r := range results {
		if r.Outcome != OutcomeDestroyed {
			t.Errorf("%s: Outcome = %s, want destroyed", r.Name, r.Outcome)
		}
	}
	if len(sess.powerOffCalls) != 2 {
		t.Errorf("expected 2 power-offs, got %d", len(sess.powerOffCalls))
	}
	for _, call := range sess.deleteCalls {
		if !strings.HasSuffix(call, ":true") {
			t.Errorf("delete %s did not remove volumes", call)
		}
	}
	if got := fmt.Sprint(sess.names()); got != "[appliance controlplane01]" {
		t.Errorf("remaining VMs = %s", got)
	}
}

func TestDestroyRoles_Idempotent(t *testing.T) {
	sess := newMockSession()
	sess.addVM("worker01")
	o := newTestOrchestrator(t, sess, Options{})

	first := o.DestroyRoles(context.Background(), sess, []string{"worker"})
	second := o.DestroyRoles(context.Background(), sess, []string{"worker"})

	if len(first) != 1 || first[0].Outcome != OutcomeDestroyed {
		t.Errorf("first run = %+v", first)
	}
	if len(second) != 0 {
		t.Errorf("second run should find nothing, got %+v", second)
	}
}

func TestDestroyRoles_NoPrefixesMatchesNothing(t *testing.T) {
	sess := newMockSession()
	sess.addVM("worker01")
	o := newTestOrchestrator(t, sess, Options{})

	results := o.DestroyRoles(context.Background(), sess, nil)

	if len(results) != 0 {
		t.Errorf("expected no results, got %+v", results)
	}
	if len(sess.deleteCalls) != 0 {
		t.Errorf("expected no deletes, got %v", sess.deleteCalls)
	}
}

func TestDestroyRoles_DeleteOutcomes(t *testing.T) {
	tests := []struct {
		name        string
		deleteErr   error
		wantOutcome Outcome
		wantErr     bool
	}{
		{
			name:        "vanished meanwhile",
			deleteErr:   fmt.Errorf("domain x: %w", errdefs.ErrNotFound),
			wantOutcome: OutcomeAlreadyGone,
		},
		{
			name:        "delete fails",
			deleteErr:   errors.New("volume in use"),
			wantOutcome: OutcomeDestroyFailed,
			wantErr:     true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sess := newMockSession()
			sess.addVM("worker01")
			sess.deleteFunc = func(id string) error { return tt.deleteErr }
			o := newTestOrchestrator(t, sess, Options{})

			results := o.DestroyRoles(context.Background(), sess, []string{"worker"})

			if len(results) != 1 {
				t.Fatalf("expected 1 result, got %d", len(results))
			}
			if results[0].Outcome != tt.wantOutcome {
				t.Errorf("Outcome = %s, want %s", results[0].Outcome, tt.wantOutcome)
			}
			var derr *errdefs.DestructionError
			if got := errors.As(results[0].Err, &derr); got != tt.wantErr {
				t.Errorf("Err = %v, wantErr %v", results[0].Err, tt.wantErr)
			}
			if tt.wantErr && (derr.Stage != StageDelete || derr.VM != "worker01") {
				t.Errorf("DestructionError = %+v", derr)
			}
		})
	}
}

func TestDestroyRoles_FailureDoesNotStopBatch(t *testing.T) {
	sess := newMockSession()
	bad := sess.addVM("worker01")
	sess.addVM("worker02")
	sess.deleteFunc = func(id string) error {
		if id == bad {
			return errors.New("permission denied")
		}
		return nil
	}
	o := newTestOrchestrator(t, sess, Options{})

	results := o.DestroyRoles(context.Background(), sess, []string{"worker"})

	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if results[0].Outcome != OutcomeDestroyFailed || results[1].Outcome != OutcomeDestroyed {
		t.Errorf("outcomes = %s, %s", results[0].Outcome, results[1].Outcome)
	}
}

func TestDestroyRoles_PowerOffFailureStillDeletes(t *testing.T) {
	sess := newMockSession()
	sess.addVM("worker01")
	sess.powerOffFunc = func(id string) error { return errors.New("qemu agent not responding") }
	o := newTestOrchestrator(t, sess, Options{})

	results := o.DestroyRoles(context.Background(), sess, []string{"worker"})

	if len(results) != 1 || results[0].Outcome != OutcomeDestroyed {
		t.Errorf("results = %+v, want one destroyed VM", results)
	}
	if len(sess.vms) != 0 {
		t.Errorf("VM should be gone, have %v", sess.names())
	}
}

func TestDestroyRoles_QueryFailure(t *testing.T) {
	sess := newMockSession()
	sess.queryFunc = func() ([]libvirt.VMRecord, error) {
		return nil, errors.New("connection reset")
	}
	o := newTestOrchestrator(t, sess, Options{})

	results := o.DestroyRoles(context.Background(), sess, []string{"worker"})

	if len(results) != 1 || results[0].Outcome != OutcomeDestroyFailed {
		t.Fatalf("results = %+v, want one destroy-failed", results)
	}
	var derr *errdefs.DestructionError
	if !errors.As(results[0].Err, &derr) || derr.Stage != StageQuery {
		t.Errorf("Err = %v, want query DestructionError", results[0].Err)
	}
}

func TestDestroyRoles_ReportsLabels(t *testing.T) {
	sess := newMockSession()
	id := sess.addVM("worker03")
	sess.vms[id].Labels = &metadata.Labels{Role: "worker", Ordinal: 3, DisplayPort: 5922}
	sess.vms[id].Devices = []string{"ua-disk0", "display-5922"}
	o := newTestOrchestrator(t, sess, Options{})

	results := o.DestroyRoles(context.Background(), sess, []string{"worker"})

	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}
	r := results[0]
	if r.Role != "worker" || r.DisplayPort != 5922 || r.ID != id || len(r.Devices) != 2 {
		t.Errorf("result = %+v", r)
	}
}
