package provision

import (
	"time"

	"go.uber.org/multierr"
)

// Operation names a batch operation.
type Operation string

const (
	OperationCreate  Operation = "create"
	OperationDestroy Operation = "destroy"
)

// Outcome is the end state of one VM in a batch.
type Outcome string

const (
	OutcomeCreated         Outcome = "created"
	OutcomeFailed          Outcome = "failed"
	OutcomeRolledBack      Outcome = "rolled-back"
	OutcomeUncleanRollback Outcome = "unclean-rollback"
	OutcomeDestroyed       Outcome = "destroyed"
	OutcomeAlreadyGone     Outcome = "already-gone"
	OutcomeDestroyFailed   Outcome = "destroy-failed"
)

// Stages of VM creation reported in errdefs.ProvisioningError.
const (
	StageCreate = "create"
	StageDevice = "device"
	StageStart  = "start"
)

// Stages of VM destruction reported in errdefs.DestructionError.
const (
	StageQuery  = "query"
	StageDelete = "delete"
)

// VMResult is the outcome of one VM.
type VMResult struct {
	Role        string   `json:"role,omitempty" yaml:"role,omitempty"`
	Name        string   `json:"name,omitempty" yaml:"name,omitempty"`
	DisplayPort int      `json:"displayPort,omitempty" yaml:"displayPort,omitempty"`
	ID          string   `json:"id,omitempty" yaml:"id,omitempty"`
	Devices     []string `json:"devices,omitempty" yaml:"devices,omitempty"`
	Outcome     Outcome  `json:"outcome" yaml:"outcome"`
	Err         error    `json:"-" yaml:"-"`
}

// Message returns the error text of the result, or "" on success.
func (r VMResult) Message() string {
	if r.Err == nil {
		return ""
	}
	return r.Err.Error()
}

// Summary collects the results of one batch.
type Summary struct {
	Operation Operation  `json:"operation" yaml:"operation"`
	StartedAt time.Time  `json:"startedAt" yaml:"startedAt"`
	Results   []VMResult `json:"results" yaml:"results"`
}

func newSummary(op Operation, startedAt time.Time) *Summary {
	return &Summary{
		Operation: op,
		StartedAt: startedAt,
		Results:   []VMResult{},
	}
}

// Count returns the number of results with the given outcome.
func (s *Summary) Count(outcome Outcome) int {
	n := 0
	for _, r := range s.Results {
		if r.Outcome == outcome {
			n++
		}
	}
	return n
}

// Unclean returns the number of VMs whose rollback did not complete.
func (s *Summary) Unclean() int {
	return s.Count(OutcomeUncleanRollback)
}

// Err combines the per-VM errors, or returns nil when every VM succeeded.
func (s *Summary) Err() error {
	var err error
	for _, r := range s.Results {
		err = multierr.Append(err, r.Err)
	}
	return err
}

// ExitCode maps the batch to the process exit status: 2 when any rollback
// was unclean, 1 when a destroy batch had failures, 0 otherwise.
func (s *Summary) ExitCode() int {
	switch {
	case s.Unclean() > 0:
		return 2
	case s.Count(OutcomeDestroyFailed) > 0:
		return 1
	default:
		return 0
	}
}
