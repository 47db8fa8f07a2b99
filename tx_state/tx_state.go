package txState

import (
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
)

type Phase string

const (
	PhaseIdle       Phase = "idle"
	PhasePending    Phase = "pending"
	PhaseConfirming Phase = "confirming"
	PhaseSuccess    Phase = "success"
	PhaseError      Phase = "error"
)

var ErrInvalidTransition = errors.New("invalid transaction state transition")

// TransactionState is the flag view of a Machine. At most one flag is true.
type TransactionState struct {
	IsPending    bool   `json:"isPending"`
	IsConfirming bool   `json:"isConfirming"`
	IsSuccess    bool   `json:"isSuccess"`
	IsError      bool   `json:"isError"`
	Error        string `json:"error,omitempty"`
	Hash         string `json:"hash,omitempty"`
}

// Machine tracks one user transaction through
// idle → pending → confirming → success | error.
type Machine struct {
	mu    sync.Mutex
	phase Phase
	hash  common.Hash
	err   error
}

func NewMachine() *Machine {
	return &Machine{phase: PhaseIdle}
}

func (m *Machine) Phase() Phase {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.phase
}

// SetPending starts a transaction from idle, or retries after an error. The
// previous error and hash are cleared.
func (m *Machine) SetPending() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.phase != PhaseIdle && m.phase != PhaseError {
		return m.invalid(PhasePending)
	}
	m.phase = PhasePending
	m.err = nil
	m.hash = common.Hash{}
	return nil
}

// SetConfirming records the submitted transaction hash.
func (m *Machine) SetConfirming(hash common.Hash) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.phase != PhasePending {
		return m.invalid(PhaseConfirming)
	}
	m.phase = PhaseConfirming
	m.hash = hash
	return nil
}

func (m *Machine) SetSuccess() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.phase != PhaseConfirming {
		return m.invalid(PhaseSuccess)
	}
	m.phase = PhaseSuccess
	return nil
}

// SetError interrupts a pending or confirming transaction. The error is kept
// until Reset or the next SetPending.
func (m *Machine) SetError(err error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.phase != PhasePending && m.phase != PhaseConfirming {
		return m.invalid(PhaseError)
	}
	if err == nil {
		err = errors.New("transaction failed")
	}
	m.phase = PhaseError
	m.err = err
	return nil
}

// Reset returns to idle from any phase.
func (m *Machine) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.phase = PhaseIdle
	m.hash = common.Hash{}
	m.err = nil
}

func (m *Machine) State() TransactionState {
	m.mu.Lock()
	defer m.mu.Unlock()

	state := TransactionState{
		IsPending:    m.phase == PhasePending,
		IsConfirming: m.phase == PhaseConfirming,
		IsSuccess:    m.phase == PhaseSuccess,
		IsError:      m.phase == PhaseError,
	}
	if m.hash != (common.Hash{}) {
		state.Hash = m.hash.Hex()
	}
	if m.err != nil {
		state.Error = m.err.Error()
	}
	return state
}

func (m *Machine) invalid(to Phase) error {
	return errors.Wrapf(ErrInvalidTransition, "%s -> %s", m.phase, to)
}
