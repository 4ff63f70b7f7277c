package sandbox

import (
	"fmt"
	"sync"

	log "github.com/sirupsen/logrus"
)

// OpKind costs a Meter charges for, grounded in the cost-table idiom of
// core/gas_table.go (there keyed by VM opcode; here keyed by the coarser
// membrane/record operations the spec actually names, since the sandbox
// has no bytecode of its own).
type OpKind int

const (
	OpRead OpKind = iota
	OpUpdate
	OpCall
	OpNew
	OpDeploy
	OpBerryPluck
)

// DefaultCost is charged for any operation kind that slips through the
// cracks; deliberately punitive, logged once per missing kind.
const DefaultCost uint64 = 1000

var costTable = map[OpKind]uint64{
	OpRead:       1,
	OpUpdate:     10,
	OpCall:       20,
	OpNew:        50,
	OpDeploy:     500,
	OpBerryPluck: 200,
}

var (
	missingOnce   = map[OpKind]bool{}
	missingOnceMu sync.Mutex
)

// Cost returns the base resource cost for an operation kind.
func Cost(op OpKind) uint64 {
	if c, ok := costTable[op]; ok {
		return c
	}
	missingOnceMu.Lock()
	if !missingOnce[op] {
		missingOnce[op] = true
		log.Warnf("sandbox: missing cost for op kind %d, charging default", op)
	}
	missingOnceMu.Unlock()
	return DefaultCost
}

// Meter bounds the total resource consumption of a single top-level action;
// an execution realm is otherwise unbounded. It is not a consensus-critical
// gas meter, it protects one host from a runaway method body.
type Meter struct {
	mu     sync.Mutex
	budget uint64
	spent  uint64
}

func NewMeter(budget uint64) *Meter { return &Meter{budget: budget} }

// Charge deducts the cost of op from the remaining budget, failing with
// "Execution: resource limit exceeded" once the budget is exhausted.
func (m *Meter) Charge(op OpKind) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := Cost(op)
	if m.budget > 0 && m.spent+c > m.budget {
		return fmt.Errorf("Execution: resource limit exceeded (spent=%d budget=%d)", m.spent, m.budget)
	}
	m.spent += c
	return nil
}

func (m *Meter) Spent() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.spent
}
