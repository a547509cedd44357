package node

import (
	"sync"
	"sync/atomic"
)

// State captures the state of a node: Initialised, Running, Failed or
// Shutdown
type State uint32

const (
	// Initialised is the state of a node that was created but not run.
	Initialised State = iota
	// Running means the pipeline is processing rounds.
	Running
	// Failed means the ledger store failed and the pipeline stopped. The
	// node still serves blocks.
	Failed
	// Shutdown is shutdown
	Shutdown
)

// String ...
func (s State) String() string {
	switch s {
	case Initialised:
		return "Initialised"
	case Running:
		return "Running"
	case Failed:
		return "Failed"
	case Shutdown:
		return "Shutdown"
	default:
		return "Unknown"
	}
}

// WGLIMIT is the maximum number of goroutines that can run concurrently
// through state.goFunc. Further calls wait for a slot.
const WGLIMIT = 64

type state struct {
	state State
	wg    sync.WaitGroup
	slots chan struct{}
	once  sync.Once
}

func (b *state) getState() State {
	stateAddr := (*uint32)(&b.state)
	return State(atomic.LoadUint32(stateAddr))
}

// casState moves to s only from the old state.
func (b *state) casState(old, s State) bool {
	stateAddr := (*uint32)(&b.state)
	return atomic.CompareAndSwapUint32(stateAddr, uint32(old), uint32(s))
}

// swapState sets s and returns the previous state.
func (b *state) swapState(s State) State {
	stateAddr := (*uint32)(&b.state)
	return State(atomic.SwapUint32(stateAddr, uint32(s)))
}

// Start a goroutine and add it to waitgroup
func (b *state) goFunc(f func()) {
	b.once.Do(func() { b.slots = make(chan struct{}, WGLIMIT) })

	b.slots <- struct{}{}
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		defer func() { <-b.slots }()
		f()
	}()
}

func (b *state) waitRoutines() {
	b.wg.Wait()
}
