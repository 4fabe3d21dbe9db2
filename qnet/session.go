package qnet

import (
	"github.com/pkg/errors"
	G "gorgonia.org/gorgonia"
)

// ErrMemoryBudget is returned when a graph would not fit in the memory
// reserved for a network.
var ErrMemoryBudget = errors.New("memory budget exceeded")

// session owns every machine that executes one of the graphs of a
// QNetwork. It accounts for the memory they hold and releases them together.
type session struct {
	name   string
	budget int64 // <= 0 if unbounded
	memReq int64
	vms    []G.VM
	closed bool
}

func newSession(name string, budget int64) *session {
	return &session{name: name, budget: budget}
}

// machine returns a tape machine for g and charges the memory held by its
// values to the session.
func (s *session) machine(g *G.ExprGraph, opts ...G.VMOpt) (G.VM, error) {
	if s.closed {
		return nil, ErrClosed
	}
	req := graphMemReq(g)
	if s.budget > 0 && s.memReq+req > s.budget {
		return nil, errors.Wrapf(ErrMemoryBudget, "%v: %d bytes held, %d more requested, %d allowed", s.name, s.memReq, req, s.budget)
	}
	vm := G.NewTapeMachine(g, opts...)
	s.memReq += req
	s.vms = append(s.vms, vm)
	return vm, nil
}

// MemoryRequirement is the number of bytes held by the session.
func (s *session) MemoryRequirement() int64 { return s.memReq }

func (s *session) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true

	var allErrs manyErr
	for _, vm := range s.vms {
		if err := vm.Close(); err != nil {
			allErrs = append(allErrs, err)
		}
	}
	s.vms = nil
	s.memReq = 0
	if len(allErrs) > 0 {
		return allErrs
	}
	return nil
}

// graphMemReq is the number of bytes needed to hold a value for every node
// of g.
func graphMemReq(g *G.ExprGraph) int64 {
	var retVal int64
	for _, n := range g.AllNodes() {
		// read and print nodes hold no value
		if n.Type() == nil {
			continue
		}
		size := n.Shape().TotalSize()
		if size == 0 {
			size = 1
		}
		retVal += int64(size) * int64(n.Dtype().Size())
	}
	return retVal
}
