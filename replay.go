package deeprl

import (
	"sync"

	"github.com/codeaudit/deep-rl-ale/qnet"
	"github.com/pkg/errors"
	"golang.org/x/exp/rand"
	"gorgonia.org/tensor"
)

// ErrInsufficientSamples is returned when a batch larger than the memory is
// requested.
var ErrInsufficientSamples = errors.New("not enough transitions to sample from")

// ReplayMemory is a fixed capacity ring of transitions sampled uniformly.
// It is safe for concurrent use.
type ReplayMemory struct {
	sync.Mutex
	obsSize    int
	obsShape   tensor.Shape // (height, width, frames)
	numActions int

	buf  []Transition
	next int
	rng  *rand.Rand
}

// NewReplayMemory returns an empty memory for observations and actions of
// conf holding at most capacity transitions.
func NewReplayMemory(conf qnet.Config, capacity int, seed uint64) *ReplayMemory {
	return &ReplayMemory{
		obsSize:    conf.ScreenHeight * conf.ScreenWidth * conf.ObservationLength,
		obsShape:   tensor.Shape{conf.ScreenHeight, conf.ScreenWidth, conf.ObservationLength},
		numActions: conf.NumActions,
		buf:        make([]Transition, 0, capacity),
		rng:        rand.New(rand.NewSource(seed)),
	}
}

// Add stores a copy of t, evicting the oldest transition when full.
func (m *ReplayMemory) Add(t Transition) error {
	if len(t.Observation) != m.obsSize || len(t.NextObservation) != m.obsSize {
		return errors.Wrapf(qnet.ErrShapeMismatch, "replay: observations must hold %d values. Got %d and %d", m.obsSize, len(t.Observation), len(t.NextObservation))
	}
	if t.Action < 0 || t.Action >= m.numActions {
		return errors.Errorf("replay: action %d out of range [0, %d)", t.Action, m.numActions)
	}
	t.Observation = append([]float32(nil), t.Observation...)
	t.NextObservation = append([]float32(nil), t.NextObservation...)

	m.Lock()
	defer m.Unlock()
	if cap(m.buf) == 0 {
		return errors.New("replay: zero capacity")
	}
	if len(m.buf) < cap(m.buf) {
		m.buf = append(m.buf, t)
		return nil
	}
	m.buf[m.next] = t
	m.next = (m.next + 1) % len(m.buf)
	return nil
}

// Len is the number of transitions held.
func (m *ReplayMemory) Len() int {
	m.Lock()
	defer m.Unlock()
	return len(m.buf)
}

// Sample draws n transitions uniformly with replacement and lays them out as
// a training batch with one-hot actions. The batch should be handed back
// with ReleaseBatch once it has been trained on.
func (m *ReplayMemory) Sample(n int) (qnet.Batch, error) {
	m.Lock()
	defer m.Unlock()
	if n < 1 || len(m.buf) < n {
		return qnet.Batch{}, errors.Wrapf(ErrInsufficientSamples, "want %d, have %d", n, len(m.buf))
	}

	obs := borrowBacking(n * m.obsSize)
	next := borrowBacking(n * m.obsSize)
	actions := borrowBacking(n * m.numActions)
	rewards := borrowBacking(n)
	for i := 0; i < n; i++ {
		t := m.buf[m.rng.Intn(len(m.buf))]
		copy(obs[i*m.obsSize:], t.Observation)
		copy(next[i*m.obsSize:], t.NextObservation)
		actions[i*m.numActions+t.Action] = 1
		rewards[i] = t.Reward
	}

	obsShape := append(tensor.Shape{n}, m.obsShape...)
	return qnet.Batch{
		Observations:     tensor.New(tensor.WithShape(obsShape...), tensor.WithBacking(obs)),
		Actions:          tensor.New(tensor.WithShape(n, m.numActions), tensor.WithBacking(actions)),
		Rewards:          tensor.New(tensor.WithShape(n), tensor.WithBacking(rewards)),
		NextObservations: tensor.New(tensor.WithShape(obsShape.Clone()...), tensor.WithBacking(next)),
	}, nil
}

// ReleaseBatch returns the backings of a sampled batch for reuse. The batch
// must not be used afterwards.
func ReleaseBatch(b qnet.Batch) {
	for _, t := range []*tensor.Dense{b.Observations, b.Actions, b.Rewards, b.NextObservations} {
		if t == nil {
			continue
		}
		if data, ok := t.Data().([]float32); ok {
			returnBacking(data)
		}
	}
}
