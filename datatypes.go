// Package deeprl trains a deep Q-network from a replay memory of screen
// transitions. The network itself lives in package qnet.
package deeprl

import (
	"github.com/codeaudit/deep-rl-ale/qnet"
	"gorgonia.org/tensor"
)

// Config configures a Learner.
type Config struct {
	NNConf qnet.Config

	ReplayCapacity       int // transitions kept for sampling
	ReplayStart          int // transitions required before learning starts
	TargetUpdateInterval int // training steps between target syncs
	CheckpointInterval   int // training steps between checkpoints, 0 disables
	Seed                 uint64
}

// DefaultConfig returns the replay and target sync cadence of the Nature DQN,
// scaled down to what a single process can hold.
func DefaultConfig(numActions int) Config {
	return Config{
		NNConf:               qnet.DefaultConf(numActions),
		ReplayCapacity:       100000,
		ReplayStart:          5000,
		TargetUpdateInterval: 10000,
		CheckpointInterval:   50000,
		Seed:                 1337,
	}
}

// Transition is a single step of experience. Observations are flattened
// (height, width, frames) screens as produced by FrameStack.
type Transition struct {
	Observation     []float32
	Action          int
	Reward          float32
	NextObservation []float32
}

// Sampler is anything that can produce training batches of n transitions.
type Sampler interface {
	Len() int
	Sample(n int) (qnet.Batch, error)
}

// OutputEncoder encodes what the network sees and what it thinks of it.
//
// An example OutputEncoder is the GIF Encoder in render/gif.
type OutputEncoder interface {
	Encode(obs *tensor.Dense, q []float32, caption string) error
	Flush() error
}
