package deeprl

import (
	"testing"

	"github.com/codeaudit/deep-rl-ale/qnet"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorgonia.org/tensor"
)

func tinyConf() qnet.Config {
	conf := qnet.DefaultConf(3)
	conf.ConvKernelShapes = [][4]int{{2, 2, 2, 4}}
	conf.ConvStrides = [][4]int{{1, 1, 1, 1}}
	conf.DenseLayerShapes = [][2]int{{36, 8}}
	conf.ObservationLength = 2
	conf.ScreenHeight = 4
	conf.ScreenWidth = 4
	conf.LearningRate = 0.01
	conf.BatchSize = 4
	conf.Name = "tiny"
	return conf
}

func filled(v float32, n int) []float32 {
	retVal := make([]float32, n)
	for i := range retVal {
		retVal[i] = v
	}
	return retVal
}

func TestReplayMemory_Add(t *testing.T) {
	conf := tinyConf()
	m := NewReplayMemory(conf, 3, 1)
	size := 4 * 4 * 2

	assert.Error(t, m.Add(Transition{Observation: filled(0, size-1), NextObservation: filled(0, size)}))
	assert.Error(t, m.Add(Transition{Observation: filled(0, size), NextObservation: filled(0, size), Action: 3}))
	assert.Error(t, m.Add(Transition{Observation: filled(0, size), NextObservation: filled(0, size), Action: -1}))

	for i := 0; i < 5; i++ {
		require.NoError(t, m.Add(Transition{
			Observation:     filled(float32(i), size),
			Action:          i % 3,
			Reward:          float32(i),
			NextObservation: filled(float32(i+1), size),
		}))
	}
	assert.Equal(t, 3, m.Len())

	// the two oldest were evicted
	var rewards []float32
	for _, tr := range m.buf {
		rewards = append(rewards, tr.Reward)
	}
	assert.ElementsMatch(t, []float32{2, 3, 4}, rewards)

	// stored transitions do not alias the caller's slices
	obs := filled(9, size)
	require.NoError(t, m.Add(Transition{Observation: obs, NextObservation: obs}))
	obs[0] = -1
	for _, tr := range m.buf {
		assert.NotEqual(t, float32(-1), tr.Observation[0])
	}
}

func TestReplayMemory_Sample(t *testing.T) {
	conf := tinyConf()
	m := NewReplayMemory(conf, 10, 2)
	size := 4 * 4 * 2

	_, err := m.Sample(1)
	assert.Equal(t, ErrInsufficientSamples, errors.Cause(err))

	for i := 0; i < 6; i++ {
		require.NoError(t, m.Add(Transition{
			Observation:     filled(float32(i), size),
			Action:          i % 3,
			Reward:          float32(10 * i),
			NextObservation: filled(float32(i+1), size),
		}))
	}
	_, err = m.Sample(7)
	assert.Equal(t, ErrInsufficientSamples, errors.Cause(err))

	b, err := m.Sample(4)
	require.NoError(t, err)
	assert.Equal(t, tensor.Shape{4, 4, 4, 2}, b.Observations.Shape())
	assert.Equal(t, tensor.Shape{4, 4, 4, 2}, b.NextObservations.Shape())
	assert.Equal(t, tensor.Shape{4, 3}, b.Actions.Shape())
	assert.Equal(t, tensor.Shape{4}, b.Rewards.Shape())

	obs := b.Observations.Data().([]float32)
	next := b.NextObservations.Data().([]float32)
	actions := b.Actions.Data().([]float32)
	rewards := b.Rewards.Data().([]float32)
	for i := 0; i < 4; i++ {
		// every row is a consistent transition
		id := int(obs[i*size])
		assert.Equal(t, float32(10*id), rewards[i])
		assert.Equal(t, float32(id+1), next[i*size+size-1])

		row := actions[i*3 : (i+1)*3]
		want := make([]float32, 3)
		want[id%3] = 1
		assert.Equal(t, want, row)
	}
	ReleaseBatch(b)

	// the memory is a valid sampler for the network
	var _ Sampler = m
	q, err := qnet.New(conf, qnet.WithLogger(quiet), qnet.WithModelDir(t.TempDir()))
	require.NoError(t, err)
	defer q.Close()
	b, err = m.Sample(conf.BatchSize)
	require.NoError(t, err)
	_, err = q.Train(b)
	assert.NoError(t, err)
}

func TestBacking(t *testing.T) {
	a := borrowBacking(8)
	assert.Len(t, a, 8)
	a[3] = 5
	returnBacking(a)

	b := borrowBacking(8)
	assert.Equal(t, make([]float32, 8), b)
	returnBacking(nil)
}
