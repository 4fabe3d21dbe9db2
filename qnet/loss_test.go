package qnet

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

type lossCase struct {
	name     string
	q        []float32 // (2, 2)
	actions  []float32 // (2, 2)
	rewards  []float32 // (2)
	nextQ    []float32 // (2, 2)
	discount float64

	loss  float32
	gradQ []float32 // d loss / d q
}

func (c lossCase) run(t *testing.T) (loss float32, gradQ []float32) {
	g := G.NewGraph()
	val := func(backing []float32, s ...int) G.NodeConsOpt {
		return G.WithValue(tensor.New(tensor.WithShape(s...), tensor.WithBacking(append([]float32(nil), backing...))))
	}
	q := G.NewMatrix(g, Float, G.WithShape(2, 2), G.WithName("q"), val(c.q, 2, 2))
	actions := G.NewMatrix(g, Float, G.WithShape(2, 2), G.WithName("actions"), val(c.actions, 2, 2))
	rewards := G.NewVector(g, Float, G.WithShape(2), G.WithName("rewards"), val(c.rewards, 2))
	nextQ := G.NewMatrix(g, Float, G.WithShape(2, 2), G.WithName("target_q"), val(c.nextQ, 2, 2))

	cost, err := tdLoss(q, actions, rewards, nextQ, c.discount)
	require.NoError(t, err)
	var costVal G.Value
	G.Read(cost, &costVal)
	_, err = G.Grad(cost, q)
	require.NoError(t, err)

	vm := G.NewTapeMachine(g, G.BindDualValues(q))
	defer vm.Close()
	require.NoError(t, vm.RunAll())

	loss, err = scalarOf(costVal)
	require.NoError(t, err)
	grad, err := q.Grad()
	require.NoError(t, err)
	return loss, append([]float32(nil), grad.Data().([]float32)...)
}

func TestTDLoss(t *testing.T) {
	cases := []lossCase{
		{
			name:    "zero error",
			q:       []float32{1, 5, 2, -2},
			actions: []float32{1, 0, 0, 1},
			rewards: []float32{0.5, -2},
			nextQ:   []float32{1, 0.5, 0, -2},
			// bootstrap: 0.5 + 0.5*1 = 1 and -2 + 0.5*0 = -2
			discount: 0.5,
			loss:     0,
			gradQ:    []float32{0, 0, 0, 0},
		},
		{
			name:     "quadratic",
			q:        []float32{0.5, 7, 0, 0},
			actions:  []float32{1, 0, 1, 0},
			rewards:  []float32{0, 0},
			nextQ:    []float32{3, 4, 0, 0},
			discount: 0,
			loss:     0.125,
			gradQ:    []float32{0.5, 0, 0, 0},
		},
		{
			name:     "boundary",
			q:        []float32{0, 0, 0, 0},
			actions:  []float32{0, 1, 1, 0},
			rewards:  []float32{-1, 0},
			nextQ:    []float32{0, 0, 0, 0},
			discount: 0.99,
			loss:     0.5,
			gradQ:    []float32{0, 1, 0, 0},
		},
		{
			name:    "linear",
			q:       []float32{0, 0, 0, 0},
			actions: []float32{1, 0, 1, 0},
			rewards: []float32{1, 0},
			nextQ:   []float32{2, 4, 0, 0},
			// bootstrap 1 + 0.5*4 = 3, loss 3 - 0.5
			discount: 0.5,
			loss:     2.5,
			gradQ:    []float32{-1, 0, 0, 0},
		},
		{
			name:     "linear, overestimate",
			q:        []float32{0, 3, 0, 0},
			actions:  []float32{0, 1, 1, 0},
			rewards:  []float32{0, 0},
			nextQ:    []float32{0, 0, 0, 0},
			discount: 0.99,
			loss:     2.5,
			gradQ:    []float32{0, 1, 0, 0},
		},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			loss, grad := c.run(t)
			assert.InDelta(t, c.loss, loss, 1e-5)
			assert.InDeltaSlice(t, c.gradQ, grad, 1e-5)
		})
	}
}

func TestTDLoss_Huber(t *testing.T) {
	for _, d := range []float32{0, 0.25, 0.5, 0.999, 1, 1.001, 2, 10, 123.5} {
		for _, sign := range []float32{1, -1} {
			c := lossCase{
				q:       []float32{sign * d, 0, 0, 0},
				actions: []float32{1, 0, 1, 0},
				rewards: []float32{0, 0},
				nextQ:   []float32{0, 0, 0, 0},
			}
			want := 0.5 * d * d
			if d > 1 {
				want = d - 0.5
			}
			loss, _ := c.run(t)
			assert.InDelta(t, want, loss, 1e-4, "d = %v", sign*d)
			assert.True(t, loss >= 0)
		}
	}
}
