package stats

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"

	"github.com/chewxy/math32"
	"github.com/codeaudit/deep-rl-ale/qnet"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorgonia.org/tensor"
)

var _ qnet.Stats = &Recorder{}

func TestRecorder(t *testing.T) {
	assert := assert.New(t)
	r := New()

	r.AddSession(qnet.SessionInfo{Name: "pong", Parameters: 10, MemoryRequirement: 100})
	r.AddActivations(tensor.New(tensor.WithShape(2, 3), tensor.WithBacking([]float32{
		1, 5, 2,
		-1, -3, -2,
	})))
	r.AddActivations(tensor.New(tensor.WithShape(3), tensor.WithBacking([]float32{1, 2, 3})))
	r.AddActivations(tensor.New(tensor.WithShape(1, 2), tensor.WithBacking([]float64{1, 2})))
	r.AddLoss(1)
	r.AddLoss(3)
	r.AddLoss(math32.NaN())
	r.AddLoss(5)

	require.Len(t, r.Sessions, 1)
	assert.Equal("pong", r.Sessions[0].Name)
	assert.Equal([]float32{2}, r.MaxQ)

	s := r.Summary(0)
	assert.Equal(4, s.TrainSteps)
	assert.Equal(1, s.Inferences)
	assert.Equal(1, s.NonFinite)
	assert.Equal(float32(3), s.MeanLoss)
	assert.Equal(float32(2), s.MeanMaxQ)

	s = r.Summary(2)
	assert.Equal(1, s.NonFinite)
	assert.Equal(float32(5), s.MeanLoss)
	assert.Contains(s.String(), "steps 4")

	assert.Equal(Summary{}, New().Summary(10))
}

func TestRecorder_Dump(t *testing.T) {
	r := New()
	r.AddLoss(0.5)
	r.AddLoss(0.25)
	r.AddActivations(tensor.New(tensor.WithShape(1, 2), tensor.WithBacking([]float32{1, 2})))

	filename := filepath.Join(t.TempDir(), "stats.csv")
	require.NoError(t, r.Dump(filename))

	f, err := os.Open(filename)
	require.NoError(t, err)
	defer f.Close()
	records, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	assert.Equal(t, [][]string{
		{"index", "loss", "max_q"},
		{"0", "0.5", "2"},
		{"1", "0.25", ""},
	}, records)
}
