// Package stats records what a Q-network reports while it learns.
package stats

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"sync"

	"github.com/chewxy/math32"
	"github.com/codeaudit/deep-rl-ale/qnet"
	"github.com/pkg/errors"
	"gorgonia.org/tensor"
	"gorgonia.org/vecf32"
)

// Recorder implements qnet.Stats. It is safe for concurrent use.
type Recorder struct {
	sync.Mutex
	Sessions []qnet.SessionInfo
	Losses   []float32 // one per training step
	MaxQ     []float32 // batch mean of max_a Q(s, a), one per inference
}

// New returns an empty Recorder.
func New() *Recorder {
	return &Recorder{
		Losses: make([]float32, 0, 1024),
		MaxQ:   make([]float32, 0, 1024),
	}
}

func (r *Recorder) AddSession(info qnet.SessionInfo) {
	r.Lock()
	r.Sessions = append(r.Sessions, info)
	r.Unlock()
}

func (r *Recorder) AddActivations(q *tensor.Dense) {
	if q == nil || q.Dims() != 2 {
		return
	}
	data, ok := q.Data().([]float32)
	if !ok {
		return
	}
	rows, cols := q.Shape()[0], q.Shape()[1]
	if rows == 0 || cols == 0 {
		return
	}

	var sum float32
	for i := 0; i < rows; i++ {
		sum += vecf32.MaxOf(data[i*cols : (i+1)*cols])
	}

	r.Lock()
	r.MaxQ = append(r.MaxQ, sum/float32(rows))
	r.Unlock()
}

func (r *Recorder) AddLoss(loss float32) {
	r.Lock()
	r.Losses = append(r.Losses, loss)
	r.Unlock()
}

// Summary is an aggregate of the most recent events.
type Summary struct {
	TrainSteps int
	Inferences int
	NonFinite  int // non-finite losses, excluded from MeanLoss
	MeanLoss   float32
	MeanMaxQ   float32
}

func (s Summary) String() string {
	return fmt.Sprintf("steps %d, inferences %d, loss %.5f, max Q %.5f, non-finite %d",
		s.TrainSteps, s.Inferences, s.MeanLoss, s.MeanMaxQ, s.NonFinite)
}

// Summary aggregates the last window losses and max Q values. A window <= 0
// aggregates everything.
func (r *Recorder) Summary(window int) Summary {
	r.Lock()
	defer r.Unlock()

	retVal := Summary{
		TrainSteps: len(r.Losses),
		Inferences: len(r.MaxQ),
	}

	losses := last(r.Losses, window)
	finite := make([]float32, 0, len(losses))
	for _, l := range losses {
		if math32.IsNaN(l) || math32.IsInf(l, 0) {
			retVal.NonFinite++
			continue
		}
		finite = append(finite, l)
	}
	retVal.MeanLoss = mean(finite)
	retVal.MeanMaxQ = mean(last(r.MaxQ, window))
	return retVal
}

// Dump writes the losses and max Q values as CSV, one row per index.
func (r *Recorder) Dump(filename string) error {
	r.Lock()
	defer r.Unlock()

	f, err := os.OpenFile(filename, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0644)
	if err != nil {
		return errors.WithStack(err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write([]string{"index", "loss", "max_q"}); err != nil {
		return errors.WithStack(err)
	}
	n := len(r.Losses)
	if len(r.MaxQ) > n {
		n = len(r.MaxQ)
	}
	records := make([][]string, 0, n)
	for i := 0; i < n; i++ {
		record := []string{strconv.Itoa(i), "", ""}
		if i < len(r.Losses) {
			record[1] = strconv.FormatFloat(float64(r.Losses[i]), 'f', -1, 32)
		}
		if i < len(r.MaxQ) {
			record[2] = strconv.FormatFloat(float64(r.MaxQ[i]), 'f', -1, 32)
		}
		records = append(records, record)
	}
	if err := w.WriteAll(records); err != nil {
		return errors.WithStack(err)
	}
	return errors.WithStack(f.Sync())
}

func last(a []float32, n int) []float32 {
	if n <= 0 || n >= len(a) {
		return a
	}
	return a[len(a)-n:]
}

func mean(a []float32) float32 {
	if len(a) == 0 {
		return 0
	}
	return vecf32.Sum(a) / float32(len(a))
}
