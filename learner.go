package deeprl

import (
	"fmt"
	"log"
	"os"
	"sync"

	"github.com/codeaudit/deep-rl-ale/qnet"
	"github.com/pkg/errors"
	"gorgonia.org/tensor"
	"gorgonia.org/vecf32"
)

// Learner is the training loop around a Q-network. It serializes every call
// into the network, so it is safe for concurrent use: actors may Infer while
// another goroutine Learns.
type Learner struct {
	sync.Mutex
	Config

	NN     *qnet.QNetwork
	Memory Sampler
	logger *log.Logger

	steps    int
	lastLoss float32
}

// NewLearner builds the network of conf.NNConf. When the network is restored
// from a checkpoint, the step count resumes from it.
func NewLearner(conf Config, mem Sampler, logger *log.Logger, opts ...qnet.Option) (*Learner, error) {
	if conf.TargetUpdateInterval < 1 {
		return nil, errors.Errorf("learner: invalid target update interval %d", conf.TargetUpdateInterval)
	}
	if mem == nil {
		return nil, errors.New("learner: a sampler is required")
	}
	if logger == nil {
		logger = log.New(os.Stderr, "learner: ", log.Ltime)
	}

	opts = append([]qnet.Option{qnet.WithLogger(logger)}, opts...)
	nn, err := qnet.New(conf.NNConf, opts...)
	if err != nil {
		return nil, errors.WithMessage(err, "learner: cannot create network")
	}
	return &Learner{
		Config: conf,
		NN:     nn,
		Memory: mem,
		logger: logger,
		steps:  nn.Step(),
	}, nil
}

// Ready reports whether the memory holds enough transitions to learn from.
func (l *Learner) Ready() bool { return l.Memory.Len() >= l.need() }

// need is the number of transitions required before learning starts.
func (l *Learner) need() int {
	if l.ReplayStart < l.NNConf.BatchSize {
		return l.NNConf.BatchSize
	}
	return l.ReplayStart
}

// Learn performs iters training steps. The target network is synchronized
// every TargetUpdateInterval steps and a checkpoint is written every
// CheckpointInterval steps.
func (l *Learner) Learn(iters int) error {
	l.Lock()
	defer l.Unlock()

	if !l.Ready() {
		return errors.Wrapf(ErrInsufficientSamples, "learner: %d transitions held, %d needed", l.Memory.Len(), l.need())
	}

	for i := 0; i < iters; i++ {
		b, err := l.Memory.Sample(l.NNConf.BatchSize)
		if err != nil {
			return err
		}
		loss, err := l.NN.Train(b)
		if _, ok := l.Memory.(*ReplayMemory); ok {
			ReleaseBatch(b)
		}
		if err != nil {
			return errors.WithMessage(err, fmt.Sprintf("learner: step %d", l.steps))
		}
		l.steps++
		l.lastLoss = loss

		if l.steps%l.TargetUpdateInterval == 0 {
			l.NN.UpdateTargetNetwork()
			l.logger.Printf("step %d: target network updated. Loss %v", l.steps, loss)
		}
		if l.CheckpointInterval > 0 && l.steps%l.CheckpointInterval == 0 {
			if _, err = l.NN.SaveModel(l.steps); err != nil {
				return err
			}
		}
	}
	return nil
}

// Steps is the number of training steps taken, including restored ones.
func (l *Learner) Steps() int {
	l.Lock()
	defer l.Unlock()
	return l.steps
}

// Loss is the loss of the last training step.
func (l *Learner) Loss() float32 {
	l.Lock()
	defer l.Unlock()
	return l.lastLoss
}

// Infer returns the action values of a batch of observations.
func (l *Learner) Infer(obs *tensor.Dense) (*tensor.Dense, error) {
	l.Lock()
	defer l.Unlock()
	return l.NN.Inference(obs)
}

// GreedyActions returns the action with the highest value for every
// observation of the batch.
func (l *Learner) GreedyActions(obs *tensor.Dense) ([]int, error) {
	q, err := l.Infer(obs)
	if err != nil {
		return nil, err
	}
	rows, cols := q.Shape()[0], q.Shape()[1]
	data := q.Data().([]float32)
	retVal := make([]int, rows)
	for i := range retVal {
		retVal[i] = vecf32.Argmax(data[i*cols : (i+1)*cols])
	}
	return retVal, nil
}

// Save writes a checkpoint for the current step.
func (l *Learner) Save() (string, error) {
	l.Lock()
	defer l.Unlock()
	return l.NN.SaveModel(l.steps)
}

// Close releases the network.
func (l *Learner) Close() error {
	l.Lock()
	defer l.Unlock()
	return l.NN.Close()
}
