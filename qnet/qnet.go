// Package qnet implements a deep Q-network: a convolutional action-value
// function trained with a Huber loss on temporal difference errors, and a
// target copy of it that only changes when it is explicitly synchronized.
//
// A *QNetwork is not safe for concurrent use. Inference, Train,
// UpdateTargetNetwork and SaveModel must be serialized by the caller.
package qnet

import (
	"fmt"
	"log"
	"os"

	"github.com/chewxy/math32"
	"github.com/codeaudit/deep-rl-ale/checkpoint"
	"github.com/pkg/errors"
	"golang.org/x/exp/rand"
	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

var (
	// ErrShapeMismatch is returned for a batch whose rank, dimensions,
	// dtype or one-hot encoding does not match the network.
	ErrShapeMismatch = errors.New("shape mismatch")

	// ErrClosed is returned by every operation on a closed network.
	ErrClosed = errors.New("network is closed")
)

// SessionInfo describes the execution context a network holds.
type SessionInfo struct {
	Name              string
	Parameters        int   // scalar parameters per owner
	MemoryRequirement int64 // bytes
}

// Stats receives the events of a network. It is never read back.
type Stats interface {
	AddSession(info SessionInfo)
	AddActivations(q *tensor.Dense)
	AddLoss(loss float32)
}

// Batch is a batch of transitions. Actions is one-hot.
type Batch struct {
	Observations     *tensor.Dense // (batch, height, width, frames)
	Actions          *tensor.Dense // (batch, actions)
	Rewards          *tensor.Dense // (batch)
	NextObservations *tensor.Dense // (batch, height, width, frames)
}

// Option configures a QNetwork.
type Option func(q *QNetwork)

// WithStats sets the recorder that receives the events of the network.
func WithStats(s Stats) Option {
	return func(q *QNetwork) { q.stats = s }
}

// WithLogger sets the logger.
func WithLogger(l *log.Logger) Option {
	return func(q *QNetwork) { q.logger = l }
}

// WithModelDir sets the directory run directories are created in.
func WithModelDir(dir string) Option {
	return func(q *QNetwork) { q.modelDir = dir }
}

// QNetwork is an online Q-network and its target network.
type QNetwork struct {
	Config

	online *network // training graph, holds the online parameters
	target *network // holds the target parameters
	infer  map[int]*inferer

	// training inputs and cost
	actions *G.Node
	rewards *G.Node
	targetQ *G.Node
	cost    *G.Node
	costVal G.Value

	trainIn  *inputs // observation, actions, rewards, target_q
	targetIn *inputs // target observation

	solver   G.Solver
	sess     *session
	trainVM  G.VM
	targetVM G.VM

	store    *checkpoint.Store
	modelDir string
	stats    Stats
	logger   *log.Logger
	step     int
}

// New builds the online and target networks described by conf. The target
// starts as an exact copy of the freshly initialized online network. If
// conf.LoadModel is set, both are restored from the latest checkpoint of the
// run instead, and New fails if there is none.
func New(conf Config, opts ...Option) (*QNetwork, error) {
	if err := conf.Validate(); err != nil {
		return nil, err
	}

	q := &QNetwork{
		Config: conf,
		infer:  make(map[int]*inferer),
	}
	for _, opt := range opts {
		opt(q)
	}
	if q.logger == nil {
		q.logger = log.New(os.Stderr, "qnet: ", log.Ltime)
	}

	var err error
	if q.store, err = checkpoint.New(q.modelDir, conf.Name); err != nil {
		return nil, err
	}

	if err = q.init(); err != nil {
		q.sess.Close()
		return nil, err
	}

	if conf.LoadModel {
		path, _, err := q.store.Latest()
		if err == nil {
			err = q.Restore(path)
		}
		if err != nil {
			q.sess.Close()
			return nil, errors.WithMessage(err, fmt.Sprintf("cannot load model %q", conf.Name))
		}
	}

	info := SessionInfo{
		Name:              conf.Name,
		Parameters:        q.online.size(),
		MemoryRequirement: q.sess.MemoryRequirement(),
	}
	if q.stats != nil {
		q.stats.AddSession(info)
	}
	q.logger.Printf("%v: %d parameters per network, %d bytes reserved", info.Name, info.Parameters, info.MemoryRequirement)
	return q, nil
}

func (q *QNetwork) init() (err error) {
	q.sess = newSession(q.Name, q.MemoryBudget)

	initW := TruncatedNormal(0, initStdDev, rand.NewSource(uint64(q.Seed)))
	if q.online, err = newNetwork(q.Config, Online, q.BatchSize, initW, Constant(initBias)); err != nil {
		return err
	}
	if q.target, err = newNetwork(q.Config, Target, q.BatchSize, G.Zeroes(), G.Zeroes()); err != nil {
		return err
	}
	syncParams(q.target.params(), q.online.params())
	q.targetIn = newInputs(q.target.input)

	if err = q.bwd(); err != nil {
		return errors.WithMessage(err, "cannot build loss")
	}
	q.solver = q.Config.solver()

	if q.trainVM, err = q.sess.machine(q.online.g, G.BindDualValues(q.online.params()...)); err != nil {
		return err
	}
	if q.targetVM, err = q.sess.machine(q.target.g); err != nil {
		return err
	}
	return nil
}

// bwd adds the loss and its gradient to the online training graph.
func (q *QNetwork) bwd() error {
	g := q.online.g
	q.actions = G.NewMatrix(g, Float, G.WithShape(q.BatchSize, q.NumActions), G.WithName("actions"))
	q.rewards = G.NewVector(g, Float, G.WithShape(q.BatchSize), G.WithName("rewards"))
	q.targetQ = G.NewMatrix(g, Float, G.WithShape(q.BatchSize, q.NumActions), G.WithName("target_q"))

	var err error
	if q.cost, err = tdLoss(q.online.output, q.actions, q.rewards, q.targetQ, q.DiscountFactor); err != nil {
		return err
	}
	G.Read(q.cost, &q.costVal)
	q.trainIn = newInputs(q.online.input, q.actions, q.rewards, q.targetQ)

	if _, err = G.Grad(q.cost, q.online.params()...); err != nil {
		return errors.WithStack(err)
	}
	return nil
}

// Inference returns the online action values (batch, actions) of a batch of
// observations. Any batch size is accepted.
func (q *QNetwork) Inference(obs *tensor.Dense) (*tensor.Dense, error) {
	if q.sess.closed {
		return nil, ErrClosed
	}
	if err := q.checkObservations(obs, -1); err != nil {
		return nil, err
	}

	inf, err := q.inferer(obs.Shape()[0])
	if err != nil {
		return nil, err
	}
	retVal, err := inf.run(q.online.params(), obs)
	if err != nil {
		return nil, err
	}
	if q.stats != nil {
		q.stats.AddActivations(retVal)
	}
	return retVal, nil
}

// Train performs one RMSProp step on the online network and returns the
// loss of the batch before the step. The batch size must be BatchSize.
// The target network is only read.
func (q *QNetwork) Train(b Batch) (float32, error) {
	if q.sess.closed {
		return 0, ErrClosed
	}
	if err := q.checkBatch(b); err != nil {
		return 0, err
	}

	// max_a Q'(s', a) is computed in its own graph and enters the loss as
	// an input, so the target parameters never receive a gradient.
	nextQ, err := q.forwardTarget(b.NextObservations)
	if err != nil {
		return 0, err
	}

	defer q.trainIn.release()
	if err = q.trainIn.bind(b.Observations, b.Actions, b.Rewards, nextQ); err != nil {
		return 0, err
	}

	defer q.trainVM.Reset()
	if err = q.trainVM.RunAll(); err != nil {
		return 0, errors.WithStack(err)
	}

	loss, err := scalarOf(q.costVal)
	if err != nil {
		return 0, err
	}
	if err = q.solver.Step(G.NodesToValueGrads(q.online.params())); err != nil {
		return 0, errors.WithStack(err)
	}

	if math32.IsNaN(loss) || math32.IsInf(loss, 0) {
		q.logger.Printf("%v: non-finite loss %v", q.Name, loss)
	}
	if q.stats != nil {
		q.stats.AddLoss(loss)
	}
	return loss, nil
}

func (q *QNetwork) forwardTarget(obs *tensor.Dense) (*tensor.Dense, error) {
	defer q.targetIn.release()
	if err := q.targetIn.bind(obs); err != nil {
		return nil, err
	}
	defer q.targetVM.Reset()
	if err := q.targetVM.RunAll(); err != nil {
		return nil, errors.WithStack(err)
	}
	return q.target.result()
}

// UpdateTargetNetwork copies every online parameter into the target network.
func (q *QNetwork) UpdateTargetNetwork() {
	if q.sess.closed {
		return
	}
	syncParams(q.target.params(), q.online.params())
}

// Step returns the step of the last checkpoint saved or restored.
func (q *QNetwork) Step() int { return q.step }

// MemoryRequirement returns the number of bytes held by the network.
func (q *QNetwork) MemoryRequirement() int64 { return q.sess.MemoryRequirement() }

// Close releases the machines of the network. A closed network returns
// ErrClosed.
func (q *QNetwork) Close() error { return q.sess.Close() }

func (q *QNetwork) checkObservations(obs *tensor.Dense, batch int) error {
	if obs == nil {
		return errors.Wrap(ErrShapeMismatch, "nil observations")
	}
	if obs.Dtype() != Float {
		return errors.Wrapf(ErrShapeMismatch, "observations dtype\n\twant(%v)\n\thave(%v)", Float, obs.Dtype())
	}
	s := obs.Shape()
	if s.Dims() != 4 || s[0] < 1 || s[1] != q.ScreenHeight || s[2] != q.ScreenWidth || s[3] != q.ObservationLength {
		return errors.Wrapf(ErrShapeMismatch, "observations\n\twant(B, %d, %d, %d)\n\thave%v", q.ScreenHeight, q.ScreenWidth, q.ObservationLength, s)
	}
	if batch > 0 && s[0] != batch {
		return errors.Wrapf(ErrShapeMismatch, "observation batch size\n\twant(%d)\n\thave(%d)", batch, s[0])
	}
	return nil
}

func (q *QNetwork) checkBatch(b Batch) error {
	if err := q.checkObservations(b.Observations, q.BatchSize); err != nil {
		return err
	}
	if err := q.checkObservations(b.NextObservations, q.BatchSize); err != nil {
		return errors.WithMessage(err, "next")
	}

	switch {
	case b.Actions == nil || b.Rewards == nil:
		return errors.Wrap(ErrShapeMismatch, "missing actions or rewards")
	case b.Actions.Dtype() != Float || b.Rewards.Dtype() != Float:
		return errors.Wrapf(ErrShapeMismatch, "actions and rewards must be %v", Float)
	case b.Actions.Dims() != 2:
		return errors.Wrapf(ErrShapeMismatch, "actions must be a matrix. Got %v", b.Actions.Shape())
	case b.Rewards.Dims() != 1:
		return errors.Wrapf(ErrShapeMismatch, "rewards must be a vector. Got %v", b.Rewards.Shape())
	case !b.Actions.Shape().Eq(tensor.Shape{q.BatchSize, q.NumActions}):
		return errors.Wrapf(ErrShapeMismatch, "actions\n\twant(%d, %d)\n\thave%v", q.BatchSize, q.NumActions, b.Actions.Shape())
	case !b.Rewards.Shape().Eq(tensor.Shape{q.BatchSize}):
		return errors.Wrapf(ErrShapeMismatch, "rewards\n\twant(%d)\n\thave%v", q.BatchSize, b.Rewards.Shape())
	}

	actions := b.Actions.Data().([]float32)
	for i := 0; i < q.BatchSize; i++ {
		var ones int
		for _, v := range actions[i*q.NumActions : (i+1)*q.NumActions] {
			switch v {
			case 0:
			case 1:
				ones++
			default:
				return errors.Wrapf(ErrShapeMismatch, "actions row %d is not one-hot", i)
			}
		}
		if ones != 1 {
			return errors.Wrapf(ErrShapeMismatch, "actions row %d has %d ones", i, ones)
		}
	}
	return nil
}

func scalarOf(v G.Value) (float32, error) {
	switch s := v.(type) {
	case *G.F32:
		return float32(*s), nil
	case *G.F64:
		return float32(*s), nil
	case *tensor.Dense:
		if s.Shape().TotalSize() == 1 {
			switch data := s.Data().(type) {
			case float32:
				return data, nil
			case []float32:
				return data[0], nil
			case float64:
				return float32(data), nil
			case []float64:
				return float32(data[0]), nil
			}
		}
	}
	return 0, errors.Errorf("expected a scalar loss. Got %v of %T", v, v)
}
