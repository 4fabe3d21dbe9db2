package qnet

import (
	"fmt"

	"github.com/pkg/errors"
	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// network is one forward path of the architecture in its own graph:
// conv stack, flatten, dense stack and the linear action-value layer.
type network struct {
	Config
	owner Owner
	batch int

	g      *G.ExprGraph
	input  *G.Node // (batch, height, width, frames)
	output *G.Node // (batch, actions)

	conv  []*layer
	dense []*layer
	q     *layer

	outVal     G.Value
	learnables G.Nodes
}

// newNetwork builds the forward path for owner with a fixed batch size.
func newNetwork(conf Config, owner Owner, batch int, initW, initB G.InitWFn) (*network, error) {
	n := &network{
		Config: conf,
		owner:  owner,
		batch:  batch,
		g:      G.NewGraph(),
	}
	if err := n.fwd(initW, initB); err != nil {
		return nil, errors.WithMessage(err, fmt.Sprintf("cannot build %v network", owner))
	}
	return n, nil
}

func (n *network) fwd(initW, initB G.InitWFn) error {
	m := &builder{g: n.g, owner: n.owner, initW: initW, initB: initB}

	n.input = G.NewTensor(n.g, Float, 4,
		G.WithShape(n.batch, n.ScreenHeight, n.ScreenWidth, n.ObservationLength),
		G.WithName(n.owner.prefix()+"observation"))

	// gorgonia convolves (batch, channels, height, width)
	x := m.do(func() (*G.Node, error) { return G.Transpose(n.input, 0, 3, 1, 2) })
	for i, kernel := range n.ConvKernelShapes {
		l := m.conv(x, kernel, n.ConvStrides[i], i)
		if m.err != nil {
			return m.err
		}
		n.conv = append(n.conv, l)
		x = l.act
	}

	x = m.reshape(x, tensor.Shape{n.batch, n.FlatSize()})
	in := n.FlatSize()
	for i, shape := range n.DenseLayerShapes {
		l := m.dense(x, in, shape[1], fmt.Sprintf("dense%d", i), denseLayer)
		if m.err != nil {
			return m.err
		}
		n.dense = append(n.dense, l)
		x = l.act
		in = shape[1]
	}

	n.q = m.dense(x, in, n.NumActions, "q", linearLayer)
	if m.err != nil {
		return m.err
	}
	n.output = n.q.act
	G.Read(n.output, &n.outVal)
	return nil
}

// params returns the weights and biases in declaration order: all conv
// weights, all conv biases, all dense weights, all dense biases, then the
// output weight and bias.
func (n *network) params() G.Nodes {
	if n.learnables != nil {
		return n.learnables
	}
	retVal := make(G.Nodes, 0, 2*(len(n.conv)+len(n.dense)+1))
	for _, l := range n.conv {
		retVal = append(retVal, l.w)
	}
	for _, l := range n.conv {
		retVal = append(retVal, l.b)
	}
	for _, l := range n.dense {
		retVal = append(retVal, l.w)
	}
	for _, l := range n.dense {
		retVal = append(retVal, l.b)
	}
	retVal = append(retVal, n.q.w, n.q.b)
	n.learnables = retVal
	return retVal
}

// size is the number of scalar parameters in the network.
func (n *network) size() int {
	var retVal int
	for _, p := range n.params() {
		retVal += p.Shape().TotalSize()
	}
	return retVal
}

// result returns a copy of the last computed output.
func (n *network) result() (*tensor.Dense, error) {
	t, ok := n.outVal.(*tensor.Dense)
	if !ok || t == nil {
		return nil, errors.Errorf("%v network produced no output (%T)", n.owner, n.outVal)
	}
	return t.Clone().(*tensor.Dense), nil
}

// inputs are the nodes a run binds caller values to. Between runs every
// node is bound to a zeroed value of its own, so the graph holds no
// reference to a caller's tensor once a call returns.
type inputs struct {
	nodes  G.Nodes
	blanks []*tensor.Dense
}

func newInputs(nodes ...*G.Node) *inputs {
	in := &inputs{nodes: nodes}
	for _, n := range nodes {
		in.blanks = append(in.blanks, tensor.New(tensor.Of(Float), tensor.WithShape(n.Shape().Clone()...)))
	}
	in.release()
	return in
}

// bind binds vals to the nodes, in order.
func (in *inputs) bind(vals ...*tensor.Dense) error {
	if len(vals) != len(in.nodes) {
		return errors.Errorf("%d values for %d inputs", len(vals), len(in.nodes))
	}
	for i, v := range vals {
		if err := G.Let(in.nodes[i], v); err != nil {
			return errors.WithStack(err)
		}
	}
	return nil
}

// release binds the zeroed values back.
func (in *inputs) release() {
	for i, n := range in.nodes {
		if err := G.Let(n, in.blanks[i]); err != nil {
			panic(err)
		}
	}
}
