package qnet

import (
	"fmt"

	"github.com/pkg/errors"
	G "gorgonia.org/gorgonia"
	nnops "gorgonia.org/gorgonia/ops/nn"
	"gorgonia.org/tensor"
)

// Owner identifies which parameter set a layer belongs to.
type Owner int

const (
	Online Owner = iota // trained by the solver
	Target              // overwritten by UpdateTargetNetwork only
)

func (o Owner) String() string {
	switch o {
	case Online:
		return "online"
	case Target:
		return "target"
	}
	return fmt.Sprintf("Owner(%d)", int(o))
}

func (o Owner) prefix() string {
	if o == Target {
		return "target_"
	}
	return ""
}

type layerKind byte

const (
	convLayer layerKind = iota
	denseLayer
	linearLayer
)

// layer is one weight/bias pair and the activation it produces.
type layer struct {
	kind layerKind
	w, b *G.Node
	act  *G.Node
}

// builder adds layers to a graph. The first error is kept and every later
// call becomes a no-op.
type builder struct {
	g     *G.ExprGraph
	owner Owner
	initW G.InitWFn
	initB G.InitWFn
	err   error
}

func (m *builder) do(f func() (*G.Node, error)) (retVal *G.Node) {
	if m.err != nil {
		return nil
	}
	if retVal, m.err = f(); m.err != nil {
		m.err = errors.WithStack(m.err)
	}
	return
}

// init returns the construction option for fn. Parameters of a graph built
// without initializers hold no value until one is bound with G.Let.
func (m *builder) init(fn G.InitWFn) G.NodeConsOpt {
	if fn == nil {
		return func(*G.Node) {}
	}
	return G.WithInit(fn)
}

func (m *builder) rectify(input *G.Node) (retVal *G.Node) {
	return m.do(func() (*G.Node, error) { return nnops.Rectify(input) })
}

func (m *builder) reshape(input *G.Node, to tensor.Shape) (retVal *G.Node) {
	return m.do(func() (*G.Node, error) { return G.Reshape(input, to) })
}

// conv adds a 'valid' convolution followed by a bias and a ReLU. The input
// is expected in (batch, channels, height, width) layout. kernel is
// (kh, kw, cin, cout) and stride is (1, sh, sw, 1).
func (m *builder) conv(input *G.Node, kernel, stride [4]int, idx int) *layer {
	if m.err != nil {
		return nil
	}
	kh, kw, cin, cout := kernel[0], kernel[1], kernel[2], kernel[3]
	name := fmt.Sprintf("%sconv%d", m.owner.prefix(), idx)

	w := G.NewTensor(m.g, Float, 4, G.WithShape(cout, cin, kh, kw), G.WithName(name+"_weights"), m.init(m.initW))
	b := G.NewVector(m.g, Float, G.WithShape(cout), G.WithName(name+"_biases"), m.init(m.initB))

	convolved := m.do(func() (*G.Node, error) {
		return nnops.Conv2d(input, w, tensor.Shape{kh, kw}, []int{0, 0}, []int{stride[1], stride[2]}, []int{1, 1})
	})
	bias := m.reshape(b, tensor.Shape{1, cout, 1, 1})
	biased := m.do(func() (*G.Node, error) { return G.BroadcastAdd(convolved, bias, nil, []byte{0, 2, 3}) })

	return &layer{kind: convLayer, w: w, b: b, act: m.rectify(biased)}
}

// dense adds a fully connected layer. Only denseLayer is rectified; the
// linear output layer yields raw, signed action values.
func (m *builder) dense(input *G.Node, in, out int, name string, kind layerKind) *layer {
	if m.err != nil {
		return nil
	}
	name = m.owner.prefix() + name

	w := G.NewMatrix(m.g, Float, G.WithShape(in, out), G.WithName(name+"_weights"), m.init(m.initW))
	b := G.NewVector(m.g, Float, G.WithShape(out), G.WithName(name+"_biases"), m.init(m.initB))

	xw := m.do(func() (*G.Node, error) { return G.Mul(input, w) })
	bias := m.reshape(b, tensor.Shape{1, out})
	retVal := m.do(func() (*G.Node, error) { return G.BroadcastAdd(xw, bias, nil, []byte{0}) })
	if kind == denseLayer {
		retVal = m.rectify(retVal)
	}
	return &layer{kind: kind, w: w, b: b, act: retVal}
}
