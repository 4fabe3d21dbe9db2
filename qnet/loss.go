package qnet

import (
	G "gorgonia.org/gorgonia"
	nnops "gorgonia.org/gorgonia/ops/nn"
)

// tdLoss builds the summed Huber loss of the temporal difference error.
//
// q is the online output (batch, actions), actions is a one-hot (batch,
// actions) mask, rewards is (batch) and nextQ is the target output for the
// successor observations. nextQ must be an input node fed from the target
// graph: no gradient can reach the target parameters through it.
func tdLoss(q, actions, rewards, nextQ *G.Node, discount float64) (*G.Node, error) {
	var m builder
	m.g = q.Graph()

	gamma := G.NewConstant(scalar(discount), G.WithName("discount_factor"))

	// value of the action that was taken
	prediction := m.do(func() (*G.Node, error) { return G.HadamardProd(q, actions) })
	prediction = m.do(func() (*G.Node, error) { return G.Sum(prediction, 1) })

	// r + γ max_a Q'(s', a)
	best := m.do(func() (*G.Node, error) { return G.Max(nextQ, 1) })
	bootstrap := m.do(func() (*G.Node, error) { return G.HadamardProd(best, gamma) })
	bootstrap = m.do(func() (*G.Node, error) { return G.Add(rewards, bootstrap) })

	diff := m.do(func() (*G.Node, error) { return G.Sub(prediction, bootstrap) })
	perExample := m.huber(diff)
	cost := m.do(func() (*G.Node, error) { return G.Sum(perExample) })
	return cost, m.err
}

// huber returns 0.5*min(|x|, 1)² + (|x| - min(|x|, 1)) elementwise.
func (m *builder) huber(x *G.Node) *G.Node {
	one := G.NewConstant(scalar(1), G.WithName("huber_delta"))
	half := G.NewConstant(scalar(0.5), G.WithName("huber_half"))

	abs := m.do(func() (*G.Node, error) { return G.Abs(x) })
	over := m.do(func() (*G.Node, error) { return G.Sub(abs, one) })

	// |x| - min(|x|, 1) == relu(|x| - 1)
	excess := m.do(func() (*G.Node, error) { return nnops.Rectify(over) })
	clipped := m.do(func() (*G.Node, error) { return G.Sub(abs, excess) })

	quad := m.do(func() (*G.Node, error) { return G.Square(clipped) })
	quad = m.do(func() (*G.Node, error) { return G.HadamardProd(quad, half) })
	return m.do(func() (*G.Node, error) { return G.Add(quad, excess) })
}
