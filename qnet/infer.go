package qnet

import (
	"github.com/pkg/errors"
	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// inferer is a forward-only online graph for one batch size. Its parameter
// nodes hold no values of their own: they are bound to the values of the
// online training graph before every run.
type inferer struct {
	*network
	in *inputs
	vm G.VM
}

func (q *QNetwork) inferer(batch int) (*inferer, error) {
	if inf, ok := q.infer[batch]; ok {
		return inf, nil
	}

	n, err := newNetwork(q.Config, Online, batch, nil, nil)
	if err != nil {
		return nil, err
	}
	vm, err := q.sess.machine(n.g)
	if err != nil {
		return nil, err
	}
	inf := &inferer{network: n, in: newInputs(n.input), vm: vm}
	q.infer[batch] = inf
	return inf, nil
}

func (inf *inferer) run(params G.Nodes, obs *tensor.Dense) (*tensor.Dense, error) {
	for i, p := range inf.params() {
		if err := G.Let(p, params[i].Value()); err != nil {
			return nil, errors.WithStack(err)
		}
	}
	defer inf.in.release()
	if err := inf.in.bind(obs); err != nil {
		return nil, err
	}

	defer inf.vm.Reset()
	if err := inf.vm.RunAll(); err != nil {
		return nil, errors.WithStack(err)
	}
	return inf.result()
}
