package qnet

import (
	"encoding/gob"
	"fmt"
	"io"

	"github.com/pkg/errors"
	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// snapshot is the persisted state of a QNetwork.
type snapshot struct {
	Step   int
	Names  []string
	Online []*tensor.Dense
	Target []*tensor.Dense
}

// SaveModel writes the online and target parameters and step to the run
// directory and returns the path of the checkpoint.
func (q *QNetwork) SaveModel(step int) (string, error) {
	if q.sess.closed {
		return "", ErrClosed
	}
	snap := snapshot{
		Step:   step,
		Names:  q.ParameterNames(),
		Online: values(q.online.params()),
		Target: values(q.target.params()),
	}
	path, err := q.store.Save(step, func(w io.Writer) error {
		return errors.WithStack(gob.NewEncoder(w).Encode(&snap))
	})
	if err != nil {
		return "", err
	}
	q.step = step
	q.logger.Printf("%v: saved step %d to %v", q.Name, step, path)
	return path, nil
}

// Restore replaces the online and target parameters with the ones saved in
// path. Nothing is changed unless every saved parameter matches the network.
func (q *QNetwork) Restore(path string) error {
	if q.sess.closed {
		return ErrClosed
	}
	rc, err := q.store.Open(path)
	if err != nil {
		return err
	}
	defer rc.Close()

	var snap snapshot
	if err = gob.NewDecoder(rc).Decode(&snap); err != nil {
		return errors.Wrapf(err, "cannot decode %v", path)
	}

	online, target := q.online.params(), q.target.params()
	if err = checkSnapshot(online, snap.Names, snap.Online); err != nil {
		return errors.WithMessage(err, fmt.Sprintf("%v online", path))
	}
	if err = checkSnapshot(online, snap.Names, snap.Target); err != nil {
		return errors.WithMessage(err, fmt.Sprintf("%v target", path))
	}

	for i := range online {
		if err = copyValue(online[i].Value(), snap.Online[i]); err != nil {
			return err
		}
		if err = copyValue(target[i].Value(), snap.Target[i]); err != nil {
			return err
		}
	}
	q.step = snap.Step
	q.logger.Printf("%v: restored step %d from %v", q.Name, snap.Step, path)
	return nil
}

func checkSnapshot(params G.Nodes, names []string, vals []*tensor.Dense) error {
	if len(names) != len(params) || len(vals) != len(params) {
		return errors.Errorf("parameter count\n\twant(%d)\n\thave(%d names, %d values)", len(params), len(names), len(vals))
	}
	for i, p := range params {
		if names[i] != p.Name() {
			return errors.Errorf("parameter %d\n\twant(%v)\n\thave(%v)", i, p.Name(), names[i])
		}
		if vals[i] == nil || !vals[i].Shape().Eq(p.Shape()) || vals[i].Dtype() != p.Dtype() {
			return errors.Errorf("parameter %v\n\twant(%v %v)\n\thave(%v)", p.Name(), p.Dtype(), p.Shape(), vals[i])
		}
	}
	return nil
}

// Parameters returns copies of the parameter values of owner in declaration
// order: conv weights, conv biases, dense weights, dense biases, then the
// output weight and bias.
func (q *QNetwork) Parameters(o Owner) []*tensor.Dense {
	if o == Target {
		return values(q.target.params())
	}
	return values(q.online.params())
}

// ParameterNames returns the names of the online parameters in declaration
// order. The target parameter at the same position has the prefix "target_".
func (q *QNetwork) ParameterNames() []string {
	params := q.online.params()
	retVal := make([]string, len(params))
	for i, p := range params {
		retVal[i] = p.Name()
	}
	return retVal
}

func values(params G.Nodes) []*tensor.Dense {
	retVal := make([]*tensor.Dense, len(params))
	for i, p := range params {
		retVal[i] = p.Value().(*tensor.Dense).Clone().(*tensor.Dense)
	}
	return retVal
}
