package qnet

import (
	"fmt"

	"github.com/pkg/errors"
	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// syncParams copies the value of every src parameter into the parameter at
// the same position in dst. The backing arrays of dst are reused, so any
// graph bound to them sees the new values without rebinding.
//
// The lists are built from one architecture in one order. A length or shape
// mismatch is a construction defect and panics.
func syncParams(dst, src G.Nodes) {
	if len(dst) != len(src) {
		panic(fmt.Sprintf("sync: parameter count mismatch. dst %d, src %d", len(dst), len(src)))
	}
	for i := range src {
		if !dst[i].Shape().Eq(src[i].Shape()) {
			panic(fmt.Sprintf("sync: %v%v cannot receive %v%v", dst[i].Name(), dst[i].Shape(), src[i].Name(), src[i].Shape()))
		}
		if err := copyValue(dst[i].Value(), src[i].Value()); err != nil {
			panic(fmt.Sprintf("sync: %v <- %v: %+v", dst[i].Name(), src[i].Name(), err))
		}
	}
}

// copyValue copies the elements of src into dst in place.
func copyValue(dst, src G.Value) error {
	d, ok := dst.(*tensor.Dense)
	if !ok {
		return errors.Errorf("copy: expected a *tensor.Dense destination. Got %T", dst)
	}
	s, ok := src.(*tensor.Dense)
	if !ok {
		return errors.Errorf("copy: expected a *tensor.Dense source. Got %T", src)
	}
	if !d.Shape().Eq(s.Shape()) {
		return errors.Errorf("copy: shape mismatch. dst %v, src %v", d.Shape(), s.Shape())
	}

	switch data := s.Data().(type) {
	case []float32:
		to, ok := d.Data().([]float32)
		if !ok {
			return errors.Errorf("copy: dtype mismatch. dst %v, src %v", d.Dtype(), s.Dtype())
		}
		copy(to, data)
	case []float64:
		to, ok := d.Data().([]float64)
		if !ok {
			return errors.Errorf("copy: dtype mismatch. dst %v, src %v", d.Dtype(), s.Dtype())
		}
		copy(to, data)
	default:
		return errors.Errorf("copy: dtype %v not supported", s.Dtype())
	}
	return nil
}
