package qnet

import (
	"fmt"
	"math"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat/distuv"
	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// Float is the dtype of every node in the network.
var Float = G.Float32

const (
	initStdDev = 0.01
	initBias   = 0.01
)

// TruncatedNormal returns a weight initializer drawing from a normal
// distribution. Draws further than two standard deviations from the mean
// are discarded and redrawn.
func TruncatedNormal(mean, stddev float64, src rand.Source) G.InitWFn {
	dist := distuv.Normal{Mu: mean, Sigma: stddev, Src: src}
	draw := func() float64 {
		for {
			if v := dist.Rand(); math.Abs(v-mean) <= 2*stddev {
				return v
			}
		}
	}

	return func(dt tensor.Dtype, s ...int) interface{} {
		size := tensor.Shape(s).TotalSize()
		switch dt {
		case tensor.Float64:
			retVal := make([]float64, size)
			for i := range retVal {
				retVal[i] = draw()
			}
			return retVal
		case tensor.Float32:
			retVal := make([]float32, size)
			for i := range retVal {
				retVal[i] = float32(draw())
			}
			return retVal
		default:
			panic(fmt.Sprintf("truncatednormal: dtype %v not supported", dt))
		}
	}
}

// Constant returns an initializer that fills a tensor with v.
func Constant(v float64) G.InitWFn {
	return func(dt tensor.Dtype, s ...int) interface{} {
		size := tensor.Shape(s).TotalSize()
		switch dt {
		case tensor.Float64:
			retVal := make([]float64, size)
			for i := range retVal {
				retVal[i] = v
			}
			return retVal
		case tensor.Float32:
			retVal := make([]float32, size)
			for i := range retVal {
				retVal[i] = float32(v)
			}
			return retVal
		default:
			panic(fmt.Sprintf("constant: dtype %v not supported", dt))
		}
	}
}

// scalar converts v to the Go type matching Float.
func scalar(v float64) interface{} {
	if Float == G.Float64 {
		return v
	}
	return float32(v)
}
