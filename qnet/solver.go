package qnet

import G "gorgonia.org/gorgonia"

// solver returns the RMSProp solver for the online parameters. The loss is
// already a sum over the batch, so gradients are not rescaled.
func (conf Config) solver() G.Solver {
	opts := []G.SolverOpt{
		G.WithLearnRate(conf.LearningRate),
		G.WithRho(conf.RMSPropDecay),
		G.WithEps(conf.RMSPropConstant),
	}
	if conf.GradClip > 0 {
		opts = append(opts, G.WithClip(conf.GradClip))
	}
	return G.NewRMSPropSolver(opts...)
}
