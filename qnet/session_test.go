package qnet

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	G "gorgonia.org/gorgonia"
)

func TestGraphMemReq(t *testing.T) {
	g := G.NewGraph()
	x := G.NewMatrix(g, Float, G.WithShape(2, 3), G.WithName("x"))
	var v G.Value
	G.Read(x, &v)

	// the read node holds nothing
	assert.Equal(t, int64(2*3*4), graphMemReq(g))
}

func TestSession(t *testing.T) {
	conf := smallConf()
	n, err := newNetwork(conf, Online, conf.BatchSize, nil, nil)
	require.NoError(t, err)
	req := graphMemReq(n.g)
	require.True(t, req > 0)

	s := newSession("test", req)
	_, err = s.machine(n.g)
	require.NoError(t, err)
	assert.Equal(t, req, s.MemoryRequirement())

	_, err = s.machine(n.g)
	assert.Equal(t, ErrMemoryBudget, errors.Cause(err))
	assert.Equal(t, req, s.MemoryRequirement())

	require.NoError(t, s.Close())
	require.NoError(t, s.Close())
	assert.Equal(t, int64(0), s.MemoryRequirement())
	_, err = s.machine(n.g)
	assert.Equal(t, ErrClosed, errors.Cause(err))
}
