package qnet

import (
	"bytes"
	"fmt"
	"text/template"

	"github.com/awalterschulze/gographviz"
	"github.com/pkg/errors"
)

type dotLayer struct {
	ID     string
	Kind   string
	Params string
	Output string
}

// ToDot renders the architecture as a graphviz digraph, one node per layer.
func (conf Config) ToDot() (string, error) {
	if err := conf.Validate(); err != nil {
		return "", err
	}

	layers := []dotLayer{{
		ID:     "observation",
		Kind:   "Input",
		Output: fmt.Sprintf("%d×%d×%d", conf.ScreenHeight, conf.ScreenWidth, conf.ObservationLength),
	}}
	for i, s := range conf.convShapes() {
		k, st := conf.ConvKernelShapes[i], conf.ConvStrides[i]
		layers = append(layers, dotLayer{
			ID:     fmt.Sprintf("conv%d", i),
			Kind:   "Conv + ReLU",
			Params: fmt.Sprintf("%d×%d×%d×%d / %d×%d", k[0], k[1], k[2], k[3], st[1], st[2]),
			Output: fmt.Sprintf("%d×%d×%d", s[0], s[1], s[2]),
		})
	}
	layers = append(layers, dotLayer{ID: "flatten", Kind: "Flatten", Output: fmt.Sprintf("%d", conf.FlatSize())})
	for i, d := range conf.DenseLayerShapes {
		layers = append(layers, dotLayer{
			ID:     fmt.Sprintf("dense%d", i),
			Kind:   "Dense + ReLU",
			Params: fmt.Sprintf("%d×%d", d[0], d[1]),
			Output: fmt.Sprintf("%d", d[1]),
		})
	}
	layers = append(layers, dotLayer{
		ID:     "q",
		Kind:   "Linear",
		Params: fmt.Sprintf("%d×%d", conf.hiddenOut(), conf.NumActions),
		Output: fmt.Sprintf("%d", conf.NumActions),
	})

	g := gographviz.NewGraph()
	if err := g.SetName(fmt.Sprintf("%q", conf.Name)); err != nil {
		return "", errors.WithStack(err)
	}
	if err := g.SetDir(true); err != nil {
		return "", errors.WithStack(err)
	}

	var buf bytes.Buffer
	for i, l := range layers {
		if err := dotTmpl.Execute(&buf, l); err != nil {
			return "", errors.WithStack(err)
		}
		attrs := map[string]string{
			"fontname": "Monaco",
			"shape":    "none",
			"label":    buf.String(),
		}
		buf.Reset()
		if err := g.AddNode(g.Name, l.ID, attrs); err != nil {
			return "", errors.WithStack(err)
		}
		if i > 0 {
			if err := g.AddEdge(layers[i-1].ID, l.ID, true, nil); err != nil {
				return "", errors.WithStack(err)
			}
		}
	}
	return g.String(), nil
}

const dotTmplRaw = `<
<TABLE BORDER="0" CELLBORDER="1" CELLSPACING="0">
<TR><TD COLSPAN="2">{{.ID}}</TD></TR>
<TR><TD>Layer</TD><TD>{{.Kind}}</TD></TR>
{{if .Params}}<TR><TD>Shape</TD><TD>{{.Params}}</TD></TR>{{end}}
<TR><TD>Output</TD><TD>{{.Output}}</TD></TR>
</TABLE>
>`

var dotTmpl = template.Must(template.New("layer").Parse(dotTmplRaw))
