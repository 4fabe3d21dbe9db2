package qnet

import (
	"encoding/json"
	"io/ioutil"

	"github.com/pkg/errors"
)

// Config configures the Q-network: the architecture, the hyperparameters of
// the loss and the solver, and the run it belongs to.
type Config struct {
	// Architecture
	ConvKernelShapes  [][4]int `json:"conv_kernel_shapes"`  // (kh, kw, cin, cout)
	ConvStrides       [][4]int `json:"conv_strides"`        // (1, sh, sw, 1)
	DenseLayerShapes  [][2]int `json:"dense_layer_shapes"`  // (in, out)
	NumActions        int      `json:"num_actions"`         // size of the output layer
	ObservationLength int      `json:"observation_length"`  // frames per observation
	ScreenHeight      int      `json:"screen_height"`       // rows per frame
	ScreenWidth       int      `json:"screen_width"`        // columns per frame

	// Learning
	DiscountFactor  float64 `json:"discount_factor"`
	LearningRate    float64 `json:"learning_rate"`
	RMSPropDecay    float64 `json:"rmsprop_decay"`
	RMSPropConstant float64 `json:"rmsprop_constant"`
	GradClip        float64 `json:"grad_clip"`  // <= 0 if no clipping
	BatchSize       int     `json:"batch_size"` // training batch size
	Seed            int64   `json:"seed"`

	// Run
	MemoryBudget int64  `json:"memory_budget"` // bytes, <= 0 if unbounded
	Name         string `json:"name"`
	LoadModel    bool   `json:"load_model"`
}

// DefaultConf returns the architecture and hyperparameters of the Nature DQN
// for 84x84 screens with 4 stacked frames.
func DefaultConf(numActions int) Config {
	return Config{
		ConvKernelShapes: [][4]int{
			{8, 8, 4, 32},
			{4, 4, 32, 64},
			{3, 3, 64, 64},
		},
		ConvStrides: [][4]int{
			{1, 4, 4, 1},
			{1, 2, 2, 1},
			{1, 1, 1, 1},
		},
		DenseLayerShapes:  [][2]int{{3136, 512}},
		NumActions:        numActions,
		ObservationLength: 4,
		ScreenHeight:      84,
		ScreenWidth:       84,

		DiscountFactor:  0.99,
		LearningRate:    0.00025,
		RMSPropDecay:    0.95,
		RMSPropConstant: 0.01,
		BatchSize:       32,
		Seed:            1337,

		Name: "dqn",
	}
}

// LoadConfig reads a JSON encoded Config from filename.
func LoadConfig(filename string) (Config, error) {
	var conf Config
	data, err := ioutil.ReadFile(filename)
	if err != nil {
		return conf, errors.WithStack(err)
	}
	if err = json.Unmarshal(data, &conf); err != nil {
		return conf, errors.Wrapf(err, "loadconfig: cannot decode %v", filename)
	}
	return conf, nil
}

// convShapes returns the (height, width, channels) of the output of every
// convolutional layer, assuming 'valid' padding.
func (conf Config) convShapes() [][3]int {
	retVal := make([][3]int, 0, len(conf.ConvKernelShapes))
	h, w := conf.ScreenHeight, conf.ScreenWidth
	for i, k := range conf.ConvKernelShapes {
		if i >= len(conf.ConvStrides) {
			break
		}
		s := conf.ConvStrides[i]
		if s[1] <= 0 || s[2] <= 0 {
			break
		}
		h = (h-k[0])/s[1] + 1
		w = (w-k[1])/s[2] + 1
		retVal = append(retVal, [3]int{h, w, k[3]})
	}
	return retVal
}

// FlatSize is the number of features of the flattened output of the last
// convolutional layer.
func (conf Config) FlatSize() int {
	shapes := conf.convShapes()
	if len(shapes) == 0 {
		return 0
	}
	last := shapes[len(shapes)-1]
	return last[0] * last[1] * last[2]
}

// Validate checks the architecture and the hyperparameters for consistency.
func (conf Config) Validate() error {
	if len(conf.ConvKernelShapes) == 0 {
		return errors.New("validate: at least one convolutional layer is required")
	}
	if len(conf.ConvKernelShapes) != len(conf.ConvStrides) {
		return errors.Errorf("validate: invalid number of strides\n\twant(%d)\n\thave(%d)",
			len(conf.ConvKernelShapes), len(conf.ConvStrides))
	}
	if conf.ScreenHeight <= 0 || conf.ScreenWidth <= 0 || conf.ObservationLength <= 0 {
		return errors.Errorf("validate: invalid observation shape (%d, %d, %d)",
			conf.ScreenHeight, conf.ScreenWidth, conf.ObservationLength)
	}

	h, w, c := conf.ScreenHeight, conf.ScreenWidth, conf.ObservationLength
	for i, k := range conf.ConvKernelShapes {
		s := conf.ConvStrides[i]
		if s[0] != 1 || s[3] != 1 || s[1] <= 0 || s[2] <= 0 {
			return errors.Errorf("validate: conv%d stride must be of the form (1, sh, sw, 1), have %v", i, s)
		}
		if k[0] <= 0 || k[1] <= 0 || k[3] <= 0 {
			return errors.Errorf("validate: conv%d has invalid kernel shape %v", i, k)
		}
		if k[2] != c {
			return errors.Errorf("validate: conv%d input channels\n\twant(%d)\n\thave(%d)", i, c, k[2])
		}
		if k[0] > h || k[1] > w {
			return errors.Errorf("validate: conv%d kernel %dx%d does not fit input %dx%d", i, k[0], k[1], h, w)
		}
		h = (h-k[0])/s[1] + 1
		w = (w-k[1])/s[2] + 1
		c = k[3]
	}

	in := h * w * c
	for i, d := range conf.DenseLayerShapes {
		if d[0] != in {
			return errors.Errorf("validate: dense%d input size\n\twant(%d)\n\thave(%d)", i, in, d[0])
		}
		if d[1] <= 0 {
			return errors.Errorf("validate: dense%d has invalid output size %d", i, d[1])
		}
		in = d[1]
	}

	switch {
	case conf.NumActions < 1:
		return errors.Errorf("validate: invalid number of actions %d", conf.NumActions)
	case conf.DiscountFactor < 0 || conf.DiscountFactor > 1:
		return errors.Errorf("validate: discount factor %v not in [0, 1]", conf.DiscountFactor)
	case conf.LearningRate <= 0:
		return errors.Errorf("validate: learning rate must be positive, have %v", conf.LearningRate)
	case conf.RMSPropDecay < 0 || conf.RMSPropDecay >= 1:
		return errors.Errorf("validate: rmsprop decay %v not in [0, 1)", conf.RMSPropDecay)
	case conf.RMSPropConstant <= 0:
		return errors.Errorf("validate: rmsprop constant must be positive, have %v", conf.RMSPropConstant)
	case conf.BatchSize < 1:
		return errors.Errorf("validate: invalid batch size %d", conf.BatchSize)
	case conf.Name == "":
		return errors.New("validate: a run name is required")
	}
	return nil
}

// IsValid reports whether Validate finds no problem.
func (conf Config) IsValid() bool { return conf.Validate() == nil }

// hiddenOut is the number of features that feed the linear output layer.
func (conf Config) hiddenOut() int {
	if n := len(conf.DenseLayerShapes); n > 0 {
		return conf.DenseLayerShapes[n-1][1]
	}
	return conf.FlatSize()
}
