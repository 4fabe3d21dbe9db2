package deeprl

import (
	"github.com/pkg/errors"
	"gorgonia.org/tensor"
	"gorgonia.org/vecf32"
)

// FrameStack keeps the most recent screens of an episode and encodes them as
// one observation. Screens are grayscale, row major, one byte per pixel.
type FrameStack struct {
	H, W, N int

	frames [][]float32 // ring of scaled screens
	next   int
	count  int
}

// NewFrameStack returns a FrameStack of n screens of h×w pixels.
func NewFrameStack(h, w, n int) *FrameStack {
	frames := make([][]float32, n)
	for i := range frames {
		frames[i] = make([]float32, h*w)
	}
	return &FrameStack{H: h, W: w, N: n, frames: frames}
}

// Push adds a screen, evicting the oldest one once N screens are held.
func (fs *FrameStack) Push(screen []uint8) error {
	if len(screen) != fs.H*fs.W {
		return errors.Errorf("framestack: expected a screen of %d×%d pixels. Got %d", fs.H, fs.W, len(screen))
	}
	frame := fs.frames[fs.next]
	for i, px := range screen {
		frame[i] = float32(px)
	}
	vecf32.Scale(frame, 1.0/255.0)

	fs.next = (fs.next + 1) % fs.N
	if fs.count < fs.N {
		fs.count++
	}
	return nil
}

// Len is the number of screens pushed since the last Reset, at most N.
func (fs *FrameStack) Len() int { return fs.count }

// Reset forgets every screen. It is called at the start of an episode.
func (fs *FrameStack) Reset() {
	fs.next = 0
	fs.count = 0
}

// Observation returns the held screens laid out (height, width, frames),
// oldest frame first. Until N screens are pushed the oldest one is repeated.
func (fs *FrameStack) Observation() ([]float32, error) {
	if fs.count == 0 {
		return nil, errors.New("framestack: no screens")
	}
	retVal := make([]float32, fs.H*fs.W*fs.N)
	oldest := (fs.next - fs.count + fs.N) % fs.N
	for f := 0; f < fs.N; f++ {
		k := f - (fs.N - fs.count) // index among the held screens
		if k < 0 {
			k = 0
		}
		frame := fs.frames[(oldest+k)%fs.N]
		for p, v := range frame {
			retVal[p*fs.N+f] = v
		}
	}
	return retVal, nil
}

// Tensor returns the observation as a batch of one, (1, height, width, frames).
func (fs *FrameStack) Tensor() (*tensor.Dense, error) {
	obs, err := fs.Observation()
	if err != nil {
		return nil, err
	}
	return tensor.New(tensor.WithShape(1, fs.H, fs.W, fs.N), tensor.WithBacking(obs)), nil
}
