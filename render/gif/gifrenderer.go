// Package gif renders observations and the action values computed for them
// as an animated GIF.
package gif

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/gif"
	"io"
	"math"
	"strings"

	"github.com/golang/freetype/truetype"
	"github.com/pkg/errors"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/gomono"
	"golang.org/x/image/math/fixed"
	"gorgonia.org/tensor"
	"gorgonia.org/vecf32"
)

var regular *truetype.Font

const (
	dpi             = 72.0
	fontsize        = 10.0
	lineheight      = 1.2
	captionLines    = 3
	gap             = 2 // pixels between frames
	dummyLongString = `Q [-0.000 -0.000 -0.000 -0.000]`
)

func init() {
	var err error
	if regular, err = truetype.Parse(gomono.TTF); err != nil {
		panic(err)
	}
}

var grayPalette = func() color.Palette {
	retVal := make(color.Palette, 256)
	for i := range retVal {
		retVal[i] = color.Gray{uint8(i)}
	}
	return retVal
}()

// Encoder draws one GIF frame per observation: the stacked screens side by
// side, followed by a caption with the action values and the greedy action.
type Encoder struct {
	Scale int // pixels per screen pixel
	Delay int // 100ths of a second per frame
	font.Drawer

	out *gif.GIF
	io.Writer
	face font.Face

	H, W        int          // size of every frame, fixed by the first observation
	obsShape    tensor.Shape // (height, width, frames)
	initialized bool
}

// NewEncoder returns an Encoder writing to w when flushed.
func NewEncoder(w io.Writer, scale int) *Encoder {
	if scale < 1 {
		scale = 1
	}
	face := truetype.NewFace(regular, &truetype.Options{
		Size:    fontsize,
		DPI:     dpi,
		Hinting: font.HintingFull,
	})
	return &Encoder{
		Scale:  scale,
		Delay:  10,
		Writer: w,
		face:   face,
		Drawer: font.Drawer{
			Src:  image.White,
			Face: face,
		},
		out: &gif.GIF{LoopCount: 0},
	}
}

// Encode adds a frame for obs, which is (height, width, frames) or (1,
// height, width, frames) with values in [0, 1]. q may be nil.
func (enc *Encoder) Encode(obs *tensor.Dense, q []float32, caption string) error {
	s := obs.Shape()
	if s.Dims() == 4 && s[0] == 1 {
		s = s[1:]
	}
	if s.Dims() != 3 {
		return errors.Errorf("gif: expected an observation of (height, width, frames). Got %v", obs.Shape())
	}
	data, ok := obs.Data().([]float32)
	if !ok {
		return errors.Errorf("gif: expected []float32 observations. Got %T", obs.Data())
	}
	h, w, frames := s[0], s[1], s[2]
	dy := int(math.Ceil(fontsize * lineheight * dpi / 72))

	if !enc.initialized {
		// lazy init of the frame size
		enc.W = maxInt(frames*w*enc.Scale+(frames-1)*gap, font.MeasureString(enc.face, dummyLongString).Ceil())
		enc.H = h*enc.Scale + (captionLines+1)*dy
		enc.obsShape = s.Clone()
		enc.initialized = true
	}
	if !s.Eq(enc.obsShape) {
		return errors.Errorf("gif: observation shape changed from %v to %v", enc.obsShape, s)
	}

	lines := []string{caption}
	if len(q) > 0 {
		lines = append(lines, fmt.Sprintf("Q %s", formatQ(q)), fmt.Sprintf("greedy %d", vecf32.Argmax(q)))
	}

	im := image.NewPaletted(image.Rect(0, 0, enc.W, enc.H), grayPalette)
	draw.Draw(im, im.Bounds(), image.Black, image.Point{}, draw.Src)

	for f := 0; f < frames; f++ {
		x0 := f * (w*enc.Scale + gap)
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				px := color.Gray{gray(data[(y*w+x)*frames+f])}
				r := image.Rect(x0+x*enc.Scale, y*enc.Scale, x0+(x+1)*enc.Scale, (y+1)*enc.Scale)
				draw.Draw(im, r, &image.Uniform{C: px}, image.Point{}, draw.Src)
			}
		}
	}

	enc.Dst = im
	y := h*enc.Scale + dy
	for _, l := range lines {
		enc.Dot = fixed.P(0, y)
		enc.DrawString(l)
		y += dy
	}

	enc.out.Image = append(enc.out.Image, im)
	enc.out.Delay = append(enc.out.Delay, enc.Delay)
	return nil
}

// Len is the number of frames encoded so far.
func (enc *Encoder) Len() int { return len(enc.out.Image) }

// Flush writes the gif into the writer
func (enc *Encoder) Flush() error {
	if len(enc.out.Image) == 0 {
		return errors.New("gif: nothing to flush")
	}
	return errors.WithStack(gif.EncodeAll(enc.Writer, enc.out))
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func gray(v float32) uint8 {
	switch {
	case v <= 0 || v != v:
		return 0
	case v >= 1:
		return 255
	}
	return uint8(v*255 + 0.5)
}

func formatQ(q []float32) string {
	parts := make([]string, len(q))
	for i, v := range q {
		parts[i] = fmt.Sprintf("%.3f", v)
	}
	return "[" + strings.Join(parts, " ") + "]"
}
