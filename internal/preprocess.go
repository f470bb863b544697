package internal

import (
	"fmt"
	"image"
	"image/color"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"path/filepath"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/osfs"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

const (
	InputSize     = 224
	InputChannels = 3
)

// ImageNet statistics expected by the CLIP vision tower.
var (
	channelMean = [InputChannels]float32{0.485, 0.456, 0.406}
	channelStd  = [InputChannels]float32{0.229, 0.224, 0.225}
)

// Preprocessor turns image files into normalized (1, 3, 224, 224) planar tensors.
type Preprocessor struct {
	fs   billy.Filesystem
	host bool
}

// NewPreprocessor reads images through fs. A nil fs means the host filesystem.
func NewPreprocessor(fs billy.Filesystem) *Preprocessor {
	if fs == nil {
		return &Preprocessor{fs: osfs.New("/"), host: true}
	}
	return &Preprocessor{fs: fs}
}

func (p *Preprocessor) Preprocess(path string) (*Tensor, error) {
	if p.host && !filepath.IsAbs(path) {
		abs, err := filepath.Abs(path)
		if err != nil {
			return nil, fmt.Errorf("%w: resolve %s: %v", ErrIO, path, err)
		}
		path = abs
	}

	f, err := p.fs.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %v", ErrIO, path, err)
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrDecode, path, err)
	}

	return PreprocessImage(img)
}

// PreprocessImage resizes img to 224x224 with nearest-neighbour sampling and
// normalizes it per channel. Alpha is dropped, not composited: transparent
// pixels keep their stored RGB. The resize filter must stay nearest-neighbour.
func PreprocessImage(img image.Image) (*Tensor, error) {
	b := img.Bounds()
	if b.Empty() {
		return nil, fmt.Errorf("%w: empty image", ErrDecode)
	}

	sw, sh := b.Dx(), b.Dy()
	plane := InputSize * InputSize
	data := make([]float32, InputChannels*plane)
	for dy := 0; dy < InputSize; dy++ {
		sy := b.Min.Y + nearestSource(dy, sh)
		for dx := 0; dx < InputSize; dx++ {
			sx := b.Min.X + nearestSource(dx, sw)
			px := rgbAt(img, sx, sy)
			i := dy*InputSize + dx
			for c := 0; c < InputChannels; c++ {
				v := float32(px[c]) / 255
				data[c*plane+i] = (v - channelMean[c]) / channelStd[c]
			}
		}
	}

	return NewTensor([]int64{1, InputChannels, InputSize, InputSize}, data)
}

// nearestSource maps destination column d of InputSize onto a source axis of
// length n, sampling at pixel centres.
func nearestSource(d, n int) int {
	return (2*d + 1) * n / (2 * InputSize)
}

// rgbAt returns the straight (non-premultiplied) 8-bit RGB at x, y.
func rgbAt(img image.Image, x, y int) [InputChannels]uint8 {
	switch src := img.(type) {
	case *image.NRGBA:
		o := src.PixOffset(x, y)
		return [InputChannels]uint8{src.Pix[o], src.Pix[o+1], src.Pix[o+2]}
	case *image.NRGBA64:
		c := src.NRGBA64At(x, y)
		return [InputChannels]uint8{round16(c.R), round16(c.G), round16(c.B)}
	}

	switch c := img.At(x, y).(type) {
	case color.NRGBA:
		return [InputChannels]uint8{c.R, c.G, c.B}
	case color.NRGBA64:
		return [InputChannels]uint8{round16(c.R), round16(c.G), round16(c.B)}
	default:
		n := color.NRGBA64Model.Convert(c).(color.NRGBA64)
		return [InputChannels]uint8{round16(n.R), round16(n.G), round16(n.B)}
	}
}

// round16 scales a 16-bit channel to 8 bits, rounding to nearest.
func round16(v uint16) uint8 {
	return uint8((uint32(v)*255 + 32767) / 65535)
}
