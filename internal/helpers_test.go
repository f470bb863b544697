package internal

import (
	"errors"
	"image"
	"image/color"
	"image/png"
	"sync"
	"testing"

	"github.com/go-git/go-billy/v5"
	"github.com/stretchr/testify/require"
)

const fakeDimension = 4

// fakeSession embeds each image as the mean of its three planes plus a
// constant, so the output of a row depends only on that row's pixels.
type fakeSession struct {
	mu         sync.Mutex
	runs       int
	batchSizes []int64
	failBatch  bool
	err        error
	outDim     int
	closed     bool
}

func (s *fakeSession) Run(pixels *Tensor) (*Tensor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.runs++
	if len(pixels.Shape) != 4 {
		return nil, errors.New("pixel_values must be rank 4")
	}
	n := pixels.Shape[0]
	s.batchSizes = append(s.batchSizes, n)
	if s.err != nil {
		return nil, s.err
	}
	if s.failBatch && n > 1 {
		return nil, errors.New("batch dimension not supported")
	}

	dim := s.outDim
	if dim == 0 {
		dim = fakeDimension
	}

	plane := int(pixels.Shape[2] * pixels.Shape[3])
	per := int(pixels.Shape[1]) * plane
	out := make([]float32, 0, int(n)*dim)
	for i := 0; i < int(n); i++ {
		img := pixels.Data[i*per : (i+1)*per]
		row := make([]float32, dim)
		for c := 0; c < int(pixels.Shape[1]) && c < dim; c++ {
			var sum float64
			for _, v := range img[c*plane : (c+1)*plane] {
				sum += float64(v)
			}
			row[c] = float32(sum / float64(plane))
		}
		if dim > 3 {
			row[3] = 1
		}
		out = append(out, row...)
	}
	return NewTensor([]int64{n, int64(dim)}, out)
}

func (s *fakeSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

type fakeOpener struct {
	fail    map[Device]error
	opened  []Device
	session *fakeSession
}

func (o *fakeOpener) Open(modelPath string, device Device) (Session, error) {
	o.opened = append(o.opened, device)
	if err := o.fail[device]; err != nil {
		return nil, err
	}
	if o.session == nil {
		o.session = &fakeSession{}
	}
	return o.session, nil
}

func writePNG(t *testing.T, fs billy.Filesystem, path string, c color.Color, w, h int) {
	t.Helper()

	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}

	f, err := fs.Create(path)
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, png.Encode(f, img))
}

func writeFile(t *testing.T, fs billy.Filesystem, path string, data []byte) {
	t.Helper()

	f, err := fs.Create(path)
	require.NoError(t, err)
	_, err = f.Write(data)
	require.NoError(t, err)
	require.NoError(t, f.Close())
}

func newTestEncoder(t *testing.T, fs billy.Filesystem, session *fakeSession) *Encoder {
	t.Helper()

	enc, err := NewEncoder(SessionInit{Outcome: InitCPU, Session: session, Device: DeviceCPU}, WithFilesystem(fs))
	require.NoError(t, err)
	return enc
}
