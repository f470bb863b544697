package internal

import (
	"fmt"
	"os"
	"slices"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
)

// Tensor names of the CLIP ViT-B/32 ONNX export. Change them only together
// with the model file.
const (
	PixelValuesInput   = "pixel_values"
	InputIDsInput      = "input_ids"
	AttentionMaskInput = "attention_mask"
	ImageEmbedsOutput  = "image_embeds"
)

var _ SessionOpener = (*ORTOpener)(nil)

// ORTOpener opens sessions with ONNX Runtime.
type ORTOpener struct {
	LibraryPath    string
	IntraOpThreads int
}

// ortEnvMu guards the runtime environment, which the library keeps per process.
var ortEnvMu sync.Mutex

func initRuntime(libraryPath string) error {
	ortEnvMu.Lock()
	defer ortEnvMu.Unlock()

	if ort.IsInitialized() {
		return nil
	}
	if libraryPath != "" {
		ort.SetSharedLibraryPath(libraryPath)
	}
	if err := ort.InitializeEnvironment(); err != nil {
		return fmt.Errorf("init onnxruntime: %w", err)
	}
	return nil
}

func (o *ORTOpener) Open(modelPath string, device Device) (Session, error) {
	if _, err := os.Stat(modelPath); err != nil {
		return nil, fmt.Errorf("model file: %w", err)
	}
	if err := initRuntime(o.LibraryPath); err != nil {
		return nil, err
	}

	opts, err := ort.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("session options: %w", err)
	}
	defer opts.Destroy()

	if o.IntraOpThreads > 0 {
		if err := opts.SetIntraOpNumThreads(o.IntraOpThreads); err != nil {
			return nil, fmt.Errorf("set intra-op threads: %w", err)
		}
	}

	switch device {
	case DeviceCUDA:
		cudaOpts, err := ort.NewCUDAProviderOptions()
		if err != nil {
			return nil, fmt.Errorf("cuda provider options: %w", err)
		}
		defer cudaOpts.Destroy()
		if err := opts.AppendExecutionProviderCUDA(cudaOpts); err != nil {
			return nil, fmt.Errorf("append cuda provider: %w", err)
		}
	case DeviceCoreML:
		if err := opts.AppendExecutionProviderCoreML(0); err != nil {
			return nil, fmt.Errorf("append coreml provider: %w", err)
		}
	}

	session, err := ort.NewDynamicAdvancedSession(modelPath,
		[]string{PixelValuesInput, InputIDsInput, AttentionMaskInput},
		[]string{ImageEmbedsOutput},
		opts,
	)
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}

	return &ortSession{session: session}, nil
}

type ortSession struct {
	session *ort.DynamicAdvancedSession
}

func (s *ortSession) Run(pixels *Tensor) (*Tensor, error) {
	if len(pixels.Shape) != 4 {
		return nil, fmt.Errorf("%w: pixel tensor must be rank 4, got %v", ErrShape, pixels.Shape)
	}
	batch := pixels.Shape[0]

	in, err := ort.NewTensor(ort.NewShape(pixels.Shape...), pixels.Data)
	if err != nil {
		return nil, fmt.Errorf("%w: pixel tensor: %v", ErrInference, err)
	}
	defer in.Destroy()

	// The graph is dual-modality and refuses to run without its text inputs,
	// even for image-only inference. Feed (batch, 1) zeros to both.
	ids, err := ort.NewTensor(ort.NewShape(batch, 1), make([]int64, batch))
	if err != nil {
		return nil, fmt.Errorf("%w: input_ids tensor: %v", ErrInference, err)
	}
	defer ids.Destroy()

	mask, err := ort.NewTensor(ort.NewShape(batch, 1), make([]int64, batch))
	if err != nil {
		return nil, fmt.Errorf("%w: attention_mask tensor: %v", ErrInference, err)
	}
	defer mask.Destroy()

	outputs := []ort.Value{nil}
	if err := s.session.Run([]ort.Value{in, ids, mask}, outputs); err != nil {
		return nil, fmt.Errorf("%w: run: %v", ErrInference, err)
	}
	defer outputs[0].Destroy()

	out, ok := outputs[0].(*ort.Tensor[float32])
	if !ok {
		return nil, fmt.Errorf("%w: %s is not a float32 tensor", ErrInference, ImageEmbedsOutput)
	}

	return NewTensor([]int64(slices.Clone(out.GetShape())), slices.Clone(out.GetData()))
}

func (s *ortSession) Close() error {
	return s.session.Destroy()
}

// TensorInfo describes one graph input or output.
type TensorInfo struct {
	Name     string  `json:"name"`
	DataType string  `json:"data_type"`
	Shape    []int64 `json:"shape"`
}

// InspectModel lists the inputs and outputs declared by a model file.
func InspectModel(libraryPath, modelPath string) (inputs, outputs []TensorInfo, err error) {
	if err := initRuntime(libraryPath); err != nil {
		return nil, nil, err
	}

	in, out, err := ort.GetInputOutputInfo(modelPath)
	if err != nil {
		return nil, nil, fmt.Errorf("read model info: %w", err)
	}

	convert := func(infos []ort.InputOutputInfo) []TensorInfo {
		res := make([]TensorInfo, 0, len(infos))
		for _, info := range infos {
			res = append(res, TensorInfo{
				Name:     info.Name,
				DataType: fmt.Sprint(info.DataType),
				Shape:    []int64(info.Dimensions),
			})
		}
		return res
	}

	return convert(in), convert(out), nil
}
