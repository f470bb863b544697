package internal

import (
	"errors"
	"fmt"
)

// Session runs the image tower of a loaded vision-language model.
// Implementations are not required to be reentrant.
type Session interface {
	// Run takes a (N, 3, 224, 224) pixel tensor and returns the (N, D) image embeddings.
	Run(pixels *Tensor) (*Tensor, error)
	Close() error
}

// SessionOpener builds a session for a model file on one device.
type SessionOpener interface {
	Open(modelPath string, device Device) (Session, error)
}

type InitOutcome int

const (
	InitFailed InitOutcome = iota
	InitAccelerated
	InitFallback
	InitCPU
)

func (o InitOutcome) String() string {
	switch o {
	case InitAccelerated:
		return "accelerated"
	case InitFallback:
		return "fallback"
	case InitCPU:
		return "cpu"
	default:
		return "failed"
	}
}

// SessionInit records which construction path produced the session.
// AcceleratorErr is set when an accelerator was tried and rejected.
type SessionInit struct {
	Outcome        InitOutcome
	Session        Session
	Device         Device
	AcceleratorErr error
	Err            error
}

// OpenSession tries the requested accelerator once and falls back to a CPU
// session if that construction fails. A session that constructs fine on an
// accelerator is kept even if it later turns out to run slowly.
func OpenSession(opener SessionOpener, modelPath string, device Device) SessionInit {
	device = ResolveDevice(device)

	var accelErr error
	if device.Accelerated() {
		s, err := opener.Open(modelPath, device)
		if err == nil {
			return SessionInit{Outcome: InitAccelerated, Session: s, Device: device}
		}
		accelErr = fmt.Errorf("open %s session: %w", device, err)
	}

	s, err := opener.Open(modelPath, DeviceCPU)
	if err != nil {
		return SessionInit{
			Outcome:        InitFailed,
			AcceleratorErr: accelErr,
			Err:            fmt.Errorf("%w: %w", ErrSessionInit, errors.Join(accelErr, fmt.Errorf("open cpu session: %w", err))),
		}
	}

	if accelErr != nil {
		return SessionInit{Outcome: InitFallback, Session: s, Device: DeviceCPU, AcceleratorErr: accelErr}
	}
	return SessionInit{Outcome: InitCPU, Session: s, Device: DeviceCPU}
}
