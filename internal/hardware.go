package internal

import (
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"strings"
)

type Device string

const (
	DeviceAuto   Device = "auto"
	DeviceCoreML Device = "coreml"
	DeviceCUDA   Device = "cuda"
	DeviceCPU    Device = "cpu"
)

func (d Device) Accelerated() bool {
	return d == DeviceCUDA || d == DeviceCoreML
}

func ParseDevice(s string) (Device, error) {
	switch d := Device(strings.ToLower(strings.TrimSpace(s))); d {
	case "", DeviceAuto:
		return DeviceAuto, nil
	case DeviceCoreML, DeviceCUDA, DeviceCPU:
		return d, nil
	default:
		return "", fmt.Errorf("unknown device %q (want auto, cuda, coreml or cpu)", s)
	}
}

// ResolveDevice replaces auto with whatever accelerator the host appears to have.
func ResolveDevice(d Device) Device {
	if d == DeviceAuto || d == "" {
		return DetectHardware()
	}
	return d
}

func DetectHardware() Device {
	if isAppleSilicon() {
		return DeviceCoreML
	}
	if isCUDA() {
		return DeviceCUDA
	}
	return DeviceCPU
}

func isAppleSilicon() bool {
	return runtime.GOOS == "darwin" && runtime.GOARCH == "arm64"
}

func isCUDA() bool {
	if _, err := os.Stat("/dev/nvidia0"); err == nil {
		return true
	}
	if _, err := exec.LookPath("nvidia-smi"); err == nil {
		return true
	}
	return false
}
