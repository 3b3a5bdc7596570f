package capture

import (
	"encoding/binary"
	"errors"
	"math"
	"strings"
)

// Capture device failures surface as one of these, wrapped with the
// platform error. Both are recoverable by retrying Start().
var (
	ErrNoDevice         = errors.New("no capture device available")
	ErrPermissionDenied = errors.New("capture device access denied")
)

type DataCallback func(data []byte, frameCount uint32)

type CaptureConfig struct {
	SampleRate uint32
	Channels   uint32
}

type DeviceInfo struct {
	ID   string // opaque platform-specific identifier
	Name string
}

type Context interface {
	Devices() ([]DeviceInfo, error)
	NewCapture(device *DeviceInfo, config CaptureConfig) (CaptureDevice, error)
	Close()
}

type CaptureDevice interface {
	Start() error
	Stop()
	Close()
	SetCallback(cb DataCallback)
	ClearCallback()
}

var btKeywords = []string{
	"airpods", "beats", "bose", "jabra", "galaxy buds", "pixel buds",
	"bluetooth", " bt ", " bt)", " bt]",
}

// IsBluetooth guesses whether a device is a Bluetooth headset; those
// often capture at degraded quality and get a warning in the UI.
func IsBluetooth(name string) bool {
	lower := strings.ToLower(name)
	for _, kw := range btKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// classifyDeviceError maps platform errors onto the capture error
// taxonomy so the UI can distinguish "denied" from "not found".
func classifyDeviceError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrNoDevice) || errors.Is(err, ErrPermissionDenied) {
		return err
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "denied") || strings.Contains(msg, "permission") || strings.Contains(msg, "not authorized"):
		return errors.Join(ErrPermissionDenied, err)
	case strings.Contains(msg, "no device") || strings.Contains(msg, "not found") || strings.Contains(msg, "no such"):
		return errors.Join(ErrNoDevice, err)
	}
	return errors.Join(ErrNoDevice, err)
}

// Level computes the RMS level of a LINEAR16 chunk, normalized to 0..1.
func Level(pcm []byte) float64 {
	if len(pcm) < 2 {
		return 0
	}
	var sumSquares float64
	for i := 0; i+1 < len(pcm); i += 2 {
		sample := int16(binary.LittleEndian.Uint16(pcm[i:]))
		normalized := float64(sample) / 32768.0
		sumSquares += normalized * normalized
	}
	return math.Sqrt(sumSquares / float64(len(pcm)/2))
}
