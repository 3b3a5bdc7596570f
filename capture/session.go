package capture

import (
	"bytes"
	"errors"
	"fmt"
	"sync"
	"time"

	"greenroom/encoder"
	"greenroom/log"
)

// ErrAlreadyRecording is returned by Start while a recording is live.
var ErrAlreadyRecording = errors.New("capture already recording")

type State int

const (
	Idle State = iota
	Recording
	Stopping
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Recording:
		return "recording"
	case Stopping:
		return "stopping"
	}
	return "unknown"
}

const deviceWatchInterval = 3 * time.Second

type Config struct {
	// Device selects a specific microphone; nil means system default.
	Device *DeviceInfo
	// ChunkInterval is the emission cadence for streaming chunks.
	ChunkInterval time.Duration
	// WatchInterval is the poll cadence for the selected device
	// disappearing. Defaults to 3s.
	WatchInterval time.Duration
}

// Artifact is the complete locally assembled recording produced when a
// session stops.
type Artifact struct {
	Name      string
	WAV       []byte
	PCMBytes  int
	Duration  time.Duration
	CreatedAt time.Time
}

// Session manages one microphone capture lifecycle: it emits fixed-size
// PCM chunks while recording and assembles every emitted chunk into one
// WAV artifact on stop. Chunks are not retained after the chunk callback
// returns. onStop fires after every transition back to Idle, explicit or
// implicit, so observers always see the recording end.
type Session struct {
	ctx        Context
	cfg        Config
	chunkBytes int
	onChunk    func(chunk []byte)
	onArtifact func(a Artifact)
	onStop     func()

	mu        sync.Mutex
	state     State
	dev       CaptureDevice
	pending   []byte
	rec       bytes.Buffer
	startedAt time.Time
	watchStop chan struct{}
}

func NewSession(ctx Context, cfg Config, onChunk func([]byte), onArtifact func(Artifact), onStop func()) *Session {
	if cfg.ChunkInterval <= 0 {
		cfg.ChunkInterval = time.Second
	}
	if cfg.WatchInterval <= 0 {
		cfg.WatchInterval = deviceWatchInterval
	}
	chunkBytes := int(cfg.ChunkInterval * time.Duration(encoder.BytesPerSecond()) / time.Second)
	frameSize := encoder.Channels * encoder.BitsPerSample / 8
	chunkBytes = (chunkBytes / frameSize) * frameSize
	return &Session{
		ctx:        ctx,
		cfg:        cfg,
		chunkBytes: chunkBytes,
		onChunk:    onChunk,
		onArtifact: onArtifact,
		onStop:     onStop,
	}
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Start acquires the capture device and begins emitting chunks. A failed
// acquisition leaves the session Idle and returns a typed device error.
func (s *Session) Start() error {
	s.mu.Lock()
	if s.state != Idle {
		s.mu.Unlock()
		return ErrAlreadyRecording
	}

	dev, err := s.ctx.NewCapture(s.cfg.Device, CaptureConfig{
		SampleRate: encoder.SampleRate,
		Channels:   encoder.Channels,
	})
	if err != nil {
		s.mu.Unlock()
		return classifyDeviceError(err)
	}

	s.dev = dev
	s.pending = nil
	s.rec.Reset()
	s.startedAt = time.Now()
	s.state = Recording
	s.mu.Unlock()

	dev.SetCallback(s.feed)
	if err := dev.Start(); err != nil {
		dev.ClearCallback()
		dev.Close()
		s.mu.Lock()
		s.dev = nil
		s.state = Idle
		s.mu.Unlock()
		return classifyDeviceError(err)
	}

	if s.cfg.Device != nil {
		s.startDeviceWatch(s.cfg.Device.Name)
	}
	return nil
}

// feed is the device data callback. It accumulates PCM and emits
// chunk-sized slices in arrival order.
func (s *Session) feed(data []byte, _ uint32) {
	var emit [][]byte

	s.mu.Lock()
	if s.state != Recording {
		s.mu.Unlock()
		return
	}
	s.pending = append(s.pending, data...)
	for len(s.pending) >= s.chunkBytes {
		chunk := make([]byte, s.chunkBytes)
		copy(chunk, s.pending[:s.chunkBytes])
		s.pending = s.pending[s.chunkBytes:]
		s.rec.Write(chunk)
		emit = append(emit, chunk)
	}
	s.mu.Unlock()

	// Device callbacks arrive serially, so emission order is FIFO.
	if s.onChunk != nil {
		for _, chunk := range emit {
			s.onChunk(chunk)
		}
	}
}

// Stop terminates the recording, flushes the remaining buffered audio as
// a final short chunk, assembles the artifact and releases the device.
// Stop while Idle is a no-op: no callback fires.
func (s *Session) Stop() {
	s.mu.Lock()
	if s.state != Recording {
		s.mu.Unlock()
		return
	}
	s.state = Stopping
	dev := s.dev
	s.mu.Unlock()

	s.stopDeviceWatch()

	dev.Stop()
	dev.ClearCallback()
	dev.Close()

	s.mu.Lock()
	var tail []byte
	if len(s.pending) > 0 {
		tail = make([]byte, len(s.pending))
		copy(tail, s.pending)
		s.pending = nil
		s.rec.Write(tail)
	}
	pcm := make([]byte, s.rec.Len())
	copy(pcm, s.rec.Bytes())
	s.rec.Reset()
	s.dev = nil
	createdAt := s.startedAt
	s.state = Idle
	s.mu.Unlock()

	if tail != nil && s.onChunk != nil {
		s.onChunk(tail)
	}

	if s.onArtifact != nil {
		s.onArtifact(Artifact{
			Name:      fmt.Sprintf("interview-%s.wav", createdAt.Format("20060102-150405")),
			WAV:       encoder.WAV(pcm),
			PCMBytes:  len(pcm),
			Duration:  encoder.Duration(len(pcm)),
			CreatedAt: createdAt,
		})
	}
	if s.onStop != nil {
		s.onStop()
	}
}

// startDeviceWatch polls for the selected device disappearing; a vanished
// device is treated as an implicit Stop with the audio captured so far.
func (s *Session) startDeviceWatch(name string) {
	stop := make(chan struct{})
	s.mu.Lock()
	s.watchStop = stop
	s.mu.Unlock()

	go func() {
		ticker := time.NewTicker(s.cfg.WatchInterval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				devices, err := s.ctx.Devices()
				if err != nil {
					continue
				}
				found := false
				for _, d := range devices {
					if d.Name == name {
						found = true
						break
					}
				}
				if !found {
					log.Warnf("capture device disappeared: %s", name)
					s.Stop()
					return
				}
			}
		}
	}()
}

func (s *Session) stopDeviceWatch() {
	s.mu.Lock()
	stop := s.watchStop
	s.watchStop = nil
	s.mu.Unlock()
	if stop != nil {
		select {
		case <-stop:
		default:
			close(stop)
		}
	}
}
