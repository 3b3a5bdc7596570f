package capture

import (
	"bytes"
	"encoding/binary"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"greenroom/encoder"
)

func patternPCM(n int) []byte {
	pcm := make([]byte, n)
	for i := range pcm {
		pcm[i] = byte(i % 253)
	}
	return pcm
}

func TestStartStopRoundTrip(t *testing.T) {
	pcm := patternPCM(5000)
	ctx := NewFakeContext(pcm, false)

	var chunks [][]byte
	var artifacts []Artifact
	sess := NewSession(ctx, Config{ChunkInterval: 20 * time.Millisecond},
		func(c []byte) { chunks = append(chunks, c) },
		func(a Artifact) { artifacts = append(artifacts, a) },
		nil,
	)

	if err := sess.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if got := sess.State(); got != Recording {
		t.Fatalf("state = %v, want Recording", got)
	}
	sess.Stop()
	if got := sess.State(); got != Idle {
		t.Fatalf("state after Stop = %v, want Idle", got)
	}

	if len(artifacts) != 1 {
		t.Fatalf("artifact callback fired %d times, want 1", len(artifacts))
	}
	a := artifacts[0]

	// Concatenation of all emitted chunks equals the artifact payload.
	joined := bytes.Join(chunks, nil)
	payload, err := encoder.WAVPayload(a.WAV)
	if err != nil {
		t.Fatalf("WAVPayload: %v", err)
	}
	if !bytes.Equal(joined, payload) {
		t.Errorf("chunk concatenation (%d bytes) != artifact payload (%d bytes)", len(joined), len(payload))
	}
	if !bytes.Equal(payload, pcm) {
		t.Error("artifact payload != captured PCM")
	}
	if a.PCMBytes != len(pcm) {
		t.Errorf("PCMBytes = %d, want %d", a.PCMBytes, len(pcm))
	}
	if !strings.HasPrefix(a.Name, "interview-") || !strings.HasSuffix(a.Name, ".wav") {
		t.Errorf("unexpected artifact name %q", a.Name)
	}

	// Every chunk except the flushed tail has the configured size.
	chunkBytes := 20 * encoder.BytesPerSecond() / 1000
	for i, c := range chunks[:len(chunks)-1] {
		if len(c) != chunkBytes {
			t.Errorf("chunk %d has %d bytes, want %d", i, len(c), chunkBytes)
		}
	}
}

func TestStopWhenIdleIsNoOp(t *testing.T) {
	ctx := NewFakeContext(patternPCM(1000), false)
	fired := 0
	sess := NewSession(ctx, Config{}, nil, func(Artifact) { fired++ }, nil)

	sess.Stop()
	sess.Stop()

	if fired != 0 {
		t.Errorf("artifact callback fired %d times on idle Stop", fired)
	}
	if sess.State() != Idle {
		t.Errorf("state = %v, want Idle", sess.State())
	}
}

func TestStartWhileRecordingRejected(t *testing.T) {
	ctx := NewFakeContext(patternPCM(1000), false)
	sess := NewSession(ctx, Config{}, nil, nil, nil)

	if err := sess.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer sess.Stop()

	if err := sess.Start(); !errors.Is(err, ErrAlreadyRecording) {
		t.Errorf("second Start = %v, want ErrAlreadyRecording", err)
	}
}

func TestDeviceErrorLeavesIdle(t *testing.T) {
	for _, tt := range []struct {
		name string
		err  error
		want error
	}{
		{"denied", errors.New("pulse: access denied by policy"), ErrPermissionDenied},
		{"missing", errors.New("malgo: no device found"), ErrNoDevice},
	} {
		t.Run(tt.name, func(t *testing.T) {
			ctx := NewFakeContext(nil, false)
			ctx.FailWith(tt.err)
			sess := NewSession(ctx, Config{}, nil, nil, nil)

			err := sess.Start()
			if !errors.Is(err, tt.want) {
				t.Errorf("Start = %v, want %v", err, tt.want)
			}
			if sess.State() != Idle {
				t.Errorf("state = %v, want Idle", sess.State())
			}

			// Recoverable: a retry after the device comes back succeeds.
			ctx.FailWith(nil)
			if err := sess.Start(); err != nil {
				t.Errorf("retry Start: %v", err)
			}
			sess.Stop()
		})
	}
}

func TestDeviceDisappearanceStopsRecording(t *testing.T) {
	pcm := patternPCM(2000)
	ctx := NewFakeContext(pcm, false)
	dev := &DeviceInfo{ID: "fake0", Name: "fake microphone"}

	var mu sync.Mutex
	var artifacts []Artifact
	stopped := make(chan struct{})
	sess := NewSession(ctx,
		Config{Device: dev, WatchInterval: 10 * time.Millisecond},
		nil,
		func(a Artifact) {
			mu.Lock()
			artifacts = append(artifacts, a)
			mu.Unlock()
		},
		func() { close(stopped) },
	)

	if err := sess.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	// The microphone is unplugged mid-recording.
	ctx.SetDevices(nil)

	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("stop callback did not fire after device disappeared")
	}
	if sess.State() != Idle {
		t.Errorf("state = %v, want Idle", sess.State())
	}

	// The audio captured before the unplug is preserved.
	mu.Lock()
	defer mu.Unlock()
	if len(artifacts) != 1 {
		t.Fatalf("artifact callback fired %d times, want 1", len(artifacts))
	}
	payload, err := encoder.WAVPayload(artifacts[0].WAV)
	if err != nil {
		t.Fatalf("WAVPayload: %v", err)
	}
	if !bytes.Equal(payload, pcm) {
		t.Error("artifact payload != captured PCM")
	}
}

func TestStopCallbackFiresOnExplicitStop(t *testing.T) {
	ctx := NewFakeContext(patternPCM(1000), false)
	fired := 0
	sess := NewSession(ctx, Config{}, nil, nil, func() { fired++ })

	sess.Stop() // idle: no callback
	if fired != 0 {
		t.Fatalf("stop callback fired %d times on idle Stop", fired)
	}

	if err := sess.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	sess.Stop()
	if fired != 1 {
		t.Errorf("stop callback fired %d times, want 1", fired)
	}
}

func TestLevel(t *testing.T) {
	silence := make([]byte, 640)
	if got := Level(silence); got != 0 {
		t.Errorf("Level(silence) = %v, want 0", got)
	}

	loud := make([]byte, 640)
	for i := 0; i+1 < len(loud); i += 2 {
		binary.LittleEndian.PutUint16(loud[i:], uint16(int16(32000)))
	}
	if got := Level(loud); got < 0.9 {
		t.Errorf("Level(loud) = %v, want >= 0.9", got)
	}
}

func TestIsBluetooth(t *testing.T) {
	for _, tt := range []struct {
		name string
		want bool
	}{
		{"AirPods Pro", true},
		{"Jabra Elite 75t", true},
		{"Built-in Microphone", false},
	} {
		if got := IsBluetooth(tt.name); got != tt.want {
			t.Errorf("IsBluetooth(%q) = %v, want %v", tt.name, got, tt.want)
		}
	}
}
