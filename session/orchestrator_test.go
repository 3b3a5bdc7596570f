package session

import (
	"bytes"
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"greenroom/capture"
	"greenroom/encoder"
	"greenroom/transport"
)

type fakeLink struct {
	mu           sync.Mutex
	state        transport.State
	sent         [][]byte
	disconnected bool

	events chan transport.Event
	errs   chan error
}

func newFakeLink(state transport.State) *fakeLink {
	return &fakeLink{
		state:  state,
		events: make(chan transport.Event, 32),
		errs:   make(chan error, 4),
	}
}

func (l *fakeLink) Connect(context.Context) {
	l.mu.Lock()
	l.state = transport.Connected
	l.mu.Unlock()
}

func (l *fakeLink) Disconnect() {
	l.mu.Lock()
	l.state = transport.Disconnected
	l.disconnected = true
	l.mu.Unlock()
}

func (l *fakeLink) SendBinary(data []byte) {
	frame := make([]byte, len(data))
	copy(frame, data)
	l.mu.Lock()
	l.sent = append(l.sent, frame)
	l.mu.Unlock()
}

func (l *fakeLink) setState(s transport.State) {
	l.mu.Lock()
	l.state = s
	l.mu.Unlock()
}

func (l *fakeLink) State() transport.State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

func (l *fakeLink) Events() <-chan transport.Event { return l.events }
func (l *fakeLink) Errs() <-chan error             { return l.errs }

func (l *fakeLink) sentFrames() [][]byte {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([][]byte, len(l.sent))
	copy(out, l.sent)
	return out
}

// countSink records insight transitions for expiry tests.
type countSink struct {
	NopSink
	mu      sync.Mutex
	shown   int
	cleared int
}

func (s *countSink) InsightShown(transport.Insight) {
	s.mu.Lock()
	s.shown++
	s.mu.Unlock()
}

func (s *countSink) InsightCleared() {
	s.mu.Lock()
	s.cleared++
	s.mu.Unlock()
}

func (s *countSink) counts() (int, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.shown, s.cleared
}

func patternPCM(n int) []byte {
	pcm := make([]byte, n)
	for i := range pcm {
		pcm[i] = byte(i % 251)
	}
	return pcm
}

func newTestOrchestrator(t *testing.T, link Link, pcm []byte, cfg Config) *Orchestrator {
	t.Helper()
	ctx := capture.NewFakeContext(pcm, false)
	reg := NewRegistry(t.TempDir(), "")
	o := New(link, ctx, capture.Config{ChunkInterval: 20 * time.Millisecond}, reg, NopSink{}, cfg)
	t.Cleanup(o.Close)
	return o
}

func TestChunkRelayOrderAndArtifact(t *testing.T) {
	pcm := patternPCM(5000)
	link := newFakeLink(transport.Connected)
	o := newTestOrchestrator(t, link, pcm, Config{Streaming: true})

	require.NoError(t, o.StartCapture())
	o.StopCapture()

	// Relayed frames concatenate to the captured audio, in order.
	var relayed bytes.Buffer
	for _, f := range link.sentFrames() {
		relayed.Write(f)
	}
	require.Equal(t, pcm, relayed.Bytes())

	// The local artifact holds the same payload.
	arts := o.Artifacts()
	require.Len(t, arts, 1)
	payload, err := encoder.WAVPayload(arts[0].Data)
	require.NoError(t, err)
	require.Equal(t, pcm, payload)
}

func TestChunksDroppedWhileDisconnected(t *testing.T) {
	pcm := patternPCM(3000)
	link := newFakeLink(transport.Disconnected)
	o := newTestOrchestrator(t, link, pcm, Config{Streaming: true})

	require.NoError(t, o.StartCapture())
	o.StopCapture()

	require.Empty(t, link.sentFrames())

	// The recording is unaffected by the outage.
	arts := o.Artifacts()
	require.Len(t, arts, 1)
	payload, err := encoder.WAVPayload(arts[0].Data)
	require.NoError(t, err)
	require.Equal(t, pcm, payload)
}

func TestStreamingToggleStopsRelay(t *testing.T) {
	pcm := patternPCM(3000)
	link := newFakeLink(transport.Connected)
	o := newTestOrchestrator(t, link, pcm, Config{Streaming: false})

	require.NoError(t, o.StartCapture())
	o.StopCapture()
	require.Empty(t, link.sentFrames())

	require.True(t, o.ToggleStreaming())
	require.NoError(t, o.StartCapture())
	o.StopCapture()
	require.NotEmpty(t, link.sentFrames())
}

func TestTranscriptArrivalOrder(t *testing.T) {
	link := newFakeLink(transport.Connected)
	o := newTestOrchestrator(t, link, nil, Config{})
	o.Run(context.Background())

	link.events <- transport.TranscriptSegment{Text: "first", Speaker: "candidate", Timestamp: 1.0}
	link.events <- transport.TranscriptSegment{Text: "second", Speaker: "interviewer", Timestamp: 2.5}
	link.events <- transport.TranscriptSegment{Text: "third", Speaker: "candidate", Timestamp: 3.1}

	require.Eventually(t, func() bool {
		return len(o.Transcript()) == 3
	}, time.Second, 5*time.Millisecond)

	lines := o.Transcript()
	require.Equal(t, "first", lines[0].Text)
	require.Equal(t, "second", lines[1].Text)
	require.Equal(t, "third", lines[2].Text)
	require.Equal(t, "interviewer", lines[1].Speaker)
	require.False(t, lines[0].ReceivedAt.IsZero())
}

func TestInsightReplacedByNewer(t *testing.T) {
	link := newFakeLink(transport.Connected)
	sink := &countSink{}
	ctx := capture.NewFakeContext(nil, false)
	o := New(link, ctx, capture.Config{}, NewRegistry(t.TempDir(), ""), sink, Config{InsightTTL: 80 * time.Millisecond})
	t.Cleanup(o.Close)
	o.Run(context.Background())

	link.events <- transport.Insight{Category: "pacing", Message: "slow down"}
	require.Eventually(t, func() bool {
		in := o.Insight()
		return in != nil && in.Message == "slow down"
	}, time.Second, 5*time.Millisecond)

	link.events <- transport.Insight{Category: "depth", Message: "probe further"}
	require.Eventually(t, func() bool {
		in := o.Insight()
		return in != nil && in.Message == "probe further"
	}, time.Second, 5*time.Millisecond)

	// The first insight's expiry must not clear the replacement early.
	time.Sleep(50 * time.Millisecond)
	in := o.Insight()
	require.NotNil(t, in)
	require.Equal(t, "probe further", in.Message)

	// The replacement expires on its own clock, exactly once.
	require.Eventually(t, func() bool {
		return o.Insight() == nil
	}, time.Second, 5*time.Millisecond)
	time.Sleep(100 * time.Millisecond)
	shown, cleared := sink.counts()
	require.Equal(t, 2, shown)
	require.Equal(t, 1, cleared)
}

func TestDismissInsightCancelsExpiry(t *testing.T) {
	link := newFakeLink(transport.Connected)
	sink := &countSink{}
	ctx := capture.NewFakeContext(nil, false)
	o := New(link, ctx, capture.Config{}, NewRegistry(t.TempDir(), ""), sink, Config{InsightTTL: 50 * time.Millisecond})
	t.Cleanup(o.Close)
	o.Run(context.Background())

	link.events <- transport.Insight{Category: "pacing", Message: "slow down"}
	require.Eventually(t, func() bool {
		return o.Insight() != nil
	}, time.Second, 5*time.Millisecond)

	o.DismissInsight()
	require.Nil(t, o.Insight())

	// The cancelled timer must not produce a second clear.
	time.Sleep(100 * time.Millisecond)
	_, cleared := sink.counts()
	require.Equal(t, 1, cleared)

	// Dismissing with nothing visible is a no-op.
	o.DismissInsight()
	_, cleared = sink.counts()
	require.Equal(t, 1, cleared)
}

// stateSink records recording state transitions.
type stateSink struct {
	NopSink
	mu      sync.Mutex
	changes []bool
}

func (s *stateSink) RecordingChanged(on bool) {
	s.mu.Lock()
	s.changes = append(s.changes, on)
	s.mu.Unlock()
}

func (s *stateSink) recorded() []bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]bool, len(s.changes))
	copy(out, s.changes)
	return out
}

func TestDeviceLossNotifiesRecordingStopped(t *testing.T) {
	pcm := patternPCM(2000)
	link := newFakeLink(transport.Connected)
	capCtx := capture.NewFakeContext(pcm, false)
	sink := &stateSink{}
	dev := &capture.DeviceInfo{ID: "fake0", Name: "fake microphone"}
	o := New(link, capCtx,
		capture.Config{Device: dev, WatchInterval: 10 * time.Millisecond},
		NewRegistry(t.TempDir(), ""), sink, Config{})
	t.Cleanup(o.Close)

	require.NoError(t, o.StartCapture())
	require.True(t, o.Recording())

	// The selected microphone is unplugged mid-recording.
	capCtx.SetDevices(nil)

	require.Eventually(t, func() bool {
		return !o.Recording()
	}, 2*time.Second, 10*time.Millisecond)

	// The implicit stop reaches the display like an explicit one would.
	require.Eventually(t, func() bool {
		changes := sink.recorded()
		return len(changes) == 2 && changes[0] && !changes[1]
	}, time.Second, 5*time.Millisecond)

	// The audio captured before the unplug is kept as an artifact.
	require.Len(t, o.Artifacts(), 1)
}

func TestCloseTeardown(t *testing.T) {
	pcm := patternPCM(2000)
	link := newFakeLink(transport.Connected)
	ctx := capture.NewFakeContext(pcm, false)
	reg := NewRegistry(t.TempDir(), "")
	o := New(link, ctx, capture.Config{}, reg, NopSink{}, Config{Streaming: true})
	o.Run(context.Background())

	require.NoError(t, o.StartCapture())
	o.StopCapture()
	arts := o.Artifacts()
	require.Len(t, arts, 1)
	path, err := o.Play(arts[0].ID)
	require.NoError(t, err)
	require.FileExists(t, path)

	o.Close()

	require.NoFileExists(t, path)
	require.True(t, link.disconnected)
	require.False(t, o.Recording())

	// Close is idempotent.
	o.Close()
}

func TestRemoveNotifiesOnce(t *testing.T) {
	pcm := patternPCM(2000)
	link := newFakeLink(transport.Connected)
	o := newTestOrchestrator(t, link, pcm, Config{})

	require.NoError(t, o.StartCapture())
	o.StopCapture()
	arts := o.Artifacts()
	require.Len(t, arts, 1)

	require.True(t, o.Remove(arts[0].ID))
	require.Empty(t, o.Artifacts())
	require.False(t, o.Remove(arts[0].ID))
}
