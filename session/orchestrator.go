// Package session ties the interview workspace together: it routes
// captured audio to the telemetry channel, folds inbound events into
// the transcript and the current insight, and owns the lifetime of
// every recording made along the way.
package session

import (
	"context"
	"sync"
	"time"

	"greenroom/capture"
	"greenroom/log"
	"greenroom/transport"
	"greenroom/uploader"
)

const (
	defaultInsightTTL = 10 * time.Second
	defaultStatePoll  = 250 * time.Millisecond
)

// Link is the slice of the telemetry channel the orchestrator uses.
// transport.Channel satisfies it; tests substitute an in-memory fake.
type Link interface {
	Connect(ctx context.Context)
	Disconnect()
	SendBinary(data []byte)
	State() transport.State
	Events() <-chan transport.Event
	Errs() <-chan error
}

type Config struct {
	// InsightTTL is how long a coaching hint stays visible before it
	// clears itself. Defaults to 10s.
	InsightTTL time.Duration

	// Streaming is the initial live-relay toggle position.
	Streaming bool

	// StatePoll is how often the link state is sampled for display.
	StatePoll time.Duration
}

// TranscriptEntry is one committed line of the interview transcript.
type TranscriptEntry struct {
	Text       string
	Speaker    string
	Timestamp  float64
	ReceivedAt time.Time
}

type Orchestrator struct {
	link Link
	reg  *Registry
	sink Sink
	cfg  Config

	cap *capture.Session

	mu         sync.Mutex
	transcript []TranscriptEntry
	insight    *transport.Insight
	insightTmr *time.Timer
	insightGen int
	streaming  bool
	stats      log.StreamMetricsData

	done      chan struct{}
	closeOnce sync.Once
}

func New(link Link, capCtx capture.Context, capCfg capture.Config, reg *Registry, sink Sink, cfg Config) *Orchestrator {
	if cfg.InsightTTL <= 0 {
		cfg.InsightTTL = defaultInsightTTL
	}
	if cfg.StatePoll <= 0 {
		cfg.StatePoll = defaultStatePoll
	}
	if sink == nil {
		sink = NopSink{}
	}
	o := &Orchestrator{
		link:      link,
		reg:       reg,
		sink:      sink,
		cfg:       cfg,
		streaming: cfg.Streaming,
		done:      make(chan struct{}),
	}
	o.cap = capture.NewSession(capCtx, capCfg, o.routeChunk, o.finishArtifact, o.captureStopped)
	return o
}

// Run connects the telemetry channel and starts the event pumps. It
// returns immediately; Close tears everything down.
func (o *Orchestrator) Run(ctx context.Context) {
	o.link.Connect(ctx)
	go o.eventLoop()
	go o.pollConnection()
}

func (o *Orchestrator) eventLoop() {
	for {
		select {
		case <-o.done:
			return
		case ev := <-o.link.Events():
			o.route(ev)
		case err := <-o.link.Errs():
			log.Errorf("telemetry channel: %v", err)
			o.sink.TransportError(err)
		}
	}
}

func (o *Orchestrator) route(ev transport.Event) {
	switch e := ev.(type) {
	case transport.TranscriptSegment:
		entry := TranscriptEntry{
			Text:       e.Text,
			Speaker:    e.Speaker,
			Timestamp:  e.Timestamp,
			ReceivedAt: time.Now(),
		}
		o.mu.Lock()
		o.transcript = append(o.transcript, entry)
		o.stats.RecvSegments++
		o.mu.Unlock()
		log.TranscriptText(entry.Speaker, entry.Text)
		o.sink.TranscriptAppended(entry)
	case transport.Insight:
		o.mu.Lock()
		o.stats.RecvInsights++
		o.mu.Unlock()
		o.setInsight(e)
	case transport.Raw:
		o.mu.Lock()
		o.stats.RecvRaw++
		o.mu.Unlock()
	}
}

// setInsight replaces the visible hint and restarts the expiry clock.
// The generation counter keeps a stale timer from clearing a newer
// insight: the old timer may already be firing when Stop is called.
func (o *Orchestrator) setInsight(in transport.Insight) {
	o.mu.Lock()
	if o.insightTmr != nil {
		o.insightTmr.Stop()
	}
	o.insightGen++
	gen := o.insightGen
	o.insight = &in
	o.insightTmr = time.AfterFunc(o.cfg.InsightTTL, func() {
		o.expireInsight(gen)
	})
	o.mu.Unlock()
	o.sink.InsightShown(in)
}

func (o *Orchestrator) expireInsight(gen int) {
	o.mu.Lock()
	if gen != o.insightGen || o.insight == nil {
		o.mu.Unlock()
		return
	}
	o.insight = nil
	o.insightTmr = nil
	o.mu.Unlock()
	o.sink.InsightCleared()
}

// DismissInsight clears the hint ahead of its expiry.
func (o *Orchestrator) DismissInsight() {
	o.mu.Lock()
	if o.insight == nil {
		o.mu.Unlock()
		return
	}
	if o.insightTmr != nil {
		o.insightTmr.Stop()
		o.insightTmr = nil
	}
	o.insightGen++
	o.insight = nil
	o.mu.Unlock()
	o.sink.InsightCleared()
}

// routeChunk relays one capture chunk when streaming is on and the
// channel is up; otherwise the chunk is dropped. The local recording
// is unaffected either way.
func (o *Orchestrator) routeChunk(chunk []byte) {
	o.mu.Lock()
	streaming := o.streaming
	o.mu.Unlock()

	if streaming && o.link.State() == transport.Connected {
		o.link.SendBinary(chunk)
		o.mu.Lock()
		o.stats.SentChunks++
		o.stats.SentKB += float64(len(chunk)) / 1024
		o.mu.Unlock()
	} else {
		o.mu.Lock()
		o.stats.DroppedChunks++
		o.mu.Unlock()
	}
	o.sink.AudioLevel(capture.Level(chunk))
}

func (o *Orchestrator) finishArtifact(a capture.Artifact) {
	art := o.reg.Add(a)
	o.mu.Lock()
	o.stats.AudioS += a.Duration.Seconds()
	o.mu.Unlock()
	o.sink.ArtifactAdded(art)
}

func (o *Orchestrator) pollConnection() {
	ticker := time.NewTicker(o.cfg.StatePoll)
	defer ticker.Stop()
	last := o.link.State()
	for {
		select {
		case <-o.done:
			return
		case <-ticker.C:
			if s := o.link.State(); s != last {
				last = s
				o.sink.ConnectionChanged(s)
			}
		}
	}
}

func (o *Orchestrator) StartCapture() error {
	o.mu.Lock()
	o.stats = log.StreamMetricsData{
		RecvSegments: o.stats.RecvSegments,
		RecvInsights: o.stats.RecvInsights,
		RecvRaw:      o.stats.RecvRaw,
	}
	o.mu.Unlock()
	if err := o.cap.Start(); err != nil {
		return err
	}
	o.sink.RecordingChanged(true)
	return nil
}

func (o *Orchestrator) StopCapture() {
	o.cap.Stop()
}

// captureStopped fires on every recording end, including the implicit
// stop when the selected device disappears mid-recording, so the
// display and the metrics log never miss a session.
func (o *Orchestrator) captureStopped() {
	o.sink.RecordingChanged(false)
	o.mu.Lock()
	stats := o.stats
	o.mu.Unlock()
	log.StreamMetrics(stats)
}

// ToggleStreaming flips the live-relay switch and returns the new
// position. Capture keeps running; only chunk relay is affected.
func (o *Orchestrator) ToggleStreaming() bool {
	o.mu.Lock()
	o.streaming = !o.streaming
	on := o.streaming
	o.mu.Unlock()
	log.Infof("streaming toggled: %v", on)
	return on
}

func (o *Orchestrator) Streaming() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.streaming
}

func (o *Orchestrator) Recording() bool {
	return o.cap.State() == capture.Recording
}

func (o *Orchestrator) ConnectionState() transport.State {
	return o.link.State()
}

// Transcript returns a copy of the committed lines in arrival order.
func (o *Orchestrator) Transcript() []TranscriptEntry {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]TranscriptEntry, len(o.transcript))
	copy(out, o.transcript)
	return out
}

// Insight returns the currently visible hint, or nil.
func (o *Orchestrator) Insight() *transport.Insight {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.insight == nil {
		return nil
	}
	in := *o.insight
	return &in
}

func (o *Orchestrator) Artifacts() []*Artifact {
	return o.reg.List()
}

func (o *Orchestrator) Play(id string) (string, error) {
	return o.reg.Play(id)
}

func (o *Orchestrator) Remove(id string) bool {
	removed := o.reg.Remove(id)
	if removed {
		o.sink.ArtifactsChanged()
	}
	return removed
}

func (o *Orchestrator) ExportFLAC(id, dir string) (string, error) {
	return o.reg.ExportFLAC(id, dir)
}

func (o *Orchestrator) Upload(ctx context.Context, id string, up uploader.Uploader) error {
	if err := o.reg.Upload(ctx, id, up); err != nil {
		return err
	}
	o.sink.ArtifactsChanged()
	return nil
}

// Close tears the session down in dependency order: capture first so
// no chunk arrives at a dead channel, playback handles next, and the
// telemetry channel last. Safe to call more than once.
func (o *Orchestrator) Close() {
	o.closeOnce.Do(func() {
		o.StopCapture()
		o.mu.Lock()
		if o.insightTmr != nil {
			o.insightTmr.Stop()
			o.insightTmr = nil
		}
		o.insightGen++
		o.insight = nil
		segments := len(o.transcript)
		o.mu.Unlock()
		o.reg.Close()
		o.link.Disconnect()
		close(o.done)
		log.SessionEnd(segments, o.reg.Len())
	})
}
