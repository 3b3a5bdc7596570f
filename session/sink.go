package session

import "greenroom/transport"

// Sink abstracts the display layer so the Bubble Tea TUI (or anything
// else) can observe orchestrator state changes without the orchestrator
// knowing about rendering.
type Sink interface {
	TranscriptAppended(e TranscriptEntry)
	InsightShown(in transport.Insight)
	InsightCleared()
	ConnectionChanged(s transport.State)
	RecordingChanged(recording bool)
	AudioLevel(level float64)
	ArtifactAdded(a *Artifact)
	ArtifactsChanged()
	TransportError(err error)
}

// NopSink discards every event.
type NopSink struct{}

func (NopSink) TranscriptAppended(TranscriptEntry)  {}
func (NopSink) InsightShown(transport.Insight)      {}
func (NopSink) InsightCleared()                     {}
func (NopSink) ConnectionChanged(transport.State)   {}
func (NopSink) RecordingChanged(bool)               {}
func (NopSink) AudioLevel(float64)                  {}
func (NopSink) ArtifactAdded(*Artifact)             {}
func (NopSink) ArtifactsChanged()                   {}
func (NopSink) TransportError(error)                {}
