package main

import (
	"greenroom/session"
	"greenroom/transport"
)

// TUI message types delivered through program.Send.
type TranscriptMsg struct{ Entry session.TranscriptEntry }
type InsightMsg struct{ Insight transport.Insight }
type InsightClearedMsg struct{}
type ConnectionMsg struct{ State transport.State }
type RecordingMsg struct{ On bool }
type AudioLevelMsg struct{ Level float64 }
type ArtifactsMsg struct{}
type StatusMsg struct{ Text string }

// tuiSink forwards orchestrator events into the Bubble Tea program.
type tuiSink struct{}

func (tuiSink) TranscriptAppended(e session.TranscriptEntry) { tuiSend(TranscriptMsg{Entry: e}) }
func (tuiSink) InsightShown(in transport.Insight)            { tuiSend(InsightMsg{Insight: in}) }
func (tuiSink) InsightCleared()                              { tuiSend(InsightClearedMsg{}) }
func (tuiSink) ConnectionChanged(s transport.State)          { tuiSend(ConnectionMsg{State: s}) }
func (tuiSink) RecordingChanged(on bool)                     { tuiSend(RecordingMsg{On: on}) }
func (tuiSink) AudioLevel(level float64)                     { tuiSend(AudioLevelMsg{Level: level}) }
func (tuiSink) ArtifactAdded(*session.Artifact)              { tuiSend(ArtifactsMsg{}) }
func (tuiSink) ArtifactsChanged()                            { tuiSend(ArtifactsMsg{}) }
func (tuiSink) TransportError(err error)                     { tuiSend(StatusMsg{Text: "channel: " + err.Error()}) }
