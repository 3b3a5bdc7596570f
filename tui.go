package main

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/atotto/clipboard"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"greenroom/log"
	"greenroom/session"
	"greenroom/transport"
)

type tickMsg time.Time

var (
	tuiProgram *tea.Program
	tuiMu      sync.Mutex
)

var (
	styleRec       = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	styleStandby   = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	styleConnUp    = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	styleConnDown  = lipgloss.NewStyle().Foreground(lipgloss.Color("208"))
	styleSpeaker   = lipgloss.NewStyle().Foreground(lipgloss.Color("246"))
	styleText      = lipgloss.NewStyle().Foreground(lipgloss.Color("4"))
	styleInsight   = lipgloss.NewStyle().Foreground(lipgloss.Color("226")).Bold(true)
	styleDim       = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	styleHelp      = lipgloss.NewStyle().Foreground(lipgloss.Color("239"))
	styleCursor    = lipgloss.NewStyle().Foreground(lipgloss.Color("51")).Bold(true)
	styleUploaded  = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	styleStatusBar = lipgloss.NewStyle().Foreground(lipgloss.Color("208"))
)

type tuiModel struct {
	width, height int

	connState transport.State
	recording bool
	recStart  time.Time
	recDur    float64
	level     float64
	streaming bool

	transcript []session.TranscriptEntry
	insight    *transport.Insight
	artifacts  []*session.Artifact
	cursor     int
	status     string
}

func NewTUIProgram() *tea.Program {
	m := tuiModel{
		connState: orch.ConnectionState(),
		streaming: orch.Streaming(),
	}
	return tea.NewProgram(m, tea.WithAltScreen())
}

func tuiSend(msg tea.Msg) {
	tuiMu.Lock()
	p := tuiProgram
	tuiMu.Unlock()
	if p != nil {
		p.Send(msg)
	}
}

func tuiTick() tea.Cmd {
	return tea.Tick(250*time.Millisecond, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m tuiModel) Init() tea.Cmd {
	return tuiTick()
}

func (m tuiModel) selectedArtifact() *session.Artifact {
	if m.cursor < 0 || m.cursor >= len(m.artifacts) {
		return nil
	}
	return m.artifacts[m.cursor]
}

func (m tuiModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case tea.KeyMsg:
		return m.handleKey(msg)

	case tickMsg:
		if m.recording {
			m.recDur = time.Since(m.recStart).Seconds()
		}
		return m, tuiTick()

	case TranscriptMsg:
		m.transcript = append(m.transcript, msg.Entry)

	case InsightMsg:
		in := msg.Insight
		m.insight = &in

	case InsightClearedMsg:
		m.insight = nil

	case ConnectionMsg:
		m.connState = msg.State

	case RecordingMsg:
		m.recording = msg.On
		if msg.On {
			m.recStart = time.Now()
			m.recDur = 0
			m.level = 0
		}

	case AudioLevelMsg:
		if m.recording {
			m.level = m.level*0.6 + msg.Level*0.4
		}

	case ArtifactsMsg:
		m.artifacts = orch.Artifacts()
		if m.cursor >= len(m.artifacts) {
			m.cursor = len(m.artifacts) - 1
		}
		if m.cursor < 0 {
			m.cursor = 0
		}

	case StatusMsg:
		m.status = msg.Text
	}
	return m, nil
}

func (m tuiModel) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c", "q":
		return m, tea.Quit

	case " ":
		if readOnly {
			m.status = "application is read-only"
			return m, nil
		}
		if orch.Recording() {
			orch.StopCapture()
		} else if err := orch.StartCapture(); err != nil {
			m.status = fmt.Sprintf("capture: %v", err)
			log.Errorf("capture start: %v", err)
		}

	case "t":
		if readOnly {
			m.status = "application is read-only"
			return m, nil
		}
		m.streaming = orch.ToggleStreaming()

	case "d":
		orch.DismissInsight()

	case "j", "down":
		if m.cursor < len(m.artifacts)-1 {
			m.cursor++
		}

	case "k", "up":
		if m.cursor > 0 {
			m.cursor--
		}

	case "enter", "p":
		if a := m.selectedArtifact(); a != nil {
			if _, err := orch.Play(a.ID); err != nil {
				m.status = fmt.Sprintf("play: %v", err)
			} else {
				m.status = "playing " + a.Name
			}
		}

	case "x":
		if a := m.selectedArtifact(); a != nil {
			orch.Remove(a.ID)
		}

	case "u":
		if a := m.selectedArtifact(); a != nil {
			if a.Remote() != nil {
				m.status = a.Name + " already uploaded"
				return m, nil
			}
			m.status = "uploading " + a.Name + "..."
			go func(id, name string) {
				if err := orch.Upload(context.Background(), id, uplink); err != nil {
					log.Errorf("upload: %v", err)
					tuiSend(StatusMsg{Text: fmt.Sprintf("upload failed: %v", err)})
				} else {
					tuiSend(StatusMsg{Text: "uploaded " + name})
				}
			}(a.ID, a.Name)
		}

	case "e":
		if a := m.selectedArtifact(); a != nil {
			path, err := orch.ExportFLAC(a.ID, ".")
			if err != nil {
				m.status = fmt.Sprintf("export: %v", err)
			} else {
				m.status = "exported " + path
			}
		}

	case "c":
		if len(m.transcript) == 0 {
			return m, nil
		}
		var b strings.Builder
		for _, e := range m.transcript {
			fmt.Fprintf(&b, "[%s] %s\n", e.Speaker, e.Text)
		}
		if err := clipboard.WriteAll(b.String()); err != nil {
			m.status = fmt.Sprintf("clipboard: %v", err)
		} else {
			m.status = "transcript copied"
		}
	}
	return m, nil
}

func connLabel(s transport.State) string {
	switch s {
	case transport.Connected:
		return styleConnUp.Render("● connected")
	case transport.Connecting:
		return styleConnDown.Render("◌ connecting")
	default:
		return styleConnDown.Render("○ offline")
	}
}

func levelBar(level float64, width int) string {
	filled := int(level * 20 * float64(width))
	if filled > width {
		filled = width
	}
	return strings.Repeat("▮", filled) + strings.Repeat("▯", width-filled)
}

func (m tuiModel) View() string {
	if m.width == 0 || m.height == 0 {
		return "Loading..."
	}

	var b strings.Builder

	// Header: app, connection, recording, streaming
	header := []string{styleDim.Render("greenroom " + version), connLabel(m.connState)}
	if m.recording {
		header = append(header, styleRec.Render(fmt.Sprintf("● REC %.1fs", m.recDur)))
		header = append(header, styleDim.Render(levelBar(m.level, 12)))
	} else {
		header = append(header, styleStandby.Render("○ standby"))
	}
	if m.streaming {
		header = append(header, styleConnUp.Render("[stream]"))
	} else {
		header = append(header, styleDim.Render("[local only]"))
	}
	if readOnly {
		header = append(header, styleStatusBar.Render("[read-only]"))
	}
	b.WriteString(strings.Join(header, "  ") + "\n")

	// Insight toast
	if m.insight != nil {
		b.WriteString(styleInsight.Render(fmt.Sprintf("⚡ %s: %s", m.insight.Category, m.insight.Message)) + "\n")
	} else {
		b.WriteString("\n")
	}
	b.WriteString("\n")

	// Transcript: newest lines that fit the remaining space.
	artifactLines := len(m.artifacts) + 2
	footerLines := 3
	transcriptLines := m.height - 3 - artifactLines - footerLines
	if transcriptLines < 3 {
		transcriptLines = 3
	}
	start := len(m.transcript) - transcriptLines
	if start < 0 {
		start = 0
	}
	if len(m.transcript) == 0 {
		b.WriteString(styleDim.Render("No transcript yet") + "\n")
	}
	for _, e := range m.transcript[start:] {
		b.WriteString(styleSpeaker.Render(fmt.Sprintf("%-12s", e.Speaker)) + styleText.Render(e.Text) + "\n")
	}
	b.WriteString("\n")

	// Artifact list
	b.WriteString(styleDim.Render(fmt.Sprintf("Recordings (%d)", len(m.artifacts))) + "\n")
	for i, a := range m.artifacts {
		line := fmt.Sprintf("%s  %.1fs  %d KB", a.Name, a.Duration.Seconds(), a.SizeBytes/1024)
		if a.Remote() != nil {
			line += "  " + styleUploaded.Render("[uploaded]")
		}
		if i == m.cursor {
			b.WriteString(styleCursor.Render("▶ ") + line + "\n")
		} else {
			b.WriteString("  " + line + "\n")
		}
	}
	b.WriteString("\n")

	if m.status != "" {
		b.WriteString(styleStatusBar.Render(m.status) + "\n")
	}
	b.WriteString(styleHelp.Render("space record · t stream · j/k select · p play · u upload · e export · x remove · d dismiss · c copy · q quit"))
	return b.String()
}
