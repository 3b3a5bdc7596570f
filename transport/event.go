package transport

import "encoding/json"

// Wire message discriminators recognized on the inbound stream.
const (
	typeTranscript = "stt_result"
	typeInsight    = "ai_feedback"
)

// Event is a classified inbound message. The variant set is closed;
// anything unrecognized (including malformed JSON) degrades to Raw so a
// bad frame never disrupts the stream.
type Event interface {
	event()
}

// TranscriptSegment is one committed piece of live transcription.
type TranscriptSegment struct {
	Text      string  `json:"text"`
	Speaker   string  `json:"speaker"`
	Timestamp float64 `json:"timestamp"`
}

// Insight is one piece of AI-generated interview feedback.
type Insight struct {
	Category string `json:"category"`
	Message  string `json:"message"`
}

// Raw carries an unclassified payload. Ignored by default; kept as the
// forward-compatibility escape hatch.
type Raw struct {
	Payload []byte
}

func (TranscriptSegment) event() {}
func (Insight) event()           {}
func (Raw) event()               {}

type envelope struct {
	Type string `json:"type"`
}

// classify decodes one inbound text frame into a typed Event.
func classify(data []byte) Event {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Raw{Payload: data}
	}

	switch env.Type {
	case typeTranscript:
		var seg TranscriptSegment
		if err := json.Unmarshal(data, &seg); err != nil {
			return Raw{Payload: data}
		}
		return seg
	case typeInsight:
		var in Insight
		if err := json.Unmarshal(data, &in); err != nil {
			return Raw{Payload: data}
		}
		return in
	}
	return Raw{Payload: data}
}
