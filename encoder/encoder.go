package encoder

import "time"

// All capture and wire audio is LINEAR16 PCM at these settings.
const (
	SampleRate    = 16000
	Channels      = 1
	BitsPerSample = 16
	BlockSize     = 4096
)

func BytesPerSecond() int {
	return SampleRate * Channels * (BitsPerSample / 8)
}

// Duration returns the play time of a raw PCM payload.
func Duration(pcmLen int) time.Duration {
	return time.Duration(float64(pcmLen) / float64(BytesPerSecond()) * float64(time.Second))
}
