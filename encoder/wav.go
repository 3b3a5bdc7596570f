package encoder

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

const (
	WAVHeaderSize = 44
	wavPCMFormat  = 1
)

// WAV wraps a raw PCM payload in a RIFF/WAVE header using the session
// audio settings.
func WAV(pcm []byte) []byte {
	var buf bytes.Buffer

	buf.Write([]byte("RIFF"))
	binary.Write(&buf, binary.LittleEndian, uint32(36+len(pcm)))
	buf.Write([]byte("WAVE"))

	buf.Write([]byte("fmt "))
	binary.Write(&buf, binary.LittleEndian, uint32(16))
	binary.Write(&buf, binary.LittleEndian, uint16(wavPCMFormat))
	binary.Write(&buf, binary.LittleEndian, uint16(Channels))
	binary.Write(&buf, binary.LittleEndian, uint32(SampleRate))
	binary.Write(&buf, binary.LittleEndian, uint32(BytesPerSecond()))
	binary.Write(&buf, binary.LittleEndian, uint16(Channels*BitsPerSample/8))
	binary.Write(&buf, binary.LittleEndian, uint16(BitsPerSample))

	buf.Write([]byte("data"))
	binary.Write(&buf, binary.LittleEndian, uint32(len(pcm)))
	buf.Write(pcm)

	return buf.Bytes()
}

// WAVPayload strips the RIFF header and returns the PCM payload.
func WAVPayload(wav []byte) ([]byte, error) {
	if len(wav) < WAVHeaderSize {
		return nil, fmt.Errorf("wav too short: %d bytes", len(wav))
	}
	if !bytes.HasPrefix(wav, []byte("RIFF")) {
		return nil, fmt.Errorf("not a RIFF file")
	}
	return wav[WAVHeaderSize:], nil
}
