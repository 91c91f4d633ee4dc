package wav

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/chriscow/callpipe-go/pkg/audio"
)

// Unmarshal decodes a 16-bit PCM WAV file into a single PCM chunk.
func Unmarshal(data []byte) (audio.PCM, error) {
	r := bytes.NewReader(data)

	var riff [12]byte
	if _, err := io.ReadFull(r, riff[:]); err != nil {
		return audio.PCM{}, fmt.Errorf("wav: read riff header: %w", err)
	}
	if string(riff[0:4]) != "RIFF" || string(riff[8:12]) != "WAVE" {
		return audio.PCM{}, fmt.Errorf("wav: not a wav file")
	}

	var (
		sampleRate  uint32
		numChannels uint16
		sawFmt      bool
	)
	for {
		var chunk [8]byte
		if _, err := io.ReadFull(r, chunk[:]); err != nil {
			return audio.PCM{}, fmt.Errorf("wav: read chunk header: %w", err)
		}
		id := string(chunk[0:4])
		size := binary.LittleEndian.Uint32(chunk[4:8])

		switch id {
		case "fmt ":
			if size < 16 {
				return audio.PCM{}, fmt.Errorf("wav: fmt chunk too small: %d bytes", size)
			}
			var f [16]byte
			if _, err := io.ReadFull(r, f[:]); err != nil {
				return audio.PCM{}, fmt.Errorf("wav: read fmt chunk: %w", err)
			}
			if format := binary.LittleEndian.Uint16(f[0:2]); format != 1 {
				return audio.PCM{}, fmt.Errorf("wav: unsupported audio format %d, want PCM", format)
			}
			numChannels = binary.LittleEndian.Uint16(f[2:4])
			sampleRate = binary.LittleEndian.Uint32(f[4:8])
			if bits := binary.LittleEndian.Uint16(f[14:16]); bits != 16 {
				return audio.PCM{}, fmt.Errorf("wav: unsupported bit depth %d, want 16", bits)
			}
			if size > 16 {
				if _, err := r.Seek(int64(size-16), io.SeekCurrent); err != nil {
					return audio.PCM{}, fmt.Errorf("wav: skip fmt extension: %w", err)
				}
			}
			sawFmt = true

		case "data":
			if !sawFmt {
				return audio.PCM{}, fmt.Errorf("wav: data chunk before fmt chunk")
			}
			pcm := make([]byte, size)
			if _, err := io.ReadFull(r, pcm); err != nil {
				return audio.PCM{}, fmt.Errorf("wav: read data chunk: %w", err)
			}
			return audio.NewPCM(pcm, int(sampleRate), int(numChannels))

		default:
			if _, err := r.Seek(int64(size), io.SeekCurrent); err != nil {
				return audio.PCM{}, fmt.Errorf("wav: skip %q chunk: %w", id, err)
			}
		}
	}
}
