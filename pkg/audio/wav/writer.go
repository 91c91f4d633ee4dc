// Package wav reads and writes 16-bit PCM WAV data. The speech-to-text
// providers use it to package utterance audio for upload, and the example
// tools use it to record what the assistant said.
package wav

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"os"

	"github.com/chriscow/callpipe-go/pkg/audio"
)

const headerSize = 44

// Marshal encodes a PCM chunk as a complete in-memory WAV file.
func Marshal(p audio.PCM) ([]byte, error) {
	if p.NumChannels < 1 {
		return nil, fmt.Errorf("wav: invalid channel count %d", p.NumChannels)
	}
	if p.SampleRate <= 0 {
		return nil, fmt.Errorf("wav: invalid sample rate %d", p.SampleRate)
	}

	var buf bytes.Buffer
	buf.Grow(headerSize + len(p.Data))
	writeHeader(&buf, uint32(p.SampleRate), uint16(p.NumChannels), uint32(len(p.Data)))
	buf.Write(p.Data)
	return buf.Bytes(), nil
}

// Writer appends PCM chunks to a WAV file, patching the header sizes on
// Close.
type Writer struct {
	file        *os.File
	sampleRate  int
	numChannels int
	dataBytes   uint32
}

// NewWriter creates a 16-bit WAV file at path.
func NewWriter(path string, sampleRate, numChannels int) (*Writer, error) {
	if numChannels < 1 {
		return nil, fmt.Errorf("wav: invalid channel count %d", numChannels)
	}
	if sampleRate <= 0 {
		return nil, fmt.Errorf("wav: invalid sample rate %d", sampleRate)
	}

	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("wav: create %q: %w", path, err)
	}

	w := &Writer{file: file, sampleRate: sampleRate, numChannels: numChannels}

	var hdr bytes.Buffer
	writeHeader(&hdr, uint32(sampleRate), uint16(numChannels), 0)
	if _, err := file.Write(hdr.Bytes()); err != nil {
		file.Close()
		return nil, fmt.Errorf("wav: write header: %w", err)
	}
	return w, nil
}

// WritePCM appends a chunk. The chunk's format must match the writer's.
func (w *Writer) WritePCM(p audio.PCM) error {
	if w.file == nil {
		return fmt.Errorf("wav: writer is closed")
	}
	if p.SampleRate != w.sampleRate || p.NumChannels != w.numChannels {
		return fmt.Errorf("wav: chunk format %dHz/%dch does not match file format %dHz/%dch",
			p.SampleRate, p.NumChannels, w.sampleRate, w.numChannels)
	}
	if _, err := w.file.Write(p.Data); err != nil {
		return fmt.Errorf("wav: write data: %w", err)
	}
	w.dataBytes += uint32(len(p.Data))
	return nil
}

// Close patches the RIFF and data chunk sizes and closes the file.
func (w *Writer) Close() error {
	if w.file == nil {
		return nil
	}

	if _, err := w.file.Seek(4, 0); err != nil {
		return fmt.Errorf("wav: seek to riff size: %w", err)
	}
	if err := binary.Write(w.file, binary.LittleEndian, w.dataBytes+36); err != nil {
		return fmt.Errorf("wav: patch riff size: %w", err)
	}
	if _, err := w.file.Seek(40, 0); err != nil {
		return fmt.Errorf("wav: seek to data size: %w", err)
	}
	if err := binary.Write(w.file, binary.LittleEndian, w.dataBytes); err != nil {
		return fmt.Errorf("wav: patch data size: %w", err)
	}

	err := w.file.Close()
	w.file = nil
	return err
}

func writeHeader(buf *bytes.Buffer, sampleRate uint32, numChannels uint16, dataSize uint32) {
	const bitsPerSample = 16

	buf.WriteString("RIFF")
	binary.Write(buf, binary.LittleEndian, dataSize+36)
	buf.WriteString("WAVE")

	buf.WriteString("fmt ")
	binary.Write(buf, binary.LittleEndian, uint32(16))
	binary.Write(buf, binary.LittleEndian, uint16(1)) // PCM
	binary.Write(buf, binary.LittleEndian, numChannels)
	binary.Write(buf, binary.LittleEndian, sampleRate)
	byteRate := sampleRate * uint32(numChannels) * bitsPerSample / 8
	binary.Write(buf, binary.LittleEndian, byteRate)
	blockAlign := numChannels * bitsPerSample / 8
	binary.Write(buf, binary.LittleEndian, blockAlign)
	binary.Write(buf, binary.LittleEndian, uint16(bitsPerSample))

	buf.WriteString("data")
	binary.Write(buf, binary.LittleEndian, dataSize)
}
