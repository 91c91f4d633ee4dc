package wav

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/matryer/is"

	"github.com/chriscow/callpipe-go/pkg/audio"
)

func TestMarshalUnmarshalRoundTrip(t *testing.T) {
	is := is.New(t)

	p := audio.FromSamples([]int16{0, 1000, -1000, 32767, -32768}, 8000, 1)

	data, err := Marshal(p)
	is.NoErr(err)
	is.Equal(string(data[0:4]), "RIFF")
	is.Equal(string(data[8:12]), "WAVE")

	got, err := Unmarshal(data)
	is.NoErr(err)
	is.Equal(got.SampleRate, 8000)
	is.Equal(got.NumChannels, 1)
	is.Equal(got.Samples(), p.Samples())
}

func TestMarshalRejectsBadFormat(t *testing.T) {
	is := is.New(t)

	_, err := Marshal(audio.PCM{Data: []byte{0, 0}, SampleRate: 0, NumChannels: 1})
	is.True(err != nil)

	_, err = Marshal(audio.PCM{Data: []byte{0, 0}, SampleRate: 8000, NumChannels: 0})
	is.True(err != nil)
}

func TestUnmarshalRejectsGarbage(t *testing.T) {
	is := is.New(t)

	_, err := Unmarshal([]byte("not a wav file at all, sorry"))
	is.True(err != nil)
}

func TestWriterPatchesSizesOnClose(t *testing.T) {
	is := is.New(t)

	path := filepath.Join(t.TempDir(), "out.wav")
	w, err := NewWriter(path, 8000, 1)
	is.NoErr(err)

	chunk := audio.FromSamples(make([]int16, 160), 8000, 1)
	is.NoErr(w.WritePCM(chunk))
	is.NoErr(w.WritePCM(chunk))
	is.NoErr(w.Close())

	data, err := os.ReadFile(path)
	is.NoErr(err)

	got, err := Unmarshal(data)
	is.NoErr(err)
	is.Equal(got.SampleCount(), 320)
	is.Equal(got.SampleRate, 8000)
}

func TestWriterRejectsMismatchedChunk(t *testing.T) {
	is := is.New(t)

	path := filepath.Join(t.TempDir(), "out.wav")
	w, err := NewWriter(path, 8000, 1)
	is.NoErr(err)
	defer w.Close()

	err = w.WritePCM(audio.FromSamples(make([]int16, 160), 16000, 1))
	is.True(err != nil)
}
