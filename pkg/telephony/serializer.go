// Package telephony implements the phone-call transport: a websocket media
// stream speaking the Twilio media-stream protocol, carrying G.711 mu-law
// audio at 8 kHz. The transport input adapts inbound media into audio frames
// and runs voice-activity detection for turn taking; the transport output
// plays synthesized audio back to the caller and can clear its playback
// buffer on interruption.
package telephony

import (
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/chriscow/callpipe-go/pkg/audio"
)

// Wire events of the media-stream protocol.
const (
	EventConnected = "connected"
	EventStart     = "start"
	EventMedia     = "media"
	EventStop      = "stop"
	EventMark      = "mark"
	EventClear     = "clear"
)

// WireSampleRate is the sample rate of the telephony leg.
const WireSampleRate = 8000

// Message is one envelope of the media-stream protocol. Only the fields for
// the message's event are populated.
type Message struct {
	Event          string        `json:"event"`
	Protocol       string        `json:"protocol,omitempty"`
	Version        string        `json:"version,omitempty"`
	SequenceNumber string        `json:"sequenceNumber,omitempty"`
	StreamSID      string        `json:"streamSid,omitempty"`
	Start          *StartPayload `json:"start,omitempty"`
	Media          *MediaPayload `json:"media,omitempty"`
	Mark           *MarkPayload  `json:"mark,omitempty"`
	Stop           *StopPayload  `json:"stop,omitempty"`
}

// StartPayload describes the stream that is beginning.
type StartPayload struct {
	StreamSID   string      `json:"streamSid"`
	AccountSID  string      `json:"accountSid,omitempty"`
	CallSID     string      `json:"callSid,omitempty"`
	MediaFormat MediaFormat `json:"mediaFormat"`
}

// MediaFormat describes the audio encoding of a stream.
type MediaFormat struct {
	Encoding   string `json:"encoding"`
	SampleRate int    `json:"sampleRate"`
	Channels   int    `json:"channels"`
}

// MediaPayload carries one base64-encoded mu-law audio chunk.
type MediaPayload struct {
	Track     string `json:"track,omitempty"`
	Chunk     string `json:"chunk,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
	Payload   string `json:"payload"`
}

// MarkPayload names a playback checkpoint.
type MarkPayload struct {
	Name string `json:"name"`
}

// StopPayload describes the stream that is ending.
type StopPayload struct {
	AccountSID string `json:"accountSid,omitempty"`
	CallSID    string `json:"callSid,omitempty"`
}

// Serializer converts between wire envelopes and PCM audio.
type Serializer struct{}

// Decode parses one wire envelope.
func (Serializer) Decode(data []byte) (Message, error) {
	var m Message
	if err := json.Unmarshal(data, &m); err != nil {
		return Message{}, fmt.Errorf("telephony: decode message: %w", err)
	}
	if m.Event == "" {
		return Message{}, fmt.Errorf("telephony: message has no event")
	}
	return m, nil
}

// DecodeMedia extracts the audio of a media message as 16-bit PCM.
func (Serializer) DecodeMedia(m Message) (audio.PCM, error) {
	if m.Media == nil {
		return audio.PCM{}, fmt.Errorf("telephony: media message has no payload")
	}
	mulaw, err := base64.StdEncoding.DecodeString(m.Media.Payload)
	if err != nil {
		return audio.PCM{}, fmt.Errorf("telephony: decode media payload: %w", err)
	}
	return audio.DecodeMuLawBytes(mulaw, WireSampleRate), nil
}

// EncodeMedia builds an outbound media envelope from 16-bit PCM. The chunk
// must already be at the wire sample rate.
func (Serializer) EncodeMedia(streamSID string, chunk audio.PCM) ([]byte, error) {
	if chunk.SampleRate != WireSampleRate || chunk.NumChannels != 1 {
		return nil, fmt.Errorf("telephony: cannot encode %d Hz %d-channel audio for the wire",
			chunk.SampleRate, chunk.NumChannels)
	}
	payload := base64.StdEncoding.EncodeToString(audio.EncodeMuLawBytes(chunk))
	return json.Marshal(Message{
		Event:     EventMedia,
		StreamSID: streamSID,
		Media:     &MediaPayload{Payload: payload},
	})
}

// EncodeClear builds the envelope that tells the far end to drop its
// buffered playback audio.
func (Serializer) EncodeClear(streamSID string) ([]byte, error) {
	return json.Marshal(Message{Event: EventClear, StreamSID: streamSID})
}

// EncodeMark builds a playback checkpoint request.
func (Serializer) EncodeMark(streamSID, name string) ([]byte, error) {
	return json.Marshal(Message{
		Event:     EventMark,
		StreamSID: streamSID,
		Mark:      &MarkPayload{Name: name},
	})
}
