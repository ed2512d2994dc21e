package media

import (
	"log/slog"
)

// CodecStore is satisfied by the stream.Publisher entity and by test fakes. It
// lets the detector persist discovered codecs without depending on the
// concrete publisher implementation.
type CodecStore interface {
	SetAudioCodec(string)
	SetVideoCodec(string)
	AudioCodec() string
	VideoCodec() string
	StreamKey() string
}

// CodecDetector performs one-shot detection of audio and video codecs based on
// the first audio (type 8) and video (type 9) messages received on a stream.
// It keeps no internal state; state lives in the CodecStore implementation.
type CodecDetector struct{}

// Process inspects an incoming media message and updates the codec store on
// the first occurrence of each media type.
func (d *CodecDetector) Process(msgType uint8, payload []byte, store CodecStore, logger *slog.Logger) {
	if store == nil || logger == nil {
		return
	}
	var updated bool
	switch msgType {
	case 8:
		if store.AudioCodec() == "" {
			if am, err := ParseAudioMessage(payload); err == nil {
				store.SetAudioCodec(am.Codec)
				updated = true
			}
		}
	case 9:
		if store.VideoCodec() == "" {
			if vm, err := ParseVideoMessage(payload); err == nil {
				store.SetVideoCodec(vm.Codec)
				updated = true
			}
		}
	}
	if updated {
		logger.Info("codecs detected", "stream_key", store.StreamKey(), "video_codec", store.VideoCodec(), "audio_codec", store.AudioCodec())
	}
}
