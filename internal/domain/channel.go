package domain

// Channel classifies where an inbound message came from. The engine only
// cares whether the text was transcribed from voice, since transcription
// noise changes how fields are extracted.
type Channel string

const (
	ChannelChat     Channel = "chat"
	ChannelWhatsApp Channel = "whatsapp"
	ChannelVoice    Channel = "voice"
)

// VoiceTranscribed reports whether messages on this channel are
// voice transcriptions.
func (c Channel) VoiceTranscribed() bool {
	return c == ChannelVoice
}
