// Package media classifies inbound WhatsApp messages by declared kind
// and normalizes each kind to plain text: audio is transcribed, images
// are described by a vision model, text passes through. Failures never
// propagate past this boundary; the caller gets a fixed fallback string
// plus the error for the pipeline's error path.
package media

// Kind is the closed set of inbound message kinds.
type Kind int

const (
	KindText Kind = iota
	KindAudio
	KindImage
	KindUnknown
)

func (k Kind) String() string {
	switch k {
	case KindText:
		return "text"
	case KindAudio:
		return "audio"
	case KindImage:
		return "image"
	default:
		return "unknown"
	}
}

// KindFromMessageType maps the provider's message type string to a Kind.
// Anything unrecognized is Unknown and is later routed down the text path.
func KindFromMessageType(messageType string) Kind {
	switch messageType {
	case "audioMessage":
		return KindAudio
	case "imageMessage":
		return KindImage
	case "conversation", "extendedTextMessage":
		return KindText
	default:
		return KindUnknown
	}
}
