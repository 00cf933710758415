package media

import "testing"

func TestKind_String(t *testing.T) {
	cases := map[Kind]string{
		KindText:    "text",
		KindAudio:   "audio",
		KindImage:   "image",
		KindUnknown: "unknown",
	}
	for k, want := range cases {
		if got := k.String(); got != want {
			t.Errorf("kind %d: expected %q, got %q", k, want, got)
		}
	}
}

func TestKindFromMessageType(t *testing.T) {
	cases := map[string]Kind{
		"audioMessage":        KindAudio,
		"imageMessage":        KindImage,
		"conversation":        KindText,
		"extendedTextMessage": KindText,
		"stickerMessage":      KindUnknown,
		"":                    KindUnknown,
	}
	for messageType, want := range cases {
		if got := KindFromMessageType(messageType); got != want {
			t.Errorf("%q: expected %v, got %v", messageType, want, got)
		}
	}
}
