package media

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"image/jpeg"
	"log/slog"
	"os"
	"strings"

	"github.com/disintegration/imaging"

	"github.com/atendezap/atendezap/internal/bus"
	"github.com/atendezap/atendezap/internal/providers"
)

// Fixed fallback strings delivered to the agent when a media path fails.
const (
	AudioFallback = "Erro ao processar mídia de áudio"
	ImageFallback = "Erro ao processar mídia de imagem"
)

// visionInstruction asks for a first-person, customer-style description
// so the agent reads the image as if the client had typed it.
const visionInstruction = `O que há nessa imagem? Me dê a resposta como se fosse um cliente descrevendo a imagem. Comece dizendo: "te enviei uma imagem que..." Sempre em primeira pessoa, como se você fosse o cliente. Ao invés de dizer 'você me enviou', diga 'eu te enviei'.

Seja detalhado e útil na descrição, mas mantenha o tom natural de um cliente conversando via WhatsApp.`

// maxImageSide bounds the longest side of images sent to the vision
// model, capping upload size.
const maxImageSide = 1280

// Fetcher retrieves media bytes referenced by a message id.
type Fetcher interface {
	FetchMedia(ctx context.Context, messageID string) (data []byte, mimeType string, err error)
}

// Normalizer converts any inbound message kind to plain text.
type Normalizer struct {
	fetcher     Fetcher
	transcriber providers.Transcriber
	vision      providers.ChatProvider
	visionModel string
}

// NewNormalizer wires the media normalizer. visionModel may be empty to
// use the provider default.
func NewNormalizer(fetcher Fetcher, transcriber providers.Transcriber, vision providers.ChatProvider, visionModel string) *Normalizer {
	return &Normalizer{
		fetcher:     fetcher,
		transcriber: transcriber,
		vision:      vision,
		visionModel: visionModel,
	}
}

// Normalize dispatches on kind and returns the derived text. For audio
// and image failures the returned text is the fixed fallback string and
// err carries the cause; the pipeline records the error but continues
// the turn with the fallback as input. Unknown kinds take the text path.
func (n *Normalizer) Normalize(ctx context.Context, kind Kind, msg bus.InboundMessage) (string, error) {
	switch kind {
	case KindAudio:
		text, err := n.normalizeAudio(ctx, msg)
		if err != nil {
			slog.Error("audio normalization failed", "sender", msg.SenderID, "message_id", msg.ID, "error", err)
			return AudioFallback, err
		}
		return text, nil
	case KindImage:
		text, err := n.normalizeImage(ctx, msg)
		if err != nil {
			slog.Error("image normalization failed", "sender", msg.SenderID, "message_id", msg.ID, "error", err)
			return ImageFallback, err
		}
		return text, nil
	default:
		// Text and Unknown: identity passthrough.
		return strings.TrimSpace(msg.Content), nil
	}
}

// normalizeAudio fetches the voice note, writes it to a scoped temp
// file and transcribes it in Portuguese. The temp file is removed on
// every exit path.
func (n *Normalizer) normalizeAudio(ctx context.Context, msg bus.InboundMessage) (string, error) {
	data, _, err := n.fetcher.FetchMedia(ctx, msg.ID)
	if err != nil {
		return "", fmt.Errorf("fetch audio: %w", err)
	}

	f, err := os.CreateTemp("", "atendezap_audio_*.ogg")
	if err != nil {
		return "", fmt.Errorf("create temp audio file: %w", err)
	}
	path := f.Name()
	defer os.Remove(path)

	if _, err := f.Write(data); err != nil {
		f.Close()
		return "", fmt.Errorf("write temp audio file: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("close temp audio file: %w", err)
	}

	transcript, err := n.transcriber.Transcribe(ctx, path, "pt")
	if err != nil {
		return "", fmt.Errorf("transcribe audio: %w", err)
	}
	return strings.TrimSpace(transcript), nil
}

// normalizeImage fetches the image, downscales it and asks the vision
// model for a customer-style description.
func (n *Normalizer) normalizeImage(ctx context.Context, msg bus.InboundMessage) (string, error) {
	data, mimeType, err := n.fetcher.FetchMedia(ctx, msg.ID)
	if err != nil {
		return "", fmt.Errorf("fetch image: %w", err)
	}

	data, mimeType = prepareImage(data, mimeType)

	resp, err := n.vision.Chat(ctx, providers.ChatRequest{
		Model: n.visionModel,
		Messages: []providers.Message{{
			Role:    "user",
			Content: visionInstruction,
			Images: []providers.ImageContent{{
				MimeType: mimeType,
				Data:     base64.StdEncoding.EncodeToString(data),
			}},
		}},
	})
	if err != nil {
		return "", fmt.Errorf("describe image: %w", err)
	}
	description := strings.TrimSpace(resp.Content)
	if description == "" {
		return "", fmt.Errorf("describe image: empty description")
	}
	return description, nil
}

// prepareImage downscales oversized images and re-encodes as JPEG.
// Undecodable data passes through untouched; the vision call surfaces
// any real problem.
func prepareImage(data []byte, mimeType string) ([]byte, string) {
	img, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		return data, mimeType
	}
	bounds := img.Bounds()
	if bounds.Dx() <= maxImageSide && bounds.Dy() <= maxImageSide {
		return data, mimeType
	}

	resized := imaging.Fit(img, maxImageSide, maxImageSide, imaging.Lanczos)
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, resized, &jpeg.Options{Quality: 85}); err != nil {
		return data, mimeType
	}
	return buf.Bytes(), "image/jpeg"
}
