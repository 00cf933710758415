package agent

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

var paragraphSplitRe = regexp.MustCompile(`\n[ \t]*\n`)

// FragmentReply splits a reply into WhatsApp-safe chunks of at most
// maxChars runes. Splitting prefers paragraph boundaries, then sentence
// boundaries, and hard-cuts only when a single sentence exceeds the
// budget. Empty input yields no chunks.
func FragmentReply(text string, maxChars int) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	if maxChars <= 0 || utf8.RuneCountInString(text) <= maxChars {
		return []string{text}
	}

	var chunks []string
	var current strings.Builder

	flush := func() {
		if c := strings.TrimSpace(current.String()); c != "" {
			chunks = append(chunks, c)
		}
		current.Reset()
	}

	appendPiece := func(piece, sep string) {
		piece = strings.TrimSpace(piece)
		if piece == "" {
			return
		}
		joined := utf8.RuneCountInString(current.String()) + len(sep) + utf8.RuneCountInString(piece)
		if current.Len() > 0 && joined > maxChars {
			flush()
		}
		if current.Len() > 0 {
			current.WriteString(sep)
		}
		current.WriteString(piece)
	}

	for _, para := range paragraphSplitRe.Split(text, -1) {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}
		if utf8.RuneCountInString(para) <= maxChars {
			appendPiece(para, "\n\n")
			continue
		}
		// Oversized paragraph: pack sentences.
		for _, sentence := range splitSentences(para) {
			if utf8.RuneCountInString(sentence) <= maxChars {
				appendPiece(sentence, " ")
				continue
			}
			// Last resort: hard cut inside the sentence.
			flush()
			for _, piece := range hardCut(sentence, maxChars) {
				appendPiece(piece, " ")
				flush()
			}
		}
	}
	flush()
	return chunks
}

// splitSentences breaks a paragraph after terminal punctuation.
func splitSentences(text string) []string {
	var sentences []string
	var b strings.Builder
	runes := []rune(text)
	for i, r := range runes {
		b.WriteRune(r)
		if r == '.' || r == '!' || r == '?' {
			// End of sentence when followed by whitespace or end of text.
			if i == len(runes)-1 || runes[i+1] == ' ' || runes[i+1] == '\n' {
				if s := strings.TrimSpace(b.String()); s != "" {
					sentences = append(sentences, s)
				}
				b.Reset()
			}
		}
	}
	if s := strings.TrimSpace(b.String()); s != "" {
		sentences = append(sentences, s)
	}
	return sentences
}

func hardCut(text string, maxChars int) []string {
	runes := []rune(text)
	var pieces []string
	for len(runes) > maxChars {
		pieces = append(pieces, string(runes[:maxChars]))
		runes = runes[maxChars:]
	}
	if len(runes) > 0 {
		pieces = append(pieces, string(runes))
	}
	return pieces
}
