// Package transcribe provides speech-to-text backends.
//
// Supported backends:
//   - whisper: whisper.cpp via Go bindings (default, offline)
//   - openai: OpenAI-compatible /audio/transcriptions endpoint
package transcribe

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/chaz8081/gostt-kiosk/internal/config"
)

var (
	// ErrUnrecognized means the audio was processed but held no
	// intelligible speech.
	ErrUnrecognized = errors.New("transcribe: speech not recognized")
	// ErrServiceUnavailable means the backend could not be reached or
	// refused the request. Callers treat it as transient.
	ErrServiceUnavailable = errors.New("transcribe: service unavailable")
)

// Transcriber converts audio samples to text.
type Transcriber interface {
	// Process transcribes mono float32 audio samples at the configured
	// sample rate to text.
	Process(ctx context.Context, samples []float32) (string, error)
	// Close releases backend resources.
	Close() error
}

// New creates a Transcriber based on the config backend setting.
func New(cfg *config.TranscribeConfig, sampleRate uint32) (Transcriber, error) {
	switch cfg.Backend {
	case "openai":
		return NewOpenAITranscriber(OpenAIOptions{
			APIKey:     cfg.OpenAIAPIKey,
			BaseURL:    cfg.OpenAIBaseURL,
			Model:      cfg.OpenAIModel,
			Language:   cfg.Language,
			SampleRate: sampleRate,
			Timeout:    cfg.Timeout,
		})
	case "whisper", "":
		return NewWhisperTranscriber(cfg.ModelPath, cfg.Language)
	default:
		return nil, fmt.Errorf("transcribe: unknown backend %q (supported: whisper, openai)", cfg.Backend)
	}
}

// bracketTag matches whisper's square-bracket tags such as [BLANK_AUDIO].
var bracketTag = regexp.MustCompile(`\[[^\]]*\]`)

// parenTag matches a half- or full-width parenthesized span.
var parenTag = regexp.MustCompile(`\([^)]*\)|（[^）]*）`)

// nonSpeechWords are the parenthesized captions whisper uses for sounds.
// Any other parenthesized text is kept as speech.
var nonSpeechWords = map[string]bool{
	"音楽": true, "拍手": true, "笑": true, "笑い": true, "笑い声": true,
	"咳": true, "咳払い": true, "ため息": true, "雑音": true, "無音": true,
	"music": true, "applause": true, "laughter": true, "laughs": true,
	"cough": true, "coughs": true, "silence": true, "noise": true, "inaudible": true,
}

// stripNonSpeechParen drops a parenthesized caption and unwraps any other
// parenthesized text.
func stripNonSpeechParen(m string) string {
	r := []rune(m)
	inner := strings.TrimSpace(string(r[1 : len(r)-1]))
	if nonSpeechWords[strings.ToLower(inner)] {
		return ""
	}
	return inner
}

// cleanText strips non-speech annotations and reports ErrUnrecognized when
// nothing remains.
func cleanText(text string) (string, error) {
	text = bracketTag.ReplaceAllString(text, "")
	text = parenTag.ReplaceAllStringFunc(text, stripNonSpeechParen)
	text = strings.Join(strings.Fields(text), " ")
	if text == "" {
		return "", ErrUnrecognized
	}
	return text, nil
}
