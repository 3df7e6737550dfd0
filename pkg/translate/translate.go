// Package translate detects the language of generated text and translates it
// into the target language through the generation gateway.
package translate

import (
	"context"
	"fmt"
	"strings"

	"github.com/kart-io/logger"
	"github.com/pemistahl/lingua-go"

	"github.com/kart-io/docmind/pkg/llm"
	"github.com/kart-io/docmind/pkg/llm/gateway"
	"github.com/kart-io/docmind/pkg/utils/errors"
)

// Unknown is returned when the language cannot be detected reliably.
const Unknown = "unknown"

// ErrLanguagePairMissing is returned when the configured pair cannot be served.
var ErrLanguagePairMissing = errors.ErrLanguagePairMissing

// Config configures a Translator.
type Config struct {
	Source    string
	Target    string
	Languages []string
	Model     string
	MaxTokens int
}

// Detector identifies the language of a text among a fixed set of languages.
type Detector struct {
	detector lingua.LanguageDetector
}

// NewDetector builds a lingua detector restricted to codes (ISO 639-1).
func NewDetector(codes []string) (*Detector, error) {
	langs, err := parseLanguages(codes)
	if err != nil {
		return nil, err
	}
	if len(langs) < 2 {
		return nil, fmt.Errorf("language detector needs at least two languages, got %d", len(langs))
	}

	d := lingua.NewLanguageDetectorBuilder().
		FromLanguages(langs...).
		WithMinimumRelativeDistance(0.1).
		Build()
	return &Detector{detector: d}, nil
}

// Detect returns the lower-case ISO 639-1 code of text, or Unknown.
func (d *Detector) Detect(text string) string {
	lang, ok := d.detector.DetectLanguageOf(text)
	if !ok {
		return Unknown
	}
	return strings.ToLower(lang.IsoCode639_1().String())
}

func parseLanguages(codes []string) ([]lingua.Language, error) {
	var out []lingua.Language
	for _, code := range codes {
		lang, ok := languageOf(code)
		if !ok {
			return nil, fmt.Errorf("unsupported language code %q", code)
		}
		out = append(out, lang)
	}
	return out, nil
}

func languageOf(code string) (lingua.Language, bool) {
	for _, lang := range lingua.AllLanguages() {
		if strings.EqualFold(lang.IsoCode639_1().String(), code) {
			return lang, true
		}
	}
	return lingua.Unknown, false
}

type languageDetector interface {
	Detect(text string) string
}

// Translator normalizes generated text into the target language.
type Translator struct {
	detector  languageDetector
	generator gateway.Generator
	cfg       Config
}

// New validates the language pair and the translation model, then returns a
// Translator. Any failure wraps ErrLanguagePairMissing and must abort startup.
// lister may be nil to skip the model check.
func New(ctx context.Context, generator gateway.Generator, lister llm.ModelLister, cfg Config) (*Translator, error) {
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 600
	}
	if !containsFold(cfg.Languages, cfg.Source) || !containsFold(cfg.Languages, cfg.Target) {
		return nil, ErrLanguagePairMissing.WithMessagef("language pair %s->%s is not among %v", cfg.Source, cfg.Target, cfg.Languages)
	}

	detector, err := NewDetector(cfg.Languages)
	if err != nil {
		return nil, ErrLanguagePairMissing.WithCause(err)
	}

	if lister != nil {
		models, err := lister.ListModels(ctx)
		if err != nil {
			return nil, ErrLanguagePairMissing.WithCause(fmt.Errorf("list models: %w", err))
		}
		if !hasModel(models, cfg.Model) {
			return nil, ErrLanguagePairMissing.WithMessagef("translation model %q is not installed", cfg.Model)
		}
	}

	logger.Infow("translation ready",
		"source", cfg.Source,
		"target", cfg.Target,
		"model", cfg.Model,
	)
	return &Translator{detector: detector, generator: generator, cfg: cfg}, nil
}

// Detect returns the language code of text, or Unknown.
func (t *Translator) Detect(text string) string {
	return t.detector.Detect(text)
}

// Translate translates text between two languages.
func (t *Translator) Translate(ctx context.Context, text, from, to string) (string, error) {
	prompt := fmt.Sprintf("Traduis fidèlement le texte suivant de l'%s vers le %s. "+
		"Conserve la structure et les termes techniques. Ne réponds que par la traduction.\n\n%s",
		languageName(from), languageName(to), text)

	return t.generator.Generate(ctx, gateway.Request{
		Prompt:      prompt,
		MaxTokens:   t.cfg.MaxTokens,
		Temperature: 0.1,
		Models:      []string{t.cfg.Model},
	})
}

// Normalize translates text when it is written in the source language.
// A translation failure returns the input unchanged.
func (t *Translator) Normalize(ctx context.Context, text string) (string, bool) {
	lang := t.detector.Detect(text)
	if lang != strings.ToLower(t.cfg.Source) {
		logger.Debugw("no translation needed", "language", lang)
		return text, false
	}

	translated, err := t.Translate(ctx, text, t.cfg.Source, t.cfg.Target)
	if err != nil {
		logger.Errorw("translation failed, keeping original text",
			"source", t.cfg.Source,
			"target", t.cfg.Target,
			"error", err.Error(),
		)
		return text, false
	}
	logger.Infow("text translated", "source", t.cfg.Source, "target", t.cfg.Target)
	return translated, true
}

func hasModel(models []string, want string) bool {
	for _, m := range models {
		if m == want {
			return true
		}
		if !strings.Contains(want, ":") && m == want+":latest" {
			return true
		}
	}
	return false
}

func containsFold(list []string, s string) bool {
	for _, v := range list {
		if strings.EqualFold(v, s) {
			return true
		}
	}
	return false
}

// languageName 返回用于提示词的法语语言名。
func languageName(code string) string {
	switch strings.ToLower(code) {
	case "en":
		return "anglais"
	case "fr":
		return "français"
	case "de":
		return "allemand"
	case "es":
		return "espagnol"
	case "it":
		return "italien"
	default:
		return code
	}
}
