package extract

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"time"

	"github.com/agendahealth/consulta/internal/logging"
	"github.com/agendahealth/consulta/internal/metrics"
	"github.com/agendahealth/consulta/internal/nlu"
)

// BirthDateExtractor extracts a date of birth, normalized to DD/MM/YYYY.
//
// Deterministic tiers, in order: separated numeric dates (D.M.YYYY,
// D/M/YYYY, D-M-YYYY), then a whitespace-bounded 8-digit run read as
// DDMMYYYY. Both are validated as real calendar dates. When the
// deterministic pass misses, the NLU collaborator is asked with a
// locale-aware natural-language prompt; dates legitimately arrive written
// out in words on any channel, so the fallback is not voice-gated.
type BirthDateExtractor struct {
	nlu nlu.Client
	log *logging.Logger
}

// NewBirthDateExtractor creates the extractor.
func NewBirthDateExtractor(client nlu.Client, log *logging.Logger) *BirthDateExtractor {
	return &BirthDateExtractor{nlu: client, log: log.Sub("extract.birthdate")}
}

var (
	sepDateRe   = regexp.MustCompile(`\b([0-9]{1,2})[./-]([0-9]{1,2})[./-]([0-9]{4})\b`)
	eightDigits = regexp.MustCompile(`(?:^|\s)([0-9]{8})(?:\s|$)`)
)

// Extract attempts to pull a birth date out of the message. The voice flag
// is accepted for extractor symmetry; a cleanly transcribed numeric date
// still resolves deterministically.
func (e *BirthDateExtractor) Extract(ctx context.Context, text string, voice bool) (Result, error) {
	if value, ok := deterministicDate(text); ok {
		return Result{Extracted: true, Value: value, Confidence: deterministicConfidence}, nil
	}
	if e.nlu == nil {
		return Result{}, nil
	}
	return e.fallback(ctx, text)
}

// deterministicDate runs the two deterministic tiers.
func deterministicDate(text string) (string, bool) {
	if m := sepDateRe.FindStringSubmatch(text); m != nil {
		day, _ := strconv.Atoi(m[1])
		month, _ := strconv.Atoi(m[2])
		year, _ := strconv.Atoi(m[3])
		if validCalendarDate(day, month, year) {
			return formatDate(day, month, year), true
		}
	}

	if m := eightDigits.FindStringSubmatch(text); m != nil {
		run := m[1]
		day, _ := strconv.Atoi(run[0:2])
		month, _ := strconv.Atoi(run[2:4])
		year, _ := strconv.Atoi(run[4:8])
		if validCalendarDate(day, month, year) {
			return formatDate(day, month, year), true
		}
	}

	return "", false
}

const birthDatePrompt = `Extraia a data de nascimento da mensagem abaixo, se houver.
A data pode estar por extenso ("quinze de dezembro de mil novecentos e oitenta e cinco") ou em qualquer formato brasileiro (dia antes do mês).
Responda somente com JSON no formato {"date": "DD/MM/YYYY ou vazio", "confidence": 0.0}.

Mensagem: %q`

type birthDatePayload struct {
	Date       string  `json:"date"`
	Confidence float64 `json:"confidence"`
}

func (e *BirthDateExtractor) fallback(ctx context.Context, text string) (Result, error) {
	resp, err := e.nlu.Execute(ctx, nlu.Request{
		Prompt:    fmt.Sprintf(birthDatePrompt, text),
		MaxTokens: 128,
	})
	metrics.NLUCall("extraction", err)
	if err != nil {
		return Result{}, err
	}

	var payload birthDatePayload
	if err := nlu.DecodeJSON(resp.Message, &payload); err != nil {
		e.log.Warn().Err(err).Msg("unparseable birth date payload, treating as miss")
		return Result{}, nil
	}

	value, ok := deterministicDate(payload.Date)
	if !ok {
		return Result{}, nil
	}
	return Result{Extracted: true, Value: value, Confidence: payload.Confidence}, nil
}

// validCalendarDate checks for a real calendar date within a plausible
// birth-year range.
func validCalendarDate(day, month, year int) bool {
	if year < 1900 || year > time.Now().Year() {
		return false
	}
	if month < 1 || month > 12 || day < 1 || day > 31 {
		return false
	}
	d := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	return d.Day() == day && d.Month() == time.Month(month) && d.Year() == year
}

func formatDate(day, month, year int) string {
	return fmt.Sprintf("%02d/%02d/%04d", day, month, year)
}
