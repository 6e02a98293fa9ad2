package extract

import (
	"context"
	"fmt"
	"strings"

	"github.com/agendahealth/consulta/internal/logging"
	"github.com/agendahealth/consulta/internal/metrics"
	"github.com/agendahealth/consulta/internal/nlu"
)

// IdentityExtractor extracts the 11-digit identity number (CPF).
//
// The deterministic pass scans maximal digit runs, treating '.' and '-'
// between digits as formatting, and accepts the first run of exactly 11
// digits that passes validation. The NLU fallback is used only for
// voice-transcribed messages, where transcription noise defeats the scan.
type IdentityExtractor struct {
	nlu nlu.Client
	log *logging.Logger
}

// NewIdentityExtractor creates the extractor. The NLU client may be nil when
// no voice channel is in use.
func NewIdentityExtractor(client nlu.Client, log *logging.Logger) *IdentityExtractor {
	return &IdentityExtractor{nlu: client, log: log.Sub("extract.identity")}
}

// Extract attempts to pull an identity number out of the message.
func (e *IdentityExtractor) Extract(ctx context.Context, text string, voice bool) (Result, error) {
	for _, run := range digitRuns(text) {
		if len(run) == 11 && ValidIdentityNumber(run) {
			return Result{Extracted: true, Value: run, Confidence: deterministicConfidence}, nil
		}
	}

	if !voice || e.nlu == nil {
		return Result{}, nil
	}
	return e.fallback(ctx, text)
}

const identityPrompt = `Extraia o CPF (11 dígitos) da mensagem abaixo, se houver.
A mensagem veio de uma transcrição de voz, então os dígitos podem aparecer por extenso ou separados.
Responda somente com JSON no formato {"identityNumber": "apenas dígitos ou vazio", "confidence": 0.0}.

Mensagem: %q`

type identityPayload struct {
	IdentityNumber string  `json:"identityNumber"`
	Confidence     float64 `json:"confidence"`
}

func (e *IdentityExtractor) fallback(ctx context.Context, text string) (Result, error) {
	resp, err := e.nlu.Execute(ctx, nlu.Request{
		Prompt:    fmt.Sprintf(identityPrompt, text),
		MaxTokens: 128,
	})
	metrics.NLUCall("extraction", err)
	if err != nil {
		return Result{}, err
	}

	var payload identityPayload
	if err := nlu.DecodeJSON(resp.Message, &payload); err != nil {
		e.log.Warn().Err(err).Msg("unparseable identity payload, treating as miss")
		return Result{}, nil
	}

	digits := onlyDigits(payload.IdentityNumber)
	if len(digits) != 11 || !ValidIdentityNumber(digits) {
		return Result{}, nil
	}
	return Result{Extracted: true, Value: digits, Confidence: payload.Confidence}, nil
}

// digitRuns returns maximal digit runs in the text. '.' and '-' between
// digits are treated as number formatting and skipped; any other character
// ends the run. "123.456.789-01" yields one run of 11 digits, while
// "15/12/1985" stays split.
func digitRuns(text string) []string {
	var runs []string
	var cur strings.Builder
	rs := []rune(text)
	for i, r := range rs {
		switch {
		case r >= '0' && r <= '9':
			cur.WriteRune(r)
		case (r == '.' || r == '-') && cur.Len() > 0 && i+1 < len(rs) && rs[i+1] >= '0' && rs[i+1] <= '9':
			// formatting inside a number
		default:
			if cur.Len() > 0 {
				runs = append(runs, cur.String())
				cur.Reset()
			}
		}
	}
	if cur.Len() > 0 {
		runs = append(runs, cur.String())
	}
	return runs
}

// ValidIdentityNumber checks the identity number format: exactly 11 digits
// and not a single repeated digit.
func ValidIdentityNumber(s string) bool {
	if len(s) != 11 {
		return false
	}
	same := true
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
		if s[i] != s[0] {
			same = false
		}
	}
	return !same
}

func onlyDigits(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
