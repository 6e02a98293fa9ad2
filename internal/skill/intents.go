package skill

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/agendahealth/consulta/internal/domain"
	"github.com/agendahealth/consulta/internal/logging"
	"github.com/agendahealth/consulta/internal/metrics"
	"github.com/agendahealth/consulta/internal/nlu"
)

// Classification thresholds. Low-confidence action entries are dropped
// during post-processing; low-confidence confirmations never leave a
// confirming state.
const (
	actionConfidenceMin       = 0.5
	confirmationConfidenceMin = 0.6
)

// Confirmation is the tri-state outcome of the confirmation classifier.
type Confirmation string

const (
	ConfirmationYes     Confirmation = "confirm"
	ConfirmationNo      Confirmation = "deny"
	ConfirmationUnclear Confirmation = "unclear"
)

// InitialIntent is what the very first message of a task already expresses.
// Used only to tailor the first listing's call-to-action, never to skip
// confirmation.
type InitialIntent struct {
	Intent     domain.ActionKind // empty when none
	Target     string            // "all" or empty
	Confidence float64
}

// Classifier runs the NLU-backed classification collaborators.
type Classifier struct {
	nlu nlu.Client
	log *logging.Logger
}

// NewClassifier creates a classifier backed by the given NLU client.
func NewClassifier(client nlu.Client, log *logging.Logger) *Classifier {
	return &Classifier{nlu: client, log: log.Sub("classify")}
}

const initialIntentPrompt = `Você analisa a primeira mensagem de um paciente em um canal de atendimento sobre consultas médicas agendadas.
Identifique se a mensagem já expressa a intenção de cancelar ou de confirmar presença.
Responda somente com JSON: {"intent": "cancel" | "confirm" | "none", "target": "all" | "", "confidence": 0.0}.

Mensagem: %q`

type initialIntentPayload struct {
	Intent     string  `json:"intent"`
	Target     string  `json:"target"`
	Confidence float64 `json:"confidence"`
}

// DetectInitialIntent classifies the triggering message of a new task.
// Malformed payloads degrade to no intent; transport errors propagate.
func (c *Classifier) DetectInitialIntent(ctx context.Context, message string) (InitialIntent, error) {
	resp, err := c.nlu.Execute(ctx, nlu.Request{
		Prompt:    fmt.Sprintf(initialIntentPrompt, message),
		MaxTokens: 96,
	})
	metrics.NLUCall("initial_intent", err)
	if err != nil {
		return InitialIntent{}, err
	}

	var payload initialIntentPayload
	if err := nlu.DecodeJSON(resp.Message, &payload); err != nil {
		c.log.Warn().Err(err).Msg("unparseable initial intent payload, assuming none")
		return InitialIntent{}, nil
	}

	intent := domain.ActionKind(payload.Intent)
	if !intent.Valid() {
		return InitialIntent{}, nil
	}
	target := ""
	if payload.Target == "all" {
		target = "all"
	}
	return InitialIntent{Intent: intent, Target: target, Confidence: payload.Confidence}, nil
}

const actionParsePrompt = `Você interpreta comandos de um paciente sobre a lista numerada de consultas abaixo.
O paciente pode pedir para cancelar e/ou confirmar presença em uma ou mais consultas, referindo-se a elas pelo número, pela especialidade, pelo médico ou por "todas".
Responda somente com JSON: {"actions": [{"action": "cancel" | "confirm", "indices": [1], "confidence": 0.0}]}.
Use os números da lista. Se a mensagem não pedir nenhuma ação, responda {"actions": []}.

Consultas:
%s
Mensagem: %q`

type actionParsePayload struct {
	Actions []struct {
		Action     string  `json:"action"`
		Indices    []int   `json:"indices"`
		Confidence float64 `json:"confidence"`
	} `json:"actions"`
}

// ParseActions extracts action commands against the current snapshot.
// Post-processing keeps indices within [1, len(snapshot)], de-duplicated and
// sorted, merges entries of the same action kind, and drops entries below
// the confidence floor or with no surviving indices.
func (c *Classifier) ParseActions(ctx context.Context, message string, snapshot []domain.Appointment) ([]domain.PendingAction, error) {
	resp, err := c.nlu.Execute(ctx, nlu.Request{
		Prompt:    fmt.Sprintf(actionParsePrompt, RenderSnapshot(snapshot), message),
		MaxTokens: 256,
	})
	metrics.NLUCall("action_parse", err)
	if err != nil {
		return nil, err
	}

	var payload actionParsePayload
	if err := nlu.DecodeJSON(resp.Message, &payload); err != nil {
		c.log.Warn().Err(err).Msg("unparseable action payload, treating as zero actions")
		return nil, nil
	}

	merged := make(map[domain.ActionKind]*domain.PendingAction)
	var order []domain.ActionKind
	for _, entry := range payload.Actions {
		kind := domain.ActionKind(entry.Action)
		if !kind.Valid() || entry.Confidence < actionConfidenceMin {
			continue
		}
		indices := sanitizeIndices(entry.Indices, len(snapshot))
		if len(indices) == 0 {
			continue
		}
		if pa, ok := merged[kind]; ok {
			pa.Indices = sanitizeIndices(append(pa.Indices, indices...), len(snapshot))
			if entry.Confidence > pa.Confidence {
				pa.Confidence = entry.Confidence
			}
			continue
		}
		merged[kind] = &domain.PendingAction{Action: kind, Indices: indices, Confidence: entry.Confidence}
		order = append(order, kind)
	}

	actions := make([]domain.PendingAction, 0, len(order))
	for _, kind := range order {
		actions = append(actions, *merged[kind])
	}
	return actions, nil
}

// sanitizeIndices filters out-of-range positions, de-duplicates, and sorts.
func sanitizeIndices(indices []int, n int) []int {
	seen := make(map[int]bool, len(indices))
	var out []int
	for _, i := range indices {
		if i < 1 || i > n || seen[i] {
			continue
		}
		seen[i] = true
		out = append(out, i)
	}
	sort.Ints(out)
	return out
}

const confirmationPrompt = `O paciente recebeu um pedido de confirmação (sim ou não) sobre alterações em consultas médicas e respondeu com a mensagem abaixo.
Classifique a resposta.
Responda somente com JSON: {"decision": "confirm" | "deny" | "unclear", "confidence": 0.0}.

Mensagem: %q`

type confirmationPayload struct {
	Decision   string  `json:"decision"`
	Confidence float64 `json:"confidence"`
}

// ClassifyConfirmation classifies a yes/no reply. Malformed payloads
// degrade to unclear; transport errors propagate.
func (c *Classifier) ClassifyConfirmation(ctx context.Context, message string) (Confirmation, float64, error) {
	resp, err := c.nlu.Execute(ctx, nlu.Request{
		Prompt:    fmt.Sprintf(confirmationPrompt, message),
		MaxTokens: 64,
	})
	metrics.NLUCall("confirmation", err)
	if err != nil {
		return ConfirmationUnclear, 0, err
	}

	var payload confirmationPayload
	if err := nlu.DecodeJSON(resp.Message, &payload); err != nil {
		c.log.Warn().Err(err).Msg("unparseable confirmation payload, treating as unclear")
		return ConfirmationUnclear, 0, nil
	}

	switch strings.ToLower(payload.Decision) {
	case "confirm":
		return ConfirmationYes, payload.Confidence, nil
	case "deny":
		return ConfirmationNo, payload.Confidence, nil
	default:
		return ConfirmationUnclear, payload.Confidence, nil
	}
}
