package skill

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agendahealth/consulta/internal/domain"
	"github.com/agendahealth/consulta/internal/logging"
	"github.com/agendahealth/consulta/internal/nlu"
)

func testLog() *logging.Logger { return logging.New(nil, "silent") }

func staticNLU(message string) *nlu.MockClient {
	return &nlu.MockClient{
		ProviderName: "mock",
		ExecuteFunc: func(ctx context.Context, req nlu.Request) (*nlu.Response, error) {
			return &nlu.Response{Message: message}, nil
		},
	}
}

func failingNLU(err error) *nlu.MockClient {
	return &nlu.MockClient{
		ProviderName: "mock",
		ExecuteFunc: func(ctx context.Context, req nlu.Request) (*nlu.Response, error) {
			return nil, err
		},
	}
}

func snapshot(n int) []domain.Appointment {
	items := make([]domain.Appointment, n)
	for i := range items {
		items[i] = domain.Appointment{ID: string(rune('a' + i))}
	}
	return items
}

// --- Initial intent ---

func TestDetectInitialIntent_Cancel(t *testing.T) {
	c := NewClassifier(staticNLU(`{"intent": "cancel", "target": "all", "confidence": 0.9}`), testLog())

	intent, err := c.DetectInitialIntent(context.Background(), "quero cancelar todas as minhas consultas")
	require.NoError(t, err)
	assert.Equal(t, domain.ActionCancel, intent.Intent)
	assert.Equal(t, "all", intent.Target)
	assert.Equal(t, 0.9, intent.Confidence)
}

func TestDetectInitialIntent_None(t *testing.T) {
	c := NewClassifier(staticNLU(`{"intent": "none", "target": "", "confidence": 0.3}`), testLog())

	intent, err := c.DetectInitialIntent(context.Background(), "oi, boa tarde")
	require.NoError(t, err)
	assert.Empty(t, intent.Intent)
}

func TestDetectInitialIntent_MalformedDegrades(t *testing.T) {
	c := NewClassifier(staticNLU("como assim?"), testLog())

	intent, err := c.DetectInitialIntent(context.Background(), "oi")
	require.NoError(t, err, "unparseable payload degrades to no intent")
	assert.Empty(t, intent.Intent)
}

func TestDetectInitialIntent_TransportErrorPropagates(t *testing.T) {
	c := NewClassifier(failingNLU(errors.New("connection refused")), testLog())

	_, err := c.DetectInitialIntent(context.Background(), "oi")
	assert.Error(t, err)
}

// --- Action parsing ---

func TestParseActions_Single(t *testing.T) {
	c := NewClassifier(staticNLU(`{"actions": [{"action": "cancel", "indices": [2], "confidence": 0.9}]}`), testLog())

	actions, err := c.ParseActions(context.Background(), "cancela a segunda", snapshot(3))
	require.NoError(t, err)
	require.Len(t, actions, 1)
	assert.Equal(t, domain.ActionCancel, actions[0].Action)
	assert.Equal(t, []int{2}, actions[0].Indices)
}

func TestParseActions_SanitizesIndices(t *testing.T) {
	c := NewClassifier(staticNLU(`{"actions": [{"action": "cancel", "indices": [3, 0, 7, 1, 3, -2], "confidence": 0.9}]}`), testLog())

	actions, err := c.ParseActions(context.Background(), "cancela tudo", snapshot(3))
	require.NoError(t, err)
	require.Len(t, actions, 1)
	assert.Equal(t, []int{1, 3}, actions[0].Indices, "out-of-range dropped, de-duplicated, sorted")
}

func TestParseActions_DropsEntriesWithNoSurvivingIndices(t *testing.T) {
	c := NewClassifier(staticNLU(`{"actions": [{"action": "cancel", "indices": [9], "confidence": 0.9}]}`), testLog())

	actions, err := c.ParseActions(context.Background(), "cancela a nona", snapshot(3))
	require.NoError(t, err)
	assert.Empty(t, actions)
}

func TestParseActions_DropsLowConfidence(t *testing.T) {
	c := NewClassifier(staticNLU(`{"actions": [
		{"action": "cancel", "indices": [1], "confidence": 0.4},
		{"action": "confirm", "indices": [2], "confidence": 0.8}
	]}`), testLog())

	actions, err := c.ParseActions(context.Background(), "acho que cancela a 1 e confirma a 2", snapshot(3))
	require.NoError(t, err)
	require.Len(t, actions, 1)
	assert.Equal(t, domain.ActionConfirm, actions[0].Action)
}

func TestParseActions_MergesSameKind(t *testing.T) {
	c := NewClassifier(staticNLU(`{"actions": [
		{"action": "cancel", "indices": [3], "confidence": 0.7},
		{"action": "confirm", "indices": [2], "confidence": 0.8},
		{"action": "cancel", "indices": [1], "confidence": 0.9}
	]}`), testLog())

	actions, err := c.ParseActions(context.Background(), "cancela a 3 e a 1, confirma a 2", snapshot(3))
	require.NoError(t, err)
	require.Len(t, actions, 2)
	assert.Equal(t, domain.ActionCancel, actions[0].Action, "first-seen order preserved")
	assert.Equal(t, []int{1, 3}, actions[0].Indices)
	assert.Equal(t, 0.9, actions[0].Confidence, "merged entry keeps the highest confidence")
	assert.Equal(t, domain.ActionConfirm, actions[1].Action)
}

func TestParseActions_UnknownKindIgnored(t *testing.T) {
	c := NewClassifier(staticNLU(`{"actions": [{"action": "reschedule", "indices": [1], "confidence": 0.9}]}`), testLog())

	actions, err := c.ParseActions(context.Background(), "remarca a 1", snapshot(3))
	require.NoError(t, err)
	assert.Empty(t, actions)
}

func TestParseActions_MalformedDegrades(t *testing.T) {
	c := NewClassifier(staticNLU("desculpa, não entendi"), testLog())

	actions, err := c.ParseActions(context.Background(), "cancela a 1", snapshot(3))
	require.NoError(t, err)
	assert.Empty(t, actions)
}

func TestParseActions_TransportErrorPropagates(t *testing.T) {
	c := NewClassifier(failingNLU(errors.New("timeout")), testLog())

	_, err := c.ParseActions(context.Background(), "cancela a 1", snapshot(3))
	assert.Error(t, err)
}

// --- Confirmation ---

func TestClassifyConfirmation_Yes(t *testing.T) {
	c := NewClassifier(staticNLU(`{"decision": "confirm", "confidence": 0.95}`), testLog())

	decision, conf, err := c.ClassifyConfirmation(context.Background(), "sim, pode cancelar")
	require.NoError(t, err)
	assert.Equal(t, ConfirmationYes, decision)
	assert.Equal(t, 0.95, conf)
}

func TestClassifyConfirmation_No(t *testing.T) {
	c := NewClassifier(staticNLU(`{"decision": "deny", "confidence": 0.9}`), testLog())

	decision, _, err := c.ClassifyConfirmation(context.Background(), "não, deixa como está")
	require.NoError(t, err)
	assert.Equal(t, ConfirmationNo, decision)
}

func TestClassifyConfirmation_MalformedIsUnclear(t *testing.T) {
	c := NewClassifier(staticNLU("hmm"), testLog())

	decision, conf, err := c.ClassifyConfirmation(context.Background(), "talvez")
	require.NoError(t, err)
	assert.Equal(t, ConfirmationUnclear, decision)
	assert.Zero(t, conf)
}

func TestClassifyConfirmation_UnknownDecisionIsUnclear(t *testing.T) {
	c := NewClassifier(staticNLU(`{"decision": "perhaps", "confidence": 0.9}`), testLog())

	decision, _, err := c.ClassifyConfirmation(context.Background(), "talvez")
	require.NoError(t, err)
	assert.Equal(t, ConfirmationUnclear, decision)
}

// --- Registry ---

func TestRegistry_RegisterAndResolve(t *testing.T) {
	reg := NewRegistry(testLog())

	sk := NewAppointmentSkill(AppointmentDeps{
		Sessions: NewMemorySessionStore(MemoryStoreOptions{}),
		Log:      testLog(),
	})
	require.NoError(t, reg.Register(sk))

	got, err := reg.Resolve(AppointmentsSkillName)
	require.NoError(t, err)
	assert.Equal(t, AppointmentsSkillName, got.Name())

	assert.Error(t, reg.Register(sk), "duplicate registration")

	_, err = reg.Resolve("unknown-task")
	assert.Error(t, err)
}
