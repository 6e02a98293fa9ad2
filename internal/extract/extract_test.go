package extract

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agendahealth/consulta/internal/logging"
	"github.com/agendahealth/consulta/internal/nlu"
)

func testLog() *logging.Logger { return logging.New(nil, "silent") }

// --- Identity extraction ---

func TestIdentity_PlainDigits(t *testing.T) {
	e := NewIdentityExtractor(nil, testLog())

	res, err := e.Extract(context.Background(), "meu cpf é 12345678901", false)
	require.NoError(t, err)
	require.True(t, res.Extracted)
	assert.Equal(t, "12345678901", res.Value)
	assert.Equal(t, 1.0, res.Confidence)
}

func TestIdentity_FormattedNumber(t *testing.T) {
	e := NewIdentityExtractor(nil, testLog())

	res, err := e.Extract(context.Background(), "meu cpf é 123.456.789-01", false)
	require.NoError(t, err)
	require.True(t, res.Extracted)
	assert.Equal(t, "12345678901", res.Value, "formatting is stripped")
}

func TestIdentity_EmbeddedInSentence(t *testing.T) {
	e := NewIdentityExtractor(nil, testLog())

	res, err := e.Extract(context.Background(), "oi, tudo bem? o número é 98765432100, obrigada", false)
	require.NoError(t, err)
	require.True(t, res.Extracted)
	assert.Equal(t, "98765432100", res.Value)
}

func TestIdentity_DateIsNotAnIdentity(t *testing.T) {
	e := NewIdentityExtractor(nil, testLog())

	// Slash-separated digit groups never merge into one run.
	res, err := e.Extract(context.Background(), "nasci em 15/12/1985", false)
	require.NoError(t, err)
	assert.False(t, res.Extracted)
}

func TestIdentity_WrongLengthRejected(t *testing.T) {
	e := NewIdentityExtractor(nil, testLog())

	for _, text := range []string{"1234567890", "123456789012", "123"} {
		res, err := e.Extract(context.Background(), text, false)
		require.NoError(t, err)
		assert.False(t, res.Extracted, "text %q", text)
	}
}

func TestIdentity_AllSameDigitsRejected(t *testing.T) {
	e := NewIdentityExtractor(nil, testLog())

	res, err := e.Extract(context.Background(), "11111111111", false)
	require.NoError(t, err)
	assert.False(t, res.Extracted)
}

func TestIdentity_NoFallbackForTextChannels(t *testing.T) {
	called := false
	client := &nlu.MockClient{
		ProviderName: "mock",
		ExecuteFunc: func(ctx context.Context, req nlu.Request) (*nlu.Response, error) {
			called = true
			return &nlu.Response{Message: `{"identityNumber": "12345678901", "confidence": 0.9}`}, nil
		},
	}
	e := NewIdentityExtractor(client, testLog())

	res, err := e.Extract(context.Background(), "não sei meu cpf de cabeça", false)
	require.NoError(t, err)
	assert.False(t, res.Extracted)
	assert.False(t, called, "typed text never reaches the NLU")
}

func TestIdentity_VoiceFallback(t *testing.T) {
	client := &nlu.MockClient{
		ProviderName: "mock",
		ExecuteFunc: func(ctx context.Context, req nlu.Request) (*nlu.Response, error) {
			return &nlu.Response{Message: `{"identityNumber": "123.456.789-01", "confidence": 0.82}`}, nil
		},
	}
	e := NewIdentityExtractor(client, testLog())

	res, err := e.Extract(context.Background(), "um dois três quatro cinco seis sete oito nove zero um", true)
	require.NoError(t, err)
	require.True(t, res.Extracted)
	assert.Equal(t, "12345678901", res.Value)
	assert.Equal(t, 0.82, res.Confidence)
}

func TestIdentity_VoiceFallbackRevalidates(t *testing.T) {
	client := &nlu.MockClient{
		ProviderName: "mock",
		ExecuteFunc: func(ctx context.Context, req nlu.Request) (*nlu.Response, error) {
			return &nlu.Response{Message: `{"identityNumber": "11111111111", "confidence": 0.95}`}, nil
		},
	}
	e := NewIdentityExtractor(client, testLog())

	res, err := e.Extract(context.Background(), "um um um...", true)
	require.NoError(t, err)
	assert.False(t, res.Extracted, "fallback output goes through the same validator")
}

func TestIdentity_VoiceFallbackMalformedPayload(t *testing.T) {
	client := &nlu.MockClient{
		ProviderName: "mock",
		ExecuteFunc: func(ctx context.Context, req nlu.Request) (*nlu.Response, error) {
			return &nlu.Response{Message: "não achei nenhum número aqui"}, nil
		},
	}
	e := NewIdentityExtractor(client, testLog())

	res, err := e.Extract(context.Background(), "alô alô", true)
	require.NoError(t, err, "malformed payloads degrade to a miss")
	assert.False(t, res.Extracted)
}

func TestIdentity_VoiceFallbackTransportError(t *testing.T) {
	client := &nlu.MockClient{
		ProviderName: "mock",
		ExecuteFunc: func(ctx context.Context, req nlu.Request) (*nlu.Response, error) {
			return nil, errors.New("connection refused")
		},
	}
	e := NewIdentityExtractor(client, testLog())

	_, err := e.Extract(context.Background(), "alô", true)
	assert.Error(t, err, "transport errors propagate")
}

func TestValidIdentityNumber(t *testing.T) {
	assert.True(t, ValidIdentityNumber("12345678901"))
	assert.False(t, ValidIdentityNumber("1234567890"))
	assert.False(t, ValidIdentityNumber("00000000000"))
	assert.False(t, ValidIdentityNumber("1234567890a"))
	assert.False(t, ValidIdentityNumber(""))
}

// --- Birth date extraction ---

func TestBirthDate_SeparatedFormats(t *testing.T) {
	e := NewBirthDateExtractor(nil, testLog())

	for _, text := range []string{
		"nasci em 15/12/1985",
		"15-12-1985",
		"é 15.12.1985",
		"5/3/1990 é minha data",
	} {
		res, err := e.Extract(context.Background(), text, false)
		require.NoError(t, err, "text %q", text)
		assert.True(t, res.Extracted, "text %q", text)
	}
}

func TestBirthDate_Normalized(t *testing.T) {
	e := NewBirthDateExtractor(nil, testLog())

	res, err := e.Extract(context.Background(), "5/3/1990", false)
	require.NoError(t, err)
	require.True(t, res.Extracted)
	assert.Equal(t, "05/03/1990", res.Value, "single-digit day and month are padded")
}

func TestBirthDate_EightDigitRun(t *testing.T) {
	e := NewBirthDateExtractor(nil, testLog())

	res, err := e.Extract(context.Background(), "minha data é 15121985 obrigado", false)
	require.NoError(t, err)
	require.True(t, res.Extracted)
	assert.Equal(t, "15/12/1985", res.Value)
}

func TestBirthDate_EightDigitRunMustBeBounded(t *testing.T) {
	e := NewBirthDateExtractor(nil, testLog())

	// Part of a longer digit run, not a date.
	res, err := e.Extract(context.Background(), "protocolo 151219850099", false)
	require.NoError(t, err)
	assert.False(t, res.Extracted)
}

func TestBirthDate_RejectsImpossibleDates(t *testing.T) {
	e := NewBirthDateExtractor(nil, testLog())

	for _, text := range []string{
		"31/02/1990",
		"15/13/1985",
		"00/12/1985",
		"15/12/1880",
		"15/12/2999",
	} {
		res, err := e.Extract(context.Background(), text, false)
		require.NoError(t, err, "text %q", text)
		assert.False(t, res.Extracted, "text %q", text)
	}
}

func TestBirthDate_LeapYear(t *testing.T) {
	e := NewBirthDateExtractor(nil, testLog())

	res, err := e.Extract(context.Background(), "29/02/1988", false)
	require.NoError(t, err)
	assert.True(t, res.Extracted)

	res, err = e.Extract(context.Background(), "29/02/1989", false)
	require.NoError(t, err)
	assert.False(t, res.Extracted)
}

func TestBirthDate_FallbackOnDeterministicMiss(t *testing.T) {
	client := &nlu.MockClient{
		ProviderName: "mock",
		ExecuteFunc: func(ctx context.Context, req nlu.Request) (*nlu.Response, error) {
			return &nlu.Response{Message: `{"date": "15/12/1985", "confidence": 0.9}`}, nil
		},
	}
	e := NewBirthDateExtractor(client, testLog())

	res, err := e.Extract(context.Background(), "quinze de dezembro de mil novecentos e oitenta e cinco", false)
	require.NoError(t, err)
	require.True(t, res.Extracted)
	assert.Equal(t, "15/12/1985", res.Value)
	assert.Equal(t, 0.9, res.Confidence)
}

func TestBirthDate_VoiceDeterministicHitSkipsNLU(t *testing.T) {
	called := false
	client := &nlu.MockClient{
		ProviderName: "mock",
		ExecuteFunc: func(ctx context.Context, req nlu.Request) (*nlu.Response, error) {
			called = true
			return &nlu.Response{Message: `{"date": "", "confidence": 0}`}, nil
		},
	}
	e := NewBirthDateExtractor(client, testLog())

	res, err := e.Extract(context.Background(), "15/12/1985", true)
	require.NoError(t, err)
	assert.False(t, called, "cleanly transcribed numeric dates resolve without the NLU")
	require.True(t, res.Extracted)
	assert.Equal(t, "15/12/1985", res.Value)
}

func TestBirthDate_VoiceFallbackOnDeterministicMiss(t *testing.T) {
	called := false
	client := &nlu.MockClient{
		ProviderName: "mock",
		ExecuteFunc: func(ctx context.Context, req nlu.Request) (*nlu.Response, error) {
			called = true
			return &nlu.Response{Message: `{"date": "15/12/1985", "confidence": 0.88}`}, nil
		},
	}
	e := NewBirthDateExtractor(client, testLog())

	res, err := e.Extract(context.Background(), "quinze de dezembro de oitenta e cinco", true)
	require.NoError(t, err)
	assert.True(t, called)
	assert.True(t, res.Extracted)
}

func TestBirthDate_FallbackRevalidates(t *testing.T) {
	client := &nlu.MockClient{
		ProviderName: "mock",
		ExecuteFunc: func(ctx context.Context, req nlu.Request) (*nlu.Response, error) {
			return &nlu.Response{Message: `{"date": "31/02/1990", "confidence": 0.9}`}, nil
		},
	}
	e := NewBirthDateExtractor(client, testLog())

	res, err := e.Extract(context.Background(), "trinta e um de fevereiro", false)
	require.NoError(t, err)
	assert.False(t, res.Extracted, "the NLU does not get to invent calendar dates")
}
