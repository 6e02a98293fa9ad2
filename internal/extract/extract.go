// Package extract implements the tiered field extractors: a deterministic
// pass over the raw text first, with the NLU collaborator as a probabilistic
// fallback where transcription noise or free-form phrasing defeats it.
package extract

// Result is the outcome of one extraction attempt. Confidence is carried
// for observability but does not branch behavior.
type Result struct {
	Extracted  bool
	Value      string
	Confidence float64
}

const deterministicConfidence = 1.0
