package domain

// Identity is the verified patient identity for a conversation. Cached with
// a long TTL because identity rarely changes within a support window.
type Identity struct {
	IdentityNumber string `json:"identityNumber"`
	BirthDate      string `json:"birthDate"` // DD/MM/YYYY
	PatientCode    string `json:"patientCode,omitempty"`
	PatientName    string `json:"patientName,omitempty"`
}
