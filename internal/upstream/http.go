package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/agendahealth/consulta/internal/domain"
	"github.com/agendahealth/consulta/internal/logging"
)

// HTTPSource queries a scheduling ERP adapter over HTTP.
type HTTPSource struct {
	baseURL string
	apiKey  string
	http    *retryablehttp.Client
	log     *logging.Logger
}

// HTTPConfig configures the HTTP source.
type HTTPConfig struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// NewHTTPSource creates the source. The read is idempotent, so transient
// failures are retried a couple of times inside the caller's deadline.
func NewHTTPSource(cfg HTTPConfig, log *logging.Logger) *HTTPSource {
	rc := retryablehttp.NewClient()
	rc.RetryMax = 2
	rc.RetryWaitMin = 200 * time.Millisecond
	rc.RetryWaitMax = time.Second
	rc.Logger = nil
	if cfg.Timeout > 0 {
		rc.HTTPClient.Timeout = cfg.Timeout
	}
	return &HTTPSource{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		http:    rc,
		log:     log.Sub("upstream"),
	}
}

type searchRequest struct {
	IdentityNumber string `json:"identityNumber"`
	BirthDate      string `json:"birthDate"`
}

type searchResponse struct {
	Patient struct {
		Code string `json:"code"`
		Name string `json:"name"`
	} `json:"patient"`
	Appointments []appointmentPayload `json:"appointments"`
}

type appointmentPayload struct {
	ID          string    `json:"id"`
	ScheduledAt time.Time `json:"scheduledAt"`
	Provider    entityRef `json:"provider"`
	Specialty   entityRef `json:"specialty"`
	Payer       entityRef `json:"payer"`
	Location    entityRef `json:"location"`
}

type entityRef struct {
	Code string `json:"code"`
	Name string `json:"name"`
}

// Fetch looks up the patient's schedule by identity number and birth date.
func (s *HTTPSource) Fetch(ctx context.Context, identityNumber, birthDate string) (*Schedule, error) {
	body, err := json.Marshal(searchRequest{IdentityNumber: identityNumber, BirthDate: birthDate})
	if err != nil {
		return nil, &FetchError{Err: err}
	}

	req, err := retryablehttp.NewRequestWithContext(
		ctx, http.MethodPost, s.baseURL+"/v1/appointments/search", bytes.NewReader(body))
	if err != nil {
		return nil, &FetchError{Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	if s.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.apiKey)
	}

	start := time.Now()
	resp, err := s.http.Do(req)
	if err != nil {
		return nil, &FetchError{Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, &FetchError{Status: resp.StatusCode, Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &FetchError{
			Status: resp.StatusCode,
			Err:    fmt.Errorf("unexpected status: %s", bytes.TrimSpace(data)),
		}
	}

	var out searchResponse
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, &FetchError{Status: resp.StatusCode, Err: err}
	}

	schedule := &Schedule{
		PatientCode:  out.Patient.Code,
		PatientName:  out.Patient.Name,
		Appointments: make([]domain.Appointment, 0, len(out.Appointments)),
	}
	for _, a := range out.Appointments {
		schedule.Appointments = append(schedule.Appointments, domain.Appointment{
			ID:          a.ID,
			ScheduledAt: a.ScheduledAt,
			Provider:    domain.EntityRef{Code: a.Provider.Code, Name: a.Provider.Name},
			Specialty:   domain.EntityRef{Code: a.Specialty.Code, Name: a.Specialty.Name},
			Payer:       domain.EntityRef{Code: a.Payer.Code, Name: a.Payer.Name},
			Location:    domain.EntityRef{Code: a.Location.Code, Name: a.Location.Name},
		})
	}

	s.log.Debug().
		Int("count", len(schedule.Appointments)).
		Dur("duration", time.Since(start)).
		Msg("schedule fetched")
	return schedule, nil
}
