package upstream

import (
	"context"
	"time"

	"github.com/agendahealth/consulta/internal/domain"
)

// StaticSource serves a fixed schedule regardless of identity. Used by the
// chat command and local development, where no ERP adapter is reachable.
type StaticSource struct {
	schedule Schedule
}

// NewStaticSource creates a demo source with a small plausible schedule.
func NewStaticSource() *StaticSource {
	base := time.Now().AddDate(0, 0, 7).Truncate(time.Hour)
	return &StaticSource{
		schedule: Schedule{
			PatientCode: "P-00421",
			PatientName: "Paciente de Demonstração",
			Appointments: []domain.Appointment{
				{
					ID:          "apt-1001",
					ScheduledAt: base.Add(9 * time.Hour),
					Provider:    domain.EntityRef{Code: "M117", Name: "Dra. Helena Prado"},
					Specialty:   domain.EntityRef{Code: "CARD", Name: "Cardiologia"},
					Payer:       domain.EntityRef{Code: "CONV01", Name: "Saúde Total"},
					Location:    domain.EntityRef{Code: "UN-CENTRO", Name: "Unidade Centro"},
				},
				{
					ID:          "apt-1002",
					ScheduledAt: base.Add(32 * time.Hour),
					Provider:    domain.EntityRef{Code: "M204", Name: "Dr. Rafael Lima"},
					Specialty:   domain.EntityRef{Code: "ORTO", Name: "Ortopedia"},
					Payer:       domain.EntityRef{Code: "CONV01", Name: "Saúde Total"},
					Location:    domain.EntityRef{Code: "UN-SUL", Name: "Unidade Sul"},
				},
				{
					ID:          "apt-1003",
					ScheduledAt: base.Add(56 * time.Hour),
					Provider:    domain.EntityRef{Code: "M338", Name: "Dra. Carla Nunes"},
					Specialty:   domain.EntityRef{Code: "DERM", Name: "Dermatologia"},
					Payer:       domain.EntityRef{Code: "PART", Name: "Particular"},
					Location:    domain.EntityRef{Code: "UN-CENTRO", Name: "Unidade Centro"},
				},
			},
		},
	}
}

// Fetch returns the fixed schedule.
func (s *StaticSource) Fetch(ctx context.Context, identityNumber, birthDate string) (*Schedule, error) {
	if err := ctx.Err(); err != nil {
		return nil, &FetchError{Err: err}
	}
	sched := s.schedule
	return &sched, nil
}
