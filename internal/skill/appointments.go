package skill

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/agendahealth/consulta/internal/cache"
	"github.com/agendahealth/consulta/internal/domain"
	"github.com/agendahealth/consulta/internal/executor"
	"github.com/agendahealth/consulta/internal/extract"
	"github.com/agendahealth/consulta/internal/logging"
	"github.com/agendahealth/consulta/internal/metrics"
	"github.com/agendahealth/consulta/internal/nlu"
	"github.com/agendahealth/consulta/internal/upstream"
)

// AppointmentsSkillName is the task name the skill registers under.
const AppointmentsSkillName = "appointments"

const (
	defaultNLUTimeout      = 8 * time.Second
	defaultUpstreamTimeout = 5 * time.Second
)

// AppointmentDeps are the collaborators injected into the skill.
type AppointmentDeps struct {
	Sessions SessionStore
	Cache    *cache.Cache
	Source   upstream.Source
	Executor executor.Executor
	NLU      nlu.Client
	Log      *logging.Logger

	// Hard timeouts for collaborator calls; zero values use defaults.
	NLUTimeout      time.Duration
	UpstreamTimeout time.Duration
}

// AppointmentSkill walks a patient through listing, cancelling, and
// confirming scheduled appointments across independent turns.
type AppointmentSkill struct {
	sessions SessionStore
	cache    *cache.Cache
	source   upstream.Source
	exec     executor.Executor
	identity *extract.IdentityExtractor
	birth    *extract.BirthDateExtractor
	classify *Classifier
	log      *logging.Logger

	nluTimeout      time.Duration
	upstreamTimeout time.Duration
}

// NewAppointmentSkill creates the skill with explicit dependencies.
func NewAppointmentSkill(deps AppointmentDeps) *AppointmentSkill {
	if deps.NLUTimeout <= 0 {
		deps.NLUTimeout = defaultNLUTimeout
	}
	if deps.UpstreamTimeout <= 0 {
		deps.UpstreamTimeout = defaultUpstreamTimeout
	}
	return &AppointmentSkill{
		sessions:        deps.Sessions,
		cache:           deps.Cache,
		source:          deps.Source,
		exec:            deps.Executor,
		identity:        extract.NewIdentityExtractor(deps.NLU, deps.Log),
		birth:           extract.NewBirthDateExtractor(deps.NLU, deps.Log),
		classify:        NewClassifier(deps.NLU, deps.Log),
		log:             deps.Log.Sub("skill.appointments"),
		nluTimeout:      deps.NLUTimeout,
		upstreamTimeout: deps.UpstreamTimeout,
	}
}

// Name implements Skill.
func (s *AppointmentSkill) Name() string { return AppointmentsSkillName }

// Validate implements Skill. Runs before any state read.
func (s *AppointmentSkill) Validate() error {
	switch {
	case s.sessions == nil:
		return fmt.Errorf("appointments skill: session store not configured")
	case s.cache == nil:
		return fmt.Errorf("appointments skill: cache not configured")
	case s.source == nil:
		return fmt.Errorf("appointments skill: upstream source not configured")
	case s.exec == nil:
		return fmt.Errorf("appointments skill: executor not configured")
	}
	return nil
}

// Execute implements Skill.
func (s *AppointmentSkill) Execute(ctx context.Context, turn Turn) (*Result, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}

	start := time.Now()
	log := s.log.WithConversation(turn.ConversationID)

	res, outcome := s.run(ctx, log, turn)

	metrics.TurnProcessed(AppointmentsSkillName, outcome, time.Since(start))
	log.Info().
		Str("outcome", outcome).
		Bool("complete", res.Complete).
		Dur("duration", time.Since(start)).
		Msg("turn processed")
	return res, nil
}

// run dispatches the turn to the handler for the current state.
func (s *AppointmentSkill) run(ctx context.Context, log *logging.Logger, turn Turn) (*Result, string) {
	sess, ok := s.sessions.Get(turn.ConversationID)
	if !ok {
		return s.begin(ctx, log, turn)
	}

	switch sess.Status {
	case domain.StatusWaitingIdentity:
		return s.collect(ctx, log, turn, sess, domain.FieldIdentity)
	case domain.StatusWaitingBirthDate:
		return s.collect(ctx, log, turn, sess, domain.FieldBirthDate)
	case domain.StatusWaitingAction:
		return s.selectAction(ctx, log, turn, sess)
	case domain.StatusConfirmingCancel, domain.StatusConfirmingConfirm, domain.StatusConfirmingMultiple:
		return s.confirm(ctx, log, turn, sess)
	default:
		log.Error().Str("status", string(sess.Status)).Msg("unknown session status, clearing")
		return s.fail(turn.ConversationID, msgInternalFailure())
	}
}

// begin handles a turn with no active session: warm-cache bootstrap or cold
// identity collection.
func (s *AppointmentSkill) begin(ctx context.Context, log *logging.Logger, turn Turn) (*Result, string) {
	id := turn.ConversationID

	if ident := s.cache.GetIdentity(id); ident != nil {
		if snap := s.cache.GetResults(id); len(snap) > 0 {
			// Both caches warm: no upstream fetch, only re-run intent
			// detection against the triggering message.
			log.Debug().Msg("warm cache bootstrap")
			intent := s.detectIntent(ctx, log, turn.Text)
			return s.startAction(log, id, *ident, snap, intent)
		}
		return s.fetchAndList(ctx, log, id, *ident, turn.Text)
	}

	voice := turn.Channel.VoiceTranscribed()
	idRes, err := s.extractIdentity(ctx, turn.Text, voice)
	if err != nil {
		log.Error().Err(err).Msg("identity extraction failed")
		return s.fail(id, msgInternalFailure())
	}
	bdRes, err := s.extractBirthDate(ctx, turn.Text, voice)
	if err != nil {
		log.Error().Err(err).Msg("birth date extraction failed")
		return s.fail(id, msgInternalFailure())
	}

	switch {
	case idRes.Extracted && bdRes.Extracted:
		ident := domain.Identity{IdentityNumber: idRes.Value, BirthDate: bdRes.Value}
		return s.fetchAndList(ctx, log, id, ident, turn.Text)

	case idRes.Extracted:
		if _, err := s.sessions.Create(id, s.Name(), domain.StatusWaitingBirthDate); err != nil {
			log.Error().Err(err).Msg("session create failed")
			return s.fail(id, msgInternalFailure())
		}
		if err := s.sessions.MergeData(id, domain.DataPatch{
			IdentityNumber: &idRes.Value,
			InitialMessage: &turn.Text,
		}); err != nil {
			return s.sessionLost(log, id)
		}
		return &Result{Message: msgAskBirthDate(), RequiresInput: true}, "prompt"

	default:
		if _, err := s.sessions.Create(id, s.Name(), domain.StatusWaitingIdentity); err != nil {
			log.Error().Err(err).Msg("session create failed")
			return s.fail(id, msgInternalFailure())
		}
		patch := domain.DataPatch{InitialMessage: &turn.Text}
		if bdRes.Extracted {
			patch.BirthDate = &bdRes.Value
		}
		if err := s.sessions.MergeData(id, patch); err != nil {
			return s.sessionLost(log, id)
		}
		return &Result{Message: msgAskIdentity(), RequiresInput: true}, "prompt"
	}
}

// collect handles the identity-collection states. Both missing fields are
// attempted on every turn; only the awaited field's retry budget is charged
// on a miss, and a success on the other field never resets it.
func (s *AppointmentSkill) collect(ctx context.Context, log *logging.Logger, turn Turn, sess *domain.Session, field string) (*Result, string) {
	id := turn.ConversationID
	voice := turn.Channel.VoiceTranscribed()

	patch := domain.DataPatch{}
	var idRes, bdRes extract.Result
	if sess.Data.IdentityNumber == "" {
		res, err := s.extractIdentity(ctx, turn.Text, voice)
		if err != nil {
			log.Error().Err(err).Msg("identity extraction failed")
			return s.fail(id, msgInternalFailure())
		}
		idRes = res
		if idRes.Extracted {
			patch.IdentityNumber = &idRes.Value
		}
	}
	if sess.Data.BirthDate == "" {
		res, err := s.extractBirthDate(ctx, turn.Text, voice)
		if err != nil {
			log.Error().Err(err).Msg("birth date extraction failed")
			return s.fail(id, msgInternalFailure())
		}
		bdRes = res
		if bdRes.Extracted {
			patch.BirthDate = &bdRes.Value
		}
	}

	awaited := idRes.Extracted
	if field == domain.FieldBirthDate {
		awaited = bdRes.Extracted
	}

	if !awaited {
		metrics.ExtractionFailed(field)
		updated, err := s.sessions.Update(id, func(ss *domain.Session) {
			ss.Data.Apply(patch)
			ss.IncrementRetry(field)
		})
		if err != nil {
			return s.sessionLost(log, id)
		}
		if updated.RetryCount(field) >= updated.MaxRetries {
			log.Warn().Str("field", field).Int("attempts", updated.RetryCount(field)).Msg("retry budget exhausted")
			_ = s.sessions.Clear(id)
			return &Result{Message: msgRetriesExhausted(field), Complete: true}, "failed"
		}
		return &Result{Message: msgRetryField(field), RequiresInput: true}, "prompt"
	}

	updated, err := s.sessions.Update(id, func(ss *domain.Session) {
		ss.Data.Apply(patch)
		switch {
		case ss.Data.IdentityNumber == "":
			ss.Status = domain.StatusWaitingIdentity
		case ss.Data.BirthDate == "":
			ss.Status = domain.StatusWaitingBirthDate
		}
	})
	if err != nil {
		return s.sessionLost(log, id)
	}

	d := updated.Data
	if d.IdentityNumber != "" && d.BirthDate != "" {
		ident := domain.Identity{IdentityNumber: d.IdentityNumber, BirthDate: d.BirthDate}
		return s.fetchAndList(ctx, log, id, ident, d.InitialMessage)
	}
	if updated.Status == domain.StatusWaitingIdentity {
		return &Result{Message: msgAskIdentity(), RequiresInput: true}, "prompt"
	}
	return &Result{Message: msgAskBirthDate(), RequiresInput: true}, "prompt"
}

// fetchAndList resolves the schedule upstream, populates both caches, and
// presents the listing. The fetch and the initial-intent detection are
// independent reads and run concurrently.
func (s *AppointmentSkill) fetchAndList(ctx context.Context, log *logging.Logger, id string, ident domain.Identity, initialMsg string) (*Result, string) {
	var (
		sched  *upstream.Schedule
		intent InitialIntent
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		fctx, cancel := context.WithTimeout(gctx, s.upstreamTimeout)
		defer cancel()
		start := time.Now()
		var err error
		sched, err = s.source.Fetch(fctx, ident.IdentityNumber, ident.BirthDate)
		metrics.UpstreamFetch(time.Since(start))
		return err
	})
	if initialMsg != "" {
		g.Go(func() error {
			intent = s.detectIntent(gctx, log, initialMsg)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		var fe *upstream.FetchError
		if errors.As(err, &fe) {
			log.Error().Int("status", fe.Status).Err(err).Msg("upstream fetch failed")
		} else {
			log.Error().Err(err).Msg("upstream fetch failed")
		}
		return s.fail(id, msgUpstreamFailure())
	}

	if sched.PatientCode != "" {
		ident.PatientCode = sched.PatientCode
	}
	if sched.PatientName != "" {
		ident.PatientName = sched.PatientName
	}
	s.cache.CacheIdentity(id, ident)

	// An empty schedule is never cached: a warm-cache turn would otherwise
	// land in action selection with nothing to act on.
	if len(sched.Appointments) == 0 {
		_ = s.sessions.Clear(id)
		return &Result{Message: msgNoAppointments(ident.PatientName), Complete: true}, "complete"
	}
	s.cache.CacheResults(id, sched.Appointments)

	return s.startAction(log, id, ident, sched.Appointments, intent)
}

// startAction (re)creates the session in the action-selection state with
// the snapshot pinned into collected data for the session's lifetime.
func (s *AppointmentSkill) startAction(log *logging.Logger, id string, ident domain.Identity, snap []domain.Appointment, intent InitialIntent) (*Result, string) {
	if _, err := s.sessions.Create(id, s.Name(), domain.StatusWaitingAction); err != nil {
		log.Error().Err(err).Msg("session create failed")
		return s.fail(id, msgInternalFailure())
	}
	patch := domain.DataPatch{
		IdentityNumber: &ident.IdentityNumber,
		BirthDate:      &ident.BirthDate,
		Appointments:   snap,
	}
	if ident.PatientCode != "" {
		patch.PatientCode = &ident.PatientCode
	}
	if ident.PatientName != "" {
		patch.PatientName = &ident.PatientName
	}
	if err := s.sessions.MergeData(id, patch); err != nil {
		return s.sessionLost(log, id)
	}

	return &Result{
		Message:       msgListing(ident.PatientName, snap, intent),
		RequiresInput: true,
		Results:       snap,
		Suggested:     suggestedListingActions(),
	}, "prompt"
}

// selectAction parses action commands against the pinned snapshot.
func (s *AppointmentSkill) selectAction(ctx context.Context, log *logging.Logger, turn Turn, sess *domain.Session) (*Result, string) {
	id := turn.ConversationID
	snap := sess.Data.Appointments

	actx, cancel := context.WithTimeout(ctx, s.nluTimeout)
	defer cancel()
	actions, err := s.classify.ParseActions(actx, turn.Text, snap)
	if err != nil {
		log.Error().Err(err).Msg("action parsing failed")
		return s.fail(id, msgInternalFailure())
	}

	switch len(actions) {
	case 0:
		return &Result{
			Message:       msgActionHelp(snap),
			RequiresInput: true,
			Suggested:     suggestedListingActions(),
		}, "prompt"

	case 1:
		action := actions[0]
		status := domain.StatusConfirmingCancel
		if action.Action == domain.ActionConfirm {
			status = domain.StatusConfirmingConfirm
		}
		if _, err := s.sessions.Update(id, func(ss *domain.Session) {
			ss.Status = status
			ss.Data.Apply(domain.DataPatch{ClearPending: true, PendingAction: &action})
		}); err != nil {
			return s.sessionLost(log, id)
		}
		return &Result{
			Message:       msgConfirmSingle(snap, action),
			RequiresInput: true,
			Suggested:     suggestedYesNo(),
		}, "prompt"

	default:
		if _, err := s.sessions.Update(id, func(ss *domain.Session) {
			ss.Status = domain.StatusConfirmingMultiple
			ss.Data.Apply(domain.DataPatch{ClearPending: true, PendingActions: actions})
		}); err != nil {
			return s.sessionLost(log, id)
		}
		return &Result{
			Message:       msgConfirmMultiple(snap, actions),
			RequiresInput: true,
			Suggested:     suggestedYesNo(),
		}, "prompt"
	}
}

// confirm gates the confirming states and executes on an explicit yes.
func (s *AppointmentSkill) confirm(ctx context.Context, log *logging.Logger, turn Turn, sess *domain.Session) (*Result, string) {
	id := turn.ConversationID

	cctx, cancel := context.WithTimeout(ctx, s.nluTimeout)
	defer cancel()
	decision, confidence, err := s.classify.ClassifyConfirmation(cctx, turn.Text)
	if err != nil {
		log.Error().Err(err).Msg("confirmation classification failed")
		return s.fail(id, msgInternalFailure())
	}

	if decision == ConfirmationUnclear || confidence < confirmationConfidenceMin {
		log.Debug().Str("decision", string(decision)).Float64("confidence", confidence).Msg("confirmation unclear, re-prompting")
		return &Result{Message: msgConfirmRetry(), RequiresInput: true, Suggested: suggestedYesNo()}, "prompt"
	}

	if decision == ConfirmationNo {
		if _, err := s.sessions.Update(id, func(ss *domain.Session) {
			ss.Status = domain.StatusWaitingAction
			ss.Data.Apply(domain.DataPatch{ClearPending: true})
		}); err != nil {
			return s.sessionLost(log, id)
		}
		return &Result{Message: msgDenied(), RequiresInput: true, Suggested: suggestedListingActions()}, "prompt"
	}

	pending := sess.Data.PendingActions
	if len(pending) == 0 && sess.Data.PendingAction != nil {
		pending = []domain.PendingAction{*sess.Data.PendingAction}
	}
	if len(pending) == 0 {
		log.Error().Msg("confirming state with no pending actions")
		return s.fail(id, msgInternalFailure())
	}

	results := s.executeActions(ctx, log, sess.Data.Appointments, pending)

	_ = s.sessions.Clear(id)
	// The snapshot no longer reflects upstream; identity stays cached.
	s.cache.ClearResults(id)

	return &Result{Message: msgExecutionSummary(results), Complete: true}, "complete"
}

// executeActions resolves indices back to snapshot entries and applies each
// one, collecting per-entry outcomes.
func (s *AppointmentSkill) executeActions(ctx context.Context, log *logging.Logger, snap []domain.Appointment, pending []domain.PendingAction) []executor.EntryResult {
	var results []executor.EntryResult
	for _, pa := range pending {
		for _, idx := range pa.Indices {
			if idx < 1 || idx > len(snap) {
				continue
			}
			appt := snap[idx-1]
			ectx, cancel := context.WithTimeout(ctx, s.upstreamTimeout)
			err := s.exec.Apply(ectx, pa.Action, appt)
			cancel()
			if err != nil {
				log.Error().Err(err).
					Str("action", string(pa.Action)).
					Str("appointment", appt.ID).
					Msg("action application failed")
			}
			results = append(results, executor.EntryResult{Action: pa.Action, Appointment: appt, Err: err})
		}
	}
	return results
}

// detectIntent runs initial-intent detection, degrading to no intent on
// failure: it only tailors the listing's call-to-action and is never worth
// terminating the conversation over.
func (s *AppointmentSkill) detectIntent(ctx context.Context, log *logging.Logger, message string) InitialIntent {
	ictx, cancel := context.WithTimeout(ctx, s.nluTimeout)
	defer cancel()
	intent, err := s.classify.DetectInitialIntent(ictx, message)
	if err != nil {
		log.Warn().Err(err).Msg("initial intent detection failed, assuming none")
		return InitialIntent{}
	}
	return intent
}

func (s *AppointmentSkill) extractIdentity(ctx context.Context, text string, voice bool) (extract.Result, error) {
	ectx, cancel := context.WithTimeout(ctx, s.nluTimeout)
	defer cancel()
	return s.identity.Extract(ectx, text, voice)
}

func (s *AppointmentSkill) extractBirthDate(ctx context.Context, text string, voice bool) (extract.Result, error) {
	ectx, cancel := context.WithTimeout(ctx, s.nluTimeout)
	defer cancel()
	return s.birth.Extract(ectx, text, voice)
}

// fail clears the session and returns a terminal failure result.
func (s *AppointmentSkill) fail(id, msg string) (*Result, string) {
	_ = s.sessions.Clear(id)
	return &Result{Message: msg, Complete: true}, "failed"
}

// sessionLost handles a mutation hitting an absent session mid-turn.
func (s *AppointmentSkill) sessionLost(log *logging.Logger, id string) (*Result, string) {
	log.Error().Err(domain.ErrSessionNotFound).Msg("active session vanished mid-turn")
	_ = s.sessions.Clear(id)
	return &Result{Message: msgInternalFailure(), Complete: true}, "failed"
}
