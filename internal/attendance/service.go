package attendance

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"edutrack/internal/code"
	"edutrack/internal/identity"
	"edutrack/internal/metrics"
	"edutrack/internal/session"
	"edutrack/internal/timetable"
)

// DefaultLateGrace is how long after start a self-mark still counts as present.
const DefaultLateGrace = 10 * time.Minute

var (
	// ErrInvalidSession means nothing can be marked for the request right now.
	ErrInvalidSession = errors.New("no live session to mark")
	ErrNotEnrolled    = errors.New("person is not enrolled in session")
	ErrInvalidStatus  = errors.New("invalid attendance status")
)

// Service validates marks against the resolved session and the issued code
// before they reach the ledger.
type Service struct {
	repo      *Repository
	tt        *timetable.Timetable
	resolver  session.Resolver
	codes     *code.Issuer
	lateGrace time.Duration
	log       zerolog.Logger
}

// NewService wires the ledger with its collaborators.
func NewService(repo *Repository, tt *timetable.Timetable, resolver session.Resolver, codes *code.Issuer, lateGrace time.Duration, log zerolog.Logger) *Service {
	if lateGrace < 0 {
		lateGrace = DefaultLateGrace
	}
	return &Service{
		repo:      repo,
		tt:        tt,
		resolver:  resolver,
		codes:     codes,
		lateGrace: lateGrace,
		log:       log.With().Str("component", "attendance").Logger(),
	}
}

// Repository exposes the underlying ledger for read paths.
func (s *Service) Repository() *Repository { return s.repo }

// MarkSelf records the actor in their live session. sessionID is optional;
// when given it must name the session the resolver picks.
func (s *Service) MarkSelf(ctx context.Context, actor identity.Person, sessionID, submitted string, now time.Time) (Entry, error) {
	if err := identity.Authorize(actor, identity.CapMarkSelf, ""); err != nil {
		return Entry{}, err
	}
	live, ok := s.resolver.Resolve(s.tt, actor.ID, now)
	switch {
	case !ok:
		return Entry{}, s.reject(actor, sessionID, "no_live_session", ErrInvalidSession)
	case sessionID != "" && sessionID != live.ID:
		return Entry{}, s.reject(actor, sessionID, "session_mismatch",
			fmt.Errorf("%w: live session is %s", ErrInvalidSession, live.ID))
	case !live.Slot.Instructional():
		return Entry{}, s.reject(actor, live.ID, "not_instructional",
			fmt.Errorf("%w: %s is a %s slot", ErrInvalidSession, live.ID, live.Slot.Kind))
	case !s.tt.IsEnrolled(live.Slot, actor.ID):
		return Entry{}, s.reject(actor, live.ID, "not_enrolled", ErrNotEnrolled)
	}
	if err := s.codes.Validate(ctx, live, submitted, now); err != nil {
		reason := code.Reason(err)
		if reason == "" {
			return Entry{}, err
		}
		return Entry{}, s.reject(actor, live.ID, "code_"+reason, err)
	}

	e, err := s.repo.Append(ctx, Entry{
		SessionID:  live.ID,
		PersonID:   actor.ID,
		Status:     s.StatusAt(live, now),
		Method:     MethodCode,
		Timestamp:  now,
		RecordedBy: actor.ID,
	})
	if err != nil {
		return Entry{}, err
	}
	metrics.Marks.WithLabelValues(string(e.Method), string(e.Status)).Inc()
	s.log.Info().Str("session_id", e.SessionID).Str("person_id", e.PersonID).Str("status", string(e.Status)).Msg("self mark recorded")
	return e, nil
}

// StatusAt is the status a self-mark at now earns: present up to and
// including start plus the grace period, late afterwards.
func (s *Service) StatusAt(sess session.Session, now time.Time) Status {
	if now.After(sess.Start.Add(s.lateGrace)) {
		return StatusLate
	}
	return StatusPresent
}

// Override lets the slot owner set any status for an enrolled person, on a
// live or past session.
func (s *Service) Override(ctx context.Context, actor identity.Person, sessionID, personID string, status Status, now time.Time) (Entry, error) {
	sess, err := session.Occurrence(s.tt, sessionID)
	if err != nil {
		return Entry{}, err
	}
	if err := identity.Authorize(actor, identity.CapOverride, sess.Slot.OwnerID); err != nil {
		return Entry{}, err
	}
	if !status.Valid() {
		return Entry{}, fmt.Errorf("%w: %q", ErrInvalidStatus, status)
	}
	if !sess.Slot.Instructional() {
		return Entry{}, fmt.Errorf("%w: %s is a %s slot", ErrInvalidSession, sess.ID, sess.Slot.Kind)
	}
	if !s.tt.IsEnrolled(sess.Slot, personID) {
		return Entry{}, fmt.Errorf("%w: %s in %s", ErrNotEnrolled, personID, sess.ID)
	}

	e, err := s.repo.Append(ctx, Entry{
		SessionID:  sess.ID,
		PersonID:   personID,
		Status:     status,
		Method:     MethodManual,
		Timestamp:  now,
		RecordedBy: actor.ID,
	})
	if err != nil {
		return Entry{}, err
	}
	metrics.Marks.WithLabelValues(string(e.Method), string(e.Status)).Inc()
	s.log.Info().Str("session_id", e.SessionID).Str("person_id", e.PersonID).Str("status", string(e.Status)).Str("recorded_by", actor.ID).Msg("manual override recorded")
	return e, nil
}

// History returns the audit trail of one person in one session.
func (s *Service) History(ctx context.Context, actor identity.Person, sessionID, personID string) ([]Entry, error) {
	sess, err := session.Occurrence(s.tt, sessionID)
	if err != nil {
		return nil, err
	}
	if err := identity.AuthorizeAny(actor, identity.CapViewHistory, personID, sess.Slot.OwnerID); err != nil {
		return nil, err
	}
	return s.repo.History(ctx, sess.ID, personID)
}

// Records returns a person's authoritative entries, newest first.
func (s *Service) Records(ctx context.Context, actor identity.Person, personID string) ([]Entry, error) {
	if err := identity.Authorize(actor, identity.CapViewHistory, personID); err != nil {
		return nil, err
	}
	return s.repo.ForPerson(ctx, personID)
}

// IssueCode rotates the session's code. Only the slot owner may do this.
func (s *Service) IssueCode(ctx context.Context, actor identity.Person, sessionID string, now time.Time) (code.Code, error) {
	sess, err := session.Occurrence(s.tt, sessionID)
	if err != nil {
		return code.Code{}, err
	}
	if err := identity.Authorize(actor, identity.CapIssueCode, sess.Slot.OwnerID); err != nil {
		return code.Code{}, err
	}
	if !sess.Slot.Instructional() {
		return code.Code{}, fmt.Errorf("%w: %s is a %s slot", ErrInvalidSession, sess.ID, sess.Slot.Kind)
	}
	c, err := s.codes.Issue(ctx, sess, now)
	if errors.Is(err, code.ErrSessionEnded) {
		return code.Code{}, fmt.Errorf("%w: %v", ErrInvalidSession, err)
	}
	return c, err
}

// CurrentCode returns the session's code for viewers holding view-code. A
// live session without a valid code gets one issued on the spot.
func (s *Service) CurrentCode(ctx context.Context, actor identity.Person, sessionID string, now time.Time) (code.Code, error) {
	sess, err := session.Occurrence(s.tt, sessionID)
	if err != nil {
		return code.Code{}, err
	}
	if err := identity.Authorize(actor, identity.CapViewCode, sess.Slot.OwnerID); err != nil {
		return code.Code{}, err
	}
	return s.SessionCode(ctx, sess, now)
}

// SessionCode returns the code for sess without an authorization check.
// Callers must authorize first.
func (s *Service) SessionCode(ctx context.Context, sess session.Session, now time.Time) (code.Code, error) {
	if !sess.Slot.Instructional() {
		return code.Code{}, fmt.Errorf("%w: %s is a %s slot", ErrInvalidSession, sess.ID, sess.Slot.Kind)
	}
	if s.resolver.Live(sess, now) && now.Before(sess.End) {
		return s.codes.Ensure(ctx, sess, now)
	}
	return s.codes.Current(ctx, sess)
}

func (s *Service) reject(actor identity.Person, sessionID, reason string, err error) error {
	metrics.RejectedMarks.WithLabelValues(reason).Inc()
	s.log.Debug().Str("person_id", actor.ID).Str("session_id", sessionID).Str("reason", reason).Msg("self mark rejected")
	return err
}
