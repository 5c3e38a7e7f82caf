// Package engagement keeps personal goals and completed tasks next to the
// attendance ledger. Both are append-only per person.
package engagement

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"edutrack/internal/identity"
	"edutrack/internal/store"
)

var ErrInvalid = errors.New("invalid engagement input")

const (
	goalPrefix = "goal/"
	taskPrefix = "task/"
	dateLayout = "2006-01-02"
)

// Goal is a personal target a person sets for themselves.
type Goal struct {
	ID          string    `json:"id"`
	PersonID    string    `json:"person_id"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	TargetDate  string    `json:"target_date,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// TaskCompletion records that a person finished a task.
type TaskCompletion struct {
	ID          string    `json:"id"`
	PersonID    string    `json:"person_id"`
	TaskID      string    `json:"task_id"`
	Title       string    `json:"title,omitempty"`
	CompletedAt time.Time `json:"completed_at"`
}

// Repository stores goals and completions under
// "<kind>/<person>/<unix nanos>-<id>" so a prefix scan lists one person's
// items oldest first.
type Repository struct {
	kv store.KV
}

func NewRepository(kv store.KV) *Repository {
	return &Repository{kv: kv}
}

func (r *Repository) AddGoal(ctx context.Context, g Goal) error {
	return r.put(ctx, goalPrefix, g.PersonID, g.CreatedAt, g.ID, g)
}

func (r *Repository) AddTask(ctx context.Context, t TaskCompletion) error {
	return r.put(ctx, taskPrefix, t.PersonID, t.CompletedAt, t.ID, t)
}

func (r *Repository) Goals(ctx context.Context, personID string) ([]Goal, error) {
	out := []Goal{}
	err := r.scan(ctx, goalPrefix, personID, func(raw []byte) error {
		var g Goal
		if err := json.Unmarshal(raw, &g); err != nil {
			return err
		}
		out = append(out, g)
		return nil
	})
	return out, err
}

func (r *Repository) Tasks(ctx context.Context, personID string) ([]TaskCompletion, error) {
	out := []TaskCompletion{}
	err := r.scan(ctx, taskPrefix, personID, func(raw []byte) error {
		var t TaskCompletion
		if err := json.Unmarshal(raw, &t); err != nil {
			return err
		}
		out = append(out, t)
		return nil
	})
	return out, err
}

func (r *Repository) put(ctx context.Context, kind, personID string, ts time.Time, id string, v interface{}) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return err
	}
	key := fmt.Sprintf("%s%s/%020d-%s", kind, url.PathEscape(personID), ts.UnixNano(), url.PathEscape(id))
	if err := r.kv.Put(ctx, key, payload); err != nil {
		return fmt.Errorf("put %s: %w", key, err)
	}
	return nil
}

func (r *Repository) scan(ctx context.Context, kind, personID string, fn func([]byte) error) error {
	prefix := kind + url.PathEscape(personID) + "/"
	pairs, err := r.kv.Scan(ctx, prefix)
	if err != nil {
		return fmt.Errorf("scan %s: %w", prefix, err)
	}
	for _, p := range pairs {
		if err := fn(p.Value); err != nil {
			return fmt.Errorf("decode %s: %w", p.Key, err)
		}
	}
	return nil
}

// GoalInput is what a person submits for a new goal.
type GoalInput struct {
	Title       string
	Description string
	TargetDate  string
}

// TaskInput is what a person submits when finishing a task.
type TaskInput struct {
	TaskID string
	Title  string
}

// Service guards the repository. Anyone signed in writes for themselves;
// reading another person's items takes the history capability.
type Service struct {
	repo *Repository
	log  zerolog.Logger
}

func NewService(repo *Repository, log zerolog.Logger) *Service {
	return &Service{repo: repo, log: log.With().Str("component", "engagement").Logger()}
}

func (s *Service) CreateGoal(ctx context.Context, actor identity.Person, in GoalInput, now time.Time) (Goal, error) {
	if err := identity.Authenticate(actor); err != nil {
		return Goal{}, err
	}
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return Goal{}, fmt.Errorf("%w: title required", ErrInvalid)
	}
	if in.TargetDate != "" {
		if _, err := time.Parse(dateLayout, in.TargetDate); err != nil {
			return Goal{}, fmt.Errorf("%w: target_date must be YYYY-MM-DD", ErrInvalid)
		}
	}
	g := Goal{
		ID:          uuid.NewString(),
		PersonID:    actor.ID,
		Title:       title,
		Description: strings.TrimSpace(in.Description),
		TargetDate:  in.TargetDate,
		CreatedAt:   now.UTC(),
	}
	if err := s.repo.AddGoal(ctx, g); err != nil {
		return Goal{}, err
	}
	s.log.Info().Str("person_id", g.PersonID).Str("goal_id", g.ID).Msg("goal created")
	return g, nil
}

func (s *Service) Goals(ctx context.Context, actor identity.Person, personID string) ([]Goal, error) {
	if err := identity.Authorize(actor, identity.CapViewHistory, personID); err != nil {
		return nil, err
	}
	return s.repo.Goals(ctx, personID)
}

func (s *Service) CompleteTask(ctx context.Context, actor identity.Person, in TaskInput, now time.Time) (TaskCompletion, error) {
	if err := identity.Authenticate(actor); err != nil {
		return TaskCompletion{}, err
	}
	taskID := strings.TrimSpace(in.TaskID)
	if taskID == "" {
		return TaskCompletion{}, fmt.Errorf("%w: task_id required", ErrInvalid)
	}
	t := TaskCompletion{
		ID:          uuid.NewString(),
		PersonID:    actor.ID,
		TaskID:      taskID,
		Title:       strings.TrimSpace(in.Title),
		CompletedAt: now.UTC(),
	}
	if err := s.repo.AddTask(ctx, t); err != nil {
		return TaskCompletion{}, err
	}
	s.log.Info().Str("person_id", t.PersonID).Str("task_id", t.TaskID).Msg("task completed")
	return t, nil
}

func (s *Service) Tasks(ctx context.Context, actor identity.Person, personID string) ([]TaskCompletion, error) {
	if err := identity.Authorize(actor, identity.CapViewHistory, personID); err != nil {
		return nil, err
	}
	return s.repo.Tasks(ctx, personID)
}
