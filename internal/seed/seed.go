// Package seed bootstraps tools, agent profiles, sessions and assignments
// from a YAML file. Applying the same file twice is a no-op.
package seed

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"

	"github.com/gosuda/chorus/internal/domain"
)

type File struct {
	Tools    []Tool    `yaml:"tools"`
	Agents   []Agent   `yaml:"agents"`
	Sessions []Session `yaml:"sessions"`
}

type Tool struct {
	Name        string         `yaml:"name"`
	Description string         `yaml:"description"`
	InputSchema map[string]any `yaml:"schema"`
}

type Agent struct {
	Name        string `yaml:"name"`
	Role        string `yaml:"role"`
	Description string `yaml:"description"`
	ModelHint   string `yaml:"model_hint"`
	Active      *bool  `yaml:"active"`
}

type Session struct {
	SessionID   string         `yaml:"session_id"`
	Title       string         `yaml:"title"`
	UserID      string         `yaml:"user_id"`
	Metadata    map[string]any `yaml:"metadata"`
	Assignments []Assignment   `yaml:"assignments"`
}

type Assignment struct {
	Agent          string   `yaml:"agent"`
	Order          int      `yaml:"order"`
	PromptOverride string   `yaml:"prompt_override"`
	Tools          []string `yaml:"tools"`
}

// Store is the subset of a store the seeder writes to.
type Store interface {
	Sessions() domain.SessionRepository
	Agents() domain.AgentRepository
	Tools() domain.ToolRepository
	Assignments() domain.AssignmentRepository
}

// Result counts the records created by Apply.
type Result struct {
	Tools       int
	Agents      int
	Sessions    int
	Assignments int
}

func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("seed.Load: %w", err)
	}
	f, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("seed.Load(%q): %w", path, err)
	}
	return f, nil
}

func Parse(data []byte) (*File, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("seed.Parse: %w", err)
	}
	if err := f.validate(); err != nil {
		return nil, fmt.Errorf("seed.Parse: %w", err)
	}
	return &f, nil
}

func (f *File) validate() error {
	agents := make(map[string]bool, len(f.Agents))
	for _, a := range f.Agents {
		if a.Name == "" {
			return errors.New("agent without name")
		}
		agents[a.Name] = true
	}
	tools := make(map[string]bool, len(f.Tools))
	for _, t := range f.Tools {
		if t.Name == "" {
			return errors.New("tool without name")
		}
		tools[t.Name] = true
	}
	for _, s := range f.Sessions {
		if s.SessionID == "" {
			return errors.New("session without session_id")
		}
		for _, a := range s.Assignments {
			if !agents[a.Agent] {
				return fmt.Errorf("session %q: unknown agent %q", s.SessionID, a.Agent)
			}
			for _, t := range a.Tools {
				if !tools[t] {
					return fmt.Errorf("session %q: unknown tool %q", s.SessionID, t)
				}
			}
		}
	}
	return nil
}

// Apply creates every record in f that does not exist yet.
func Apply(ctx context.Context, store Store, f *File) (Result, error) {
	var res Result

	toolIDs := make(map[string]int64, len(f.Tools))
	for _, t := range f.Tools {
		def := &domain.ToolDefinition{
			Name:        t.Name,
			Description: t.Description,
			InputSchema: t.InputSchema,
			IsActive:    true,
			CreatedAt:   time.Now().UTC(),
		}
		created, err := ensure(func() error { return store.Tools().Create(ctx, def) })
		if err != nil {
			return res, fmt.Errorf("seed.Apply: tool %q: %w", t.Name, err)
		}
		if !created {
			if def, err = store.Tools().GetByName(ctx, t.Name); err != nil {
				return res, fmt.Errorf("seed.Apply: tool %q: %w", t.Name, err)
			}
		} else {
			res.Tools++
		}
		toolIDs[t.Name] = def.ID
	}

	agents := make(map[string]*domain.AgentProfile, len(f.Agents))
	for _, a := range f.Agents {
		profile, err := domain.NewAgentProfile(a.Name, a.Role, a.Description, a.ModelHint)
		if err != nil {
			return res, fmt.Errorf("seed.Apply: agent %q: %w", a.Name, err)
		}
		if a.Active != nil {
			profile.IsActive = *a.Active
		}
		created, err := ensure(func() error { return store.Agents().Create(ctx, profile) })
		if err != nil {
			return res, fmt.Errorf("seed.Apply: agent %q: %w", a.Name, err)
		}
		if !created {
			if profile, err = store.Agents().GetByName(ctx, a.Name); err != nil {
				return res, fmt.Errorf("seed.Apply: agent %q: %w", a.Name, err)
			}
		} else {
			res.Agents++
		}
		agents[a.Name] = profile
	}

	for _, s := range f.Sessions {
		sess, err := domain.NewSession(s.SessionID, s.Title, s.UserID, s.Metadata)
		if err != nil {
			return res, fmt.Errorf("seed.Apply: session %q: %w", s.SessionID, err)
		}
		created, err := ensure(func() error { return store.Sessions().Create(ctx, sess) })
		if err != nil {
			return res, fmt.Errorf("seed.Apply: session %q: %w", s.SessionID, err)
		}
		if !created {
			if sess, err = store.Sessions().GetBySessionID(ctx, s.SessionID); err != nil {
				return res, fmt.Errorf("seed.Apply: session %q: %w", s.SessionID, err)
			}
		} else {
			res.Sessions++
		}

		for _, a := range s.Assignments {
			ids := make([]int64, 0, len(a.Tools))
			for _, name := range a.Tools {
				ids = append(ids, toolIDs[name])
			}
			assignment := &domain.AgentAssignment{
				SessionPK:      sess.ID,
				Agent:          agents[a.Agent],
				Order:          a.Order,
				PromptOverride: a.PromptOverride,
				CreatedAt:      time.Now().UTC(),
			}
			created, err = ensure(func() error { return store.Assignments().Create(ctx, assignment, ids) })
			if err != nil {
				return res, fmt.Errorf("seed.Apply: session %q agent %q: %w", s.SessionID, a.Agent, err)
			}
			if created {
				res.Assignments++
			}
		}
	}

	log.Info().
		Int("tools", res.Tools).
		Int("agents", res.Agents).
		Int("sessions", res.Sessions).
		Int("assignments", res.Assignments).
		Msg("seed: applied")

	return res, nil
}

// ensure runs create and reports false when the record already exists.
func ensure(create func() error) (bool, error) {
	err := create()
	if errors.Is(err, domain.ErrConflict) {
		return false, nil
	}
	return err == nil, err
}
