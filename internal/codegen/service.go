package codegen

import (
	"context"
	"fmt"

	"github.com/dotcommander/actionlib/internal/actions"
	apperrors "github.com/dotcommander/actionlib/pkg/actionlib/errors"
)

// Credentials supplies a usable IAM token and the prompt to generate under
type Credentials interface {
	ValidToken(ctx context.Context) (string, error)
	SystemPrompt() string
}

// Library reads and edits stored actions
type Library interface {
	Get(id string) (actions.Action, bool)
	Update(ctx context.Context, id string, f actions.Fields) (actions.Action, error)
}

// Service generates code for stored actions and records the result on them
type Service struct {
	generator   *Generator
	credentials Credentials
	library     Library
}

func NewService(generator *Generator, credentials Credentials, library Library) *Service {
	return &Service{
		generator:   generator,
		credentials: credentials,
		library:     library,
	}
}

// GenerateForAction generates code from the action's code and stores it as
// the action's generated code. The action is left unchanged on failure.
func (s *Service) GenerateForAction(ctx context.Context, id string) (actions.Action, error) {
	action, ok := s.library.Get(id)
	if !ok {
		return actions.Action{}, fmt.Errorf("%w: %s", apperrors.ErrActionNotFound, id)
	}

	token, err := s.credentials.ValidToken(ctx)
	if err != nil {
		return actions.Action{}, fmt.Errorf("obtaining IAM token: %w", err)
	}

	code, err := s.generator.Generate(ctx, action.Code, s.credentials.SystemPrompt(), token)
	if err != nil {
		return actions.Action{}, err
	}

	return s.library.Update(ctx, id, actions.Fields{GeneratedCode: &code})
}
