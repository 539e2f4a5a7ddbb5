package automation

import (
	"context"
	"log/slog"

	"greenroom/internal/middleware"
)

// LogActor is the built-in actor used when no browser-automation backend is
// wired in: every operation is logged and reported as successful. Deployments
// that drive a real dashboard replace it with their own Actor.
type LogActor struct {
	opened bool
}

// NewLogActor creates a LogActor.
func NewLogActor() *LogActor {
	return &LogActor{}
}

func (a *LogActor) Open(_ context.Context) error {
	a.opened = true
	middleware.Logger.Info("log actor session opened")
	return nil
}

func (a *LogActor) AddUser(_ context.Context, fullName, email string) Outcome {
	middleware.Logger.Info("log actor: add user",
		slog.String("email", email), slog.String("full_name", fullName))
	return Outcome{Success: true}
}

func (a *LogActor) RemoveUser(_ context.Context, email string) Outcome {
	middleware.Logger.Info("log actor: remove user", slog.String("email", email))
	return Outcome{Success: true}
}

func (a *LogActor) Close(_ context.Context) error {
	if !a.opened {
		return nil
	}
	a.opened = false
	middleware.Logger.Info("log actor session closed")
	return nil
}
