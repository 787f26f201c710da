package e2e

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/gookit/color"
	"github.com/stretchr/testify/suite"

	"wordins/internal"
	"wordins/services"
)

type BaseEngineSuite struct {
	suite.Suite
	Config Config
	Engine *services.Engine
}

// SetupSuite loads the environment configuration before running tests
func (s *BaseEngineSuite) SetupSuite() {
	var err error
	s.Config, err = LoadConfig()
	s.Require().NoError(err)
}

// SetupTest boots a fresh engine on an empty store so scenarios never see
// each other's rooms.
func (s *BaseEngineSuite) SetupTest() {
	dir := s.Config.BadgerDir
	if dir == "" {
		dir = s.T().TempDir()
	}
	staleness, err := time.ParseDuration(s.Config.TypingStaleness)
	s.Require().NoError(err)

	cfg := internal.Config{
		BadgerFilepath:     dir,
		ConfirmAttempts:    5,
		ConfirmInterval:    10 * time.Millisecond,
		TypingStaleness:    staleness,
		OrderedCollections: "messages",
		GCInterval:         time.Minute,
	}
	s.Engine, err = services.NewEngine(cfg, slog.New(slog.DiscardHandler))
	s.Require().NoError(err)
	s.Engine.Start(context.Background())
}

func (s *BaseEngineSuite) TearDownTest() {
	if s.Engine != nil {
		s.Engine.Stop()
	}
}

// Step prints a colorized banner and runs fn with a bounded context.
func (s *BaseEngineSuite) Step(name string, fn func(ctx context.Context)) {
	header := fmt.Sprintf("  ====== %s ======", name)
	if s.Config.Colours {
		header = color.New(color.BgBlack, color.FgGreen).Render(header)
	}
	s.T().Log(header)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	fn(ctx)
}

// NextUpdate pulls one value from a subscription channel or fails the test.
func NextUpdate[T any](s *BaseEngineSuite, ch <-chan T, what string) T {
	select {
	case v, ok := <-ch:
		if !ok {
			s.FailNowf("subscription closed", "while waiting for %s", what)
		}
		return v
	case <-time.After(5 * time.Second):
		var zero T
		s.FailNowf("timeout", "waiting for %s", what)
		return zero
	}
}

// AwaitUpdate drains a subscription channel until pred holds. Updates
// coalesce, so intermediate states may never be observed.
func AwaitUpdate[T any](s *BaseEngineSuite, ch <-chan T, pred func(T) bool, what string) T {
	deadline := time.After(5 * time.Second)
	for {
		select {
		case v, ok := <-ch:
			if !ok {
				s.FailNowf("subscription closed", "while waiting for %s", what)
			}
			if pred(v) {
				return v
			}
		case <-deadline:
			var zero T
			s.FailNowf("timeout", "waiting for %s", what)
			return zero
		}
	}
}
