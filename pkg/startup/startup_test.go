package startup

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func silentLogger() ectologger.Logger {
	return ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
}

func TestStartup_StartsDependenciesInOrder(t *testing.T) {
	var order []string
	record := func(name string) func(context.Context) error {
		return func(context.Context) error {
			order = append(order, name)
			return nil
		}
	}

	s := NewStartup(silentLogger(), 1)
	s.AddDependency(&Dependency{Name: "api", Requires: []string{"graph"}, OnStart: record("api"), OnStop: record("stop-api")})
	s.AddDependency(&Dependency{Name: "graph", OnStart: record("graph"), OnStop: record("stop-graph")})

	require.NoError(t, s.Start(context.Background()))
	assert.Equal(t, []string{"graph", "api"}, order)
	assert.Equal(t, StartupStatusStarted, s.Status("api"))

	order = nil
	require.NoError(t, s.Stop(context.Background()))
	assert.Equal(t, []string{"stop-api", "stop-graph"}, order)
	assert.Equal(t, StartupStatusStopped, s.Status("graph"))
}

func TestStartup_RetriesUntilSuccess(t *testing.T) {
	calls := 0
	s := NewStartup(silentLogger(), 5).WithBackoffUnit(time.Millisecond)
	s.AddDependency(&Dependency{Name: "graph", OnStart: func(context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("connection refused")
		}
		return nil
	}})

	require.NoError(t, s.Start(context.Background()))
	assert.Equal(t, 3, s.Attempts())
	assert.Equal(t, 3, calls)
}

func TestStartup_GivesUpAfterMaxAttempts(t *testing.T) {
	boom := errors.New("connection refused")
	s := NewStartup(silentLogger(), 2).WithBackoffUnit(time.Millisecond)
	s.AddDependency(&Dependency{Name: "graph", OnStart: func(context.Context) error { return boom }})

	err := s.Start(context.Background())
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 2, s.Attempts())
	assert.Equal(t, StartupStatusFailed, s.Status("graph"))
}

func TestStartup_UnknownDependency(t *testing.T) {
	s := NewStartup(silentLogger(), 1)
	s.AddDependency(&Dependency{Name: "api", Requires: []string{"missing"}})

	assert.Error(t, s.Start(context.Background()))
}

func TestStartup_StopsOnContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	s := NewStartup(silentLogger(), 10).WithBackoffUnit(time.Hour)
	s.AddDependency(&Dependency{Name: "graph", OnStart: func(context.Context) error {
		cancel()
		return errors.New("connection refused")
	}})

	assert.ErrorIs(t, s.Start(ctx), context.Canceled)
}
