package browser

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fakeStrategy(name Strategy, err error, calls *[]Strategy) NamedStrategy {
	return NamedStrategy{
		Name: name,
		Acquire: func(ctx context.Context, opts Options) (*Handle, error) {
			*calls = append(*calls, name)
			if err != nil {
				return nil, err
			}
			return newHandle(name, context.Background()), nil
		},
	}
}

func TestAcquireFallsThroughOnInitFailures(t *testing.T) {
	var calls []Strategy
	initErr := errors.New("chrome failed to start: exit status 1")

	a := NewWithStrategies(Options{}, []NamedStrategy{
		fakeStrategy(StrategyRemoteCDP, initErr, &calls),
		fakeStrategy(StrategyExecManaged, initErr, &calls),
		fakeStrategy(StrategyExecScoped, nil, &calls),
		fakeStrategy(StrategyDriverManaged, nil, &calls),
	})

	handle, err := a.Acquire(context.Background())
	require.NoError(t, err)
	defer handle.Release()

	assert.Equal(t, string(StrategyExecScoped), handle.Strategy())
	assert.Equal(t, []Strategy{StrategyRemoteCDP, StrategyExecManaged, StrategyExecScoped}, calls,
		"later strategies must not run once one succeeds")
}

func TestAcquirePropagatesUnrecognizedErrorsImmediately(t *testing.T) {
	var calls []Strategy
	weird := errors.New("disk quota exceeded")

	a := NewWithStrategies(Options{}, []NamedStrategy{
		fakeStrategy(StrategyExecManaged, weird, &calls),
		fakeStrategy(StrategyExecScoped, nil, &calls),
	})

	_, err := a.Acquire(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, weird)

	var acqErr *AcquisitionError
	assert.False(t, errors.As(err, &acqErr), "unrecognized failure is not an exhaustion")
	assert.Equal(t, []Strategy{StrategyExecManaged}, calls)
}

func TestAcquireExhaustionReportsEveryAttempt(t *testing.T) {
	var calls []Strategy
	initErr := errors.New("websocket url timeout reached")

	a := NewWithStrategies(Options{}, []NamedStrategy{
		fakeStrategy(StrategyExecManaged, initErr, &calls),
		fakeStrategy(StrategyExecScoped, initErr, &calls),
		fakeStrategy(StrategyDriverManaged, initErr, &calls),
	})

	_, err := a.Acquire(context.Background())
	var acqErr *AcquisitionError
	require.ErrorAs(t, err, &acqErr)
	require.Len(t, acqErr.Attempts, 3)
	assert.Equal(t, StrategyExecManaged, acqErr.Attempts[0].Strategy)
	assert.Equal(t, StrategyDriverManaged, acqErr.Attempts[2].Strategy)
	assert.Contains(t, err.Error(), "exec_scoped")
}

func TestAcquireHonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var calls []Strategy
	a := NewWithStrategies(Options{}, []NamedStrategy{
		fakeStrategy(StrategyExecManaged, nil, &calls),
	})

	_, err := a.Acquire(ctx)
	require.Error(t, err)
	assert.Empty(t, calls)
}

func TestReleaseIsIdempotent(t *testing.T) {
	cancels := 0
	h := newHandle(StrategyExecScoped, context.Background(), func() { cancels++ })

	h.Release()
	h.Release()
	assert.Equal(t, 1, cancels)

	// nil handle release must not panic, acquisition may have failed
	var nilHandle *Handle
	nilHandle.Release()
}

func TestIsInitFailureClassification(t *testing.T) {
	assert.True(t, IsInitFailure(errors.New(`exec: "google-chrome": executable file not found in $PATH`)))
	assert.True(t, IsInitFailure(errors.New("websocket url timeout reached")))
	assert.True(t, IsInitFailure(errors.New("dial tcp 127.0.0.1:9222: connection refused")))
	assert.False(t, IsInitFailure(errors.New("disk quota exceeded")))
	assert.False(t, IsInitFailure(context.Canceled))
	assert.False(t, IsInitFailure(nil))
}

func TestDefaultStrategiesOrder(t *testing.T) {
	withRemote := defaultStrategies(Options{CDPURL: "ws://127.0.0.1:9222"})
	require.Len(t, withRemote, 4)
	assert.Equal(t, StrategyRemoteCDP, withRemote[0].Name)

	local := defaultStrategies(Options{})
	require.Len(t, local, 3)
	assert.Equal(t, StrategyExecManaged, local[0].Name)
	assert.Equal(t, StrategyDriverManaged, local[2].Name)
}

func TestHandleRunTimesOut(t *testing.T) {
	h := newHandle(StrategyExecScoped, context.Background())
	defer h.Release()

	err := h.Run(context.Background(), 10*time.Millisecond, func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
