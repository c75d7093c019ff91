package errutil_test

import (
	"context"
	stderr "errors"
	"testing"
	"time"

	"github.com/edgerpc/mqttrpc/internal/log"
	"github.com/edgerpc/mqttrpc/protocol/errors"
	"github.com/edgerpc/mqttrpc/protocol/internal/errutil"
	"github.com/stretchr/testify/require"
)

func TestNoReturnRoundTrip(t *testing.T) {
	base := stderr.New("boom")
	wrapped := errutil.NoReturn(base)

	marked, unwrapped := errutil.IsNoReturn(wrapped)
	require.True(t, marked)
	require.Equal(t, base, unwrapped)
}

func TestIsNoReturnPassesThroughUnmarked(t *testing.T) {
	base := stderr.New("boom")

	marked, unwrapped := errutil.IsNoReturn(base)
	require.False(t, marked)
	require.Equal(t, base, unwrapped)
}

func TestReturnStripsNoReturnMarker(t *testing.T) {
	base := &errors.Error{Message: "boom", Kind: errors.ExecutionError}
	wrapped := errutil.NoReturn(base)

	got := errutil.Return(wrapped, log.Wrap(nil), false)

	var protoErr *errors.Error
	require.ErrorAs(t, got, &protoErr)
	require.Same(t, base, protoErr)
}

func TestReturnSetsShallowFlag(t *testing.T) {
	base := &errors.Error{Message: "boom", Kind: errors.ExecutionError}

	got := errutil.Return(base, log.Wrap(nil), true)

	var protoErr *errors.Error
	require.ErrorAs(t, got, &protoErr)
	require.True(t, protoErr.IsShallow)
}

func TestReturnNil(t *testing.T) {
	require.NoError(t, errutil.Return(nil, log.Wrap(nil), false))
}

func TestValidateNonNilRejectsNil(t *testing.T) {
	err := errutil.ValidateNonNil(map[string]any{"handler": nil})
	require.Error(t, err)

	var protoErr *errors.Error
	require.ErrorAs(t, err, &protoErr)
	require.Equal(t, errors.ConfigurationInvalid, protoErr.Kind)
	require.Equal(t, "handler", protoErr.PropertyName)
}

func TestValidateNonNilAcceptsAllSet(t *testing.T) {
	require.NoError(t, errutil.ValidateNonNil(map[string]any{"handler": func() {}}))
}

func TestNewUUIDProducesDistinctValues(t *testing.T) {
	a, err := errutil.NewUUID()
	require.NoError(t, err)
	b, err := errutil.NewUUID()
	require.NoError(t, err)
	require.NotEmpty(t, a)
	require.NotEqual(t, a, b)
}

func TestContextDeadlineExceeded(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 0)
	defer cancel()
	<-ctx.Done()

	err := errutil.Context(ctx, "invoke")

	var protoErr *errors.Error
	require.ErrorAs(t, err, &protoErr)
	require.Equal(t, errors.Timeout, protoErr.Kind)
}

func TestContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := errutil.Context(ctx, "invoke")

	var protoErr *errors.Error
	require.ErrorAs(t, err, &protoErr)
	require.Equal(t, errors.Cancellation, protoErr.Kind)
}

func TestContextPreservesCauseProtocolError(t *testing.T) {
	cause := &errors.Error{Message: "state invalid", Kind: errors.StateInvalid}
	ctx, cancel := context.WithCancelCause(context.Background())
	cancel(cause)

	err := errutil.Context(ctx, "invoke")

	var protoErr *errors.Error
	require.ErrorAs(t, err, &protoErr)
	require.Same(t, cause, protoErr)
}

func TestMqttNilError(t *testing.T) {
	require.NoError(t, errutil.Mqtt(context.Background(), "publish", nil))
}

func TestMqttContextOverridesUnderlyingError(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 0)
	defer cancel()
	<-ctx.Done()

	err := errutil.Mqtt(ctx, "publish", stderr.New("connection reset"))

	var protoErr *errors.Error
	require.ErrorAs(t, err, &protoErr)
	require.Equal(t, errors.Timeout, protoErr.Kind)
}

func TestMqttPassesThroughProtocolError(t *testing.T) {
	original := &errors.Error{Message: "bad ack", Kind: errors.StateInvalid}

	err := errutil.Mqtt(context.Background(), "publish", original)

	var protoErr *errors.Error
	require.ErrorAs(t, err, &protoErr)
	require.Same(t, original, protoErr)
}

func TestMqttWrapsGenericError(t *testing.T) {
	base := stderr.New("broker unreachable")

	err := errutil.Mqtt(context.Background(), "publish", base)

	var protoErr *errors.Error
	require.ErrorAs(t, err, &protoErr)
	require.Equal(t, errors.MqttError, protoErr.Kind)
	require.ErrorIs(t, protoErr.NestedError, base)
}

func TestReturnDoesNotBlockOnTimeout(t *testing.T) {
	start := time.Now()
	_ = errutil.Return(&errors.Error{Kind: errors.Timeout}, log.Wrap(nil), false)
	require.Less(t, time.Since(start), time.Second)
}
