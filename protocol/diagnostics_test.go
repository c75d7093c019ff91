package protocol_test

import (
	"context"
	"testing"
	"time"

	"github.com/edgerpc/mqttrpc/protocol"
	"github.com/stretchr/testify/require"
)

func TestCommandExecutorSnapshotReportsCacheEntries(t *testing.T) {
	broker := newFakeBroker()
	app := newTestApp(t)

	execClient := newFakeClient(broker, "executor-1")
	invokerClient := newFakeClient(broker, "invoker-1")

	exec, err := protocol.NewCommandExecutor[lightRequest, lightResponse](
		app, execClient, protocol.JSON[lightRequest]{}, protocol.JSON[lightResponse]{},
		"svc/lights/request", echoHandler,
		protocol.WithIdempotent(true),
	)
	require.NoError(t, err)
	defer exec.Close()

	inv, err := protocol.NewCommandInvoker[lightRequest, lightResponse](
		app, invokerClient, protocol.JSON[lightRequest]{}, protocol.JSON[lightResponse]{},
		"svc/lights/request",
	)
	require.NoError(t, err)
	defer inv.Close()

	ctx := context.Background()
	require.NoError(t, exec.Start(ctx))
	require.NoError(t, inv.Start(ctx))

	before := exec.Snapshot()
	require.Zero(t, before.CacheEntries)
	require.True(t, before.Idempotent)

	_, err = inv.Invoke(ctx, lightRequest{State: "on"})
	require.NoError(t, err)

	after := exec.Snapshot()
	require.Equal(t, 1, after.CacheEntries)
	require.Zero(t, after.InFlight)
}

func TestCommandInvokerSnapshotReportsPendingInvocations(t *testing.T) {
	broker := newFakeBroker()
	app := newTestApp(t)
	invokerClient := newFakeClient(broker, "invoker-1")

	inv, err := protocol.NewCommandInvoker[lightRequest, lightResponse](
		app, invokerClient, protocol.JSON[lightRequest]{}, protocol.JSON[lightResponse]{},
		"svc/lights/request",
	)
	require.NoError(t, err)
	defer inv.Close()

	ctx := context.Background()
	require.NoError(t, inv.Start(ctx))

	idle := inv.Snapshot()
	require.Zero(t, idle.PendingCount)
	require.Nil(t, idle.OldestPending)

	// No executor is listening, so this invocation stays pending until it
	// times out; observe it mid-flight from another goroutine.
	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = inv.Invoke(ctx, lightRequest{State: "on"}, protocol.WithTimeout(200*time.Millisecond))
	}()

	require.Eventually(t, func() bool {
		return inv.Snapshot().PendingCount == 1
	}, time.Second, 5*time.Millisecond)

	<-done
	require.Zero(t, inv.Snapshot().PendingCount)
}
