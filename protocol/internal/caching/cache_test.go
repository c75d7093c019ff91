package caching

import (
	"testing"
	"time"

	"github.com/edgerpc/mqttrpc/protocol/mqtt"
	"github.com/stretchr/testify/require"
)

type fixedClock time.Time

func (c *fixedClock) Now() time.Time     { return time.Time(*c) }
func (c *fixedClock) Add(d time.Duration) { *c = fixedClock(time.Time(*c).Add(d)) }

func message(correlation byte, payload string, expiry time.Duration) *mqtt.Message {
	return &mqtt.Message{
		Payload: []byte(payload),
		PublishOptions: mqtt.PublishOptions{
			CorrelationData: []byte{correlation},
			MessageExpiry:   uint32(expiry.Seconds()),
		},
	}
}

func TestDuplicateRequestWaitsForInFlightBuild(t *testing.T) {
	clock := fixedClock(time.Now())
	c := New(&clock, time.Minute)

	req := message(1, "req", time.Minute)
	res := message(1, "res", time.Minute)

	lock := make(chan struct{})
	go func() {
		_, _ = c.Exec(req, func() (*mqtt.Message, error) {
			lock <- struct{}{}
			<-lock
			return res, nil
		})
		lock <- struct{}{}
	}()
	<-lock

	// A duplicate request arriving while the build is in flight must wait for
	// that build and receive its response, not re-invoke the handler.
	called := false
	type result struct {
		msg *mqtt.Message
		err error
	}
	dup := make(chan result, 1)
	go func() {
		msg, err := c.Exec(req, func() (*mqtt.Message, error) {
			called = true
			return nil, nil
		})
		dup <- result{msg, err}
	}()

	time.Sleep(10 * time.Millisecond)
	lock <- struct{}{}
	<-lock

	got := <-dup
	require.False(t, called)
	require.NoError(t, got.err)
	require.Equal(t, "res", string(got.msg.Payload))

	// Once the build completes, the same correlation id is served from cache.
	called = false
	msg, err := c.Exec(req, func() (*mqtt.Message, error) {
		called = true
		return nil, nil
	})
	require.False(t, called)
	require.NoError(t, err)
	require.Equal(t, "res", string(msg.Payload))
}

func TestDistinctCorrelationIDsAlwaysInvokeHandler(t *testing.T) {
	clock := fixedClock(time.Now())
	c := New(&clock, time.Minute)

	req1 := message(1, "same-payload", time.Minute)
	req2 := message(2, "same-payload", time.Minute)

	calls := 0
	build := func() (*mqtt.Message, error) {
		calls++
		return message(0, "res", time.Minute), nil
	}

	_, err := c.Exec(req1, build)
	require.NoError(t, err)
	_, err = c.Exec(req2, build)
	require.NoError(t, err)

	require.Equal(t, 2, calls, "identical payloads under different correlation ids must not be coalesced")
}

func TestExpiredRequestIsDroppedSilently(t *testing.T) {
	clock := fixedClock(time.Now())
	c := New(&clock, time.Minute)

	req := message(1, "req", time.Second)

	called := false
	_, err := c.Exec(req, func() (*mqtt.Message, error) {
		called = true
		return message(1, "res", time.Minute), nil
	})
	require.True(t, called)
	require.NoError(t, err)

	clock.Add(2 * time.Second)

	called = false
	msg, err := c.Exec(req, func() (*mqtt.Message, error) {
		called = true
		return nil, nil
	})
	require.False(t, called)
	require.Nil(t, msg)
	require.NoError(t, err)
}

func TestCacheEntryExpiresAfterTTL(t *testing.T) {
	clock := fixedClock(time.Now())
	c := New(&clock, time.Second)

	req := message(1, "req", time.Second)

	_, err := c.Exec(req, func() (*mqtt.Message, error) {
		return message(1, "res", time.Minute), nil
	})
	require.NoError(t, err)

	clock.Add(2 * time.Second)
	c.trim(clock.Now())

	called := false
	_, err = c.Exec(req, func() (*mqtt.Message, error) {
		called = true
		return message(1, "res2", time.Minute), nil
	})
	require.NoError(t, err)
	require.True(t, called, "entry past its cache TTL must be rebuilt")
}
