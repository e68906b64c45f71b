package queue

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

// refusedBrokerURL returns an amqp URL whose port has nothing listening.
func refusedBrokerURL(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())
	return "amqp://guest:guest@" + addr + "/"
}

func TestStartRecruitmentConsumer_StopsWhenContextEndsDuringBackoff(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	url, dir := refusedBrokerURL(t), t.TempDir()
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- StartRecruitmentConsumer(ctx, url, dir, zap.New(core))
	}()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	case <-time.After(5 * time.Second):
		t.Fatal("consumer did not return after its context ended")
	}
	require.NotZero(t, logs.FilterMessage("dial broker failed").Len())
}

func TestStartRecruitmentConsumer_CancelledBeforeStart(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := StartRecruitmentConsumer(ctx, refusedBrokerURL(t), t.TempDir(), zap.NewNop())
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSleep(t *testing.T) {
	assert.True(t, sleep(context.Background(), time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.False(t, sleep(ctx, time.Hour))
}
