package cache

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/noah-isme/schedule-sync/pkg/config"
	"github.com/noah-isme/schedule-sync/pkg/retry"
)

func TestKey(t *testing.T) {
	assert.Equal(t, "schedule-sync:", Key())
	assert.Equal(t, "schedule-sync:timetable:groups:42", Key("timetable", "groups", "42"))
}

func closedPort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	require.NoError(t, ln.Close())
	return port
}

func TestNewRedisRetriesThenFails(t *testing.T) {
	original := connectPolicy
	connectPolicy = retry.Policy{Attempts: 3, InitialInterval: time.Millisecond, MaxInterval: 2 * time.Millisecond}
	t.Cleanup(func() { connectPolicy = original })

	core, logs := observer.New(zap.WarnLevel)
	client, err := NewRedis(context.Background(), config.RedisConfig{Host: "127.0.0.1", Port: closedPort(t)}, zap.New(core))

	require.Error(t, err)
	assert.Nil(t, client)
	assert.Contains(t, err.Error(), "ping redis 127.0.0.1:")
	assert.Equal(t, 2, logs.FilterMessage("redis not ready, retrying").Len())
}
