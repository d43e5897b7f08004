package app

import (
	"bytes"
	"context"
	"os"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Farmhouse441/farmhouse-service-hub/internal/config"
	"github.com/Farmhouse441/farmhouse-service-hub/internal/notify"
)

func TestOpenWithoutQueueUsesDirectMailer(t *testing.T) {
	rt, err := Open(context.Background(), t.TempDir(), &config.Settings{MailFrom: "hub@example.com"}, nil)
	require.NoError(t, err)
	defer rt.Close()

	assert.Nil(t, rt.Redis)
	assert.Nil(t, rt.Minio)
	_, direct := rt.Engine.Notifier.(notify.Direct)
	assert.True(t, direct)
	require.NoError(t, rt.Ready(context.Background()))
	require.NoError(t, rt.Engine.CheckMatrices(context.Background()))
}

func TestOpenWithQueuePingsRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	rt, err := Open(context.Background(), t.TempDir(), &config.Settings{RedisAddr: mr.Addr()}, nil)
	require.NoError(t, err)
	defer rt.Close()

	require.NotNil(t, rt.Redis)
	_, queued := rt.Engine.Notifier.(*notify.Queue)
	assert.True(t, queued)
	require.NoError(t, rt.Ready(context.Background()))

	mr.Close()
	err = rt.Ready(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "redis")
}

func TestOpenRejectsInvalidConfig(t *testing.T) {
	workspace := t.TempDir()
	require.NoError(t, os.WriteFile(config.Path(workspace), []byte("permissions:\n  admin:\n    can_view_all_tickets: true\n"), 0o644))
	_, err := Open(context.Background(), workspace, nil, nil)
	require.Error(t, err)
}

func TestLoggerFormat(t *testing.T) {
	var buf bytes.Buffer
	newLogger(&buf, &config.Settings{LogFormat: "json"}).Info("hello")
	assert.True(t, strings.HasPrefix(buf.String(), "{"))

	buf.Reset()
	newLogger(&buf, &config.Settings{}).Info("hello")
	assert.Contains(t, buf.String(), "msg=hello")
}
