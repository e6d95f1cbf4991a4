package echo_test

import (
	"context"
	"net/http"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	herrors "handler_runner/errors"
	"handler_runner/handler"
	"handler_runner/handlers/echo"
)

func initEcho(t *testing.T, params map[string]string) *echo.Handler {
	t.Helper()
	h := echo.New()
	require.NoError(t, h.Init(context.Background(), handler.NewConfig("echo", params, nil)))
	return h
}

func TestEchoWritesRequestBack(t *testing.T) {
	h := initEcho(t, map[string]string{"prefix": "> "})

	resp := handler.NewResponse()
	req := handler.NewRequest("42", http.MethodPost, url.Values{"marker": {"m1"}}, []byte("hello"))
	require.NoError(t, h.Service(context.Background(), req, resp))

	assert.Equal(t, http.StatusOK, resp.Status())
	assert.Equal(t, "> id=42 marker=m1 body=hello\n", resp.String())
	assert.Equal(t, "text/plain; charset=utf-8", resp.ContentType())
	assert.Equal(t, int64(1), h.Served())
	assert.NoError(t, h.Destroy(context.Background()))
}

func TestEchoFailure(t *testing.T) {
	h := initEcho(t, nil)

	resp := handler.NewResponse()
	err := h.Service(context.Background(), handler.NewRequest("1", http.MethodGet, url.Values{"fail": {"true"}}, nil), resp)

	var he *herrors.HandlingError
	require.ErrorAs(t, err, &he)
	assert.False(t, he.Fatal)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.Status())
	assert.Equal(t, int64(0), h.Served())
}

func TestEchoDelayHonoursCancellation(t *testing.T) {
	h := initEcho(t, map[string]string{"delay": "1h"})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	resp := handler.NewResponse()
	err := h.Service(ctx, handler.NewRequest("1", http.MethodGet, nil, nil), resp)

	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, http.StatusServiceUnavailable, resp.Status())
}

func TestEchoInit(t *testing.T) {
	err := echo.New().Init(context.Background(), handler.NewConfig("echo", map[string]string{"delay": "later"}, nil))
	require.ErrorIs(t, err, herrors.ErrInitialization)

	h := initEcho(t, nil)
	require.ErrorIs(t, h.Init(context.Background(), handler.NewConfig("echo", nil, nil)), herrors.ErrContractViolation)
	assert.Equal(t, "echo", h.Config().Name())
	assert.NotEmpty(t, h.Info())
}
