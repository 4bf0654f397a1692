package app_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/ai-interview-coach/internal/app"
	"github.com/fairyhunter13/ai-interview-coach/internal/config"
	"github.com/fairyhunter13/ai-interview-coach/internal/domain"
)

type fakePinger struct{ err error }

func (f fakePinger) Ping(context.Context) error { return f.err }

type fakeRedisResult struct{ err error }

func (f fakeRedisResult) Err() error { return f.err }

type fakeRedis struct{ err error }

func (f fakeRedis) Ping(context.Context) app.RedisPingResult { return fakeRedisResult{err: f.err} }

type fakeAI struct{ err error }

func (f fakeAI) Complete(domain.Context, []domain.ChatMessage, domain.ChatOptions) (string, error) {
	return "", f.err
}
func (f fakeAI) CheckAvailability(domain.Context) error { return f.err }

func TestBuildReadinessChecks_UnconfiguredAreNil(t *testing.T) {
	cfg := config.Config{}
	dbCheck, redisCheck, aiCheck, tikaCheck := app.BuildReadinessChecks(cfg, fakePinger{}, nil, nil)
	require.NotNil(t, dbCheck)
	require.Nil(t, redisCheck)
	require.Nil(t, aiCheck)
	require.Nil(t, tikaCheck)
	require.NoError(t, dbCheck(context.Background()))
}

func TestBuildReadinessChecks_PropagateErrors(t *testing.T) {
	cfg := config.Config{}
	dbCheck, redisCheck, aiCheck, _ := app.BuildReadinessChecks(cfg,
		fakePinger{err: errors.New("db down")},
		fakeRedis{err: errors.New("redis down")},
		fakeAI{err: errors.New("llm down")},
	)
	require.EqualError(t, dbCheck(context.Background()), "db down")
	require.EqualError(t, redisCheck(context.Background()), "redis down")
	require.EqualError(t, aiCheck(context.Background()), "llm down")
}

func TestBuildReadinessChecks_Tika(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/version" {
			w.WriteHeader(http.StatusOK)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	defer ts.Close()

	cfg := config.Config{TikaURL: ts.URL}
	_, _, _, tikaCheck := app.BuildReadinessChecks(cfg, fakePinger{}, nil, nil)
	require.NotNil(t, tikaCheck)
	require.NoError(t, tikaCheck(context.Background()))

	cfg.TikaURL = ts.URL + "/missing"
	_, _, _, tikaCheck = app.BuildReadinessChecks(cfg, fakePinger{}, nil, nil)
	err := tikaCheck(context.Background())
	require.Error(t, err)
	require.Contains(t, err.Error(), "tika status 404")
}
