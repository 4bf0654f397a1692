package postgres_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/ai-interview-coach/internal/adapter/repo/postgres"
	"github.com/fairyhunter13/ai-interview-coach/internal/domain"
)

func TestSubjectAreaRepo_Get(t *testing.T) {
	pool := &poolStub{rows: []rowStub{{scan: func(dest ...any) error {
		*dest[0].(*string) = "backend-engineering"
		*dest[1].(*string) = "Backend Engineering"
		*dest[2].(*string) = "Technology"
		*dest[3].(*[]string) = []string{"APIs", "Databases"}
		*dest[4].(*time.Time) = time.Now()
		return nil
	}}}}
	repo := postgres.NewSubjectAreaRepo(pool)

	sa, err := repo.Get(context.Background(), "backend-engineering")
	require.NoError(t, err)
	require.Equal(t, "Backend Engineering", sa.Name)
	require.Equal(t, []string{"APIs", "Databases"}, sa.Competencies)
}

func TestSubjectAreaRepo_GetNotFound(t *testing.T) {
	pool := &poolStub{rows: []rowStub{{scan: func(...any) error { return pgx.ErrNoRows }}}}
	repo := postgres.NewSubjectAreaRepo(pool)

	_, err := repo.Get(context.Background(), "missing")
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestSubjectAreaRepo_UpsertError(t *testing.T) {
	pool := &poolStub{execErr: errors.New("db down")}
	repo := postgres.NewSubjectAreaRepo(pool)

	err := repo.Upsert(context.Background(), domain.SubjectArea{ID: "qa", Name: "QA"})
	require.Error(t, err)
	require.Contains(t, err.Error(), "op=subject_area.upsert")
}
