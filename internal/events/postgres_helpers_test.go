package events

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap"

	"github.com/totem-events/backend/internal/models"
	"github.com/totem-events/backend/pkg/database"
)

var (
	sharedOnce      sync.Once
	sharedInitErr   error
	sharedContainer *tcpostgres.PostgresContainer
	sharedPool      *pgxpool.Pool
)

func TestMain(m *testing.M) {
	code := m.Run()
	cleanupShared()
	os.Exit(code)
}

// setupPostgres returns a migrated pool on an empty database. The container is shared by the package.
func setupPostgres(t *testing.T) *pgxpool.Pool {
	t.Helper()
	if testing.Short() {
		t.Skip("postgres tests need docker; skipped in -short mode")
	}
	testcontainers.SkipIfProviderIsNotHealthy(t)

	initShared(t)
	resetDatabase(t, sharedPool)
	return sharedPool
}

func initShared(t *testing.T) {
	t.Helper()
	sharedOnce.Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()

		container, err := tcpostgres.Run(ctx,
			"docker.io/postgres:16-alpine",
			tcpostgres.WithDatabase("totem"),
			tcpostgres.WithUsername("totem"),
			tcpostgres.WithPassword("totem_test"),
			testcontainers.WithWaitStrategy(
				wait.ForLog("database system is ready to accept connections").
					WithOccurrence(2).
					WithStartupTimeout(60*time.Second)),
		)
		if err != nil {
			sharedInitErr = err
			return
		}
		sharedContainer = container

		dsn, err := container.ConnectionString(ctx, "sslmode=disable")
		if err != nil {
			sharedInitErr = err
			return
		}
		pool, err := pgxpool.New(ctx, dsn)
		if err != nil {
			sharedInitErr = err
			return
		}
		if err := database.Migrate(ctx, pool, zap.NewNop()); err != nil {
			pool.Close()
			sharedInitErr = err
			return
		}
		sharedPool = pool
	})
	require.NoError(t, sharedInitErr)
}

func cleanupShared() {
	if sharedPool != nil {
		sharedPool.Close()
	}
	if sharedContainer != nil {
		_ = sharedContainer.Terminate(context.Background())
	}
}

func resetDatabase(t *testing.T, pool *pgxpool.Pool) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	_, err := pool.Exec(ctx, `TRUNCATE TABLE events, users CASCADE`)
	require.NoError(t, err)
}

func insertUser(t *testing.T, pool *pgxpool.Pool, email, name string) *models.User {
	t.Helper()
	u := &models.User{Email: email, Name: name}
	err := pool.QueryRow(context.Background(),
		`INSERT INTO users (email, name) VALUES ($1, $2) RETURNING id`, email, name,
	).Scan(&u.ID)
	require.NoError(t, err)
	return u
}

// storedEvent is a Monday/Wednesday morning event exhibited through March 2025.
func storedEvent(organizer *models.User, title string) *models.Event {
	return &models.Event{
		Title:           title,
		StartsAt:        time.Date(2025, 3, 15, 10, 0, 0, 0, time.UTC),
		EndsAt:          time.Date(2025, 3, 15, 18, 0, 0, 0, time.UTC),
		ExhibitStartsAt: time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC),
		ExhibitEndsAt:   time.Date(2025, 3, 31, 23, 0, 0, 0, time.UTC),
		DisplayDays:     []string{"segunda", "quarta"},
		DisplayMorning:  true,
		Tags:            []string{"cultura"},
		Status:          models.StatusInactive,
		Organizer:       models.Organizer{ID: organizer.ID, Name: organizer.Name},
	}
}

func createEvent(t *testing.T, repo *Repository, e *models.Event) *models.Event {
	t.Helper()
	created, err := repo.Create(context.Background(), e)
	require.NoError(t, err)
	return created
}

func mediaItem(variant models.Variant, url string) models.Media {
	return models.Media{
		ID:        uuid.New(),
		Variant:   variant,
		URL:       url,
		SizeMB:    1.2,
		Width:     1080,
		Height:    1920,
		CreatedAt: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}

// activate gives e one item of every variant and switches it to active.
func activate(t *testing.T, repo *Repository, e *models.Event) *models.Event {
	t.Helper()
	ctx := context.Background()
	for _, v := range models.Variants {
		_, err := repo.AppendMedia(ctx, e.ID, v, []models.Media{mediaItem(v, "/uploads/"+e.ID.String()+"/"+string(v)+"/1")})
		require.NoError(t, err)
	}
	active, err := repo.SetStatus(ctx, e.ID, models.StatusActive)
	require.NoError(t, err)
	return active
}

func mediaURLs(list []models.Media) []string {
	urls := make([]string, 0, len(list))
	for _, m := range list {
		urls = append(urls, m.URL)
	}
	return urls
}
