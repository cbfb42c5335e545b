package application

import (
	"context"
	"fmt"

	authapp "github.com/khanhnv2901/siteterminal/internal/application/auth"
	historyapp "github.com/khanhnv2901/siteterminal/internal/application/history"
	"github.com/khanhnv2901/siteterminal/internal/infrastructure/persistence/sqlite"
)

// Container holds the database handle, repositories and services
type Container struct {
	DB *sqlite.DB

	// Repositories
	UserRepo    *sqlite.UserRepository
	HistoryRepo *sqlite.HistoryRepository

	// Services
	AuthService    *authapp.Service
	HistoryService *historyapp.Service
}

// NewContainer opens the database at dbPath and wires the services.
func NewContainer(ctx context.Context, dbPath string, authOpts ...authapp.Option) (*Container, error) {
	db, err := sqlite.Open(ctx, dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}

	userRepo := sqlite.NewUserRepository(db)
	historyRepo := sqlite.NewHistoryRepository(db)

	return &Container{
		DB:             db,
		UserRepo:       userRepo,
		HistoryRepo:    historyRepo,
		AuthService:    authapp.NewService(userRepo, authOpts...),
		HistoryService: historyapp.NewService(historyRepo, userRepo),
	}, nil
}

// Close releases the database.
func (c *Container) Close() error {
	return c.DB.Close()
}
