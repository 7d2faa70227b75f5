package port

import (
	"context"

	"github.com/bnema/mediadesk/internal/domain"
)

type UserStore interface {
	HasUser(ctx context.Context) (bool, error)
	GetUser(ctx context.Context, username string) (*domain.User, error)
	GetUserByID(ctx context.Context, id int64) (*domain.User, error)
	CreateUser(ctx context.Context, username, passwordHash string) error
	UpdatePassword(ctx context.Context, id int64, passwordHash string) error
}
