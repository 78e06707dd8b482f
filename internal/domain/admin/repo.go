package admin

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/clinic/clinic/pkg/pagination"
)

// UserRepository defines the persistence interface for staff accounts.
type UserRepository interface {
	Create(ctx context.Context, u *User) error
	GetByID(ctx context.Context, id uuid.UUID) (*User, error)
	// GetByEmail matches case-insensitively.
	GetByEmail(ctx context.Context, email string) (*User, error)
	List(ctx context.Context, role string, page pagination.Page) ([]*User, int, error)
	UserRole(ctx context.Context, id uuid.UUID) (string, bool, error)
}

// Transactor runs fn inside one database transaction.
type Transactor interface {
	InTx(ctx context.Context, fn func(ctx context.Context) error) error
}

type TokenIssuer interface {
	Issue(userID uuid.UUID, email, name string, roles []string) (string, time.Time, error)
}
