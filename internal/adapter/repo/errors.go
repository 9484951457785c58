package repo

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"go.mongodb.org/mongo-driver/mongo"

	"genesis/internal/domain"
)

// storeError wraps a driver failure as domain.ErrTimeout when the caller's
// deadline or the driver's own timeout cut it short, otherwise as
// domain.ErrDatabase.
func storeError(op string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || pgconn.Timeout(err) || mongo.IsTimeout(err) {
		return fmt.Errorf("%w: %s: %v", domain.ErrTimeout, op, err)
	}
	return fmt.Errorf("%w: %s: %v", domain.ErrDatabase, op, err)
}
