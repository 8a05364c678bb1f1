package backend

import (
	"context"
	"errors"

	"salesdesk/backend/internal/domain"
	"salesdesk/backend/internal/rpc"
)

var ErrNotFound = errors.New("not found")

// Store is the access layer for the externally-owned relational backend.
// All writes go through remote procedures (rpc.Caller); reads are range
// queries over the daily_sales and sales_api tables plus the app_users table
// that backs authentication.
type Store interface {
	rpc.Caller

	ListDailySales(ctx context.Context, dateFrom, dateTo, modeOfPayment string) ([]domain.DailySalesRow, error)
	CountSalesAPIRange(ctx context.Context, dateFrom, dateTo string) (int64, error)

	CreateUser(ctx context.Context, user domain.UserAccount) error
	ListUsers(ctx context.Context) ([]domain.UserAccount, error)
	UpdateUserPassword(ctx context.Context, username string, password string) error
}
