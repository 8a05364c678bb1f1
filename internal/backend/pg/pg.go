// Package pg implements the backend store against a direct Postgres
// connection. Procedures are invoked with named arguments so the same
// signature rules apply as over REST: an argument-name mismatch surfaces
// as SQLSTATE 42883, which the shape prober treats as retryable.
package pg

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"salesdesk/backend/internal/backend"
	"salesdesk/backend/internal/domain"
	"salesdesk/backend/internal/rpc"
)

type Store struct {
	db *sql.DB
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) CallProc(ctx context.Context, procedure string, args rpc.Args) (json.RawMessage, *rpc.Error) {
	query, values, buildErr := buildProcCall(procedure, args)
	if buildErr != nil {
		return nil, buildErr
	}

	var result sql.NullString
	if err := s.db.QueryRowContext(ctx, query, values...).Scan(&result); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			return nil, &rpc.Error{Code: pgErr.Code, Message: pgErr.Message, Details: pgErr.Detail}
		}
		return nil, &rpc.Error{Code: "RPC_QUERY_ERROR", Message: err.Error()}
	}
	if !result.Valid {
		return json.RawMessage("null"), nil
	}
	return json.RawMessage(result.String), nil
}

func (s *Store) ListDailySales(ctx context.Context, dateFrom, dateTo, modeOfPayment string) ([]domain.DailySalesRow, error) {
	query := `
		SELECT daily_sales_id, trans_date, pof_number, member_name, username,
			package_type, bottle_count, blister_count, sales,
			mode_of_payment, payment_type, is_new_member
		FROM daily_sales
		WHERE trans_date >= $1 AND trans_date <= $2
	`
	params := []any{dateFrom, dateTo}
	if modeOfPayment != "" && modeOfPayment != "ALL" {
		query += ` AND mode_of_payment = $3`
		params = append(params, modeOfPayment)
	}
	query += ` ORDER BY trans_date DESC, daily_sales_id DESC`

	rows, err := s.db.QueryContext(ctx, query, params...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make([]domain.DailySalesRow, 0, 128)
	for rows.Next() {
		var row domain.DailySalesRow
		var transDate time.Time
		if err := rows.Scan(&row.DailySalesID, &transDate, &row.POFNumber, &row.MemberName, &row.Username,
			&row.PackageType, &row.BottleCount, &row.BlisterCount, &row.Sales,
			&row.ModeOfPayment, &row.PaymentType, &row.IsNewMember); err != nil {
			return nil, err
		}
		row.TransDate = transDate.Format("2006-01-02")
		result = append(result, row)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

func (s *Store) CountSalesAPIRange(ctx context.Context, dateFrom, dateTo string) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*)::bigint
		FROM sales_api
		WHERE transdate >= ($1 || ' 00:00:00')::timestamp
			AND transdate <= ($2 || ' 23:59:59')::timestamp
	`, dateFrom, dateTo).Scan(&count)
	if err != nil {
		return 0, err
	}
	return count, nil
}

func (s *Store) CreateUser(ctx context.Context, user domain.UserAccount) error {
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO app_users (username, password, role, active, created_at)
		VALUES ($1,$2,$3,$4,$5)
	`, user.Username, user.Password, user.Role, user.Active, user.CreatedAt)
	return err
}

func (s *Store) ListUsers(ctx context.Context) ([]domain.UserAccount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT username, password, role, active, created_at
		FROM app_users
		ORDER BY created_at ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]domain.UserAccount, 0, 16)
	for rows.Next() {
		var user domain.UserAccount
		if err := rows.Scan(&user.Username, &user.Password, &user.Role, &user.Active, &user.CreatedAt); err != nil {
			return nil, err
		}
		user.CreatedAt = user.CreatedAt.UTC()
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return users, nil
}

func (s *Store) UpdateUserPassword(ctx context.Context, username string, password string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE app_users
		SET password = $2
		WHERE username = $1
	`, username, password)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return backend.ErrNotFound
	}
	return nil
}

// buildProcCall renders `SELECT to_jsonb(proc("name" => $1, ...))` with
// argument names sorted for a stable statement text. Composite values
// travel as jsonb parameters. Argument names are quoted so camel-case
// shape spellings reach the database verbatim; if no declared parameter
// matches, Postgres answers SQLSTATE 42883 and the shape walk continues.
func buildProcCall(procedure string, args rpc.Args) (string, []any, *rpc.Error) {
	if !validProcName(procedure) {
		return "", nil, &rpc.Error{Code: "RPC_BAD_PROCEDURE", Message: fmt.Sprintf("invalid procedure name %q", procedure)}
	}

	names := make([]string, 0, len(args))
	for name := range args {
		if !validArgName(name) {
			return "", nil, &rpc.Error{Code: "RPC_BAD_ARGUMENT", Message: fmt.Sprintf("invalid argument name %q", name)}
		}
		names = append(names, name)
	}
	sort.Strings(names)

	parts := make([]string, 0, len(names))
	values := make([]any, 0, len(names))
	for i, name := range names {
		value := args[name]
		switch value.(type) {
		case nil, bool, string, float64, int, int64:
			parts = append(parts, fmt.Sprintf("\"%s\" => $%d", name, i+1))
			values = append(values, value)
		default:
			encoded, err := json.Marshal(value)
			if err != nil {
				return "", nil, &rpc.Error{Code: "RPC_ENCODE_ERROR", Message: err.Error()}
			}
			parts = append(parts, fmt.Sprintf("\"%s\" => $%d::jsonb", name, i+1))
			values = append(values, string(encoded))
		}
	}

	query := fmt.Sprintf("SELECT to_jsonb(%s(%s))", procedure, strings.Join(parts, ", "))
	return query, values, nil
}

// validProcName accepts lower snake_case identifiers only. Procedure names
// are interpolated into statement text, so anything else is rejected
// before it reaches the database.
func validProcName(name string) bool {
	if name == "" {
		return false
	}
	for i, r := range name {
		switch {
		case r >= 'a' && r <= 'z':
		case r == '_':
		case r >= '0' && r <= '9':
			if i == 0 {
				return false
			}
		default:
			return false
		}
	}
	return true
}

// validArgName additionally allows upper-case letters because the probed
// shapes include camel-case spellings. The name is emitted as a quoted
// identifier, so the character set stays this strict.
func validArgName(name string) bool {
	if name == "" {
		return false
	}
	for i, r := range name {
		switch {
		case r >= 'a' && r <= 'z':
		case r >= 'A' && r <= 'Z':
		case r == '_':
		case r >= '0' && r <= '9':
			if i == 0 {
				return false
			}
		default:
			return false
		}
	}
	return true
}
