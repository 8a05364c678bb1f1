// Package memory implements the backend store in process memory. It backs
// dev/demo mode and the test suite. Procedures are dispatched through a
// registry keyed by argument names, so a call with the wrong parameter
// names fails with PGRST202 exactly like the hosted backend does.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	"salesdesk/backend/internal/backend"
	"salesdesk/backend/internal/domain"
	"salesdesk/backend/internal/rpc"
)

type procHandler func(s *Store, args rpc.Args) (json.RawMessage, *rpc.Error)

type procEntry struct {
	argNames []string
	handler  procHandler
}

type salesAPIRow struct {
	ID        string
	TransDate string
	Payload   map[string]any
}

type Store struct {
	mu              sync.RWMutex
	dailySales      []domain.DailySalesRow
	salesAPI        map[string]salesAPIRow
	usersByUsername map[string]domain.UserAccount
	procs           map[string]procEntry
	forcedErrors    map[string]*rpc.Error
	callLog         []string
	nextID          int
}

// seedUsers builds the initial in-memory accounts for dev/demo mode.
// Credentials come from SEED_ADMIN_PASSWORD and SEED_ENCODER_PASSWORD.
// If unset, hardcoded dev defaults are used with a warning printed to
// stdout. These credentials are never used in production (the backend
// uses its hosted store when SUPABASE_URL or DATABASE_URL is set).
func seedUsers() map[string]domain.UserAccount {
	adminPwd := envOr("SEED_ADMIN_PASSWORD", "admin123")
	encoderPwd := envOr("SEED_ENCODER_PASSWORD", "encoder123")
	if os.Getenv("SEED_ADMIN_PASSWORD") == "" || os.Getenv("SEED_ENCODER_PASSWORD") == "" {
		log.Println("[memory-backend] WARNING: using default dev credentials. Set SEED_ADMIN_PASSWORD and SEED_ENCODER_PASSWORD to override.")
	}

	now := time.Now().UTC()
	users := map[string]domain.UserAccount{}
	for _, u := range []struct {
		username string
		password string
		role     string
	}{
		{"admin", adminPwd, "admin"},
		{"encoder", encoderPwd, "encoder"},
	} {
		hash, err := bcrypt.GenerateFromPassword([]byte(u.password), bcrypt.DefaultCost)
		if err != nil {
			log.Fatalf("[memory-backend] failed to hash seed password for %s: %v", u.username, err)
		}
		users[u.username] = domain.UserAccount{
			Username:  u.username,
			Password:  string(hash),
			Role:      u.role,
			Active:    true,
			CreatedAt: now,
		}
	}
	return users
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func NewSeeded() *Store {
	s := &Store{
		dailySales:      seedDailySales(),
		salesAPI:        map[string]salesAPIRow{},
		usersByUsername: seedUsers(),
		forcedErrors:    map[string]*rpc.Error{},
		nextID:          1000,
	}
	s.procs = map[string]procEntry{
		"rpc_add_daily_sales":       {argNames: []string{"p"}, handler: procAddDailySales},
		"rpc_modify_daily_sales":    {argNames: []string{"payload"}, handler: procModifyDailySales},
		"rpc_remove_pof":            {argNames: []string{"pof_number"}, handler: procRemovePOF},
		"rpc_sales_api_performance": {argNames: []string{"date_from", "date_to"}, handler: procPerformance},
		"rpc_upsert_sales_api_list": {argNames: []string{"p_list"}, handler: procUpsertSalesAPIList},
	}
	return s
}

func seedDailySales() []domain.DailySalesRow {
	today := time.Now().UTC().Format("2006-01-02")
	return []domain.DailySalesRow{
		{DailySalesID: float64(1), TransDate: today, POFNumber: "POF-1001", MemberName: "R. Dela Cruz", Username: "rdc01", PackageType: "SILVER", BottleCount: 2, BlisterCount: 20, Sales: 7000, ModeOfPayment: "CASH", PaymentType: "N/A", IsNewMember: true},
		{DailySalesID: float64(2), TransDate: today, POFNumber: "POF-1002", MemberName: "M. Santos", Username: "msantos", PackageType: "GOLD", BottleCount: 3, BlisterCount: 0, Sales: 10350, ModeOfPayment: "BANK", PaymentType: "BDO", IsNewMember: false},
		{DailySalesID: float64(3), TransDate: today, POFNumber: "POF-1003", MemberName: "J. Reyes", Username: "jreyes", PackageType: "RETAIL", BottleCount: 1, BlisterCount: 0, Sales: 3750, ModeOfPayment: "EWALLET", PaymentType: "PAYOUT", IsNewMember: false},
	}
}

// CallProc dispatches by procedure name, then enforces that the supplied
// argument names match the registered signature. A name mismatch returns
// PGRST202 and an unknown procedure returns 42883, which together drive
// the caller's shape walk the same way the real backend would.
func (s *Store) CallProc(ctx context.Context, procedure string, args rpc.Args) (json.RawMessage, *rpc.Error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.callLog = append(s.callLog, procedure+"("+joinArgNames(args)+")")

	if forced, ok := s.forcedErrors[procedure]; ok {
		return nil, forced
	}

	entry, ok := s.procs[procedure]
	if !ok {
		return nil, &rpc.Error{
			Code:    rpc.CodeUndefinedFunction,
			Message: fmt.Sprintf("function %s does not exist", procedure),
		}
	}
	if !argNamesMatch(entry.argNames, args) {
		return nil, &rpc.Error{
			Code:    rpc.CodeSignatureMismatch,
			Message: fmt.Sprintf("could not find the function %s(%s) in the schema cache", procedure, joinArgNames(args)),
		}
	}

	return entry.handler(s, args)
}

// SetProcArgs rewires the accepted argument names for one procedure.
// Tests use it to make a later probe shape the matching one.
func (s *Store) SetProcArgs(procedure string, argNames ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.procs[procedure]
	if !ok {
		return
	}
	entry.argNames = argNames
	s.procs[procedure] = entry
}

// FailProc forces every call to the procedure to return the given error.
// Passing nil clears the override.
func (s *Store) FailProc(procedure string, procErr *rpc.Error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if procErr == nil {
		delete(s.forcedErrors, procedure)
		return
	}
	s.forcedErrors[procedure] = procErr
}

// CallLog returns every recorded call as "proc(arg1,arg2)" strings.
func (s *Store) CallLog() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, len(s.callLog))
	copy(out, s.callLog)
	return out
}

func argNamesMatch(expected []string, args rpc.Args) bool {
	if len(expected) != len(args) {
		return false
	}
	for _, name := range expected {
		if _, ok := args[name]; !ok {
			return false
		}
	}
	return true
}

func joinArgNames(args rpc.Args) string {
	names := make([]string, 0, len(args))
	for name := range args {
		names = append(names, name)
	}
	sort.Strings(names)
	return strings.Join(names, ",")
}

func firstArg(args rpc.Args) any {
	for _, value := range args {
		return value
	}
	return nil
}

func procAddDailySales(s *Store, args rpc.Args) (json.RawMessage, *rpc.Error) {
	payload, ok := firstArg(args).(map[string]any)
	if !ok {
		return nil, &rpc.Error{Code: "22023", Message: "payload must be an object"}
	}

	s.nextID++
	row := domain.NormalizeDailySalesRow(payload)
	row.DailySalesID = float64(s.nextID)
	if row.TransDate == "" {
		row.TransDate = domain.ToString(payload["date"])
	}
	s.dailySales = append(s.dailySales, row)

	return mustJSON(map[string]any{"daily_sales_id": s.nextID}), nil
}

func procModifyDailySales(s *Store, args rpc.Args) (json.RawMessage, *rpc.Error) {
	payload, ok := firstArg(args).(map[string]any)
	if !ok {
		return nil, &rpc.Error{Code: "22023", Message: "payload must be an object"}
	}

	pof := domain.ToString(payload["pof_number"])
	for i, row := range s.dailySales {
		if row.POFNumber != pof {
			continue
		}
		updated := domain.NormalizeDailySalesRow(payload)
		updated.DailySalesID = row.DailySalesID
		if updated.TransDate == "" {
			updated.TransDate = row.TransDate
		}
		s.dailySales[i] = updated
		return mustJSON(map[string]any{"updated": 1}), nil
	}
	return mustJSON(map[string]any{"updated": 0}), nil
}

func procRemovePOF(s *Store, args rpc.Args) (json.RawMessage, *rpc.Error) {
	pof := domain.ToString(firstArg(args))
	removed := 0
	kept := s.dailySales[:0]
	for _, row := range s.dailySales {
		if row.POFNumber == pof {
			removed++
			continue
		}
		kept = append(kept, row)
	}
	s.dailySales = kept
	return mustJSON(map[string]any{"removed": removed}), nil
}

func procPerformance(s *Store, args rpc.Args) (json.RawMessage, *rpc.Error) {
	dataset := map[string]any{
		"summary": []map[string]any{
			{"id": "total-sales", "label": "Total Sales", "value": "21,100", "trend": "up"},
			{"id": "transactions", "label": "Transactions", "value": "3", "trend": "flat"},
		},
		"agents": []map[string]any{
			{"id": "rdc01", "name": "R. Dela Cruz", "sales": 7000.0, "target": 10000.0, "conversion_rate": 0.7, "status": "active"},
			{"id": "msantos", "name": "M. Santos", "sales": 10350.0, "target": 10000.0, "conversion_rate": 1.03, "status": "active"},
		},
	}
	return mustJSON(dataset), nil
}

func procUpsertSalesAPIList(s *Store, args rpc.Args) (json.RawMessage, *rpc.Error) {
	list, ok := firstArg(args).([]any)
	if !ok {
		// Rows arrive as []map[string]any when built in process.
		if typed, typedOK := firstArg(args).([]map[string]any); typedOK {
			list = make([]any, len(typed))
			for i, item := range typed {
				list[i] = item
			}
			ok = true
		}
	}
	if !ok {
		return nil, &rpc.Error{Code: "22023", Message: "p_list must be an array"}
	}

	upserted := 0
	for _, item := range list {
		row, rowOK := item.(map[string]any)
		if !rowOK {
			continue
		}
		id := domain.ToString(row["id"])
		if id == "" {
			s.nextID++
			id = fmt.Sprintf("mem-%d", s.nextID)
		}
		s.salesAPI[id] = salesAPIRow{
			ID:        id,
			TransDate: domain.ToString(row["transdate"]),
			Payload:   row,
		}
		upserted++
	}
	return mustJSON(map[string]any{"upserted": upserted}), nil
}

func mustJSON(value any) json.RawMessage {
	raw, err := json.Marshal(value)
	if err != nil {
		panic(err)
	}
	return raw
}

func (s *Store) ListDailySales(ctx context.Context, dateFrom, dateTo, modeOfPayment string) ([]domain.DailySalesRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows := make([]domain.DailySalesRow, 0, len(s.dailySales))
	for _, row := range s.dailySales {
		if row.TransDate < dateFrom || row.TransDate > dateTo {
			continue
		}
		if modeOfPayment != "" && modeOfPayment != "ALL" && row.ModeOfPayment != modeOfPayment {
			continue
		}
		rows = append(rows, row)
	}
	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].TransDate == rows[j].TransDate {
			return domain.ToNumber(rows[i].DailySalesID) > domain.ToNumber(rows[j].DailySalesID)
		}
		return rows[i].TransDate > rows[j].TransDate
	})
	return rows, nil
}

func (s *Store) CountSalesAPIRange(ctx context.Context, dateFrom, dateTo string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	from := dateFrom + " 00:00:00"
	to := dateTo + " 23:59:59"
	var count int64
	for _, row := range s.salesAPI {
		if row.TransDate >= from && row.TransDate <= to {
			count++
		}
	}
	return count, nil
}

func (s *Store) CreateUser(ctx context.Context, user domain.UserAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.usersByUsername[user.Username]; exists {
		return fmt.Errorf("username %s already exists", user.Username)
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	s.usersByUsername[user.Username] = user
	return nil
}

func (s *Store) ListUsers(ctx context.Context) ([]domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]domain.UserAccount, 0, len(s.usersByUsername))
	for _, user := range s.usersByUsername {
		users = append(users, user)
	}
	sort.Slice(users, func(i, j int) bool { return users[i].Username < users[j].Username })
	return users, nil
}

func (s *Store) UpdateUserPassword(ctx context.Context, username string, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, exists := s.usersByUsername[username]
	if !exists {
		return backend.ErrNotFound
	}
	user.Password = password
	s.usersByUsername[username] = user
	return nil
}
