package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"salesdesk/backend/internal/backend"
	"salesdesk/backend/internal/cache"
	"salesdesk/backend/internal/domain"
	"salesdesk/backend/internal/ggsales"
	"salesdesk/backend/internal/pricing"
	"salesdesk/backend/internal/rpc"
	"salesdesk/backend/internal/xid"
)

// ErrInvalidInput marks a request the caller can fix. The HTTP layer maps
// it to a 400 response with the wrapped message.
var ErrInvalidInput = errors.New("invalid input")

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

type Service struct {
	store     backend.Store
	gg        *ggsales.Client
	reports   cache.ReportCache
	reportTTL time.Duration
}

func New(store backend.Store, gg *ggsales.Client, reports cache.ReportCache, reportTTL time.Duration) *Service {
	if reports == nil {
		reports = cache.NoopReportCache{}
	}
	if reportTTL <= 0 {
		reportTTL = time.Minute
	}
	return &Service{
		store:     store,
		gg:        gg,
		reports:   reports,
		reportTTL: reportTTL,
	}
}

// AddDailySale validates and re-derives an encoder submission, then invokes
// the add procedure. The single object argument has carried three names
// across backend revisions, walked in order.
func (s *Service) AddDailySale(ctx context.Context, entry domain.SaleEntry) (json.RawMessage, error) {
	normalized, err := s.normalizeEntry(entry)
	if err != nil {
		return nil, err
	}

	payload, err := entryPayload(*normalized)
	if err != nil {
		return nil, err
	}

	descriptor := rpc.NewDescriptor("rpc_add_daily_sales",
		rpc.Args{"p": payload},
		rpc.Args{"p_payload": payload},
		rpc.Args{"payload": payload},
	)
	data, procErr := descriptor.Invoke(ctx, s.store)
	if procErr != nil {
		return nil, procErr
	}
	return data, nil
}

// ModifyDailySale rewrites an existing submission identified by its POF
// number. The procedure's payload argument has been observed under three
// spellings, walked in order.
func (s *Service) ModifyDailySale(ctx context.Context, entry domain.SaleEntry) (json.RawMessage, error) {
	normalized, err := s.normalizeEntry(entry)
	if err != nil {
		return nil, err
	}

	payload, err := entryPayload(*normalized)
	if err != nil {
		return nil, err
	}

	descriptor := rpc.NewDescriptor("rpc_modify_daily_sales",
		rpc.Args{"payload": payload},
		rpc.Args{"p_payload": payload},
		rpc.Args{"i_payload": payload},
	)
	data, procErr := descriptor.Invoke(ctx, s.store)
	if procErr != nil {
		return nil, procErr
	}
	return data, nil
}

// RemovePOF deletes every row carrying the POF number.
func (s *Service) RemovePOF(ctx context.Context, pofNumber string) (json.RawMessage, error) {
	pofNumber = strings.TrimSpace(pofNumber)
	if pofNumber == "" {
		return nil, fmt.Errorf("%w: pof number is required", ErrInvalidInput)
	}

	descriptor := rpc.NewDescriptor("rpc_remove_pof",
		rpc.Args{"pof_number": pofNumber},
		rpc.Args{"p_pof_number": pofNumber},
		rpc.Args{"i_pof_number": pofNumber},
	)
	data, procErr := descriptor.Invoke(ctx, s.store)
	if procErr != nil {
		return nil, procErr
	}
	return data, nil
}

// DailySales returns the rows and aggregate totals for a date range,
// optionally filtered by mode of payment. Empty bounds default to the
// current Manila month. Reports are cached for a short TTL keyed by the
// full filter set.
func (s *Service) DailySales(ctx context.Context, dateFrom, dateTo, modeOfPayment string) (domain.DailySalesReport, error) {
	dateFrom, dateTo, err := s.resolveRange(dateFrom, dateTo)
	if err != nil {
		return domain.DailySalesReport{}, err
	}

	modeOfPayment = strings.ToUpper(strings.TrimSpace(modeOfPayment))
	if modeOfPayment != "" && modeOfPayment != "ALL" {
		if _, err := domain.ParsePaymentMode(modeOfPayment, false); err != nil {
			return domain.DailySalesReport{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
		}
	}

	cacheKey := fmt.Sprintf("daily-sales:%s:%s:%s", dateFrom, dateTo, modeOfPayment)
	if cached, found, err := s.reports.Get(ctx, cacheKey); err != nil {
		log.Printf("[service] WARN: report cache get failed key=%s: %v", cacheKey, err)
	} else if found {
		return *cached, nil
	}

	rows, err := s.store.ListDailySales(ctx, dateFrom, dateTo, modeOfPayment)
	if err != nil {
		return domain.DailySalesReport{}, err
	}

	report := domain.DailySalesReport{
		Rows:   rows,
		Totals: domain.Totalize(rows),
	}

	if err := s.reports.Set(ctx, cacheKey, &report, s.reportTTL); err != nil {
		log.Printf("[service] WARN: report cache set failed key=%s: %v", cacheKey, err)
	}

	return report, nil
}

// Performance invokes the performance procedure and distills whatever row
// shape it returns into the uniform dataset. The raw payload is returned
// alongside so callers can pass it through untouched.
func (s *Service) Performance(ctx context.Context, dateFrom, dateTo string) (domain.SalesDataset, json.RawMessage, error) {
	dateFrom, dateTo, err := s.resolveRange(dateFrom, dateTo)
	if err != nil {
		return domain.SalesDataset{}, nil, err
	}

	descriptor := rpc.NewDescriptor("rpc_sales_api_performance",
		rpc.Args{"date_from": dateFrom, "date_to": dateTo},
		rpc.Args{"p_date_from": dateFrom, "p_date_to": dateTo},
		rpc.Args{"df": dateFrom, "dt": dateTo},
		rpc.Args{"dateFrom": dateFrom, "dateTo": dateTo},
		rpc.Args{"from_date": dateFrom, "to_date": dateTo},
	)
	raw, procErr := descriptor.Invoke(ctx, s.store)
	if procErr != nil {
		return domain.SalesDataset{}, nil, procErr
	}

	dataset := normalizeDataset(raw, dateFrom, dateTo)
	return dataset, raw, nil
}

// Sync pulls the external GG rows for the range and pushes them through the
// upsert procedure. The range check runs before any network traffic, the
// upsert is skipped when the fetch yields nothing, and the post-upsert count
// is best effort: its failure degrades the result, never the sync.
func (s *Service) Sync(ctx context.Context, dateFrom, dateTo string) (domain.SyncResult, error) {
	dateFrom, dateTo, err := s.resolveRange(dateFrom, dateTo)
	if err != nil {
		return domain.SyncResult{}, err
	}
	if dateFrom > dateTo {
		return domain.SyncResult{}, fmt.Errorf("%w: dateFrom cannot be after dateTo", ErrInvalidInput)
	}

	syncID := xid.New("sync")
	log.Printf("[service] sync %s started range=%s..%s", syncID, dateFrom, dateTo)

	rows, err := s.gg.Fetch(ctx, dateFrom, dateTo)
	if err != nil {
		return domain.SyncResult{}, err
	}

	result := domain.SyncResult{
		GGFetched: len(rows),
		DateFrom:  dateFrom,
		DateTo:    dateTo,
	}

	if len(rows) > 0 {
		list := make([]any, len(rows))
		for i, row := range rows {
			list[i] = row
		}
		descriptor := rpc.NewDescriptor("rpc_upsert_sales_api_list",
			rpc.Args{"p_list": list},
			rpc.Args{"list": list},
			rpc.Args{"i_list": list},
		)
		if _, procErr := descriptor.Invoke(ctx, s.store); procErr != nil {
			return domain.SyncResult{}, procErr
		}
	}

	count, err := s.store.CountSalesAPIRange(ctx, dateFrom, dateTo)
	if err != nil {
		log.Printf("[service] WARN: sync %s post-upsert count failed: %v", syncID, err)
	} else {
		result.UpsertRangeCount = &count
	}

	log.Printf("[service] sync %s done fetched=%d", syncID, result.GGFetched)
	return result, nil
}

// PaymentTypeOptions exposes the selectable payment types for a mode.
func (s *Service) PaymentTypeOptions(mode string) ([]pricing.PaymentTypeOption, error) {
	parsed, err := domain.ParsePaymentMode(mode, true)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	return pricing.PaymentTypeOptions(parsed), nil
}

// resolveRange fills empty bounds with the default Manila range and
// validates both dates.
func (s *Service) resolveRange(dateFrom, dateTo string) (string, string, error) {
	defaultFrom, defaultTo := s.gg.DefaultRange()
	dateFrom = strings.TrimSpace(dateFrom)
	dateTo = strings.TrimSpace(dateTo)
	if dateFrom == "" {
		dateFrom = defaultFrom
	}
	if dateTo == "" {
		dateTo = defaultTo
	}
	if err := ggsales.ValidateDate(dateFrom); err != nil {
		return "", "", fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	if err := ggsales.ValidateDate(dateTo); err != nil {
		return "", "", fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	return dateFrom, dateTo, nil
}

// normalizeEntry validates the enums and the payment split, then re-derives
// every computed field server side. Submitted price, sales and secondary
// amounts are honored as manual overrides when present; counts always come
// from the catalog rules.
func (s *Service) normalizeEntry(entry domain.SaleEntry) (*domain.SaleEntry, error) {
	entry.POFNumber = strings.TrimSpace(entry.POFNumber)
	if entry.POFNumber == "" {
		return nil, fmt.Errorf("%w: pof number is required", ErrInvalidInput)
	}
	if err := ggsales.ValidateDate(entry.Date); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	if strings.TrimSpace(entry.MemberName) == "" {
		return nil, fmt.Errorf("%w: member name is required", ErrInvalidInput)
	}

	member, err := domain.ParseMemberType(string(entry.MemberType))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	pkg, err := domain.ParsePackageType(string(entry.PackageType))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	primary, err := domain.ParsePaymentMode(string(entry.PrimaryPayment.Mode), false)
	if err != nil {
		return nil, fmt.Errorf("%w: primary %v", ErrInvalidInput, err)
	}
	secondary, err := domain.ParsePaymentMode(string(entry.SecondaryPayment.Mode), true)
	if err != nil {
		return nil, fmt.Errorf("%w: secondary %v", ErrInvalidInput, err)
	}
	if secondary != domain.PaymentNA && secondary == primary {
		return nil, fmt.Errorf("%w: %s", ErrInvalidInput, pricing.MsgSecondaryMatchesPrimary)
	}
	if entry.Quantity < 1 {
		return nil, fmt.Errorf("%w: quantity must be at least 1", ErrInvalidInput)
	}

	entry.MemberType = member
	entry.PackageType = pkg
	entry.PrimaryPayment.Mode = primary
	entry.SecondaryPayment.Mode = secondary

	if entry.OriginalPrice <= 0 {
		entry.OriginalPrice = pricing.PriceFor(pkg).OriginalPrice
	}

	state := pricing.FormState{
		MemberType:      member,
		PackageType:     pkg,
		IsToBlister:     entry.IsToBlister,
		Quantity:        entry.Quantity,
		OriginalPrice:   entry.OriginalPrice,
		Discount:        entry.Discount,
		OneTimeDiscount: entry.OneTimeDiscount,
		PrimaryMode:     primary,
	}
	if entry.Price > 0 {
		state.Price = pricing.Manual(entry.Price)
	}
	if entry.Sales > 0 {
		state.Sales = pricing.Manual(entry.Sales)
	}
	if primary != domain.PaymentEpoints && entry.SecondaryPayment.Amount > 0 {
		state.SecondaryAmount = pricing.Manual(entry.SecondaryPayment.Amount)
	}
	state = pricing.Derive(state)

	entry.Quantity = state.Quantity
	entry.Discount = state.Discount
	entry.OneTimeDiscount = state.OneTimeDiscount
	entry.Price = state.Price.Value
	entry.Sales = state.Sales.Value
	entry.BottleCount = state.BottleCount
	entry.BlisterCount = state.BlisterCount
	entry.PrimaryPayment.Amount = state.Sales.Value - state.SecondaryAmount.Value
	entry.SecondaryPayment.Amount = state.SecondaryAmount.Value

	return &entry, nil
}

// entryPayload flattens the entry to the JSON object the procedures take.
func entryPayload(entry domain.SaleEntry) (map[string]any, error) {
	raw, err := json.Marshal(entry)
	if err != nil {
		return nil, err
	}
	var payload map[string]any
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, err
	}
	return payload, nil
}

// normalizeDataset reduces the performance payload to the uniform dataset.
// The procedure has shipped several shapes over time: a full dataset object,
// an object holding an agent array under a conventional key, or a bare agent
// array. Agent columns go through NormalizeAgentRow so the varying id and
// name spellings collapse to one record shape. An unrecognized payload
// yields an empty labelled dataset.
func normalizeDataset(raw json.RawMessage, dateFrom, dateTo string) domain.SalesDataset {
	label := dateFrom + " to " + dateTo

	var wrapped map[string]json.RawMessage
	if err := json.Unmarshal(raw, &wrapped); err == nil {
		dataset := domain.SalesDataset{Label: label}
		if inner, ok := wrapped["label"]; ok {
			var text string
			if json.Unmarshal(inner, &text) == nil && text != "" {
				dataset.Label = text
			}
		}
		if inner, ok := wrapped["summary"]; ok {
			_ = json.Unmarshal(inner, &dataset.Summary)
		}
		for _, key := range []string{"agents", "data", "rows", "result"} {
			inner, ok := wrapped[key]
			if !ok {
				continue
			}
			var rows []map[string]any
			if err := json.Unmarshal(inner, &rows); err == nil {
				dataset.Agents = normalizeAgents(rows)
				if len(dataset.Summary) == 0 {
					dataset.Summary = domain.SummarizeDataset(rows, dataset.Agents)
				}
				break
			}
		}
		return dataset
	}

	var rows []map[string]any
	if err := json.Unmarshal(raw, &rows); err == nil {
		agents := normalizeAgents(rows)
		return domain.SalesDataset{
			Label:   label,
			Summary: domain.SummarizeDataset(rows, agents),
			Agents:  agents,
		}
	}

	return domain.SalesDataset{Label: label}
}

func normalizeAgents(rows []map[string]any) []domain.AgentPerformance {
	agents := make([]domain.AgentPerformance, 0, len(rows))
	for i, row := range rows {
		agent := domain.NormalizeAgentRow(row)
		if agent.ID == "" {
			agent.ID = fmt.Sprintf("agent-%d", i+1)
		}
		if agent.Name == "" {
			agent.Name = fmt.Sprintf("Agent %d", i+1)
		}
		if agent.Status == "" {
			agent.Status = "active"
		}
		agents = append(agents, agent)
	}
	return agents
}
