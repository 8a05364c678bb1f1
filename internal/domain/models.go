package domain

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

type MemberType string

const (
	MemberDistributor MemberType = "DISTRIBUTOR"
	MemberStockist    MemberType = "STOCKIST"
	MemberCenter      MemberType = "CENTER"
	MemberNonMember   MemberType = "NON-MEMBER"
)

type PackageType string

const (
	PackageSilver   PackageType = "SILVER"
	PackageGold     PackageType = "GOLD"
	PackagePlatinum PackageType = "PLATINUM"
	PackageRetail   PackageType = "RETAIL"
	PackageBlister  PackageType = "BLISTER"
)

type PaymentMode string

const (
	PaymentNA            PaymentMode = "N/A"
	PaymentCash          PaymentMode = "CASH"
	PaymentBank          PaymentMode = "BANK"
	PaymentMayaIGI       PaymentMode = "MAYA(IGI)"
	PaymentMayaATC       PaymentMode = "MAYA(ATC)"
	PaymentSBCollectIGI  PaymentMode = "SBCOLLECT(IGI)"
	PaymentSBCollectATC  PaymentMode = "SBCOLLECT(ATC)"
	PaymentEwallet       PaymentMode = "EWALLET"
	PaymentCheque        PaymentMode = "CHEQUE"
	PaymentEpoints       PaymentMode = "EPOINTS"
	PaymentConsignment   PaymentMode = "CONSIGNMENT"
	PaymentARCSA         PaymentMode = "AR(CSA)"
	PaymentARLeadSupport PaymentMode = "AR(LEADERSUPPORT)"
)

func MemberTypes() []MemberType {
	return []MemberType{MemberDistributor, MemberStockist, MemberCenter, MemberNonMember}
}

func PackageTypes() []PackageType {
	return []PackageType{PackageSilver, PackageGold, PackagePlatinum, PackageRetail, PackageBlister}
}

// PrimaryPaymentModes lists the modes selectable as the primary payment;
// the N/A sentinel is valid only for the secondary slot.
func PrimaryPaymentModes() []PaymentMode {
	return []PaymentMode{
		PaymentCash, PaymentBank, PaymentMayaIGI, PaymentMayaATC,
		PaymentSBCollectIGI, PaymentSBCollectATC, PaymentEwallet, PaymentCheque,
		PaymentEpoints, PaymentConsignment, PaymentARCSA, PaymentARLeadSupport,
	}
}

func ParseMemberType(raw string) (MemberType, error) {
	value := MemberType(strings.ToUpper(strings.TrimSpace(raw)))
	for _, known := range MemberTypes() {
		if value == known {
			return value, nil
		}
	}
	return "", fmt.Errorf("unknown member type %q", raw)
}

func ParsePackageType(raw string) (PackageType, error) {
	value := PackageType(strings.ToUpper(strings.TrimSpace(raw)))
	for _, known := range PackageTypes() {
		if value == known {
			return value, nil
		}
	}
	return "", fmt.Errorf("unknown package type %q", raw)
}

func ParsePaymentMode(raw string, allowNA bool) (PaymentMode, error) {
	value := PaymentMode(strings.ToUpper(strings.TrimSpace(raw)))
	if value == PaymentNA {
		if allowNA {
			return value, nil
		}
		return "", fmt.Errorf("payment mode N/A not allowed here")
	}
	for _, known := range PrimaryPaymentModes() {
		if value == known {
			return value, nil
		}
	}
	return "", fmt.Errorf("unknown payment mode %q", raw)
}

// Payment is one leg of a sale's payment split.
type Payment struct {
	Mode        PaymentMode `json:"mode"`
	Type        string      `json:"type"`
	ReferenceNo string      `json:"reference_no"`
	Amount      float64     `json:"amount"`
}

type ReleaseCounts struct {
	Bottle  float64 `json:"bottle"`
	Blister float64 `json:"blister"`
}

// SaleEntry is the full encoder record submitted to the add procedure.
// It is write-once: after submission it changes only through the dedicated
// modify and remove procedures.
type SaleEntry struct {
	Event            string        `json:"event"`
	Date             string        `json:"date"`
	POFNumber        string        `json:"pof_number"`
	MemberName       string        `json:"member_name"`
	Username         string        `json:"username"`
	IsNewMember      bool          `json:"is_new_member"`
	MemberType       MemberType    `json:"member_type"`
	PackageType      PackageType   `json:"package_type"`
	IsToBlister      bool          `json:"is_to_blister"`
	OriginalPrice    float64       `json:"original_price"`
	Quantity         float64       `json:"quantity"`
	Discount         float64       `json:"discount"`
	OneTimeDiscount  float64       `json:"one_time_discount"`
	Price            float64       `json:"price"`
	BottleCount      float64       `json:"bottle_count"`
	BlisterCount     float64       `json:"blister_count"`
	Sales            float64       `json:"sales"`
	PrimaryPayment   Payment       `json:"primary_payment"`
	SecondaryPayment Payment       `json:"secondary_payment"`
	Released         ReleaseCounts `json:"released"`
	ToFollow         ReleaseCounts `json:"to_follow"`
	Remarks          string        `json:"remarks"`
	ReceivedBy       string        `json:"received_by"`
	CollectedBy      string        `json:"collected_by"`
}

// DailySalesRow is a normalized row from the backend daily_sales table.
type DailySalesRow struct {
	DailySalesID  any     `json:"daily_sales_id"`
	TransDate     string  `json:"trans_date"`
	POFNumber     string  `json:"pof_number"`
	MemberName    string  `json:"member_name"`
	Username      string  `json:"username"`
	PackageType   string  `json:"package_type"`
	BottleCount   float64 `json:"bottle_count"`
	BlisterCount  float64 `json:"blister_count"`
	Sales         float64 `json:"sales"`
	ModeOfPayment string  `json:"mode_of_payment"`
	PaymentType   string  `json:"payment_type"`
	IsNewMember   bool    `json:"is_new_member"`
}

type DailySalesTotals struct {
	TotalSales        float64 `json:"totalSales"`
	TotalBottles      float64 `json:"totalBottles"`
	TotalBlisters     float64 `json:"totalBlisters"`
	TotalTransactions int     `json:"totalTransactions"`
	NewMembers        int     `json:"newMembers"`
}

type DailySalesReport struct {
	Rows   []DailySalesRow  `json:"rows"`
	Totals DailySalesTotals `json:"totals"`
}

// NormalizeDailySalesRow coerces a raw backend row into a DailySalesRow.
// Numeric columns can arrive as numbers or strings depending on the backend
// column type; both are accepted, anything else counts as zero.
func NormalizeDailySalesRow(raw map[string]any) DailySalesRow {
	return DailySalesRow{
		DailySalesID:  raw["daily_sales_id"],
		TransDate:     ToString(raw["trans_date"]),
		POFNumber:     ToString(raw["pof_number"]),
		MemberName:    ToString(raw["member_name"]),
		Username:      ToString(raw["username"]),
		PackageType:   ToString(raw["package_type"]),
		BottleCount:   ToNumber(raw["bottle_count"]),
		BlisterCount:  ToNumber(raw["blister_count"]),
		Sales:         ToNumber(raw["sales"]),
		ModeOfPayment: ToString(raw["mode_of_payment"]),
		PaymentType:   ToString(raw["payment_type"]),
		IsNewMember:   ToBool(raw["is_new_member"]),
	}
}

func Totalize(rows []DailySalesRow) DailySalesTotals {
	totals := DailySalesTotals{}
	for _, row := range rows {
		totals.TotalSales += row.Sales
		totals.TotalBottles += row.BottleCount
		totals.TotalBlisters += row.BlisterCount
		totals.TotalTransactions++
		if row.IsNewMember {
			totals.NewMembers++
		}
	}
	return totals
}

// AgentPerformance is the uniform agent record distilled from whatever row
// shape the performance procedure returns.
type AgentPerformance struct {
	ID             string  `json:"id"`
	Name           string  `json:"name"`
	Sales          float64 `json:"sales"`
	Target         float64 `json:"target"`
	ConversionRate float64 `json:"conversion_rate"`
	Status         string  `json:"status"`
}

// NormalizeAgentRow coerces one performance row into AgentPerformance. The
// procedure's column names have shipped under several spellings; the first
// present key wins.
func NormalizeAgentRow(row map[string]any) AgentPerformance {
	return AgentPerformance{
		ID:             firstString(row, "id", "leader_id", "agent_id", "username"),
		Name:           firstString(row, "name", "leader_name", "agent_name", "full_name"),
		Sales:          firstNumber(row, "sales", "total_sales", "amount"),
		Target:         firstNumber(row, "target", "sales_target", "quota"),
		ConversionRate: firstNumber(row, "conversion_rate", "conversion"),
		Status:         firstString(row, "status", "state"),
	}
}

func firstString(row map[string]any, keys ...string) string {
	for _, key := range keys {
		value, ok := row[key]
		if !ok || value == nil {
			continue
		}
		if s := ToString(value); s != "" {
			return s
		}
		if n := ToNumber(value); n != 0 {
			return strconv.FormatFloat(n, 'f', -1, 64)
		}
	}
	return ""
}

func firstNumber(row map[string]any, keys ...string) float64 {
	for _, key := range keys {
		if value, ok := row[key]; ok && value != nil {
			return ToNumber(value)
		}
	}
	return 0
}

type SummaryStat struct {
	ID    string `json:"id"`
	Label string `json:"label"`
	Value string `json:"value"`
	Trend string `json:"trend"`
}

// SummarizeDataset derives the four headline stats: total sales and mean
// conversion from the normalized agents, order and error counts summed
// from the raw rows (their column names also vary by backend revision).
func SummarizeDataset(rows []map[string]any, agents []AgentPerformance) []SummaryStat {
	var totalSales, conversionSum float64
	for _, agent := range agents {
		totalSales += agent.Sales
		conversionSum += agent.ConversionRate
	}

	var totalOrders, totalErrors float64
	for _, row := range rows {
		totalOrders += firstNumber(row, "orders", "order_count", "deals_total")
		totalErrors += firstNumber(row, "errors", "error_count", "sync_errors")
	}

	var avgConversion float64
	if len(agents) > 0 {
		avgConversion = conversionSum / float64(len(agents))
	}

	errorTrend := "down"
	if totalErrors > 0 {
		errorTrend = "up"
	}

	return []SummaryStat{
		{ID: "api-total", Label: "API Total Sales", Value: "$" + groupDigits(totalSales), Trend: "up"},
		{ID: "api-orders", Label: "API Orders", Value: groupDigits(totalOrders), Trend: "up"},
		{ID: "api-errors", Label: "Sync Errors", Value: groupDigits(totalErrors), Trend: errorTrend},
		{ID: "api-latency", Label: "Avg Response", Value: fmt.Sprintf("%d%%", int(math.Round(avgConversion))), Trend: "neutral"},
	}
}

// groupDigits renders the rounded value with thousands separators.
func groupDigits(value float64) string {
	s := strconv.FormatInt(int64(math.Round(value)), 10)
	negative := strings.HasPrefix(s, "-")
	if negative {
		s = s[1:]
	}
	for i := len(s) - 3; i > 0; i -= 3 {
		s = s[:i] + "," + s[i:]
	}
	if negative {
		s = "-" + s
	}
	return s
}

type SalesDataset struct {
	Label   string             `json:"label"`
	Summary []SummaryStat      `json:"summary"`
	Agents  []AgentPerformance `json:"agents"`
}

// SyncResult reports one completed external sales synchronization pass.
// UpsertRangeCount is nil when the best-effort post-upsert count failed.
type SyncResult struct {
	GGFetched        int    `json:"ggFetched"`
	DateFrom         string `json:"dateFrom"`
	DateTo           string `json:"dateTo"`
	UpsertRangeCount *int64 `json:"upsertRangeCount"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	Role        string `json:"role"`
	ExpiresAt   string `json:"expires_at"`
}

type Actor struct {
	Username string
	Role     string
}

type EncoderCreateRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type EncoderUser struct {
	Username  string    `json:"username"`
	Role      string    `json:"role"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

// UserAccount is an internal persistence model for auth credentials.
type UserAccount struct {
	Username  string
	Password  string
	Role      string
	Active    bool
	CreatedAt time.Time
}

func ToNumber(value any) float64 {
	switch v := value.(type) {
	case float64:
		return v
	case float32:
		return float64(v)
	case int:
		return float64(v)
	case int64:
		return float64(v)
	case string:
		var parsed float64
		if _, err := fmt.Sscanf(strings.TrimSpace(v), "%g", &parsed); err == nil && strings.TrimSpace(v) != "" {
			return parsed
		}
	}
	return 0
}

func ToBool(value any) bool {
	b, ok := value.(bool)
	return ok && b
}

func ToString(value any) string {
	s, _ := value.(string)
	return s
}
