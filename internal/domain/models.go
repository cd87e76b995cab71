package domain

import (
	"strings"
	"time"
)

type Client struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Phone     string `json:"phone"`
	Email     string `json:"email"`
	Address   string `json:"address"`
	AvatarURL string `json:"avatar_url"`
}

type ClientCreateRequest struct {
	Name    string `json:"name"`
	Phone   string `json:"phone"`
	Email   string `json:"email"`
	Address string `json:"address"`
}

type Product struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	PriceCents int64  `json:"price_cents"`
}

// ProductCreateRequest accepts the price either in cents or as a decimal
// string ("149.90"). Price wins when both are set.
type ProductCreateRequest struct {
	Name       string `json:"name"`
	PriceCents int64  `json:"price_cents"`
	Price      string `json:"price,omitempty"`
}

type SaleItem struct {
	ProductID      string `json:"product_id"`
	Quantity       int    `json:"quantity"`
	UnitPriceCents int64  `json:"unit_price_cents"`
}

type Payment struct {
	ID          string    `json:"id"`
	Date        time.Time `json:"date"`
	AmountCents int64     `json:"amount_cents"`
	Method      string    `json:"method"`
}

type Sale struct {
	ID            string        `json:"id"`
	ClientID      string        `json:"client_id"`
	Items         []SaleItem    `json:"items"`
	TotalCents    int64         `json:"total_cents"`
	Date          time.Time     `json:"date"`
	PaymentMethod PaymentMethod `json:"payment_method"`
	Payments      []Payment     `json:"payments"`
}

type SaleCreateRequest struct {
	ClientID      string     `json:"client_id"`
	Items         []SaleItem `json:"items"`
	PaymentMethod string     `json:"payment_method"`
}

type PaymentCreateRequest struct {
	AmountCents int64  `json:"amount_cents"`
	Amount      string `json:"amount,omitempty"`
	Method      string `json:"method,omitempty"`
}

// SaleBalance is a sale together with its ledger position.
type SaleBalance struct {
	Sale             Sale       `json:"sale"`
	ClientName       string     `json:"client_name"`
	Status           SaleStatus `json:"status"`
	PaidCents        int64      `json:"paid_cents"`
	OutstandingCents int64      `json:"outstanding_cents"`
}

type ClientDebt struct {
	Client           Client `json:"client"`
	TotalDebtCents   int64  `json:"total_debt_cents"`
	PendingSaleCount int    `json:"pending_sale_count"`
}

type MonthlyRevenue struct {
	Month      string `json:"month"`
	TotalCents int64  `json:"total_cents"`
}

type Expense struct {
	ID          string    `json:"id"`
	Description string    `json:"description"`
	Category    string    `json:"category"`
	AmountCents int64     `json:"amount_cents"`
	Date        time.Time `json:"date"`
}

type ExpenseCreateRequest struct {
	Description string `json:"description"`
	Category    string `json:"category"`
	AmountCents int64  `json:"amount_cents"`
	Amount      string `json:"amount,omitempty"`
	// Date is YYYY-MM-DD; today when empty.
	Date string `json:"date,omitempty"`
}

type UserProfile struct {
	Name      string `json:"name"`
	Phone     string `json:"phone"`
	Email     string `json:"email"`
	AvatarURL string `json:"avatar_url"`
}

type DashboardSummary struct {
	TotalRevenueCents  int64            `json:"total_revenue_cents"`
	TotalExpensesCents int64            `json:"total_expenses_cents"`
	NetProfitCents     int64            `json:"net_profit_cents"`
	SaleCount          int              `json:"sale_count"`
	OpenDebtCents      int64            `json:"open_debt_cents"`
	MonthlyRevenue     []MonthlyRevenue `json:"monthly_revenue"`
	GeneratedAt        time.Time        `json:"generated_at"`
}

// DeletePlan is the first half of a confirmed delete: the caller resubmits
// Token to commit.
type DeletePlan struct {
	Action    string    `json:"action"`
	TargetID  string    `json:"target_id,omitempty"`
	Summary   string    `json:"summary"`
	Token     string    `json:"confirm_token"`
	ExpiresAt time.Time `json:"expires_at"`
}

type ResetRequest struct {
	ConfirmToken string `json:"confirm_token"`
	PIN          string `json:"pin,omitempty"`
}

type PaymentMethod string

const (
	PaymentPix    PaymentMethod = "Pix"
	PaymentCard   PaymentMethod = "Cartão"
	PaymentCash   PaymentMethod = "Dinheiro"
	PaymentCredit PaymentMethod = "Fiado"
)

// ParsePaymentMethod accepts the stored labels and their English names.
func ParsePaymentMethod(raw string) (PaymentMethod, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "pix":
		return PaymentPix, true
	case "cartão", "cartao", "card":
		return PaymentCard, true
	case "dinheiro", "cash":
		return PaymentCash, true
	case "fiado", "credit":
		return PaymentCredit, true
	default:
		return "", false
	}
}

type SaleStatus string

const (
	SaleStatusPaid    SaleStatus = "Pago"
	SaleStatusPending SaleStatus = "Pendente"
	SaleStatusPartial SaleStatus = "Parcial"
)

const (
	DefaultExpenseCategory = "Outros"
	DefaultPaymentLabel    = "Pix"
	UnknownClientName      = "Desconhecido"
)

var ExpenseCategories = []string{
	"Compra de Estoque",
	"Embalagens",
	"Marketing",
	"Transporte",
	"Alimentação",
	DefaultExpenseCategory,
}

// Confirmed actions. Each one names what a DeletePlan token authorises.
const (
	ActionDeleteClient  = "delete_client"
	ActionDeleteProduct = "delete_product"
	ActionDeleteExpense = "delete_expense"
	ActionResetAll      = "reset_all"
)
