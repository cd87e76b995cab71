// Package ledger holds the credit-sale arithmetic: totals, payments,
// outstanding balances, debt per client and monthly revenue buckets. Every
// function is pure; callers own locking and persistence.
package ledger

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"perfumaria/backend/internal/domain"
)

// SettleToleranceCents is the residual still treated as paid off.
const SettleToleranceCents int64 = 1

// MaxRevenueBuckets caps MonthlyRevenue output.
const MaxRevenueBuckets = 6

var (
	ErrEmptyCart         = errors.New("cart has no items")
	ErrNegativePrice     = errors.New("unit price must not be negative")
	ErrNonPositiveAmount = errors.New("payment amount must be greater than zero")
	ErrOverpayment       = errors.New("payment exceeds outstanding balance")
	ErrAlreadySettled    = errors.New("sale is already settled")
	ErrAmountTooLarge    = errors.New("amount exceeds the supported maximum")
)

type OverpaymentPolicy string

const (
	OverpaymentAllow  OverpaymentPolicy = "allow-negative-balance"
	OverpaymentReject OverpaymentPolicy = "reject"
	OverpaymentClamp  OverpaymentPolicy = "clamp"
)

func ParseOverpaymentPolicy(raw string) (OverpaymentPolicy, error) {
	switch OverpaymentPolicy(strings.ToLower(strings.TrimSpace(raw))) {
	case "", OverpaymentAllow:
		return OverpaymentAllow, nil
	case OverpaymentReject:
		return OverpaymentReject, nil
	case OverpaymentClamp:
		return OverpaymentClamp, nil
	default:
		return "", fmt.Errorf("unknown overpayment policy %q", raw)
	}
}

func Paid(sale domain.Sale) int64 {
	var paid int64
	for _, p := range sale.Payments {
		paid += p.AmountCents
	}
	return paid
}

// Outstanding may go negative when overpayment is allowed.
func Outstanding(sale domain.Sale) int64 {
	return sale.TotalCents - Paid(sale)
}

func IsSettled(sale domain.Sale) bool {
	return Outstanding(sale) <= SettleToleranceCents
}

func Status(sale domain.Sale) domain.SaleStatus {
	if sale.PaymentMethod != domain.PaymentCredit || IsSettled(sale) {
		return domain.SaleStatusPaid
	}
	if len(sale.Payments) == 0 {
		return domain.SaleStatusPending
	}
	return domain.SaleStatusPartial
}

func Balance(sale domain.Sale, clientName string) domain.SaleBalance {
	return domain.SaleBalance{
		Sale:             sale,
		ClientName:       clientName,
		Status:           Status(sale),
		PaidCents:        Paid(sale),
		OutstandingCents: Outstanding(sale),
	}
}

// CleanItems drops lines with a non-positive quantity and rejects a cart
// that ends up empty, carries a negative price or totals more than
// domain.MaxAmountCents.
func CleanItems(items []domain.SaleItem) ([]domain.SaleItem, error) {
	cleaned := make([]domain.SaleItem, 0, len(items))
	total := decimal.Zero
	for _, item := range items {
		if item.Quantity <= 0 {
			continue
		}
		if item.UnitPriceCents < 0 {
			return nil, fmt.Errorf("product %s: %w", item.ProductID, ErrNegativePrice)
		}
		total = total.Add(decimal.NewFromInt(item.UnitPriceCents).Mul(decimal.NewFromInt(int64(item.Quantity))))
		if !domain.CentsInRange(total) {
			return nil, fmt.Errorf("product %s: %w", item.ProductID, ErrAmountTooLarge)
		}
		cleaned = append(cleaned, item)
	}
	if len(cleaned) == 0 {
		return nil, ErrEmptyCart
	}
	return cleaned, nil
}

// Total expects items that passed CleanItems.
func Total(items []domain.SaleItem) int64 {
	var total int64
	for _, item := range items {
		total += item.UnitPriceCents * int64(item.Quantity)
	}
	return total
}

// NewSale freezes the total and, for anything but credit, records a payment
// covering it in full. ids supplies the sale and payment identifiers.
func NewSale(clientID string, items []domain.SaleItem, method domain.PaymentMethod, now time.Time, ids func(prefix string) string) (domain.Sale, error) {
	cleaned, err := CleanItems(items)
	if err != nil {
		return domain.Sale{}, err
	}

	sale := domain.Sale{
		ID:            ids("sale"),
		ClientID:      clientID,
		Items:         cleaned,
		TotalCents:    Total(cleaned),
		Date:          now,
		PaymentMethod: method,
		Payments:      []domain.Payment{},
	}
	if method != domain.PaymentCredit {
		sale.Payments = append(sale.Payments, domain.Payment{
			ID:          ids("pay"),
			Date:        now,
			AmountCents: sale.TotalCents,
			Method:      string(method),
		})
	}
	return sale, nil
}

// ApplyPayment returns a copy of sale with payment appended, after the
// policy has had its say on the amount.
func ApplyPayment(sale domain.Sale, payment domain.Payment, policy OverpaymentPolicy) (domain.Sale, error) {
	if payment.AmountCents <= 0 {
		return sale, ErrNonPositiveAmount
	}
	if payment.AmountCents > domain.MaxAmountCents-Paid(sale) {
		return sale, ErrAmountTooLarge
	}

	outstanding := Outstanding(sale)
	switch policy {
	case OverpaymentReject:
		if payment.AmountCents > outstanding {
			return sale, fmt.Errorf("%w: outstanding %s", ErrOverpayment, domain.FormatCents(outstanding))
		}
	case OverpaymentClamp:
		if IsSettled(sale) {
			return sale, ErrAlreadySettled
		}
		if payment.AmountCents > outstanding {
			payment.AmountCents = outstanding
		}
	}

	next := sale
	next.Payments = make([]domain.Payment, 0, len(sale.Payments)+1)
	next.Payments = append(next.Payments, sale.Payments...)
	next.Payments = append(next.Payments, payment)
	return next, nil
}

// DebtByClient sums the open credit per client. Clients appear in the order
// their first open sale is met; sales of deleted clients are skipped.
func DebtByClient(sales []domain.Sale, clients []domain.Client) []domain.ClientDebt {
	byID := make(map[string]domain.Client, len(clients))
	for _, c := range clients {
		byID[c.ID] = c
	}

	index := make(map[string]int)
	out := make([]domain.ClientDebt, 0)
	for _, sale := range sales {
		if sale.PaymentMethod != domain.PaymentCredit {
			continue
		}
		debt := Outstanding(sale)
		if debt <= SettleToleranceCents {
			continue
		}
		client, ok := byID[sale.ClientID]
		if !ok {
			continue
		}
		i, seen := index[sale.ClientID]
		if !seen {
			i = len(out)
			index[sale.ClientID] = i
			out = append(out, domain.ClientDebt{Client: client})
		}
		out[i].TotalDebtCents += debt
		out[i].PendingSaleCount++
	}
	return out
}

// OpenCreditSales lists the unsettled credit sales of one client in stored
// order.
func OpenCreditSales(sales []domain.Sale, clientID string) []domain.Sale {
	out := make([]domain.Sale, 0)
	for _, sale := range sales {
		if sale.ClientID != clientID || sale.PaymentMethod != domain.PaymentCredit {
			continue
		}
		if Outstanding(sale) > SettleToleranceCents {
			out = append(out, sale)
		}
	}
	return out
}

var monthAbbrevPT = [12]string{
	"jan.", "fev.", "mar.", "abr.", "mai.", "jun.",
	"jul.", "ago.", "set.", "out.", "nov.", "dez.",
}

// MonthLabel is the short pt-BR month name of t in loc, optionally followed
// by the year. A nil loc means UTC.
func MonthLabel(t time.Time, withYear bool, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	t = t.In(loc)
	label := monthAbbrevPT[t.Month()-1]
	if withYear {
		return fmt.Sprintf("%s %d", label, t.Year())
	}
	return label
}

// MonthlyRevenue buckets booked sale totals by month label in order of first
// appearance and keeps the last MaxRevenueBuckets buckets. Without byYear the
// same month of different years shares a bucket. Months follow the shop's
// calendar in loc.
func MonthlyRevenue(sales []domain.Sale, byYear bool, loc *time.Location) []domain.MonthlyRevenue {
	index := make(map[string]int)
	buckets := make([]domain.MonthlyRevenue, 0)
	for _, sale := range sales {
		label := MonthLabel(sale.Date, byYear, loc)
		i, ok := index[label]
		if !ok {
			i = len(buckets)
			index[label] = i
			buckets = append(buckets, domain.MonthlyRevenue{Month: label})
		}
		buckets[i].TotalCents += sale.TotalCents
	}
	if len(buckets) > MaxRevenueBuckets {
		buckets = buckets[len(buckets)-MaxRevenueBuckets:]
	}
	return buckets
}
