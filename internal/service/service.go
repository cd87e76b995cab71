package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"perfumaria/backend/internal/cache"
	"perfumaria/backend/internal/domain"
	"perfumaria/backend/internal/ledger"
	"perfumaria/backend/internal/logging"
	"perfumaria/backend/internal/store"
	"perfumaria/backend/internal/xid"
)

const dateLayout = "2006-01-02"

type Options struct {
	OverpaymentPolicy ledger.OverpaymentPolicy
	BucketByYear      bool
	Cache             cache.DashboardCache
	CacheTTL          time.Duration
	// Location is the shop's calendar for month buckets and expense
	// dates. Nil means UTC.
	Location          *time.Location
}

// Service is the entity store. Every operation runs under one mutex and
// mirrors the collection it touched to the KV port before returning.
type Service struct {
	mu sync.Mutex

	kv           store.KV
	cache        cache.DashboardCache
	cacheTTL     time.Duration
	policy       ledger.OverpaymentPolicy
	bucketByYear bool
	loc          *time.Location
	log          zerolog.Logger
	now          func() time.Time
	newID        func(prefix string) string

	// revision changes on every mutation; with namespace it keys the
	// dashboard cache.
	revision  uint64
	namespace string

	clients  []domain.Client
	products []domain.Product
	sales    []domain.Sale
	expenses []domain.Expense
	user     domain.UserProfile
}

// New rehydrates every collection from kv. Absent or undecodable keys fall
// back to the first-run dataset; a failing kv aborts.
func New(ctx context.Context, kv store.KV, opts Options) (*Service, error) {
	if opts.OverpaymentPolicy == "" {
		opts.OverpaymentPolicy = ledger.OverpaymentAllow
	}
	if opts.Cache == nil {
		opts.Cache = cache.NoopDashboardCache{}
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}

	s := &Service{
		kv:           kv,
		cache:        opts.Cache,
		cacheTTL:     opts.CacheTTL,
		policy:       opts.OverpaymentPolicy,
		bucketByYear: opts.BucketByYear,
		loc:          opts.Location,
		log:          logging.Component("service"),
		now:          func() time.Time { return time.Now().UTC() },
		newID:        xid.New,
		namespace:    xid.New("rev"),
	}

	var err error
	if s.clients, err = loadCollection(ctx, s, store.KeyClients, seedClients); err != nil {
		return nil, err
	}
	if s.products, err = loadCollection(ctx, s, store.KeyProducts, seedProducts); err != nil {
		return nil, err
	}
	if s.sales, err = loadCollection(ctx, s, store.KeySales, seedSales); err != nil {
		return nil, err
	}
	if s.expenses, err = loadCollection(ctx, s, store.KeyExpenses, seedExpenses); err != nil {
		return nil, err
	}
	if s.user, err = loadCollection(ctx, s, store.KeyUser, seedUser); err != nil {
		return nil, err
	}

	return s, nil
}

func loadCollection[T any](ctx context.Context, s *Service, key string, fallback func() T) (T, error) {
	raw, found, err := s.kv.Load(ctx, key)
	if err != nil {
		var zero T
		return zero, &store.PersistenceError{Key: key, Op: "load", Err: err}
	}
	if !found {
		return fallback(), nil
	}

	var value T
	if err := json.Unmarshal(raw, &value); err != nil {
		s.log.Warn().Err(err).Str("key", key).Msg("stored collection is unreadable, using seed data")
		return fallback(), nil
	}
	return value, nil
}

// persist is called with s.mu held, after the in-memory change.
func (s *Service) persist(ctx context.Context, key string, value any) error {
	s.revision++

	payload, err := json.Marshal(value)
	if err == nil {
		err = s.kv.Save(ctx, key, payload)
	}
	if err != nil {
		s.log.Error().Err(err).Str("key", key).Msg("persist failed, keeping in-memory state")
		return &store.PersistenceError{Key: key, Op: "save", Err: err}
	}
	return nil
}

func requireConfirmation(confirmed bool) error {
	if !confirmed {
		return store.Invalid("confirm", "explicit confirmation required")
	}
	return nil
}

func matchesSearch(name string, search string) bool {
	search = strings.TrimSpace(search)
	return search == "" || strings.Contains(strings.ToLower(name), strings.ToLower(search))
}

func parseAmount(field string, cents int64, raw string) (int64, error) {
	if strings.TrimSpace(raw) != "" {
		parsed, err := domain.ParseCents(raw)
		if err != nil {
			return 0, store.Invalid(field, err.Error())
		}
		cents = parsed
	}
	if cents <= 0 {
		return 0, store.Invalid(field, "must be greater than zero")
	}
	if cents > domain.MaxAmountCents {
		return 0, store.Invalid(field, "exceeds the supported maximum")
	}
	return cents, nil
}

func (s *Service) ListClients(_ context.Context, search string) []domain.Client {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]domain.Client, 0, len(s.clients))
	for _, c := range s.clients {
		if matchesSearch(c.Name, search) {
			out = append(out, c)
		}
	}
	return out
}

func (s *Service) CreateClient(ctx context.Context, req domain.ClientCreateRequest) (domain.Client, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return domain.Client{}, store.Invalid("name", "required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	client := domain.Client{
		ID:        s.newID("c"),
		Name:      name,
		Phone:     strings.TrimSpace(req.Phone),
		Email:     strings.TrimSpace(req.Email),
		Address:   strings.TrimSpace(req.Address),
		AvatarURL: "https://ui-avatars.com/api/?name=" + url.QueryEscape(name),
	}
	s.clients = append(s.clients, client)
	return client, s.persist(ctx, store.KeyClients, s.clients)
}

// DeleteClient leaves the client's sales in place; they show up as
// orphaned in history and drop out of debt aggregation.
func (s *Service) DeleteClient(ctx context.Context, id string, confirmed bool) error {
	if err := requireConfirmation(confirmed); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	i := slices.IndexFunc(s.clients, func(c domain.Client) bool { return c.ID == id })
	if i < 0 {
		return store.NotFound("client", id)
	}
	s.clients = slices.Delete(slices.Clone(s.clients), i, i+1)
	return s.persist(ctx, store.KeyClients, s.clients)
}

func (s *Service) ListProducts(_ context.Context, search string) []domain.Product {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]domain.Product, 0, len(s.products))
	for _, p := range s.products {
		if matchesSearch(p.Name, search) {
			out = append(out, p)
		}
	}
	return out
}

func (s *Service) CreateProduct(ctx context.Context, req domain.ProductCreateRequest) (domain.Product, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return domain.Product{}, store.Invalid("name", "required")
	}
	price, err := parseAmount("price", req.PriceCents, req.Price)
	if err != nil {
		return domain.Product{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	product := domain.Product{ID: s.newID("p"), Name: name, PriceCents: price}
	s.products = append(s.products, product)
	return product, s.persist(ctx, store.KeyProducts, s.products)
}

func (s *Service) DeleteProduct(ctx context.Context, id string, confirmed bool) error {
	if err := requireConfirmation(confirmed); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	i := slices.IndexFunc(s.products, func(p domain.Product) bool { return p.ID == id })
	if i < 0 {
		return store.NotFound("product", id)
	}
	s.products = slices.Delete(slices.Clone(s.products), i, i+1)
	return s.persist(ctx, store.KeyProducts, s.products)
}

func (s *Service) RecordSale(ctx context.Context, req domain.SaleCreateRequest) (domain.Sale, error) {
	clientID := strings.TrimSpace(req.ClientID)
	if clientID == "" {
		return domain.Sale{}, store.Invalid("client_id", "client required")
	}
	method, ok := domain.ParsePaymentMethod(req.PaymentMethod)
	if !ok {
		return domain.Sale{}, store.Invalid("payment_method", fmt.Sprintf("unknown payment method %q", req.PaymentMethod))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	items := make([]domain.SaleItem, 0, len(req.Items))
	for _, item := range req.Items {
		if item.Quantity > 0 && item.UnitPriceCents == 0 {
			i := slices.IndexFunc(s.products, func(p domain.Product) bool { return p.ID == item.ProductID })
			if i < 0 {
				return domain.Sale{}, store.NotFound("product", item.ProductID)
			}
			item.UnitPriceCents = s.products[i].PriceCents
		}
		items = append(items, item)
	}

	sale, err := ledger.NewSale(clientID, items, method, s.now(), s.newID)
	if err != nil {
		return domain.Sale{}, store.Invalid("items", err.Error())
	}

	s.sales = append(s.sales, sale)
	return sale, s.persist(ctx, store.KeySales, s.sales)
}

func (s *Service) AddPayment(ctx context.Context, saleID string, req domain.PaymentCreateRequest) (domain.Sale, error) {
	amount, err := parseAmount("amount", req.AmountCents, req.Amount)
	if err != nil {
		return domain.Sale{}, err
	}
	method := strings.TrimSpace(req.Method)
	if method == "" {
		method = domain.DefaultPaymentLabel
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	i := slices.IndexFunc(s.sales, func(sale domain.Sale) bool { return sale.ID == saleID })
	if i < 0 {
		return domain.Sale{}, store.NotFound("sale", saleID)
	}

	payment := domain.Payment{ID: s.newID("pay"), Date: s.now(), AmountCents: amount, Method: method}
	updated, err := ledger.ApplyPayment(s.sales[i], payment, s.policy)
	if err != nil {
		return domain.Sale{}, store.Invalid("amount", err.Error())
	}

	sales := slices.Clone(s.sales)
	sales[i] = updated
	s.sales = sales
	return updated, s.persist(ctx, store.KeySales, s.sales)
}

func (s *Service) clientName(id string) string {
	for _, c := range s.clients {
		if c.ID == id {
			return c.Name
		}
	}
	return domain.UnknownClientName
}

func (s *Service) GetSale(_ context.Context, id string) (domain.SaleBalance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, sale := range s.sales {
		if sale.ID == id {
			return ledger.Balance(sale, s.clientName(sale.ClientID)), nil
		}
	}
	return domain.SaleBalance{}, store.NotFound("sale", id)
}

// Balance resolves the client name for a sale returned by RecordSale or
// AddPayment.
func (s *Service) Balance(_ context.Context, sale domain.Sale) domain.SaleBalance {
	s.mu.Lock()
	defer s.mu.Unlock()
	return ledger.Balance(sale, s.clientName(sale.ClientID))
}

// SaleHistory lists every sale newest first.
func (s *Service) SaleHistory(_ context.Context) []domain.SaleBalance {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]domain.SaleBalance, 0, len(s.sales))
	for _, sale := range s.sales {
		out = append(out, ledger.Balance(sale, s.clientName(sale.ClientID)))
	}
	slices.SortStableFunc(out, func(a, b domain.SaleBalance) int {
		return b.Sale.Date.Compare(a.Sale.Date)
	})
	return out
}

func (s *Service) DebtByClient(_ context.Context) []domain.ClientDebt {
	s.mu.Lock()
	defer s.mu.Unlock()

	return ledger.DebtByClient(s.sales, s.clients)
}

// ClientCreditSales is the open "fatura" of one client.
func (s *Service) ClientCreditSales(_ context.Context, clientID string) ([]domain.SaleBalance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !slices.ContainsFunc(s.clients, func(c domain.Client) bool { return c.ID == clientID }) {
		return nil, store.NotFound("client", clientID)
	}

	name := s.clientName(clientID)
	open := ledger.OpenCreditSales(s.sales, clientID)
	out := make([]domain.SaleBalance, 0, len(open))
	for _, sale := range open {
		out = append(out, ledger.Balance(sale, name))
	}
	return out, nil
}

func (s *Service) CreateExpense(ctx context.Context, req domain.ExpenseCreateRequest) (domain.Expense, error) {
	description := strings.TrimSpace(req.Description)
	if description == "" {
		return domain.Expense{}, store.Invalid("description", "required")
	}
	amount, err := parseAmount("amount", req.AmountCents, req.Amount)
	if err != nil {
		return domain.Expense{}, err
	}
	category := strings.TrimSpace(req.Category)
	if category == "" {
		category = domain.DefaultExpenseCategory
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	y, m, d := s.now().In(s.loc).Date()
	date := time.Date(y, m, d, 0, 0, 0, 0, s.loc)
	if raw := strings.TrimSpace(req.Date); raw != "" {
		parsed, err := time.ParseInLocation(dateLayout, raw, s.loc)
		if err != nil {
			return domain.Expense{}, store.Invalid("date", "expected YYYY-MM-DD")
		}
		date = parsed
	}

	expense := domain.Expense{
		ID:          s.newID("e"),
		Description: description,
		Category:    category,
		AmountCents: amount,
		Date:        date,
	}
	s.expenses = append(s.expenses, expense)
	return expense, s.persist(ctx, store.KeyExpenses, s.expenses)
}

func (s *Service) DeleteExpense(ctx context.Context, id string, confirmed bool) error {
	if err := requireConfirmation(confirmed); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	i := slices.IndexFunc(s.expenses, func(e domain.Expense) bool { return e.ID == id })
	if i < 0 {
		return store.NotFound("expense", id)
	}
	s.expenses = slices.Delete(slices.Clone(s.expenses), i, i+1)
	return s.persist(ctx, store.KeyExpenses, s.expenses)
}

func (s *Service) ListExpenses(_ context.Context) []domain.Expense {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := slices.Clone(s.expenses)
	slices.SortStableFunc(out, func(a, b domain.Expense) int {
		return b.Date.Compare(a.Date)
	})
	return out
}

func (s *Service) ExpenseCategories() []string {
	return slices.Clone(domain.ExpenseCategories)
}

func (s *Service) GetUserProfile(_ context.Context) domain.UserProfile {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.user
}

// UpdateUserProfile replaces the profile; an empty avatar keeps the current
// one.
func (s *Service) UpdateUserProfile(ctx context.Context, profile domain.UserProfile) (domain.UserProfile, error) {
	profile.Name = strings.TrimSpace(profile.Name)
	if profile.Name == "" {
		return domain.UserProfile{}, store.Invalid("name", "required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if strings.TrimSpace(profile.AvatarURL) == "" {
		profile.AvatarURL = s.user.AvatarURL
	}
	s.user = profile
	return profile, s.persist(ctx, store.KeyUser, s.user)
}

func (s *Service) MonthlyRevenue(_ context.Context) []domain.MonthlyRevenue {
	s.mu.Lock()
	defer s.mu.Unlock()

	return ledger.MonthlyRevenue(s.sales, s.bucketByYear, s.loc)
}

// Dashboard summarises booked revenue against expenses. Results are cached
// per store revision; cache failures only cost a recomputation. The cache is
// never called with s.mu held.
func (s *Service) Dashboard(ctx context.Context) domain.DashboardSummary {
	s.mu.Lock()
	key := s.dashboardKey()
	s.mu.Unlock()

	if cached, found, err := s.cache.Get(ctx, key); err != nil {
		s.log.Warn().Err(err).Msg("dashboard cache read failed")
	} else if found {
		return *cached
	}

	s.mu.Lock()
	key = s.dashboardKey()
	summary := s.summarize()
	s.mu.Unlock()

	if err := s.cache.Set(ctx, key, &summary, s.cacheTTL); err != nil {
		s.log.Warn().Err(err).Msg("dashboard cache write failed")
	}
	return summary
}

func (s *Service) dashboardKey() string {
	return fmt.Sprintf("%s:%d", s.namespace, s.revision)
}

// summarize is called with s.mu held.
func (s *Service) summarize() domain.DashboardSummary {
	summary := domain.DashboardSummary{
		SaleCount:      len(s.sales),
		MonthlyRevenue: ledger.MonthlyRevenue(s.sales, s.bucketByYear, s.loc),
		GeneratedAt:    s.now(),
	}
	for _, sale := range s.sales {
		summary.TotalRevenueCents += sale.TotalCents
	}
	for _, e := range s.expenses {
		summary.TotalExpensesCents += e.AmountCents
	}
	for _, d := range ledger.DebtByClient(s.sales, s.clients) {
		summary.OpenDebtCents += d.TotalDebtCents
	}
	summary.NetProfitCents = summary.TotalRevenueCents - summary.TotalExpensesCents
	return summary
}

// DescribeDelete checks that the target of a confirmed action exists and
// says what committing it will do.
func (s *Service) DescribeDelete(_ context.Context, action string, id string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch action {
	case domain.ActionDeleteClient:
		i := slices.IndexFunc(s.clients, func(c domain.Client) bool { return c.ID == id })
		if i < 0 {
			return "", store.NotFound("client", id)
		}
		orphaned := 0
		for _, sale := range s.sales {
			if sale.ClientID == id {
				orphaned++
			}
		}
		return fmt.Sprintf("delete client %s; %d sale(s) stay in history without a client", s.clients[i].Name, orphaned), nil
	case domain.ActionDeleteProduct:
		i := slices.IndexFunc(s.products, func(p domain.Product) bool { return p.ID == id })
		if i < 0 {
			return "", store.NotFound("product", id)
		}
		return fmt.Sprintf("delete product %s (%s)", s.products[i].Name, domain.FormatBRL(s.products[i].PriceCents)), nil
	case domain.ActionDeleteExpense:
		i := slices.IndexFunc(s.expenses, func(e domain.Expense) bool { return e.ID == id })
		if i < 0 {
			return "", store.NotFound("expense", id)
		}
		return fmt.Sprintf("delete expense %s (%s)", s.expenses[i].Description, domain.FormatBRL(s.expenses[i].AmountCents)), nil
	case domain.ActionResetAll:
		return fmt.Sprintf("erase %d client(s), %d product(s), %d sale(s) and %d expense(s), then restore the starter data",
			len(s.clients), len(s.products), len(s.sales), len(s.expenses)), nil
	default:
		return "", store.Invalid("action", fmt.Sprintf("unknown action %q", action))
	}
}

// ResetAllData deletes every stored collection and goes back to the
// first-run dataset. The seed is not written back; the next start finds the
// keys absent and seeds again.
func (s *Service) ResetAllData(ctx context.Context, confirmed bool) error {
	if err := requireConfirmation(confirmed); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var errs []error
	for _, key := range store.AllKeys {
		if err := s.kv.Delete(ctx, key); err != nil {
			s.log.Error().Err(err).Str("key", key).Msg("reset could not delete key")
			errs = append(errs, &store.PersistenceError{Key: key, Op: "delete", Err: err})
		}
	}

	s.clients = seedClients()
	s.products = seedProducts()
	s.sales = seedSales()
	s.expenses = seedExpenses()
	s.user = seedUser()
	s.revision++

	s.log.Info().Msg("all data reset to starter dataset")
	return errors.Join(errs...)
}
