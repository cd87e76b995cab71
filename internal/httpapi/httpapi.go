package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"perfumaria/backend/internal/domain"
	"perfumaria/backend/internal/logging"
	"perfumaria/backend/internal/service"
	"perfumaria/backend/internal/store"
)

const confirmHeader = "X-Confirm-Token"

const persistWarning = "change applied but could not be saved; it will be lost on restart"

type API struct {
	service        *service.Service
	confirm        *Confirmer
	allowedOrigins []string
	pinLimiter     *attemptLimiter
}

func New(svc *service.Service, confirm *Confirmer, allowedOrigins []string) *API {
	return &API{
		service:        svc,
		confirm:        confirm,
		allowedOrigins: allowedOrigins,
		pinLimiter:     newAttemptLimiter(5, time.Minute),
	}
}

// mutationResponse wraps the result of every write. Warning is set when the
// change is held in memory only.
type mutationResponse struct {
	Data    any    `json:"data"`
	Warning string `json:"warning,omitempty"`
}

func (a *API) Handler() http.Handler {
	router := gin.New()
	router.Use(gin.Recovery(), logging.RequestLogger(), securityHeaders(), limitBody(1<<20))
	if c, ok := a.corsConfig(); ok {
		router.Use(cors.New(c))
	}

	router.GET("/healthz", a.handleHealth)

	v1 := router.Group("/api/v1")

	v1.GET("/clients", a.handleListClients)
	v1.POST("/clients", a.handleCreateClient)
	v1.DELETE("/clients/:id", a.handleDelete(domain.ActionDeleteClient, a.service.DeleteClient))
	v1.GET("/clients/:id/credit-sales", a.handleClientCreditSales)

	v1.GET("/products", a.handleListProducts)
	v1.POST("/products", a.handleCreateProduct)
	v1.DELETE("/products/:id", a.handleDelete(domain.ActionDeleteProduct, a.service.DeleteProduct))

	v1.GET("/sales", a.handleSaleHistory)
	v1.POST("/sales", a.handleRecordSale)
	v1.GET("/sales/:id", a.handleGetSale)
	v1.POST("/sales/:id/payments", a.handleAddPayment)
	v1.GET("/debts", a.handleDebts)

	v1.GET("/expenses", a.handleListExpenses)
	v1.POST("/expenses", a.handleCreateExpense)
	v1.GET("/expenses/categories", a.handleExpenseCategories)
	v1.DELETE("/expenses/:id", a.handleDelete(domain.ActionDeleteExpense, a.service.DeleteExpense))

	v1.GET("/profile", a.handleGetProfile)
	v1.PUT("/profile", a.handleUpdateProfile)

	v1.GET("/analytics/monthly-revenue", a.handleMonthlyRevenue)
	v1.GET("/dashboard", a.handleDashboard)
	v1.POST("/reset", a.handleReset)

	return router
}

func (a *API) corsConfig() (cors.Config, bool) {
	if len(a.allowedOrigins) == 0 {
		return cors.Config{}, false
	}
	c := cors.Config{
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowHeaders: []string{"Origin", "Content-Type", confirmHeader},
		MaxAge:       12 * time.Hour,
	}
	for _, origin := range a.allowedOrigins {
		if origin == "*" {
			c.AllowAllOrigins = true
			return c, true
		}
	}
	c.AllowOrigins = a.allowedOrigins
	return c, true
}

func securityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		h := c.Writer.Header()
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		h.Set("Referrer-Policy", "strict-origin-when-cross-origin")
		c.Next()
	}
}

func limitBody(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Body != nil {
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		}
		c.Next()
	}
}

func (a *API) handleHealth(c *gin.Context) {
	writeJSON(c, http.StatusOK, gin.H{
		"ok": true,
		"at": time.Now().UTC().Format(time.RFC3339),
	})
}

func (a *API) handleListClients(c *gin.Context) {
	writeJSON(c, http.StatusOK, a.service.ListClients(c.Request.Context(), c.Query("search")))
}

func (a *API) handleCreateClient(c *gin.Context) {
	var req domain.ClientCreateRequest
	if err := decodeJSON(c.Request, &req); err != nil {
		writeError(c, http.StatusBadRequest, err)
		return
	}
	client, err := a.service.CreateClient(c.Request.Context(), req)
	writeMutation(c, http.StatusCreated, client, err)
}

func (a *API) handleClientCreditSales(c *gin.Context) {
	sales, err := a.service.ClientCreditSales(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeServiceError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, sales)
}

func (a *API) handleListProducts(c *gin.Context) {
	writeJSON(c, http.StatusOK, a.service.ListProducts(c.Request.Context(), c.Query("search")))
}

func (a *API) handleCreateProduct(c *gin.Context) {
	var req domain.ProductCreateRequest
	if err := decodeJSON(c.Request, &req); err != nil {
		writeError(c, http.StatusBadRequest, err)
		return
	}
	product, err := a.service.CreateProduct(c.Request.Context(), req)
	writeMutation(c, http.StatusCreated, product, err)
}

func (a *API) handleSaleHistory(c *gin.Context) {
	writeJSON(c, http.StatusOK, a.service.SaleHistory(c.Request.Context()))
}

func (a *API) handleRecordSale(c *gin.Context) {
	var req domain.SaleCreateRequest
	if err := decodeJSON(c.Request, &req); err != nil {
		writeError(c, http.StatusBadRequest, err)
		return
	}
	sale, err := a.service.RecordSale(c.Request.Context(), req)
	if err != nil && !errors.Is(err, store.ErrPersistence) {
		writeServiceError(c, err)
		return
	}
	writeMutation(c, http.StatusCreated, a.service.Balance(c.Request.Context(), sale), err)
}

func (a *API) handleGetSale(c *gin.Context) {
	sale, err := a.service.GetSale(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeServiceError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, sale)
}

func (a *API) handleAddPayment(c *gin.Context) {
	var req domain.PaymentCreateRequest
	if err := decodeJSON(c.Request, &req); err != nil {
		writeError(c, http.StatusBadRequest, err)
		return
	}
	sale, err := a.service.AddPayment(c.Request.Context(), c.Param("id"), req)
	if err != nil && !errors.Is(err, store.ErrPersistence) {
		writeServiceError(c, err)
		return
	}
	writeMutation(c, http.StatusCreated, a.service.Balance(c.Request.Context(), sale), err)
}

func (a *API) handleDebts(c *gin.Context) {
	writeJSON(c, http.StatusOK, a.service.DebtByClient(c.Request.Context()))
}

func (a *API) handleListExpenses(c *gin.Context) {
	writeJSON(c, http.StatusOK, a.service.ListExpenses(c.Request.Context()))
}

func (a *API) handleCreateExpense(c *gin.Context) {
	var req domain.ExpenseCreateRequest
	if err := decodeJSON(c.Request, &req); err != nil {
		writeError(c, http.StatusBadRequest, err)
		return
	}
	expense, err := a.service.CreateExpense(c.Request.Context(), req)
	writeMutation(c, http.StatusCreated, expense, err)
}

func (a *API) handleExpenseCategories(c *gin.Context) {
	writeJSON(c, http.StatusOK, a.service.ExpenseCategories())
}

func (a *API) handleGetProfile(c *gin.Context) {
	writeJSON(c, http.StatusOK, a.service.GetUserProfile(c.Request.Context()))
}

func (a *API) handleUpdateProfile(c *gin.Context) {
	var req domain.UserProfile
	if err := decodeJSON(c.Request, &req); err != nil {
		writeError(c, http.StatusBadRequest, err)
		return
	}
	profile, err := a.service.UpdateUserProfile(c.Request.Context(), req)
	writeMutation(c, http.StatusOK, profile, err)
}

func (a *API) handleMonthlyRevenue(c *gin.Context) {
	writeJSON(c, http.StatusOK, a.service.MonthlyRevenue(c.Request.Context()))
}

func (a *API) handleDashboard(c *gin.Context) {
	writeJSON(c, http.StatusOK, a.service.Dashboard(c.Request.Context()))
}

// handleDelete answers a bare DELETE with a 409 plan carrying a token;
// repeating the request with the token in X-Confirm-Token commits it.
func (a *API) handleDelete(action string, commit func(ctx context.Context, id string, confirmed bool) error) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Param("id")
		token := strings.TrimSpace(c.GetHeader(confirmHeader))
		if token == "" {
			a.writePlan(c, action, id)
			return
		}
		if err := a.confirm.Verify(token, action, id); err != nil {
			writeError(c, http.StatusForbidden, err)
			return
		}

		err := commit(c.Request.Context(), id, true)
		writeMutation(c, http.StatusOK, gin.H{"deleted": id}, err)
	}
}

func (a *API) handleReset(c *gin.Context) {
	var req domain.ResetRequest
	if c.Request.ContentLength != 0 {
		if err := decodeJSON(c.Request, &req); err != nil {
			writeError(c, http.StatusBadRequest, err)
			return
		}
	}
	if strings.TrimSpace(req.ConfirmToken) == "" {
		a.writePlan(c, domain.ActionResetAll, "")
		return
	}

	if a.confirm.PINRequired() {
		if !a.pinLimiter.Allow(c.ClientIP()) {
			writeError(c, http.StatusTooManyRequests, errors.New("too many PIN attempts, try again later"))
			return
		}
		if !a.confirm.CheckPIN(req.PIN) {
			writeError(c, http.StatusForbidden, errors.New("invalid reset PIN"))
			return
		}
	}
	if err := a.confirm.Verify(req.ConfirmToken, domain.ActionResetAll, ""); err != nil {
		writeError(c, http.StatusForbidden, err)
		return
	}

	err := a.service.ResetAllData(c.Request.Context(), true)
	writeMutation(c, http.StatusOK, gin.H{"reset": true}, err)
}

func (a *API) writePlan(c *gin.Context, action string, id string) {
	summary, err := a.service.DescribeDelete(c.Request.Context(), action, id)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	token, expiresAt, err := a.confirm.Issue(action, id)
	if err != nil {
		writeError(c, http.StatusInternalServerError, err)
		return
	}
	writeJSON(c, http.StatusConflict, domain.DeletePlan{
		Action:    action,
		TargetID:  id,
		Summary:   summary,
		Token:     token,
		ExpiresAt: expiresAt,
	})
}

func decodeJSON(r *http.Request, dest any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dest); err != nil {
		return err
	}
	return nil
}

// writeMutation reports a persistence failure as a warning next to the
// result; any other error replaces it.
func writeMutation(c *gin.Context, status int, data any, err error) {
	if err == nil {
		writeJSON(c, status, mutationResponse{Data: data})
		return
	}
	if errors.Is(err, store.ErrPersistence) {
		log.Warn().Err(err).Str("path", c.Request.URL.Path).Msg("responding with unsaved change")
		writeJSON(c, status, mutationResponse{Data: data, Warning: persistWarning})
		return
	}
	writeServiceError(c, err)
}

func writeServiceError(c *gin.Context, err error) {
	var verr *store.ValidationError
	switch {
	case errors.As(err, &verr):
		writeJSON(c, http.StatusBadRequest, gin.H{"error": verr.Error(), "field": verr.Field})
	case errors.Is(err, store.ErrNotFound):
		writeError(c, http.StatusNotFound, err)
	default:
		writeError(c, http.StatusInternalServerError, err)
	}
}

func writeError(c *gin.Context, status int, err error) {
	// 5xx bodies stay generic; the cause goes to the log only.
	msg := err.Error()
	if status >= 500 {
		log.Error().Err(err).Int("status", status).Msg("internal error")
		msg = "internal server error"
	}
	writeJSON(c, status, gin.H{"error": msg})
}

func writeJSON(c *gin.Context, status int, payload any) {
	c.JSON(status, payload)
}
