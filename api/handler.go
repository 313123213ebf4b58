package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/cors"

	"github.com/kilianp07/sunledger/core/ledger"
)

// Config controls the status API server.
type Config struct {
	Enabled        bool     `json:"enabled"`
	Address        string   `json:"address"`
	AllowedOrigins []string `json:"allowed_origins"`
}

func (c *Config) SetDefaults() {
	if c.Address == "" {
		c.Address = ":8080"
	}
	if len(c.AllowedOrigins) == 0 {
		c.AllowedOrigins = []string{"*"}
	}
}

func (c Config) Validate() error {
	if c.Enabled && c.Address == "" {
		return errors.New("api.address is required when the api is enabled")
	}
	return nil
}

type handler struct {
	status StatusReader
	store  ledger.Store
}

// NewHandler builds the gin router wrapped in a CORS handler. store may be
// nil, in which case /api/v1/days/:date is not served.
func NewHandler(status StatusReader, store ledger.Store, allowedOrigins []string) http.Handler {
	router := gin.New()
	router.Use(gin.Recovery())

	h := &handler{status: status, store: store}
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := router.Group("/api/v1")
	{
		api.GET("/status", h.getStatus)
		api.GET("/readings/today", h.getToday)
		api.GET("/readings/yesterday", h.getYesterday)
		api.GET("/totals", h.getTotals)
		api.GET("/plan", h.getPlan)
		api.GET("/instant", h.getInstant)
		if store != nil {
			api.GET("/days/:date", h.getDay)
		}
	}

	return cors.New(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodOptions},
	}).Handler(router)
}

func (h *handler) getStatus(c *gin.Context) {
	c.JSON(http.StatusOK, h.status.Status())
}

func (h *handler) getToday(c *gin.Context) {
	c.JSON(http.StatusOK, h.status.Status().Today)
}

func (h *handler) getYesterday(c *gin.Context) {
	c.JSON(http.StatusOK, h.status.Status().Yesterday)
}

func (h *handler) getTotals(c *gin.Context) {
	st := h.status.Status()
	c.JSON(http.StatusOK, gin.H{
		"totals":      st.Totals,
		"import_cost": st.Totals.ImportCost(),
		"savings":     st.Totals.Savings(),
	})
}

func (h *handler) getPlan(c *gin.Context) {
	st := h.status.Status()
	if st.Plan == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no plan yet"})
		return
	}
	c.JSON(http.StatusOK, st.Plan)
}

func (h *handler) getInstant(c *gin.Context) {
	c.JSON(http.StatusOK, h.status.Status().Instant)
}

func (h *handler) getDay(c *gin.Context) {
	date := c.Param("date")
	if _, err := time.Parse(ledger.DateLayout, date); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "date must be YYYY-MM-DD"})
		return
	}
	rec, err := h.store.Read(c.Request.Context(), ledger.KindReadings, date)
	if errors.Is(err, ledger.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "no readings for " + date})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"day": rec, "totals": ledger.Sum(rec.Readings)})
}
