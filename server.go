package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"bitbucket.org/aeromro/spareparts_backend/config"
	"bitbucket.org/aeromro/spareparts_backend/models"
	"bitbucket.org/aeromro/spareparts_backend/models/reports"
	"bitbucket.org/aeromro/spareparts_backend/utils"
	"bitbucket.org/aeromro/spareparts_backend/workflow"
	"github.com/bsm/redislock"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
)

const defaultPort = "8080"

var tracer = otel.Tracer("spareparts-backend")

func splitAndTrim(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}

func stockItemCreateHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var input models.NewStockItem
		if err := c.ShouldBindJSON(&input); err != nil {
			var validationErrors validator.ValidationErrors
			if errors.As(err, &validationErrors) {
				c.JSON(http.StatusBadRequest, gin.H{"errors": utils.ProcessValidationErrors(err)})
				return
			}
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		item, err := models.CreateStockItem(c.Request.Context(), &input)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusCreated, item)
	}
}

func stockItemListHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if code := c.Query("code"); code != "" {
			item, err := models.GetStockItemByCode(c.Request.Context(), code)
			if err != nil {
				c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
				return
			}
			c.JSON(http.StatusOK, []interface{}{item})
			return
		}
		var name *string
		if q := c.Query("name"); q != "" {
			name = &q
		}
		items, err := models.GetStockItemAll(c.Request.Context(), name)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, items)
	}
}

func stockItemUpdateHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := utils.IntFromString(c.Param("id"))
		if !ok {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
			return
		}
		var input models.NewStockItem
		if err := c.ShouldBindJSON(&input); err != nil {
			var validationErrors validator.ValidationErrors
			if errors.As(err, &validationErrors) {
				c.JSON(http.StatusBadRequest, gin.H{"errors": utils.ProcessValidationErrors(err)})
				return
			}
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		item, err := models.UpdateStockItem(c.Request.Context(), id, &input)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, item)
	}
}

func stockItemGetHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := utils.IntFromString(c.Param("id"))
		if !ok {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
			return
		}
		item, err := models.GetStockItem(c.Request.Context(), id)
		if err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, item)
	}
}

func stockItemBalanceHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := utils.IntFromString(c.Param("id"))
		if !ok {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
			return
		}
		balance, err := models.CachedBalance(c.Request.Context(), id)
		if err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"stock_item_id": id, "balance": balance})
	}
}

func ledgerWindowFromQuery(c *gin.Context) (*time.Time, *time.Time, bool) {
	var fromDate, toDate *time.Time
	if q := c.Query("from"); q != "" {
		d, err := utils.ParseDate(q)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid from date"})
			return nil, nil, false
		}
		fromDate = &d
	}
	if q := c.Query("to"); q != "" {
		d, err := utils.ParseDate(q)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid to date"})
			return nil, nil, false
		}
		toDate = &d
	}
	return fromDate, toDate, true
}

func stockLedgerReportHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		itemID, ok := utils.IntFromString(c.Query("item_id"))
		if !ok {
			c.JSON(http.StatusBadRequest, gin.H{"error": "item_id is required"})
			return
		}
		fromDate, toDate, ok := ledgerWindowFromQuery(c)
		if !ok {
			return
		}
		report, err := reports.GetStockLedgerReport(c.Request.Context(), itemID, fromDate, toDate)
		if err != nil {
			status := http.StatusInternalServerError
			switch {
			case errors.Is(err, utils.ErrorRecordNotFound):
				status = http.StatusNotFound
			case errors.Is(err, workflow.ErrInvalidMovementData):
				status = http.StatusUnprocessableEntity
			}
			c.JSON(status, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, report)
	}
}

func stockLedgerExportHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		itemID, ok := utils.IntFromString(c.Query("item_id"))
		if !ok {
			c.JSON(http.StatusBadRequest, gin.H{"error": "item_id is required"})
			return
		}
		fromDate, toDate, ok := ledgerWindowFromQuery(c)
		if !ok {
			return
		}
		report, err := reports.GetStockLedgerReport(c.Request.Context(), itemID, fromDate, toDate)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		f, err := reports.ExportStockLedgerExcel(report)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.Header("Content-Disposition", `attachment; filename="stock-ledger-`+report.ItemCode+`.xlsx"`)
		c.Header("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
		if err := f.Write(c.Writer); err != nil {
			config.LogError(config.GetLogger(), "server.go", "stockLedgerExportHandler", "f.Write", nil, err)
		}
	}
}

func rrpNextNumberHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		prefix := models.RrpPrefix(c.Query("prefix"))
		number, err := models.NextRrpNumber(c.Request.Context(), prefix)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"number": number})
	}
}

func rrpRegisterHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var input models.NewRrpRecord
		if err := c.ShouldBindJSON(&input); err != nil {
			var validationErrors validator.ValidationErrors
			if errors.As(err, &validationErrors) {
				c.JSON(http.StatusBadRequest, gin.H{"errors": utils.ProcessValidationErrors(err)})
				return
			}
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		record, err := models.RegisterRrp(c.Request.Context(), &input)
		if err != nil {
			status := http.StatusInternalServerError
			switch {
			case errors.Is(err, models.ErrMalformedRrpNumber):
				status = http.StatusBadRequest
			case errors.Is(err, models.ErrDuplicateActiveRrp),
				errors.Is(err, models.ErrDuplicateInFiscalYear),
				errors.Is(err, models.ErrOutOfSequenceDate):
				status = http.StatusConflict
			}
			c.JSON(status, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusCreated, record)
	}
}

func rrpGetHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := utils.IntFromString(c.Param("id"))
		if !ok {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
			return
		}
		record, err := models.GetRrpRecord(c.Request.Context(), id)
		if err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, record)
	}
}

func rrpStatusHandler() gin.HandlerFunc {
	type statusInput struct {
		Status models.ApprovalStatus `json:"status" binding:"required"`
	}
	return func(c *gin.Context) {
		id, ok := utils.IntFromString(c.Param("id"))
		if !ok {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
			return
		}
		var input statusInput
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		record, err := models.UpdateRrpStatus(c.Request.Context(), id, input.Status)
		if err != nil {
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, record)
	}
}

// rebuildRemainingBalancesHandler is the administrative repair action. The
// redis lock is a best-effort optimization; correctness does not depend on it
// because RebuildRemainingBalances also serializes via a MySQL advisory lock.
func rebuildRemainingBalancesHandler(logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := tracer.Start(c.Request.Context(), "rebuildRemainingBalances")
		defer span.End()

		if locker := config.GetRedisLock(); locker != nil {
			lock, err := locker.Obtain(ctx, "lock:remaining_balance_rebuild", 10*time.Minute, nil)
			if err == nil {
				defer lock.Release(context.Background())
			} else if errors.Is(err, redislock.ErrNotObtained) {
				c.JSON(http.StatusConflict, gin.H{"error": "a rebuild is already running"})
				return
			}
		}

		db := config.GetDB()
		tx := db.WithContext(ctx).Begin()
		summary, err := workflow.RebuildRemainingBalances(tx, logger)
		if err != nil {
			tx.Rollback()
			config.LogError(logger, "server.go", "rebuildRemainingBalancesHandler", "RebuildRemainingBalances", nil, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		if err := tx.Commit().Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		summary.RefreshBalanceCaches()
		c.JSON(http.StatusOK, summary)
	}
}

func main() {
	port := os.Getenv("PORT")
	if port == "" {
		port = defaultPort
	}

	logger := config.GetLogger()

	// SIGTERM is sent on revision shutdown; handle it for graceful drain.
	sigCtx, stopSignals := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stopSignals()

	// Start the HTTP server ASAP so the platform considers the revision
	// healthy. Until DB/Redis are ready, app endpoints return 503.
	r := gin.New()
	r.Use(func(c *gin.Context) {
		if c.Request.URL.Path == "/healthz" {
			c.Status(http.StatusNoContent)
			c.Abort()
			return
		}
		if config.GetDB() == nil {
			c.AbortWithStatus(http.StatusServiceUnavailable)
			return
		}
		c.Next()
	})

	r.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	corsConfig := cors.DefaultConfig()
	// In production, require an explicit allowlist via CORS_ALLOWED_ORIGINS.
	allowedOrigins := strings.TrimSpace(os.Getenv("CORS_ALLOWED_ORIGINS"))
	if strings.EqualFold(strings.TrimSpace(os.Getenv("GO_ENV")), "production") {
		if allowedOrigins == "" {
			corsConfig.AllowOrigins = []string{}
		} else {
			corsConfig.AllowOrigins = splitAndTrim(allowedOrigins)
		}
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AddAllowMethods("GET", "POST", "PUT", "DELETE", "OPTIONS")
	corsConfig.AddAllowHeaders("token", "Origin", "Content-Type", "Authorization")
	corsConfig.AddExposeHeaders("Content-Length")
	corsConfig.AllowCredentials = true
	r.Use(cors.New(corsConfig))
	r.Use(gin.Recovery())

	r.POST("/stock-items", stockItemCreateHandler())
	r.GET("/stock-items", stockItemListHandler())
	r.GET("/stock-items/:id", stockItemGetHandler())
	r.PUT("/stock-items/:id", stockItemUpdateHandler())
	r.GET("/stock-items/:id/balance", stockItemBalanceHandler())

	r.GET("/reports/stock-ledger", stockLedgerReportHandler())
	r.GET("/reports/stock-ledger/export", stockLedgerExportHandler())

	r.GET("/rrp/next-number", rrpNextNumberHandler())
	r.POST("/rrp/register", rrpRegisterHandler())
	r.GET("/rrp/:id", rrpGetHandler())
	r.PUT("/rrp/:id/status", rrpStatusHandler())

	r.POST("/internal/ops/remaining-balances/rebuild", rebuildRemainingBalancesHandler(logger))

	srv := &http.Server{
		Addr:    ":" + port,
		Handler: r,
	}
	serverErrCh := make(chan error, 1)
	go func() {
		serverErrCh <- srv.ListenAndServe()
	}()

	// Connect dependencies after the port is open.
	config.ConnectDatabaseWithRetry()
	config.ConnectRedisWithRetry()

	db := config.GetDB()
	sqlDB, err := db.DB()
	utils.ErrorPanic(err)
	defer func() { _ = sqlDB.Close() }()
	// AutoMigrate can run DDL that blocks tables; allow running it as a
	// separate job instead.
	if !strings.EqualFold(strings.TrimSpace(os.Getenv("SKIP_MIGRATIONS")), "true") {
		models.MigrateTable()
	} else {
		logger.WithFields(logrus.Fields{"field": "migrations"}).Warn("SKIP_MIGRATIONS=true; skipping AutoMigrate on startup")
	}

	logger.WithFields(logrus.Fields{
		"port": port,
	}).Info("spareparts backend listening")
	log.Println("Server started successfully")

	select {
	case <-sigCtx.Done():
		// graceful shutdown below
	case err := <-serverErrCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithFields(logrus.Fields{"field": "http"}).Error("server stopped unexpectedly: " + err.Error())
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithFields(logrus.Fields{"field": "http"}).Error("graceful shutdown failed: " + err.Error())
	}
}
