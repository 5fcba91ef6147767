package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"bitbucket.org/mmdatafocus/remit_backend/clearinghouse"
	"bitbucket.org/mmdatafocus/remit_backend/config"
	"bitbucket.org/mmdatafocus/remit_backend/middlewares"
	"bitbucket.org/mmdatafocus/remit_backend/models"
	"bitbucket.org/mmdatafocus/remit_backend/utils"
	"bitbucket.org/mmdatafocus/remit_backend/workflow"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

const defaultPort = "8080"

type RateLimiter struct {
	client *redis.Client
	limit  int64
	window time.Duration
}

func getRedisClient(redisAddress string) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr: redisAddress,
	})
}

type uploadRemittanceRequest struct {
	FileName string `json:"file_name" validate:"required"`
	Format   string `json:"format" validate:"required,oneof=X12_835 CSV JSON"`
	Content  []byte `json:"content" validate:"required"`
}

func uploadRemittanceHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		logger := config.GetLogger()

		var req uploadRemittanceRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}
		if err := utils.ValidateStruct(req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"errors": utils.ProcessValidationErrors(err)})
			return
		}
		format := models.RemittanceFormat(req.Format)

		db := config.GetDB()
		if db == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "db is nil"})
			return
		}

		ctx := c.Request.Context()
		summary, err := workflow.ProcessRemittanceFile(ctx, db, logger, req.FileName, format, req.Content)
		if err != nil {
			if summary != nil && summary.Status == models.RemittanceFileStatusRejected {
				c.JSON(http.StatusUnprocessableEntity, gin.H{
					"error":   err.Error(),
					"summary": summary,
				})
				return
			}
			if errors.Is(err, workflow.ErrIdempotencyInProgress) {
				c.JSON(http.StatusConflict, gin.H{"error": "file is already being processed"})
				return
			}
			config.LogError(logger, "server.go", "uploadRemittanceHandler", "ProcessRemittanceFile", req.FileName, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		if !summary.Duplicate {
			archiveAndAcknowledge(ctx, db, logger, req, summary)
		}

		c.JSON(http.StatusOK, summary)
	}
}

// archiveAndAcknowledge runs the after-commit integrations. Both are best
// effort: GCS or the clearinghouse being down never fails the upload.
func archiveAndAcknowledge(ctx context.Context, db *gorm.DB, logger *logrus.Logger,
	req uploadRemittanceRequest, summary *workflow.ProcessSummary) {

	updates := map[string]interface{}{}

	objectName := fmt.Sprintf("%d_%s", summary.RemittanceFileId, req.FileName)
	archiveURL, err := utils.ArchiveRemittanceToGCS(ctx, objectName, req.Content, "application/octet-stream")
	if err != nil {
		config.LogWarn(logger, "server.go", "archiveAndAcknowledge", "ArchiveRemittanceToGCS", objectName, err.Error())
	} else {
		updates["archive_url"] = archiveURL
	}

	if config.ClearinghouseEnabled() {
		var file models.RemittanceFile
		if err := db.WithContext(ctx).First(&file, summary.RemittanceFileId).Error; err == nil {
			client, err := clearinghouse.NewClient()
			if err != nil {
				config.LogWarn(logger, "server.go", "archiveAndAcknowledge", "clearinghouse.NewClient", nil, err.Error())
			} else {
				result, err := client.AcknowledgeRemittance(ctx, clearinghouse.SubmissionRequest{
					FileName:      file.FileName,
					CheckNumber:   file.CheckNumber,
					PayerName:     file.PayerName,
					RecordCount:   file.RecordCount,
					MatchedCount:  file.MatchedCount,
					PostedAmount:  file.PostedAmount.String(),
					CorrelationId: file.CorrelationId,
				})
				if err != nil {
					config.LogWarn(logger, "server.go", "archiveAndAcknowledge", "AcknowledgeRemittance", file.ID, err.Error())
				} else {
					updates["clearinghouse_ref"] = result.ReferenceId
				}
			}
		}
	}

	if len(updates) > 0 {
		err := db.WithContext(ctx).Model(&models.RemittanceFile{}).
			Where("id = ?", summary.RemittanceFileId).
			Updates(updates).Error
		if err != nil {
			config.LogWarn(logger, "server.go", "archiveAndAcknowledge", "update file refs", summary.RemittanceFileId, err.Error())
		}
	}
}

func getRemittanceFileHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := strconv.Atoi(c.Param("id"))
		if err != nil || id <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid file id"})
			return
		}
		db := config.GetDB()
		if db == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "db is nil"})
			return
		}

		var file models.RemittanceFile
		if err := db.WithContext(c.Request.Context()).First(&file, id).Error; err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "remittance file not found"})
			return
		}

		var lines []models.RemittanceLine
		_ = db.WithContext(c.Request.Context()).
			Where("remittance_file_id = ?", id).Order("ordinal ASC").Find(&lines).Error

		var cached workflow.ProcessSummary
		found, _ := config.GetRedisObject(fmt.Sprintf("remit:summary:%d", id), &cached)

		resp := gin.H{"file": file, "lines": lines}
		if found {
			resp["summary"] = cached
		}
		c.JSON(http.StatusOK, resp)
	}
}

func varianceReportHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		logger := config.GetLogger()
		fileId, err := strconv.Atoi(c.Query("file_id"))
		if err != nil || fileId <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "file_id is required"})
			return
		}
		db := config.GetDB()
		if db == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "db is nil"})
			return
		}

		var file models.RemittanceFile
		if err := db.WithContext(c.Request.Context()).First(&file, fileId).Error; err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "remittance file not found"})
			return
		}

		report, err := workflow.BuildVarianceReport(db.WithContext(c.Request.Context()), logger, fileId)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, report)
	}
}

type postPaymentRequest struct {
	ClaimId     int    `json:"claim_id" binding:"required"`
	Amount      string `json:"amount" binding:"required"`
	Source      string `json:"source"`
	CheckNumber string `json:"check_number"`
}

func postPaymentHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		logger := config.GetLogger()

		var req postPaymentRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "claim_id and amount are required"})
			return
		}
		amount, err := decimal.NewFromString(req.Amount)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "amount is not a valid decimal"})
			return
		}

		db := config.GetDB()
		if db == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "db is nil"})
			return
		}

		ctx := c.Request.Context()
		correlationId, _ := utils.GetCorrelationIdFromContext(ctx)

		var result *workflow.PostingResult
		err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			var txErr error
			result, txErr = workflow.PostPayment(tx, logger,
				req.ClaimId, amount, models.PaymentMethodManual, req.Source, req.CheckNumber, correlationId)
			return txErr
		})
		if err != nil {
			switch {
			case errors.Is(err, workflow.ErrClaimNotFound):
				c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			case errors.Is(err, workflow.ErrClaimAlreadyPaid):
				c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			case errors.Is(err, workflow.ErrNonPositiveAmount):
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			default:
				config.LogError(logger, "server.go", "postPaymentHandler", "PostPayment", req, err)
				c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			}
			return
		}
		c.JSON(http.StatusOK, result)
	}
}

type reversePaymentRequest struct {
	Reason string `json:"reason"`
}

func reversePaymentHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		logger := config.GetLogger()
		paymentId, err := strconv.Atoi(c.Param("id"))
		if err != nil || paymentId <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payment id"})
			return
		}

		var req reversePaymentRequest
		_ = c.ShouldBindJSON(&req)

		db := config.GetDB()
		if db == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "db is nil"})
			return
		}

		var result *workflow.ReversalResult
		err = db.WithContext(c.Request.Context()).Transaction(func(tx *gorm.DB) error {
			var txErr error
			result, txErr = workflow.ReversePayment(tx, logger, paymentId, req.Reason)
			return txErr
		})
		if err != nil {
			if errors.Is(err, workflow.ErrReversalNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
				return
			}
			config.LogError(logger, "server.go", "reversePaymentHandler", "ReversePayment", paymentId, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, result)
	}
}

func customNotFoundHandler(c *gin.Context) {
	c.JSON(http.StatusNotFound, gin.H{"error": "route not found"})
}

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

func main() {
	port := os.Getenv("API_PORT")
	if port == "" {
		// Cloud Run standard env var.
		port = os.Getenv("PORT")
	}
	if port == "" {
		port = defaultPort
	}

	logger := config.GetLogger()

	// Cloud Run sends SIGTERM on revision shutdown; handle it for graceful drain.
	sigCtx, stopSignals := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stopSignals()

	// Start the HTTP server ASAP so Cloud Run considers the revision healthy.
	// Until DB/Redis are ready, app endpoints return 503.
	r := gin.New()
	// Correlation IDs: generate once per request and attach to context.
	r.Use(func(c *gin.Context) {
		cid := c.GetHeader("x-correlation-id")
		if cid == "" {
			cid = uuid.NewString()
		}
		c.Request = c.Request.WithContext(utils.SetCorrelationIdInContext(c.Request.Context(), cid))
		c.Next()
	})
	r.Use(func(c *gin.Context) {
		// Always allow the startup probe.
		if c.Request.URL.Path == "/healthz" {
			c.Status(http.StatusNoContent)
			c.Abort()
			return
		}
		// Gate app endpoints on dependency readiness.
		if config.GetDB() == nil || config.GetRedisDB() == nil {
			c.AbortWithStatus(http.StatusServiceUnavailable)
			return
		}
		c.Next()
	})

	r.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusNoContent) })
	r.GET("/readyz", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	corsConfig := cors.DefaultConfig()
	// In production require an explicit allowlist; allow all elsewhere.
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

	// Optional rate limiting.
	// Env:
	// - RATE_LIMIT_ENABLED=true
	// - RATE_LIMIT_WINDOW_SECONDS=60
	// - RATE_LIMIT_MAX_REQUESTS=600
	if strings.EqualFold(strings.TrimSpace(os.Getenv("RATE_LIMIT_ENABLED")), "true") {
		client := getRedisClient(os.Getenv("REDIS_ADDRESS"))
		limit := int64(600)
		if v := strings.TrimSpace(os.Getenv("RATE_LIMIT_MAX_REQUESTS")); v != "" {
			if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
				limit = n
			}
		}
		windowSec := int64(60)
		if v := strings.TrimSpace(os.Getenv("RATE_LIMIT_WINDOW_SECONDS")); v != "" {
			if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
				windowSec = n
			}
		}
		rateLimiter := NewRateLimiter(client, limit, time.Duration(windowSec)*time.Second)
		r.Use(rateLimiter.RateLimitMiddleware)
	}

	r.Use(middlewares.AuthMiddleware())
	r.Use(customErrorLogger(logger))
	r.Use(gin.Recovery())

	api := r.Group("/api", middlewares.RequireAuth())
	api.POST("/remittance-files", uploadRemittanceHandler())
	api.GET("/remittance-files/:id", getRemittanceFileHandler())
	api.GET("/variance-report", varianceReportHandler())
	api.POST("/payments", postPaymentHandler())
	api.POST("/payments/:id/reverse", reversePaymentHandler())

	r.NoRoute(customNotFoundHandler)

	srv := &http.Server{
		Addr:    ":" + port,
		Handler: r,
	}
	serverErrCh := make(chan error, 1)
	go func() {
		// ListenAndServe returns http.ErrServerClosed on graceful shutdown.
		serverErrCh <- srv.ListenAndServe()
	}()

	// Connect dependencies after the port is open.
	config.ConnectDatabaseWithRetry()
	config.ConnectRedisWithRetry()

	db := config.GetDB()
	sqlDB, _ := db.DB()
	defer func() {
		if sqlDB != nil {
			_ = sqlDB.Close()
		}
	}()
	// AutoMigrate can run DDL that blocks tables; allow running it as a
	// separate job instead.
	if !strings.EqualFold(strings.TrimSpace(os.Getenv("SKIP_MIGRATIONS")), "true") {
		models.MigrateTable()
	} else {
		logger.WithFields(logrus.Fields{"field": "migrations"}).Warn("SKIP_MIGRATIONS=true; skipping AutoMigrate on startup")
	}

	// Start outbox dispatcher (publishes AFTER commit).
	dispatcherCtx, cancelDispatcher := context.WithCancel(context.Background())
	defer cancelDispatcher()
	go workflow.NewOutboxDispatcher(db, logger).Run(dispatcherCtx)

	// Set the session isolation level to READ COMMITTED
	for attempt := 1; ; attempt++ {
		err := db.Exec("SET SESSION TRANSACTION ISOLATION LEVEL READ COMMITTED").Error
		if err == nil {
			break
		}
		sleep := time.Second * time.Duration(1<<minInt(attempt, 5))
		if sleep > 30*time.Second {
			sleep = 30 * time.Second
		}
		logger.WithFields(logrus.Fields{
			"field":   "database",
			"attempt": attempt,
		}).Warn("failed to set isolation level; retrying in " + sleep.String() + ": " + err.Error())
		time.Sleep(sleep)
	}

	logger.WithFields(logrus.Fields{
		"info": "Connection Established",
	}).Info("listening on http://localhost:", port, "/")
	log.Println("Server started successfully")

	// Block until shutdown or server error.
	select {
	case <-sigCtx.Done():
		// graceful shutdown below
	case err := <-serverErrCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithFields(logrus.Fields{"field": "http"}).Error("server stopped unexpectedly: " + err.Error())
		}
	}

	// Stop background workers first so they don't start new work while draining.
	cancelDispatcher()

	shutdownTimeout := 30 * time.Second
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithFields(logrus.Fields{"field": "http"}).Error("graceful shutdown failed: " + err.Error())
	}

	if rdb := config.GetRedisDB(); rdb != nil {
		_ = rdb.Close()
	}
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

// customErrorLogger logs only requests that accumulated gin errors.
func customErrorLogger(logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) > 0 {
			logger.Error(c.Errors.String())
		}
	}
}

func NewRateLimiter(client *redis.Client, limit int64, window time.Duration) *RateLimiter {
	return &RateLimiter{
		client: client,
		limit:  limit,
		window: window,
	}
}

func (rl *RateLimiter) RateLimitMiddleware(c *gin.Context) {
	key := c.ClientIP()

	exists, err := rl.client.Exists(c.Request.Context(), key).Result()
	if err != nil {
		c.AbortWithError(http.StatusInternalServerError, err)
		return
	}

	if exists == 0 {
		err := rl.client.Set(c.Request.Context(), key, 1, rl.window).Err()
		if err != nil {
			c.AbortWithError(http.StatusInternalServerError, err)
			return
		}
		c.Next()
		return
	}

	count, err := rl.client.Incr(c.Request.Context(), key).Result()
	if err != nil {
		c.AbortWithError(http.StatusInternalServerError, err)
		return
	}

	if count > rl.limit {
		c.AbortWithStatus(http.StatusTooManyRequests)
		return
	}

	c.Next()
}
