package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"classtrack/internal/account"
	"classtrack/internal/attendance"
	"classtrack/internal/auth"
	"classtrack/internal/config"
	"classtrack/internal/httpmiddleware"
	"classtrack/internal/metrics"
	"classtrack/internal/queue"
	"classtrack/internal/report"
	"classtrack/internal/session"
	"classtrack/internal/store"
)

func main() {
	cfg := config.Load()

	if cfg.Env == "production" || cfg.Env == "prod" {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := runHTTP(cfg); err != nil {
		log.Fatalf("http server failed: %v", err)
	}
}

func runHTTP(cfg config.App) error {
	db, err := store.NewDB(cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := db.Migrate(context.Background()); err != nil {
		return err
	}

	redisClient := store.NewRedis(cfg.RedisAddr)

	var q queue.Queue
	if cfg.QueueBackend == "memory" {
		q = queue.NewInMemory(64)
	} else {
		q = queue.NewRedisQueue(redisClient.Client, "classtrack:sessions")
	}

	accounts := account.NewSQLStore(db.Client)
	sessions := session.NewSQLStore(db.Client)
	records := attendance.NewSQLStore(db.Client)

	guard := account.NewGuard(accounts, account.BcryptVerifier{})
	coordinator := attendance.NewCoordinator(records, sessions, nil)
	accumulator := attendance.NewAccumulator(records, sessions)
	reports := report.NewAggregator(report.NewSQLSource(db.Client))

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(gin.LoggerWithConfig(gin.LoggerConfig{
		SkipPaths: []string{"/healthz", "/metrics"},
	}))
	r.Use(corsMiddleware())
	r.Use(securityHeaders())
	r.Use(httpmiddleware.NewSimpleTokenBucket(cfg.RateLimitPerMin, cfg.RateLimitPerMin).GinMiddleware())

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	r.GET("/healthz", func(c *gin.Context) {
		redisHealthy := redisClient.Healthy(c.Request.Context())
		dbHealthy := db.Client.PingContext(c.Request.Context()) == nil
		status := http.StatusOK
		if !redisHealthy || !dbHealthy {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, gin.H{"status": "ok", "redis": redisHealthy, "db": dbHealthy})
	})

	r.POST("/v1/auth/login", func(c *gin.Context) {
		var req struct {
			Identifier  string `json:"identifier" binding:"required"`
			Credential  string `json:"credential" binding:"required"`
			Fingerprint string `json:"fingerprint" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		res, err := guard.Authenticate(c.Request.Context(), req.Identifier, req.Credential, req.Fingerprint)
		if err != nil {
			// Device-lock failures must read differently from a bad password.
			switch {
			case errors.Is(err, account.ErrAccountNotFound):
				metrics.Logins.WithLabelValues("not_found").Inc()
				c.JSON(http.StatusNotFound, gin.H{"error": "account not found"})
			case errors.Is(err, account.ErrInvalidCredential):
				metrics.Logins.WithLabelValues("invalid_credential").Inc()
				c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
			case errors.Is(err, account.ErrDeviceLockViolation):
				metrics.Logins.WithLabelValues("device_lock_violation").Inc()
				c.JSON(http.StatusForbidden, gin.H{"error": "this account is locked to another device"})
			default:
				c.JSON(http.StatusInternalServerError, gin.H{"error": "login failed"})
			}
			return
		}
		metrics.Logins.WithLabelValues("ok").Inc()

		tokens, err := auth.Issue(res.ID, string(res.Role), cfg.JWTIssuer, cfg.JWTSigningKey, cfg.AccessTTL, cfg.RefreshTTL)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "token issue failed"})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"account_id":    res.ID,
			"role":          res.Role,
			"access_token":  tokens.AccessToken,
			"refresh_token": tokens.RefreshToken,
			"expires_at":    tokens.AccessExp.Unix(),
		})
	})

	authed := r.Group("/v1", auth.RequireAuth(cfg.JWTSigningKey, cfg.JWTIssuer))
	admin := authed.Group("", auth.RequireRole(string(account.RoleAdmin)))
	staff := authed.Group("", auth.RequireRole(string(account.RoleTeacher), string(account.RoleAdmin)))

	admin.POST("/admin/accounts", func(c *gin.Context) {
		var req struct {
			Role       string `json:"role" binding:"required,oneof=student teacher admin"`
			LoginID    string `json:"login_id" binding:"required"`
			Credential string `json:"credential" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		hash, err := account.HashCredential(req.Credential)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "hash failed"})
			return
		}
		acc := account.Account{Role: account.Role(req.Role), LoginID: req.LoginID, CredentialHash: hash}
		if err := accounts.Create(c.Request.Context(), acc); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusCreated, gin.H{"login_id": req.LoginID})
	})

	admin.POST("/admin/accounts/:id/device-reset", func(c *gin.Context) {
		err := guard.ResetDeviceLock(c.Request.Context(), c.Param("id"))
		if errors.Is(err, account.ErrAccountNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "account not found"})
			return
		}
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "reset"})
	})

	admin.POST("/admin/enrollments", func(c *gin.Context) {
		var req struct {
			StudentID string `json:"student_id" binding:"required"`
			ClassID   string `json:"class_id" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if err := sessions.Enroll(c.Request.Context(), req.StudentID, req.ClassID); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusCreated, gin.H{"status": "enrolled"})
	})

	staff.POST("/sessions", func(c *gin.Context) {
		var req struct {
			ClassID   string `json:"class_id" binding:"required"`
			LectureID string `json:"lecture_id"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		now := time.Now().UTC()
		expiry := now.Add(cfg.SessionTokenTTL)
		sess := session.ClassSession{
			ClassID:     req.ClassID,
			SessionDate: now,
			StartedAt:   now,
			TokenExpiry: &expiry,
		}
		if req.LectureID != "" {
			sess.LectureID = &req.LectureID
		}
		created, err := sessions.Create(c.Request.Context(), sess)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusCreated, gin.H{
			"session_id":   created.ID,
			"token":        created.Token,
			"token_expiry": created.TokenExpiry,
			"started_at":   created.StartedAt,
		})
	})

	staff.POST("/sessions/:id/end", func(c *gin.Context) {
		now := time.Now().UTC()
		sess, ended, err := sessions.End(c.Request.Context(), c.Param("id"), now)
		if errors.Is(err, session.ErrSessionNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
			return
		}
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		if !ended {
			c.JSON(http.StatusOK, gin.H{"status": "already ended", "ended_at": sess.EndedAt})
			return
		}
		// The ended_at write above already rejects new joins; finalization
		// only has to catch up. The worker re-runs it on the queued message.
		if err := q.Publish(c.Request.Context(), queue.Message{Type: queue.TypeSessionEnd, Body: []byte(sess.ID)}); err != nil {
			log.Printf("queue publish failed, finalizing inline: %v", err)
			if n, ferr := accumulator.OnSessionEnd(c.Request.Context(), *sess); ferr != nil {
				log.Printf("inline finalize failed: %v", ferr)
			} else {
				metrics.RecordsFinalized.Add(float64(n))
			}
		}
		c.JSON(http.StatusOK, gin.H{"status": "ended", "ended_at": sess.EndedAt})
	})

	staff.GET("/sessions/:id/records", func(c *gin.Context) {
		recs, err := records.BySession(c.Request.Context(), c.Param("id"))
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"records": recs})
	})

	staff.POST("/sessions/:id/records/:student/remove", func(c *gin.Context) {
		err := accumulator.Remove(c.Request.Context(), c.Param("id"), c.Param("student"), time.Now().UTC())
		switch {
		case errors.Is(err, session.ErrSessionNotFound), errors.Is(err, attendance.ErrRecordNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		case errors.Is(err, attendance.ErrAlreadyRemoved):
			c.JSON(http.StatusConflict, gin.H{"error": "record already removed"})
		case err != nil:
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		default:
			c.JSON(http.StatusOK, gin.H{"status": "removed"})
		}
	})

	authed.POST("/attendance/scan", func(c *gin.Context) {
		var req struct {
			Payload string `json:"payload" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		claims, _ := auth.ClaimsFrom(c)
		result, err := coordinator.VerifyAndJoin(c.Request.Context(), extractToken(req.Payload), claims.Subject)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "join failed"})
			return
		}
		if result.Success {
			if result.Message == "checked in" {
				metrics.Joins.WithLabelValues("created").Inc()
			} else {
				metrics.Joins.WithLabelValues("duplicate").Inc()
			}
			c.JSON(http.StatusOK, gin.H{"success": true, "message": result.Message})
			return
		}
		metrics.Joins.WithLabelValues(string(result.Reason)).Inc()
		c.JSON(http.StatusOK, gin.H{"success": false, "reason": result.Reason, "message": result.Message})
	})

	authed.POST("/attendance/leave", func(c *gin.Context) {
		var req struct {
			SessionID string `json:"session_id" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		claims, _ := auth.ClaimsFrom(c)
		err := accumulator.Leave(c.Request.Context(), req.SessionID, claims.Subject, time.Now())
		switch {
		case errors.Is(err, session.ErrSessionNotFound), errors.Is(err, attendance.ErrRecordNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		case err != nil:
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		default:
			c.JSON(http.StatusOK, gin.H{"status": "left"})
		}
	})

	authed.GET("/reports/sessions", func(c *gin.Context) {
		f := reportFilter(c)
		res, err := reports.SessionsReport(c.Request.Context(), f)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"sessions": res})
	})

	authed.GET("/reports/summary", func(c *gin.Context) {
		f := reportFilter(c)
		sum, err := reports.Summary(c.Request.Context(), f)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, sum)
	})

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("Starting server on :%s", cfg.HTTPPort)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server forced shutdown: %v", err)
	}

	log.Println("Server exited")
	return nil
}

// reportFilter builds a report filter from query params. Students only ever
// see their own hours; staff may filter freely.
func reportFilter(c *gin.Context) report.Filter {
	f := report.Filter{
		StudentID: c.Query("student_id"),
		ClassID:   c.Query("class_id"),
		LectureID: c.Query("lecture_id"),
	}
	if claims, ok := auth.ClaimsFrom(c); ok && claims.Role == string(account.RoleStudent) {
		f.StudentID = claims.Subject
	}
	if v := c.Query("from"); v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			f.DateFrom = t
		}
	}
	if v := c.Query("to"); v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			f.DateTo = t
		}
	}
	return f
}

// extractToken pulls the join token out of a scanned payload. Scanners hand
// over either the bare token or a URL carrying it.
func extractToken(payload string) string {
	payload = strings.TrimSpace(payload)
	u, err := url.Parse(payload)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return payload
	}
	if tok := u.Query().Get("token"); tok != "" {
		return tok
	}
	if i := strings.LastIndex(u.Path, "/"); i >= 0 && i+1 < len(u.Path) {
		return u.Path[i+1:]
	}
	return payload
}

// CORS middleware for browser requests
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if origin == "" {
			origin = "*"
		}

		c.Header("Access-Control-Allow-Origin", origin)
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization")
		c.Header("Access-Control-Allow-Credentials", "true")
		c.Header("Access-Control-Max-Age", "86400")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// Security headers middleware
func securityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		c.Header("X-XSS-Protection", "1; mode=block")
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")

		if gin.Mode() == gin.ReleaseMode {
			c.Header("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}

		c.Next()
	}
}
