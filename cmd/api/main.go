package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"policystudio/api/internal/ailog"
	"policystudio/api/internal/app"
	"policystudio/api/internal/attachments"
	"policystudio/api/internal/config"
	"policystudio/api/internal/search"
	"policystudio/api/internal/session"
	"policystudio/api/internal/upstream"
)

func main() {
	cfg := config.Load()
	ctx := context.Background()

	sessions, err := session.NewStore(cfg.RedisURL, cfg.SessionTTL)
	if err != nil {
		log.Fatalf("redis connection failed: %v", err)
	}
	defer sessions.Close()

	policies := upstream.NewPolicyClient(cfg.PolicyServiceURL, cfg.UpstreamTimeout)
	generation := upstream.NewGenerationClient(cfg.GenerationServiceURL, cfg.UpstreamTimeout)
	workflow := upstream.NewWorkflowClient(cfg.WorkflowServiceURL, cfg.UpstreamTimeout)

	service := app.New(cfg, policies, generation, workflow, sessions)

	if strings.TrimSpace(cfg.DatabaseURL) != "" {
		db, err := ailog.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("database connection failed: %v", err)
		}
		defer db.Close()

		invocations := ailog.NewStore(db)
		if err := invocations.EnsureSchema(ctx); err != nil {
			log.Fatalf("ailog schema failed: %v", err)
		}
		service.EnableInvocationLog(invocations)
	} else {
		log.Printf("DATABASE_URL not set, AI invocation log disabled")
	}

	if strings.TrimSpace(cfg.MeiliURL) != "" {
		meiliClient := search.NewMeili(cfg.MeiliURL, cfg.MeiliMasterKey)
		defer meiliClient.Close()
		service.EnableSearch(meiliClient)
	} else {
		log.Printf("MEILI_URL not set, search falls back to list filtering")
	}

	if strings.TrimSpace(cfg.MinioEndpoint) != "" {
		files, err := attachments.New(ctx, attachments.Config{
			Endpoint:  cfg.MinioEndpoint,
			AccessKey: cfg.MinioAccessKey,
			SecretKey: cfg.MinioSecretKey,
			Bucket:    cfg.MinioBucket,
			UseSSL:    cfg.MinioUseSSL,
		})
		if err != nil {
			log.Fatalf("attachment storage failed: %v", err)
		}
		service.EnableAttachments(files)
	} else {
		log.Printf("MINIO_ENDPOINT not set, attachments disabled")
	}

	httpServer := app.NewHTTPServer(service, cfg.CORSOrigin)
	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      90 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Printf("Policy Studio API listening on %s", cfg.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server failed: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown error: %v", err)
	}
}
