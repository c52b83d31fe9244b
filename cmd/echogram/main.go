package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"

	"github.com/echogram/echogram/internal/feed"
	"github.com/echogram/echogram/internal/repositories"
	"github.com/echogram/echogram/internal/router"
	"github.com/echogram/echogram/internal/runtime"
	"github.com/echogram/echogram/internal/session"
	"github.com/echogram/echogram/pkg/config"
	"github.com/echogram/echogram/pkg/firebase"
	"github.com/echogram/echogram/pkg/storage"
	"github.com/echogram/echogram/validators"
)

func main() {
	cfg := config.Load()

	db, err := config.InitDB(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize databases")
	}
	defer db.CloseDB()

	ctx := context.Background()
	firebaseApp, err := firebase.InitFirebase(ctx, cfg.FirebaseCredentialsPath, cfg.StorageBucket)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize Firebase")
	}

	if err := router.AutoMigrate(db.Postgres); err != nil {
		log.Fatal().Err(err).Msg("failed to auto migrate models")
	}

	mongoDB := db.Mongo.Database("echogram")
	repos := runtime.Repositories{
		Messages:      repositories.NewPostgresMessageRepository(db.Postgres),
		Notifications: repositories.NewPostgresNotificationRepository(db.Postgres),
		Connections:   repositories.NewPostgresConnectionRepository(db.Postgres),
		Reactions:     repositories.NewPostgresReactionRepository(db.Postgres),
		Comments:      repositories.NewPostgresCommentRepository(db.Postgres),
		Presence:      repositories.NewPostgresPresenceRepository(db.Postgres),
		Profiles:      repositories.NewPostgresProfileRepository(db.Postgres),
		Posts:         repositories.NewMongoPostRepository(mongoDB),
		Echoes:        repositories.NewEchoRepository(mongoDB, db.Postgres),
	}

	sessions := session.NewFirebaseService(repos.Profiles, firebaseApp.AuthClient, cfg.JWTSecret)
	feedClient := feed.NewSocketClient(cfg.RealtimeURL)
	uploader := storage.NewUploader(firebaseApp.StorageClient, cfg.StorageBucket)

	rt := runtime.New(repos, sessions, feedClient, uploader)
	if err := rt.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to start runtime")
	}

	e := echo.New()
	e.HideBanner = true
	router.SetupMiddleware(e)
	router.SetupRoutes(e, rt)
	e.Validator = validators.NewValidator()

	go func() {
		if err := e.Start(":" + cfg.Port); err != nil {
			log.Info().Err(err).Msg("http server stopped")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down")
	rt.Stop()
	if err := feedClient.Close(); err != nil {
		log.Warn().Err(err).Msg("feed client close failed")
	}
	if err := e.Shutdown(ctx); err != nil {
		log.Warn().Err(err).Msg("http shutdown failed")
	}
}
