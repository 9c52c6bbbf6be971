package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/kardboard/kardboard/api"
	"github.com/kardboard/kardboard/database"
	"github.com/kardboard/kardboard/integrations"
	"github.com/kardboard/kardboard/scheduler"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	// .env values become environment overrides for viper below.
	_ = godotenv.Load()

	levelStr := strings.ToLower(os.Getenv("LOG_LEVEL"))
	if levelStr == "" {
		levelStr = "debug"
	}
	level, err := zapcore.ParseLevel(levelStr)
	if err != nil {
		level = zapcore.InfoLevel
	}

	encoderConfig := zap.NewDevelopmentEncoderConfig()
	encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	config := zap.Config{
		Level:            zap.NewAtomicLevelAt(level),
		Development:      true,
		Encoding:         "console",
		EncoderConfig:    encoderConfig,
		OutputPaths:      []string{"stdout"},
		ErrorOutputPaths: []string{"stderr"},
	}

	logger, _ := config.Build()
	defer logger.Sync()
	zap.ReplaceGlobals(logger)

	viper.SetConfigName("config")
	viper.SetConfigType("toml")
	viper.AddConfigPath(".")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()
	if err := viper.ReadInConfig(); err != nil {
		zap.L().Fatal("Error reading config file", zap.Error(err))
	}

	dbPath := viper.GetString("database.path")
	if dbPath == "" {
		dbPath = "kardboard.db"
	}
	db := database.Init(dbPath)
	sqlDB, _ := db.DB()

	port := viper.GetString("server.port")
	if port == "" {
		port = "8080"
	}
	templatesGlob := viper.GetString("server.templates")
	if templatesGlob == "" {
		templatesGlob = "templates/*.html"
	}

	cards := database.NewCards(db)
	records := database.NewDailyRecords(db, cards)
	ticket := integrations.NewTicketHelper()
	if _, ok := ticket.(*integrations.JIRAClient); ok {
		zap.L().Info("Using JIRA ticket helper", zap.String("baseURL", viper.GetString("jira.base_url")))
	} else {
		zap.L().Info("No ticket system configured, using the dummy helper")
	}

	handler := api.NewHandler(cards, records, ticket)
	router := api.NewRouter(handler, logger, templatesGlob)

	srv := &http.Server{
		Addr:    ":" + port,
		Handler: router,
	}

	zap.L().Info("Starting server", zap.String("port", port))
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zap.L().Fatal("Server error", zap.Error(err))
		}
	}()

	recordsCron := viper.GetString("records.cron")
	if recordsCron == "" {
		recordsCron = "0 1 * * *"
	}
	ticketsCron := viper.GetString("jira.sync_cron")
	if ticketsCron == "" {
		ticketsCron = "*/30 * * * *"
	}
	backfillDays := viper.GetInt("records.backfill_days")
	if backfillDays == 0 {
		backfillDays = 7
	}
	ticketMaxAge := viper.GetDuration("jira.max_age")
	if ticketMaxAge == 0 {
		ticketMaxAge = time.Hour
	}

	sched := scheduler.New(cards, records, ticket, recordsCron, ticketsCron, backfillDays, ticketMaxAge)
	if err := sched.Start(); err != nil {
		zap.L().Fatal("Failed to start scheduler", zap.Error(err))
	}

	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	done := make(chan struct{})
	var once sync.Once

	cleanup := func(reason string) {
		zap.L().Info("Shutdown initiated", zap.String("reason", reason))

		sched.Stop()

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		zap.L().Info("Shutting down HTTP server...")
		if err := srv.Shutdown(ctx); err != nil {
			zap.L().Error("Error shutting down server", zap.Error(err))
		} else {
			zap.L().Info("HTTP server shut down gracefully.")
		}

		if sqlDB != nil {
			if err := sqlDB.Close(); err != nil {
				zap.L().Error("Error closing database", zap.Error(err))
			} else {
				zap.L().Info("Database connection closed.")
			}
		}
		close(done)
	}

	go func() {
		sig := <-sigCh
		once.Do(func() {
			cleanup(sig.String())
		})

		// if a second signal is caught, exit immediately
		go func() {
			<-sigCh
			zap.L().Info("Second interrupt signal received. Exiting immediately.")
			os.Exit(1)
		}()
	}()

	<-done
	zap.L().Info("Exiting...")
}
