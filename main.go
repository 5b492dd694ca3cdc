package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"strconv"
	"time"

	raven "github.com/getsentry/raven-go"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/inklet/newsletter-backend/api"
	"github.com/inklet/newsletter-backend/db"
	"github.com/inklet/newsletter-backend/email"
	"github.com/inklet/newsletter-backend/subscription"
	"github.com/inklet/newsletter-backend/telemetry"
	"github.com/inklet/newsletter-backend/util"
)

func validPort(port string) (string, error) {
	if _, err := strconv.Atoi(port); err != nil {
		return "", fmt.Errorf("given port %s is invalid", port)
	}
	return fmt.Sprintf(":%s", port), nil
}

// makeSender picks the notification backend. The HTTP provider is the
// default; EMAIL_PROVIDER=smtp switches to direct SMTP submission.
func makeSender() (email.Sender, error) {
	if util.EnvOrDefault("EMAIL_PROVIDER", "postmark") == "smtp" {
		sender, err := email.MakeSMTPSenderFromEnv()
		if err != nil {
			return nil, err
		}
		return sender, nil
	}
	cfg, err := email.MakeConfigFromEnv()
	if err != nil {
		return nil, err
	}
	return email.NewClient(cfg), nil
}

// Serves all public endpoints.
func servePublicEndpoints() {
	godotenv.Load()
	raven.SetDSN(os.Getenv("SENTRY_DSN"))

	shutdownTracer := telemetry.InitTracer()
	defer shutdownTracer()

	cfg, err := db.LoadEnvironmentVariables()
	if err != nil {
		log.Fatal(err)
	}
	sqldb, err := db.InitSQLDatabase(cfg)
	if err != nil {
		log.Fatal(err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := sqldb.Ping(ctx); err != nil {
		log.Fatal(err)
	}

	sender, err := makeSender()
	if err != nil {
		log.Fatal(err)
	}

	varErrs := util.Errors{}
	baseURL := util.RequireEnv("APP_BASE_URL", &varErrs)
	if len(varErrs) > 0 {
		log.Fatal(varErrs)
	}

	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	service := subscription.NewService(sqldb, sender, baseURL,
		logger, subscription.NewMetrics())
	restAPI := &api.API{Service: service}

	portString, err := validPort(util.EnvOrDefault("PORT", "8000"))
	if err != nil {
		log.Fatal(err)
	}
	mux := http.NewServeMux()
	log.Printf("Serving on %s", portString)
	log.Fatal(http.ListenAndServe(portString, restAPI.RegisterHandlers(mux)))
}

func main() {
	servePublicEndpoints()
}
