package main

import (
	"fmt"
	"os"

	"github.com/gatehouse-ci/gatehouse/cmd/api-server/http"
	"github.com/gatehouse-ci/gatehouse/queue"
	"github.com/gatehouse-ci/gatehouse/store"

	nats "github.com/nats-io/go-nats"

	"github.com/sirupsen/logrus"
)

var logger *logrus.Entry

var pgconnstr, natsURL, jwtsecret string

func init() {
	lvl, err := logrus.ParseLevel(os.Getenv("GATEHOUSE_LOG_LEVEL"))
	if err != nil {
		lvl = logrus.InfoLevel
	}

	logrus.SetLevel(lvl)

	logger = logrus.WithField("package", "main")

	pguser := os.Getenv("GATEHOUSE_POSTGRES_USER")
	if pguser == "" {
		logger.Fatal("need GATEHOUSE_POSTGRES_USER")
	}

	pgpass := os.Getenv("GATEHOUSE_POSTGRES_PASS")
	if pgpass == "" {
		logger.Fatal("need GATEHOUSE_POSTGRES_PASS")
	}

	pghref := os.Getenv("GATEHOUSE_POSTGRES_HREF")
	if pghref == "" {
		logger.Fatal("need GATEHOUSE_POSTGRES_HREF")
	}

	pgdb := os.Getenv("GATEHOUSE_POSTGRES_DB")
	if pgdb == "" {
		logger.Fatal("need GATEHOUSE_POSTGRES_DB")
	}

	pgssl := os.Getenv("GATEHOUSE_POSTGRES_SSL")
	if pgssl == "" {
		logger.Info("GATEHOUSE_POSTGRES_SSL not set - defaulting to verify-full")
		pgssl = "verify-full"
	}

	pgconnstr = fmt.Sprintf("postgres://%v:%v@%v/%v?sslmode=%v",
		pguser, pgpass, pghref, pgdb, pgssl)

	natsURL = os.Getenv("GATEHOUSE_NATS_URL")
	if natsURL == "" {
		logger.Warnf("setting NATS url to %v", nats.DefaultURL)
		natsURL = nats.DefaultURL
	}

	jwtsecret = os.Getenv("GATEHOUSE_JWT_SECRET")
	if jwtsecret == "" {
		logger.Warn("GATEHOUSE_JWT_SECRET not set - defaulting to \"\" (HIGHLY INSECURE!)")
	}
}

func main() {
	logger.Info("booting server...")

	logger.Info("connecting to database")
	st, err := store.NewPostgres(pgconnstr)
	if err != nil {
		logger.WithField("error", err).Fatal("unable to connect to postgres")
	}

	logger.Info("setting up NATS connection")
	bus, err := queue.NewNATS(natsURL)
	if err != nil {
		logger.WithField("error", err).Fatal("unable to connect to NATS")
	}

	logger.Info("setting up runs send channel")
	send := bus.SenderOn("runs")

	srv := http.NewServer(":9001", send, st, jwtsecret)

	if err := srv.ListenAndServe(); err != nil {
		logger.WithField("error", err).Fatal("shutting down server")
	}
}
