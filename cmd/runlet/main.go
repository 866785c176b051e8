package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/gatehouse-ci/gatehouse/pipeline"
	"github.com/gatehouse-ci/gatehouse/queue"
	"github.com/gatehouse-ci/gatehouse/runner"
	"github.com/gatehouse-ci/gatehouse/store"

	docker "github.com/fsouza/go-dockerclient"
	nats "github.com/nats-io/go-nats"
	"github.com/sirupsen/logrus"
)

var logger *logrus.Entry

var pgconnstr, natsURL string

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
}

func main() {
	logger.Info("booting agent...")

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

	recv, err := bus.ReceiverOn("runs", "runlets")
	if err != nil {
		logger.WithField("error", err).Fatal("unable to subscribe to runs")
	}

	logger.Info("connecting to docker daemon")
	client, err := docker.NewClientFromEnv()
	if err != nil {
		logger.WithField("error", err).Fatal("unable to connect to docker")
	}

	provider := &dockerProvider{client: client}

	logger.Info("waiting for runs")

	for raw := range recv {
		var ev Event
		if err := json.Unmarshal(raw, &ev); err != nil {
			logger.WithError(err).Error("unable to unmarshal run event")
			continue
		}

		handle(st, provider, ev)
	}
}

// handle executes one requested run from start to finish, recording every
// job's progress along the way.
func handle(st store.GatehouseStore, provider runner.Provider, ev Event) {
	logger := logger.WithFields(logrus.Fields{
		"pipeline_id": ev.PipelineID,
		"run_count":   ev.RunCount,
		"remote":      ev.GitRemote.URL,
	})

	logger.Info("handling run")

	decl, err := pipeline.Parse([]byte(ev.Spec))
	if err != nil {
		logger.WithError(err).Error("unable to parse pipeline declaration")
		return
	}

	run, err := st.GetRun(ev.PipelineID, ev.RunCount)
	if err != nil {
		logger.WithError(err).Error("unable to fetch run")
		return
	}

	rec := newStoreRecorder(st, run)

	res := runner.New(provider, rec).Run(context.Background(), decl, runner.Source{
		Remote:   ev.GitRemote.URL,
		Branch:   ev.Event.Branch,
		Revision: ev.Event.Revision,
	})

	run.SetEnd()
	run.MarkSuccess(res.Success())
	if err := st.UpdateRun(&run); err != nil {
		logger.WithError(err).Error("unable to record run result")
	}

	p := store.Pipeline{ID: ev.PipelineID}
	p.MarkSuccess(res.Success())
	if err := st.UpdatePipeline(&p); err != nil {
		logger.WithError(err).Error("unable to record pipeline result")
	}

	logger.WithField("success", res.Success()).Info("run finished")
}
