package http

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/gatehouse-ci/gatehouse/pipeline"
	"github.com/gatehouse-ci/gatehouse/runner"
	"github.com/gatehouse-ci/gatehouse/store"

	"github.com/sirupsen/logrus"
)

// runMessage is what gets published for the runlet agents when a webhook
// matches a pipeline's trigger.
type runMessage struct {
	PipelineID int             `json:"pipeline_id"`
	RunCount   int             `json:"run_count"`
	Spec       string          `json:"spec"`
	GitRemote  store.GitRemote `json:"git_remote"`
	Event      pipeline.Event  `json:"event"`
}

// handleGitHook is the trigger matcher. The source control system posts
// push and pull_request events here; an event matching a pipeline's
// trigger creates exactly one run with every declared job pending, and
// anything else is a normal no-op.
func (srv *Server) handleGitHook(rw http.ResponseWriter, req *http.Request) {
	reqID := req.Context().Value(keyReqID).(string)
	logger := logger.WithField("request_id", reqID)

	logger.Debug("reading request body")
	buf, err := io.ReadAll(req.Body)
	if err != nil {
		logger.WithError(err).Error("unable to read request body")

		writeErrResp(rw, err, http.StatusInternalServerError)
		return
	}

	logger.Debug("unmarshaling event")
	var ev pipeline.Event
	err = json.Unmarshal(buf, &ev)
	if err != nil {
		logger.WithError(err).Error("unable to unmarshal request body")

		writeErrResp(rw, err, http.StatusBadRequest)
		return
	}

	if ev.Remote == "" {
		err := errors.New("missing field 'remote' from event")
		logger.WithError(err).Error("unable to complete request")

		writeErrResp(rw, err, http.StatusBadRequest)
		return
	}

	logger = logger.WithFields(logrus.Fields{
		"kind":   ev.Kind,
		"remote": ev.Remote,
		"branch": ev.Branch,
	})

	logger.Debug("looking up pipeline for remote")
	p, err := srv.st.GetPipelineByRemote(store.GitRemote{URL: ev.Remote})
	if err == store.ErrNoPipelines {
		// No pipeline watches this remote. Nothing to do.
		logger.Debug("no pipeline for remote")

		rw.WriteHeader(http.StatusNoContent)
		return
	}
	if err != nil {
		logger.WithError(err).Error("unable to look up pipeline")

		writeErrResp(rw, err, http.StatusInternalServerError)
		return
	}

	decl, err := pipeline.Parse([]byte(p.Spec))
	if err != nil {
		logger.WithError(err).Error("unable to parse pipeline declaration")

		writeErrResp(rw, err, http.StatusInternalServerError)
		return
	}

	if !decl.Trigger.Matches(ev) {
		// A trigger mismatch isn't an error, there's just no run.
		logger.Debug("event doesn't match trigger")

		rw.WriteHeader(http.StatusNoContent)
		return
	}

	logger.Info("creating run")

	run := store.Run{
		Event:      ev.Kind,
		Branch:     ev.Branch,
		Revision:   ev.Revision,
		PipelineID: p.ID,
	}
	run.SetStart()

	err = srv.st.CreateRun(&run)
	if err != nil {
		logger.WithError(err).Error("unable to create run")

		writeErrResp(rw, err, http.StatusInternalServerError)
		return
	}

	for _, job := range decl.Jobs {
		jr := store.JobRun{
			Name:       job.Name,
			Status:     string(runner.StatePending),
			PipelineID: p.ID,
			RunCount:   run.Count,
		}

		err = srv.st.CreateJobRun(&jr)
		if err != nil {
			logger.WithError(err).Error("unable to create job run")

			writeErrResp(rw, err, http.StatusInternalServerError)
			return
		}

		run.Jobs = append(run.Jobs, jr)
	}

	msg := runMessage{
		PipelineID: p.ID,
		RunCount:   run.Count,
		Spec:       p.Spec,
		GitRemote:  p.GitRemote,
		Event:      ev,
	}
	rawmsg, err := json.Marshal(msg)
	if err != nil {
		logger.WithError(err).
			Warn("unable to marshal run message")
	} else {
		// Not being able to send to the agents right away is not enough
		// to cause the request to fail. For this reason, we should try
		// as hard as possible to send the request.
		go sendWithBackoff(logger, srv.runch, rawmsg)
	}

	body, err := json.Marshal(run)
	if err != nil {
		logger.WithError(err).Error("unable to marshal response body")

		writeErrResp(rw, err, http.StatusInternalServerError)
		return
	}

	rw.WriteHeader(http.StatusAccepted)
	rw.Write(body)
	return
}
