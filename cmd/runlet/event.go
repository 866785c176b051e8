package main

import (
	"github.com/gatehouse-ci/gatehouse/pipeline"
	"github.com/gatehouse-ci/gatehouse/store"
)

// Event is a message that comes in requesting a pipeline run. Spec carries
// the declaration YAML so the agent doesn't have to fetch it separately.
type Event struct {
	PipelineID int             `json:"pipeline_id"`
	RunCount   int             `json:"run_count"`
	Spec       string          `json:"spec"`
	GitRemote  store.GitRemote `json:"git_remote"`
	Event      pipeline.Event  `json:"event"`
}
