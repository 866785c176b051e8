package http

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gatehouse-ci/gatehouse/store"
)

// memStore is an in-memory apiStore for handler tests.
type memStore struct {
	pipelinedb map[int]store.Pipeline
	rundb      map[string]store.Run
	jobdb      map[int]store.JobRun
	stepdb     map[int]store.StepRun

	nextPipelineID int
	nextJobID      int

	authenticate func(user, pass string) error
}

func newMemStore() *memStore {
	return &memStore{
		pipelinedb:     make(map[int]store.Pipeline),
		rundb:          make(map[string]store.Run),
		jobdb:          make(map[int]store.JobRun),
		stepdb:         make(map[int]store.StepRun),
		nextPipelineID: 1,
		nextJobID:      1,
	}
}

func runkey(pid, count int) string {
	return fmt.Sprintf("%v:%v", pid, count)
}

func (st *memStore) CreatePipeline(p *store.Pipeline) error {
	p.ID = st.nextPipelineID
	st.nextPipelineID++

	st.pipelinedb[p.ID] = *p
	return nil
}

func (st *memStore) GetPipeline(id int) (store.Pipeline, error) {
	p, ok := st.pipelinedb[id]
	if !ok {
		return store.Pipeline{}, store.ErrPipelineNotFound
	}

	return p, nil
}

func (st *memStore) GetPipelines() ([]store.Pipeline, error) {
	ps := []store.Pipeline{}
	for _, p := range st.pipelinedb {
		ps = append(ps, p)
	}

	return ps, nil
}

func (st *memStore) GetPipelineByRemote(remote store.GitRemote) (store.Pipeline, error) {
	for _, p := range st.pipelinedb {
		if p.GitRemote.URL == remote.URL {
			return p, nil
		}
	}

	return store.Pipeline{}, store.ErrNoPipelines
}

func (st *memStore) GetRun(pid, n int) (store.Run, error) {
	r, ok := st.rundb[runkey(pid, n)]
	if !ok {
		return store.Run{}, store.ErrRunNotFound
	}

	return r, nil
}

func (st *memStore) GetJobRun(id int) (store.JobRun, error) {
	j, ok := st.jobdb[id]
	if !ok {
		return store.JobRun{}, store.ErrJobNotFound
	}

	return j, nil
}

func (st *memStore) GetStepRun(id int) (store.StepRun, error) {
	s, ok := st.stepdb[id]
	if !ok {
		return store.StepRun{}, store.ErrStepNotFound
	}

	return s, nil
}

func (st *memStore) CreateRun(r *store.Run) error {
	count := 1
	for {
		if _, ok := st.rundb[runkey(r.PipelineID, count)]; !ok {
			break
		}
		count++
	}

	r.Count = count
	st.rundb[runkey(r.PipelineID, r.Count)] = *r
	return nil
}

func (st *memStore) CreateJobRun(j *store.JobRun) error {
	j.ID = st.nextJobID
	st.nextJobID++

	st.jobdb[j.ID] = *j

	key := runkey(j.PipelineID, j.RunCount)
	if run, ok := st.rundb[key]; ok {
		run.Jobs = append(run.Jobs, *j)
		st.rundb[key] = run
	}

	return nil
}

func (st *memStore) Authenticate(user, pass string) error {
	if st.authenticate != nil {
		return st.authenticate(user, pass)
	}

	return nil
}

// autoAuth skips token checking and sets the test subject directly.
func autoAuth(fn http.HandlerFunc) http.HandlerFunc {
	return http.HandlerFunc(func(rw http.ResponseWriter, req *http.Request) {
		ctx := context.WithValue(
			req.Context(),
			keyReqSub,
			"user@test",
		)
		req = req.WithContext(ctx)

		fn(rw, req)
	})
}
