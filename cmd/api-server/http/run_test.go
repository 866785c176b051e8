package http

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gatehouse-ci/gatehouse/store"

	"github.com/gorilla/mux"
)

func (st *memStore) seedRun() store.Run {
	run := store.Run{PipelineID: 1}
	run.SetStart()
	st.CreateRun(&run)

	for _, name := range []string{"build", "test", "clippy", "format"} {
		jr := store.JobRun{
			Name:       name,
			Status:     "pending",
			PipelineID: 1,
			RunCount:   run.Count,
		}
		st.CreateJobRun(&jr)
		run.Jobs = append(run.Jobs, jr)
	}

	return run
}

func TestGetRun(t *testing.T) {
	st := newMemStore()
	seeded := st.seedRun()

	srv := NewServer(":9001", make(chan []byte), st, "test")

	r := mux.NewRouter()
	r.Handle("/pipelines/{pid}/runs/{count}", chain(srv.handleGetRun, setRequestID, autoAuth))

	ts := httptest.NewServer(r)
	defer ts.Close()

	requrl := fmt.Sprintf("%v/pipelines/%v/runs/%v", ts.URL, seeded.PipelineID, seeded.Count)
	resp, err := http.Get(requrl)
	if err != nil {
		t.Fatalf("error executing test against test server: %v", err)
	}

	buf, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("got error reading response body: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected status code %v, got %v", http.StatusOK, resp.StatusCode)
	}

	var actual store.Run
	err = json.Unmarshal(buf, &actual)
	if err != nil {
		t.Fatalf("got error unmarshaling run: %v", err)
	}

	if actual.Count != seeded.Count {
		t.Fatalf("expected run count %v, got %v", seeded.Count, actual.Count)
	}

	if len(actual.Jobs) != len(seeded.Jobs) {
		t.Fatalf("expected %v jobs, got %v", len(seeded.Jobs), len(actual.Jobs))
	}
}

func TestGetRunNotFound(t *testing.T) {
	st := newMemStore()

	srv := NewServer(":9001", make(chan []byte), st, "test")

	r := mux.NewRouter()
	r.Handle("/pipelines/{pid}/runs/{count}", chain(srv.handleGetRun, setRequestID, autoAuth))

	ts := httptest.NewServer(r)
	defer ts.Close()

	resp, err := http.Get(fmt.Sprintf("%v/pipelines/1/runs/42", ts.URL))
	if err != nil {
		t.Fatalf("error executing test against test server: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected status code %v, got %v", http.StatusNotFound, resp.StatusCode)
	}
}
