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

func (st *memStore) seedJobs() {
	data := []struct {
		id      int
		name    string
		status  string
		success bool
	}{
		{
			id:      1,
			name:    "build",
			status:  "succeeded",
			success: true,
		},
		{
			id:      2,
			name:    "clippy",
			status:  "failed",
			success: false,
		},
	}

	for _, d := range data {
		st.jobdb[d.id] = store.JobRun{
			ID:      d.id,
			Name:    d.name,
			Status:  d.status,
			Success: &d.success,
		}
	}
}

func TestGetJob(t *testing.T) {
	st := newMemStore()
	st.seedJobs()

	srv := NewServer(":9001", make(chan []byte), st, "test")

	test := struct {
		input    int
		expected store.JobRun
		actual   store.JobRun
	}{
		input:    2,
		expected: st.jobdb[2],
	}

	r := mux.NewRouter()
	r.Handle("/jobs/{id}", chain(srv.handleGetJob, setRequestID, autoAuth))

	ts := httptest.NewServer(r)
	defer ts.Close()

	requrl := fmt.Sprintf("%v/jobs/%v", ts.URL, test.input)
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

	err = json.Unmarshal(buf, &test.actual)
	if err != nil {
		t.Fatalf("got error unmarshaling job: %v", err)
	}

	if test.expected.ID != test.actual.ID {
		t.Fatalf("expected ID %v, got %v", test.expected.ID, test.actual.ID)
	}

	if test.expected.Name != test.actual.Name {
		t.Fatalf("expected Name %v, got %v", test.expected.Name, test.actual.Name)
	}

	if test.expected.Status != test.actual.Status {
		t.Fatalf("expected Status %v, got %v", test.expected.Status, test.actual.Status)
	}

	if *test.expected.Success != *test.actual.Success {
		t.Fatalf("expected Success %v, got %v", *test.expected.Success, *test.actual.Success)
	}
}

func TestGetJobNotFound(t *testing.T) {
	st := newMemStore()

	srv := NewServer(":9001", make(chan []byte), st, "test")

	r := mux.NewRouter()
	r.Handle("/jobs/{id}", chain(srv.handleGetJob, setRequestID, autoAuth))

	ts := httptest.NewServer(r)
	defer ts.Close()

	resp, err := http.Get(fmt.Sprintf("%v/jobs/99", ts.URL))
	if err != nil {
		t.Fatalf("error executing test against test server: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected status code %v, got %v", http.StatusNotFound, resp.StatusCode)
	}
}
