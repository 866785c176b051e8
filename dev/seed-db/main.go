package main

import (
	"fmt"
	"os"

	"github.com/gatehouse-ci/gatehouse/pipeline"
	"github.com/gatehouse-ci/gatehouse/store"

	yaml "gopkg.in/yaml.v3"
)

func usage() {
	fmt.Println("usage: go run dev/seed-db/main.go $POSTGRES_CONNECTION_STRING $DATA_YAML_PATH")
}

func main() {
	// This is 4 because passing arguments to `go run` requires the `--` and
	// that also counts as one of the arguments in `os.Args`.
	if len(os.Args) != 4 {
		usage()
		os.Exit(1)
	}

	args := os.Args[2:]

	connstr := args[0]
	if connstr == "" {
		usage()
		return
	}

	path := args[1]
	if path == "" {
		usage()
		return
	}

	fmt.Printf("seeding %v with data from %v\n", connstr, path)

	buf, err := os.ReadFile(path)
	if err != nil {
		fmt.Printf("got error reading file: %v\n", err)
		os.Exit(1)
	}

	var d data
	err = yaml.Unmarshal(buf, &d)
	if err != nil {
		fmt.Printf("got error loading YAML: %v\n", err)
		os.Exit(1)
	}

	st, err := store.NewPostgres(connstr)
	if err != nil {
		fmt.Printf("got error connecting to database: %v\n", err)
		os.Exit(1)
	}

	for _, user := range d.Users {
		err = st.CreateUser(&user)
		if err != nil {
			fmt.Printf("got error creating user %v: %v\n", user.Email, err)
			os.Exit(1)
		}

		fmt.Printf("created user %v\n", user.Email)
	}

	for _, p := range d.Pipelines {
		// Pipelines with no declaration of their own get the stock
		// build-test-clippy-format one.
		if p.Spec == "" {
			spec, err := yaml.Marshal(pipeline.Default())
			if err != nil {
				fmt.Printf("got error marshaling default declaration: %v\n", err)
				os.Exit(1)
			}

			p.Spec = string(spec)
		}

		if _, err := pipeline.Parse([]byte(p.Spec)); err != nil {
			fmt.Printf("got invalid declaration for %v: %v\n", p.GitRemote.URL, err)
			os.Exit(1)
		}

		err = st.CreatePipeline(&p)
		if err != nil {
			fmt.Printf("got error creating pipeline for %v: %v\n", p.GitRemote.URL, err)
			os.Exit(1)
		}

		fmt.Printf("created pipeline %v for %v\n", p.ID, p.GitRemote.URL)
	}
}

type data struct {
	Users     []store.User
	Pipelines []store.Pipeline
}
