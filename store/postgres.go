package store

import (
	"database/sql"

	_ "github.com/lib/pq" // load the postgres driver
	log "github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"
)

// Postgres is a PostgreSQL database that's also a GatehouseStore.
type Postgres struct {
	db *sql.DB
}

// NewPostgres returns a GatehouseStore backed by PostgreSQL. It connects
// to the database using connstr.
func NewPostgres(connstr string) (GatehouseStore, error) {
	logger = logger.WithField("store", "postgres")

	logger.Debug("connecting to database")

	db, err := sql.Open("postgres", connstr)
	if err != nil {
		logger.WithField("error", err).Debug("unable to connect to database")
		return nil, err
	}

	return &Postgres{
		db: db,
	}, nil
}

// CreatePipeline saves a Pipeline to Postgres and sets its ID to what
// Postgres assigned it.
func (st *Postgres) CreatePipeline(p *Pipeline) error {
	logger := logger.WithFields(log.Fields{
		"name":   p.Name,
		"url":    p.GitRemote.URL,
		"branch": p.GitRemote.Branch,

		"query": "create_pipeline",
	})

	sqlinsert := `
	INSERT INTO pipelines (name, remote_url, remote_branch, spec)
	VALUES
		($1, $2, $3, $4)
	RETURNING id;
	`

	logger.Debug("saving pipeline")

	// Using QueryRow because the insert is returning "id".
	err := st.db.QueryRow(
		sqlinsert, p.Name, p.GitRemote.URL, p.GitRemote.Branch, p.Spec).
		Scan(&p.ID)
	if err != nil {
		logger.WithField("error", err).Debug("unable to insert pipeline")
		return err
	}

	logger.Debug("pipeline saved")

	return nil
}

// GetPipeline retrieves the Pipeline with the given id from postgres,
// along with its runs.
func (st *Postgres) GetPipeline(id int) (Pipeline, error) {
	logger := logger.WithField("id", id)
	logger.Debug("getting pipeline from postgres")

	sqlq := `
	SELECT p.name, p.success, p.remote_url, p.remote_branch, p.spec,
		r.count, r.event, r.branch, r.revision,
		r.start_time, r.end_time, r.success
	FROM pipelines AS p
	LEFT JOIN runs AS r
	ON p.id = r.pipeline_id
	WHERE p.id = $1;
	`

	var p Pipeline
	rows, err := st.db.Query(sqlq, id)
	if err != nil {
		logger.WithError(err).Debug("unable to query database")
		return p, err
	}

	found := false
	for rows.Next() {
		found = true
		r := Run{PipelineID: id}

		var count sql.NullInt64
		var event, branch, revision sql.NullString
		var start, end sql.NullTime
		var success sql.NullBool

		// It's safe to always overwrite `p` here because these values
		// should always be the same.
		err := rows.Scan(&p.Name, &p.Success, &p.GitRemote.URL, &p.GitRemote.Branch, &p.Spec,
			&count, &event, &branch, &revision, &start, &end, &success)
		if err != nil {
			logger.WithError(err).Debug("unable to scan row")
			return p, err
		}

		// The LEFT JOIN yields null run columns for pipelines that
		// haven't run yet.
		if !count.Valid {
			continue
		}

		r.Count = int(count.Int64)
		r.Event = event.String
		r.Branch = branch.String
		r.Revision = revision.String
		if start.Valid {
			t := start.Time
			r.Start = &t
		}
		if end.Valid {
			t := end.Time
			r.End = &t
		}
		if success.Valid {
			s := success.Bool
			r.Success = &s
		}

		p.Runs = append(p.Runs, r)
	}

	if !found {
		return p, ErrPipelineNotFound
	}

	p.ID = id

	return p, nil
}

// GetPipelines retrieves all pipelines from Postgres, without their runs.
func (st *Postgres) GetPipelines() ([]Pipeline, error) {
	logger.Debug("fetching all pipelines from postgres")

	sqlq := `
	SELECT id, name, remote_url, remote_branch, success
	FROM pipelines;
	`

	rows, err := st.db.Query(sqlq)
	if err != nil {
		logger.WithField("error", err).Debug("unable to query database")
		return nil, err
	}

	ps := []Pipeline{}
	for rows.Next() {
		p := Pipeline{}
		err := rows.Scan(&p.ID, &p.Name, &p.GitRemote.URL, &p.GitRemote.Branch, &p.Success)
		if err != nil {
			logger.WithField("error", err).Debug("unable to scan row")
			return ps, err
		}

		ps = append(ps, p)
	}

	return ps, nil
}

// GetPipelineByRemote queries Postgres for the pipeline watching the given
// remote. Matching is by URL: which branches start runs is the trigger's
// call, not the store's. If no pipeline is found it returns ErrNoPipelines.
func (st *Postgres) GetPipelineByRemote(remote GitRemote) (Pipeline, error) {
	logger := logger.WithFields(log.Fields{
		"url":   remote.URL,
		"query": "get_pipeline_by_remote",
	})

	sqlq := `
	SELECT id, name, spec, success, remote_branch
	FROM pipelines
	WHERE remote_url = $1;
	`

	logger.Debug("retrieving pipeline from postgres")

	p := Pipeline{GitRemote: GitRemote{URL: remote.URL}}
	err := st.db.QueryRow(sqlq, remote.URL).
		Scan(&p.ID, &p.Name, &p.Spec, &p.Success, &p.GitRemote.Branch)
	if err == sql.ErrNoRows {
		err = ErrNoPipelines
	}

	return p, err
}

// UpdatePipeline is part of the GatehouseStore interface. It records the
// latest run's verdict on the pipeline itself.
func (st *Postgres) UpdatePipeline(p *Pipeline) error {
	sqlupdate := `
	UPDATE pipelines
	SET success = $1
	WHERE pipelines.id = $2
	`

	logger := logger.WithFields(log.Fields{
		"id":      p.ID,
		"success": p.Success,
		"query":   "set_pipeline_success",
	})

	logger.Debug("setting pipeline success")

	_, err := st.db.Exec(sqlupdate, p.Success, p.ID)
	return err
}

// CreateRun is part of the GatehouseStore interface. It creates a new
// pipeline run in the database and sets the count.
func (st *Postgres) CreateRun(r *Run) error {
	logger := logger.WithFields(log.Fields{
		"pipeline_id": r.PipelineID,
	})

	sqlinsert := `
	WITH run_count AS (
		SELECT COUNT(*) from runs
		WHERE runs.pipeline_id = $7
	)
	INSERT INTO runs (count, event, branch, revision, start_time, end_time, success, pipeline_id)
	SELECT run_count.count+1, $1, $2, $3, $4, $5, $6, $7
	FROM run_count
	RETURNING count
	`

	logger.Debug("saving pipeline run")

	// Using QueryRow because the insert is returning "count".
	err := st.db.QueryRow(
		sqlinsert, r.Event, r.Branch, r.Revision, r.Start, r.End, r.Success, r.PipelineID).
		Scan(&r.Count)
	if err != nil {
		logger.WithField("error", err).Debug("unable to insert pipeline run")
		return err
	}

	logger.Debug("pipeline run saved")

	return nil
}

// CreateJobRun is part of the GatehouseStore interface. It creates a new
// job record in the database and sets the ID.
func (st *Postgres) CreateJobRun(j *JobRun) error {
	logger := logger.WithFields(log.Fields{
		"pipeline_id": j.PipelineID,
		"run_count":   j.RunCount,
		"name":        j.Name,
	})

	sqlinsert := `
	INSERT INTO job_runs (name, status, start_time, end_time, success, pipeline_id, run_count)
	VALUES ($1, $2, $3, $4, $5, $6, $7)
	RETURNING id
	`

	logger.Debug("saving job run")

	// Using QueryRow because the insert is returning "id".
	err := st.db.QueryRow(
		sqlinsert, j.Name, j.Status, j.Start, j.End, j.Success, j.PipelineID, j.RunCount).
		Scan(&j.ID)
	if err != nil {
		logger.WithField("error", err).Debug("unable to insert job run")
		return err
	}

	logger.Debug("job run saved")

	return nil
}

// CreateStepRun is part of the GatehouseStore interface. It creates a new
// step record in the database and sets the ID.
func (st *Postgres) CreateStepRun(s *StepRun) error {
	logger := logger.WithFields(log.Fields{
		"name":   s.Name,
		"job_id": s.JobID,
	})

	sqlinsert := `
	INSERT INTO step_runs (name, skipped, exit_code, start_time, end_time, success, job_id)
	VALUES ($1, $2, $3, $4, $5, $6, $7)
	RETURNING id
	`

	logger.Debug("saving step run")

	// Using QueryRow because the insert is returning "id".
	err := st.db.QueryRow(
		sqlinsert, s.Name, s.Skipped, s.ExitCode, s.Start, s.End, s.Success, s.JobID).
		Scan(&s.ID)
	if err != nil {
		logger.WithField("error", err).Debug("unable to insert step run")
		return err
	}

	logger.Debug("step run saved")

	return nil
}

// UpdateRun implements part of GatehouseStore. It updates a run's success
// status and end time.
func (st *Postgres) UpdateRun(r *Run) error {
	logger := logger.WithFields(log.Fields{
		"pipeline_id": r.PipelineID,
		"count":       r.Count,
		"end":         r.End,
		"success":     r.Success,
	})

	sqlupdate := `
	UPDATE runs
	SET success = $1, end_time = $2
	WHERE runs.pipeline_id = $3 AND runs.count = $4
	`

	logger.Debug("saving run")

	_, err := st.db.Exec(sqlupdate, r.Success, r.End, r.PipelineID, r.Count)
	if err != nil {
		logger.WithError(err).Debug("unable to update run")
		return err
	}

	logger.Debug("run saved")

	return nil
}

// UpdateJobRun is part of the GatehouseStore interface. It updates a job's
// status, success and end time with what's passed in.
func (st *Postgres) UpdateJobRun(j *JobRun) error {
	logger := logger.WithFields(log.Fields{
		"pipeline_id": j.PipelineID,
		"run_count":   j.RunCount,
		"name":        j.Name,
		"id":          j.ID,
		"status":      j.Status,
		"success":     j.Success,
		"end":         j.End,
	})

	sqlupdate := `
	UPDATE job_runs
	SET status = $1, success = $2, end_time = $3
	WHERE job_runs.id = $4
	`

	logger.Debug("saving job run")

	_, err := st.db.Exec(sqlupdate, j.Status, j.Success, j.End, j.ID)
	if err != nil {
		logger.WithError(err).Debug("unable to update job run")
		return err
	}

	logger.Debug("job run saved")

	return nil
}

// GetRun returns the nth run of the pipeline with the given ID. If the run
// isn't found it returns ErrRunNotFound.
func (st *Postgres) GetRun(pid, n int) (Run, error) {
	logger := logger.WithFields(log.Fields{
		"pipeline_id": pid,
		"count":       n,
	})
	logger.Debug("getting run from postgres")

	sqlq := `
	SELECT r.event, r.branch, r.revision, r.start_time, r.end_time, r.success,
		j.id, j.name, j.status, j.start_time, j.end_time, j.success
	FROM runs AS r
	INNER JOIN job_runs AS j
	ON r.count = j.run_count
		AND r.pipeline_id = j.pipeline_id
	WHERE r.pipeline_id = $1 AND r.count = $2
	`

	r := Run{
		PipelineID: pid,
		Count:      n,
	}
	rows, err := st.db.Query(sqlq, pid, n)
	if err != nil {
		logger.WithError(err).Debug("unable to query database")
		return r, err
	}

	if !rows.Next() {
		return r, ErrRunNotFound
	}

	// The loop has to be unrolled to handle the first call to
	// Next() that was used to check for a result.
	j := JobRun{PipelineID: pid, RunCount: n}
	err = rows.Scan(&r.Event, &r.Branch, &r.Revision, &r.Start, &r.End, &r.Success,
		&j.ID, &j.Name, &j.Status, &j.Start, &j.End, &j.Success)
	if err != nil {
		logger.WithError(err).Debug("unable to scan row")
		return r, err
	}

	r.Jobs = append(r.Jobs, j)

	for rows.Next() {
		j := JobRun{PipelineID: pid, RunCount: n}

		// It's safe to always overwrite `r` here because these values
		// should always be the same.
		err := rows.Scan(&r.Event, &r.Branch, &r.Revision, &r.Start, &r.End, &r.Success,
			&j.ID, &j.Name, &j.Status, &j.Start, &j.End, &j.Success)
		if err != nil {
			logger.WithError(err).Debug("unable to scan row")
			return r, err
		}

		r.Jobs = append(r.Jobs, j)
	}

	return r, nil
}

// GetJobRun returns the job with the given ID along with its steps. If the
// job isn't found it returns ErrJobNotFound.
func (st *Postgres) GetJobRun(id int) (JobRun, error) {
	logger := logger.WithField("id", id)
	logger.Debug("getting job run from postgres")

	sqlq := `
	SELECT j.name, j.status, j.start_time, j.end_time, j.success,
		s.id, s.name, s.skipped, s.exit_code, s.start_time, s.end_time, s.success
	FROM job_runs AS j
	LEFT JOIN step_runs AS s
	ON j.id = s.job_id
	WHERE j.id = $1
	`

	j := JobRun{ID: id}
	rows, err := st.db.Query(sqlq, id)
	if err != nil {
		logger.WithError(err).Debug("unable to query database")
		return j, err
	}

	found := false
	for rows.Next() {
		found = true
		s := StepRun{JobID: id}

		var sid sql.NullInt64
		var sname sql.NullString
		var skipped sql.NullBool
		var exit sql.NullInt64
		var start, end sql.NullTime
		var success sql.NullBool

		// It's safe to always overwrite `j` here because these values
		// should always be the same.
		err := rows.Scan(&j.Name, &j.Status, &j.Start, &j.End, &j.Success,
			&sid, &sname, &skipped, &exit, &start, &end, &success)
		if err != nil {
			logger.WithError(err).Debug("unable to scan row")
			return j, err
		}

		// The LEFT JOIN yields null step columns for jobs that haven't
		// recorded any steps yet.
		if !sid.Valid {
			continue
		}

		s.ID = int(sid.Int64)
		s.Name = sname.String
		s.Skipped = skipped.Bool
		s.ExitCode = int(exit.Int64)
		if start.Valid {
			t := start.Time
			s.Start = &t
		}
		if end.Valid {
			t := end.Time
			s.End = &t
		}
		if success.Valid {
			b := success.Bool
			s.Success = &b
		}

		j.Steps = append(j.Steps, s)
	}

	if !found {
		return j, ErrJobNotFound
	}

	return j, nil
}

// GetStepRun returns the StepRun with the given ID. If the step isn't
// found it returns ErrStepNotFound.
func (st *Postgres) GetStepRun(id int) (StepRun, error) {
	logger := logger.WithField("id", id)
	logger.Debug("getting step run from postgres")

	sqlq := `
	SELECT name, skipped, exit_code, start_time, end_time, success, job_id
	FROM step_runs
	WHERE step_runs.id = $1
	`

	s := StepRun{ID: id}
	err := st.db.QueryRow(sqlq, id).
		Scan(&s.Name, &s.Skipped, &s.ExitCode, &s.Start, &s.End, &s.Success, &s.JobID)
	if err != nil {
		logger.WithError(err).Debug("unable to query row")
		if err == sql.ErrNoRows {
			return s, ErrStepNotFound
		}
	}

	return s, err
}

// CreateUser creates the passed in user in the database.
func (st *Postgres) CreateUser(u *User) error {
	logger := logger.WithField("email", u.Email)
	logger.Debug("saving user")

	password, err := bcrypt.GenerateFromPassword([]byte(u.Password), bcrypt.DefaultCost)
	if err != nil {
		logger.WithError(err).Debug("unable to encrypt password")
		return err
	}

	sqlq := `
	INSERT INTO users (email, name, password)
	VALUES
		($1, $2, $3)
	`

	_, err = st.db.Exec(sqlq, u.Email, u.Name, password)
	return err
}

// Authenticate checks the password for the user with the given email address.
func (st *Postgres) Authenticate(email, pass string) error {
	logger := logger.WithField("email", email)
	logger.Debug("authenticating user")

	sqlq := `
	SELECT password
	FROM users
	WHERE users.email = $1
	`

	cryptpass := []byte{}
	err := st.db.QueryRow(sqlq, email).Scan(&cryptpass)
	if err != nil {
		logger.WithError(err).Debug("unable to query row")
		if err == sql.ErrNoRows {
			return ErrNotAuthenticated
		}
	}

	err = bcrypt.CompareHashAndPassword(cryptpass, []byte(pass))
	if err != nil {
		logger.WithError(err).Debug("unable to authenticate")
		return ErrNotAuthenticated
	}

	return nil
}
