package scanner

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nasa-jpl/goscan/scan"
)

var errNoJob = errors.New("no such scan job")

// JobInfo is the JSON form of a scan job
type JobInfo struct {
	ID       uuid.UUID `json:"id"`
	State    string    `json:"state"`
	Pages    int       `json:"pages"`
	Files    []string  `json:"files,omitempty"`
	Err      string    `json:"err,omitempty"`
	Started  time.Time `json:"started"`
	Finished time.Time `json:"finished"`
}

type job struct {
	ID uuid.UUID

	mu       sync.Mutex
	state    string
	pages    []*scan.Result
	files    []string
	err      error
	started  time.Time
	finished time.Time
}

func (j *job) addPage(r *scan.Result) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.pages = append(j.pages, r)
}

func (j *job) addFile(fn string) {
	if fn == "" {
		return
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	j.files = append(j.files, fn)
}

func (j *job) page(n int) *scan.Result {
	j.mu.Lock()
	defer j.mu.Unlock()
	if n < 1 || n > len(j.pages) {
		return nil
	}
	return j.pages[n-1]
}

// finish records how the scan ended.  An empty feeder before the first page
// is reported as an error; cancellation is not.
func (j *job) finish(err error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.finished = time.Now()
	j.err = err
	switch {
	case err != nil:
		j.state = "error"
	case len(j.pages) == 0:
		j.state = "cancelled"
	default:
		j.state = "done"
	}
}

func (j *job) Info() JobInfo {
	j.mu.Lock()
	defer j.mu.Unlock()
	info := JobInfo{
		ID:       j.ID,
		State:    j.state,
		Pages:    len(j.pages),
		Files:    append([]string(nil), j.files...),
		Started:  j.started,
		Finished: j.finished,
	}
	if j.err != nil {
		info.Err = j.err.Error()
	}
	return info
}

// jobs keeps the most recent scan jobs
type jobs struct {
	mu    sync.Mutex
	keep  int
	order []uuid.UUID
	byID  map[uuid.UUID]*job
}

func newJobs(keep int) *jobs {
	return &jobs{keep: keep, byID: map[uuid.UUID]*job{}}
}

func (js *jobs) add(id uuid.UUID) *job {
	js.mu.Lock()
	defer js.mu.Unlock()
	j := &job{ID: id, state: "running", started: time.Now()}
	js.byID[id] = j
	js.order = append(js.order, id)
	for len(js.order) > js.keep {
		delete(js.byID, js.order[0])
		js.order = js.order[1:]
	}
	return j
}

func (js *jobs) get(s string) (*job, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return nil, errNoJob
	}
	js.mu.Lock()
	defer js.mu.Unlock()
	j, ok := js.byID[id]
	if !ok {
		return nil, errNoJob
	}
	return j, nil
}
