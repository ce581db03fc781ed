package system

import (
	"fmt"
	"strings"
	"time"

	goipp "github.com/OpenPrinting/goipp"
	"go.uber.org/zap"
)

// Job is a unit of work queued on a printer. Its mutable fields are guarded
// by the owning printer's lock; callers see JobInfo snapshots.
type Job struct {
	id         int
	name       string
	user       string
	format     string
	state      JobState
	reasons    []string
	created    time.Time
	processing time.Time
	completed  time.Time
	released   bool
}

// ID implements jobqueue.Job.
func (j *Job) ID() int { return j.id }

// Release implements jobqueue.Releaser.
func (j *Job) Release() {
	j.released = true
	j.reasons = nil
}

// JobInfo is a point-in-time copy of a job.
type JobInfo struct {
	ID         int
	PrinterID  int
	Name       string
	User       string
	Format     string
	State      JobState
	Reasons    []string
	Created    time.Time
	Processing time.Time
	Completed  time.Time
}

func (j *Job) info(printerID int) JobInfo {
	return JobInfo{
		ID:         j.id,
		PrinterID:  printerID,
		Name:       j.name,
		User:       j.user,
		Format:     j.format,
		State:      j.state,
		Reasons:    append([]string(nil), j.reasons...),
		Created:    j.created,
		Processing: j.processing,
		Completed:  j.completed,
	}
}

// CreateJob queues a pending job. It fails once the printer is being
// deleted.
func (p *Printer) CreateJob(name, user, format string) (JobInfo, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.deleted {
		return JobInfo{}, fmt.Errorf("%w: %s", ErrPrinterDeleted, p.name)
	}
	if strings.TrimSpace(name) == "" {
		name = "Untitled"
	}
	if format == "" {
		format = formatOctetStream
	}
	job := &Job{
		id:      p.nextJobID,
		name:    name,
		user:    user,
		format:  format,
		state:   JobPending,
		reasons: []string{"job-incoming"},
		created: time.Now(),
	}
	p.nextJobID++
	p.jobs.Add(job, false)
	p.system.log.Debug("job created",
		zap.String("printer", p.name),
		zap.Int("job_id", job.id),
		zap.String("format", format))
	return job.info(p.id), nil
}

// StartJob moves a pending job to processing and the printer with it.
func (p *Printer) StartJob(id int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	job, ok := p.jobs.Get(id)
	if !ok {
		return fmt.Errorf("%w: %d", ErrJobNotFound, id)
	}
	if job.state.Terminal() {
		return fmt.Errorf("%w: %d", ErrJobCompleted, id)
	}
	now := time.Now()
	job.state = JobProcessing
	job.reasons = []string{"job-printing"}
	job.processing = now
	if p.state != StateProcessing {
		p.state = StateProcessing
		p.stateTime = now
	}
	return nil
}

// FinishJob puts an active job into a terminal state and moves it to the
// completed view. The printer goes idle when nothing is left processing.
func (p *Printer) FinishJob(id int, state JobState) error {
	if !state.Terminal() {
		return fmt.Errorf("job state %s is not terminal", state)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	job, ok := p.jobs.Get(id)
	if !ok {
		return fmt.Errorf("%w: %d", ErrJobNotFound, id)
	}
	if job.state.Terminal() {
		return fmt.Errorf("%w: %d", ErrJobCompleted, id)
	}
	now := time.Now()
	job.state = state
	job.completed = now
	switch state {
	case JobCanceled:
		job.reasons = []string{"job-canceled-by-user"}
	case JobAborted:
		job.reasons = []string{"aborted-by-system"}
	default:
		job.reasons = []string{"job-completed-successfully"}
	}
	p.jobs.Complete(job)

	busy := false
	p.jobs.AscendActive(func(j *Job) bool {
		if j.state == JobProcessing {
			busy = true
			return false
		}
		return true
	})
	if !busy && p.state == StateProcessing {
		p.state = StateIdle
		p.stateTime = now
	}
	p.system.log.Debug("job finished",
		zap.String("printer", p.name),
		zap.Int("job_id", id),
		zap.Stringer("state", state))
	return nil
}

// CancelJob cancels an active job.
func (p *Printer) CancelJob(id int) error {
	return p.FinishJob(id, JobCanceled)
}

// Job returns a snapshot of the job with the given id.
func (p *Printer) Job(id int) (JobInfo, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	job, ok := p.jobs.Get(id)
	if !ok {
		return JobInfo{}, false
	}
	return job.info(p.id), true
}

// Jobs lists jobs newest first. which selects the view: "completed",
// "all", or anything else for the jobs not yet completed. A positive limit
// caps the result.
func (p *Printer) Jobs(which string, limit int) []JobInfo {
	p.mu.RLock()
	defer p.mu.RUnlock()

	ascend := p.jobs.AscendActive
	switch which {
	case "completed":
		ascend = p.jobs.AscendCompleted
	case "all":
		ascend = p.jobs.AscendAll
	}
	var out []JobInfo
	ascend(func(j *Job) bool {
		out = append(out, j.info(p.id))
		return limit <= 0 || len(out) < limit
	})
	return out
}

// JobCounts reports the sizes of the all, active and completed views.
func (p *Printer) JobCounts() (all, active, completed int) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.jobs.Len(), p.jobs.LenActive(), p.jobs.LenCompleted()
}

// PurgeCompleted drops completed jobs, keeping the newest keep of them, and
// returns the ids it released.
func (p *Printer) PurgeCompleted(keep int) []int {
	p.mu.Lock()
	defer p.mu.Unlock()

	var victims []*Job
	seen := 0
	p.jobs.AscendCompleted(func(j *Job) bool {
		seen++
		if seen > keep {
			victims = append(victims, j)
		}
		return true
	})
	ids := make([]int, 0, len(victims))
	for _, j := range victims {
		p.jobs.Remove(j)
		ids = append(ids, j.id)
	}
	return ids
}

// JobAttributes renders a job snapshot as IPP job attributes.
func (p *Printer) JobAttributes(info JobInfo) goipp.Attributes {
	attrs := goipp.Attributes{}
	attrs.Add(goipp.MakeAttribute("job-id", goipp.TagInteger, goipp.Integer(info.ID)))
	attrs.Add(goipp.MakeAttribute("job-uri", goipp.TagURI, goipp.String(fmt.Sprintf("%s/%d", p.URI(), info.ID))))
	attrs.Add(goipp.MakeAttribute("job-printer-uri", goipp.TagURI, goipp.String(p.URI())))
	attrs.Add(goipp.MakeAttribute("job-name", goipp.TagName, goipp.String(info.Name)))
	attrs.Add(goipp.MakeAttribute("job-originating-user-name", goipp.TagName, goipp.String(info.User)))
	attrs.Add(goipp.MakeAttribute("document-format", goipp.TagMimeType, goipp.String(info.Format)))
	attrs.Add(goipp.MakeAttribute("job-state", goipp.TagEnum, goipp.Integer(info.State)))
	reasons := info.Reasons
	if len(reasons) == 0 {
		reasons = []string{"none"}
	}
	attrs.Add(makeStringsAttr("job-state-reasons", goipp.TagKeyword, reasons))
	attrs.Add(goipp.MakeAttribute("time-at-creation", goipp.TagInteger, goipp.Integer(info.Created.Unix())))
	attrs.Add(unixOrNoValue("time-at-processing", info.Processing))
	attrs.Add(unixOrNoValue("time-at-completed", info.Completed))
	return attrs
}

func unixOrNoValue(name string, t time.Time) goipp.Attribute {
	if t.IsZero() {
		return goipp.MakeAttribute(name, goipp.TagNoValue, goipp.Void{})
	}
	return goipp.MakeAttribute(name, goipp.TagInteger, goipp.Integer(t.Unix()))
}
