package store

import (
	"time"

	"github.com/profile-desk/backend/internal/models"
)

// pendingTable parks status events whose job id has not been assigned to a
// file record yet. The upload response and the first push event travel on
// different connections, so either may arrive first.
type pendingTable struct {
	perJob  int
	maxJobs int
	ttl     time.Duration
	jobs    map[string]*pendingJob
}

type pendingJob struct {
	firstSeen time.Time
	events    []models.StatusEvent
}

func newPendingTable(perJob, maxJobs int, ttl time.Duration) *pendingTable {
	return &pendingTable{
		perJob:  perJob,
		maxJobs: maxJobs,
		ttl:     ttl,
		jobs:    make(map[string]*pendingJob),
	}
}

// park buffers ev. It reports false when the event had to be dropped.
func (p *pendingTable) park(ev models.StatusEvent, now time.Time) bool {
	p.prune(now)

	job, ok := p.jobs[ev.JobID]
	if !ok {
		if len(p.jobs) >= p.maxJobs {
			return false
		}
		job = &pendingJob{firstSeen: now}
		p.jobs[ev.JobID] = job
	}
	if len(job.events) >= p.perJob {
		// keep the newest updates, the latest status is what matters on replay
		job.events = append(job.events[:0], job.events[1:]...)
	}
	job.events = append(job.events, ev)
	return true
}

// take removes and returns the events parked for jobID in arrival order.
func (p *pendingTable) take(jobID string, now time.Time) []models.StatusEvent {
	p.prune(now)

	job, ok := p.jobs[jobID]
	if !ok {
		return nil
	}
	delete(p.jobs, jobID)
	return job.events
}

func (p *pendingTable) prune(now time.Time) {
	for id, job := range p.jobs {
		if now.Sub(job.firstSeen) > p.ttl {
			delete(p.jobs, id)
		}
	}
}

func (p *pendingTable) len() int {
	return len(p.jobs)
}
