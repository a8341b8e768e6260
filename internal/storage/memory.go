package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/cuongbtq/agenthire/internal/domain"
)

// Memory is an in-process store. One mutex guards every read and write, which
// makes each UpdateJobStatus a single atomic compare-and-set.
type Memory struct {
	mu     sync.Mutex
	jobs   map[string]*domain.Job
	agents map[string]*domain.Agent
	now    func() time.Time
}

// NewMemory creates an empty store.
func NewMemory() *Memory {
	return &Memory{
		jobs:   make(map[string]*domain.Job),
		agents: make(map[string]*domain.Agent),
		now:    time.Now,
	}
}

func (m *Memory) GetJob(_ context.Context, id string) (*domain.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	job, ok := m.jobs[id]
	if !ok {
		return nil, domain.ErrJobNotFound
	}
	return cloneJob(job), nil
}

func (m *Memory) CreateJob(_ context.Context, job *domain.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.jobs[job.ID]; ok {
		return domain.NewError(domain.KindConflict, "job %s already exists", job.ID)
	}
	if _, ok := m.agents[job.AgentID]; !ok {
		return domain.ErrAgentNotFound
	}
	m.jobs[job.ID] = cloneJob(job)
	return nil
}

func (m *Memory) ListJobs(_ context.Context, filter domain.JobFilter) (domain.JobPage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var matched []domain.Job
	for _, job := range m.jobs {
		if filter.RequesterWallet != "" && job.RequesterWallet != filter.RequesterWallet {
			continue
		}
		if filter.AgentID != "" && job.AgentID != filter.AgentID {
			continue
		}
		if filter.Status != "" && job.Status != filter.Status {
			continue
		}
		if filter.Cursor != nil && !before(job, filter.Cursor) {
			continue
		}
		matched = append(matched, *cloneJob(job))
	}

	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].CreatedAt.After(matched[j].CreatedAt)
		}
		return matched[i].ID > matched[j].ID
	})

	return pageOf(matched, filter.PageSize), nil
}

// before reports whether job sorts after the cursor in newest-first order.
func before(job *domain.Job, c *domain.JobCursor) bool {
	if job.CreatedAt.Equal(c.CreatedAt) {
		return job.ID < c.JobID
	}
	return job.CreatedAt.Before(c.CreatedAt)
}

// pageOf trims rows fetched with one extra and sets the next cursor.
func pageOf(rows []domain.Job, pageSize int) domain.JobPage {
	if pageSize <= 0 || len(rows) <= pageSize {
		return domain.JobPage{Jobs: rows}
	}
	rows = rows[:pageSize]
	last := rows[len(rows)-1]
	return domain.JobPage{
		Jobs: rows,
		Next: &domain.JobCursor{CreatedAt: last.CreatedAt, JobID: last.ID},
	}
}

func (m *Memory) UpdateJobStatus(_ context.Context, id string, expected domain.Status, update domain.JobUpdate) (*domain.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	job, ok := m.jobs[id]
	if !ok {
		return nil, domain.ErrJobNotFound
	}
	if job.Status != expected {
		return nil, &domain.StatusMismatchError{JobID: id, Expected: expected, Current: job.Status}
	}

	if update.PaymentTxRef != nil {
		for otherID, other := range m.jobs {
			if otherID != id && other.PaymentTxRef != nil && *other.PaymentTxRef == *update.PaymentTxRef {
				return nil, domain.NewError(domain.KindConflict, "payment reference already used by another job")
			}
		}
	}

	var agent *domain.Agent
	if update.Stats != nil {
		agent, ok = m.agents[job.AgentID]
		if !ok {
			return nil, domain.ErrAgentNotFound
		}
	}

	now := m.now().UTC()
	update.Apply(job, now)
	if agent != nil {
		update.Stats.Apply(agent)
		agent.UpdatedAt = now
	}
	return cloneJob(job), nil
}

func (m *Memory) GetAgent(_ context.Context, id string) (*domain.Agent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	agent, ok := m.agents[id]
	if !ok {
		return nil, domain.ErrAgentNotFound
	}
	copied := *agent
	return &copied, nil
}

func (m *Memory) CreateAgent(_ context.Context, agent *domain.Agent) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.agents[agent.ID]; ok {
		return domain.NewError(domain.KindConflict, "agent %s already exists", agent.ID)
	}
	copied := *agent
	m.agents[agent.ID] = &copied
	return nil
}

func (m *Memory) UpdateAgentStats(_ context.Context, id string, delta domain.StatsDelta) (*domain.Agent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	agent, ok := m.agents[id]
	if !ok {
		return nil, domain.ErrAgentNotFound
	}
	delta.Apply(agent)
	agent.UpdatedAt = m.now().UTC()
	copied := *agent
	return &copied, nil
}

func (m *Memory) SaveTrust(_ context.Context, id string, tier string, score float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	agent, ok := m.agents[id]
	if !ok {
		return domain.ErrAgentNotFound
	}
	agent.TrustTier = tier
	agent.TrustScore = score
	return nil
}

func cloneJob(j *domain.Job) *domain.Job {
	c := *j
	if j.Input != nil {
		c.Input = append([]byte(nil), j.Input...)
	}
	if j.Output != nil {
		c.Output = append([]byte(nil), j.Output...)
	}
	return &c
}
