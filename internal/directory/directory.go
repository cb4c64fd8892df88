package directory

import (
	"sort"
	"sync"

	"github.com/dialcraft/wfm-backend/internal/types"
)

// Agent is an account known to the directory
type Agent struct {
	ID   string     `json:"id"`
	Name string     `json:"name"`
	Role types.Role `json:"role"`
}

// Directory is the identity lookup collaborator. The engine only needs
// existence checks; the aggregator needs the agent-capable population.
type Directory interface {
	GetAgent(agentID string) (*Agent, bool)
	ListAgentCapable() []Agent
}

// MemoryDirectory is an in-process directory populated via the roster
// endpoint (or directly in tests)
type MemoryDirectory struct {
	mu     sync.RWMutex
	agents map[string]Agent
}

// NewMemoryDirectory creates an empty directory
func NewMemoryDirectory() *MemoryDirectory {
	return &MemoryDirectory{
		agents: make(map[string]Agent),
	}
}

// Register adds or replaces an agent entry
func (d *MemoryDirectory) Register(agent Agent) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.agents[agent.ID] = agent
}

func (d *MemoryDirectory) GetAgent(agentID string) (*Agent, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	agent, ok := d.agents[agentID]
	if !ok {
		return nil, false
	}
	return &agent, true
}

// ListAgentCapable returns all accounts that can take agent work: roles
// AGENT and ADMIN. Sorted by ID for stable snapshot ordering.
func (d *MemoryDirectory) ListAgentCapable() []Agent {
	d.mu.RLock()
	defer d.mu.RUnlock()

	agents := make([]Agent, 0, len(d.agents))
	for _, agent := range d.agents {
		if agent.Role == types.RoleAgent || agent.Role == types.RoleAdmin {
			agents = append(agents, agent)
		}
	}
	sort.Slice(agents, func(i, j int) bool { return agents[i].ID < agents[j].ID })
	return agents
}

// Count returns the total number of registered accounts
func (d *MemoryDirectory) Count() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.agents)
}
