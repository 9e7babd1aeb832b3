package health

import (
	"sync"
	"time"

	"emotion-pulse/backend/pkg/logger"
)

// Status represents the health status of a component
type Status string

const (
	// StatusUp indicates a component is working correctly
	StatusUp Status = "up"
	// StatusDown indicates a component is not working
	StatusDown Status = "down"
)

// Component represents a system component that can be health-checked
type Component struct {
	Name        string    `json:"name"`
	Status      Status    `json:"status"`
	Error       string    `json:"error,omitempty"`
	LastChecked time.Time `json:"last_checked"`
}

// Check probes one dependency and returns an error when it is unhealthy.
type Check func() error

// Checker manages health checks for the gateway's dependencies (event
// store, queue).
type Checker struct {
	checks map[string]Check
	mutex  sync.RWMutex
	log    *logger.Logger
}

// NewChecker creates a new health checker
func NewChecker(log *logger.Logger) *Checker {
	return &Checker{
		checks: make(map[string]Check),
		log:    log,
	}
}

// Register adds a named check.
func (c *Checker) Register(name string, check Check) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.checks[name] = check
}

// Report runs every registered check and returns the component statuses
// plus overall health.
func (c *Checker) Report() ([]Component, bool) {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	healthy := true
	components := make([]Component, 0, len(c.checks))
	for name, check := range c.checks {
		component := Component{Name: name, Status: StatusUp, LastChecked: time.Now()}
		if err := check(); err != nil {
			component.Status = StatusDown
			component.Error = err.Error()
			healthy = false
			c.log.Warn("health check failed", "component", name, "error", err.Error())
		}
		components = append(components, component)
	}
	return components, healthy
}
