package domain

import "time"

// WorkerStatus represents the liveness state of a worker
type WorkerStatus string

const (
	WorkerStatusOnline  WorkerStatus = "online"
	WorkerStatusOffline WorkerStatus = "offline"
)

// CapabilityKind represents the kind of platform work a worker performs
type CapabilityKind string

const (
	CapabilityUpload    CapabilityKind = "upload"
	CapabilityAnalytics CapabilityKind = "analytics"
	CapabilityComments  CapabilityKind = "comments"
)

// Capabilities declares what a worker can do and which platforms it can reach.
// Platforms is advisory: declared lists may lag behind what the worker can
// actually serve, so the selector treats it as a preference, not a gate.
type Capabilities struct {
	Kind      CapabilityKind `json:"kind"`
	Platforms []string       `json:"platforms"`
}

// HasPlatforms reports whether the declared platform list covers all of required.
func (c Capabilities) HasPlatforms(required []string) bool {
	if len(required) == 0 {
		return true
	}
	declared := make(map[string]struct{}, len(c.Platforms))
	for _, p := range c.Platforms {
		declared[p] = struct{}{}
	}
	for _, p := range required {
		if _, ok := declared[p]; !ok {
			return false
		}
	}
	return true
}

// WorkerInfo represents information about a registered worker
type WorkerInfo struct {
	ID                 string            `json:"id"`
	Name               string            `json:"name"`
	Hostname           string            `json:"hostname"`
	IPAddress          string            `json:"ip_address"`
	Capabilities       Capabilities      `json:"capabilities"`
	MaxConcurrentTasks int               `json:"max_concurrent_tasks"`
	CurrentLoad        int               `json:"current_load"`
	CPUUsage           float64           `json:"cpu_usage"`
	MemoryUsage        float64           `json:"memory_usage"`
	Status             WorkerStatus      `json:"status"`
	LastHeartbeat      time.Time         `json:"last_heartbeat"`
	Metadata           map[string]string `json:"metadata,omitempty"`
}

// HasCapacity reports whether the worker can take one more task.
func (w *WorkerInfo) HasCapacity() bool {
	return w.CurrentLoad < w.MaxConcurrentTasks
}

// MatchesKind reports whether the worker can serve jobs of the given kind.
// Workers that never declared a kind are treated as upload workers so that
// fleets predating typed capabilities keep receiving upload jobs.
func (w *WorkerInfo) MatchesKind(kind CapabilityKind) bool {
	declared := w.Capabilities.Kind
	if kind == CapabilityUpload {
		return declared == "" || declared == CapabilityUpload
	}
	return declared == kind
}

// Stale reports whether the worker's last heartbeat is older than the window.
func (w *WorkerInfo) Stale(now time.Time, window time.Duration) bool {
	return w.LastHeartbeat.Before(now.Add(-window))
}

// SelectionResult captures the outcome of a worker selection, including the
// inputs the score was computed from, for observability.
type SelectionResult struct {
	WorkerID    string   `json:"worker_id"`
	WorkerName  string   `json:"worker_name"`
	Score       float64  `json:"score"`
	Reason      string   `json:"reason"`
	CurrentLoad int      `json:"current_load"`
	Capacity    int      `json:"capacity"`
	CPUUsage    float64  `json:"cpu_usage"`
	MemoryUsage float64  `json:"memory_usage"`
	Platforms   []string `json:"platforms,omitempty"`
}
