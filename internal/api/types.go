package api

const IdentityHeader = "X-Identity"

const (
	ErrMissingIdentity  = "missing_identity"
	ErrInvalidJSON      = "invalid_json"
	ErrInvalidIdentity  = "invalid_identity"
	ErrForbidden        = "forbidden"
	ErrNoItems          = "no_items"
	ErrInvalidItems     = "invalid_items"
	ErrInvalidRole      = "invalid_role"
	ErrInvalidInterval  = "invalid_interval"
	ErrDistributionOff  = "distribution_disabled"
	ErrRateLimited      = "rate_limited"
	ErrTimerUnavailable = "timer_unavailable"
)

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

type WhoAmIResponse struct {
	Identity int64  `json:"identity"`
	Role     string `json:"role"`
}

type TimerView struct {
	IntervalSeconds int    `json:"interval_seconds"`
	Active          bool   `json:"active"`
	State           string `json:"state"`
}

type StatusResponse struct {
	QueueLength int                 `json:"queue_length"`
	Enabled     bool                `json:"distribution_enabled"`
	Producers   int                 `json:"producers"`
	Consumers   int                 `json:"consumers"`
	Delivered   map[int64]int       `json:"delivered"`
	Timers      map[int64]TimerView `json:"timers"`
}

type PushRequest struct {
	Text  string   `json:"text"`
	Items []string `json:"items"`
}

type PushResponse struct {
	Pushed      int      `json:"pushed"`
	Rejected    []string `json:"rejected,omitempty"`
	QueueLength int      `json:"queue_length"`
}

type AssignResponse struct {
	Item    string `json:"item,omitempty"`
	Outcome string `json:"outcome"`
}

type DistributionRequest struct {
	Enabled *bool `json:"enabled"`
}

type DistributionResponse struct {
	Enabled bool `json:"distribution_enabled"`
}

type ClearResponse struct {
	Queued    int `json:"queued"`
	Delivered int `json:"delivered"`
}

type RoleRequest struct {
	Role string `json:"role"`
}

type RoleResponse struct {
	Identity int64  `json:"identity"`
	Role     string `json:"role"`
	Changed  bool   `json:"changed"`
}

type RemoveResponse struct {
	Identity int64 `json:"identity"`
	Removed  bool  `json:"removed"`
}

type TimerRequest struct {
	IntervalSeconds int `json:"interval_seconds"`
}

type TimerResponse struct {
	State           string `json:"state"`
	IntervalSeconds int    `json:"interval_seconds,omitempty"`
	Immediate       string `json:"immediate,omitempty"`
	Item            string `json:"item,omitempty"`
	Stopped         bool   `json:"stopped,omitempty"`
}

type DeliveredResponse struct {
	Items []string `json:"items"`
}
