package domain

// ServiceConfig is one external integration row. Secret fields are stored
// encrypted and only decrypted in memory at call time.
type ServiceConfig struct {
	Service   string `json:"service" enum:"uptime,ticketing,automation,cluster,bi"`
	BaseURL   string `json:"base_url"`
	APIKey    string `json:"api_key,omitempty"`
	APISecret string `json:"api_secret,omitempty"`
	Username  string `json:"username,omitempty"`
	Password  string `json:"password,omitempty"`
	UpdatedAt string `json:"updated_at" format:"date-time"`
}

// KnownServices is the fixed set of service identifiers.
var KnownServices = []string{"uptime", "ticketing", "automation", "cluster", "bi"}

type User struct {
	ID           string `json:"id"`
	Username     string `json:"username"`
	PasswordHash string `json:"-"`
	Role         string `json:"role" enum:"admin,viewer"`
	CreatedAt    string `json:"created_at" format:"date-time"`
}

// APIKey is a machine credential tied to a user. Only the SHA-256 digest of
// the key is stored.
type APIKey struct {
	ID        string `json:"id"`
	UserID    string `json:"user_id"`
	Name      string `json:"name,omitempty"`
	KeyHash   string `json:"-"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

// Monitor is a normalized uptime check. Status collapses vendor codes to a
// small enum.
type Monitor struct {
	ID           string  `json:"id"`
	Name         string  `json:"name"`
	URL          string  `json:"url,omitempty"`
	Status       string  `json:"status" enum:"up,down,paused,unknown"`
	ResponseTime float64 `json:"response_time_ms,omitempty"`
	Uptime       float64 `json:"uptime_pct,omitempty"`
}

// Ticket is a normalized PSA ticket. Read-only input to reconciliation;
// never persisted locally.
type Ticket struct {
	ID          string `json:"id"`
	DisplayID   string `json:"display_id"`
	Title       string `json:"title"`
	Status      string `json:"status"`
	Requester   string `json:"requester,omitempty"`
	CreatedTime string `json:"created_time,omitempty"`
	Link        string `json:"link,omitempty"`
}

type AutomationLog struct {
	ID       string `json:"id"`
	Workflow string `json:"workflow"`
	Level    string `json:"level" enum:"info,warn,error"`
	Message  string `json:"message"`
	Time     string `json:"time,omitempty"`
}

type WorkflowRun struct {
	ID         string `json:"id"`
	Workflow   string `json:"workflow"`
	Status     string `json:"status" enum:"success,error,running,waiting,unknown"`
	StartedAt  string `json:"started_at,omitempty"`
	FinishedAt string `json:"finished_at,omitempty"`
	Link       string `json:"link,omitempty"`
}

// ClusterMember is one hypervisor node. Error carries a per-member failure
// without failing the whole cluster fetch.
type ClusterMember struct {
	Name    string        `json:"name"`
	Online  bool          `json:"online"`
	CPU     float64       `json:"cpu_pct,omitempty"`
	MemUsed float64       `json:"mem_used_pct,omitempty"`
	VMCount int           `json:"vm_count,omitempty"`
	Uptime  int64         `json:"uptime_seconds,omitempty"`
	Error   *ClusterError `json:"error,omitempty"`
}

type ClusterError struct {
	Type    string `json:"type" enum:"authentication,connection"`
	Message string `json:"message"`
}

type Report struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	EmbedURL string `json:"embed_url,omitempty"`
	Updated  string `json:"updated,omitempty"`
}

type Asset struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Type     string `json:"type,omitempty"`
	User     string `json:"assigned_user,omitempty"`
	State    string `json:"state,omitempty"`
	LastSeen string `json:"last_seen,omitempty"`
}

// Checklist status is derived from item statuses: completed iff every item
// is completed or na, in_progress iff some but not all are.
const (
	ChecklistPending    = "pending"
	ChecklistInProgress = "in_progress"
	ChecklistCompleted  = "completed"
)

const (
	ItemPending   = "pending"
	ItemCompleted = "completed"
	ItemNA        = "na"
)

type Checklist struct {
	ID           string          `json:"id"`
	EmployeeName string          `json:"employee_name"`
	TicketID     *string         `json:"ticket_id,omitempty"`
	Status       string          `json:"status" enum:"pending,in_progress,completed"`
	Items        []ChecklistItem `json:"items,omitempty"`
	CreatedAt    string          `json:"created_at" format:"date-time"`
	UpdatedAt    string          `json:"updated_at" format:"date-time"`
}

type ChecklistItem struct {
	ID       string `json:"id"`
	Category string `json:"category"`
	Name     string `json:"name"`
	Status   string `json:"status" enum:"pending,completed,na"`
	Position int    `json:"position"`
}

// DeriveChecklistStatus computes the aggregate status from item statuses.
func DeriveChecklistStatus(items []ChecklistItem) string {
	if len(items) == 0 {
		return ChecklistPending
	}
	done := 0
	for _, it := range items {
		if it.Status == ItemCompleted || it.Status == ItemNA {
			done++
		}
	}
	switch done {
	case 0:
		return ChecklistPending
	case len(items):
		return ChecklistCompleted
	default:
		return ChecklistInProgress
	}
}

type UserPrefs struct {
	UserID    string `json:"user_id"`
	PrefsJSON string `json:"prefs_json"`
	UpdatedAt string `json:"updated_at" format:"date-time"`
}
