package domain

// Labels attached to every container the manager creates. Cleanup selects
// containers by these labels.
const (
	LabelTest        = "cicd.test"
	LabelManagedBy   = "cicd.managed-by"
	LabelSession     = "cicd.session"
	LabelPreviewPort = "cicd.preview.port"

	ManagerName = "docker-cicd-manager"
)

// CleanupScope selects which test containers a cleanup removes.
type CleanupScope int

const (
	// ScopeAll removes every container carrying the test label.
	ScopeAll CleanupScope = iota
	// ScopeSession removes only containers created by the current session.
	ScopeSession
)

func (s CleanupScope) String() string {
	switch s {
	case ScopeSession:
		return "session"
	default:
		return "all"
	}
}

// ParseCleanupScope maps "session" to ScopeSession and anything else to ScopeAll.
func ParseCleanupScope(s string) CleanupScope {
	if s == "session" {
		return ScopeSession
	}
	return ScopeAll
}
