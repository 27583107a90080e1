package testopia

// Status is a Testopia case status code as stored on the remote server.
type Status int

// Testopia status codes.
const (
	StatusIdle    Status = 1
	StatusPassed  Status = 2
	StatusFailed  Status = 3
	StatusRunning Status = 4
	StatusPaused  Status = 5
	StatusBlocked Status = 6
	StatusError   Status = 7
)

// String returns the remote server's display name for the status.
func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "IDLE"
	case StatusPassed:
		return "PASSED"
	case StatusFailed:
		return "FAILED"
	case StatusRunning:
		return "RUNNING"
	case StatusPaused:
		return "PAUSED"
	case StatusBlocked:
		return "BLOCKED"
	case StatusError:
		return "ERROR"
	}
	return "UNKNOWN"
}

// TestRun is a remote collection of test cases scoped to one campaign.
type TestRun struct {
	ID            int    `xmlrpc:"run_id"`
	PlanID        int    `xmlrpc:"plan_id"`
	BuildID       int    `xmlrpc:"build_id"`
	EnvironmentID int    `xmlrpc:"environment_id"`
	ManagerID     int    `xmlrpc:"manager_id"`
	Summary       string `xmlrpc:"summary"`
	Notes         string `xmlrpc:"notes"`
}

// TestCase is the plugin's transient, per-build copy of a remote test case.
// StatusID is mutated by result seeking before being pushed back to the server.
type TestCase struct {
	ID         int    `xmlrpc:"case_id"`
	Summary    string `xmlrpc:"summary"`
	Alias      string `xmlrpc:"alias"`
	Script     string `xmlrpc:"script"`
	Arguments  string `xmlrpc:"arguments"`
	Automated  int    `xmlrpc:"isautomated"`
	CategoryID int    `xmlrpc:"category_id"`
	PriorityID int    `xmlrpc:"priority_id"`
	StatusID   int    `xmlrpc:"case_status_id"`

	// Populated locally by result seeking, never fetched.
	Platform string
	Notes    string
}

// Attachment is a file uploaded to a remote test case. Contents must be
// base64 encoded.
type Attachment struct {
	FileName    string `xmlrpc:"filename"`
	Description string `xmlrpc:"description"`
	MimeType    string `xmlrpc:"mime_type"`
	Contents    string `xmlrpc:"contents"`
}
