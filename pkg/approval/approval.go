// Package approval gates tool calls behind user consent.
//
// Each request starts Pending with a deadline of BaseTimeout. A response
// within the window moves it to Approved or Denied. When the deadline
// passes it is TimedOut; while retries remain it is Retried and becomes
// Pending again with the deadline extended by RetryIncrement. The window
// is extended from the previous deadline, never restarted from now.
// After MaxRetries the request is Resolved with the default action for
// its tool, which is Deny unless configured otherwise.
//
// A timed-out approval is not an error for the caller: Await returns the
// resolved Outcome with an approval_timeout APIError attached for
// reporting.
package approval

import (
	"fmt"
	"strings"
	"time"
)

// State is a node of the approval state machine.
type State string

const (
	StatePending  State = "pending"
	StateApproved State = "approved"
	StateDenied   State = "denied"
	StateTimedOut State = "timed_out"
	StateRetried  State = "retried"
	StateResolved State = "resolved"
)

// Terminal reports whether no transition leaves s.
func (s State) Terminal() bool {
	switch s {
	case StateApproved, StateDenied, StateResolved:
		return true
	}
	return false
}

// Action is a decision about a tool call.
type Action string

const (
	ActionApprove Action = "approve"
	ActionDeny    Action = "deny"
)

// ParseAction accepts approve/deny and the yes/no aliases used by
// interactive responders.
func ParseAction(s string) (Action, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "approve", "approved", "allow", "yes", "y":
		return ActionApprove, nil
	case "deny", "denied", "reject", "no", "n":
		return ActionDeny, nil
	}
	return "", fmt.Errorf("unknown approval action %q", s)
}

// Config holds the timing and default-action table of a Gate.
type Config struct {
	BaseTimeout    time.Duration     `yaml:"base_timeout"`
	RetryIncrement time.Duration     `yaml:"retry_increment"`
	MaxRetries     int               `yaml:"max_retries"`
	Defaults       map[string]Action `yaml:"defaults"`
	// Retain bounds how many finished approvals Get can still report.
	Retain int `yaml:"retain"`
}

// DefaultConfig returns a 30s window, extended twice by 15s.
func DefaultConfig() Config {
	return Config{
		BaseTimeout:    30 * time.Second,
		RetryIncrement: 15 * time.Second,
		MaxRetries:     2,
		Retain:         1024,
	}
}

// DefaultFor returns the configured action for tool, or Deny.
func (c Config) DefaultFor(tool string) Action {
	if a, ok := c.Defaults[tool]; ok {
		return a
	}
	return ActionDeny
}

// MaxWait is the longest a request can stay unanswered before it is
// resolved: BaseTimeout plus MaxRetries increments.
func (c Config) MaxWait() time.Duration {
	return c.BaseTimeout + time.Duration(c.MaxRetries)*c.RetryIncrement
}

// Validate reports configuration errors.
func (c Config) Validate() error {
	if c.BaseTimeout <= 0 {
		return fmt.Errorf("approval.base_timeout must be positive")
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("approval.max_retries must not be negative")
	}
	if c.MaxRetries > 0 && c.RetryIncrement <= 0 {
		return fmt.Errorf("approval.retry_increment must be positive when retries are enabled")
	}
	for tool, a := range c.Defaults {
		if a != ActionApprove && a != ActionDeny {
			return fmt.Errorf("approval.defaults[%s]: unknown action %q", tool, a)
		}
	}
	return nil
}

// Request describes the tool call awaiting consent.
type Request struct {
	ToolCallID string `json:"tool_call_id,omitempty"`
	Tool       string `json:"tool"`
	Server     string `json:"server,omitempty"`
	Arguments  string `json:"arguments,omitempty"`
}

// Transition is one entry in an approval's history.
type Transition struct {
	State    State     `json:"state"`
	At       time.Time `json:"at"`
	Deadline time.Time `json:"deadline,omitzero"`
	Retry    int       `json:"retry"`
}

// Approval is a snapshot of one request and its progress.
type Approval struct {
	ID        string       `json:"id"`
	Request   Request      `json:"request"`
	State     State        `json:"state"`
	Retries   int          `json:"retries"`
	Deadline  time.Time    `json:"deadline"`
	Decision  Action       `json:"decision,omitempty"`
	Defaulted bool         `json:"defaulted,omitempty"`
	CreatedAt time.Time    `json:"created_at"`
	History   []Transition `json:"history"`
}

func (a Approval) clone() Approval {
	a.History = append([]Transition(nil), a.History...)
	return a
}
