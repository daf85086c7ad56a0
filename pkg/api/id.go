package api

import (
	"crypto/rand"
	"math/big"
	"regexp"
)

const (
	idLength = 24
	charset  = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

	taskIDPrefix     = "task_"
	approvalIDPrefix = "appr_"
	callIDPrefix     = "call_"
)

var (
	taskIDPattern     = regexp.MustCompile(`^task_[a-zA-Z0-9]{24}$`)
	approvalIDPattern = regexp.MustCompile(`^appr_[a-zA-Z0-9]{24}$`)
)

// NewTaskID generates an identifier for a generation task.
func NewTaskID() string {
	return taskIDPrefix + randomAlphanumeric(idLength)
}

// NewApprovalID generates an identifier for an approval request.
func NewApprovalID() string {
	return approvalIDPrefix + randomAlphanumeric(idLength)
}

// NewCallID generates a tool call identifier for providers that do not
// assign their own.
func NewCallID() string {
	return callIDPrefix + randomAlphanumeric(idLength)
}

// ValidateTaskID checks whether id is a well-formed task ID.
func ValidateTaskID(id string) bool {
	return taskIDPattern.MatchString(id)
}

// ValidateApprovalID checks whether id is a well-formed approval ID.
func ValidateApprovalID(id string) bool {
	return approvalIDPattern.MatchString(id)
}

func randomAlphanumeric(n int) string {
	max := big.NewInt(int64(len(charset)))
	b := make([]byte, n)
	for i := range b {
		idx, err := rand.Int(rand.Reader, max)
		if err != nil {
			panic("crypto/rand failed: " + err.Error())
		}
		b[i] = charset[idx.Int64()]
	}
	return string(b)
}
