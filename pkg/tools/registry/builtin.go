package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rhuss/unigen/pkg/api"
)

// Builtin returns the small set of tools the gateway always offers:
// current_time and echo. now is injectable for tests.
func Builtin(now func() time.Time) *Funcs {
	if now == nil {
		now = time.Now
	}
	return NewFuncs("builtin",
		Function{
			Definition: api.ToolDefinition{
				Name:        "current_time",
				Description: "Returns the current time in RFC 3339 format. Accepts an optional IANA timezone.",
				Parameters:  json.RawMessage(`{"type":"object","properties":{"timezone":{"type":"string"}}}`),
			},
			Handler: func(_ context.Context, args map[string]any) (string, error) {
				t := now()
				if tz, _ := args["timezone"].(string); tz != "" {
					loc, err := time.LoadLocation(tz)
					if err != nil {
						return "", fmt.Errorf("unknown timezone %q", tz)
					}
					t = t.In(loc)
				} else {
					t = t.UTC()
				}
				return t.Format(time.RFC3339), nil
			},
		},
		Function{
			Definition: api.ToolDefinition{
				Name:        "echo",
				Description: "Echoes the provided message back.",
				Parameters:  json.RawMessage(`{"type":"object","properties":{"message":{"type":"string"}},"required":["message"]}`),
			},
			Handler: func(_ context.Context, args map[string]any) (string, error) {
				msg, ok := args["message"].(string)
				if !ok {
					return "", fmt.Errorf("message must be a string")
				}
				return msg, nil
			},
		},
	)
}
