// Package bundled ships the stock tools the robot registers out of the
// box: current time, weather lookup, and YouTube search.
package bundled

import (
	"context"
	"fmt"
	"time"

	"github.com/pepperkit/go-pepper/pkg/tools"
)

type datetimeArgs struct {
	// Timezone is an IANA zone name like "Europe/Paris"; local time is
	// used when empty.
	Timezone string `json:"timezone,omitempty" jsonschema:"description=IANA timezone name such as Europe/Paris; omit for local time"`
}

// Datetime reports the current date and time.
func Datetime() tools.Tool {
	return tools.Tool{
		Name:        "get_datetime",
		Description: "Get the current date and time, optionally in a specific timezone.",
		Parameters:  tools.Reflect[datetimeArgs](),
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			now := time.Now()
			if tz, ok := args["timezone"].(string); ok && tz != "" {
				loc, err := time.LoadLocation(tz)
				if err != nil {
					return "", fmt.Errorf("unknown timezone %q", tz)
				}
				now = now.In(loc)
			}
			return now.Format("Monday, January 2 2006, 15:04"), nil
		},
	}
}
