package output

import (
	"encoding/json"
	"io"
	"time"

	"github.com/spiffcs/repopulse/internal/model"
	"github.com/spiffcs/repopulse/internal/poller"
	"github.com/spiffcs/repopulse/internal/subscription"
)

// JSONFormatter formats output as JSON
type JSONFormatter struct {
	Pretty bool
}

func (f *JSONFormatter) encode(w io.Writer, v any) error {
	encoder := json.NewEncoder(w)
	if f.Pretty {
		encoder.SetIndent("", "  ")
	}
	return encoder.Encode(v)
}

// Subscriptions outputs subscriptions as a JSON array
func (f *JSONFormatter) Subscriptions(subs []model.Subscription, w io.Writer) error {
	if subs == nil {
		subs = []model.Subscription{}
	}
	return f.encode(w, subs)
}

// Status outputs a subscriber status as JSON
func (f *JSONFormatter) Status(st subscription.Status, w io.Writer) error {
	return f.encode(w, st)
}

// CycleOutput is the JSON shape of a poll cycle.
type CycleOutput struct {
	ID          string `json:"id"`
	StartedAt   string `json:"startedAt"`
	DurationMS  int64  `json:"durationMs"`
	Subscribers int    `json:"subscribers"`
	Pairs       int    `json:"pairs"`
	Advanced    int    `json:"advanced"`
	Failed      int    `json:"failed"`
	Skipped     int    `json:"skipped"`
	Delivered   int    `json:"delivered"`
	Filtered    int    `json:"filtered"`
	DispatchErr int    `json:"dispatchErrors"`
	Error       string `json:"error,omitempty"`
}

// Cycle outputs a poll cycle result as JSON
func (f *JSONFormatter) Cycle(res poller.CycleResult, w io.Writer) error {
	out := CycleOutput{
		ID:          res.ID,
		StartedAt:   res.StartedAt.UTC().Format(time.RFC3339),
		DurationMS:  res.Duration.Milliseconds(),
		Subscribers: res.Subscribers,
		Pairs:       res.Pairs,
		Advanced:    res.Advanced,
		Failed:      res.Failed,
		Skipped:     res.Skipped,
		Delivered:   res.Delivered,
		Filtered:    res.Filtered,
		DispatchErr: res.DispatchErr,
	}
	if res.Err != nil {
		out.Error = res.Err.Error()
	}
	return f.encode(w, out)
}
