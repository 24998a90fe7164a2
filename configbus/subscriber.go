// Package configbus pulls whole-document config updates down from the group's update topic and feeds
// them to an edgestate.Store. A periodic pull on a ticker, with the result forwarded to a single
// consumer regardless of whether it changed.
package configbus

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// HTTPGetter is the narrow surface configbus needs from an HTTP client, so tests can substitute a fake
// without standing up a server.
type HTTPGetter interface {
	Get(url string) (*http.Response, error)
}

// Subscriber polls a group's update topic and calls onUpdate with the decoded document whenever a poll
// succeeds, whether or not the content has changed since the last poll - the caller (edgestate.Store) is
// responsible for treating re-delivery of unchanged content as a no-op.
type Subscriber struct {
	client   HTTPGetter
	endpoint string
	log      *slog.Logger
}

// NewSubscriber builds a Subscriber against topic "lanzone/{groupID}/updates" served relative to
// baseURL.
func NewSubscriber(client HTTPGetter, baseURL, groupID string, log *slog.Logger) *Subscriber {
	if log == nil {
		log = slog.Default()
	}
	return &Subscriber{
		client:   client,
		endpoint: fmt.Sprintf("%s/lanzone/%s/updates", baseURL, groupID),
		log:      log.With("topic_group_id", groupID),
	}
}

// Run polls the update topic every interval until ctx is cancelled, decoding each response body as JSON
// and invoking onUpdate. A poll or decode failure is logged and does not stop the loop.
func (s *Subscriber) Run(ctx context.Context, interval time.Duration, onUpdate func(map[string]interface{})) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.poll(onUpdate)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.poll(onUpdate)
		}
	}
}

func (s *Subscriber) poll(onUpdate func(map[string]interface{})) {
	resp, err := s.client.Get(s.endpoint)
	if err != nil {
		s.log.Error("config bus poll failed", "error", err)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		s.log.Error("config bus poll returned non-200", "status", resp.StatusCode)
		return
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		s.log.Error("config bus read body failed", "error", err)
		return
	}

	var doc map[string]interface{}
	if err := json.Unmarshal(body, &doc); err != nil {
		s.log.Error("config bus decode failed", "error", err)
		return
	}

	onUpdate(doc)
}
