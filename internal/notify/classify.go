package notify

import (
	"strings"

	"github.com/tracyhatemice/mailwake/internal/config"
	"github.com/tracyhatemice/mailwake/internal/event"
)

// Category is the kind of a recognized-service notification.
type Category string

const (
	CategoryMention      Category = "mention"
	CategoryReview       Category = "review"
	CategoryAssignment   Category = "assignment"
	CategoryNotification Category = "notification"
)

var (
	reviewMarkers     = []string{"review requested", "requested your review"}
	assignmentMarkers = []string{"assigned"}
)

// Label is the human-readable form used in summaries.
func (c Category) Label() string {
	switch c {
	case CategoryMention:
		return "mention"
	case CategoryReview:
		return "review requested"
	case CategoryAssignment:
		return "assigned"
	default:
		return "notification"
	}
}

// Urgent reports whether the category asks for the reader's attention.
func (c Category) Urgent() bool {
	return c == CategoryMention || c == CategoryReview
}

// Classification is the outcome of matching one event. Service is nil for
// plain email.
type Classification struct {
	Service  *config.Service
	Category Category
}

// Recognized reports whether the event came from a known service.
func (c Classification) Recognized() bool {
	return c.Service != nil
}

// Classifier matches events against recognized services.
type Classifier struct {
	services []config.Service
}

// NewClassifier creates a Classifier for services.
func NewClassifier(services []config.Service) *Classifier {
	return &Classifier{services: services}
}

// Classify finds the service that sent ev and the category of the
// notification. Checks are case-insensitive substring matches over sender,
// subject and preview, in priority order: mention, review, assignment.
func (c *Classifier) Classify(ev event.RawEvent) Classification {
	from := strings.ToLower(ev.From)
	svc := c.match(from)
	if svc == nil {
		return Classification{}
	}

	text := strings.ToLower(ev.From + "\n" + ev.Subject + "\n" + ev.Preview)
	switch {
	case containsAny(text, lowerAll(svc.MentionMarkers)):
		return Classification{Service: svc, Category: CategoryMention}
	case containsAny(text, reviewMarkers):
		return Classification{Service: svc, Category: CategoryReview}
	case containsAny(text, assignmentMarkers):
		return Classification{Service: svc, Category: CategoryAssignment}
	default:
		return Classification{Service: svc, Category: CategoryNotification}
	}
}

func (c *Classifier) match(from string) *config.Service {
	for i := range c.services {
		if containsAny(from, lowerAll(c.services[i].Senders)) {
			return &c.services[i]
		}
	}
	return nil
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if sub != "" && strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

func lowerAll(in []string) []string {
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = strings.ToLower(s)
	}
	return out
}
