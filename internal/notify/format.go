package notify

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/tracyhatemice/mailwake/internal/config"
	"github.com/tracyhatemice/mailwake/internal/event"
)

const (
	plainPreviewLimit   = 300
	plainTextLimit      = 500
	servicePreviewLimit = 500
	// MaxText bounds every rendered payload.
	MaxText = 2000
	// sectionItems is how many events a multi-event section lists.
	sectionItems = 5

	ModeNow = "now"
)

// Notification is the rendered payload for one flushed batch.
type Notification struct {
	Text string
	Mode string
}

// Formatter renders batches of events into a single notification.
type Formatter struct {
	classifier  *Classifier
	defaultMode string
}

// NewFormatter creates a Formatter. Urgent batches always use ModeNow;
// others use defaultMode.
func NewFormatter(services []config.Service, defaultMode string) *Formatter {
	if defaultMode == "" {
		defaultMode = ModeNow
	}
	return &Formatter{
		classifier:  NewClassifier(services),
		defaultMode: defaultMode,
	}
}

type classified struct {
	ev  event.RawEvent
	cls Classification
}

// Render turns events into one notification. The result only depends on the
// events and their order. An empty batch renders an empty notification.
func (f *Formatter) Render(events []event.RawEvent) Notification {
	if len(events) == 0 {
		return Notification{}
	}

	items := make([]classified, len(events))
	mode := f.defaultMode
	for i, ev := range events {
		cls := f.classifier.Classify(ev)
		items[i] = classified{ev: ev, cls: cls}
		if cls.Recognized() && cls.Category.Urgent() {
			mode = ModeNow
		}
	}

	var text string
	switch {
	case len(items) > 1:
		text = renderMany(items)
	case items[0].cls.Recognized():
		text = renderService(items[0])
	default:
		text = renderPlain(items[0].ev)
	}
	return Notification{Text: text, Mode: mode}
}

func renderPlain(ev event.RawEvent) string {
	var b strings.Builder
	fmt.Fprintf(&b, "📧 New email in %s:\nFrom: %s\nSubject: %s", ev.Account, ev.From, ev.Subject)
	if ev.Preview != "" {
		b.WriteString("\n\n")
		b.WriteString(clip(ev.Preview, plainPreviewLimit))
	}
	return clip(b.String(), plainTextLimit)
}

func renderService(it classified) string {
	var b strings.Builder
	b.WriteString(serviceLine(it))
	fmt.Fprintf(&b, "\nAccount: %s", it.ev.Account)
	if it.ev.Preview != "" {
		b.WriteString("\n\n")
		b.WriteString(clip(it.ev.Preview, servicePreviewLimit))
	}
	return clip(b.String(), MaxText)
}

func renderMany(items []classified) string {
	var services, other []classified
	for _, it := range items {
		if it.cls.Recognized() {
			services = append(services, it)
		} else {
			other = append(other, it)
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "📬 %d new emails", len(items))
	if len(services) > 0 {
		fmt.Fprintf(&b, "\n\n🔔 Service notifications (%d):", len(services))
		writeSection(&b, services, func(it classified) string {
			return fmt.Sprintf("[%s %s] %s", it.cls.Service.Name, it.cls.Category.Label(), it.ev.Subject)
		})
	}
	if len(other) > 0 {
		fmt.Fprintf(&b, "\n\n✉️ Other mail (%d):", len(other))
		writeSection(&b, other, func(it classified) string {
			return fmt.Sprintf("%s: %s (%s)", it.ev.From, it.ev.Subject, it.ev.Account)
		})
	}
	return clip(b.String(), MaxText)
}

func writeSection(b *strings.Builder, items []classified, line func(classified) string) {
	for i, it := range items {
		if i == sectionItems {
			fmt.Fprintf(b, "\n…and %d more", len(items)-sectionItems)
			return
		}
		b.WriteString("\n• ")
		b.WriteString(oneLine(line(it)))
	}
}

func serviceLine(it classified) string {
	icon := it.cls.Service.Icon
	if icon == "" {
		icon = "🔔"
	}
	return oneLine(fmt.Sprintf("%s %s %s: %s", icon, it.cls.Service.Name, it.cls.Category.Label(), it.ev.Subject))
}

// oneLine flattens s and bounds it so one item cannot crowd out the rest.
func oneLine(s string) string {
	return clip(strings.Join(strings.Fields(s), " "), 200)
}

// clip truncates s to limit runes, marking the cut with an ellipsis.
func clip(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	return event.Truncate(s, limit-1) + "…"
}
