package hass

import (
	"fmt"

	"github.com/nerrad567/release2mqtt/internal/release"
)

// Bus publishes retained JSON payloads. *mqtt.Client satisfies it.
type Bus interface {
	PublishJSON(topic string, v any) error
}

// Extender supplies provider-specific payload fields. Every
// release.Provider satisfies it.
type Extender interface {
	FormatConfig(d *release.Discovery) map[string]any
	FormatState(d *release.Discovery) map[string]any
}

// Progress selects the in_progress flag of a state payload.
type Progress int

const (
	// ProgressNone omits the flag.
	ProgressNone Progress = iota
	// ProgressActive reports an install in progress.
	ProgressActive
	// ProgressDone clears a previously reported install.
	ProgressDone
)

// Publisher formats discoveries and publishes them to the bus.
// It is safe for concurrent use when the Bus is.
type Publisher struct {
	bus       Bus
	formatter *Formatter

	// discovery disables config payloads when false, leaving entity
	// definitions to the operator.
	discovery bool
}

// NewPublisher creates a Publisher.
func NewPublisher(bus Bus, formatter *Formatter, discoveryEnabled bool) *Publisher {
	return &Publisher{bus: bus, formatter: formatter, discovery: discoveryEnabled}
}

// Formatter returns the formatter used for payloads.
func (p *Publisher) Formatter() *Formatter {
	return p.formatter
}

// Publish sends the config payload (when discovery is enabled) and then the
// state payload of d.
func (p *Publisher) Publish(ext Extender, d *release.Discovery, progress Progress) error {
	if p.discovery {
		topic := p.formatter.topics.Config(d.SourceType, d.Name)
		if err := p.bus.PublishJSON(topic, p.formatter.Config(d, ext.FormatConfig(d))); err != nil {
			return fmt.Errorf("publishing config for %s: %w", d.Name, err)
		}
	}
	return p.PublishState(ext, d, progress)
}

// PublishState sends only the state payload of d.
func (p *Publisher) PublishState(ext Extender, d *release.Discovery, progress Progress) error {
	extras := ext.FormatState(d)

	var payload map[string]any
	switch progress {
	case ProgressActive:
		payload = p.formatter.StateInProgress(d, extras, true)
	case ProgressDone:
		payload = p.formatter.StateInProgress(d, extras, false)
	default:
		payload = p.formatter.State(d, extras)
	}

	topic := p.formatter.topics.State(d.SourceType, d.Name)
	if err := p.bus.PublishJSON(topic, payload); err != nil {
		return fmt.Errorf("publishing state for %s: %w", d.Name, err)
	}
	return nil
}
