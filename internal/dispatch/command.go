package dispatch

import (
	"encoding/json"
	"fmt"
)

// Command origins.
const (
	SourceBus  = "mqtt"
	SourceAuto = "auto"
)

// Command is an instruction for one unit.
type Command struct {
	SourceType string `json:"source_type"`
	Name       string `json:"name"`
	Command    string `json:"command"`

	// Source records where the command came from, SourceBus or SourceAuto.
	Source string `json:"-"`
}

// Decode parses an inbound command payload.
func Decode(payload []byte) (Command, error) {
	var cmd Command
	if err := json.Unmarshal(payload, &cmd); err != nil {
		return Command{}, fmt.Errorf("%w: %w", ErrMalformed, err)
	}
	cmd.Source = SourceBus
	if err := cmd.Validate(); err != nil {
		return Command{}, err
	}
	return cmd, nil
}

// Validate checks that every required field is present.
func (c Command) Validate() error {
	switch {
	case c.SourceType == "":
		return fmt.Errorf("%w: missing source_type", ErrMalformed)
	case c.Name == "":
		return fmt.Errorf("%w: missing name", ErrMalformed)
	case c.Command == "":
		return fmt.Errorf("%w: missing command", ErrMalformed)
	}
	return nil
}

func (c Command) key() string {
	return c.SourceType + "/" + c.Name
}
