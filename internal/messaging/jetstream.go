package messaging

import (
	"errors"

	"github.com/nats-io/nats.go"
)

const (
	CommandsStream = "COLLAB_COMMANDS"
	EventsStream   = "COLLAB_EVENTS"

	CommandSubjects = "app.command.>"
	EventSubjects   = "app.event.>"
)

// EnsureStreams creates (or validates) the command and lifecycle event streams.
func EnsureStreams(js nats.JetStreamContext) error {
	if err := ensureStream(js, CommandsStream, CommandSubjects); err != nil {
		return err
	}
	return ensureStream(js, EventsStream, EventSubjects)
}

func ensureStream(js nats.JetStreamContext, name, subjects string) error {
	_, err := js.StreamInfo(name)
	if err == nil {
		return nil
	}
	if !errors.Is(err, nats.ErrStreamNotFound) {
		return err
	}
	_, err = js.AddStream(&nats.StreamConfig{
		Name:      name,
		Subjects:  []string{subjects},
		Retention: nats.LimitsPolicy,
		Storage:   nats.FileStorage,
		Replicas:  1,
	})
	return err
}
