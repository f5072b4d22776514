// Package channel bundles the buffered channels connecting the ingestion
// collaborator, the fanout workers and the streaming hub.
package channel

import (
	"sentimentflow/internal/models"
)

type Channels struct {
	Measurements chan models.Measurement
	Events       chan models.Event
}

func NewChannels(measurementBuffer, eventBuffer int) *Channels {
	return &Channels{
		Measurements: make(chan models.Measurement, measurementBuffer),
		Events:       make(chan models.Event, eventBuffer),
	}
}

func (c *Channels) Close() {
	close(c.Measurements)
	close(c.Events)
}
