package main

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShutdownSequenceStopsInReverseOrder(t *testing.T) {
	log := logrus.New()
	log.SetOutput(io.Discard)
	stops := newShutdownSequence(log)

	var order []string
	record := func(name string, err error) func(context.Context) error {
		return func(ctx context.Context) error {
			_, hasDeadline := ctx.Deadline()
			assert.True(t, hasDeadline, name)
			order = append(order, name)
			return err
		}
	}
	stops.add("worker pool", record("worker pool", nil))
	stops.add("scheduler", record("scheduler", errors.New("still running")))
	stops.add("health server", record("health server", nil))

	stops.run(time.Second)
	require.Equal(t, []string{"health server", "scheduler", "worker pool"}, order)

	stops.run(time.Second)
	assert.Len(t, order, 3)
}

func TestShutdownSequenceUnwindsPartialStartup(t *testing.T) {
	log := logrus.New()
	log.SetOutput(io.Discard)

	var stopped []string
	startup := func() error {
		stops := newShutdownSequence(log)
		defer stops.run(time.Second)

		stops.add("worker pool", func(context.Context) error {
			stopped = append(stopped, "worker pool")
			return nil
		})
		return errors.New("failed to start scheduler")
	}

	assert.Error(t, startup())
	assert.Equal(t, []string{"worker pool"}, stopped)
}
