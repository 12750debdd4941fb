package sink

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"github.com/Kostaaa1/bililive/pkg/bilibili/event"
)

// Multi fans every event out to all publishers in order. A failing
// publisher does not stop the others.
type Multi struct {
	pubs []Publisher
	l    zerolog.Logger
}

func NewMulti(l zerolog.Logger, pubs ...Publisher) *Multi {
	return &Multi{pubs: pubs, l: l}
}

// Add appends p. It is not safe to call concurrently with Publish.
func (m *Multi) Add(p Publisher) {
	m.pubs = append(m.pubs, p)
}

func (m *Multi) Len() int {
	return len(m.pubs)
}

func (m *Multi) Publish(ctx context.Context, e event.Event) error {
	var errs []error
	for _, p := range m.pubs {
		if err := p.Publish(ctx, e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m *Multi) Close() error {
	var errs []error
	for _, p := range m.pubs {
		if err := p.Close(); err != nil {
			m.l.Error().Err(err).Msg("failed to close sink")
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
