package app

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/inkharmony/inkharmony/pkg/config"
	"github.com/inkharmony/inkharmony/pkg/domain"
)

func TestContainerRecordsPhaseDurations(t *testing.T) {
	cfg := config.Default()
	cfg.StorageDir = t.TempDir()
	cfg.Phases = []string{"outline", "draft"}

	c, err := New(cfg)
	require.NoError(t, err)

	bookID, err := c.Books.Create(domain.Payload{"title": "Measured"})
	require.NoError(t, err)
	require.True(t, c.Books.Start(bookID))
	require.True(t, c.Books.CompleteCurrentPhase(bookID))

	families, err := c.Registry.Gather()
	require.NoError(t, err)

	var samples uint64
	for _, mf := range families {
		if mf.GetName() == "inkharmony_phase_duration_seconds" {
			samples = mf.GetMetric()[0].GetHistogram().GetSampleCount()
		}
	}
	require.EqualValues(t, 1, samples)
}
