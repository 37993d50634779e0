package timezone

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLocationIsSantiago(t *testing.T) {
	require.NotNil(t, Location)
	require.Equal(t, "America/Santiago", Location.String())
}

func TestNowIsPinned(t *testing.T) {
	now := Now()
	require.Equal(t, "America/Santiago", now.Location().String())

	// same instant regardless of the wall clock's zone
	require.WithinDuration(t, time.Now().UTC(), now.UTC(), 5*time.Second)
}
