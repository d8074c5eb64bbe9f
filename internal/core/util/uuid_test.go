package util

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestUUIDRoundTrip(t *testing.T) {
	t.Parallel()
	id := NewID()
	u := TextToUUID(id)
	require.True(t, u.Valid)
	require.Equal(t, id, UUIDToStr(u))
}

func TestTextToUUIDInvalid(t *testing.T) {
	t.Parallel()
	for _, s := range []string{"", "nope", "../etc/passwd", "1234"} {
		u := TextToUUID(s)
		require.False(t, u.Valid, s)
		require.Empty(t, UUIDToStr(u))
	}
}
