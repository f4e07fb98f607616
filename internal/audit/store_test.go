package audit

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

func TestStoreRoundTrip(t *testing.T) {
	s, err := NewStore(filepath.Join(t.TempDir(), "audit.db"))
	require.NoError(t, err)
	defer s.Close()

	s.Log("entry_order_placed", "AAPL", map[string]any{"qty": 10, "entry": 150.05})
	s.Log("position_closed", "AAPL", map[string]any{"reason": "target_hit"})

	recs, err := s.Recent(10)
	require.NoError(t, err)
	require.Len(t, recs, 2)

	// Most recent first.
	assert.Equal(t, "position_closed", recs[0].Event)
	assert.Equal(t, "AAPL", recs[0].Symbol)
	assert.Equal(t, "target_hit", gjson.GetBytes(recs[0].Payload, "reason").String())
	assert.EqualValues(t, 10, gjson.GetBytes(recs[1].Payload, "qty").Int())
}

func TestStoreRejectsEmptyPath(t *testing.T) {
	_, err := NewStore("  ")
	assert.Error(t, err)
}

func TestRecentDefaultLimit(t *testing.T) {
	s, err := NewStore(filepath.Join(t.TempDir(), "audit.db"))
	require.NoError(t, err)
	defer s.Close()

	recs, err := s.Recent(0)
	require.NoError(t, err)
	assert.Empty(t, recs)
}
