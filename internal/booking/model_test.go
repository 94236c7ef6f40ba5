package booking

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseStatus(t *testing.T) {
	for _, s := range AllStatuses {
		got, ok := ParseStatus(string(s))
		assert.True(t, ok)
		assert.Equal(t, s, got)
	}
	_, ok := ParseStatus("Confirmed")
	assert.False(t, ok)
	_, ok = ParseStatus("")
	assert.False(t, ok)

	assert.True(t, StatusPending.Active())
	assert.True(t, StatusConfirmed.Active())
	assert.True(t, StatusCancelled.Terminal())
	assert.True(t, StatusCompleted.Terminal())
}

func TestParseTimeOfDay(t *testing.T) {
	tod, err := ParseTimeOfDay("07:05")
	require.NoError(t, err)
	assert.Equal(t, TimeOfDay{Hour: 7, Minute: 5}, tod)
	assert.Equal(t, "07:05", tod.String())
	assert.Equal(t, 425, tod.Minutes())

	for _, bad := range []string{"24:00", "9", "ab:cd", ""} {
		_, err := ParseTimeOfDay(bad)
		assert.Error(t, err, bad)
	}
}

func TestWeeklyRuleJSON(t *testing.T) {
	var r WeeklyRule
	require.NoError(t, json.Unmarshal([]byte(`{"day":"monday","startTime":"09:00","endTime":"17:00"}`), &r))
	assert.Equal(t, time.Monday, r.Day)
	assert.Equal(t, DefaultSlotDurationMinutes, r.SlotDurationMinutes)
	require.NoError(t, r.Validate())

	out, err := json.Marshal(r)
	require.NoError(t, err)
	assert.JSONEq(t, `{"day":"Monday","startTime":"09:00","endTime":"17:00","slotDurationMinutes":30}`, string(out))

	require.NoError(t, json.Unmarshal([]byte(`{"day":"Friday","startTime":"09:00","endTime":"10:00","slotDurationMinutes":0}`), &r))
	err = r.Validate()
	require.Error(t, err)
	assert.Equal(t, KindInvalidInput, KindOf(err))

	assert.Error(t, json.Unmarshal([]byte(`{"day":"Someday","startTime":"09:00","endTime":"10:00"}`), &r))
	assert.Error(t, json.Unmarshal([]byte(`{"day":"Monday","startTime":"9 o'clock","endTime":"10:00"}`), &r))
}

func TestWeeklyRuleValidate_StartBeforeEnd(t *testing.T) {
	err := rule(time.Monday, "10:00", "09:00", 30).Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "start time must be before end time")
}
