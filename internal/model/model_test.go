package model

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHour24MidnightRawAndNormalized(t *testing.T) {
	midnight := MustWallTime(12, 0, 0, AM)
	assert.Equal(t, 24, midnight.RawHour24())
	assert.Equal(t, 0, midnight.Hour24())

	noon := MustWallTime(12, 0, 0, PM)
	assert.Equal(t, 12, noon.RawHour24())
	assert.Equal(t, 12, noon.Hour24())

	assert.Equal(t, 9, MustWallTime(9, 0, 0, AM).Hour24())
	assert.Equal(t, 21, MustWallTime(9, 0, 0, PM).Hour24())
}

func TestIsMorningMatchesHourRange(t *testing.T) {
	for _, p := range []Period{AM, PM} {
		for h := 1; h <= 12; h++ {
			wt := MustWallTime(h, 30, 0, p)
			h24 := wt.Hour24()
			assert.Equal(t, h24 >= 6 && h24 < 18, wt.IsMorning(), wt.Format())
		}
	}
	assert.True(t, MustWallTime(6, 0, 0, AM).IsMorning())
	assert.False(t, MustWallTime(5, 59, 59, AM).IsMorning())
	assert.True(t, MustWallTime(5, 59, 59, PM).IsMorning())
	assert.False(t, MustWallTime(6, 0, 0, PM).IsMorning())
	assert.Equal(t, Night, MustWallTime(12, 0, 0, AM).DayPeriod())
	assert.Equal(t, Morning, MustWallTime(12, 0, 0, PM).DayPeriod())
}

func TestFormatPadsEachField(t *testing.T) {
	cases := []WallTime{
		{9, 5, 3, AM},
		{12, 5, 3, PM},
		{9, 45, 3, PM},
		{9, 5, 30, AM},
		{11, 59, 59, PM},
		{10, 10, 10, AM},
	}
	for _, wt := range cases {
		want := fmt.Sprintf("%02d:%02d:%02d %s", wt.Hour12, wt.Minute, wt.Second, wt.Period)
		assert.Equal(t, want, wt.Format())
	}
	assert.Equal(t, "09:05:03 AM", WallTime{9, 5, 3, AM}.Format())
}

func TestParseWallTime(t *testing.T) {
	wt, err := ParseWallTime("09:05:03 AM")
	require.NoError(t, err)
	assert.Equal(t, WallTime{9, 5, 3, AM}, wt)

	wt, err = ParseWallTime("9:5:3 pm")
	require.NoError(t, err)
	assert.Equal(t, WallTime{9, 5, 3, PM}, wt)

	for _, bad := range []string{"", "09:05 AM", "13:00:00 AM", "09:05:03 XM", "aa:00:00 AM"} {
		_, err := ParseWallTime(bad)
		assert.Error(t, err, bad)
	}
}

func TestWallTimeOf(t *testing.T) {
	at := func(h, m, s int) time.Time { return time.Date(2025, 1, 1, h, m, s, 0, time.Local) }
	assert.Equal(t, WallTime{12, 0, 1, AM}, WallTimeOf(at(0, 0, 1)))
	assert.Equal(t, WallTime{12, 30, 0, PM}, WallTimeOf(at(12, 30, 0)))
	assert.Equal(t, WallTime{11, 59, 59, PM}, WallTimeOf(at(23, 59, 59)))
}

func TestScheduledKeyString(t *testing.T) {
	k := KeyOf(MustWallTime(9, 5, 3, AM))
	assert.Equal(t, "9:5:3", k.String())
	assert.Equal(t, "0:0:30", KeyOf(MustWallTime(12, 0, 30, AM)).String())
}

func TestParseScheduledKey(t *testing.T) {
	k, err := ParseScheduledKey("9:5:3")
	require.NoError(t, err)
	assert.Equal(t, ScheduledKey{9, 5, 3}, k)

	k, err = ParseScheduledKey("09:05:03")
	require.NoError(t, err)
	assert.Equal(t, ScheduledKey{9, 5, 3}, k)

	k, err = ParseScheduledKey("24:0:30")
	require.NoError(t, err)
	assert.Equal(t, ScheduledKey{0, 0, 30}, k)

	for _, bad := range []string{"", "9:5", "x:1:2", "25:0:0", "1:60:0"} {
		_, err := ParseScheduledKey(bad)
		assert.ErrorIs(t, err, errBadKey, bad)
	}
}

func TestScheduledKeyNotAfter(t *testing.T) {
	now := ScheduledKey{9, 0, 0}
	assert.True(t, ScheduledKey{8, 30, 0}.NotAfter(now))
	assert.True(t, ScheduledKey{9, 0, 0}.NotAfter(now))
	assert.False(t, ScheduledKey{9, 0, 1}.NotAfter(now))
	assert.False(t, ScheduledKey{10, 0, 0}.NotAfter(now))
	assert.True(t, ScheduledKey{8, 59, 59}.NotAfter(now))
}

func TestSleepEventSecondsFromMidnight(t *testing.T) {
	ev := SleepEvent{Timestamp: time.Date(2025, 1, 1, 7, 15, 30, 0, time.Local), Kind: GotUp}
	assert.Equal(t, 7*3600+15*60+30, ev.SecondsFromMidnight())
}

func TestAlarmEntryLabel(t *testing.T) {
	e := AlarmEntry{ID: 2, Time: MustWallTime(8, 1, 0, AM), Role: RoleAt(1)}
	assert.Equal(t, "08:01:00 AM Secondary #2", e.Label())
	assert.Equal(t, Primary, RoleAt(0))
}
