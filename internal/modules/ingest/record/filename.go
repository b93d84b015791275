package record

import (
	"strconv"
	"strings"
	"time"
	"unicode/utf8"
)

const stationCodeLen = 6

// FileKey identifies the station and day a data file belongs to.
type FileKey struct {
	Station string
	Day     int
}

// ParseFilename derives the station code and day index from a data file
// name: the first six characters are the station, and the digits found in
// the remainder, concatenated in order, are the day. "GZLMB160.878" yields
// station GZLMB1, day 60878.
func ParseFilename(name string) (FileKey, bool) {
	if utf8.RuneCountInString(name) <= stationCodeLen {
		return FileKey{}, false
	}
	cut := 0
	for i := 0; i < stationCodeLen; i++ {
		_, size := utf8.DecodeRuneInString(name[cut:])
		cut += size
	}

	var digits strings.Builder
	for _, r := range name[cut:] {
		if r >= '0' && r <= '9' {
			digits.WriteRune(r)
		}
	}
	if digits.Len() == 0 {
		return FileKey{}, false
	}
	day, err := strconv.ParseInt(digits.String(), 10, 32)
	if err != nil {
		return FileKey{}, false
	}
	return FileKey{Station: name[:cut], Day: int(day)}, true
}

// mjdEpoch is day zero of the day index, 1858-11-17.
var mjdEpoch = time.Date(1858, time.November, 17, 0, 0, 0, 0, time.UTC)

const secondsPerDay = 24 * 60 * 60

// DayIndex returns the day index of t's calendar date in t's location.
func DayIndex(t time.Time) int {
	y, m, d := t.Date()
	date := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	return int((date.Unix() - mjdEpoch.Unix()) / secondsPerDay)
}

// DayDate is the inverse of DayIndex, returned as midnight UTC.
func DayDate(day int) time.Time {
	return mjdEpoch.AddDate(0, 0, day)
}
