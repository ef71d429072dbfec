package quorum

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/iov-one/quorum/errors"
)

// UnixTime represents a point in time as POSIX time.
// Instead of using Go's time.Time that includes nanoseconds use primitive
// int64 type and seconds precision. Block time of the ledger is declared with
// seconds precision anyway.
type UnixTime int64

// Time returns a time.Time structure that represents the same moment in time.
func (t UnixTime) Time() time.Time {
	return time.Unix(int64(t), 0)
}

// IsZero returns true if this time represents a zero value.
func (t UnixTime) IsZero() bool {
	return t == 0
}

// Add modifies this UNIX time by given duration. This is compatible with
// time.Time.Add method.
func (t UnixTime) Add(d time.Duration) UnixTime {
	return t + UnixTime(d/time.Second)
}

// Sub returns the duration t-u.
func (t UnixTime) Sub(u UnixTime) time.Duration {
	return time.Duration(t-u) * time.Second
}

// AsUnixTime converts given Time structure into its UNIX time representation.
func AsUnixTime(t time.Time) UnixTime {
	return UnixTime(t.Unix())
}

// IsExpired returns true if given expiration time is in the past as compared
// to now. Expiration is inclusive, meaning that if now is equal to the
// expiration time than this function returns true.
func IsExpired(expiration, now UnixTime) bool {
	return expiration <= now
}

// UnmarshalJSON supports unmarshaling both as time.Time and from a number.
// Usually a number is used as a representation of this time in JSON but it is
// convinient to use a string format in configurations (ie genesis file).
func (t *UnixTime) UnmarshalJSON(raw []byte) error {
	var unix int64
	if err := json.Unmarshal(raw, &unix); err == nil {
		if unix < 0 {
			return errors.Wrap(errors.ErrInput, "time before epoch")
		}
		*t = UnixTime(unix)
		return nil
	}

	var stdtime time.Time
	if err := json.Unmarshal(raw, &stdtime); err == nil {
		unix := UnixTime(stdtime.Unix())
		if unix < 0 {
			return errors.Wrap(errors.ErrInput, "time before epoch")
		}
		*t = unix
		return nil
	}

	return errors.Wrap(errors.ErrInput, "invalid time format")
}

// MarshalJSON encodes the time in RFC 3339 format.
func (t UnixTime) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.Time().UTC().Format(time.RFC3339))
}

// Validate returns an error if this time value is invalid.
func (t UnixTime) Validate() error {
	if t < 0 {
		return errors.Wrap(errors.ErrState, "negative value")
	}
	return nil
}

// String returns the usual string representation of this time as the time.Time
// structure would.
func (t UnixTime) String() string {
	return t.Time().UTC().String()
}

var durationUnits = map[string]time.Duration{
	"ms": time.Millisecond,
	"s":  time.Second,
	"m":  time.Minute,
	"h":  time.Hour,
	"d":  24 * time.Hour,
	"w":  7 * 24 * time.Hour,
	"M":  2630016 * time.Second, // 30.44 days
	"y":  31557600 * time.Second, // 365.25 days
}

// ParseDuration parses a human readable duration made of space separated
// number and unit pairs, for example "1y 6M 2w 3d 12h 30m 30s". Units are
// y, M, w, d, h, m, s and ms. Go duration strings such as "1h30m" are
// accepted as well.
func ParseDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, errors.Wrap(errors.ErrEmpty, "duration")
	}
	if d, err := time.ParseDuration(s); err == nil {
		if d < 0 {
			return 0, errors.Wrap(errors.ErrInput, "negative duration")
		}
		return d, nil
	}

	var total time.Duration
	for _, chunk := range strings.Fields(s) {
		i := strings.IndexFunc(chunk, func(r rune) bool { return !unicode.IsDigit(r) })
		if i <= 0 {
			return 0, errors.Wrapf(errors.ErrInput, "invalid duration chunk %q", chunk)
		}
		n, err := strconv.ParseInt(chunk[:i], 10, 64)
		if err != nil {
			return 0, errors.Wrapf(errors.ErrInput, "invalid duration chunk %q", chunk)
		}
		unit, ok := durationUnits[chunk[i:]]
		if !ok {
			return 0, errors.Wrapf(errors.ErrInput, "unknown duration unit %q", chunk[i:])
		}
		if n > int64((1<<63-1)/unit) {
			return 0, errors.Wrapf(errors.ErrOverflow, "duration chunk %q", chunk)
		}
		next := total + time.Duration(n)*unit
		if next < total {
			return 0, errors.Wrap(errors.ErrOverflow, "duration")
		}
		total = next
	}
	return total, nil
}

// FormatDuration renders a duration rounded down to seconds using the units
// understood by ParseDuration.
func FormatDuration(d time.Duration) string {
	d = d.Truncate(time.Second)
	if d <= 0 {
		return "0s"
	}
	var parts []string
	for _, u := range []struct {
		name string
		size time.Duration
	}{
		{"d", 24 * time.Hour},
		{"h", time.Hour},
		{"m", time.Minute},
		{"s", time.Second},
	} {
		if n := d / u.size; n > 0 {
			parts = append(parts, fmt.Sprintf("%d%s", n, u.name))
			d -= n * u.size
		}
	}
	return strings.Join(parts, " ")
}
