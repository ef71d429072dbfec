package quorum

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/iov-one/quorum/errors"
)

func TestUnixTimeUnmarshal(t *testing.T) {
	cases := map[string]struct {
		raw      string
		wantTime UnixTime
		wantErr  *errors.Error
	}{
		"zero time as number": {
			raw:      "0",
			wantTime: 0,
		},
		"zero time as string": {
			raw:      `"1970-01-01T01:00:00+01:00"`,
			wantTime: 0,
		},
		"a time as string": {
			raw:      `"2019-04-04T11:35:40.89181085+02:00"`,
			wantTime: 1554370540,
		},
		"a time as number": {
			raw:      "1554370540",
			wantTime: 1554370540,
		},
		"negative number": {
			raw:     "-1",
			wantErr: errors.ErrInput,
		},
		"negative time as string": {
			raw:     `"1950-01-01T01:00:00+01:00"`,
			wantErr: errors.ErrInput,
		},
		"invalid string": {
			raw:     `"not a time string"`,
			wantErr: errors.ErrInput,
		},
	}

	for testName, tc := range cases {
		t.Run(testName, func(t *testing.T) {
			var got UnixTime
			err := json.Unmarshal([]byte(tc.raw), &got)
			if !tc.wantErr.Is(err) {
				t.Fatalf("unexpected error: %s", err)
			}
			if got != tc.wantTime {
				t.Fatalf("want %d time, got %d", tc.wantTime, got)
			}
		})
	}
}

func TestUnixTimeAdd(t *testing.T) {
	now := time.Now()
	future := now.Add(time.Hour + 4*time.Second)

	unow := AsUnixTime(now)
	ufuture := unow.Add(time.Hour + 4*time.Second)

	if future.Unix() != int64(ufuture) {
		t.Fatalf("want %d, got %d", future.Unix(), ufuture)
	}
	if got := ufuture.Sub(unow); got != time.Hour+4*time.Second {
		t.Fatalf("want 1h0m4s, got %s", got)
	}
}

func TestIsExpired(t *testing.T) {
	now := UnixTime(1000)
	if !IsExpired(now, now) {
		t.Fatal("expiration is inclusive")
	}
	if !IsExpired(now-1, now) {
		t.Fatal("past time must be expired")
	}
	if IsExpired(now+1, now) {
		t.Fatal("future time must not be expired")
	}
}

func TestParseDuration(t *testing.T) {
	cases := map[string]struct {
		raw     string
		want    time.Duration
		wantErr *errors.Error
	}{
		"go format": {
			raw:  "1h30m",
			want: 90 * time.Minute,
		},
		"single human chunk": {
			raw:  "1h",
			want: time.Hour,
		},
		"human chunks": {
			raw:  "2w 3d 12h 30m 30s",
			want: 17*24*time.Hour + 12*time.Hour + 30*time.Minute + 30*time.Second,
		},
		"months and years": {
			raw:  "1y 6M",
			want: 31557600*time.Second + 6*2630016*time.Second,
		},
		"empty": {
			raw:     "  ",
			wantErr: errors.ErrEmpty,
		},
		"unknown unit": {
			raw:     "3 parsecs",
			wantErr: errors.ErrInput,
		},
		"missing number": {
			raw:     "h",
			wantErr: errors.ErrInput,
		},
		"negative go duration": {
			raw:     "-1h",
			wantErr: errors.ErrInput,
		},
		"overflow": {
			raw:     "999999999999y",
			wantErr: errors.ErrOverflow,
		},
	}

	for testName, tc := range cases {
		t.Run(testName, func(t *testing.T) {
			got, err := ParseDuration(tc.raw)
			if !tc.wantErr.Is(err) {
				t.Fatalf("unexpected error: %+v", err)
			}
			if got != tc.want {
				t.Fatalf("want %s, got %s", tc.want, got)
			}
		})
	}
}

func TestFormatDuration(t *testing.T) {
	cases := map[time.Duration]string{
		0:                            "0s",
		-time.Second:                 "0s",
		1500 * time.Millisecond:      "1s",
		time.Hour + 2*time.Minute:    "1h 2m",
		26*time.Hour + 3*time.Second: "1d 2h 3s",
	}
	for d, want := range cases {
		if got := FormatDuration(d); got != want {
			t.Errorf("%s: want %q, got %q", d, want, got)
		}
	}
}
