package xlrd

import (
	"errors"
	"testing"
	"time"
)

const datemode = 0 // 1900-based

func TestDateAsTuple(t *testing.T) {
	tests := []struct {
		xldate float64
		want   DateTuple
	}{
		{2741., DateTuple{1907, 7, 3, 0, 0, 0}},
		{38406., DateTuple{2005, 2, 23, 0, 0, 0}},
		{32266., DateTuple{1988, 5, 3, 0, 0, 0}},
	}

	for _, tt := range tests {
		got, err := XldateAsTuple(tt.xldate, datemode)
		if err != nil {
			t.Errorf("XldateAsTuple(%f, %d) error = %v", tt.xldate, datemode, err)
			continue
		}
		if got != tt.want {
			t.Errorf("XldateAsTuple(%f, %d) = %v, want %v", tt.xldate, datemode, got, tt.want)
		}
	}
}

func TestTimeAsTuple(t *testing.T) {
	tests := []struct {
		xldate float64
		want   DateTuple
	}{
		{0.273611, DateTuple{0, 0, 0, 6, 34, 0}},
		{0.538889, DateTuple{0, 0, 0, 12, 56, 0}},
		{0.741123, DateTuple{0, 0, 0, 17, 47, 13}},
	}

	for _, tt := range tests {
		got, err := XldateAsTuple(tt.xldate, datemode)
		if err != nil {
			t.Errorf("XldateAsTuple(%f, %d) error = %v", tt.xldate, datemode, err)
			continue
		}
		if got != tt.want {
			t.Errorf("XldateAsTuple(%f, %d) = %v, want %v", tt.xldate, datemode, got, tt.want)
		}
		if !got.IsTimeOnly() {
			t.Errorf("XldateAsTuple(%f, %d) should be time-only", tt.xldate, datemode)
		}
	}
}

func TestDatetimeAsTuple(t *testing.T) {
	got, err := XldateAsTuple(19417.7268519, datemode)
	if err != nil {
		t.Fatalf("XldateAsTuple error = %v", err)
	}
	want := DateTuple{1953, 2, 27, 17, 26, 40}
	if got != want {
		t.Errorf("XldateAsTuple = %v, want %v", got, want)
	}
}

func TestDateAsTupleErrors(t *testing.T) {
	tests := []struct {
		xldate   float64
		datemode int
		want     error
	}{
		{-1, 0, ErrDateNegative},
		{59, 0, ErrDateAmbiguous},
		{2958466, 0, ErrDateTooLarge},
		{1, 2, ErrBadDatemode},
	}
	for _, tt := range tests {
		_, err := XldateAsTuple(tt.xldate, tt.datemode)
		if !errors.Is(err, tt.want) {
			t.Errorf("XldateAsTuple(%f, %d) error = %v, want %v", tt.xldate, tt.datemode, err, tt.want)
		}
	}
}

func TestDate1904(t *testing.T) {
	got, err := XldateAsTuple(1, 1)
	if err != nil {
		t.Fatalf("XldateAsTuple error = %v", err)
	}
	if want := (DateTuple{1904, 1, 2, 0, 0, 0}); got != want {
		t.Errorf("XldateAsTuple(1, 1) = %v, want %v", got, want)
	}
}

func TestXldateAsDatetime(t *testing.T) {
	tests := []struct {
		xldate   float64
		datemode int
		want     time.Time
	}{
		{0.5, 0, time.Date(1899, 12, 31, 12, 0, 0, 0, time.UTC)},
		{1, 0, time.Date(1900, 1, 1, 0, 0, 0, 0, time.UTC)},
		{61, 0, time.Date(1900, 3, 1, 0, 0, 0, 0, time.UTC)},
		{38406, 0, time.Date(2005, 2, 23, 0, 0, 0, 0, time.UTC)},
		{0, 1, time.Date(1904, 1, 1, 0, 0, 0, 0, time.UTC)},
		{1.25, 1, time.Date(1904, 1, 2, 6, 0, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		got, err := XldateAsDatetime(tt.xldate, tt.datemode)
		if err != nil {
			t.Errorf("XldateAsDatetime(%f, %d) error = %v", tt.xldate, tt.datemode, err)
			continue
		}
		if !got.Equal(tt.want) {
			t.Errorf("XldateAsDatetime(%f, %d) = %v, want %v", tt.xldate, tt.datemode, got, tt.want)
		}
	}
	if _, err := XldateAsDatetime(1, 3); !errors.Is(err, ErrBadDatemode) {
		t.Errorf("XldateAsDatetime with datemode 3 error = %v, want %v", err, ErrBadDatemode)
	}
}

func TestXldateFromDateTuple(t *testing.T) {
	tests := []struct {
		y, m, d int
		want    float64
	}{
		{1907, 7, 3, 2741},
		{2005, 2, 23, 38406},
		{1988, 5, 3, 32266},
		{0, 0, 0, 0},
	}
	for _, tt := range tests {
		got, err := XldateFromDateTuple(tt.y, tt.m, tt.d, datemode)
		if err != nil {
			t.Errorf("XldateFromDateTuple(%d, %d, %d) error = %v", tt.y, tt.m, tt.d, err)
			continue
		}
		if got != tt.want {
			t.Errorf("XldateFromDateTuple(%d, %d, %d) = %v, want %v", tt.y, tt.m, tt.d, got, tt.want)
		}
	}

	bad := [][3]int{{1899, 12, 31}, {2001, 2, 29}, {2000, 13, 1}}
	for _, b := range bad {
		if _, err := XldateFromDateTuple(b[0], b[1], b[2], datemode); !errors.Is(err, ErrBadDateTuple) {
			t.Errorf("XldateFromDateTuple(%v) error = %v, want %v", b, err, ErrBadDateTuple)
		}
	}
	if _, err := XldateFromDateTuple(1900, 2, 1, datemode); !errors.Is(err, ErrDateAmbiguous) {
		t.Errorf("XldateFromDateTuple(1900, 2, 1) error = %v, want %v", err, ErrDateAmbiguous)
	}
}

func TestXldateFromTime(t *testing.T) {
	got, err := XldateFromTime(time.Date(2005, 2, 23, 12, 0, 0, 0, time.UTC), datemode)
	if err != nil {
		t.Fatalf("XldateFromTime error = %v", err)
	}
	if got != 38406.5 {
		t.Errorf("XldateFromTime = %v, want 38406.5", got)
	}
	if _, err := XldateFromTimeTuple(24, 0, 0); !errors.Is(err, ErrBadDateTuple) {
		t.Errorf("XldateFromTimeTuple(24, 0, 0) error = %v, want %v", err, ErrBadDateTuple)
	}
}
