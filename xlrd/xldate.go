package xlrd

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// Date conversion failures. Errors returned by the conversion functions wrap
// one of these; test with errors.Is.
var (
	ErrDateNegative  = errors.New("xldate < 0.00")
	ErrDateAmbiguous = errors.New("1900 leap-year problem")
	ErrDateTooLarge  = errors.New("xldate too large")
	ErrBadDatemode   = errors.New("invalid datemode")
	ErrBadDateTuple  = errors.New("invalid date tuple")
)

// DateError describes a failed date conversion.
type DateError struct {
	Kind   error
	Detail string
}

func (e *DateError) Error() string {
	return e.Kind.Error() + ": " + e.Detail
}

func (e *DateError) Unwrap() error {
	return e.Kind
}

func dateErr(kind error, format string, args ...interface{}) *DateError {
	return &DateError{Kind: kind, Detail: fmt.Sprintf(format, args...)}
}

// DateTuple is a broken-down Gregorian date and time. A time-only value has
// a zero Year, Month and Day.
type DateTuple struct {
	Year, Month, Day     int
	Hour, Minute, Second int
}

// IsTimeOnly reports whether the tuple carries no date part.
func (t DateTuple) IsTimeOnly() bool {
	return t.Year == 0 && t.Month == 0 && t.Day == 0
}

// Julian day numbers of day 0 in each date system.
var jdnDelta = [2]int{2415080 - 61, 2416482 - 1}

// First day count that lands in year 10000, per date system.
var xldaysTooLarge = [2]int{2958466, 2958466 - 1462}

var (
	epoch1904       = time.Date(1904, 1, 1, 0, 0, 0, 0, time.UTC)
	epoch1900       = time.Date(1899, 12, 31, 0, 0, 0, 0, time.UTC)
	epoch1900Minus1 = time.Date(1899, 12, 30, 0, 0, 0, 0, time.UTC)
)

var daysInMonth = [13]int{0, 31, 28, 31, 30, 31, 30, 31, 31, 30, 31, 30, 31}

func isLeap(y int) bool {
	return y%4 == 0 && (y%100 != 0 || y%400 == 0)
}

func checkDatemode(datemode int) error {
	if datemode != 0 && datemode != 1 {
		return dateErr(ErrBadDatemode, "%d", datemode)
	}
	return nil
}

// XldateAsTuple converts an Excel number (presumed to represent a date, a
// datetime or a time) into a Gregorian DateTuple, rounded to the nearest second.
//
// datemode: 0: 1900-based, 1: 1904-based.
//
// If 0.0 <= xldate < 1.0 the value is taken as a time and the date part of
// the result is zero.
func XldateAsTuple(xldate float64, datemode int) (DateTuple, error) {
	if err := checkDatemode(datemode); err != nil {
		return DateTuple{}, err
	}
	if xldate == 0 {
		return DateTuple{}, nil
	}
	if xldate < 0 {
		return DateTuple{}, dateErr(ErrDateNegative, "%v", xldate)
	}
	xldays := int(xldate)
	seconds := int(math.Round((xldate - float64(xldays)) * 86400.0))
	var t DateTuple
	if seconds == 86400 {
		xldays++
	} else {
		t.Hour, t.Minute, t.Second = seconds/3600, seconds/60%60, seconds%60
	}
	if xldays >= xldaysTooLarge[datemode] {
		return DateTuple{}, dateErr(ErrDateTooLarge, "%v", xldate)
	}
	if xldays == 0 {
		return t, nil
	}
	if xldays < 61 && datemode == 0 {
		return DateTuple{}, dateErr(ErrDateAmbiguous, "%v", xldate)
	}

	jdn := xldays + jdnDelta[datemode]
	yreg := ((((jdn*4+274277)/146097)*3/4)+jdn+1363)*4 + 3
	mp := ((yreg%1461)/4)*535 + 333
	t.Day = (mp%16384)/535 + 1
	mp >>= 14
	if mp >= 10 {
		t.Year, t.Month = yreg/1461-4715, mp-9
	} else {
		t.Year, t.Month = yreg/1461-4716, mp+3
	}
	return t, nil
}

// XldateAsDatetime converts an Excel number into a UTC time.Time with
// millisecond resolution. In the 1900 system, serials below 60 are counted
// from 1899-12-31 and later ones from 1899-12-30 to skip the phantom
// 1900-02-29.
func XldateAsDatetime(xldate float64, datemode int) (time.Time, error) {
	if err := checkDatemode(datemode); err != nil {
		return time.Time{}, err
	}
	epoch := epoch1904
	if datemode == 0 {
		epoch = epoch1900Minus1
		if xldate < 60 {
			epoch = epoch1900
		}
	}
	days := int(xldate)
	ms := int(math.Round((xldate - float64(days)) * 86400000.0))
	return epoch.AddDate(0, 0, days).Add(time.Duration(ms) * time.Millisecond), nil
}

// XldateFromDateTuple converts a Gregorian date to an Excel day number.
// (0, 0, 0) converts to 0.
func XldateFromDateTuple(year, month, day int, datemode int) (float64, error) {
	if err := checkDatemode(datemode); err != nil {
		return 0, err
	}
	if year == 0 && month == 0 && day == 0 {
		return 0, nil
	}
	if year < 1900 || year > 9999 {
		return 0, dateErr(ErrBadDateTuple, "year out of range (%d, %d, %d)", year, month, day)
	}
	if month < 1 || month > 12 {
		return 0, dateErr(ErrBadDateTuple, "month out of range (%d, %d, %d)", year, month, day)
	}
	maxDay := daysInMonth[month]
	if month == 2 && isLeap(year) {
		maxDay = 29
	}
	if day < 1 || day > maxDay {
		return 0, dateErr(ErrBadDateTuple, "day out of range (%d, %d, %d)", year, month, day)
	}

	yp, mp := year+4716, month-3
	if month <= 2 {
		yp, mp = yp-1, month+9
	}
	jdn := 1461*yp/4 + (979*mp+16)/32 + day - 1364 - (yp+184)/100*3/4
	xldays := jdn - jdnDelta[datemode]
	if xldays <= 0 {
		return 0, dateErr(ErrBadDateTuple, "(%d, %d, %d) precedes the epoch", year, month, day)
	}
	if xldays < 61 && datemode == 0 {
		return 0, dateErr(ErrDateAmbiguous, "before 1900-03-01: (%d, %d, %d)", year, month, day)
	}
	return float64(xldays), nil
}

// XldateFromTimeTuple converts a time of day to a fraction of a day.
func XldateFromTimeTuple(hour, minute, second int) (float64, error) {
	if hour < 0 || hour >= 24 || minute < 0 || minute >= 60 || second < 0 || second >= 60 {
		return 0, dateErr(ErrBadDateTuple, "time out of range (%d, %d, %d)", hour, minute, second)
	}
	return ((float64(second)/60+float64(minute))/60 + float64(hour)) / 24, nil
}

// XldateFromDatetimeTuple converts a date and time to an Excel number.
func XldateFromDatetimeTuple(year, month, day, hour, minute, second int, datemode int) (float64, error) {
	datePart, err := XldateFromDateTuple(year, month, day, datemode)
	if err != nil {
		return 0, err
	}
	timePart, err := XldateFromTimeTuple(hour, minute, second)
	if err != nil {
		return 0, err
	}
	return datePart + timePart, nil
}

// XldateFromTime converts t, taken at face value in its own location.
func XldateFromTime(t time.Time, datemode int) (float64, error) {
	return XldateFromDatetimeTuple(t.Year(), int(t.Month()), t.Day(), t.Hour(), t.Minute(), t.Second(), datemode)
}
