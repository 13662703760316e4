package transcript

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// maxSeconds keeps the millisecond total exactly representable in a float64
const maxSeconds = (1 << 53) / 1000

const (
	msPerSecond = 1000
	msPerMinute = 60 * msPerSecond
	msPerHour   = 60 * msPerMinute
)

// FormatTimestamp renders seconds as HH:MM:SS,mmm. The value is rounded to the
// nearest millisecond before being split, so 59.9996 becomes 00:01:00,000
// rather than an out-of-range seconds field. Hours widen past two digits when
// needed.
func FormatTimestamp(seconds float64) (string, error) {
	if math.IsNaN(seconds) || math.IsInf(seconds, 0) {
		return "", fmt.Errorf("%w: timestamp %v is not finite", ErrInvalidInput, seconds)
	}
	if seconds < 0 {
		return "", fmt.Errorf("%w: timestamp %v is negative", ErrInvalidInput, seconds)
	}
	if seconds > maxSeconds {
		return "", fmt.Errorf("%w: timestamp %v is out of range", ErrInvalidInput, seconds)
	}
	return formatMillis(int64(math.Round(seconds * msPerSecond))), nil
}

func formatMillis(total int64) string {
	hours := total / msPerHour
	total %= msPerHour
	minutes := total / msPerMinute
	total %= msPerMinute
	secs := total / msPerSecond
	millis := total % msPerSecond
	return fmt.Sprintf("%02d:%02d:%02d,%03d", hours, minutes, secs, millis)
}

// ParseTimestamp reads an HH:MM:SS,mmm value back into seconds. A period is
// accepted in place of the comma.
func ParseTimestamp(value string) (float64, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, fmt.Errorf("%w: empty timestamp", ErrInvalidInput)
	}
	value = strings.ReplaceAll(value, ".", ",")
	clock, fraction, ok := strings.Cut(value, ",")
	if !ok || fraction == "" || len(fraction) > 3 {
		return 0, fmt.Errorf("%w: invalid timestamp %q", ErrInvalidInput, value)
	}
	parts := strings.Split(clock, ":")
	if len(parts) != 3 {
		return 0, fmt.Errorf("%w: invalid timestamp %q", ErrInvalidInput, value)
	}

	hours, errH := strconv.ParseUint(parts[0], 10, 63)
	minutes, errM := strconv.ParseUint(parts[1], 10, 8)
	secs, errS := strconv.ParseUint(parts[2], 10, 8)
	millis, errMS := strconv.ParseUint(fraction, 10, 16)
	if errH != nil || errM != nil || errS != nil || errMS != nil || minutes > 59 || secs > 59 {
		return 0, fmt.Errorf("%w: invalid timestamp %q", ErrInvalidInput, value)
	}
	for i := len(fraction); i < 3; i++ {
		millis *= 10
	}

	return float64(hours*3600+minutes*60+secs) + float64(millis)/msPerSecond, nil
}
