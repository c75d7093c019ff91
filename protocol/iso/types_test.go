package iso_test

import (
	"testing"
	"time"

	"github.com/edgerpc/mqttrpc/protocol/iso"
	"github.com/stretchr/testify/require"
)

func TestDateRoundTrip(t *testing.T) {
	d := iso.Date(time.Date(2026, 7, 30, 0, 0, 0, 0, time.UTC))
	require.Equal(t, "2026-07-30", d.String())

	var parsed iso.Date
	require.NoError(t, parsed.UnmarshalText([]byte(d.String())))
	require.Equal(t, d.String(), parsed.String())
}

func TestDateTimeRoundTrip(t *testing.T) {
	dt := iso.DateTime(time.Date(2026, 7, 30, 14, 30, 0, 0, time.UTC))
	text, err := dt.MarshalText()
	require.NoError(t, err)

	var parsed iso.DateTime
	require.NoError(t, parsed.UnmarshalText(text))
	require.True(t, time.Time(dt).Equal(time.Time(parsed)))
}

func TestTimeRoundTrip(t *testing.T) {
	tm := iso.Time(time.Date(1, 1, 1, 14, 30, 0, 0, time.UTC))
	require.Equal(t, "14:30:00Z", tm.String())

	var parsed iso.Time
	require.NoError(t, parsed.UnmarshalText([]byte(tm.String())))
	require.Equal(t, tm.String(), parsed.String())
}

func TestDurationRoundTrip(t *testing.T) {
	d := iso.Duration(90 * time.Second)
	text, err := d.MarshalText()
	require.NoError(t, err)

	var parsed iso.Duration
	require.NoError(t, parsed.UnmarshalText(text))
	require.Equal(t, time.Duration(d), time.Duration(parsed))
}

func TestDurationRejectsMalformed(t *testing.T) {
	var d iso.Duration
	require.Error(t, d.UnmarshalText([]byte("not-a-duration")))
}

func TestByteSliceRoundTrip(t *testing.T) {
	original := iso.ByteSlice([]byte{0x01, 0x02, 0xff, 0x00})
	text, err := original.MarshalText()
	require.NoError(t, err)

	var parsed iso.ByteSlice
	require.NoError(t, parsed.UnmarshalText(text))
	require.Equal(t, original, parsed)
}

func TestByteSliceRejectsInvalidBase64(t *testing.T) {
	var b iso.ByteSlice
	require.Error(t, b.UnmarshalText([]byte("not valid base64!!")))
}
