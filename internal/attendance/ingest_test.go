package attendance

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"smartattendance/internal/model"
)

func TestParseRow(t *testing.T) {
	ist := time.FixedZone("IST", 5*3600+1800)

	ev, err := ParseRow(HardwareRow{BadgeID: " B1 ", Timestamp: "2024-03-04 09:05:00"}, ist)
	require.NoError(t, err)
	assert.Equal(t, "B1", ev.SubjectRef)
	assert.Equal(t, model.SourceHardware, ev.Source)
	assert.Equal(t, time.Date(2024, 3, 4, 9, 5, 0, 0, ist).Unix(), ev.Timestamp.Unix())
	assert.Empty(t, ev.RawStatus)

	ev, err = ParseRow(HardwareRow{BadgeID: "B1", Timestamp: "2024-03-04T03:35:00Z", Status: "A"}, ist)
	require.NoError(t, err)
	assert.Equal(t, 9, ev.Timestamp.Hour(), "RFC3339 input is shown in the institution zone")
	assert.Equal(t, model.StatusAbsent, ev.RawStatus)

	cases := []HardwareRow{
		{BadgeID: "", Timestamp: "2024-03-04 09:05:00"},
		{BadgeID: "B1", Timestamp: ""},
		{BadgeID: "B1", Timestamp: "yesterday"},
		{BadgeID: "B1", Timestamp: "2024-03-04 09:05:00", Status: "late"},
	}
	for _, c := range cases {
		_, err := ParseRow(c, ist)
		assert.True(t, errors.Is(err, ErrMalformedRow), "row %+v: %v", c, err)
	}
}

func TestReadCSVSkipsHeaderAndNumbersDataRows(t *testing.T) {
	in := strings.Join([]string{
		"badge_id,timestamp,status",
		"B1,2024-03-04 09:00:00",
		"",
		"B2,2024-03-04 09:01:00,P",
		"B3,2024-03-04 09:02:00,P,extra",
		"B4",
	}, "\n")

	rows, rejects, err := ReadCSV(strings.NewReader(in))
	require.NoError(t, err)

	require.Len(t, rows, 3)
	assert.Equal(t, 1, rows[0].Line)
	assert.Equal(t, "B1", rows[0].BadgeID)
	assert.Equal(t, 2, rows[1].Line)
	assert.Equal(t, "P", rows[1].Status)
	assert.Equal(t, 4, rows[2].Line)
	assert.Empty(t, rows[2].Timestamp)

	require.Len(t, rejects, 1)
	assert.Equal(t, 3, rejects[0].Row)
	assert.Equal(t, "B3,2024-03-04 09:02:00,P,extra", rejects[0].Raw)
}

func TestReadCSVWithoutHeader(t *testing.T) {
	rows, rejects, err := ReadCSV(strings.NewReader("B1,2024-03-04 09:00:00\nB2,2024-03-04 09:01:00\n"))
	require.NoError(t, err)
	assert.Empty(t, rejects)
	require.Len(t, rows, 2)
	assert.Equal(t, 1, rows[0].Line)
}

func TestReadCSVByteOrderMark(t *testing.T) {
	for name, in := range map[string]string{
		"header":        "\ufeffbadge_id,timestamp\nB1,2024-03-04 09:00:00\nB2,2024-03-04 09:01:00\n",
		"quoted header": "\ufeff\"badge_id\",\"timestamp\"\nB1,2024-03-04 09:00:00\nB2,2024-03-04 09:01:00\n",
		"no header":     "\ufeffB1,2024-03-04 09:00:00\nB2,2024-03-04 09:01:00\n",
	} {
		t.Run(name, func(t *testing.T) {
			rows, rejects, err := ReadCSV(strings.NewReader(in))
			require.NoError(t, err)
			assert.Empty(t, rejects)
			require.Len(t, rows, 2)
			assert.Equal(t, 1, rows[0].Line)
			assert.Equal(t, "B1", rows[0].BadgeID)
			assert.Equal(t, 2, rows[1].Line)
			assert.Equal(t, "B2", rows[1].BadgeID)
		})
	}
}

func TestReadCSVUTF16WithBOM(t *testing.T) {
	text := "badge_id,timestamp\nB1,2024-03-04 09:00:00\n"
	enc := []byte{0xFF, 0xFE}
	for _, r := range text {
		enc = append(enc, byte(r), 0)
	}
	rows, rejects, err := ReadCSV(bytes.NewReader(enc))
	require.NoError(t, err)
	assert.Empty(t, rejects)
	require.Len(t, rows, 1)
	assert.Equal(t, "B1", rows[0].BadgeID)
	assert.Equal(t, "2024-03-04 09:00:00", rows[0].Timestamp)
}

func TestMergeRejectionsOrdersByRow(t *testing.T) {
	got := mergeRejections(
		[]Rejection{{Row: 2}, {Row: 5}},
		[]Rejection{{Row: 1}, {Row: 3}, {Row: 6}},
	)
	rows := make([]int, len(got))
	for i, r := range got {
		rows[i] = r.Row
	}
	assert.Equal(t, []int{1, 2, 3, 5, 6}, rows)
}
