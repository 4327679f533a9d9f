package obsfile

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseTypesValues(t *testing.T) {
	fields, err := Parse("id:IDS60901\n" +
		"name:Adelaide (West Terrace / ngayirdapira)\n" +
		"air_temp:13.3\n" +
		"apparent_t:9\n" +
		"wind_spd_kt: 15\n" +
		"stale:false\n")
	require.NoError(t, err)

	require.Equal(t, "IDS60901", fields["id"])
	require.Equal(t, "Adelaide (West Terrace / ngayirdapira)", fields["name"])
	require.Equal(t, 13.3, fields["air_temp"])
	require.Equal(t, int64(9), fields["apparent_t"])
	require.Equal(t, int64(15), fields["wind_spd_kt"])
	require.Equal(t, false, fields["stale"])
}

func TestParseSkipsBlankLines(t *testing.T) {
	fields, err := Parse("id:X\r\n\r\nt:1\r\n")
	require.NoError(t, err)
	require.Len(t, fields, 2)
}

func TestParseRejectsBadLine(t *testing.T) {
	_, err := Parse("id:X\nno separator here\n")
	require.Error(t, err)
}

func TestParseRejectsEmptyInput(t *testing.T) {
	_, err := Parse("\n\n")
	require.Error(t, err)
}

func TestRender(t *testing.T) {
	out := Render(map[string]interface{}{
		"id":       "IDS60901",
		"air_temp": 13.3,
		"stale":    false,
	})
	require.Equal(t, "air_temp: 13.3\nid: \"IDS60901\"\nstale: false\n", out)
}
