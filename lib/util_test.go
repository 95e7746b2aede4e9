package lib

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestJSONFile(t *testing.T) {
	type record struct {
		ID   VersionID `json:"id"`
		Name string    `json:"name"`
	}
	dir := t.TempDir()
	expected := record{ID: 7, Name: "seven"}
	require.NoError(t, SaveJSONToFile(expected, dir, "record.json"))
	got := record{}
	require.NoError(t, NewJSONFromFile(&got, dir, "record.json"))
	require.Equal(t, expected, got)
	// missing file
	err := NewJSONFromFile(&got, dir, "missing.json")
	require.True(t, HasCode(err, MainModule, CodeReadFile))
}

func TestUnmarshalJSONError(t *testing.T) {
	var v VersionInfo
	err := UnmarshalJSON([]byte("{not json"), &v)
	require.True(t, HasCode(err, MainModule, CodeJSONUnmarshal))
	s, e := MarshalJSONIndentString(VersionInfo{ID: 1, Committed: true})
	require.NoError(t, e)
	require.Contains(t, s, `"committed": true`)
}

func TestCatchPanic(t *testing.T) {
	require.NotPanics(t, func() {
		defer CatchPanic(NewNullLogger())
		panic("boom")
	})
}
