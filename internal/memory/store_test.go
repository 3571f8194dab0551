package memory

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "memories.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestQuery_Matches(t *testing.T) {
	t.Parallel()
	path := writeFile(t, `[
		{"key": "deploy", "value": "Deployed the Registry contract"},
		{"key": "notes", "value": "nothing here"},
		{"key": "audit", "value": "registry audit scheduled"}
	]`)

	res, err := NewStore(path).Query(context.Background(), "REGISTRY")
	require.NoError(t, err)

	assert.Equal(t, "REGISTRY", res.Query)
	assert.Equal(t, 2, res.Count)
	assert.Equal(t, SourceNemp, res.Source)
	assert.Empty(t, res.Message)
	require.Len(t, res.Results, 2)
	assert.JSONEq(t, `{"key":"deploy","value":"Deployed the Registry contract"}`, string(res.Results[0]))
	assert.JSONEq(t, `{"key":"audit","value":"registry audit scheduled"}`, string(res.Results[1]))
}

func TestQuery_MatchesKeysAndFormatting(t *testing.T) {
	t.Parallel()
	path := writeFile(t, `[{"topic" :  "x"}]`)

	res, err := NewStore(path).Query(context.Background(), `"topic":"x"`)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Count)
}

func TestQuery_CapsResults(t *testing.T) {
	t.Parallel()
	records := make([]map[string]int, 8)
	for i := range records {
		records[i] = map[string]int{"match": i}
	}
	data, err := json.Marshal(records)
	require.NoError(t, err)
	path := writeFile(t, string(data))

	res, err := NewStore(path).Query(context.Background(), "match")
	require.NoError(t, err)
	assert.Equal(t, MaxResults, res.Count)
	assert.JSONEq(t, `{"match":0}`, string(res.Results[0]))
	assert.JSONEq(t, `{"match":4}`, string(res.Results[4]))
}

func TestQuery_NoMatch(t *testing.T) {
	t.Parallel()
	path := writeFile(t, `[{"a":"b"}]`)

	res, err := NewStore(path).Query(context.Background(), "zzz")
	require.NoError(t, err)
	assert.Equal(t, 0, res.Count)
	assert.NotNil(t, res.Results)
	assert.Equal(t, NoMatchMessage, res.Message)
	assert.Equal(t, SourceNemp, res.Source)

	out, err := json.Marshal(res)
	require.NoError(t, err)
	assert.JSONEq(t, `{"query":"zzz","results":[],"count":0,"message":"No matching memories found","source":"nemp"}`, string(out))
}

func TestQuery_MissingFile(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "absent.json")

	res, err := NewStore(path).Query(context.Background(), "anything")
	require.NoError(t, err)
	assert.Equal(t, SourceLocal, res.Source)
	assert.Equal(t, NoMatchMessage, res.Message)
	assert.Empty(t, res.Results)
}

func TestQuery_ObjectDocument(t *testing.T) {
	t.Parallel()
	path := writeFile(t, `{"b": {"v": "first hit"}, "a": {"v": "second hit"}, "c": {"v": "miss"}}`)

	res, err := NewStore(path).Query(context.Background(), "hit")
	require.NoError(t, err)
	require.Equal(t, 2, res.Count)
	assert.Equal(t, `{"v":"first hit"}`, string(res.Results[0]))
	assert.Equal(t, `{"v":"second hit"}`, string(res.Results[1]))
}

func TestQuery_MatchesDecodedEscapes(t *testing.T) {
	t.Parallel()
	path := writeFile(t, `[{"note": "caf\u00e9 <b>&amp;</b>", "n": 1.50}]`)

	store := NewStore(path)
	res, err := store.Query(context.Background(), "CAFÉ")
	require.NoError(t, err)
	require.Equal(t, 1, res.Count)
	assert.Equal(t, `{"note":"café <b>&amp;</b>","n":1.5}`, string(res.Results[0]))

	res, err = store.Query(context.Background(), "<b>")
	require.NoError(t, err)
	assert.Equal(t, 1, res.Count)
}

func TestCanonicalize(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want string
	}{
		{in: `{ "z" : 1, "a" : [ true, null, "x" ] }`, want: `{"z":1,"a":[true,null,"x"]}`},
		{in: `"\u00e9\n"`, want: `"é\n"`},
		{in: `[1.0, 1e2, -0.0, 2.5e-7, 1e21]`, want: `[1,100,0,2.5e-7,1e+21]`},
		{in: `{"nested":{"a":{},"b":[]}}`, want: `{"nested":{"a":{},"b":[]}}`},
		{in: `123456789012345678901234567890`, want: `1.2345678901234568e+29`},
	}
	for _, tt := range tests {
		got, err := canonicalize([]byte(tt.in))
		require.NoError(t, err)
		assert.Equalf(t, tt.want, string(got), "canonicalize(%s)", tt.in)
	}
}

func TestQuery_Malformed(t *testing.T) {
	t.Parallel()
	for _, content := range []string{`[{"a":`, `"just a string"`, ``, `   `} {
		path := writeFile(t, content)
		_, err := NewStore(path).Query(context.Background(), "a")
		assert.Error(t, err, "content %q", content)
	}
}

func TestQuery_ReadError(t *testing.T) {
	t.Parallel()
	s := NewStore("memories.json")
	s.readFile = func(string) ([]byte, error) { return nil, errors.New("permission denied") }

	_, err := s.Query(context.Background(), "a")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read memory file")
}

func TestQuery_CancelledContext(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewStore(writeFile(t, `[]`)).Query(ctx, "a")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNewStore_DefaultPath(t *testing.T) {
	t.Parallel()
	assert.Equal(t, DefaultPath, NewStore("").Path())
}
