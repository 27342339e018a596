package core

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRegistryPackageReleased(t *testing.T) {
	var pkg RegistryPackage
	require.NoError(t, json.Unmarshal([]byte(`{
		"name": "htl",
		"dist-tags": {"latest": "0.3.1"},
		"versions": {"0.3.0": {}, "0.3.1": {}, "0.4.0-alpha": {}},
		"time": {"0.3.0": "2021-01-01T00:00:00.000Z", "0.3.1": "2021-05-01T00:00:00.000Z", "0.4.0-alpha": "2022-01-01T00:00:00Z"}
	}`), &pkg))

	require.Equal(t, "0.3.1", pkg.Latest())
	require.Equal(t, time.Date(2021, 5, 1, 0, 0, 0, 0, time.UTC), *pkg.PublishedAt("0.3.1"))
	require.Nil(t, pkg.PublishedAt("9.9.9"))

	versions := pkg.Released(map[string]int64{"0.3.1": 12})
	require.Len(t, versions, 2)
	require.Equal(t, "0.3.0", versions[0].Version)
	require.Zero(t, versions[0].Downloads)
	require.Equal(t, int64(12), versions[1].Downloads)
}

func TestIsPrerelease(t *testing.T) {
	require.True(t, IsPrerelease("7.0.0-beta.1"))
	require.False(t, IsPrerelease("7.0.0"))
}

func TestDownloadPointJSON(t *testing.T) {
	day := time.Date(2021, 1, 5, 0, 0, 0, 0, time.UTC)

	missing, err := json.Marshal(DownloadPoint{Date: day, Missing: true})
	require.NoError(t, err)
	require.JSONEq(t, `{"date":"2021-01-05","value":null}`, string(missing))

	present, err := json.Marshal(DownloadPoint{Date: day, Value: 42})
	require.NoError(t, err)
	require.JSONEq(t, `{"date":"2021-01-05","value":42}`, string(present))

	var decoded DownloadPoint
	require.NoError(t, json.Unmarshal([]byte(`{"date":"2021-01-05","value":0}`), &decoded))
	require.False(t, decoded.Missing)
	require.Equal(t, day, decoded.Date)

	require.NoError(t, json.Unmarshal([]byte(`{"date":"2021-01-05T00:00:00Z","value":3}`), &decoded))
	require.Equal(t, day, decoded.Date)
	require.Equal(t, int64(3), decoded.Value)

	require.Error(t, json.Unmarshal([]byte(`{"date":"yesterday","value":3}`), &decoded))

	require.NoError(t, json.Unmarshal(missing, &decoded))
	require.True(t, decoded.Missing)
}

func TestRateLimitStateExhausted(t *testing.T) {
	zero, some := 0, 5
	reset := time.Now()
	require.True(t, RateLimitState{Remaining: &zero, ResetAt: &reset}.Exhausted())
	require.False(t, RateLimitState{Remaining: &some, ResetAt: &reset}.Exhausted())
	require.False(t, RateLimitState{Remaining: &zero}.Exhausted())
}
