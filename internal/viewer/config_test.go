package viewer

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDeepLink(t *testing.T) {
	q, err := url.ParseQuery("uri=wss%3A%2F%2Fother.test&edgeauth=tok&streamIDs=s1,%20s2,,s3&acts=0:06,1:57")
	require.NoError(t, err)

	cfg, err := ParseDeepLink(q, testConfig)
	require.NoError(t, err)

	assert.Equal(t, "wss://other.test", cfg.URI)
	assert.Equal(t, testConfig.Backend, cfg.Backend)
	assert.Equal(t, "tok", cfg.EdgeAuth)
	assert.Equal(t, []string{"s1", "s2", "s3"}, cfg.StreamIDs)
	assert.Equal(t, []string{"0:06", "1:57"}, cfg.Acts)
}

func TestParseDeepLink_FallsBackToDefaults(t *testing.T) {
	cfg, err := ParseDeepLink(url.Values{}, testConfig)
	require.NoError(t, err)
	assert.True(t, cfg.Equal(testConfig))

	cfg.StreamIDs[0] = "changed"
	assert.Equal(t, "a", testConfig.StreamIDs[0], "defaults must not be aliased")
}

func TestParseDeepLink_Invalid(t *testing.T) {
	tests := map[string]url.Values{
		"no streams":  {QueryStreamIDs: {""}},
		"bad act":     {QueryActs: {"0:06,1-57"}},
		"bad backend": {QueryBackend: {"not a url"}},
		"no backend":  {QueryBackend: {""}},
	}
	for name, q := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := ParseDeepLink(q, testConfig)
			assert.ErrorIs(t, err, ErrDeepLinkInvalid)
		})
	}
}

func TestConfiguration_Equal(t *testing.T) {
	other := testConfig
	other.Acts = []string{"0:06", "1:57"}
	assert.False(t, testConfig.Equal(other))

	other = testConfig
	other.EdgeAuth = "different"
	assert.False(t, testConfig.Equal(other))

	assert.True(t, testConfig.Equal(testConfig))
}
