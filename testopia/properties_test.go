package testopia

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseProperties(t *testing.T) {
	tests := []struct {
		name       string
		properties string
		expected   transportOptions
		err        string
	}{
		{
			name:       "Empty",
			properties: "",
			expected:   transportOptions{},
		},
		{
			name:       "Timeouts",
			properties: "connectionTimeout=5000,replyTimeout=30000",
			expected: transportOptions{
				connectTimeout: 5 * time.Second,
				replyTimeout:   30 * time.Second,
			},
		},
		{
			name:       "LegacyPrefixStripped",
			properties: "xmlrpc.connectionTimeout=1000,xmlrpc.userAgent=jenkins-testopia",
			expected: transportOptions{
				connectTimeout: time.Second,
				userAgent:      "jenkins-testopia",
			},
		},
		{
			name:       "BasicAuthAndCompression",
			properties: "basicUsername=proxyuser,basicPassword=proxypass,gzipRequesting=true",
			expected: transportOptions{
				basicUsername:  "proxyuser",
				basicPassword:  "proxypass",
				gzipRequesting: true,
			},
		},
		{
			name:       "MalformedEntrySkipped",
			properties: "nonsense,basicUsername=proxyuser",
			expected:   transportOptions{basicUsername: "proxyuser"},
		},
		{
			name:       "UnknownKeyIgnored",
			properties: "encoding=UTF-8,userAgent=agent",
			expected:   transportOptions{userAgent: "agent"},
		},
		{
			name:       "WhitespaceTolerated",
			properties: " connectionTimeout = 250 , userAgent = agent ",
			expected: transportOptions{
				connectTimeout: 250 * time.Millisecond,
				userAgent:      "agent",
			},
		},
		{
			name:       "InvalidTimeout",
			properties: "connectionTimeout=abc",
			err:        "invalid connectionTimeout value",
		},
		{
			name:       "InvalidReplyTimeout",
			properties: "replyTimeout=xyz",
			err:        "invalid replyTimeout value",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			opts, err := parseProperties(tc.properties)

			if tc.err != "" {
				assert.ErrorContains(t, err, tc.err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.expected, opts)
		})
	}
}

func TestParsePropertiesProxy(t *testing.T) {
	opts, err := parseProperties("proxy=http://proxy.example.com:3128")
	require.NoError(t, err)
	require.NotNil(t, opts.proxy)
	assert.Equal(t, "proxy.example.com:3128", opts.proxy.Host)
}

func TestNewTransportPlain(t *testing.T) {
	rt := newTransport(transportOptions{})
	_, ok := rt.(*http.Transport)
	assert.True(t, ok, "plain options should not be wrapped")
}

func TestNewTransportAddsHeaders(t *testing.T) {
	rt := newTransport(transportOptions{
		basicUsername: "proxyuser",
		basicPassword: "proxypass",
		userAgent:     "jenkins-testopia",
	})
	ht, ok := rt.(*headerTransport)
	require.True(t, ok, "auth options should wrap the transport")

	req, err := http.NewRequest(http.MethodPost, "http://testopia.example.com/xmlrpc.cgi", nil)
	require.NoError(t, err)

	// Capture the decorated request without hitting the network.
	var seen *http.Request
	ht.base = roundTripperFunc(func(r *http.Request) (*http.Response, error) {
		seen = r
		return nil, http.ErrUseLastResponse
	})
	_, _ = ht.RoundTrip(req)

	require.NotNil(t, seen)
	user, pass, ok := seen.BasicAuth()
	require.True(t, ok)
	assert.Equal(t, "proxyuser", user)
	assert.Equal(t, "proxypass", pass)
	assert.Equal(t, "jenkins-testopia", seen.Header.Get("User-Agent"))
	// The original request is left untouched.
	assert.Empty(t, req.Header.Get("Authorization"))
}

type roundTripperFunc func(*http.Request) (*http.Response, error)

func (f roundTripperFunc) RoundTrip(r *http.Request) (*http.Response, error) {
	return f(r)
}
