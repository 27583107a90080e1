package testopia

import (
	"encoding/base64"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// rpcServer serves one canned XML-RPC response and captures the request body.
func rpcServer(t *testing.T, response string) (*httptest.Server, *string) {
	t.Helper()
	var lastBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		lastBody = string(body)
		w.Header().Set("Content-Type", "text/xml")
		io.WriteString(w, response)
	}))
	t.Cleanup(srv.Close)
	return srv, &lastBody
}

func newTestClient(t *testing.T, url string) *Client {
	t.Helper()
	client, err := NewClient(Config{URL: url, Username: "jenkins", Password: "secret"})
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })
	return client
}

const loginResponse = `<?xml version="1.0"?><methodResponse><params><param><value><struct>` +
	`<member><name>id</name><value><int>42</int></value></member>` +
	`</struct></value></param></params></methodResponse>`

const faultResponse = `<?xml version="1.0"?><methodResponse><fault><value><struct>` +
	`<member><name>faultCode</name><value><int>300</int></value></member>` +
	`<member><name>faultString</name><value><string>Invalid login or password</string></value></member>` +
	`</struct></value></fault></methodResponse>`

func TestNewClientRequiresURL(t *testing.T) {
	_, err := NewClient(Config{})
	assert.ErrorContains(t, err, "missing Testopia URL")
}

func TestNewClientRejectsBadProperties(t *testing.T) {
	_, err := NewClient(Config{
		URL:        "http://testopia.example.com/xmlrpc.cgi",
		Properties: "connectionTimeout=abc",
	})
	assert.ErrorContains(t, err, "invalid Testopia transport properties")
}

func TestClientLogin(t *testing.T) {
	srv, body := rpcServer(t, loginResponse)
	client := newTestClient(t, srv.URL)

	require.NoError(t, client.Login())
	assert.Equal(t, 42, client.userID)
	assert.Contains(t, *body, "<methodName>User.login</methodName>")
	assert.Contains(t, *body, "jenkins")
	assert.Contains(t, *body, "secret")
}

func TestClientLoginFault(t *testing.T) {
	srv, _ := rpcServer(t, faultResponse)
	client := newTestClient(t, srv.URL)

	err := client.Login()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Testopia login failed for user jenkins")
	assert.Contains(t, err.Error(), "Invalid login or password")
}

func TestClientTestRun(t *testing.T) {
	response := `<?xml version="1.0"?><methodResponse><params><param><value><struct>` +
		`<member><name>run_id</name><value><int>15</int></value></member>` +
		`<member><name>plan_id</name><value><int>4</int></value></member>` +
		`<member><name>build_id</name><value><int>9</int></value></member>` +
		`<member><name>summary</name><value><string>Sprint run</string></value></member>` +
		`<member><name>notes</name><value><string>nightly</string></value></member>` +
		`</struct></value></param></params></methodResponse>`
	srv, body := rpcServer(t, response)
	client := newTestClient(t, srv.URL)

	run, err := client.TestRun(15)
	require.NoError(t, err)
	assert.Equal(t, &TestRun{ID: 15, PlanID: 4, BuildID: 9, Summary: "Sprint run", Notes: "nightly"}, run)
	assert.Contains(t, *body, "<methodName>TestRun.get</methodName>")
	assert.Contains(t, *body, "<int>15</int>")
}

func TestClientTestCases(t *testing.T) {
	response := `<?xml version="1.0"?><methodResponse><params><param><value><array><data>` +
		`<value><struct>` +
		`<member><name>case_id</name><value><int>101</int></value></member>` +
		`<member><name>summary</name><value><string>Login works</string></value></member>` +
		`<member><name>alias</name><value><string>LoginTest</string></value></member>` +
		`<member><name>isautomated</name><value><int>1</int></value></member>` +
		`<member><name>case_status_id</name><value><int>2</int></value></member>` +
		`</struct></value>` +
		`<value><struct>` +
		`<member><name>case_id</name><value><int>102</int></value></member>` +
		`<member><name>summary</name><value><string>Manual check</string></value></member>` +
		`<member><name>isautomated</name><value><int>0</int></value></member>` +
		`</struct></value>` +
		`</data></array></value></param></params></methodResponse>`
	srv, body := rpcServer(t, response)
	client := newTestClient(t, srv.URL)

	cases, err := client.TestCases(15)
	require.NoError(t, err)
	require.Len(t, cases, 2)
	assert.Equal(t, 101, cases[0].ID)
	assert.Equal(t, "LoginTest", cases[0].Alias)
	assert.Equal(t, 1, cases[0].Automated)
	assert.Equal(t, int(StatusPassed), cases[0].StatusID)
	assert.Equal(t, 102, cases[1].ID)
	assert.Equal(t, 0, cases[1].Automated)
	assert.Contains(t, *body, "<methodName>TestRun.get_test_cases</methodName>")
}

func TestClientUpdate(t *testing.T) {
	response := `<?xml version="1.0"?><methodResponse><params><param><value><struct>` +
		`</struct></value></param></params></methodResponse>`
	srv, body := rpcServer(t, response)
	client := newTestClient(t, srv.URL)

	tc := &TestCase{ID: 101, StatusID: int(StatusFailed)}
	require.NoError(t, client.Update(tc))
	assert.Contains(t, *body, "<methodName>TestCase.update</methodName>")
	assert.Contains(t, *body, "<int>101</int>")
	assert.Contains(t, *body, "case_status_id")
	assert.Contains(t, *body, "<int>3</int>")
}

func TestClientUpdateFault(t *testing.T) {
	srv, _ := rpcServer(t, faultResponse)
	client := newTestClient(t, srv.URL)

	err := client.Update(&TestCase{ID: 101, StatusID: int(StatusPassed)})
	assert.ErrorContains(t, err, "failed to update test case")
}

func TestClientAddAttachment(t *testing.T) {
	response := `<?xml version="1.0"?><methodResponse><params><param><value><struct>` +
		`</struct></value></param></params></methodResponse>`
	srv, body := rpcServer(t, response)
	client := newTestClient(t, srv.URL)

	data := []byte("<testng-results/>")
	require.NoError(t, client.AddAttachment(101, "testng-results.xml", "text/xml", data))
	assert.Contains(t, *body, "<methodName>TestCase.add_attachment</methodName>")
	assert.Contains(t, *body, "testng-results.xml")
	assert.Contains(t, *body, base64.StdEncoding.EncodeToString(data))
}

func TestStatusString(t *testing.T) {
	tests := []struct {
		status   Status
		expected string
	}{
		{StatusIdle, "IDLE"},
		{StatusPassed, "PASSED"},
		{StatusFailed, "FAILED"},
		{StatusRunning, "RUNNING"},
		{StatusPaused, "PAUSED"},
		{StatusBlocked, "BLOCKED"},
		{StatusError, "ERROR"},
		{Status(99), "UNKNOWN"},
	}
	for _, tc := range tests {
		if got := tc.status.String(); got != tc.expected {
			t.Errorf("Status(%d).String() = %q, want %q", int(tc.status), got, tc.expected)
		}
	}
}
