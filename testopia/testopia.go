// Package testopia is a thin client for the Testopia (Bugzilla test-case
// management) XML-RPC API. One client serves one build: the login session is
// established once and reused for every call, and no call is retried.
package testopia

import (
	"encoding/base64"
	"errors"

	"github.com/kolo/xmlrpc"
	"github.com/sirupsen/logrus"
)

// Config identifies a Testopia installation.
type Config struct {
	URL      string
	Username string
	Password string
	// Properties is a comma-separated list of key=value transport
	// properties (connectionTimeout, replyTimeout, basicUsername,
	// basicPassword, userAgent, gzipCompression, gzipRequesting, proxy).
	Properties string
}

// Client talks to one Testopia installation.
type Client struct {
	rpc    *xmlrpc.Client
	cfg    Config
	userID int
}

// NewClient prepares a client for the given installation. The transport is
// configured from cfg.Properties; no connection is made until Login.
func NewClient(cfg Config) (*Client, error) {
	if cfg.URL == "" {
		return nil, errors.New("missing Testopia URL")
	}
	opts, err := parseProperties(cfg.Properties)
	if err != nil {
		return nil, errors.New("invalid Testopia transport properties: " + err.Error())
	}
	rpc, err := xmlrpc.NewClient(cfg.URL, newTransport(opts))
	if err != nil {
		return nil, errors.New("failed to create Testopia XML-RPC client: " + err.Error())
	}
	return &Client{rpc: rpc, cfg: cfg}, nil
}

// Login authenticates against the server and establishes the session reused
// by every later call.
func (c *Client) Login() error {
	args := struct {
		Login    string `xmlrpc:"login"`
		Password string `xmlrpc:"password"`
	}{Login: c.cfg.Username, Password: c.cfg.Password}
	var reply struct {
		ID int `xmlrpc:"id"`
	}
	if err := c.rpc.Call("User.login", args, &reply); err != nil {
		return errors.New("Testopia login failed for user " + c.cfg.Username + ": " + err.Error())
	}
	c.userID = reply.ID
	logrus.WithField("UserID", c.userID).Debug("Logged in to Testopia")
	return nil
}

// TestRun fetches one test run by id.
func (c *Client) TestRun(runID int) (*TestRun, error) {
	var run TestRun
	if err := c.rpc.Call("TestRun.get", runID, &run); err != nil {
		return nil, errors.New("failed to get test run: " + err.Error())
	}
	return &run, nil
}

// TestCases fetches every test case of a test run.
func (c *Client) TestCases(runID int) ([]*TestCase, error) {
	var cases []TestCase
	if err := c.rpc.Call("TestRun.get_test_cases", runID, &cases); err != nil {
		return nil, errors.New("failed to get test cases: " + err.Error())
	}
	out := make([]*TestCase, 0, len(cases))
	for i := range cases {
		out = append(out, &cases[i])
	}
	return out, nil
}

// Update pushes the test case's status to the server. The call is synchronous
// and already-applied updates are never rolled back.
func (c *Client) Update(tc *TestCase) error {
	values := map[string]interface{}{
		"case_status_id": tc.StatusID,
	}
	var reply struct{}
	if err := c.rpc.Call("TestCase.update", []interface{}{tc.ID, values}, &reply); err != nil {
		return errors.New("failed to update test case: " + err.Error())
	}
	logrus.WithFields(logrus.Fields{
		"TestCase": tc.ID,
		"Status":   Status(tc.StatusID).String(),
	}).Debug("Updated test case status")
	return nil
}

// AddAttachment uploads a file to a test case.
func (c *Client) AddAttachment(caseID int, filename, mimeType string, data []byte) error {
	att := Attachment{
		FileName:    filename,
		Description: "Report attached by the build",
		MimeType:    mimeType,
		Contents:    base64.StdEncoding.EncodeToString(data),
	}
	var reply struct{}
	if err := c.rpc.Call("TestCase.add_attachment", []interface{}{caseID, att}, &reply); err != nil {
		return errors.New("failed to attach file to test case: " + err.Error())
	}
	return nil
}

// Close releases the underlying RPC connection.
func (c *Client) Close() error {
	return c.rpc.Close()
}
