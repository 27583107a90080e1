package testopia

import (
	"errors"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// transportOptions holds the connection tuning parsed from the installation's
// comma-separated key=value properties string.
type transportOptions struct {
	connectTimeout  time.Duration
	replyTimeout    time.Duration
	basicUsername   string
	basicPassword   string
	userAgent       string
	gzipCompression bool
	gzipRequesting  bool
	proxy           *url.URL
}

// parseProperties parses a comma-separated list of key=value transport
// properties. Keys may carry the legacy "xmlrpc." prefix. Entries that are not
// in key=value form are skipped; unknown keys are logged and ignored.
func parseProperties(properties string) (transportOptions, error) {
	var opts transportOptions
	if strings.TrimSpace(properties) == "" {
		return opts, nil
	}
	for _, entry := range strings.Split(properties, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		key, value, ok := strings.Cut(entry, "=")
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)
		if !ok || key == "" || value == "" {
			logrus.WithField("Entry", entry).Warn("Skipping malformed transport property, expected key=value")
			continue
		}
		key = strings.TrimPrefix(key, "xmlrpc.")
		if strings.Contains(key, "Password") {
			logrus.Infof("Setting transport property %s=********", key)
		} else {
			logrus.Infof("Setting transport property %s=%s", key, value)
		}
		if err := opts.set(key, value); err != nil {
			return transportOptions{}, err
		}
	}
	return opts, nil
}

func (o *transportOptions) set(key, value string) error {
	switch key {
	case "connectionTimeout":
		ms, err := strconv.Atoi(value)
		if err != nil {
			return errors.New("invalid connectionTimeout value: " + value)
		}
		o.connectTimeout = time.Duration(ms) * time.Millisecond
	case "replyTimeout":
		ms, err := strconv.Atoi(value)
		if err != nil {
			return errors.New("invalid replyTimeout value: " + value)
		}
		o.replyTimeout = time.Duration(ms) * time.Millisecond
	case "basicUsername":
		o.basicUsername = value
	case "basicPassword":
		o.basicPassword = value
	case "userAgent":
		o.userAgent = value
	case "gzipCompression":
		o.gzipCompression = value == "true"
	case "gzipRequesting":
		o.gzipRequesting = value == "true"
	case "proxy":
		u, err := url.Parse(value)
		if err != nil {
			return errors.New("invalid proxy URL: " + value)
		}
		o.proxy = u
	default:
		logrus.WithField("Key", key).Warn("Ignoring unknown transport property")
	}
	return nil
}

// newTransport builds the HTTP round tripper used by the XML-RPC client.
func newTransport(opts transportOptions) http.RoundTripper {
	dialer := &net.Dialer{Timeout: opts.connectTimeout}
	base := &http.Transport{
		DialContext:           dialer.DialContext,
		ResponseHeaderTimeout: opts.replyTimeout,
		DisableCompression:    !(opts.gzipCompression || opts.gzipRequesting),
	}
	if opts.proxy != nil {
		base.Proxy = http.ProxyURL(opts.proxy)
	}
	if opts.basicUsername == "" && opts.userAgent == "" {
		return base
	}
	return &headerTransport{base: base, opts: opts}
}

// headerTransport decorates every request with basic-auth credentials and a
// custom user agent.
type headerTransport struct {
	base http.RoundTripper
	opts transportOptions
}

func (t *headerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	r := req.Clone(req.Context())
	if t.opts.basicUsername != "" {
		r.SetBasicAuth(t.opts.basicUsername, t.opts.basicPassword)
	}
	if t.opts.userAgent != "" {
		r.Header.Set("User-Agent", t.opts.userAgent)
	}
	return t.base.RoundTrip(r)
}
