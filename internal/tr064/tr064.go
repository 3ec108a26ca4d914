// Package tr064 implements the slice of the TR-064 SOAP protocol needed to
// supervise a FRITZ!Box-class router: device description discovery, digest
// authenticated action calls, and typed wrappers for the WAN and
// DeviceConfig actions.
package tr064

import (
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"sort"
	"time"
)

const (
	descriptionPath = "/tr64desc.xml"

	// deviceConfigService hosts the Reboot action on every FRITZ!OS device.
	deviceConfigService = "DeviceConfig1"
)

// Config locates and authenticates the router's TR-064 endpoint.
type Config struct {
	Host     string
	Port     int
	User     string
	Password string
	Timeout  time.Duration
}

// Client is a live control-channel session. It is created by Connect and
// bound to the services discovered at that moment. A Client is not safe for
// concurrent use; the watchdog owns it exclusively and replaces it after a
// reboot or transport failure.
type Client struct {
	cfg        Config
	base       string
	httpClient *http.Client
	services   map[string]Service

	auth *challenge
	nc   int
}

// Connect fetches and parses the device description and returns a session
// bound to the discovered services. TR-064 speaks plain HTTP on the LAN,
// conventionally on port 49000.
func Connect(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	c := &Client{
		cfg:        cfg,
		base:       fmt.Sprintf("http://%s:%d", cfg.Host, cfg.Port),
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+descriptionPath, nil)
	if err != nil {
		return nil, fmt.Errorf("create description request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch device description: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch device description: HTTP %d", resp.StatusCode)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read device description: %w", err)
	}

	services, err := parseDescription(data)
	if err != nil {
		return nil, err
	}
	c.services = services
	return c, nil
}

// Services lists the discovered service names, sorted.
func (c *Client) Services() []string {
	names := make([]string, 0, len(c.services))
	for name := range c.services {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// HasService reports whether the device description listed name.
func (c *Client) HasService(name string) bool {
	_, ok := c.services[name]
	return ok
}

// Call invokes action on the named service. Response arguments are decoded
// into result when it is non-nil. SOAP faults come back as *Fault.
func (c *Client) Call(ctx context.Context, service, action string, args map[string]string, result any) error {
	svc, ok := c.services[service]
	if !ok {
		return fmt.Errorf("service %s not in device description", service)
	}

	body := soapEnvelope(svc.Type, action, args)
	resp, err := c.post(ctx, svc, action, body)
	if err != nil {
		return fmt.Errorf("%s.%s: %w", service, action, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%s.%s: read response: %w", service, action, err)
	}
	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return fmt.Errorf("%s.%s: authentication rejected (HTTP 401)", service, action)
	case resp.StatusCode == http.StatusInternalServerError:
		if f := parseFault(data); f != nil {
			return fmt.Errorf("%s.%s: %w", service, action, f)
		}
		fallthrough
	case resp.StatusCode != http.StatusOK:
		return fmt.Errorf("%s.%s: HTTP %d: %s", service, action, resp.StatusCode, bytes.TrimSpace(data))
	}

	if result != nil {
		if err := xml.Unmarshal(data, result); err != nil {
			return fmt.Errorf("%s.%s: parse response: %w", service, action, err)
		}
	}
	return nil
}

// post sends the SOAP request, answering a digest challenge once. The parsed
// challenge is kept for subsequent calls and refreshed when the router
// rejects a stale nonce.
func (c *Client) post(ctx context.Context, svc Service, action string, body []byte) (*http.Response, error) {
	var resp *http.Response
	for attempt := 0; attempt < 2; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+svc.ControlURL, bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("Content-Type", `text/xml; charset="utf-8"`)
		req.Header.Set("SOAPACTION", `"`+svc.Type+"#"+action+`"`)
		if c.auth != nil {
			c.nc++
			req.Header.Set("Authorization",
				c.auth.authorize(http.MethodPost, svc.ControlURL, c.cfg.User, c.cfg.Password, c.nc, newCnonce()))
		}

		resp, err = c.httpClient.Do(req)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode == http.StatusUnauthorized && attempt == 0 {
			header := resp.Header.Get("WWW-Authenticate")
			resp.Body.Close()
			ch, err := parseChallenge(header)
			if err != nil {
				return nil, err
			}
			c.auth = &ch
			c.nc = 0
			continue
		}
		break
	}
	return resp, nil
}

// soapEnvelope renders a SOAP 1.1 request for one action. Arguments are
// written in sorted order.
func soapEnvelope(serviceType, action string, args map[string]string) []byte {
	var b bytes.Buffer
	b.WriteString(xml.Header)
	b.WriteString(`<s:Envelope xmlns:s="http://schemas.xmlsoap.org/soap/envelope/"` +
		` s:encodingStyle="http://schemas.xmlsoap.org/soap/encoding/"><s:Body>`)
	fmt.Fprintf(&b, `<u:%s xmlns:u=%q>`, action, serviceType)

	keys := make([]string, 0, len(args))
	for k := range args {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		var v bytes.Buffer
		xml.EscapeText(&v, []byte(args[k]))
		fmt.Fprintf(&b, "<%s>%s</%s>", k, v.String(), k)
	}

	fmt.Fprintf(&b, `</u:%s>`, action)
	b.WriteString(`</s:Body></s:Envelope>`)
	return b.Bytes()
}

// ExternalIPAddress returns the current public IPv4 of the given WAN
// service. The router reports "0.0.0.0" while the WAN session is down.
func (c *Client) ExternalIPAddress(ctx context.Context, service string) (string, error) {
	var r struct {
		Address string `xml:"Body>GetExternalIPAddressResponse>NewExternalIPAddress"`
	}
	if err := c.Call(ctx, service, "GetExternalIPAddress", nil, &r); err != nil {
		return "", err
	}
	return r.Address, nil
}

// ForceTermination drops the WAN session on the given service; the router
// re-dials on its own. The control channel stays up.
func (c *Client) ForceTermination(ctx context.Context, service string) error {
	return c.Call(ctx, service, "ForceTermination", nil, nil)
}

// Reboot restarts the device. The control channel dies with it; callers
// must establish a fresh session afterwards.
func (c *Client) Reboot(ctx context.Context) error {
	return c.Call(ctx, deviceConfigService, "Reboot", nil, nil)
}
