package dnsproof

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/miekg/dns"
)

const (
	DefaultDoHURL  = "https://cloudflare-dns.com/dns-query"
	dnsMessageType = "application/dns-message"
	maxMessageSize = 65535
)

// Resolver is the transport the checker and prover query through.
type Resolver interface {
	Query(ctx context.Context, name string, qtype uint16, dnssec bool) (*dns.Msg, error)
}

// DoHClient speaks RFC 8484 DNS-over-HTTPS using GET requests.
type DoHClient struct {
	endpoint string
	http     *http.Client
}

func NewDoHClient(endpoint string, timeout time.Duration) *DoHClient {
	if endpoint == "" {
		endpoint = DefaultDoHURL
	}
	return &DoHClient{
		endpoint: endpoint,
		http:     &http.Client{Timeout: timeout},
	}
}

func (c *DoHClient) Query(ctx context.Context, name string, qtype uint16, dnssec bool) (*dns.Msg, error) {
	m := new(dns.Msg)
	m.SetQuestion(dns.Fqdn(name), qtype)
	m.Id = 0
	if dnssec {
		m.SetEdns0(4096, true)
	}
	packed, err := m.Pack()
	if err != nil {
		return nil, fmt.Errorf("pack query: %w", err)
	}

	u, err := url.Parse(c.endpoint)
	if err != nil {
		return nil, fmt.Errorf("invalid DoH endpoint: %w", err)
	}
	q := u.Query()
	q.Set("dns", base64.RawURLEncoding.EncodeToString(packed))
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", dnsMessageType)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("DoH request for %s: %w", name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("DoH request for %s: unexpected status %s", name, resp.Status)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxMessageSize))
	if err != nil {
		return nil, fmt.Errorf("read DoH response: %w", err)
	}

	out := new(dns.Msg)
	if err := out.Unpack(body); err != nil {
		return nil, fmt.Errorf("decode DoH response: %w", err)
	}
	return out, nil
}
