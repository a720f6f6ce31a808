package services

import (
	"context"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/miekg/dns"
)

// DefaultResolver is used when the system resolver config cannot be read.
const DefaultResolver = "1.1.1.1:53"

// MXVerifier checks whether an email domain publishes MX records. Answers
// are cached per domain for the verifier's lifetime.
type MXVerifier struct {
	client *dns.Client
	server string

	mu    sync.Mutex
	cache map[string]bool
}

// NewMXVerifier creates a verifier querying server ("host:port"). An empty
// server uses the first nameserver from /etc/resolv.conf.
func NewMXVerifier(server string, timeout time.Duration) *MXVerifier {
	if server == "" {
		server = systemResolver()
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &MXVerifier{
		client: &dns.Client{Timeout: timeout},
		server: server,
		cache:  make(map[string]bool),
	}
}

func systemResolver() string {
	conf, err := dns.ClientConfigFromFile("/etc/resolv.conf")
	if err != nil || len(conf.Servers) == 0 {
		return DefaultResolver
	}
	return net.JoinHostPort(conf.Servers[0], conf.Port)
}

// HasMX reports whether the domain of email has at least one MX record. A
// lookup failure is returned as an error so callers can keep the address.
func (v *MXVerifier) HasMX(ctx context.Context, email string) (bool, error) {
	at := strings.LastIndex(email, "@")
	if at < 0 || at == len(email)-1 {
		return false, nil
	}
	domain := strings.ToLower(email[at+1:])

	v.mu.Lock()
	cached, ok := v.cache[domain]
	v.mu.Unlock()
	if ok {
		return cached, nil
	}

	msg := new(dns.Msg)
	msg.SetQuestion(dns.Fqdn(domain), dns.TypeMX)
	msg.RecursionDesired = true

	resp, _, err := v.client.ExchangeContext(ctx, msg, v.server)
	if err != nil {
		return false, fmt.Errorf("mx lookup %s: %w", domain, err)
	}

	var found bool
	switch resp.Rcode {
	case dns.RcodeSuccess:
		for _, rr := range resp.Answer {
			if _, isMX := rr.(*dns.MX); isMX {
				found = true
				break
			}
		}
	case dns.RcodeNameError:
		found = false
	default:
		return false, fmt.Errorf("mx lookup %s: rcode %s", domain, dns.RcodeToString[resp.Rcode])
	}

	v.mu.Lock()
	v.cache[domain] = found
	v.mu.Unlock()
	return found, nil
}
