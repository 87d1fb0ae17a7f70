package messaging

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/miekg/dns"
)

// ErrUndeliverableContact is returned when a contact's domain definitely
// cannot receive mail.
var ErrUndeliverableContact = errors.New("undeliverable contact")

// DefaultResolver is the local stub resolver.
const DefaultResolver = "127.0.0.53:53"

// MXChecker verifies that an email domain publishes MX records before the
// address is accepted as a verification channel. Resolver failures are logged
// and the address is accepted; only NXDOMAIN or an empty MX set reject it.
type MXChecker struct {
	resolver string
	client   *dns.Client
	log      *slog.Logger
}

func NewMXChecker(resolver string, timeout time.Duration, log *slog.Logger) *MXChecker {
	if resolver == "" {
		resolver = DefaultResolver
	}
	return &MXChecker{
		resolver: resolver,
		client:   &dns.Client{Timeout: timeout},
		log:      log,
	}
}

func (c *MXChecker) CheckEmail(ctx context.Context, address string) error {
	_, domain, ok := strings.Cut(address, "@")
	if !ok || domain == "" {
		return fmt.Errorf("%w: %q is not an email address", ErrUndeliverableContact, address)
	}

	m := new(dns.Msg)
	m.SetQuestion(dns.Fqdn(domain), dns.TypeMX)
	m.RecursionDesired = true

	in, _, err := c.client.ExchangeContext(ctx, m, c.resolver)
	if err != nil {
		c.log.Warn("MX lookup failed, accepting contact", slog.String("domain", domain), "err", err)
		return nil
	}

	switch in.Rcode {
	case dns.RcodeSuccess:
	case dns.RcodeNameError:
		return fmt.Errorf("%w: domain %s does not exist", ErrUndeliverableContact, domain)
	default:
		c.log.Warn("MX lookup returned error code, accepting contact",
			slog.String("domain", domain),
			slog.String("rcode", dns.RcodeToString[in.Rcode]))
		return nil
	}

	for _, answer := range in.Answer {
		if mx, ok := answer.(*dns.MX); ok && mx.Mx != "." {
			return nil
		}
	}
	return fmt.Errorf("%w: domain %s has no mail exchanger", ErrUndeliverableContact, domain)
}
