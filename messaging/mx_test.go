package messaging

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/miekg/dns"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startDNS(t *testing.T) string {
	t.Helper()

	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)

	handler := dns.HandlerFunc(func(w dns.ResponseWriter, r *dns.Msg) {
		m := new(dns.Msg)
		m.SetReply(r)
		switch r.Question[0].Name {
		case "example.com.":
			m.Answer = append(m.Answer, &dns.MX{
				Hdr:        dns.RR_Header{Name: "example.com.", Rrtype: dns.TypeMX, Class: dns.ClassINET, Ttl: 60},
				Preference: 10,
				Mx:         "mail.example.com.",
			})
		case "nomail.example.":
			m.Answer = append(m.Answer, &dns.MX{
				Hdr: dns.RR_Header{Name: "nomail.example.", Rrtype: dns.TypeMX, Class: dns.ClassINET, Ttl: 60},
				Mx:  ".",
			})
		case "broken.example.":
			m.Rcode = dns.RcodeServerFailure
		default:
			m.Rcode = dns.RcodeNameError
		}
		w.WriteMsg(m)
	})

	started := make(chan struct{})
	srv := &dns.Server{PacketConn: pc, Handler: handler, NotifyStartedFunc: func() { close(started) }}
	go srv.ActivateAndServe()
	<-started
	t.Cleanup(func() { srv.Shutdown() })

	return pc.LocalAddr().String()
}

func TestMXChecker(t *testing.T) {
	ctx := context.Background()
	checker := NewMXChecker(startDNS(t), time.Second, testLogger())

	assert.NoError(t, checker.CheckEmail(ctx, "owner@example.com"))
	assert.NoError(t, checker.CheckEmail(ctx, "owner@broken.example"))
	assert.ErrorIs(t, checker.CheckEmail(ctx, "owner@missing.example"), ErrUndeliverableContact)
	assert.ErrorIs(t, checker.CheckEmail(ctx, "owner@nomail.example"), ErrUndeliverableContact)
	assert.ErrorIs(t, checker.CheckEmail(ctx, "not-an-address"), ErrUndeliverableContact)
}

func TestMXChecker_UnreachableResolverAccepts(t *testing.T) {
	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := pc.LocalAddr().String()
	require.NoError(t, pc.Close())

	checker := NewMXChecker(addr, 200*time.Millisecond, testLogger())
	assert.NoError(t, checker.CheckEmail(context.Background(), "owner@example.com"))
}
