package dnsproof

import (
	"context"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/miekg/dns"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDoHClient_Query(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "application/dns-message", r.Header.Get("Accept"))

		wire, err := base64.RawURLEncoding.DecodeString(r.URL.Query().Get("dns"))
		require.NoError(t, err)
		req := new(dns.Msg)
		require.NoError(t, req.Unpack(wire))

		require.Len(t, req.Question, 1)
		assert.Equal(t, "_ens.foo.com.", req.Question[0].Name)
		assert.Equal(t, dns.TypeTXT, req.Question[0].Qtype)
		assert.True(t, req.RecursionDesired)
		require.NotNil(t, req.IsEdns0())
		assert.True(t, req.IsEdns0().Do())

		reply := new(dns.Msg)
		reply.SetReply(req)
		txt, _ := dns.NewRR(`_ens.foo.com. 300 IN TXT "a=0x1111111111111111111111111111111111111111"`)
		reply.Answer = append(reply.Answer, txt)
		out, err := reply.Pack()
		require.NoError(t, err)
		w.Header().Set("Content-Type", "application/dns-message")
		_, _ = w.Write(out)
	}))
	defer srv.Close()

	c := NewDoHClient(srv.URL+"/dns-query", 5*time.Second)
	msg, err := c.Query(context.Background(), "_ens.foo.com", dns.TypeTXT, true)
	require.NoError(t, err)

	addr, ok := ExtractOwnerAddress(msg.Answer)
	require.True(t, ok)
	assert.Equal(t, "0x1111111111111111111111111111111111111111", addr)
}

func TestDoHClient_BadStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusBadGateway)
	}))
	defer srv.Close()

	c := NewDoHClient(srv.URL, time.Second)
	_, err := c.Query(context.Background(), "foo.com", dns.TypeTXT, false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
}

func TestDoHClient_Garbage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte{0x01})
	}))
	defer srv.Close()

	c := NewDoHClient(srv.URL, time.Second)
	_, err := c.Query(context.Background(), "foo.com", dns.TypeTXT, false)
	assert.Error(t, err)
}
