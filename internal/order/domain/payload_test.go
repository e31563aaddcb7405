package domain

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeDomainName(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"Example.COM", "example.com"},
		{" shop.example.org. ", "shop.example.org"},
		{"bücher.de", "xn--bcher-kva.de"},
		{"ord-dup.com", "ord-dup.com"},
	}
	for _, tc := range cases {
		got, err := NormalizeDomainName(tc.in)
		require.NoError(t, err, tc.in)
		assert.Equal(t, tc.want, got)
	}
}

func TestNormalizeDomainNameRejects(t *testing.T) {
	for _, in := range []string{
		"",
		".",
		"localhost",
		"ord_dup.com",
		"a..com",
		strings.Repeat("a", 64) + ".com",
		strings.Repeat("abcdefghi.", 26) + "com",
	} {
		_, err := NormalizeDomainName(in)
		assert.ErrorIs(t, err, ErrInvalidDomainName, "%q", in)
	}
}

func TestServicePayloadCustomNameservers(t *testing.T) {
	p := ServicePayload{
		DomainName:     "example.com",
		NameserverMode: NameserverCustom,
		Nameservers:    []string{"NS1.Example.net", "ns2.example.net."},
	}
	out, err := p.Normalize(KindDomainRegistration)
	require.NoError(t, err)
	assert.Equal(t, []string{"ns1.example.net", "ns2.example.net"}, out.Nameservers)
	assert.Equal(t, 1, out.RegistrationYears)

	p.Nameservers = []string{"ns1.example.net", "bad_host.example.net"}
	_, err = p.Normalize(KindDomainRegistration)
	assert.ErrorIs(t, err, ErrInvalidNameservers)
}
