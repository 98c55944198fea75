package codec

import (
	"encoding/base64"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTokenRoundTrip(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		fields Fields
		slug   string
	}{
		{
			name:   "typical",
			fields: Fields{Year: 2026, Country: "US", Address: "8.8.8.8", Platform: "WEB", Network: "PROPELLER"},
			slug:   "abc123",
		},
		{
			name:   "unknown country",
			fields: Fields{Year: 2026, Country: "XX", Address: "1.1.1.1", Platform: "MOB", Network: "UNKNOWN"},
			slug:   "x",
		},
		{
			name:   "empty country and network",
			fields: Fields{Year: 1999, Country: "", Address: "", Platform: "WEB", Network: ""},
			slug:   "slug-with-dash",
		},
		{
			name:   "ipv6 address",
			fields: Fields{Year: 2026, Country: "DE", Address: "2001:db8::1", Platform: "WEB", Network: "ADSTERRA"},
			slug:   "v6",
		},
		{
			name:   "network containing separator",
			fields: Fields{Year: 2026, Country: "AU", Address: "1.1.1.1", Platform: "WEB", Network: "A,B,C"},
			slug:   "comma",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			token, err := EncodeToken(tt.fields, tt.slug)
			require.NoError(t, err)
			require.True(t, len(token) > len(tt.slug))
			require.Equal(t, tt.slug, token[len(token)-len(tt.slug):])

			got, err := ParseToken(token, tt.slug)
			require.NoError(t, err)
			require.Equal(t, tt.fields, got)
		})
	}
}

func TestEncodeFieldsMatchesCommaJoinedLayout(t *testing.T) {
	t.Parallel()

	block, err := EncodeFields(Fields{Year: 2026, Country: "US", Address: "8.8.8.8", Platform: "WEB", Network: "NET"})
	require.NoError(t, err)
	raw, err := base64.RawURLEncoding.DecodeString(block)
	require.NoError(t, err)
	require.Equal(t, "2026,US,8.8.8.8,WEB,NET", string(raw))
}

func TestEncodeFieldsRejectsSeparatorInFixedFields(t *testing.T) {
	t.Parallel()

	_, err := EncodeFields(Fields{Year: 2026, Country: "U,S", Address: "8.8.8.8", Platform: "WEB"})
	require.ErrorIs(t, err, ErrInvalidField)
}

func TestDecodeFieldsAcceptsStandardAlphabet(t *testing.T) {
	t.Parallel()

	block := base64.StdEncoding.EncodeToString([]byte("2026,ID,103.1.1.1,MOB,NETWORK"))
	got, err := DecodeFields(block)
	require.NoError(t, err)
	require.Equal(t, Fields{Year: 2026, Country: "ID", Address: "103.1.1.1", Platform: "MOB", Network: "NETWORK"}, got)
}

func TestParseTokenErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		token string
		slug  string
	}{
		{name: "wrong slug", token: "MjAyNixVUyw4LjguOC44LFdFQixORVQabc", slug: "zzz"},
		{name: "slug only", token: "abc", slug: "abc"},
		{name: "empty slug", token: "abc", slug: ""},
		{name: "not base64", token: "!!!!abc", slug: "abc"},
		{name: "too few fields", token: base64.RawURLEncoding.EncodeToString([]byte("2026,US")) + "abc", slug: "abc"},
		{name: "bad year", token: base64.RawURLEncoding.EncodeToString([]byte("y,US,a,WEB,N")) + "abc", slug: "abc"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := ParseToken(tt.token, tt.slug)
			require.ErrorIs(t, err, ErrMalformedToken)
		})
	}
}

func TestDestinationRoundTrip(t *testing.T) {
	t.Parallel()

	dests := []string{
		"https://example.com/offer?x=1&click_id=MjAyNixVUyw4LjguOC44LFdFQixORVQabc123",
		"http://example.com",
		"/_video/landing?dest=aHR0cHM6Ly9leGFtcGxlLmNvbQ",
	}
	for _, dest := range dests {
		encoded := EncodeDestination(dest)
		require.NotContains(t, encoded, "+")
		require.NotContains(t, encoded, "/")
		require.NotContains(t, encoded, "=")
		got, err := DecodeDestination(encoded)
		require.NoError(t, err)
		require.Equal(t, dest, got)
	}
}

func TestNestedDestinationRoundTrip(t *testing.T) {
	t.Parallel()

	final := "https://example.com/offer?x=1&click_id=tok"
	videoHop := "/_video/landing?dest=" + EncodeDestination(final)
	outer := EncodeDestination(videoHop)

	gotHop, err := DecodeDestination(outer)
	require.NoError(t, err)
	require.Equal(t, videoHop, gotHop)

	inner := gotHop[len("/_video/landing?dest="):]
	gotFinal, err := DecodeDestination(inner)
	require.NoError(t, err)
	require.Equal(t, final, gotFinal)
}

func TestDecodeDestinationLenientInputs(t *testing.T) {
	t.Parallel()

	dest := "https://example.com/a?b=c"
	std := base64.StdEncoding.EncodeToString([]byte(dest))
	got, err := DecodeDestination(std)
	require.NoError(t, err)
	require.Equal(t, dest, got)

	padded := base64.URLEncoding.EncodeToString([]byte(dest))
	got, err = DecodeDestination(padded)
	require.NoError(t, err)
	require.Equal(t, dest, got)
}

func TestDecodeDestinationRejects(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		"empty":             "",
		"garbage":           "***",
		"javascript scheme": EncodeDestination("javascript:alert(1)"),
		"protocol relative": EncodeDestination("//evil.example"),
		"bare word":         EncodeDestination("example"),
		"no host":           EncodeDestination("https:///path"),
	}
	for name, param := range tests {
		param := param
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			_, err := DecodeDestination(param)
			require.Error(t, err)
			require.True(t, errors.Is(err, ErrMalformedDestination))
		})
	}
}
