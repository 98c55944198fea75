// Package codec encodes the outbound click token and the destination
// parameters passed between redirect hops.
//
// A click token is base64url(year,country,address,platform,network) followed
// by the link slug in cleartext. Destinations travel between hops as a single
// base64url value in the dest query parameter. Neither encoding is
// tamper-proof.
package codec

import (
	"encoding/base64"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

var (
	// ErrInvalidField is returned when a token field cannot be encoded losslessly.
	ErrInvalidField = errors.New("invalid token field")
	// ErrMalformedToken is returned when a token cannot be split or decoded.
	ErrMalformedToken = errors.New("malformed click token")
	// ErrMalformedDestination is returned for dest parameters that do not decode
	// to a navigable location.
	ErrMalformedDestination = errors.New("malformed destination")
)

const (
	fieldSeparator = ","
	fieldCount     = 5
)

// Fields carries the attribution context embedded in a click token.
type Fields struct {
	Year     int
	Country  string
	Address  string
	Platform string
	Network  string
}

func (f Fields) String() string {
	return strings.Join([]string{
		strconv.Itoa(f.Year),
		f.Country,
		f.Address,
		f.Platform,
		f.Network,
	}, fieldSeparator)
}

// EncodeFields returns the encoded block for f. Only Network may contain the
// separator since it is the last field.
func EncodeFields(f Fields) (string, error) {
	for name, v := range map[string]string{
		"country":  f.Country,
		"address":  f.Address,
		"platform": f.Platform,
	} {
		if strings.Contains(v, fieldSeparator) {
			return "", fmt.Errorf("%w: %s contains %q", ErrInvalidField, name, fieldSeparator)
		}
	}
	return base64.RawURLEncoding.EncodeToString([]byte(f.String())), nil
}

// DecodeFields recovers Fields from an encoded block.
func DecodeFields(encoded string) (Fields, error) {
	raw, err := decodeLenient(encoded)
	if err != nil {
		return Fields{}, fmt.Errorf("%w: %v", ErrMalformedToken, err)
	}
	parts := strings.SplitN(string(raw), fieldSeparator, fieldCount)
	if len(parts) != fieldCount {
		return Fields{}, fmt.Errorf("%w: expected %d fields, got %d", ErrMalformedToken, fieldCount, len(parts))
	}
	year, err := strconv.Atoi(parts[0])
	if err != nil {
		return Fields{}, fmt.Errorf("%w: year %q", ErrMalformedToken, parts[0])
	}
	return Fields{
		Year:     year,
		Country:  parts[1],
		Address:  parts[2],
		Platform: parts[3],
		Network:  parts[4],
	}, nil
}

// EncodeToken builds the click_id value: the encoded block with the slug appended.
func EncodeToken(f Fields, slug string) (string, error) {
	block, err := EncodeFields(f)
	if err != nil {
		return "", err
	}
	return block + slug, nil
}

// ParseToken strips slug from the end of token and decodes the remaining block.
func ParseToken(token, slug string) (Fields, error) {
	if slug == "" || !strings.HasSuffix(token, slug) || len(token) == len(slug) {
		return Fields{}, fmt.Errorf("%w: token does not end with slug %q", ErrMalformedToken, slug)
	}
	return DecodeFields(strings.TrimSuffix(token, slug))
}

// EncodeDestination encodes a hop destination for the dest query parameter.
func EncodeDestination(dest string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(dest))
}

// DecodeDestination reverses EncodeDestination. Absolute destinations must be
// http or https; relative destinations must be rooted paths on this host.
func DecodeDestination(param string) (string, error) {
	if strings.TrimSpace(param) == "" {
		return "", fmt.Errorf("%w: empty", ErrMalformedDestination)
	}
	raw, err := decodeLenient(param)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformedDestination, err)
	}
	dest := string(raw)
	if err := validateDestination(dest); err != nil {
		return "", err
	}
	return dest, nil
}

func validateDestination(dest string) error {
	u, err := url.Parse(dest)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedDestination, err)
	}
	if u.IsAbs() {
		if u.Scheme != "http" && u.Scheme != "https" {
			return fmt.Errorf("%w: scheme %q", ErrMalformedDestination, u.Scheme)
		}
		if u.Host == "" {
			return fmt.Errorf("%w: missing host", ErrMalformedDestination)
		}
		return nil
	}
	if !strings.HasPrefix(dest, "/") || strings.HasPrefix(dest, "//") || strings.HasPrefix(dest, "/\\") {
		return fmt.Errorf("%w: relative destination must be a rooted path", ErrMalformedDestination)
	}
	return nil
}

// decodeLenient accepts both base64 alphabets, padded or raw.
func decodeLenient(s string) ([]byte, error) {
	s = strings.TrimRight(strings.TrimSpace(s), "=")
	if strings.ContainsAny(s, "+/") {
		s = strings.NewReplacer("+", "-", "/", "_").Replace(s)
	}
	// '+' from an unescaped query string arrives as a space.
	s = strings.ReplaceAll(s, " ", "-")
	b, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("base64 decode: %w", err)
	}
	return b, nil
}
