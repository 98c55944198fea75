// Package geo maps client addresses to ISO country codes.
package geo

import (
	"fmt"
	"math/rand/v2"
	"net"
	"strings"

	"github.com/oschwald/geoip2-golang"
	"go.uber.org/zap"
)

// Unknown is returned whenever a country cannot be determined.
const Unknown = "XX"

// defaultClientAddress is assumed when the request layer supplies nothing usable.
const defaultClientAddress = "127.0.0.1"

// DefaultLoopbackPool is a set of real public addresses spanning distinct
// countries, used in place of loopback clients during local testing.
var DefaultLoopbackPool = []string{
	"1.1.1.1",
	"103.1.1.1",
	"203.0.113.1",
	"8.8.8.8",
	"185.76.9.5",
}

// CountryLookup resolves one address. Implementations return "" when the
// address has no entry.
type CountryLookup interface {
	Country(ip net.IP) (string, error)
}

// Location is the outcome of resolving a client address.
type Location struct {
	// Address is the address used for lookup and attribution. It differs from
	// the client address only when loopback substitution fired.
	Address string
	Country string
	// Substituted reports whether Address was drawn from the loopback pool.
	Substituted bool
}

// Config controls the Resolver.
type Config struct {
	// SubstituteLoopback enables drawing from LoopbackPool for loopback clients.
	SubstituteLoopback bool
	LoopbackPool       []string
	Logger             *zap.Logger
}

// Resolver resolves client addresses to countries. It never returns an error;
// lookup failures yield Unknown.
type Resolver struct {
	lookup CountryLookup
	cfg    Config
	pick   func(n int) int
	logger *zap.Logger
}

// NewResolver wires a lookup backend. A nil lookup resolves every address to Unknown.
func NewResolver(lookup CountryLookup, cfg Config) *Resolver {
	if len(cfg.LoopbackPool) == 0 {
		cfg.LoopbackPool = DefaultLoopbackPool
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{
		lookup: lookup,
		cfg:    cfg,
		pick:   rand.IntN,
		logger: logger,
	}
}

// Resolve returns the effective address and its country.
func (r *Resolver) Resolve(clientAddr string) Location {
	addr := normalizeAddress(clientAddr)
	loc := Location{Address: addr, Country: Unknown}

	ip := net.ParseIP(addr)
	if r.cfg.SubstituteLoopback && ip != nil && ip.IsLoopback() {
		loc.Address = r.cfg.LoopbackPool[r.pick(len(r.cfg.LoopbackPool))]
		loc.Substituted = true
		ip = net.ParseIP(loc.Address)
	}
	if ip == nil || r.lookup == nil {
		return loc
	}

	country, err := r.lookup.Country(ip)
	if err != nil {
		r.logger.Debug("geo lookup failed", zap.Error(err))
		return loc
	}
	if country = strings.ToUpper(strings.TrimSpace(country)); country != "" {
		loc.Country = country
	}
	return loc
}

func normalizeAddress(addr string) string {
	addr = strings.TrimSpace(addr)
	if host, _, err := net.SplitHostPort(addr); err == nil {
		addr = host
	}
	addr = strings.TrimPrefix(strings.TrimSuffix(addr, "]"), "[")
	if ip := net.ParseIP(addr); ip != nil {
		if v4 := ip.To4(); v4 != nil {
			return v4.String()
		}
		return ip.String()
	}
	return defaultClientAddress
}

// MaxMind adapts a GeoLite2/GeoIP2 country or city database.
type MaxMind struct {
	reader *geoip2.Reader
}

// OpenMaxMind opens the database at path.
func OpenMaxMind(path string) (*MaxMind, error) {
	reader, err := geoip2.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open geoip database: %w", err)
	}
	return &MaxMind{reader: reader}, nil
}

// Country implements CountryLookup.
func (m *MaxMind) Country(ip net.IP) (string, error) {
	rec, err := m.reader.Country(ip)
	if err != nil {
		return "", fmt.Errorf("geoip country lookup: %w", err)
	}
	return rec.Country.IsoCode, nil
}

// Close releases the memory-mapped database.
func (m *MaxMind) Close() error {
	if m == nil || m.reader == nil {
		return nil
	}
	if err := m.reader.Close(); err != nil {
		return fmt.Errorf("close geoip database: %w", err)
	}
	return nil
}

// StaticLookup resolves from a fixed address table.
type StaticLookup map[string]string

// Country implements CountryLookup.
func (s StaticLookup) Country(ip net.IP) (string, error) {
	return s[ip.String()], nil
}

const maskedPrefixLen = 10

// MaskAddress keeps the first ten characters of addr and appends "***". It is
// the only form of a client address that leaves the process outside the ledger.
func MaskAddress(addr string) string {
	if len(addr) > maskedPrefixLen {
		addr = addr[:maskedPrefixLen]
	}
	return addr + "***"
}
