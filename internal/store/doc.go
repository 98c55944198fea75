// Package store defines the domain records and repository interfaces the
// redirect pipeline depends on (link lookup, click ledger writes, counter
// increments). Implementations live in other packages; this package must not
// import database drivers or concrete clients.
package store
