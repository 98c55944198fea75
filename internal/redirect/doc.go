// Package redirect resolves short-link visits into a redirect chain.
//
// Resolve walks a fixed sequence for each visit: registry lookup, crawler
// preview, geo gate, click token, click recording, live broadcast, final URL
// composition, and hop composition. Recording and broadcasting are handed off
// without waiting so they never delay or fail the response.
package redirect
