// Package main hosts the redirector service entrypoint.
//
// Architecture overview:
//   - HTTP API: internal/api.Server exposes health, metrics, the live traffic WebSocket, the stealth and video hop
//     pages, and GET /{slug}. Requests carry a request id and are logged, traced, and measured.
//   - Redirect chain: internal/redirect.Service looks the slug up in the link registry, answers preview crawlers with
//     an Open Graph document, gates blocked countries to a safe URL, mints the click token, and composes the stealth
//     hop (optionally wrapping a video interstitial) around the final offer URL.
//   - Click ledger: every resolved click is handed to the ledger hub without waiting. The hub batches clicks and
//     count increments and fans them out to sinks: the store (Postgres or memory), Prometheus, logs, an NDJSON
//     archive (memory/local/GCS), and optional Pub/Sub export.
//   - Live broadcast: resolved clicks are published to connected WebSocket observers with the client address masked.
//     With Redis configured, events travel through a pub/sub channel so every instance's observers see every click.
//   - Configuration & plumbing: Viper populates config from env/files; zap provides structured logging; Prometheus
//     metrics are exported on /metrics; OpenTelemetry spans cover redirect resolution.
//
// Operational notes:
//   - Shutdown: SIGINT/SIGTERM stops the HTTP server, drains the ledger hub so buffered clicks reach the stores,
//     then closes infrastructure clients.
//   - Geo: point geo.database_path at a GeoLite2 Country database; without one every country resolves to XX.
//   - Rate limiting: rate_limit.enabled guards /{slug} per client address and answers 429.
//
// Quick checklist:
//   - Configure env vars: REDIRECTOR_SERVER_PORT, REDIRECTOR_DATABASE_DSN, REDIRECTOR_GEO_DATABASE_PATH,
//     REDIRECTOR_BROADCAST_REDIS_ADDR, REDIRECTOR_ARCHIVE_BACKEND, REDIRECTOR_PUBSUB_PROJECT_ID.
//   - Apply schema: redirector migrate up --config config.yaml.
//   - Run locally: go run ./cmd/redirector serve --config config.yaml (links may be seeded from the links section
//     when no DSN is configured).
package main
