// Copyright 2025-2026 KMT Marketplace

// Package gateway manages the single persistent WhatsApp Web session that
// the KMT classifieds backend uses to deliver phone verification codes.
//
// The package owns exactly one live connection to the messaging platform at
// a time. Lifecycle events from the platform (pairing challenge issued,
// connection opened, connection closed with a status code, credential
// rotation) are translated into typed events and consumed by a single
// handling loop, so state transitions are serialized per connection.
//
// # Core Types
//
// [Supervisor] owns the connection lifecycle: it loads the credential
// bundle, dials the platform, reacts to lifecycle events, reconnects with a
// bounded retry budget after recoverable closures, and purges credentials
// after a remote logout. It also exposes the send and linking-code read
// operations consumed by the CRUD backend.
//
// [Client] and [Dialer] are the seams between the supervisor and the
// platform transport. The production implementation lives in the wameow
// sub-package and is backed by whatsmeow; tests inject fakes.
//
// [API] is the operator HTTP surface: the shared-secret protected QR
// linking page, a status endpoint, and the send endpoint the CRUD backend
// calls over localhost.
//
// # Sub-packages
//
//   - authstore persists the per-identity credential bundle on disk.
//   - wameow implements Client/Dialer on top of whatsmeow.
package gateway
