// Copyright 2025-2026 KMT Marketplace

package gateway

import (
	qrcode "github.com/skip2/go-qrcode"
)

// artifactSize is the edge length in pixels of the rendered QR image.
const artifactSize = 512

// renderArtifact encodes a pairing code into a PNG. Pairing codes are
// time-limited, so the result is only useful until the platform issues the
// next challenge.
func renderArtifact(code string) ([]byte, error) {
	return qrcode.Encode(code, qrcode.Medium, artifactSize)
}

// CurrentArtifact returns the PNG of the most recent pairing challenge, or
// nil while none is outstanding. Pure read; safe for any number of
// concurrent callers. The returned slice must not be modified.
func (s *Supervisor) CurrentArtifact() []byte {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.artifact
}
