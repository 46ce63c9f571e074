// Copyright 2025-2026 KMT Marketplace

// Package authstore persists the per-identity credential bundle that lets
// the gateway resume its session without a fresh device link.
//
// A bundle is one directory per identity under a common root. It holds
// metadata.json (written on credential rotation) next to the session
// database owned by the transport. Deleting the directory is equivalent to
// purging the identity.
package authstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"go.mau.fi/util/jsontime"
	"go.mau.fi/util/random"
)

const metadataFile = "metadata.json"

// Metadata is the rotation bookkeeping stored alongside the session
// database. The cryptographic material itself lives in the database files
// the transport maintains inside the same bundle directory.
type Metadata struct {
	JID          string             `json:"jid,omitempty"`
	Platform     string             `json:"platform,omitempty"`
	RegisteredAt jsontime.UnixMilli `json:"registered_at,omitempty"`
	RotatedAt    jsontime.UnixMilli `json:"rotated_at,omitempty"`
}

// Record is a loaded credential bundle. A record with no JID is a fresh
// identity that will require a device link.
type Record struct {
	Identity string
	Dir      string
	Meta     Metadata
}

// SessionDBPath returns the path of the transport's session database inside
// the bundle directory.
func (r *Record) SessionDBPath() string {
	return filepath.Join(r.Dir, "session.db")
}

// Fresh reports whether the record has never completed a device link.
func (r *Record) Fresh() bool {
	return r.Meta.JID == ""
}

// Store is the durable home of credential bundles. Load never fails for a
// missing bundle; Purge removes one atomically with respect to concurrent
// loads. The interface exists so a deployment can swap the filesystem for
// any durable key-value store without touching the supervisor.
type Store interface {
	Load(ctx context.Context, identity string) (*Record, error)
	Save(ctx context.Context, rec *Record) error
	Purge(ctx context.Context, identity string) error
}

// FSStore keeps bundles as directories under a root path.
type FSStore struct {
	root string
	mu   sync.RWMutex
	log  zerolog.Logger
}

var _ Store = (*FSStore)(nil)

// NewFSStore creates a store rooted at the given directory. The directory
// is created on first Load.
func NewFSStore(root string, log zerolog.Logger) *FSStore {
	return &FSStore{
		root: root,
		log:  log.With().Str("component", "authstore").Logger(),
	}
}

// Load returns the bundle for an identity, creating an empty one if none
// exists. Unreadable metadata is logged and treated as a fresh identity
// rather than failing the caller.
func (s *FSStore) Load(ctx context.Context, identity string) (*Record, error) {
	if err := validateIdentity(identity); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	dir := filepath.Join(s.root, identity)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create bundle directory: %w", err)
	}
	rec := &Record{Identity: identity, Dir: dir}

	raw, err := os.ReadFile(filepath.Join(dir, metadataFile))
	if errors.Is(err, fs.ErrNotExist) {
		return rec, nil
	} else if err != nil {
		return nil, fmt.Errorf("read bundle metadata: %w", err)
	}
	if err := json.Unmarshal(raw, &rec.Meta); err != nil {
		s.log.Warn().Err(err).Str("identity", identity).
			Msg("Bundle metadata is corrupt, treating identity as fresh")
		rec.Meta = Metadata{}
	}
	return rec, nil
}

// Save writes the record's metadata durably. The file is written to a temp
// name and renamed so readers never observe a partial write.
func (s *FSStore) Save(ctx context.Context, rec *Record) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	raw, err := json.Marshal(rec.Meta)
	if err != nil {
		return fmt.Errorf("encode bundle metadata: %w", err)
	}
	tmp, err := os.CreateTemp(rec.Dir, ".metadata-*.json")
	if err != nil {
		return fmt.Errorf("create metadata temp file: %w", err)
	}
	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write bundle metadata: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("close bundle metadata: %w", err)
	}
	if err := os.Rename(tmp.Name(), filepath.Join(rec.Dir, metadataFile)); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("replace bundle metadata: %w", err)
	}
	return nil
}

// Purge deletes all persisted material for an identity. The bundle
// directory is renamed away first (rename is atomic), so a concurrent Load
// sees either the full prior bundle or none, never part of one.
func (s *FSStore) Purge(ctx context.Context, identity string) error {
	if err := validateIdentity(identity); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	dir := filepath.Join(s.root, identity)
	trash := filepath.Join(s.root, "."+identity+".purged-"+random.String(8))
	if err := os.Rename(dir, trash); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("detach bundle directory: %w", err)
	}
	if err := os.RemoveAll(trash); err != nil {
		return fmt.Errorf("remove bundle directory: %w", err)
	}
	s.log.Info().Str("identity", identity).Msg("Credential bundle purged")
	return nil
}

func validateIdentity(identity string) error {
	if identity == "" {
		return errors.New("identity must not be empty")
	}
	if strings.ContainsAny(identity, `/\`) || identity == "." || identity == ".." {
		return fmt.Errorf("invalid identity %q", identity)
	}
	return nil
}
