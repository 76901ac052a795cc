// Copyright 2026 The Substrate Authors
// SPDX-License-Identifier: Apache-2.0

package cage

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// session holds the per-execution host directories backing a cage:
// overlay upper/work for a writable workspace, the staging root for a
// full cage. Created before the namespace child starts, removed after
// it exits.
type session struct {
	dir string
}

func newSession(parent string) (*session, error) {
	if err := os.MkdirAll(parent, 0o700); err != nil {
		return nil, fmt.Errorf("creating session root %s: %w", parent, err)
	}
	var raw [8]byte
	if _, err := rand.Read(raw[:]); err != nil {
		return nil, fmt.Errorf("generating session id: %w", err)
	}
	dir := filepath.Join(parent, hex.EncodeToString(raw[:]))
	if err := os.Mkdir(dir, 0o700); err != nil {
		return nil, fmt.Errorf("creating session dir: %w", err)
	}
	return &session{dir: dir}, nil
}

// OverlayDirs creates the upper and work directories for a writable
// workspace overlay. Both sit on the same filesystem, as overlayfs
// requires.
func (s *session) OverlayDirs() (upper, work string, err error) {
	upper = filepath.Join(s.dir, "upper")
	work = filepath.Join(s.dir, "work")
	for _, dir := range []string{upper, work} {
		if err := os.Mkdir(dir, 0o700); err != nil {
			return "", "", fmt.Errorf("creating overlay dir: %w", err)
		}
	}
	if err := validateOverlayPath(upper); err != nil {
		return "", "", err
	}
	return upper, work, nil
}

// CageRoot creates the staging directory a full cage pivots into.
func (s *session) CageRoot() (string, error) {
	root := filepath.Join(s.dir, "root")
	if err := os.Mkdir(root, 0o755); err != nil {
		return "", fmt.Errorf("creating cage root: %w", err)
	}
	return root, nil
}

// Close removes the session directory tree. Overlay upper contents
// are discarded with it: workspace writes are scoped to one command
// by design of the overlay, and nothing outlives the session.
func (s *session) Close() error {
	return os.RemoveAll(s.dir)
}

// validateOverlayPath rejects paths that would corrupt the overlay
// mount option string. Mount data is comma-separated; a path
// containing a comma or a colon cannot be escaped portably.
func validateOverlayPath(path string) error {
	if strings.ContainsAny(path, ",:") {
		return fmt.Errorf("overlay path %q contains mount-option separator characters", path)
	}
	return nil
}
