// Package vault implements the atomic writer, path resolver, and collision
// detector that guard the notes vault directory tree (spec §4.2-§4.4).
package vault

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"syscall"

	"github.com/nathanvale/capture-bridge/internal/capturebridge"
)

// trashDirName and inboxDirName are the two vault-relative directories the
// core is allowed to write under (spec §6).
const (
	trashDirName = ".trash"
	inboxDirName = "inbox"
)

// AtomicWriter writes files into the vault via temp-then-rename, never
// leaving a temp file behind and never leaving a partially-written target.
type AtomicWriter struct {
	root string
}

// NewAtomicWriter builds an AtomicWriter rooted at vaultRoot. vaultRoot must
// already exist.
func NewAtomicWriter(vaultRoot string) *AtomicWriter {
	return &AtomicWriter{root: vaultRoot}
}

// EnsureDirs creates inbox/ and .trash/ under the vault root. Idempotent.
func (w *AtomicWriter) EnsureDirs() error {
	for _, d := range []string{inboxDirName, trashDirName} {
		if err := os.MkdirAll(filepath.Join(w.root, d), 0o700); err != nil {
			return fmt.Errorf("vault: create %s: %w", d, err)
		}
	}
	return nil
}

// Write writes payload to target (an absolute path inside the vault)
// atomically: either target ends up containing exactly payload, or target
// is left unchanged and no temp file remains (spec §4.2).
func (w *AtomicWriter) Write(target string, payload []byte) error {
	if err := os.MkdirAll(filepath.Dir(target), 0o700); err != nil {
		return classifyErr(err)
	}

	tmp, err := os.CreateTemp(filepath.Join(w.root, trashDirName), "export-*.tmp")
	if err != nil {
		return classifyErr(err)
	}
	tmpPath := tmp.Name()

	cleanup := func() {
		_ = os.Remove(tmpPath)
	}

	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		cleanup()
		return classifyErr(err)
	}

	if _, err := tmp.Write(payload); err != nil {
		tmp.Close()
		cleanup()
		return classifyErr(err)
	}

	if err := tmp.Sync(); err != nil {
		tmp.Close()
		cleanup()
		return classifyErr(err)
	}

	if err := tmp.Close(); err != nil {
		cleanup()
		return classifyErr(err)
	}

	if err := os.Rename(tmpPath, target); err != nil {
		cleanup()
		return classifyErr(err)
	}

	if err := fsyncDir(filepath.Dir(target)); err != nil {
		// The rename already landed; a directory fsync failure means the
		// rename may not survive a crash, but the visible file is correct.
		// Surface it as recoverable so callers can retry the export cycle.
		return capturebridge.New(capturebridge.CodeEACCES, "fsync export directory", err)
	}

	return nil
}

// fsyncDir fsyncs a directory so a preceding rename within it is durable.
func fsyncDir(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return err
	}
	defer d.Close()
	return d.Sync()
}

// classifyErr maps a filesystem error to the taxonomy in spec §4.2/§7.
func classifyErr(err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, os.ErrPermission):
		return capturebridge.New(capturebridge.CodeEACCES, "permission denied", err)
	case errors.Is(err, syscall.ENOSPC):
		return capturebridge.Fatal(capturebridge.CodeENOSPC, "no space left on device", err)
	case errors.Is(err, syscall.EROFS):
		return capturebridge.Fatal(capturebridge.CodeEROFS, "read-only filesystem", err)
	case errors.Is(err, os.ErrExist), errors.Is(err, syscall.EEXIST):
		return capturebridge.New(capturebridge.CodeEEXIST, "target already exists", err)
	case errors.Is(err, syscall.ENETDOWN):
		return capturebridge.New(capturebridge.CodeENETDOWN, "network unreachable", err)
	default:
		return capturebridge.New(capturebridge.CodeEACCES, "filesystem error", err)
	}
}
