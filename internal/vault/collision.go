package vault

import (
	"io"
	"os"

	"github.com/nathanvale/capture-bridge/internal/hashing"
)

// Decision enumerates the outcomes of a collision check (spec §4.4).
type Decision string

const (
	DecisionInitial      Decision = "initial"
	DecisionSelfHeal     Decision = "self_heal"
	DecisionDuplicate    Decision = "duplicate_skip"
	DecisionConflict     Decision = "conflict"
)

// AuditLookup is the minimal ledger query the collision detector needs: did
// an export_audit row already claim this path, and with what hash.
type AuditLookup interface {
	// LookupByPath returns (hash, true, nil) if an audit row exists for
	// path, or ("", false, nil) if none does.
	LookupByPath(path string) (hash string, found bool, err error)
}

// CollisionDetector decides, filesystem-first, whether an export target is
// new, self-healing, a no-op duplicate, or a conflict (spec §4.4). It never
// trusts a stale ledger: the file is always stat'd and, if present, hashed.
type CollisionDetector struct {
	audit AuditLookup
}

// NewCollisionDetector builds a CollisionDetector backed by audit.
func NewCollisionDetector(audit AuditLookup) *CollisionDetector {
	return &CollisionDetector{audit: audit}
}

// Decide inspects the filesystem state at absPath and the ledger's audit
// record for relPath (the vault-relative path exports_audit.vault_path is
// keyed on) and returns the decision plus, for conflict/duplicate, the hash
// actually found on disk.
func (d *CollisionDetector) Decide(absPath, relPath, expectedHash string) (Decision, string, error) {
	onDisk, present, err := hashFile(absPath)
	if err != nil {
		return "", "", err
	}

	auditHash, auditFound, err := d.audit.LookupByPath(relPath)
	if err != nil {
		return "", "", err
	}

	switch {
	case !present && !auditFound:
		return DecisionInitial, "", nil
	case !present && auditFound && auditHash == expectedHash:
		return DecisionSelfHeal, "", nil
	case present && onDisk == expectedHash:
		return DecisionDuplicate, onDisk, nil
	case present:
		return DecisionConflict, onDisk, nil
	default:
		// File absent, an audit row exists but its hash no longer matches
		// what we expect to export: treat as a fresh initial write, since
		// nothing on disk contradicts it.
		return DecisionInitial, "", nil
	}
}

// hashFile reads path fully (if it exists) and returns its SHA-256 hash.
func hashFile(path string) (hash string, present bool, err error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", false, nil
		}
		return "", false, err
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return "", false, err
	}
	return hashing.Hash(string(data)), true, nil
}
