package vault

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/nathanvale/capture-bridge/internal/capturebridge"
	"github.com/nathanvale/capture-bridge/internal/idgen"
)

// PathResolver computes deterministic, validated vault-relative paths and
// refuses any path that would escape the vault root (spec §4.3).
type PathResolver struct {
	root string
}

// NewPathResolver builds a PathResolver rooted at vaultRoot.
func NewPathResolver(vaultRoot string) *PathResolver {
	return &PathResolver{root: vaultRoot}
}

// Root returns the canonical vault root.
func (r *PathResolver) Root() string {
	return r.root
}

// InboxPath returns the vault-relative path for captureID, e.g.
// "inbox/01ARZ3NDEKTSV4RRFFQ69G5FAV.md".
func (r *PathResolver) InboxPath(captureID string) (string, error) {
	if !idgen.Valid(captureID) {
		return "", fmt.Errorf("path resolver: invalid capture id %q", captureID)
	}
	return filepath.Join(inboxDirName, captureID+".md"), nil
}

// Resolve turns a vault-relative path into an absolute path, verifying the
// result is a descendant of the vault root after symlink resolution. A
// path that would escape the root fails with capturebridge.CodePathEscape.
func (r *PathResolver) Resolve(relPath string) (string, error) {
	abs := filepath.Join(r.root, relPath)

	rootReal, err := filepath.EvalSymlinks(r.root)
	if err != nil {
		return "", fmt.Errorf("path resolver: resolve vault root: %w", err)
	}

	// The target file itself may not exist yet; resolve its parent
	// directory and recombine so EvalSymlinks doesn't fail on ENOENT.
	dir := filepath.Dir(abs)
	dirReal, err := filepath.EvalSymlinks(dir)
	if err != nil {
		dirReal = dir // directory not created yet; checked below with rootReal on a best-effort basis
	}
	candidate := filepath.Join(dirReal, filepath.Base(abs))

	if !isDescendant(rootReal, candidate) {
		return "", capturebridge.Fatal(capturebridge.CodePathEscape, fmt.Sprintf("path %q escapes vault root", relPath), nil)
	}

	return abs, nil
}

func isDescendant(root, candidate string) bool {
	rel, err := filepath.Rel(root, candidate)
	if err != nil {
		return false
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return false
	}
	return true
}
