package install

import (
	"path/filepath"

	"github.com/pkg/errors"
)

// Role names a destination on the SD card.
type Role string

const (
	RoleIPL            Role = "ipl.dol"
	RoleBootDOL        Role = "boot.dol"
	RoleSwissGCDOL     Role = "swiss-gc.dol"
	RoleCubebootINI    Role = "cubeboot.ini"
	RoleBootISO        Role = "boot.iso"
	RoleSystemDir      Role = "swiss"
	RoleApploaderImage Role = "swiss/patches/apploader.img"
)

// Layout maps roles to absolute paths under the SD root.
type Layout struct {
	Root string
}

// NewLayout resolves root to an absolute path, following symlinks when the
// root already exists.
func NewLayout(root string) (Layout, error) {
	if root == "" {
		return Layout{}, errors.New("empty SD root")
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return Layout{}, errors.Wrap(err, "resolve SD root")
	}
	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		abs = resolved
	}
	return Layout{Root: abs}, nil
}

// Path returns the absolute destination for role.
func (l Layout) Path(role Role) string {
	return filepath.Join(l.Root, filepath.FromSlash(string(role)))
}
