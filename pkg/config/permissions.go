package config

import (
	"fmt"

	"github.com/a-essam23/go-classroom/pkg/state"
)

// CompilePermissions takes a slice of permission names, as found in a token's
// perms claim, and returns a combined bitmap.
func CompilePermissions(names []string) (state.Permission, error) {
	var bitmap state.Permission
	for _, name := range names {
		value, ok := state.BuiltInPerms[name]
		if !ok {
			return 0, fmt.Errorf("permission '%s' not found", name)
		}
		bitmap |= value
	}
	return bitmap, nil
}
