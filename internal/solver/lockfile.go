package solver

import (
	"fmt"
	"os"
)

// RemoveStaleLock removes the "<project>.lock" file a crashed solver instance
// leaves behind, which otherwise blocks the project from opening. It reports
// whether a lock file was actually removed. A lock that exists but cannot be
// removed usually means a live solver still holds the project; that is an
// error the caller must resolve, not work around.
func RemoveStaleLock(projectPath string) (bool, error) {
	lockFile := projectPath + ".lock"

	if _, err := os.Stat(lockFile); os.IsNotExist(err) {
		return false, nil
	}

	if err := os.Remove(lockFile); err != nil {
		return false, fmt.Errorf("cannot remove lock file %q, close the solver or check permissions: %w", lockFile, err)
	}
	return true, nil
}
