//go:build windows

package logger

import (
	"os"

	"golang.org/x/sys/windows/svc"
)

// IsService reports whether the process was started by the service control
// manager.
func IsService() bool {
	if os.Getenv("SERVICE_NAME") != "" {
		return true
	}

	isService, err := svc.IsWindowsService()
	return err == nil && isService
}
