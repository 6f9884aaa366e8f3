//go:build !windows

package source

import "codeberg.org/mutker/rigbeat/internal/errors"

// unsupportedQuerier stands in for WMI on platforms that lack it.
type unsupportedQuerier struct{}

func defaultQuerier() querier {
	return unsupportedQuerier{}
}

func (unsupportedQuerier) Query(_, _ string, _ *[]wmiSensor) error {
	return errors.New().WithMessage(ErrTransportUnavailable, "legacy: WMI is only available on Windows")
}

func (unsupportedQuerier) QueryHardware(_, _ string, _ *[]wmiHardware) error {
	return errors.New().WithMessage(ErrTransportUnavailable, "legacy: WMI is only available on Windows")
}
