package app

import "github.com/kart-io/version"

// GetVersion returns the git version the binary was built from.
func GetVersion() string {
	return version.Get().GitVersion
}
