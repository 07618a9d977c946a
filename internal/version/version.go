package version

import "satmetrics/pkg/api"

// Version can be overridden at link time.
var Version = ""

func Current() string {
	if Version != "" {
		return Version
	}
	return api.Version()
}
