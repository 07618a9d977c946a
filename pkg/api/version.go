package api

var version = "0.2.0"

func Version() string {
	return version
}
