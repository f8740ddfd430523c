// Package version is the single source of the decision-schema contract version.
// Every other package reads the version through Current instead of
// hardcoding it.
package version

// Schema is the SemVer of the contract implemented by this module.
const Schema = "0.2.0"

// Current returns the schema version stamped on records built by this library.
func Current() string {
	return Schema
}
