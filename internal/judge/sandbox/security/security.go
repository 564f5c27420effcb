// Package security defines sandbox isolation and security profiles.
package security

// IsolationProfile describes namespace and seccomp settings applied to a
// sandboxed process.
type IsolationProfile struct {
	RootFS         string
	SeccompProfile string
	DisableNetwork bool
}
