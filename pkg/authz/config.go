// Package authz guards the mutating endpoints of the registry server with a
// shared bearer secret and carries the caller identity through the request.
package authz

import "os"

// SecretEnvVar names the environment variable holding the trigger secret.
const SecretEnvVar = "CRON_SECRET"

// SecretFunc returns the currently configured secret. An empty result means
// the secret is not configured.
type SecretFunc func() string

// SecretFromEnv reads the secret from CRON_SECRET on every call so that a
// missing value is reported per request.
func SecretFromEnv() SecretFunc {
	return func() string { return os.Getenv(SecretEnvVar) }
}

// StaticSecret returns a SecretFunc that always yields secret.
func StaticSecret(secret string) SecretFunc {
	return func() string { return secret }
}
