// Package secrets resolves credentials referenced from configuration.
//
// A configuration value may contain ${secret:name} references:
//
//	upstream:
//	  api_key: ${secret:billing-api-key}
//
// The Resolver looks each name up in its sources in order. EnvSource reads
// QUOTAGATE_SECRET_BILLING_API_KEY; DirSource reads the file
// billing-api-key from a directory such as a mounted Kubernetes Secret.
// Values are cached for a few minutes, and a watched DirSource invalidates
// the cache when a file changes, so a rotated key is picked up by the next
// upstream call without a restart.
package secrets
