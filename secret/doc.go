// Package secret resolves secret values in broker configuration.
//
// A value may reference the environment with ${VAR} (an unset variable is an
// error) or a provider with secretref:<provider>:<ref>:
//
//	password: ${VCENTER_PASSWORD}
//	password: secretref:env:VCENTER_PASSWORD
//	password: secretref:file:/run/secrets/vcenter_password
//
// The env and file providers are built in; others can be registered.
package secret
