// Package security builds the policy report returned by
// Engine.SecurityReport.
package security
