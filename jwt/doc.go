// Package jwt issues and verifies the access tokens that identify a login
// session. Tokens carry only the account id and session id; elevated trust
// is never encoded in a token.
package jwt
