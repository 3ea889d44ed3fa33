// Package auth verifies the signed identity tokens web clients may present
// when they identify on the gateway socket.
//
// Tokens are HS256 JWTs issued by the account service. They carry the
// account email and admin flag, which then replace the self-declared values
// in the identify message. Issuance lives here only so the two sides share
// one claims type.
package auth
