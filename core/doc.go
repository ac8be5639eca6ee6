// Package core contains the install handshake contracts and the service that
// orchestrates it: building the authorization redirect, verifying the provider
// callback and exchanging the authorization code for an access credential.
// Provider specific details (domain rules, signing, token endpoint) live in
// provider packages; transport concerns live in inbound.
package core
