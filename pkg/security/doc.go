/*
Package security provides the cluster's cryptographic primitives:
AES-256-GCM at-rest encryption (Cipher) and the HMAC-SHA256
challenge/response handshake the Sync Transport uses to authenticate a
peer connection before any sync data flows (spec.md §4.L).

Every node derives the same 32-byte key from the shared cluster ID via
DeriveKeyFromClusterID, so no out-of-band key distribution is needed to
bootstrap peer authentication.
*/
package security
