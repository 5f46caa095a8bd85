// Package vaultcrypt provides authenticated encryption for vault payloads.
//
// The key is derived once from a configured master secret (plus optional
// salt) and reused for every envelope. Each envelope carries its own fresh
// nonce and authentication tag so tampering is always detected on decrypt.
package vaultcrypt
