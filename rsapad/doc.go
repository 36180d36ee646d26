// Package rsapad computes message digests and builds RSA signature blocks
// (EMSA-PKCS1-v1_5 and EMSA-PSS, RFC 8017) that are sent to a token
// performing only the raw RSA private-key transform.
package rsapad
