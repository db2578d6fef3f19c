// Package verify implements the protocol verifiers (C2) and the dispatcher
// (C3) that selects between them by protocol tag.
package verify
