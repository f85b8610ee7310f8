// Package node holds identity and connection material for remote lightning nodes.
package node

// Type identifies which node implementation credentials belong to.
type Type string

const (
	TypeLND Type = "lnd"
	TypeCLN Type = "cln"
)

// Credentials caches everything required to (re)open a connection to a node
// without re-deriving it from the original connect request.
type Credentials struct {
	NodeID  string
	Alias   string
	Type    Type
	Address string

	// LND auth material.
	Macaroon string
	TLSCert  string

	// CLN auth material.
	CACert     string
	ClientCert string
	ClientKey  string
	Rune       string
}

// Info is the identity summary returned by node authentication.
type Info struct {
	Pubkey  string
	Alias   string
	Network string
	Version string
}
