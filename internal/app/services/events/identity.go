package events

import (
	"github.com/lnwatch/dashboard/internal/app/auth"
	"github.com/lnwatch/dashboard/internal/app/domain/node"
)

// IdentityFromClaims binds a node to the account and user carried by an
// access token. Events collected for the node are attributed to that
// account.
func IdentityFromClaims(claims *auth.Claims, info node.Info) Identity {
	return Identity{
		AccountID: claims.AccountID,
		UserID:    claims.Subject,
		NodeID:    info.Pubkey,
		NodeAlias: info.Alias,
	}
}
