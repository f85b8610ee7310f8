package events

import (
	"testing"

	"github.com/dgrijalva/jwt-go"

	"github.com/lnwatch/dashboard/internal/app/auth"
	"github.com/lnwatch/dashboard/internal/app/domain/node"
)

func TestIdentityFromClaims(t *testing.T) {
	claims := &auth.Claims{
		AccountID:      "acct-7",
		StandardClaims: jwt.StandardClaims{Subject: "user-7"},
	}
	info := node.Info{Pubkey: "02abc", Alias: "carol"}

	id := IdentityFromClaims(claims, info)
	if id.AccountID != "acct-7" || id.UserID != "user-7" {
		t.Fatalf("claims not carried into identity: %+v", id)
	}
	if id.NodeID != "02abc" || id.NodeAlias != "carol" {
		t.Fatalf("node info not carried into identity: %+v", id)
	}
	if !id.Complete() {
		t.Fatalf("identity built from valid claims should be complete")
	}
}
