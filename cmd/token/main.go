package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/mohamed-arshad-ch/chato-strapi-api/internal/crypto"
	"github.com/mohamed-arshad-ch/chato-strapi-api/internal/identity"
)

func main() {
	userID := flag.Int64("user", 0, "User ID carried in the token")
	username := flag.String("username", "", "Username claim")
	email := flag.String("email", "", "Email claim")
	ttl := flag.Duration("ttl", 24*time.Hour, "Token lifetime")
	secret := flag.String("secret", os.Getenv("JWT_SECRET"), "HMAC secret (defaults to $JWT_SECRET)")
	keyB64 := flag.String("key", "", "Base64-encoded Ed25519 private key")
	flag.Parse()

	if *userID <= 0 || (*secret == "" && *keyB64 == "") {
		fmt.Fprintln(os.Stderr, "Usage: token -user <id> [-username <name>] [-email <addr>] [-ttl 24h] (-secret <hmac-secret> | -key <private-key-base64>)")
		os.Exit(1)
	}

	var signer *identity.Signer
	if *keyB64 != "" {
		priv, err := crypto.ValidatePrivateKey(*keyB64)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Invalid private key: %v\n", err)
			os.Exit(1)
		}
		signer = identity.NewEd25519Signer(priv, *ttl)
	} else {
		signer = identity.NewHMACSigner([]byte(*secret), *ttl)
	}

	token, err := signer.Sign(identity.Claims{UserID: *userID, Username: *username, Email: *email})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to sign token: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(token)
}
