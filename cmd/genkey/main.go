package main

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"fmt"
)

// genkey prints an Ed25519 keypair for token verification. The server only
// needs JWT_PUBLIC_KEY; keep the private key with whatever issues tokens.
func main() {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		panic(err)
	}

	fmt.Printf("JWT_PUBLIC_KEY=%s\n", base64.StdEncoding.EncodeToString(pub))
	fmt.Printf("# private key, for cmd/token -key: %s\n", base64.StdEncoding.EncodeToString(priv))
}
