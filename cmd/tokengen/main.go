// Package main provides a CLI tool for generating caller tokens for the registry API.
// These tokens use the dev signing key unless -key is given and are meant for local use.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	jwttoken "credregistry/internal/jwt_token"
	"credregistry/internal/platform/config"
	id "credregistry/pkg/domain"
	"credregistry/pkg/requestcontext"
	"credregistry/pkg/secrets"
)

type tokenOutput struct {
	Token     string            `json:"token"`
	Caller    string            `json:"caller"`
	ExpiresIn string            `json:"expires_in"`
	JTI       string            `json:"jti"`
	Usage     map[string]string `json:"usage"`
}

func main() {
	address := flag.String("address", "", "Caller address (0x + 40 hex). Derived from -identity if empty.")
	identity := flag.String("identity", "", "Opaque identity to derive the caller address from")
	key := flag.String("key", "", "Signing key. Defaults to JWT_SIGNING_KEY or the dev key.")
	issuer := flag.String("issuer", config.DefaultJWTIssuer, "Token issuer")
	ttl := flag.Duration("ttl", jwttoken.DefaultTokenTTL, "Token time-to-live")
	jsonOutput := flag.Bool("json", false, "Output as JSON")
	newKey := flag.Bool("new-key", false, "Print a fresh random signing key and exit")
	flag.Usage = printUsage
	flag.Parse()

	if *newKey {
		key, err := secrets.Generate()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error generating key: %v\n", err)
			os.Exit(1)
		}
		fmt.Println(key)
		return
	}

	caller, err := resolveCaller(*address, *identity)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n\n", err)
		printUsage()
		os.Exit(1)
	}

	signingKey := *key
	keyType := "flag"
	if signingKey == "" {
		signingKey, keyType = os.Getenv("JWT_SIGNING_KEY"), "env"
	}
	if signingKey == "" {
		signingKey, keyType = config.DevSigningKey, "dev"
	}

	svc := jwttoken.NewJWTService(signingKey, *issuer, jwttoken.DefaultAudience, *ttl)
	ctx := requestcontext.WithTime(context.Background(), time.Now())
	token, jti, err := svc.GenerateCallerToken(ctx, caller)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error generating token: %v\n", err)
		os.Exit(1)
	}

	if *jsonOutput {
		printJSON(tokenOutput{
			Token:     token,
			Caller:    caller.String(),
			ExpiresIn: ttl.String(),
			JTI:       jti,
			Usage: map[string]string{
				"header":      "Authorization: Bearer <token>",
				"signing_key": keyType,
			},
		})
		return
	}

	fmt.Println("Caller Token (JWT)")
	fmt.Println("==================")
	fmt.Printf("Signing Key: %s\n", keyType)
	fmt.Printf("Expires In:  %s\n", *ttl)
	fmt.Printf("Caller:      %s\n", caller)
	fmt.Printf("JTI:         %s\n", jti)
	fmt.Println()
	fmt.Println("Token:")
	fmt.Println(token)
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  curl -H \"Authorization: Bearer <token>\" http://localhost:8080/registry/...")
}

func resolveCaller(address, identity string) (id.Address, error) {
	switch {
	case address != "":
		return id.ParseAddress(address)
	case identity != "":
		return id.AddressFromIdentity(identity), nil
	default:
		return "", fmt.Errorf("one of -address or -identity is required")
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, `tokengen - Generate caller tokens for the credential registry API

WARNING: Without -key or JWT_SIGNING_KEY the dev signing key is used.
         Only use for local development and testing.

Usage:
  tokengen [flags]

Examples:
  # Token for a known address
  tokengen -address 0x52908400098527886e0f7030069857d2e4169ee7

  # Token for an address derived from an identity, valid for an hour
  tokengen -identity university-registrar -ttl 1h

  # Output as JSON
  tokengen -identity owner -json

  # Generate a signing key for JWT_SIGNING_KEY
  tokengen -new-key

Flags:`)
	flag.PrintDefaults()
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fmt.Fprintf(os.Stderr, "Error encoding JSON: %v\n", err)
		os.Exit(1)
	}
}
