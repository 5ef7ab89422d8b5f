/*
JWT Token Generator for the camera gateway.

Mints HS256 tokens in the same wire shape the Auth Verifier (C3) parses, for
testing and local development against a server configured with
auth.algorithm: hs256.

Usage:
  go run main.go --role admin --expiry-hours 72
  go run main.go --role viewer --expiry-hours 24 --secret-key "custom-secret"
*/
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/meridian-video/camera-gateway/internal/logging"
	"github.com/meridian-video/camera-gateway/internal/security"
)

var (
	role         = flag.String("role", "admin", "User role (viewer, operator, admin)")
	expiryHours  = flag.Int("expiry-hours", 48, "Token expiry in hours")
	secretKey    = flag.String("secret-key", "edge-device-secret-key-change-in-production", "JWT secret key")
	userID       = flag.String("user-id", "", "User ID (defaults to test_<role>)")
	outputFormat = flag.String("format", "token", "Output format: token, json")
)

func main() {
	flag.Parse()

	if !security.ValidRoles()[*role] {
		fmt.Fprintf(os.Stderr, "Error: Invalid role '%s'. Valid roles: viewer, operator, admin\n", *role)
		os.Exit(1)
	}
	if *expiryHours <= 0 {
		fmt.Fprintf(os.Stderr, "Error: Expiry hours must be positive\n")
		os.Exit(1)
	}
	if *userID == "" {
		*userID = "test_" + *role
	}

	logger := logging.GetLogger("jwt-generator")
	jwtHandler, err := security.NewJWTHandler(security.Config{
		Algorithm: "hs256",
		Secret:    *secretKey,
	}, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: Failed to create JWT handler: %v\n", err)
		os.Exit(1)
	}

	ttl := time.Duration(*expiryHours) * time.Hour
	token, err := jwtHandler.GenerateHS256Token(*userID, *role, ttl)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: Failed to generate token: %v\n", err)
		os.Exit(1)
	}

	switch *outputFormat {
	case "json":
		expiresAt := time.Now().Add(ttl)
		output := fmt.Sprintf(`{
  "token": "%s",
  "user_id": "%s",
  "role": "%s",
  "expires_in_hours": %d,
  "expires_at": "%s",
  "algorithm": "HS256"
}`, token, *userID, *role, *expiryHours, expiresAt.Format(time.RFC3339))
		fmt.Println(output)
	case "token":
		fmt.Println(token)
	default:
		fmt.Fprintf(os.Stderr, "Error: Invalid output format '%s'. Valid formats: token, json\n", *outputFormat)
		os.Exit(1)
	}
}
