package main

import (
	"flag"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/smarttransit/seat-reservation-engine/internal/utils"
	"github.com/smarttransit/seat-reservation-engine/pkg/jwt"
)

func main() {
	var (
		secret string
		userID string
		phone  string
		roles  string
		expiry time.Duration
	)
	flag.StringVar(&secret, "secret", "", "Sign a token with this secret instead of generating a new one")
	flag.StringVar(&userID, "user-id", "", "Also mint an access token for this user UUID")
	flag.StringVar(&phone, "phone", "", "Phone number claim of the minted token")
	flag.StringVar(&roles, "roles", "passenger", "Comma separated roles of the minted token")
	flag.DurationVar(&expiry, "expiry", time.Hour, "Lifetime of the minted token")
	flag.Parse()

	fmt.Println("===========================================")
	fmt.Println("JWT Secret Generator for SmartTransit")
	fmt.Println("===========================================")
	fmt.Println()

	if secret == "" {
		generated, err := utils.GenerateSecret(32)
		if err != nil {
			log.Fatalf("Failed to generate secret: %v", err)
		}
		secret = generated

		fmt.Println("Add this to your .env file:")
		fmt.Println()
		fmt.Printf("JWT_SECRET=%s\n", secret)
		fmt.Println()
		fmt.Println("IMPORTANT: Keep this secret safe and never commit it to version control!")
	}

	if userID == "" {
		fmt.Println("===========================================")
		return
	}

	id, err := uuid.Parse(userID)
	if err != nil {
		log.Fatalf("Invalid -user-id: %v", err)
	}

	var roleList []string
	for _, r := range strings.Split(roles, ",") {
		if r = strings.TrimSpace(r); r != "" {
			roleList = append(roleList, r)
		}
	}

	token, err := jwt.NewService(secret, expiry).GenerateAccessToken(id, phone, roleList)
	if err != nil {
		log.Fatalf("Failed to mint token: %v", err)
	}

	fmt.Println()
	fmt.Printf("Access token for %s (roles: %s, expires in %s):\n", id, strings.Join(roleList, ","), expiry)
	fmt.Println()
	fmt.Println(token)
	fmt.Println("===========================================")
}
