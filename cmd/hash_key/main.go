package main

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log"
	"os"

	"golang.org/x/crypto/bcrypt"
)

// Prints an API key and the bcrypt hash to put in API_KEY_HASH.
// Without an argument a random key is generated.
func main() {
	key := ""
	if len(os.Args) > 1 {
		key = os.Args[1]
	} else {
		buf := make([]byte, 24)
		if _, err := rand.Read(buf); err != nil {
			log.Fatalf("random key: %v", err)
		}
		key = hex.EncodeToString(buf)
	}
	h, err := bcrypt.GenerateFromPassword([]byte(key), bcrypt.DefaultCost)
	if err != nil {
		log.Fatalf("bcrypt failed: %v", err)
	}
	fmt.Printf("API_KEY=%s\nAPI_KEY_HASH=%s\n", key, h)
}
