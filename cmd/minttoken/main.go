// Command minttoken signs a ticket credential for manual testing and
// provisioning, the Go analogue of
// _examples/original_source/scripts/mint_token.py. Token minting is
// out-of-scope provisioning surface (spec.md §1's Non-goals); this CLI
// exists only to exercise internal/token.Mint outside of tests.
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/haahuss/Ticketing-Security-Gate/internal/token"
)

func main() {
	ticketID := flag.String("ticket-id", "", "ticket id to embed (required)")
	eventID := flag.String("event-id", "", "event id to embed (required)")
	orgID := flag.String("org-id", "", "org id to embed (required)")
	ttlMinutes := flag.Int("ttl-minutes", 60, "token lifetime in minutes")
	flag.Parse()

	if *ticketID == "" || *eventID == "" || *orgID == "" {
		fmt.Fprintln(os.Stderr, "minttoken: --ticket-id, --event-id, and --org-id are required")
		os.Exit(2)
	}

	secret := os.Getenv("GATE_SIGNING_SECRET")
	if secret == "" {
		secret = "dev_secret_change_me"
	}

	nonce := uuid.NewString()
	signed, err := token.Mint(*ticketID, *eventID, *orgID, nonce, time.Duration(*ttlMinutes)*time.Minute, []byte(secret))
	if err != nil {
		fmt.Fprintf(os.Stderr, "minttoken: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(signed)
}
