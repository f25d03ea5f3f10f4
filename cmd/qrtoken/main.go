// Command qrtoken issues a single claimable token from the shell, for kiosks that are offline
// or for support staff crediting a customer by hand.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/bass5068/bottle-redeem/internal/config"
	"github.com/bass5068/bottle-redeem/internal/db"
	"github.com/bass5068/bottle-redeem/internal/ledger"
	"github.com/bass5068/bottle-redeem/internal/notify"
)

func main() {
	minutes := flag.Int("minutes", 0, "validity in minutes (0 uses MANUAL_TOKEN_TTL)")
	points := flag.Int64("points", 0, "points carried by the token (0 derives from bottle counts)")
	big := flag.Int("big", 0, "number of big PET bottles")
	small := flag.Int("small", 0, "number of small PET bottles")
	flag.Parse()

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Fatalf("load .env: %v", err)
	}
	cfg := config.Load()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := db.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db connection failed: %v", err)
	}
	defer pool.Close()

	svc := ledger.NewService(db.NewStore(pool), notify.Nop{}, ledger.OptionsFromConfig(cfg))
	token, err := svc.IssueToken(ctx, ledger.IssueTokenParams{
		ValidFor: time.Duration(*minutes) * time.Minute,
		Points:   *points,
		PETBig:   *big,
		PETSmall: *small,
		Source:   "cli",
	})
	if err != nil {
		log.Fatalf("issue token: %v", err)
	}
	fmt.Printf("token:      %s\npoints:     %d\nexpires at: %s\n", token.Token, token.Points, token.ExpiresAt.Format(time.RFC3339))
}
