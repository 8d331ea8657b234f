package main

import (
	"context"
	"log"
	"math/big"
	"net/http"

	"github.com/ethereum/go-ethereum/common"

	"intentlane/pkg/access"
	"intentlane/pkg/constraint"
	"intentlane/pkg/db"
	"intentlane/pkg/intenthash"
	"intentlane/pkg/settlement"
	"intentlane/services/gateway/internal/config"
	"intentlane/services/gateway/internal/store"
	"intentlane/services/gateway/internal/venueclient"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	owner, err := parseAddress(cfg.OwnerAddress)
	if err != nil {
		log.Fatalf("OWNER_ADDRESS: %v", err)
	}
	venueID, err := parseAddress(cfg.VenueAddress)
	if err != nil {
		log.Fatalf("VENUE_ADDRESS: %v", err)
	}
	if !common.IsHexAddress(cfg.VerifyingContract) {
		log.Fatalf("VERIFYING_CONTRACT: malformed address %q", cfg.VerifyingContract)
	}

	ctx := context.Background()
	pool, err := db.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	st := store.New(pool)
	if err := st.EnsureSchema(ctx); err != nil {
		log.Fatalf("schema: %v", err)
	}
	if err := st.SeedAccess(ctx, owner); err != nil {
		log.Fatalf("seed access: %v", err)
	}

	registry := access.New(st)
	engine := constraint.NewEngine(st, registry)
	venue := venueclient.New(cfg.VenueBaseURL, venueID)

	orch, err := settlement.NewOrchestrator(st, registry, engine, venue, venueID, intenthash.Domain{
		Name:              "IntentLane",
		Version:           "1",
		ChainID:           big.NewInt(cfg.ChainID),
		VerifyingContract: common.HexToAddress(cfg.VerifyingContract),
	})
	if err != nil {
		log.Fatalf("orchestrator: %v", err)
	}
	venue.Bind(orch)

	srv := &server{store: st, registry: registry, engine: engine, orch: orch}
	log.Printf("gateway listening on :%s", cfg.Port)
	if err := http.ListenAndServe(":"+cfg.Port, newRouter(srv)); err != nil {
		log.Fatal(err)
	}
}
