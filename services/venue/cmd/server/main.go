// The venue server is a reference liquidity venue for local development:
// one constant-product pool behind the REST surface the settlement gateway's
// venue client drives.
package main

import (
	"log"
	"math/big"
	"net/http"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"intentlane/services/venue/internal/config"
	"intentlane/services/venue/internal/pool"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	poolID, err := parseHash(cfg.PoolID)
	if err != nil {
		log.Fatalf("POOL_ID: %v", err)
	}
	asset0, err := parseAddress(cfg.PoolAsset0)
	if err != nil {
		log.Fatalf("POOL_ASSET0: %v", err)
	}
	asset1, err := parseAddress(cfg.PoolAsset1)
	if err != nil {
		log.Fatalf("POOL_ASSET1: %v", err)
	}
	reserve0, err := parseAmount(cfg.PoolReserve0)
	if err != nil {
		log.Fatalf("POOL_RESERVE0: %v", err)
	}
	reserve1, err := parseAmount(cfg.PoolReserve1)
	if err != nil {
		log.Fatalf("POOL_RESERVE1: %v", err)
	}

	book := pool.NewBook()
	if err := book.AddPool(pool.Pool{
		ID:       poolID,
		Asset0:   asset0,
		Asset1:   asset1,
		Reserve0: reserve0,
		Reserve1: reserve1,
		FeeBps:   cfg.PoolFeeBps,
	}); err != nil {
		log.Fatalf("pool: %v", err)
	}

	log.Printf("venue listening on :%s", cfg.Port)
	if err := http.ListenAndServe(":"+cfg.Port, newRouter(book)); err != nil {
		log.Fatal(err)
	}
}

func parseAddress(s string) (common.Address, error) {
	if !common.IsHexAddress(s) {
		return common.Address{}, errMalformed("address", s)
	}
	return common.HexToAddress(s), nil
}

func parseHash(s string) (common.Hash, error) {
	b, err := hexutil.Decode(s)
	if err != nil || len(b) != common.HashLength {
		return common.Hash{}, errMalformed("bytes32", s)
	}
	return common.BytesToHash(b), nil
}

func parseAmount(s string) (*big.Int, error) {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok || v.Sign() < 0 {
		return nil, errMalformed("amount", s)
	}
	return v, nil
}
