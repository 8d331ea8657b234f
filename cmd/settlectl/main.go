// settlectl is the operator CLI: canonical intent digests, dev-key intent
// signing, and local dry-run policy checks.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"math/big"
	"os"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/fatih/color"

	"intentlane/pkg/domain"
	"intentlane/pkg/intenthash"
	"intentlane/pkg/signature"
)

const usage = `usage:
  settlectl intent digest --intent <path> --chain-id <id> --verifying <address>
  settlectl intent sign   --intent <path> --chain-id <id> --verifying <address> --key <hex>
  settlectl policy check  --policy <path> --quoted <amount> [--at <unix>]`

func main() {
	if len(os.Args) < 3 {
		fail(usage)
	}
	switch os.Args[1] + " " + os.Args[2] {
	case "intent digest":
		runIntentDigest(os.Args[3:])
	case "intent sign":
		runIntentSign(os.Args[3:])
	case "policy check":
		runPolicyCheck(os.Args[3:])
	default:
		fail(usage)
	}
}

type intentFile struct {
	ID           string `json:"id"`
	User         string `json:"user"`
	TokenIn      string `json:"token_in"`
	TokenOut     string `json:"token_out"`
	AmountIn     string `json:"amount_in"`
	MinAmountOut string `json:"min_amount_out"`
	Deadline     uint64 `json:"deadline"`
	Signature    string `json:"signature,omitempty"`
}

type policyFile struct {
	MinAmountOut       string `json:"min_amount_out"`
	ReferenceAmountOut string `json:"reference_amount_out"`
	MaxSlippageBps     uint32 `json:"max_slippage_bps"`
	Deadline           uint64 `json:"deadline"`
}

func runIntentDigest(args []string) {
	fs := flag.NewFlagSet("intent digest", flag.ExitOnError)
	intentPath := fs.String("intent", "", "path to intent json")
	chainID := fs.Int64("chain-id", 1, "signature domain chain id")
	verifying := fs.String("verifying", "0x0000000000000000000000000000000000000000", "verifying contract address")
	_ = fs.Parse(args)

	in, dom := loadIntentAndDomain(*intentPath, *chainID, *verifying)
	fmt.Println(intenthash.Digest(dom, in).Hex())
}

func runIntentSign(args []string) {
	fs := flag.NewFlagSet("intent sign", flag.ExitOnError)
	intentPath := fs.String("intent", "", "path to intent json")
	chainID := fs.Int64("chain-id", 1, "signature domain chain id")
	verifying := fs.String("verifying", "0x0000000000000000000000000000000000000000", "verifying contract address")
	keyHex := fs.String("key", "", "signer private key (hex, dev only)")
	_ = fs.Parse(args)

	if *keyHex == "" {
		fail("--key is required")
	}
	key, err := crypto.HexToECDSA(strings.TrimPrefix(strings.TrimSpace(*keyHex), "0x"))
	if err != nil {
		fail("bad key: " + err.Error())
	}
	in, dom := loadIntentAndDomain(*intentPath, *chainID, *verifying)
	digest := intenthash.Digest(dom, in)
	sig, err := signature.Sign(digest, key)
	if err != nil {
		fail("sign: " + err.Error())
	}
	out := map[string]any{
		"digest":    digest.Hex(),
		"signature": hexutil.Encode(sig),
		"signer":    crypto.PubkeyToAddress(key.PublicKey).Hex(),
	}
	b, _ := json.MarshalIndent(out, "", "  ")
	fmt.Println(string(b))
}

func runPolicyCheck(args []string) {
	fs := flag.NewFlagSet("policy check", flag.ExitOnError)
	policyPath := fs.String("policy", "", "path to policy json")
	quoted := fs.String("quoted", "", "quoted output amount")
	at := fs.Int64("at", 0, "evaluation time (unix seconds, default now)")
	_ = fs.Parse(args)

	var pf policyFile
	readJSONFile(*policyPath, &pf)
	p := domain.Policy{
		MinAmountOut:       mustAmount(pf.MinAmountOut, "min_amount_out"),
		ReferenceAmountOut: mustAmount(pf.ReferenceAmountOut, "reference_amount_out"),
		MaxSlippageBps:     pf.MaxSlippageBps,
		Deadline:           pf.Deadline,
	}
	if err := p.ValidateBounds(); err != nil {
		fail(err.Error())
	}
	quotedOut := mustAmount(*quoted, "quoted")
	now := time.Now()
	if *at != 0 {
		now = time.Unix(*at, 0)
	}

	effectiveMin := p.EffectiveMinOut()
	fmt.Printf("slippage bound:    %s\n", p.SlippageBound())
	fmt.Printf("effective min out: %s\n", effectiveMin)
	switch {
	case p.ExpiredAt(now):
		color.New(color.FgRed, color.Bold).Printf("DENIED (%s)\n", domain.ReasonPolicyExpired)
		os.Exit(1)
	case quotedOut.Cmp(effectiveMin) < 0:
		color.New(color.FgRed, color.Bold).Printf("DENIED (%s)\n", domain.ReasonSlippageExceeded)
		os.Exit(1)
	default:
		color.New(color.FgGreen, color.Bold).Printf("ALLOWED (%s)\n", domain.ReasonOK)
	}
}

func loadIntentAndDomain(path string, chainID int64, verifying string) (domain.Intent, intenthash.Domain) {
	var f intentFile
	readJSONFile(path, &f)
	if !common.IsHexAddress(verifying) {
		fail("malformed verifying address")
	}
	in := domain.Intent{
		ID:           common.HexToHash(f.ID),
		User:         common.HexToAddress(f.User),
		TokenIn:      common.HexToAddress(f.TokenIn),
		TokenOut:     common.HexToAddress(f.TokenOut),
		AmountIn:     mustAmount(f.AmountIn, "amount_in"),
		MinAmountOut: mustAmount(f.MinAmountOut, "min_amount_out"),
		Deadline:     f.Deadline,
	}
	dom := intenthash.Domain{
		Name:              "IntentLane",
		Version:           "1",
		ChainID:           big.NewInt(chainID),
		VerifyingContract: common.HexToAddress(verifying),
	}
	return in, dom
}

func readJSONFile(path string, dst any) {
	if path == "" {
		fail(usage)
	}
	b, err := os.ReadFile(path)
	if err != nil {
		fail(err.Error())
	}
	if err := json.Unmarshal(b, dst); err != nil {
		fail("parse " + path + ": " + err.Error())
	}
}

func mustAmount(s, field string) *big.Int {
	v, ok := new(big.Int).SetString(strings.TrimSpace(s), 10)
	if !ok || v.Sign() < 0 {
		fail("malformed " + field + " amount")
	}
	return v
}

func fail(msg string) {
	fmt.Fprintln(os.Stderr, msg)
	os.Exit(2)
}
