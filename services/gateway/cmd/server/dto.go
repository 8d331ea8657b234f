package main

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"intentlane/pkg/domain"
)

func parseAddress(s string) (common.Address, error) {
	s = strings.TrimSpace(s)
	if !common.IsHexAddress(s) {
		return common.Address{}, fmt.Errorf("malformed address %q", s)
	}
	return common.HexToAddress(s), nil
}

func parseHash(s string) (common.Hash, error) {
	s = strings.TrimSpace(s)
	b, err := hexutil.Decode(s)
	if err != nil || len(b) != common.HashLength {
		return common.Hash{}, fmt.Errorf("malformed bytes32 %q", s)
	}
	return common.BytesToHash(b), nil
}

func parseAmountString(s string) (*big.Int, error) {
	s = strings.TrimSpace(s)
	v, ok := new(big.Int).SetString(s, 10)
	if !ok || v.Sign() < 0 {
		return nil, fmt.Errorf("malformed amount %q", s)
	}
	return v, nil
}

func parseIntent(dto intentDTO) (domain.Intent, error) {
	id, err := parseHash(dto.ID)
	if err != nil {
		return domain.Intent{}, err
	}
	user, err := parseAddress(dto.User)
	if err != nil {
		return domain.Intent{}, err
	}
	tokenIn, err := parseAddress(dto.TokenIn)
	if err != nil {
		return domain.Intent{}, err
	}
	tokenOut, err := parseAddress(dto.TokenOut)
	if err != nil {
		return domain.Intent{}, err
	}
	amountIn, err := parseAmountString(dto.AmountIn)
	if err != nil {
		return domain.Intent{}, err
	}
	minOut, err := parseAmountString(dto.MinAmountOut)
	if err != nil {
		return domain.Intent{}, err
	}
	sig, err := hexutil.Decode(strings.TrimSpace(dto.Signature))
	if err != nil {
		return domain.Intent{}, fmt.Errorf("malformed signature: %w", err)
	}
	return domain.Intent{
		ID:           id,
		User:         user,
		TokenIn:      tokenIn,
		TokenOut:     tokenOut,
		AmountIn:     amountIn,
		MinAmountOut: minOut,
		Deadline:     dto.Deadline,
		Signature:    sig,
	}, nil
}

func parseVenueParams(dto venueParamsDTO) (domain.VenueParams, error) {
	poolID, err := parseHash(dto.PoolID)
	if err != nil {
		return domain.VenueParams{}, err
	}
	asset0, err := parseAddress(dto.Asset0)
	if err != nil {
		return domain.VenueParams{}, err
	}
	asset1, err := parseAddress(dto.Asset1)
	if err != nil {
		return domain.VenueParams{}, err
	}
	return domain.VenueParams{
		PoolID: poolID,
		Asset0: asset0,
		Asset1: asset1,
		FeeBps: dto.FeeBps,
	}, nil
}
