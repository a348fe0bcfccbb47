package config

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"ammcore/internal/amm"
)

// ParseAddress converts a hex string into a non-zero common.Address.
func ParseAddress(input string) (common.Address, error) {
	input = strings.TrimSpace(input)
	if !common.IsHexAddress(input) {
		return common.Address{}, fmt.Errorf("invalid address: %q", input)
	}
	addr := common.HexToAddress(input)
	if addr == (common.Address{}) {
		return common.Address{}, fmt.Errorf("zero address")
	}
	return addr, nil
}

// ParseFeeTiers converts fee tier strings into hundredths of a basis point.
// An empty list yields nil, which selects the default tiers.
func ParseFeeTiers(inputs []string) ([]uint32, error) {
	if len(inputs) == 0 {
		return nil, nil
	}
	tiers := make([]uint32, 0, len(inputs))
	for _, input := range inputs {
		val, err := strconv.ParseUint(strings.TrimSpace(input), 10, 32)
		if err != nil {
			return nil, fmt.Errorf("invalid fee tier %q: %w", input, err)
		}
		if val == 0 || val >= amm.FeeDenominator {
			return nil, fmt.Errorf("fee tier %d out of range (0, %d)", val, amm.FeeDenominator)
		}
		tiers = append(tiers, uint32(val))
	}
	return tiers, nil
}

// ParseDecimals converts a token=decimals map.
func ParseDecimals(input map[string]string) (map[string]uint8, error) {
	out := make(map[string]uint8, len(input))
	for token, value := range input {
		val, err := strconv.ParseUint(strings.TrimSpace(value), 10, 8)
		if err != nil {
			return nil, fmt.Errorf("invalid decimals for %s: %w", token, err)
		}
		out[token] = uint8(val)
	}
	return out, nil
}
