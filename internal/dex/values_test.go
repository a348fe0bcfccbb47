package dex

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
)

func TestEmbeddedABIsParse(t *testing.T) {
	for name, doc := range map[string]*lazyABI{"amm": ammEvents, "erc20": erc20Text, "erc20 bytes32": erc20Bytes32} {
		parsed, err := doc.get()
		if err != nil {
			t.Fatalf("%s: %v", name, err)
		}
		if len(parsed.Events)+len(parsed.Methods) == 0 {
			t.Fatalf("%s: empty abi", name)
		}
	}
	raw, _ := erc20Bytes32.get()
	if _, ok := raw.Methods["decimals"]; ok {
		t.Fatalf("bytes32 abi should only cover text getters")
	}
}

func TestValueConversions(t *testing.T) {
	if v, err := asUint8(big.NewInt(18)); err != nil || v != 18 {
		t.Fatalf("asUint8 = %d, %v", v, err)
	}
	if _, err := asUint8(big.NewInt(256)); err == nil {
		t.Fatalf("expected uint8 range error")
	}
	if v, err := asBigInt(uint32(3000)); err != nil || v.Int64() != 3000 {
		t.Fatalf("asBigInt = %v, %v", v, err)
	}
	if _, err := asBigInt("3000"); err == nil {
		t.Fatalf("expected type error")
	}
	addr := common.HexToAddress("0x01")
	if got, err := asAddress(addr); err != nil || got != addr {
		t.Fatalf("asAddress = %s, %v", got.Hex(), err)
	}
	if _, err := asAddress(&addr); err == nil {
		t.Fatalf("expected pointer rejection")
	}
}
