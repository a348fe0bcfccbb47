package amm

import (
	"encoding/json"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"pgregory.net/rapid"
)

func addressGen() *rapid.Generator[common.Address] {
	return rapid.Custom(func(t *rapid.T) common.Address {
		return common.BytesToAddress(rapid.SliceOfN(rapid.Byte(), 20, 20).Draw(t, "addr"))
	})
}

func TestPoolKeySymmetric(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		a := addressGen().Draw(t, "a")
		b := addressGen().Draw(t, "b")
		fee := rapid.SampledFrom(DefaultFeeTiers).Draw(t, "fee")
		if PoolKeyFor(a, b, fee) != PoolKeyFor(b, a, fee) {
			t.Fatalf("key differs by argument order")
		}
		token0, token1 := SortTokens(a, b)
		if new(big.Int).SetBytes(token0.Bytes()).Cmp(new(big.Int).SetBytes(token1.Bytes())) > 0 {
			t.Fatalf("tokens not sorted: %s %s", token0.Hex(), token1.Hex())
		}
	})
}

func TestPoolKeyDistinguishesFeeTiers(t *testing.T) {
	a := common.HexToAddress("0x1")
	b := common.HexToAddress("0x2")
	seen := make(map[PoolKey]uint32)
	for _, fee := range DefaultFeeTiers {
		key := PoolKeyFor(a, b, fee)
		if prev, ok := seen[key]; ok {
			t.Fatalf("fee %d collides with %d", fee, prev)
		}
		seen[key] = fee
	}
}

func TestPoolKeyText(t *testing.T) {
	key := PoolKeyFor(common.HexToAddress("0x1"), common.HexToAddress("0x2"), 3000)
	data, err := json.Marshal(map[PoolKey]string{key: "x"})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var back map[PoolKey]string
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if back[key] != "x" {
		t.Fatalf("key lost in round trip: %s", data)
	}
	if _, err := ParsePoolKey("0x1234"); err == nil {
		t.Fatalf("expected length error")
	}
}

func TestMulDivAndSqrtFullPrecision(t *testing.T) {
	top := new(uint256.Int).SetAllOne()
	got, err := MulDiv(top, top, top)
	if err != nil {
		t.Fatalf("muldiv: %v", err)
	}
	if !got.Eq(top) {
		t.Fatalf("muldiv = %s, want top", FormatAmount(got))
	}
	if _, err := MulDiv(top, uint256.NewInt(2), uint256.NewInt(1)); err == nil {
		t.Fatalf("expected overflow")
	}
	if _, err := MulDiv(top, top, nil); err == nil {
		t.Fatalf("expected division by zero")
	}

	root, err := SqrtMul(uint256.NewInt(100_000), uint256.NewInt(100_000))
	if err != nil || root.Uint64() != 100_000 {
		t.Fatalf("sqrt = %v, %v", root, err)
	}
	if _, err := CheckedAdd(top, uint256.NewInt(1)); err == nil {
		t.Fatalf("expected add overflow")
	}
}

func TestParseAmount(t *testing.T) {
	cases := map[string]bool{
		"0":    true,
		"":     true,
		"12":   true,
		"-1":   false,
		"1.5":  false,
		"0x10": false,
		"115792089237316195423570985008687907853269984665640564039457584007913129639936": false,
	}
	for input, ok := range cases {
		_, err := ParseAmount(input)
		if (err == nil) != ok {
			t.Fatalf("ParseAmount(%q) err = %v, want ok=%v", input, err, ok)
		}
	}
}
