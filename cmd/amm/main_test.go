package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

const (
	adminHex  = "0xa000000000000000000000000000000000000001"
	aliceHex  = "0xa000000000000000000000000000000000000003"
	tokenAHex = "0x1000000000000000000000000000000000000001"
	tokenBHex = "0x2000000000000000000000000000000000000002"
)

type cli struct {
	t    *testing.T
	dir  string
	base []string
}

func newCLI(t *testing.T) *cli {
	dir := t.TempDir()
	return &cli{
		t:   t,
		dir: dir,
		base: []string{
			"--state-file", filepath.Join(dir, "state.json"),
			"--events-out", filepath.Join(dir, "events.jsonl"),
			"--log-level", "error",
		},
	}
}

func (c *cli) exec(args ...string) (string, error) {
	root := newRootCmd()
	var out, errOut bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs(append(args, c.base...))
	err := root.Execute()
	return out.String(), err
}

func (c *cli) run(args ...string) map[string]string {
	c.t.Helper()
	out, err := c.exec(args...)
	require.NoError(c.t, err, strings.Join(args, " "))
	result := map[string]string{}
	if strings.TrimSpace(out) != "" {
		require.NoError(c.t, json.Unmarshal([]byte(out), &result))
	}
	return result
}

func countLines(t *testing.T, path string) int {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return len(strings.Split(strings.TrimSpace(string(data)), "\n"))
}

func TestCommandsEndToEnd(t *testing.T) {
	c := newCLI(t)

	_, err := c.exec("swap", "--from", aliceHex, "--token-in", tokenAHex, "--token-out", tokenBHex, "--amount-in", "1")
	require.ErrorContains(t, err, "no deployment")

	c.run("init", "--admin", adminHex, "--fee-tiers", "500,3000")
	_, err = c.exec("init", "--admin", adminHex)
	require.ErrorContains(t, err, "already exists")

	for _, tok := range []string{tokenAHex, tokenBHex} {
		c.run("mint", "--token", tok, "--to", aliceHex, "--amount", "1000000")
		c.run("approve", "--from", aliceHex, "--token", tok)
	}

	created := c.run("pool", "create", "--from", aliceHex, "--token-a", tokenBHex, "--token-b", tokenAHex)
	require.NotEmpty(t, created["pool_key"])

	added := c.run("liquidity", "add", "--from", aliceHex, "--token-a", tokenAHex, "--token-b", tokenBHex,
		"--amount-a", "100000", "--amount-b", "100000")
	require.Equal(t, created["pool_key"], added["pool_key"])
	require.Equal(t, "100000", added["shares"])

	quote := c.run("quote", "--token-in", tokenAHex, "--token-out", tokenBHex, "--amount-in", "1000")
	swapped := c.run("swap", "--from", aliceHex, "--token-in", tokenAHex, "--token-out", tokenBHex, "--amount-in", "1000")
	require.Equal(t, quote["amount_out"], swapped["amount_out"])
	require.Equal(t, "3", swapped["fee"])

	c.run("pause", "router")
	_, err = c.exec("swap", "--from", aliceHex, "--token-in", tokenAHex, "--token-out", tokenBHex, "--amount-in", "1000")
	require.ErrorContains(t, err, "paused")
	_, err = c.exec("unpause", "router", "--from", aliceHex)
	require.ErrorContains(t, err, "unauthorized")
	c.run("unpause", "router")

	out, err := c.exec("show")
	require.NoError(t, err)
	var view struct {
		Pools []struct {
			PoolKey  string `json:"pool_key"`
			Reserve0 string `json:"reserve0"`
		} `json:"pools"`
		Paused       map[string]bool   `json:"paused"`
		ProtocolFees map[string]string `json:"protocol_fees"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &view))
	require.Len(t, view.Pools, 1)
	require.Equal(t, "101000", view.Pools[0].Reserve0)
	require.False(t, view.Paused["router"])
	require.Equal(t, "3", view.ProtocolFees["0x1000000000000000000000000000000000000001"])

	c.run("replay")

	typed := filepath.Join(c.dir, "typed.jsonl")
	errs := filepath.Join(c.dir, "errors.jsonl")
	c.run("decode", "--in", filepath.Join(c.dir, "events.jsonl"), "--out", typed, "--errors", errs)
	// two links, pool, deposit, fee, swap, pause, unpause
	require.Equal(t, 8, countLines(t, typed))
	data, err := os.ReadFile(errs)
	require.NoError(t, err)
	require.Empty(t, strings.TrimSpace(string(data)))
}

func TestReplayDetectsTamperedState(t *testing.T) {
	c := newCLI(t)
	c.run("init", "--admin", adminHex)
	for _, tok := range []string{tokenAHex, tokenBHex} {
		c.run("mint", "--token", tok, "--to", aliceHex, "--amount", "1000000")
		c.run("approve", "--from", aliceHex, "--token", tok)
	}
	c.run("pool", "create", "--from", aliceHex, "--token-a", tokenAHex, "--token-b", tokenBHex)
	c.run("liquidity", "add", "--from", aliceHex, "--token-a", tokenAHex, "--token-b", tokenBHex,
		"--amount-a", "50000", "--amount-b", "50000")

	// Drop the deposit from the log; the state still holds its reserves.
	events := filepath.Join(c.dir, "events.jsonl")
	data, err := os.ReadFile(events)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.NoError(t, os.WriteFile(events, []byte(strings.Join(lines[:len(lines)-1], "\n")+"\n"), 0o644))

	_, err = c.exec("replay")
	require.ErrorContains(t, err, "diverges")
}
