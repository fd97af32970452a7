package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/alejandrodnm/derby/config"
	"github.com/alejandrodnm/derby/internal/adapters/chain"
	"github.com/alejandrodnm/derby/internal/adapters/notify"
	"github.com/alejandrodnm/derby/internal/domain"
)

// runSimulate corre una simulación suelta, sin ledger. Sirve para
// reproducir el resultado de una carrera a partir de su seed.
func runSimulate(cfg *config.Config, seedHex, scoresCSV string) error {
	scores, err := parseScores(scoresCSV)
	if err != nil {
		return fmt.Errorf("runSimulate: %w", err)
	}
	gen, err := domain.ParseGeneration(cfg.Race.Generation)
	if err != nil {
		return fmt.Errorf("runSimulate: %w", err)
	}

	seed := chain.BlockEntropy(common.HexToHash(cfg.Chain.Genesis), cfg.Chain.StartHeight)
	if seedHex != "" {
		b, err := hexutil.Decode(seedHex)
		if err != nil || len(b) != common.HashLength {
			return fmt.Errorf("runSimulate: seed must be 32 bytes of 0x-prefixed hex")
		}
		seed = common.BytesToHash(b)
	}

	out, err := domain.Simulate(seed, scores, gen)
	if err != nil {
		return fmt.Errorf("runSimulate: %w", err)
	}
	notify.NewConsole(true).PrintOutcome(scores, out)
	return nil
}

func parseScores(csv string) (domain.Scores, error) {
	var scores domain.Scores
	parts := strings.Split(csv, ",")
	if len(parts) != domain.LaneCount {
		return scores, fmt.Errorf("parseScores: want %d scores, got %d", domain.LaneCount, len(parts))
	}
	for i, p := range parts {
		v, err := strconv.ParseUint(strings.TrimSpace(p), 10, 8)
		if err != nil {
			return scores, fmt.Errorf("parseScores: lane %d: %w", i, err)
		}
		scores[i] = uint8(v)
	}
	return scores, nil
}
