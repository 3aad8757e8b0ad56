package main

import (
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"metaverse/config"
	"metaverse/core/state"
	"metaverse/crypto"
	metaverse "metaverse/native/metaverse"
	"metaverse/observability/logging"
	"metaverse/rpc"
	"metaverse/storage"
	statetrie "metaverse/storage/trie"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

const ownerPassEnv = "MV_OWNER_PASS"

func main() {
	configFile := flag.String("config", "./config.toml", "Path to the configuration file")
	flag.Parse()

	env := strings.TrimSpace(os.Getenv("MV_ENV"))
	logger := logging.Setup("metaversed", env)

	cfg, err := config.Load(*configFile)
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	db, err := storage.NewLevelDB(cfg.DataDir)
	if err != nil {
		panic(fmt.Sprintf("Failed to open database: %v", err))
	}
	defer db.Close()

	ownerKey, err := crypto.LoadFromKeystore(cfg.OwnerKeystorePath, os.Getenv(ownerPassEnv))
	if err != nil {
		panic(fmt.Sprintf("Failed to load owner key: %v", err))
	}
	owner := ownerKey.PubKey().Address()

	tr, err := statetrie.NewTrie(db, nil)
	if err != nil {
		logger.Error("Failed to open state trie", slog.Any("error", err))
		os.Exit(1)
	}
	manager := state.NewManager(tr)

	// The metaverse identity is derived from the network name so that two
	// networks sharing a data dir can never cross-authorize plug-ins.
	var mvID [20]byte
	copy(mvID[:], ethcrypto.Keccak256([]byte(cfg.NetworkName))[:20])

	// Standalone mode runs against the in-memory reference ledger; a
	// production deployment swaps in the external balance ledger here.
	engine := metaverse.NewEngine(mvID, manager, metaverse.NewMemLedger(), metaverse.NewMemBrandRegistry())
	if err := engine.Bootstrap(owner.Array()); err != nil {
		if !errors.Is(err, metaverse.ErrAlreadyRegistered) {
			logger.Error("Failed to bootstrap owner", slog.Any("error", err))
			os.Exit(1)
		}
	}

	logger.Info("metaverse node ready",
		slog.String("network", cfg.NetworkName),
		slog.String("owner", owner.String()),
		slog.String("rpc", cfg.RPCAddress),
	)

	server := rpc.NewServer(engine, cfg.DelegationTimeout())
	if err := server.Start(cfg.RPCAddress); err != nil {
		logger.Error("RPC server stopped", slog.Any("error", err))
		os.Exit(1)
	}
}
