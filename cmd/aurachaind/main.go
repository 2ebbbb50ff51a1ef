package main

// aurachaind – the node daemon. It wires the persistent store, the pool, the
// application registry, the overlay, the bridge and the consensus engine
// together, then runs until interrupted.

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"aurachain/core"
	"aurachain/pkg/config"
	"aurachain/pkg/docflow"
	"aurachain/pkg/wallet"
)

const outboundBuffer = 4096

func main() {
	var configPath string

	root := &cobra.Command{
		Use:   "aurachaind",
		Short: "AURA permissioned blockchain node",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(configPath)
		},
	}
	root.Flags().StringVarP(&configPath, "config", "c", "config.toml", "path to the node TOML configuration")

	if err := root.Execute(); err != nil {
		logrus.Fatalf("%v", err)
	}
}

func run(configPath string) error {
	_ = godotenv.Load()

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if lv, err := logrus.ParseLevel(cfg.Logging.Level); err == nil {
		logrus.SetLevel(lv)
	}

	kp, err := core.KeypairFromSecretHex(cfg.Node.Secret)
	if err != nil {
		return err
	}
	if core.PublicKeyHex(kp) != cfg.Node.Public {
		return fmt.Errorf("secret and public key pair is invalid")
	}
	logrus.Infof("node identity %s (%s)", cfg.Node.Public, cfg.Node.NodeType)

	store, err := core.OpenStore(cfg.Node.DBPath)
	if err != nil {
		return err
	}
	defer store.Close()

	pool := core.NewTransactionPool()
	registry := core.NewAppRegistry()
	for _, app := range []core.AppHandler{wallet.New(), docflow.New()} {
		if err := registry.Register(app); err != nil {
			return err
		}
	}
	logrus.Infof("registered apps: %v", registry.Names())

	outbound := make(chan core.OutboundMessage, outboundBuffer)
	sender := core.NewMessageSender(outbound)
	dispatcher := core.NewMessageDispatcher()

	p2pNode, err := core.NewP2PNode(core.P2PConfig{
		P2PPort:      cfg.Node.P2PPort,
		DiscoveryTag: cfg.Node.DiscoveryTag,
	}, kp)
	if err != nil {
		return err
	}
	defer p2pNode.Close()
	if err := p2pNode.Start(dispatcher, outbound); err != nil {
		return err
	}

	processor := core.NewNodeMsgProcessor(pool)
	go processor.Start(dispatcher.NodeMsgCh)

	bridge := core.NewBridge(store, pool, sender)
	bridgeAddr := fmt.Sprintf("%s:%d", cfg.Node.ClientHost, cfg.Node.ClientPort)
	go func() {
		if err := bridge.Serve(bridgeAddr); err != nil {
			logrus.Errorf("bridge stopped: %v", err)
		}
	}()

	aura, err := core.NewAura(core.AuraConfig{
		ValidatorSet:   cfg.Consensus.ValidatorSet,
		ValidatorIDs:   cfg.Consensus.ValidatorIDs,
		StepTime:       cfg.Consensus.StepTime,
		StartTime:      cfg.Consensus.StartTime,
		RoundNumber:    cfg.Consensus.RoundNumber,
		BlockQueueSize: cfg.Consensus.BlockListSize,
		ForceSealing:   cfg.Consensus.ForceSealing,
		ForgeTimeLimit: time.Duration(cfg.Block.BlockCreationTimeLimit) * time.Microsecond,
	}, kp, store, pool, registry, sender)
	if err != nil {
		return err
	}

	if cfg.Node.GenesisBlock {
		if err := aura.InitState(); err != nil {
			return err
		}
	} else {
		syncClient := core.NewSyncClient(store, pool, registry)
		if err := syncClient.SyncState(cfg.Node.PeerBridges); err != nil {
			logrus.Warnf("state sync incomplete: %v", err)
		}
	}

	stop := make(chan struct{})
	aura.Run(dispatcher.ConsensusMsgCh, stop)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	logrus.Info("shutting down")
	close(stop)
	close(outbound)
	dispatcher.Close()
	return nil
}
