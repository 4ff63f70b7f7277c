package main

import (
	"context"
	"os"

	"github.com/sirupsen/logrus"

	"github.com/runkernel/kernel/internal/cache"
	"github.com/runkernel/kernel/internal/chain"
	"github.com/runkernel/kernel/internal/owner"
	"github.com/runkernel/kernel/internal/purse"
	"github.com/runkernel/kernel/pkg/config"
	"github.com/runkernel/kernel/pkg/kernel"
	"github.com/runkernel/kernel/pkg/utils"
)

// newKernel wires a Kernel from cfg, the way a deployed node assembles its
// adapters from one config object before handing them to pkg/kernel.New.
func newKernel(ctx context.Context, cfg *config.Config) (*kernel.Kernel, error) {
	log := logrus.New()
	if lvl, err := logrus.ParseLevel(cfg.Logging.Level); err == nil {
		log.SetLevel(lvl)
	}

	var chainAdapter kernel.ChainAdapter
	if cfg.Chain.Memory {
		chainAdapter = chain.NewMem()
	} else {
		node, err := chain.New(ctx, cfg.Chain.ListenAddr, cfg.Chain.BootstrapPeers, cfg.Chain.DiscoveryTag, log)
		if err != nil {
			return nil, utils.Wrap(err, "start chain adapter")
		}
		chainAdapter = node
	}

	c, err := cache.New(cfg.Cache.Dir, cfg.Cache.MaxEntries, nil)
	if err != nil {
		return nil, utils.Wrap(err, "open cache")
	}

	mnemonic := os.Getenv(cfg.Owner.MnemonicEnvVar)
	var wallet *owner.Wallet
	if mnemonic != "" {
		wallet, err = owner.FromMnemonic(mnemonic, "", log)
		if err != nil {
			return nil, utils.Wrap(err, "restore wallet from mnemonic")
		}
	} else {
		var generated string
		wallet, generated, err = owner.NewRandom(log)
		if err != nil {
			return nil, utils.Wrap(err, "generate wallet")
		}
		log.Warnf("no %s set: generated an ephemeral wallet (mnemonic: %s)", cfg.Owner.MnemonicEnvVar, generated)
	}

	p := purse.New(cfg.Purse.FeeratePerByte, wallet, nil)

	k := kernel.New(kernel.Options{
		Log:          log,
		Chain:        chainAdapter,
		Cache:        c,
		Wallet:       wallet,
		Purse:        p,
		QueueBacklog: cfg.Queue.Backlog,
		TrustAll:     cfg.Trust.TrustAll,
		ClientMode:   cfg.ClientMode,
		Classes:      demoClasses,
	})
	return k, nil
}
