package main

import (
	"context"
	"fmt"

	"github.com/R3E-Network/voting_client/internal/chain"
	"github.com/R3E-Network/voting_client/internal/config"
	"github.com/R3E-Network/voting_client/internal/journal"
	"github.com/R3E-Network/voting_client/internal/voting"
	"github.com/R3E-Network/voting_client/pkg/logger"
)

// runtime is the in-process stack: configuration, wallet and controller.
type runtime struct {
	cfg     *config.Config
	log     *logger.Logger
	ctrl    *voting.Controller
	wallet  chain.Wallet
	closers []func() error
}

func newRuntime(ctx context.Context, opts *rootOptions) (*runtime, error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return nil, err
	}
	if opts.keypairPath != "" {
		cfg.Wallet.KeypairPath = opts.keypairPath
	}
	log := logger.New("votectl", cfg.Logging)

	client, err := chain.NewClient(cfg.ChainClientConfig(log.Named("chain")))
	if err != nil {
		return nil, fmt.Errorf("create chain client: %w", err)
	}
	programID, err := chain.ParseAddress(cfg.Chain.ProgramID)
	if err != nil {
		return nil, fmt.Errorf("program id: %w", err)
	}
	program := chain.NewVotingProgram(client, programID)

	wallet, err := loadWallet(cfg.Wallet)
	if err != nil {
		return nil, err
	}

	rt := &runtime{cfg: cfg, log: log, wallet: wallet}
	store, err := rt.openJournal(ctx)
	if err != nil {
		return nil, err
	}

	repo, err := voting.NewRepository(voting.RepositoryConfig{Reader: program, Logger: log.Named("voting.repository")})
	if err != nil {
		rt.Close()
		return nil, err
	}
	sub, err := voting.NewSubmitter(voting.SubmitterConfig{
		Writer:  program,
		Logger:  log.Named("voting.submitter"),
		Cluster: cfg.Chain.Cluster,
	})
	if err != nil {
		rt.Close()
		return nil, err
	}
	rt.ctrl, err = voting.NewController(voting.ControllerConfig{
		Repository: repo,
		Submitter:  sub,
		Journal:    store,
		Logger:     log.Named("voting.controller"),
	})
	if err != nil {
		rt.Close()
		return nil, err
	}

	fields := map[string]interface{}{"rpc": cfg.Chain.RPCURL, "program": programID.String(), "journal": cfg.Journal.Driver}
	if wallet.PublicKey != nil {
		fields["wallet"] = wallet.PublicKey.String()
	}
	log.WithFields(fields).Debug("runtime ready")
	return rt, nil
}

// loadWallet reads the signing keypair. Without a path the wallet is
// read-only and every write fails with NoWalletConnected.
func loadWallet(cfg config.WalletConfig) (chain.Wallet, error) {
	if cfg.KeypairPath == "" {
		return chain.Wallet{}, nil
	}
	kp, err := chain.KeypairFromFile(cfg.KeypairPath)
	if err != nil {
		return chain.Wallet{}, fmt.Errorf("load keypair: %w", err)
	}
	return chain.KeypairWallet(kp), nil
}

func (r *runtime) openJournal(ctx context.Context) (journal.Store, error) {
	if r.cfg.Journal.Driver != config.JournalPostgres {
		return journal.NewMemoryStore(), nil
	}
	store, err := journal.OpenPostgres(ctx, r.cfg.Journal.DSN)
	if err != nil {
		return nil, err
	}
	r.closers = append(r.closers, store.Close)
	return store, nil
}

// Close releases the journal connection, if any.
func (r *runtime) Close() {
	for _, c := range r.closers {
		if err := c(); err != nil {
			r.log.WithError(err).Warn("close runtime resource")
		}
	}
	r.closers = nil
}
