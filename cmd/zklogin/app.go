package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/ethereum/go-ethereum/crypto"

	"github.com/dtroode/zklogin-recovery/internal/chain"
	"github.com/dtroode/zklogin-recovery/internal/client/backend"
	"github.com/dtroode/zklogin-recovery/internal/client/idp"
	"github.com/dtroode/zklogin-recovery/internal/config"
	"github.com/dtroode/zklogin-recovery/internal/logger"
	"github.com/dtroode/zklogin-recovery/internal/repository/leveldb"
	"github.com/dtroode/zklogin-recovery/internal/service"
	storage "github.com/dtroode/zklogin-recovery/internal/storage/minio"
)

// app holds the wired recovery flow of one CLI invocation.
type app struct {
	recovery *service.Recovery
	network  config.Network
	store    *leveldb.Store
}

func newApp(ctx context.Context, cfg *config.ClientConfig, logger *logger.Logger) (*app, error) {
	network, err := cfg.ResolveNetwork()
	if err != nil {
		return nil, err
	}
	verifier, factory, idpAddr, err := network.Addresses()
	if err != nil {
		return nil, err
	}

	if cfg.Eth.PrivateKey == "" {
		return nil, errors.New("ETH_PRIVATE_KEY is not set")
	}
	key, err := crypto.HexToECDSA(strings.TrimPrefix(cfg.Eth.PrivateKey, "0x"))
	if err != nil {
		return nil, fmt.Errorf("failed to parse ETH_PRIVATE_KEY: %w", err)
	}

	chainClient, err := chain.Dial(ctx, network.RPCURL, key, chain.Contracts{
		Factory:  factory,
		Verifier: verifier,
		Idp:      idpAddr,
	}, logger)
	if err != nil {
		return nil, err
	}
	chainClient.SetPollInterval(cfg.Eth.PollInterval)

	idpClient := idp.NewClient(idp.Config{
		AuthURL:      cfg.OAuth.AuthURL,
		TokenURL:     cfg.OAuth.TokenURL,
		JWKSURL:      cfg.OAuth.JWKSURL,
		ClientID:     cfg.OAuth.ClientID,
		ClientSecret: cfg.OAuth.ClientSecret,
		RedirectURI:  cfg.OAuth.RedirectURI,
		Scope:        cfg.OAuth.Scope,
	}, nil, logger)

	svc := service.RecoveryServices{
		Idp:    idpClient,
		Chain:  chainClient,
		Prover: backend.NewClient("prover", cfg.Backend.ProverURL, &http.Client{Timeout: backend.ProveTimeout}, logger),
	}
	if cfg.Backend.UseRemote {
		remote := backend.NewClient("backend", cfg.Backend.URL, &http.Client{Timeout: cfg.Backend.Timeout}, logger)
		svc.Nonce = remote
		svc.Salt = remote
		svc.ZkAddr = remote
	}
	if cfg.Storage.Enabled {
		archive, err := storage.New(ctx, storage.Options{
			Endpoint:  cfg.Storage.Endpoint,
			AccessKey: cfg.Storage.AccessKey,
			SecretKey: cfg.Storage.SecretKey,
			Bucket:    cfg.Storage.Bucket,
			UseSSL:    cfg.Storage.UseSSL,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize proof archive: %w", err)
		}
		svc.Archive = archive
	}

	store, err := leveldb.Open(cfg.DataDir)
	if err != nil {
		return nil, err
	}

	recovery := service.NewRecovery(store, svc, service.RecoveryConfig{
		Owner:    chainClient.From(),
		Verifier: verifier,
		Idp:      idpAddr,
		SaltSeed: cfg.Backend.SaltSeed,
	}, logger)

	logger.Debug("CLI: wired", "network", network.Name, "chain_id", network.ChainID, "owner", chainClient.From())

	return &app{
		recovery: recovery,
		network:  network,
		store:    store,
	}, nil
}

func (a *app) Close() error {
	return a.store.Close()
}

// wallet resumes the session and walks it up to the resolved wallet.
func (a *app) wallet(ctx context.Context) (service.Wallet, error) {
	if err := a.recovery.Resume(ctx); err != nil {
		return service.Wallet{}, err
	}
	if _, err := a.recovery.DeriveIdentity(ctx); err != nil {
		return service.Wallet{}, err
	}
	return a.recovery.ResolveWallet(ctx)
}
