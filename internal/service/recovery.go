package service

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	"github.com/dtroode/zklogin-recovery/internal/idtoken"
	"github.com/dtroode/zklogin-recovery/internal/keypair"
	"github.com/dtroode/zklogin-recovery/internal/logger"
	"github.com/dtroode/zklogin-recovery/internal/model"
	"github.com/dtroode/zklogin-recovery/internal/nonce"
	"github.com/dtroode/zklogin-recovery/internal/owner"
	"github.com/dtroode/zklogin-recovery/internal/proof"
	"github.com/dtroode/zklogin-recovery/internal/salt"
	"github.com/dtroode/zklogin-recovery/internal/zkaddr"
)

// RecoveryConfig holds the addresses the recovery flow works against.
type RecoveryConfig struct {
	// Owner is the initial owner the wallet address is derived from.
	Owner    common.Address
	Verifier common.Address
	Idp      common.Address
	// SaltSeed is used when no remote SaltService is configured.
	SaltSeed string
}

// RecoveryServices are the collaborators of the recovery flow. Nonce,
// Salt, ZkAddr and Archive are optional.
type RecoveryServices struct {
	Idp     model.IdentityProvider
	Chain   model.WalletChain
	Prover  model.ProverService
	Nonce   model.NonceService
	Salt    model.SaltService
	ZkAddr  model.ZkAddrService
	Archive model.ProofArchive
}

// LoginRequest is the result of StartLogin.
type LoginRequest struct {
	SessionID uuid.UUID
	URL       string
	Nonce     string
	Ephemeral common.Address
}

// Identity is the derived identity of the signed-in user.
type Identity struct {
	Iss    string
	Aud    string
	Sub    string
	Salt   model.Salt
	ZkAddr model.ZkAddress
}

// Wallet is the last observed on-chain view of the smart wallet.
type Wallet struct {
	Address          common.Address
	Deployed         bool
	RegisteredZkAddr model.ZkAddress
	Owners           []model.OwnerRecord
}

// Snapshot is a read-only view of the session.
type Snapshot struct {
	SessionID   uuid.UUID
	State       model.State
	Ephemeral   common.Address
	Identity    *Identity
	Wallet      *Wallet
	ProofCached bool
	LastTx      common.Hash
}

type session struct {
	id         uuid.UUID
	generation uint64
	state      model.State

	keypair    *model.EphemeralKeypair
	identity   *model.OAuthIdentity
	derived    *Identity
	wallet     *Wallet
	proof      *model.ProofPayload
	proofOwner common.Address
	lastTx     common.Hash
}

// Recovery drives one sign-in and recovery session. It is safe for
// concurrent use: network calls run outside the lock and every transition
// re-checks the session generation it started from.
type Recovery struct {
	store   model.SessionStore
	svc     RecoveryServices
	cfg     RecoveryConfig
	binder  *nonce.Binder
	salts   *salt.Deriver
	zkAddrs *zkaddr.Deriver
	logger  *logger.Logger
	mu      sync.Mutex
	sess    session
	// loginInFlight is set while a StartLogin holds the login slot.
	loginInFlight bool
	keypairs      func() (model.EphemeralKeypair, error)
}

func NewRecovery(store model.SessionStore, svc RecoveryServices, cfg RecoveryConfig, logger *logger.Logger) *Recovery {
	if cfg.SaltSeed == "" {
		cfg.SaltSeed = salt.DefaultSeed
	}
	return &Recovery{
		store:    store,
		svc:      svc,
		cfg:      cfg,
		binder:   nonce.NewBinder(),
		salts:    salt.NewDeriver(cfg.SaltSeed),
		zkAddrs:  zkaddr.NewDeriver(),
		logger:   logger,
		sess:     session{id: uuid.New()},
		keypairs: keypair.Generate,
	}
}

// StartLogin creates a fresh ephemeral keypair and returns the provider
// sign-in URL carrying its nonce.
func (s *Recovery) StartLogin(ctx context.Context) (LoginRequest, error) {
	_, gen, err := s.begin("start login", model.StateUnauthenticated, model.StateAwaitingCallback)
	if err != nil {
		return LoginRequest{}, err
	}
	if err := s.reserveLogin(gen); err != nil {
		return LoginRequest{}, err
	}
	defer s.releaseLogin()

	kp, err := s.keypairs()
	if err != nil {
		return LoginRequest{}, fmt.Errorf("failed to generate keypair: %w", err)
	}

	n, err := s.binder.Bind(kp.PublicKey(), kp.Randomness)
	if err != nil {
		return LoginRequest{}, fmt.Errorf("failed to bind nonce: %w", err)
	}
	if s.svc.Nonce != nil {
		remote, err := s.svc.Nonce.Nonce(ctx, kp.Address.Hex(), kp.RandomnessHex())
		if err != nil {
			return LoginRequest{}, fmt.Errorf("failed to get remote nonce: %w", err)
		}
		if remote != n {
			s.logger.Error("Recovery: remote nonce differs from local binding", "local", n, "remote", remote)
			return LoginRequest{}, fmt.Errorf("%w: remote nonce differs from local binding", model.ErrBinding)
		}
	}

	if err := s.store.Append(ctx, kp); err != nil {
		return LoginRequest{}, fmt.Errorf("failed to store keypair: %w", err)
	}

	req := LoginRequest{
		SessionID: uuid.New(),
		URL:       s.svc.Idp.AuthorizationURL(n),
		Nonce:     n,
		Ephemeral: kp.Address,
	}

	err = s.commit(gen, func(sess *session) {
		*sess = session{
			id:         req.SessionID,
			generation: sess.generation,
			state:      model.StateAwaitingCallback,
			keypair:    &kp,
		}
	})
	if err != nil {
		return LoginRequest{}, err
	}

	s.logger.Info("Recovery: login started", "session", req.SessionID, "ephemeral", kp.Address)
	return req, nil
}

// HandleCallback accepts the id token returned by the provider. The token
// nonce must bind the latest stored keypair; otherwise the local state is
// cleared and the session restarts.
func (s *Recovery) HandleCallback(ctx context.Context, rawToken string) error {
	_, gen, err := s.begin("handle callback", model.StateAwaitingCallback)
	if err != nil {
		return err
	}

	id, kp, err := s.bind(ctx, rawToken)
	if err != nil {
		return s.fail(ctx, err)
	}
	if err := s.store.SaveToken(ctx, rawToken); err != nil {
		return fmt.Errorf("failed to store id token: %w", err)
	}

	err = s.commit(gen, func(sess *session) {
		sess.state = model.StateAuthenticated
		sess.keypair = &kp
		sess.identity = &id
	})
	if err != nil {
		return err
	}

	s.logger.Info("Recovery: authenticated", "iss", id.Payload.Iss, "sub", id.Payload.Sub)
	return nil
}

// HandleCode exchanges an authorization code and handles the resulting
// id token.
func (s *Recovery) HandleCode(ctx context.Context, code string) error {
	if _, _, err := s.begin("handle code", model.StateAwaitingCallback); err != nil {
		return err
	}
	if code == "" {
		return fmt.Errorf("%w: empty authorization code", model.ErrValidation)
	}

	resp, err := s.svc.Idp.Exchange(ctx, code)
	if err != nil {
		return fmt.Errorf("failed to exchange authorization code: %w", err)
	}
	return s.HandleCallback(ctx, resp.IDToken)
}

// Resume rebuilds the session of a fresh process from the local store.
func (s *Recovery) Resume(ctx context.Context) error {
	_, gen, err := s.begin("resume", model.StateUnauthenticated)
	if err != nil {
		return err
	}

	kp, err := s.store.Latest(ctx)
	if errors.Is(err, model.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to load keypair: %w", err)
	}

	raw, err := s.store.LoadToken(ctx)
	if errors.Is(err, model.ErrNotFound) {
		return s.commit(gen, func(sess *session) {
			sess.state = model.StateAwaitingCallback
			sess.keypair = &kp
		})
	}
	if err != nil {
		return fmt.Errorf("failed to load id token: %w", err)
	}

	id, kp, err := s.bind(ctx, raw)
	if err != nil {
		return s.fail(ctx, err)
	}

	err = s.commit(gen, func(sess *session) {
		sess.state = model.StateAuthenticated
		sess.keypair = &kp
		sess.identity = &id
	})
	if err != nil {
		return err
	}

	s.logger.Debug("Recovery: session resumed", "sub", id.Payload.Sub, "ephemeral", kp.Address)
	return nil
}

// DeriveIdentity derives the salt and zkAddr of the signed-in identity.
func (s *Recovery) DeriveIdentity(ctx context.Context) (Identity, error) {
	sess, gen, err := s.beginAtLeast("derive identity", model.StateAuthenticated)
	if err != nil {
		return Identity{}, err
	}
	if sess.derived != nil {
		return *sess.derived, nil
	}

	claims := sess.identity.Payload
	if err := zkaddr.Validate(claims.Iss, claims.Aud, claims.Sub); err != nil {
		return Identity{}, err
	}

	var userSalt model.Salt
	if s.svc.Salt != nil {
		userSalt, err = s.svc.Salt.Salt(ctx, claims.Iss, claims.Aud, claims.Sub)
	} else {
		userSalt, err = s.salts.Derive(claims.Iss, claims.Aud, claims.Sub)
	}
	if err != nil {
		return Identity{}, fmt.Errorf("failed to derive salt: %w", err)
	}

	zk, err := s.zkAddrs.ZkAddr(ctx, claims.Iss, claims.Aud, claims.Sub, userSalt)
	if err != nil {
		return Identity{}, fmt.Errorf("failed to derive zk address: %w", err)
	}
	if s.svc.ZkAddr != nil {
		remote, err := s.svc.ZkAddr.ZkAddr(ctx, claims.Iss, claims.Aud, claims.Sub, userSalt)
		if err != nil {
			return Identity{}, fmt.Errorf("failed to get remote zk address: %w", err)
		}
		if remote != zk {
			s.logger.Error("Recovery: remote zk address differs", "local", zk.Hex(), "remote", remote.Hex())
			return Identity{}, fmt.Errorf("zk address: %w", model.ErrDerivationMismatch)
		}
	}

	identity := Identity{Iss: claims.Iss, Aud: claims.Aud, Sub: claims.Sub, Salt: userSalt, ZkAddr: zk}
	err = s.commit(gen, func(sess *session) {
		sess.derived = &identity
		if sess.state == model.StateAuthenticated {
			sess.state = model.StateIdentityDerived
		}
	})
	if err != nil {
		return Identity{}, err
	}

	s.logger.Info("Recovery: identity derived", "zk_addr", zk.Hex())
	return identity, nil
}

// ResolveWallet computes the counterfactual wallet address and reads its
// on-chain state.
func (s *Recovery) ResolveWallet(ctx context.Context) (Wallet, error) {
	sess, gen, err := s.beginAtLeast("resolve wallet", model.StateIdentityDerived)
	if err != nil {
		return Wallet{}, err
	}

	account, err := s.svc.Chain.WalletAddress(ctx, s.cfg.Owner)
	if err != nil {
		return Wallet{}, fmt.Errorf("failed to get wallet address: %w", err)
	}

	wallet, err := s.observe(ctx, account)
	if err != nil {
		return Wallet{}, err
	}

	err = s.commit(gen, func(next *session) {
		next.wallet = &wallet
		next.state = s.walletState(wallet, sess.keypair)
	})
	if err != nil {
		return Wallet{}, err
	}

	s.logger.Info("Recovery: wallet resolved", "account", account, "deployed", wallet.Deployed)
	return wallet, nil
}

// DeployWallet creates the wallet through the factory.
func (s *Recovery) DeployWallet(ctx context.Context) error {
	sess, gen, err := s.begin("deploy wallet", model.StateWalletResolved)
	if err != nil {
		return err
	}

	tx, err := s.svc.Chain.CreateAccount(ctx, s.cfg.Owner)
	if err != nil {
		return fmt.Errorf("failed to create wallet: %w", err)
	}

	wallet, err := s.observe(ctx, sess.wallet.Address)
	if err != nil {
		return err
	}
	if !wallet.Deployed {
		return fmt.Errorf("failed to deploy wallet %s: %w", wallet.Address, model.ErrWalletNotDeployed)
	}

	err = s.commit(gen, func(next *session) {
		next.wallet = &wallet
		next.lastTx = tx
		next.state = s.walletState(wallet, sess.keypair)
	})
	if err != nil {
		return err
	}

	s.logger.Info("Recovery: wallet deployed", "account", wallet.Address, "tx", tx)
	return nil
}

// LinkRecovery registers the verifier as an owner and stores the zkAddr
// in one atomic batch.
func (s *Recovery) LinkRecovery(ctx context.Context) error {
	sess, gen, err := s.begin("link recovery", model.StateRecoveryPending)
	if err != nil {
		return err
	}

	tx, err := s.svc.Chain.LinkRecovery(ctx, sess.wallet.Address, sess.derived.ZkAddr)
	if err != nil {
		return fmt.Errorf("failed to link recovery: %w", err)
	}

	wallet, err := s.observe(ctx, sess.wallet.Address)
	if err != nil {
		s.logger.Error("Recovery: failed to re-read wallet after linking", "error", err)
		wallet = *sess.wallet
		wallet.RegisteredZkAddr = sess.derived.ZkAddr
	}

	err = s.commit(gen, func(next *session) {
		next.wallet = &wallet
		next.lastTx = tx
		next.state = model.StateRecoveryLinked
	})
	if err != nil {
		return err
	}

	s.logger.Info("Recovery: recovery linked", "account", wallet.Address, "tx", tx)
	return nil
}

// AddEphemeralOwner proves control of the linked identity and adds the
// current ephemeral address as a wallet owner.
func (s *Recovery) AddEphemeralOwner(ctx context.Context) error {
	sess, gen, err := s.begin("add ephemeral owner", model.StateRecoveryLinked)
	if err != nil {
		return err
	}
	id := sess.identity

	key, err := s.svc.Idp.Key(ctx, id.Kid)
	if err != nil {
		return fmt.Errorf("failed to get provider key: %w", err)
	}
	if err := idtoken.Verify(*id, key); err != nil {
		return s.fail(ctx, err)
	}

	jwtHash, err := signedHash(id.Raw)
	if err != nil {
		return s.fail(ctx, err)
	}

	payload := sess.proof
	if payload == nil || sess.proofOwner != sess.keypair.Address {
		p, err := s.obtainProof(ctx, archiveKey(jwtHash, sess.keypair.Address), sess, key)
		if err != nil {
			return err
		}
		payload = &p
		if err := s.cacheProof(gen, p, sess.keypair.Address); err != nil {
			return err
		}
	}

	tx, err := s.svc.Chain.RecoverAccount(ctx, model.RecoveryCall{
		Account:       sess.wallet.Address,
		Idp:           s.cfg.Idp,
		JwtHash:       jwtHash,
		JwtHeaderJSON: id.HeaderJSON,
		JwtSignature:  id.Signature,
		NewOwner:      sess.keypair.Address,
		Proof:         *payload,
	})
	if err != nil {
		s.logger.Error("Recovery: recoverAccount failed", "account", sess.wallet.Address, "error", err)
		return fmt.Errorf("failed to recover account: %w", err)
	}

	wallet, err := s.observe(ctx, sess.wallet.Address)
	if err != nil {
		s.logger.Error("Recovery: failed to re-read wallet after recovery", "error", err)
		wallet = *sess.wallet
	}

	err = s.commit(gen, func(next *session) {
		next.wallet = &wallet
		next.lastTx = tx
		next.state = model.StateOwnerAdded
	})
	if err != nil {
		return err
	}

	s.logger.Info("Recovery: ephemeral owner added", "account", wallet.Address, "owner", sess.keypair.Address, "tx", tx)
	return nil
}

// Refresh re-reads the wallet and reclassifies its owners. Before a wallet
// is resolved it only returns the current snapshot.
func (s *Recovery) Refresh(ctx context.Context) (Snapshot, error) {
	s.mu.Lock()
	sess := s.sess
	s.mu.Unlock()

	if sess.wallet == nil || !sess.state.AtLeast(model.StateWalletResolved) {
		return s.Snapshot(), nil
	}

	wallet, err := s.observe(ctx, sess.wallet.Address)
	if err != nil {
		return s.Snapshot(), err
	}

	err = s.commit(sess.generation, func(next *session) {
		next.wallet = &wallet
		next.state = s.walletState(wallet, sess.keypair)
	})
	if err != nil {
		return s.Snapshot(), err
	}

	return s.Snapshot(), nil
}

// RemoveOwner removes the owner at index as last observed. A slot that
// changed on-chain since then fails with ErrOwnerIndexConflict.
func (s *Recovery) RemoveOwner(ctx context.Context, index uint64) error {
	sess, gen, err := s.beginAtLeast("remove owner", model.StateRecoveryPending)
	if err != nil {
		return err
	}

	owners := sess.wallet.Owners
	if index >= uint64(len(owners)) {
		return fmt.Errorf("owner %d is not known, refresh first: %w", index, model.ErrOwnerIndexConflict)
	}
	target := owners[index]
	if target.Classification == model.ClassificationRemoved {
		return fmt.Errorf("%w: owner %d is already removed", model.ErrValidation, index)
	}

	tx, err := s.svc.Chain.RemoveOwnerAtIndex(ctx, sess.wallet.Address, index, target.Owner())
	if err != nil {
		return fmt.Errorf("failed to remove owner %d: %w", index, err)
	}

	wallet, err := s.observe(ctx, sess.wallet.Address)
	if err != nil {
		return err
	}

	err = s.commit(gen, func(next *session) {
		next.wallet = &wallet
		next.lastTx = tx
		next.state = s.walletState(wallet, sess.keypair)
	})
	if err != nil {
		return err
	}

	s.logger.Info("Recovery: owner removed", "account", wallet.Address, "index", index, "owner", target.Owner().String(), "tx", tx)
	return nil
}

// Logout clears the local store and resets the session.
func (s *Recovery) Logout(ctx context.Context) error {
	if err := s.reset(ctx); err != nil {
		return err
	}
	s.logger.Info("Recovery: logged out")
	return nil
}

// Snapshot returns a copy of the session.
func (s *Recovery) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := Snapshot{
		SessionID:   s.sess.id,
		State:       s.sess.state,
		ProofCached: s.sess.proof != nil,
		LastTx:      s.sess.lastTx,
	}
	if s.sess.keypair != nil {
		snap.Ephemeral = s.sess.keypair.Address
	}
	if s.sess.derived != nil {
		d := *s.sess.derived
		snap.Identity = &d
	}
	if s.sess.wallet != nil {
		w := *s.sess.wallet
		w.Owners = make([]model.OwnerRecord, len(s.sess.wallet.Owners))
		for i, o := range s.sess.wallet.Owners {
			o.PublicKey = bytes.Clone(o.PublicKey)
			w.Owners[i] = o
		}
		snap.Wallet = &w
	}
	return snap
}

func (s *Recovery) begin(op string, allowed ...model.State) (session, uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, st := range allowed {
		if s.sess.state == st {
			return s.sess, s.sess.generation, nil
		}
	}
	return session{}, 0, fmt.Errorf("%s in state %s: %w", op, s.sess.state, model.ErrInvalidState)
}

func (s *Recovery) beginAtLeast(op string, min model.State) (session, uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.sess.state.AtLeast(min) {
		return session{}, 0, fmt.Errorf("%s in state %s: %w", op, s.sess.state, model.ErrInvalidState)
	}
	return s.sess, s.sess.generation, nil
}

// commit applies a transition if the session is still at generation gen.
// The generation advances whenever the state or session id changes.
func (s *Recovery) commit(gen uint64, apply func(*session)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.sess.generation != gen {
		return model.ErrStaleTransition
	}
	prevState, prevID := s.sess.state, s.sess.id
	apply(&s.sess)
	if s.sess.state != prevState || s.sess.id != prevID {
		s.sess.generation = gen + 1
	}
	return nil
}

// reserveLogin claims the login slot for a StartLogin begun at generation
// gen. Only the holder may append a keypair.
func (s *Recovery) reserveLogin(gen uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.loginInFlight || s.sess.generation != gen {
		return fmt.Errorf("start login: %w", model.ErrStaleTransition)
	}
	s.loginInFlight = true
	return nil
}

func (s *Recovery) releaseLogin() {
	s.mu.Lock()
	s.loginInFlight = false
	s.mu.Unlock()
}

func (s *Recovery) cacheProof(gen uint64, p model.ProofPayload, eph common.Address) error {
	return s.commit(gen, func(sess *session) {
		sess.proof = &p
		sess.proofOwner = eph
	})
}

// bind parses raw and checks its nonce against the latest stored keypair.
func (s *Recovery) bind(ctx context.Context, raw string) (model.OAuthIdentity, model.EphemeralKeypair, error) {
	id, err := idtoken.Parse(raw)
	if err != nil {
		return model.OAuthIdentity{}, model.EphemeralKeypair{}, err
	}

	kp, err := s.store.Latest(ctx)
	if errors.Is(err, model.ErrNotFound) {
		return model.OAuthIdentity{}, model.EphemeralKeypair{}, fmt.Errorf("%w: no keypair to bind", model.ErrBinding)
	}
	if err != nil {
		return model.OAuthIdentity{}, model.EphemeralKeypair{}, fmt.Errorf("failed to load keypair: %w", err)
	}

	if !s.binder.Verify(id.Payload.Nonce, kp.PublicKey(), kp.Randomness) {
		return model.OAuthIdentity{}, model.EphemeralKeypair{}, fmt.Errorf("%w: token nonce does not bind keypair %s", model.ErrBinding, kp.Address)
	}
	return id, kp, nil
}

// fail resets the session on binding and token errors and returns err.
func (s *Recovery) fail(ctx context.Context, err error) error {
	if !errors.Is(err, model.ErrBinding) && !errors.Is(err, model.ErrMalformedToken) {
		return err
	}
	s.logger.Error("Recovery: discarding session", "error", err)
	if rerr := s.reset(ctx); rerr != nil {
		return errors.Join(err, rerr)
	}
	return err
}

func (s *Recovery) reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.store.Clear(ctx); err != nil {
		return fmt.Errorf("failed to clear local store: %w", err)
	}
	s.sess = session{id: uuid.New(), generation: s.sess.generation + 1}
	return nil
}

// observe reads deployment, registration and owners of account.
func (s *Recovery) observe(ctx context.Context, account common.Address) (Wallet, error) {
	w := Wallet{Address: account}

	deployed, err := s.svc.Chain.IsDeployed(ctx, account)
	if err != nil {
		return Wallet{}, fmt.Errorf("failed to check wallet deployment: %w", err)
	}
	w.Deployed = deployed
	if !deployed {
		return w, nil
	}

	w.RegisteredZkAddr, err = s.svc.Chain.RegisteredZkAddr(ctx, account)
	if err != nil {
		return Wallet{}, fmt.Errorf("failed to read registered zk address: %w", err)
	}

	owners, err := s.svc.Chain.Owners(ctx, account)
	if err != nil {
		return Wallet{}, fmt.Errorf("failed to read owners: %w", err)
	}
	known, err := s.store.All(ctx)
	if err != nil {
		return Wallet{}, fmt.Errorf("failed to load keypairs: %w", err)
	}
	w.Owners = owner.Reconcile(owners, s.cfg.Verifier, common.Address{}, owner.LocalSet(known))

	return w, nil
}

// walletState maps on-chain facts to a state. A linked wallet that already
// has the current ephemeral address as owner is OwnerAdded.
func (s *Recovery) walletState(w Wallet, kp *model.EphemeralKeypair) model.State {
	if !w.Deployed {
		return model.StateWalletResolved
	}
	if _, ok := owner.Find(w.Owners, model.ClassificationZkLogin); !ok || w.RegisteredZkAddr.IsZero() {
		return model.StateRecoveryPending
	}
	if kp != nil {
		for _, o := range w.Owners {
			if o.Address == kp.Address {
				return model.StateOwnerAdded
			}
		}
	}
	return model.StateRecoveryLinked
}

// obtainProof returns the archived proof under key or requests a new one.
func (s *Recovery) obtainProof(ctx context.Context, key string, sess session, idpKey model.ProviderKey) (model.ProofPayload, error) {
	if s.svc.Archive != nil {
		p, err := s.archived(ctx, key)
		if err == nil {
			s.logger.Debug("Recovery: reusing archived proof", "key", key)
			return p, nil
		}
		if !errors.Is(err, model.ErrNotFound) {
			s.logger.Error("Recovery: failed to read archived proof", "key", key, "error", err)
		}
	}

	id := sess.identity
	blob, err := s.svc.Prover.Prove(ctx, model.ProofRequest{
		EphPubKeyHex:       sess.keypair.Address.Hex(),
		IdpPubKeyNBase64:   idpKey.N,
		JwtHeaderJSON:      id.HeaderJSON,
		JwtPayloadJSON:     id.PayloadJSON,
		JwtSignatureBase64: signatureSegment(id.Raw),
		JwtRndHex:          sess.keypair.RandomnessHex(),
		UserSaltHex:        sess.derived.Salt.Hex(),
	})
	if err != nil {
		return model.ProofPayload{}, fmt.Errorf("failed to generate proof: %w", err)
	}

	p, err := proof.DecodeString(blob)
	if err != nil {
		return model.ProofPayload{}, err
	}

	if s.svc.Archive != nil {
		if err := s.svc.Archive.Upload(ctx, key, bytes.NewReader(proof.Encode(p))); err != nil {
			s.logger.Error("Recovery: failed to archive proof", "key", key, "error", err)
		}
	}
	return p, nil
}

func (s *Recovery) archived(ctx context.Context, key string) (model.ProofPayload, error) {
	ok, err := s.svc.Archive.Exists(ctx, key)
	if err != nil {
		return model.ProofPayload{}, err
	}
	if !ok {
		return model.ProofPayload{}, model.ErrNotFound
	}

	r, err := s.svc.Archive.Download(ctx, key)
	if err != nil {
		return model.ProofPayload{}, err
	}
	defer r.Close()

	blob, err := io.ReadAll(r)
	if err != nil {
		return model.ProofPayload{}, fmt.Errorf("failed to read archived proof: %w", err)
	}
	return proof.Decode(blob)
}

// signedHash returns sha256 over the signed "header.payload" segments.
func signedHash(raw string) ([32]byte, error) {
	parts := strings.Split(raw, ".")
	if len(parts) != 3 {
		return [32]byte{}, fmt.Errorf("%w: expected 3 segments, got %d", model.ErrMalformedToken, len(parts))
	}
	return sha256.Sum256([]byte(parts[0] + "." + parts[1])), nil
}

func signatureSegment(raw string) string {
	if i := strings.LastIndexByte(raw, '.'); i >= 0 {
		return raw[i+1:]
	}
	return ""
}

func archiveKey(jwtHash [32]byte, eph common.Address) string {
	return hex.EncodeToString(jwtHash[:]) + "-" + strings.ToLower(eph.Hex()[2:])
}
