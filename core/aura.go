package core

// aura.go – AURA round-robin consensus. Wall clock time is divided into
// rounds of step_time seconds; round r belongs to validator r mod |V|. The
// leader proposes on top of the waiting queue, followers attest, and the
// leader's end-of-round beacon triggers the majority count. Confirmed blocks
// linger in the waiting queue until the finalizer drains them into the store,
// giving the network block_queue_size rounds to reorder or drop proposals
// before they become permanent.

import (
	"crypto/ed25519"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// AuraConfig mirrors the [consensus] table of the node configuration.
type AuraConfig struct {
	ValidatorSet   []string
	ValidatorIDs   []uint64
	StepTime       uint64 // seconds per round
	StartTime      uint64 // Unix seconds of round zero
	RoundNumber    uint64 // round offset applied after a restart
	BlockQueueSize int
	ForceSealing   bool
	ForgeTimeLimit time.Duration
}

// AuraHeaders is the consensus metadata embedded in every block's
// auth_headers. Both fields strictly increase along the chain.
type AuraHeaders struct {
	Timestamp   uint64 `cbor:"timestamp"`
	RoundNumber uint64 `cbor:"round_number"`
}

// EncodeAuraHeaders serializes h for embedding into a block.
func EncodeAuraHeaders(h AuraHeaders) []byte {
	data, err := Serialize(&h)
	if err != nil {
		return nil
	}
	return data
}

// decodeAuraHeaders reads a block's embedded headers. Genesis blocks written
// before the engine adopted headers decode as zeros; anything else malformed
// is an error.
func decodeAuraHeaders(raw []byte, blockID uint64) (AuraHeaders, bool) {
	var h AuraHeaders
	if err := Deserialize(raw, &h); err != nil {
		if blockID == 0 {
			return AuraHeaders{}, true
		}
		return AuraHeaders{}, false
	}
	return h, true
}

// WaitingBlocksQueue holds the provisionally accepted chain suffix together
// with the open acceptance set of its tail. The three fields form one
// invariant and share the mutex.
type WaitingBlocksQueue struct {
	queue         []*SignedBlock
	acceptance    map[string]struct{}
	lastBlockHash Hash // zero = no open proposal
}

func newWaitingBlocksQueue() *WaitingBlocksQueue {
	return &WaitingBlocksQueue{acceptance: make(map[string]struct{})}
}

// auraMeta is the engine's static key material and validator bookkeeping.
type auraMeta struct {
	validatorMapping map[string]uint64
	poolSize         uint64
	kp               ed25519.PrivateKey
	publicKey        string
	startTime        uint64
	roundNumber      uint64
	stepTime         uint64
	blockQueueSize   int
}

// Aura is one node's consensus engine.
type Aura struct {
	meta *auraMeta
	wq   *WaitingBlocksQueue
	wqMu sync.Mutex

	store    *Store
	pool     *TransactionPool
	registry *AppRegistry
	sender   *MessageSender

	leaderEpoch    time.Duration
	forceSealing   bool
	forgeTimeLimit time.Duration
}

// NewAura wires the engine. The validator set and id list must align
// pairwise.
func NewAura(cfg AuraConfig, kp ed25519.PrivateKey, store *Store, pool *TransactionPool, registry *AppRegistry, sender *MessageSender) (*Aura, error) {
	if len(cfg.ValidatorSet) == 0 {
		return nil, fmt.Errorf("validator set is empty")
	}
	if len(cfg.ValidatorSet) != len(cfg.ValidatorIDs) {
		return nil, fmt.Errorf("validator set and id list lengths differ: %d vs %d", len(cfg.ValidatorSet), len(cfg.ValidatorIDs))
	}
	if cfg.StepTime == 0 {
		return nil, fmt.Errorf("step_time must be positive")
	}
	mapping := make(map[string]uint64, len(cfg.ValidatorSet))
	for i, pk := range cfg.ValidatorSet {
		mapping[pk] = cfg.ValidatorIDs[i]
	}
	forgeLimit := cfg.ForgeTimeLimit
	if forgeLimit <= 0 {
		forgeLimit = 5 * time.Second
	}
	return &Aura{
		meta: &auraMeta{
			validatorMapping: mapping,
			poolSize:         uint64(len(cfg.ValidatorSet)),
			kp:               kp,
			publicKey:        PublicKeyHex(kp),
			startTime:        cfg.StartTime,
			roundNumber:      cfg.RoundNumber,
			stepTime:         cfg.StepTime,
			blockQueueSize:   cfg.BlockQueueSize,
		},
		wq:             newWaitingBlocksQueue(),
		store:          store,
		pool:           pool,
		registry:       registry,
		sender:         sender,
		leaderEpoch:    time.Duration(100*cfg.StepTime) * time.Millisecond,
		forceSealing:   cfg.ForceSealing,
		forgeTimeLimit: forgeLimit,
	}, nil
}

// ---------------------------------------------------------------------------
// Round arithmetic
// ---------------------------------------------------------------------------

// CurrentRound computes the round number at the present wall clock.
func (a *Aura) CurrentRound() uint64 {
	now := uint64(time.Now().Unix())
	if now < a.meta.startTime {
		return a.meta.roundNumber
	}
	return (now-a.meta.startTime)/a.meta.stepTime + a.meta.roundNumber
}

// PrimaryLeader returns the public key owning the current round.
func (a *Aura) PrimaryLeader() string {
	leaderID := a.CurrentRound() % a.meta.poolSize
	for pk, id := range a.meta.validatorMapping {
		if id == leaderID {
			return pk
		}
	}
	// ids are a permutation of 0..|V|-1, checked at startup
	return ""
}

// majorityThreshold is the ceiling form of the two-thirds rule.
func (a *Aura) majorityThreshold() uint64 {
	return (2*a.meta.poolSize + 2) / 3
}

// IsValidator reports whether pk belongs to the configured validator set.
func (a *Aura) IsValidator(pk string) bool {
	_, ok := a.meta.validatorMapping[pk]
	return ok
}

// ---------------------------------------------------------------------------
// Startup
// ---------------------------------------------------------------------------

// InitState writes the genesis block when this node bootstraps an empty
// store; a populated store resumes from its previous state.
func (a *Aura) InitState() error {
	fork := a.store.Fork()
	schema := NewSchemaFork(fork)
	if schema.BlockchainLength() == 0 {
		headers := EncodeAuraHeaders(AuraHeaders{Timestamp: a.meta.startTime, RoundNumber: 0})
		genesis := schema.InitializeDB(a.meta.kp, headers)
		logrus.Infof("genesis block created with hash %s", genesis.Hash())
	} else {
		logrus.Infof("started from previous state, height %d, state root %s",
			schema.BlockchainLength(), schema.StateTrieRoot())
	}
	return a.store.CommitFork(fork)
}

// ---------------------------------------------------------------------------
// Receiver handlers
// ---------------------------------------------------------------------------

// handleAuthorBlock validates a leader proposal and, if sound, attests to it
// and appends it to the waiting queue.
func (a *Aura) handleAuthorBlock(ab *AuthorBlock) {
	a.wqMu.Lock()
	defer a.wqMu.Unlock()

	proposer := ab.Block.Block.PeerID
	if leader := a.PrimaryLeader(); leader != proposer {
		logrus.Warnf("malicious author proposing block: %s is not round leader %s", proposer, leader)
		return
	}
	if !ab.Verify() {
		logrus.Warnf("malicious block proposed by author %s: bad signature", proposer)
		return
	}

	block := &ab.Block.Block
	headers, ok := decodeAuraHeaders(block.AuthHeaders, block.ID)
	if !ok {
		logrus.Warn("block auth headers could not be decoded")
		return
	}

	if len(a.wq.queue) > 0 {
		tail := a.wq.queue[len(a.wq.queue)-1]
		if tail.Block.ID+1 != block.ID {
			logrus.Warnf("malicious block proposed by %s: expected height %d, got %d", proposer, tail.Block.ID+1, block.ID)
			return
		}
		if tail.Hash() != block.PrevHash {
			logrus.Warnf("malicious block proposed by %s: prev_hash should be %s, got %s", proposer, tail.Hash(), block.PrevHash)
			return
		}
		tailHeaders, ok := decodeAuraHeaders(tail.Block.AuthHeaders, tail.Block.ID)
		if !ok {
			logrus.Warn("waiting tail auth headers could not be decoded")
			return
		}
		if !a.headersAdvance(proposer, headers, tailHeaders) {
			return
		}
	} else {
		snap := a.store.Snapshot()
		schema := NewSchemaSnapshot(snap)
		length := schema.BlockchainLength()
		rootHash := schema.GetRootBlockHash()
		var tailHeaders AuraHeaders
		if root, exists := schema.GetRootBlock(); exists {
			decoded, ok := decodeAuraHeaders(root.Block.AuthHeaders, root.Block.ID)
			if !ok {
				snap.Discard()
				logrus.Warn("committed tail auth headers could not be decoded")
				return
			}
			tailHeaders = decoded
		}
		snap.Discard()

		if length != block.ID {
			logrus.Warnf("malicious block proposed by %s: expected height %d from snapshot, got %d", proposer, length, block.ID)
			return
		}
		if rootHash != block.PrevHash {
			logrus.Warnf("malicious block proposed by %s: prev_hash should be %s, got %s", proposer, rootHash, block.PrevHash)
			return
		}
		if !a.headersAdvance(proposer, headers, tailHeaders) {
			return
		}
	}

	acceptance := CreateBlockAcceptance(a.meta.kp, ab.Block.Hash())
	a.sender.SendBlockAcceptance(acceptance)
	logrus.Infof("block accepted, created by %s with id %d and hash %s", proposer, block.ID, ab.Block.Hash())

	accepted := &ab.Block
	a.wq.lastBlockHash = accepted.Hash()
	a.wq.acceptance = map[string]struct{}{
		a.meta.publicKey: {},
		proposer:         {},
	}
	a.wq.queue = append(a.wq.queue, accepted)
	waitingQueueLength.Set(float64(len(a.wq.queue)))
}

// headersAdvance enforces the strict round and timestamp progression.
func (a *Aura) headersAdvance(proposer string, next, prev AuraHeaders) bool {
	if next.RoundNumber <= prev.RoundNumber {
		logrus.Warnf("malicious block proposed by %s: round number %d not above %d", proposer, next.RoundNumber, prev.RoundNumber)
		return false
	}
	if next.Timestamp <= prev.Timestamp {
		logrus.Warnf("malicious block proposed by %s: timestamp %d not above %d", proposer, next.Timestamp, prev.Timestamp)
		return false
	}
	return true
}

// handleBlockAcceptance records a validator's attestation for the open
// proposal. Set semantics absorb duplicates.
func (a *Aura) handleBlockAcceptance(ba *BlockAcceptance) {
	a.wqMu.Lock()
	defer a.wqMu.Unlock()

	if !a.IsValidator(ba.PublicKey) {
		logrus.Warnf("acceptance from untrusted source %s", ba.PublicKey)
		return
	}
	if a.wq.lastBlockHash != ba.BlockHash {
		logrus.Warnf("acceptance for different block: waiting on %s, got %s", a.wq.lastBlockHash, ba.BlockHash)
		return
	}
	if !ba.Verify() {
		logrus.Warnf("malicious acceptance came from %s", ba.PublicKey)
		return
	}
	logrus.Infof("valid block acceptance came from %s", ba.PublicKey)
	a.wq.acceptance[ba.PublicKey] = struct{}{}
}

// handleRoundOwner closes the round: with a two-thirds majority the tail
// stays queued for eventual commit, otherwise it is popped and its
// transactions resurface in the pool's order index.
func (a *Aura) handleRoundOwner(ro *RoundOwner) {
	a.wqMu.Lock()
	defer a.wqMu.Unlock()

	if len(a.wq.queue) == 0 {
		logrus.Info("no waiting block to check acceptance")
		return
	}
	if leader := a.PrimaryLeader(); leader != ro.PublicKey {
		logrus.Warnf("malicious round owner claim created by %s", ro.PublicKey)
		return
	}
	if !ro.Verify(a.meta.stepTime) {
		logrus.Warn("round owner data is either tampered or delayed/replayed")
		return
	}
	if a.wq.lastBlockHash.IsZero() {
		logrus.Info("no open proposal, cannot initiate block acceptance")
		return
	}

	votes := uint64(len(a.wq.acceptance))
	needed := a.majorityThreshold()
	if votes >= needed {
		logrus.Infof("block confirmed with %d of %d required votes", votes, needed)
		a.wq.acceptance = make(map[string]struct{})
		a.wq.lastBlockHash = ZeroHash
		return
	}

	tail := a.wq.queue[len(a.wq.queue)-1]
	a.wq.queue = a.wq.queue[:len(a.wq.queue)-1]
	a.wq.acceptance = make(map[string]struct{})
	a.wq.lastBlockHash = ZeroHash
	a.pool.Resurrect(tail.Block.TxnPool)
	waitingQueueLength.Set(float64(len(a.wq.queue)))
	logrus.Warnf("block %d got %d votes of required %d, proposal dropped", tail.Block.ID, votes, needed)
}

// Receiver drains the consensus channel until it closes.
func (a *Aura) Receiver(ch <-chan []byte) {
	for data := range ch {
		var msg ConsensusMessage
		if err := Deserialize(data, &msg); err != nil {
			logrus.Warnf("malformed consensus message dropped: %v", err)
			continue
		}
		switch {
		case msg.AuthorBlock != nil:
			logrus.Debug("AuthorBlock data received")
			a.handleAuthorBlock(msg.AuthorBlock)
		case msg.BlockAcceptance != nil:
			logrus.Debug("BlockAcceptance data received")
			a.handleBlockAcceptance(msg.BlockAcceptance)
		case msg.RoundOwner != nil:
			logrus.Debug("RoundOwner data received")
			a.handleRoundOwner(msg.RoundOwner)
		default:
			logrus.Warn("empty consensus message received")
		}
	}
	logrus.Info("consensus channel closed")
}

// ---------------------------------------------------------------------------
// Finalizer
// ---------------------------------------------------------------------------

// Finalizer periodically drains two thirds of the waiting queue into the
// store once the queue outgrows its configured size.
func (a *Aura) Finalizer(stop <-chan struct{}) {
	ticker := time.NewTicker(time.Duration(a.meta.stepTime) * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			a.wqMu.Lock()
			if len(a.wq.queue) > a.meta.blockQueueSize+1 {
				count := len(a.wq.queue) * 2 / 3
				logrus.Debugf("queue length %d, committing %d blocks", len(a.wq.queue), count)
				a.processBlocks(count)
			}
			a.wqMu.Unlock()
		}
	}
}

// processBlocks commits the oldest count waiting blocks in height order.
// Caller holds the queue lock. A validation failure drops the block; a store
// failure leaves it queued for the next tick.
func (a *Aura) processBlocks(count int) {
	for count > 0 && len(a.wq.queue) > 0 {
		signed := a.wq.queue[0]
		fork := a.store.Fork()
		schema := NewSchemaFork(fork)
		if schema.UpdateBlock(signed, a.pool, a.registry) {
			if err := a.store.CommitFork(fork); err != nil {
				logrus.Errorf("block %d could not be persisted, retrying next tick: %v", signed.Block.ID, err)
				return
			}
			a.pool.SyncCommitted(signed.Block.TxnPool)
			a.wq.queue = a.wq.queue[1:]
			blocksCommitted.Inc()
			txnsCommitted.Add(float64(len(signed.Block.TxnPool)))
			chainHeight.Set(float64(signed.Block.ID))
			logrus.Debugf("block with id %d and hash %s added in database", signed.Block.ID, signed.Hash())
		} else {
			fork.Discard()
			a.wq.queue = a.wq.queue[1:]
			logrus.Errorf("block with id %d and hash %s could not be added in database", signed.Block.ID, signed.Hash())
		}
		count--
	}
	waitingQueueLength.Set(float64(len(a.wq.queue)))
}

// ---------------------------------------------------------------------------
// Proposer
// ---------------------------------------------------------------------------

// proposeBlock builds the next proposal on top of the waiting queue. The
// scratch fork replays the queued suffix so the new block extends the chain
// the followers will eventually commit; the fork itself is discarded, commit
// happens later through the finalizer.
func (a *Aura) proposeBlock() *SignedBlock {
	fork := a.store.Fork()
	defer fork.Discard()
	schema := NewSchemaFork(fork)
	for _, queued := range a.wq.queue {
		logrus.Debugf("replaying waiting block %d", queued.Block.ID)
		schema.UpdateBlock(queued, a.pool, a.registry)
	}

	headers := EncodeAuraHeaders(AuraHeaders{
		Timestamp:   uint64(time.Now().Unix()),
		RoundNumber: a.CurrentRound(),
	})
	if a.forceSealing {
		return schema.CreateBlock(a.meta.kp, a.pool, a.registry, headers)
	}
	return schema.ForgeNewBlock(a.meta.kp, a.pool, a.registry, headers, a.forgeTimeLimit)
}

// Proposer is the wall-clock state machine: each leader turn publishes the
// beacon, locally finalizes the pending proposal, and broadcasts the next
// block. It first waits one full round so all peers align on start_time.
func (a *Aura) Proposer(stop <-chan struct{}) {
	oneRound := time.Duration(a.meta.poolSize) * 10 * a.leaderEpoch
	select {
	case <-stop:
		return
	case <-time.After(oneRound):
	}

	for {
		select {
		case <-stop:
			return
		default:
		}

		if a.PrimaryLeader() == a.meta.publicKey {
			logrus.Infof("round %d: this node is the leader", a.CurrentRound())
			ro := CreateRoundOwner(a.meta.kp)
			a.sender.SendRoundOwner(ro)
			time.Sleep(a.leaderEpoch)

			a.handleRoundOwner(ro)

			a.wqMu.Lock()
			signed := a.proposeBlock()
			if signed != nil {
				logrus.Infof("new block created, id %d, hash %s", signed.Block.ID, signed.Hash())
				a.sender.SendAuthorBlock(CreateAuthorBlock(signed))
				a.wq.lastBlockHash = signed.Hash()
				a.wq.queue = append(a.wq.queue, signed)
				a.wq.acceptance = map[string]struct{}{a.meta.publicKey: {}}
				waitingQueueLength.Set(float64(len(a.wq.queue)))
			}
			a.wqMu.Unlock()

			time.Sleep(10 * a.leaderEpoch)
		} else {
			time.Sleep(a.leaderEpoch)
		}
	}
}

// Run spawns the receiver, finalizer and proposer loops. The receiver ends
// when ch closes; the other loops end when stop closes.
func (a *Aura) Run(ch <-chan []byte, stop <-chan struct{}) {
	go a.Receiver(ch)
	go a.Finalizer(stop)
	go a.Proposer(stop)
}
