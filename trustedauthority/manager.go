package trustedauthority

import (
	"context"
	"crypto/ed25519"
	"sync"

	"github.com/opnet-chain/opnetd/errors"
	"github.com/opnet-chain/opnetd/model"
	"github.com/opnet-chain/opnetd/tracing"
	"github.com/opnet-chain/opnetd/ulogger"
	"github.com/ordishs/gocore"
)

// Constraints bounds how many keys trustedPublicKeysRespectingConstraints
// may draw, and how many a presented key list must satisfy.
type Constraints struct {
	MaxValidatorPerTrustedEntity          int
	Minimum                               int
	MinimumValidatorTransactionGeneration int
}

// DefaultConstraints reads the three tunables from config, matching the
// teacher's config-driven-tunable convention used throughout services/*.
func DefaultConstraints() Constraints {
	cfg := gocore.Config()
	maxPerEntity, _ := cfg.GetInt("ta_max_validator_per_entity", 3)
	minimum, _ := cfg.GetInt("ta_minimum_keys", 3)
	minimumEntities, _ := cfg.GetInt("ta_minimum_entities", 2)
	return Constraints{
		MaxValidatorPerTrustedEntity:          maxPerEntity,
		Minimum:                               minimum,
		MinimumValidatorTransactionGeneration: minimumEntities,
	}
}

// UpgradeDecider is invoked on a consensus version change; returning false
// or an error refuses the upgrade (spec.md §4.4) and is fatal to the node.
type UpgradeDecider func(ctx context.Context, from, to uint32) (bool, error)

// Manager holds, per (version, chain_id, network), the validated trusted
// authority key set, and implements the ibd.WitnessVerifier contract by
// structural typing (VerifyTrustedSignature) without importing ibd.
type Manager struct {
	mu          sync.RWMutex
	sets        map[model.TrustedAuthoritySetKey]*model.TrustedAuthoritySet
	active      model.TrustedAuthoritySetKey
	constraints Constraints
	onUpgrade   UpgradeDecider
	logger      ulogger.Logger
}

// NewManager builds an empty Manager. LoadSet must be called at least
// once before the manager is queried.
func NewManager(constraints Constraints, onUpgrade UpgradeDecider, logger ulogger.Logger) *Manager {
	return &Manager{
		sets:        make(map[model.TrustedAuthoritySetKey]*model.TrustedAuthoritySet),
		constraints: constraints,
		onUpgrade:   onUpgrade,
		logger:      logger.New("trusted-authority"),
	}
}

// LoadSet installs a validated set and, if it changes AuthorityVersion
// from the currently active one, runs the upgrade decider. A refused
// upgrade is fatal: the caller must halt the node.
func (m *Manager) LoadSet(ctx context.Context, set *model.TrustedAuthoritySet) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if prev, ok := m.sets[m.active]; ok && prev.Key.AuthorityVersion != set.Key.AuthorityVersion {
		if m.onUpgrade != nil {
			ok, err := m.onUpgrade(ctx, prev.Key.AuthorityVersion, set.Key.AuthorityVersion)
			if err != nil || !ok {
				m.logger.Errorf("FATAL: consensus upgrade from version %d to %d refused: %v", prev.Key.AuthorityVersion, set.Key.AuthorityVersion, err)
				return errors.NewNotTrustedError("consensus upgrade to authority version %d refused", set.Key.AuthorityVersion)
			}
		}
	}

	m.sets[set.Key] = set
	m.active = set.Key
	return nil
}

// Active returns the currently active trusted authority set's full
// validated key set grouped by entity.
func (m *Manager) Active() (*model.TrustedAuthoritySet, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	set, ok := m.sets[m.active]
	if !ok {
		return nil, errors.NewNotFoundError("no active trusted authority set loaded")
	}
	return set, nil
}

// TrustedPublicKeysRespectingConstraints returns a securely shuffled
// subset of the active set's keys: at most MaxValidatorPerTrustedEntity
// per entity, totalling at least Minimum keys drawn from at least
// MinimumValidatorTransactionGeneration distinct entities.
func (m *Manager) TrustedPublicKeysRespectingConstraints(ctx context.Context) ([]model.AuthorityKey, error) {
	_, span, deferFn := tracing.StartTracing(ctx, "trustedauthority.Manager.TrustedPublicKeysRespectingConstraints")
	defer deferFn()

	set, err := m.Active()
	if err != nil {
		return nil, err
	}

	var out []model.AuthorityKey
	entitiesUsed := 0

	for _, entity := range set.Entities {
		if len(entity.Keys) == 0 {
			continue
		}

		order, err := secureShuffle(indexRange(len(entity.Keys)))
		if err != nil {
			return nil, err
		}

		limit := m.constraints.MaxValidatorPerTrustedEntity
		if limit > len(order) {
			limit = len(order)
		}

		for _, idx := range order[:limit] {
			out = append(out, entity.Keys[idx])
		}
		entitiesUsed++
	}

	if len(out) < m.constraints.Minimum || entitiesUsed < m.constraints.MinimumValidatorTransactionGeneration {
		return nil, errors.NewThresholdExceededError(
			"trusted key set too small: have %d keys from %d entities, need >= %d keys from >= %d entities",
			len(out), entitiesUsed, m.constraints.Minimum, m.constraints.MinimumValidatorTransactionGeneration)
	}

	span.SetTag("keys", len(out))
	return out, nil
}

// VerifyTrustedSignature tries every key in the active set's every
// entity until one validates the signature over data, returning the
// matching key's owning entity id as identity (copied into the leading
// bytes, zero-filled on the right and truncated at 32 bytes, matching
// model.BlockWitness.Identity's fixed width).
func (m *Manager) VerifyTrustedSignature(data, signature, publicKey []byte) (bool, [32]byte) {
	var identity [32]byte

	set, err := m.Active()
	if err != nil {
		return false, identity
	}

	for _, entity := range set.Entities {
		for _, key := range entity.Keys {
			if len(publicKey) > 0 && !bytesEqual(key.PublicKey, publicKey) {
				continue
			}
			if verifyEd25519(key.PublicKey, data, signature) {
				copy(identity[:], entity.EntityID)
				return true, identity
			}
		}
	}

	return false, identity
}

// VerifyPublicKeysConstraints checks that a presented key list satisfies
// the same minima and per-entity caps as
// TrustedPublicKeysRespectingConstraints, grouping by which active
// entity each key belongs to.
func (m *Manager) VerifyPublicKeysConstraints(keys [][]byte) error {
	set, err := m.Active()
	if err != nil {
		return err
	}

	perEntity := make(map[string]int)
	for _, presented := range keys {
		for _, entity := range set.Entities {
			for _, key := range entity.Keys {
				if bytesEqual(key.PublicKey, presented) {
					perEntity[entity.EntityID]++
				}
			}
		}
	}

	total := 0
	entitiesUsed := 0
	for entityID, count := range perEntity {
		if count > m.constraints.MaxValidatorPerTrustedEntity {
			return errors.NewThresholdExceededError("entity %s presents %d keys, cap is %d", entityID, count, m.constraints.MaxValidatorPerTrustedEntity)
		}
		total += count
		entitiesUsed++
	}

	if total < m.constraints.Minimum || entitiesUsed < m.constraints.MinimumValidatorTransactionGeneration {
		return errors.NewThresholdExceededError(
			"presented key list too small: %d keys from %d entities, need >= %d keys from >= %d entities",
			total, entitiesUsed, m.constraints.Minimum, m.constraints.MinimumValidatorTransactionGeneration)
	}

	return nil
}

func indexRange(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i
	}
	return out
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// verifyEd25519 is the concrete signature scheme for witness
// authentication. Spec.md does not mandate a scheme for block-witness
// signatures (ML-DSA is specified only for the plugin file format,
// §4.8); ed25519 is stdlib (crypto/ed25519).
func verifyEd25519(publicKey, data, signature []byte) bool {
	if len(publicKey) != ed25519.PublicKeySize || len(signature) != ed25519.SignatureSize {
		return false
	}
	return ed25519.Verify(publicKey, data, signature)
}
