package trustedauthority

import (
	"context"
	"crypto/ed25519"
	"testing"

	"github.com/opnet-chain/opnetd/model"
	"github.com/opnet-chain/opnetd/ulogger"
	"github.com/stretchr/testify/require"
)

func testSet(t *testing.T) (*model.TrustedAuthoritySet, map[string]ed25519.PrivateKey) {
	t.Helper()

	privs := make(map[string]ed25519.PrivateKey)
	set := &model.TrustedAuthoritySet{
		Key: model.TrustedAuthoritySetKey{AuthorityVersion: 1, ChainID: "mainnet", Network: "bitcoin"},
	}

	for _, entityID := range []string{"alpha", "bravo", "charlie"} {
		var keys []model.AuthorityKey
		for i := 0; i < 4; i++ {
			pub, priv, err := ed25519.GenerateKey(nil)
			require.NoError(t, err)
			keys = append(keys, model.AuthorityKey{PublicKey: pub})
			privs[entityID+string(rune('0'+i))] = priv
		}
		set.Entities = append(set.Entities, model.AuthorityEntity{EntityID: entityID, Keys: keys})
	}

	return set, privs
}

func TestManager_TrustedPublicKeysRespectingConstraints(t *testing.T) {
	set, _ := testSet(t)
	m := NewManager(Constraints{MaxValidatorPerTrustedEntity: 2, Minimum: 3, MinimumValidatorTransactionGeneration: 2}, nil, ulogger.TestLogger())
	require.NoError(t, m.LoadSet(context.Background(), set))

	keys, err := m.TrustedPublicKeysRespectingConstraints(context.Background())
	require.NoError(t, err)
	require.Len(t, keys, 6) // 2 per entity * 3 entities
}

func TestManager_TrustedPublicKeysRespectingConstraints_FailsBelowMinimum(t *testing.T) {
	set, _ := testSet(t)
	m := NewManager(Constraints{MaxValidatorPerTrustedEntity: 1, Minimum: 10, MinimumValidatorTransactionGeneration: 2}, nil, ulogger.TestLogger())
	require.NoError(t, m.LoadSet(context.Background(), set))

	_, err := m.TrustedPublicKeysRespectingConstraints(context.Background())
	require.Error(t, err)
}

func TestManager_VerifyTrustedSignature(t *testing.T) {
	set, privs := testSet(t)
	m := NewManager(DefaultConstraints(), nil, ulogger.TestLogger())
	require.NoError(t, m.LoadSet(context.Background(), set))

	data := []byte("block-42-checksum-root")
	priv := privs["alpha0"]
	sig := ed25519.Sign(priv, data)
	pub := set.Entities[0].Keys[0].PublicKey

	valid, identity := m.VerifyTrustedSignature(data, sig, pub)
	require.True(t, valid)
	require.Equal(t, byte('a'), identity[0]) // "alpha" entity id
}

func TestManager_VerifyTrustedSignature_RejectsUnknownKey(t *testing.T) {
	set, _ := testSet(t)
	m := NewManager(DefaultConstraints(), nil, ulogger.TestLogger())
	require.NoError(t, m.LoadSet(context.Background(), set))

	pub, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	data := []byte("data")
	sig := ed25519.Sign(priv, data)

	valid, _ := m.VerifyTrustedSignature(data, sig, pub)
	require.False(t, valid)
}

func TestManager_LoadSet_RefusedUpgradeIsFatal(t *testing.T) {
	set1, _ := testSet(t)
	m := NewManager(DefaultConstraints(), func(ctx context.Context, from, to uint32) (bool, error) {
		return false, nil
	}, ulogger.TestLogger())
	require.NoError(t, m.LoadSet(context.Background(), set1))

	set2 := &model.TrustedAuthoritySet{Key: model.TrustedAuthoritySetKey{AuthorityVersion: 2, ChainID: "mainnet", Network: "bitcoin"}}
	err := m.LoadSet(context.Background(), set2)
	require.Error(t, err)
}

func TestManager_VerifyPublicKeysConstraints(t *testing.T) {
	set, _ := testSet(t)
	m := NewManager(Constraints{MaxValidatorPerTrustedEntity: 2, Minimum: 2, MinimumValidatorTransactionGeneration: 1}, nil, ulogger.TestLogger())
	require.NoError(t, m.LoadSet(context.Background(), set))

	presented := [][]byte{set.Entities[0].Keys[0].PublicKey, set.Entities[0].Keys[1].PublicKey}
	require.NoError(t, m.VerifyPublicKeysConstraints(presented))

	tooMany := [][]byte{set.Entities[0].Keys[0].PublicKey, set.Entities[0].Keys[1].PublicKey, set.Entities[0].Keys[2].PublicKey}
	require.Error(t, m.VerifyPublicKeysConstraints(tooMany))
}
