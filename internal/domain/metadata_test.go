package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestProcessingLockStates(t *testing.T) {
	now := time.Now()
	stale := 5 * time.Minute

	unlocked := ProcessingLock{}
	require.False(t, unlocked.Held(now, stale))
	require.False(t, unlocked.Stale(now, stale))

	young := ProcessingLock{Processing: true, StartedAt: now.Add(-time.Minute)}
	require.True(t, young.Held(now, stale))
	require.False(t, young.Stale(now, stale))

	old := ProcessingLock{Processing: true, StartedAt: now.Add(-10 * time.Minute)}
	require.False(t, old.Held(now, stale))
	require.True(t, old.Stale(now, stale))
}

func TestSessionMetaRoundTripPreservesPairing(t *testing.T) {
	issued := time.Now().Truncate(time.Second)
	meta := SessionMeta{
		Pairing:  PairingInfo{Code: "2@CODE", IssuedAt: issued},
		Platform: "android",
	}

	decoded := DecodeSessionMeta(meta.Encode())
	require.Equal(t, "2@CODE", decoded.Pairing.Code)
	require.Equal(t, "android", decoded.Platform)
	require.True(t, issued.Equal(decoded.Pairing.IssuedAt))
}

func TestContactMetaMerge(t *testing.T) {
	base := ContactMeta{Lid: "90123456@lid", Extra: map[string]string{"tag": "vip"}}
	merged := base.Merge(ContactMeta{PushName: "Eko"})

	require.Equal(t, "90123456@lid", merged.Lid)
	require.Equal(t, "Eko", merged.PushName)
	require.Equal(t, "vip", merged.Extra["tag"])
}

func TestDecodeMessageMetaGarbage(t *testing.T) {
	// A corrupt column decodes to the zero value instead of failing the read
	// path.
	meta := DecodeMessageMeta("{not json")
	require.False(t, meta.Lock.Processing)
	require.Empty(t, meta.DeliveredVia)
}
