package cov

import (
	"testing"

	"github.com/edgeo-scada/bacnet"
	"github.com/stretchr/testify/require"
)

// TestSubscriptionLifetime implements spec.md's S6 scenario.
func TestSubscriptionLifetime(t *testing.T) {
	m := NewManager()
	k := Key{SubscriberDevice: 999, SubscriberProcess: 123, Object: bacnet.NewObjectIdentifier(bacnet.ObjectTypeAnalogInput, 1)}
	sub := m.Add(k, false, 3600, "10.0.0.5:47808")
	require.Equal(t, float64(3600), sub.RemainingS)

	m.Tick(1800)
	got, ok := m.Get(k)
	require.True(t, ok)
	require.Equal(t, float64(1800), got.RemainingS)

	m.Tick(1800)
	got, ok = m.Get(k)
	require.True(t, ok)
	require.LessOrEqual(t, got.RemainingS, float64(0))

	expired := m.SweepExpired()
	require.Len(t, expired, 1)
	_, ok = m.Get(k)
	require.False(t, ok)
}

func TestResubscribeReplaces(t *testing.T) {
	m := NewManager()
	k := Key{SubscriberDevice: 1, SubscriberProcess: 1, Object: bacnet.NewObjectIdentifier(bacnet.ObjectTypeAnalogInput, 1)}
	first := m.Add(k, false, 60, "a")
	second := m.Add(k, true, 120, "b")
	require.Equal(t, 1, m.Count())
	got, _ := m.Get(k)
	require.Equal(t, second.Token, got.Token)
	require.NotEqual(t, first.Token, got.Token)
}

func TestIndefiniteLifetimeNeverExpires(t *testing.T) {
	m := NewManager()
	k := Key{SubscriberDevice: 1, SubscriberProcess: 1, Object: bacnet.NewObjectIdentifier(bacnet.ObjectTypeAnalogInput, 1)}
	m.Add(k, false, 0, "a")
	m.Tick(1_000_000)
	expired := m.SweepExpired()
	require.Empty(t, expired)
}

func TestSubscribersForWholeObjectAndProperty(t *testing.T) {
	m := NewManager()
	obj := bacnet.NewObjectIdentifier(bacnet.ObjectTypeAnalogInput, 1)
	whole := Key{SubscriberDevice: 1, SubscriberProcess: 1, Object: obj}
	scoped := Key{SubscriberDevice: 2, SubscriberProcess: 1, Object: obj, Property: bacnet.PropertyPresentValue, HasProperty: true}
	m.Add(whole, false, 0, "a")
	m.Add(scoped, false, 0, "b")

	subs := m.SubscribersFor(obj, bacnet.PropertyPresentValue)
	require.Len(t, subs, 2)

	subs = m.SubscribersFor(obj, bacnet.PropertyStatusFlags)
	require.Len(t, subs, 1)
}
