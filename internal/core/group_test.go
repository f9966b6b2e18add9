package core

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubMember struct {
	id   ConnID
	fail bool
	got  []Envelope
}

func (m *stubMember) ID() ConnID { return m.id }
func (m *stubMember) Close()     {}

func (m *stubMember) Deliver(env Envelope) error {
	if m.fail {
		return errors.New("full")
	}
	m.got = append(m.got, env)
	return nil
}

func TestGroupAddRemoveIdempotent(t *testing.T) {
	g := NewGroup("call_r1")
	a := &stubMember{id: "a"}

	assert.True(t, g.Add(a))
	assert.False(t, g.Add(a))
	assert.Equal(t, 1, g.MemberCount())

	assert.True(t, g.Remove("a"))
	assert.False(t, g.Remove("a"))
	assert.Zero(t, g.MemberCount())
	assert.Empty(t, g.IDs())
}

func TestGroupSnapshotExcludes(t *testing.T) {
	g := NewGroup("call_r1")
	for _, id := range []ConnID{"a", "b", "c"} {
		g.Add(&stubMember{id: id})
	}

	snap := g.Snapshot("b")
	ids := make([]ConnID, 0, len(snap))
	for _, m := range snap {
		ids = append(ids, m.ID())
	}
	assert.ElementsMatch(t, []ConnID{"a", "c"}, ids)
	assert.Len(t, g.Snapshot(""), 3)
}

func TestFanoutIsolatesFailures(t *testing.T) {
	ok1 := &stubMember{id: "a"}
	bad := &stubMember{id: "b", fail: true}
	ok2 := &stubMember{id: "c"}
	env := Envelope{Type: "t", Payload: []byte(`{}`)}

	res := Fanout([]Member{ok1, bad, ok2}, env)

	assert.Equal(t, 2, res.SendTo)
	require.Len(t, res.Dropped, 1)
	assert.Equal(t, ConnID("b"), res.Dropped[0].ID())
	assert.Len(t, ok1.got, 1)
	assert.Len(t, ok2.got, 1)
}
