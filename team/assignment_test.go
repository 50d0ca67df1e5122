package team

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestAssignment_String(t *testing.T) {
	tests := []struct {
		name string
		a    Assignment
		want string
	}{
		{"qa", QAEngineer(0), "manager_0_qa_engineer"},
		{"senior", SeniorEngineer(0, 1), "manager_0_senior_eng_1"},
		{"senior other manager", SeniorEngineer(12, 3), "manager_12_senior_eng_3"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.a.String())
		})
	}
}

func TestParseAssignment(t *testing.T) {
	a, err := ParseAssignment("manager_2_senior_eng_0")
	require.NoError(t, err)
	assert.Equal(t, SeniorEngineer(2, 0), a)

	a, err = ParseAssignment("manager_1_qa_engineer")
	require.NoError(t, err)
	assert.Equal(t, KindQAEngineer, a.Kind)
	assert.Equal(t, ManagerID(1), a.Manager)

	for _, bad := range []string{"", "manager_x_qa_engineer", "lead_0_senior_eng_1", "manager_0_senior_eng_", "qa_senior_eng_team"} {
		_, err := ParseAssignment(bad)
		assert.Error(t, err, bad)
	}
}

func TestParseAssignment_RoundTrip(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		m := ManagerID(rapid.IntRange(0, 50).Draw(t, "manager"))
		var a Assignment
		if rapid.Bool().Draw(t, "qa") {
			a = QAEngineer(m)
		} else {
			a = SeniorEngineer(m, rapid.IntRange(0, 20).Draw(t, "index"))
		}
		got, err := ParseAssignment(a.String())
		if err != nil {
			t.Fatalf("parse %q: %v", a.String(), err)
		}
		if got != a {
			t.Fatalf("round trip mismatch: %+v != %+v", got, a)
		}
	})
}

func TestTeamRegistry(t *testing.T) {
	r := NewTeamRegistry()
	ids := r.AddManagers(2)
	assert.Equal(t, []ManagerID{0, 1}, ids)
	assert.Equal(t, []ManagerID{2}, r.AddManagers(1))

	tm := r.FormTeam(ids[0], 2)
	members := tm.Members()
	require.Len(t, members, 3)
	assert.Equal(t, "manager_0_qa_engineer", members[0].String())
	assert.Equal(t, "manager_0_senior_eng_0", members[1].String())
	assert.Equal(t, "manager_0_senior_eng_1", members[2].String())

	got, ok := r.Team(ids[0])
	assert.True(t, ok)
	assert.Equal(t, tm, got)
	_, ok = r.Team(ids[1])
	assert.False(t, ok)
}

func TestManagerID_JSONMapKey(t *testing.T) {
	in := map[ManagerID]Team{3: NewTeamRegistry().FormTeam(3, 1)}
	data, err := json.Marshal(in)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"manager_3":`)

	var out map[ManagerID]Team
	require.NoError(t, json.Unmarshal(data, &out))
	assert.Equal(t, in, out)
}
