package team

import (
	"fmt"
	"strconv"
	"strings"
)

// ManagerID identifies an engineering manager within one planning pass.
// Its string form is "manager_<n>".
type ManagerID int

func (m ManagerID) String() string {
	return "manager_" + strconv.Itoa(int(m))
}

// MarshalText makes ManagerID usable as a JSON object key in its string form.
func (m ManagerID) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// UnmarshalText parses "manager_<n>".
func (m *ManagerID) UnmarshalText(text []byte) error {
	id, err := ParseManagerID(string(text))
	if err != nil {
		return err
	}
	*m = id
	return nil
}

// ParseManagerID parses the "manager_<n>" form.
func ParseManagerID(s string) (ManagerID, error) {
	rest, ok := strings.CutPrefix(s, "manager_")
	if !ok {
		return 0, fmt.Errorf("invalid manager id %q", s)
	}
	n, err := strconv.Atoi(rest)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid manager id %q", s)
	}
	return ManagerID(n), nil
}

// RoleKind discriminates the worker roles a manager delegates to.
type RoleKind string

const (
	KindQAEngineer     RoleKind = "qa_engineer"
	KindSeniorEngineer RoleKind = "senior_engineer"
)

// Assignment names one worker under a manager. Role dispatch switches on
// Kind; the string form exists only for display and legacy ids.
type Assignment struct {
	Manager ManagerID `json:"manager"`
	Kind    RoleKind  `json:"kind"`
	// Index is the senior engineer's position within the team. It is
	// always 0 for the QA engineer.
	Index int `json:"index"`
}

// QAEngineer returns the QA engineer assignment of manager m.
func QAEngineer(m ManagerID) Assignment {
	return Assignment{Manager: m, Kind: KindQAEngineer}
}

// SeniorEngineer returns the i-th senior engineer assignment of manager m.
func SeniorEngineer(m ManagerID, i int) Assignment {
	return Assignment{Manager: m, Kind: KindSeniorEngineer, Index: i}
}

// String renders "manager_0_qa_engineer" or "manager_0_senior_eng_1".
func (a Assignment) String() string {
	switch a.Kind {
	case KindQAEngineer:
		return a.Manager.String() + "_qa_engineer"
	case KindSeniorEngineer:
		return fmt.Sprintf("%s_senior_eng_%d", a.Manager, a.Index)
	default:
		return a.Manager.String() + "_" + string(a.Kind)
	}
}

// ParseAssignment parses the string form produced by Assignment.String.
func ParseAssignment(s string) (Assignment, error) {
	if head, ok := strings.CutSuffix(s, "_qa_engineer"); ok {
		m, err := ParseManagerID(head)
		if err != nil {
			return Assignment{}, fmt.Errorf("parse assignment %q: %w", s, err)
		}
		return QAEngineer(m), nil
	}
	i := strings.LastIndex(s, "_senior_eng_")
	if i < 0 {
		return Assignment{}, fmt.Errorf("parse assignment %q: unknown role", s)
	}
	m, err := ParseManagerID(s[:i])
	if err != nil {
		return Assignment{}, fmt.Errorf("parse assignment %q: %w", s, err)
	}
	n, err := strconv.Atoi(s[i+len("_senior_eng_"):])
	if err != nil || n < 0 {
		return Assignment{}, fmt.Errorf("parse assignment %q: bad engineer index", s)
	}
	return SeniorEngineer(m, n), nil
}

// Team is the staff a manager forms: one QA engineer and N senior engineers.
type Team struct {
	Manager ManagerID    `json:"manager"`
	QA      Assignment   `json:"qa"`
	Seniors []Assignment `json:"seniors"`
}

// Members returns the QA engineer followed by the senior engineers.
func (t Team) Members() []Assignment {
	out := make([]Assignment, 0, len(t.Seniors)+1)
	out = append(out, t.QA)
	return append(out, t.Seniors...)
}

// TeamRegistry hands out manager ids by auto-incrementing index and forms
// their teams. One registry is built per planning pass and travels in the
// pipeline State, so its fields are exported for persistence.
type TeamRegistry struct {
	Next  int                `json:"next"`
	Teams map[ManagerID]Team `json:"teams"`
}

// NewTeamRegistry returns an empty registry.
func NewTeamRegistry() *TeamRegistry {
	return &TeamRegistry{Teams: make(map[ManagerID]Team)}
}

// AddManagers allocates n new manager ids.
func (r *TeamRegistry) AddManagers(n int) []ManagerID {
	ids := make([]ManagerID, 0, n)
	for i := 0; i < n; i++ {
		ids = append(ids, ManagerID(r.Next))
		r.Next++
	}
	return ids
}

// FormTeam builds the team of manager m with the given number of senior
// engineers and records it.
func (r *TeamRegistry) FormTeam(m ManagerID, seniors int) Team {
	t := Team{Manager: m, QA: QAEngineer(m), Seniors: make([]Assignment, 0, seniors)}
	for i := 0; i < seniors; i++ {
		t.Seniors = append(t.Seniors, SeniorEngineer(m, i))
	}
	if r.Teams == nil {
		r.Teams = make(map[ManagerID]Team)
	}
	r.Teams[m] = t
	return t
}

// Team returns the recorded team of manager m.
func (r *TeamRegistry) Team(m ManagerID) (Team, bool) {
	t, ok := r.Teams[m]
	return t, ok
}

// Clone returns a copy of r that can be mutated independently.
func (r *TeamRegistry) Clone() *TeamRegistry {
	if r == nil {
		return NewTeamRegistry()
	}
	out := &TeamRegistry{Next: r.Next, Teams: make(map[ManagerID]Team, len(r.Teams))}
	for m, t := range r.Teams {
		t.Seniors = append([]Assignment(nil), t.Seniors...)
		out.Teams[m] = t
	}
	return out
}
