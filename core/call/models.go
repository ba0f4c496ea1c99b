package call

import (
	"time"

	"github.com/marquesl99/chamada-visual/core/student"
)

// Call is one student summoned to the display panels. Records are created by
// the terminal, never mutated, and removed by staff or by the sweep.
// The firestore tags name the document fields; JSON keeps the panel contract.
type Call struct {
	ID          string          `json:"id" firestore:"-"`
	StudentID   int             `json:"alunoId" firestore:"alunoId"`
	StudentName string          `json:"nomeCompleto" firestore:"nomeCompleto"`
	Class       string          `json:"turma" firestore:"turma"`
	Segment     student.Segment `json:"segmento" firestore:"segmento"`
	Photo       string          `json:"fotoUrl,omitempty" firestore:"fotoUrl,omitempty"`
	CalledAt    time.Time       `json:"chamadoEm" firestore:"chamadoEm"`
}

// Filter selects which calls a panel subscription sees.
type Filter func(Call) bool

var (
	// All passes every call; the legacy panel uses it.
	All Filter = func(Call) bool { return true }

	// Infantil keeps Educação Infantil calls only.
	Infantil Filter = func(c Call) bool { return c.Segment == student.SegmentEI }

	// Fundamental keeps Ensino Fundamental calls (anos iniciais and finais).
	Fundamental Filter = func(c Call) bool {
		return c.Segment == student.SegmentAI || c.Segment == student.SegmentAF
	}
)

// BySegment keeps calls of a single segment.
func BySegment(seg student.Segment) Filter {
	return func(c Call) bool { return c.Segment == seg }
}
