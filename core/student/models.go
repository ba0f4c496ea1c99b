package student

import "strings"

// Segment is the educational level grouping used to scope searches and panels.
// Class descriptions in SophiA start with the segment code, e.g. "EI3 A",
// "AF7 B". High school ("EM") is out of scope for the call panels.
type Segment string

const (
	SegmentAll Segment = "TODOS"
	SegmentEI  Segment = "EI" // Educação Infantil
	SegmentAI  Segment = "AI" // Anos Iniciais
	SegmentAF  Segment = "AF" // Anos Finais
)

// highSchoolPrefix marks classes that never appear in search results.
const highSchoolPrefix = "EM"

// ParseSegment maps a request parameter to a Segment. Empty means all.
func ParseSegment(s string) (Segment, bool) {
	switch Segment(strings.ToUpper(strings.TrimSpace(s))) {
	case "", SegmentAll:
		return SegmentAll, true
	case SegmentEI:
		return SegmentEI, true
	case SegmentAI:
		return SegmentAI, true
	case SegmentAF:
		return SegmentAF, true
	}
	return "", false
}

// Student is a read-only record owned by the external directory.
// JSON field names keep the wire contract consumed by the terminal script.
type Student struct {
	ID       int    `json:"id"`
	FullName string `json:"nomeCompleto"`
	Class    string `json:"turma"`
	// Photo is the base64-encoded reduced photo, when the directory has one.
	Photo string `json:"fotoUrl,omitempty"`
}

// Segment derives the student's segment from the class description prefix.
func (s Student) Segment() Segment {
	class := strings.ToUpper(strings.TrimSpace(s.Class))
	for _, seg := range []Segment{SegmentEI, SegmentAI, SegmentAF} {
		if strings.HasPrefix(class, string(seg)) {
			return seg
		}
	}
	return ""
}

// isHighSchool reports whether the class belongs to Ensino Médio.
func (s Student) isHighSchool() bool {
	return strings.HasPrefix(strings.ToUpper(strings.TrimSpace(s.Class)), highSchoolPrefix)
}
