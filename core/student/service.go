package student

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"golang.org/x/sync/errgroup"

	"github.com/marquesl99/chamada-visual/core"
)

var (
	// ErrSearchUnavailable is returned when the directory cannot be reached
	// or errors out; the caller surfaces it without retrying.
	ErrSearchUnavailable = errors.New("student directory unavailable")
)

type (
	// Directory wraps the external student-directory API. Implementations are
	// read-only and idempotent.
	Directory interface {
		// SearchByFirstName queries the directory for students whose name
		// starts with a single term. Refinement happens locally.
		SearchByFirstName(ctx context.Context, term string) ([]Student, error)
		// ReducedPhoto returns the student's base64 reduced photo, or "" when
		// the directory has none.
		ReducedPhoto(ctx context.Context, id int) (string, error)
	}

	Service struct {
		dir    Directory
		logger core.Logger
	}
)

const (
	// queries shorter than this never reach the directory.
	minQueryLen = 2
	// upper bound on results returned to the terminal.
	maxResults = 25
	// photo fetches running at once.
	maxPhotoFetches = 8
)

func NewService(dir Directory, logger core.Logger) *Service {
	return &Service{dir: dir, logger: logger}
}

// Search finds students matching every term of query, accent- and
// case-insensitively, optionally narrowed to a segment. High-school classes
// are always excluded. Results carry photos when the directory has them.
func (svc *Service) Search(ctx context.Context, query string, seg Segment) ([]Student, error) {
	query = core.CleanString(query)
	if utf8.RuneCountInString(query) < minQueryLen {
		return []Student{}, nil
	}

	// the directory only searches on one term; send the first and refine here.
	firstTerm := strings.Fields(query)[0]
	found, err := svc.dir.SearchByFirstName(ctx, firstTerm)
	if err != nil {
		svc.logger.Error(fmt.Sprintf("searching directory for %q: %v", firstTerm, err), err)
		return nil, ErrSearchUnavailable
	}

	terms := strings.Fields(core.NormalizeText(query))
	matches := make([]Student, 0, len(found))
	for _, st := range found {
		if st.isHighSchool() {
			continue
		}
		if seg != SegmentAll && st.Segment() != seg {
			continue
		}
		if !matchesAllTerms(st.FullName, terms) {
			continue
		}
		matches = append(matches, st)
		if len(matches) == maxResults {
			break
		}
	}

	svc.attachPhotos(ctx, matches)
	return matches, nil
}

func matchesAllTerms(name string, terms []string) bool {
	normalized := core.NormalizeText(name)
	for _, term := range terms {
		if !strings.Contains(normalized, term) {
			return false
		}
	}
	return true
}

// attachPhotos fetches reduced photos in parallel. A missing or failed photo
// never fails the search.
func (svc *Service) attachPhotos(ctx context.Context, students []Student) {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(maxPhotoFetches)
	for i := range students {
		i := i
		g.Go(func() error {
			photo, err := svc.dir.ReducedPhoto(ctx, students[i].ID)
			if err != nil {
				svc.logger.Debug(fmt.Sprintf("fetching photo for student %d: %v", students[i].ID, err))
				return nil
			}
			students[i].Photo = photo
			return nil
		})
	}
	_ = g.Wait()
}
