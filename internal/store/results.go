package store

import (
	"github.com/rotisserie/eris"

	"github.com/profile-desk/backend/internal/models"
)

// Results returns copies of all results in list order.
func (s *Store) Results() []models.ExtractionResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.resultsLocked()
}

func (s *Store) resultsLocked() []models.ExtractionResult {
	out := make([]models.ExtractionResult, len(s.results))
	copy(out, s.results)
	return out
}

// Result returns one result by id.
func (s *Store) Result(id string) (models.ExtractionResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, r := range s.results {
		if r.ID == id {
			return r, nil
		}
	}
	return models.ExtractionResult{}, eris.Wrapf(ErrResultNotFound, "result %s", id)
}

// ToggleSelect adds or removes one result from the selection and reports
// whether it is selected afterwards.
func (s *Store) ToggleSelect(id string) (bool, error) {
	var (
		selected bool
		err      error
	)
	s.mutate(func() bool {
		if !s.hasResultLocked(id) {
			err = eris.Wrapf(ErrResultNotFound, "result %s", id)
			return false
		}
		if _, ok := s.selection[id]; ok {
			delete(s.selection, id)
		} else {
			s.selection[id] = struct{}{}
			selected = true
		}
		return true
	})
	return selected, err
}

// SelectAll clears the selection when every result is already selected and
// selects every result otherwise. It returns the new selection size.
func (s *Store) SelectAll() int {
	var size int
	s.mutate(func() bool {
		if len(s.selection) == len(s.results) {
			s.selection = make(map[string]struct{})
		} else {
			s.selection = make(map[string]struct{}, len(s.results))
			for _, r := range s.results {
				s.selection[r.ID] = struct{}{}
			}
		}
		size = len(s.selection)
		return true
	})
	return size
}

// Selected returns the selected results in list order.
func (s *Store) Selected() []models.ExtractionResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]models.ExtractionResult, 0, len(s.selection))
	for _, r := range s.results {
		if _, ok := s.selection[r.ID]; ok {
			out = append(out, r)
		}
	}
	return out
}

// SelectedIDs returns the ids of the selected results in list order.
func (s *Store) SelectedIDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.selectedIDsLocked()
}

func (s *Store) selectedIDsLocked() []string {
	ids := make([]string, 0, len(s.selection))
	for _, r := range s.results {
		if _, ok := s.selection[r.ID]; ok {
			ids = append(ids, r.ID)
		}
	}
	return ids
}

// DeleteSelected removes the selected results from the list and the
// selection set, returning the removed ids.
func (s *Store) DeleteSelected() []string {
	var removed []string
	s.mutate(func() bool {
		if len(s.selection) == 0 {
			return false
		}
		kept := s.results[:0]
		for _, r := range s.results {
			if _, ok := s.selection[r.ID]; ok {
				removed = append(removed, r.ID)
				delete(s.selection, r.ID)
				continue
			}
			kept = append(kept, r)
		}
		s.results = kept
		return true
	})
	return removed
}

func (s *Store) hasResultLocked(id string) bool {
	for _, r := range s.results {
		if r.ID == id {
			return true
		}
	}
	return false
}
