package session

import (
	"context"
	"time"

	"dinners/internal/core"
	"dinners/internal/editor"
)

// OnDateClick opens the editor on t's calendar day.
func (s *Session) OnDateClick(t time.Time) {
	s.OnDateKeyClick(core.NewDateKey(t))
}

func (s *Session) OnDateKeyClick(key core.DateKey) {
	_ = s.update(func(st editor.State) (editor.State, error) {
		return st.OpenEditor(s.ledger, s.roster, key), nil
	})
}

func (s *Session) OnMonthChange(year int, month time.Month) error {
	ym := core.YearMonth{Year: year, Month: month}
	if err := ym.Validate(); err != nil {
		return err
	}
	return s.update(func(st editor.State) (editor.State, error) {
		return st.SetVisibleMonth(ym), nil
	})
}

func (s *Session) OnToggleAttendee(p core.PersonID) error {
	return s.update(func(st editor.State) (editor.State, error) {
		return st.ToggleAttendee(s.roster, p)
	})
}

func (s *Session) OnPriceOptionChange(index int) error {
	return s.update(func(st editor.State) (editor.State, error) {
		return st.SetPriceOption(s.roster, index)
	})
}

func (s *Session) OnSelectCustomPrice() error {
	return s.update(editor.State.SelectCustomPrice)
}

func (s *Session) OnCustomPriceChange(text string) error {
	return s.update(func(st editor.State) (editor.State, error) {
		return st.SetCustomPrice(text)
	})
}

// OnSave closes the editor and writes the draft in the background. A draft
// whose price cannot be resolved is rejected and the editor stays open.
func (s *Session) OnSave() error {
	s.mu.Lock()
	cur := s.state
	key, _, err := cur.Resolve(s.roster)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	s.state = cur.Discard()
	s.queueWriteLocked("save", key, func(ctx context.Context) error {
		_, err := cur.Commit(ctx, s.store, s.roster)
		return err
	})
	s.mu.Unlock()
	return nil
}

func (s *Session) OnCancel() {
	_ = s.update(func(st editor.State) (editor.State, error) {
		return st.Discard(), nil
	})
}

// OnDelete asks for confirmation before anything is removed.
func (s *Session) OnDelete() error {
	return s.update(editor.State.RequestDelete)
}

func (s *Session) OnCancelDelete() {
	_ = s.update(func(st editor.State) (editor.State, error) {
		return st.CancelDelete(), nil
	})
}

// OnConfirmDelete closes the editor and removes the date in the background.
func (s *Session) OnConfirmDelete() error {
	s.mu.Lock()
	cur := s.state
	switch {
	case cur.Editing == nil:
		s.mu.Unlock()
		return editor.ErrNotEditing
	case !cur.Editing.ConfirmingDelete:
		s.mu.Unlock()
		return editor.ErrConfirmationRequired
	}
	key := cur.Editing.Date
	s.state = cur.Discard()
	s.queueWriteLocked("delete", key, func(ctx context.Context) error {
		_, err := cur.Remove(ctx, s.store)
		return err
	})
	s.mu.Unlock()
	return nil
}

func (s *Session) OnSelectPersonRow(p core.PersonID) {
	_ = s.update(func(st editor.State) (editor.State, error) {
		return st.ViewDetail(p), nil
	})
}

func (s *Session) OnCloseDetail() {
	_ = s.update(func(st editor.State) (editor.State, error) {
		return st.CloseDetail(), nil
	})
}

func (s *Session) DismissNotice() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notice = nil
}
