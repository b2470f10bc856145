package session

import (
	"context"

	"github.com/hazyhaar/weslplay/schema"
	"github.com/hazyhaar/weslplay/share"
)

// SetFiles replaces the file list. files must already be validated.
func (s *Session) SetFiles(files schema.Files) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.SetFiles(files)
}

// SetFileSource replaces the source of file i.
func (s *Session) SetFileSource(i int, src string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.SetFileSource(i, src)
}

// NewFile appends an empty tab and returns its index.
func (s *Session) NewFile() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.NewFile()
}

// DeleteFile removes file i.
func (s *Session) DeleteFile(i int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.DeleteFile(i)
}

// RenameFile renames file i and returns the name actually used.
func (s *Session) RenameFile(i int, name string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.RenameFile(i, name)
}

// PatchOptions applies a validated partial options update.
func (s *Session) PatchOptions(p schema.Patch) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.PatchOptions(p)
}

// SetBackend switches backend.
func (s *Session) SetBackend(b schema.Backend) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.SetBackend(b)
}

// SetTab selects the active file.
func (s *Session) SetTab(i int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.SetTab(i)
}

// SetAutorun toggles autorun. Enabling it compiles at once.
func (s *Session) SetAutorun(on bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.Autorun() == on {
		return
	}
	s.state.SetAutorun(on)
	s.orch.SetAutorun(on)
}

// Run compiles now, bypassing the debounce window.
func (s *Session) Run() {
	s.orch.RunNow()
}

// Reset restores the default project and the help message.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.Reset()
	s.output = ""
	s.ok = false
	s.diagnostics = nil
	s.setMessageLocked(DefaultMessage)
}

// ShareURL returns the public location of handle.
func (s *Session) ShareURL(handle string) string {
	return s.deps.PublicURL + share.PathFor(handle)
}

// Share publishes the current state. On failure the message is left as is
// and the error, a *share.ShareError, is for the caller to surface.
func (s *Session) Share(ctx context.Context) (handle, link string, err error) {
	snap := s.snapshot()
	handle, err = s.share.Publish(ctx, snap)
	if s.deps.Metrics != nil {
		s.deps.Metrics.ObserveShare("save", err)
	}
	if err != nil {
		return "", "", err
	}

	link = s.ShareURL(handle)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.share.Record(handle, snap)
	s.output = ""
	s.setMessageLocked(linkMessage("Copy the URL below to share this playground.", link))
	return handle, link, nil
}

// Load fetches a shared snapshot and overwrites the session state with it.
func (s *Session) Load(ctx context.Context, handle string) error {
	snap, err := s.share.Fetch(ctx, handle)
	if s.deps.Metrics != nil {
		s.deps.Metrics.ObserveShare("load", err)
	}
	if err != nil {
		s.mu.Lock()
		s.share.Clear()
		s.mu.Unlock()
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.share.Apply(handle, snap)
	s.output = ""
	s.setMessageLocked(linkMessage("Loaded shared playground.", s.ShareURL(handle)))
	return nil
}

// Navigate follows a location change. With popstate set, state is the
// history payload of the entry being restored; otherwise path is a deep
// link pushed onto the history.
func (s *Session) Navigate(ctx context.Context, path string, state any, popstate bool) error {
	s.mu.Lock()
	var (
		handle string
		fetch  bool
	)
	if popstate {
		handle, fetch = s.share.PopState(share.Entry{Path: path, State: state})
	} else {
		handle, fetch = s.share.Navigate(path)
	}
	s.mu.Unlock()
	if fetch {
		return s.Load(ctx, handle)
	}
	return nil
}

// Back moves back in the session history. ok is false at the start.
func (s *Session) Back(ctx context.Context) (ok bool, err error) {
	return s.step(ctx, (*share.Service).Back)
}

// Forward moves forward in the session history.
func (s *Session) Forward(ctx context.Context) (ok bool, err error) {
	return s.step(ctx, (*share.Service).Forward)
}

func (s *Session) step(ctx context.Context, move func(*share.Service) (string, bool, bool)) (bool, error) {
	s.mu.Lock()
	handle, fetch, ok := move(s.share)
	s.mu.Unlock()
	if !ok {
		return false, nil
	}
	if fetch {
		return true, s.Load(ctx, handle)
	}
	return true, nil
}

// History returns the navigation entries and the current position.
func (s *Session) History() ([]share.Entry, int) {
	return s.share.History().Entries()
}
