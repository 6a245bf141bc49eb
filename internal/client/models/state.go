package models

// Phase is the orchestrator lifecycle position.
type Phase string

const (
	PhaseUninitialized   Phase = "uninitialized"
	PhaseLoading         Phase = "loading"
	PhaseAuthenticated   Phase = "authenticated"
	PhaseUnauthenticated Phase = "unauthenticated"
)

// AuthState is the process-wide view of who is signed in. Values are
// snapshots; mutating one does not affect the orchestrator.
type AuthState struct {
	Phase           Phase
	User            *User
	Session         *Session
	Loading         bool
	IsAuthenticated bool
}

// StateFromSession derives the settled state for a (possibly nil) session.
func StateFromSession(s *Session) AuthState {
	user := s.CurrentUser()
	st := AuthState{
		Phase:           PhaseUnauthenticated,
		User:            user,
		Session:         s,
		IsAuthenticated: user != nil,
	}
	if st.IsAuthenticated {
		st.Phase = PhaseAuthenticated
	} else {
		st.Session = nil
	}
	return st
}
