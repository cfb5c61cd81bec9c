package services

// AdminStore backs the unauthenticated maintenance endpoints.
type AdminStore interface {
	ListSessions() ([]*Session, error)
	ClearSessions() (int, error)
}

type AdminService struct {
	store AdminStore
}

func NewAdminService(store AdminStore) *AdminService {
	return &AdminService{store: store}
}

// ListSessions dumps every record, tokens and answer payloads included.
func (s *AdminService) ListSessions() ([]*Session, error) {
	return s.store.ListSessions()
}

// ClearSessions deletes every record unconditionally and reports how
// many were removed.
func (s *AdminService) ClearSessions() (int, error) {
	return s.store.ClearSessions()
}
