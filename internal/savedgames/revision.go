package savedgames

import "github.com/google/uuid"

// RevisionProvider issues the token stamped on a record by every save.
type RevisionProvider interface {
	NewRevision() (string, error)
}

type uuidRevisionProvider struct{}

// NewUUIDRevisionProvider constructs a RevisionProvider that issues UUIDv7 revisions.
func NewUUIDRevisionProvider() RevisionProvider {
	return &uuidRevisionProvider{}
}

func (p *uuidRevisionProvider) NewRevision() (string, error) {
	value, err := uuid.NewV7()
	if err != nil {
		return "", err
	}
	return value.String(), nil
}
