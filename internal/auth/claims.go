package auth

import (
	"errors"
	"strconv"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

const sessionAudience = "connectfour-api"

var (
	// ErrInvalidPlayerSubject indicates that a subject does not carry a positive player id.
	ErrInvalidPlayerSubject = errors.New("auth: subject is not a player id")
)

// PlayerClaims is the payload of a player session token. The subject is the decimal player id.
type PlayerClaims struct {
	PlayerID int64 `json:"player_id"`
	jwt.RegisteredClaims
}

func subjectForPlayer(playerID int64) string {
	return strconv.FormatInt(playerID, 10)
}

func playerFromSubject(subject string) (int64, error) {
	playerID, err := strconv.ParseInt(strings.TrimSpace(subject), 10, 64)
	if err != nil || playerID <= 0 {
		return 0, ErrInvalidPlayerSubject
	}
	return playerID, nil
}
