package domain

import (
	"errors"
	"regexp"
	"strings"
	"unicode/utf8"
)

type (
	RoomID    string
	GroupName string
)

const (
	callGroupPrefix = "call_"
	userGroupPrefix = "user_"
	MaxRoomIDLen    = 100
)

var ErrInvalidRoomID = errors.New("invalid room id")

// Word characters in the Unicode sense: letters, digits and underscore.
var roomIDRe = regexp.MustCompile(`^[\p{L}\p{N}_]+$`)

// ParseRoomID accepts one or more word characters, non-ASCII letters
// included, up to MaxRoomIDLen characters.
func ParseRoomID(raw string) (RoomID, error) {
	if utf8.RuneCountInString(raw) > MaxRoomIDLen || !roomIDRe.MatchString(raw) {
		return "", ErrInvalidRoomID
	}
	return RoomID(raw), nil
}

func CallGroup(room RoomID) GroupName {
	return GroupName(callGroupPrefix + string(room))
}

func UserGroup(id UserID) GroupName {
	return GroupName(userGroupPrefix + string(id))
}

func (g GroupName) IsCall() bool { return strings.HasPrefix(string(g), callGroupPrefix) }
func (g GroupName) IsUser() bool { return strings.HasPrefix(string(g), userGroupPrefix) }
