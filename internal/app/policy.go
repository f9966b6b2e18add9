package app

import (
	"fmt"

	"github.com/dkeye/ChessSignal/internal/core"
	"github.com/dkeye/ChessSignal/internal/domain"
)

type BackpressureAction int

const (
	NoAction BackpressureAction = iota
	MarkSlow
	KickMember
	DropFrame
)

// Policy decides what happens to a member whose delivery failed.
type Policy interface {
	OnBackPressure(group domain.GroupName, member core.Member) BackpressureAction
}

type SimplePolicy struct{}

func (SimplePolicy) OnBackPressure(group domain.GroupName, member core.Member) BackpressureAction {
	return KickMember
}

// DropPolicy only loses the frame; the member stays.
type DropPolicy struct{}

func (DropPolicy) OnBackPressure(group domain.GroupName, member core.Member) BackpressureAction {
	return DropFrame
}

// LogPolicy keeps the member and only logs it as slow.
type LogPolicy struct{}

func (LogPolicy) OnBackPressure(group domain.GroupName, member core.Member) BackpressureAction {
	return MarkSlow
}

// PolicyByName maps the backpressure config value to a policy.
func PolicyByName(name string) (Policy, error) {
	switch name {
	case "", "kick":
		return SimplePolicy{}, nil
	case "drop":
		return DropPolicy{}, nil
	case "log":
		return LogPolicy{}, nil
	}
	return nil, fmt.Errorf("unknown backpressure policy %q", name)
}
