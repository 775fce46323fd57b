/*
The package ctrl contains helpers to control layer 1: reset it, synchronize to a cell, measure the
received power, and set up dedicated channels.
*/
package ctrl

import (
	"fmt"
	"strings"

	"github.com/ftl/gsm-ms/l1ctl"
)

// CCCHMode is the configuration of the common control channels on timeslot 0.
type CCCHMode uint8

// All CCCH modes
const (
	CCCHNone         = CCCHMode(l1ctl.CCCHModeNone)
	CCCHNonCombined  = CCCHMode(l1ctl.CCCHModeNonCombined)
	CCCHCombined     = CCCHMode(l1ctl.CCCHModeCombined)
	CCCHCombinedCBCH = CCCHMode(l1ctl.CCCHModeCombinedCBCH)
)

// CCCHModesByName maps all CCCH modes by their string representation
var CCCHModesByName = map[string]CCCHMode{
	"NONE":          CCCHNone,
	"NON-COMBINED":  CCCHNonCombined,
	"COMBINED":      CCCHCombined,
	"COMBINED-CBCH": CCCHCombinedCBCH,
}

// CCCHModeByName returns the CCCHMode with the given name
func CCCHModeByName(name string) (CCCHMode, error) {
	sanitized := strings.ToUpper(strings.TrimSpace(name))
	result, ok := CCCHModesByName[sanitized]
	if !ok {
		return 0, fmt.Errorf("invalid CCCH mode %s", name)
	}
	return result, nil
}

func (m CCCHMode) String() string {
	for k, v := range CCCHModesByName {
		if v == m {
			return k
		}
	}
	return "UNKNOWN"
}

// ResetType selects what is reset in layer 1.
type ResetType uint8

// All reset types
const (
	ResetFull  = ResetType(l1ctl.ResetFull)
	ResetSched = ResetType(l1ctl.ResetSched)
)

// ResetTypesByName maps all reset types by their string representation
var ResetTypesByName = map[string]ResetType{
	"FULL":  ResetFull,
	"SCHED": ResetSched,
}

// ResetTypeByName returns the ResetType with the given name
func ResetTypeByName(name string) (ResetType, error) {
	sanitized := strings.ToUpper(strings.TrimSpace(name))
	result, ok := ResetTypesByName[sanitized]
	if !ok {
		return 0, fmt.Errorf("invalid reset type %s", name)
	}
	return result, nil
}

func (t ResetType) String() string {
	for k, v := range ResetTypesByName {
		if v == t {
			return k
		}
	}
	return "UNKNOWN"
}
