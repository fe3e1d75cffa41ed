package domain

import "strings"

// TLP is the traffic light protocol level of a piece of information.
// Lower values are more restrictive; TLPUnknown sorts below every colour
// but is treated as "no value" by MoreRestrictiveTLP.
type TLP int16

const (
	TLPUnknown TLP = 0
	TLPRed     TLP = 10
	TLPAmber   TLP = 20
	TLPGreen   TLP = 30
	TLPWhite   TLP = 40
)

var tlpNames = map[TLP]string{
	TLPUnknown: "unknown",
	TLPRed:     "red",
	TLPAmber:   "amber",
	TLPGreen:   "green",
	TLPWhite:   "white",
}

func (t TLP) String() string {
	if n, ok := tlpNames[t]; ok {
		return n
	}
	return "unknown"
}

// ParseTLP maps a marking colour ("AMBER", " green") onto a TLP level.
// Anything unrecognised is TLPUnknown.
func ParseTLP(color string) TLP {
	c := strings.ToLower(strings.TrimSpace(color))
	for k, v := range tlpNames {
		if v == c {
			return k
		}
	}
	return TLPUnknown
}

// MorePermissiveTLP returns the more permissive of two levels.
func MorePermissiveTLP(a, b TLP) TLP {
	if a > b {
		return a
	}
	return b
}

// MoreRestrictiveTLP returns the more restrictive of two levels. Unknown
// carries no information and never wins against a real colour.
func MoreRestrictiveTLP(a, b TLP) TLP {
	switch {
	case a == TLPUnknown:
		return b
	case b == TLPUnknown:
		return a
	case a < b:
		return a
	default:
		return b
	}
}

type Confidence int16

const (
	ConfidenceUnknown Confidence = 0
	ConfidenceLow     Confidence = 10
	ConfidenceMedium  Confidence = 20
	ConfidenceHigh    Confidence = 30
)

var confidenceNames = map[Confidence]string{
	ConfidenceUnknown: "unknown",
	ConfidenceLow:     "low",
	ConfidenceMedium:  "medium",
	ConfidenceHigh:    "high",
}

func (c Confidence) String() string {
	if n, ok := confidenceNames[c]; ok {
		return n
	}
	return "unknown"
}

// ParseConfidence reads the textual confidence found in indicator essences.
func ParseConfidence(s string) Confidence {
	v := strings.ToLower(strings.TrimSpace(s))
	for k, n := range confidenceNames {
		if n == v {
			return k
		}
	}
	return ConfidenceUnknown
}

type Processing int16

const (
	ProcessingUnknown   Processing = 0
	ProcessingAutomated Processing = 10
	ProcessingManual    Processing = 20
)

var processingNames = map[Processing]string{
	ProcessingUnknown:   "unknown",
	ProcessingAutomated: "automated",
	ProcessingManual:    "manual",
}

func (p Processing) String() string {
	if n, ok := processingNames[p]; ok {
		return n
	}
	return "unknown"
}

func ParseProcessing(s string) Processing {
	v := strings.ToLower(strings.TrimSpace(s))
	for k, n := range processingNames {
		if n == v {
			return k
		}
	}
	return ProcessingUnknown
}

type Origin int16

const (
	OriginUnknown           Origin = 0
	OriginExternalUncertain Origin = 10
	OriginPublic            Origin = 20
	OriginVendor            Origin = 30
	OriginPartner           Origin = 40
)

var originNames = map[Origin]string{
	OriginUnknown:           "unknown",
	OriginExternalUncertain: "external-uncertain",
	OriginPublic:            "public",
	OriginVendor:            "vendor",
	OriginPartner:           "partner",
}

func (o Origin) String() string {
	if n, ok := originNames[o]; ok {
		return n
	}
	return "unknown"
}

func ParseOrigin(s string) Origin {
	v := strings.ToLower(strings.TrimSpace(s))
	for k, n := range originNames {
		if n == v {
			return k
		}
	}
	return OriginUnknown
}

type Priority int16

const (
	PriorityUncertain Priority = 0
	PriorityLow       Priority = 10
	PriorityMedium    Priority = 20
	PriorityHigh      Priority = 30
	PriorityHot       Priority = 40
)

var priorityNames = map[Priority]string{
	PriorityUncertain: "uncertain",
	PriorityLow:       "low",
	PriorityMedium:    "medium",
	PriorityHigh:      "high",
	PriorityHot:       "hot",
}

func (p Priority) String() string {
	if n, ok := priorityNames[p]; ok {
		return n
	}
	return "uncertain"
}

// ContextType classifies a context by the naming scheme it was created from.
type ContextType int16

const (
	ContextUnknown          ContextType = 0
	ContextInvestigation    ContextType = 10
	ContextIncidentResponse ContextType = 20
	ContextCERT             ContextType = 30
)

var contextTypeNames = map[ContextType]string{
	ContextUnknown:          "",
	ContextInvestigation:    "INVES",
	ContextIncidentResponse: "IR",
	ContextCERT:             "CERT",
}

func (c ContextType) String() string { return contextTypeNames[c] }

// ParseContextType accepts the short labels used in context names (INVES, IR, CERT).
func ParseContextType(s string) (ContextType, bool) {
	v := strings.ToUpper(strings.TrimSpace(s))
	if v == "" {
		return ContextUnknown, false
	}
	for k, n := range contextTypeNames {
		if n == v {
			return k, true
		}
	}
	return ContextUnknown, false
}

// TagAction is the kind of change recorded in tag history.
type TagAction int16

const (
	TagAdd    TagAction = 0
	TagRemove TagAction = 1
)

func (a TagAction) String() string {
	if a == TagRemove {
		return "remove"
	}
	return "add"
}

func ParseTagAction(s string) (TagAction, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "add":
		return TagAdd, true
	case "remove":
		return TagRemove, true
	}
	return TagAdd, false
}
