package driver

import "time"

// KeyType represents the type of a stored key
type KeyType string

const (
	TypeString KeyType = "string"
	TypeHash   KeyType = "hash"
	TypeList   KeyType = "list"
	TypeSet    KeyType = "set"
	TypeZSet   KeyType = "zset"
	TypeNone   KeyType = "none"
)

// Condition is a write precondition shared by SET, EXPIRE and ZADD.
type Condition int

const (
	CondNone Condition = iota
	CondNX             // only when absent
	CondXX             // only when present
	CondGT             // only when the new value is greater
	CondLT             // only when the new value is less
)

func (c Condition) String() string {
	switch c {
	case CondNX:
		return "NX"
	case CondXX:
		return "XX"
	case CondGT:
		return "GT"
	case CondLT:
		return "LT"
	}
	return ""
}

// ExpiryKind selects how SetOptions.Expiry is interpreted.
type ExpiryKind int

const (
	ExpiryNone    ExpiryKind = iota
	ExpiryEX                 // relative seconds
	ExpiryPX                 // relative milliseconds
	ExpiryEXAT               // absolute unix seconds
	ExpiryPXAT               // absolute unix milliseconds
	ExpiryKeepTTL            // retain the existing TTL
)

func (k ExpiryKind) String() string {
	switch k {
	case ExpiryEX:
		return "EX"
	case ExpiryPX:
		return "PX"
	case ExpiryEXAT:
		return "EXAT"
	case ExpiryPXAT:
		return "PXAT"
	case ExpiryKeepTTL:
		return "KEEPTTL"
	}
	return ""
}

// SetOptions carries the options of a SET command.
type SetOptions struct {
	Condition Condition // CondNone, CondNX or CondXX
	Expiry    ExpiryKind
	// ExpiryValue is the exact argument text of EX/PX/EXAT/PXAT.
	ExpiryValue Number
	Get         bool
}

// Deadline resolves the expiry options against now. keep reports KEEPTTL,
// and a zero deadline means no expiry.
func (o SetOptions) Deadline(now time.Time) (deadline time.Time, keep bool, err error) {
	switch o.Expiry {
	case ExpiryNone:
		return time.Time{}, false, nil
	case ExpiryKeepTTL:
		return time.Time{}, true, nil
	}
	n, err := o.ExpiryValue.Int()
	if err != nil {
		return time.Time{}, false, err
	}
	if n <= 0 {
		return time.Time{}, false, ErrInvalidExpire
	}
	switch o.Expiry {
	case ExpiryEX:
		return now.Add(time.Duration(n) * time.Second), false, nil
	case ExpiryPX:
		return now.Add(time.Duration(n) * time.Millisecond), false, nil
	case ExpiryEXAT:
		return time.Unix(n, 0), false, nil
	default:
		return time.UnixMilli(n), false, nil
	}
}

// SetResult is the outcome of SET. Written is false when an NX/XX
// precondition suppressed the write. Old is only populated with SetOptions.Get.
type SetResult struct {
	Written bool
	Old     string
	HadOld  bool
}

// FieldValue is one hash field.
type FieldValue struct {
	Field string
	Value string
}

// KeyValue pairs a key with a value (MSET input, blocking pop output).
type KeyValue struct {
	Key   string
	Value string
}

// Optional is a value that may be absent (MGET, HMGET).
type Optional struct {
	Value string
	Valid bool
}

// ZMember represents a sorted set member with its score
type ZMember struct {
	Member string
	Score  float64
}

// ScoredMember is a ZADD input member whose score keeps its argument text.
type ScoredMember struct {
	Score  Number
	Member string
}

// ZAddArgs carries the flags and members of a ZADD command. Flags are kept
// independently so incompatible combinations reach the driver, which rejects
// them with the server's message.
type ZAddArgs struct {
	NX, XX  bool
	GT, LT  bool
	CH      bool
	Members []ScoredMember
}

// Validate applies the server's ZADD flag compatibility rules.
func (a ZAddArgs) Validate(incr bool) error {
	if a.NX && a.XX {
		return ErrZAddNXXX
	}
	if (a.GT && a.LT) || (a.NX && (a.GT || a.LT)) {
		return ErrZAddGTLTNX
	}
	if incr && len(a.Members) != 1 {
		return ErrZAddIncrPair
	}
	if len(a.Members) == 0 {
		return ErrSyntax
	}
	return nil
}

// RangeBy selects the interpretation of RangeQuery boundaries.
type RangeBy int

const (
	ByIndex RangeBy = iota
	ByScore
	ByLex
)

// RangeQuery describes a sorted set range. For ByScore and ByLex, Start is
// always the lower and Stop the upper boundary whatever the direction; for
// ByIndex they are ranks counted in the requested direction.
type RangeQuery struct {
	By         RangeBy
	Start      string
	Stop       string
	Reverse    bool
	Limit      bool
	Offset     int64
	Count      int64
	WithScores bool
}

// ScanOptions carries the MATCH, COUNT and TYPE options of SCAN.
type ScanOptions struct {
	Match string
	Count int64
	Type  string
}

// ScanPage is one SCAN iteration result.
type ScanPage struct {
	Cursor uint64
	Keys   []string
}

// SubscriptionConfig is the fixed channel and pattern set of a Subscriber.
type SubscriptionConfig struct {
	Channels []string
	Patterns []string
}

// Empty reports whether the configuration subscribes to nothing.
func (c SubscriptionConfig) Empty() bool {
	return len(c.Channels) == 0 && len(c.Patterns) == 0
}

// Message is one delivered pub/sub message. Pattern is empty for direct
// channel deliveries.
type Message struct {
	Channel string
	Pattern string
	Payload string
}
