package translate

import (
	"strconv"
	"strings"

	"github.com/mnorrsken/kvshim/driver"
)

// Vocab maps an option token to the number of values following it. Each
// command family has a fixed vocabulary, which is what keeps a value that
// happens to spell a token from being read as one.
type Vocab map[string]int

// Option is one recognized option with its values.
type Option struct {
	Name   string
	Values []any
}

// ScanOptions separates recognized option tokens from literal values in a
// trailing argument run. Tokens match case-insensitively anywhere in the
// run. Values following a token are consumed verbatim and never read as
// tokens. A token whose values are missing stays a literal. Object
// arguments ({EX: 10, NX: true}) contribute options by key; keys outside
// the vocabulary become literals.
func ScanOptions(args []any, vocab Vocab) (opts []Option, literals []any) {
	flat := Flatten(args...)
	for i := 0; i < len(flat); i++ {
		v := flat[i]
		if fields, ok := objectFields(v); ok {
			o, lits := objectOptions(v, fields, vocab)
			opts = append(opts, o...)
			literals = append(literals, lits...)
			continue
		}
		s, isText := v.(string)
		if !isText {
			literals = append(literals, v)
			continue
		}
		name := strings.ToUpper(s)
		arity, known := vocab[name]
		if !known || i+arity >= len(flat) {
			literals = append(literals, v)
			continue
		}
		opts = append(opts, Option{Name: name, Values: flat[i+1 : i+1+arity]})
		i += arity
	}
	return opts, literals
}

func objectOptions(obj any, fields []driver.FieldValue, vocab Vocab) (opts []Option, literals []any) {
	raw := rawObjectValues(obj)
	for _, f := range fields {
		name := strings.ToUpper(f.Field)
		arity, known := vocab[name]
		if !known {
			literals = append(literals, f.Field)
			continue
		}
		value := raw[f.Field]
		switch arity {
		case 0:
			if truthy(value) {
				opts = append(opts, Option{Name: name})
			}
		case 1:
			opts = append(opts, Option{Name: name, Values: []any{value}})
		default:
			values, ok := multiValue(value, arity)
			if !ok {
				literals = append(literals, f.Field)
				continue
			}
			opts = append(opts, Option{Name: name, Values: values})
		}
	}
	return opts, literals
}

// rawObjectValues returns the unconverted values of an object keyed by the
// field names objectFields reports.
func rawObjectValues(obj any) map[string]any {
	out := make(map[string]any)
	forEachObjectValue(obj, func(name string, v any) { out[name] = v })
	return out
}

// multiValue reads an option taking several values: an array of exactly n
// items, or for LIMIT an {offset, count} object.
func multiValue(v any, n int) ([]any, bool) {
	if fields, ok := objectFields(v); ok {
		raw := rawObjectValues(v)
		lookup := make(map[string]any, len(fields))
		for _, f := range fields {
			lookup[strings.ToLower(f.Field)] = raw[f.Field]
		}
		off, okOff := lookup["offset"]
		cnt, okCnt := lookup["count"]
		if n == 2 && okOff && okCnt {
			return []any{off, cnt}, true
		}
		return nil, false
	}
	flat := Flatten(v)
	if len(flat) != n {
		return nil, false
	}
	return flat, true
}

func truthy(v any) bool {
	switch x := v.(type) {
	case nil:
		return false
	case bool:
		return x
	}
	switch strings.ToLower(String(v)) {
	case "", "0", "false":
		return false
	}
	return true
}

var setVocab = Vocab{"EX": 1, "PX": 1, "EXAT": 1, "PXAT": 1, "NX": 0, "XX": 0, "GET": 0, "KEEPTTL": 0}

// SetOptions translates the option run of SET, given flat
// ("EX", 10, "NX") or as an object ({EX: 10, NX: true}). ok is false when
// the run holds unknown tokens or conflicting options.
func SetOptions(args []any) (driver.SetOptions, bool) {
	opts, literals := ScanOptions(args, setVocab)
	var o driver.SetOptions
	ok := len(literals) == 0
	setExpiry := func(kind driver.ExpiryKind, v any) {
		if o.Expiry != driver.ExpiryNone && o.Expiry != kind {
			ok = false
		}
		o.Expiry = kind
		if v != nil {
			o.ExpiryValue = Number(v)
		}
	}
	for _, opt := range opts {
		switch opt.Name {
		case "NX", "XX":
			cond := driver.CondNX
			if opt.Name == "XX" {
				cond = driver.CondXX
			}
			if o.Condition != driver.CondNone && o.Condition != cond {
				ok = false
			}
			o.Condition = cond
		case "GET":
			o.Get = true
		case "KEEPTTL":
			setExpiry(driver.ExpiryKeepTTL, nil)
		case "EX":
			setExpiry(driver.ExpiryEX, opt.Values[0])
		case "PX":
			setExpiry(driver.ExpiryPX, opt.Values[0])
		case "EXAT":
			setExpiry(driver.ExpiryEXAT, opt.Values[0])
		case "PXAT":
			setExpiry(driver.ExpiryPXAT, opt.Values[0])
		}
	}
	return o, ok
}

var zaddFlags = map[string]bool{"NX": true, "XX": true, "GT": true, "LT": true, "CH": true, "INCR": true}

// ZAdd translates the argument run after the key of ZADD. Flags are only
// recognized where a score is expected, so a member spelled like a flag
// stays a member. Members may be given flat ("1", "a", "2", "b"), as
// [score, member] pairs, as a member-to-score object or as {score, value}
// objects. ok is false when a score has no member.
func ZAdd(args []any) (za driver.ZAddArgs, incr bool, ok bool) {
	var pendingScore *driver.Number
	addMember := func(score any, member any) {
		za.Members = append(za.Members, driver.ScoredMember{Score: Number(score), Member: String(member)})
	}

	for _, a := range args {
		if pendingScore == nil {
			if handled := zaddStructured(a, addMember); handled {
				continue
			}
		}
		for _, v := range Flatten(a) {
			if pendingScore != nil {
				za.Members = append(za.Members, driver.ScoredMember{Score: *pendingScore, Member: String(v)})
				pendingScore = nil
				continue
			}
			if zaddStructured(v, addMember) {
				continue
			}
			if s, isText := v.(string); isText && zaddFlags[strings.ToUpper(s)] {
				switch strings.ToUpper(s) {
				case "NX":
					za.NX = true
				case "XX":
					za.XX = true
				case "GT":
					za.GT = true
				case "LT":
					za.LT = true
				case "CH":
					za.CH = true
				case "INCR":
					incr = true
				}
				continue
			}
			n := Number(v)
			pendingScore = &n
		}
	}
	return za, incr, pendingScore == nil
}

// zaddStructured handles object and pair-list member forms.
func zaddStructured(v any, add func(score, member any)) bool {
	if fields, ok := objectFields(v); ok {
		raw := rawObjectValues(v)
		var score, member any
		var hasScore, hasMember bool
		for _, f := range fields {
			switch strings.ToLower(f.Field) {
			case "score":
				score, hasScore = raw[f.Field], true
			case "value", "member":
				member, hasMember = raw[f.Field], true
			}
		}
		if hasScore && hasMember && len(fields) == 2 {
			add(score, member)
			return true
		}
		for _, f := range fields {
			add(raw[f.Field], f.Field)
		}
		return true
	}
	if pairs, ok := pairList(v); ok {
		for _, p := range pairs {
			if isNumeric(p[1]) && !isNumeric(p[0]) || (!looksNumeric(p[0]) && looksNumeric(p[1])) {
				add(p[1], p[0])
				continue
			}
			add(p[0], p[1])
		}
		return true
	}
	return false
}

// RangeCommand identifies the legacy sorted-set range command being
// translated.
type RangeCommand int

const (
	ZRange RangeCommand = iota
	ZRevRange
	ZRangeByScore
	ZRevRangeByScore
	ZRangeByLex
	ZRevRangeByLex
)

var rangeVocabs = map[RangeCommand]Vocab{
	ZRange:           {"BYSCORE": 0, "BYLEX": 0, "REV": 0, "WITHSCORES": 0, "LIMIT": 2},
	ZRevRange:        {"WITHSCORES": 0},
	ZRangeByScore:    {"WITHSCORES": 0, "LIMIT": 2},
	ZRevRangeByScore: {"WITHSCORES": 0, "LIMIT": 2},
	ZRangeByLex:      {"LIMIT": 2},
	ZRevRangeByLex:   {"LIMIT": 2},
}

// Range translates the argument run after the key of a sorted-set range
// command. WITHSCORES, LIMIT and the ZRANGE modifiers are detected anywhere
// in the run; the first two remaining values are the boundaries. Reverse
// score and lex ranges take "max min" on the wire and are normalized so
// Start is always the lower boundary.
func Range(cmd RangeCommand, args []any) (driver.RangeQuery, bool) {
	opts, literals := ScanOptions(args, rangeVocabs[cmd])
	q := driver.RangeQuery{}
	ok := len(literals) == 2

	switch cmd {
	case ZRevRange:
		q.Reverse = true
	case ZRangeByScore:
		q.By = driver.ByScore
	case ZRevRangeByScore:
		q.By, q.Reverse = driver.ByScore, true
	case ZRangeByLex:
		q.By = driver.ByLex
	case ZRevRangeByLex:
		q.By, q.Reverse = driver.ByLex, true
	}

	var byScore, byLex bool
	for _, opt := range opts {
		switch opt.Name {
		case "BYSCORE":
			byScore = true
		case "BYLEX":
			byLex = true
		case "REV":
			q.Reverse = true
		case "WITHSCORES":
			q.WithScores = true
		case "LIMIT":
			off, errOff := Number(opt.Values[0]).Int()
			cnt, errCnt := Number(opt.Values[1]).Int()
			if errOff != nil || errCnt != nil {
				ok = false
			}
			q.Limit, q.Offset, q.Count = true, off, cnt
		}
	}
	if cmd == ZRange {
		switch {
		case byScore && byLex:
			ok = false
		case byScore:
			q.By = driver.ByScore
		case byLex:
			q.By = driver.ByLex
		}
	}
	if q.Limit && q.By == driver.ByIndex {
		ok = false
	}
	if q.WithScores && q.By == driver.ByLex {
		ok = false
	}

	if len(literals) >= 2 {
		q.Start, q.Stop = String(literals[0]), String(literals[1])
		if q.Reverse && q.By != driver.ByIndex {
			q.Start, q.Stop = q.Stop, q.Start
		}
	}
	return q, ok
}

var scanVocab = Vocab{"MATCH": 1, "COUNT": 1, "TYPE": 1}

// Scan translates SCAN arguments: the cursor then MATCH, COUNT and TYPE in
// any order.
func Scan(args []any) (uint64, driver.ScanOptions, bool) {
	opts, literals := ScanOptions(args, scanVocab)
	var so driver.ScanOptions
	if len(literals) != 1 {
		return 0, so, false
	}
	cursor, err := strconv.ParseUint(String(literals[0]), 10, 64)
	ok := err == nil
	for _, opt := range opts {
		switch opt.Name {
		case "MATCH":
			so.Match = String(opt.Values[0])
		case "TYPE":
			so.Type = strings.ToLower(String(opt.Values[0]))
		case "COUNT":
			n, err := Number(opt.Values[0]).Int()
			if err != nil || n < 1 {
				ok = false
			}
			so.Count = n
		}
	}
	return cursor, so, ok
}

var expireVocab = Vocab{"NX": 0, "XX": 0, "GT": 0, "LT": 0}

// Expire translates the argument run after the key of EXPIRE/PEXPIRE.
func Expire(args []any) (driver.Number, driver.Condition, bool) {
	opts, literals := ScanOptions(args, expireVocab)
	if len(literals) != 1 {
		return "", driver.CondNone, false
	}
	cond := driver.CondNone
	ok := true
	for _, opt := range opts {
		var c driver.Condition
		switch opt.Name {
		case "NX":
			c = driver.CondNX
		case "XX":
			c = driver.CondXX
		case "GT":
			c = driver.CondGT
		case "LT":
			c = driver.CondLT
		}
		if cond != driver.CondNone && cond != c {
			ok = false
		}
		cond = c
	}
	return Number(literals[0]), cond, ok
}

// Blocking translates BLPOP/BRPOP arguments: one or more keys followed by a
// timeout in seconds.
func Blocking(args []any) ([]string, driver.Number, bool) {
	flat := Strings(args)
	if len(flat) < 2 {
		return nil, "", false
	}
	return flat[:len(flat)-1], driver.Number(flat[len(flat)-1]), true
}

// Count reads the optional trailing count of LPOP/RPOP/ZPOPMIN/ZPOPMAX.
func Count(args []any) (count int64, given bool, ok bool) {
	flat := Flatten(args...)
	switch len(flat) {
	case 0:
		return -1, false, true
	case 1:
		n, err := Number(flat[0]).Int()
		if err != nil {
			return 0, true, false
		}
		return n, true, true
	}
	return 0, true, false
}
