// Package validation turns raw ingest rows into readings.
//
// A row is a line of whitespace-separated tokens in any order. Each field is
// located independently by lexical shape:
//
//   - time:    the first token containing a run of 10 decimal digits
//   - value:   the first token containing digits, a dot, and digits
//   - channel: the first token exactly equal to a channel name
//
// Extra tokens are ignored and a token may satisfy more than one field. No
// bounds are checked beyond the lexical shape.
package validation

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/xtxerr/gridpower/internal/errors"
	"github.com/xtxerr/gridpower/internal/storage/types"
)

var (
	timePattern  = regexp.MustCompile(`\d{10}`)
	valuePattern = regexp.MustCompile(`\d+\.\d+`)

	// Leading numeric prefixes, read the way a lenient number parser would.
	intPrefix   = regexp.MustCompile(`^[+-]?\d+`)
	floatPrefix = regexp.MustCompile(`^[+-]?(\d+(\.\d*)?|\.\d+)([eE][+-]?\d+)?`)
)

// RowResult is the outcome of parsing one row.
type RowResult struct {
	// OK is true when all three fields were found.
	OK bool

	// Blank is true for rows without any token. Blank rows are neither
	// accepted nor rejected.
	Blank bool

	// Reading is only set when OK is true.
	Reading types.Reading

	// Reasons holds one human-readable message per missing field.
	Reasons []string

	missing errors.ValidationErrors
}

// Err returns nil for accepted and blank rows, otherwise an error wrapping
// errors.ErrRowRejected and one sentinel per missing field.
func (r RowResult) Err() error {
	if r.OK || r.Blank {
		return nil
	}
	return fmt.Errorf("%w: %w: %s", errors.ErrRowRejected, r.missing.Err(), strings.Join(r.Reasons, "; "))
}

// ParseRow validates a single row.
func ParseRow(row string) RowResult {
	return ParseTokens(strings.Fields(row))
}

// ParseTokens validates an already tokenized row.
func ParseTokens(tokens []string) RowResult {
	if len(tokens) == 0 {
		return RowResult{Blank: true}
	}

	timeTok, hasTime := findToken(tokens, timePattern.MatchString)
	valueTok, hasValue := findToken(tokens, valuePattern.MatchString)
	channel, hasChannel := findChannel(tokens)

	var res RowResult
	joined := strings.Join(tokens, " ")

	if !hasTime {
		res.Reasons = append(res.Reasons, "find no time: "+joined)
		res.missing.Add(errors.ErrMissingTime)
	}
	if !hasValue {
		res.Reasons = append(res.Reasons, "find no value: "+joined)
		res.missing.Add(errors.ErrMissingValue)
	}
	if !hasChannel {
		res.Reasons = append(res.Reasons, "unrecognized channel in row: "+joined)
		res.missing.Add(errors.ErrMissingChannel)
	}
	if res.missing.HasErrors() {
		return res
	}

	res.OK = true
	res.Reading = types.Reading{
		Time:    extractTime(timeTok),
		Value:   extractValue(valueTok),
		Channel: channel,
	}
	return res
}

func findToken(tokens []string, match func(string) bool) (string, bool) {
	for _, tok := range tokens {
		if match(tok) {
			return tok, true
		}
	}
	return "", false
}

// findChannel returns the first token that names a channel.
func findChannel(tokens []string) (types.Channel, bool) {
	for _, tok := range tokens {
		if ch, err := types.ParseChannel(tok); err == nil {
			return ch, true
		}
	}
	return "", false
}

// extractTime reads the token's leading integer. Tokens whose 10-digit run
// is embedded after a non-numeric prefix fall back to the run itself.
func extractTime(tok string) int64 {
	if p := intPrefix.FindString(tok); p != "" {
		if v, err := strconv.ParseInt(p, 10, 64); err == nil {
			return v
		}
	}
	v, _ := strconv.ParseInt(timePattern.FindString(tok), 10, 64)
	return v
}

// extractValue reads the token's leading float, falling back to the matched
// digits.digits run.
func extractValue(tok string) float64 {
	if p := floatPrefix.FindString(tok); p != "" {
		if v, err := strconv.ParseFloat(p, 64); err == nil {
			return v
		}
	}
	v, _ := strconv.ParseFloat(valuePattern.FindString(tok), 64)
	return v
}
