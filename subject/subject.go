// Package subject implements NATS subject validation and wildcard
// matching. Subjects are `.` delimited token lists. Subscription
// patterns may use `*` to match exactly one token and `>` to match one
// or more trailing tokens.
package subject

import "strings"

type Error struct {
	Subject string
	Reason  string
}

func (e *Error) Error() string {
	if e.Subject == "" {
		return "invalid subject: " + e.Reason
	}
	return "invalid subject \"" + e.Subject + "\": " + e.Reason
}

func subjectErr(subject, reason string) error {
	return &Error{Subject: subject, Reason: reason}
}

// Valid checks a subscription pattern and returns its tokens.
func Valid(pattern string) ([]string, error) {
	if pattern == "" {
		return nil, subjectErr(pattern, "must not be empty")
	}

	tokens := strings.Split(pattern, ".")

	for i, token := range tokens {
		switch {
		case token == "":
			return nil, subjectErr(pattern, "empty token")
		case token == "*":
			// valid single-token wildcard
		case token == ">":
			if i != len(tokens)-1 {
				return nil, subjectErr(pattern, "'>' must be the last token")
			}
		case strings.ContainsAny(token, ">*"):
			return nil, subjectErr(pattern, "wildcards must be standalone tokens")
		}
	}

	return tokens, nil
}

// ValidLiteral checks a publish subject, where wildcards are never legal.
func ValidLiteral(subject string) ([]string, error) {
	if subject == "" {
		return nil, subjectErr(subject, "must not be empty")
	}

	tokens := strings.Split(subject, ".")

	for _, token := range tokens {
		switch {
		case token == "":
			return nil, subjectErr(subject, "empty token")
		case strings.ContainsAny(token, ">*"):
			return nil, subjectErr(subject, "wildcards not allowed when publishing")
		}
	}

	return tokens, nil
}

// Match reports whether a concrete subject matches a subscription
// pattern under token-wise wildcard semantics.
func Match(subject, pattern string) bool {
	return matchTokens(strings.Split(subject, "."), strings.Split(pattern, "."))
}

func matchTokens(subject, pattern []string) bool {
	for i, token := range pattern {
		if token == ">" {
			// `>` needs at least one remaining subject token.
			return i == len(pattern)-1 && len(subject) > i
		}

		if i >= len(subject) {
			return false
		}

		if token != "*" && token != subject[i] {
			return false
		}
	}

	return len(subject) == len(pattern)
}
